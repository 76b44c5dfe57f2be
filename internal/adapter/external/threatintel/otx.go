package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/threatlens/threatlens/internal/entity"
)

// OTXClient queries the AlienVault OTX community pulse API. OTX has no
// notion of "N out of M engines": the detection proxy is the number of
// community pulses referencing the indicator.
type OTXClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// OTXConfig holds OTX client configuration.
type OTXConfig struct {
	APIKey  string
	Timeout time.Duration
}

// NewOTXClient creates a new AlienVault OTX client.
func NewOTXClient(cfg OTXConfig) *OTXClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &OTXClient{
		apiKey:  cfg.APIKey,
		baseURL: "https://otx.alienvault.com/api/v1",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

var otxTypes = newTypeSet(entity.IocTypeIP, entity.IocTypeDomain, entity.IocTypeHash, entity.IocTypeURL)

// Name returns the provider name.
func (c *OTXClient) Name() string { return entity.SourceOTX }

// IsConfigured returns true if the client has an API key.
func (c *OTXClient) IsConfigured() bool { return c.apiKey != "" }

// Supports reports whether the client can look up the given IOC type.
func (c *OTXClient) Supports(t entity.IocType) bool { return otxTypes.contains(t) }

// otxIndicator mirrors the slice of the OTX general response the engine
// reads; pulse_info.count is the external contract for the detection proxy.
type otxIndicator struct {
	Indicator string       `json:"indicator"`
	Type      string       `json:"type"`
	PulseInfo otxPulseInfo `json:"pulse_info"`
	Modified  string       `json:"modified,omitempty"`
}

type otxPulseInfo struct {
	Count  int        `json:"count"`
	Pulses []otxPulse `json:"pulses,omitempty"`
}

type otxPulse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Created  string   `json:"created"`
	Modified string   `json:"modified"`
	Tags     []string `json:"tags,omitempty"`
}

// Lookup resolves an IOC against OTX and maps the response into a
// SourceResult. All failures become error results.
func (c *OTXClient) Lookup(ctx context.Context, ioc string, t entity.IocType) entity.SourceResult {
	if c.apiKey == "" {
		return entity.ErrorResult(entity.SourceOTX, fmt.Errorf("OTX API key not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(ioc, t), nil)
	if err != nil {
		return entity.ErrorResult(entity.SourceOTX, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("X-OTX-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entity.ErrorResult(entity.SourceOTX, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return entity.ErrorResult(entity.SourceOTX, fmt.Errorf("rate limit exceeded"))
	}
	if resp.StatusCode != http.StatusOK {
		return entity.ErrorResult(entity.SourceOTX, fmt.Errorf("API error: status %d", resp.StatusCode))
	}

	var indicator otxIndicator
	if err := json.NewDecoder(resp.Body).Decode(&indicator); err != nil {
		return entity.ErrorResult(entity.SourceOTX, fmt.Errorf("decode response: %w", err))
	}

	count := indicator.PulseInfo.Count

	return entity.SourceResult{
		Source:              entity.SourceOTX,
		Malicious:           count > 0,
		Detections:          count,
		TotalVendors:        1,
		Data:                &indicator,
		ScanDate:            indicator.Modified,
		FormattedDetections: fmt.Sprintf("%d pulses", count),
	}
}

// endpoint builds the type-specific indicator URL. The hash sub-type is
// chosen purely by string length: 32 hex chars is MD5, 40 is SHA1, anything
// else SHA256.
func (c *OTXClient) endpoint(ioc string, t entity.IocType) string {
	switch t {
	case entity.IocTypeIP:
		return fmt.Sprintf("%s/indicators/IPv4/%s", c.baseURL, url.PathEscape(ioc))
	case entity.IocTypeDomain:
		return fmt.Sprintf("%s/indicators/domain/%s", c.baseURL, url.PathEscape(ioc))
	case entity.IocTypeHash:
		sub := "SHA256"
		switch len(ioc) {
		case 32:
			sub = "MD5"
		case 40:
			sub = "SHA1"
		}
		return fmt.Sprintf("%s/indicators/file/%s/%s", c.baseURL, sub, url.PathEscape(ioc))
	default:
		return fmt.Sprintf("%s/indicators/url/%s", c.baseURL, url.QueryEscape(ioc))
	}
}
