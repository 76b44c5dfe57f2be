package threatintel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/threatlens/threatlens/internal/entity"
)

// ThreatFoxClient queries the abuse.ch ThreatFox IOC database. The detection
// proxy is the number of matching IOC records for an exact-match search.
type ThreatFoxClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// ThreatFoxConfig holds ThreatFox client configuration.
type ThreatFoxConfig struct {
	APIKey  string // Auth-Key from auth.abuse.ch
	Timeout time.Duration
}

// NewThreatFoxClient creates a new ThreatFox client.
func NewThreatFoxClient(cfg ThreatFoxConfig) *ThreatFoxClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &ThreatFoxClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: "https://threatfox-api.abuse.ch/api/v1/",
		apiKey:  cfg.APIKey,
	}
}

var threatFoxTypes = newTypeSet(entity.IocTypeIP, entity.IocTypeDomain, entity.IocTypeHash, entity.IocTypeURL)

// Name returns the provider name.
func (c *ThreatFoxClient) Name() string { return entity.SourceThreatFox }

// IsConfigured returns true if the Auth-Key is configured.
func (c *ThreatFoxClient) IsConfigured() bool { return c.apiKey != "" }

// Supports reports whether the client can look up the given IOC type.
func (c *ThreatFoxClient) Supports(t entity.IocType) bool { return threatFoxTypes.contains(t) }

// threatFoxResponse represents the search_ioc response. The data field is
// []threatFoxIOC when records match but a bare string ("Your search did not
// yield any result") on no_result, so it needs a custom unmarshal.
type threatFoxResponse struct {
	QueryStatus string          `json:"query_status"`
	Data        []threatFoxIOC  `json:"-"`
	DataRaw     json.RawMessage `json:"data,omitempty"`
}

// UnmarshalJSON handles the variable data field type.
func (r *threatFoxResponse) UnmarshalJSON(data []byte) error {
	type alias threatFoxResponse
	aux := (*alias)(r)
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(r.DataRaw) > 0 && r.DataRaw[0] == '[' {
		if err := json.Unmarshal(r.DataRaw, &r.Data); err != nil {
			return err
		}
	}
	// A string data field (no_result) leaves Data empty.
	return nil
}

// threatFoxIOC is one matching indicator record.
type threatFoxIOC struct {
	ID               string   `json:"id"`
	IOC              string   `json:"ioc"`
	IOCType          string   `json:"ioc_type"`
	ThreatType       string   `json:"threat_type"`
	Malware          string   `json:"malware"`
	MalwarePrintable string   `json:"malware_printable"`
	Confidence       int      `json:"confidence_level"`
	FirstSeen        string   `json:"first_seen"`
	LastSeen         string   `json:"last_seen"`
	Reporter         string   `json:"reporter"`
	Tags             []string `json:"tags"`
}

// Lookup searches ThreatFox for the IOC with an exact-match query. All
// failures become error results.
func (c *ThreatFoxClient) Lookup(ctx context.Context, ioc string, _ entity.IocType) entity.SourceResult {
	if c.apiKey == "" {
		return entity.ErrorResult(entity.SourceThreatFox, fmt.Errorf("ThreatFox Auth-Key not configured"))
	}

	payload, err := json.Marshal(map[string]any{
		"query":       "search_ioc",
		"search_term": ioc,
		"exact_match": true,
	})
	if err != nil {
		return entity.ErrorResult(entity.SourceThreatFox, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return entity.ErrorResult(entity.SourceThreatFox, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Auth-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entity.ErrorResult(entity.SourceThreatFox, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entity.ErrorResult(entity.SourceThreatFox, fmt.Errorf("API error: status %d", resp.StatusCode))
	}

	var tfResp threatFoxResponse
	if err := json.NewDecoder(resp.Body).Decode(&tfResp); err != nil {
		return entity.ErrorResult(entity.SourceThreatFox, fmt.Errorf("decode response: %w", err))
	}

	detections := len(tfResp.Data)

	result := entity.SourceResult{
		Source:              entity.SourceThreatFox,
		Malicious:           detections > 0,
		Detections:          detections,
		TotalVendors:        1,
		Data:                &tfResp,
		QueryStatus:         tfResp.QueryStatus,
		FormattedDetections: fmt.Sprintf("%d IOC records", detections),
	}
	if detections > 0 {
		result.ScanDate = tfResp.Data[0].FirstSeen
	}

	return result
}
