package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/threatlens/threatlens/internal/entity"
)

// URLhausClient queries the abuse.ch URLhaus malicious-URL database. The
// endpoint and the form parameter both depend on the IOC type: URLs hit the
// url endpoint, IPs and domains the host endpoint, hashes the payload
// endpoint.
type URLhausClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// URLhausConfig holds URLhaus client configuration.
type URLhausConfig struct {
	APIKey  string // Auth-Key from auth.abuse.ch, shared with ThreatFox
	Timeout time.Duration
}

// NewURLhausClient creates a new URLhaus client.
func NewURLhausClient(cfg URLhausConfig) *URLhausClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &URLhausClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: "https://urlhaus-api.abuse.ch/v1/",
		apiKey:  cfg.APIKey,
	}
}

var urlhausTypes = newTypeSet(entity.IocTypeIP, entity.IocTypeDomain, entity.IocTypeHash, entity.IocTypeURL)

// Name returns the provider name.
func (c *URLhausClient) Name() string { return entity.SourceURLhaus }

// IsConfigured returns true if the Auth-Key is configured.
func (c *URLhausClient) IsConfigured() bool { return c.apiKey != "" }

// Supports reports whether the client can look up the given IOC type.
func (c *URLhausClient) Supports(t entity.IocType) bool { return urlhausTypes.contains(t) }

// urlhausResponse covers both the url lookup shape (url_status at the top
// level) and the host/payload shapes (a urls list).
type urlhausResponse struct {
	QueryStatus string       `json:"query_status"`
	URLStatus   string       `json:"url_status,omitempty"`
	DateAdded   string       `json:"date_added,omitempty"`
	FirstSeen   string       `json:"firstseen,omitempty"`
	Threat      string       `json:"threat,omitempty"`
	Host        string       `json:"host,omitempty"`
	URLCount    int          `json:"url_count,omitempty"`
	URLs        []urlhausURL `json:"urls,omitempty"`
}

// urlhausURL is one malicious URL record.
type urlhausURL struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	URLStatus string   `json:"url_status"`
	DateAdded string   `json:"date_added"`
	Threat    string   `json:"threat"`
	Tags      []string `json:"tags,omitempty"`
	Reporter  string   `json:"reporter,omitempty"`
}

// Lookup queries URLhaus and maps the response into a SourceResult. For url
// IOCs the verdict is whether that URL's status is "online"; for everything
// else whether any listed URL is still online. All failures become error
// results.
func (c *URLhausClient) Lookup(ctx context.Context, ioc string, t entity.IocType) entity.SourceResult {
	if c.apiKey == "" {
		return entity.ErrorResult(entity.SourceURLhaus, fmt.Errorf("URLhaus Auth-Key not configured"))
	}

	endpoint, paramKey := c.route(t)

	form := url.Values{}
	form.Set(paramKey, ioc)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return entity.ErrorResult(entity.SourceURLhaus, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Auth-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entity.ErrorResult(entity.SourceURLhaus, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entity.ErrorResult(entity.SourceURLhaus, fmt.Errorf("API error: status %d", resp.StatusCode))
	}

	var uhResp urlhausResponse
	if err := json.NewDecoder(resp.Body).Decode(&uhResp); err != nil {
		return entity.ErrorResult(entity.SourceURLhaus, fmt.Errorf("decode response: %w", err))
	}

	var (
		malicious bool
		scanDate  string
	)

	if t == entity.IocTypeURL {
		malicious = uhResp.URLStatus == "online"
		scanDate = uhResp.DateAdded
	} else {
		for _, u := range uhResp.URLs {
			if u.URLStatus == "online" {
				malicious = true
				break
			}
		}
		scanDate = uhResp.FirstSeen
		if scanDate == "" {
			scanDate = uhResp.DateAdded
		}
	}

	detections := 0
	if malicious {
		detections = 1
	}

	return entity.SourceResult{
		Source:              entity.SourceURLhaus,
		Malicious:           malicious,
		Detections:          detections,
		TotalVendors:        1,
		Data:                &uhResp,
		ScanDate:            scanDate,
		QueryStatus:         uhResp.QueryStatus,
		FormattedDetections: fmt.Sprintf("%d active listing", detections),
	}
}

// route picks the endpoint path and form parameter for an IOC type.
func (c *URLhausClient) route(t entity.IocType) (endpoint, paramKey string) {
	switch t {
	case entity.IocTypeURL:
		return "url/", "url"
	case entity.IocTypeHash:
		return "payload/", "sha256_hash"
	default:
		return "host/", "host"
	}
}
