package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// AbuseProxyClient talks to the local companion proxy that holds the
// AbuseIPDB credential. The key must stay server-side, so the engine never
// calls AbuseIPDB directly; it goes through the proxy's check-ip endpoint.
type AbuseProxyClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// AbuseProxyConfig holds companion proxy client configuration.
type AbuseProxyConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit int // requests per minute, 0 means the default
}

// NewAbuseProxyClient creates a client for the companion proxy.
func NewAbuseProxyClient(cfg AbuseProxyConfig) *AbuseProxyClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	rateLimit := cfg.RateLimit
	if rateLimit == 0 {
		rateLimit = 60
	}

	return &AbuseProxyClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(rateLimit)/60.0), 5),
	}
}

// abuseIPData mirrors the AbuseIPDB check payload passed through the proxy.
type abuseIPData struct {
	IPAddress            string   `json:"ipAddress"`
	IsPublic             bool     `json:"isPublic"`
	IPVersion            int      `json:"ipVersion"`
	IsWhitelisted        bool     `json:"isWhitelisted"`
	AbuseConfidenceScore int      `json:"abuseConfidenceScore"`
	CountryCode          string   `json:"countryCode"`
	CountryName          string   `json:"countryName"`
	UsageType            string   `json:"usageType"`
	ISP                  string   `json:"isp"`
	Domain               string   `json:"domain"`
	Hostnames            []string `json:"hostnames"`
	IsTor                bool     `json:"isTor"`
	TotalReports         int      `json:"totalReports"`
	NumDistinctUsers     int      `json:"numDistinctUsers"`
	LastReportedAt       string   `json:"lastReportedAt"`
}

type abuseProxyResponse struct {
	Data  *abuseIPData `json:"data"`
	Error string       `json:"error,omitempty"`
}

// Health probes the proxy's health endpoint.
func (c *AbuseProxyClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("proxy unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// CheckIP asks the proxy for the AbuseIPDB report on an IP, constraining the
// report window to maxAgeDays.
func (c *AbuseProxyClient) CheckIP(ctx context.Context, ip string, maxAgeDays int) (*abuseIPData, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("ip", ip)
	q.Set("maxAge", strconv.Itoa(maxAgeDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/check-ip?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var proxyResp abuseProxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&proxyResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if proxyResp.Error != "" {
			return nil, fmt.Errorf("proxy error (%d): %s", resp.StatusCode, proxyResp.Error)
		}
		return nil, fmt.Errorf("proxy error: status %d", resp.StatusCode)
	}

	if proxyResp.Data == nil {
		return nil, fmt.Errorf("proxy returned no data")
	}

	return proxyResp.Data, nil
}
