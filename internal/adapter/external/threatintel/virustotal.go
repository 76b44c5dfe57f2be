package threatintel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/threatlens/threatlens/internal/entity"
)

// VirusTotalClient queries the VirusTotal v3 API. It supports every IOC type
// and is the only provider with a multi-step flow: unknown URLs are submitted
// for analysis and the analysis endpoint is polled until it completes.
type VirusTotalClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	poller     Poller
}

// VirusTotalConfig holds VirusTotal client configuration.
type VirusTotalConfig struct {
	APIKey  string
	Timeout time.Duration

	// PollInterval/PollAttempts bound the URL analysis loop. Defaults:
	// 2 seconds, 10 attempts.
	PollInterval time.Duration
	PollAttempts int

	// Sleep overrides the inter-poll wait, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewVirusTotalClient creates a new VirusTotal client.
func NewVirusTotalClient(cfg VirusTotalConfig) *VirusTotalClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollAttempts == 0 {
		cfg.PollAttempts = 10
	}

	return &VirusTotalClient{
		apiKey:  cfg.APIKey,
		baseURL: "https://www.virustotal.com/api/v3",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		// Pace outbound calls so the polling loop does not burn through
		// the API quota in one burst.
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
		poller: Poller{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollAttempts,
			Sleep:       cfg.Sleep,
		},
	}
}

var vtTypes = newTypeSet(entity.IocTypeIP, entity.IocTypeDomain, entity.IocTypeHash, entity.IocTypeURL)

// Name returns the provider name.
func (c *VirusTotalClient) Name() string { return entity.SourceVirusTotal }

// IsConfigured returns true if the client has an API key.
func (c *VirusTotalClient) IsConfigured() bool { return c.apiKey != "" }

// Supports reports whether the client can look up the given IOC type.
func (c *VirusTotalClient) Supports(t entity.IocType) bool { return vtTypes.contains(t) }

// vtObject mirrors the slice of the VirusTotal response the engine reads.
// The stats field paths are external contracts: direct lookups carry
// data.attributes.last_analysis_stats, analysis polls carry
// data.attributes.stats.
type vtObject struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	Attributes vtAttributes `json:"attributes"`
}

type vtAttributes struct {
	Status            string         `json:"status,omitempty"`
	LastAnalysisStats map[string]int `json:"last_analysis_stats,omitempty"`
	Stats             map[string]int `json:"stats,omitempty"`
	LastAnalysisDate  int64          `json:"last_analysis_date,omitempty"`
	Reputation        int            `json:"reputation,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
}

type vtResponse struct {
	Data vtObject `json:"data"`
}

// engineStats returns whichever per-engine stats object the payload carries.
// A payload with neither yields an empty map, which downstream defaulting
// turns into zero detections out of zero engines.
func (o vtObject) engineStats() map[string]int {
	if len(o.Attributes.LastAnalysisStats) > 0 {
		return o.Attributes.LastAnalysisStats
	}
	return o.Attributes.Stats
}

// Lookup resolves an IOC against VirusTotal and maps the response into a
// SourceResult. All failures become error results.
func (c *VirusTotalClient) Lookup(ctx context.Context, ioc string, t entity.IocType) entity.SourceResult {
	if c.apiKey == "" {
		return entity.ErrorResult(entity.SourceVirusTotal, fmt.Errorf("VirusTotal API key not configured"))
	}

	var (
		obj       *vtObject
		permalink string
		err       error
	)

	if t == entity.IocTypeURL {
		obj, permalink, err = c.lookupURL(ctx, ioc)
	} else {
		obj, permalink, err = c.lookupDirect(ctx, ioc, t)
	}
	if err != nil {
		return entity.ErrorResult(entity.SourceVirusTotal, err)
	}

	stats := obj.engineStats()

	// Detections are malicious plus suspicious engine verdicts; the total
	// sums every verdict category present, whatever the service adds.
	detections := stats["malicious"] + stats["suspicious"]
	total := 0
	for _, n := range stats {
		total += n
	}

	scanDate := time.Now().UTC()
	if obj.Attributes.LastAnalysisDate > 0 {
		scanDate = time.Unix(obj.Attributes.LastAnalysisDate, 0).UTC()
	}

	return entity.SourceResult{
		Source:              entity.SourceVirusTotal,
		Malicious:           detections > 0,
		Detections:          detections,
		TotalVendors:        total,
		Data:                obj,
		ScanDate:            scanDate.Format(time.RFC3339),
		Permalink:           permalink,
		FormattedDetections: fmt.Sprintf("%d/%d", detections, total),
	}
}

// lookupDirect handles the single-request ip/domain/hash endpoints.
func (c *VirusTotalClient) lookupDirect(ctx context.Context, ioc string, t entity.IocType) (*vtObject, string, error) {
	endpoints := map[entity.IocType]string{
		entity.IocTypeIP:     "ip_addresses",
		entity.IocTypeDomain: "domains",
		entity.IocTypeHash:   "files",
	}
	guiPaths := map[entity.IocType]string{
		entity.IocTypeIP:     "ip",
		entity.IocTypeDomain: "domain",
		entity.IocTypeHash:   "file",
	}

	resp, err := c.get(ctx, fmt.Sprintf("%s/%s/%s", c.baseURL, endpoints[t], url.PathEscape(ioc)))
	if err != nil {
		return nil, "", err
	}

	permalink := fmt.Sprintf("https://www.virustotal.com/gui/%s/%s", guiPaths[t], ioc)
	return &resp.Data, permalink, nil
}

// lookupURL implements the URL flow: look up by the base64url identifier,
// and when the URL is unknown, submit it and poll the analysis endpoint.
func (c *VirusTotalClient) lookupURL(ctx context.Context, ioc string) (*vtObject, string, error) {
	urlID := base64.RawURLEncoding.EncodeToString([]byte(ioc))

	resp, status, err := c.getWithStatus(ctx, fmt.Sprintf("%s/urls/%s", c.baseURL, urlID))
	if err != nil {
		return nil, "", err
	}
	if status == http.StatusOK {
		return &resp.Data, "https://www.virustotal.com/gui/url/" + urlID, nil
	}
	if status != http.StatusNotFound {
		return nil, "", fmt.Errorf("url lookup failed: status %d", status)
	}

	// Unknown URL: submit it for a fresh analysis.
	analysisID, err := c.submitURL(ctx, ioc)
	if err != nil {
		return nil, "", err
	}

	var completed *vtObject
	done, err := c.poller.Run(ctx, func(ctx context.Context) (bool, error) {
		analysis, err := c.get(ctx, fmt.Sprintf("%s/analyses/%s", c.baseURL, url.PathEscape(analysisID)))
		if err != nil {
			return false, err
		}
		if analysis.Data.Attributes.Status == "completed" {
			completed = &analysis.Data
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, "", err
	}
	if !done {
		// The analysis never completed within the poll budget. A soft
		// error here keeps an unfinished scan from counting as a clean
		// verdict.
		return nil, "", fmt.Errorf("url analysis %s did not complete within %d polls", analysisID, c.poller.MaxAttempts)
	}

	permalink := "https://www.virustotal.com/gui/url/" + strings.ReplaceAll(analysisID, "-", "")
	return completed, permalink, nil
}

// submitURL posts the URL for analysis and returns the analysis id.
func (c *VirusTotalClient) submitURL(ctx context.Context, ioc string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	form := url.Values{}
	form.Set("url", ioc)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/urls", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("url submission failed: status %d", resp.StatusCode)
	}

	var submitResp vtResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", fmt.Errorf("decode submission response: %w", err)
	}
	if submitResp.Data.ID == "" {
		return "", fmt.Errorf("url submission returned no analysis id")
	}

	return submitResp.Data.ID, nil
}

func (c *VirusTotalClient) get(ctx context.Context, reqURL string) (*vtResponse, error) {
	resp, status, err := c.getWithStatus(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		if status == http.StatusTooManyRequests {
			return nil, fmt.Errorf("rate limit exceeded")
		}
		return nil, fmt.Errorf("API error: status %d", status)
	}
	return resp, nil
}

// getWithStatus performs an authenticated GET and decodes the body only on
// 200; other statuses are handed back for the caller to interpret.
func (c *VirusTotalClient) getWithStatus(ctx context.Context, reqURL string) (*vtResponse, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var apiResp vtResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}

	return &apiResp, resp.StatusCode, nil
}
