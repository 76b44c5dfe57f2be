package threatintel

import (
	"context"
	"fmt"

	"github.com/threatlens/threatlens/internal/entity"
)

// defaultMaxAgeDays is the report window requested from AbuseIPDB.
const defaultMaxAgeDays = 30

// AbuseIPDBClient resolves abuse confidence for IP indicators through the
// local companion proxy. It is the only provider restricted to a single IOC
// type, and the only one whose upstream already speaks the 0-100 scale.
type AbuseIPDBClient struct {
	proxy      *AbuseProxyClient
	maxAgeDays int
}

// AbuseIPDBConfig holds AbuseIPDB adapter configuration.
type AbuseIPDBConfig struct {
	Proxy      *AbuseProxyClient
	MaxAgeDays int
}

// NewAbuseIPDBClient creates a new AbuseIPDB adapter.
func NewAbuseIPDBClient(cfg AbuseIPDBConfig) *AbuseIPDBClient {
	maxAge := cfg.MaxAgeDays
	if maxAge == 0 {
		maxAge = defaultMaxAgeDays
	}

	return &AbuseIPDBClient{
		proxy:      cfg.Proxy,
		maxAgeDays: maxAge,
	}
}

// Name returns the provider name.
func (c *AbuseIPDBClient) Name() string { return entity.SourceAbuseIPDB }

// IsConfigured returns true when a proxy client is wired in.
func (c *AbuseIPDBClient) IsConfigured() bool { return c.proxy != nil }

// Supports reports whether the client can look up the given IOC type.
// AbuseIPDB only models IP addresses.
func (c *AbuseIPDBClient) Supports(t entity.IocType) bool { return t == entity.IocTypeIP }

// Lookup checks the companion proxy's availability and then resolves the IP.
// A missing proxy is surfaced as its own descriptive error rather than a
// generic network failure, because the fix (start the proxy) differs from an
// upstream outage. All failures become error results.
func (c *AbuseIPDBClient) Lookup(ctx context.Context, ioc string, _ entity.IocType) entity.SourceResult {
	if c.proxy == nil {
		return entity.ErrorResult(entity.SourceAbuseIPDB, fmt.Errorf("AbuseIPDB proxy not configured"))
	}

	if err := c.proxy.Health(ctx); err != nil {
		return entity.ErrorResult(entity.SourceAbuseIPDB,
			fmt.Errorf("cannot reach the AbuseIPDB companion proxy, is the abuseproxy service running? %w", err))
	}

	data, err := c.proxy.CheckIP(ctx, ioc, c.maxAgeDays)
	if err != nil {
		return entity.ErrorResult(entity.SourceAbuseIPDB, err)
	}

	return entity.SourceResult{
		Source:    entity.SourceAbuseIPDB,
		Malicious: data.AbuseConfidenceScore > 50,
		// The confidence score is already on the 0-100 scale and is used
		// directly by the risk calculator; TotalVendors 100 keeps the
		// percentage framing for the per-source table.
		Detections:   data.AbuseConfidenceScore,
		TotalVendors: 100,
		Data:         data,
		ScanDate:     data.LastReportedAt,
		FormattedDetections: fmt.Sprintf("%d%% confidence, %d reports",
			data.AbuseConfidenceScore, data.TotalReports),
	}
}
