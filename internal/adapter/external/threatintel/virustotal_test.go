package threatintel

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/threatlens/threatlens/internal/entity"
)

func newTestVTClient(t *testing.T, handler http.Handler) *VirusTotalClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewVirusTotalClient(VirusTotalConfig{
		APIKey: "test-key",
		Sleep:  func(context.Context, time.Duration) error { return nil },
	})
	c.baseURL = srv.URL
	return c
}

func TestVirusTotalLookupIP(t *testing.T) {
	c := newTestVTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ip_addresses/8.8.8.8", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-apikey"))
		fmt.Fprint(w, `{"data":{"id":"8.8.8.8","type":"ip_address","attributes":{
			"last_analysis_stats":{"malicious":12,"suspicious":6,"harmless":60,"undetected":16},
			"last_analysis_date":1700000000}}}`)
	}))

	res := c.Lookup(context.Background(), "8.8.8.8", entity.IocTypeIP)

	assert.Empty(t, res.Error)
	assert.Equal(t, entity.SourceVirusTotal, res.Source)
	assert.True(t, res.Malicious)
	assert.Equal(t, 18, res.Detections)
	assert.Equal(t, 94, res.TotalVendors)
	assert.Equal(t, "18/94", res.FormattedDetections)
	assert.NotNil(t, res.Data)
	assert.Contains(t, res.Permalink, "/gui/ip/8.8.8.8")
}

func TestVirusTotalCleanVerdict(t *testing.T) {
	c := newTestVTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"attributes":{"last_analysis_stats":{"malicious":0,"suspicious":0,"harmless":70,"undetected":10}}}}`)
	}))

	res := c.Lookup(context.Background(), "example.com", entity.IocTypeDomain)

	assert.Empty(t, res.Error)
	assert.False(t, res.Malicious)
	assert.Equal(t, 0, res.Detections)
	assert.Equal(t, 80, res.TotalVendors)
}

func TestVirusTotalMissingStatsDefaultsToZero(t *testing.T) {
	// "Found but no analysis yet" responses can lack the stats object
	// entirely; the adapter must degrade to 0/0, not fail.
	c := newTestVTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"id":"x","attributes":{}}}`)
	}))

	res := c.Lookup(context.Background(), "example.com", entity.IocTypeDomain)

	assert.Empty(t, res.Error)
	assert.False(t, res.Malicious)
	assert.Equal(t, 0, res.Detections)
	assert.Equal(t, 0, res.TotalVendors)
}

func TestVirusTotalHTTPErrorBecomesErrorResult(t *testing.T) {
	c := newTestVTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	res := c.Lookup(context.Background(), "8.8.8.8", entity.IocTypeIP)

	assert.NotEmpty(t, res.Error)
	assert.False(t, res.Malicious)
	assert.Nil(t, res.Data)
}

func TestVirusTotalRateLimitError(t *testing.T) {
	c := newTestVTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	res := c.Lookup(context.Background(), "8.8.8.8", entity.IocTypeIP)

	assert.Contains(t, res.Error, "rate limit")
}

func TestVirusTotalMissingKey(t *testing.T) {
	c := NewVirusTotalClient(VirusTotalConfig{})

	res := c.Lookup(context.Background(), "8.8.8.8", entity.IocTypeIP)

	assert.Contains(t, res.Error, "not configured")
	assert.False(t, res.Malicious)
	assert.Nil(t, res.Data)
}

func TestVirusTotalURLKnown(t *testing.T) {
	target := "https://example.com/path"
	urlID := base64.RawURLEncoding.EncodeToString([]byte(target))

	c := newTestVTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/urls/"+urlID, r.URL.Path)
		fmt.Fprint(w, `{"data":{"attributes":{"last_analysis_stats":{"malicious":3,"suspicious":0,"harmless":80}}}}`)
	}))

	res := c.Lookup(context.Background(), target, entity.IocTypeURL)

	assert.Empty(t, res.Error)
	assert.True(t, res.Malicious)
	assert.Equal(t, 3, res.Detections)
	assert.Equal(t, 83, res.TotalVendors)
}

func TestVirusTotalURLSubmitAndPoll(t *testing.T) {
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /urls/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /urls", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "https://malware.example/drop", r.PostForm.Get("url"))
		fmt.Fprint(w, `{"data":{"id":"u-abc-123","type":"analysis"}}`)
	})
	mux.HandleFunc("GET /analyses/u-abc-123", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			fmt.Fprint(w, `{"data":{"attributes":{"status":"queued"}}}`)
			return
		}
		fmt.Fprint(w, `{"data":{"id":"u-abc-123","attributes":{"status":"completed",
			"stats":{"malicious":5,"suspicious":1,"harmless":70,"undetected":4}}}}`)
	})

	c := newTestVTClient(t, mux)

	res := c.Lookup(context.Background(), "https://malware.example/drop", entity.IocTypeURL)

	assert.Empty(t, res.Error)
	assert.True(t, res.Malicious)
	assert.Equal(t, 6, res.Detections)
	assert.Equal(t, 80, res.TotalVendors)
	assert.EqualValues(t, 3, polls.Load())
	assert.Contains(t, res.Permalink, "uabc123")
}

func TestVirusTotalURLPollBudgetExhausted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /urls/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /urls", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"id":"u-never-done"}}`)
	})
	mux.HandleFunc("GET /analyses/u-never-done", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"attributes":{"status":"queued"}}}`)
	})

	c := newTestVTClient(t, mux)

	res := c.Lookup(context.Background(), "https://slow.example/x", entity.IocTypeURL)

	// An analysis that never completes is a soft error, not a clean vote.
	assert.Contains(t, res.Error, "did not complete")
	assert.False(t, res.Malicious)
	assert.Nil(t, res.Data)
}

func TestVirusTotalSupports(t *testing.T) {
	c := NewVirusTotalClient(VirusTotalConfig{APIKey: "k"})

	for _, typ := range []entity.IocType{entity.IocTypeIP, entity.IocTypeDomain, entity.IocTypeHash, entity.IocTypeURL} {
		assert.True(t, c.Supports(typ))
	}
	assert.False(t, c.Supports(entity.IocTypeUnknown))
}
