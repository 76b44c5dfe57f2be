package threatintel

import (
	"sync"
	"time"

	"github.com/threatlens/threatlens/internal/entity"
)

// SummaryCache keeps recent analysis summaries in memory so repeated lookups
// of the same indicator do not re-query every upstream service. Entries live
// only for the process lifetime; nothing is persisted.
type SummaryCache struct {
	mu     sync.RWMutex
	data   map[string]*summaryEntry
	ttl    time.Duration
	hits   int64
	misses int64
}

type summaryEntry struct {
	summary   *entity.AnalysisSummary
	expiresAt time.Time
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	TTL     string  `json:"ttl"`
}

// NewSummaryCache creates a cache with the given TTL and starts its
// background cleanup loop.
func NewSummaryCache(ttl time.Duration) *SummaryCache {
	c := &SummaryCache{
		data: make(map[string]*summaryEntry),
		ttl:  ttl,
	}

	go c.cleanup()

	return c
}

// Get retrieves a cached summary for an indicator.
func (c *SummaryCache) Get(ioc string) (*entity.AnalysisSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[ioc]
	if !ok || time.Now().After(entry.expiresAt) {
		if ok {
			delete(c.data, ioc)
		}
		c.misses++
		return nil, false
	}

	c.hits++

	// Copy so callers cannot mutate the cached value.
	summary := *entry.summary
	return &summary, true
}

// Set stores a summary for an indicator.
func (c *SummaryCache) Set(ioc string, summary *entity.AnalysisSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[ioc] = &summaryEntry{
		summary:   summary,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Clear removes every entry and resets the counters.
func (c *SummaryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*summaryEntry)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *SummaryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Size:    len(c.data),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
		TTL:     c.ttl.String(),
	}
}

// cleanup periodically removes expired entries.
func (c *SummaryCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.removeExpired()
	}
}

func (c *SummaryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for ioc, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, ioc)
		}
	}
}
