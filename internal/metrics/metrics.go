// Package metrics tracks process-local performance counters. Counters are
// never persisted; they reset when the process restarts.
package metrics

import "sync"

// Counters records API and cache activity for one process.
type Counters struct {
	mu          sync.Mutex
	apiCalls    int64
	cacheHits   int64
	cacheMisses int64
}

// NewCounters creates a zeroed counter set.
func NewCounters() *Counters {
	return &Counters{}
}

// RecordAPICall increments the API-call counter. Each HTTP attempt counts
// individually, retries included.
func (c *Counters) RecordAPICall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiCalls++
}

// RecordCacheHit increments the cache-hit counter.
func (c *Counters) RecordCacheHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheHits++
}

// RecordCacheMiss increments the cache-miss counter.
func (c *Counters) RecordCacheMiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheMisses++
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	APICalls    int64 `json:"api_calls"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
}

// Snapshot returns a consistent copy of all counters.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		APICalls:    c.apiCalls,
		CacheHits:   c.cacheHits,
		CacheMisses: c.cacheMisses,
	}
}

// HitRate returns the cache hit ratio in [0, 1], or 0 when no lookups
// have been recorded.
func (s Snapshot) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}
