package openmeteo

import (
	"sync"
	"time"
)

// responseCache deduplicates repeated requests by caching raw response
// bodies keyed by the full request URL. It is a cost optimization only:
// correctness never depends on a hit, and its expiry is independent of the
// ingestion freshness gate.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	body     []byte
	storedAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *responseCache) get(key string, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.body, true
}

func (c *responseCache) put(key string, body []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{body: body, storedAt: now}
}
