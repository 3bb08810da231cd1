package analysis

import (
	"sync"
	"time"

	"github.com/marketlens/marketlens/core"
)

type cacheEntry struct {
	response  core.AnalysisResponse
	expiresAt time.Time
}

// Cache is a TTL response cache keyed by the canonical request hash. Entries
// are deep-copied on both write and read so callers can never mutate a cached
// response through an alias. A TTL of zero or below disables caching.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Enabled reports whether caching is active.
func (c *Cache) Enabled() bool {
	return c.ttl > 0
}

// Get returns a deep copy of the cached response for key, expiring stale
// entries on the way.
func (c *Cache) Get(key string) (core.AnalysisResponse, bool) {
	if !c.Enabled() {
		return core.AnalysisResponse{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return core.AnalysisResponse{}, false
	}
	if !entry.expiresAt.After(c.now()) {
		delete(c.entries, key)
		return core.AnalysisResponse{}, false
	}
	return entry.response.Clone(), true
}

// Put stores a deep copy of response under key.
func (c *Cache) Put(key string, response core.AnalysisResponse) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		response:  response.Clone(),
		expiresAt: c.now().Add(c.ttl),
	}
}

// Len returns the number of entries currently stored, including any not yet
// swept expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
