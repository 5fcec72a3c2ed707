package aggregate

import (
	"sync"
	"time"
)

// EmbeddingCache caches target-group embeddings between aggregation calls.
// Implementations must be safe for concurrent use.
type EmbeddingCache interface {
	Get(key string) ([]float32, bool)
	Set(key string, vector []float32)
}

type cacheEntry struct {
	vector    []float32
	expiresAt time.Time
}

// TTLCache is an in-process EmbeddingCache with per-entry expiry. Expired
// entries are dropped lazily on access.
type TTLCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// now is replaceable in tests.
	now func() time.Time
}

// NewTTLCache creates a cache with the given time-to-live.
func NewTTLCache(ttl time.Duration) *TTLCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TTLCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached vector if present and unexpired.
func (c *TTLCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.vector, true
}

// Set stores a vector under the key, replacing any previous entry.
func (c *TTLCache) Set(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		vector:    vector,
		expiresAt: c.now().Add(c.ttl),
	}
}

var _ EmbeddingCache = (*TTLCache)(nil)
