package scorecache

import (
	"context"
	"sync"
)

// MemoryCache is an in-process Score Cache used by tests; entries never
// expire. The worker binary always wires the Redis-backed cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryCache builds an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (c *MemoryCache) Get(_ context.Context, envPrefix, text string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[Key(envPrefix, text)]
	if !ok {
		return Entry{}, false
	}
	e.BridgingScore = e.Recompute()
	return e, true
}

func (c *MemoryCache) Set(_ context.Context, envPrefix, text string, entry Entry) {
	entry.BridgingScore = entry.Recompute()
	c.mu.Lock()
	c.entries[Key(envPrefix, text)] = entry
	c.mu.Unlock()
}
