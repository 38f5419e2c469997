package didresolver

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry is (handle, cachedAt); TTL eviction is layered on top of the
// library's LRU-by-capacity eviction.
type cacheEntry struct {
	handle   string
	cachedAt time.Time
}

// cache is a bounded, LRU-ordered id->handle mapping with TTL eviction on
// both access and a periodic background sweep.
type cache struct {
	lru *lru.Cache[string, cacheEntry]
	ttl time.Duration
}

func newCache(capacity int, ttl time.Duration) (*cache, error) {
	l, err := lru.New[string, cacheEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &cache{lru: l, ttl: ttl}, nil
}

// get returns the cached handle if present and not expired. An expired hit
// is evicted rather than returned.
func (c *cache) get(id string) (string, bool) {
	entry, ok := c.lru.Get(id)
	if !ok {
		return "", false
	}
	if c.expired(entry) {
		c.lru.Remove(id)
		return "", false
	}
	return entry.handle, true
}

func (c *cache) set(id, handle string) {
	c.lru.Add(id, cacheEntry{handle: handle, cachedAt: time.Now()})
}

func (c *cache) expired(entry cacheEntry) bool {
	return c.ttl > 0 && time.Since(entry.cachedAt) > c.ttl
}

func (c *cache) len() int {
	return c.lru.Len()
}

// sweep removes all expired entries. Intended to run on a periodic ticker,
// grounded on the same ticker-goroutine shape used for cursor auto-save.
func (c *cache) sweep() {
	for _, id := range c.lru.Keys() {
		entry, ok := c.lru.Peek(id)
		if !ok {
			continue
		}
		if c.expired(entry) {
			c.lru.Remove(id)
		}
	}
}
