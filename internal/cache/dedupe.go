// Package cache provides the small in-process caches used by the bus
// middleware and the ingest subscriber.
package cache

import (
	"sync"
	"time"
)

// DedupeCache provides time-limited deduplication. The bus rate-limit
// middleware keys it on {event type, source} to drop duplicates
// published within the window.
type DedupeCache struct {
	mu      sync.Mutex
	seen    map[string]int64 // key -> unix-milli timestamp
	ttl     time.Duration
	maxSize int
}

// DedupeOptions configures the cache.
type DedupeOptions struct {
	TTL     time.Duration
	MaxSize int
}

// NewDedupeCache creates a new deduplication cache.
func NewDedupeCache(opts DedupeOptions) *DedupeCache {
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &DedupeCache{
		seen:    make(map[string]int64),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Check returns true if the key was seen within TTL (duplicate) and
// records the key with the current timestamp either way.
func (c *DedupeCache) Check(key string) bool {
	return c.CheckAt(key, time.Now())
}

// CheckAt checks for a duplicate with an explicit timestamp (for tests).
func (c *DedupeCache) CheckAt(key string, now time.Time) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nowUnix := now.UnixMilli()
	if existing, ok := c.seen[key]; ok {
		if c.ttl <= 0 || nowUnix-existing < c.ttl.Milliseconds() {
			c.seen[key] = nowUnix
			return true
		}
	}

	c.seen[key] = nowUnix
	c.prune(nowUnix)
	return false
}

// prune removes expired entries and enforces the size bound by
// evicting the oldest keys.
func (c *DedupeCache) prune(nowUnix int64) {
	if c.ttl > 0 {
		cutoff := nowUnix - c.ttl.Milliseconds()
		for key, ts := range c.seen {
			if ts < cutoff {
				delete(c.seen, key)
			}
		}
	}

	for len(c.seen) > c.maxSize {
		var oldestKey string
		oldestTs := int64(^uint64(0) >> 1)
		for k, ts := range c.seen {
			if ts < oldestTs {
				oldestTs = ts
				oldestKey = k
			}
		}
		if oldestKey == "" {
			break
		}
		delete(c.seen, oldestKey)
	}
}

// Size returns the current number of entries.
func (c *DedupeCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
