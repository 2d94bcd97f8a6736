package cache

import (
	"sync"
	"time"
)

// ResultEntry is one cached tool outcome written by the ingest
// subscriber.
type ResultEntry struct {
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params,omitempty"`
	Result    any            `json:"result,omitempty"`
	ElapsedMS int64          `json:"elapsed_ms"`
	StoredAt  time.Time      `json:"stored_at"`
}

// ResultCache holds recent successful tool results keyed by tool name.
// Entries expire after the TTL; the orchestrator consults it when a
// phase budget forces a pre-route or cached answer.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]ResultEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewResultCache creates a result cache. A zero TTL disables expiry.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		entries: make(map[string]ResultEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetNow overrides the clock for tests.
func (c *ResultCache) SetNow(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Put stores a successful tool result.
func (c *ResultCache) Put(entry ResultEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.StoredAt = c.now()
	c.entries[entry.Tool] = entry
}

// Get returns the entry for a tool if present and unexpired.
func (c *ResultCache) Get(tool string) (ResultEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[tool]
	if !ok {
		return ResultEntry{}, false
	}
	if c.ttl > 0 && c.now().Sub(entry.StoredAt) > c.ttl {
		return ResultEntry{}, false
	}
	return entry, true
}

// Len returns the number of stored entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
