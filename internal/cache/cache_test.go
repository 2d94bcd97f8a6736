package cache

import (
	"testing"
	"time"
)

func TestDedupeCacheDuplicateWithinTTL(t *testing.T) {
	c := NewDedupeCache(DedupeOptions{TTL: 100 * time.Millisecond})
	base := time.Unix(0, 0)

	if c.CheckAt("tool.call|runner", base) {
		t.Fatal("first sighting must not be a duplicate")
	}
	if !c.CheckAt("tool.call|runner", base.Add(50*time.Millisecond)) {
		t.Fatal("second sighting within TTL must be a duplicate")
	}
	if c.CheckAt("tool.call|runner", base.Add(250*time.Millisecond)) {
		t.Fatal("sighting after TTL must not be a duplicate")
	}
}

func TestDedupeCacheEmptyKey(t *testing.T) {
	c := NewDedupeCache(DedupeOptions{TTL: time.Second})
	if c.Check("") {
		t.Fatal("empty key must never be a duplicate")
	}
	if c.Size() != 0 {
		t.Fatalf("empty key must not be stored, size=%d", c.Size())
	}
}

func TestDedupeCacheMaxSize(t *testing.T) {
	c := NewDedupeCache(DedupeOptions{TTL: time.Hour, MaxSize: 2})
	base := time.Unix(0, 0)

	c.CheckAt("a", base)
	c.CheckAt("b", base.Add(time.Millisecond))
	c.CheckAt("c", base.Add(2*time.Millisecond))

	if c.Size() > 2 {
		t.Fatalf("size = %d, want <= 2", c.Size())
	}
}

func TestResultCacheExpiry(t *testing.T) {
	c := NewResultCache(time.Minute)
	now := time.Unix(1000, 0)
	c.SetNow(func() time.Time { return now })

	c.Put(ResultEntry{Tool: "calendar.list_events", Result: "3 events", ElapsedMS: 120})

	if _, ok := c.Get("calendar.list_events"); !ok {
		t.Fatal("fresh entry should be returned")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("calendar.list_events"); ok {
		t.Fatal("expired entry should not be returned")
	}
}

func TestResultCacheMiss(t *testing.T) {
	c := NewResultCache(0)
	if _, ok := c.Get("unknown"); ok {
		t.Fatal("miss should report not found")
	}
}
