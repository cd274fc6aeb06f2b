package main

import (
	"sync"
	"time"
)

// lookupCache holds the unfiltered candidate rows for a name, keyed by its
// canonical fqdn. It is cleared wholesale on any health-state change or
// DDNS mutation rather than invalidated per key, since the record set
// behind any one name is small and rewriting it is cheap.
type lookupCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	rows      []RecordModel
	expiresAt time.Time
}

func newLookupCache(ttl time.Duration) *lookupCache {
	return &lookupCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// get returns the cached rows for fqdn if present and unexpired. The
// cache is bypassed entirely when ttl is zero.
func (c *lookupCache) get(fqdn string) ([]RecordModel, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[fqdn]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.rows, true
}

func (c *lookupCache) set(fqdn string, rows []RecordModel) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fqdn] = cacheEntry{rows: rows, expiresAt: time.Now().Add(c.ttl)}
}

// clear wipes every cached entry, used after any write that could change
// what a future lookup returns.
func (c *lookupCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
