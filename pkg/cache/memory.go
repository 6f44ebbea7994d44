package cache

import (
	"context"
	"sync"
	"time"
)

const defaultMaxEntries = 10000

// MemoryCache is a process-local Cache with per-entry expiry.
type MemoryCache struct {
	mu         sync.RWMutex
	data       map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache. A ttl <= 0 keeps entries until
// they are evicted for space; maxEntries <= 0 selects a default bound.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryCache{
		data:       make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get retrieves an entry from cache.
func (c *MemoryCache) Get(_ context.Context, key string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || c.expired(e) {
		return Entry{}, ErrCacheMiss
	}
	return e.entry, nil
}

// Set stores an entry, evicting the entry closest to expiry when full.
func (c *MemoryCache) Set(_ context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxEntries {
		c.evictOldest()
	}

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	c.data[key] = memoryEntry{entry: entry, expiresAt: expiresAt}
	return nil
}

// Len reports the number of stored entries, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *MemoryCache) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

// evictOldest drops expired entries, or else the one expiring first.
func (c *MemoryCache) evictOldest() {
	var (
		oldestKey  string
		oldestTime time.Time
	)
	for key, e := range c.data {
		if c.expired(e) {
			delete(c.data, key)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.expiresAt
		}
	}
	if len(c.data) >= c.maxEntries && oldestKey != "" {
		delete(c.data, oldestKey)
	}
}
