// Package settings caches PUBLIC setting values for unauthenticated reads.
//
// Only PUBLIC values may be stored here; PRIVATE and CRITICAL reads always go to the database
// through the authorization gate.
package settings

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = time.Minute

// Cache holds short-lived copies of PUBLIC settings.
//
// Writes are versioned by the row's updated_at. Invalidate raises a per-key floor, and Set drops
// values older than the floor, so a read that loaded a value before an update committed cannot
// repopulate the cache with it afterwards.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, version time.Time)
	Invalidate(ctx context.Context, key string, version time.Time)
}

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	floors  map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]entry),
		floors:  make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if current, still := c.entries[key]; still && current.expiresAt == e.expiresAt {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key, value string, version time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version.Before(c.floors[key]) {
		return
	}
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *MemoryCache) Invalidate(_ context.Context, key string, version time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	if version.After(c.floors[key]) {
		c.floors[key] = version
	}
}
