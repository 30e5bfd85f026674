// Package cache is a small in-process TTL cache fronting read-mostly API
// responses.
package cache

import (
	"regexp"
	"sync"
	"time"
)

// Preset TTLs per response family.
const (
	TTLChatMessages  = 2 * time.Minute
	TTLUserProfile   = 10 * time.Minute
	TTLPlans         = 30 * time.Minute
	TTLTransactions  = 5 * time.Minute
	TTLNotifications = time.Minute
	TTLStatic        = time.Hour

	DefaultTTL     = 5 * time.Minute
	DefaultMaxSize = 100
)

type entry struct {
	data      any
	expiresAt time.Time
}

// Cache is a bounded TTL key-value store. When full, the oldest entry is
// evicted to make room.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	keys    []string // insertion order for eviction
	maxSize int
	now     func() time.Time
}

// New builds a cache holding at most maxSize entries; maxSize <= 0 uses the
// default bound.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		entries: make(map[string]entry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the cached value, or nil and false when absent or expired.
// Expired entries are removed on the way out.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.removeLocked(key)
		return nil, false
	}
	return e.data, true
}

// Set stores a value with the given TTL; ttl <= 0 uses the default.
func (c *Cache) Set(key string, data any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.keys) >= c.maxSize {
			c.removeLocked(c.keys[0])
		}
		c.keys = append(c.keys, key)
	}
	c.entries[key] = entry{data: data, expiresAt: c.now().Add(ttl)}
}

// Invalidate drops one entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// InvalidatePattern drops every entry whose key matches the regexp pattern.
// An invalid pattern drops nothing.
func (c *Cache) InvalidatePattern(pattern string) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range append([]string(nil), c.keys...) {
		if re.MatchString(key) {
			c.removeLocked(key)
		}
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.keys = nil
}

// Has reports whether a fresh entry exists for key.
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Stats reports the current size and keys, for debugging surfaces.
func (c *Cache) Stats() (int, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), append([]string(nil), c.keys...)
}

func (c *Cache) removeLocked(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}
