package texture

import (
	"sync"

	"usd-instancer/internal/material"
)

// Key identifies one conversion: the same source converted for the same
// role the same way yields the same file.
type Key struct {
	Source string
	Role   material.Role
	Derive material.Derivation
	Alpha  string
}

// Cache remembers completed conversions for the lifetime of a run.
// It is safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	items map[Key]*cacheEntry
}

type cacheEntry struct {
	dest   string
	reason string // non-empty when the conversion failed
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[Key]*cacheEntry)}
}

// Lookup returns the destination produced for k, or the failure reason.
func (c *Cache) Lookup(k Key) (dest, reason string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[k]
	if !ok {
		return "", "", false
	}
	return e.dest, e.reason, true
}

// Store records the outcome of k. It reports false when k was already
// stored; the first outcome is kept.
func (c *Cache) Store(k Key, dest, reason string) bool {
	c.mu.RLock()
	_, exists := c.items[k]
	c.mu.RUnlock()
	if exists {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[k]; exists {
		return false
	}
	c.items[k] = &cacheEntry{dest: dest, reason: reason}
	return true
}

// Len returns the number of recorded conversions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
