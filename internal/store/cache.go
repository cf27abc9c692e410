package store

import "sync"

// Cache provides in-memory caching for entries.
type Cache interface {
	Get(key Key) (Entry, bool)
	Add(e Entry)
	Has(key Key) bool
	Remove(key Key)
	Clear()
	Len() int
}

// MemoryCache mirrors the durable tier in memory. It has no eviction policy
// of its own: entries leave only through Remove or Clear, which the owning
// store calls when the retention sweeper removes the durable entry.
type MemoryCache struct {
	items map[Key]Entry
	mu    sync.RWMutex
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[Key]Entry),
	}
}

// Get retrieves an entry from the cache.
func (c *MemoryCache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	return e, ok
}

// Add adds an entry to the cache.
func (c *MemoryCache) Add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[e.Key] = e
}

// Has checks if a key exists in the cache.
func (c *MemoryCache) Has(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[key]
	return ok
}

// Remove removes a key from the cache.
func (c *MemoryCache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear clears the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[Key]Entry)
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
