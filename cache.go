package quern

import (
	"sync"
	"time"
)

// Cache is the storage interface of the query-result cache. A nil ttl
// (zero) means the entry never expires. Implementations must be safe
// for concurrent use.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
	Clear()
}

type cacheEntry struct {
	data    []byte
	expires time.Time // zero means no expiry
}

// MemoryCache is an in-process Cache backed by a map. Expired entries
// are dropped lazily on Get.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached bytes for key, if present and not expired.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.Delete(key)
		return nil, false
	}
	return e.data, true
}

// Set stores value under key. A zero ttl stores the entry forever.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	e := cacheEntry{data: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Delete removes the entry under key.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, including not yet collected
// expired ones.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ Cache = (*MemoryCache)(nil)
