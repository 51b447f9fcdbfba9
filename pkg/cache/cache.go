package cache

import (
	"sync"
	"time"
)

type entry struct {
	val string
	exp time.Time
}

// MemoryCache is a TTL map safe for concurrent use. Expired entries
// are dropped lazily on write.
type MemoryCache struct {
	mu  sync.RWMutex
	m   map[string]entry
	ttl time.Duration
	now func() time.Time
}

func NewMemory(ttl time.Duration) *MemoryCache {
	return &MemoryCache{m: make(map[string]entry), ttl: ttl, now: time.Now}
}

// WithClock replaces time.Now, for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// SetIfAbsent stores val unless key holds an unexpired value. It reports
// whether val was stored. A non-positive TTL disables the cache and always
// stores.
func (c *MemoryCache) SetIfAbsent(key, val string) bool {
	if c.ttl <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if e, ok := c.m[key]; ok && !now.After(e.exp) {
		return false
	}
	c.sweep(now)
	c.m[key] = entry{val: val, exp: now.Add(c.ttl)}
	return true
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// sweep drops expired entries; callers hold mu.
func (c *MemoryCache) sweep(now time.Time) {
	for k, e := range c.m {
		if now.After(e.exp) {
			delete(c.m, k)
		}
	}
}
