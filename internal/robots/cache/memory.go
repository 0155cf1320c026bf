package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// MemoryCache keeps entries for the life of the process. With a positive ttl
// an entry older than ttl reads as missing and is evicted on access.
type MemoryCache[V any] struct {
	mu   sync.RWMutex
	data map[string]entry[V]
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryCache[V any](ttl time.Duration) *MemoryCache[V] {
	return &MemoryCache[V]{
		data: make(map[string]entry[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (c *MemoryCache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	expired := ok && c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl
	c.mu.RUnlock()

	if !ok || expired {
		if expired {
			c.Delete(key)
		}
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *MemoryCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry[V]{value: value, storedAt: c.now()}
}

func (c *MemoryCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

func (c *MemoryCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
