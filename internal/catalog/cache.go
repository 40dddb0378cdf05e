package catalog

import (
	"sync"
	"time"

	"github.com/pbelyaev/kinoscribe/internal/clock"
)

// resultCache is a bounded TTL cache for catalog responses, keyed by
// endpoint name plus argument tuple. Entries expire after the TTL or
// are evicted oldest-first when the capacity is reached. Cached
// not-found results are stored like any other value so repeated
// lookups for a missing film skip the network too.
type resultCache struct {
	mu       sync.Mutex
	clock    clock.Clock
	ttl      time.Duration
	capacity int
	entries  map[string]cacheEntry
	order    []string // insertion order, oldest first
}

type cacheEntry struct {
	value    interface{}
	found    bool
	storedAt time.Time
}

func newResultCache(capacity int, ttl time.Duration, clk clock.Clock) *resultCache {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &resultCache{
		clock:    clk,
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]cacheEntry),
	}
}

// get returns the cached value and its found flag. The second bool
// reports whether the key was present and unexpired.
func (c *resultCache) get(key string) (interface{}, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	if c.clock.Now().Sub(entry.storedAt) >= c.ttl {
		c.remove(key)
		return nil, false, false
	}
	return entry.value, entry.found, true
}

func (c *resultCache) put(key string, value interface{}, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity <= 0 {
		return
	}
	if _, exists := c.entries[key]; exists {
		c.remove(key)
	}
	// Evict oldest entries until there is room
	for len(c.entries) >= c.capacity && len(c.order) > 0 {
		c.remove(c.order[0])
	}
	c.entries[key] = cacheEntry{value: value, found: found, storedAt: c.clock.Now()}
	c.order = append(c.order, key)
}

// remove deletes a key; caller must hold the lock.
func (c *resultCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
