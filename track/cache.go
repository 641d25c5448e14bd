package track

import "sync"

// Cache maps lookup keys (raw queries and canonical webpage URLs) to resolved
// metadata. Entries never expire on their own; the Resolver decides whether a
// hit is still usable.
type Cache struct {
	mu    sync.RWMutex
	items map[string]Metadata
}

func NewCache() *Cache {
	return &Cache{items: make(map[string]Metadata)}
}

func (c *Cache) Get(key string) (Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md, ok := c.items[key]
	return md, ok
}

// Store inserts md under every non-empty key in one critical section.
func (c *Cache) Store(md Metadata, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		c.items[k] = md
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
