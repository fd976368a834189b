package tiles

import "sync"

// Cache is a thread-safe store of encoded tiles. When full it drops the
// oldest quarter of entries by insertion order before inserting.
type Cache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string][]byte
	order      []string // insertion order, oldest first
	generation uint64   // bumped by Clear
}

// NewCache creates a cache holding at most maxEntries tiles.
func NewCache(maxEntries int) *Cache {
	return &Cache{
		maxEntries: max(1, maxEntries),
		entries:    make(map[string][]byte),
	}
}

// Get returns the cached tile for key.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	return b, ok
}

// Put stores b under key.
func (c *Cache) Put(key string, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, b)
}

func (c *Cache) put(key string, b []byte) {
	if _, ok := c.entries[key]; ok {
		c.entries[key] = b
		return
	}
	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = b
	c.order = append(c.order, key)
}

// PutIfCurrent stores b under key only if Clear has not run since gen was
// read from Generation. It reports whether b was stored.
func (c *Cache) PutIfCurrent(gen uint64, key string, b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.put(key, b)
	return true
}

// Generation identifies the cache contents between two calls to Clear.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.order = nil
	c.generation++
}

// Len returns the number of cached tiles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictOldest() {
	n := max(1, len(c.order)/4)
	for _, key := range c.order[:n] {
		delete(c.entries, key)
	}
	c.order = append([]string(nil), c.order[n:]...)
}
