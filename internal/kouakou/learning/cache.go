package learning

import "sync"

// defaultCacheSize bounds the keyword cache. The cache exists to skip a
// store round-trip for the handful of phrasings an operator repeats daily,
// so it stays small.
const defaultCacheSize = 256

// keywordCache is a bounded map from keyword signature to reusable learning.
// When full, the oldest entry is evicted (insertion order). Safe for
// concurrent use.
type keywordCache struct {
	mu    sync.Mutex
	max   int
	order []string
	data  map[string]*Record
}

func newKeywordCache(max int) *keywordCache {
	if max <= 0 {
		max = defaultCacheSize
	}
	return &keywordCache{
		max:  max,
		data: make(map[string]*Record, max),
	}
}

func (c *keywordCache) get(key string) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.data[key]
	return rec, ok
}

func (c *keywordCache) put(key string, rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.data, oldest)
		}
		c.order = append(c.order, key)
	}
	c.data[key] = rec
}

func (c *keywordCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; !ok {
		return
	}
	delete(c.data, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *keywordCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
