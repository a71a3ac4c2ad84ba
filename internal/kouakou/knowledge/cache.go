package knowledge

import (
	"sync"
	"time"
)

// resultCache holds recent search results for a few minutes. Knowledge
// documents change rarely, so serving a slightly stale ranking is fine.
type resultCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	results []Result
	at      time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:  ttl,
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

func (c *resultCache) get(key string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.at) > c.ttl {
		delete(c.data, key)
		return nil, false
	}
	return e.results, true
}

func (c *resultCache) put(key string, results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{results: results, at: c.now()}
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
