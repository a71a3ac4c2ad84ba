package embed

import (
	"context"
	"sync"
)

// Cache memoizes a Provider by exact text. Reads are concurrent; a miss
// holds the write lock only to store the fetched vector. There is no
// eviction for the process lifetime.
type Cache struct {
	provider Provider

	mu   sync.RWMutex
	vecs map[string][]float32
}

// NewCache wraps provider with a process-wide memoizing cache.
func NewCache(provider Provider) *Cache {
	return &Cache{
		provider: provider,
		vecs:     make(map[string][]float32),
	}
}

// Embed returns the cached vector for text, calling the underlying provider
// on a miss. Errors are not cached: a failed fetch is retried on the next
// call.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.RLock()
	v, ok := c.vecs[text]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.vecs[text] = v
	c.mu.Unlock()
	return v, nil
}

// EmbedBatch returns vectors for all texts, fetching only the misses in one
// provider call. Duplicate inputs are fetched once.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missing []string
	missingAt := make(map[string][]int)
	c.mu.RLock()
	for i, t := range texts {
		if v, ok := c.vecs[t]; ok {
			out[i] = v
			continue
		}
		if _, seen := missingAt[t]; !seen {
			missing = append(missing, t)
		}
		missingAt[t] = append(missingAt[t], i)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.provider.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for i, t := range missing {
		c.vecs[t] = fetched[i]
		for _, at := range missingAt[t] {
			out[at] = fetched[i]
		}
	}
	c.mu.Unlock()
	return out, nil
}

// Len reports how many distinct texts are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vecs)
}

// Clear drops every cached vector.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vecs = make(map[string][]float32)
}

// Compile-time interface satisfaction check.
var _ Provider = (*Cache)(nil)
