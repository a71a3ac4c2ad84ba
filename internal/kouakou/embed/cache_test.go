package embed

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type countingProvider struct {
	mu         sync.Mutex
	embedCalls int
	batchCalls int
	fetched    int
	fail       bool
}

func (p *countingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, errors.New("provider down")
	}
	p.embedCalls++
	p.fetched++
	return []float32{float32(len(text))}, nil
}

func (p *countingProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, errors.New("provider down")
	}
	p.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		p.fetched++
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestCache_Memoizes(t *testing.T) {
	p := &countingProvider{}
	c := NewCache(p)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := c.Embed(ctx, "bonjour")
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if len(v) != 1 || v[0] != 7 {
			t.Fatalf("unexpected vector %v", v)
		}
	}
	if p.embedCalls != 1 {
		t.Errorf("provider called %d times, want 1", p.embedCalls)
	}
	if c.Len() != 1 {
		t.Errorf("cache has %d entries, want 1", c.Len())
	}
}

func TestCache_BatchFetchesOnlyMisses(t *testing.T) {
	p := &countingProvider{}
	c := NewCache(p)
	ctx := context.Background()

	if _, err := c.Embed(ctx, "vendu"); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	vecs, err := c.EmbedBatch(ctx, []string{"vendu", "pesee", "pesee", "vaccin"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 4 {
		t.Fatalf("got %d vectors, want 4", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 1 {
			t.Errorf("vector %d missing: %v", i, v)
		}
	}
	// "vendu" was already cached, "pesee" appears twice but counts once.
	if p.fetched != 3 {
		t.Errorf("provider fetched %d texts, want 3", p.fetched)
	}
	if p.batchCalls != 1 {
		t.Errorf("batch calls = %d, want 1", p.batchCalls)
	}

	// Everything cached now: no further provider traffic.
	if _, err := c.EmbedBatch(ctx, []string{"vendu", "pesee", "vaccin"}); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if p.batchCalls != 1 {
		t.Errorf("batch calls after warm cache = %d, want 1", p.batchCalls)
	}
}

func TestCache_ErrorNotCached(t *testing.T) {
	p := &countingProvider{fail: true}
	c := NewCache(p)
	ctx := context.Background()

	if _, err := c.Embed(ctx, "bonjour"); err == nil {
		t.Fatal("expected error from failing provider")
	}
	if c.Len() != 0 {
		t.Errorf("failed fetch was cached: %d entries", c.Len())
	}

	p.fail = false
	if _, err := c.Embed(ctx, "bonjour"); err != nil {
		t.Fatalf("Embed after recovery: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("cache has %d entries, want 1", c.Len())
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	p := &countingProvider{}
	c := NewCache(p)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, text := range []string{"vendu", "pesee", "vaccin", "stock"} {
				if _, err := c.Embed(ctx, text); err != nil {
					t.Errorf("Embed(%q): %v", text, err)
				}
			}
		}()
	}
	wg.Wait()
	if c.Len() != 4 {
		t.Errorf("cache has %d entries, want 4", c.Len())
	}
}

func TestCache_Clear(t *testing.T) {
	p := &countingProvider{}
	c := NewCache(p)
	if _, err := c.Embed(context.Background(), "bonjour"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("cache has %d entries after Clear, want 0", c.Len())
	}
}
