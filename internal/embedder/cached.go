package embedder

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/felixgeelhaar/persona/internal/memory"
)

// CachedEmbedder memoizes another embedder. Observations are often repeated
// verbatim across agents (broadcasts), so this saves most provider calls.
type CachedEmbedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// Cached wraps inner with a cache holding up to maxEntries vectors.
func Cached(inner memory.Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return append([]float32(nil), v.([]float32)...), nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, append([]float32(nil), vec...), 1)
	return vec, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
