package embedder

import (
	"context"

	"github.com/dgraph-io/ristretto"
)

// Cached wraps an Embedder with an in-process ristretto cache keyed by the
// input text. Repeated embeddings of the same text (re-ingestion, identity
// reloads) skip the provider round trip.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCached creates a caching decorator with room for roughly maxBytes of
// cached vectors. maxBytes <= 0 selects a 64 MiB default.
func NewCached(inner Embedder, maxBytes int64) (*Cached, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, int64(len(vec))*4)
	return vec, nil
}

func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Close releases the cache's internal goroutines.
func (c *Cached) Close() { c.cache.Close() }
