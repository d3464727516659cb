package embedder

import (
	"context"

	"github.com/dgraph-io/ristretto"
)

// Cached wraps an Embedder with a ristretto read-through cache keyed by the
// input text. Embedding is a pure function, so a document chunk uploaded
// twice or a question asked twice skips the model entirely.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCached builds a caching decorator around inner. maxBytes bounds the
// approximate memory spent on cached vectors.
func NewCached(inner Embedder, maxBytes int64) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, embedding and caching on miss.
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
	c.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

// Dimensions reports the wrapped embedder's dimension.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}
