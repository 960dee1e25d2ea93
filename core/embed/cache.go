package embed

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachingEmbedder wraps an Embedder with an expiring LRU keyed by text.
// Batch calls only embed the texts missing from the cache.
type CachingEmbedder struct {
	inner Embedder
	cache *expirable.LRU[string, []float32]
}

// NewCachingEmbedder caches up to size embeddings for ttl.
func NewCachingEmbedder(inner Embedder, size int, ttl time.Duration) *CachingEmbedder {
	if size <= 0 {
		size = 1024
	}
	return &CachingEmbedder{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}

func (c *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			results[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}

	for j, vec := range vecs {
		if j >= len(missingIdx) {
			break
		}
		results[missingIdx[j]] = vec
		c.cache.Add(missing[j], vec)
	}
	return results, nil
}
