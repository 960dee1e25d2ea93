package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	singleCalls int
	batchCalls  int
	batchSizes  []int
	err         error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.singleCalls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	c.batchSizes = append(c.batchSizes, len(texts))
	if c.err != nil {
		return nil, c.err
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t)), 1}
	}
	return vecs, nil
}

func TestCachingEmbedderSingle(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachingEmbedder(inner, 8, time.Minute)

	first, err := c.Embed(context.Background(), "speed limit")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "speed limit")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.singleCalls)
}

func TestCachingEmbedderBatchPartialHit(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachingEmbedder(inner, 8, time.Minute)

	_, err := c.Embed(context.Background(), "alpha")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.NotNil(t, v)
	}

	// Only the two misses reach the inner embedder.
	require.Len(t, inner.batchSizes, 1)
	assert.Equal(t, 2, inner.batchSizes[0])
}

func TestCachingEmbedderBatchAllHit(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachingEmbedder(inner, 8, time.Minute)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	_, err = c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, 1, inner.batchCalls)
}

func TestCachingEmbedderErrorNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	c := NewCachingEmbedder(inner, 8, time.Minute)

	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)

	inner.err = nil
	_, err = c.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.singleCalls)
}
