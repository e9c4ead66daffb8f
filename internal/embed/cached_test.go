package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts backend calls.
type countingEmbedder struct {
	*StaticEmbedder
	mu         sync.Mutex
	embedCalls int
	batchTexts int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.embedCalls++
	c.mu.Unlock()
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batchTexts += len(texts)
	c.mu.Unlock()
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_CachesRepeats(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 16)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "repeated text")
	require.NoError(t, err)

	second, err := cached.Embed(ctx, "repeated text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embedCalls)
}

func TestCachedEmbedder_BatchSkipsHits(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 16)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "warm")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"warm", "cold", "cold again"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// Only the two misses reach the backend.
	assert.Equal(t, 2, inner.batchTexts)

	warm, err := inner.StaticEmbedder.Embed(ctx, "warm")
	require.NoError(t, err)
	assert.Equal(t, warm, vecs[0])
}

func TestCachedEmbedder_PassThroughMetadata(t *testing.T) {
	inner := NewStaticEmbedder()
	cached := NewCachedEmbedder(inner, 4)

	assert.Equal(t, inner.Dimensions(), cached.Dimensions())
	assert.Equal(t, inner.ModelName(), cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.NoError(t, cached.Close())
}
