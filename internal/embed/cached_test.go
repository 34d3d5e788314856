package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many texts reach the backend.
type countingEmbedder struct {
	*HashEmbedder
	texts int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.texts++
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts += len(texts)
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_OnlyMissesReachBackend(t *testing.T) {
	// Given: a cache in front of a counting backend
	h, _ := NewHashEmbedder(16)
	inner := &countingEmbedder{HashEmbedder: h}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	// When: embedding overlapping batches
	first, err := c.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	second, err := c.EmbedBatch(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)
	_, err = c.Embed(ctx, "c")
	require.NoError(t, err)

	// Then: each distinct text was computed once and results line up
	assert.Equal(t, 3, inner.texts)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, 3, c.Len())
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	h, _ := NewHashEmbedder(16)
	rows, err := NewCachedEmbedder(h, 4).EmbedBatch(context.Background(), []string{})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}
