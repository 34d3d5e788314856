package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	e, err := NewHashEmbedder(DefaultHashDimensions)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Solar panels convert sunlight")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Solar panels convert sunlight")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultHashDimensions)
	assert.InDelta(t, 1.0, magnitude(a), 1e-5)
}

func TestHashEmbedder_CaseInsensitive(t *testing.T) {
	e, _ := NewHashEmbedder(64)
	a, _ := e.Embed(context.Background(), "Wind Turbines")
	b, _ := e.Embed(context.Background(), "wind turbines")
	assert.Equal(t, a, b)
}

func TestHashEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e, _ := NewHashEmbedder(32)

	v, err := e.Embed(context.Background(), "   ")

	require.NoError(t, err)
	assert.Len(t, v, 32)
	assert.Zero(t, magnitude(v))
}

func TestHashEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	// Given: a query and two candidates, one sharing vocabulary
	e, _ := NewHashEmbedder(DefaultHashDimensions)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "wind turbines generate power")
	near, _ := e.Embed(ctx, "Wind turbines generate power from moving air currents.")
	far, _ := e.Embed(ctx, "Quarterly invoices are reconciled by the finance team.")

	// Then: the overlapping text is closer
	assert.Greater(t, Cosine(q, near), Cosine(q, far))
}

func TestHashEmbedder_BatchMatchesSingle(t *testing.T) {
	e, _ := NewHashEmbedder(128)
	ctx := context.Background()
	texts := []string{"alpha beta", "gamma", ""}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, text := range texts {
		single, _ := e.Embed(ctx, text)
		assert.Equal(t, single, batch[i])
	}
}

func TestEmbedBatch_EmptyInputIsEmptyMatrix(t *testing.T) {
	hash, _ := NewHashEmbedder(16)
	for _, e := range []Embedder{hash, NewDisabledEmbedder()} {
		rows, err := e.EmbedBatch(context.Background(), nil)
		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
		assert.Equal(t, e.Dimensions(), MatrixWidth(rows))
	}
}

func TestEmptyMatrix_CarriesWidth(t *testing.T) {
	m := EmptyMatrix(768)
	assert.Len(t, m, 0)
	assert.Equal(t, 768, MatrixWidth(m))

	// Appending real rows takes over the reported width
	m = append(m, []float32{1, 2, 3})
	assert.Equal(t, 3, MatrixWidth(m))

	assert.Zero(t, MatrixWidth(nil))
	assert.Zero(t, MatrixWidth(EmptyMatrix(-4)))
}

func TestNewHashEmbedder_RejectsBadDimensions(t *testing.T) {
	for _, dims := range []int{0, -1, MaxHashDimensions + 1} {
		_, err := NewHashEmbedder(dims)
		assert.Error(t, err, "dims %d", dims)
	}
}

func TestHashEmbedder_ClosedRejectsCalls(t *testing.T) {
	e, _ := NewHashEmbedder(8)
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestDisabledEmbedder_ConstantVector(t *testing.T) {
	e := NewDisabledEmbedder()

	rows, err := e.EmbedBatch(context.Background(), []string{"a", "completely different"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{DisabledEpsilon}, {DisabledEpsilon}}, rows)
	assert.Equal(t, 1, e.Dimensions())
	assert.Equal(t, BackendDisabled, e.Backend())
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want Backend
		ok   bool
	}{
		{"hash", BackendHash, true},
		{" Ollama ", BackendOllama, true},
		{"openai", BackendOpenAI, true},
		{"disabled", BackendDisabled, true},
		{"", BackendHash, true},
		{"static", BackendHash, true},
		{"mlx", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseBackend(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 2}))
}
