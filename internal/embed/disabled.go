package embed

import (
	"context"
	"fmt"
	"sync/atomic"
)

// DisabledEmbedder stands in when vector scoring is switched off. Every text
// maps to the same 1-dimensional vector so storage and rebuild paths keep a
// uniform shape; the retrieval engine ignores the vector component entirely.
type DisabledEmbedder struct {
	closed atomic.Bool
}

// NewDisabledEmbedder creates a disabled embedder.
func NewDisabledEmbedder() *DisabledEmbedder {
	return &DisabledEmbedder{}
}

// Embed returns the constant vector.
func (e *DisabledEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("embedder is closed")
	}
	return []float32{DisabledEpsilon}, nil
}

// EmbedBatch returns one constant vector per text.
func (e *DisabledEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("embedder is closed")
	}
	out := EmptyMatrix(1)
	for range texts {
		out = append(out, []float32{DisabledEpsilon})
	}
	return out, nil
}

func (e *DisabledEmbedder) Dimensions() int       { return 1 }
func (e *DisabledEmbedder) ModelName() string     { return "" }
func (e *DisabledEmbedder) Backend() Backend      { return BackendDisabled }
func (e *DisabledEmbedder) AlgorithmVersion() int { return 0 }

// Available always reports true.
func (e *DisabledEmbedder) Available(_ context.Context) bool {
	return !e.closed.Load()
}

// Close marks the embedder closed.
func (e *DisabledEmbedder) Close() error {
	e.closed.Store(true)
	return nil
}

var _ Embedder = (*DisabledEmbedder)(nil)
