package embed

import (
	"context"
	"fmt"
)

// DefaultOllamaHost is the local Ollama endpoint.
const DefaultOllamaHost = "http://localhost:11434"

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaEmbedder generates embeddings using Ollama's /api/embed.
type OllamaEmbedder struct {
	*remote
	dims int
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder. When cfg.Dimensions is zero a
// sample request detects the width.
func NewOllamaEmbedder(ctx context.Context, cfg RemoteConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	cfg.applyDefaults()

	e := &OllamaEmbedder{remote: newRemote("ollama", cfg), dims: cfg.Dimensions}
	if e.dims == 0 {
		rows, err := e.call(ctx, []string{"dimension detection"})
		if err != nil {
			e.close()
			return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
		}
		if len(rows) == 0 || len(rows[0]) == 0 {
			e.close()
			return nil, fmt.Errorf("empty embedding returned")
		}
		e.dims = len(rows[0])
	}
	return e, nil
}

func (e *OllamaEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	var resp ollamaEmbedResponse
	if err := e.postJSON(ctx, "/api/embed", ollamaEmbedRequest{Model: e.cfg.Model, Input: texts}, &resp); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// Embed generates embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	rows, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return EmptyMatrix(e.dims), nil
	}
	return embedInBatches(ctx, e.cfg.BatchSize, e.dims, texts, e.call)
}

func (e *OllamaEmbedder) Dimensions() int       { return e.dims }
func (e *OllamaEmbedder) ModelName() string     { return e.cfg.Model }
func (e *OllamaEmbedder) Backend() Backend      { return BackendOllama }
func (e *OllamaEmbedder) AlgorithmVersion() int { return 0 }

// Available reports whether the circuit is closed and the embedder is open.
func (e *OllamaEmbedder) Available(_ context.Context) bool {
	return e.available()
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.close()
	return nil
}
