package embed

import (
	"context"
	"fmt"
	"sort"
)

// DefaultOpenAIHost is the public OpenAI API base.
const DefaultOpenAIHost = "https://api.openai.com"

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// OpenAIEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAIEmbedder struct {
	*remote
	dims          int
	requestedDims int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI-compatible embedder.
func NewOpenAIEmbedder(ctx context.Context, cfg RemoteConfig) (*OpenAIEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOpenAIHost
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	cfg.applyDefaults()

	e := &OpenAIEmbedder{remote: newRemote("openai", cfg), dims: cfg.Dimensions, requestedDims: cfg.Dimensions}
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

func (e *OpenAIEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	var resp openAIEmbedResponse
	req := openAIEmbedRequest{Model: e.cfg.Model, Input: texts, Dimensions: e.requestedDims}
	if err := e.postJSON(ctx, "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}
	// Entries carry their input position; order is not guaranteed.
	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	rows := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		rows[i] = d.Embedding
	}
	return rows, nil
}

// Embed generates embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	rows, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return EmptyMatrix(e.dims), nil
	}
	return embedInBatches(ctx, e.cfg.BatchSize, e.dims, texts, e.call)
}

func (e *OpenAIEmbedder) Dimensions() int                  { return e.dims }
func (e *OpenAIEmbedder) ModelName() string                { return e.cfg.Model }
func (e *OpenAIEmbedder) Backend() Backend                 { return BackendOpenAI }
func (e *OpenAIEmbedder) AlgorithmVersion() int            { return 0 }
func (e *OpenAIEmbedder) Available(_ context.Context) bool { return e.available() }

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.close()
	return nil
}
