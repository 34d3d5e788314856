package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// fakeOllama answers /api/embed with dims-wide vectors whose first component
// is the input length.
func fakeOllama(t *testing.T, dims int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		require.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := ollamaEmbedResponse{Model: req.Model}
		for _, in := range req.Input {
			v := make([]float32, dims)
			v[0] = float32(len(in))
			resp.Embeddings = append(resp.Embeddings, v)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_DetectsDimensionsAndBatches(t *testing.T) {
	// Given: a server producing 12-dim vectors
	var calls atomic.Int32
	srv := fakeOllama(t, 12, &calls)

	// When: creating an embedder with batch size 2 and embedding 5 texts
	e, err := NewOllamaEmbedder(context.Background(), RemoteConfig{Host: srv.URL, Model: "nomic", BatchSize: 2})
	require.NoError(t, err)
	rows, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})

	// Then: width is detected, order is kept, and 1 sample + 3 batches were sent
	require.NoError(t, err)
	assert.Equal(t, 12, e.Dimensions())
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, float32(i+1), row[0])
	}
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, "nomic", e.ModelName())
	assert.Zero(t, e.AlgorithmVersion())
}

func TestOllamaEmbedder_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 0}}})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), RemoteConfig{Host: srv.URL, Model: "m", Dimensions: 2, MaxRetries: 2})
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "x")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaEmbedder_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), RemoteConfig{Host: srv.URL, Model: "m", Dimensions: 2, MaxRetries: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbedUnavailable, amerrors.GetCode(err))
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaEmbedder_TimeoutIsTransient301(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), RemoteConfig{
		Host: srv.URL, Model: "m", Dimensions: 2, Timeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbedTimeout, amerrors.GetCode(err))
	assert.True(t, amerrors.IsRetryable(err))
}

func TestOllamaEmbedder_WrongWidthIsRejected(t *testing.T) {
	srv := fakeOllama(t, 3, nil)
	e, err := NewOllamaEmbedder(context.Background(), RemoteConfig{Host: srv.URL, Model: "m", Dimensions: 8})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"x"})

	assert.Equal(t, amerrors.ErrCodeDimensionMismatch, amerrors.GetCode(err))
}

func TestOllamaEmbedder_UnreachableHostFailsConstruction(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), RemoteConfig{Host: url, Model: "m", MaxRetries: 0})

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbedUnavailable, amerrors.GetCode(err))
}

func TestOpenAIEmbedder_ReordersByIndexAndSendsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Respond in reverse order.
		var resp openAIEmbedResponse
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i), 1}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(context.Background(), RemoteConfig{Host: srv.URL + "/", Model: "text-embedding-3-small", APIKey: "sk-test"})
	require.NoError(t, err)

	rows, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Equal(t, 2, e.Dimensions())
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, rows)
	assert.Equal(t, BackendOpenAI, e.Backend())
}
