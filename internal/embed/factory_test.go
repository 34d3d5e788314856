package embed

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestNew_UnknownBackendFallsBackToHash(t *testing.T) {
	// Given: a logger capturing JSON output
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	// When: asking for an unsupported backend
	e, err := New(context.Background(), Options{Backend: "word2vec", Logger: logger})

	// Then: hash is used and the fallback is logged
	require.NoError(t, err)
	assert.Equal(t, BackendHash, e.Backend())
	assert.Equal(t, DefaultHashDimensions, e.Dimensions())
	assert.Contains(t, buf.String(), "embedder_backend_unrecognized")
	assert.Contains(t, buf.String(), "word2vec")
}

func TestNew_InvalidCombinationsAreConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		field string
	}{
		{"hash too wide", Options{Backend: "hash", Dimensions: MaxHashDimensions + 1}, "embeddings.dimensions"},
		{"hash negative", Options{Backend: "hash", Dimensions: -4}, "embeddings.dimensions"},
		{"openai without host", Options{Backend: "openai", Model: "m"}, "embeddings.host"},
		{"ollama without model", Options{Backend: "ollama", Host: "http://127.0.0.1:1"}, "embeddings.model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

			_, err := New(context.Background(), tt.opts)

			require.Error(t, err)
			ae, ok := amerrors.As(err)
			require.True(t, ok)
			assert.Equal(t, amerrors.ErrCodeConfigInvalid, ae.Code)
			assert.Equal(t, tt.field, ae.Details["field"])
		})
	}
}

func TestNew_WrapsWithCacheWhenConfigured(t *testing.T) {
	e, err := New(context.Background(), Options{Backend: "hash", Dimensions: 32, CacheSize: 10})
	require.NoError(t, err)

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.Equal(t, BackendHash, cached.Backend())
	assert.Equal(t, HashAlgorithmVersion, cached.AlgorithmVersion())
}

func TestNew_DisabledIsNeverCached(t *testing.T) {
	e, err := New(context.Background(), Options{Backend: "disabled", CacheSize: 10})
	require.NoError(t, err)
	_, ok := e.(*DisabledEmbedder)
	assert.True(t, ok)
}

func TestNew_OllamaDetectsWidth(t *testing.T) {
	srv := fakeOllama(t, 5, nil)

	e, err := New(context.Background(), Options{Backend: "ollama", Host: srv.URL, Model: "m", Dimensions: 256})

	require.NoError(t, err)
	assert.Equal(t, 5, e.Dimensions())
}
