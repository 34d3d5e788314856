package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Options selects and configures a backend. It mirrors the embeddings
// section of the config file.
type Options struct {
	Backend    string
	Model      string
	Host       string
	APIKey     string
	Dimensions int // hash only
	Timeout    time.Duration
	MaxRetries int
	BatchSize  int
	CacheSize  int // 0 disables the LRU wrapper

	Logger *slog.Logger
}

// New resolves the backend once. An unrecognized backend name falls back to
// hash with a warning; a recognized backend with invalid settings is a
// configuration error.
func New(ctx context.Context, opts Options) (Embedder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend, ok := ParseBackend(opts.Backend)
	if !ok {
		logger.Warn("embedder_backend_unrecognized",
			slog.String("backend", opts.Backend),
			slog.String("fallback", string(BackendHash)))
		backend = BackendHash
	}

	inner, err := newBackend(ctx, backend, opts)
	if err != nil {
		return nil, err
	}

	logger.Info("embedder_ready",
		slog.String("backend", string(inner.Backend())),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	if opts.CacheSize > 0 && backend != BackendDisabled {
		return NewCachedEmbedder(inner, opts.CacheSize), nil
	}
	return inner, nil
}

func newBackend(ctx context.Context, backend Backend, opts Options) (Embedder, error) {
	switch backend {
	case BackendDisabled:
		return NewDisabledEmbedder(), nil

	case BackendHash:
		dims := opts.Dimensions
		if dims == 0 {
			dims = DefaultHashDimensions
		}
		e, err := NewHashEmbedder(dims)
		if err != nil {
			return nil, amerrors.ConfigError("embeddings.dimensions", err.Error())
		}
		return e, nil
	}

	if opts.Host == "" && backend == BackendOllama {
		opts.Host = DefaultOllamaHost
	}
	if opts.Host == "" {
		return nil, amerrors.ConfigError("embeddings.host", fmt.Sprintf("required for %s backend", backend))
	}
	if opts.Model == "" {
		return nil, amerrors.ConfigError("embeddings.model", fmt.Sprintf("required for %s backend", backend))
	}
	// Model backends report their own width; the configured dimensions
	// only size hash vectors.
	cfg := RemoteConfig{
		Host:       opts.Host,
		Model:      opts.Model,
		APIKey:     opts.APIKey,
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
		BatchSize:  opts.BatchSize,
	}
	if backend == BackendOllama {
		return NewOllamaEmbedder(ctx, cfg)
	}
	return NewOpenAIEmbedder(ctx, cfg)
}
