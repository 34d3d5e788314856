// Package embed turns text into fixed-width vectors.
//
// Backends form a closed set (see Backend) resolved once at startup by New.
// All backends honor the same contract: EmbedBatch(n texts) returns n rows of
// Dimensions() floats, and n == 0 returns an empty, non-nil matrix.
package embed

import (
	"context"
	"math"
	"strings"
	"time"
)

// Backend identifies an embedding backend.
type Backend string

const (
	// BackendDisabled produces a constant 1-dimensional vector; retrieval is lexical-only.
	BackendDisabled Backend = "disabled"
	// BackendHash is the deterministic feature-hashing embedder.
	BackendHash Backend = "hash"
	// BackendOllama calls an Ollama server's /api/embed.
	BackendOllama Backend = "ollama"
	// BackendOpenAI calls an OpenAI-compatible /v1/embeddings endpoint.
	BackendOpenAI Backend = "openai"
)

// ParseBackend maps a config string to a Backend. ok is false for unknown values.
func ParseBackend(s string) (Backend, bool) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendDisabled, BackendHash, BackendOllama, BackendOpenAI:
		return b, true
	case "static", "":
		return BackendHash, true
	case "none", "off":
		return BackendDisabled, true
	}
	return "", false
}

// IsModel reports whether the backend delegates to an external model.
func (b Backend) IsModel() bool {
	return b == BackendOllama || b == BackendOpenAI
}

const (
	// MaxBatchSize bounds a single request to a model backend.
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for model requests.
	DefaultBatchSize = 32

	// DefaultTimeout bounds one model call when the caller does not set one.
	DefaultTimeout = 30 * time.Second

	// DefaultHashDimensions is the width of hash embeddings.
	DefaultHashDimensions = 256

	// MaxHashDimensions bounds hash embedding width.
	MaxHashDimensions = 8192

	// HashAlgorithmVersion identifies the feature-hashing scheme. Any change to
	// tokenization, weighting, or hashing must bump it so stored vectors are rebuilt.
	HashAlgorithmVersion = 1

	// DisabledEpsilon is the single component of every disabled-backend vector.
	DisabledEpsilon float32 = 1e-6
)

// Embedder generates embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// ModelName returns the model identifier recorded in the index signature.
	ModelName() string

	// Backend returns the backend kind.
	Backend() Backend

	// AlgorithmVersion returns the embedding scheme version; 0 for model backends.
	AlgorithmVersion() int

	// Available reports whether the backend can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// EmptyMatrix returns a zero-row matrix of width dim. The width is kept in
// spare capacity so MatrixWidth can report it; appending rows overwrites it.
func EmptyMatrix(dim int) [][]float32 {
	m := make([][]float32, 1)
	m[0] = make([]float32, max(dim, 0))
	return m[:0]
}

// MatrixWidth returns the row width of m: the first row's length, or the
// width an EmptyMatrix was made with. Zero when neither is known.
func MatrixWidth(m [][]float32) int {
	if len(m) > 0 {
		return len(m[0])
	}
	if cap(m) > 0 {
		return len(m[:1][0])
	}
	return 0
}

// Normalize returns an L2-normalized copy of v. Zero vectors are returned as-is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when lengths differ
// or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
