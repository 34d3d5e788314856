package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// HashEmbedder generates embeddings by feature hashing.
// Works without external dependencies (no network, no model download).
// Output is deterministic: the same text always yields the same vector for a
// given dimension and HashAlgorithmVersion.
type HashEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// NewHashEmbedder creates a hash embedder producing dims-wide vectors.
func NewHashEmbedder(dims int) (*HashEmbedder, error) {
	if dims <= 0 || dims > MaxHashDimensions {
		return nil, fmt.Errorf("hash dimensions must be in [1, %d], got %d", MaxHashDimensions, dims)
	}
	return &HashEmbedder{dims: dims}, nil
}

// Embed generates embedding for a single text.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	return e.vector(text), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	if len(texts) == 0 {
		return EmptyMatrix(e.dims), nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.dims)
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return vec
	}

	for _, token := range Tokens(lower) {
		vec[hashToIndex(token, e.dims)] += tokenWeight
	}
	for _, gram := range trigrams(lower) {
		vec[hashToIndex(gram, e.dims)] += ngramWeight
	}
	return Normalize(vec)
}

// Tokens splits lowercased text into maximal runs of letters and digits.
func Tokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// trigrams returns the character trigrams of text with whitespace collapsed.
func trigrams(text string) []string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) < ngramSize {
		return nil
	}
	grams := make([]string, 0, len(runes)-ngramSize+1)
	for i := 0; i+ngramSize <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+ngramSize]))
	}
	return grams
}

// hashToIndex maps a feature to a bucket with FNV-1a.
func hashToIndex(s string, dims int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(dims))
}

func (e *HashEmbedder) Dimensions() int       { return e.dims }
func (e *HashEmbedder) ModelName() string     { return "" }
func (e *HashEmbedder) Backend() Backend      { return BackendHash }
func (e *HashEmbedder) AlgorithmVersion() int { return HashAlgorithmVersion }

// Available reports true until Close.
func (e *HashEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *HashEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

var _ Embedder = (*HashEmbedder)(nil)
