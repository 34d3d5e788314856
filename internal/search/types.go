// Package search provides hybrid retrieval: lexical and vector scores are
// min-max normalized per query and combined with configurable weights.
package search

import (
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Retrieval limits.
const (
	DefaultTopK         = 5
	DefaultMaxTopK      = 50
	DefaultLexicalLimit = 50
	DefaultVectorLimit  = 50
)

// Lexical sources.
const (
	LexicalNative  = "native"
	LexicalBM25    = "bm25"
	LexicalOverlap = "overlap"
)

// Vector sources.
const (
	VectorExhaustive = "exhaustive"
	VectorNative     = "native"
)

// Query is one retrieval request. Zero limits take the engine defaults.
type Query struct {
	Text         string
	TopK         int
	LexicalLimit int
	VectorLimit  int
}

// Result is one ranked chunk with its document context.
type Result struct {
	Chunk        store.Chunk    `json:"chunk"`
	Score        float64        `json:"score"`
	LexicalScore float64        `json:"lexical_score"`
	VectorScore  float64        `json:"vector_score"`
	Citation     store.Citation `json:"citation"`
}

// Config tunes the engine.
type Config struct {
	LexicalWeight float64
	VectorWeight  float64
	DefaultTopK   int
	MaxTopK       int
	LexicalLimit  int
	VectorLimit   int
	LexicalSource string
	VectorSource  string
}

// DefaultConfig returns equal weights and the standard limits.
func DefaultConfig() Config {
	return Config{
		LexicalWeight: 0.5,
		VectorWeight:  0.5,
		DefaultTopK:   DefaultTopK,
		MaxTopK:       DefaultMaxTopK,
		LexicalLimit:  DefaultLexicalLimit,
		VectorLimit:   DefaultVectorLimit,
		LexicalSource: LexicalNative,
		VectorSource:  VectorExhaustive,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = d.DefaultTopK
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = d.MaxTopK
	}
	if c.LexicalLimit <= 0 {
		c.LexicalLimit = d.LexicalLimit
	}
	if c.VectorLimit <= 0 {
		c.VectorLimit = d.VectorLimit
	}
	if c.LexicalSource == "" {
		c.LexicalSource = d.LexicalSource
	}
	if c.VectorSource == "" {
		c.VectorSource = d.VectorSource
	}
	return c
}
