package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/amanrag/internal/store"
)

// cacheKey identifies one corpus snapshot.
type cacheKey struct {
	identity string
	version  int64
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s@%d", k.identity, k.version)
}

// corpusGeneration is an immutable, query-ready view of the corpus.
type corpusGeneration struct {
	key    cacheKey
	chunks []store.CorpusChunk
	byID   map[string]int
	tokens [][]string
	// matrix holds unit-length vectors; nil rows have no embedding.
	matrix [][]float32
	bm25   *bm25Scorer
}

func newGeneration(key cacheKey, chunks []store.CorpusChunk, buildBM25 bool) *corpusGeneration {
	g := &corpusGeneration{
		key:    key,
		chunks: chunks,
		byID:   make(map[string]int, len(chunks)),
		tokens: make([][]string, len(chunks)),
		matrix: make([][]float32, len(chunks)),
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		g.byID[c.ChunkID] = i
		texts[i] = c.Text
		g.tokens[i] = store.Tokenize(c.Text)
		if len(c.Vec) > 0 {
			g.matrix[i] = unit(c.Vec)
		}
	}
	if buildBM25 && len(chunks) > 0 {
		g.bm25 = newBM25Scorer(texts)
	}
	return g
}

// CorpusCache serves corpus generations keyed by store identity and
// mutation version. Loads are deduplicated; the newest load wins.
type CorpusCache struct {
	repo      store.Repository
	buildBM25 bool
	logger    *slog.Logger

	mu  sync.RWMutex
	gen *corpusGeneration

	group singleflight.Group
}

// NewCorpusCache creates an empty cache.
func NewCorpusCache(repo store.Repository, buildBM25 bool, logger *slog.Logger) *CorpusCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusCache{repo: repo, buildBM25: buildBM25, logger: logger}
}

// Get returns the generation for the store's current mutation version,
// loading it on a miss.
func (c *CorpusCache) Get(ctx context.Context) (*corpusGeneration, error) {
	version, err := c.repo.MutationVersion(ctx)
	if err != nil {
		return nil, err
	}
	key := cacheKey{identity: c.repo.Identity(), version: version}

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()
	if gen != nil && gen.key == key {
		return gen, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		// Shared by every waiter, so one caller cancelling must not fail the rest.
		chunks, err := c.repo.LoadCorpus(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		fresh := newGeneration(key, chunks, c.buildBM25)

		c.mu.Lock()
		if c.gen == nil || c.gen.key.identity != key.identity || c.gen.key.version <= key.version {
			c.gen = fresh
		}
		c.mu.Unlock()

		c.logger.Debug("corpus_cache_loaded",
			slog.String("key", key.String()),
			slog.Int("chunks", len(chunks)))
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*corpusGeneration), nil
}

// Invalidate drops the current generation.
func (c *CorpusCache) Invalidate() {
	c.mu.Lock()
	c.gen = nil
	c.mu.Unlock()
}
