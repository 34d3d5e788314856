package search

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Engine answers hybrid queries over a read-only view of the store.
type Engine struct {
	repo     store.Repository
	embedder embed.Embedder
	cache    *CorpusCache
	config   Config
	logger   *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithConfig sets weights, limits and sources. Zero fields take defaults.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) { e.config = cfg.withDefaults() }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine. embedder may be nil, which disables vector
// scoring.
func NewEngine(repo store.Repository, embedder embed.Embedder, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:     repo,
		embedder: embedder,
		config:   DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = NewCorpusCache(repo, e.config.LexicalSource != LexicalOverlap, e.logger)
	return e
}

// InvalidateCache drops the cached corpus generation.
func (e *Engine) InvalidateCache() {
	e.cache.Invalidate()
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

func (e *Engine) vectorDisabled() bool {
	return e.embedder == nil || e.embedder.Backend() == embed.BackendDisabled
}

func (e *Engine) applyDefaults(q Query) Query {
	if q.TopK <= 0 {
		q.TopK = e.config.DefaultTopK
	}
	q.TopK = min(q.TopK, e.config.MaxTopK)
	if q.LexicalLimit <= 0 {
		q.LexicalLimit = e.config.LexicalLimit
	}
	if q.VectorLimit <= 0 {
		q.VectorLimit = e.config.VectorLimit
	}
	return q
}

// Retrieve ranks chunks for q. Retrieval never fails because one signal is
// unavailable; it degrades to whichever signal remains. An empty corpus or
// blank query returns no results.
func (e *Engine) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	start := time.Now()
	q = e.applyDefaults(q)
	if strings.TrimSpace(q.Text) == "" {
		return []Result{}, nil
	}

	gen, err := e.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(gen.chunks) == 0 {
		return []Result{}, nil
	}

	var lexical, vector map[int]float64
	vectorDegraded := false

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical = e.lexicalScores(gctx, gen, q.Text, q.LexicalLimit)
		return nil
	})
	if !e.vectorDisabled() {
		g.Go(func() error {
			var verr error
			vector, verr = e.vectorScores(gctx, gen, q.Text, q.VectorLimit)
			if verr != nil {
				vectorDegraded = true
				e.logger.Warn("vector_scoring_degraded", slog.String("error", verr.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wl, wv := HybridWeights(e.config.LexicalWeight, e.config.VectorWeight, e.vectorDisabled() || vectorDegraded)
	ranked := combine(gen, lexical, vector, wl, wv)
	if len(ranked) > q.TopK {
		ranked = ranked[:q.TopK]
	}

	results, err := e.attachCitations(ctx, ranked)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("retrieve_completed",
		slog.Int("results", len(results)),
		slog.Int("lexical_candidates", len(lexical)),
		slog.Int("vector_candidates", len(vector)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

// combine merges both score maps over their union and orders the result by
// score, then doc_id, then idx.
func combine(gen *corpusGeneration, lexical, vector map[int]float64, wl, wv float64) []Result {
	positions := make([]int, 0, len(lexical)+len(vector))
	for pos := range lexical {
		positions = append(positions, pos)
	}
	for pos := range vector {
		if _, ok := lexical[pos]; !ok {
			positions = append(positions, pos)
		}
	}

	out := make([]Result, len(positions))
	for i, pos := range positions {
		l, v := lexical[pos], vector[pos]
		out[i] = Result{
			Chunk:        gen.chunks[pos].Chunk,
			Score:        wl*l + wv*v,
			LexicalScore: l,
			VectorScore:  v,
		}
	}
	slices.SortFunc(out, compareResults)
	return out
}

func compareResults(a, b Result) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	if c := strings.Compare(a.Chunk.DocID, b.Chunk.DocID); c != 0 {
		return c
	}
	return a.Chunk.Idx - b.Chunk.Idx
}

// lexicalScores walks the strategy chain: store full-text index, in-process
// BM25, then token overlap.
func (e *Engine) lexicalScores(ctx context.Context, gen *corpusGeneration, text string, limit int) map[int]float64 {
	var items []scored
	source := e.config.LexicalSource

	if source == LexicalNative {
		hits, err := e.repo.SearchLexical(ctx, text, limit)
		if err == nil {
			items = make([]scored, 0, len(hits))
			for _, h := range hits {
				if pos, ok := gen.byID[h.ChunkID]; ok {
					items = append(items, scored{pos: pos, score: h.Score})
				}
			}
		} else {
			if !errors.Is(err, store.ErrLexicalUnavailable) {
				e.logger.Debug("lexical_native_failed", slog.String("error", err.Error()))
			}
			source = LexicalBM25
		}
	}
	if source == LexicalBM25 {
		if gen.bm25 != nil {
			items = gen.bm25.score(text)
		} else {
			source = LexicalOverlap
		}
	}
	if source == LexicalOverlap {
		items = overlapScores(text, gen.tokens)
	}

	minMax(items)
	return toMap(topN(items, limit))
}

// vectorScores embeds the query and scores it against the cached matrix, or
// the store's own index when configured.
func (e *Engine) vectorScores(ctx context.Context, gen *corpusGeneration, text string, limit int) (map[int]float64, error) {
	raw, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	q := unit(raw)
	if q == nil {
		return map[int]float64{}, nil
	}

	var items []scored
	if e.config.VectorSource == VectorNative {
		hits, err := e.repo.SearchVector(ctx, q, limit)
		if err == nil {
			items = make([]scored, 0, len(hits))
			for _, h := range hits {
				if pos, ok := gen.byID[h.ChunkID]; ok {
					items = append(items, scored{pos: pos, score: h.Similarity})
				}
			}
			minMax(items)
			return toMap(topN(items, limit)), nil
		}
		e.logger.Warn("vector_native_failed", slog.String("error", err.Error()))
	}

	items, skipped := cosineScan(q, gen.matrix)
	if skipped > 0 {
		e.logger.Warn("vector_rows_skipped",
			slog.Int("skipped", skipped),
			slog.Int("query_dim", len(q)))
	}
	minMax(items)
	return toMap(topN(items, limit)), nil
}

// attachCitations resolves document context. Chunks whose document vanished
// since the generation was built are dropped.
func (e *Engine) attachCitations(ctx context.Context, ranked []Result) ([]Result, error) {
	if len(ranked) == 0 {
		return []Result{}, nil
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.Chunk.ChunkID
	}
	cites, err := e.repo.QueryCitations(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := ranked[:0]
	for _, r := range ranked {
		c, ok := cites[r.Chunk.ChunkID]
		if !ok {
			continue
		}
		r.Citation = c
		out = append(out, r)
	}
	return out, nil
}
