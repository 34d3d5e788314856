package search

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/index"
)

func TestRetrieve_EmptyCorpus(t *testing.T) {
	e := NewEngine(newStore(t), newHash(t))

	results, err := e.Retrieve(context.Background(), Query{Text: "anything"})

	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRetrieve_BlankQuery(t *testing.T) {
	repo := newStore(t)
	seed(t, repo, newHash(t), energyCorpus)

	results, err := NewEngine(repo, newHash(t)).Retrieve(context.Background(), Query{Text: "  "})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_RanksRelevantChunkFirstWithCitation(t *testing.T) {
	repo := newStore(t)
	h := newHash(t)
	seed(t, repo, h, energyCorpus)

	results, err := NewEngine(repo, h).Retrieve(context.Background(), Query{Text: "photovoltaic sunlight"})
	require.NoError(t, err)

	require.NotEmpty(t, results)
	top := results[0]
	assert.Equal(t, index.DocID("Solar", "solar.md"), top.Chunk.DocID)
	assert.Equal(t, "Solar", top.Citation.Title)
	assert.Equal(t, "solar.md", top.Citation.Source)
	assert.Equal(t, "internal", top.Citation.Classification)
	assert.Equal(t, 1, top.Citation.DocVersion)
	assert.InDelta(t, 1.0, top.LexicalScore, 1e-9)
}

func TestRetrieve_ScoresBounded(t *testing.T) {
	repo := newStore(t)
	h := newHash(t)
	seed(t, repo, h, energyCorpus)
	e := NewEngine(repo, h, WithConfig(Config{LexicalWeight: 3, VectorWeight: 1}))

	for _, q := range []string{"electricity", "turbines water", "moon", "zzz unmatched"} {
		results, err := e.Retrieve(context.Background(), Query{Text: q, TopK: 50})
		require.NoError(t, err)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, 0.0, q)
			assert.LessOrEqual(t, r.Score, 1.0+1e-9, q)
			assert.GreaterOrEqual(t, r.LexicalScore, 0.0)
			assert.LessOrEqual(t, r.LexicalScore, 1.0)
			assert.GreaterOrEqual(t, r.VectorScore, 0.0)
			assert.LessOrEqual(t, r.VectorScore, 1.0)
			assert.InDelta(t, 0.75*r.LexicalScore+0.25*r.VectorScore, r.Score, 1e-9)
		}
	}
}

func TestRetrieve_TieBreakIsDeterministic(t *testing.T) {
	// Given identical content under several documents
	repo := newStore(t)
	h := newHash(t)
	seed(t, repo, h, []doc{
		{"C", "c.md", "battery storage"},
		{"A", "a.md", "battery storage"},
		{"B", "b.md", "battery storage"},
	})
	e := NewEngine(repo, h)

	// When retrieving repeatedly
	first, err := e.Retrieve(context.Background(), Query{Text: "battery"})
	require.NoError(t, err)
	require.Len(t, first, 3)

	// Then equal scores are ordered by doc_id and the order is stable
	for i := 1; i < len(first); i++ {
		assert.Equal(t, first[0].Score, first[i].Score)
		assert.Less(t, first[i-1].Chunk.DocID, first[i].Chunk.DocID)
	}
	for range 5 {
		again, err := e.Retrieve(context.Background(), Query{Text: "battery"})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRetrieve_TopKDefaultsAndCap(t *testing.T) {
	repo := newStore(t)
	h := newHash(t)
	seed(t, repo, h, manyDocs(60))
	e := NewEngine(repo, h)
	ctx := context.Background()

	results, err := e.Retrieve(ctx, Query{Text: "energy storage"})
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)

	results, err = e.Retrieve(ctx, Query{Text: "energy storage", TopK: 500})
	require.NoError(t, err)
	assert.Len(t, results, DefaultMaxTopK)
}

func TestRetrieve_DisabledEmbedderIsLexicalOnly(t *testing.T) {
	repo := newStore(t)
	disabled := embed.NewDisabledEmbedder()
	seed(t, repo, disabled, energyCorpus)

	results, err := NewEngine(repo, disabled).Retrieve(context.Background(), Query{Text: "turbines"})
	require.NoError(t, err)

	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Zero(t, r.VectorScore)
		assert.Equal(t, r.LexicalScore, r.Score)
	}
}

func TestRetrieve_QueryEmbeddingFailureDegrades(t *testing.T) {
	repo := newStore(t)
	broken := brokenEmbedder{HashEmbedder: newHash(t)}
	seed(t, repo, broken, energyCorpus)

	results, err := NewEngine(repo, broken).Retrieve(context.Background(), Query{Text: "turbines"})
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Zero(t, r.VectorScore)
		assert.Equal(t, r.LexicalScore, r.Score)
	}
}

func TestRetrieve_LexicalFallbackChain(t *testing.T) {
	tests := []struct {
		name   string
		source string
		native bool
	}{
		{"native", LexicalNative, true},
		{"native unavailable falls back to bm25", LexicalNative, false},
		{"bm25", LexicalBM25, true},
		{"overlap", LexicalOverlap, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStore(t)
			repo.noNativeLex = !tt.native
			disabled := embed.NewDisabledEmbedder()
			seed(t, repo, disabled, energyCorpus)
			e := NewEngine(repo, disabled, WithConfig(Config{LexicalSource: tt.source}))

			results, err := e.Retrieve(context.Background(), Query{Text: "moon oceans"})
			require.NoError(t, err)

			require.Len(t, results, 1)
			assert.Equal(t, index.DocID("Tides", "tides.md"), results[0].Chunk.DocID)
			assert.Equal(t, 1.0, results[0].Score)
		})
	}
}

func TestRetrieve_NativeVectorSource(t *testing.T) {
	repo := newStore(t)
	h := newHash(t)
	seed(t, repo, h, energyCorpus)
	e := NewEngine(repo, h, WithConfig(Config{VectorSource: VectorNative}))

	results, err := e.Retrieve(context.Background(), Query{Text: "sunlight"})
	require.NoError(t, err)

	assert.NotEmpty(t, results)
	assert.Equal(t, int32(1), repo.vectorCalls.Load())
}

func TestCorpusCache_ReloadsOnMutation(t *testing.T) {
	repo := newStore(t)
	h := newHash(t)
	p := seed(t, repo, h, energyCorpus[:2])
	e := NewEngine(repo, h)
	ctx := context.Background()

	_, err := e.Retrieve(ctx, Query{Text: "electricity"})
	require.NoError(t, err)
	_, err = e.Retrieve(ctx, Query{Text: "electricity"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.loads.Load())

	// A new document bumps the mutation version, so the next read reloads.
	_, err = p.Ingest(ctx, index.IngestRequest{Title: "Tides", Source: "tides.md", Content: "Tidal power follows the moon."})
	require.NoError(t, err)
	results, err := e.Retrieve(ctx, Query{Text: "moon"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.loads.Load())
	require.NotEmpty(t, results)
	assert.Equal(t, "Tides", results[0].Citation.Title)

	e.InvalidateCache()
	_, err = e.Retrieve(ctx, Query{Text: "moon"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), repo.loads.Load())
}

func TestCorpusCache_DeletedDocumentDisappears(t *testing.T) {
	repo := newStore(t)
	h := newHash(t)
	p := seed(t, repo, h, energyCorpus)
	e := NewEngine(repo, h)
	p.OnMutation(e.InvalidateCache)
	ctx := context.Background()

	require.NoError(t, p.Delete(ctx, index.DocID("Tides", "tides.md")))

	results, err := e.Retrieve(ctx, Query{Text: "moon oceans", TopK: 50})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "Tides", r.Citation.Title)
	}
}

func TestCorpusCache_ConcurrentReaders(t *testing.T) {
	repo := newStore(t)
	h := newHash(t)
	seed(t, repo, h, energyCorpus)
	e := NewEngine(repo, h)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.Retrieve(context.Background(), Query{Text: "electricity"})
			assert.NoError(t, err)
			assert.NotEmpty(t, results)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, repo.loads.Load(), int32(16))
	assert.GreaterOrEqual(t, repo.loads.Load(), int32(1))
}
