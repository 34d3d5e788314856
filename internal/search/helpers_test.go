package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// countingStore counts corpus loads and can hide the native indexes.
type countingStore struct {
	*store.SQLiteStore
	loads       atomic.Int32
	noNativeLex bool
	vectorCalls atomic.Int32
}

func (s *countingStore) LoadCorpus(ctx context.Context) ([]store.CorpusChunk, error) {
	s.loads.Add(1)
	return s.SQLiteStore.LoadCorpus(ctx)
}

func (s *countingStore) SearchLexical(ctx context.Context, q string, limit int) ([]store.LexicalHit, error) {
	if s.noNativeLex {
		return nil, store.ErrLexicalUnavailable
	}
	return s.SQLiteStore.SearchLexical(ctx, q, limit)
}

func (s *countingStore) SearchVector(ctx context.Context, vec []float32, limit int) ([]store.VectorHit, error) {
	s.vectorCalls.Add(1)
	return s.SQLiteStore.SearchVector(ctx, vec, limit)
}

// brokenEmbedder fails every query embedding.
type brokenEmbedder struct {
	*embed.HashEmbedder
}

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model unreachable")
}

func newStore(t *testing.T) *countingStore {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &countingStore{SQLiteStore: s}
}

func newHash(t *testing.T) *embed.HashEmbedder {
	t.Helper()
	e, err := embed.NewHashEmbedder(64)
	require.NoError(t, err)
	return e
}

type doc struct {
	title, source, content string
}

var energyCorpus = []doc{
	{"Solar", "solar.md", "Solar panels convert sunlight into electricity using photovoltaic cells."},
	{"Wind", "wind.md", "Wind turbines convert kinetic energy from moving air into electricity."},
	{"Hydro", "hydro.md", "Hydroelectric dams store water in reservoirs and release it through turbines."},
	{"Tides", "tides.md", "Tidal power follows the moon and the oceans."},
}

func seed(t *testing.T, repo store.Repository, e embed.Embedder, docs []doc) *index.Pipeline {
	t.Helper()
	p, err := index.NewPipeline(repo, e, chunk.Params{SizeChars: 200, OverlapChars: 20}, nil)
	require.NoError(t, err)
	for _, d := range docs {
		_, err := p.Ingest(context.Background(), index.IngestRequest{Title: d.title, Source: d.source, Content: d.content})
		require.NoError(t, err)
	}
	return p
}

func manyDocs(n int) []doc {
	out := make([]doc, n)
	for i := range out {
		out[i] = doc{fmt.Sprintf("Note %d", i), fmt.Sprintf("notes/%03d.md", i), fmt.Sprintf("energy storage note number %d", i)}
	}
	return out
}
