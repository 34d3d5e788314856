package index

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// flakyEmbedder fails every batch while fail is set.
type flakyEmbedder struct {
	*embed.HashEmbedder
	fail  atomic.Bool
	calls atomic.Int32
}

func newFlakyEmbedder(t *testing.T, dims int) *flakyEmbedder {
	t.Helper()
	h, err := embed.NewHashEmbedder(dims)
	require.NoError(t, err)
	return &flakyEmbedder{HashEmbedder: h}
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return f.HashEmbedder.EmbedBatch(ctx, texts)
}

type fixture struct {
	repo     *store.SQLiteStore
	lock     *CorpusLock
	pipeline *Pipeline
	embedder embed.Embedder
	params   chunk.Params
	hookRuns atomic.Int32
}

func newFixture(t *testing.T, e embed.Embedder, params chunk.Params) *fixture {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "corpus.db")
	repo, err := store.NewSQLiteStore(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return newFixtureWithStore(t, repo, LockPathFor(dbPath), e, params)
}

func newFixtureWithStore(t *testing.T, repo *store.SQLiteStore, lockPath string, e embed.Embedder, params chunk.Params) *fixture {
	t.Helper()
	f := &fixture{repo: repo, lock: NewCorpusLock(lockPath), embedder: e, params: params}
	p, err := NewPipeline(repo, e, params, f.lock)
	require.NoError(t, err)
	p.OnMutation(func() { f.hookRuns.Add(1) })
	f.pipeline = p
	return f
}

func (f *fixture) tracker(opts ...TrackerOption) *Tracker {
	return NewTracker(f.repo, f.embedder, f.params, f.lock, opts...)
}

func hashEmbedder(t *testing.T, dims int) *embed.HashEmbedder {
	t.Helper()
	e, err := embed.NewHashEmbedder(dims)
	require.NoError(t, err)
	return e
}

var defaultParams = chunk.Params{SizeChars: 50, OverlapChars: 10}

const solarDoc = `Solar panels convert sunlight into electricity.

Wind turbines harvest kinetic energy from moving air.

Hydroelectric dams store potential energy in reservoirs.`
