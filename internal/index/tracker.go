package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// RebuildBatchSize is how many chunks are embedded per store page.
const RebuildBatchSize = 256

// Tracker keeps the stored embeddings consistent with the running embedder.
type Tracker struct {
	repo     store.Repository
	embedder embed.Embedder
	params   chunk.Params
	lock     *CorpusLock
	logger   *slog.Logger

	// onMutation runs after any rebuild that bumped the mutation version.
	onMutation func()
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger.
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithTrackerHook registers a callback for completed rebuilds.
func WithTrackerHook(fn func()) TrackerOption {
	return func(t *Tracker) { t.onMutation = fn }
}

// NewTracker creates a tracker. lock must be the one shared with the pipeline.
func NewTracker(repo store.Repository, e embed.Embedder, params chunk.Params, lock *CorpusLock, opts ...TrackerOption) *Tracker {
	if lock == nil {
		lock = NewCorpusLock("")
	}
	t := &Tracker{
		repo:     repo,
		embedder: e,
		params:   params,
		lock:     lock,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Current returns the signature of the running configuration.
func (t *Tracker) Current() Signature {
	return CurrentSignature(t.embedder, t.params)
}

// EnsureCompatible brings stored embeddings in line with the current
// signature. It reports whether embeddings were rewritten or removed. A
// second call with unchanged configuration does nothing.
func (t *Tracker) EnsureCompatible(ctx context.Context) (bool, error) {
	if err := t.lock.Lock(ctx); err != nil {
		return false, err
	}
	defer t.lock.Unlock()

	current := t.Current()
	stored, ok, err := ReadSignature(ctx, t.repo)
	if err != nil {
		return false, err
	}

	if t.embedder.Backend() == embed.BackendDisabled {
		return t.clearEmbeddings(ctx, current)
	}

	if !ok {
		counts, err := t.repo.Counts(ctx)
		if err != nil {
			return false, err
		}
		if counts.Chunks == 0 {
			return false, t.repo.SetState(ctx, current.State())
		}
		return true, t.rebuild(ctx, current, "first_build")
	}

	if !stored.EmbeddingEqual(current) {
		t.logger.Info("index_signature_changed",
			slog.String("stored", stored.String()),
			slog.String("current", current.String()))
		return true, t.rebuild(ctx, current, "signature_changed")
	}

	consistent, reason, err := t.consistent(ctx, current)
	if err != nil {
		return false, err
	}
	if !consistent {
		t.logger.Warn("index_consistency_repair", slog.String("reason", reason))
		return true, t.rebuild(ctx, current, "consistency_repair")
	}

	if !stored.ChunkingEqual(current) {
		return false, t.repo.SetState(ctx, current.State())
	}
	return false, nil
}

// consistent checks stored embeddings against the signature dim and, since
// the backend is enabled, against the chunk count.
func (t *Tracker) consistent(ctx context.Context, sig Signature) (bool, string, error) {
	stats, err := t.repo.EmbeddingStats(ctx)
	if err != nil {
		return false, "", err
	}
	for _, d := range stats.Dims {
		if d != sig.Dim {
			return false, amerrors.New(amerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("stored dim %d, signature dim %d", d, sig.Dim), nil).Error(), nil
		}
	}
	counts, err := t.repo.Counts(ctx)
	if err != nil {
		return false, "", err
	}
	if stats.Count != counts.Chunks {
		return false, fmt.Sprintf("%d embeddings for %d chunks", stats.Count, counts.Chunks), nil
	}
	return true, "", nil
}

func (t *Tracker) clearEmbeddings(ctx context.Context, sig Signature) (bool, error) {
	removed, err := t.repo.DeleteAllEmbeddings(ctx)
	if err != nil {
		return false, err
	}
	if err := t.repo.SetState(ctx, sig.State()); err != nil {
		return false, err
	}
	if removed == 0 {
		return false, nil
	}
	if _, err := t.repo.BumpMutationVersion(ctx); err != nil {
		return false, err
	}
	t.logger.Info("index_embeddings_cleared", slog.Int("removed", removed))
	t.notify()
	return true, nil
}

// rebuild re-embeds every stored chunk under the corpus write lock, which
// the caller holds.
func (t *Tracker) rebuild(ctx context.Context, sig Signature, reason string) error {
	start := time.Now()
	t.logger.Info("index_rebuild_started",
		slog.String("reason", reason),
		slog.String("signature", sig.String()))

	if _, err := t.repo.DeleteAllEmbeddings(ctx); err != nil {
		return err
	}
	// Readers keyed on the old version must not keep serving deleted vectors.
	if err := t.publish(ctx); err != nil {
		return err
	}

	embedded := 0
	err := t.repo.StreamChunks(ctx, RebuildBatchSize, func(batch []store.Chunk) error {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vecs, err := t.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return amerrors.New(amerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vecs), len(batch)), nil)
		}
		embs := make([]store.Embedding, len(batch))
		for i, c := range batch {
			embs[i] = store.Embedding{ChunkID: c.ChunkID, Dim: len(vecs[i]), Vec: vecs[i]}
		}
		if err := t.repo.ReplaceAllEmbeddings(ctx, embs); err != nil {
			return err
		}
		embedded += len(batch)
		return nil
	})
	if err != nil {
		t.logger.Error("index_rebuild_failed",
			slog.String("reason", reason),
			slog.Int("embedded", embedded),
			slog.String("error", err.Error()))
		if embedded > 0 {
			if perr := t.publish(context.WithoutCancel(ctx)); perr != nil {
				t.logger.Error("index_rebuild_publish_failed", slog.String("error", perr.Error()))
			}
		}
		return err
	}

	if err := t.repo.SetState(ctx, sig.State()); err != nil {
		return err
	}
	if err := t.publish(ctx); err != nil {
		return err
	}
	t.logger.Info("index_rebuild_completed",
		slog.String("reason", reason),
		slog.Int("embedded", embedded),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// publish bumps the mutation version and runs the in-process hook.
func (t *Tracker) publish(ctx context.Context) error {
	if _, err := t.repo.BumpMutationVersion(ctx); err != nil {
		return err
	}
	t.notify()
	return nil
}

func (t *Tracker) notify() {
	if t.onMutation != nil {
		t.onMutation()
	}
}
