package watcher

import (
	"context"
	"log/slog"
	"path/filepath"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Corpus is the part of the pipeline the syncer drives.
type Corpus interface {
	IngestFiles(ctx context.Context, paths []string, kind string, opts index.FolderOptions) (*index.RunSummary, error)
	Delete(ctx context.Context, docID string) error
}

// Syncer applies event batches to the corpus.
type Syncer struct {
	corpus Corpus
	opts   index.FolderOptions
	logger *slog.Logger
}

// NewSyncer creates a syncer. opts applies to every ingested file.
func NewSyncer(corpus Corpus, opts index.FolderOptions, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{corpus: corpus, opts: opts, logger: logger}
}

// Apply ingests created and modified files as one watch run and deletes the
// documents of removed files. It returns the run summary, or nil when the
// batch held only removals.
func (s *Syncer) Apply(ctx context.Context, batch []FileEvent) (*index.RunSummary, error) {
	var ingest []string
	for _, ev := range batch {
		switch ev.Operation {
		case OpCreate, OpModify:
			ingest = append(ingest, ev.Path)
		case OpDelete, OpRename:
			s.remove(ctx, ev.Path)
		}
	}
	if len(ingest) == 0 {
		return nil, nil
	}
	return s.corpus.IngestFiles(ctx, ingest, store.RunKindWatch, s.opts)
}

// remove deletes the document IngestFile would have created for path.
func (s *Syncer) remove(ctx context.Context, path string) {
	docID := index.DocID(filepath.Base(path), path)
	err := s.corpus.Delete(ctx, docID)
	switch {
	case err == nil:
		s.logger.Info("watch_document_removed", slog.String("path", path), slog.String("doc_id", docID))
	case amerrors.HasCode(err, amerrors.ErrCodeDocumentNotFound):
	default:
		s.logger.Warn("watch_delete_failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Run applies batches from events until the channel closes or ctx ends.
func (s *Syncer) Run(ctx context.Context, events <-chan []FileEvent, onRun func(*index.RunSummary)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			sum, err := s.Apply(ctx, batch)
			if err != nil {
				s.logger.Warn("watch_batch_failed", slog.String("error", err.Error()))
				continue
			}
			if sum != nil && onRun != nil {
				onRun(sum)
			}
		}
	}
}
