package index

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/ignore"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// DefaultWorkers bounds concurrent ingests in batch operations.
const DefaultWorkers = 4

// RunSummary reports the outcome of a batch operation.
type RunSummary struct {
	RunID    string            `json:"run_id"`
	Kind     string            `json:"kind"`
	Status   string            `json:"status"`
	Seen     int               `json:"docs_seen"`
	Changed  int               `json:"docs_changed"`
	Failed   int               `json:"docs_failed"`
	Failures map[string]string `json:"failures,omitempty"`
}

// runTracker accumulates outcomes from concurrent workers.
type runTracker struct {
	mu  sync.Mutex
	run *store.IngestionRun
	sum *RunSummary
}

func (p *Pipeline) startRun(ctx context.Context, kind string) (*runTracker, error) {
	run, err := p.repo.StartRun(ctx, kind)
	if err != nil {
		return nil, err
	}
	return &runTracker{
		run: run,
		sum: &RunSummary{RunID: run.RunID, Kind: kind, Failures: make(map[string]string)},
	}, nil
}

func (t *runTracker) record(key string, res *IngestResult, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sum.Seen++
	switch {
	case err != nil:
		t.sum.Failed++
		t.sum.Failures[key] = amerrors.LineageNote(err)
	case res.Changed:
		t.sum.Changed++
	}
}

// finish writes the run ledger. The run uses a fresh context so a
// cancelled batch still gets closed out.
func (p *Pipeline) finishRun(ctx context.Context, t *runTracker, runErr error) *RunSummary {
	sum := t.sum
	switch {
	case runErr != nil && sum.Seen == 0:
		sum.Status = store.RunFailed
	case sum.Failed == 0 && runErr == nil:
		sum.Status = store.RunSucceeded
	case sum.Failed == sum.Seen && sum.Seen > 0:
		sum.Status = store.RunFailed
	default:
		sum.Status = store.RunPartial
	}

	t.run.Status = sum.Status
	t.run.DocsSeen = sum.Seen
	t.run.DocsChanged = sum.Changed
	t.run.DocsFailed = sum.Failed
	if runErr != nil {
		t.run.Error = runErr.Error()
	}
	if err := p.repo.FinishRun(context.WithoutCancel(ctx), t.run); err != nil {
		p.logger.Error("run_finish_failed", slog.String("run_id", t.run.RunID), slog.String("error", err.Error()))
	}
	p.logger.Info("run_finished",
		slog.String("run_id", sum.RunID),
		slog.String("kind", sum.Kind),
		slog.String("status", sum.Status),
		slog.Int("seen", sum.Seen),
		slog.Int("changed", sum.Changed),
		slog.Int("failed", sum.Failed))
	return sum
}

// ReplayOptions selects what Replay re-drives.
type ReplayOptions struct {
	Force bool
	// DocIDs limits replay; empty means every stored document.
	DocIDs []string
}

// Replay re-ingests stored documents through Ingest using their stored
// content, metadata and contract.
func (p *Pipeline) Replay(ctx context.Context, opts ReplayOptions) (*RunSummary, error) {
	rt, err := p.startRun(ctx, store.RunKindReplay)
	if err != nil {
		return nil, err
	}

	docs, runErr := p.replayTargets(ctx, rt, opts.DocIDs)
	for _, doc := range docs {
		if runErr = ctx.Err(); runErr != nil {
			break
		}
		res, err := p.Ingest(ctx, IngestRequest{
			Title:       doc.Title,
			Source:      doc.Source,
			Content:     doc.Content,
			ContentType: doc.ContentType,
			Metadata:    doc.Metadata,
			Contract:    doc.ContractDoc,
			Force:       opts.Force,
			RunID:       rt.run.RunID,
		})
		rt.record(doc.DocID, res, err)
	}
	return p.finishRun(ctx, rt, runErr), runErr
}

func (p *Pipeline) replayTargets(ctx context.Context, rt *runTracker, ids []string) ([]*store.Document, error) {
	if len(ids) == 0 {
		return p.repo.ListDocuments(ctx)
	}
	docs := make([]*store.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := p.repo.GetDocument(ctx, id)
		if err != nil {
			return docs, err
		}
		if doc == nil {
			rt.record(id, nil, amerrors.New(amerrors.ErrCodeDocumentNotFound, "document not found", nil).
				WithDetail("doc_id", id))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// FolderOptions controls IngestFolder.
type FolderOptions struct {
	FileOptions
	Workers int
	// Extensions limits which files are ingested; empty means all.
	Extensions []string
}

// IngestFolder ingests every regular file under root with bounded
// concurrency. Hidden entries and contract sidecars are skipped.
func (p *Pipeline) IngestFolder(ctx context.Context, root string, opts FolderOptions) (*RunSummary, error) {
	paths, err := CollectFiles(root, opts.Extensions)
	if err != nil {
		return nil, err
	}
	return p.IngestFiles(ctx, paths, store.RunKindIngest, opts)
}

// IngestFiles ingests paths under one run of the given kind.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string, kind string, opts FolderOptions) (*RunSummary, error) {
	rt, err := p.startRun(ctx, kind)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fo := opts.FileOptions
			fo.RunID = rt.run.RunID
			// Per-file title only makes sense for single files.
			fo.Title = ""
			res, err := p.IngestFile(gctx, path, fo)
			rt.record(path, res, err)
			return nil
		})
	}
	_ = g.Wait()
	runErr := ctx.Err()
	return p.finishRun(ctx, rt, runErr), runErr
}

// CollectFiles lists ingestible files under root in lexical order. Hidden
// entries, contract sidecars and paths matched by the root's .gitignore or
// .amanragignore are skipped.
func CollectFiles(root string, extensions []string) ([]string, error) {
	skip, err := ignore.Load(root)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "failed to read ignore file", err).WithDetail("path", root)
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root {
			rel, _ := filepath.Rel(root, path)
			if strings.HasPrefix(d.Name(), ".") || skip.Match(rel, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if !d.Type().IsRegular() || IsContractSidecar(path) {
			return nil
		}
		if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeFileNotFound, "failed to walk folder", err).WithDetail("path", root)
	}
	return paths, nil
}
