package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/logging"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// app is the wired corpus used by a single command invocation.
type app struct {
	cfg      *config.Config
	dir      string
	logger   *slog.Logger
	repo     store.Repository
	embedder embed.Embedder
	pipeline *index.Pipeline
	tracker  *index.Tracker
	engine   *search.Engine

	closeLog func()
}

// loadConfig resolves the project directory and loads its configuration.
func loadConfig(g *globalOptions) (*config.Config, string, error) {
	dir, err := filepath.Abs(g.dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolve project directory: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

func setupLogging(cfg *config.Config, g *globalOptions) (*slog.Logger, func(), error) {
	lc := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: g.verbose,
	}
	if lc.FilePath == "" {
		lc.FilePath = logging.DefaultLogPath()
	}
	if g.debug {
		lc.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(lc)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// corpusLock extends the corpus lock across processes: a lock file beside
// an embedded store, or an advisory lock in a shared Postgres database.
func corpusLock(repo store.Repository, storePath string) *index.CorpusLock {
	if pg, ok := repo.(*store.PostgresStore); ok {
		return index.NewCorpusLockWith(pg.AdvisoryLock())
	}
	return index.NewCorpusLock(index.LockPathFor(storePath))
}

// openApp wires store, embedder, pipeline, tracker and engine from config.
// The engine cache is invalidated by every pipeline mutation and rebuild.
func openApp(ctx context.Context, g *globalOptions) (*app, error) {
	cfg, dir, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := setupLogging(cfg, g)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, dir: dir, logger: logger, closeLog: closeLog}

	timeout, _ := cfg.EmbeddingTimeout()
	a.embedder, err = embed.New(ctx, embed.Options{
		Backend:    cfg.Embeddings.Backend,
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.Host,
		APIKey:     cfg.Embeddings.APIKey,
		Dimensions: cfg.Embeddings.Dimensions,
		Timeout:    timeout,
		MaxRetries: cfg.Embeddings.MaxRetries,
		BatchSize:  cfg.Embeddings.BatchSize,
		CacheSize:  cfg.Embeddings.CacheSize,
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	storePath := ""
	if cfg.Store.Driver == "sqlite" {
		storePath = cfg.Store.Path
		if !filepath.IsAbs(storePath) {
			storePath = filepath.Join(dir, storePath)
		}
	}
	a.repo, err = store.Open(ctx, store.Options{
		Driver:   cfg.Store.Driver,
		Path:     storePath,
		DSN:      cfg.Store.DSN,
		MaxConns: cfg.Store.MaxConns,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	params := chunk.Params{SizeChars: cfg.Chunking.SizeChars, OverlapChars: cfg.Chunking.OverlapChars}
	lock := corpusLock(a.repo, storePath)

	a.pipeline, err = index.NewPipeline(a.repo, a.embedder, params, lock,
		index.WithLogger(logger),
		index.WithMaxContractBytes(cfg.Ingest.MaxContractBytes))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = search.NewEngine(a.repo, a.embedder,
		search.WithLogger(logger),
		search.WithConfig(search.Config{
			LexicalWeight: cfg.Search.LexicalWeight,
			VectorWeight:  cfg.Search.VectorWeight,
			DefaultTopK:   cfg.Search.DefaultTopK,
			MaxTopK:       cfg.Search.MaxTopK,
			LexicalLimit:  cfg.Search.LexicalLimit,
			VectorLimit:   cfg.Search.VectorLimit,
			LexicalSource: cfg.Search.LexicalSource,
			VectorSource:  cfg.Search.VectorSource,
		}))
	a.pipeline.OnMutation(a.engine.InvalidateCache)

	a.tracker = index.NewTracker(a.repo, a.embedder, params, lock,
		index.WithTrackerLogger(logger),
		index.WithTrackerHook(a.engine.InvalidateCache))
	return a, nil
}

// ensureIndex reconciles stored embeddings with the running configuration
// before any command reads or writes the corpus.
func (a *app) ensureIndex(ctx context.Context) error {
	_, err := a.tracker.EnsureCompatible(ctx)
	return err
}

func (a *app) folderOptions(fo index.FileOptions) index.FolderOptions {
	if fo.MaxBytes == 0 {
		fo.MaxBytes = a.cfg.Ingest.MaxFileBytes
	}
	return index.FolderOptions{FileOptions: fo, Workers: a.cfg.Ingest.Workers}
}

// Close releases the store, embedder and log file.
func (a *app) Close() {
	if a.repo != nil {
		_ = a.repo.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}
