package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/amanrag/internal/ignore"
	"github.com/Aman-CERP/amanrag/internal/index"
)

// FolderWatcher watches a directory tree with fsnotify. Hidden entries,
// contract sidecars and paths matched by the root's ignore files produce no
// events; new directories are watched as they appear.
type FolderWatcher struct {
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	opts      Options
	allowed   map[string]bool
	root      string
	skip      *ignore.Matcher

	errs chan error

	mu      sync.Mutex
	stopped bool
}

// NewFolderWatcher creates a watcher. Start must be called to begin.
func NewFolderWatcher(opts Options) (*FolderWatcher, error) {
	opts = opts.WithDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &FolderWatcher{
		fs:        fsw,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		opts:      opts,
		allowed:   make(map[string]bool, len(opts.Extensions)),
		errs:      make(chan error, 16),
	}
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.allowed[ext] = true
	}
	return w, nil
}

// Start watches root until ctx is cancelled or Stop is called.
func (w *FolderWatcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	w.root = abs
	if w.skip, err = ignore.Load(abs); err != nil {
		return err
	}
	if err := w.addTree(abs); err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			select {
			case w.errs <- err:
			default:
				slog.Warn("watch_error_dropped", slog.String("error", err.Error()))
			}
		}
	}
}

func (w *FolderWatcher) handle(ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}
	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			if err := w.addTree(ev.Name); err != nil {
				slog.Warn("watch_add_failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			return
		}
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Op.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	if isDir || !w.wanted(ev.Name) {
		return
	}
	w.debouncer.Add(FileEvent{Path: ev.Name, Operation: op, Timestamp: time.Now()})
}

func (w *FolderWatcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	if w.skip.Match(rel, isDirPath(path)) {
		return true
	}
	return index.IsContractSidecar(path)
}

func (w *FolderWatcher) wanted(path string) bool {
	if len(w.allowed) == 0 {
		return true
	}
	return w.allowed[strings.ToLower(filepath.Ext(path))]
}

func (w *FolderWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// isDirPath reports whether path is an existing directory. Removed paths
// report false.
func isDirPath(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Events returns debounced batches.
func (w *FolderWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watch errors.
func (w *FolderWatcher) Errors() <-chan error {
	return w.errs
}

// Stop releases the watcher. Safe to call twice.
func (w *FolderWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	w.debouncer.Stop()
	return w.fs.Close()
}
