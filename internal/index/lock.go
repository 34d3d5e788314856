package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a blocked file lock is retried.
const lockRetryDelay = 50 * time.Millisecond

// ProcessLocker extends the corpus lock to other processes sharing the
// store. Unlock releases whichever mode is held.
type ProcessLocker interface {
	Lock(ctx context.Context) error
	RLock(ctx context.Context) error
	Unlock() error
}

// CorpusLock excludes corpus-wide rebuilds from ingestion. In-process it is
// an RWMutex; with a ProcessLocker the same discipline extends to other
// processes (exclusive for rebuild, shared for ingest).
type CorpusLock struct {
	mu   sync.RWMutex
	proc ProcessLocker

	// readers refcounts the shared process lock across goroutines.
	pmu     sync.Mutex
	readers int
}

// NewCorpusLock returns a lock backed by a lock file at path. Empty path
// means in-process only.
func NewCorpusLock(path string) *CorpusLock {
	if path == "" {
		return &CorpusLock{}
	}
	return NewCorpusLockWith(&fileLocker{f: flock.New(path)})
}

// NewCorpusLockWith returns a lock that also holds proc. A nil proc means
// in-process only.
func NewCorpusLockWith(proc ProcessLocker) *CorpusLock {
	return &CorpusLock{proc: proc}
}

// LockPathFor returns the lock file used alongside a store file.
func LockPathFor(storePath string) string {
	if storePath == "" {
		return ""
	}
	return storePath + ".lock"
}

// Lock takes the exclusive corpus lock.
func (l *CorpusLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	if l.proc == nil {
		return nil
	}
	if err := l.proc.Lock(ctx); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("failed to acquire corpus lock: %w", err)
	}
	return nil
}

// Unlock releases the exclusive lock.
func (l *CorpusLock) Unlock() {
	if l.proc != nil {
		_ = l.proc.Unlock()
	}
	l.mu.Unlock()
}

// RLock takes the shared corpus lock.
func (l *CorpusLock) RLock(ctx context.Context) error {
	l.mu.RLock()
	if l.proc == nil {
		return nil
	}

	l.pmu.Lock()
	defer l.pmu.Unlock()
	if l.readers == 0 {
		if err := l.proc.RLock(ctx); err != nil {
			l.mu.RUnlock()
			return fmt.Errorf("failed to acquire shared corpus lock: %w", err)
		}
	}
	l.readers++
	return nil
}

// RUnlock releases the shared lock.
func (l *CorpusLock) RUnlock() {
	if l.proc != nil {
		l.pmu.Lock()
		l.readers--
		if l.readers == 0 {
			_ = l.proc.Unlock()
		}
		l.pmu.Unlock()
	}
	l.mu.RUnlock()
}

// fileLocker is the ProcessLocker for the embedded store: a lock file next
// to the database.
type fileLocker struct {
	f *flock.Flock
}

func (fl *fileLocker) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(fl.f.Path()), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	return nil
}

func (fl *fileLocker) Lock(ctx context.Context) error {
	if err := fl.ensureDir(); err != nil {
		return err
	}
	return acquired(fl.f.TryLockContext(ctx, lockRetryDelay))
}

func (fl *fileLocker) RLock(ctx context.Context) error {
	if err := fl.ensureDir(); err != nil {
		return err
	}
	return acquired(fl.f.TryRLockContext(ctx, lockRetryDelay))
}

func (fl *fileLocker) Unlock() error {
	return fl.f.Unlock()
}

func acquired(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("corpus lock not acquired")
	}
	return nil
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
