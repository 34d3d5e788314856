package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

const (
	pgCorpusLockSQL       = `SELECT pg_advisory_xact_lock(hashtext('amanrag:corpus'))`
	pgCorpusSharedLockSQL = `SELECT pg_advisory_xact_lock_shared(hashtext('amanrag:corpus'))`
)

// AdvisoryLock is the cross-process corpus lock for a shared Postgres
// database. The lock lives in an open transaction so it stays bound to one
// pool connection, and ending the transaction releases it. At most one
// acquisition is held at a time; callers refcount shared holders.
type AdvisoryLock struct {
	pool PgPool

	mu sync.Mutex
	tx pgx.Tx
}

// AdvisoryLock returns the corpus lock for this database.
func (s *PostgresStore) AdvisoryLock() *AdvisoryLock {
	return &AdvisoryLock{pool: s.db}
}

// Lock takes the exclusive corpus lock, blocking until ctx is done.
func (l *AdvisoryLock) Lock(ctx context.Context) error {
	return l.acquire(ctx, pgCorpusLockSQL)
}

// RLock takes the shared corpus lock.
func (l *AdvisoryLock) RLock(ctx context.Context) error {
	return l.acquire(ctx, pgCorpusSharedLockSQL)
}

func (l *AdvisoryLock) acquire(ctx context.Context, stmt string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tx != nil {
		return fmt.Errorf("corpus advisory lock already held")
	}
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr("begin corpus lock", err)
	}
	if _, err := tx.Exec(ctx, stmt); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return storeErr("acquire corpus lock", err)
	}
	l.tx = tx
	return nil
}

// Unlock ends the holding transaction.
func (l *AdvisoryLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tx == nil {
		return nil
	}
	err := l.tx.Rollback(context.Background())
	l.tx = nil
	if err != nil {
		return storeErr("release corpus lock", err)
	}
	return nil
}
