package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/store"
)

func TestCorpusLock_PostgresUsesAdvisoryLock(t *testing.T) {
	// Given: a Postgres-backed repository
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := store.NewPostgresStoreWithPool(mock, "postgres://db/rag")

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectRollback()

	// When: a rebuild takes the corpus lock
	lock := corpusLock(repo, "")
	require.NoError(t, lock.Lock(context.Background()))
	lock.Unlock()

	// Then: the lock went through the database, not only this process
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCorpusLock_SQLiteUsesLockFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.db")
	repo, err := store.NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	lock := corpusLock(repo, path)
	require.NoError(t, lock.Lock(context.Background()))
	lock.Unlock()

	assert.FileExists(t, path+".lock")
}
