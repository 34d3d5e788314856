package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS documents (
	doc_id         TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	source         TEXT NOT NULL,
	classification TEXT NOT NULL,
	retention      TEXT NOT NULL,
	tags           TEXT NOT NULL DEFAULT '[]',
	content_type   TEXT NOT NULL,
	content_sha256 TEXT NOT NULL,
	content_bytes  INTEGER NOT NULL,
	num_chunks     INTEGER NOT NULL,
	doc_version    INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	content        TEXT NOT NULL,
	contract_doc   BLOB
);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id TEXT PRIMARY KEY,
	doc_id   TEXT NOT NULL,
	idx      INTEGER NOT NULL,
	text     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id, idx);

CREATE TABLE IF NOT EXISTS embeddings (
	chunk_id TEXT PRIMARY KEY,
	dim      INTEGER NOT NULL,
	vec      BLOB NOT NULL
);

-- chunk_id is stored, not searchable
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	chunk_id UNINDEXED,
	text,
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TABLE IF NOT EXISTS ingest_events (
	seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id            TEXT NOT NULL UNIQUE,
	doc_id              TEXT NOT NULL,
	doc_version         INTEGER NOT NULL,
	ingested_at         INTEGER NOT NULL,
	content_sha256      TEXT NOT NULL,
	prev_content_sha256 TEXT NOT NULL,
	changed             INTEGER NOT NULL,
	num_chunks          INTEGER NOT NULL,
	embeddings_backend  TEXT NOT NULL,
	embeddings_model    TEXT NOT NULL,
	embedding_dim       INTEGER NOT NULL,
	chunk_size_chars    INTEGER NOT NULL,
	chunk_overlap_chars INTEGER NOT NULL,
	schema_fingerprint  TEXT NOT NULL,
	contract_sha256     TEXT NOT NULL,
	validation_status   TEXT NOT NULL,
	validation_errors   TEXT NOT NULL,
	schema_drifted      INTEGER NOT NULL,
	run_id              TEXT NOT NULL,
	notes               TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_doc ON ingest_events(doc_id, seq);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	run_id       TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL,
	docs_seen    INTEGER NOT NULL,
	docs_changed INTEGER NOT NULL,
	docs_failed  INTEGER NOT NULL,
	error        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// SQLiteStore implements Repository on a single SQLite file with FTS5.
// It allows concurrent multi-process readers via WAL mode.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	identity string
	graphs   graphCache

	mu     sync.RWMutex
	closed bool
}

var _ Repository = (*SQLiteStore)(nil)

// validateSQLiteIntegrity checks an existing database file before opening.
// Returns nil if valid or absent.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens (creating if needed) the store at path and initializes
// the schema. An empty path opens an in-memory database for tests.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	identity := "sqlite::memory:" + NewID()
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		path = abs
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		// A corrupt corpus is reported, never silently cleared: it is the
		// system of record, not a derived index.
		if err := validateSQLiteIntegrity(path); err != nil {
			slog.Error("sqlite_store_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			return nil, amerrors.New(amerrors.ErrCodeStoreFailed, "corpus database failed integrity check", err).
				WithDetail("path", path)
		}
		dsn = path
		identity = "sqlite:" + path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path, identity: identity}
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates tables idempotently.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return storeErr("initialize schema", err)
	}
	return nil
}

// Identity returns "sqlite:" plus the absolute file path.
func (s *SQLiteStore) Identity() string {
	return s.identity
}

// Path returns the database file path ("" for in-memory).
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// IngestDocument commits the batch in one transaction.
func (s *SQLiteStore) IngestDocument(ctx context.Context, batch *IngestBatch) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if batch == nil || batch.Document == nil || batch.Event == nil {
		return amerrors.InternalError("ingest batch requires a document and an event", nil)
	}
	fillEvent(batch.Event)

	return s.withTx(ctx, "ingest document", func(tx *sql.Tx) error {
		if batch.ExpectVersion {
			var current int
			err := tx.QueryRowContext(ctx, selectDocVersionSQL, batch.Document.DocID).Scan(&current)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if err := checkVersion(batch, current); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, upsertDocumentSQL, documentArgs(batch.Document)...); err != nil {
			return err
		}
		if batch.WriteChunks {
			if err := s.replaceChunks(ctx, tx, batch.Document.DocID, batch.Chunks, batch.Embeddings); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, insertEventSQL, eventArgs(batch.Event)...); err != nil {
			return err
		}
		_, err := bumpVersionTx(ctx, tx)
		return err
	})
}

func (s *SQLiteStore) replaceChunks(ctx context.Context, tx *sql.Tx, docID string, chunks []Chunk, embs []Embedding) error {
	if err := s.deleteChunksTx(ctx, tx, docID); err != nil {
		return err
	}

	insChunk, err := tx.PrepareContext(ctx, insertChunkSQL)
	if err != nil {
		return err
	}
	defer insChunk.Close()
	insFTS, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts (chunk_id, text) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer insFTS.Close()

	for _, c := range chunks {
		if _, err := insChunk.ExecContext(ctx, c.ChunkID, c.DocID, c.Idx, c.Text); err != nil {
			return err
		}
		if _, err := insFTS.ExecContext(ctx, c.ChunkID, c.Text); err != nil {
			return err
		}
	}
	return upsertEmbeddingsTx(ctx, tx, embs)
}

func (s *SQLiteStore) deleteChunksTx(ctx context.Context, tx *sql.Tx, docID string) error {
	stmts := []string{
		deleteDocEmbSQL,
		`DELETE FROM chunks_fts WHERE chunk_id IN (SELECT chunk_id FROM chunks WHERE doc_id = ?)`,
		deleteChunksSQL,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, docID); err != nil {
			return err
		}
	}
	return nil
}

func upsertEmbeddingsTx(ctx context.Context, tx *sql.Tx, embs []Embedding) error {
	if len(embs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO embeddings (chunk_id, dim, vec) VALUES (?, ?, ?)
		ON CONFLICT (chunk_id) DO UPDATE SET dim = excluded.dim, vec = excluded.vec`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range embs {
		if _, err := stmt.ExecContext(ctx, e.ChunkID, len(e.Vec), EncodeVector(e.Vec)); err != nil {
			return err
		}
	}
	return nil
}

// GetDocument returns the document or (nil, nil).
func (s *SQLiteStore) GetDocument(ctx context.Context, docID string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, selectDocumentSQL, docID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get document", err)
	}
	return d, nil
}

// ListDocuments returns all documents ordered by doc_id.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, listDocumentsSQL)
	if err != nil {
		return nil, storeErr("list documents", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, storeErr("scan document", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDoc removes the document, its chunks and embeddings.
func (s *SQLiteStore) DeleteDoc(ctx context.Context, docID string) error {
	return s.withTx(ctx, "delete document", func(tx *sql.Tx) error {
		if err := s.deleteChunksTx(ctx, tx, docID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, deleteDocumentSQL, docID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(docID)
		}
		_, err = bumpVersionTx(ctx, tx)
		return err
	})
}

// UpdateMetadata replaces classification, retention and tags.
func (s *SQLiteStore) UpdateMetadata(ctx context.Context, docID string, md Metadata) error {
	return s.withTx(ctx, "update metadata", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, updateMetadataSQL, md.Classification, md.Retention, encodeTags(md.Tags), nowUnix(), docID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(docID)
		}
		_, err = bumpVersionTx(ctx, tx)
		return err
	})
}

// AppendEvent records a standalone event.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *IngestEvent) error {
	fillEvent(ev)
	if _, err := s.db.ExecContext(ctx, insertEventSQL, eventArgs(ev)...); err != nil {
		return storeErr("append event", err)
	}
	return nil
}

// LastEvent returns the newest event for docID or (nil, nil).
func (s *SQLiteStore) LastEvent(ctx context.Context, docID string) (*IngestEvent, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx, lastEventSQL, docID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("last event", err)
	}
	return ev, nil
}

// ListEvents returns events newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, docID string, limit int) ([]*IngestEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if docID == "" {
		rows, err = s.db.QueryContext(ctx, listEventsSQL, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, listDocEventsSQL, docID, limit)
	}
	if err != nil {
		return nil, storeErr("list events", err)
	}
	defer rows.Close()

	events := []*IngestEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, storeErr("scan event", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// QueryCitations resolves chunk ids to their documents.
func (s *SQLiteStore) QueryCitations(ctx context.Context, chunkIDs []string) (map[string]Citation, error) {
	out := make(map[string]Citation, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, citationsSQLPrefix+citationPlaceholders(len(chunkIDs))+")", args...)
	if err != nil {
		return nil, storeErr("query citations", err)
	}
	defer rows.Close()
	for rows.Next() {
		var chunkID string
		var c Citation
		if err := rows.Scan(&chunkID, &c.DocID, &c.Title, &c.Source, &c.Classification, &c.DocVersion); err != nil {
			return nil, storeErr("scan citation", err)
		}
		out[chunkID] = c
	}
	return out, rows.Err()
}

// SearchLexical ranks chunks with FTS5 bm25(). Matching is OR over query terms.
func (s *SQLiteStore) SearchLexical(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	match := ftsQuery(query)
	if match == "" || limit <= 0 {
		return []LexicalHit{}, nil
	}

	// bm25() is negative, lower is better.
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?`, match, limit)
	if err != nil {
		if strings.Contains(err.Error(), "no such module") || strings.Contains(err.Error(), "fts5") {
			return nil, fmt.Errorf("%w: %v", ErrLexicalUnavailable, err)
		}
		return nil, storeErr("lexical search", err)
	}
	defer rows.Close()

	hits := []LexicalHit{}
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.ChunkID, &h.Score); err != nil {
			return nil, storeErr("scan lexical hit", err)
		}
		h.Score = -h.Score
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchVector queries an HNSW graph built over the stored embeddings.
// The graph is rebuilt when the mutation version changes.
func (s *SQLiteStore) SearchVector(ctx context.Context, vec []float32, limit int) ([]VectorHit, error) {
	version, err := s.MutationVersion(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.graphs.get(version, func() ([]Embedding, error) { return s.allEmbeddings(ctx) })
	if err != nil {
		return nil, err
	}
	return g.search(vec, limit), nil
}

func (s *SQLiteStore) allEmbeddings(ctx context.Context) ([]Embedding, error) {
	rows, err := s.db.QueryContext(ctx, selectEmbeddingsSQL+` ORDER BY chunk_id`)
	if err != nil {
		return nil, storeErr("load embeddings", err)
	}
	defer rows.Close()

	var embs []Embedding
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, storeErr("scan embedding", err)
		}
		v, err := DecodeVector(blob)
		if err != nil {
			return nil, storeErr("decode embedding", err)
		}
		embs = append(embs, Embedding{ChunkID: id, Dim: len(v), Vec: v})
	}
	return embs, rows.Err()
}

// LoadCorpus returns all chunks with their vectors ordered by doc_id, idx.
func (s *SQLiteStore) LoadCorpus(ctx context.Context) ([]CorpusChunk, error) {
	rows, err := s.db.QueryContext(ctx, loadCorpusSQL)
	if err != nil {
		return nil, storeErr("load corpus", err)
	}
	defer rows.Close()

	corpus := []CorpusChunk{}
	for rows.Next() {
		var c CorpusChunk
		var blob []byte
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.Idx, &c.Text, &blob); err != nil {
			return nil, storeErr("scan corpus row", err)
		}
		if blob != nil {
			if c.Vec, err = DecodeVector(blob); err != nil {
				return nil, storeErr("decode embedding", err)
			}
		}
		corpus = append(corpus, c)
	}
	return corpus, rows.Err()
}

// StreamChunks pages through chunks with keyset pagination so no cursor is
// held open while fn runs (the pool has a single connection).
func (s *SQLiteStore) StreamChunks(ctx context.Context, batchSize int, fn func([]Chunk) error) error {
	if batchSize <= 0 {
		batchSize = 256
	}
	after := ""
	for {
		batch, err := s.chunkPage(ctx, after, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		after = batch[len(batch)-1].ChunkID
	}
}

func (s *SQLiteStore) chunkPage(ctx context.Context, after string, limit int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, streamChunksSQL, after, limit)
	if err != nil {
		return nil, storeErr("stream chunks", err)
	}
	defer rows.Close()

	var batch []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.Idx, &c.Text); err != nil {
			return nil, storeErr("scan chunk", err)
		}
		batch = append(batch, c)
	}
	return batch, rows.Err()
}

// ReplaceAllEmbeddings upserts a batch of embeddings.
func (s *SQLiteStore) ReplaceAllEmbeddings(ctx context.Context, embs []Embedding) error {
	return s.withTx(ctx, "write embeddings", func(tx *sql.Tx) error {
		return upsertEmbeddingsTx(ctx, tx, embs)
	})
}

// DeleteAllEmbeddings empties the embeddings table.
func (s *SQLiteStore) DeleteAllEmbeddings(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, deleteEmbeddingsSQL)
	if err != nil {
		return 0, storeErr("delete embeddings", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// EmbeddingStats reports the count and distinct dims of stored embeddings.
func (s *SQLiteStore) EmbeddingStats(ctx context.Context) (*EmbeddingStats, error) {
	rows, err := s.db.QueryContext(ctx, embeddingStatsSQL)
	if err != nil {
		return nil, storeErr("embedding stats", err)
	}
	defer rows.Close()

	stats := &EmbeddingStats{Dims: []int{}}
	for rows.Next() {
		var dim, n int
		if err := rows.Scan(&dim, &n); err != nil {
			return nil, storeErr("scan embedding stats", err)
		}
		stats.Count += n
		stats.Dims = append(stats.Dims, dim)
	}
	return stats, rows.Err()
}

// GetState reads one state value.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, getStateSQL, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get state", err)
	}
	return v, true, nil
}

// SetState writes all pairs atomically.
func (s *SQLiteStore) SetState(ctx context.Context, kv map[string]string) error {
	return s.withTx(ctx, "set state", func(tx *sql.Tx) error {
		for k, v := range kv {
			if _, err := tx.ExecContext(ctx, setStateSQL, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// MutationVersion returns the persistent mutation counter (0 when unset).
func (s *SQLiteStore) MutationVersion(ctx context.Context) (int64, error) {
	v, ok, err := s.GetState(ctx, StateMutationVersion)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// BumpMutationVersion increments the counter and returns the new value.
func (s *SQLiteStore) BumpMutationVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.withTx(ctx, "bump mutation version", func(tx *sql.Tx) error {
		var err error
		v, err = bumpVersionTx(ctx, tx)
		return err
	})
	return v, err
}

func bumpVersionTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	var v int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO state (key, value) VALUES ('mutation_version', '1')
		ON CONFLICT (key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)
		RETURNING CAST(value AS INTEGER)`).Scan(&v)
	return v, err
}

// StartRun inserts a running IngestionRun.
func (s *SQLiteStore) StartRun(ctx context.Context, kind string) (*IngestionRun, error) {
	run := &IngestionRun{RunID: NewID(), Kind: kind, Status: RunRunning, StartedAt: nowUnix()}
	if _, err := s.db.ExecContext(ctx, insertRunSQL, runArgs(run)...); err != nil {
		return nil, storeErr("start run", err)
	}
	return run, nil
}

// FinishRun records the final counters and status.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *IngestionRun) error {
	if run.FinishedAt == 0 {
		run.FinishedAt = nowUnix()
	}
	_, err := s.db.ExecContext(ctx, finishRunSQL,
		run.Status, run.FinishedAt, run.DocsSeen, run.DocsChanged, run.DocsFailed, run.Error, run.RunID)
	if err != nil {
		return storeErr("finish run", err)
	}
	return nil
}

// Counts returns table sizes.
func (s *SQLiteStore) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	if err := s.db.QueryRowContext(ctx, countsSQL).Scan(&c.Documents, &c.Chunks, &c.Embeddings, &c.Events, &c.Runs); err != nil {
		return nil, storeErr("counts", err)
	}
	return &c, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if _, ok := amerrors.As(err); ok {
			return err
		}
		return storeErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr(op, err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return amerrors.New(amerrors.ErrCodeStoreFailed, op+" failed", err)
}

// checkVersion enforces a conditional write. current is 0 when the
// document is absent.
func checkVersion(batch *IngestBatch, current int) error {
	if !batch.ExpectVersion || current == batch.ExpectedVersion {
		return nil
	}
	return amerrors.New(amerrors.ErrCodeVersionConflict,
		fmt.Sprintf("document %s changed concurrently: expected version %d, found %d",
			batch.Document.DocID, batch.ExpectedVersion, current), nil).
		WithDetail("doc_id", batch.Document.DocID)
}

// IsVersionConflict reports whether err is a failed conditional write.
func IsVersionConflict(err error) bool {
	return amerrors.GetCode(err) == amerrors.ErrCodeVersionConflict
}

func notFound(docID string) error {
	return amerrors.New(amerrors.ErrCodeDocumentNotFound, "document not found: "+docID, nil).
		WithDetail("doc_id", docID)
}
