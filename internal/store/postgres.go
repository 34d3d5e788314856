package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// PgPool is the subset of *pgxpool.Pool the store uses. pgxmock pools satisfy it.
type PgPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

var _ PgPool = (*pgxpool.Pool)(nil)

// pgSchema is applied statement by statement.
var pgSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS documents (
		doc_id         text PRIMARY KEY,
		title          text NOT NULL,
		source         text NOT NULL,
		classification text NOT NULL,
		retention      text NOT NULL,
		tags           text NOT NULL DEFAULT '[]',
		content_type   text NOT NULL,
		content_sha256 text NOT NULL,
		content_bytes  integer NOT NULL,
		num_chunks     integer NOT NULL,
		doc_version    integer NOT NULL,
		created_at     bigint NOT NULL,
		updated_at     bigint NOT NULL,
		content        text NOT NULL,
		contract_doc   bytea
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		chunk_id text PRIMARY KEY,
		doc_id   text NOT NULL,
		idx      integer NOT NULL,
		text     text NOT NULL,
		tsv      tsvector GENERATED ALWAYS AS (to_tsvector('simple', text)) STORED
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks (doc_id, idx)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON chunks USING GIN (tsv)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id  text PRIMARY KEY,
		dim       integer NOT NULL,
		vec       bytea NOT NULL,
		embedding vector NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_events (
		seq                 bigserial PRIMARY KEY,
		event_id            text NOT NULL UNIQUE,
		doc_id              text NOT NULL,
		doc_version         integer NOT NULL,
		ingested_at         bigint NOT NULL,
		content_sha256      text NOT NULL,
		prev_content_sha256 text NOT NULL,
		changed             boolean NOT NULL,
		num_chunks          integer NOT NULL,
		embeddings_backend  text NOT NULL,
		embeddings_model    text NOT NULL,
		embedding_dim       integer NOT NULL,
		chunk_size_chars    integer NOT NULL,
		chunk_overlap_chars integer NOT NULL,
		schema_fingerprint  text NOT NULL,
		contract_sha256     text NOT NULL,
		validation_status   text NOT NULL,
		validation_errors   text NOT NULL,
		schema_drifted      boolean NOT NULL,
		run_id              text NOT NULL,
		notes               text NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_doc ON ingest_events (doc_id, seq)`,
	`CREATE TABLE IF NOT EXISTS ingestion_runs (
		run_id       text PRIMARY KEY,
		kind         text NOT NULL,
		status       text NOT NULL,
		started_at   bigint NOT NULL,
		finished_at  bigint NOT NULL,
		docs_seen    integer NOT NULL,
		docs_changed integer NOT NULL,
		docs_failed  integer NOT NULL,
		error        text NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS state (
		key   text PRIMARY KEY,
		value text NOT NULL
	)`,
}

const (
	pgDocLockSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

	pgUpsertEmbeddingSQL = `INSERT INTO embeddings (chunk_id, dim, vec, embedding) VALUES ($1, $2, $3, $4)
	ON CONFLICT (chunk_id) DO UPDATE SET dim = EXCLUDED.dim, vec = EXCLUDED.vec, embedding = EXCLUDED.embedding`

	pgBumpVersionSQL = `INSERT INTO state (key, value) VALUES ('mutation_version', '1')
	ON CONFLICT (key) DO UPDATE SET value = (state.value::bigint + 1)::text
	RETURNING value::bigint`

	pgLexicalSQL = `SELECT chunk_id, ts_rank_cd(tsv, q) AS score
	FROM chunks, to_tsquery('simple', $1) q
	WHERE tsv @@ q
	ORDER BY score DESC, chunk_id
	LIMIT $2`

	pgVectorSQL = `SELECT chunk_id, 1 - (embedding <=> $1) AS similarity
	FROM embeddings
	WHERE dim = $2
	ORDER BY embedding <=> $1, chunk_id
	LIMIT $3`
)

// PostgresStore implements Repository on PostgreSQL with pgvector.
type PostgresStore struct {
	db       PgPool
	identity string
}

var _ Repository = (*PostgresStore)(nil)

// PostgresOptions configures the pool.
type PostgresOptions struct {
	MaxConns int32
}

// NewPostgresStore connects to dsn and initializes the schema.
func NewPostgresStore(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, amerrors.ConfigError("store.dsn", err.Error())
	}
	cfg.MaxConns = 10
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	// One connection may be parked holding the corpus advisory lock.
	cfg.MaxConns = max(cfg.MaxConns, 2)
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storeErr("connect postgres", err)
	}
	identity := fmt.Sprintf("postgres://%s:%d/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.Database)

	s := NewPostgresStoreWithPool(pool, identity)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithPool wraps an existing pool without touching the schema.
func NewPostgresStoreWithPool(pool PgPool, identity string) *PostgresStore {
	return &PostgresStore{db: pool, identity: identity}
}

// InitSchema creates the extension and tables idempotently.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	for _, stmt := range pgSchema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return storeErr("initialize schema", err)
		}
	}
	return nil
}

// Identity returns the host, port and database.
func (s *PostgresStore) Identity() string {
	return s.identity
}

// IngestDocument commits the batch in one transaction.
func (s *PostgresStore) IngestDocument(ctx context.Context, batch *IngestBatch) error {
	if batch == nil || batch.Document == nil || batch.Event == nil {
		return amerrors.InternalError("ingest batch requires a document and an event", nil)
	}
	fillEvent(batch.Event)

	return s.withTx(ctx, "ingest document", func(tx pgx.Tx) error {
		// Writers of the same document serialize across processes.
		if _, err := tx.Exec(ctx, pgDocLockSQL, batch.Document.DocID); err != nil {
			return err
		}
		if batch.ExpectVersion {
			var current int
			err := tx.QueryRow(ctx, rebind(selectDocVersionSQL), batch.Document.DocID).Scan(&current)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			if err := checkVersion(batch, current); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, rebind(upsertDocumentSQL), documentArgs(batch.Document)...); err != nil {
			return err
		}
		if batch.WriteChunks {
			if err := pgDeleteChunks(ctx, tx, batch.Document.DocID); err != nil {
				return err
			}
			for _, c := range batch.Chunks {
				if _, err := tx.Exec(ctx, rebind(insertChunkSQL), c.ChunkID, c.DocID, c.Idx, c.Text); err != nil {
					return err
				}
			}
			if err := pgUpsertEmbeddings(ctx, tx, batch.Embeddings); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, rebind(insertEventSQL), eventArgs(batch.Event)...); err != nil {
			return err
		}
		_, err := pgBump(ctx, tx)
		return err
	})
}

func pgDeleteChunks(ctx context.Context, tx pgx.Tx, docID string) error {
	if _, err := tx.Exec(ctx, rebind(deleteDocEmbSQL), docID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, rebind(deleteChunksSQL), docID)
	return err
}

func pgUpsertEmbeddings(ctx context.Context, tx pgx.Tx, embs []Embedding) error {
	for _, e := range embs {
		if _, err := tx.Exec(ctx, pgUpsertEmbeddingSQL,
			e.ChunkID, len(e.Vec), EncodeVector(e.Vec), pgvector.NewVector(e.Vec)); err != nil {
			return err
		}
	}
	return nil
}

func pgBump(ctx context.Context, tx pgx.Tx) (int64, error) {
	var v int64
	err := tx.QueryRow(ctx, pgBumpVersionSQL).Scan(&v)
	return v, err
}

// GetDocument returns the document or (nil, nil).
func (s *PostgresStore) GetDocument(ctx context.Context, docID string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRow(ctx, rebind(selectDocumentSQL), docID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get document", err)
	}
	return d, nil
}

// ListDocuments returns all documents ordered by doc_id.
func (s *PostgresStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.Query(ctx, listDocumentsSQL)
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
func (s *PostgresStore) DeleteDoc(ctx context.Context, docID string) error {
	return s.withTx(ctx, "delete document", func(tx pgx.Tx) error {
		if err := pgDeleteChunks(ctx, tx, docID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, rebind(deleteDocumentSQL), docID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return notFound(docID)
		}
		_, err = pgBump(ctx, tx)
		return err
	})
}

// UpdateMetadata replaces classification, retention and tags.
func (s *PostgresStore) UpdateMetadata(ctx context.Context, docID string, md Metadata) error {
	return s.withTx(ctx, "update metadata", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, rebind(updateMetadataSQL), md.Classification, md.Retention, encodeTags(md.Tags), nowUnix(), docID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return notFound(docID)
		}
		_, err = pgBump(ctx, tx)
		return err
	})
}

// AppendEvent records a standalone event.
func (s *PostgresStore) AppendEvent(ctx context.Context, ev *IngestEvent) error {
	fillEvent(ev)
	if _, err := s.db.Exec(ctx, rebind(insertEventSQL), eventArgs(ev)...); err != nil {
		return storeErr("append event", err)
	}
	return nil
}

// LastEvent returns the newest event for docID or (nil, nil).
func (s *PostgresStore) LastEvent(ctx context.Context, docID string) (*IngestEvent, error) {
	ev, err := scanEvent(s.db.QueryRow(ctx, rebind(lastEventSQL), docID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("last event", err)
	}
	return ev, nil
}

// ListEvents returns events newest first.
func (s *PostgresStore) ListEvents(ctx context.Context, docID string, limit int) ([]*IngestEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows pgx.Rows
	var err error
	if docID == "" {
		rows, err = s.db.Query(ctx, rebind(listEventsSQL), limit)
	} else {
		rows, err = s.db.Query(ctx, rebind(listDocEventsSQL), docID, limit)
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
func (s *PostgresStore) QueryCitations(ctx context.Context, chunkIDs []string) (map[string]Citation, error) {
	out := make(map[string]Citation, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}
	rows, err := s.db.Query(ctx, rebind(citationsSQLPrefix+citationPlaceholders(len(chunkIDs))+")"), args...)
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

// tsQuery ORs the quoted query terms for to_tsquery. Returns "" when nothing
// searchable remains.
func tsQuery(text string) string {
	terms := UniqueTokens(Tokenize(text))
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = "'" + strings.ReplaceAll(t, "'", "''") + "'"
	}
	return strings.Join(quoted, " | ")
}

// SearchLexical ranks chunks with ts_rank_cd over the generated tsvector.
func (s *PostgresStore) SearchLexical(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	q := tsQuery(query)
	if q == "" || limit <= 0 {
		return []LexicalHit{}, nil
	}
	rows, err := s.db.Query(ctx, pgLexicalSQL, q, limit)
	if err != nil {
		return nil, storeErr("lexical search", err)
	}
	defer rows.Close()

	hits := []LexicalHit{}
	for rows.Next() {
		var h LexicalHit
		var score float32
		if err := rows.Scan(&h.ChunkID, &score); err != nil {
			return nil, storeErr("scan lexical hit", err)
		}
		h.Score = float64(score)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchVector orders by pgvector cosine distance among rows of the query's width.
func (s *PostgresStore) SearchVector(ctx context.Context, vec []float32, limit int) ([]VectorHit, error) {
	if len(vec) == 0 || limit <= 0 {
		return []VectorHit{}, nil
	}
	rows, err := s.db.Query(ctx, pgVectorSQL, pgvector.NewVector(vec), len(vec), limit)
	if err != nil {
		return nil, storeErr("vector search", err)
	}
	defer rows.Close()

	hits := []VectorHit{}
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.ChunkID, &h.Similarity); err != nil {
			return nil, storeErr("scan vector hit", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// LoadCorpus returns all chunks with their vectors ordered by doc_id, idx.
func (s *PostgresStore) LoadCorpus(ctx context.Context) ([]CorpusChunk, error) {
	rows, err := s.db.Query(ctx, loadCorpusSQL)
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

// StreamChunks pages through chunks in chunk_id order.
func (s *PostgresStore) StreamChunks(ctx context.Context, batchSize int, fn func([]Chunk) error) error {
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

func (s *PostgresStore) chunkPage(ctx context.Context, after string, limit int) ([]Chunk, error) {
	rows, err := s.db.Query(ctx, rebind(streamChunksSQL), after, limit)
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
func (s *PostgresStore) ReplaceAllEmbeddings(ctx context.Context, embs []Embedding) error {
	return s.withTx(ctx, "write embeddings", func(tx pgx.Tx) error {
		return pgUpsertEmbeddings(ctx, tx, embs)
	})
}

// DeleteAllEmbeddings empties the embeddings table.
func (s *PostgresStore) DeleteAllEmbeddings(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, deleteEmbeddingsSQL)
	if err != nil {
		return 0, storeErr("delete embeddings", err)
	}
	return int(tag.RowsAffected()), nil
}

// EmbeddingStats reports the count and distinct dims of stored embeddings.
func (s *PostgresStore) EmbeddingStats(ctx context.Context) (*EmbeddingStats, error) {
	rows, err := s.db.Query(ctx, embeddingStatsSQL)
	if err != nil {
		return nil, storeErr("embedding stats", err)
	}
	defer rows.Close()

	stats := &EmbeddingStats{Dims: []int{}}
	for rows.Next() {
		var dim int
		var n int64
		if err := rows.Scan(&dim, &n); err != nil {
			return nil, storeErr("scan embedding stats", err)
		}
		stats.Count += int(n)
		stats.Dims = append(stats.Dims, dim)
	}
	return stats, rows.Err()
}

// GetState reads one state value.
func (s *PostgresStore) GetState(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(ctx, rebind(getStateSQL), key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get state", err)
	}
	return v, true, nil
}

// SetState writes all pairs atomically.
func (s *PostgresStore) SetState(ctx context.Context, kv map[string]string) error {
	return s.withTx(ctx, "set state", func(tx pgx.Tx) error {
		for k, v := range kv {
			if _, err := tx.Exec(ctx, rebind(setStateSQL), k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// MutationVersion returns the persistent mutation counter (0 when unset).
func (s *PostgresStore) MutationVersion(ctx context.Context) (int64, error) {
	v, ok, err := s.GetState(ctx, StateMutationVersion)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// BumpMutationVersion increments the counter and returns the new value.
func (s *PostgresStore) BumpMutationVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.withTx(ctx, "bump mutation version", func(tx pgx.Tx) error {
		var err error
		v, err = pgBump(ctx, tx)
		return err
	})
	return v, err
}

// StartRun inserts a running IngestionRun.
func (s *PostgresStore) StartRun(ctx context.Context, kind string) (*IngestionRun, error) {
	run := &IngestionRun{RunID: NewID(), Kind: kind, Status: RunRunning, StartedAt: nowUnix()}
	if _, err := s.db.Exec(ctx, rebind(insertRunSQL), runArgs(run)...); err != nil {
		return nil, storeErr("start run", err)
	}
	return run, nil
}

// FinishRun records the final counters and status.
func (s *PostgresStore) FinishRun(ctx context.Context, run *IngestionRun) error {
	if run.FinishedAt == 0 {
		run.FinishedAt = nowUnix()
	}
	_, err := s.db.Exec(ctx, rebind(finishRunSQL),
		run.Status, run.FinishedAt, run.DocsSeen, run.DocsChanged, run.DocsFailed, run.Error, run.RunID)
	if err != nil {
		return storeErr("finish run", err)
	}
	return nil
}

// Counts returns table sizes.
func (s *PostgresStore) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	if err := s.db.QueryRow(ctx, countsSQL).Scan(&c.Documents, &c.Chunks, &c.Embeddings, &c.Events, &c.Runs); err != nil {
		return nil, storeErr("counts", err)
	}
	return &c, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		if _, ok := amerrors.As(err); ok {
			return err
		}
		return storeErr(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr(op, err)
	}
	return nil
}
