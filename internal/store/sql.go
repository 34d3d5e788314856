package store

import (
	"strconv"
	"strings"
)

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const documentColumns = `doc_id, title, source, classification, retention, tags, content_type,
	content_sha256, content_bytes, num_chunks, doc_version, created_at, updated_at, content, contract_doc`

const eventColumns = `event_id, doc_id, doc_version, ingested_at, content_sha256, prev_content_sha256,
	changed, num_chunks, embeddings_backend, embeddings_model, embedding_dim, chunk_size_chars,
	chunk_overlap_chars, schema_fingerprint, contract_sha256, validation_status, validation_errors,
	schema_drifted, run_id, notes`

const runColumns = `run_id, kind, status, started_at, finished_at, docs_seen, docs_changed, docs_failed, error`

const (
	upsertDocumentSQL = `INSERT INTO documents (` + documentColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (doc_id) DO UPDATE SET
		title = excluded.title, source = excluded.source,
		classification = excluded.classification, retention = excluded.retention,
		tags = excluded.tags, content_type = excluded.content_type,
		content_sha256 = excluded.content_sha256, content_bytes = excluded.content_bytes,
		num_chunks = excluded.num_chunks, doc_version = excluded.doc_version,
		updated_at = excluded.updated_at, content = excluded.content,
		contract_doc = excluded.contract_doc`

	insertEventSQL = `INSERT INTO ingest_events (` + eventColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectDocumentSQL = `SELECT ` + documentColumns + ` FROM documents WHERE doc_id = ?`
	listDocumentsSQL  = `SELECT ` + documentColumns + ` FROM documents ORDER BY doc_id`
	lastEventSQL      = `SELECT ` + eventColumns + ` FROM ingest_events WHERE doc_id = ? ORDER BY seq DESC LIMIT 1`
	listEventsSQL     = `SELECT ` + eventColumns + ` FROM ingest_events ORDER BY seq DESC LIMIT ?`
	listDocEventsSQL  = `SELECT ` + eventColumns + ` FROM ingest_events WHERE doc_id = ? ORDER BY seq DESC LIMIT ?`

	selectDocVersionSQL = `SELECT doc_version FROM documents WHERE doc_id = ?`

	deleteChunksSQL     = `DELETE FROM chunks WHERE doc_id = ?`
	deleteDocEmbSQL     = `DELETE FROM embeddings WHERE chunk_id IN (SELECT chunk_id FROM chunks WHERE doc_id = ?)`
	deleteDocumentSQL   = `DELETE FROM documents WHERE doc_id = ?`
	updateMetadataSQL   = `UPDATE documents SET classification = ?, retention = ?, tags = ?, updated_at = ? WHERE doc_id = ?`
	insertChunkSQL      = `INSERT INTO chunks (chunk_id, doc_id, idx, text) VALUES (?, ?, ?, ?)`
	streamChunksSQL     = `SELECT chunk_id, doc_id, idx, text FROM chunks WHERE chunk_id > ? ORDER BY chunk_id LIMIT ?`
	selectEmbeddingsSQL = `SELECT chunk_id, vec FROM embeddings`
	embeddingStatsSQL   = `SELECT dim, COUNT(*) FROM embeddings GROUP BY dim ORDER BY dim`
	deleteEmbeddingsSQL = `DELETE FROM embeddings`
	getStateSQL         = `SELECT value FROM state WHERE key = ?`
	setStateSQL         = `INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`

	insertRunSQL = `INSERT INTO ingestion_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	finishRunSQL = `UPDATE ingestion_runs SET status = ?, finished_at = ?, docs_seen = ?, docs_changed = ?,
	docs_failed = ?, error = ? WHERE run_id = ?`

	loadCorpusSQL = `SELECT c.chunk_id, c.doc_id, c.idx, c.text, e.vec
	FROM chunks c LEFT JOIN embeddings e ON e.chunk_id = c.chunk_id
	ORDER BY c.doc_id, c.idx`

	countsSQL = `SELECT
	(SELECT COUNT(*) FROM documents),
	(SELECT COUNT(*) FROM chunks),
	(SELECT COUNT(*) FROM embeddings),
	(SELECT COUNT(*) FROM ingest_events),
	(SELECT COUNT(*) FROM ingestion_runs)`
)

func documentArgs(d *Document) []any {
	return []any{
		d.DocID, d.Title, d.Source, d.Classification, d.Retention, encodeTags(d.Tags), string(d.ContentType),
		d.ContentSHA256, d.ContentBytes, d.NumChunks, d.DocVersion, d.CreatedAt, d.UpdatedAt, d.Content, d.ContractDoc,
	}
}

func scanDocument(s rowScanner) (*Document, error) {
	var d Document
	var tags, contentType string
	if err := s.Scan(&d.DocID, &d.Title, &d.Source, &d.Classification, &d.Retention, &tags, &contentType,
		&d.ContentSHA256, &d.ContentBytes, &d.NumChunks, &d.DocVersion, &d.CreatedAt, &d.UpdatedAt,
		&d.Content, &d.ContractDoc); err != nil {
		return nil, err
	}
	d.Tags = decodeTags(tags)
	d.ContentType = ContentType(contentType)
	if len(d.ContractDoc) == 0 {
		d.ContractDoc = nil
	}
	return &d, nil
}

func eventArgs(ev *IngestEvent) []any {
	return []any{
		ev.EventID, ev.DocID, ev.DocVersion, ev.IngestedAt, ev.ContentSHA256, ev.PrevContentSHA256,
		ev.Changed, ev.NumChunks, ev.EmbeddingsBackend, ev.EmbeddingsModel, ev.EmbeddingDim, ev.ChunkSizeChars,
		ev.ChunkOverlapChars, ev.SchemaFingerprint, ev.ContractSHA256, ev.ValidationStatus, ev.ValidationErrors,
		ev.SchemaDrifted, ev.RunID, ev.Notes,
	}
}

func scanEvent(s rowScanner) (*IngestEvent, error) {
	var ev IngestEvent
	if err := s.Scan(&ev.EventID, &ev.DocID, &ev.DocVersion, &ev.IngestedAt, &ev.ContentSHA256, &ev.PrevContentSHA256,
		&ev.Changed, &ev.NumChunks, &ev.EmbeddingsBackend, &ev.EmbeddingsModel, &ev.EmbeddingDim, &ev.ChunkSizeChars,
		&ev.ChunkOverlapChars, &ev.SchemaFingerprint, &ev.ContractSHA256, &ev.ValidationStatus, &ev.ValidationErrors,
		&ev.SchemaDrifted, &ev.RunID, &ev.Notes); err != nil {
		return nil, err
	}
	return &ev, nil
}

func runArgs(r *IngestionRun) []any {
	return []any{r.RunID, r.Kind, r.Status, r.StartedAt, r.FinishedAt, r.DocsSeen, r.DocsChanged, r.DocsFailed, r.Error}
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func citationPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const citationsSQLPrefix = `SELECT c.chunk_id, d.doc_id, d.title, d.source, d.classification, d.doc_version
	FROM chunks c JOIN documents d ON d.doc_id = c.doc_id
	WHERE c.chunk_id IN (`
