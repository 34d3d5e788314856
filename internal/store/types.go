// Package store persists the corpus: documents, chunks, embeddings, the
// append-only ingest lineage, run ledger and key/value index state.
//
// Repository is the contract the pipeline, tracker and engine depend on.
// SQLiteStore (single embedded file) and PostgresStore (pgx pool with
// pgvector) both implement it.
package store

import (
	"context"
	"errors"
)

// ErrLexicalUnavailable is returned by SearchLexical when the backend has no
// native full-text index. Callers fall back to in-process scoring.
var ErrLexicalUnavailable = errors.New("native lexical search unavailable")

// ContentType describes how a document's text was produced.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentPDF     ContentType = "pdf"
	ContentTabular ContentType = "tabular"
)

// Metadata is the mutable, non-content part of a document.
type Metadata struct {
	Classification string   `json:"classification"`
	Retention      string   `json:"retention"`
	Tags           []string `json:"tags,omitempty"`
}

// Document is one ingested source.
type Document struct {
	DocID  string `json:"doc_id"`
	Title  string `json:"title"`
	Source string `json:"source"`
	Metadata

	ContentType   ContentType `json:"content_type"`
	ContentSHA256 string      `json:"content_sha256"`
	ContentBytes  int         `json:"content_bytes"`
	NumChunks     int         `json:"num_chunks"`
	DocVersion    int         `json:"doc_version"`
	CreatedAt     int64       `json:"created_at"`
	UpdatedAt     int64       `json:"updated_at"`

	// Content is the normalized text, kept so replay can re-drive ingest.
	Content string `json:"-"`
	// ContractDoc is the raw tabular contract, if any.
	ContractDoc []byte `json:"-"`
}

// Chunk is one retrievable passage.
type Chunk struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
	Idx     int    `json:"idx"`
	Text    string `json:"text"`
}

// Embedding is the vector for one chunk.
type Embedding struct {
	ChunkID string
	Dim     int
	Vec     []float32
}

// Validation status values recorded on events.
const (
	ValidationNone = ""
	ValidationPass = "pass"
	ValidationWarn = "warn"
	ValidationFail = "fail"
)

// IngestEvent is one append-only lineage record. Every ingest attempt
// appends exactly one, including failed attempts.
type IngestEvent struct {
	EventID           string `json:"event_id"`
	DocID             string `json:"doc_id"`
	DocVersion        int    `json:"doc_version"`
	IngestedAt        int64  `json:"ingested_at"`
	ContentSHA256     string `json:"content_sha256"`
	PrevContentSHA256 string `json:"prev_content_sha256"`
	Changed           bool   `json:"changed"`
	NumChunks         int    `json:"num_chunks"`

	EmbeddingsBackend string `json:"embeddings_backend"`
	EmbeddingsModel   string `json:"embeddings_model"`
	EmbeddingDim      int    `json:"embedding_dim"`
	ChunkSizeChars    int    `json:"chunk_size_chars"`
	ChunkOverlapChars int    `json:"chunk_overlap_chars"`

	SchemaFingerprint string `json:"schema_fingerprint"`
	ContractSHA256    string `json:"contract_sha256"`
	ValidationStatus  string `json:"validation_status"`
	ValidationErrors  string `json:"validation_errors"`
	SchemaDrifted     bool   `json:"schema_drifted"`

	RunID string `json:"run_id"`
	Notes string `json:"notes"`
}

// Run kinds.
const (
	RunKindIngest = "ingest"
	RunKindReplay = "replay"
	RunKindWatch  = "watch"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunPartial   = "partial"
)

// IngestionRun groups the events produced by one batch operation.
type IngestionRun struct {
	RunID       string `json:"run_id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	StartedAt   int64  `json:"started_at"`
	FinishedAt  int64  `json:"finished_at"`
	DocsSeen    int    `json:"docs_seen"`
	DocsChanged int    `json:"docs_changed"`
	DocsFailed  int    `json:"docs_failed"`
	Error       string `json:"error"`
}

// IngestBatch is everything IngestDocument commits in one transaction.
type IngestBatch struct {
	Document *Document
	// WriteChunks replaces the stored chunks and embeddings with Chunks and
	// Embeddings. When false only the document row and event are written.
	WriteChunks bool
	Chunks      []Chunk
	Embeddings  []Embedding
	Event       *IngestEvent

	// ExpectVersion makes the write conditional: the stored doc_version must
	// still equal ExpectedVersion (0 for a document that does not exist yet),
	// otherwise nothing is written and a version conflict is returned.
	ExpectVersion   bool
	ExpectedVersion int
}

// Citation is the document context attached to a retrieved chunk.
type Citation struct {
	DocID          string `json:"doc_id"`
	Title          string `json:"title"`
	Source         string `json:"source"`
	Classification string `json:"classification"`
	DocVersion     int    `json:"doc_version"`
}

// LexicalHit is a native full-text match. Higher Score is better.
type LexicalHit struct {
	ChunkID string
	Score   float64
}

// VectorHit is a native nearest-neighbour match with cosine similarity.
type VectorHit struct {
	ChunkID    string
	Similarity float64
}

// CorpusChunk is a chunk with its embedding, if any.
type CorpusChunk struct {
	Chunk
	Vec []float32
}

// Counts summarizes table sizes.
type Counts struct {
	Documents  int `json:"documents"`
	Chunks     int `json:"chunks"`
	Embeddings int `json:"embeddings"`
	Events     int `json:"events"`
	Runs       int `json:"runs"`
}

// EmbeddingStats describes the stored embedding rows.
type EmbeddingStats struct {
	Count int
	// Dims lists the distinct dimensions present, ascending.
	Dims []int
}

// State keys.
const (
	StateMutationVersion = "mutation_version"

	StateEmbeddingsBackend        = "embeddings_backend"
	StateEmbeddingsModel          = "embeddings_model"
	StateEmbeddingDim             = "embedding_dim"
	StateEmbedderAlgorithmVersion = "embedder_algorithm_version"
	StateChunkSizeChars           = "chunk_size_chars"
	StateChunkOverlapChars        = "chunk_overlap_chars"
)

// Repository is the persistence contract.
type Repository interface {
	// InitSchema creates tables idempotently.
	InitSchema(ctx context.Context) error

	// IngestDocument commits a document, its chunks, embeddings and event
	// atomically and bumps the mutation version.
	IngestDocument(ctx context.Context, batch *IngestBatch) error

	// GetDocument returns the document or (nil, nil) if absent.
	GetDocument(ctx context.Context, docID string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)

	// DeleteDoc removes a document with its chunks and embeddings. Events are kept.
	DeleteDoc(ctx context.Context, docID string) error
	UpdateMetadata(ctx context.Context, docID string, md Metadata) error

	// AppendEvent records an event without touching documents. It assigns
	// EventID and IngestedAt when unset.
	AppendEvent(ctx context.Context, ev *IngestEvent) error
	// LastEvent returns the newest event for docID or (nil, nil).
	LastEvent(ctx context.Context, docID string) (*IngestEvent, error)
	// ListEvents returns events newest first. Empty docID lists all.
	ListEvents(ctx context.Context, docID string, limit int) ([]*IngestEvent, error)

	// QueryCitations resolves chunk ids to document context.
	QueryCitations(ctx context.Context, chunkIDs []string) (map[string]Citation, error)

	SearchLexical(ctx context.Context, query string, limit int) ([]LexicalHit, error)
	SearchVector(ctx context.Context, vec []float32, limit int) ([]VectorHit, error)

	// LoadCorpus returns every chunk ordered by doc_id, idx.
	LoadCorpus(ctx context.Context) ([]CorpusChunk, error)
	// StreamChunks pages through all chunks in chunk_id order.
	StreamChunks(ctx context.Context, batchSize int, fn func([]Chunk) error) error
	// ReplaceAllEmbeddings writes a batch of embeddings, replacing rows for the same chunks.
	ReplaceAllEmbeddings(ctx context.Context, embs []Embedding) error
	DeleteAllEmbeddings(ctx context.Context) (int, error)
	EmbeddingStats(ctx context.Context) (*EmbeddingStats, error)

	GetState(ctx context.Context, key string) (string, bool, error)
	// SetState writes all pairs in one transaction.
	SetState(ctx context.Context, kv map[string]string) error
	MutationVersion(ctx context.Context) (int64, error)
	BumpMutationVersion(ctx context.Context) (int64, error)

	StartRun(ctx context.Context, kind string) (*IngestionRun, error)
	FinishRun(ctx context.Context, run *IngestionRun) error

	Counts(ctx context.Context) (*Counts, error)

	// Identity names the physical store, e.g. "sqlite:/abs/path".
	Identity() string
	Close() error
}
