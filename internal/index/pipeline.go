// Package index owns every write to the corpus: document ingestion with
// lineage, deletes and metadata updates, replay, file extraction, and the
// signature tracker that keeps stored embeddings consistent with the
// running embedder.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/contract"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Notes recorded on events that are not plain ingests.
const (
	NoteForcedReprocess = "forced reprocess"
	NoteMetadataUpdated = "metadata updated"
)

// IngestRequest is one document submitted for ingestion.
type IngestRequest struct {
	Title       string
	Source      string
	Content     string
	ContentType store.ContentType
	Metadata    store.Metadata
	// Contract is an optional tabular contract (YAML or JSON).
	Contract []byte
	// Force rewrites chunks and embeddings even when content is unchanged.
	Force bool
	RunID string
}

// IngestResult describes what an ingest committed.
type IngestResult struct {
	DocID         string `json:"doc_id"`
	DocVersion    int    `json:"doc_version"`
	Changed       bool   `json:"changed"`
	NumChunks     int    `json:"num_chunks"`
	EmbeddingDim  int    `json:"embedding_dim"`
	ContentSHA256 string `json:"content_sha256"`
	EventID       string `json:"event_id"`
	SchemaDrifted bool   `json:"schema_drifted,omitempty"`

	Validation *contract.Result `json:"-"`
}

// Pipeline ingests documents. It is safe for concurrent use; ingests of the
// same document serialize and different documents proceed in parallel.
type Pipeline struct {
	repo     store.Repository
	embedder embed.Embedder
	params   chunk.Params
	lock     *CorpusLock
	docs     *keyedMutex
	logger   *slog.Logger

	maxContractBytes int

	// signed is set once the store is known to carry an index signature.
	signed atomic.Bool

	hookMu sync.RWMutex
	hooks  []func()
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithMaxContractBytes bounds contract documents.
func WithMaxContractBytes(n int) PipelineOption {
	return func(p *Pipeline) { p.maxContractBytes = n }
}

// NewPipeline validates chunk params and builds a pipeline. lock is shared
// with the Tracker so rebuilds exclude ingestion.
func NewPipeline(repo store.Repository, e embed.Embedder, params chunk.Params, lock *CorpusLock, opts ...PipelineOption) (*Pipeline, error) {
	if err := chunk.ValidateParams(params.SizeChars, params.OverlapChars); err != nil {
		return nil, err
	}
	if lock == nil {
		lock = NewCorpusLock("")
	}
	p := &Pipeline{
		repo:             repo,
		embedder:         e,
		params:           params,
		lock:             lock,
		docs:             newKeyedMutex(),
		logger:           slog.Default(),
		maxContractBytes: contract.DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// OnMutation registers fn to run after every committed mutation.
func (p *Pipeline) OnMutation(fn func()) {
	p.hookMu.Lock()
	p.hooks = append(p.hooks, fn)
	p.hookMu.Unlock()
}

func (p *Pipeline) notify() {
	p.hookMu.RLock()
	defer p.hookMu.RUnlock()
	for _, fn := range p.hooks {
		fn()
	}
}

// Repository returns the underlying store.
func (p *Pipeline) Repository() store.Repository { return p.repo }

// Ingest validates, chunks, embeds and commits one document. Every attempt
// past input validation appends an ingest event, including failures.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	md, err := NormalizeMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, amerrors.ValidationError("title", "must not be empty")
	}
	content := NormalizeContent(req.Content)
	if content == "" {
		return nil, amerrors.ContentError("document has no extractable text").
			WithDetail("source", req.Source)
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = store.ContentText
	}

	if err := p.lock.RLock(ctx); err != nil {
		return nil, err
	}
	defer p.lock.RUnlock()

	docID := DocID(req.Title, req.Source)
	unlock := p.docs.Lock(docID)
	defer unlock()

	sha := ContentSHA256(content)
	sig := CurrentSignature(p.embedder, p.params)
	for try := 1; ; try++ {
		a := &attempt{
			p:           p,
			req:         req,
			md:          md,
			docID:       docID,
			content:     content,
			contentType: contentType,
			sha:         sha,
			sig:         sig,
			final:       try == maxVersionRetries,
		}
		res, err := a.run(ctx)
		if !store.IsVersionConflict(err) || a.final {
			return res, err
		}
		p.logger.Info("ingest_version_conflict",
			slog.String("doc_id", docID),
			slog.Int("attempt", try))
	}
}

// maxVersionRetries bounds re-reads after another process wrote the same
// document between our read and our commit.
const maxVersionRetries = 3

// attempt carries the state of a single ingest under the document lock.
type attempt struct {
	p           *Pipeline
	req         IngestRequest
	md          store.Metadata
	docID       string
	content     string
	contentType store.ContentType
	sha         string
	sig         Signature

	// final attempts record a version conflict as a failure instead of
	// handing it back for a retry.
	final bool

	prev        *store.Document
	validation  *contract.Result
	contractSHA string
	drifted     bool
}

func (a *attempt) run(ctx context.Context) (*IngestResult, error) {
	repo := a.p.repo
	prev, err := repo.GetDocument(ctx, a.docID)
	if err != nil {
		return nil, err
	}
	a.prev = prev

	if prev != nil && prev.ContentSHA256 == a.sha && !a.req.Force {
		return a.unchanged(ctx)
	}

	text := a.content
	if a.contentType == store.ContentTabular {
		text, err = a.validateTabular(ctx)
		if err != nil {
			return nil, err
		}
	}

	chunks := a.p.params.Split(text)
	if len(chunks) == 0 {
		return nil, a.fail(ctx, amerrors.ContentError("document produced no chunks"))
	}

	vecs, err := a.embed(ctx, chunks)
	if err != nil {
		return nil, a.fail(ctx, err)
	}

	return a.commit(ctx, chunks, vecs)
}

func (a *attempt) baseEvent() *store.IngestEvent {
	ev := &store.IngestEvent{
		DocID:             a.docID,
		ContentSHA256:     a.sha,
		EmbeddingsBackend: a.sig.Backend,
		EmbeddingsModel:   a.sig.Model,
		EmbeddingDim:      a.sig.Dim,
		ChunkSizeChars:    a.sig.ChunkSizeChars,
		ChunkOverlapChars: a.sig.ChunkOverlap,
		ContractSHA256:    a.contractSHA,
		SchemaDrifted:     a.drifted,
		RunID:             a.req.RunID,
	}
	if a.prev != nil {
		ev.DocVersion = a.prev.DocVersion
		ev.PrevContentSHA256 = a.prev.ContentSHA256
		ev.NumChunks = a.prev.NumChunks
	}
	if a.validation != nil {
		ev.SchemaFingerprint = a.validation.Fingerprint
		ev.ValidationStatus = string(a.validation.Status)
		ev.ValidationErrors = strings.Join(a.validation.Messages(), "; ")
	}
	return ev
}

func (a *attempt) unchanged(ctx context.Context) (*IngestResult, error) {
	repo := a.p.repo
	ev := a.baseEvent()
	ev.SchemaFingerprint = a.lastFingerprint(ctx)

	if !metadataEqual(a.prev.Metadata, a.md) {
		if err := repo.UpdateMetadata(ctx, a.docID, a.md); err != nil {
			return nil, err
		}
		ev.Notes = NoteMetadataUpdated
		defer a.p.notify()
	}
	if err := repo.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	a.p.logger.Debug("ingest_unchanged",
		slog.String("doc_id", a.docID),
		slog.Int("doc_version", a.prev.DocVersion))
	return &IngestResult{
		DocID:         a.docID,
		DocVersion:    a.prev.DocVersion,
		Changed:       false,
		NumChunks:     a.prev.NumChunks,
		EmbeddingDim:  a.sig.Dim,
		ContentSHA256: a.sha,
		EventID:       ev.EventID,
	}, nil
}

// validateTabular parses the table and optional contract and returns the
// text to chunk. Failures are recorded before returning.
func (a *attempt) validateTabular(ctx context.Context) (string, error) {
	var c *contract.Contract
	if len(a.req.Contract) > 0 {
		a.contractSHA = contract.SHA256(a.req.Contract)
		parsed, err := contract.Parse(a.req.Contract, a.p.maxContractBytes)
		if err != nil {
			return "", a.fail(ctx, err)
		}
		c = parsed
	}

	snap, err := contract.ReadDelimited(strings.NewReader(a.content), sniffDelimiter(a.content))
	if err != nil {
		return "", a.fail(ctx, err)
	}

	a.validation = contract.Validate(snap, c)
	if prev := a.lastFingerprint(ctx); prev != "" && prev != a.validation.Fingerprint {
		a.drifted = true
		a.p.logger.Info("schema_drift_detected",
			slog.String("doc_id", a.docID),
			slog.String("previous", prev),
			slog.String("current", a.validation.Fingerprint))
	}

	if err := a.validation.Err(); err != nil {
		return "", a.fail(ctx, err)
	}
	return snap.Text(), nil
}

// fingerprintLookback bounds the event history searched for a fingerprint.
const fingerprintLookback = 100

// lastFingerprint returns the newest schema fingerprint recorded for the
// document. Failed attempts that never parsed the table carry none and are
// skipped. A history read error is logged and treated as no history.
func (a *attempt) lastFingerprint(ctx context.Context) string {
	events, err := a.p.repo.ListEvents(ctx, a.docID, fingerprintLookback)
	if err != nil {
		a.p.logger.Warn("ingest_event_history_failed",
			slog.String("doc_id", a.docID),
			slog.String("error", err.Error()))
		return ""
	}
	for _, ev := range events {
		if ev.SchemaFingerprint != "" {
			return ev.SchemaFingerprint
		}
	}
	return ""
}

// sniffDelimiter picks tab when the header row has tabs and no commas.
func sniffDelimiter(content string) rune {
	header, _, _ := strings.Cut(content, "\n")
	if strings.Contains(header, "\t") && !strings.Contains(header, ",") {
		return '\t'
	}
	return ','
}

func (a *attempt) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vecs, err := a.p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		if _, ok := amerrors.As(err); !ok {
			err = amerrors.TransientError("embedding failed", err)
		}
		return nil, err
	}
	if len(vecs) != len(chunks) {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks)), nil)
	}
	for _, v := range vecs {
		if len(v) != a.sig.Dim {
			return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("embedder returned dim %d, expected %d", len(v), a.sig.Dim), nil)
		}
	}
	return vecs, nil
}

// fail records a failure event and returns cause annotated with its ids.
// The document and its version are left untouched.
func (a *attempt) fail(ctx context.Context, cause error) error {
	ev := a.baseEvent()
	ev.Changed = false
	ev.Notes = amerrors.LineageNote(cause)
	if a.validation == nil && amerrors.GetCategory(cause) == amerrors.CategoryValidation {
		ev.ValidationStatus = store.ValidationFail
		ev.ValidationErrors = errorMessage(cause)
	}

	ae, ok := amerrors.As(cause)
	if !ok {
		ae = amerrors.Wrap(amerrors.ErrCodeInternal, cause)
	}
	if err := a.p.repo.AppendEvent(ctx, ev); err != nil {
		a.p.logger.Error("ingest_event_write_failed",
			slog.String("doc_id", a.docID),
			slog.String("error", err.Error()))
	} else {
		ae.WithDetail("event_id", ev.EventID)
	}
	if a.req.RunID != "" {
		ae.WithDetail("run_id", a.req.RunID)
	}
	ae.WithDetail("doc_id", a.docID)

	a.p.logger.Warn("ingest_failed",
		slog.String("doc_id", a.docID),
		slog.String("code", ae.Code),
		slog.String("error", ae.Message))
	return ae
}

func errorMessage(err error) string {
	if ae, ok := amerrors.As(err); ok {
		return ae.Message
	}
	return err.Error()
}

func (a *attempt) commit(ctx context.Context, texts []string, vecs [][]float32) (*IngestResult, error) {
	now := time.Now().Unix()
	changed := a.prev == nil || a.prev.ContentSHA256 != a.sha

	doc := &store.Document{
		DocID:         a.docID,
		Title:         strings.TrimSpace(a.req.Title),
		Source:        strings.TrimSpace(a.req.Source),
		Metadata:      a.md,
		ContentType:   a.contentType,
		ContentSHA256: a.sha,
		ContentBytes:  len(a.content),
		NumChunks:     len(texts),
		DocVersion:    1,
		CreatedAt:     now,
		UpdatedAt:     now,
		Content:       a.content,
		ContractDoc:   a.req.Contract,
	}
	if a.prev != nil {
		doc.CreatedAt = a.prev.CreatedAt
		doc.DocVersion = a.prev.DocVersion
		if changed {
			doc.DocVersion++
		}
	}

	chunks := make([]store.Chunk, len(texts))
	embs := make([]store.Embedding, 0, len(texts))
	for i, text := range texts {
		id := ChunkID(a.docID, i)
		chunks[i] = store.Chunk{ChunkID: id, DocID: a.docID, Idx: i, Text: text}
		if a.sig.Backend != string(embed.BackendDisabled) {
			embs = append(embs, store.Embedding{ChunkID: id, Dim: len(vecs[i]), Vec: vecs[i]})
		}
	}

	ev := a.baseEvent()
	ev.DocVersion = doc.DocVersion
	ev.Changed = changed
	ev.NumChunks = len(texts)
	if !changed {
		ev.Notes = NoteForcedReprocess
	}

	err := a.p.repo.IngestDocument(ctx, &store.IngestBatch{
		Document:    doc,
		WriteChunks: true,
		Chunks:      chunks,
		Embeddings:  embs,
		Event:       ev,

		ExpectVersion:   true,
		ExpectedVersion: a.expectedVersion(),
	})
	if store.IsVersionConflict(err) && !a.final {
		return nil, err
	}
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.p.recordSignature(ctx, a.sig)
	a.p.notify()

	a.p.logger.Info("ingest_committed",
		slog.String("doc_id", a.docID),
		slog.Int("doc_version", doc.DocVersion),
		slog.Bool("changed", changed),
		slog.Int("chunks", len(texts)))

	return &IngestResult{
		DocID:         a.docID,
		DocVersion:    doc.DocVersion,
		Changed:       changed,
		NumChunks:     len(texts),
		EmbeddingDim:  a.sig.Dim,
		ContentSHA256: a.sha,
		EventID:       ev.EventID,
		SchemaDrifted: a.drifted,
		Validation:    a.validation,
	}, nil
}

// recordSignature stores sig when the corpus has none yet, so the first
// embedded document pins the signature its vectors were built with. The
// document is already committed, so failures are only logged.
func (p *Pipeline) recordSignature(ctx context.Context, sig Signature) {
	if p.signed.Load() {
		return
	}
	_, ok, err := ReadSignature(ctx, p.repo)
	if err == nil && !ok {
		if err = p.repo.SetState(ctx, sig.State()); err == nil {
			p.logger.Info("index_signature_recorded", slog.String("signature", sig.String()))
		}
	}
	if err != nil {
		p.logger.Warn("index_signature_record_failed", slog.String("error", err.Error()))
		return
	}
	p.signed.Store(true)
}

// expectedVersion is the stored doc_version this attempt was based on.
func (a *attempt) expectedVersion() int {
	if a.prev == nil {
		return 0
	}
	return a.prev.DocVersion
}

// Delete removes a document with its chunks and embeddings. Lineage is kept.
func (p *Pipeline) Delete(ctx context.Context, docID string) error {
	if err := p.lock.RLock(ctx); err != nil {
		return err
	}
	defer p.lock.RUnlock()

	unlock := p.docs.Lock(docID)
	defer unlock()

	if err := p.repo.DeleteDoc(ctx, docID); err != nil {
		return err
	}
	p.notify()
	p.logger.Info("document_deleted", slog.String("doc_id", docID))
	return nil
}

// UpdateMetadata validates and replaces a document's metadata.
func (p *Pipeline) UpdateMetadata(ctx context.Context, docID string, md store.Metadata) error {
	normalized, err := NormalizeMetadata(md)
	if err != nil {
		return err
	}
	if err := p.lock.RLock(ctx); err != nil {
		return err
	}
	defer p.lock.RUnlock()

	unlock := p.docs.Lock(docID)
	defer unlock()

	if err := p.repo.UpdateMetadata(ctx, docID, normalized); err != nil {
		return err
	}
	p.notify()
	return nil
}
