package preflight

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// CheckEmbedder pings the backend. Only model backends can be unreachable,
// and ingestion cannot proceed without them.
func (c *Checker) CheckEmbedder(ctx context.Context, e embed.Embedder) CheckResult {
	result := CheckResult{Name: "embedder", Required: e.Backend().IsModel()}
	desc := fmt.Sprintf("%s %s (%d dims)", e.Backend(), e.ModelName(), e.Dimensions())

	switch {
	case e.Backend() == embed.BackendDisabled:
		result.Status = StatusWarn
		result.Message = "disabled, retrieval is lexical only"
	case !e.Available(ctx):
		result.Status = StatusFail
		result.Message = desc + " is unreachable"
	default:
		result.Status = StatusPass
		result.Message = desc
	}
	return result
}

// CheckStore verifies the store answers queries.
func (c *Checker) CheckStore(ctx context.Context, repo store.Repository) CheckResult {
	result := CheckResult{Name: "store", Required: true}
	counts, err := repo.Counts(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s: %d documents, %d chunks, %d embeddings",
		repo.Identity(), counts.Documents, counts.Chunks, counts.Embeddings)
	return result
}

// CheckSignature compares the stored index signature with current and
// checks embedding rows cover every chunk. Problems are warnings because
// the next corpus command repairs them.
func (c *Checker) CheckSignature(ctx context.Context, repo store.Repository, current index.Signature) CheckResult {
	result := CheckResult{Name: "index_signature"}

	stored, ok, err := index.ReadSignature(ctx, repo)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	if !ok {
		result.Status = StatusPass
		result.Message = "not recorded yet"
		return result
	}
	if !stored.EmbeddingEqual(current) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("stored %s differs from %s; run 'amanrag reindex'", stored, current)
		return result
	}

	if current.Backend != string(embed.BackendDisabled) {
		counts, err := repo.Counts(ctx)
		if err != nil {
			result.Status = StatusFail
			result.Message = err.Error()
			return result
		}
		if counts.Embeddings != counts.Chunks {
			result.Status = StatusWarn
			result.Message = fmt.Sprintf("%d embeddings for %d chunks; run 'amanrag reindex'", counts.Embeddings, counts.Chunks)
			return result
		}
	}
	result.Status = StatusPass
	result.Message = stored.String()
	return result
}
