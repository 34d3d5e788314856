package index

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Signature is the set of settings that determine what the stored index
// contains. The first four fields shape embeddings; the chunk fields only
// shape future ingests.
type Signature struct {
	Backend          string `json:"embeddings_backend"`
	Model            string `json:"embeddings_model"`
	Dim              int    `json:"embedding_dim"`
	AlgorithmVersion int    `json:"embedder_algorithm_version"`
	ChunkSizeChars   int    `json:"chunk_size_chars"`
	ChunkOverlap     int    `json:"chunk_overlap_chars"`
}

// CurrentSignature describes the running embedder and chunk settings.
func CurrentSignature(e embed.Embedder, p chunk.Params) Signature {
	return Signature{
		Backend:          string(e.Backend()),
		Model:            e.ModelName(),
		Dim:              e.Dimensions(),
		AlgorithmVersion: e.AlgorithmVersion(),
		ChunkSizeChars:   p.SizeChars,
		ChunkOverlap:     p.OverlapChars,
	}
}

// EmbeddingEqual compares only the embedding-affecting fields.
func (s Signature) EmbeddingEqual(o Signature) bool {
	return s.Backend == o.Backend &&
		s.Model == o.Model &&
		s.Dim == o.Dim &&
		s.AlgorithmVersion == o.AlgorithmVersion
}

// ChunkingEqual compares only the chunk fields.
func (s Signature) ChunkingEqual(o Signature) bool {
	return s.ChunkSizeChars == o.ChunkSizeChars && s.ChunkOverlap == o.ChunkOverlap
}

// State renders the signature as state-table rows.
func (s Signature) State() map[string]string {
	return map[string]string{
		store.StateEmbeddingsBackend:        s.Backend,
		store.StateEmbeddingsModel:          s.Model,
		store.StateEmbeddingDim:             strconv.Itoa(s.Dim),
		store.StateEmbedderAlgorithmVersion: strconv.Itoa(s.AlgorithmVersion),
		store.StateChunkSizeChars:           strconv.Itoa(s.ChunkSizeChars),
		store.StateChunkOverlapChars:        strconv.Itoa(s.ChunkOverlap),
	}
}

// ReadSignature loads the stored signature. ok is false when none has been
// recorded yet (the backend key is the marker).
func ReadSignature(ctx context.Context, repo store.Repository) (sig Signature, ok bool, err error) {
	backend, ok, err := repo.GetState(ctx, store.StateEmbeddingsBackend)
	if err != nil || !ok {
		return Signature{}, false, err
	}
	sig.Backend = backend

	if sig.Model, _, err = repo.GetState(ctx, store.StateEmbeddingsModel); err != nil {
		return Signature{}, false, err
	}
	ints := []struct {
		key string
		dst *int
	}{
		{store.StateEmbeddingDim, &sig.Dim},
		{store.StateEmbedderAlgorithmVersion, &sig.AlgorithmVersion},
		{store.StateChunkSizeChars, &sig.ChunkSizeChars},
		{store.StateChunkOverlapChars, &sig.ChunkOverlap},
	}
	for _, f := range ints {
		raw, present, err := repo.GetState(ctx, f.key)
		if err != nil {
			return Signature{}, false, err
		}
		if !present || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			// A garbled value reads as zero, which forces a rebuild.
			continue
		}
		*f.dst = n
	}
	return sig, true, nil
}

func (s Signature) String() string {
	return fmt.Sprintf("%s/%s dim=%d v%d chunk=%d/%d",
		s.Backend, s.Model, s.Dim, s.AlgorithmVersion, s.ChunkSizeChars, s.ChunkOverlap)
}
