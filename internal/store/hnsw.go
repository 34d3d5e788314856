package store

import (
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// vectorGraph is an in-memory HNSW graph over the stored embeddings. It is
// rebuilt from scratch whenever the mutation version moves, so it never
// needs deletes (coder/hnsw misbehaves when removing the last node).
type vectorGraph struct {
	version int64
	dim     int
	graph   *hnsw.Graph[uint64]
	ids     []string
}

func newVectorGraph(version int64, embs []Embedding) *vectorGraph {
	g := &vectorGraph{version: version, graph: hnsw.NewGraph[uint64]()}
	g.graph.Distance = hnsw.CosineDistance
	g.graph.M = 16
	g.graph.EfSearch = 64
	g.graph.Ml = 0.25

	g.dim = dominantDim(embs)
	for _, e := range embs {
		if len(e.Vec) != g.dim {
			continue
		}
		vec := make([]float32, len(e.Vec))
		copy(vec, e.Vec)
		normalizeInPlace(vec)
		g.graph.Add(hnsw.MakeNode(uint64(len(g.ids)), vec))
		g.ids = append(g.ids, e.ChunkID)
	}
	return g
}

// search returns up to k neighbours as cosine similarities, best first.
func (g *vectorGraph) search(query []float32, k int) []VectorHit {
	if g.graph.Len() == 0 || len(query) != g.dim || k <= 0 {
		return []VectorHit{}
	}
	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	nodes := g.graph.Search(q, k)
	hits := make([]VectorHit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, VectorHit{
			ChunkID:    g.ids[n.Key],
			Similarity: 1 - float64(hnsw.CosineDistance(q, n.Value)),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	return hits
}

// dominantDim picks the most common dimension; ties go to the larger.
func dominantDim(embs []Embedding) int {
	counts := map[int]int{}
	best, bestN := 0, 0
	for _, e := range embs {
		counts[len(e.Vec)]++
	}
	for d, n := range counts {
		if n > bestN || (n == bestN && d > best) {
			best, bestN = d, n
		}
	}
	return best
}

func normalizeInPlace(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := float32(1 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= norm
	}
}

// graphCache holds the current graph for a store.
type graphCache struct {
	mu    sync.Mutex
	graph *vectorGraph
}

func (c *graphCache) get(version int64, load func() ([]Embedding, error)) (*vectorGraph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.graph != nil && c.graph.version == version {
		return c.graph, nil
	}
	embs, err := load()
	if err != nil {
		return nil, err
	}
	c.graph = newVectorGraph(version, embs)
	return c.graph, nil
}
