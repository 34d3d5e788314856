package search

import (
	"math"

	"github.com/Aman-CERP/amanrag/internal/store"
)

// BM25 parameters.
const (
	BM25K1 = 1.2
	BM25B  = 0.75
)

// bm25Scorer is an in-memory inverted index over the cached corpus.
type bm25Scorer struct {
	postings map[string][]posting
	docLen   []int
	avgLen   float64
	n        int
}

type posting struct {
	pos int
	tf  int
}

func newBM25Scorer(texts []string) *bm25Scorer {
	s := &bm25Scorer{
		postings: make(map[string][]posting),
		docLen:   make([]int, len(texts)),
		n:        len(texts),
	}
	total := 0
	for pos, text := range texts {
		toks := store.Tokenize(text)
		s.docLen[pos] = len(toks)
		total += len(toks)

		tf := make(map[string]int, len(toks))
		for _, tok := range toks {
			tf[tok]++
		}
		for term, count := range tf {
			s.postings[term] = append(s.postings[term], posting{pos: pos, tf: count})
		}
	}
	if s.n > 0 {
		s.avgLen = float64(total) / float64(s.n)
	}
	return s
}

func (s *bm25Scorer) idf(df int) float64 {
	return math.Log(1 + (float64(s.n)-float64(df)+0.5)/(float64(df)+0.5))
}

// score returns the positive-scoring chunks for the query.
func (s *bm25Scorer) score(query string) []scored {
	acc := make(map[int]float64)
	for _, term := range store.UniqueTokens(store.Tokenize(query)) {
		plist := s.postings[term]
		if len(plist) == 0 {
			continue
		}
		idf := s.idf(len(plist))
		for _, p := range plist {
			norm := 1 - BM25B + BM25B*float64(s.docLen[p.pos])/max(s.avgLen, 1)
			tf := float64(p.tf)
			acc[p.pos] += idf * tf * (BM25K1 + 1) / (tf + BM25K1*norm)
		}
	}
	out := make([]scored, 0, len(acc))
	for pos, sc := range acc {
		if sc > 0 {
			out = append(out, scored{pos: pos, score: sc})
		}
	}
	return out
}

// overlapScores is |q ∩ d| / |q| over unique tokens.
func overlapScores(query string, tokens [][]string) []scored {
	q := store.UniqueTokens(store.Tokenize(query))
	if len(q) == 0 {
		return nil
	}
	var out []scored
	for pos, toks := range tokens {
		set := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			set[t] = struct{}{}
		}
		hits := 0
		for _, t := range q {
			if _, ok := set[t]; ok {
				hits++
			}
		}
		if hits > 0 {
			out = append(out, scored{pos: pos, score: float64(hits) / float64(len(q))})
		}
	}
	return out
}
