package search

import (
	"slices"
)

// scored is a chunk position in the cached corpus with a raw score.
type scored struct {
	pos   int
	score float64
}

// minMax rescales scores into [0, 1] in place. A non-empty set whose
// scores are all equal maps to 1.
func minMax(items []scored) {
	if len(items) == 0 {
		return
	}
	lo, hi := items[0].score, items[0].score
	for _, it := range items[1:] {
		lo = min(lo, it.score)
		hi = max(hi, it.score)
	}
	span := hi - lo
	for i := range items {
		if span == 0 {
			items[i].score = 1
			continue
		}
		items[i].score = (items[i].score - lo) / span
	}
}

// topN sorts by score descending, then corpus position (doc_id, idx order),
// and keeps the first n.
func topN(items []scored, n int) []scored {
	slices.SortFunc(items, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return a.pos - b.pos
	})
	if n >= 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

// toMap indexes scores by corpus position.
func toMap(items []scored) map[int]float64 {
	out := make(map[int]float64, len(items))
	for _, it := range items {
		out[it.pos] = it.score
	}
	return out
}
