package search

import (
	"math"
)

// unit returns a unit-length copy of v, or nil for a zero vector.
func unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// cosineScan scores every row whose width matches q. Rows of another width
// are counted in skipped.
func cosineScan(q []float32, matrix [][]float32) (items []scored, skipped int) {
	items = make([]scored, 0, len(matrix))
	for pos, row := range matrix {
		if row == nil {
			continue
		}
		if len(row) != len(q) {
			skipped++
			continue
		}
		items = append(items, scored{pos: pos, score: dot(q, row)})
	}
	return items, skipped
}
