package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/store"
)

func TestHybridWeights(t *testing.T) {
	tests := []struct {
		name         string
		l, v         float64
		disabled     bool
		wantL, wantV float64
	}{
		{"proportional", 3, 1, false, 0.75, 0.25},
		{"both zero", 0, 0, false, 0.5, 0.5},
		{"negative clamps", -2, 1, false, 0, 1},
		{"both negative", -1, -1, false, 0.5, 0.5},
		{"disabled", 0.2, 0.8, true, 1, 0},
		{"equal", 0.5, 0.5, false, 0.5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, v := HybridWeights(tt.l, tt.v, tt.disabled)
			assert.InDelta(t, tt.wantL, l, 1e-12)
			assert.InDelta(t, tt.wantV, v, 1e-12)
			assert.InDelta(t, 1.0, l+v, 1e-12)
		})
	}
}

func TestMinMax(t *testing.T) {
	empty := []scored{}
	minMax(empty)
	assert.Empty(t, empty)

	equal := []scored{{0, 3}, {1, 3}}
	minMax(equal)
	assert.Equal(t, []scored{{0, 1}, {1, 1}}, equal)

	spread := []scored{{0, -1}, {1, 0}, {2, 3}}
	minMax(spread)
	assert.Equal(t, []scored{{0, 0}, {1, 0.25}, {2, 1}}, spread)
}

func TestTopN_OrdersByScoreThenPosition(t *testing.T) {
	items := []scored{{4, 0.5}, {1, 0.9}, {3, 0.5}, {0, 0.1}}

	got := topN(items, 3)

	assert.Equal(t, []scored{{1, 0.9}, {3, 0.5}, {4, 0.5}}, got)
}

func TestBM25_PrefersRareTermsAndShortDocs(t *testing.T) {
	s := newBM25Scorer([]string{
		"energy energy energy grid",
		"energy storage battery",
		"energy",
		"unrelated text here",
	})

	byPos := toMap(s.score("battery"))
	require.Len(t, byPos, 1)
	assert.Contains(t, byPos, 1)

	energy := toMap(s.score("energy"))
	assert.Len(t, energy, 3)
	assert.Greater(t, energy[2], energy[1])

	mixed := toMap(s.score("energy battery"))
	assert.Greater(t, mixed[1], mixed[0])
}

func TestOverlapScores(t *testing.T) {
	tokens := [][]string{
		store.Tokenize("solar panels on roofs"),
		store.Tokenize("wind turbines"),
	}

	got := toMap(overlapScores("solar wind power", tokens))

	assert.InDelta(t, 1.0/3, got[0], 1e-12)
	assert.InDelta(t, 1.0/3, got[1], 1e-12)
	assert.Empty(t, overlapScores("the of", tokens))
}

func TestCosineScan_SkipsMismatchedRows(t *testing.T) {
	q := unit([]float32{1, 0})
	matrix := [][]float32{unit([]float32{1, 0}), nil, unit([]float32{0, 1}), {1, 0, 0}}

	items, skipped := cosineScan(q, matrix)

	assert.Equal(t, 1, skipped)
	assert.Equal(t, []scored{{0, 1}, {2, 0}}, items)
}
