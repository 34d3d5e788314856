package search

// HybridWeights normalizes a lexical/vector weight pair to sum to 1.
// Negative inputs count as 0, an all-zero pair splits evenly, and a
// disabled vector signal gives all weight to lexical.
func HybridWeights(lexical, vector float64, vectorDisabled bool) (float64, float64) {
	if vectorDisabled {
		return 1, 0
	}
	lexical = max(lexical, 0)
	vector = max(vector, 0)
	sum := lexical + vector
	if sum == 0 {
		return 0.5, 0.5
	}
	return lexical / sum, vector / sum
}
