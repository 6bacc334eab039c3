// Package embeddings provides small helpers for working with embedding vectors.
package embeddings

import "math"

// NormalizeL2 scales vector in place to unit length. A zero vector is left
// unchanged. Storing unit-length vectors makes similarity comparisons scale
// free regardless of the provider's output magnitude.
func NormalizeL2(vector []float32) {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}
