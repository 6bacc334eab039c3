package embeddings

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func vectorLength(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	return math.Sqrt(sum)
}

func TestNormalizeL2(t *testing.T) {
	t.Run("scales to unit length", func(t *testing.T) {
		v := []float32{3, 4}
		NormalizeL2(v)

		assert.InDelta(t, 1.0, vectorLength(v), 1e-6)
		assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	})

	t.Run("unit vector is unchanged", func(t *testing.T) {
		v := []float32{1, 0, 0}
		NormalizeL2(v)

		assert.Equal(t, []float32{1, 0, 0}, v)
	})

	t.Run("zero vector stays zero", func(t *testing.T) {
		v := []float32{0, 0, 0}
		NormalizeL2(v)

		assert.Equal(t, []float32{0, 0, 0}, v)
	})

	t.Run("preserves direction for negative components", func(t *testing.T) {
		v := []float32{-3, 4}
		NormalizeL2(v)

		assert.InDelta(t, 1.0, vectorLength(v), 1e-6)
		assert.Negative(t, v[0])
	})
}
