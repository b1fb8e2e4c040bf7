package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{
			name:     "unit vector remains unchanged",
			input:    []float32{1.0, 0.0, 0.0},
			expected: []float32{1.0, 0.0, 0.0},
		},
		{
			name:     "scale non-unit vector",
			input:    []float32{3.0, 4.0},
			expected: []float32{0.6, 0.8},
		},
		{
			name:     "negative values",
			input:    []float32{-1.0, 1.0},
			expected: []float32{-1.0 / float32(math.Sqrt(2)), 1.0 / float32(math.Sqrt(2))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeVector(tt.input)
			require.Len(t, result, len(tt.expected))
			for i := range result {
				assert.InDelta(t, tt.expected[i], result[i], 1e-6, "element %d", i)
			}
		})
	}
}

func TestNormalizeVector_ZeroVector(t *testing.T) {
	result := NormalizeVector([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, result)
}

func TestIsZeroVector(t *testing.T) {
	assert.True(t, IsZeroVector(nil))
	assert.True(t, IsZeroVector([]float32{0, 0, 0}))
	assert.False(t, IsZeroVector([]float32{0, 0, 0.001}))
	assert.False(t, IsZeroVector([]float32{-1, 0}))
}

func TestNormalizeVector_DoesNotModifyInput(t *testing.T) {
	input := []float32{3.0, 4.0}
	NormalizeVector(input)
	assert.Equal(t, []float32{3.0, 4.0}, input)
}

func TestSimilarityScore(t *testing.T) {
	a := []float32{1, 0}

	assert.InDelta(t, 1.0, SimilarityScore(a, []float32{1, 0}), 1e-6, "identical")
	assert.InDelta(t, 0.5, SimilarityScore(a, []float32{0, 1}), 1e-6, "orthogonal")
	assert.InDelta(t, 0.0, SimilarityScore(a, []float32{-1, 0}), 1e-6, "opposite")

	// Equivalent to cosine rescaled to [0,1]
	b := NormalizeVector([]float32{1, 1})
	cos := float64(a[0]*b[0] + a[1]*b[1])
	assert.InDelta(t, (1+cos)/2, SimilarityScore(a, b), 1e-6)
}

func TestSimilarityScore_MonotonicInDistance(t *testing.T) {
	q := NormalizeVector([]float32{1, 0, 0})
	near := NormalizeVector([]float32{1, 0.2, 0})
	far := NormalizeVector([]float32{1, 2, 0})

	require.Less(t, SquaredDistance(q, near), SquaredDistance(q, far))
	assert.Greater(t, SimilarityScore(q, near), SimilarityScore(q, far))
}
