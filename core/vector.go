package core

import "math"

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float64
	for _, val := range v {
		magnitude += float64(val) * float64(val)
	}
	magnitude = math.Sqrt(magnitude)

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// IsZeroVector reports whether v has no direction: empty, or every component zero.
// Such a vector normalizes to zeros and sits at distance 1 from every unit vector.
func IsZeroVector(v []float32) bool {
	for _, val := range v {
		if val != 0 {
			return false
		}
	}
	return true
}

// SquaredDistance returns the squared Euclidean distance between a and b.
// Vectors of different length are compared over the shorter prefix.
func SquaredDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// SimilarityScore maps the distance between two unit vectors onto [0,1]:
// 1 - |a-b|^2/2, which equals cosine similarity rescaled and clamped.
// The score depends only on the pair, never on other candidates.
func SimilarityScore(a, b []float32) float32 {
	score := 1 - SquaredDistance(a, b)/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return float32(score)
}
