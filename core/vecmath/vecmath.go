// Package vecmath provides the float32 vector kernels shared by the search,
// expansion, and routing layers. SIMD paths come from vek32; the wrappers add
// the dimension and zero-magnitude guards callers rely on.
package vecmath

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1].
// Mismatched dimensions or an all-zero vector yield 0 rather than NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	sim := float64(vek32.CosineSimilarity(a, b))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}

// Dot returns the dot product of a and b, or 0 on mismatched dimensions.
func Dot(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	return float64(vek32.Dot(a, b))
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return float64(vek32.Norm(v))
}
