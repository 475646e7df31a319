// Package vector provides the float32 vector arithmetic shared by the
// retrieval ranker and the brute-force store backend. Both must agree on the
// similarity definition down to the edge cases.
package vector

import "math"

// Cosine returns the cosine similarity dot(a,b) / (||a|| * ||b||).
// A zero-norm operand yields 0, never NaN. Callers must ensure equal
// dimensionality; mismatched lengths are a programming error upstream and
// score over the shorter prefix here.
func Cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Normalize scales v to unit length in place and returns it. The zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := 1 / math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
