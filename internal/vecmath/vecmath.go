// Package vecmath provides the vector primitives shared by the loom engine.
// Heavy lifting is delegated to gonum's floats package; the helpers here add
// the degenerate-input handling the engine relies on (zero vectors,
// mismatched lengths, the open unit ball).
package vecmath

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Norm returns the Euclidean norm of v.
func Norm(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

// Normalize rescales v in place to unit norm. Vectors whose norm is below
// epsilon are left unchanged. It reports whether v was rescaled.
func Normalize(v []float64, epsilon float64) bool {
	n := Norm(v)
	if n < epsilon || math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	floats.Scale(1/n, v)
	return true
}

// Dot returns the dot product of a and b, or 0 when the lengths differ.
func Dot(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return floats.Dot(a, b)
}

// CosineSimilarity returns the cosine of the angle between a and b.
// It returns 0 for empty, mismatched or zero-magnitude inputs.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Distance returns the Euclidean distance between a and b, or +Inf when
// the lengths differ.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, 2)
}

// ProjectToBall scales v back inside the ball of the given radius when its
// norm is at or beyond it. It reports whether a projection happened.
func ProjectToBall(v []float64, radius float64) bool {
	r := Norm(v)
	if r < radius {
		return false
	}
	floats.Scale(radius/r, v)
	return true
}

// ConformalFactor returns the Poincaré ball conformal factor 2/(1-r^2) for
// the point v. The radius is capped at maxRadius so the factor stays finite.
func ConformalFactor(v []float64, maxRadius float64) float64 {
	r := Norm(v)
	if r > maxRadius {
		r = maxRadius
	}
	return 2 / (1 - r*r)
}

// Clamp restricts x to [lo, hi]. NaN and infinities map to lo.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
