package structured

import (
	"fmt"
	"math"

	"github.com/chazu/meshql/pkg/kernel"
)

const (
	ratioTolerance = 1e-12
	maxBisections  = 200
)

// VertexSet is a set of boundary vertices keyed by identity.
type VertexSet map[kernel.ShapeID]struct{}

// NewVertexSet returns the set of vs.
func NewVertexSet(vs []kernel.Vertex) VertexSet {
	set := make(VertexSet, len(vs))
	for _, v := range vs {
		set[v.ID()] = struct{}{}
	}
	return set
}

// Has reports whether v is in the set.
func (s VertexSet) Has(v kernel.Vertex) bool {
	_, ok := s[v.ID()]
	return ok
}

// Coefficient returns the signed growth coefficient of e for a layer
// growing away from boundary: +ratio when only the start vertex lies on the
// boundary, -ratio when only the end vertex does. Edges with both or
// neither endpoint on the boundary get no coefficient.
func Coefficient(e kernel.Edge, boundary VertexSet, ratio float64) (float64, bool) {
	start, end := boundary.Has(e.Start()), boundary.Has(e.End())
	switch {
	case start && !end:
		return ratio, true
	case end && !start:
		return -ratio, true
	default:
		return 0, false
	}
}

// progression returns size * (1 + r + ... + r^(n-1)).
func progression(size, r float64, n int) float64 {
	var sum float64
	term := size
	for range n {
		sum += term
		term *= r
	}
	return sum
}

// GrowthRatio returns the ratio r at which n segments, the first of the
// given size, sum to length:
//
//	length = size * (r^n - 1) / (r - 1)
//
// The root is found by bisection. A single segment, or n segments of
// exactly size, gives r = 1.
func GrowthRatio(length, size float64, n int) (float64, error) {
	if length <= 0 || size <= 0 || n < 1 {
		return 0, fmt.Errorf("%w: length %g, size %g, %d elements", ErrUnresolvableRatio, length, size, n)
	}
	if n == 1 || math.Abs(size*float64(n)-length) <= ratioTolerance*length {
		return 1, nil
	}
	if size >= length {
		return 0, fmt.Errorf("%w: first cell %g does not fit edge of length %g", ErrUnresolvableRatio, size, length)
	}

	lo, hi := 0.0, 1.0
	if size*float64(n) < length {
		lo = 1
		hi = 2
		for progression(size, hi, n) < length {
			lo = hi
			hi *= 2
			if math.IsInf(hi, 0) {
				return 0, fmt.Errorf("%w: no bracket for length %g", ErrUnresolvableRatio, length)
			}
		}
	}

	for range maxBisections {
		mid := (lo + hi) / 2
		if progression(size, mid, n) < length {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo <= ratioTolerance*hi {
			break
		}
	}
	return (lo + hi) / 2, nil
}
