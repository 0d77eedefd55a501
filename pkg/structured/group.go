// Package structured computes the transfinite edge groups of quad faces
// and the growth ratios of structured boundary layers.
package structured

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/meshql/pkg/kernel"
)

var (
	// ErrUnsupportedFace is returned for faces whose boundary is not a
	// single loop of four edges.
	ErrUnsupportedFace = errors.New("structured: face is not four-sided")
	// ErrMissingElementCount is returned when a boundary layer targets an
	// edge that has no transfinite element count yet.
	ErrMissingElementCount = errors.New("structured: edge has no element count")
	// ErrNonPositiveCount is returned when allocation yields no elements.
	ErrNonPositiveCount = errors.New("structured: element count is not positive")
	// ErrUnresolvableRatio is returned when no growth ratio fits the edge.
	ErrUnresolvableRatio = errors.New("structured: growth ratio cannot be resolved")
)

// Group is a set of edges that must share one element count. Edges are kept
// in the order they were first reached.
type Group []kernel.Edge

// Length returns the summed length of the group's edges.
func (g Group) Length() float64 {
	var total float64
	for _, e := range g {
		total += e.Length()
	}
	return total
}

// Contains reports whether e is a member of g.
func (g Group) Contains(e kernel.Edge) bool {
	for _, m := range g {
		if m.ID() == e.ID() {
			return true
		}
	}
	return false
}

// OppositeEdges returns the boundary of f ordered head-to-tail, paired with
// the edge two positions further round the loop.
func OppositeEdges(f kernel.Face) ([][2]kernel.Edge, error) {
	if len(f.InnerWires()) > 0 {
		return nil, fmt.Errorf("%w: face %d has %d holes", ErrUnsupportedFace, f.ID(), len(f.InnerWires()))
	}
	sorted := kernel.SortByConnect(f.OuterWire().Edges())
	if len(sorted) != 4 {
		return nil, fmt.Errorf("%w: face %d has %d edges", ErrUnsupportedFace, f.ID(), len(sorted))
	}
	pairs := make([][2]kernel.Edge, len(sorted))
	for i, d := range sorted {
		pairs[i] = [2]kernel.Edge{d.Edge, sorted[(i+2)%len(sorted)].Edge}
	}
	return pairs, nil
}

// GroupEdges partitions the boundary edges of faces into transfinite
// groups. Opposite edges of a face share a group, and groups that meet
// through a shared edge are merged. Groups appear in the order they were
// started.
func GroupEdges(faces []kernel.Face) ([]Group, error) {
	var groups []Group
	owner := make(map[kernel.ShapeID]int)

	for _, f := range faces {
		pairs, err := OppositeEdges(f)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			a, aok := owner[p[0].ID()]
			b, bok := owner[p[1].ID()]
			switch {
			case !aok && !bok:
				groups = append(groups, Group{p[0]})
				owner[p[0].ID()] = len(groups) - 1
				if p[1].ID() != p[0].ID() {
					groups[len(groups)-1] = append(groups[len(groups)-1], p[1])
					owner[p[1].ID()] = len(groups) - 1
				}
			case aok && !bok:
				groups[a] = append(groups[a], p[1])
				owner[p[1].ID()] = a
			case !aok && bok:
				groups[b] = append(groups[b], p[0])
				owner[p[0].ID()] = b
			case a != b:
				keep, drop := min(a, b), max(a, b)
				for _, e := range groups[drop] {
					owner[e.ID()] = keep
				}
				groups[keep] = append(groups[keep], groups[drop]...)
				groups[drop] = nil
			}
		}
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	return out, nil
}

// EdgeElements returns the share of maxNodes owed to an edge of the given
// length within a group of total length, floored at minNodes.
func EdgeElements(length, total float64, maxNodes, minNodes int) int {
	n := minNodes
	if total > 0 {
		share := int(math.Ceil(length / total * float64(maxNodes)))
		n = max(share, minNodes)
	}
	return n
}

// AllocateElements returns the element count shared by every edge in g:
// the largest per-edge share of maxNodes, each floored at minNodes.
func AllocateElements(g Group, maxNodes, minNodes int) (int, error) {
	total := g.Length()
	best := 0
	for i, e := range g {
		n := EdgeElements(e.Length(), total, maxNodes, minNodes)
		if i == 0 || n > best {
			best = n
		}
	}
	if best <= 0 {
		return 0, fmt.Errorf("%w: %d edges with max %d, min %d (raise the maximum)",
			ErrNonPositiveCount, len(g), maxNodes, minNodes)
	}
	return best, nil
}
