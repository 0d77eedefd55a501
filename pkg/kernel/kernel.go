// Package kernel defines the abstract geometry kernel interface.
// Implementations (brep) provide the boundary-representation hierarchy
// behind these interfaces. The kernel abstraction allows swapping backends
// without changing the registry, the pipeline, or the builder.
package kernel

import (
	"fmt"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ShapeKind enumerates the B-rep shape kinds, ordered by rank: a kind only
// contains kinds of lower rank.
type ShapeKind int

const (
	KindVertex   ShapeKind = iota // point
	KindEdge                      // curve bounded by two vertices
	KindWire                      // ordered loop of edges
	KindFace                      // surface bounded by wires
	KindShell                     // connected set of faces
	KindSolid                     // volume bounded by shells
	KindCompound                  // aggregate of any shapes
)

func (k ShapeKind) String() string {
	switch k {
	case KindVertex:
		return "vertex"
	case KindEdge:
		return "edge"
	case KindWire:
		return "wire"
	case KindFace:
		return "face"
	case KindShell:
		return "shell"
	case KindSolid:
		return "solid"
	case KindCompound:
		return "compound"
	default:
		return "unknown"
	}
}

// ParseShapeKind converts a kind name ("vertex", "edge", ...) to a ShapeKind.
func ParseShapeKind(s string) (ShapeKind, error) {
	for k := KindVertex; k <= KindCompound; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("kernel: unknown shape kind %q", s)
}

// ShapeID is the identity key of a shape instance. It is assigned by the
// kernel when the shape is created and never reused, so two shapes with
// identical geometry but distinct instances have distinct IDs.
type ShapeID uint64

// Shape is an opaque handle to a kernel shape.
type Shape interface {
	ID() ShapeID
	Kind() ShapeKind

	// Children returns the immediate constituents: compound -> shapes,
	// solid -> shells, shell -> faces, face -> wires (outer first),
	// wire -> edges (in loop order), edge -> vertices (start, end).
	Children() []Shape

	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() sdf.Box3

	// Center returns the geometric center used by selection predicates.
	Center() v3.Vec
}

// Vertex is a point shape.
type Vertex interface {
	Shape
	Point() v3.Vec
}

// Edge is a curve shape between a start and an end vertex.
type Edge interface {
	Shape
	Start() Vertex
	End() Vertex
	Length() float64

	// PointAt evaluates the curve at normalized arc length t in [0, 1].
	PointAt(t float64) v3.Vec
}

// Wire is an ordered loop of edges.
type Wire interface {
	Shape
	Edges() []Edge
}

// Face is a bounded surface.
type Face interface {
	Shape
	OuterWire() Wire
	InnerWires() []Wire
	Area() float64
}
