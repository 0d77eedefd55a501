package brep

import (
	"fmt"

	"github.com/chazu/meshql/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Builder allocates shapes and their identities.
// A Builder is not safe for concurrent use.
type Builder struct {
	next  kernel.ShapeID
	lines map[[2]kernel.ShapeID]*Edge
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{lines: make(map[[2]kernel.ShapeID]*Edge)}
}

func (b *Builder) id() kernel.ShapeID {
	b.next++
	return b.next
}

// Vertex creates a new vertex. Two calls with the same point return two
// distinct vertices.
func (b *Builder) Vertex(p v3.Vec) *Vertex {
	return &Vertex{base: base{b.id()}, p: p}
}

// Line returns the straight edge from a to c. If an edge between the two
// vertex instances already exists, in either direction, it is returned
// unchanged so that adjacent faces share it.
func (b *Builder) Line(a, c *Vertex) *Edge {
	if e, ok := b.lines[[2]kernel.ShapeID{a.id, c.id}]; ok {
		return e
	}
	if e, ok := b.lines[[2]kernel.ShapeID{c.id, a.id}]; ok {
		return e
	}
	e := &Edge{base: base{b.id()}, start: a, end: c}
	b.lines[[2]kernel.ShapeID{a.id, c.id}] = e
	return e
}

// Wire creates a loop from edges given in traversal order.
func (b *Builder) Wire(edges ...*Edge) *Wire {
	return &Wire{base: base{b.id()}, edges: edges}
}

// Polygon creates the closed loop of straight edges through vs.
func (b *Builder) Polygon(vs ...*Vertex) (*Wire, error) {
	if len(vs) < 3 {
		return nil, fmt.Errorf("brep: polygon needs at least 3 vertices, got %d", len(vs))
	}
	edges := make([]*Edge, len(vs))
	for i := range vs {
		edges[i] = b.Line(vs[i], vs[(i+1)%len(vs)])
	}
	return b.Wire(edges...), nil
}

// Face creates a planar face bounded by outer, with optional holes.
func (b *Builder) Face(outer *Wire, inner ...*Wire) *Face {
	return &Face{base: base{b.id()}, outer: outer, inner: inner}
}

// Quad creates the four-sided face v0 -> v1 -> v2 -> v3.
func (b *Builder) Quad(v0, v1, v2, v3 *Vertex) *Face {
	w := b.Wire(b.Line(v0, v1), b.Line(v1, v2), b.Line(v2, v3), b.Line(v3, v0))
	return b.Face(w)
}

// Shell groups faces.
func (b *Builder) Shell(faces ...*Face) *Shell {
	return &Shell{base: base{b.id()}, faces: faces}
}

// Solid creates a solid bounded by shells.
func (b *Builder) Solid(shells ...*Shell) *Solid {
	return &Solid{base: base{b.id()}, shells: shells}
}

// Compound aggregates shapes.
func (b *Builder) Compound(shapes ...kernel.Shape) *Compound {
	return &Compound{base: base{b.id()}, shapes: shapes}
}
