// Package brep implements the kernel interfaces with an in-memory,
// straight-edged boundary representation. Coordinates and bounds use the
// github.com/deadsy/sdfx vector and box types.
//
// Identity is per instance: every shape gets a fresh kernel.ShapeID from its
// Builder. Topological sharing is explicit: faces built from the same
// vertex instances share the straight edge between them.
package brep

import (
	"math"

	"github.com/chazu/meshql/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface checks.
var (
	_ kernel.Vertex = (*Vertex)(nil)
	_ kernel.Edge   = (*Edge)(nil)
	_ kernel.Wire   = (*Wire)(nil)
	_ kernel.Face   = (*Face)(nil)
	_ kernel.Shape  = (*Shell)(nil)
	_ kernel.Shape  = (*Solid)(nil)
	_ kernel.Shape  = (*Compound)(nil)
)

type base struct {
	id kernel.ShapeID
}

// ID returns the instance identity.
func (b base) ID() kernel.ShapeID { return b.id }

// ---------------------------------------------------------------------------
// Vertex
// ---------------------------------------------------------------------------

// Vertex is a point.
type Vertex struct {
	base
	p v3.Vec
}

func (v *Vertex) Kind() kernel.ShapeKind  { return kernel.KindVertex }
func (v *Vertex) Children() []kernel.Shape { return nil }
func (v *Vertex) BoundingBox() sdf.Box3    { return bounds(v.p) }
func (v *Vertex) Center() v3.Vec           { return v.p }

// Point returns the vertex position.
func (v *Vertex) Point() v3.Vec { return v.p }

// ---------------------------------------------------------------------------
// Edge
// ---------------------------------------------------------------------------

// Edge is a straight segment from start to end.
type Edge struct {
	base
	start, end *Vertex
}

func (e *Edge) Kind() kernel.ShapeKind { return kernel.KindEdge }

// Children returns the start and end vertices.
func (e *Edge) Children() []kernel.Shape {
	if e.start == e.end {
		return []kernel.Shape{e.start}
	}
	return []kernel.Shape{e.start, e.end}
}

func (e *Edge) BoundingBox() sdf.Box3 { return bounds(e.start.p, e.end.p) }
func (e *Edge) Center() v3.Vec        { return e.PointAt(0.5) }
func (e *Edge) Start() kernel.Vertex  { return e.start }
func (e *Edge) End() kernel.Vertex    { return e.end }

// Length returns the segment length.
func (e *Edge) Length() float64 {
	return e.end.p.Sub(e.start.p).Length()
}

// PointAt interpolates linearly between start (t=0) and end (t=1).
func (e *Edge) PointAt(t float64) v3.Vec {
	return e.start.p.Add(e.end.p.Sub(e.start.p).MulScalar(t))
}

// ---------------------------------------------------------------------------
// Wire
// ---------------------------------------------------------------------------

// Wire is an ordered loop of edges.
type Wire struct {
	base
	edges []*Edge
}

func (w *Wire) Kind() kernel.ShapeKind { return kernel.KindWire }

func (w *Wire) Children() []kernel.Shape {
	out := make([]kernel.Shape, len(w.edges))
	for i, e := range w.edges {
		out[i] = e
	}
	return out
}

func (w *Wire) Edges() []kernel.Edge {
	out := make([]kernel.Edge, len(w.edges))
	for i, e := range w.edges {
		out[i] = e
	}
	return out
}

func (w *Wire) BoundingBox() sdf.Box3 { return bounds(w.loop()...) }

// Center returns the average of the loop's vertex positions.
func (w *Wire) Center() v3.Vec { return average(w.loop()) }

// loop returns the vertex positions in traversal order.
func (w *Wire) loop() []v3.Vec {
	sorted := kernel.SortByConnect(w.Edges())
	pts := make([]v3.Vec, len(sorted))
	for i, d := range sorted {
		pts[i] = d.Head().Point()
	}
	return pts
}

// ---------------------------------------------------------------------------
// Face
// ---------------------------------------------------------------------------

// Face is a planar region bounded by an outer wire and optional holes.
type Face struct {
	base
	outer *Wire
	inner []*Wire
}

func (f *Face) Kind() kernel.ShapeKind { return kernel.KindFace }

func (f *Face) Children() []kernel.Shape {
	out := []kernel.Shape{f.outer}
	for _, w := range f.inner {
		out = append(out, w)
	}
	return out
}

func (f *Face) BoundingBox() sdf.Box3 { return f.outer.BoundingBox() }
func (f *Face) Center() v3.Vec        { return f.outer.Center() }
func (f *Face) OuterWire() kernel.Wire { return f.outer }

func (f *Face) InnerWires() []kernel.Wire {
	out := make([]kernel.Wire, len(f.inner))
	for i, w := range f.inner {
		out[i] = w
	}
	return out
}

// Area returns the outer polygon area minus the hole areas.
func (f *Face) Area() float64 {
	a := polygonArea(f.outer.loop())
	for _, w := range f.inner {
		a -= polygonArea(w.loop())
	}
	return a
}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

// Shell is a connected set of faces.
type Shell struct {
	base
	faces []*Face
}

func (s *Shell) Kind() kernel.ShapeKind { return kernel.KindShell }

func (s *Shell) Children() []kernel.Shape {
	out := make([]kernel.Shape, len(s.faces))
	for i, f := range s.faces {
		out[i] = f
	}
	return out
}

func (s *Shell) BoundingBox() sdf.Box3 { return unionBounds(s.Children()) }
func (s *Shell) Center() v3.Vec        { return boxCenter(s.BoundingBox()) }

// Solid is a volume bounded by shells.
type Solid struct {
	base
	shells []*Shell
}

func (s *Solid) Kind() kernel.ShapeKind { return kernel.KindSolid }

func (s *Solid) Children() []kernel.Shape {
	out := make([]kernel.Shape, len(s.shells))
	for i, sh := range s.shells {
		out[i] = sh
	}
	return out
}

func (s *Solid) BoundingBox() sdf.Box3 { return unionBounds(s.Children()) }
func (s *Solid) Center() v3.Vec        { return boxCenter(s.BoundingBox()) }

// Compound aggregates arbitrary shapes.
type Compound struct {
	base
	shapes []kernel.Shape
}

func (c *Compound) Kind() kernel.ShapeKind { return kernel.KindCompound }

func (c *Compound) Children() []kernel.Shape {
	out := make([]kernel.Shape, len(c.shapes))
	copy(out, c.shapes)
	return out
}

func (c *Compound) BoundingBox() sdf.Box3 { return unionBounds(c.shapes) }
func (c *Compound) Center() v3.Vec        { return boxCenter(c.BoundingBox()) }

// ---------------------------------------------------------------------------
// Geometry helpers
// ---------------------------------------------------------------------------

func bounds(pts ...v3.Vec) sdf.Box3 {
	if len(pts) == 0 {
		return sdf.Box3{}
	}
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo = v3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = v3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	return sdf.Box3{Min: lo, Max: hi}
}

func unionBounds(shapes []kernel.Shape) sdf.Box3 {
	var pts []v3.Vec
	for _, s := range shapes {
		bb := s.BoundingBox()
		pts = append(pts, bb.Min, bb.Max)
	}
	return bounds(pts...)
}

func boxCenter(bb sdf.Box3) v3.Vec {
	return bb.Min.Add(bb.Max).MulScalar(0.5)
}

func average(pts []v3.Vec) v3.Vec {
	var sum v3.Vec
	for _, p := range pts {
		sum = sum.Add(p)
	}
	if len(pts) == 0 {
		return sum
	}
	return sum.MulScalar(1 / float64(len(pts)))
}

// polygonArea uses Newell's method, valid for planar polygons in any plane.
func polygonArea(pts []v3.Vec) float64 {
	var n v3.Vec
	for i := range pts {
		n = n.Add(pts[i].Cross(pts[(i+1)%len(pts)]))
	}
	return n.Length() / 2
}
