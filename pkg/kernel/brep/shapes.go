package brep

import (
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Box creates an axis-aligned box solid spanning min to max. The six faces
// share their twelve edges and eight vertices.
func (b *Builder) Box(min, max v3.Vec) (*Solid, error) {
	if max.X <= min.X || max.Y <= min.Y || max.Z <= min.Z {
		return nil, fmt.Errorf("brep: box has non-positive extent (min %v, max %v)", min, max)
	}
	v := [8]*Vertex{
		b.Vertex(v3.Vec{X: min.X, Y: min.Y, Z: min.Z}),
		b.Vertex(v3.Vec{X: max.X, Y: min.Y, Z: min.Z}),
		b.Vertex(v3.Vec{X: max.X, Y: max.Y, Z: min.Z}),
		b.Vertex(v3.Vec{X: min.X, Y: max.Y, Z: min.Z}),
		b.Vertex(v3.Vec{X: min.X, Y: min.Y, Z: max.Z}),
		b.Vertex(v3.Vec{X: max.X, Y: min.Y, Z: max.Z}),
		b.Vertex(v3.Vec{X: max.X, Y: max.Y, Z: max.Z}),
		b.Vertex(v3.Vec{X: min.X, Y: max.Y, Z: max.Z}),
	}
	shell := b.Shell(
		b.Quad(v[0], v[3], v[2], v[1]), // bottom
		b.Quad(v[4], v[5], v[6], v[7]), // top
		b.Quad(v[0], v[1], v[5], v[4]), // front
		b.Quad(v[1], v[2], v[6], v[5]), // right
		b.Quad(v[2], v[3], v[7], v[6]), // back
		b.Quad(v[3], v[0], v[4], v[7]), // left
	)
	return b.Solid(shell), nil
}

// Rect creates a w x h rectangle in the XY plane with its minimum corner at
// origin.
func (b *Builder) Rect(origin v3.Vec, w, h float64) (*Face, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("brep: rect has non-positive size %gx%g", w, h)
	}
	return b.Quad(
		b.Vertex(origin),
		b.Vertex(v3.Vec{X: origin.X + w, Y: origin.Y, Z: origin.Z}),
		b.Vertex(v3.Vec{X: origin.X + w, Y: origin.Y + h, Z: origin.Z}),
		b.Vertex(v3.Vec{X: origin.X, Y: origin.Y + h, Z: origin.Z}),
	), nil
}

// Grid creates a planar grid of quad faces at z=0 whose cell boundaries lie
// at the given x and y stations. Neighbouring cells share edges.
func (b *Builder) Grid(xs, ys []float64) (*Compound, error) {
	if err := checkStations("x", xs); err != nil {
		return nil, err
	}
	if err := checkStations("y", ys); err != nil {
		return nil, err
	}
	vs := make([][]*Vertex, len(xs))
	for i, x := range xs {
		vs[i] = make([]*Vertex, len(ys))
		for j, y := range ys {
			vs[i][j] = b.Vertex(v3.Vec{X: x, Y: y})
		}
	}
	c := b.Compound()
	for j := 0; j+1 < len(ys); j++ {
		for i := 0; i+1 < len(xs); i++ {
			c.shapes = append(c.shapes, b.Quad(vs[i][j], vs[i+1][j], vs[i+1][j+1], vs[i][j+1]))
		}
	}
	return c, nil
}

// Duct creates the open rectangular tube of cross-section width x height
// running along Z. Each side is split into one face per consecutive pair of
// axial stations zs, so faces share both their axial and their
// circumferential edges.
func (b *Builder) Duct(width, height float64, zs []float64) (*Shell, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("brep: duct has non-positive section %gx%g", width, height)
	}
	if err := checkStations("z", zs); err != nil {
		return nil, err
	}
	corners := [4][2]float64{{0, 0}, {width, 0}, {width, height}, {0, height}}
	vs := make([][]*Vertex, 4)
	for c, xy := range corners {
		vs[c] = make([]*Vertex, len(zs))
		for k, z := range zs {
			vs[c][k] = b.Vertex(v3.Vec{X: xy[0], Y: xy[1], Z: z})
		}
	}
	var faces []*Face
	for k := 0; k+1 < len(zs); k++ {
		for c := 0; c < 4; c++ {
			n := (c + 1) % 4
			faces = append(faces, b.Quad(vs[c][k], vs[n][k], vs[n][k+1], vs[c][k+1]))
		}
	}
	return b.Shell(faces...), nil
}

func checkStations(axis string, s []float64) error {
	if len(s) < 2 {
		return fmt.Errorf("brep: need at least 2 %s stations, got %d", axis, len(s))
	}
	for i := 1; i < len(s); i++ {
		if s[i] <= s[i-1] {
			return fmt.Errorf("brep: %s stations must increase (%g after %g)", axis, s[i], s[i-1])
		}
	}
	return nil
}
