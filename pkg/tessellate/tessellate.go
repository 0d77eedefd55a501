// Package tessellate provides the meshing primitives used by the reference
// engine: node distributions along curves, transfinite interpolation of
// four-sided patches, centroid fans, and Laplacian smoothing.
package tessellate

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ---------------------------------------------------------------------------
// Curve distributions
// ---------------------------------------------------------------------------

// Progression returns segments+1 parameters in [0, 1] whose consecutive
// spacings grow geometrically by ratio. A ratio of 1 is uniform.
func Progression(segments int, ratio float64) ([]float64, error) {
	if segments < 1 {
		return nil, fmt.Errorf("tessellate: need at least 1 segment, got %d", segments)
	}
	if ratio <= 0 {
		return nil, fmt.Errorf("tessellate: progression ratio must be positive, got %g", ratio)
	}
	lengths := make([]float64, segments)
	w := 1.0
	for i := range lengths {
		lengths[i] = w
		w *= ratio
	}
	return accumulate(lengths), nil
}

// Bump returns segments+1 parameters whose spacings change geometrically by
// coef from both ends toward the middle. A coef above 1 clusters nodes at
// both ends.
func Bump(segments int, coef float64) ([]float64, error) {
	if segments < 1 {
		return nil, fmt.Errorf("tessellate: need at least 1 segment, got %d", segments)
	}
	if coef <= 0 {
		return nil, fmt.Errorf("tessellate: bump coefficient must be positive, got %g", coef)
	}
	lengths := make([]float64, segments)
	for i := range lengths {
		lengths[i] = math.Pow(coef, float64(min(i, segments-1-i)))
	}
	return accumulate(lengths), nil
}

// Reverse mirrors parameters so the distribution runs from the other end.
func Reverse(ts []float64) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[len(ts)-1-i] = 1 - t
	}
	return out
}

func accumulate(lengths []float64) []float64 {
	var total float64
	for _, l := range lengths {
		total += l
	}
	ts := make([]float64, len(lengths)+1)
	for i, l := range lengths {
		ts[i+1] = ts[i] + l/total
	}
	ts[len(ts)-1] = 1
	return ts
}

// ---------------------------------------------------------------------------
// Surfaces
// ---------------------------------------------------------------------------

// Coons fills a four-sided patch by transfinite interpolation. south and
// north run in the u direction and must have the same length; west and east
// run in the v direction and must have the same length. The sides meet at
// the corners: south[0]==west[0], south[last]==east[0], north[0]==west[last],
// north[last]==east[last]. The result is indexed [v][u] and reproduces the
// boundary exactly.
func Coons(south, north, west, east []v3.Vec) ([][]v3.Vec, error) {
	nu, nv := len(south), len(west)
	if nu < 2 || nv < 2 || len(north) != nu || len(east) != nv {
		return nil, fmt.Errorf("tessellate: mismatched patch sides %d/%d x %d/%d",
			len(south), len(north), len(west), len(east))
	}
	us, un := arcParams(south), arcParams(north)
	vw, ve := arcParams(west), arcParams(east)
	c00, c10 := south[0], south[nu-1]
	c01, c11 := north[0], north[nu-1]

	grid := make([][]v3.Vec, nv)
	for j := 0; j < nv; j++ {
		grid[j] = make([]v3.Vec, nu)
		for i := 0; i < nu; i++ {
			du, dv := un[i]-us[i], ve[j]-vw[j]
			den := 1 - du*dv
			u := (us[i] + vw[j]*du) / den
			v := (vw[j] + us[i]*dv) / den

			p := south[i].MulScalar(1 - v).
				Add(north[i].MulScalar(v)).
				Add(west[j].MulScalar(1 - u)).
				Add(east[j].MulScalar(u))
			bilinear := c00.MulScalar((1 - u) * (1 - v)).
				Add(c10.MulScalar(u * (1 - v))).
				Add(c01.MulScalar((1 - u) * v)).
				Add(c11.MulScalar(u * v))
			grid[j][i] = p.Sub(bilinear)
		}
	}
	return grid, nil
}

// arcParams returns normalized cumulative chord lengths along pts.
func arcParams(pts []v3.Vec) []float64 {
	ts := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		ts[i] = ts[i-1] + pts[i].Sub(pts[i-1]).Length()
	}
	total := ts[len(ts)-1]
	if total == 0 {
		for i := range ts {
			ts[i] = float64(i) / float64(len(ts)-1)
		}
		return ts
	}
	for i := range ts {
		ts[i] /= total
	}
	return ts
}

// Fan triangulates a closed loop around its centroid. Triangle indices refer
// to loop positions, with len(loop) standing for the returned center.
func Fan(loop []v3.Vec) (v3.Vec, [][3]int) {
	n := len(loop)
	var center v3.Vec
	for _, p := range loop {
		center = center.Add(p)
	}
	if n == 0 {
		return center, nil
	}
	center = center.MulScalar(1 / float64(n))
	tris := make([][3]int, n)
	for i := range loop {
		tris[i] = [3]int{i, (i + 1) % n, n}
	}
	return center, tris
}

// SplitQuad divides the quad a-b-c-d into two triangles, across the a-c
// diagonal or, when flip is set, the b-d diagonal.
func SplitQuad(a, b, c, d int, flip bool) [2][3]int {
	if flip {
		return [2][3]int{{a, b, d}, {b, c, d}}
	}
	return [2][3]int{{a, b, c}, {a, c, d}}
}

// Normal returns the unit normal of the triangle a-b-c.
func Normal(a, b, c v3.Vec) v3.Vec {
	t := sdf.Triangle3{a, b, c}
	return t.Normal()
}

// ---------------------------------------------------------------------------
// Smoothing
// ---------------------------------------------------------------------------

// Smooth applies Laplacian smoothing in place: each free node moves to the
// average of its neighbours, passes times. Fixed nodes never move.
func Smooth(pos []v3.Vec, neighbours [][]int, fixed []bool, passes int) {
	next := make([]v3.Vec, len(pos))
	for p := 0; p < passes; p++ {
		copy(next, pos)
		for i, nb := range neighbours {
			if fixed[i] || len(nb) == 0 {
				continue
			}
			var sum v3.Vec
			for _, j := range nb {
				sum = sum.Add(pos[j])
			}
			next[i] = sum.MulScalar(1 / float64(len(nb)))
		}
		copy(pos, next)
	}
}
