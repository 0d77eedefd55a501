package memory

import (
	"fmt"
	"maps"
	"math"

	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/tessellate"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/google/uuid"
)

// Generate meshes the model up to dim.
//
// Curves are split by their transfinite node count, or by the point sizes
// at their ends, or left as one segment. Transfinite four-sided faces are
// filled by Coons patches; every other face is fanned from its centroid
// over its outer loop. Solids are filled by fanning their surface elements
// to the solid centre.
func (e *Engine) Generate(dim int) (*mesh.Mesh, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("memory: cannot generate dimension %d", dim)
	}

	g := &generator{
		e:         e,
		vertices:  make(map[int]int),
		curves:    make(map[int][]int),
		faceElems: make(map[int][][]int),
	}
	if err := g.points(); err != nil {
		return nil, err
	}
	if err := g.lines(); err != nil {
		return nil, err
	}
	if dim >= 2 {
		if err := g.surfaces(); err != nil {
			return nil, err
		}
	}
	if dim == 3 {
		if err := g.volumes(); err != nil {
			return nil, err
		}
	}

	opts := e.opts
	opts.FaceAlgorithms = maps.Clone(e.opts.FaceAlgorithms)
	groups := make([]mesh.Group, len(e.groups))
	copy(groups, e.groups)
	layers := make([]mesh.BoundaryLayer, len(e.layers))
	copy(layers, e.layers)

	return &mesh.Mesh{
		ID:             uuid.New(),
		Dim:            dim,
		Nodes:          g.nodes,
		Elements:       g.elements,
		Groups:         groups,
		Options:        opts,
		BoundaryLayers: layers,
	}, nil
}

type generator struct {
	e         *Engine
	nodes     []mesh.Node
	elements  []mesh.Element
	vertices  map[int]int     // vertex tag -> node tag
	curves    map[int][]int   // edge tag -> node tags, start to end
	faceElems map[int][][]int // face tag -> element node tags
}

func (g *generator) node(p v3.Vec) int {
	tag := len(g.nodes) + 1
	g.nodes = append(g.nodes, mesh.Node{Tag: tag, Pos: p})
	return tag
}

func (g *generator) pos(tag int) v3.Vec {
	return g.nodes[tag-1].Pos
}

func (g *generator) element(t mesh.ElementType, dim, tag int, nodes ...int) {
	g.elements = append(g.elements, mesh.Element{
		Type:   t,
		Entity: mesh.DimTag{Dim: dim, Tag: tag},
		Nodes:  nodes,
	})
}

func (g *generator) tagOf(s kernel.Shape) (int, error) {
	ent, err := g.e.reg.Select(s)
	if err != nil {
		return 0, fmt.Errorf("memory: %w", err)
	}
	return ent.Tag, nil
}

func (g *generator) points() error {
	for _, ent := range g.e.reg.Entities(kernel.KindVertex) {
		s, _ := g.e.reg.Shape(ent)
		v, ok := s.(kernel.Vertex)
		if !ok {
			return fmt.Errorf("memory: vertex %d is a %T", ent.Tag, s)
		}
		g.vertices[ent.Tag] = g.node(v.Point())
		g.element(mesh.ElementPoint, 0, ent.Tag, g.vertices[ent.Tag])
	}
	return nil
}

// ---------------------------------------------------------------------------
// Curves
// ---------------------------------------------------------------------------

func (g *generator) lines() error {
	for _, ent := range g.e.reg.Entities(kernel.KindEdge) {
		s, _ := g.e.reg.Shape(ent)
		edge, ok := s.(kernel.Edge)
		if !ok {
			return fmt.Errorf("memory: edge %d is a %T", ent.Tag, s)
		}
		ts, err := g.params(ent.Tag, edge)
		if err != nil {
			return fmt.Errorf("memory: curve %d: %w", ent.Tag, err)
		}
		ts = refine(ts, g.e.opts.RefinePasses)

		start, err := g.tagOf(edge.Start())
		if err != nil {
			return err
		}
		end, err := g.tagOf(edge.End())
		if err != nil {
			return err
		}
		ns := make([]int, len(ts))
		ns[0], ns[len(ns)-1] = g.vertices[start], g.vertices[end]
		for i := 1; i < len(ts)-1; i++ {
			ns[i] = g.node(edge.PointAt(ts[i]))
		}
		for i := 0; i+1 < len(ns); i++ {
			g.element(mesh.ElementLine, 1, ent.Tag, ns[i], ns[i+1])
		}
		g.curves[ent.Tag] = ns
	}
	return nil
}

// params returns the curve parameters of the nodes along edge.
func (g *generator) params(tag int, edge kernel.Edge) ([]float64, error) {
	if spec, ok := g.e.curves[tag]; ok {
		coef := math.Abs(spec.coef)
		if coef == 0 {
			coef = 1
		}
		var ts []float64
		var err error
		switch spec.dist {
		case mesh.DistributionBump:
			ts, err = tessellate.Bump(spec.nodes-1, coef)
		default:
			ts, err = tessellate.Progression(spec.nodes-1, coef)
		}
		if err != nil {
			return nil, err
		}
		if spec.coef < 0 {
			ts = tessellate.Reverse(ts)
		}
		return ts, nil
	}

	segments := 1
	if h := g.sizeAlong(edge); h > 0 {
		segments = max(1, int(math.Ceil(edge.Length()/h-1e-9)))
	}
	return tessellate.Progression(segments, 1)
}

// sizeAlong averages the target sizes defined at the ends of edge.
func (g *generator) sizeAlong(edge kernel.Edge) float64 {
	var sum float64
	var n int
	for _, v := range []kernel.Vertex{edge.Start(), edge.End()} {
		if h := g.sizeAt(v); h > 0 {
			sum += h
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (g *generator) sizeAt(v kernel.Vertex) float64 {
	if g.e.sizeFn != nil {
		p := v.Point()
		return g.e.sizeFn(p.X, p.Y, p.Z)
	}
	tag, err := g.tagOf(v)
	if err != nil {
		return 0
	}
	return g.e.sizes[tag]
}

// refine inserts the midpoint of every segment, passes times.
func refine(ts []float64, passes int) []float64 {
	for p := 0; p < passes; p++ {
		out := make([]float64, 0, 2*len(ts)-1)
		for i := 0; i+1 < len(ts); i++ {
			out = append(out, ts[i], (ts[i]+ts[i+1])/2)
		}
		ts = append(out, ts[len(ts)-1])
	}
	return ts
}

// ---------------------------------------------------------------------------
// Surfaces
// ---------------------------------------------------------------------------

func (g *generator) surfaces() error {
	for _, ent := range g.e.reg.Entities(kernel.KindFace) {
		s, _ := g.e.reg.Shape(ent)
		face, ok := s.(kernel.Face)
		if !ok {
			return fmt.Errorf("memory: face %d is a %T", ent.Tag, s)
		}
		sides, err := g.sides(face)
		if err != nil {
			return err
		}

		var interior []int
		arr, structured := g.e.surfaces[ent.Tag]
		if structured && len(face.InnerWires()) == 0 && opposed(sides) {
			interior, err = g.patch(ent.Tag, sides, arr)
			if err != nil {
				return fmt.Errorf("memory: surface %d: %w", ent.Tag, err)
			}
		} else {
			interior = g.fan(ent.Tag, sides)
		}

		if passes := g.e.smoothing[mesh.DimTag{Dim: 2, Tag: ent.Tag}]; passes > 0 {
			g.smooth(g.faceElems[ent.Tag], interior, passes)
		}
	}
	return nil
}

// sides returns the node tags of each side of the outer loop, oriented in
// loop order.
func (g *generator) sides(face kernel.Face) ([][]int, error) {
	sorted := kernel.SortByConnect(face.OuterWire().Edges())
	sides := make([][]int, len(sorted))
	for i, d := range sorted {
		tag, err := g.tagOf(d.Edge)
		if err != nil {
			return nil, err
		}
		ns := append([]int(nil), g.curves[tag]...)
		if d.Reversed {
			reverse(ns)
		}
		sides[i] = ns
	}
	return sides, nil
}

func opposed(sides [][]int) bool {
	return len(sides) == 4 &&
		len(sides[0]) == len(sides[2]) &&
		len(sides[1]) == len(sides[3])
}

// patch fills a four-sided face by transfinite interpolation and returns the
// interior node tags.
func (g *generator) patch(tag int, sides [][]int, arr mesh.Arrangement) ([]int, error) {
	south := sides[0]
	east := sides[1]
	north := append([]int(nil), sides[2]...)
	reverse(north)
	west := append([]int(nil), sides[3]...)
	reverse(west)

	grid, err := tessellate.Coons(g.positions(south), g.positions(north), g.positions(west), g.positions(east))
	if err != nil {
		return nil, err
	}
	nu, nv := len(south), len(west)
	ids := make([][]int, nv)
	var interior []int
	for j := 0; j < nv; j++ {
		ids[j] = make([]int, nu)
		for i := 0; i < nu; i++ {
			switch {
			case j == 0:
				ids[j][i] = south[i]
			case j == nv-1:
				ids[j][i] = north[i]
			case i == 0:
				ids[j][i] = west[j]
			case i == nu-1:
				ids[j][i] = east[j]
			default:
				ids[j][i] = g.node(grid[j][i])
				interior = append(interior, ids[j][i])
			}
		}
	}

	_, quads := g.e.recombine[tag]
	for j := 0; j+1 < nv; j++ {
		for i := 0; i+1 < nu; i++ {
			a, b, c, d := ids[j][i], ids[j][i+1], ids[j+1][i+1], ids[j+1][i]
			if quads {
				g.surfaceElement(tag, a, b, c, d)
				continue
			}
			for _, tri := range tessellate.SplitQuad(a, b, c, d, flipped(arr, i, j)) {
				g.surfaceElement(tag, tri[0], tri[1], tri[2])
			}
		}
	}
	return interior, nil
}

// flipped reports whether cell (i, j) is split across its b-d diagonal.
func flipped(arr mesh.Arrangement, i, j int) bool {
	switch arr {
	case mesh.ArrangementRight:
		return true
	case mesh.ArrangementAlternateLeft:
		return (i+j)%2 == 1
	case mesh.ArrangementAlternateRight:
		return (i+j)%2 == 0
	default:
		return false
	}
}

// fan triangulates the outer loop around its centroid and returns the
// centroid node.
func (g *generator) fan(tag int, sides [][]int) []int {
	var loop []int
	for _, ns := range sides {
		loop = append(loop, ns[:len(ns)-1]...)
	}
	center, tris := tessellate.Fan(g.positions(loop))
	c := g.node(center)
	ids := append(loop, c)
	for _, tri := range tris {
		g.surfaceElement(tag, ids[tri[0]], ids[tri[1]], ids[tri[2]])
	}
	return []int{c}
}

func (g *generator) surfaceElement(tag int, nodes ...int) {
	t := mesh.ElementTriangle
	if len(nodes) == 4 {
		t = mesh.ElementQuad
	}
	g.element(t, 2, tag, nodes...)
	g.faceElems[tag] = append(g.faceElems[tag], nodes)
}

// smooth relaxes the interior nodes of one face over its element graph.
func (g *generator) smooth(elems [][]int, interior []int, passes int) {
	local := make(map[int]int)
	var tags []int
	index := func(tag int) int {
		if i, ok := local[tag]; ok {
			return i
		}
		local[tag] = len(tags)
		tags = append(tags, tag)
		return local[tag]
	}
	adj := make(map[int]map[int]bool)
	link := func(a, b int) {
		if adj[a] == nil {
			adj[a] = make(map[int]bool)
		}
		adj[a][b] = true
	}
	for _, el := range elems {
		for k := range el {
			a, b := index(el[k]), index(el[(k+1)%len(el)])
			link(a, b)
			link(b, a)
		}
	}

	free := make(map[int]bool, len(interior))
	for _, tag := range interior {
		free[tag] = true
	}
	pos := make([]v3.Vec, len(tags))
	fixed := make([]bool, len(tags))
	neighbours := make([][]int, len(tags))
	for i, tag := range tags {
		pos[i] = g.pos(tag)
		fixed[i] = !free[tag]
		for j := range adj[i] {
			neighbours[i] = append(neighbours[i], j)
		}
	}
	tessellate.Smooth(pos, neighbours, fixed, passes)
	for i, tag := range tags {
		g.nodes[tag-1].Pos = pos[i]
	}
}

// ---------------------------------------------------------------------------
// Volumes
// ---------------------------------------------------------------------------

func (g *generator) volumes() error {
	for _, ent := range g.e.reg.Entities(kernel.KindSolid) {
		s, _ := g.e.reg.Shape(ent)
		center := g.node(s.Center())
		for _, f := range kernel.Faces([]kernel.Shape{s}) {
			tag, err := g.tagOf(f)
			if err != nil {
				return err
			}
			for _, el := range g.faceElems[tag] {
				g.cone(ent.Tag, el, center)
			}
		}
	}
	return nil
}

// cone joins a surface element to apex, as a tetrahedron or a pyramid. The
// base is wound counter-clockwise when seen from the apex.
func (g *generator) cone(tag int, base []int, apex int) {
	n := tessellate.Normal(g.pos(base[0]), g.pos(base[1]), g.pos(base[2]))
	if n.Dot(g.pos(apex).Sub(g.pos(base[0]))) < 0 {
		base = append([]int(nil), base...)
		reverse(base)
	}
	nodes := append(append([]int(nil), base...), apex)
	if len(base) == 4 {
		g.element(mesh.ElementPyramid, 3, tag, nodes...)
		return
	}
	g.element(mesh.ElementTet, 3, tag, nodes...)
}

func (g *generator) positions(tags []int) []v3.Vec {
	out := make([]v3.Vec, len(tags))
	for i, tag := range tags {
		out[i] = g.pos(tag)
	}
	return out
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
