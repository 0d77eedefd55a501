package ql

import (
	"fmt"

	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/structured"
	"github.com/chazu/meshql/pkg/transaction"
)

// EdgeSpec holds the transfinite parameters of SetTransfiniteEdge. Each
// field is either empty (keep the existing value, or use the default for a
// new directive), a single value for every edge, or one value per edge
// position within each face.
type EdgeSpec struct {
	Elements      []int
	Distributions []mesh.Distribution
	Coefs         []float64
}

// pick returns the value of vals for position i.
func pick[T any](vals []T, i int, field string) (T, bool, error) {
	var zero T
	switch {
	case len(vals) == 0:
		return zero, false, nil
	case len(vals) == 1:
		return vals[0], true, nil
	case i < len(vals):
		return vals[i], true, nil
	default:
		return zero, false, fmt.Errorf("%w: %s has %d values, edge position %d", ErrInvalidArgument, field, len(vals), i)
	}
}

// SetTransfiniteEdge sets the element count and spacing of the selected
// edges, face by face. An edge that already has a directive is updated in
// place; a new directive needs an element count. Edge directives alone do
// not make the session structured: a later boundary layer stays
// unstructured until a face, solid or automatic setup follows.
func (s *Session) SetTransfiniteEdge(spec EdgeSpec) *Session {
	if !s.usable() {
		return s
	}
	for _, edges := range s.reg.SelectBatch(s.selection, kernel.KindFace, kernel.KindEdge) {
		for i, edge := range edges {
			if err := s.upsertEdge(edge, spec, i); err != nil {
				return s.fail(err)
			}
		}
	}
	return s
}

func (s *Session) upsertEdge(edge entity.Entity, spec EdgeSpec, i int) error {
	n, hasN, err := pick(spec.Elements, i, "elements")
	if err != nil {
		return err
	}
	dist, hasDist, err := pick(spec.Distributions, i, "distributions")
	if err != nil {
		return err
	}
	coef, hasCoef, err := pick(spec.Coefs, i, "coefs")
	if err != nil {
		return err
	}
	if hasN && n < 1 {
		return fmt.Errorf("%w: %d elements on %s", ErrInvalidArgument, n, edge)
	}

	if t, ok := transaction.Lookup[*transaction.SetTransfiniteEdge](s.tx, edge); ok {
		if hasN {
			t.Elements = n
		}
		if hasDist {
			t.Distribution = dist
		}
		if hasCoef {
			t.Coef = coef
		}
		return nil
	}

	if !hasN {
		return fmt.Errorf("%w: %s", structured.ErrMissingElementCount, edge)
	}
	if !hasDist {
		dist = mesh.DistributionProgression
	}
	if !hasCoef {
		coef = 1
	}
	s.add(&transaction.SetTransfiniteEdge{Edge: edge, Elements: n, Distribution: dist, Coef: coef})
	return nil
}

// SetTransfiniteFace marks the selected faces for structured meshing.
func (s *Session) SetTransfiniteFace(arrangement mesh.Arrangement) *Session {
	if !s.usable() {
		return s
	}
	s.tx.MarkStructured()
	for _, faces := range s.reg.SelectBatch(s.selection, kernel.KindSolid, kernel.KindFace) {
		for _, face := range faces {
			s.upsertFace(face, arrangement)
		}
	}
	return s
}

func (s *Session) upsertFace(face entity.Entity, arrangement mesh.Arrangement) {
	if t, ok := transaction.Lookup[*transaction.SetTransfiniteFace](s.tx, face); ok {
		t.Arrangement = arrangement
		return
	}
	s.add(&transaction.SetTransfiniteFace{Face: face, Arrangement: arrangement})
}

func (s *Session) upsertSolid(solid entity.Entity) {
	if _, ok := transaction.Lookup[*transaction.SetTransfiniteSolid](s.tx, solid); ok {
		return
	}
	s.add(&transaction.SetTransfiniteSolid{Solid: solid})
}

// SetTransfiniteSolid marks the selected solids for structured meshing.
func (s *Session) SetTransfiniteSolid() *Session {
	if !s.usable() {
		return s
	}
	s.tx.MarkStructured()
	for _, solid := range s.reg.SelectManyOf(s.selection, kernel.KindSolid) {
		s.upsertSolid(solid)
	}
	return s
}

// SetTransfiniteAuto sets up structured meshing of the selection: every
// solid and face is marked transfinite, and the face edges are grouped so
// that opposite and shared edges get one element count. Each group's count
// is the largest share of maxNodes owed to any of its edges, floored at
// minNodes. With autoRecombine the faces are also recombined into quads.
func (s *Session) SetTransfiniteAuto(maxNodes, minNodes int, autoRecombine bool) *Session {
	if !s.usable() {
		return s
	}
	if maxNodes < 1 || minNodes < 0 {
		return s.fail(fmt.Errorf("%w: max %d, min %d nodes", ErrInvalidArgument, maxNodes, minNodes))
	}
	faces := kernel.Faces(s.selection)
	if len(faces) == 0 {
		return s.fail(fmt.Errorf("%w: no faces for transfinite setup", ErrEmptySelection))
	}

	// Group before recording anything so an unsupported face leaves the
	// pipeline untouched.
	groups, err := structured.GroupEdges(faces)
	if err != nil {
		return s.fail(err)
	}
	counts := make([]int, len(groups))
	for i, g := range groups {
		if counts[i], err = structured.AllocateElements(g, maxNodes, minNodes); err != nil {
			return s.fail(fmt.Errorf("transfinite group %d: %w", i, err))
		}
	}

	s.tx.MarkStructured()
	if s.reg.Dimension() == 3 {
		for _, solid := range s.reg.SelectManyOf(s.selection, kernel.KindSolid) {
			s.upsertSolid(solid)
		}
	}
	for _, face := range faces {
		if e, err := s.reg.Select(face); err == nil {
			s.upsertFace(e, mesh.ArrangementLeft)
		}
	}
	for i, g := range groups {
		shapes := make([]kernel.Shape, len(g))
		for j, e := range g {
			shapes[j] = e
		}
		for _, edge := range s.reg.SelectMany(shapes) {
			if err := s.upsertEdge(edge, EdgeSpec{Elements: []int{counts[i]}}, 0); err != nil {
				return s.fail(err)
			}
		}
	}
	s.groups = groups

	s.log().Debug("transfinite setup",
		"faces", len(faces), "groups", len(groups), "max_nodes", maxNodes, "min_nodes", minNodes)

	if autoRecombine {
		s.Recombine(s.recombineAngle)
	}
	return s
}

// TransfiniteGroups returns the edge groups of the last SetTransfiniteAuto
// as entities.
func (s *Session) TransfiniteGroups() [][]entity.Entity {
	if s.reg == nil {
		return nil
	}
	out := make([][]entity.Entity, len(s.groups))
	for i, g := range s.groups {
		shapes := make([]kernel.Shape, len(g))
		for j, e := range g {
			shapes[j] = e
		}
		out[i] = s.reg.SelectMany(shapes)
	}
	return out
}

// BoundaryLayer holds the parameters of AddBoundaryLayer. Zero values mean
// unset.
type BoundaryLayer struct {
	// Size is the first cell height at the wall.
	Size float64
	// Ratio is the growth ratio between successive cells.
	Ratio float64
	// Layers is the number of unstructured layers.
	Layers int
	// SkipRecombine disables recombining the faces of an unstructured
	// layer.
	SkipRecombine bool
}

// AddBoundaryLayer grades the mesh towards the selected boundary.
//
// In a structured session every transfinite edge with exactly one endpoint
// on the selection gets a growth coefficient, signed so the cells grow away
// from the wall. Exactly one of Size and Ratio must be given; a Size is
// turned into each edge's ratio from its length and element count.
//
// Otherwise a prism layer is requested on the selected faces, or on the
// selected edges of a planar model.
func (s *Session) AddBoundaryLayer(bl BoundaryLayer) *Session {
	if !s.usable() {
		return s
	}
	if s.tx.Structured() {
		return s.AddStructuredBoundaryLayer(bl)
	}
	return s.unstructuredLayer(bl)
}

// AddStructuredBoundaryLayer is AddBoundaryLayer without the unstructured
// fallback. It fails with ErrNotStructured until transfinite meshing has
// been requested.
func (s *Session) AddStructuredBoundaryLayer(bl BoundaryLayer) *Session {
	if !s.usable() {
		return s
	}
	if !s.tx.Structured() {
		return s.fail(fmt.Errorf("%w: structured boundary layer", ErrNotStructured))
	}
	if err := s.structuredLayer(bl); err != nil {
		return s.fail(err)
	}
	return s
}

func (s *Session) structuredLayer(bl BoundaryLayer) error {
	if (bl.Size > 0) == (bl.Ratio > 0) {
		return fmt.Errorf("%w: size %g, ratio %g", ErrSizeOrRatio, bl.Size, bl.Ratio)
	}
	boundary := structured.NewVertexSet(kernel.Vertices(s.selection))

	type update struct {
		t    *transaction.SetTransfiniteEdge
		coef float64
	}
	var updates []update
	for _, edge := range s.reg.Entities(kernel.KindEdge) {
		t, ok := transaction.Lookup[*transaction.SetTransfiniteEdge](s.tx, edge)
		if !ok {
			return fmt.Errorf("%w: %s", structured.ErrMissingElementCount, edge)
		}
		shape, _ := s.reg.Shape(edge)
		e := shape.(kernel.Edge)

		sign, ok := structured.Coefficient(e, boundary, 1)
		if !ok {
			continue
		}
		ratio := bl.Ratio
		if bl.Size > 0 {
			r, err := structured.GrowthRatio(e.Length(), bl.Size, t.Elements)
			if err != nil {
				return fmt.Errorf("%s: %w", edge, err)
			}
			ratio = r
		}
		updates = append(updates, update{t, sign * ratio})
	}

	for _, u := range updates {
		u.t.Coef = u.coef
	}
	s.log().Debug("structured boundary layer", "edges", len(updates), "size", bl.Size, "ratio", bl.Ratio)
	return nil
}

func (s *Session) unstructuredLayer(bl BoundaryLayer) *Session {
	ratio := bl.Ratio
	if ratio == 0 {
		ratio = 1
	}
	if bl.Size <= 0 || bl.Layers < 1 || ratio < 0 {
		return s.fail(fmt.Errorf("%w: boundary layer size %g, ratio %g, %d layers",
			ErrInvalidArgument, bl.Size, ratio, bl.Layers))
	}
	if len(s.selection) == 0 {
		return s.fail(fmt.Errorf("%w: boundary layer", ErrEmptySelection))
	}

	if s.selection[0].Kind() < kernel.KindFace {
		edges := s.reg.SelectManyOf(s.selection, kernel.KindEdge)
		if len(edges) == 0 {
			return s.fail(fmt.Errorf("%w: boundary layer has no edges", ErrEmptySelection))
		}
		s.add(&transaction.UnstructuredBoundaryLayer{
			Targets: edges, Ratio: ratio, WallSize: bl.Size, Layers: bl.Layers,
		})
		return s
	}

	faces := s.reg.SelectManyOf(s.selection, kernel.KindFace)
	if len(faces) == 0 {
		return s.fail(fmt.Errorf("%w: boundary layer has no faces", ErrEmptySelection))
	}
	if !bl.SkipRecombine {
		s.Recombine(s.recombineAngle)
	}
	s.add(&transaction.UnstructuredBoundaryLayer{
		Targets: faces, Ratio: ratio, WallSize: -bl.Size, Layers: bl.Layers,
	})
	return s
}
