// Package transaction holds the deferred meshing directives and the ordered
// pipeline that commits them to a mesh engine.
//
// Directives are a closed set: every concrete type in this package
// implements Transaction, and no other package can add one.
package transaction

import (
	"fmt"

	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/mesh"
)

// Kind identifies a directive type.
type Kind int

const (
	KindSetMeshSize Kind = iota
	KindSetMeshAlgorithm2D
	KindSetMeshAlgorithm3D
	KindSetSubdivisionAlgorithm
	KindRecombine
	KindSetSmoothing
	KindRefine
	KindSetTransfiniteEdge
	KindSetTransfiniteFace
	KindSetTransfiniteSolid
	KindUnstructuredBoundaryLayer
	KindSetPhysicalGroup
)

func (k Kind) String() string {
	switch k {
	case KindSetMeshSize:
		return "set-mesh-size"
	case KindSetMeshAlgorithm2D:
		return "set-mesh-algorithm-2d"
	case KindSetMeshAlgorithm3D:
		return "set-mesh-algorithm-3d"
	case KindSetSubdivisionAlgorithm:
		return "set-subdivision-algorithm"
	case KindRecombine:
		return "recombine"
	case KindSetSmoothing:
		return "set-smoothing"
	case KindRefine:
		return "refine"
	case KindSetTransfiniteEdge:
		return "set-transfinite-edge"
	case KindSetTransfiniteFace:
		return "set-transfinite-face"
	case KindSetTransfiniteSolid:
		return "set-transfinite-solid"
	case KindUnstructuredBoundaryLayer:
		return "unstructured-boundary-layer"
	case KindSetPhysicalGroup:
		return "set-physical-group"
	default:
		return "unknown"
	}
}

// Transaction is one deferred directive.
type Transaction interface {
	Kind() Kind
	// Entities returns the targeted entities, primary first. Global
	// directives return none.
	Entities() []entity.Entity
	// Apply commits the directive to eng.
	Apply(eng mesh.Engine) error

	directive()
}

// Compile-time interface checks.
var (
	_ Transaction = (*SetMeshSize)(nil)
	_ Transaction = (*SetMeshAlgorithm2D)(nil)
	_ Transaction = (*SetMeshAlgorithm3D)(nil)
	_ Transaction = (*SetSubdivisionAlgorithm)(nil)
	_ Transaction = (*Recombine)(nil)
	_ Transaction = (*SetSmoothing)(nil)
	_ Transaction = (*Refine)(nil)
	_ Transaction = (*SetTransfiniteEdge)(nil)
	_ Transaction = (*SetTransfiniteFace)(nil)
	_ Transaction = (*SetTransfiniteSolid)(nil)
	_ Transaction = (*UnstructuredBoundaryLayer)(nil)
	_ Transaction = (*SetPhysicalGroup)(nil)
)

// ---------------------------------------------------------------------------
// Sizing and algorithms
// ---------------------------------------------------------------------------

// SetMeshSize sets the target element size at a set of points. When Func is
// set it replaces Size with a position-dependent size field.
type SetMeshSize struct {
	Points []entity.Entity
	Size   float64
	Func   mesh.SizeFunc
}

func (t *SetMeshSize) Kind() Kind                { return KindSetMeshSize }
func (t *SetMeshSize) Entities() []entity.Entity { return t.Points }
func (t *SetMeshSize) directive()                {}

func (t *SetMeshSize) Apply(eng mesh.Engine) error {
	if t.Func != nil {
		return eng.SetSizeCallback(t.Func)
	}
	points, err := dimTags(t.Points)
	if err != nil {
		return err
	}
	return eng.SetSize(points, t.Size)
}

// SetMeshAlgorithm2D selects the surface algorithm for Face, or globally
// when Face is nil.
type SetMeshAlgorithm2D struct {
	Algorithm mesh.Algorithm2D
	Face      *entity.Entity
}

func (t *SetMeshAlgorithm2D) Kind() Kind { return KindSetMeshAlgorithm2D }
func (t *SetMeshAlgorithm2D) directive() {}

func (t *SetMeshAlgorithm2D) Entities() []entity.Entity {
	if t.Face == nil {
		return nil
	}
	return []entity.Entity{*t.Face}
}

func (t *SetMeshAlgorithm2D) Apply(eng mesh.Engine) error {
	face := 0
	if t.Face != nil {
		face = t.Face.Tag
	}
	return eng.SetAlgorithm2D(t.Algorithm, face)
}

// SetMeshAlgorithm3D selects the volume algorithm.
type SetMeshAlgorithm3D struct {
	Algorithm mesh.Algorithm3D
}

func (t *SetMeshAlgorithm3D) Kind() Kind                  { return KindSetMeshAlgorithm3D }
func (t *SetMeshAlgorithm3D) Entities() []entity.Entity   { return nil }
func (t *SetMeshAlgorithm3D) Apply(eng mesh.Engine) error { return eng.SetAlgorithm3D(t.Algorithm) }
func (t *SetMeshAlgorithm3D) directive()                  {}

// SetSubdivisionAlgorithm selects the element subdivision.
type SetSubdivisionAlgorithm struct {
	Algorithm mesh.Subdivision
}

func (t *SetSubdivisionAlgorithm) Kind() Kind                  { return KindSetSubdivisionAlgorithm }
func (t *SetSubdivisionAlgorithm) Entities() []entity.Entity   { return nil }
func (t *SetSubdivisionAlgorithm) Apply(eng mesh.Engine) error { return eng.SetSubdivision(t.Algorithm) }
func (t *SetSubdivisionAlgorithm) directive()                  {}

// ---------------------------------------------------------------------------
// Refinement
// ---------------------------------------------------------------------------

// Recombine merges the triangles of Face into quads where the angle
// criterion allows.
type Recombine struct {
	Face  entity.Entity
	Angle float64
}

func (t *Recombine) Kind() Kind                { return KindRecombine }
func (t *Recombine) Entities() []entity.Entity { return []entity.Entity{t.Face} }
func (t *Recombine) directive()                {}

func (t *Recombine) Apply(eng mesh.Engine) error {
	return eng.SetRecombine(2, t.Face.Tag, t.Angle)
}

// SetSmoothing requests Laplacian smoothing passes on Entity.
type SetSmoothing struct {
	Entity entity.Entity
	Passes int
}

func (t *SetSmoothing) Kind() Kind                { return KindSetSmoothing }
func (t *SetSmoothing) Entities() []entity.Entity { return []entity.Entity{t.Entity} }
func (t *SetSmoothing) directive()                {}

func (t *SetSmoothing) Apply(eng mesh.Engine) error {
	dim, err := t.Entity.Dim()
	if err != nil {
		return err
	}
	return eng.SetSmoothing(dim, t.Entity.Tag, t.Passes)
}

// Refine requests uniform refinement passes after generation.
type Refine struct {
	Passes int
}

func (t *Refine) Kind() Kind                  { return KindRefine }
func (t *Refine) Entities() []entity.Entity   { return nil }
func (t *Refine) Apply(eng mesh.Engine) error { return eng.SetRefinement(t.Passes) }
func (t *Refine) directive()                  {}

// ---------------------------------------------------------------------------
// Transfinite
// ---------------------------------------------------------------------------

// SetTransfiniteEdge fixes the element count and spacing along Edge. A
// negative Coef grows the spacing from the end vertex instead of the start.
type SetTransfiniteEdge struct {
	Edge         entity.Entity
	Elements     int
	Distribution mesh.Distribution
	Coef         float64
}

func (t *SetTransfiniteEdge) Kind() Kind                { return KindSetTransfiniteEdge }
func (t *SetTransfiniteEdge) Entities() []entity.Entity { return []entity.Entity{t.Edge} }
func (t *SetTransfiniteEdge) directive()                {}

func (t *SetTransfiniteEdge) Apply(eng mesh.Engine) error {
	return eng.SetTransfiniteCurve(t.Edge.Tag, t.Elements+1, t.Distribution, t.Coef)
}

// SetTransfiniteFace marks Face for structured meshing.
type SetTransfiniteFace struct {
	Face        entity.Entity
	Arrangement mesh.Arrangement
}

func (t *SetTransfiniteFace) Kind() Kind                { return KindSetTransfiniteFace }
func (t *SetTransfiniteFace) Entities() []entity.Entity { return []entity.Entity{t.Face} }
func (t *SetTransfiniteFace) directive()                {}

func (t *SetTransfiniteFace) Apply(eng mesh.Engine) error {
	return eng.SetTransfiniteSurface(t.Face.Tag, t.Arrangement)
}

// SetTransfiniteSolid marks Solid for structured meshing.
type SetTransfiniteSolid struct {
	Solid entity.Entity
}

func (t *SetTransfiniteSolid) Kind() Kind                  { return KindSetTransfiniteSolid }
func (t *SetTransfiniteSolid) Entities() []entity.Entity   { return []entity.Entity{t.Solid} }
func (t *SetTransfiniteSolid) Apply(eng mesh.Engine) error { return eng.SetTransfiniteVolume(t.Solid.Tag) }
func (t *SetTransfiniteSolid) directive()                  {}

// ---------------------------------------------------------------------------
// Boundary layers and groups
// ---------------------------------------------------------------------------

// UnstructuredBoundaryLayer grows Layers prism layers off Targets. Targets
// are faces, or edges for planar models. WallSize is the first layer
// height; it is negated for faces so the layers grow into the volume.
type UnstructuredBoundaryLayer struct {
	Targets  []entity.Entity
	Ratio    float64
	WallSize float64
	Layers   int
}

func (t *UnstructuredBoundaryLayer) Kind() Kind                { return KindUnstructuredBoundaryLayer }
func (t *UnstructuredBoundaryLayer) Entities() []entity.Entity { return t.Targets }
func (t *UnstructuredBoundaryLayer) directive()                {}

func (t *UnstructuredBoundaryLayer) Apply(eng mesh.Engine) error {
	if len(t.Targets) == 0 {
		return fmt.Errorf("transaction: boundary layer has no targets")
	}
	tags, dim, err := sameDim(t.Targets)
	if err != nil {
		return err
	}
	return eng.AddBoundaryLayer(mesh.BoundaryLayer{
		Dim:      dim,
		Tags:     tags,
		Ratio:    t.Ratio,
		WallSize: t.WallSize,
		Layers:   t.Layers,
	})
}

// SetPhysicalGroup names a set of entities of one dimension. Tag holds the
// engine's group tag once applied.
type SetPhysicalGroup struct {
	Members []entity.Entity
	Name    string
	Tag     int
}

func (t *SetPhysicalGroup) Kind() Kind                { return KindSetPhysicalGroup }
func (t *SetPhysicalGroup) Entities() []entity.Entity { return t.Members }
func (t *SetPhysicalGroup) directive()                {}

func (t *SetPhysicalGroup) Apply(eng mesh.Engine) error {
	if len(t.Members) == 0 {
		return fmt.Errorf("transaction: physical group %q has no members", t.Name)
	}
	tags, dim, err := sameDim(t.Members)
	if err != nil {
		return fmt.Errorf("transaction: physical group %q: %w", t.Name, err)
	}
	tag, err := eng.AddPhysicalGroup(dim, tags, t.Name)
	if err != nil {
		return err
	}
	t.Tag = tag
	return nil
}

func dimTags(ents []entity.Entity) ([]mesh.DimTag, error) {
	out := make([]mesh.DimTag, len(ents))
	for i, e := range ents {
		dim, err := e.Dim()
		if err != nil {
			return nil, err
		}
		out[i] = mesh.DimTag{Dim: dim, Tag: e.Tag}
	}
	return out, nil
}

// sameDim returns the tags of ents, which must share one dimension.
func sameDim(ents []entity.Entity) ([]int, int, error) {
	dts, err := dimTags(ents)
	if err != nil {
		return nil, 0, err
	}
	tags := make([]int, len(dts))
	for i, dt := range dts {
		if dt.Dim != dts[0].Dim {
			return nil, 0, fmt.Errorf("transaction: mixed dimensions %s and %s",
				ents[0].Type, ents[i].Type)
		}
		tags[i] = dt.Tag
	}
	return tags, dts[0].Dim, nil
}
