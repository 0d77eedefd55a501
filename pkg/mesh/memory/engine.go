// Package memory is an in-process reference implementation of mesh.Engine.
// It meshes straight-edged models with simple, deterministic rules so that
// directive pipelines can be exercised end to end without an external
// mesher.
package memory

import (
	"fmt"
	"sync"

	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/mesh"
)

// Compile-time interface check.
var _ mesh.Engine = (*Engine)(nil)

type curveSpec struct {
	nodes int
	dist  mesh.Distribution
	coef  float64
}

// Engine is the reference engine. One session may be open at a time.
type Engine struct {
	mu   sync.Mutex
	open bool

	shapes  []kernel.Shape
	pending []kernel.Shape
	reg     *entity.Registry
	synced  bool

	sizes     map[int]float64
	sizeFn    mesh.SizeFunc
	opts      mesh.Options
	recombine map[int]float64
	smoothing map[mesh.DimTag]int
	curves    map[int]curveSpec
	surfaces  map[int]mesh.Arrangement
	volumes   map[int]bool
	layers    []mesh.BoundaryLayer
	groups    []mesh.Group
}

// New returns an uninitialized engine.
func New() *Engine {
	e := &Engine{}
	e.reset()
	return e
}

func (e *Engine) reset() {
	e.shapes = nil
	e.pending = nil
	e.reg = entity.NewRegistry(nil, kernel.KindVertex)
	e.synced = true
	e.sizes = make(map[int]float64)
	e.sizeFn = nil
	e.opts = mesh.DefaultOptions()
	e.recombine = make(map[int]float64)
	e.smoothing = make(map[mesh.DimTag]int)
	e.curves = make(map[int]curveSpec)
	e.surfaces = make(map[int]mesh.Arrangement)
	e.volumes = make(map[int]bool)
	e.layers = nil
	e.groups = nil
}

// Initialize opens a session, discarding any previous model.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open {
		return mesh.ErrBusy
	}
	e.reset()
	e.open = true
	return nil
}

// Finalize closes the session.
func (e *Engine) Finalize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return mesh.ErrNotInitialized
	}
	e.reset()
	e.open = false
	return nil
}

func (e *Engine) Import(shapes []kernel.Shape) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return mesh.ErrNotInitialized
	}
	e.pending = append(e.pending, shapes...)
	e.synced = false
	return nil
}

// Synchronize makes imported shapes addressable. Tags follow the same walk
// as entity.NewRegistry at vertex level.
func (e *Engine) Synchronize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return mesh.ErrNotInitialized
	}
	e.shapes = append(e.shapes, e.pending...)
	e.pending = nil
	e.reg = entity.NewRegistry(e.shapes, kernel.KindVertex)
	e.synced = true
	return nil
}

func (e *Engine) SetSize(points []mesh.DimTag, size float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if size <= 0 {
		return fmt.Errorf("memory: mesh size must be positive, got %g", size)
	}
	for _, p := range points {
		if p.Dim != 0 {
			return fmt.Errorf("memory: mesh size applies to points, got dimension %d", p.Dim)
		}
		if err := e.check(p.Dim, p.Tag); err != nil {
			return err
		}
		e.sizes[p.Tag] = size
	}
	return nil
}

func (e *Engine) SetSizeCallback(fn mesh.SizeFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	e.sizeFn = fn
	return nil
}

func (e *Engine) SetAlgorithm2D(alg mesh.Algorithm2D, face int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if face == 0 {
		e.opts.Algorithm2D = alg
		return nil
	}
	if err := e.check(2, face); err != nil {
		return err
	}
	if e.opts.FaceAlgorithms == nil {
		e.opts.FaceAlgorithms = make(map[int]mesh.Algorithm2D)
	}
	e.opts.FaceAlgorithms[face] = alg
	return nil
}

func (e *Engine) SetAlgorithm3D(alg mesh.Algorithm3D) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	e.opts.Algorithm3D = alg
	return nil
}

func (e *Engine) SetSubdivision(alg mesh.Subdivision) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	e.opts.Subdivision = alg
	return nil
}

func (e *Engine) SetRecombine(dim, tag int, angle float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if dim != 2 {
		return fmt.Errorf("memory: recombine applies to surfaces, got dimension %d", dim)
	}
	if err := e.check(dim, tag); err != nil {
		return err
	}
	e.recombine[tag] = angle
	return nil
}

func (e *Engine) SetSmoothing(dim, tag, passes int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.check(dim, tag); err != nil {
		return err
	}
	e.smoothing[mesh.DimTag{Dim: dim, Tag: tag}] = passes
	return nil
}

// SetRefinement adds uniform refinement passes; each pass halves every curve
// segment.
func (e *Engine) SetRefinement(passes int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if passes < 0 {
		return fmt.Errorf("memory: refinement passes must not be negative, got %d", passes)
	}
	e.opts.RefinePasses += passes
	return nil
}

func (e *Engine) SetTransfiniteCurve(tag, numNodes int, dist mesh.Distribution, coef float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if numNodes < 2 {
		return fmt.Errorf("memory: transfinite curve %d needs at least 2 nodes, got %d", tag, numNodes)
	}
	if err := e.check(1, tag); err != nil {
		return err
	}
	e.curves[tag] = curveSpec{nodes: numNodes, dist: dist, coef: coef}
	return nil
}

func (e *Engine) SetTransfiniteSurface(tag int, arr mesh.Arrangement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.check(2, tag); err != nil {
		return err
	}
	e.surfaces[tag] = arr
	return nil
}

func (e *Engine) SetTransfiniteVolume(tag int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.check(3, tag); err != nil {
		return err
	}
	e.volumes[tag] = true
	return nil
}

func (e *Engine) AddBoundaryLayer(bl mesh.BoundaryLayer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if bl.Dim != 1 && bl.Dim != 2 {
		return fmt.Errorf("memory: boundary layer needs curves or surfaces, got dimension %d", bl.Dim)
	}
	if bl.Layers < 1 {
		return fmt.Errorf("memory: boundary layer needs at least 1 layer, got %d", bl.Layers)
	}
	for _, tag := range bl.Tags {
		if err := e.check(bl.Dim, tag); err != nil {
			return err
		}
	}
	bl.Tags = append([]int(nil), bl.Tags...)
	e.layers = append(e.layers, bl)
	return nil
}

func (e *Engine) AddPhysicalGroup(dim int, tags []int, name string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return 0, err
	}
	for _, tag := range tags {
		if err := e.check(dim, tag); err != nil {
			return 0, err
		}
	}
	tag := 1
	for _, g := range e.groups {
		if g.Dim == dim {
			tag++
		}
	}
	e.groups = append(e.groups, mesh.Group{
		Dim:  dim,
		Tag:  tag,
		Name: name,
		Tags: append([]int(nil), tags...),
	})
	return tag, nil
}

// ready reports whether directives can be accepted.
func (e *Engine) ready() error {
	if !e.open {
		return mesh.ErrNotInitialized
	}
	if !e.synced {
		return fmt.Errorf("memory: imported shapes are not synchronized")
	}
	return nil
}

// check verifies that (dim, tag) names a model entity.
func (e *Engine) check(dim, tag int) error {
	kind, err := kindOf(dim)
	if err != nil {
		return err
	}
	if _, ok := e.reg.Shape(entity.Entity{Type: kind, Tag: tag}); !ok {
		return fmt.Errorf("memory: no %s with tag %d", kind, tag)
	}
	return nil
}

func kindOf(dim int) (kernel.ShapeKind, error) {
	switch dim {
	case 0:
		return kernel.KindVertex, nil
	case 1:
		return kernel.KindEdge, nil
	case 2:
		return kernel.KindFace, nil
	case 3:
		return kernel.KindSolid, nil
	}
	return 0, fmt.Errorf("memory: invalid dimension %d", dim)
}
