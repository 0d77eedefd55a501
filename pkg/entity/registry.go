package entity

import (
	"fmt"

	"github.com/chazu/meshql/pkg/kernel"
)

// ordered is one kind's insertion-ordered mapping from shape identity to tag.
type ordered struct {
	shapes []kernel.Shape // index = tag - 1
	tags   map[kernel.ShapeID]int
}

// Registry maps shapes to entities, one dense 1-based tag sequence per kind.
// A Registry is owned by a single session and is not safe for concurrent use.
type Registry struct {
	kinds     map[kernel.ShapeKind]*ordered
	dimension int
}

// NewRegistry registers shapes and every constituent down to level.
//
// Models containing solids are walked compound -> solid -> shell -> face;
// other models are walked from their faces. Faces descend into wires, edges
// and vertices. Descent into a kind K happens only when level <= K, and a
// container is registered after its children, so container tags follow the
// order in which their last child was discovered.
func NewRegistry(shapes []kernel.Shape, level kernel.ShapeKind) *Registry {
	r := &Registry{kinds: make(map[kernel.ShapeKind]*ordered)}
	for k := kernel.KindVertex; k <= kernel.KindCompound; k++ {
		r.kinds[k] = &ordered{tags: make(map[kernel.ShapeID]int)}
	}

	if len(kernel.Select(shapes, kernel.KindSolid)) > 0 {
		r.dimension = 3
		r.init3D(shapes, level)
	} else {
		r.dimension = 2
		r.initFaces(kernel.Select(shapes, kernel.KindFace), level)
	}
	return r
}

func (r *Registry) init3D(shapes []kernel.Shape, level kernel.ShapeKind) {
	for _, s := range shapes {
		if level <= kernel.KindSolid {
			for _, solid := range kernel.Select([]kernel.Shape{s}, kernel.KindSolid) {
				r.initSolid(solid, level)
			}
		}
		if s.Kind() == kernel.KindCompound {
			r.Add(s)
		}
	}
}

func (r *Registry) initSolid(solid kernel.Shape, level kernel.ShapeKind) {
	if level <= kernel.KindShell {
		for _, shell := range solid.Children() {
			if level <= kernel.KindFace {
				r.initFaces(kernel.Select([]kernel.Shape{shell}, kernel.KindFace), level)
			}
			r.Add(shell)
		}
	}
	r.Add(solid)
}

func (r *Registry) initFaces(faces []kernel.Shape, level kernel.ShapeKind) {
	for _, face := range faces {
		if level <= kernel.KindWire {
			for _, wire := range face.Children() {
				if level <= kernel.KindEdge {
					for _, edge := range wire.Children() {
						if level <= kernel.KindVertex {
							for _, vertex := range edge.Children() {
								r.Add(vertex)
							}
						}
						r.Add(edge)
					}
				}
				r.Add(wire)
			}
		}
		r.Add(face)
	}
}

// Dimension is 3 when the registered model contains solids, 2 otherwise.
func (r *Registry) Dimension() int {
	return r.dimension
}

// Add registers s under its kind and returns its entity. Adding an already
// registered shape returns the existing entity unchanged.
func (r *Registry) Add(s kernel.Shape) Entity {
	o := r.kinds[s.Kind()]
	if tag, ok := o.tags[s.ID()]; ok {
		return Entity{Type: s.Kind(), Tag: tag}
	}
	o.shapes = append(o.shapes, s)
	tag := len(o.shapes)
	o.tags[s.ID()] = tag
	return Entity{Type: s.Kind(), Tag: tag}
}

// Select returns the entity registered for s.
func (r *Registry) Select(s kernel.Shape) (Entity, error) {
	o, ok := r.kinds[s.Kind()]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s %d", ErrNotFound, s.Kind(), s.ID())
	}
	tag, ok := o.tags[s.ID()]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s %d", ErrNotFound, s.Kind(), s.ID())
	}
	return Entity{Type: s.Kind(), Tag: tag}, nil
}

// SelectMany returns the distinct entities of shapes, in first-seen order.
// Shapes that were never registered are skipped, not reported.
func (r *Registry) SelectMany(shapes []kernel.Shape) []Entity {
	seen := make(map[Key]bool)
	var out []Entity
	for _, s := range shapes {
		e, err := r.Select(s)
		if err != nil {
			continue
		}
		if !seen[e.Key()] {
			seen[e.Key()] = true
			out = append(out, e)
		}
	}
	return out
}

// SelectManyOf decomposes shapes into their kind constituents first, then
// behaves like SelectMany.
func (r *Registry) SelectManyOf(shapes []kernel.Shape, kind kernel.ShapeKind) []Entity {
	return r.SelectMany(kernel.Select(shapes, kind))
}

// SelectBatch returns, per parent-kind container of shapes, the registered
// child-kind entities inside it.
func (r *Registry) SelectBatch(shapes []kernel.Shape, parent, child kernel.ShapeKind) [][]Entity {
	batches := kernel.SelectBatch(shapes, parent, child)
	out := make([][]Entity, 0, len(batches))
	for _, b := range batches {
		out = append(out, r.SelectMany(b))
	}
	return out
}

// Shape returns the shape registered under e.
func (r *Registry) Shape(e Entity) (kernel.Shape, bool) {
	o, ok := r.kinds[e.Type]
	if !ok || e.Tag < 1 || e.Tag > len(o.shapes) {
		return nil, false
	}
	return o.shapes[e.Tag-1], true
}

// Entities returns the registered entities of kind in tag order.
func (r *Registry) Entities(kind kernel.ShapeKind) []Entity {
	o, ok := r.kinds[kind]
	if !ok {
		return nil
	}
	out := make([]Entity, len(o.shapes))
	for i := range o.shapes {
		out[i] = Entity{Type: kind, Tag: i + 1}
	}
	return out
}

// Shapes returns the registered shapes of kind in tag order.
func (r *Registry) Shapes(kind kernel.ShapeKind) []kernel.Shape {
	o, ok := r.kinds[kind]
	if !ok {
		return nil
	}
	out := make([]kernel.Shape, len(o.shapes))
	copy(out, o.shapes)
	return out
}

// Len returns the number of registered shapes of kind.
func (r *Registry) Len(kind kernel.ShapeKind) int {
	if o, ok := r.kinds[kind]; ok {
		return len(o.shapes)
	}
	return 0
}
