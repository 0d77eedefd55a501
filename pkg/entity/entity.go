// Package entity assigns stable, dimension-scoped numeric tags to kernel
// shapes so that meshing directives can reference them before they are
// committed to a mesh engine.
package entity

import (
	"errors"
	"fmt"

	"github.com/chazu/meshql/pkg/kernel"
)

var (
	// ErrNotFound is returned when a shape was never registered.
	ErrNotFound = errors.New("entity: shape not registered")
	// ErrNoDimension is returned by Dim for container kinds.
	ErrNoDimension = errors.New("entity: kind has no topological dimension")
)

// Entity is a tagged handle for one registered shape. Equality is defined by
// (Type, Tag) only; Name is informational. Use Key for map keys.
type Entity struct {
	Type kernel.ShapeKind
	Tag  int
	Name string
}

// Key is the comparable identity of an Entity.
type Key struct {
	Type kernel.ShapeKind
	Tag  int
}

// Key returns the identity of e without its name.
func (e Entity) Key() Key {
	return Key{Type: e.Type, Tag: e.Tag}
}

// Equal reports whether e and o identify the same entity.
func (e Entity) Equal(o Entity) bool {
	return e.Type == o.Type && e.Tag == o.Tag
}

// Dim returns the topological dimension: vertex 0, edge 1, face 2, solid 3.
func (e Entity) Dim() (int, error) {
	switch e.Type {
	case kernel.KindVertex:
		return 0, nil
	case kernel.KindEdge:
		return 1, nil
	case kernel.KindFace:
		return 2, nil
	case kernel.KindSolid:
		return 3, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrNoDimension, e.Type)
}

func (e Entity) String() string {
	if e.Name != "" {
		return fmt.Sprintf("%s:%d(%s)", e.Type, e.Tag, e.Name)
	}
	return fmt.Sprintf("%s:%d", e.Type, e.Tag)
}
