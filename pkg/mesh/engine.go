// Package mesh defines the mesh-engine collaborator: the Engine interface
// that meshing directives are committed to, the option enums they forward,
// and the immutable Mesh artifact produced by generation.
package mesh

import (
	"errors"

	"github.com/chazu/meshql/pkg/kernel"
)

var (
	// ErrBusy is returned by Initialize when the engine already has an open
	// session.
	ErrBusy = errors.New("mesh: engine already initialized")
	// ErrNotInitialized is returned by every call made outside an
	// Initialize/Finalize scope.
	ErrNotInitialized = errors.New("mesh: engine not initialized")
)

// DimTag addresses one model entity by topological dimension and tag.
type DimTag struct {
	Dim int `yaml:"dim"`
	Tag int `yaml:"tag"`
}

// SizeFunc returns the target element size at a position.
type SizeFunc func(x, y, z float64) float64

// BoundaryLayer describes a boundary-layer field. Dim is 1 when Tags are
// curves (2-D models) and 2 when they are surfaces.
type BoundaryLayer struct {
	Dim      int     `yaml:"dim"`
	Tags     []int   `yaml:"tags"`
	Ratio    float64 `yaml:"ratio"`
	WallSize float64 `yaml:"wall_size"`
	Layers   int     `yaml:"layers"`
}

// Engine is the mesh-generation backend. Tags passed to an Engine are the
// dimension-scoped tags assigned by walking the imported shapes the same way
// entity.NewRegistry does.
//
// An Engine holds process-wide state: callers acquire it with Initialize and
// must release it with Finalize on every path.
type Engine interface {
	Initialize() error
	Finalize() error

	// Import adds shapes to the model. They become addressable after
	// Synchronize.
	Import(shapes []kernel.Shape) error
	Synchronize() error

	SetSize(points []DimTag, size float64) error
	SetSizeCallback(fn SizeFunc) error
	// SetAlgorithm2D sets the surface algorithm for face, or globally when
	// face is 0.
	SetAlgorithm2D(alg Algorithm2D, face int) error
	SetAlgorithm3D(alg Algorithm3D) error
	SetSubdivision(alg Subdivision) error
	SetRecombine(dim, tag int, angle float64) error
	SetSmoothing(dim, tag, passes int) error
	SetRefinement(passes int) error

	SetTransfiniteCurve(tag, numNodes int, dist Distribution, coef float64) error
	SetTransfiniteSurface(tag int, arr Arrangement) error
	SetTransfiniteVolume(tag int) error
	AddBoundaryLayer(bl BoundaryLayer) error

	// AddPhysicalGroup returns the new group's tag.
	AddPhysicalGroup(dim int, tags []int, name string) (int, error)

	Generate(dim int) (*Mesh, error)
}
