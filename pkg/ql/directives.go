package ql

import (
	"fmt"

	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/transaction"
)

// AddPhysicalGroup names the selected entities. The selection must hold
// shapes of a single dimension.
func (s *Session) AddPhysicalGroup(name string) *Session {
	if !s.usable() {
		return s
	}
	members := s.reg.SelectMany(s.selection)
	if len(members) == 0 {
		return s.fail(fmt.Errorf("%w: physical group %q", ErrEmptySelection, name))
	}
	s.add(&transaction.SetPhysicalGroup{Members: members, Name: name})
	return s
}

// AddPhysicalGroups names the selected entities one by one. name is called
// with each selected shape and its position; shapes that map to the same
// name share a group, and an empty name leaves the shape out. Groups are
// recorded in the order their names first appear.
func (s *Session) AddPhysicalGroups(name func(i int, shape kernel.Shape) string) *Session {
	if !s.usable() {
		return s
	}
	var order []string
	members := make(map[string][]entity.Entity)
	for i, shape := range s.selection {
		e, err := s.reg.Select(shape)
		if err != nil {
			continue
		}
		n := name(i, shape)
		if n == "" {
			continue
		}
		if _, ok := members[n]; !ok {
			order = append(order, n)
		}
		members[n] = append(members[n], e)
	}
	for _, n := range order {
		s.add(&transaction.SetPhysicalGroup{Members: members[n], Name: n})
	}
	return s
}

// Recombine asks for the selected faces to be recombined into quads.
// Faces that already carry a recombine directive get the new angle.
func (s *Session) Recombine(angle float64) *Session {
	if !s.usable() {
		return s
	}
	if angle <= 0 || angle > 90 {
		return s.fail(fmt.Errorf("%w: recombine angle %g", ErrInvalidArgument, angle))
	}
	for _, face := range s.reg.SelectManyOf(s.selection, kernel.KindFace) {
		if t, ok := transaction.Lookup[*transaction.Recombine](s.tx, face); ok {
			t.Angle = angle
			continue
		}
		s.add(&transaction.Recombine{Face: face, Angle: angle})
	}
	return s
}

// SetMeshSize sets the element size at every selected vertex.
func (s *Session) SetMeshSize(size float64) *Session {
	if !s.usable() {
		return s
	}
	if size <= 0 {
		return s.fail(fmt.Errorf("%w: mesh size %g", ErrInvalidArgument, size))
	}
	points := s.reg.SelectManyOf(s.selection, kernel.KindVertex)
	s.add(&transaction.SetMeshSize{Points: points, Size: size})
	return s
}

// SetMeshSizeFunc sets a position-dependent element size.
func (s *Session) SetMeshSizeFunc(fn mesh.SizeFunc) *Session {
	if !s.usable() {
		return s
	}
	if fn == nil {
		return s.fail(fmt.Errorf("%w: nil size function", ErrInvalidArgument))
	}
	points := s.reg.SelectManyOf(s.selection, kernel.KindVertex)
	s.add(&transaction.SetMeshSize{Points: points, Func: fn})
	return s
}

// SetMeshAlgorithm selects the surface algorithm, globally or for each
// selected face.
func (s *Session) SetMeshAlgorithm(alg mesh.Algorithm2D, perFace bool) *Session {
	if !s.usable() {
		return s
	}
	if !perFace {
		s.add(&transaction.SetMeshAlgorithm2D{Algorithm: alg})
		return s
	}
	for _, face := range s.reg.SelectManyOf(s.selection, kernel.KindFace) {
		s.add(&transaction.SetMeshAlgorithm2D{Algorithm: alg, Face: &face})
	}
	return s
}

// SetMeshAlgorithm3D selects the volume algorithm.
func (s *Session) SetMeshAlgorithm3D(alg mesh.Algorithm3D) *Session {
	if !s.usable() {
		return s
	}
	s.add(&transaction.SetMeshAlgorithm3D{Algorithm: alg})
	return s
}

// SetSubdivisionAlgorithm selects the element subdivision.
func (s *Session) SetSubdivisionAlgorithm(alg mesh.Subdivision) *Session {
	if !s.usable() {
		return s
	}
	s.add(&transaction.SetSubdivisionAlgorithm{Algorithm: alg})
	return s
}

// Smooth requests smoothing passes on the selected faces.
func (s *Session) Smooth(passes int) *Session {
	if !s.usable() {
		return s
	}
	if passes < 1 {
		return s.fail(fmt.Errorf("%w: %d smoothing passes", ErrInvalidArgument, passes))
	}
	for _, face := range s.reg.SelectManyOf(s.selection, kernel.KindFace) {
		s.add(&transaction.SetSmoothing{Entity: face, Passes: passes})
	}
	return s
}

// Refine requests uniform refinement passes.
func (s *Session) Refine(passes int) *Session {
	if !s.usable() {
		return s
	}
	if passes < 1 {
		return s.fail(fmt.Errorf("%w: %d refinement passes", ErrInvalidArgument, passes))
	}
	s.add(&transaction.Refine{Passes: passes})
	return s
}
