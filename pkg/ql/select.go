package ql

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/kernel"
)

// ---------------------------------------------------------------------------
// Selection stack
// ---------------------------------------------------------------------------

func (s *Session) push(next []kernel.Shape) *Session {
	s.history = append(s.history, s.selection)
	s.selection = next
	return s
}

func (s *Session) decompose(kind kernel.ShapeKind) *Session {
	if !s.usable() {
		return s
	}
	return s.push(kernel.Select(s.selection, kind))
}

// Solids selects the solids of the current selection.
func (s *Session) Solids() *Session { return s.decompose(kernel.KindSolid) }

// Faces selects the faces of the current selection.
func (s *Session) Faces() *Session { return s.decompose(kernel.KindFace) }

// Wires selects the wires of the current selection.
func (s *Session) Wires() *Session { return s.decompose(kernel.KindWire) }

// Edges selects the edges of the current selection.
func (s *Session) Edges() *Session { return s.decompose(kernel.KindEdge) }

// Vertices selects the vertices of the current selection.
func (s *Session) Vertices() *Session { return s.decompose(kernel.KindVertex) }

// End pops n selections. End(0), or popping past the first selection,
// returns to the loaded shapes.
func (s *Session) End(n int) *Session {
	if !s.usable() {
		return s
	}
	if n < 0 {
		return s.fail(fmt.Errorf("%w: End(%d)", ErrInvalidArgument, n))
	}
	if n == 0 || n >= len(s.history) {
		s.selection = s.initial
		s.history = nil
		return s
	}
	s.selection = s.history[len(s.history)-n]
	s.history = s.history[:len(s.history)-n]
	return s
}

// Vals returns the currently selected shapes.
func (s *Session) Vals() []kernel.Shape {
	return append([]kernel.Shape(nil), s.selection...)
}

// Entities returns the registered entities of the current selection.
// Unregistered shapes are left out.
func (s *Session) Entities() []entity.Entity {
	if s.reg == nil {
		return nil
	}
	return s.reg.SelectMany(s.selection)
}

// ---------------------------------------------------------------------------
// Predicates
// ---------------------------------------------------------------------------

var selectEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("tag", cel.IntType),
		cel.Variable("dim", cel.IntType),
		cel.Variable("x", cel.DoubleType),
		cel.Variable("y", cel.DoubleType),
		cel.Variable("z", cel.DoubleType),
		cel.Variable("length", cel.DoubleType),
		cel.Variable("area", cel.DoubleType),
	)
})

// Where keeps the selected shapes for which the CEL expression expr is
// true. The expression sees kind, tag and dim of the shape's entity (tag 0
// and dim -1 when not applicable), x, y and z of its centre, and length or
// area for edges and faces.
//
//	s.Faces().Where("z > 0.5 && area < 2.0")
func (s *Session) Where(expr string) *Session {
	if !s.usable() {
		return s
	}
	env, err := selectEnv()
	if err != nil {
		return s.fail(fmt.Errorf("ql: predicate environment: %w", err))
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return s.fail(fmt.Errorf("%w: predicate %q: %v", ErrInvalidArgument, expr, iss.Err()))
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return s.fail(fmt.Errorf("%w: predicate %q is %s, not bool", ErrInvalidArgument, expr, ast.OutputType()))
	}
	prg, err := env.Program(ast)
	if err != nil {
		return s.fail(fmt.Errorf("ql: predicate %q: %w", expr, err))
	}

	var kept []kernel.Shape
	for _, shape := range s.selection {
		out, _, err := prg.Eval(s.facts(shape))
		if err != nil {
			return s.fail(fmt.Errorf("ql: predicate %q on %s %d: %w", expr, shape.Kind(), shape.ID(), err))
		}
		if ok, _ := out.Value().(bool); ok {
			kept = append(kept, shape)
		}
	}
	return s.push(kept)
}

func (s *Session) facts(shape kernel.Shape) map[string]any {
	c := shape.Center()
	vars := map[string]any{
		"kind":   shape.Kind().String(),
		"tag":    int64(0),
		"dim":    int64(-1),
		"x":      c.X,
		"y":      c.Y,
		"z":      c.Z,
		"length": 0.0,
		"area":   0.0,
	}
	if e, err := s.reg.Select(shape); err == nil {
		vars["tag"] = int64(e.Tag)
		if dim, err := e.Dim(); err == nil {
			vars["dim"] = int64(dim)
		}
	}
	switch v := shape.(type) {
	case kernel.Edge:
		vars["length"] = v.Length()
	case kernel.Face:
		vars["area"] = v.Area()
	}
	return vars
}
