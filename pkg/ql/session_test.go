package ql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/kernel/brep"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/mesh/memory"
	"github.com/chazu/meshql/pkg/tracing"
	"github.com/chazu/meshql/pkg/transaction"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// open returns a session over a fresh reference engine, closed when the
// test completes.
func open(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := Open(memory.New(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func box(t *testing.T, max v3.Vec) *brep.Solid {
	t.Helper()
	b, err := brep.NewBuilder().Box(v3.Vec{}, max)
	require.NoError(t, err)
	return b
}

func rect(t *testing.T, w, h float64) *brep.Face {
	t.Helper()
	f, err := brep.NewBuilder().Rect(v3.Vec{}, w, h)
	require.NoError(t, err)
	return f
}

func pendingKinds(s *Session) []transaction.Kind {
	var kinds []transaction.Kind
	for _, t := range s.Pending() {
		kinds = append(kinds, t.Kind())
	}
	return kinds
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestOpenHoldsEngine(t *testing.T) {
	eng := memory.New()
	s, err := Open(eng)
	require.NoError(t, err)

	_, err = Open(eng)
	assert.ErrorIs(t, err, mesh.ErrBusy)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close is idempotent")

	again, err := Open(eng)
	require.NoError(t, err, "a released engine can be acquired again")
	require.NoError(t, again.Close())
}

func TestClosedSession(t *testing.T) {
	s, err := Open(memory.New())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s.Load(rect(t, 1, 1))
	assert.ErrorIs(t, s.Err(), ErrClosed)
	_, err = s.Generate(context.Background(), 2)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNotLoaded(t *testing.T) {
	s := open(t)
	_, err := s.Mesh()
	assert.ErrorIs(t, err, ErrNotLoaded)

	s.Faces().Recombine(45)
	assert.ErrorIs(t, s.Err(), ErrNotLoaded)

	_, err = s.Generate(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoadTwice(t *testing.T) {
	s := open(t)
	s.Load(rect(t, 1, 1)).Load(rect(t, 1, 1))
	assert.ErrorIs(t, s.Err(), ErrAlreadyLoaded)
}

func TestStickyError(t *testing.T) {
	s := open(t).Load(box(t, v3.Vec{X: 1, Y: 1, Z: 1}))
	s.Faces().Where("z >").Recombine(45).Refine(1)

	assert.ErrorIs(t, s.Err(), ErrInvalidArgument)
	assert.Empty(t, s.Pending(), "calls after a failure are skipped")

	_, err := s.Generate(context.Background(), 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGenerateWithoutDirectives(t *testing.T) {
	s := open(t).Load(box(t, v3.Vec{X: 1, Y: 1, Z: 1}))

	_, err := s.Mesh()
	assert.ErrorIs(t, err, transaction.ErrNotGenerated)

	m, err := s.Generate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Dim)
	assert.Equal(t, mesh.DefaultOptions().Algorithm3D, m.Options.Algorithm3D)
	assert.Positive(t, m.ElementCount(mesh.ElementTet))

	got, err := s.Mesh()
	require.NoError(t, err)
	assert.Same(t, m, got)

	_, err = s.Generate(context.Background(), 3)
	assert.ErrorIs(t, err, transaction.ErrAlreadyGenerated)
}

func TestGenerateSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	s := open(t, WithTracer(provider.Tracer("test"))).Load(rect(t, 1, 1))
	s.Refine(1)
	_, err := s.Generate(context.Background(), 2)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	byName := map[string]tracetest.SpanStub{}
	for _, sp := range spans {
		byName[sp.Name] = sp
	}
	outer, ok := byName[tracing.SpanSessionGenerate]
	require.True(t, ok)
	inner, ok := byName[tracing.SpanGenerate]
	require.True(t, ok)
	assert.Equal(t, outer.SpanContext.SpanID(), inner.Parent.SpanID())
	assert.Len(t, inner.Events, 1)
}

// ---------------------------------------------------------------------------
// Selection
// ---------------------------------------------------------------------------

func TestSelectionStack(t *testing.T) {
	solid := box(t, v3.Vec{X: 2, Y: 1, Z: 1})
	s := open(t).Load(solid)

	assert.Len(t, s.Faces().Vals(), 6)
	assert.Len(t, s.Edges().Vals(), 12)
	assert.Len(t, s.End(1).Vals(), 6)
	assert.Len(t, s.Vertices().Vals(), 8)

	s.End(0)
	assert.Equal(t, []kernel.Shape{solid}, s.Vals())
	assert.Len(t, s.Solids().Vals(), 1)

	s.End(5)
	assert.Equal(t, []kernel.Shape{solid}, s.Vals(), "popping past the start resets")

	s.End(-1)
	assert.ErrorIs(t, s.Err(), ErrInvalidArgument)
}

func TestEntities(t *testing.T) {
	s := open(t).Load(box(t, v3.Vec{X: 1, Y: 1, Z: 1}))
	faces := s.Faces().Entities()
	require.Len(t, faces, 6)
	for i, f := range faces {
		assert.Equal(t, entity.Entity{Type: kernel.KindFace, Tag: i + 1}, f)
	}
}

func TestWhere(t *testing.T) {
	tests := []struct {
		name   string
		sel    func(*Session) *Session
		expr   string
		want   int
	}{
		{"top face", (*Session).Faces, "z > 0.99", 1},
		{"long edges", (*Session).Edges, "length > 1.5", 4},
		{"large faces", (*Session).Faces, "area > 1.5", 4},
		{"by tag", (*Session).Faces, "tag <= 2", 2},
		{"by kind", (*Session).Edges, "kind == 'edge' && dim == 1", 12},
		{"origin corner", (*Session).Vertices, "x == 0.0 && y == 0.0 && z == 0.0", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t).Load(box(t, v3.Vec{X: 2, Y: 1, Z: 1}))
			got := tt.sel(s).Where(tt.expr).Vals()
			require.NoError(t, s.Err())
			assert.Len(t, got, tt.want)
		})
	}
}

func TestWhereRejectsBadPredicates(t *testing.T) {
	for _, expr := range []string{"tag + 1", "z >", "unknown > 1"} {
		t.Run(expr, func(t *testing.T) {
			s := open(t).Load(rect(t, 1, 1))
			s.Edges().Where(expr)
			assert.ErrorIs(t, s.Err(), ErrInvalidArgument)
		})
	}
}

// ---------------------------------------------------------------------------
// Directives
// ---------------------------------------------------------------------------

func TestRecombineUpserts(t *testing.T) {
	s := open(t).Load(box(t, v3.Vec{X: 1, Y: 1, Z: 1}))
	s.Faces().Recombine(30).Recombine(60)
	require.NoError(t, s.Err())

	pending := s.Pending()
	require.Len(t, pending, 6)
	for _, p := range pending {
		assert.Equal(t, 60.0, p.(*transaction.Recombine).Angle)
	}

	s.Recombine(0)
	assert.ErrorIs(t, s.Err(), ErrInvalidArgument)
}

func TestMeshSize(t *testing.T) {
	s := open(t).Load(rect(t, 2, 1))
	s.Vertices().SetMeshSize(0.5)
	require.NoError(t, s.Err())

	size := s.Pending()[0].(*transaction.SetMeshSize)
	assert.Len(t, size.Points, 4)
	assert.Equal(t, 0.5, size.Size)

	s.SetMeshSizeFunc(func(x, y, z float64) float64 { return 0.25 })
	require.NoError(t, s.Err())
	assert.NotNil(t, s.Pending()[1].(*transaction.SetMeshSize).Func)

	m, err := s.Generate(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 24, m.ElementCount(mesh.ElementLine), "the size field wins")

	s.SetMeshSize(0)
	assert.ErrorIs(t, s.Err(), ErrInvalidArgument)
}

func TestMeshAlgorithms(t *testing.T) {
	s := open(t).Load(box(t, v3.Vec{X: 1, Y: 1, Z: 1}))
	s.SetMeshAlgorithm(mesh.Algorithm2DFrontalDelaunay, false).
		Faces().Where("z > 0.99").SetMeshAlgorithm(mesh.Algorithm2DBAMG, true).
		SetMeshAlgorithm3D(mesh.Algorithm3DHXT).
		SetSubdivisionAlgorithm(mesh.SubdivisionAllHexahedra)
	require.NoError(t, s.Err())

	assert.Equal(t, []transaction.Kind{
		transaction.KindSetMeshAlgorithm2D,
		transaction.KindSetMeshAlgorithm2D,
		transaction.KindSetMeshAlgorithm3D,
		transaction.KindSetSubdivisionAlgorithm,
	}, pendingKinds(s))
	perFace := s.Pending()[1].(*transaction.SetMeshAlgorithm2D)
	require.NotNil(t, perFace.Face)
	assert.Equal(t, 2, perFace.Face.Tag)

	m, err := s.Generate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, mesh.Algorithm2DFrontalDelaunay, m.Options.Algorithm2D)
	assert.Equal(t, mesh.Algorithm2DBAMG, m.Options.FaceAlgorithms[2])
	assert.Equal(t, mesh.Algorithm3DHXT, m.Options.Algorithm3D)
	assert.Equal(t, mesh.SubdivisionAllHexahedra, m.Options.Subdivision)
}

func TestSmoothAndRefine(t *testing.T) {
	s := open(t).Load(rect(t, 1, 1))
	s.Faces().Smooth(2).Refine(1)
	require.NoError(t, s.Err())
	assert.Equal(t, []transaction.Kind{transaction.KindSetSmoothing, transaction.KindRefine}, pendingKinds(s))

	m, err := s.Generate(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 8, m.ElementCount(mesh.ElementLine), "one refinement pass splits each curve")

	s.Smooth(0)
	assert.ErrorIs(t, s.Err(), ErrInvalidArgument)
}

func TestPhysicalGroups(t *testing.T) {
	s := open(t).Load(box(t, v3.Vec{X: 1, Y: 1, Z: 1}))
	s.Faces().Where("z > 0.99").AddPhysicalGroup("top").
		End(1).
		AddPhysicalGroups(func(i int, shape kernel.Shape) string {
			switch {
			case shape.Center().Z < 0.01:
				return "bottom"
			case shape.Center().Z > 0.99:
				return ""
			default:
				return "side"
			}
		})
	require.NoError(t, s.Err())

	m, err := s.Generate(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, m.Groups, 3)

	top, ok := m.Group("top")
	require.True(t, ok)
	assert.Equal(t, 2, top.Dim)
	assert.Equal(t, []int{2}, top.Tags)

	bottom, ok := m.Group("bottom")
	require.True(t, ok)
	assert.Equal(t, []int{1}, bottom.Tags)

	side, ok := m.Group("side")
	require.True(t, ok)
	assert.Equal(t, []int{3, 4, 5, 6}, side.Tags)
	assert.Equal(t, 3, side.Tag)

	assert.Equal(t, 1, s.Pending()[0].(*transaction.SetPhysicalGroup).Tag)
}

func TestPhysicalGroupEmptySelection(t *testing.T) {
	s := open(t).Load(rect(t, 1, 1))
	s.Faces().Where("z > 5.0").AddPhysicalGroup("nothing")
	assert.ErrorIs(t, s.Err(), ErrEmptySelection)
}

func TestAddTransaction(t *testing.T) {
	s := open(t).Load(rect(t, 1, 1))
	s.AddTransaction(func(s *Session) transaction.Transaction {
		return &transaction.Refine{Passes: 2}
	})
	require.NoError(t, s.Err())
	assert.Equal(t, []transaction.Kind{transaction.KindRefine}, pendingKinds(s))

	s.AddTransaction(func(*Session) transaction.Transaction { return nil })
	assert.ErrorIs(t, s.Err(), ErrInvalidArgument)
}

func TestCoarseLevel(t *testing.T) {
	s := open(t, WithLevel(kernel.KindFace)).Load(rect(t, 1, 1))
	assert.Zero(t, s.Registry().Len(kernel.KindEdge))

	s.Faces().SetTransfiniteEdge(EdgeSpec{Elements: []int{3}})
	require.NoError(t, s.Err())
	assert.Empty(t, s.Pending(), "unregistered edges are skipped")
}
