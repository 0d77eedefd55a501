package entity

import (
	"errors"
	"testing"

	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/kernel/brep"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func unitBox(t *testing.T, b *brep.Builder, x float64) *brep.Solid {
	t.Helper()
	box, err := b.Box(v3.Vec{X: x}, v3.Vec{X: x + 1, Y: 1, Z: 1})
	require.NoError(t, err)
	return box
}

func TestNewRegistryLevels(t *testing.T) {
	tests := []struct {
		level kernel.ShapeKind
		want  map[kernel.ShapeKind]int
	}{
		{kernel.KindVertex, map[kernel.ShapeKind]int{
			kernel.KindSolid: 1, kernel.KindShell: 1, kernel.KindFace: 6,
			kernel.KindWire: 6, kernel.KindEdge: 12, kernel.KindVertex: 8,
		}},
		{kernel.KindEdge, map[kernel.ShapeKind]int{
			kernel.KindSolid: 1, kernel.KindShell: 1, kernel.KindFace: 6,
			kernel.KindWire: 6, kernel.KindEdge: 12, kernel.KindVertex: 0,
		}},
		{kernel.KindFace, map[kernel.ShapeKind]int{
			kernel.KindSolid: 1, kernel.KindShell: 1, kernel.KindFace: 6,
			kernel.KindWire: 0, kernel.KindEdge: 0,
		}},
		{kernel.KindSolid, map[kernel.ShapeKind]int{
			kernel.KindSolid: 1, kernel.KindShell: 0, kernel.KindFace: 0,
		}},
		{kernel.KindCompound, map[kernel.ShapeKind]int{
			kernel.KindSolid: 0, kernel.KindShell: 0,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			box := unitBox(t, brep.NewBuilder(), 0)
			r := NewRegistry([]kernel.Shape{box}, tt.level)
			assert.Equal(t, 3, r.Dimension())
			for kind, want := range tt.want {
				assert.Equal(t, want, r.Len(kind), "kind %s", kind)
			}
		})
	}
}

func TestNewRegistry2DWalkOrder(t *testing.T) {
	b := brep.NewBuilder()
	g, err := b.Grid([]float64{0, 1, 2}, []float64{0, 1})
	require.NoError(t, err)

	r := NewRegistry([]kernel.Shape{g}, kernel.KindVertex)
	assert.Equal(t, 2, r.Dimension())
	assert.Equal(t, 2, r.Len(kernel.KindFace))
	assert.Equal(t, 7, r.Len(kernel.KindEdge))
	assert.Equal(t, 6, r.Len(kernel.KindVertex))
	assert.Equal(t, 0, r.Len(kernel.KindCompound), "2-D walk starts at faces")

	faces := kernel.Faces([]kernel.Shape{g})
	first := faces[0].OuterWire().Edges()[0]

	e, err := r.Select(first)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Tag)

	start, err := r.Select(first.Start())
	require.NoError(t, err)
	assert.Equal(t, 1, start.Tag, "vertices are registered before their edge")

	second, err := r.Select(faces[1])
	require.NoError(t, err)
	assert.Equal(t, 2, second.Tag)
}

func TestNewRegistryCompoundAfterSolids(t *testing.T) {
	b := brep.NewBuilder()
	c := b.Compound(unitBox(t, b, 0), unitBox(t, b, 2))

	r := NewRegistry([]kernel.Shape{c}, kernel.KindEdge)
	assert.Equal(t, 1, r.Len(kernel.KindCompound))
	assert.Equal(t, 2, r.Len(kernel.KindSolid))
	assert.Equal(t, 12, r.Len(kernel.KindFace))

	e, err := r.Select(c)
	require.NoError(t, err)
	assert.Equal(t, Entity{Type: kernel.KindCompound, Tag: 1}, e)
}

func TestSelectUnregistered(t *testing.T) {
	b := brep.NewBuilder()
	r := NewRegistry([]kernel.Shape{unitBox(t, b, 0)}, kernel.KindEdge)

	stray := b.Vertex(v3.Vec{X: 5})
	_, err := r.Select(stray)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSelectManySkipsAndDedups(t *testing.T) {
	b := brep.NewBuilder()
	box := unitBox(t, b, 0)
	r := NewRegistry([]kernel.Shape{box}, kernel.KindEdge)

	edges := kernel.Select([]kernel.Shape{box}, kernel.KindEdge)
	stray := b.Line(b.Vertex(v3.Vec{}), b.Vertex(v3.Vec{X: 9}))
	in := []kernel.Shape{edges[0], stray, edges[0], edges[1]}

	got := r.SelectMany(in)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Tag)

	// Vertices sit below the registered level and are skipped silently.
	assert.Empty(t, r.SelectManyOf([]kernel.Shape{box}, kernel.KindVertex))
	assert.Len(t, r.SelectManyOf([]kernel.Shape{box}, kernel.KindFace), 6)
}

func TestSelectBatchPerFace(t *testing.T) {
	b := brep.NewBuilder()
	g, err := b.Grid([]float64{0, 1, 2}, []float64{0, 1})
	require.NoError(t, err)
	r := NewRegistry([]kernel.Shape{g}, kernel.KindEdge)

	batches := r.SelectBatch([]kernel.Shape{g}, kernel.KindFace, kernel.KindEdge)
	require.Len(t, batches, 2)
	for _, batch := range batches {
		assert.Len(t, batch, 4)
	}
	// The shared middle edge appears in both batches.
	shared := 0
	for _, a := range batches[0] {
		for _, c := range batches[1] {
			if a.Equal(c) {
				shared++
			}
		}
	}
	assert.Equal(t, 1, shared)
}

func TestReverseLookup(t *testing.T) {
	b := brep.NewBuilder()
	box := unitBox(t, b, 0)
	r := NewRegistry([]kernel.Shape{box}, kernel.KindVertex)

	for _, e := range r.Entities(kernel.KindEdge) {
		s, ok := r.Shape(e)
		require.True(t, ok)
		back, err := r.Select(s)
		require.NoError(t, err)
		assert.True(t, back.Equal(e))
	}

	_, ok := r.Shape(Entity{Type: kernel.KindEdge, Tag: 13})
	assert.False(t, ok)
	_, ok = r.Shape(Entity{Type: kernel.KindEdge, Tag: 0})
	assert.False(t, ok)
	assert.Len(t, r.Shapes(kernel.KindVertex), 8)
}

func TestEntityEquality(t *testing.T) {
	a := Entity{Type: kernel.KindFace, Tag: 3, Name: "inlet"}
	b := Entity{Type: kernel.KindFace, Tag: 3}
	c := Entity{Type: kernel.KindEdge, Tag: 3, Name: "inlet"}

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c))

	seen := map[Key]bool{a.Key(): true}
	assert.True(t, seen[b.Key()])
	assert.False(t, seen[c.Key()])
}

func TestEntityDim(t *testing.T) {
	tests := []struct {
		kind kernel.ShapeKind
		want int
	}{
		{kernel.KindVertex, 0},
		{kernel.KindEdge, 1},
		{kernel.KindFace, 2},
		{kernel.KindSolid, 3},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			d, err := Entity{Type: tt.kind, Tag: 1}.Dim()
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
	for _, k := range []kernel.ShapeKind{kernel.KindWire, kernel.KindShell, kernel.KindCompound} {
		_, err := Entity{Type: k, Tag: 1}.Dim()
		assert.ErrorIs(t, err, ErrNoDimension, "kind %s", k)
	}
}

func TestEntityString(t *testing.T) {
	assert.Equal(t, "edge:4", Entity{Type: kernel.KindEdge, Tag: 4}.String())
	assert.Equal(t, "face:2(wall)", Entity{Type: kernel.KindFace, Tag: 2, Name: "wall"}.String())
}

func TestTagStabilityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(rt, "n")
		order := rapid.SliceOfN(rapid.IntRange(0, n-1), 1, 100).Draw(rt, "order")

		b := brep.NewBuilder()
		vs := make([]*brep.Vertex, n)
		for i := range vs {
			vs[i] = b.Vertex(v3.Vec{X: float64(i)})
		}

		r := NewRegistry(nil, kernel.KindVertex)
		first := make(map[int]int)
		next := 1
		for _, i := range order {
			e := r.Add(vs[i])
			if tag, ok := first[i]; ok {
				if e.Tag != tag {
					rt.Fatalf("vertex %d re-tagged from %d to %d", i, tag, e.Tag)
				}
				continue
			}
			if e.Tag != next {
				rt.Fatalf("vertex %d got tag %d, want dense tag %d", i, e.Tag, next)
			}
			first[i] = e.Tag
			next++
		}
		if r.Len(kernel.KindVertex) != len(first) {
			rt.Fatalf("Len = %d, want %d", r.Len(kernel.KindVertex), len(first))
		}
	})
}

func TestEntityEqualityProperty(t *testing.T) {
	kinds := []kernel.ShapeKind{kernel.KindVertex, kernel.KindEdge, kernel.KindFace, kernel.KindSolid}
	rapid.Check(t, func(rt *rapid.T) {
		a := Entity{
			Type: rapid.SampledFrom(kinds).Draw(rt, "ta"),
			Tag:  rapid.IntRange(1, 5).Draw(rt, "ga"),
			Name: rapid.StringN(0, 4, -1).Draw(rt, "na"),
		}
		b := Entity{
			Type: rapid.SampledFrom(kinds).Draw(rt, "tb"),
			Tag:  rapid.IntRange(1, 5).Draw(rt, "gb"),
			Name: rapid.StringN(0, 4, -1).Draw(rt, "nb"),
		}
		want := a.Type == b.Type && a.Tag == b.Tag
		if a.Equal(b) != want || (a.Key() == b.Key()) != want {
			rt.Fatalf("equality of %v and %v should be %v", a, b, want)
		}
	})
}
