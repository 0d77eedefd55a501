package kernel_test

import (
	"testing"

	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/kernel/brep"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func TestShapeKindString(t *testing.T) {
	tests := []struct {
		kind kernel.ShapeKind
		want string
	}{
		{kernel.KindVertex, "vertex"},
		{kernel.KindEdge, "edge"},
		{kernel.KindWire, "wire"},
		{kernel.KindFace, "face"},
		{kernel.KindShell, "shell"},
		{kernel.KindSolid, "solid"},
		{kernel.KindCompound, "compound"},
		{kernel.ShapeKind(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseShapeKind(t *testing.T) {
	k, err := kernel.ParseShapeKind("face")
	if err != nil || k != kernel.KindFace {
		t.Errorf("ParseShapeKind(face) = %v, %v", k, err)
	}
	if _, err := kernel.ParseShapeKind("polygon"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestSelectSelfAndBelow(t *testing.T) {
	b := brep.NewBuilder()
	f, err := b.Rect(v3.Vec{}, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	edges := kernel.Select([]kernel.Shape{f}, kernel.KindEdge)

	if got := kernel.Select(edges, kernel.KindEdge); len(got) != 4 {
		t.Errorf("edges select themselves: got %d, want 4", len(got))
	}
	if got := kernel.Select(edges, kernel.KindFace); len(got) != 0 {
		t.Errorf("edges cannot select faces: got %d, want 0", len(got))
	}
}

func TestSelectBatch(t *testing.T) {
	b := brep.NewBuilder()
	g, err := b.Grid([]float64{0, 1, 2}, []float64{0, 1})
	if err != nil {
		t.Fatal(err)
	}

	batches := kernel.SelectBatch([]kernel.Shape{g}, kernel.KindFace, kernel.KindEdge)
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	for i, batch := range batches {
		if len(batch) != 4 {
			t.Errorf("batch %d has %d edges, want 4", i, len(batch))
		}
	}

	// Edges are below the face rank, so they form a single batch.
	edges := kernel.Select([]kernel.Shape{g}, kernel.KindEdge)
	batches = kernel.SelectBatch(edges, kernel.KindFace, kernel.KindEdge)
	if len(batches) != 1 || len(batches[0]) != 7 {
		t.Errorf("edge selection should batch as one group of 7, got %d batches", len(batches))
	}

	if kernel.SelectBatch(nil, kernel.KindFace, kernel.KindEdge) != nil {
		t.Error("empty selection should yield no batches")
	}
}

func TestSortByConnect(t *testing.T) {
	b := brep.NewBuilder()
	p0 := b.Vertex(v3.Vec{})
	p1 := b.Vertex(v3.Vec{X: 1})
	p2 := b.Vertex(v3.Vec{X: 1, Y: 1})
	p3 := b.Vertex(v3.Vec{Y: 1})

	// Shuffled, with one edge pointing against the loop.
	edges := []kernel.Edge{
		b.Line(p0, p1),
		b.Line(p3, p2),
		b.Line(p1, p2),
		b.Line(p3, p0),
	}
	sorted := kernel.SortByConnect(edges)
	if len(sorted) != 4 {
		t.Fatalf("sorted %d edges, want 4", len(sorted))
	}
	for i := range sorted {
		next := sorted[(i+1)%len(sorted)]
		if sorted[i].Tail().ID() != next.Head().ID() {
			t.Errorf("edge %d tail %d does not meet edge %d head %d",
				i, sorted[i].Tail().ID(), (i+1)%4, next.Head().ID())
		}
	}
	if !sorted[2].Reversed {
		t.Error("p2 -> p3 traversal should reverse the p3 -> p2 edge")
	}
}

func TestTypedSelectors(t *testing.T) {
	b := brep.NewBuilder()
	box, err := b.Box(v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1})
	if err != nil {
		t.Fatal(err)
	}
	shapes := []kernel.Shape{box}
	if n := len(kernel.Faces(shapes)); n != 6 {
		t.Errorf("Faces() = %d, want 6", n)
	}
	if n := len(kernel.Edges(shapes)); n != 12 {
		t.Errorf("Edges() = %d, want 12", n)
	}
	if n := len(kernel.Vertices(shapes)); n != 8 {
		t.Errorf("Vertices() = %d, want 8", n)
	}
}
