package transaction

import (
	"context"
	"errors"
	"fmt"
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
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// recorder is a mesh.Engine that logs every call.
type recorder struct {
	calls []string
	fail  string
}

var _ mesh.Engine = (*recorder)(nil)

func (r *recorder) log(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	r.calls = append(r.calls, call)
	if r.fail != "" && call == r.fail {
		return errors.New("engine rejected " + call)
	}
	return nil
}

func (r *recorder) Initialize() error                   { return nil }
func (r *recorder) Finalize() error                     { return nil }
func (r *recorder) Import(shapes []kernel.Shape) error  { return nil }
func (r *recorder) Synchronize() error                  { return nil }
func (r *recorder) SetSizeCallback(mesh.SizeFunc) error { return r.log("size-callback") }
func (r *recorder) SetSize(points []mesh.DimTag, size float64) error {
	return r.log("size %v %g", points, size)
}
func (r *recorder) SetAlgorithm2D(alg mesh.Algorithm2D, face int) error {
	return r.log("alg2d %s %d", alg, face)
}
func (r *recorder) SetAlgorithm3D(alg mesh.Algorithm3D) error { return r.log("alg3d %s", alg) }
func (r *recorder) SetSubdivision(alg mesh.Subdivision) error { return r.log("subdiv %s", alg) }
func (r *recorder) SetRecombine(dim, tag int, angle float64) error {
	return r.log("recombine %d %d %g", dim, tag, angle)
}
func (r *recorder) SetSmoothing(dim, tag, passes int) error {
	return r.log("smooth %d %d %d", dim, tag, passes)
}
func (r *recorder) SetRefinement(passes int) error { return r.log("refine %d", passes) }
func (r *recorder) SetTransfiniteCurve(tag, numNodes int, dist mesh.Distribution, coef float64) error {
	return r.log("curve %d %d %s %g", tag, numNodes, dist, coef)
}
func (r *recorder) SetTransfiniteSurface(tag int, arr mesh.Arrangement) error {
	return r.log("surface %d %s", tag, arr)
}
func (r *recorder) SetTransfiniteVolume(tag int) error { return r.log("volume %d", tag) }
func (r *recorder) AddBoundaryLayer(bl mesh.BoundaryLayer) error {
	return r.log("layer %d %v %g %g %d", bl.Dim, bl.Tags, bl.Ratio, bl.WallSize, bl.Layers)
}
func (r *recorder) AddPhysicalGroup(dim int, tags []int, name string) (int, error) {
	return 7, r.log("group %d %v %s", dim, tags, name)
}
func (r *recorder) Generate(dim int) (*mesh.Mesh, error) {
	if err := r.log("generate %d", dim); err != nil {
		return nil, err
	}
	return &mesh.Mesh{Dim: dim}, nil
}

func edge(tag int) entity.Entity { return entity.Entity{Type: kernel.KindEdge, Tag: tag} }
func face(tag int) entity.Entity { return entity.Entity{Type: kernel.KindFace, Tag: tag} }

func TestGetBeforeAndAfterUpsert(t *testing.T) {
	c := NewContext()
	e := edge(3)

	assert.Nil(t, c.Get(KindSetTransfiniteEdge, e))
	_, ok := Lookup[*SetTransfiniteEdge](c, e)
	assert.False(t, ok)

	c.Add(&SetTransfiniteEdge{Edge: e, Elements: 4, Coef: 1})
	got, ok := Lookup[*SetTransfiniteEdge](c, e)
	require.True(t, ok)
	got.Elements = 9

	eng := &recorder{}
	_, err := c.Generate(context.Background(), eng, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"curve 3 10 Progression 1", "generate 2"}, eng.calls)
	assert.Equal(t, 1, c.Len())
}

func TestGetIgnoresNameAndKind(t *testing.T) {
	c := NewContext()
	c.Add(&Recombine{Face: face(1), Angle: 45})

	named := entity.Entity{Type: kernel.KindFace, Tag: 1, Name: "inlet"}
	assert.NotNil(t, c.Get(KindRecombine, named), "lookup matches on type and tag only")
	assert.Nil(t, c.Get(KindSetTransfiniteFace, face(1)))
	assert.Nil(t, c.Get(KindRecombine, edge(1)))
}

func TestGetReturnsMostRecent(t *testing.T) {
	c := NewContext()
	first := &SetSmoothing{Entity: face(2), Passes: 1}
	second := &SetSmoothing{Entity: face(2), Passes: 5}
	c.AddAll(first, second)

	assert.Same(t, second, c.Get(KindSetSmoothing, face(2)))
	assert.Equal(t, 2, c.Len(), "Add never deduplicates")
}

func TestGenerateAppliesInOrder(t *testing.T) {
	c := NewContext()
	c.AddAll(
		&Recombine{Face: face(1), Angle: 30},
		&Refine{Passes: 2},
		&SetMeshAlgorithm2D{Algorithm: mesh.Algorithm2DDelaunay},
		&SetMeshAlgorithm2D{Algorithm: mesh.Algorithm2DBAMG, Face: &entity.Entity{Type: kernel.KindFace, Tag: 4}},
		&SetMeshAlgorithm3D{Algorithm: mesh.Algorithm3DHXT},
		&SetSubdivisionAlgorithm{Algorithm: mesh.SubdivisionAllQuadrangles},
		&SetTransfiniteFace{Face: face(1), Arrangement: mesh.ArrangementAlternateLeft},
		&SetTransfiniteSolid{Solid: entity.Entity{Type: kernel.KindSolid, Tag: 1}},
		&SetSmoothing{Entity: face(1), Passes: 3},
		&SetMeshSize{Points: []entity.Entity{{Type: kernel.KindVertex, Tag: 2}}, Size: 0.5},
		&SetMeshSize{Func: func(x, y, z float64) float64 { return 1 }},
		&UnstructuredBoundaryLayer{Targets: []entity.Entity{face(1), face(2)}, Ratio: 1.2, WallSize: -0.1, Layers: 4},
	)

	eng := &recorder{}
	m, err := c.Generate(context.Background(), eng, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Dim)
	assert.Equal(t, []string{
		"recombine 2 1 30",
		"refine 2",
		"alg2d Delaunay 0",
		"alg2d BAMG 4",
		"alg3d HXT",
		"subdiv AllQuadrangles",
		"surface 1 AlternateLeft",
		"volume 1",
		"smooth 2 1 3",
		"size [{0 2}] 0.5",
		"size-callback",
		"layer 2 [1 2] 1.2 -0.1 4",
		"generate 3",
	}, eng.calls)
}

func TestPhysicalGroup(t *testing.T) {
	c := NewContext()
	g := &SetPhysicalGroup{Members: []entity.Entity{face(1), face(3)}, Name: "wall"}
	c.Add(g)

	eng := &recorder{}
	_, err := c.Generate(context.Background(), eng, 2)
	require.NoError(t, err)
	assert.Equal(t, "group 2 [1 3] wall", eng.calls[0])
	assert.Equal(t, 7, g.Tag)
}

func TestPhysicalGroupRejectsMixedDimensions(t *testing.T) {
	c := NewContext()
	c.Add(&SetPhysicalGroup{Members: []entity.Entity{face(1), edge(1)}, Name: "mixed"})
	_, err := c.Generate(context.Background(), &recorder{}, 2)
	assert.Error(t, err)
}

func TestSmoothingRejectsContainers(t *testing.T) {
	c := NewContext()
	c.Add(&SetSmoothing{Entity: entity.Entity{Type: kernel.KindShell, Tag: 1}, Passes: 1})
	_, err := c.Generate(context.Background(), &recorder{}, 2)
	assert.ErrorIs(t, err, entity.ErrNoDimension)
}

func TestApplyFailureStops(t *testing.T) {
	c := NewContext()
	c.AddAll(&Refine{Passes: 1}, &Refine{Passes: 2}, &Refine{Passes: 3})

	eng := &recorder{fail: "refine 2"}
	_, err := c.Generate(context.Background(), eng, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refine")
	assert.Equal(t, []string{"refine 1", "refine 2"}, eng.calls)

	_, err = c.Mesh()
	assert.ErrorIs(t, err, ErrNotGenerated)
}

func TestMeshState(t *testing.T) {
	c := NewContext()
	_, err := c.Mesh()
	assert.ErrorIs(t, err, ErrNotGenerated)

	m, err := c.Generate(context.Background(), &recorder{}, 2)
	require.NoError(t, err)
	got, err := c.Mesh()
	require.NoError(t, err)
	assert.Same(t, m, got)

	_, err = c.Generate(context.Background(), &recorder{}, 2)
	assert.ErrorIs(t, err, ErrAlreadyGenerated)
}

func TestGenerateWithoutDirectives(t *testing.T) {
	box, err := brep.NewBuilder().Box(v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)

	eng := memory.New()
	require.NoError(t, eng.Initialize())
	defer eng.Finalize()
	require.NoError(t, eng.Import([]kernel.Shape{box}))
	require.NoError(t, eng.Synchronize())

	c := NewContext()
	m, err := c.Generate(context.Background(), eng, 3)
	require.NoError(t, err)
	assert.Equal(t, mesh.DefaultOptions().Algorithm3D, m.Options.Algorithm3D)
	assert.Positive(t, m.ElementCount(mesh.ElementTet))
}

func TestGenerateSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	c := NewContext(WithTracer(provider.Tracer("test")))
	c.AddAll(&Refine{Passes: 1}, &Recombine{Face: face(2), Angle: 45})
	_, err := c.Generate(context.Background(), &recorder{}, 2)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, tracing.SpanGenerate, spans[0].Name)
	assert.Len(t, spans[0].Events, 2)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "set-transfinite-edge", KindSetTransfiniteEdge.String())
	assert.Equal(t, "unknown", Kind(99).String())
	for k := KindSetMeshSize; k <= KindSetPhysicalGroup; k++ {
		assert.NotEqual(t, "unknown", k.String(), "kind %d", int(k))
	}
}
