package main

import (
	"context"
	"os"
	"testing"

	"github.com/chazu/meshql/pkg/config"
	"github.com/chazu/meshql/pkg/ctxlog"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/tracing"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	return newTestAppWith(t, config.Defaults())
}

func newTestAppWith(t *testing.T, cfg config.Config) *App {
	t.Helper()
	app, err := NewApp(cfg, ctxlog.Discard(), tracing.Noop())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func evaluateFile(t *testing.T, app *App, path string) EvalResult {
	t.Helper()
	source, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	result := app.Evaluate(context.Background(), string(source))
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			t.Errorf("eval error (line %d): %s", e.Line, e.Message)
		}
		t.FailNow()
	}
	if result.Mesh == nil {
		t.Fatal("expected a generated mesh")
	}
	return result
}

func groupDims(groups []mesh.Group) map[string]int {
	out := make(map[string]int, len(groups))
	for _, g := range groups {
		out[g.Name] = g.Dim
	}
	return out
}

// TestE2EBoxExample exercises the full pipeline: Lisp source -> engine ->
// session -> validation -> generate, the same path `meshql run` takes.
func TestE2EBoxExample(t *testing.T) {
	result := evaluateFile(t, newTestApp(t), "examples/box.mql")
	m := result.Mesh

	if m.Dim != 3 {
		t.Errorf("expected a 3-D mesh, got dim %d", m.Dim)
	}
	if m.Structured {
		t.Error("box example is unstructured")
	}
	if m.Elements["tetrahedron"] == 0 {
		t.Errorf("expected tetrahedra, got %v", m.Elements)
	}
	if m.Options.Algorithm3D != mesh.Algorithm3DDelaunay {
		t.Errorf("expected Delaunay, got %s", m.Options.Algorithm3D)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}

	want := map[string]int{"top": 2, "bottom": 2, "walls": 2, "fluid": 3}
	got := groupDims(m.Groups)
	for name, dim := range want {
		if d, ok := got[name]; !ok {
			t.Errorf("missing group %q", name)
		} else if d != dim {
			t.Errorf("group %q: dim %d, want %d", name, d, dim)
		}
	}
	if len(got) != len(want) {
		t.Errorf("expected %d groups, got %v", len(want), got)
	}
}

func TestE2EChannelExample(t *testing.T) {
	result := evaluateFile(t, newTestApp(t), "examples/channel.mql")
	m := result.Mesh

	if m.Dim != 2 {
		t.Errorf("expected a 2-D mesh, got dim %d", m.Dim)
	}
	if !m.Structured {
		t.Error("channel example should be structured")
	}
	if m.Elements["quad"] == 0 || m.Elements["triangle"] != 0 {
		t.Errorf("expected quads only, got %v", m.Elements)
	}

	got := groupDims(m.Groups)
	for name, dim := range map[string]int{"fluid": 2, "wall": 1, "inlet": 1, "outlet": 1} {
		if got[name] != dim {
			t.Errorf("group %q: dim %d, want %d", name, got[name], dim)
		}
	}
}

func TestE2EDuctExample(t *testing.T) {
	result := evaluateFile(t, newTestApp(t), "examples/duct.mql")
	m := result.Mesh

	// An open duct has no solids.
	if m.Dim != 2 {
		t.Errorf("expected a 2-D mesh, got dim %d", m.Dim)
	}
	if m.Elements["quad"] == 0 || m.Elements["triangle"] != 0 {
		t.Errorf("expected quads only, got %v", m.Elements)
	}
	if len(m.Groups) != 1 || m.Groups[0].Name != "walls" || len(m.Groups[0].Tags) != 8 {
		t.Errorf("expected one group of 8 walls, got %v", m.Groups)
	}
}

// TestE2EEmptySource ensures the pipeline handles empty input gracefully.
func TestE2EEmptySource(t *testing.T) {
	result := newTestApp(t).Evaluate(context.Background(), "")

	if len(result.Errors) > 0 {
		t.Errorf("unexpected errors for empty source: %v", result.Errors)
	}
	if result.Mesh != nil {
		t.Error("expected no mesh for empty source")
	}
}

// TestE2ESyntaxError ensures eval errors are reported, not fatal errors.
func TestE2ESyntaxError(t *testing.T) {
	result := newTestApp(t).Evaluate(context.Background(), "(model (rect 1 1)")

	if len(result.Errors) == 0 {
		t.Fatal("expected eval errors for syntax error")
	}
	if result.Mesh != nil {
		t.Error("expected no mesh on error")
	}
}

func TestE2ECheckDoesNotGenerate(t *testing.T) {
	source, err := os.ReadFile("examples/channel.mql")
	if err != nil {
		t.Fatal(err)
	}
	result := newTestApp(t).Check(context.Background(), string(source))

	if !result.OK() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Mesh != nil {
		t.Error("check must not generate")
	}
	if len(result.Directives) == 0 {
		t.Error("expected the queued directives to be listed")
	}
}

func TestE2EDimCappedByConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Generate.Dim = 2
	result := evaluateFile(t, newTestAppWith(t, cfg), "examples/box.mql")

	if result.Mesh.Dim != 2 {
		t.Errorf("expected dim 2, got %d", result.Mesh.Dim)
	}
	if result.Mesh.Elements["tetrahedron"] != 0 {
		t.Errorf("no volume elements expected at dim 2, got %v", result.Mesh.Elements)
	}
}

func TestNewAppRejectsBadLevel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Level = "blob"
	if _, err := NewApp(cfg, ctxlog.Discard(), tracing.Noop()); err == nil {
		t.Fatal("expected an error for an unknown shape level")
	}
}
