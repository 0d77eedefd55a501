package main

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"github.com/chazu/meshql/pkg/config"
	"github.com/chazu/meshql/pkg/ctxlog"
	"github.com/chazu/meshql/pkg/engine"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/ql"
)

// App ties the script engine to the configured generation settings. The
// CLI commands are thin wrappers over Evaluate and Check.
type App struct {
	cfg    config.Config
	engine *engine.Engine
	logger *slog.Logger
}

// EvalErrorData is a serializable eval error or warning.
type EvalErrorData struct {
	Line    int    `yaml:"line,omitempty"`
	Col     int    `yaml:"col,omitempty"`
	Entity  string `yaml:"entity,omitempty"`
	Message string `yaml:"message"`
}

// MeshSummary describes a generated mesh without its node and element
// arrays.
type MeshSummary struct {
	ID         string         `yaml:"id"`
	Dim        int            `yaml:"dim"`
	Nodes      int            `yaml:"nodes"`
	Elements   map[string]int `yaml:"elements"`
	Groups     []mesh.Group   `yaml:"groups"`
	Options    mesh.Options   `yaml:"options"`
	Structured bool           `yaml:"structured"`
}

// EvalResult is the full result of one script.
type EvalResult struct {
	Directives []string        `yaml:"directives"`
	Errors     []EvalErrorData `yaml:"errors"`
	Warnings   []EvalErrorData `yaml:"warnings"`
	Mesh       *MeshSummary    `yaml:"mesh,omitempty"`
}

// OK reports whether the script produced no errors.
func (r EvalResult) OK() bool {
	return len(r.Errors) == 0
}

// NewApp creates an App from cfg. Sessions log to logger and record spans
// with tracer.
func NewApp(cfg config.Config, logger *slog.Logger, tracer trace.Tracer) (*App, error) {
	level, err := cfg.ShapeLevel()
	if err != nil {
		return nil, err
	}
	eng := engine.NewEngine(
		engine.WithTimeout(cfg.EvalTimeout),
		engine.WithDefaults(engine.Defaults{
			MaxNodes: cfg.Transfinite.MaxNodes,
			MinNodes: cfg.Transfinite.MinNodes,
		}),
		engine.WithLogger(logger),
		engine.WithSessionOptions(
			ql.WithLevel(level),
			ql.WithRecombineAngle(cfg.RecombineAngle),
			ql.WithTracer(tracer),
			ql.WithLogger(logger),
		),
	)
	return &App{cfg: cfg, engine: eng, logger: logger}, nil
}

// Evaluate runs source, validates the directives it created and, when
// nothing blocks, generates the mesh.
func (a *App) Evaluate(ctx context.Context, source string) EvalResult {
	return a.evaluate(ctx, source, true)
}

// Check runs source and validates it without generating.
func (a *App) Check(ctx context.Context, source string) EvalResult {
	return a.evaluate(ctx, source, false)
}

func (a *App) evaluate(ctx context.Context, source string, generate bool) EvalResult {
	result := EvalResult{
		Directives: []string{},
		Errors:     []EvalErrorData{},
		Warnings:   []EvalErrorData{},
	}

	// Step 1: Evaluate the script into a session holding pending directives.
	s, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		// Fatal error (panic, timeout, busy engine)
		a.logger.Error("evaluate fatal error", "error", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}
	defer func() { _ = s.Close() }()

	for _, t := range s.Pending() {
		result.Directives = append(result.Directives, t.Kind().String())
	}

	// Step 2: Validate before committing anything to the mesh engine.
	for _, p := range engine.Problems(s) {
		result.Errors = append(result.Errors, EvalErrorData{Message: p.Message})
	}
	for _, w := range engine.Warnings(s) {
		d := EvalErrorData{Message: w.Message}
		if w.Entity.Tag != 0 {
			d.Entity = w.Entity.String()
		}
		result.Warnings = append(result.Warnings, d)
	}
	if !result.OK() || !generate || s.Registry() == nil {
		return result
	}

	// Step 3: Commit and generate at the model's dimension, capped by config.
	dim := min(a.cfg.Generate.Dim, s.Registry().Dimension())
	m, err := s.Generate(ctxlog.WithLogger(ctx, a.logger), dim)
	if err != nil {
		a.logger.Error("generate failed", "error", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: "generation failed: " + err.Error()})
		return result
	}
	result.Mesh = summarize(m, s.Structured())
	return result
}

func summarize(m *mesh.Mesh, structured bool) *MeshSummary {
	sum := &MeshSummary{
		ID:         m.ID.String(),
		Dim:        m.Dim,
		Nodes:      m.NodeCount(),
		Elements:   map[string]int{},
		Groups:     append([]mesh.Group{}, m.Groups...),
		Options:    m.Options,
		Structured: structured,
	}
	for _, e := range m.Elements {
		sum.Elements[e.Type.String()]++
	}
	sort.SliceStable(sum.Groups, func(i, j int) bool {
		if sum.Groups[i].Dim != sum.Groups[j].Dim {
			return sum.Groups[i].Dim < sum.Groups[j].Dim
		}
		return sum.Groups[i].Tag < sum.Groups[j].Tag
	})
	return sum
}
