// Package tracing configures the OpenTelemetry tracer used around mesh
// commits and generation.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span and attribute names shared by the instrumented packages.
const (
	SpanGenerate        = "transaction.generate"
	SpanSessionGenerate = "ql.generate"

	AttrDimension    = "mesh.dimension"
	AttrTransactions = "mesh.transactions"
	AttrKind         = "directive.kind"
	AttrEntity       = "directive.entity"
	AttrNodes        = "mesh.nodes"
	AttrElements     = "mesh.elements"
	AttrStructured   = "mesh.structured"
)

// Config selects the exporter.
type Config struct {
	// Enabled controls whether spans are recorded. When false a no-op
	// tracer is returned.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Exporter is "stdout" or "none".
	Exporter    string `mapstructure:"exporter" yaml:"exporter"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// Provider owns the tracer provider for one process.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewProvider builds a provider from cfg. Spans from the stdout exporter
// are written to w.
func NewProvider(cfg Config, w io.Writer) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer("noop")}, nil
	}

	opts := []sdktrace.TracerProviderOption{}
	switch cfg.Exporter {
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("tracing: create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithSyncer(exporter))
	case "none", "":
	default:
		return nil, fmt.Errorf("tracing: unsupported exporter %q", cfg.Exporter)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "meshql"
	}
	opts = append(opts, sdktrace.WithResource(resource.NewSchemaless(
		attribute.String("service.name", name),
	)))

	provider := sdktrace.NewTracerProvider(opts...)
	return &Provider{provider: provider, tracer: provider.Tracer(name)}, nil
}

// Tracer returns the configured tracer. It is safe to use when tracing is
// disabled.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

// Noop returns a tracer that records nothing.
func Noop() trace.Tracer {
	return noop.NewTracerProvider().Tracer("noop")
}
