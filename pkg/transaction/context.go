package transaction

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chazu/meshql/pkg/ctxlog"
	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/tracing"
)

var (
	// ErrNotGenerated is returned by Mesh before Generate has succeeded.
	ErrNotGenerated = errors.New("transaction: mesh not generated")
	// ErrAlreadyGenerated is returned by a second Generate.
	ErrAlreadyGenerated = errors.New("transaction: mesh already generated")
)

type key struct {
	kind   Kind
	entity entity.Key
}

// Context is the ordered pipeline of pending directives for one session.
// It is not safe for concurrent use.
type Context struct {
	pending    []Transaction
	index      map[key]Transaction
	structured bool
	mesh       *mesh.Mesh
	tracer     trace.Tracer
}

// Option configures a Context.
type Option func(*Context)

// WithTracer sets the tracer used by Generate.
func WithTracer(t trace.Tracer) Option {
	return func(c *Context) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewContext returns an empty pipeline.
func NewContext(opts ...Option) *Context {
	c := &Context{
		index:  make(map[key]Transaction),
		tracer: tracing.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add appends t to the pending list. It does not deduplicate; callers that
// must not create a second directive for the same entity use Get first.
func (c *Context) Add(t Transaction) {
	c.pending = append(c.pending, t)
	if ents := t.Entities(); len(ents) > 0 {
		c.index[key{t.Kind(), ents[0].Key()}] = t
	}
}

// AddAll appends ts in order.
func (c *Context) AddAll(ts ...Transaction) {
	for _, t := range ts {
		c.Add(t)
	}
}

// Get returns the most recently added pending directive of kind whose
// primary entity is e, or nil.
func (c *Context) Get(kind Kind, e entity.Entity) Transaction {
	return c.index[key{kind, e.Key()}]
}

// Lookup is Get with the directive type inferred from T.
func Lookup[T Transaction](c *Context, e entity.Entity) (T, bool) {
	var zero T
	t := c.Get(zero.Kind(), e)
	if t == nil {
		return zero, false
	}
	typed, ok := t.(T)
	return typed, ok
}

// Pending returns the pending directives in insertion order.
func (c *Context) Pending() []Transaction {
	out := make([]Transaction, len(c.pending))
	copy(out, c.pending)
	return out
}

// Len returns the number of pending directives.
func (c *Context) Len() int {
	return len(c.pending)
}

// MarkStructured records that transfinite meshing was requested.
func (c *Context) MarkStructured() {
	c.structured = true
}

// Structured reports whether transfinite meshing was requested.
func (c *Context) Structured() bool {
	return c.structured
}

// Generate applies every pending directive to eng in insertion order, then
// generates the mesh of dimension dim. The mesh is stored once; a second
// call returns ErrAlreadyGenerated.
func (c *Context) Generate(ctx context.Context, eng mesh.Engine, dim int) (*mesh.Mesh, error) {
	if c.mesh != nil {
		return nil, ErrAlreadyGenerated
	}
	logger := ctxlog.FromContext(ctx)

	ctx, span := c.tracer.Start(ctx, tracing.SpanGenerate,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()
	span.SetAttributes(
		attribute.Int(tracing.AttrDimension, dim),
		attribute.Int(tracing.AttrTransactions, len(c.pending)),
	)

	fail := func(err error) (*mesh.Mesh, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for i, t := range c.pending {
		attrs := []attribute.KeyValue{attribute.String(tracing.AttrKind, t.Kind().String())}
		if ents := t.Entities(); len(ents) > 0 {
			attrs = append(attrs, attribute.String(tracing.AttrEntity, ents[0].String()))
		}
		span.AddEvent("apply", trace.WithAttributes(attrs...))
		logger.DebugContext(ctx, "applying directive", "index", i, "kind", t.Kind(), "entities", len(t.Entities()))

		if err := t.Apply(eng); err != nil {
			return fail(fmt.Errorf("transaction: apply %s (#%d): %w", t.Kind(), i, err))
		}
	}

	m, err := eng.Generate(dim)
	if err != nil {
		return fail(fmt.Errorf("transaction: generate: %w", err))
	}
	span.SetAttributes(
		attribute.Int(tracing.AttrNodes, m.NodeCount()),
		attribute.Int(tracing.AttrElements, len(m.Elements)),
	)
	span.SetStatus(codes.Ok, "")
	logger.InfoContext(ctx, "mesh generated",
		"dim", dim, "directives", len(c.pending), "nodes", m.NodeCount(), "elements", len(m.Elements))

	c.mesh = m
	return m, nil
}

// Mesh returns the generated mesh.
func (c *Context) Mesh() (*mesh.Mesh, error) {
	if c.mesh == nil {
		return nil, ErrNotGenerated
	}
	return c.mesh, nil
}
