// Package ql is the fluent query-and-directive builder over a loaded B-rep
// model. A Session selects shapes, records meshing directives against the
// selected entities, and commits them to a mesh engine on Generate.
//
// Builder methods return the Session for chaining. The first failure is
// kept: later builder calls do nothing, and Err and Generate report it.
package ql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chazu/meshql/pkg/ctxlog"
	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/structured"
	"github.com/chazu/meshql/pkg/tracing"
	"github.com/chazu/meshql/pkg/transaction"
)

var (
	// ErrNotStructured is returned by structured-only operations before any
	// transfinite directive was requested.
	ErrNotStructured = errors.New("ql: transfinite meshing not requested")
	// ErrSizeOrRatio is returned when a structured boundary layer is given
	// both or neither of a wall size and a growth ratio.
	ErrSizeOrRatio = errors.New("ql: exactly one of size or ratio is required")
	// ErrNotLoaded is returned by operations that need a loaded model.
	ErrNotLoaded = errors.New("ql: no model loaded")
	// ErrAlreadyLoaded is returned by a second Load on one session.
	ErrAlreadyLoaded = errors.New("ql: model already loaded")
	// ErrEmptySelection is returned when an operation finds nothing to
	// act on in the current selection.
	ErrEmptySelection = errors.New("ql: selection is empty")
	// ErrInvalidArgument is returned for out-of-range builder arguments.
	ErrInvalidArgument = errors.New("ql: invalid argument")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("ql: session closed")
)

// DefaultRecombineAngle is the recombination angle used by automatic
// recombination unless WithRecombineAngle overrides it.
const DefaultRecombineAngle = 45.0

// Session owns one engine acquisition, one entity registry and one
// transaction pipeline. It is not safe for concurrent use.
type Session struct {
	engine mesh.Engine
	open   bool

	level          kernel.ShapeKind
	recombineAngle float64
	tracer         trace.Tracer
	logger         *slog.Logger

	initial   []kernel.Shape
	selection []kernel.Shape
	history   [][]kernel.Shape

	reg    *entity.Registry
	tx     *transaction.Context
	groups []structured.Group

	err error
}

// Option configures a Session.
type Option func(*Session)

// WithLevel sets the finest shape kind registered on Load.
func WithLevel(level kernel.ShapeKind) Option {
	return func(s *Session) { s.level = level }
}

// WithRecombineAngle sets the angle used by automatic recombination.
func WithRecombineAngle(angle float64) Option {
	return func(s *Session) { s.recombineAngle = angle }
}

// WithTracer sets the tracer used around Generate.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithLogger sets the session logger. Without it the session logs to
// slog.Default, and Generate to the logger carried by its context.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open acquires engine and returns a session bound to it. The engine stays
// held until Close.
func Open(engine mesh.Engine, opts ...Option) (*Session, error) {
	s := &Session{
		engine:         engine,
		level:          kernel.KindVertex,
		recombineAngle: DefaultRecombineAngle,
		tracer:         tracing.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := engine.Initialize(); err != nil {
		return nil, fmt.Errorf("ql: acquire engine: %w", err)
	}
	s.open = true
	return s, nil
}

// Close releases the engine. It is safe to call more than once.
func (s *Session) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	if err := s.engine.Finalize(); err != nil {
		return fmt.Errorf("ql: release engine: %w", err)
	}
	return nil
}

// Err returns the first failure recorded by a builder call.
func (s *Session) Err() error {
	return s.err
}

func (s *Session) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Session) fail(err error) *Session {
	if s.err == nil {
		s.err = err
		s.log().Debug("session failed", "error", err)
	}
	return s
}

// usable reports whether a builder call may proceed, recording why not.
func (s *Session) usable() bool {
	switch {
	case s.err != nil:
		return false
	case !s.open:
		s.fail(ErrClosed)
		return false
	case s.reg == nil:
		s.fail(ErrNotLoaded)
		return false
	}
	return true
}

// Load imports shapes into the engine and registers their entities down to
// the session level. The selection is reset to shapes.
func (s *Session) Load(shapes ...kernel.Shape) *Session {
	if s.err != nil {
		return s
	}
	if !s.open {
		return s.fail(ErrClosed)
	}
	if s.reg != nil {
		return s.fail(ErrAlreadyLoaded)
	}
	if err := s.engine.Import(shapes); err != nil {
		return s.fail(fmt.Errorf("ql: import: %w", err))
	}
	if err := s.engine.Synchronize(); err != nil {
		return s.fail(fmt.Errorf("ql: synchronize: %w", err))
	}

	s.initial = append([]kernel.Shape(nil), shapes...)
	s.selection = s.initial
	s.history = nil
	s.reg = entity.NewRegistry(shapes, s.level)
	s.tx = transaction.NewContext(transaction.WithTracer(s.tracer))

	s.log().Debug("model loaded",
		"shapes", len(shapes),
		"dimension", s.reg.Dimension(),
		"faces", s.reg.Len(kernel.KindFace),
		"edges", s.reg.Len(kernel.KindEdge),
	)
	return s
}

// RecombineAngle returns the angle used by automatic recombination.
func (s *Session) RecombineAngle() float64 {
	return s.recombineAngle
}

// Registry returns the entity registry, or nil before Load.
func (s *Session) Registry() *entity.Registry {
	return s.reg
}

// Pending returns the directives recorded so far, in commit order.
func (s *Session) Pending() []transaction.Transaction {
	if s.tx == nil {
		return nil
	}
	return s.tx.Pending()
}

// Structured reports whether transfinite meshing was requested.
func (s *Session) Structured() bool {
	return s.tx != nil && s.tx.Structured()
}

// AddTransaction records the directive built by fn.
func (s *Session) AddTransaction(fn func(*Session) transaction.Transaction) *Session {
	if !s.usable() {
		return s
	}
	t := fn(s)
	if t == nil {
		return s.fail(fmt.Errorf("%w: nil transaction", ErrInvalidArgument))
	}
	s.add(t)
	return s
}

func (s *Session) add(ts ...transaction.Transaction) {
	for _, t := range ts {
		s.tx.Add(t)
		s.log().Debug("directive added", "kind", t.Kind(), "entities", len(t.Entities()))
	}
}

// Generate commits every directive to the engine in insertion order and
// generates a mesh of dimension dim.
func (s *Session) Generate(ctx context.Context, dim int) (*mesh.Mesh, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.open {
		return nil, ErrClosed
	}
	if s.reg == nil {
		return nil, ErrNotLoaded
	}

	ctx, span := s.tracer.Start(ctx, tracing.SpanSessionGenerate)
	defer span.End()
	span.SetAttributes(
		attribute.Int(tracing.AttrDimension, dim),
		attribute.Bool(tracing.AttrStructured, s.tx.Structured()),
	)

	if s.logger != nil {
		ctx = ctxlog.WithLogger(ctx, s.logger)
	}
	m, err := s.tx.Generate(ctx, s.engine, dim)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return m, nil
}

// Mesh returns the generated mesh.
func (s *Session) Mesh() (*mesh.Mesh, error) {
	if s.tx == nil {
		return nil, ErrNotLoaded
	}
	return s.tx.Mesh()
}
