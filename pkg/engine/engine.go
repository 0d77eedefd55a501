// Package engine provides the Lisp front-end for meshql. It wraps zygomys
// in a sandboxed environment and turns a script into a loaded ql.Session
// carrying the script's meshing directives.
package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/mesh/memory"
	"github.com/chazu/meshql/pkg/ql"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning is an advisory finding about the directives a script
// recorded.
type EvalWarning struct {
	Entity  entity.Entity
	Message string
}

// Defaults are the values builtins use when a script leaves an argument
// out.
type Defaults struct {
	MaxNodes int
	MinNodes int
}

// Engine wraps the zygomys interpreter for meshql evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandbox, mesh engine and session.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	timeout   time.Duration
	defaults  Defaults
	newMesher func() mesh.Engine
	session   []ql.Option
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the hard limit for a single evaluation.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithDefaults sets the transfinite node bounds used by transfinite-auto.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) { e.defaults = d }
}

// WithMeshEngine sets the factory for the mesh engine each evaluation
// acquires.
func WithMeshEngine(fn func() mesh.Engine) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newMesher = fn
		}
	}
}

// WithSessionOptions passes options to every session the engine opens.
func WithSessionOptions(opts ...ql.Option) Option {
	return func(e *Engine) { e.session = append(e.session, opts...) }
}

// WithLogger sets the logger for evaluation and the sessions it opens.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeout:   EvalTimeout,
		defaults:  Defaults{MaxNodes: 50, MinNodes: 1},
		newMesher: func() mesh.Engine { return memory.New() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// Evaluate runs Lisp source and returns the session it built. The caller
// owns the session and must Close it.
//
// Return semantics:
//   - On success: returns session + nil errors + nil error
//   - On parse/eval failure: returns nil session + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
//
// A script that never calls (model ...) yields an open session with no
// model loaded.
func (e *Engine) Evaluate(source string) (*ql.Session, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		s, evalErrs, err := e.evaluate(source)
		ch <- evalResult{session: s, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, e.timeout, &e.mu, &e.generation)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*ql.Session, []EvalError, error) {
	opts := append([]ql.Option(nil), e.session...)
	if e.logger != nil {
		opts = append(opts, ql.WithLogger(e.logger))
	}
	s, err := ql.Open(e.newMesher(), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w", err)
	}

	// Empty source is a valid program that loads nothing.
	if strings.TrimSpace(source) == "" {
		return s, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, s, e.defaults)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		_ = s.Close()
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		_ = s.Close()
		return nil, parseZygomysError(err), nil
	}

	e.log().Debug("script evaluated", "directives", len(s.Pending()), "structured", s.Structured())
	return s, nil, nil
}

// Warnings converts the advisory findings of s into eval warnings.
func Warnings(s *ql.Session) []EvalWarning {
	result := s.Validate()
	var out []EvalWarning
	for _, f := range result.Warnings {
		out = append(out, EvalWarning{Entity: f.Entity, Message: f.Message})
	}
	return out
}

// Problems converts the blocking findings of s into eval errors.
func Problems(s *ql.Session) []EvalError {
	result := s.Validate()
	var out []EvalError
	for _, f := range result.Errors {
		out = append(out, EvalError{Message: f.Error()})
	}
	return out
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, p := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := p.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
