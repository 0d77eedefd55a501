package engine

import (
	"fmt"
	"math"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/kernel/brep"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/ql"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpShape wraps a kernel shape so it can be returned from the shape
// builtins and consumed by `model`.
type sexpShape struct {
	shape kernel.Shape
}

func (s *sexpShape) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %d)", s.shape.Kind(), s.shape.ID())
}
func (s *sexpShape) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a point.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		switch {
		case !ok:
			result.positional = append(result.positional, args[i])
		case i+1 < len(args):
			result.kw[name] = args[i+1]
			i++
		default:
			// Trailing keyword: a flag with no value.
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// arg returns the keyword argument key, or else positional argument i.
func (a kwArgs) arg(key string, i int) (zygo.Sexp, bool) {
	if v, ok := a.kw[key]; ok {
		return v, true
	}
	if i >= 0 && i < len(a.positional) {
		return a.positional[i], true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts a whole number.
func toInt(s zygo.Sexp) (int, error) {
	f, err := toFloat64(s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected whole number, got %g", f)
	}
	return int(f), nil
}

func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpSentinel:
		// A trailing flag keyword.
		return v == zygo.SexpNull, nil
	}
	return false, fmt.Errorf("expected true or false, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_left) and plain strings ("left").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toVec3 extracts a point from a sexpVec3.
func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toShape extracts a kernel shape from a sexpShape.
func toShape(s zygo.Sexp) (kernel.Shape, error) {
	if sh, ok := s.(*sexpShape); ok {
		return sh.shape, nil
	}
	return nil, fmt.Errorf("expected shape, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// isList reports whether s is a list or array value.
func isList(s zygo.Sexp) bool {
	switch s.(type) {
	case *zygo.SexpPair, *zygo.SexpArray:
		return true
	}
	return false
}

// each converts a scalar or a list of scalars with conv.
func each[T any](s zygo.Sexp, conv func(zygo.Sexp) (T, error)) ([]T, error) {
	if !isList(s) {
		v, err := conv(s)
		if err != nil {
			return nil, err
		}
		return []T{v}, nil
	}
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(items))
	for i, item := range items {
		if out[i], err = conv(item); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return out, nil
}

// named converts a keyword into an enum value with parse.
func named[T any](parse func(string) (T, error)) func(zygo.Sexp) (T, error) {
	return func(s zygo.Sexp) (T, error) {
		name, err := toKeywordString(s)
		if err != nil {
			var zero T
			return zero, err
		}
		return parse(name)
	}
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// builtin is the zygomys function signature.
type builtin = func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error)

// registerBuiltins installs the meshql DSL builtins into a zygomys
// environment. Shape builtins build geometry; every other builtin drives s.
// Builtins that act on the selection return the number of selected shapes.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *ql.Session, defaults Defaults) {
	b := brep.NewBuilder()

	// done surfaces the session's sticky error as a script error.
	done := func(fn string) (zygo.Sexp, error) {
		if err := s.Err(); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}
		return &zygo.SexpInt{Val: int64(len(s.Vals()))}, nil
	}
	add := func(name string, fn builtin) {
		env.AddFunction(name, fn)
	}

	// -----------------------------------------------------------------------
	// Geometry
	// -----------------------------------------------------------------------

	// (vec3 1 2 3)
	add("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var xyz [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			xyz[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	})

	// (box :min (vec3 0 0 0) :max (vec3 2 1 1))
	add("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		lo, hi := v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1}
		if v, ok := pa.kw["min"]; ok {
			p, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: min: %w", err)
			}
			lo = p
		}
		if v, ok := pa.kw["max"]; ok {
			p, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: max: %w", err)
			}
			hi = p
		}
		solid, err := b.Box(lo, hi)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpShape{shape: solid}, nil
	})

	// (rect :width 2 :height 1 :origin (vec3 0 0 0))
	add("rect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var origin v3.Vec
		if v, ok := pa.kw["origin"]; ok {
			p, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("rect: origin: %w", err)
			}
			origin = p
		}
		var size [2]float64
		for i, key := range []string{"width", "height"} {
			v, ok := pa.arg(key, i)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("rect: %s is required", key)
			}
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("rect: %s: %w", key, err)
			}
			size[i] = f
		}
		face, err := b.Rect(origin, size[0], size[1])
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpShape{shape: face}, nil
	})

	// (grid :xs [0 1 3] :ys [0 1])
	add("grid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var stations [2][]float64
		for i, key := range []string{"xs", "ys"} {
			v, ok := pa.arg(key, i)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("grid: %s is required", key)
			}
			fs, err := each(v, toFloat64)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("grid: %s: %w", key, err)
			}
			stations[i] = fs
		}
		c, err := b.Grid(stations[0], stations[1])
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpShape{shape: c}, nil
	})

	// (duct :width 2 :height 1 :zs [0 1 2])
	add("duct", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var section [2]float64
		for i, key := range []string{"width", "height"} {
			v, ok := pa.arg(key, i)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("duct: %s is required", key)
			}
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("duct: %s: %w", key, err)
			}
			section[i] = f
		}
		v, ok := pa.arg("zs", 2)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("duct: zs is required")
		}
		zs, err := each(v, toFloat64)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("duct: zs: %w", err)
		}
		shell, err := b.Duct(section[0], section[1], zs)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpShape{shape: shell}, nil
	})

	// (compound (rect 1 1) (rect 1 1 :origin (vec3 2 0 0)))
	add("compound", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		shapes := make([]kernel.Shape, len(args))
		for i, a := range args {
			sh, err := toShape(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("compound: shape %d: %w", i, err)
			}
			shapes[i] = sh
		}
		return &sexpShape{shape: b.Compound(shapes...)}, nil
	})

	// (model (box) ...)
	add("model", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 0 {
			return zygo.SexpNull, fmt.Errorf("model requires at least one shape")
		}
		shapes := make([]kernel.Shape, len(args))
		for i, a := range args {
			sh, err := toShape(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("model: shape %d: %w", i, err)
			}
			shapes[i] = sh
		}
		s.Load(shapes...)
		return done("model")
	})

	// -----------------------------------------------------------------------
	// Selection
	// -----------------------------------------------------------------------

	for fn, sel := range map[string]func() *ql.Session{
		"solids":   s.Solids,
		"faces":    s.Faces,
		"wires":    s.Wires,
		"edges":    s.Edges,
		"vertices": s.Vertices,
	} {
		add(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			sel()
			return done(fn)
		})
	}

	// (where "z > 0.5")
	add("where", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("where requires one predicate")
		}
		expr, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("where: %w", err)
		}
		s.Where(expr)
		return done("where")
	})

	// (back) pops one selection, (back 0) returns to the model.
	add("back", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		n := 1
		if len(args) > 0 {
			v, err := toInt(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("back: %w", err)
			}
			n = v
		}
		s.End(n)
		return done("back")
	})

	// (selected)
	add("selected", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return done("selected")
	})

	// -----------------------------------------------------------------------
	// Directives
	// -----------------------------------------------------------------------

	// (physical-group "wall")
	add("physical_group", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("physical-group requires a name")
		}
		group, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("physical-group: name: %w", err)
		}
		s.AddPhysicalGroup(group)
		return done("physical-group")
	})

	// (recombine :angle 30)
	add("recombine", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		angle := s.RecombineAngle()
		if v, ok := parseArgs(args).arg("angle", 0); ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("recombine: angle: %w", err)
			}
			angle = f
		}
		s.Recombine(angle)
		return done("recombine")
	})

	// (mesh-size 0.1)
	add("mesh_size", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("mesh-size requires a size")
		}
		size, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mesh-size: %w", err)
		}
		s.SetMeshSize(size)
		return done("mesh-size")
	})

	// (mesh-algorithm :FrontalDelaunay :per-face true)
	add("mesh_algorithm", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		// The algorithm is itself a keyword, so it is read before the
		// keyword arguments.
		if len(args) == 0 {
			return zygo.SexpNull, fmt.Errorf("mesh-algorithm requires an algorithm")
		}
		pa := parseArgs(args[1:])
		alg, err := named(mesh.ParseAlgorithm2D)(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mesh-algorithm: %w", err)
		}
		perFace := false
		if v, ok := pa.kw["per-face"]; ok {
			if perFace, err = toBool(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("mesh-algorithm: per-face: %w", err)
			}
		}
		s.SetMeshAlgorithm(alg, perFace)
		return done("mesh-algorithm")
	})

	// (volume-algorithm :HXT)
	add("volume_algorithm", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("volume-algorithm requires an algorithm")
		}
		alg, err := named(mesh.ParseAlgorithm3D)(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("volume-algorithm: %w", err)
		}
		s.SetMeshAlgorithm3D(alg)
		return done("volume-algorithm")
	})

	// (subdivision :AllQuadrangles)
	add("subdivision", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("subdivision requires an algorithm")
		}
		alg, err := named(mesh.ParseSubdivision)(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("subdivision: %w", err)
		}
		s.SetSubdivisionAlgorithm(alg)
		return done("subdivision")
	})

	// (smooth 2) and (refine 1)
	for fn, apply := range map[string]func(int) *ql.Session{
		"smooth": s.Smooth,
		"refine": s.Refine,
	} {
		add(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			passes := 1
			if len(args) > 0 {
				n, err := toInt(args[0])
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
				}
				passes = n
			}
			apply(passes)
			return done(fn)
		})
	}

	// (transfinite-edge :elements [10 4 10 4] :distribution :Bump :coef 0.2)
	add("transfinite_edge", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var spec ql.EdgeSpec
		var err error
		if v, ok := pa.arg("elements", 0); ok {
			if spec.Elements, err = each(v, toInt); err != nil {
				return zygo.SexpNull, fmt.Errorf("transfinite-edge: elements: %w", err)
			}
		}
		if v, ok := pa.kw["distribution"]; ok {
			if spec.Distributions, err = each(v, named(mesh.ParseDistribution)); err != nil {
				return zygo.SexpNull, fmt.Errorf("transfinite-edge: distribution: %w", err)
			}
		}
		if v, ok := pa.kw["coef"]; ok {
			if spec.Coefs, err = each(v, toFloat64); err != nil {
				return zygo.SexpNull, fmt.Errorf("transfinite-edge: coef: %w", err)
			}
		}
		s.SetTransfiniteEdge(spec)
		return done("transfinite-edge")
	})

	// (transfinite-face :arrangement :AlternateLeft)
	add("transfinite_face", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		arr := mesh.ArrangementLeft
		if v, ok := parseArgs(args).arg("arrangement", 0); ok {
			a, err := named(mesh.ParseArrangement)(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("transfinite-face: %w", err)
			}
			arr = a
		}
		s.SetTransfiniteFace(arr)
		return done("transfinite-face")
	})

	// (transfinite-solid)
	add("transfinite_solid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s.SetTransfiniteSolid()
		return done("transfinite-solid")
	})

	// (transfinite-auto :max-nodes 50 :min-nodes 1 :recombine true)
	add("transfinite_auto", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		maxNodes, minNodes := defaults.MaxNodes, defaults.MinNodes
		for key, dst := range map[string]*int{"max-nodes": &maxNodes, "min-nodes": &minNodes} {
			if v, ok := pa.kw[key]; ok {
				n, err := toInt(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("transfinite-auto: %s: %w", key, err)
				}
				*dst = n
			}
		}
		recombine := false
		if v, ok := pa.kw["recombine"]; ok {
			r, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("transfinite-auto: recombine: %w", err)
			}
			recombine = r
		}
		s.SetTransfiniteAuto(maxNodes, minNodes, recombine)
		return done("transfinite-auto")
	})

	// (boundary-layer :size 0.01 :ratio 1.2 :layers 3 :skip-recombine true)
	// (boundary-layer :ratio 1.2 :structured true)
	add("boundary_layer", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var bl ql.BoundaryLayer
		for key, dst := range map[string]*float64{"size": &bl.Size, "ratio": &bl.Ratio} {
			if v, ok := pa.kw[key]; ok {
				f, err := toFloat64(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("boundary-layer: %s: %w", key, err)
				}
				*dst = f
			}
		}
		if v, ok := pa.kw["layers"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("boundary-layer: layers: %w", err)
			}
			bl.Layers = n
		}
		if v, ok := pa.kw["skip-recombine"]; ok {
			skip, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("boundary-layer: skip-recombine: %w", err)
			}
			bl.SkipRecombine = skip
		}
		if v, ok := pa.kw["structured"]; ok {
			only, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("boundary-layer: structured: %w", err)
			}
			if only {
				s.AddStructuredBoundaryLayer(bl)
				return done("boundary-layer")
			}
		}
		s.AddBoundaryLayer(bl)
		return done("boundary-layer")
	})
}
