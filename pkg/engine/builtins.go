package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/declcad/pkg/geom"
	"github.com/chazu/declcad/pkg/shape"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/iancoleman/strcase"
	"github.com/samber/lo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpShape wraps a shape node so it can be passed between builtins.
type sexpShape struct {
	node *shape.Node
}

func (s *sexpShape) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %s)", s.node.Kind(), s.node.Label())
}
func (s *sexpShape) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a geom.Vec3.
type sexpVec3 struct {
	vec geom.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
// order records keywords in source order so later keywords win.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	order      []string
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			i++
			continue
		}
		if _, seen := result.kw[name]; !seen {
			result.order = append(result.order, name)
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i += 2
		} else {
			// Keyword at end with no value: treat as a flag.
			result.kw[name] = &zygo.SexpBool{Val: true}
			i++
		}
	}
	return result
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

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_steel) and plain strings ("steel").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toVec3 extracts a Vec3 from a sexpVec3.
func toVec3(s zygo.Sexp) (geom.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return geom.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, bool, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		items, err := zygo.ListToArray(v)
		return items, true, err
	case *zygo.SexpArray:
		return v.Val, true, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, true, nil
		}
	}
	return nil, false, nil
}

// toParamValue converts a Sexp into the Go value shape.Node.SetParam
// accepts. Lists become []any; the node coerces them per its schema.
func toParamValue(s zygo.Sexp) (any, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return v.Val, nil
	case *zygo.SexpFloat:
		return v.Val, nil
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpStr:
		return strings.TrimPrefix(v.S, kwPrefix), nil
	case *sexpVec3:
		return v.vec, nil
	}
	items, isList, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	if !isList {
		return nil, fmt.Errorf("unsupported value %s", s.SexpString(nil))
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		val, err := toParamValue(item)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

// toShapes flattens positional arguments into shape nodes. Lists of shapes
// are spliced in place.
func toShapes(args []zygo.Sexp) ([]*shape.Node, error) {
	var out []*shape.Node
	for i, arg := range args {
		if ref, ok := arg.(*sexpShape); ok {
			out = append(out, ref.node)
			continue
		}
		items, isList, err := sexpListToSlice(arg)
		if err != nil {
			return nil, err
		}
		if !isList {
			return nil, fmt.Errorf("argument %d: expected shape, got %s", i+1, arg.SexpString(nil))
		}
		nested, err := toShapes(items)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Attribute keywords
// ---------------------------------------------------------------------------

// attributeKeywords are accepted by every shape builtin. Any other keyword
// names a kind-specific parameter.
var attributeKeywords = []string{
	"name", "x", "y", "z", "position", "direction",
	"color", "material", "transparency", "tolerance",
}

// applyKeyword writes one keyword argument to n through its setters.
func applyKeyword(n *shape.Node, key string, v zygo.Sexp) error {
	switch key {
	case "name":
		s, err := toString(v)
		if err != nil {
			return err
		}
		n.SetName(s)
		return nil
	case "x", "y", "z", "transparency", "tolerance":
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		switch key {
		case "x":
			return n.SetX(f)
		case "y":
			return n.SetY(f)
		case "z":
			return n.SetZ(f)
		case "transparency":
			return n.SetTransparency(f)
		}
		return n.SetTolerance(f)
	case "position", "direction":
		vec, err := toVec3(v)
		if err != nil {
			return err
		}
		if key == "position" {
			return n.SetPosition(vec)
		}
		return n.SetDirection(vec)
	case "color":
		s, err := toKeywordString(v)
		if err != nil {
			return err
		}
		return n.SetColor(s)
	case "material":
		s, err := toKeywordString(v)
		if err != nil {
			return err
		}
		return n.SetMaterialName(s)
	}
	val, err := toParamValue(v)
	if err != nil {
		return err
	}
	return n.SetParam(key, val)
}

// ---------------------------------------------------------------------------
// Tree construction
// ---------------------------------------------------------------------------

// builder collects the nodes created during one evaluation.
type builder struct {
	created []*shape.Node
	names   map[string]*shape.Node
}

func newBuilder() *builder {
	return &builder{names: make(map[string]*shape.Node)}
}

func (b *builder) result() *Result {
	roots := lo.Filter(b.created, func(n *shape.Node, _ int) bool {
		return n.Parent() == nil && !n.Destroyed()
	})
	return &Result{Roots: roots, Names: b.names}
}

// construct creates a node of kind from builtin arguments. Shape arguments
// without a parent become children. When any shape argument already has a
// parent, it is referenced as a shared operand and the full argument list
// becomes the node's explicit operands.
func (b *builder) construct(kind shape.Kind, args []zygo.Sexp) (zygo.Sexp, error) {
	pa := parseArgs(args)
	n := shape.New(kind)

	for _, key := range pa.order {
		if err := applyKeyword(n, key, pa.kw[key]); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %s: %w", kind, key, err)
		}
	}

	shapes, err := toShapes(pa.positional)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s: %w", kind, err)
	}
	if len(shapes) > 0 && kind != shape.KindPart && !kind.UsesOperands() {
		return zygo.SexpNull, fmt.Errorf("%s takes no shape arguments", kind)
	}

	shared := false
	for _, s := range shapes {
		if s.Parent() != nil {
			if kind == shape.KindPart {
				return zygo.SexpNull, fmt.Errorf("part: %s already belongs to %s", s.Label(), s.Parent().Label())
			}
			shared = true
			continue
		}
		if err := n.AddChild(s); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", kind, err)
		}
	}
	if shared {
		if err := n.SetOperands(shapes...); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", kind, err)
		}
	}

	b.created = append(b.created, n)
	return &sexpShape{node: n}, nil
}

// builtinName is the zygomys symbol for a kind; preprocessSource rewrites
// kebab-case calls to it.
func builtinName(k shape.Kind) string {
	return strcase.ToSnake(k.String())
}

// Builtins returns the user-visible builtin names, sorted.
func Builtins() []string {
	names := []string{"vec3", "defshape", "shape"}
	for _, k := range shape.Kinds() {
		names = append(names, k.String())
	}
	sort.Strings(names)
	return names
}

// Keywords returns every keyword a builtin accepts, with its leading colon,
// sorted.
func Keywords() []string {
	names := append([]string(nil), attributeKeywords...)
	for _, k := range shape.Kinds() {
		for _, p := range shape.Schema(k) {
			names = append(names, p.Name)
		}
	}
	names = lo.Uniq(names)
	sort.Strings(names)
	return lo.Map(names, func(n string, _ int) string { return ":" + n })
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the shape builtins into a zygomys environment.
// The builtins record created nodes in b.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *builder) {

	// -----------------------------------------------------------------------
	// (box :dx 2 :color "orange"), (cut (box) (cylinder ...)), ...
	// -----------------------------------------------------------------------
	for _, k := range shape.Kinds() {
		kind := k
		env.AddFunction(builtinName(kind), func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			return b.construct(kind, args)
		})
	}

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}

		var c [3]float64
		for i, axis := range []string{"x", "y", "z"} {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: geom.V(c[0], c[1], c[2])}, nil
	})

	// -----------------------------------------------------------------------
	// (defshape "hole" (cylinder :radius 2 :height 10))
	// -----------------------------------------------------------------------
	env.AddFunction("defshape", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("defshape requires a name and a shape expression")
		}

		shapeName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defshape: name: %w", err)
		}
		if _, dup := b.names[shapeName]; dup {
			return zygo.SexpNull, fmt.Errorf("defshape: %q is already defined", shapeName)
		}
		ref, ok := args[1].(*sexpShape)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("defshape: expected shape expression, got %s", args[1].SexpString(nil))
		}

		ref.node.SetName(shapeName)
		b.names[shapeName] = ref.node
		return ref, nil
	})

	// -----------------------------------------------------------------------
	// (shape "hole")
	// -----------------------------------------------------------------------
	env.AddFunction("shape", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("shape requires a name argument")
		}

		shapeName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("shape: name: %w", err)
		}
		n, ok := b.names[shapeName]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("shape: no shape named %q", shapeName)
		}
		return &sexpShape{node: n}, nil
	})
}
