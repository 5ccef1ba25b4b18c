package engine

import (
	"slices"
	"strings"
	"testing"

	"github.com/chazu/declcad/pkg/geom"
	"github.com/chazu/declcad/pkg/shape"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(box :dx 2)`,
			expect: `(box "__kw_dx" 2)`,
		},
		{
			name:   "multiple keywords",
			input:  `(cylinder :radius 1 :height 4)`,
			expect: `(cylinder "__kw_radius" 1 "__kw_height" 4)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(thick-solid :thickness 1)`,
			expect: `(thick_solid "__kw_thickness" 1)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "keyword value",
			input:  `:material :steel`,
			expect: `"__kw_material" "__kw_steel"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Shape builtins
// ---------------------------------------------------------------------------

func TestBoxWithAttributes(t *testing.T) {
	res := evaluateOK(t, `
;; a coloured block
(box :dx 2 :dy 3 :dz 4 :name "block" :color "orange" :material :steel
     :position (vec3 1 0 0) :transparency 0.25)
`)
	if len(res.Roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(res.Roots))
	}
	b := res.Roots[0]
	if b.Kind() != shape.KindBox {
		t.Fatalf("expected box, got %s", b.Kind())
	}
	if b.Float("dx") != 2 || b.Float("dy") != 3 || b.Float("dz") != 4 {
		t.Errorf("unexpected dimensions %v %v %v", b.Float("dx"), b.Float("dy"), b.Float("dz"))
	}
	if b.Name() != "block" {
		t.Errorf("name = %q, want block", b.Name())
	}
	if b.Color() != "#ffa500" {
		t.Errorf("color = %q, want #ffa500", b.Color())
	}
	if b.Material() != shape.MaterialSteel {
		t.Errorf("material = %s, want steel", b.Material())
	}
	if b.X() != 1 || b.Axis().Location != geom.V(1, 0, 0) {
		t.Errorf("position not synchronized: x=%v axis=%v", b.X(), b.Axis())
	}
	if b.Transparency() != 0.25 {
		t.Errorf("transparency = %v, want 0.25", b.Transparency())
	}
}

func TestOperationAdoptsShapeArguments(t *testing.T) {
	res := evaluateOK(t, `(cut (box :dx 2 :dy 2 :dz 2) (box :position (vec3 0.5 0.5 0.5)))`)
	if len(res.Roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(res.Roots))
	}
	cut := res.Roots[0]
	if cut.Kind() != shape.KindCut {
		t.Fatalf("expected cut, got %s", cut.Kind())
	}
	children := cut.Children()
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	if cut.ExplicitOperands() {
		t.Error("unshared arguments should not set explicit operands")
	}
	if got := cut.Operands(); len(got) != 2 || got[0] != children[0] {
		t.Errorf("operands should fall back to children, got %v", got)
	}
	if children[1].Position() != geom.V(0.5, 0.5, 0.5) {
		t.Errorf("tool position = %v", children[1].Position())
	}
}

func TestDefshapeSharesOperands(t *testing.T) {
	res := evaluateOK(t, `
(defshape "pin" (cylinder :radius 0.5 :height 3))
(part :name "a" (cut (box :dx 4 :dy 4 :dz 1) (shape "pin")))
(part :name "b" (fuse (box :dx 2 :dy 2 :dz 1) (shape "pin")))
`)
	pin, ok := res.Names["pin"]
	if !ok {
		t.Fatal("expected pin in names")
	}
	if pin.Name() != "pin" {
		t.Errorf("defshape should name the node, got %q", pin.Name())
	}
	if len(res.Roots) != 2 {
		t.Fatalf("expected 2 part roots, got %d", len(res.Roots))
	}
	a, b := res.Roots[0], res.Roots[1]
	if a.Name() != "a" || b.Name() != "b" {
		t.Fatalf("unexpected roots %s, %s", a.Label(), b.Label())
	}

	cut := a.Children()[0]
	if pin.Parent() != cut {
		t.Errorf("first use should adopt pin, parent = %v", pin.Parent())
	}
	fuse := b.Children()[0]
	if !fuse.ExplicitOperands() {
		t.Fatal("second use should reference pin as a shared operand")
	}
	ops := fuse.Operands()
	if len(ops) != 2 || ops[1] != pin {
		t.Errorf("fuse operands = %v", ops)
	}
	if len(fuse.Children()) != 1 {
		t.Errorf("fuse should own only its box, got %d children", len(fuse.Children()))
	}
	if issues := shape.Validate(res.Roots); shape.HasErrors(issues) {
		t.Errorf("unexpected validation errors: %v", issues)
	}
}

func TestKebabCaseBuiltins(t *testing.T) {
	tests := []struct {
		src  string
		kind shape.Kind
	}{
		{`(thick-solid :thickness 0.2 (box))`, shape.KindThickSolid},
		{`(thru-sections (circle :radius 1) (circle :radius 2 :z 3))`, shape.KindThruSections},
		{`(linear-form :direction (vec3 1 0 0) (box) (box))`, shape.KindLinearForm},
		{`(revolution-form :angle 90 :fuse false (box) (box))`, shape.KindRevolutionForm},
		{`(half-space :position (vec3 0 0 5) (circle :radius 1))`, shape.KindHalfSpace},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			res := evaluateOK(t, tt.src)
			if len(res.Roots) != 1 || res.Roots[0].Kind() != tt.kind {
				t.Fatalf("expected a single %s root, got %v", tt.kind, res.Roots)
			}
		})
	}
}

func TestListParameters(t *testing.T) {
	res := evaluateOK(t, `
(def w 10)
(fillet :radius 0.2 :edges (list 0 1 2)
  (prism :height w
    (polygon :points (list (vec3 0 0 0) (vec3 1 0 0) (vec3 0 1 0)) :closed true)))
`)
	fillet := res.Roots[0]
	if got := fillet.Indices("edges"); !slices.Equal(got, []int{0, 1, 2}) {
		t.Errorf("edges = %v", got)
	}
	prism := fillet.Children()[0]
	if prism.Float("height") != 10 {
		t.Errorf("height = %v, want 10", prism.Float("height"))
	}
	poly := prism.Children()[0]
	if len(poly.Points("points")) != 3 || !poly.Bool("closed") {
		t.Errorf("polygon = %v closed=%v", poly.Points("points"), poly.Bool("closed"))
	}
}

func TestDrawAndWedgeBuiltins(t *testing.T) {
	res := evaluateOK(t, `
(part
  (wedge :dx 2 :dy 1 :dz 3 :ltx 0.5)
  (point :position (vec3 1 2 3))
  (vertex)
  (line :length 4 :direction (vec3 1 0 0))
  (arc :points (list (vec3 1 0 0) (vec3 0 1 0) (vec3 1 1 1)))
  (ellipse :major-radius 3 :minor-radius 1)
  (fillet :radius 0.1 :shape :polynomial (fuse (box) (sphere))))
`)
	kids := res.Roots[0].Children()
	if len(kids) != 7 {
		t.Fatalf("expected 7 children, got %d", len(kids))
	}
	want := []shape.Kind{shape.KindWedge, shape.KindPoint, shape.KindVertex, shape.KindLine,
		shape.KindArc, shape.KindEllipse, shape.KindFillet}
	for i, k := range want {
		if kids[i].Kind() != k {
			t.Errorf("child %d is %s, want %s", i, kids[i].Kind(), k)
		}
	}
	if got := kids[0].Float("ltx"); got != 0.5 {
		t.Errorf("ltx = %v, want 0.5", got)
	}
	if got := len(kids[4].Points("points")); got != 3 {
		t.Errorf("arc has %d points, want 3", got)
	}
	if got := kids[5].Float("major-radius"); got != 3 {
		t.Errorf("major-radius = %v, want 3", got)
	}
	if got := kids[6].Str("shape"); got != "polynomial" {
		t.Errorf("fillet shape = %q, want polynomial", got)
	}
}

func TestListOfShapesIsSpliced(t *testing.T) {
	res := evaluateOK(t, `(part (list (box) (sphere :radius 2)))`)
	if n := len(res.Roots[0].Children()); n != 2 {
		t.Fatalf("expected 2 children, got %d", n)
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"unknown parameter", `(box :radius 2)`, "radius"},
		{"bad colour", `(box :color "not-a-colour")`, "color"},
		{"unknown material", `(box :material :cheese)`, "material"},
		{"zero direction", `(cylinder :direction (vec3 0 0 0))`, "direction"},
		{"primitive with shape argument", `(box (sphere))`, "takes no shape arguments"},
		{"point with shape argument", `(point (box))`, "takes no shape arguments"},
		{"unknown shape name", `(shape "nope")`, "nope"},
		{"duplicate defshape", `(defshape "a" (box)) (defshape "a" (box))`, "already defined"},
		{"vec3 arity", `(vec3 1 2)`, "vec3"},
		{"shared shape in part", `(defshape "a" (box)) (part (fuse (shape "a") (box))) (part (shape "a"))`, "already belongs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evalErrs := evaluateFails(t, tt.src)
			if !strings.Contains(evalErrs[0].Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", evalErrs[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestBuiltinsAndKeywords(t *testing.T) {
	builtins := Builtins()
	for _, want := range []string{"box", "thru-sections", "defshape", "shape", "part", "vec3"} {
		if !slices.Contains(builtins, want) {
			t.Errorf("Builtins() missing %q", want)
		}
	}
	if !slices.IsSorted(builtins) {
		t.Error("Builtins() should be sorted")
	}

	keywords := Keywords()
	for _, want := range []string{":dx", ":color", ":radius", ":points", ":tolerance"} {
		if !slices.Contains(keywords, want) {
			t.Errorf("Keywords() missing %q", want)
		}
	}
	seen := make(map[string]bool)
	for _, k := range keywords {
		if seen[k] {
			t.Errorf("duplicate keyword %q", k)
		}
		seen[k] = true
	}
}
