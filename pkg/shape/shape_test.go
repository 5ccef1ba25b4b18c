package shape

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/declcad/pkg/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record collects every change reported by n.
func record(n *Node) *[]Change {
	var changes []Change
	n.Observe(func(c Change) { changes = append(changes, c) })
	return &changes
}

func fields(changes []Change) []Field {
	out := make([]Field, len(changes))
	for i, c := range changes {
		out[i] = c.Field
	}
	return out
}

func TestKindNames(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	assert.Equal(t, "thru-sections", KindThruSections.String())
	_, err := ParseKind("blob")
	assert.Error(t, err)
	assert.True(t, KindCut.UsesOperands())
	assert.False(t, KindBox.UsesOperands())
	assert.Equal(t, 2, KindFuse.MinOperands())

	assert.Equal(t, "half-space", KindHalfSpace.String())
	assert.True(t, KindHalfSpace.UsesOperands())
	assert.False(t, KindHalfSpace.IsOperation())
	assert.Equal(t, 1, KindHalfSpace.MinOperands())
	for _, k := range []Kind{KindWedge, KindPoint, KindVertex, KindLine, KindArc, KindEllipse} {
		assert.False(t, k.UsesOperands(), k.String())
		assert.Zero(t, k.MinOperands(), k.String())
	}
}

// ---------------------------------------------------------------------------
// Placement synchronization
// ---------------------------------------------------------------------------

func TestXYZRoundTrip(t *testing.T) {
	n := New(KindBox)
	require.NoError(t, n.SetX(1))
	require.NoError(t, n.SetY(-2.5))
	require.NoError(t, n.SetZ(3))

	assert.True(t, n.Position().Near(geom.V(1, -2.5, 3), n.Tolerance()))
	assert.Equal(t, geom.Axis{Location: n.Position(), Direction: geom.ZDir}, n.Axis())

	require.NoError(t, n.SetPosition(geom.V(4, 5, 6)))
	assert.Equal(t, 4.0, n.X())
	assert.Equal(t, 5.0, n.Y())
	assert.Equal(t, 6.0, n.Z())
}

func TestSetPositionPropagatesOnce(t *testing.T) {
	n := New(KindBox)
	changes := record(n)

	require.NoError(t, n.SetPosition(geom.V(1, 2, 3)))

	assert.Equal(t, []Field{FieldPosition, FieldX, FieldY, FieldZ, FieldAxis}, fields(*changes))
	assert.Equal(t, geom.V(1, 2, 3), n.Axis().Location)
}

func TestSetAxisDecomposes(t *testing.T) {
	n := New(KindCylinder)
	changes := record(n)
	ax := geom.Axis{Location: geom.V(1, 1, 1), Direction: geom.XDir}

	require.NoError(t, n.SetAxis(ax))

	assert.Equal(t, ax.Location, n.Position())
	assert.Equal(t, ax.Direction, n.Direction())
	assert.Equal(t, ax, n.Axis())
	assert.Equal(t, []Field{FieldPosition, FieldX, FieldY, FieldZ, FieldDirection, FieldAxis},
		fields(*changes))
}

func TestAxisObserverSeesNewPlacement(t *testing.T) {
	n := New(KindCylinder)
	ax := geom.Axis{Location: geom.V(2, -1, 4), Direction: geom.YDir}
	var seen []geom.Axis
	n.Observe(func(c Change) {
		if c.Field == FieldAxis {
			seen = append(seen, geom.Axis{Location: n.Position(), Direction: n.Direction()})
		}
	})

	require.NoError(t, n.SetAxis(ax))

	assert.Equal(t, []geom.Axis{ax}, seen)
}

func TestSetDirectionRecomputesAxis(t *testing.T) {
	n := New(KindCylinder)
	require.NoError(t, n.SetPosition(geom.V(0, 0, 5)))
	require.NoError(t, n.SetDirection(geom.V(0, 3, 0)))

	assert.Equal(t, geom.YDir, n.Direction())
	assert.Equal(t, geom.Axis{Location: geom.V(0, 0, 5), Direction: geom.YDir}, n.Axis())
}

func TestCoordinateWithinToleranceKeepsPosition(t *testing.T) {
	n := New(KindBox)
	require.NoError(t, n.SetTolerance(1e-3))
	require.NoError(t, n.SetX(1e-4))

	assert.Equal(t, 1e-4, n.X())
	assert.Equal(t, geom.Origin, n.Position())
}

func TestUnchangedWritesAreSilent(t *testing.T) {
	n := New(KindBox)
	require.NoError(t, n.SetPosition(geom.V(1, 2, 3)))
	require.NoError(t, n.SetColor("red"))
	changes := record(n)

	require.NoError(t, n.SetPosition(geom.V(1, 2, 3)))
	require.NoError(t, n.SetX(1))
	require.NoError(t, n.SetAxis(n.Axis()))
	require.NoError(t, n.SetColor("#ff0000"))
	require.NoError(t, n.SetParam("dx", 1))

	assert.Empty(t, *changes)
}

func TestInvalidInputRejected(t *testing.T) {
	n := New(KindBox)
	tests := []struct {
		name string
		set  func() error
	}{
		{"nan x", func() error { return n.SetX(math.NaN()) }},
		{"inf position", func() error { return n.SetPosition(geom.V(math.Inf(1), 0, 0)) }},
		{"zero direction", func() error { return n.SetDirection(geom.Vec3{}) }},
		{"zero axis", func() error { return n.SetAxis(geom.Axis{}) }},
		{"transparency", func() error { return n.SetTransparency(1.5) }},
		{"tolerance", func() error { return n.SetTolerance(0) }},
		{"color", func() error { return n.SetColor("no-such-colour") }},
		{"material", func() error { return n.SetMaterialName("cheese") }},
		{"unknown param", func() error { return n.SetParam("radius", 1.0) }},
		{"param type", func() error { return n.SetParam("dx", "wide") }},
		{"nan param", func() error { return n.SetParam("dx", math.NaN()) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set()
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
	assert.Equal(t, geom.Origin, n.Position())
	assert.Equal(t, geom.ZDir, n.Direction())
	assert.Equal(t, 1.0, n.Float("dx"))
}

// ---------------------------------------------------------------------------
// Display attributes and params
// ---------------------------------------------------------------------------

func TestNormalizeColor(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"#ABC", "#aabbcc"},
		{"#112233", "#112233"},
		{"steelblue", "#4682b4"},
		{"Red", "#ff0000"},
	}
	for _, tt := range tests {
		got, err := NormalizeColor(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	_, err := NormalizeColor("#12345")
	assert.Error(t, err)
}

func TestMaterials(t *testing.T) {
	m, err := ParseMaterial("shiny-plastic")
	require.NoError(t, err)
	assert.Equal(t, MaterialShinyPlastic, m)
	assert.Equal(t, "shiny_plastic", m.String())
	assert.Len(t, Materials(), 24)
}

func TestParams(t *testing.T) {
	n := New(KindChamfer)
	assert.Equal(t, []string{"distance", "distance2", "edges", "faces"}, n.ParamNames())

	changes := record(n)
	require.NoError(t, n.SetParam("distance", 2))
	require.NoError(t, n.SetParam("edges", []int64{0, 3}))

	assert.Equal(t, 2.0, n.Float("distance"))
	assert.Equal(t, []int{0, 3}, n.Indices("edges"))
	require.Len(t, *changes, 2)
	assert.Equal(t, "distance", (*changes)[0].Param)
	assert.Equal(t, 1.0, (*changes)[0].Old)

	poly := New(KindPolygon)
	require.NoError(t, poly.SetParam("points", []any{geom.V(0, 0, 0), []float64{1, 0, 0}}))
	assert.Equal(t, []geom.Vec3{geom.Origin, geom.XDir}, poly.Points("points"))
}

func TestNameParams(t *testing.T) {
	n := New(KindFillet)
	assert.Equal(t, []string{"radius", "edges", "shape"}, n.ParamNames())
	assert.Equal(t, "rational", n.Str("shape"))

	require.NoError(t, n.SetParam("shape", "polynomial"))
	assert.Equal(t, "polynomial", n.Str("shape"))

	err := n.SetParam("shape", 2)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "shape", ve.Field)
	assert.Equal(t, "polynomial", n.Str("shape"))

	w := New(KindWedge)
	assert.Equal(t, []string{"dx", "dy", "dz", "ltx"}, w.ParamNames())
	assert.Equal(t, 0.0, w.Float("ltx"))
	e := New(KindEllipse)
	assert.Equal(t, 2.0, e.Float("major-radius"))
	assert.Equal(t, 1.0, e.Float("minor-radius"))
}

// ---------------------------------------------------------------------------
// Tree
// ---------------------------------------------------------------------------

func TestTreeOwnership(t *testing.T) {
	a, b := New(KindPart), New(KindPart)
	box := New(KindBox)

	require.NoError(t, a.AddChild(box))
	assert.Error(t, b.AddChild(box), "second parent")
	assert.Error(t, box.AddChild(a), "cycle")
	require.NoError(t, b.AddChild(a))
	assert.Error(t, box.AddChild(b), "cycle through ancestor")

	assert.Same(t, b, box.Root())
	assert.True(t, a.RemoveChild(box))
	assert.Nil(t, box.Parent())
}

func TestOperandsFallBackToChildren(t *testing.T) {
	cut := New(KindCut)
	x, y := New(KindBox), New(KindBox)
	require.NoError(t, cut.AddChild(x))
	require.NoError(t, cut.AddChild(y))
	assert.Equal(t, []*Node{x, y}, cut.Operands())

	shared := New(KindSphere)
	changes := record(cut)
	require.NoError(t, cut.SetOperands(x, shared))
	assert.Equal(t, []*Node{x, shared}, cut.Operands())
	assert.Equal(t, []Field{FieldOperands}, fields(*changes))

	require.NoError(t, cut.SetOperands())
	assert.Equal(t, []*Node{x, y}, cut.Operands())
	assert.Error(t, cut.SetOperands(cut))
	assert.Error(t, New(KindBox).SetOperands(x))
}

func TestDestroyBottomUp(t *testing.T) {
	part := New(KindPart)
	part.SetName("part")
	fuse := New(KindFuse)
	fuse.SetName("fuse")
	box := New(KindBox)
	box.SetName("box")
	require.NoError(t, part.AddChild(fuse))
	require.NoError(t, fuse.AddChild(box))

	var order []string
	for _, n := range []*Node{part, fuse, box} {
		n := n
		n.Observe(func(c Change) {
			if c.Field == FieldDestroyed {
				order = append(order, n.Name())
			}
		})
	}
	part.Destroy()

	assert.Equal(t, []string{"box", "fuse", "part"}, order)
	assert.True(t, box.Destroyed())
	assert.Error(t, part.AddChild(New(KindBox)))
}

func TestWalkSkipsSubtree(t *testing.T) {
	part := New(KindPart)
	cut := New(KindCut)
	require.NoError(t, part.AddChild(cut))
	require.NoError(t, cut.AddChild(New(KindBox)))
	require.NoError(t, part.AddChild(New(KindSphere)))

	var kinds []Kind
	part.Walk(func(n *Node) bool {
		kinds = append(kinds, n.Kind())
		return n.Kind() != KindCut
	})
	assert.Equal(t, []Kind{KindPart, KindCut, KindSphere}, kinds)
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	t.Run("clean", func(t *testing.T) {
		cut := New(KindCut)
		require.NoError(t, cut.AddChild(New(KindBox)))
		require.NoError(t, cut.AddChild(New(KindBox)))
		assert.Empty(t, Validate([]*Node{cut}))
	})

	t.Run("operand cycle", func(t *testing.T) {
		a, b := New(KindFillet), New(KindOffset)
		require.NoError(t, a.SetOperands(b))
		require.NoError(t, b.SetOperands(a))
		issues := Validate([]*Node{a})
		require.True(t, HasErrors(issues))
		assert.Contains(t, issues[0].Error(), "cycle")
	})

	t.Run("destroyed operand", func(t *testing.T) {
		box := New(KindBox)
		fillet := New(KindFillet)
		require.NoError(t, fillet.SetOperands(box))
		box.Destroy()
		assert.True(t, HasErrors(Validate([]*Node{fillet})))
	})

	t.Run("duplicate names", func(t *testing.T) {
		a, b := New(KindBox), New(KindSphere)
		a.SetName("lid")
		b.SetName("lid")
		assert.True(t, HasErrors(Validate([]*Node{a, b})))
	})

	t.Run("missing operand is a warning", func(t *testing.T) {
		cut := New(KindCut)
		require.NoError(t, cut.AddChild(New(KindBox)))
		issues := Validate([]*Node{cut})
		require.Len(t, issues, 1)
		assert.Equal(t, SeverityWarning, issues[0].Severity)
		assert.False(t, HasErrors(issues))
	})
}

// ---------------------------------------------------------------------------
// Reconcile
// ---------------------------------------------------------------------------

// bracket builds a part holding a box with a hole cut from it, and a
// fillet referencing the cut.
func bracket(width, hole float64) []*Node {
	part := New(KindPart)
	part.SetName("bracket")
	cut := New(KindCut)
	base := New(KindBox)
	_ = base.SetParam("dx", width)
	drill := New(KindCylinder)
	_ = drill.SetParam("radius", hole)
	_ = drill.SetPosition(geom.V(1, 1, 0))
	_ = cut.AddChild(base)
	_ = cut.AddChild(drill)
	_ = part.AddChild(cut)
	fillet := New(KindFillet)
	_ = fillet.SetOperands(cut)
	_ = part.AddChild(fillet)
	return []*Node{part}
}

func TestReconcileUnchangedKeepsNodes(t *testing.T) {
	live := bracket(4, 0.5)
	var all []*Node
	var changes []Change
	live[0].Walk(func(n *Node) bool {
		all = append(all, n)
		n.Observe(func(c Change) { changes = append(changes, c) })
		return true
	})

	roots := ReconcileRoots(live, bracket(4, 0.5))

	require.Len(t, roots, 1)
	assert.Same(t, live[0], roots[0])
	assert.Empty(t, changes)
	fillet := live[0].Children()[1]
	assert.Same(t, live[0].Children()[0], fillet.Operands()[0])
	for _, n := range all {
		assert.False(t, n.Destroyed(), n.Label())
	}
}

func TestReconcileAppliesDifferences(t *testing.T) {
	live := bracket(4, 0.5)
	drill := live[0].Children()[0].Children()[1]
	changes := record(drill)

	ReconcileRoots(live, bracket(4, 0.75))

	require.Len(t, *changes, 1)
	assert.Equal(t, "radius", (*changes)[0].Param)
	assert.Equal(t, 0.75, drill.Float("radius"))
}

func TestReconcileReplacesChangedKinds(t *testing.T) {
	live := bracket(4, 0.5)
	cut := live[0].Children()[0]
	oldDrill := cut.Children()[1]

	next := bracket(4, 0.5)
	nextCut := next[0].Children()[0]
	nextCut.RemoveChild(nextCut.Children()[1])
	sphere := New(KindSphere)
	require.NoError(t, nextCut.AddChild(sphere))

	ReconcileRoots(live, next)

	assert.True(t, oldDrill.Destroyed())
	assert.Same(t, sphere, cut.Children()[1])
	assert.Same(t, cut, sphere.Parent())
}

func TestReconcileRootsDropsRemoved(t *testing.T) {
	a, b := New(KindBox), New(KindSphere)
	a.SetName("a")
	b.SetName("b")

	nb := New(KindSphere)
	nb.SetName("b")
	roots := ReconcileRoots([]*Node{a, b}, []*Node{nb})

	assert.Equal(t, []*Node{b}, roots)
	assert.True(t, a.Destroyed())
	assert.False(t, b.Destroyed())
}
