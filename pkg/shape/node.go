// Package shape defines the declarative shape tree: typed nodes with
// geometric and display attributes, kind-specific constructor parameters,
// ownership of children and shared references to operands.
//
// Placement attributes are kept mutually consistent. Writing x, y or z
// recomputes position when the new point is farther than tolerance from
// the current one; writing position updates x, y and z; writing position or
// direction recomputes axis; writing axis decomposes it back into position
// and direction. Each node tracks which fields are currently propagating so
// a derived write never re-derives the field it came from.
//
// Every effective change is reported to the node's observers. Writes that
// leave a value unchanged report nothing.
package shape

import (
	"fmt"

	"github.com/chazu/declcad/pkg/geom"
	"github.com/google/uuid"
)

// DefaultTolerance is the default geometric tolerance of a node.
const DefaultTolerance = 1e-6

// NodeID uniquely identifies a node for the lifetime of the process.
type NodeID uuid.UUID

// NewNodeID returns a random node ID.
func NewNodeID() NodeID { return NodeID(uuid.New()) }

func (id NodeID) String() string { return uuid.UUID(id).String() }

// Short returns the first 8 hex digits, for logs and labels.
func (id NodeID) Short() string { return id.String()[:8] }

// IsZero reports whether id is the zero value.
func (id NodeID) IsZero() bool { return id == NodeID{} }

// ---------------------------------------------------------------------------
// Fields and changes
// ---------------------------------------------------------------------------

// Field identifies an observable attribute of a node.
type Field int

const (
	FieldName Field = iota
	FieldX
	FieldY
	FieldZ
	FieldPosition
	FieldDirection
	FieldAxis
	FieldColor
	FieldMaterial
	FieldTransparency
	FieldTolerance
	FieldParam
	FieldChildren
	FieldOperands
	FieldDestroyed
)

func (f Field) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldX:
		return "x"
	case FieldY:
		return "y"
	case FieldZ:
		return "z"
	case FieldPosition:
		return "position"
	case FieldDirection:
		return "direction"
	case FieldAxis:
		return "axis"
	case FieldColor:
		return "color"
	case FieldMaterial:
		return "material"
	case FieldTransparency:
		return "transparency"
	case FieldTolerance:
		return "tolerance"
	case FieldParam:
		return "param"
	case FieldChildren:
		return "children"
	case FieldOperands:
		return "operands"
	case FieldDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// IsDisplay reports whether a change to f affects how the shape is shown.
func (f Field) IsDisplay() bool {
	switch f {
	case FieldAxis, FieldColor, FieldTransparency, FieldMaterial:
		return true
	}
	return false
}

// fieldSet is a bit set of fields.
type fieldSet uint32

func (s fieldSet) has(f Field) bool { return s&(1<<uint(f)) != 0 }

// Change describes one effective attribute mutation.
type Change struct {
	Node  *Node
	Field Field
	Param string // set when Field is FieldParam
	Old   any
	New   any
}

// Observer receives changes synchronously, in mutation order.
type Observer func(Change)

type observerEntry struct {
	id int
	fn Observer
}

// ---------------------------------------------------------------------------
// Node
// ---------------------------------------------------------------------------

// Node is one declarative shape. The zero value is not usable; create
// nodes with New.
type Node struct {
	id   NodeID
	kind Kind
	name string

	parent   *Node
	children []*Node
	operands []*Node // explicit operands; nil falls back to children

	x, y, z   float64
	position  geom.Vec3
	direction geom.Vec3
	axis      geom.Axis
	tolerance float64

	color        string
	material     Material
	transparency float64

	params map[string]any

	observers    []observerEntry
	nextObserver int
	propagating  fieldSet

	buildErr  error
	destroyed bool
}

// New returns a node of the given kind at the origin, pointing along +Z,
// with default parameters.
func New(kind Kind) *Node {
	return &Node{
		id:        NewNodeID(),
		kind:      kind,
		direction: geom.ZDir,
		axis:      geom.DefaultAxis(),
		tolerance: DefaultTolerance,
		params:    defaultParams(kind),
	}
}

func (n *Node) ID() NodeID   { return n.id }
func (n *Node) Kind() Kind   { return n.kind }
func (n *Node) Name() string { return n.name }

// Label names the node for messages: its name, or kind#short-id.
func (n *Node) Label() string {
	if n.name != "" {
		return n.name
	}
	return n.kind.String() + "#" + n.id.Short()
}

func (n *Node) String() string { return n.Label() }

// SetName renames the node.
func (n *Node) SetName(name string) {
	if name == n.name {
		return
	}
	old := n.name
	n.name = name
	n.notify(Change{Field: FieldName, Old: old, New: name})
}

// Observe registers fn for every effective change to n and returns a
// function that unregisters it.
func (n *Node) Observe(fn Observer) (cancel func()) {
	n.nextObserver++
	id := n.nextObserver
	n.observers = append(n.observers, observerEntry{id: id, fn: fn})
	return func() {
		for i, o := range n.observers {
			if o.id == id {
				n.observers = append(n.observers[:i:i], n.observers[i+1:]...)
				return
			}
		}
	}
}

func (n *Node) notify(c Change) {
	if len(n.observers) == 0 {
		return
	}
	c.Node = n
	for _, o := range append([]observerEntry(nil), n.observers...) {
		o.fn(c)
	}
}

// BuildError returns the geometry build error attached by the proxy layer,
// or nil.
func (n *Node) BuildError() error { return n.buildErr }

// SetBuildError attaches or clears a build error. It is not observable.
func (n *Node) SetBuildError(err error) { n.buildErr = err }

// ---------------------------------------------------------------------------
// Placement synchronization
// ---------------------------------------------------------------------------

func (n *Node) X() float64           { return n.x }
func (n *Node) Y() float64           { return n.y }
func (n *Node) Z() float64           { return n.z }
func (n *Node) Position() geom.Vec3  { return n.position }
func (n *Node) Direction() geom.Vec3 { return n.direction }
func (n *Node) Axis() geom.Axis      { return n.axis }
func (n *Node) Tolerance() float64   { return n.tolerance }

func (n *Node) propagatingFrom(f Field) bool { return n.propagating.has(f) }

// guard marks f as propagating until the returned func is called.
func (n *Node) guard(f Field) (release func()) {
	prev := n.propagating
	n.propagating |= 1 << uint(f)
	return func() { n.propagating = prev }
}

func (n *Node) SetX(v float64) error { return n.setCoord(FieldX, &n.x, v) }
func (n *Node) SetY(v float64) error { return n.setCoord(FieldY, &n.y, v) }
func (n *Node) SetZ(v float64) error { return n.setCoord(FieldZ, &n.z, v) }

func (n *Node) setCoord(f Field, dst *float64, v float64) error {
	if !geom.IsFinite(v) {
		return n.invalid(f.String(), "non-finite value %v", v)
	}
	if *dst == v {
		return nil
	}
	old := *dst
	*dst = v
	n.notify(Change{Field: f, Old: old, New: v})
	if n.propagatingFrom(FieldPosition) {
		return nil
	}
	if pt := geom.V(n.x, n.y, n.z); !pt.Near(n.position, n.tolerance) {
		n.applyPosition(pt)
	}
	return nil
}

// SetPosition moves the node and updates x, y, z and axis.
func (n *Node) SetPosition(p geom.Vec3) error {
	if !p.IsFinite() {
		return n.invalid("position", "non-finite point %v", p)
	}
	n.applyPosition(p)
	return nil
}

func (n *Node) applyPosition(p geom.Vec3) {
	if p == n.position {
		return
	}
	old := n.position
	n.position = p
	n.notify(Change{Field: FieldPosition, Old: old, New: p})

	release := n.guard(FieldPosition)
	_ = n.setCoord(FieldX, &n.x, p.X)
	_ = n.setCoord(FieldY, &n.y, p.Y)
	_ = n.setCoord(FieldZ, &n.z, p.Z)
	release()

	n.syncAxis()
}

// SetDirection re-orients the node. dir is normalized.
func (n *Node) SetDirection(dir geom.Vec3) error {
	if !dir.IsFinite() {
		return n.invalid("direction", "non-finite vector %v", dir)
	}
	if dir.Length() == 0 {
		return n.invalid("direction", "zero vector")
	}
	n.applyDirection(dir.Normalize())
	return nil
}

func (n *Node) applyDirection(d geom.Vec3) {
	if d == n.direction {
		return
	}
	old := n.direction
	n.direction = d
	n.notify(Change{Field: FieldDirection, Old: old, New: d})
	n.syncAxis()
}

func (n *Node) syncAxis() {
	if n.propagatingFrom(FieldAxis) {
		return
	}
	n.applyAxis(geom.Axis{Location: n.position, Direction: n.direction})
}

// SetAxis sets location and direction at once.
func (n *Node) SetAxis(a geom.Axis) error {
	ax, err := geom.NewAxis(a.Location, a.Direction)
	if err != nil {
		return n.invalid("axis", "%v", err)
	}
	n.applyAxis(ax)
	return nil
}

func (n *Node) applyAxis(a geom.Axis) {
	if a == n.axis {
		return
	}
	old := n.axis
	n.axis = a

	release := n.guard(FieldAxis)
	n.applyPosition(a.Location)
	n.applyDirection(a.Direction)
	release()

	n.notify(Change{Field: FieldAxis, Old: old, New: a})
}

// SetTolerance sets the geometric tolerance used for placement
// comparisons and passed to the kernel.
func (n *Node) SetTolerance(t float64) error {
	if !geom.IsFinite(t) || t <= 0 {
		return n.invalid("tolerance", "must be a positive number, got %v", t)
	}
	if t == n.tolerance {
		return nil
	}
	old := n.tolerance
	n.tolerance = t
	n.notify(Change{Field: FieldTolerance, Old: old, New: t})
	return nil
}

// ---------------------------------------------------------------------------
// Display attributes
// ---------------------------------------------------------------------------

func (n *Node) Color() string         { return n.color }
func (n *Node) Material() Material    { return n.material }
func (n *Node) Transparency() float64 { return n.transparency }

// SetColor accepts "#rgb", "#rrggbb", a CSS colour name, or "" to clear.
func (n *Node) SetColor(c string) error {
	norm, err := NormalizeColor(c)
	if err != nil {
		return n.invalid("color", "%v", err)
	}
	if norm == n.color {
		return nil
	}
	old := n.color
	n.color = norm
	n.notify(Change{Field: FieldColor, Old: old, New: norm})
	return nil
}

// SetMaterial sets the surface material.
func (n *Node) SetMaterial(m Material) error {
	if m < 0 || m >= materialCount {
		return n.invalid("material", "unknown material %d", int(m))
	}
	if m == n.material {
		return nil
	}
	old := n.material
	n.material = m
	n.notify(Change{Field: FieldMaterial, Old: old, New: m})
	return nil
}

// SetMaterialName sets the material by name.
func (n *Node) SetMaterialName(name string) error {
	m, err := ParseMaterial(name)
	if err != nil {
		return n.invalid("material", "%v", err)
	}
	return n.SetMaterial(m)
}

// SetTransparency sets the viewer transparency in [0, 1].
func (n *Node) SetTransparency(t float64) error {
	if !geom.IsFinite(t) || t < 0 || t > 1 {
		return n.invalid("transparency", "must be within [0, 1], got %v", t)
	}
	if t == n.transparency {
		return nil
	}
	old := n.transparency
	n.transparency = t
	n.notify(Change{Field: FieldTransparency, Old: old, New: t})
	return nil
}

// ---------------------------------------------------------------------------
// Constructor parameters
// ---------------------------------------------------------------------------

// SetParam sets a kind-specific constructor parameter. Unknown names and
// values of the wrong type are rejected.
func (n *Node) SetParam(name string, v any) error {
	def, ok := paramDef(n.kind, name)
	if !ok {
		return n.invalid(name, "unknown parameter for %s", n.kind)
	}
	val, err := coerce(def.Type, v)
	if err != nil {
		return n.invalid(name, "%v", err)
	}
	old := n.params[name]
	if paramEqual(old, val) {
		return nil
	}
	n.params[name] = val
	n.notify(Change{Field: FieldParam, Param: name, Old: old, New: val})
	return nil
}

// Param returns the current value of a parameter.
func (n *Node) Param(name string) (any, bool) {
	v, ok := n.params[name]
	return v, ok
}

// ParamNames returns the node's parameter names in schema order.
func (n *Node) ParamNames() []string {
	specs := schemas[n.kind]
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// Float returns a float parameter, or 0.
func (n *Node) Float(name string) float64 {
	f, _ := n.params[name].(float64)
	return f
}

// Bool returns a bool parameter, or false.
func (n *Node) Bool(name string) bool {
	b, _ := n.params[name].(bool)
	return b
}

// Vec returns a vector parameter, or the zero vector.
func (n *Node) Vec(name string) geom.Vec3 {
	v, _ := n.params[name].(geom.Vec3)
	return v
}

// Points returns a copy of a point-list parameter.
func (n *Node) Points(name string) []geom.Vec3 {
	p, _ := n.params[name].([]geom.Vec3)
	return append([]geom.Vec3(nil), p...)
}

// Str returns a name parameter, or "".
func (n *Node) Str(name string) string {
	v, _ := n.params[name].(string)
	return v
}

// Indices returns a copy of an index-list parameter.
func (n *Node) Indices(name string) []int {
	p, _ := n.params[name].([]int)
	return append([]int(nil), p...)
}
