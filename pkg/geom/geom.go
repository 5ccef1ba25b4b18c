// Package geom holds the small vector and axis types shared by the shape
// tree, the proxy layer and the kernel adapters.
package geom

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNonFinite is returned when a coordinate is NaN or infinite.
	ErrNonFinite = errors.New("non-finite coordinate")
	// ErrZeroDirection is returned when a direction has no length.
	ErrZeroDirection = errors.New("zero-length direction")
)

// Vec3 is a 3D vector in millimetres.
type Vec3 struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
	Z float64 `json:"z" toml:"z"`
}

// V is shorthand for Vec3{x, y, z}.
func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// Unit vectors.
var (
	Origin = Vec3{}
	XDir   = Vec3{X: 1}
	YDir   = Vec3{Y: 1}
	ZDir   = Vec3{Z: 1}
)

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Normalize returns v scaled to unit length. A zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Near reports whether every component of v is within tol of o.
func (v Vec3) Near(o Vec3, tol float64) bool {
	return math.Abs(v.X-o.X) <= tol &&
		math.Abs(v.Y-o.Y) <= tol &&
		math.Abs(v.Z-o.Z) <= tol
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	return IsFinite(v.X) && IsFinite(v.Y) && IsFinite(v.Z)
}

// Array returns the components as an array.
func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func (v Vec3) String() string {
	return fmt.Sprintf("(%g %g %g)", v.X, v.Y, v.Z)
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ---------------------------------------------------------------------------
// Axis
// ---------------------------------------------------------------------------

// Axis is a located direction. Direction is always unit length when
// constructed through NewAxis.
type Axis struct {
	Location  Vec3 `json:"location" toml:"location"`
	Direction Vec3 `json:"direction" toml:"direction"`
}

// DefaultAxis is located at the origin and points along +Z.
func DefaultAxis() Axis {
	return Axis{Location: Origin, Direction: ZDir}
}

// NewAxis validates loc and dir and returns an axis with a normalized
// direction.
func NewAxis(loc, dir Vec3) (Axis, error) {
	if !loc.IsFinite() || !dir.IsFinite() {
		return Axis{}, ErrNonFinite
	}
	if dir.Length() == 0 {
		return Axis{}, ErrZeroDirection
	}
	return Axis{Location: loc, Direction: dir.Normalize()}, nil
}

// Near reports whether both location and direction agree within tol.
func (a Axis) Near(o Axis, tol float64) bool {
	return a.Location.Near(o.Location, tol) && a.Direction.Near(o.Direction, tol)
}

func (a Axis) String() string {
	return fmt.Sprintf("axis%s->%s", a.Location, a.Direction)
}
