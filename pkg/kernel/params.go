package kernel

import (
	"fmt"
	"slices"

	"github.com/chazu/declcad/pkg/geom"
)

// Params is the closed set of construction parameter payloads. Each
// payload validates itself so that every backend rejects the same
// degenerate inputs with the same error.
type Params interface {
	// Name is the construction name used in error messages.
	Name() string
	// Arity is the minimum number of operand shapes required.
	Arity() int
	// Validate reports degenerate parameter values.
	Validate() error
	params() // marker method restricting implementations to this package
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// BoxParams is an axis-aligned box with its minimum corner at the
// placement location.
type BoxParams struct {
	DX, DY, DZ float64
}

// CylinderParams is a cylinder whose base circle is centred on the
// placement location and which extends along the placement direction.
type CylinderParams struct {
	Radius, Height float64
}

// ConeParams is a truncated cone. Radius2 may be zero.
type ConeParams struct {
	Radius1, Radius2, Height float64
}

// SphereParams is a sphere centred on the placement location.
type SphereParams struct {
	Radius float64
}

// TorusParams is a torus centred on the placement location with its ring in
// the plane normal to the placement direction.
type TorusParams struct {
	Radius1 float64 // ring radius
	Radius2 float64 // tube radius
}

// WedgeParams is a box whose top face, at y=DY, is narrowed to LTX along x.
// LTX of zero gives a triangular prism. The minimum corner sits on the
// placement location.
type WedgeParams struct {
	DX, DY, DZ float64
	LTX        float64
}

// HalfSpaceParams is the infinite solid on one side of its planar operand.
// The placement location is the reference point that picks the side.
type HalfSpaceParams struct{}

// ---------------------------------------------------------------------------
// Draw primitives
// ---------------------------------------------------------------------------

// PointParams is an isolated vertex at the placement location.
type PointParams struct{}

// LineParams is a straight curve from the placement location along the
// placement direction.
type LineParams struct {
	Length float64
}

// ArcParams is a circular arc. With three Points it runs through them in
// order; otherwise it is centred on the placement location in the
// placement plane and sweeps counterclockwise from Alpha1 to Alpha2
// degrees.
type ArcParams struct {
	Radius         float64
	Alpha1, Alpha2 float64
	Points         []geom.Vec3
}

// EllipseParams is a planar ellipse in the placement plane with its major
// axis along local x. It is a profile.
type EllipseParams struct {
	MajorRadius, MinorRadius float64
}

// CircleParams is a planar circle in the placement plane. It is a profile.
type CircleParams struct {
	Radius float64
}

// PolygonParams is a polyline in placement coordinates. A closed polygon is
// a profile, an open one is a curve.
type PolygonParams struct {
	Points []geom.Vec3
	Closed bool
}

// SegmentParams is a single straight curve between two points.
type SegmentParams struct {
	Points []geom.Vec3
}

// WireParams joins its curve operands end to end into one curve.
type WireParams struct{}

// FaceParams turns a closed curve or profile operand into a planar face.
type FaceParams struct{}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// BoolOp identifies a boolean operation.
type BoolOp int

const (
	BoolFuse BoolOp = iota
	BoolCut
	BoolCommon
)

func (o BoolOp) String() string {
	switch o {
	case BoolFuse:
		return "fuse"
	case BoolCut:
		return "cut"
	case BoolCommon:
		return "common"
	default:
		return fmt.Sprintf("BoolOp(%d)", int(o))
	}
}

// BooleanParams combines two or more solid operands. Cut subtracts every
// operand after the first from the first.
type BooleanParams struct {
	Op BoolOp
}

// FilletShape is the cross-section of a fillet.
type FilletShape string

const (
	FilletRational   FilletShape = "rational"
	FilletAngular    FilletShape = "angular"
	FilletPolynomial FilletShape = "polynomial"
)

// FilletShapes lists the accepted fillet cross-sections.
var FilletShapes = []FilletShape{FilletRational, FilletAngular, FilletPolynomial}

// FilletParams rounds edges of its operand. An empty Shape is rational.
type FilletParams struct {
	Radius float64
	Edges  []int // edge indices into the operand's topology, empty for all
	Shape  FilletShape
}

// ChamferParams bevels edges of its operand. Distance2 of zero means a
// symmetric chamfer.
type ChamferParams struct {
	Distance  float64
	Distance2 float64
	Edges     []int
	Faces     []int
}

// OffsetParams grows (positive) or shrinks (negative) a shape.
type OffsetParams struct {
	Offset float64
}

// ThickSolidParams hollows a solid, leaving walls of Thickness.
type ThickSolidParams struct {
	Thickness float64
	Faces     []int // faces left open
}

// PrismParams extrudes a profile along its normal.
type PrismParams struct {
	Height float64
}

// RevolParams revolves a profile around the placement direction.
// Angle is in degrees; zero or 360 is a full revolution.
type RevolParams struct {
	Angle float64
}

// PipeParams sweeps its first operand (a profile) along its second (a curve).
type PipeParams struct{}

// ThruSectionsParams lofts through two or more profiles in order.
type ThruSectionsParams struct {
	Solid bool
	Ruled bool
}

// TransformParams moves, rotates, scales or mirrors a shape. Rotate holds
// Euler angles in degrees applied X, then Y, then Z. A zero Mirror is no
// mirror, otherwise it is the normal of the mirror plane through the origin.
type TransformParams struct {
	Translate geom.Vec3
	Rotate    geom.Vec3
	Scale     float64
	Mirror    geom.Vec3
}

// LinearFormParams extrudes a profile operand along Direction and fuses the
// result with (or cuts it from) the base operand.
type LinearFormParams struct {
	Direction geom.Vec3
	Fuse      bool
}

// RevolutionFormParams revolves a profile operand by Angle degrees around the
// placement direction and fuses it with (or cuts it from) the base operand.
type RevolutionFormParams struct {
	Angle float64
	Fuse  bool
}

// CompoundParams groups its operands without merging them.
type CompoundParams struct{}

// ---------------------------------------------------------------------------
// Names and arities
// ---------------------------------------------------------------------------

func (BoxParams) Name() string            { return "box" }
func (CylinderParams) Name() string       { return "cylinder" }
func (ConeParams) Name() string           { return "cone" }
func (SphereParams) Name() string         { return "sphere" }
func (TorusParams) Name() string          { return "torus" }
func (WedgeParams) Name() string          { return "wedge" }
func (HalfSpaceParams) Name() string      { return "half-space" }
func (PointParams) Name() string          { return "point" }
func (LineParams) Name() string           { return "line" }
func (ArcParams) Name() string            { return "arc" }
func (EllipseParams) Name() string        { return "ellipse" }
func (CircleParams) Name() string         { return "circle" }
func (PolygonParams) Name() string        { return "polygon" }
func (SegmentParams) Name() string        { return "segment" }
func (WireParams) Name() string           { return "wire" }
func (FaceParams) Name() string           { return "face" }
func (p BooleanParams) Name() string      { return p.Op.String() }
func (FilletParams) Name() string         { return "fillet" }
func (ChamferParams) Name() string        { return "chamfer" }
func (OffsetParams) Name() string         { return "offset" }
func (ThickSolidParams) Name() string     { return "thick-solid" }
func (PrismParams) Name() string          { return "prism" }
func (RevolParams) Name() string          { return "revol" }
func (PipeParams) Name() string           { return "pipe" }
func (ThruSectionsParams) Name() string   { return "thru-sections" }
func (TransformParams) Name() string      { return "transform" }
func (LinearFormParams) Name() string     { return "linear-form" }
func (RevolutionFormParams) Name() string { return "revolution-form" }
func (CompoundParams) Name() string       { return "compound" }

func (BoxParams) Arity() int            { return 0 }
func (CylinderParams) Arity() int       { return 0 }
func (ConeParams) Arity() int           { return 0 }
func (SphereParams) Arity() int         { return 0 }
func (TorusParams) Arity() int          { return 0 }
func (WedgeParams) Arity() int          { return 0 }
func (HalfSpaceParams) Arity() int      { return 1 }
func (PointParams) Arity() int          { return 0 }
func (LineParams) Arity() int           { return 0 }
func (ArcParams) Arity() int            { return 0 }
func (EllipseParams) Arity() int        { return 0 }
func (CircleParams) Arity() int         { return 0 }
func (PolygonParams) Arity() int        { return 0 }
func (SegmentParams) Arity() int        { return 0 }
func (WireParams) Arity() int           { return 1 }
func (FaceParams) Arity() int           { return 1 }
func (BooleanParams) Arity() int        { return 2 }
func (FilletParams) Arity() int         { return 1 }
func (ChamferParams) Arity() int        { return 1 }
func (OffsetParams) Arity() int         { return 1 }
func (ThickSolidParams) Arity() int     { return 1 }
func (PrismParams) Arity() int          { return 1 }
func (RevolParams) Arity() int          { return 1 }
func (PipeParams) Arity() int           { return 2 }
func (ThruSectionsParams) Arity() int   { return 2 }
func (TransformParams) Arity() int      { return 1 }
func (LinearFormParams) Arity() int     { return 2 }
func (RevolutionFormParams) Arity() int { return 2 }
func (CompoundParams) Arity() int       { return 0 }

func (BoxParams) params()            {}
func (CylinderParams) params()       {}
func (ConeParams) params()           {}
func (SphereParams) params()         {}
func (TorusParams) params()          {}
func (WedgeParams) params()          {}
func (HalfSpaceParams) params()      {}
func (PointParams) params()          {}
func (LineParams) params()           {}
func (ArcParams) params()            {}
func (EllipseParams) params()        {}
func (CircleParams) params()         {}
func (PolygonParams) params()        {}
func (SegmentParams) params()        {}
func (WireParams) params()           {}
func (FaceParams) params()           {}
func (BooleanParams) params()        {}
func (FilletParams) params()         {}
func (ChamferParams) params()        {}
func (OffsetParams) params()         {}
func (ThickSolidParams) params()     {}
func (PrismParams) params()          {}
func (RevolParams) params()          {}
func (PipeParams) params()           {}
func (ThruSectionsParams) params()   {}
func (TransformParams) params()      {}
func (LinearFormParams) params()     {}
func (RevolutionFormParams) params() {}
func (CompoundParams) params()       {}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func positive(p Params, field string, v float64) error {
	if !geom.IsFinite(v) || v <= 0 {
		return Degeneratef(p.Name(), field, "%s must be positive, got %g", field, v)
	}
	return nil
}

func nonNegative(p Params, field string, v float64) error {
	if !geom.IsFinite(v) || v < 0 {
		return Degeneratef(p.Name(), field, "%s must not be negative, got %g", field, v)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p BoxParams) Validate() error {
	return firstErr(positive(p, "dx", p.DX), positive(p, "dy", p.DY), positive(p, "dz", p.DZ))
}

func (p CylinderParams) Validate() error {
	return firstErr(positive(p, "radius", p.Radius), positive(p, "height", p.Height))
}

func (p ConeParams) Validate() error {
	if err := firstErr(nonNegative(p, "radius", p.Radius1), nonNegative(p, "radius2", p.Radius2),
		positive(p, "height", p.Height)); err != nil {
		return err
	}
	if p.Radius1 == 0 && p.Radius2 == 0 {
		return Degeneratef(p.Name(), "radius", "both radii are zero")
	}
	return nil
}

func (p SphereParams) Validate() error { return positive(p, "radius", p.Radius) }

func (p TorusParams) Validate() error {
	if err := firstErr(positive(p, "radius", p.Radius1), positive(p, "radius2", p.Radius2)); err != nil {
		return err
	}
	if p.Radius2 >= p.Radius1 {
		return Degeneratef(p.Name(), "radius2", "tube radius %g must be smaller than ring radius %g", p.Radius2, p.Radius1)
	}
	return nil
}

func (p WedgeParams) Validate() error {
	return firstErr(positive(p, "dx", p.DX), positive(p, "dy", p.DY), positive(p, "dz", p.DZ),
		nonNegative(p, "ltx", p.LTX))
}

func (HalfSpaceParams) Validate() error { return nil }

func (p CircleParams) Validate() error { return positive(p, "radius", p.Radius) }

func (PointParams) Validate() error { return nil }

func (p LineParams) Validate() error { return positive(p, "length", p.Length) }

func (p ArcParams) Validate() error {
	if len(p.Points) > 0 {
		if len(p.Points) != 3 {
			return Degeneratef(p.Name(), "points", "needs exactly 3 points, got %d", len(p.Points))
		}
		for i, pt := range p.Points {
			if !pt.IsFinite() {
				return Degeneratef(p.Name(), "points", "point %d is not finite", i)
			}
		}
		a, b := p.Points[1].Sub(p.Points[0]), p.Points[2].Sub(p.Points[1])
		if a.Cross(b).Length() < 1e-12 {
			return Degeneratef(p.Name(), "points", "points are collinear")
		}
		return nil
	}
	if err := positive(p, "radius", p.Radius); err != nil {
		return err
	}
	if !geom.IsFinite(p.Alpha1) || !geom.IsFinite(p.Alpha2) {
		return Degeneratef(p.Name(), "alpha1", "angles must be finite")
	}
	if p.Alpha1 == p.Alpha2 {
		return Degeneratef(p.Name(), "alpha2", "arc has no sweep")
	}
	return nil
}

func (p EllipseParams) Validate() error {
	if err := firstErr(positive(p, "major-radius", p.MajorRadius),
		positive(p, "minor-radius", p.MinorRadius)); err != nil {
		return err
	}
	if p.MinorRadius > p.MajorRadius {
		return Degeneratef(p.Name(), "minor-radius", "minor radius %g exceeds major radius %g", p.MinorRadius, p.MajorRadius)
	}
	return nil
}

func (p PolygonParams) Validate() error {
	need := 2
	if p.Closed {
		need = 3
	}
	if len(p.Points) < need {
		return Degeneratef(p.Name(), "points", "needs at least %d points, got %d", need, len(p.Points))
	}
	for i, pt := range p.Points {
		if !pt.IsFinite() {
			return Degeneratef(p.Name(), "points", "point %d is not finite", i)
		}
	}
	return nil
}

func (p SegmentParams) Validate() error {
	if len(p.Points) != 2 {
		return Degeneratef(p.Name(), "points", "needs exactly 2 points, got %d", len(p.Points))
	}
	if p.Points[0].Near(p.Points[1], 0) {
		return Degeneratef(p.Name(), "points", "end points coincide")
	}
	return nil
}

func (WireParams) Validate() error    { return nil }
func (FaceParams) Validate() error    { return nil }
func (BooleanParams) Validate() error { return nil }

func (p FilletParams) Validate() error {
	if err := positive(p, "radius", p.Radius); err != nil {
		return err
	}
	if p.Shape != "" && !slices.Contains(FilletShapes, p.Shape) {
		return Degeneratef(p.Name(), "shape", "unknown fillet shape %q", string(p.Shape))
	}
	return nil
}

func (p ChamferParams) Validate() error {
	return firstErr(positive(p, "distance", p.Distance), nonNegative(p, "distance2", p.Distance2))
}

func (p OffsetParams) Validate() error {
	if !geom.IsFinite(p.Offset) || p.Offset == 0 {
		return Degeneratef(p.Name(), "offset", "offset must be non-zero, got %g", p.Offset)
	}
	return nil
}

func (p ThickSolidParams) Validate() error { return positive(p, "thickness", p.Thickness) }

func (p PrismParams) Validate() error { return positive(p, "height", p.Height) }

func (p RevolParams) Validate() error { return nonNegative(p, "angle", p.Angle) }

func (PipeParams) Validate() error         { return nil }
func (ThruSectionsParams) Validate() error { return nil }

func (p TransformParams) Validate() error {
	if !p.Translate.IsFinite() || !p.Rotate.IsFinite() || !p.Mirror.IsFinite() {
		return Degeneratef(p.Name(), "transform", "non-finite component")
	}
	if p.Scale != 0 {
		return positive(p, "scale", p.Scale)
	}
	return nil
}

func (p LinearFormParams) Validate() error {
	if !p.Direction.IsFinite() || p.Direction.Length() == 0 {
		return Degeneratef(p.Name(), "direction", "direction must be a non-zero vector")
	}
	return nil
}

func (p RevolutionFormParams) Validate() error { return nonNegative(p, "angle", p.Angle) }

func (CompoundParams) Validate() error { return nil }

// Check validates a request before any backend work: parameter values,
// operand count and operand presence.
func Check(req Request) error {
	if req.Params == nil {
		return &GeometryBuildError{Kind: Unsupported, Message: "no construction parameters"}
	}
	if err := req.Params.Validate(); err != nil {
		return err
	}
	if n := req.Params.Arity(); len(req.Operands) < n {
		return &GeometryBuildError{
			Kind:    MissingOperand,
			Shape:   req.Params.Name(),
			Message: fmt.Sprintf("needs %d operand(s), got %d", n, len(req.Operands)),
		}
	}
	for i, op := range req.Operands {
		if op == nil {
			return &GeometryBuildError{
				Kind:    MissingOperand,
				Shape:   req.Params.Name(),
				Message: fmt.Sprintf("operand %d has no shape", i),
			}
		}
	}
	return nil
}
