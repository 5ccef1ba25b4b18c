package sdfx

import (
	"math"

	"github.com/chazu/declcad/pkg/geom"
	"github.com/chazu/declcad/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface checks.
var (
	_ kernel.Shape = (*solid)(nil)
	_ kernel.Shape = (*profile)(nil)
	_ kernel.Shape = (*curve)(nil)
	_ kernel.Shape = (*compound)(nil)
)

// edgeForm is the cross-section a blend gives the edges of a solid.
type edgeForm int

const (
	edgeRound edgeForm = iota
	edgeChamfer
	edgePolynomial
)

// operation names the construction that asked for the form.
func (f edgeForm) operation() string {
	if f == edgeChamfer {
		return "chamfer"
	}
	return "fillet"
}

// blendFunc rebuilds a solid with its edges blended to size k.
type blendFunc func(k float64, form edgeForm) (sdf.SDF3, error)

// solid wraps a world-space sdf.SDF3.
type solid struct {
	s     sdf.SDF3
	blend blendFunc // nil when the construction has no blendable edges
}

func (s *solid) Dim() int { return kernel.DimSolid }

// BoundingBox returns the axis-aligned bounding box.
func (s *solid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// profile is a planar region: an sdf.SDF2 in the local XY plane of frame.
type profile struct {
	s      sdf.SDF2
	frame  sdf.M44
	axis   geom.Axis // frame origin and plane normal in world space
	radius float64   // circle radius, zero for other profiles
	points []geom.Vec3
}

func (p *profile) Dim() int { return kernel.DimProfile }

func (p *profile) BoundingBox() (min, max [3]float64) {
	bb := p.s.BoundingBox()
	var pts []geom.Vec3
	for _, x := range []float64{bb.Min.X, bb.Max.X} {
		for _, y := range []float64{bb.Min.Y, bb.Max.Y} {
			pts = append(pts, fromV3(p.frame.MulPosition(v3.Vec{X: x, Y: y})))
		}
	}
	return bounds(pts)
}

// curve is a world-space polyline. A single point is a vertex.
type curve struct {
	points []geom.Vec3
	closed bool
}

func (c *curve) Dim() int {
	if len(c.points) == 1 {
		return kernel.DimPoint
	}
	return kernel.DimCurve
}

func (c *curve) BoundingBox() (min, max [3]float64) { return bounds(c.points) }

// segments returns consecutive point pairs, closing the loop if needed.
func (c *curve) segments() [][2]geom.Vec3 {
	var segs [][2]geom.Vec3
	for i := 1; i < len(c.points); i++ {
		segs = append(segs, [2]geom.Vec3{c.points[i-1], c.points[i]})
	}
	if c.closed && len(c.points) > 2 {
		segs = append(segs, [2]geom.Vec3{c.points[len(c.points)-1], c.points[0]})
	}
	return segs
}

// compound groups shapes without merging them.
type compound struct {
	parts []kernel.Shape
}

func (c *compound) Dim() int {
	d := kernel.DimSolid
	for i, p := range c.parts {
		if i == 0 || p.Dim() > d {
			d = p.Dim()
		}
	}
	return d
}

func (c *compound) BoundingBox() (min, max [3]float64) {
	if len(c.parts) == 0 {
		return min, max
	}
	min, max = c.parts[0].BoundingBox()
	for _, p := range c.parts[1:] {
		pmin, pmax := p.BoundingBox()
		for i := 0; i < 3; i++ {
			min[i] = math.Min(min[i], pmin[i])
			max[i] = math.Max(max[i], pmax[i])
		}
	}
	return min, max
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func toV3(v geom.Vec3) v3.Vec   { return v3.Vec{X: v.X, Y: v.Y, Z: v.Z} }
func fromV3(v v3.Vec) geom.Vec3 { return geom.Vec3{X: v.X, Y: v.Y, Z: v.Z} }

func bounds(pts []geom.Vec3) (min, max [3]float64) {
	if len(pts) == 0 {
		return min, max
	}
	min, max = pts[0].Array(), pts[0].Array()
	for _, p := range pts[1:] {
		a := p.Array()
		for i := 0; i < 3; i++ {
			min[i] = math.Min(min[i], a[i])
			max[i] = math.Max(max[i], a[i])
		}
	}
	return min, max
}

// ---------------------------------------------------------------------------
// Placement
// ---------------------------------------------------------------------------

// orient returns the rotation taking +Z onto dir.
func orient(dir geom.Vec3) sdf.M44 {
	d := dir.Normalize()
	if d.Length() == 0 {
		return sdf.Identity3d()
	}
	axis := geom.ZDir.Cross(d)
	if axis.Length() < 1e-12 {
		if d.Z > 0 {
			return sdf.Identity3d()
		}
		return sdf.RotateX(math.Pi)
	}
	angle := math.Acos(math.Max(-1, math.Min(1, geom.ZDir.Dot(d))))
	return sdf.Rotate3d(toV3(axis.Normalize()), angle)
}

// placement maps local coordinates (origin, +Z up) onto ax.
func placement(ax geom.Axis) sdf.M44 {
	return sdf.Translate3d(toV3(ax.Location)).Mul(orient(ax.Direction))
}

// transformAxis maps an axis through m.
func transformAxis(m sdf.M44, ax geom.Axis) geom.Axis {
	loc := fromV3(m.MulPosition(toV3(ax.Location)))
	tip := fromV3(m.MulPosition(toV3(ax.Location.Add(ax.Direction))))
	return geom.Axis{Location: loc, Direction: tip.Sub(loc).Normalize()}
}
