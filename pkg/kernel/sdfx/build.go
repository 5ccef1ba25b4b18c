package sdfx

import (
	"math"

	"github.com/chazu/declcad/pkg/geom"
	"github.com/chazu/declcad/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// rejected wraps an sdfx constructor error.
func rejected(shape string, err error) *kernel.GeometryBuildError {
	return &kernel.GeometryBuildError{
		Kind:    kernel.Degenerate,
		Shape:   shape,
		Message: "sdfx rejected the parameters",
		Err:     err,
	}
}

// lift moves a z-centred sdfx primitive so that its base sits on z=0.
func lift(h float64) sdf.M44 { return sdf.Translate3d(v3.Vec{Z: h / 2}) }

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// rounded builds a primitive whose edges can be rounded by its own
// constructor, placing it with m.
func rounded(name string, m sdf.M44, ctor func(round float64) (sdf.SDF3, error)) (kernel.Shape, error) {
	mk := func(round float64) (sdf.SDF3, error) {
		s, err := ctor(round)
		if err != nil {
			return nil, rejected(name, err)
		}
		return sdf.Transform3D(s, m), nil
	}
	s, err := mk(0)
	if err != nil {
		return nil, err
	}
	return &solid{s: s, blend: func(k float64, form edgeForm) (sdf.SDF3, error) {
		if form != edgeRound {
			return nil, kernel.Unsupportedf(form.operation(), "%s edges can only be rounded", name)
		}
		return mk(k)
	}}, nil
}

func buildBox(p kernel.BoxParams, ax geom.Axis) (kernel.Shape, error) {
	size := v3.Vec{X: p.DX, Y: p.DY, Z: p.DZ}
	// sdf.Box3D is centred; the box's minimum corner sits on the placement.
	m := placement(ax).Mul(sdf.Translate3d(v3.Vec{X: p.DX / 2, Y: p.DY / 2, Z: p.DZ / 2}))
	return rounded(p.Name(), m, func(round float64) (sdf.SDF3, error) {
		return sdf.Box3D(size, round)
	})
}

func buildCylinder(p kernel.CylinderParams, ax geom.Axis) (kernel.Shape, error) {
	m := placement(ax).Mul(lift(p.Height))
	return rounded(p.Name(), m, func(round float64) (sdf.SDF3, error) {
		return sdf.Cylinder3D(p.Height, p.Radius, round)
	})
}

func buildCone(p kernel.ConeParams, ax geom.Axis) (kernel.Shape, error) {
	m := placement(ax).Mul(lift(p.Height))
	return rounded(p.Name(), m, func(round float64) (sdf.SDF3, error) {
		return sdf.Cone3D(p.Height, p.Radius1, p.Radius2, round)
	})
}

func buildSphere(p kernel.SphereParams, ax geom.Axis) (kernel.Shape, error) {
	s, err := sdf.Sphere3D(p.Radius)
	if err != nil {
		return nil, rejected(p.Name(), err)
	}
	return &solid{s: sdf.Transform3D(s, placement(ax))}, nil
}

func buildTorus(p kernel.TorusParams, ax geom.Axis) (kernel.Shape, error) {
	tube, err := sdf.Circle2D(p.Radius2)
	if err != nil {
		return nil, rejected(p.Name(), err)
	}
	tube = sdf.Transform2D(tube, sdf.Translate2d(v2.Vec{X: p.Radius1}))
	s, err := sdf.Revolve3D(tube)
	if err != nil {
		return nil, rejected(p.Name(), err)
	}
	return &solid{s: sdf.Transform3D(s, placement(ax))}, nil
}

func buildWedge(p kernel.WedgeParams, ax geom.Axis) (kernel.Shape, error) {
	outline := []v2.Vec{{X: 0, Y: 0}, {X: p.DX, Y: 0}, {X: p.LTX, Y: p.DY}, {X: 0, Y: p.DY}}
	if p.LTX == 0 {
		outline = append(outline[:2], outline[3])
	}
	s2, err := sdf.Polygon2D(outline)
	if err != nil {
		return nil, rejected(p.Name(), err)
	}
	s := sdf.Extrude3D(s2, p.DZ)
	return &solid{s: sdf.Transform3D(s, placement(ax).Mul(lift(p.DZ)))}, nil
}

// halfSpaceExtent bounds a half-space so that it can still be meshed.
const halfSpaceExtent = 1e3

// buildHalfSpace fills the side of op's plane that holds ref.
func buildHalfSpace(op kernel.Shape, ref geom.Vec3) (kernel.Shape, error) {
	const name = "half-space"
	pr, err := profileOf(name, op)
	if err != nil {
		return nil, err
	}
	side := ref.Sub(pr.axis.Location).Dot(pr.axis.Direction.Normalize())
	if math.Abs(side) < 1e-9 {
		return nil, kernel.Degeneratef(name, "position", "reference point lies on the surface")
	}
	e := halfSpaceExtent
	box, err := sdf.Box3D(v3.Vec{X: 2 * e, Y: 2 * e, Z: e}, 0)
	if err != nil {
		return nil, rejected(name, err)
	}
	m := pr.frame.Mul(sdf.Translate3d(v3.Vec{Z: math.Copysign(e/2, side)}))
	return &solid{s: sdf.Transform3D(box, m)}, nil
}

// ---------------------------------------------------------------------------
// Draw primitives
// ---------------------------------------------------------------------------

// arcSegments is the number of chords per full turn of a sampled curve.
const arcSegments = 64

func buildPoint(ax geom.Axis) (kernel.Shape, error) {
	return &curve{points: []geom.Vec3{ax.Location}}, nil
}

func buildLine(p kernel.LineParams, ax geom.Axis) (kernel.Shape, error) {
	end := ax.Location.Add(ax.Direction.Normalize().Scale(p.Length))
	return &curve{points: []geom.Vec3{ax.Location, end}}, nil
}

func buildArc(p kernel.ArcParams, ax geom.Axis) (kernel.Shape, error) {
	if len(p.Points) == 3 {
		pts, err := arcThrough(p.Name(), worldPoints(ax, p.Points))
		if err != nil {
			return nil, err
		}
		return &curve{points: pts}, nil
	}
	sweep := math.Mod(p.Alpha2-p.Alpha1, 360)
	if sweep <= 0 {
		sweep += 360
	}
	deg := math.Pi / 180
	u, v := geom.V(p.Radius, 0, 0), geom.V(0, p.Radius, 0)
	local := sampleArc(geom.Origin, u, v, p.Alpha1*deg, sweep*deg)
	return &curve{points: worldPoints(ax, local)}, nil
}

// sampleArc returns points c + u cos t + v sin t for t from start through
// start+sweep.
func sampleArc(c, u, v geom.Vec3, start, sweep float64) []geom.Vec3 {
	n := int(math.Ceil(arcSegments * sweep / (2 * math.Pi)))
	if n < 2 {
		n = 2
	}
	pts := make([]geom.Vec3, n+1)
	for i := range pts {
		t := start + sweep*float64(i)/float64(n)
		pts[i] = c.Add(u.Scale(math.Cos(t))).Add(v.Scale(math.Sin(t)))
	}
	return pts
}

// arcThrough samples the circular arc from pts[0] through pts[1] to pts[2].
func arcThrough(name string, pts []geom.Vec3) ([]geom.Vec3, error) {
	p0, p1, p2 := pts[0], pts[1], pts[2]
	a, b := p0.Sub(p2), p1.Sub(p2)
	axb := a.Cross(b)
	d := 2 * axb.Dot(axb)
	if d < 1e-18 {
		return nil, kernel.Degeneratef(name, "points", "points are collinear")
	}
	c := p2.Add(b.Scale(a.Dot(a)).Sub(a.Scale(b.Dot(b))).Cross(axb).Scale(1 / d))
	r := p0.Sub(c).Length()
	n := p1.Sub(p0).Cross(p2.Sub(p1)).Normalize()
	u := p0.Sub(c).Scale(1 / r)
	v := n.Cross(u)

	w := p2.Sub(c)
	sweep := math.Atan2(w.Dot(v), w.Dot(u))
	if sweep <= 0 {
		sweep += 2 * math.Pi
	}
	out := sampleArc(c, u.Scale(r), v.Scale(r), 0, sweep)
	out[0], out[len(out)-1] = p0, p2
	return out, nil
}

func buildEllipse(p kernel.EllipseParams, ax geom.Axis) (kernel.Shape, error) {
	local := make([]v2.Vec, arcSegments)
	loop := make([]geom.Vec3, arcSegments)
	for i := range local {
		t := 2 * math.Pi * float64(i) / arcSegments
		local[i] = v2.Vec{X: p.MajorRadius * math.Cos(t), Y: p.MinorRadius * math.Sin(t)}
		loop[i] = geom.V(local[i].X, local[i].Y, 0)
	}
	s, err := sdf.Polygon2D(local)
	if err != nil {
		return nil, rejected(p.Name(), err)
	}
	return &profile{s: s, frame: placement(ax), axis: ax, points: worldPoints(ax, loop)}, nil
}

func buildCircle(p kernel.CircleParams, ax geom.Axis) (kernel.Shape, error) {
	s, err := sdf.Circle2D(p.Radius)
	if err != nil {
		return nil, rejected(p.Name(), err)
	}
	return &profile{s: s, frame: placement(ax), axis: ax, radius: p.Radius}, nil
}

func worldPoints(ax geom.Axis, local []geom.Vec3) []geom.Vec3 {
	m := placement(ax)
	out := make([]geom.Vec3, len(local))
	for i, p := range local {
		out[i] = fromV3(m.MulPosition(toV3(p)))
	}
	return out
}

func buildPolygon(p kernel.PolygonParams, ax geom.Axis) (kernel.Shape, error) {
	pts := worldPoints(ax, p.Points)
	if !p.Closed {
		return &curve{points: pts}, nil
	}
	return faceFromPoints(p.Name(), pts)
}

func buildSegment(p kernel.SegmentParams, ax geom.Axis) (kernel.Shape, error) {
	return &curve{points: worldPoints(ax, p.Points)}, nil
}

func buildWire(ops []kernel.Shape) (kernel.Shape, error) {
	const tol = 1e-9
	var pts []geom.Vec3
	for _, op := range ops {
		var next []geom.Vec3
		switch v := op.(type) {
		case *curve:
			next = v.points
			if v.closed && len(v.points) > 0 {
				next = append(append([]geom.Vec3(nil), v.points...), v.points[0])
			}
		case *profile:
			if len(v.points) == 0 {
				return nil, kernel.Unsupportedf("wire", "cannot join a curved profile")
			}
			next = append(append([]geom.Vec3(nil), v.points...), v.points[0])
		default:
			return nil, kernel.Unsupportedf("wire", "operand is not a curve")
		}
		if len(pts) > 0 && len(next) > 0 && pts[len(pts)-1].Near(next[0], tol) {
			next = next[1:]
		}
		pts = append(pts, next...)
	}
	if len(pts) < 2 {
		return nil, kernel.Degeneratef("wire", "points", "wire has fewer than two points")
	}
	c := &curve{points: pts}
	if len(pts) > 3 && pts[0].Near(pts[len(pts)-1], tol) {
		c.points = pts[:len(pts)-1]
		c.closed = true
	}
	return c, nil
}

func buildFace(op kernel.Shape) (kernel.Shape, error) {
	return profileOf("face", op)
}

// faceFromPoints fits a plane through a closed loop of world points and
// returns it as a profile in that plane.
func faceFromPoints(name string, pts []geom.Vec3) (*profile, error) {
	if len(pts) < 3 {
		return nil, kernel.Degeneratef(name, "points", "a face needs at least 3 points")
	}
	// Newell's method for the loop normal.
	var n geom.Vec3
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	if n.Length() < 1e-12 {
		return nil, kernel.Degeneratef(name, "points", "points enclose no area")
	}
	ax := geom.Axis{Location: pts[0], Direction: n.Normalize()}
	frame := placement(ax)
	inv := frame.Inverse()

	min, max := bounds(pts)
	extent := 0.0
	for i := 0; i < 3; i++ {
		extent = math.Max(extent, max[i]-min[i])
	}
	local := make([]v2.Vec, len(pts))
	for i, p := range pts {
		l := inv.MulPosition(toV3(p))
		if math.Abs(l.Z) > 1e-6*math.Max(extent, 1) {
			return nil, kernel.Degeneratef(name, "points", "points are not coplanar")
		}
		local[i] = v2.Vec{X: l.X, Y: l.Y}
	}
	s, err := sdf.Polygon2D(local)
	if err != nil {
		return nil, rejected(name, err)
	}
	return &profile{s: s, frame: frame, axis: ax, points: pts}, nil
}

// ---------------------------------------------------------------------------
// Operand coercion
// ---------------------------------------------------------------------------

func solidOf(name string, s kernel.Shape) (sdf.SDF3, error) {
	switch v := s.(type) {
	case *solid:
		return v.s, nil
	case *compound:
		var parts []sdf.SDF3
		for _, p := range v.parts {
			ps, err := solidOf(name, p)
			if err != nil {
				return nil, err
			}
			parts = append(parts, ps)
		}
		switch len(parts) {
		case 0:
			return nil, kernel.Degeneratef(name, "operands", "operand is an empty group")
		case 1:
			return parts[0], nil
		}
		return sdf.Union3D(parts...), nil
	}
	return nil, kernel.Unsupportedf(name, "operand of dimension %d is not a solid", s.Dim())
}

func profileOf(name string, s kernel.Shape) (*profile, error) {
	switch v := s.(type) {
	case *profile:
		return v, nil
	case *curve:
		if !v.closed {
			return nil, kernel.Degeneratef(name, "operands", "curve is not closed")
		}
		return faceFromPoints(name, v.points)
	}
	return nil, kernel.Unsupportedf(name, "operand of dimension %d is not a profile", s.Dim())
}

func solidsOf(name string, ops []kernel.Shape) ([]sdf.SDF3, error) {
	out := make([]sdf.SDF3, len(ops))
	for i, op := range ops {
		s, err := solidOf(name, op)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Booleans and blends
// ---------------------------------------------------------------------------

// smoothMin returns the blending minimum for radius k, or nil for a sharp
// edge.
func smoothMin(k float64, form edgeForm) func(a, b float64) float64 {
	if k <= 0 {
		return nil
	}
	switch form {
	case edgeChamfer:
		return sdf.ChamferMin(k)
	case edgePolynomial:
		return sdf.PolyMin(k)
	}
	return sdf.RoundMin(k)
}

// smoothMax mirrors a blending minimum into a blending maximum.
func smoothMax(fn func(a, b float64) float64) func(a, b float64) float64 {
	return func(a, b float64) float64 { return -fn(-a, -b) }
}

func buildBoolean(p kernel.BooleanParams, ops []kernel.Shape) (kernel.Shape, error) {
	sdfs, err := solidsOf(p.Name(), ops)
	if err != nil {
		return nil, err
	}
	combine := func(k float64, form edgeForm) (sdf.SDF3, error) {
		blend := smoothMin(k, form)
		switch p.Op {
		case kernel.BoolFuse:
			u := sdf.Union3D(sdfs...)
			if blend != nil {
				us, ok := u.(*sdf.UnionSDF3)
				if !ok {
					return nil, kernel.Unsupportedf(p.Name(), "cannot blend this union")
				}
				us.SetMin(blend)
			}
			return u, nil
		case kernel.BoolCut:
			tool := sdfs[1]
			if len(sdfs) > 2 {
				tool = sdf.Union3D(sdfs[1:]...)
			}
			d := sdf.Difference3D(sdfs[0], tool)
			if blend != nil {
				ds, ok := d.(*sdf.DifferenceSDF3)
				if !ok {
					return nil, kernel.Unsupportedf(p.Name(), "cannot blend this difference")
				}
				ds.SetMax(smoothMax(blend))
			}
			return d, nil
		case kernel.BoolCommon:
			acc := sdfs[0]
			for _, s := range sdfs[1:] {
				acc = sdf.Intersect3D(acc, s)
				if blend != nil {
					is, ok := acc.(*sdf.IntersectionSDF3)
					if !ok {
						return nil, kernel.Unsupportedf(p.Name(), "cannot blend this intersection")
					}
					is.SetMax(smoothMax(blend))
				}
			}
			return acc, nil
		}
		return nil, kernel.Unsupportedf(p.Name(), "unknown boolean")
	}
	s, err := combine(0, edgeRound)
	if err != nil {
		return nil, err
	}
	return &solid{s: s, blend: combine}, nil
}

// filletForm maps a fillet cross-section onto a blend.
func filletForm(p kernel.FilletParams) (edgeForm, error) {
	switch p.Shape {
	case "", kernel.FilletRational:
		return edgeRound, nil
	case kernel.FilletPolynomial:
		return edgePolynomial, nil
	}
	return 0, kernel.Unsupportedf(p.Name(), "%s fillets are not supported", p.Shape)
}

// buildBlend fillets or chamfers every edge of op by re-blending its
// construction.
func buildBlend(name string, op kernel.Shape, k float64, form edgeForm) (kernel.Shape, error) {
	s, ok := op.(*solid)
	if !ok {
		return nil, kernel.Unsupportedf(name, "operand of dimension %d cannot be blended", op.Dim())
	}
	if s.blend == nil {
		return nil, kernel.Unsupportedf(name, "operand has no blendable edges")
	}
	out, err := s.blend(k, form)
	if err != nil {
		return nil, err
	}
	return &solid{s: out}, nil
}

func buildOffset(p kernel.OffsetParams, op kernel.Shape) (kernel.Shape, error) {
	s, err := solidOf(p.Name(), op)
	if err != nil {
		return nil, err
	}
	return &solid{s: sdf.Offset3D(s, p.Offset)}, nil
}

func buildThickSolid(p kernel.ThickSolidParams, op kernel.Shape) (kernel.Shape, error) {
	if len(p.Faces) > 0 {
		return nil, kernel.Unsupportedf(p.Name(), "open faces are not supported")
	}
	s, err := solidOf(p.Name(), op)
	if err != nil {
		return nil, err
	}
	return &solid{s: sdf.Difference3D(s, sdf.Offset3D(s, -p.Thickness))}, nil
}

// ---------------------------------------------------------------------------
// Sweeps
// ---------------------------------------------------------------------------

// extrude sweeps a profile h along its normal, backwards when h < 0.
func extrude(pr *profile, h float64) sdf.SDF3 {
	ext := sdf.Extrude3D(pr.s, math.Abs(h))
	return sdf.Transform3D(ext, pr.frame.Mul(sdf.Translate3d(v3.Vec{Z: h / 2})))
}

// revolve turns a profile around the Y axis of its own plane. Angle is in
// degrees.
func revolve(name string, pr *profile, angle float64) (sdf.SDF3, error) {
	var (
		s   sdf.SDF3
		err error
	)
	if angle == 0 || angle >= 360 {
		s, err = sdf.Revolve3D(pr.s)
	} else {
		s, err = sdf.RevolveTheta3D(pr.s, angle*math.Pi/180)
	}
	if err != nil {
		return nil, rejected(name, err)
	}
	// sdfx revolves around +Z; bring that axis onto the profile's +Y.
	return sdf.Transform3D(s, pr.frame.Mul(sdf.RotateX(-math.Pi/2))), nil
}

func buildPrism(p kernel.PrismParams, op kernel.Shape) (kernel.Shape, error) {
	pr, err := profileOf(p.Name(), op)
	if err != nil {
		return nil, err
	}
	return &solid{s: extrude(pr, p.Height)}, nil
}

func buildRevol(name string, angle float64, op kernel.Shape) (kernel.Shape, error) {
	pr, err := profileOf(name, op)
	if err != nil {
		return nil, err
	}
	s, err := revolve(name, pr, angle)
	if err != nil {
		return nil, err
	}
	return &solid{s: s}, nil
}

// buildPipe sweeps a circular profile along a polyline as a chain of
// cylinders joined by spheres.
func buildPipe(profOp, pathOp kernel.Shape) (kernel.Shape, error) {
	const name = "pipe"
	pr, err := profileOf(name, profOp)
	if err != nil {
		return nil, err
	}
	if pr.radius <= 0 {
		return nil, kernel.Unsupportedf(name, "only circular profiles can be swept")
	}
	path, ok := pathOp.(*curve)
	if !ok {
		return nil, kernel.Unsupportedf(name, "spine of dimension %d is not a curve", pathOp.Dim())
	}
	var parts []sdf.SDF3
	segs := path.segments()
	for i, seg := range segs {
		dir := seg[1].Sub(seg[0])
		l := dir.Length()
		if l == 0 {
			continue
		}
		cyl, err := sdf.Cylinder3D(l, pr.radius, 0)
		if err != nil {
			return nil, rejected(name, err)
		}
		m := placement(geom.Axis{Location: seg[0], Direction: dir}).Mul(lift(l))
		parts = append(parts, sdf.Transform3D(cyl, m))
		if i > 0 || path.closed {
			joint, err := sdf.Sphere3D(pr.radius)
			if err != nil {
				return nil, rejected(name, err)
			}
			parts = append(parts, sdf.Transform3D(joint, sdf.Translate3d(toV3(seg[0]))))
		}
	}
	switch len(parts) {
	case 0:
		return nil, kernel.Degeneratef(name, "spine", "spine has no length")
	case 1:
		return &solid{s: parts[0]}, nil
	}
	return &solid{s: sdf.Union3D(parts...)}, nil
}

// buildThruSections lofts between consecutive parallel profiles.
func buildThruSections(p kernel.ThruSectionsParams, ops []kernel.Shape) (kernel.Shape, error) {
	if !p.Solid {
		return nil, kernel.Unsupportedf(p.Name(), "only solid lofts are supported")
	}
	profiles := make([]*profile, len(ops))
	for i, op := range ops {
		pr, err := profileOf(p.Name(), op)
		if err != nil {
			return nil, err
		}
		profiles[i] = pr
	}
	var parts []sdf.SDF3
	for i := 1; i < len(profiles); i++ {
		p0, p1 := profiles[i-1], profiles[i]
		if !p0.axis.Direction.Normalize().Near(p1.axis.Direction.Normalize(), 1e-6) {
			return nil, kernel.Unsupportedf(p.Name(), "sections %d and %d are not parallel", i-1, i)
		}
		local := p0.frame.Inverse().MulPosition(toV3(p1.axis.Location))
		if local.Z <= 0 {
			return nil, kernel.Degeneratef(p.Name(), "sections", "section %d does not advance along the normal", i)
		}
		s1 := sdf.Transform2D(p1.s, sdf.Translate2d(v2.Vec{X: local.X, Y: local.Y}))
		loft, err := sdf.Loft3D(p0.s, s1, local.Z, 0)
		if err != nil {
			return nil, rejected(p.Name(), err)
		}
		parts = append(parts, sdf.Transform3D(loft, p0.frame.Mul(lift(local.Z))))
	}
	if len(parts) == 1 {
		return &solid{s: parts[0]}, nil
	}
	return &solid{s: sdf.Union3D(parts...)}, nil
}

// ---------------------------------------------------------------------------
// Transforms and local forms
// ---------------------------------------------------------------------------

func transformMatrix(p kernel.TransformParams) sdf.M44 {
	deg := math.Pi / 180
	m := sdf.Translate3d(toV3(p.Translate)).
		Mul(sdf.RotateZ(p.Rotate.Z * deg)).
		Mul(sdf.RotateY(p.Rotate.Y * deg)).
		Mul(sdf.RotateX(p.Rotate.X * deg))
	if p.Scale != 0 && p.Scale != 1 {
		m = m.Mul(sdf.Scale3d(v3.Vec{X: p.Scale, Y: p.Scale, Z: p.Scale}))
	}
	if p.Mirror.Length() > 0 {
		r := orient(p.Mirror)
		flip := sdf.Scale3d(v3.Vec{X: 1, Y: 1, Z: -1})
		m = m.Mul(r.Mul(flip).Mul(r.Inverse()))
	}
	return m
}

func buildTransform(p kernel.TransformParams, op kernel.Shape) (kernel.Shape, error) {
	return transformShape(transformMatrix(p), scaleOf(p), op)
}

func scaleOf(p kernel.TransformParams) float64 {
	if p.Scale == 0 {
		return 1
	}
	return p.Scale
}

func transformShape(m sdf.M44, scale float64, op kernel.Shape) (kernel.Shape, error) {
	switch v := op.(type) {
	case *solid:
		out := &solid{s: sdf.Transform3D(v.s, m)}
		if v.blend != nil {
			inner := v.blend
			out.blend = func(k float64, form edgeForm) (sdf.SDF3, error) {
				s, err := inner(k/scale, form)
				if err != nil {
					return nil, err
				}
				return sdf.Transform3D(s, m), nil
			}
		}
		return out, nil
	case *profile:
		pts := make([]geom.Vec3, len(v.points))
		for i, p := range v.points {
			pts[i] = fromV3(m.MulPosition(toV3(p)))
		}
		return &profile{
			s:      v.s,
			frame:  m.Mul(v.frame),
			axis:   transformAxis(m, v.axis),
			radius: v.radius * scale,
			points: pts,
		}, nil
	case *curve:
		pts := make([]geom.Vec3, len(v.points))
		for i, p := range v.points {
			pts[i] = fromV3(m.MulPosition(toV3(p)))
		}
		return &curve{points: pts, closed: v.closed}, nil
	case *compound:
		out := &compound{}
		for _, part := range v.parts {
			tp, err := transformShape(m, scale, part)
			if err != nil {
				return nil, err
			}
			out.parts = append(out.parts, tp)
		}
		return out, nil
	}
	return nil, kernel.Unsupportedf("transform", "foreign shape %T", op)
}

func buildLinearForm(p kernel.LinearFormParams, baseOp, profOp kernel.Shape) (kernel.Shape, error) {
	base, err := solidOf(p.Name(), baseOp)
	if err != nil {
		return nil, err
	}
	pr, err := profileOf(p.Name(), profOp)
	if err != nil {
		return nil, err
	}
	h := p.Direction.Length()
	cos := p.Direction.Normalize().Dot(pr.axis.Direction.Normalize())
	if math.Abs(cos) < 1-1e-6 {
		return nil, kernel.Unsupportedf(p.Name(), "direction must be normal to the profile")
	}
	if cos < 0 {
		h = -h
	}
	return form(base, extrude(pr, h), p.Fuse), nil
}

func buildRevolutionForm(p kernel.RevolutionFormParams, baseOp, profOp kernel.Shape) (kernel.Shape, error) {
	base, err := solidOf(p.Name(), baseOp)
	if err != nil {
		return nil, err
	}
	pr, err := profileOf(p.Name(), profOp)
	if err != nil {
		return nil, err
	}
	tool, err := revolve(p.Name(), pr, p.Angle)
	if err != nil {
		return nil, err
	}
	return form(base, tool, p.Fuse), nil
}

func form(base, tool sdf.SDF3, fuse bool) kernel.Shape {
	if fuse {
		return &solid{s: sdf.Union3D(base, tool)}
	}
	return &solid{s: sdf.Difference3D(base, tool)}
}
