// Package kerneltest provides a deterministic in-memory kernel.Kernel for
// tests. Every solid is represented by its bounding box, so topology and
// meshes are cheap and exactly predictable: any solid reports the 12 edges,
// 6 faces and 1 shell of its box.
package kerneltest

import (
	"math"
	"sync"

	"github.com/chazu/declcad/pkg/geom"
	"github.com/chazu/declcad/pkg/kernel"
)

// Compile-time interface checks.
var (
	_ kernel.Kernel   = (*Kernel)(nil)
	_ kernel.Releaser = (*Kernel)(nil)
	_ kernel.Shape    = (*Shape)(nil)
)

// Shape is the fake kernel handle.
type Shape struct {
	ID        int
	Params    kernel.Params
	Placement geom.Axis
	Operands  []kernel.Shape
	dim       int
	min, max  [3]float64
}

func (s *Shape) Dim() int                           { return s.dim }
func (s *Shape) BoundingBox() (min, max [3]float64) { return s.min, s.max }

// Kernel records every request and builds bounding-box shapes.
type Kernel struct {
	mu       sync.Mutex
	nextID   int
	builds   []kernel.Request
	released []int
	meshes   int

	// Fail, when set, is consulted before every build. A non-nil return
	// fails the build with that error.
	Fail func(req kernel.Request) error
}

// New returns an empty fake kernel.
func New() *Kernel { return &Kernel{} }

// Build validates req like a real backend and returns a box-shaped handle.
func (k *Kernel) Build(req kernel.Request) (kernel.Shape, error) {
	k.mu.Lock()
	k.builds = append(k.builds, req)
	fail := k.Fail
	k.mu.Unlock()

	if err := kernel.Check(req); err != nil {
		return nil, err
	}
	if fail != nil {
		if err := fail(req); err != nil {
			return nil, err
		}
	}

	k.mu.Lock()
	k.nextID++
	id := k.nextID
	k.mu.Unlock()

	s := &Shape{
		ID:        id,
		Params:    req.Params,
		Placement: req.Placement,
		Operands:  append([]kernel.Shape(nil), req.Operands...),
		dim:       dimOf(req),
	}
	s.min, s.max = boundsOf(req)
	return s, nil
}

// Builds returns a copy of every request seen so far.
func (k *Kernel) Builds() []kernel.Request {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]kernel.Request(nil), k.builds...)
}

// BuildCount returns the number of Build calls.
func (k *Kernel) BuildCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.builds)
}

// BuildsOf counts the Build calls for one construction name.
func (k *Kernel) BuildsOf(name string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for _, r := range k.builds {
		if r.Params != nil && r.Params.Name() == name {
			n++
		}
	}
	return n
}

// MeshCount returns the number of Mesh calls.
func (k *Kernel) MeshCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.meshes
}

// Release records that a handle was freed.
func (k *Kernel) Release(s kernel.Shape) {
	fs, ok := s.(*Shape)
	if !ok {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.released = append(k.released, fs.ID)
}

// Released returns the IDs of released handles in release order.
func (k *Kernel) Released() []int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]int(nil), k.released...)
}

// Topology returns box topology for solids and profiles, one free edge
// per segment for curves, and nothing for points.
func (k *Kernel) Topology(s kernel.Shape) (*kernel.Topology, error) {
	if s.Dim() == kernel.DimPoint {
		return &kernel.Topology{}, nil
	}
	if s.Dim() == kernel.DimCurve {
		topo := &kernel.Topology{}
		fs, _ := s.(*Shape)
		n := 1
		if fs != nil {
			if p, ok := fs.Params.(kernel.PolygonParams); ok && len(p.Points) > 1 {
				n = len(p.Points) - 1
			}
		}
		for i := 0; i < n; i++ {
			topo.Edges = append(topo.Edges, kernel.Edge{Index: i, Faces: [2]int{-1, -1}})
		}
		return topo, nil
	}
	min, max := s.BoundingBox()
	return kernel.TopologyFromMesh(kernel.BoxMesh(vec(min), vec(max)), 1e-9), nil
}

// Mesh returns the 12-triangle mesh of the shape's bounding box.
func (k *Kernel) Mesh(s kernel.Shape, _ kernel.MeshOptions) (*kernel.Mesh, error) {
	k.mu.Lock()
	k.meshes++
	k.mu.Unlock()
	if s.Dim() <= kernel.DimCurve {
		return &kernel.Mesh{}, nil
	}
	min, max := s.BoundingBox()
	if min == max {
		return &kernel.Mesh{}, nil
	}
	return kernel.BoxMesh(vec(min), vec(max)), nil
}

// WriteSTL writes the mesh with the shared STL encoder.
func (k *Kernel) WriteSTL(m *kernel.Mesh, path string, binary bool) error {
	return kernel.WriteSTLFile(m, path, binary)
}

// ---------------------------------------------------------------------------
// Geometry approximations
// ---------------------------------------------------------------------------

func vec(a [3]float64) geom.Vec3 { return geom.V(a[0], a[1], a[2]) }

func dimOf(req kernel.Request) int {
	switch p := req.Params.(type) {
	case kernel.PointParams:
		return kernel.DimPoint
	case kernel.CircleParams, kernel.EllipseParams, kernel.FaceParams:
		return kernel.DimProfile
	case kernel.SegmentParams, kernel.WireParams, kernel.LineParams, kernel.ArcParams:
		return kernel.DimCurve
	case kernel.PolygonParams:
		if p.Closed {
			return kernel.DimProfile
		}
		return kernel.DimCurve
	case kernel.TransformParams:
		return req.Operands[0].Dim()
	case kernel.CompoundParams:
		d := kernel.DimSolid
		for i, op := range req.Operands {
			if i == 0 || op.Dim() > d {
				d = op.Dim()
			}
		}
		return d
	}
	return kernel.DimSolid
}

func boundsOf(req kernel.Request) (min, max [3]float64) {
	loc := req.Placement.Location
	switch p := req.Params.(type) {
	case kernel.BoxParams:
		return loc.Array(), loc.Add(geom.V(p.DX, p.DY, p.DZ)).Array()
	case kernel.CylinderParams:
		return around(loc, p.Radius, 0, p.Height)
	case kernel.ConeParams:
		return around(loc, math.Max(p.Radius1, p.Radius2), 0, p.Height)
	case kernel.SphereParams:
		return around(loc, p.Radius, -p.Radius, p.Radius)
	case kernel.TorusParams:
		return around(loc, p.Radius1+p.Radius2, -p.Radius2, p.Radius2)
	case kernel.WedgeParams:
		return loc.Array(), loc.Add(geom.V(math.Max(p.DX, p.LTX), p.DY, p.DZ)).Array()
	case kernel.CircleParams:
		return around(loc, p.Radius, 0, 0)
	case kernel.EllipseParams:
		return around(loc, p.MajorRadius, 0, 0)
	case kernel.PointParams:
		return loc.Array(), loc.Array()
	case kernel.LineParams:
		return pointBounds(loc, []geom.Vec3{{}, req.Placement.Direction.Scale(p.Length)})
	case kernel.ArcParams:
		if len(p.Points) > 0 {
			return pointBounds(loc, p.Points)
		}
		return around(loc, p.Radius, 0, 0)
	case kernel.PolygonParams:
		return pointBounds(loc, p.Points)
	case kernel.SegmentParams:
		return pointBounds(loc, p.Points)
	case kernel.TransformParams:
		min, max = operandBounds(req.Operands)
		d := p.Translate.Array()
		for i := 0; i < 3; i++ {
			min[i] += d[i]
			max[i] += d[i]
		}
		return min, max
	case kernel.BooleanParams:
		if p.Op == kernel.BoolFuse {
			return operandBounds(req.Operands)
		}
		return req.Operands[0].BoundingBox()
	case kernel.PrismParams:
		min, max = operandBounds(req.Operands)
		max[2] += p.Height
		return min, max
	case kernel.OffsetParams:
		min, max = operandBounds(req.Operands)
		for i := 0; i < 3; i++ {
			min[i] -= p.Offset
			max[i] += p.Offset
		}
		return min, max
	}
	return operandBounds(req.Operands)
}

func around(c geom.Vec3, r, z0, z1 float64) (min, max [3]float64) {
	return [3]float64{c.X - r, c.Y - r, c.Z + z0}, [3]float64{c.X + r, c.Y + r, c.Z + z1}
}

func pointBounds(loc geom.Vec3, pts []geom.Vec3) (min, max [3]float64) {
	for i, p := range pts {
		a := loc.Add(p).Array()
		if i == 0 {
			min, max = a, a
			continue
		}
		for j := 0; j < 3; j++ {
			min[j] = math.Min(min[j], a[j])
			max[j] = math.Max(max[j], a[j])
		}
	}
	return min, max
}

func operandBounds(ops []kernel.Shape) (min, max [3]float64) {
	for i, op := range ops {
		omin, omax := op.BoundingBox()
		if i == 0 {
			min, max = omin, omax
			continue
		}
		for j := 0; j < 3; j++ {
			min[j] = math.Min(min[j], omin[j])
			max[j] = math.Max(max[j], omax[j])
		}
	}
	return min, max
}
