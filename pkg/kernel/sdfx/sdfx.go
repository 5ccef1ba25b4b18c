// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
//
// Solids are signed distance functions, so booleans are exact and cheap
// while topology is recovered from a marching-cubes mesh. Fillets and
// chamfers re-blend the operand's own construction (rounded primitives,
// smooth-min booleans) and therefore apply to every edge of the operand.
package sdfx

import (
	"fmt"
	"math"

	"github.com/chazu/declcad/pkg/geom"
	"github.com/chazu/declcad/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

const (
	// defaultTopologyCells is the marching cubes resolution used to
	// recover faces and edges.
	defaultTopologyCells = 48
	minMeshCells         = 16
	maxMeshCells         = 300
)

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	topologyCells int
}

// Option configures an SdfxKernel.
type Option func(*SdfxKernel)

// WithTopologyCells sets the marching cubes resolution used by Topology.
func WithTopologyCells(n int) Option {
	return func(k *SdfxKernel) {
		if n > 0 {
			k.topologyCells = n
		}
	}
}

// New returns a new SdfxKernel.
func New(opts ...Option) *SdfxKernel {
	k := &SdfxKernel{topologyCells: defaultTopologyCells}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Build constructs a shape. Invalid requests and sdfx construction errors
// are returned as *kernel.GeometryBuildError; a panic inside sdfx becomes
// an Internal build error.
func (k *SdfxKernel) Build(req kernel.Request) (shape kernel.Shape, err error) {
	if err := kernel.Check(req); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			shape = nil
			err = kernel.Internalf(req.Params.Name(), fmt.Errorf("%v", r), "panic in sdfx")
		}
	}()
	shape, err = k.build(req)
	if err != nil {
		return nil, err
	}
	return shape, nil
}

func (k *SdfxKernel) build(req kernel.Request) (kernel.Shape, error) {
	switch p := req.Params.(type) {
	case kernel.BoxParams:
		return buildBox(p, req.Placement)
	case kernel.CylinderParams:
		return buildCylinder(p, req.Placement)
	case kernel.ConeParams:
		return buildCone(p, req.Placement)
	case kernel.SphereParams:
		return buildSphere(p, req.Placement)
	case kernel.TorusParams:
		return buildTorus(p, req.Placement)
	case kernel.WedgeParams:
		return buildWedge(p, req.Placement)
	case kernel.HalfSpaceParams:
		return buildHalfSpace(req.Operands[0], req.Placement.Location)
	case kernel.PointParams:
		return buildPoint(req.Placement)
	case kernel.LineParams:
		return buildLine(p, req.Placement)
	case kernel.ArcParams:
		return buildArc(p, req.Placement)
	case kernel.EllipseParams:
		return buildEllipse(p, req.Placement)
	case kernel.CircleParams:
		return buildCircle(p, req.Placement)
	case kernel.PolygonParams:
		return buildPolygon(p, req.Placement)
	case kernel.SegmentParams:
		return buildSegment(p, req.Placement)
	case kernel.WireParams:
		return buildWire(req.Operands)
	case kernel.FaceParams:
		return buildFace(req.Operands[0])
	case kernel.BooleanParams:
		return buildBoolean(p, req.Operands)
	case kernel.FilletParams:
		if len(p.Edges) > 0 {
			return nil, kernel.Unsupportedf(p.Name(), "edge selection is not supported")
		}
		form, err := filletForm(p)
		if err != nil {
			return nil, err
		}
		return buildBlend(p.Name(), req.Operands[0], p.Radius, form)
	case kernel.ChamferParams:
		if len(p.Edges) > 0 {
			return nil, kernel.Unsupportedf(p.Name(), "edge selection is not supported")
		}
		if len(p.Faces) > 0 {
			return nil, kernel.Unsupportedf(p.Name(), "face selection is not supported")
		}
		if p.Distance2 != 0 && p.Distance2 != p.Distance {
			return nil, kernel.Unsupportedf(p.Name(), "asymmetric chamfer")
		}
		return buildBlend(p.Name(), req.Operands[0], p.Distance, edgeChamfer)
	case kernel.OffsetParams:
		return buildOffset(p, req.Operands[0])
	case kernel.ThickSolidParams:
		return buildThickSolid(p, req.Operands[0])
	case kernel.PrismParams:
		return buildPrism(p, req.Operands[0])
	case kernel.RevolParams:
		return buildRevol(p.Name(), p.Angle, req.Operands[0])
	case kernel.PipeParams:
		return buildPipe(req.Operands[0], req.Operands[1])
	case kernel.ThruSectionsParams:
		return buildThruSections(p, req.Operands)
	case kernel.TransformParams:
		return buildTransform(p, req.Operands[0])
	case kernel.LinearFormParams:
		return buildLinearForm(p, req.Operands[0], req.Operands[1])
	case kernel.RevolutionFormParams:
		return buildRevolutionForm(p, req.Operands[0], req.Operands[1])
	case kernel.CompoundParams:
		return &compound{parts: append([]kernel.Shape(nil), req.Operands...)}, nil
	}
	return nil, kernel.Unsupportedf(req.Params.Name(), "not implemented by the sdfx kernel")
}

// ---------------------------------------------------------------------------
// Meshing
// ---------------------------------------------------------------------------

// Mesh converts a shape to a triangle mesh using marching cubes. The cell
// count follows from the linear deflection. Curves produce an empty mesh;
// profiles are meshed as a slab two deflections thick.
func (k *SdfxKernel) Mesh(s kernel.Shape, opts kernel.MeshOptions) (*kernel.Mesh, error) {
	min, max := s.BoundingBox()
	defl := opts.Deflection(min, max)
	return k.mesh(s, func(extent float64) int { return cellsFor(extent, defl) }, 2*defl)
}

func (k *SdfxKernel) mesh(s kernel.Shape, cells func(extent float64) int, thickness float64) (m *kernel.Mesh, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, kernel.Internalf("mesh", fmt.Errorf("%v", r), "panic in sdfx")
		}
	}()
	switch v := s.(type) {
	case *solid:
		return triangulate(v.s, cells), nil
	case *profile:
		slab := sdf.Transform3D(sdf.Extrude3D(v.s, thickness), v.frame)
		return triangulate(slab, cells), nil
	case *curve:
		return &kernel.Mesh{}, nil
	case *compound:
		out := &kernel.Mesh{}
		for _, part := range v.parts {
			pm, err := k.mesh(part, cells, thickness)
			if err != nil {
				return nil, err
			}
			out.Append(pm)
		}
		return out, nil
	}
	return nil, fmt.Errorf("sdfx: foreign shape %T", s)
}

func cellsFor(extent, deflection float64) int {
	if deflection <= 0 || extent <= 0 {
		return minMeshCells
	}
	n := int(math.Ceil(extent / deflection))
	if n < minMeshCells {
		return minMeshCells
	}
	if n > maxMeshCells {
		return maxMeshCells
	}
	return n
}

func extentOf(s sdf.SDF3) float64 {
	bb := s.BoundingBox()
	return math.Max(bb.Max.X-bb.Min.X, math.Max(bb.Max.Y-bb.Min.Y, bb.Max.Z-bb.Min.Z))
}

// triangulate renders s with uniform marching cubes into a flat mesh.
func triangulate(s sdf.SDF3, cells func(extent float64) int) *kernel.Mesh {
	renderer := render.NewMarchingCubesUniform(cells(extentOf(s)))
	triangles := render.ToTriangles(s, renderer)

	numVerts := len(triangles) * 3
	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		n := tri.Normal()
		nx := float32(n.X)
		ny := float32(n.Y)
		nz := float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}
}

// ---------------------------------------------------------------------------
// Topology
// ---------------------------------------------------------------------------

// Topology recovers faces, edges and shells. Solids and profiles are
// meshed at the kernel's topology resolution; curves report one free edge
// per segment.
func (k *SdfxKernel) Topology(s kernel.Shape) (*kernel.Topology, error) {
	switch v := s.(type) {
	case *curve:
		topo := &kernel.Topology{}
		for i, seg := range v.segments() {
			topo.Edges = append(topo.Edges, kernel.Edge{
				Index:    i,
				Faces:    [2]int{-1, -1},
				Length:   seg[1].Sub(seg[0]).Length(),
				Segments: [][2]geom.Vec3{seg},
			})
		}
		return topo, nil
	case *compound:
		return k.compoundTopology(v)
	}
	min, max := s.BoundingBox()
	extent := 0.0
	for i := 0; i < 3; i++ {
		extent = math.Max(extent, max[i]-min[i])
	}
	cell := extent / float64(k.topologyCells)
	m, err := k.mesh(s, func(float64) int { return k.topologyCells }, 2*cell)
	if err != nil {
		return nil, err
	}
	return kernel.TopologyFromMesh(m, cell*1e-3), nil
}

func (k *SdfxKernel) compoundTopology(c *compound) (*kernel.Topology, error) {
	out := &kernel.Topology{}
	for _, part := range c.parts {
		t, err := k.Topology(part)
		if err != nil {
			return nil, err
		}
		faceBase := len(out.Faces)
		for _, f := range t.Faces {
			f.Index += faceBase
			out.Faces = append(out.Faces, f)
		}
		for _, e := range t.Edges {
			e.Index = len(out.Edges)
			for i, f := range e.Faces {
				if f >= 0 {
					e.Faces[i] = f + faceBase
				}
			}
			out.Edges = append(out.Edges, e)
		}
		for _, sh := range t.Shells {
			sh.Index = len(out.Shells)
			faces := make([]int, len(sh.Faces))
			for i, f := range sh.Faces {
				faces[i] = f + faceBase
			}
			sh.Faces = faces
			out.Shells = append(out.Shells, sh)
		}
	}
	return out, nil
}

// WriteSTL writes the mesh to path.
func (k *SdfxKernel) WriteSTL(m *kernel.Mesh, path string, binary bool) error {
	return kernel.WriteSTLFile(m, path, binary)
}
