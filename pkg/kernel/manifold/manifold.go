//go:build manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold provides
// guaranteed-manifold mesh boolean operations, so topology recovered from
// its meshes is exact for planar faces.
//
// Only primitives, booleans, transforms and compounds are supported; every
// other construction fails with an Unsupported build error.
//
// This package requires the Manifold C library (manifoldc) to be installed.
// Build with: go build -tags=manifold
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/chazu/declcad/pkg/geom"
	"github.com/chazu/declcad/pkg/kernel"
)

// Compile-time interface checks.
var (
	_ kernel.Kernel   = (*ManifoldKernel)(nil)
	_ kernel.Releaser = (*ManifoldKernel)(nil)
	_ kernel.Shape    = (*manifoldSolid)(nil)
	_ kernel.Shape    = (*compound)(nil)
)

// circularSegments is the facet count for round primitives.
const circularSegments = 64

// manifoldSolid wraps a C ManifoldManifold pointer.
type manifoldSolid struct {
	ptr *C.ManifoldManifold
}

func (s *manifoldSolid) Dim() int { return kernel.DimSolid }

// BoundingBox returns the axis-aligned bounding box of the solid.
func (s *manifoldSolid) BoundingBox() (min, max [3]float64) {
	alloc := C.manifold_alloc_box()
	bbox := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(bbox)

	min[0] = float64(C.manifold_box_min_x(bbox))
	min[1] = float64(C.manifold_box_min_y(bbox))
	min[2] = float64(C.manifold_box_min_z(bbox))
	max[0] = float64(C.manifold_box_max_x(bbox))
	max[1] = float64(C.manifold_box_max_y(bbox))
	max[2] = float64(C.manifold_box_max_z(bbox))
	return min, max
}

// newSolid wraps a C ManifoldManifold pointer with a Go-side finalizer.
// Release frees the pointer early.
func newSolid(ptr *C.ManifoldManifold) *manifoldSolid {
	s := &manifoldSolid{ptr: ptr}
	runtime.SetFinalizer(s, (*manifoldSolid).free)
	return s
}

func (s *manifoldSolid) free() {
	if s.ptr != nil {
		C.manifold_delete_manifold(s.ptr)
		s.ptr = nil
	}
}

// compound groups solids without merging them.
type compound struct {
	parts []kernel.Shape
}

func (c *compound) Dim() int { return kernel.DimSolid }

func (c *compound) BoundingBox() (min, max [3]float64) {
	for i, p := range c.parts {
		pmin, pmax := p.BoundingBox()
		if i == 0 {
			min, max = pmin, pmax
			continue
		}
		for j := 0; j < 3; j++ {
			min[j] = math.Min(min[j], pmin[j])
			max[j] = math.Max(max[j], pmax[j])
		}
	}
	return min, max
}

// ManifoldKernel implements kernel.Kernel using the Manifold C library.
type ManifoldKernel struct{}

// Available reports whether the Manifold kernel was compiled in.
func Available() bool { return true }

// New creates a new ManifoldKernel.
func New() (kernel.Kernel, error) {
	return &ManifoldKernel{}, nil
}

// Build constructs a shape.
func (k *ManifoldKernel) Build(req kernel.Request) (kernel.Shape, error) {
	if err := kernel.Check(req); err != nil {
		return nil, err
	}
	switch p := req.Params.(type) {
	case kernel.BoxParams:
		alloc := C.manifold_alloc_manifold()
		ptr := C.manifold_cube(alloc, C.double(p.DX), C.double(p.DY), C.double(p.DZ), C.int(0))
		return place(newSolid(ptr), req.Placement), nil
	case kernel.CylinderParams:
		return place(cylinder(p.Height, p.Radius, p.Radius), req.Placement), nil
	case kernel.ConeParams:
		return place(cylinder(p.Height, p.Radius1, p.Radius2), req.Placement), nil
	case kernel.SphereParams:
		alloc := C.manifold_alloc_manifold()
		ptr := C.manifold_sphere(alloc, C.double(p.Radius), C.int(circularSegments))
		return place(newSolid(ptr), req.Placement), nil
	case kernel.BooleanParams:
		return boolean(p, req.Operands)
	case kernel.TransformParams:
		return transform(p, req.Operands[0])
	case kernel.CompoundParams:
		return &compound{parts: append([]kernel.Shape(nil), req.Operands...)}, nil
	}
	return nil, kernel.Unsupportedf(req.Params.Name(), "not implemented by the manifold kernel")
}

// Release frees the native handle immediately.
func (k *ManifoldKernel) Release(s kernel.Shape) {
	if ms, ok := s.(*manifoldSolid); ok {
		runtime.SetFinalizer(ms, nil)
		ms.free()
	}
}

func cylinder(height, r0, r1 float64) *manifoldSolid {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cylinder(alloc,
		C.double(height),
		C.double(r0),
		C.double(r1),
		C.int(circularSegments),
		C.int(0), // base on the XY plane
	)
	return newSolid(ptr)
}

// place rotates +Z onto the axis direction, then moves the origin to the
// axis location.
func place(s *manifoldSolid, ax geom.Axis) *manifoldSolid {
	d := ax.Direction.Normalize()
	if d.Length() > 0 && !d.Near(geom.ZDir, 1e-12) {
		theta := math.Acos(math.Max(-1, math.Min(1, d.Z))) * 180 / math.Pi
		phi := math.Atan2(d.Y, d.X) * 180 / math.Pi
		s = rotate(s, 0, theta, phi)
	}
	if l := ax.Location; l != geom.Origin {
		s = translate(s, l)
	}
	return s
}

func rotate(s *manifoldSolid, x, y, z float64) *manifoldSolid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_rotate(alloc, s.ptr, C.double(x), C.double(y), C.double(z)))
}

func translate(s *manifoldSolid, d geom.Vec3) *manifoldSolid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_translate(alloc, s.ptr, C.double(d.X), C.double(d.Y), C.double(d.Z)))
}

func solidOf(name string, s kernel.Shape) (*manifoldSolid, error) {
	switch v := s.(type) {
	case *manifoldSolid:
		return v, nil
	case *compound:
		if len(v.parts) == 0 {
			return nil, kernel.Degeneratef(name, "", "empty compound operand")
		}
		acc, err := solidOf(name, v.parts[0])
		if err != nil {
			return nil, err
		}
		for _, p := range v.parts[1:] {
			ps, err := solidOf(name, p)
			if err != nil {
				return nil, err
			}
			acc = newSolid(C.manifold_union(C.manifold_alloc_manifold(), acc.ptr, ps.ptr))
		}
		return acc, nil
	}
	return nil, kernel.Unsupportedf(name, "operand %T is not a manifold solid", s)
}

func boolean(p kernel.BooleanParams, ops []kernel.Shape) (kernel.Shape, error) {
	acc, err := solidOf(p.Name(), ops[0])
	if err != nil {
		return nil, err
	}
	for _, op := range ops[1:] {
		b, err := solidOf(p.Name(), op)
		if err != nil {
			return nil, err
		}
		alloc := C.manifold_alloc_manifold()
		switch p.Op {
		case kernel.BoolFuse:
			acc = newSolid(C.manifold_union(alloc, acc.ptr, b.ptr))
		case kernel.BoolCut:
			acc = newSolid(C.manifold_difference(alloc, acc.ptr, b.ptr))
		default:
			acc = newSolid(C.manifold_intersection(alloc, acc.ptr, b.ptr))
		}
	}
	return acc, nil
}

func transform(p kernel.TransformParams, op kernel.Shape) (kernel.Shape, error) {
	if p.Mirror != geom.Origin || (p.Scale != 0 && p.Scale != 1) {
		return nil, kernel.Unsupportedf(p.Name(), "mirror and scale")
	}
	s, err := solidOf(p.Name(), op)
	if err != nil {
		return nil, err
	}
	if r := p.Rotate; r != geom.Origin {
		s = rotate(s, r.X, r.Y, r.Z)
	}
	if p.Translate != geom.Origin {
		s = translate(s, p.Translate)
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Meshing and topology
// ---------------------------------------------------------------------------

// Mesh extracts a triangle mesh. Manifold meshes are exact, so the
// deflection options are ignored.
func (k *ManifoldKernel) Mesh(s kernel.Shape, _ kernel.MeshOptions) (*kernel.Mesh, error) {
	switch v := s.(type) {
	case *manifoldSolid:
		return toMesh(v)
	case *compound:
		out := &kernel.Mesh{}
		for _, p := range v.parts {
			m, err := k.Mesh(p, kernel.MeshOptions{})
			if err != nil {
				return nil, err
			}
			out.Append(m)
		}
		return out, nil
	}
	return nil, fmt.Errorf("manifold: foreign shape %T", s)
}

// Topology recovers faces, edges and shells from the exact mesh.
func (k *ManifoldKernel) Topology(s kernel.Shape) (*kernel.Topology, error) {
	m, err := k.Mesh(s, kernel.MeshOptions{})
	if err != nil {
		return nil, err
	}
	return kernel.TopologyFromMesh(m, 1e-9), nil
}

// WriteSTL writes the mesh to path.
func (k *ManifoldKernel) WriteSTL(m *kernel.Mesh, path string, binary bool) error {
	return kernel.WriteSTLFile(m, path, binary)
}

// toMesh extracts a triangle mesh from the solid using Manifold's MeshGL
// format. Vertex positions and normals are interleaved in MeshGL; this
// separates them into the kernel.Mesh flat-array layout.
func toMesh(ms *manifoldSolid) (*kernel.Mesh, error) {
	meshAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_get_meshgl(meshAlloc, ms.ptr)
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))

	if numVert == 0 || numTri == 0 {
		return &kernel.Mesh{}, nil
	}

	// The first 3 properties are position; normals, when present, follow.
	numProp := int(C.manifold_meshgl_num_prop(meshGL))

	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(
		(*C.float)(unsafe.Pointer(&propData[0])),
		meshGL,
	)

	indices := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(
		(*C.uint32_t)(unsafe.Pointer(&indices[0])),
		meshGL,
	)

	vertices := make([]float32, numVert*3)
	var normals []float32
	hasNormals := numProp >= 6
	if hasNormals {
		normals = make([]float32, numVert*3)
	}

	for i := 0; i < numVert; i++ {
		base := i * numProp
		copy(vertices[i*3:i*3+3], propData[base:base+3])
		if hasNormals {
			copy(normals[i*3:i*3+3], propData[base+3:base+6])
		}
	}

	if !hasNormals {
		normals = vertexNormals(vertices, indices)
	}

	mesh := &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}

	if mesh.VertexCount() != numVert {
		return nil, fmt.Errorf("manifold: vertex count mismatch: got %d, expected %d",
			mesh.VertexCount(), numVert)
	}

	return mesh, nil
}

// vertexNormals averages the face normals of all triangles incident on
// each vertex.
func vertexNormals(vertices []float32, indices []uint32) []float32 {
	m := &kernel.Mesh{Vertices: vertices, Indices: indices}
	sum := make([]geom.Vec3, len(vertices)/3)
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		n := tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0]))
		for j := 0; j < 3; j++ {
			idx := indices[t*3+j]
			sum[idx] = sum[idx].Add(n)
		}
	}
	normals := make([]float32, len(vertices))
	for i, n := range sum {
		n = n.Normalize()
		normals[i*3+0] = float32(n.X)
		normals[i*3+1] = float32(n.Y)
		normals[i*3+2] = float32(n.Z)
	}
	return normals
}
