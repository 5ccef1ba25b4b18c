package kernel

import "github.com/chazu/declcad/pkg/geom"

// Mesh is a triangle mesh suitable for rendering and STL export.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"` // which part this came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Vertex returns vertex i as a vector.
func (m *Mesh) Vertex(i uint32) geom.Vec3 {
	return geom.V(float64(m.Vertices[i*3]), float64(m.Vertices[i*3+1]), float64(m.Vertices[i*3+2]))
}

// Triangle returns the three corners of triangle t.
func (m *Mesh) Triangle(t int) [3]geom.Vec3 {
	return [3]geom.Vec3{
		m.Vertex(m.Indices[t*3]),
		m.Vertex(m.Indices[t*3+1]),
		m.Vertex(m.Indices[t*3+2]),
	}
}

// AddTriangle appends an unshared triangle with a flat normal.
func (m *Mesh) AddTriangle(a, b, c geom.Vec3) {
	n := b.Sub(a).Cross(c.Sub(a)).Normalize()
	base := uint32(m.VertexCount())
	for _, v := range [3]geom.Vec3{a, b, c} {
		m.Vertices = append(m.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
		m.Normals = append(m.Normals, float32(n.X), float32(n.Y), float32(n.Z))
	}
	m.Indices = append(m.Indices, base, base+1, base+2)
}

// Append adds every triangle of o to m, preserving vertex sharing.
func (m *Mesh) Append(o *Mesh) {
	if o == nil {
		return
	}
	base := uint32(m.VertexCount())
	m.Vertices = append(m.Vertices, o.Vertices...)
	m.Normals = append(m.Normals, o.Normals...)
	for _, idx := range o.Indices {
		m.Indices = append(m.Indices, base+idx)
	}
}

// boxQuads lists the corners of each face of a unit box, counter-clockwise
// seen from outside. Corner i has x = i&1, y = i>>1&1, z = i>>2&1.
var boxQuads = [6][4]int{
	{0, 2, 3, 1}, // -Z
	{4, 5, 7, 6}, // +Z
	{0, 1, 5, 4}, // -Y
	{2, 6, 7, 3}, // +Y
	{0, 4, 6, 2}, // -X
	{1, 3, 7, 5}, // +X
}

// BoxMesh returns the 12-triangle mesh of the axis-aligned box spanning
// min to max.
func BoxMesh(min, max geom.Vec3) *Mesh {
	var corners [8]geom.Vec3
	for i := range corners {
		c := min
		if i&1 != 0 {
			c.X = max.X
		}
		if i&2 != 0 {
			c.Y = max.Y
		}
		if i&4 != 0 {
			c.Z = max.Z
		}
		corners[i] = c
	}
	m := &Mesh{}
	for _, q := range boxQuads {
		m.AddTriangle(corners[q[0]], corners[q[1]], corners[q[2]])
		m.AddTriangle(corners[q[0]], corners[q[2]], corners[q[3]])
	}
	return m
}
