// Package kernel defines the abstract geometry kernel interface.
// Implementations (sdfx, manifold) provide solid construction, booleans,
// local operations and meshing behind this interface. The proxy layer only
// ever talks to a Kernel, so backends can be swapped without touching the
// shape tree.
package kernel

import "github.com/chazu/declcad/pkg/geom"

// Shape dimensions.
const (
	DimPoint   = 0 // isolated vertices
	DimCurve   = 1 // wires, segments, open polylines
	DimProfile = 2 // planar faces and closed profiles
	DimSolid   = 3
)

// Shape is an opaque handle to a kernel object. A handle is never mutated
// once returned from Build; a rebuild produces a new handle.
type Shape interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
	// Dim reports whether the shape is a point, curve, profile or solid.
	Dim() int
}

// Request is everything a kernel needs to construct one shape.
type Request struct {
	Params    Params
	Operands  []Shape
	Placement geom.Axis
	Tolerance float64
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Build constructs a new shape. Failures are *GeometryBuildError.
	Build(req Request) (Shape, error)

	// Topology walks a shape's edges, faces and shells.
	Topology(s Shape) (*Topology, error)

	// Mesh tessellates a shape for display or export.
	Mesh(s Shape, opts MeshOptions) (*Mesh, error)

	// WriteSTL writes a mesh to path as binary or ASCII STL.
	WriteSTL(m *Mesh, path string, binary bool) error
}

// Releaser is implemented by kernels whose handles hold resources that
// must be freed explicitly.
type Releaser interface {
	Release(s Shape)
}

// MeshOptions controls tessellation accuracy.
type MeshOptions struct {
	LinearDeflection  float64 `json:"linearDeflection" toml:"linear_deflection"`
	AngularDeflection float64 `json:"angularDeflection" toml:"angular_deflection"`
	Relative          bool    `json:"relative" toml:"relative"`
}

// Default export and display deflections.
const (
	DefaultLinearDeflection  = 0.05
	DefaultAngularDeflection = 0.5
)

// DefaultMeshOptions returns the default deflections, relative to shape size.
func DefaultMeshOptions() MeshOptions {
	return MeshOptions{
		LinearDeflection:  DefaultLinearDeflection,
		AngularDeflection: DefaultAngularDeflection,
		Relative:          true,
	}
}

// Deflection resolves the linear deflection in model units for a shape
// with the given bounding box.
func (o MeshOptions) Deflection(min, max [3]float64) float64 {
	d := o.LinearDeflection
	if d <= 0 {
		d = DefaultLinearDeflection
	}
	if !o.Relative {
		return d
	}
	size := 0.0
	for i := 0; i < 3; i++ {
		if e := max[i] - min[i]; e > size {
			size = e
		}
	}
	if size <= 0 {
		return d
	}
	return d * size
}
