package document

import (
	"github.com/chazu/declcad/pkg/geom"
	"github.com/chazu/declcad/pkg/kernel"
	"github.com/chazu/declcad/pkg/shape"
	"github.com/samber/lo"
)

// ExportOptions controls an STL export.
type ExportOptions struct {
	Path              string  `json:"path"`
	LinearDeflection  float64 `json:"linearDeflection"`
	AngularDeflection float64 `json:"angularDeflection"`
	Relative          bool    `json:"relative"`
	Binary            bool    `json:"binary"`
}

// DefaultExportOptions returns binary export with the default deflections.
func DefaultExportOptions(path string) ExportOptions {
	return ExportOptions{
		Path:              path,
		LinearDeflection:  kernel.DefaultLinearDeflection,
		AngularDeflection: kernel.DefaultAngularDeflection,
		Relative:          true,
		Binary:            true,
	}
}

func (o ExportOptions) mesh() kernel.MeshOptions {
	return kernel.MeshOptions{
		LinearDeflection:  o.LinearDeflection,
		AngularDeflection: o.AngularDeflection,
		Relative:          o.Relative,
	}
}

// Export writes the compound of every built part to an STL file. Failures
// are returned as *IOError.
func (s *Session) Export(opts ExportOptions) error {
	fail := func(err error) error {
		return &IOError{Op: "export", Path: opts.Path, Err: err}
	}

	shapes := lo.FilterMap(s.roots, func(n *shape.Node, _ int) (kernel.Shape, bool) {
		p := s.proxies.Lookup(n)
		if p == nil || p.Shape() == nil {
			return nil, false
		}
		return p.Shape(), true
	})
	if len(shapes) == 0 {
		return fail(ErrNothingToExport)
	}

	path, err := ExpandPath(opts.Path)
	if err != nil {
		return fail(err)
	}

	k := s.proxies.Kernel()
	compound, err := k.Build(kernel.Request{
		Params:    kernel.CompoundParams{},
		Operands:  shapes,
		Placement: geom.DefaultAxis(),
		Tolerance: 1e-6,
	})
	if err != nil {
		return fail(err)
	}
	if r, ok := k.(kernel.Releaser); ok {
		defer r.Release(compound)
	}

	m, err := k.Mesh(compound, opts.mesh())
	if err != nil {
		return fail(err)
	}
	if err := k.WriteSTL(m, path, opts.Binary); err != nil {
		return &IOError{Op: "export", Path: path, Err: err}
	}
	s.logger.Info("exported", "path", path, "triangles", m.TriangleCount(), "parts", len(shapes))
	return nil
}
