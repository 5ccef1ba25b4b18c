// Package tessellate turns realized shape trees into triangle meshes for
// the viewer. One mesh is produced per displayed part.
package tessellate

import (
	"errors"
	"fmt"

	"github.com/chazu/declcad/pkg/kernel"
	"github.com/chazu/declcad/pkg/proxy"
	"github.com/chazu/declcad/pkg/shape"
)

// Palette is the default colour cycle for parts without an explicit colour.
var Palette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// Part is the JSON-serializable mesh and display attributes sent to the
// viewer.
type Part struct {
	Vertices     []float32 `json:"vertices"`
	Normals      []float32 `json:"normals"`
	Indices      []uint32  `json:"indices"`
	Name         string    `json:"partName"`
	Color        string    `json:"color"`
	Material     string    `json:"material,omitempty"`
	Transparency float64   `json:"transparency"`
	Failed       bool      `json:"failed,omitempty"`
}

// Tessellate meshes the realized shape of every root. Roots whose proxy has
// no shape yet are skipped. A root whose last build failed still shows its
// last good shape, flagged as failed. Mesh failures are collected and the
// remaining parts are still returned. The tessellator never mutates the
// tree.
func Tessellate(ctx *proxy.Context, roots []*shape.Node, opts kernel.MeshOptions) ([]Part, error) {
	var (
		parts []Part
		errs  []error
	)
	for i, root := range roots {
		p := ctx.Lookup(root)
		if p == nil || p.Shape() == nil {
			continue
		}
		m, err := ctx.Kernel().Mesh(p.Shape(), opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("tessellate: mesh %s: %w", root.Label(), err))
			continue
		}
		parts = append(parts, newPart(root, m, i, p.State() == proxy.Failed))
	}
	return parts, errors.Join(errs...)
}

func newPart(n *shape.Node, m *kernel.Mesh, i int, failed bool) Part {
	color := n.Color()
	if color == "" {
		color = Palette[i%len(Palette)]
	}
	return Part{
		Vertices:     m.Vertices,
		Normals:      m.Normals,
		Indices:      m.Indices,
		Name:         n.Label(),
		Color:        color,
		Material:     n.Material().String(),
		Transparency: n.Transparency(),
		Failed:       failed,
	}
}
