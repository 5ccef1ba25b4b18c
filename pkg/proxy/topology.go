package proxy

import "github.com/chazu/declcad/pkg/kernel"

// TopologyCache memoizes the topology of one kernel handle. It is keyed by
// handle generation, so every rebuild invalidates it, even one that yields
// identical geometry.
type TopologyCache struct {
	generation uint64
	valid      bool
	topo       *kernel.Topology
	err        error
	traversals int
}

// Traversals counts kernel topology calls, for tests and diagnostics.
func (t *TopologyCache) Traversals() int { return t.traversals }

func (t *TopologyCache) get(k kernel.Kernel, s kernel.Shape, gen uint64) (*kernel.Topology, error) {
	if t.valid && t.generation == gen {
		return t.topo, t.err
	}
	t.traversals++
	t.topo, t.err = k.Topology(s)
	if t.topo == nil {
		t.topo = &kernel.Topology{}
	}
	t.generation = gen
	t.valid = true
	return t.topo, t.err
}

// Topology returns the edges, faces and shells of the current shape. It
// traverses the kernel shape on the first read after each rebuild. A proxy
// without a shape has empty topology.
func (p *Proxy) Topology() (*kernel.Topology, error) {
	if p.shape == nil {
		return &kernel.Topology{}, nil
	}
	return p.topo.get(p.ctx.kernel, p.shape, p.generation)
}

// Edges returns the current edges, or none if topology is unavailable.
func (p *Proxy) Edges() []kernel.Edge {
	t, err := p.Topology()
	if err != nil {
		return nil
	}
	return t.Edges
}

// Faces returns the current faces, or none if topology is unavailable.
func (p *Proxy) Faces() []kernel.Face {
	t, err := p.Topology()
	if err != nil {
		return nil
	}
	return t.Faces
}

// Shells returns the current shells, or none if topology is unavailable.
func (p *Proxy) Shells() []kernel.Shell {
	t, err := p.Topology()
	if err != nil {
		return nil
	}
	return t.Shells
}

// TopologyCache exposes the proxy's cache.
func (p *Proxy) TopologyCache() *TopologyCache { return &p.topo }
