// Package proxy connects declarative shape nodes to kernel shapes. Each
// node realized through a Context gets one Proxy, which owns the node's
// kernel handle and rebuilds it whenever a construction input changes.
//
// Rebuilds are always full: the strategy for the node's kind turns the
// current parameters into a kernel request. Operations defer without error
// until every operand has a shape. A failed build attaches a
// *kernel.GeometryBuildError to the node and keeps the last good shape; it
// is retried only when an input changes again. A successful rebuild
// replaces the handle, which invalidates the topology cache and rebuilds
// every dependent proxy.
//
// Proxies are not safe for concurrent use. All calls are expected on the
// event loop.
package proxy

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chazu/declcad/pkg/kernel"
	"github.com/chazu/declcad/pkg/refresh"
	"github.com/chazu/declcad/pkg/shape"
	"github.com/samber/lo"
)

// State is the build state of a proxy.
type State int

const (
	Pending  State = iota // never built
	Deferred              // waiting for operand shapes
	Built                 // current shape matches the node
	Failed                // last build failed; Shape is the last good one
	Released              // node destroyed, handle freed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Deferred:
		return "deferred"
	case Built:
		return "built"
	case Failed:
		return "failed"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ---------------------------------------------------------------------------
// Context
// ---------------------------------------------------------------------------

// Context holds the kernel and every live proxy. It replaces any global
// registry: pass it to whatever needs to realize nodes.
type Context struct {
	kernel   kernel.Kernel
	registry Registry
	refresh  refresh.Requester
	logger   *slog.Logger

	proxies  map[*shape.Node]*Proxy
	order    []*Proxy // creation order
	visiting map[*Proxy]bool
	batch    int
	pending  []*Proxy
	flushing bool
}

// Option configures a Context.
type Option func(*Context)

// WithRegistry replaces the default construction strategies.
func WithRegistry(r Registry) Option {
	return func(c *Context) { c.registry = r }
}

// WithRequester routes redraw and fit-all requests.
func WithRequester(r refresh.Requester) Option {
	return func(c *Context) { c.refresh = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewContext returns a context building with k.
func NewContext(k kernel.Kernel, opts ...Option) *Context {
	c := &Context{
		kernel:   k,
		registry: DefaultRegistry(),
		logger:   slog.Default(),
		proxies:  make(map[*shape.Node]*Proxy),
		visiting: make(map[*Proxy]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Kernel returns the context's kernel.
func (c *Context) Kernel() kernel.Kernel { return c.kernel }

// Lookup returns the proxy of n, or nil if n was never realized.
func (c *Context) Lookup(n *shape.Node) *Proxy { return c.proxies[n] }

// Proxies returns the live proxies in creation order.
func (c *Context) Proxies() []*Proxy { return append([]*Proxy(nil), c.order...) }

// Realize returns the proxy of n, creating it and building it (and its
// dependencies, depth first) if needed. Inside Batch the build is
// postponed to the end of the batch.
func (c *Context) Realize(n *shape.Node) *Proxy {
	p := c.proxyFor(n)
	if p.state == Released {
		return p
	}
	if p.state == Pending {
		c.invalidate(p)
	}
	return p
}

// RealizeAll realizes every node of the given trees, children first.
func (c *Context) RealizeAll(roots []*shape.Node) {
	c.Batch(func() {
		for _, r := range roots {
			var post func(n *shape.Node)
			post = func(n *shape.Node) {
				for _, ch := range n.Children() {
					post(ch)
				}
				c.Realize(n)
			}
			post(r)
		}
	})
}

// Batch runs fn with rebuilds postponed, then rebuilds everything that
// changed once, dependencies first.
func (c *Context) Batch(fn func()) {
	c.batch++
	defer func() {
		c.batch--
		if c.batch == 0 {
			c.Flush()
		}
	}()
	fn()
}

// Flush rebuilds every queued proxy, dependencies first.
func (c *Context) Flush() {
	if c.flushing {
		return
	}
	c.flushing = true
	defer func() { c.flushing = false }()
	for len(c.pending) > 0 {
		p := c.pending[0]
		c.pending = c.pending[1:]
		if p.dirty && p.state != Released {
			p.ensure()
		}
	}
}

// Errors returns the current build errors in proxy creation order.
func (c *Context) Errors() []*kernel.GeometryBuildError {
	var out []*kernel.GeometryBuildError
	for _, p := range c.order {
		if p.err != nil {
			out = append(out, p.err)
		}
	}
	return out
}

// ReleaseAll frees every proxy.
func (c *Context) ReleaseAll() {
	for _, p := range append([]*Proxy(nil), c.order...) {
		p.Release()
	}
}

func (c *Context) proxyFor(n *shape.Node) *Proxy {
	if p, ok := c.proxies[n]; ok {
		return p
	}
	p := &Proxy{ctx: c, node: n, linksStale: true}
	p.cancel = n.Observe(p.observe)
	c.proxies[n] = p
	c.order = append(c.order, p)
	return p
}

// invalidate marks p for rebuild and queues it. Outside a batch the queue
// is flushed immediately, unless a build is already running, in which case
// the running flush picks p up. A proxy on the current build path is only
// marked; its own ensure builds it after its dependencies.
func (c *Context) invalidate(p *Proxy) {
	p.dirty = true
	if c.visiting[p] {
		return
	}
	c.pending = append(c.pending, p)
	if c.batch == 0 && len(c.visiting) == 0 && !c.flushing {
		c.Flush()
	}
}

func (c *Context) request(t refresh.Target) {
	if c.refresh != nil {
		c.refresh.Request(t)
	}
}

func (c *Context) forget(p *Proxy) {
	delete(c.proxies, p.node)
	c.order = lo.Without(c.order, p)
}

// ---------------------------------------------------------------------------
// Proxy
// ---------------------------------------------------------------------------

// Proxy owns the kernel shape of one node.
type Proxy struct {
	ctx    *Context
	node   *shape.Node
	cancel func()

	shape      kernel.Shape
	generation uint64 // incremented whenever shape is replaced
	state      State
	err        *kernel.GeometryBuildError
	dirty      bool
	builds     int

	deps       []*Proxy
	dependents []*Proxy
	linksStale bool

	topo TopologyCache
}

func (p *Proxy) Node() *shape.Node { return p.node }

// Shape returns the last successfully built kernel shape, or nil.
func (p *Proxy) Shape() kernel.Shape { return p.shape }

// Generation identifies the current handle. It changes on every
// successful rebuild.
func (p *Proxy) Generation() uint64 { return p.generation }

func (p *Proxy) State() State { return p.state }

// Err returns the last build error, or nil after a successful build.
func (p *Proxy) Err() *kernel.GeometryBuildError { return p.err }

// Builds counts the kernel Build calls made by this proxy.
func (p *Proxy) Builds() int { return p.builds }

// Dependencies returns the proxies this one builds from.
func (p *Proxy) Dependencies() []*Proxy { return append([]*Proxy(nil), p.deps...) }

// Rebuild forces a full rebuild from the node's current state.
func (p *Proxy) Rebuild() {
	if p.state == Released {
		return
	}
	p.linksStale = true
	p.ctx.invalidate(p)
}

// UpdateDisplay reacts to a display-only change by requesting a redraw.
func (p *Proxy) UpdateDisplay(c shape.Change) {
	p.ctx.logger.Debug("display update", "node", p.node.Label(), "field", c.Field.String())
	p.ctx.request(refresh.Redraw)
}

// Release frees the kernel handle and stops observing the node. Dependents
// lose this operand and defer.
func (p *Proxy) Release() {
	if p.state == Released {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	if r, ok := p.ctx.kernel.(kernel.Releaser); ok && p.shape != nil {
		r.Release(p.shape)
	}
	p.unlink()
	p.shape = nil
	p.generation++
	p.state = Released
	p.ctx.forget(p)
	for _, d := range append([]*Proxy(nil), p.dependents...) {
		d.linksStale = true
		p.ctx.invalidate(d)
	}
	p.dependents = nil
	p.ctx.request(refresh.Redraw)
}

func (p *Proxy) observe(c shape.Change) {
	switch c.Field {
	case shape.FieldDestroyed:
		p.Release()
		return
	case shape.FieldParam, shape.FieldTolerance:
		p.ctx.invalidate(p)
	case shape.FieldOperands:
		p.linksStale = true
		p.ctx.invalidate(p)
	case shape.FieldChildren:
		if p.node.Kind() == shape.KindPart || (p.node.Kind().UsesOperands() && !p.node.ExplicitOperands()) {
			p.linksStale = true
			p.ctx.invalidate(p)
		}
	case shape.FieldName:
		p.ctx.request(refresh.Redraw)
	}
	if c.Field.IsDisplay() {
		if c.Field == shape.FieldAxis {
			p.ctx.invalidate(p)
		}
		p.UpdateDisplay(c)
	}
}

// dependencyNodes returns the nodes p builds from.
func (p *Proxy) dependencyNodes() []*shape.Node {
	if p.node.Kind() == shape.KindPart {
		return p.node.Children()
	}
	return p.node.Operands()
}

// link resolves dependency proxies and registers p as their dependent.
func (p *Proxy) link() {
	p.unlink()
	for _, n := range p.dependencyNodes() {
		if n.Destroyed() {
			continue
		}
		d := p.ctx.proxyFor(n)
		p.deps = append(p.deps, d)
		d.dependents = append(d.dependents, p)
	}
	p.linksStale = false
}

func (p *Proxy) unlink() {
	for _, d := range p.deps {
		d.dependents = lo.Without(d.dependents, p)
	}
	p.deps = nil
}

// ensure builds p's dependencies and then p, if anything is out of date.
// It returns false if p is already on the build path, which means the
// operands form a cycle.
func (p *Proxy) ensure() bool {
	if p.state == Released {
		return true
	}
	if p.ctx.visiting[p] {
		return false
	}
	p.ctx.visiting[p] = true
	defer delete(p.ctx.visiting, p)

	if p.linksStale {
		p.link()
		p.dirty = true
	}
	for _, d := range p.deps {
		if !d.ensure() {
			p.fail(&kernel.GeometryBuildError{
				Kind:    kernel.MissingOperand,
				Shape:   p.node.Kind().String(),
				Message: fmt.Sprintf("operand cycle through %s", d.node.Label()),
			})
			p.dirty = false
			return true
		}
	}
	if p.dirty || p.state == Pending {
		p.build()
	}
	return true
}

func (p *Proxy) build() {
	p.dirty = false
	kind := p.node.Kind()

	var operands []kernel.Shape
	for _, d := range p.deps {
		if d.shape == nil {
			if kind == shape.KindPart {
				continue
			}
			p.deferBuild(fmt.Sprintf("operand %s has no shape", d.node.Label()))
			return
		}
		operands = append(operands, d.shape)
	}
	if len(operands) < kind.MinOperands() {
		p.deferBuild(fmt.Sprintf("%d of %d operands resolved", len(operands), kind.MinOperands()))
		return
	}

	strat, err := p.ctx.registry.Lookup(kind)
	if err != nil {
		p.fail(kernel.Unsupportedf(kind.String(), "%v", err))
		return
	}
	req := kernel.Request{
		Params:    strat.Params(p.node),
		Operands:  operands,
		Placement: p.node.Axis(),
		Tolerance: p.node.Tolerance(),
	}
	p.builds++
	s, err := safeBuild(p.ctx.kernel, req)
	if err != nil {
		p.fail(err)
		return
	}
	p.replace(s)
}

func safeBuild(k kernel.Kernel, req kernel.Request) (s kernel.Shape, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, kernel.Internalf(req.Params.Name(), fmt.Errorf("%v", r), "kernel panic")
		}
	}()
	return k.Build(req)
}

func (p *Proxy) deferBuild(reason string) {
	if p.state != Deferred {
		p.ctx.logger.Debug("build deferred", "node", p.node.Label(), "reason", reason)
	}
	p.state = Deferred
}

func (p *Proxy) fail(err error) {
	var gbe *kernel.GeometryBuildError
	if errors.As(err, &gbe) {
		cp := *gbe
		gbe = &cp
	} else {
		gbe = &kernel.GeometryBuildError{
			Kind:    kernel.Internal,
			Shape:   p.node.Kind().String(),
			Message: "build failed",
			Err:     err,
		}
	}
	gbe.Node = p.node.Label()
	p.err = gbe
	p.state = Failed
	p.node.SetBuildError(gbe)
	p.ctx.logger.Warn("geometry build failed", "node", p.node.Label(), "error", gbe.Error())
	p.ctx.request(refresh.Redraw)
}

// replace installs a new handle, frees the old one and rebuilds dependents.
func (p *Proxy) replace(s kernel.Shape) {
	old := p.shape
	p.shape = s
	p.generation++
	p.state = Built
	p.err = nil
	p.node.SetBuildError(nil)
	if r, ok := p.ctx.kernel.(kernel.Releaser); ok && old != nil {
		r.Release(old)
	}
	p.ctx.logger.Debug("built", "node", p.node.Label(), "generation", p.generation)
	p.ctx.request(refresh.Redraw)
	p.ctx.request(refresh.FitAll)
	for _, d := range append([]*Proxy(nil), p.dependents...) {
		p.ctx.invalidate(d)
	}
}
