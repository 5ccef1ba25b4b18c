package proxy

import (
	"errors"
	"testing"

	"github.com/chazu/declcad/pkg/geom"
	"github.com/chazu/declcad/pkg/kernel"
	"github.com/chazu/declcad/pkg/kernel/kerneltest"
	"github.com/chazu/declcad/pkg/refresh"
	"github.com/chazu/declcad/pkg/shape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRequester map[refresh.Target]int

func (c countingRequester) Request(t refresh.Target) { c[t]++ }

func newTestContext() (*Context, *kerneltest.Kernel, countingRequester) {
	k := kerneltest.New()
	req := countingRequester{}
	return NewContext(k, WithRequester(req)), k, req
}

func box(dx, dy, dz float64) *shape.Node {
	n := shape.New(shape.KindBox)
	_ = n.SetParam("dx", dx)
	_ = n.SetParam("dy", dy)
	_ = n.SetParam("dz", dz)
	return n
}

func TestBoxBuildsAndCachesTopology(t *testing.T) {
	ctx, k, _ := newTestContext()
	p := ctx.Realize(box(2, 2, 2))

	require.Equal(t, Built, p.State())
	require.NotNil(t, p.Shape())
	assert.Len(t, p.Edges(), 12)
	assert.Len(t, p.Faces(), 6)
	assert.Len(t, p.Shells(), 1)
	assert.Equal(t, 1, p.TopologyCache().Traversals())
	assert.Equal(t, 1, k.BuildsOf("box"))
}

func TestSetterRebuildsLikeFreshConstruction(t *testing.T) {
	ctx, _, _ := newTestContext()
	n := box(1, 1, 1)
	p := ctx.Realize(n)
	gen := p.Generation()

	require.NoError(t, n.SetParam("dx", 3))
	require.NoError(t, n.SetPosition(geom.V(1, 0, 0)))

	fresh := box(3, 1, 1)
	require.NoError(t, fresh.SetPosition(geom.V(1, 0, 0)))
	fp := ctx.Realize(fresh)

	gotMin, gotMax := p.Shape().BoundingBox()
	wantMin, wantMax := fp.Shape().BoundingBox()
	assert.Equal(t, wantMin, gotMin)
	assert.Equal(t, wantMax, gotMax)
	assert.Greater(t, p.Generation(), gen)
}

func TestRebuildInvalidatesTopology(t *testing.T) {
	ctx, _, _ := newTestContext()
	p := ctx.Realize(box(2, 2, 2))
	first := len(p.Faces())
	_ = p.Faces()
	require.Equal(t, 1, p.TopologyCache().Traversals())

	p.Rebuild()
	second := len(p.Faces())

	assert.Equal(t, 2, p.TopologyCache().Traversals())
	assert.Equal(t, first, second)
	assert.Equal(t, len(p.Edges()), 12)
}

func TestOperationDefersUntilOperandsResolve(t *testing.T) {
	ctx, k, _ := newTestContext()
	cut := shape.New(shape.KindCut)
	require.NoError(t, cut.AddChild(box(2, 2, 2)))

	p := ctx.Realize(cut)

	assert.Equal(t, Deferred, p.State())
	assert.Nil(t, p.Err())
	assert.Equal(t, 0, k.BuildsOf("cut"))

	tool := box(1, 1, 1)
	require.NoError(t, tool.SetPosition(geom.V(0.5, 0.5, 0.5)))
	require.NoError(t, cut.AddChild(tool))

	assert.Equal(t, Built, p.State())
	assert.Equal(t, 1, k.BuildsOf("cut"))
	assert.NotEmpty(t, p.Faces())
}

func TestDeferredOperandPropagates(t *testing.T) {
	ctx, k, _ := newTestContext()
	inner := shape.New(shape.KindFuse)
	require.NoError(t, inner.AddChild(box(1, 1, 1)))
	fillet := shape.New(shape.KindFillet)
	require.NoError(t, fillet.AddChild(inner))

	p := ctx.Realize(fillet)
	assert.Equal(t, Deferred, p.State())
	assert.Equal(t, 0, k.BuildsOf("fillet"))

	require.NoError(t, inner.AddChild(box(1, 1, 1)))
	assert.Equal(t, Built, p.State())
	assert.Equal(t, 1, k.BuildsOf("fillet"))
}

func TestFailedFilletKeepsLastShape(t *testing.T) {
	ctx, _, req := newTestContext()
	fillet := shape.New(shape.KindFillet)
	require.NoError(t, fillet.AddChild(box(2, 2, 2)))
	p := ctx.Realize(fillet)
	require.Equal(t, Built, p.State())
	good := p.Shape()

	require.NoError(t, fillet.SetParam("radius", -1))

	assert.Equal(t, Failed, p.State())
	assert.Same(t, good, p.Shape())
	var gbe *kernel.GeometryBuildError
	require.True(t, errors.As(fillet.BuildError(), &gbe))
	assert.Equal(t, kernel.Degenerate, gbe.Kind)
	assert.Equal(t, fillet.Label(), gbe.Node)
	assert.Equal(t, []*kernel.GeometryBuildError{gbe}, ctx.Errors())
	assert.Positive(t, req[refresh.Redraw])

	require.NoError(t, fillet.SetParam("radius", 0.5))
	assert.Equal(t, Built, p.State())
	assert.Nil(t, fillet.BuildError())
	assert.Empty(t, ctx.Errors())
}

func TestFailedBuildIsNotRetriedUntilChanged(t *testing.T) {
	ctx, _, _ := newTestContext()
	fillet := shape.New(shape.KindFillet)
	require.NoError(t, fillet.SetParam("radius", -1))
	require.NoError(t, fillet.AddChild(box(1, 1, 1)))
	p := ctx.Realize(fillet)
	require.Equal(t, Failed, p.State())
	assert.Nil(t, p.Shape())
	builds := p.Builds()

	ctx.Realize(fillet)
	ctx.RealizeAll([]*shape.Node{fillet})
	assert.Equal(t, builds, p.Builds())

	require.NoError(t, fillet.SetParam("radius", -2))
	assert.Equal(t, builds+1, p.Builds())
}

func TestDisplayChangesRedrawWithoutRebuild(t *testing.T) {
	ctx, _, req := newTestContext()
	n := box(1, 1, 1)
	p := ctx.Realize(n)
	builds := p.Builds()
	redraws := req[refresh.Redraw]

	require.NoError(t, n.SetColor("orange"))
	require.NoError(t, n.SetTransparency(0.5))

	assert.Equal(t, builds, p.Builds())
	assert.Equal(t, redraws+2, req[refresh.Redraw])
}

func TestRebuildCascadesToDependents(t *testing.T) {
	ctx, k, req := newTestContext()
	base := box(4, 4, 1)
	fuse := shape.New(shape.KindFuse)
	require.NoError(t, fuse.AddChild(base))
	require.NoError(t, fuse.AddChild(box(1, 1, 3)))
	part := shape.New(shape.KindPart)
	require.NoError(t, part.AddChild(fuse))

	pp := ctx.Realize(part)
	require.Equal(t, Built, pp.State())
	gen := pp.Generation()
	fits := req[refresh.FitAll]

	require.NoError(t, base.SetParam("dx", 8))

	assert.Greater(t, pp.Generation(), gen)
	_, max := pp.Shape().BoundingBox()
	assert.Equal(t, 8.0, max[0])
	assert.Equal(t, 2, k.BuildsOf("fuse"))
	assert.Greater(t, req[refresh.FitAll], fits)
}

func TestBatchBuildsOnce(t *testing.T) {
	ctx, k, _ := newTestContext()
	n := box(1, 1, 1)
	ctx.Realize(n)

	ctx.Batch(func() {
		_ = n.SetParam("dx", 2)
		_ = n.SetParam("dy", 2)
		_ = n.SetPosition(geom.V(1, 2, 3))
	})

	assert.Equal(t, 2, k.BuildsOf("box"))
	min, max := ctx.Lookup(n).Shape().BoundingBox()
	assert.Equal(t, [3]float64{1, 2, 3}, min)
	assert.Equal(t, [3]float64{3, 4, 4}, max)
}

func TestPartIsCompoundOfChildren(t *testing.T) {
	ctx, k, _ := newTestContext()
	part := shape.New(shape.KindPart)
	a := box(1, 1, 1)
	b := box(1, 1, 1)
	require.NoError(t, b.SetPosition(geom.V(5, 0, 0)))
	require.NoError(t, part.AddChild(a))
	require.NoError(t, part.AddChild(b))

	p := ctx.Realize(part)

	require.Equal(t, Built, p.State())
	fs, ok := p.Shape().(*kerneltest.Shape)
	require.True(t, ok)
	assert.Len(t, fs.Operands, 2)
	assert.Equal(t, 1, k.BuildsOf("compound"))
}

func TestDestroyReleasesHandles(t *testing.T) {
	ctx, k, _ := newTestContext()
	part := shape.New(shape.KindPart)
	child := box(1, 1, 1)
	require.NoError(t, part.AddChild(child))
	ctx.RealizeAll([]*shape.Node{part})
	p := ctx.Lookup(part)
	cp := ctx.Lookup(child)
	childID := cp.Shape().(*kerneltest.Shape).ID

	part.Destroy()

	assert.Equal(t, Released, p.State())
	assert.Equal(t, Released, cp.State())
	assert.Contains(t, k.Released(), childID)
	assert.Nil(t, ctx.Lookup(part))
	assert.Empty(t, ctx.Proxies())
}

func TestKernelPanicBecomesInternalError(t *testing.T) {
	ctx, k, _ := newTestContext()
	k.Fail = func(kernel.Request) error { panic("segfault in native code") }

	p := ctx.Realize(box(1, 1, 1))

	require.Equal(t, Failed, p.State())
	assert.Equal(t, kernel.Internal, p.Err().Kind)
}

func TestForeignKernelErrorIsWrapped(t *testing.T) {
	ctx, k, _ := newTestContext()
	boom := errors.New("boom")
	k.Fail = func(kernel.Request) error { return boom }

	p := ctx.Realize(box(1, 1, 1))

	require.Equal(t, Failed, p.State())
	assert.Equal(t, kernel.Internal, p.Err().Kind)
	assert.ErrorIs(t, p.Err(), boom)
}

func TestOperandCycleFailsWithoutLooping(t *testing.T) {
	ctx, _, _ := newTestContext()
	a := shape.New(shape.KindFillet)
	b := shape.New(shape.KindOffset)
	require.NoError(t, a.SetOperands(b))
	require.NoError(t, b.SetOperands(a))

	pa := ctx.Realize(a)
	pb := ctx.Lookup(b)

	assert.Nil(t, pa.Shape())
	assert.Nil(t, pb.Shape())
	require.NotNil(t, pb.Err())
	assert.Equal(t, kernel.MissingOperand, pb.Err().Kind)
}

func TestDrawKindStrategies(t *testing.T) {
	ctx, k, _ := newTestContext()

	circle := shape.New(shape.KindCircle)
	half := shape.New(shape.KindHalfSpace)
	require.NoError(t, half.AddChild(circle))
	require.NoError(t, half.SetPosition(geom.V(0, 0, 5)))
	hp := ctx.Realize(half)
	require.Equal(t, Built, hp.State())

	fillet := shape.New(shape.KindFillet)
	require.NoError(t, fillet.SetParam("shape", "polynomial"))
	require.NoError(t, fillet.AddChild(box(1, 1, 1)))
	require.Equal(t, Built, ctx.Realize(fillet).State())

	pt := ctx.Realize(shape.New(shape.KindVertex))
	require.Equal(t, Built, pt.State())
	assert.Equal(t, kernel.DimPoint, pt.Shape().Dim())

	var sawHalf, sawFillet bool
	for _, req := range k.Builds() {
		switch p := req.Params.(type) {
		case kernel.HalfSpaceParams:
			sawHalf = true
			assert.Equal(t, geom.V(0, 0, 5), req.Placement.Location)
			assert.Len(t, req.Operands, 1)
		case kernel.FilletParams:
			sawFillet = true
			assert.Equal(t, kernel.FilletPolynomial, p.Shape)
		}
	}
	assert.True(t, sawHalf)
	assert.True(t, sawFillet)

	arc := shape.New(shape.KindArc)
	require.NoError(t, arc.SetParam("alpha2", 0))
	ap := ctx.Realize(arc)
	assert.Equal(t, Failed, ap.State())
	require.NotNil(t, ap.Err())
	assert.Equal(t, kernel.Degenerate, ap.Err().Kind)
}
