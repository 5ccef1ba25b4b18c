package refresh_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/chazu/declcad/pkg/kernel/kerneltest"
	"github.com/chazu/declcad/pkg/proxy"
	"github.com/chazu/declcad/pkg/refresh"
	"github.com/chazu/declcad/pkg/shape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyWriteBurstRedrawsOnce(t *testing.T) {
	s := refresh.New(nil)
	var redraws atomic.Int32
	s.Handle(refresh.Redraw, 40*time.Millisecond, func() { redraws.Add(1) })

	ctx := proxy.NewContext(kerneltest.New(), proxy.WithRequester(s))
	n := shape.New(shape.KindBox)
	p := ctx.Realize(n)
	require.Equal(t, proxy.Built, p.State())

	colors := []string{"red", "green", "blue"}
	for i := 0; i < 12; i++ {
		require.NoError(t, n.SetParam("dx", float64(i+1)))
		require.NoError(t, n.SetColor(colors[i%len(colors)]))
	}

	assert.Eventually(t, func() bool { return redraws.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), redraws.Load())
	assert.Equal(t, 1, s.Fired(refresh.Redraw))
	_, max := p.Shape().BoundingBox()
	assert.Equal(t, 12.0, max[0])
}
