package deferred

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver/drivertest"
)

func TestGBufferLayout(t *testing.T) {
	dev := drivertest.New()
	gb, err := NewGBuffer(newTestContext(dev), testExtent)
	require.NoError(t, err)
	defer gb.Destroy()

	require.Len(t, gb.Attachments, 4)
	colors := gb.ColorAttachments()
	require.Len(t, colors, 3)
	assert.Equal(t, driver.FormatRGBA16Float, colors[0].Format)
	assert.Equal(t, driver.FormatRGBA16Float, colors[1].Format)
	assert.Equal(t, driver.FormatRGBA8Unorm, colors[2].Format)
	for _, a := range colors {
		assert.Equal(t, AttachmentColor, a.Usage)
		assert.Equal(t, gb.ID, a.Owner())
		assert.Equal(t, testExtent, a.Extent)
		assert.NotZero(t, a.Image.(*drivertest.Image).Usage()&driver.UsageSampled)
	}
	depth := gb.DepthAttachment()
	assert.Equal(t, AttachmentDepth, depth.Usage)
	assert.True(t, depth.Format.IsDepth())

	info := gb.RenderPass.(*drivertest.RenderPass).Info()
	assert.Equal(t, []int{0, 1, 2}, info.Color)
	assert.Equal(t, 3, info.Depth)
	for _, a := range info.Attachments[:3] {
		assert.Equal(t, driver.LayoutShaderRead, a.Final)
		assert.Equal(t, driver.StoreStore, a.Store)
	}

	clear := gb.ClearValues()
	require.Len(t, clear, 4)
	assert.Equal(t, float32(1), clear[3].Depth)
	assert.Equal(t, [4]float32{}, clear[0].Color)
	assert.Empty(t, dev.Violations())
}

func TestDepthFormatFallback(t *testing.T) {
	dev := drivertest.New()
	dev.DepthFormats = []driver.Format{driver.FormatD24UnormS8, driver.FormatD16Unorm}
	gb, err := NewGBuffer(newTestContext(dev), testExtent)
	require.NoError(t, err)
	defer gb.Destroy()
	assert.Equal(t, driver.FormatD24UnormS8, gb.DepthAttachment().Format)

	dev.DepthFormats = nil
	_, err = NewGBuffer(newTestContext(dev), testExtent)
	assert.Error(t, err)
}

func TestReleaseChecksOwnership(t *testing.T) {
	dev := drivertest.New()
	ctx := newTestContext(dev)
	a, err := NewGBuffer(ctx, testExtent)
	require.NoError(t, err)
	defer a.Destroy()
	b, err := NewGBuffer(ctx, testExtent)
	require.NoError(t, err)
	defer b.Destroy()

	foreign := a.ColorAttachments()[0]
	err = b.Release(foreign)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.True(t, dev.Alive(drivertest.ID(foreign.View)))
}

func TestResizeReplacesEveryAttachment(t *testing.T) {
	dev := drivertest.New()
	gb, err := NewGBuffer(newTestContext(dev), testExtent)
	require.NoError(t, err)
	defer gb.Destroy()

	var old []int
	for _, a := range gb.Attachments {
		old = append(old, drivertest.ID(a.View), drivertest.ID(a.Image), drivertest.ID(a.Memory))
	}
	old = append(old, drivertest.ID(gb.Framebuffer), drivertest.ID(gb.RenderPass))
	id := gb.ID

	extent := driver.Extent2D{Width: 320, Height: 200}
	require.NoError(t, gb.Resize(extent))
	assert.Equal(t, id, gb.ID)
	assert.Equal(t, extent, gb.Extent)
	assert.Equal(t, extent, gb.Framebuffer.Extent())
	for _, o := range old {
		assert.False(t, dev.Alive(o), "object %d survived resize", o)
	}
	assert.Equal(t, 4, dev.Live(drivertest.KindImage))
	assert.Equal(t, 1, dev.Live(drivertest.KindFramebuffer))
}

func TestResizeFailureKeepsTarget(t *testing.T) {
	dev := drivertest.New()
	gb, err := NewGBuffer(newTestContext(dev), testExtent)
	require.NoError(t, err)
	defer gb.Destroy()
	fb := drivertest.ID(gb.Framebuffer)

	dev.FailNext(drivertest.KindFramebuffer, errors.New("out of memory"))
	require.Error(t, gb.Resize(driver.Extent2D{Width: 320, Height: 200}))
	assert.Equal(t, testExtent, gb.Extent)
	assert.True(t, dev.Alive(fb))
	assert.Equal(t, 4, dev.Live(drivertest.KindImage))
	assert.Equal(t, 4, dev.Live(drivertest.KindMemory))
	assert.Equal(t, 1, dev.Live(drivertest.KindRenderPass))
}

func TestRenderTargetCreationFailureLeaksNothing(t *testing.T) {
	for _, kind := range []drivertest.Kind{
		drivertest.KindImage,
		drivertest.KindMemory,
		drivertest.KindImageView,
		drivertest.KindRenderPass,
		drivertest.KindFramebuffer,
	} {
		t.Run(string(kind), func(t *testing.T) {
			dev := drivertest.New()
			dev.FailNext(kind, errors.New("boom"))
			_, err := NewGBuffer(newTestContext(dev), testExtent)
			require.Error(t, err)
			assert.Empty(t, dev.Leaks())
		})
	}
}

func TestRenderTargetRejectsZeroExtent(t *testing.T) {
	dev := drivertest.New()
	_, err := NewGBuffer(newTestContext(dev), driver.Extent2D{Height: 10})
	assert.Error(t, err)
	assert.Empty(t, dev.Leaks())
}
