package deferred

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver/drivertest"
)

func newTestBinder(t *testing.T, dev *drivertest.Device, sets uint32) *DescriptorBinder {
	t.Helper()
	b, err := NewDescriptorBinder(newTestContext(dev), driver.DescriptorPoolInfo{
		MaxSets: sets,
		Sizes: []driver.DescriptorPoolSize{
			{Type: driver.DescriptorUniformBuffer, Count: sets},
			{Type: driver.DescriptorCombinedImageSampler, Count: 3 * sets},
		},
	})
	require.NoError(t, err)
	t.Cleanup(b.Destroy)
	return b
}

func TestBinderWritesEveryBinding(t *testing.T) {
	dev := drivertest.New()
	ctx := newTestContext(dev)
	b := newTestBinder(t, dev, 1)

	ubo, err := NewUniformBuffer(ctx)
	require.NoError(t, err)
	defer ubo.Destroy()
	gb, err := NewGBuffer(ctx, testExtent)
	require.NoError(t, err)
	defer gb.Destroy()
	sampler, err := dev.CreateSampler(driver.SamplerInfo{})
	require.NoError(t, err)
	defer sampler.Destroy()

	b.BeginSet(driver.StageFragment)
	for i, a := range gb.ColorAttachments() {
		b.BindImage(uint32(i), a.View, sampler, driver.DescriptorCombinedImageSampler, driver.LayoutShaderRead)
	}
	b.BindBuffer(3, ubo.Buffer(), driver.DescriptorUniformBuffer)
	set, layout, err := b.EndSet()
	require.NoError(t, err)
	assert.Same(t, layout, set.Layout())

	s := set.(*drivertest.DescriptorSet)
	for i, a := range gb.ColorAttachments() {
		assert.Equal(t, drivertest.ID(a.View), s.Bound(uint32(i)))
	}
	assert.Equal(t, drivertest.ID(ubo.Buffer()), s.Bound(3))
	assert.Empty(t, dev.Violations())
}

func TestBinderPoolCapacity(t *testing.T) {
	dev := drivertest.New()
	ctx := newTestContext(dev)
	b := newTestBinder(t, dev, 1)
	ubo, err := NewUniformBuffer(ctx)
	require.NoError(t, err)
	defer ubo.Destroy()

	b.BeginSet(driver.StageVertex)
	b.BindBuffer(0, ubo.Buffer(), driver.DescriptorUniformBuffer)
	_, _, err = b.EndSet()
	require.NoError(t, err)

	b.BeginSet(driver.StageVertex)
	b.BindBuffer(0, ubo.Buffer(), driver.DescriptorUniformBuffer)
	_, _, err = b.EndSet()
	assert.Error(t, err)
	assert.Equal(t, 1, dev.Live(drivertest.KindSetLayout), "layout of the failed set is released")
}

func TestBinderRejectsMisuse(t *testing.T) {
	dev := drivertest.New()
	ctx := newTestContext(dev)
	b := newTestBinder(t, dev, 2)
	ubo, err := NewUniformBuffer(ctx)
	require.NoError(t, err)
	defer ubo.Destroy()

	b.BindBuffer(0, ubo.Buffer(), driver.DescriptorUniformBuffer)
	_, _, err = b.EndSet()
	assert.ErrorIs(t, err, errNoSetInProgress)

	b.BeginSet(driver.StageVertex)
	b.BindBuffer(0, ubo.Buffer(), driver.DescriptorUniformBuffer)
	b.BindBuffer(0, ubo.Buffer(), driver.DescriptorUniformBuffer)
	_, _, err = b.EndSet()
	assert.Error(t, err)
	assert.Zero(t, dev.Live(drivertest.KindSetLayout))
}

func TestBinderResetFreesSets(t *testing.T) {
	dev := drivertest.New()
	ctx := newTestContext(dev)
	b := newTestBinder(t, dev, 1)
	ubo, err := NewUniformBuffer(ctx)
	require.NoError(t, err)
	defer ubo.Destroy()

	build := func() error {
		b.BeginSet(driver.StageVertex)
		b.BindBuffer(0, ubo.Buffer(), driver.DescriptorUniformBuffer)
		_, _, err := b.EndSet()
		return err
	}
	require.NoError(t, build())
	require.NoError(t, b.Reset())
	assert.Zero(t, dev.Live(drivertest.KindSetLayout))
	assert.NoError(t, build(), "capacity is available again after a reset")

	b.Destroy()
	assert.Zero(t, dev.Live(drivertest.KindDescriptorPool))
}
