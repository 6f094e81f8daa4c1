package deferred

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver/drivertest"
)

func newTestCoordinator(t *testing.T, dev *drivertest.Device, n int) *SwapchainCoordinator {
	t.Helper()
	sc := NewSwapchainCoordinator(newTestContext(dev), struct{}{}, SwapchainOptions{FramesInFlight: n})
	require.NoError(t, sc.Create(testExtent))
	t.Cleanup(sc.Destroy)
	return sc
}

func TestCreateBuildsOneFramebufferPerImage(t *testing.T) {
	dev := drivertest.New()
	dev.MinImageCount = 3
	sc := newTestCoordinator(t, dev, 2)

	assert.Equal(t, SwapchainReady, sc.State())
	assert.Equal(t, 3, sc.Framebuffers())
	assert.Equal(t, 2, sc.Sync().Slots())
	assert.Equal(t, driver.FormatD32Float, sc.DepthAttachment().Format)
}

func TestImageCountAtLeastFramesInFlight(t *testing.T) {
	dev := drivertest.New()
	sc := newTestCoordinator(t, dev, 3)
	assert.Equal(t, 3, sc.Framebuffers())
}

func TestRecreateReplacesEveryDependentResource(t *testing.T) {
	dev := drivertest.New()
	dev.MinImageCount = 3
	sc := newTestCoordinator(t, dev, 2)

	oldFramebuffers := []int{}
	for i := uint32(0); i < uint32(sc.Framebuffers()); i++ {
		oldFramebuffers = append(oldFramebuffers, drivertest.ID(sc.Framebuffer(i)))
	}
	oldDepth := drivertest.ID(sc.DepthAttachment().View)
	oldPass := drivertest.ID(sc.RenderPass())
	oldFence := drivertest.ID(sc.Sync().Slot(0).Fence)
	sc.Sync().AdvanceSlot()

	var notified []SwapchainInfo
	sc.OnChange(func(info SwapchainInfo) error {
		notified = append(notified, info)
		return nil
	})
	idle := dev.WaitIdleCalls()

	newExtent := driver.Extent2D{Width: 128, Height: 96}
	require.NoError(t, sc.Recreate(newExtent))

	assert.Greater(t, dev.WaitIdleCalls(), idle, "device must be idle before teardown")
	assert.Equal(t, 3, sc.Framebuffers())
	assert.Equal(t, 2, sc.Sync().Slots())
	assert.Equal(t, 1, sc.Sync().Current(), "frame index survives recreation")
	assert.Equal(t, newExtent, sc.Extent())
	for _, id := range append(oldFramebuffers, oldDepth, oldPass, oldFence) {
		assert.False(t, dev.Alive(id), "object %d outlived recreation", id)
	}
	require.Len(t, notified, 1)
	assert.Equal(t, newExtent, notified[0].Extent)
	assert.Equal(t, 3, notified[0].ImageCount)
	assert.Equal(t, 1, dev.Live(drivertest.KindSwapchain))
	assert.Equal(t, 1, dev.Live(drivertest.KindRenderPass))
	assert.Empty(t, dev.Violations())
}

func TestAcquireOutOfDateRequiresRecreate(t *testing.T) {
	dev := drivertest.New()
	sc := newTestCoordinator(t, dev, 2)

	dev.FailNextAcquire(driver.ErrOutOfDate)
	_, err := sc.AcquireNext(0)
	assert.ErrorIs(t, err, driver.ErrOutOfDate)
	assert.Equal(t, SwapchainOutOfDate, sc.State())

	calls := dev.Acquires()
	_, err = sc.AcquireNext(0)
	assert.ErrorIs(t, err, ErrNeedsRecreate)
	assert.Equal(t, calls, dev.Acquires(), "no acquire may reach an out of date swapchain")

	require.NoError(t, sc.Recreate(testExtent))
	_, err = sc.AcquireNext(0)
	assert.NoError(t, err)
}

func TestSuboptimalAcquireRecreatesAfterPresent(t *testing.T) {
	dev := drivertest.New()
	dev.AutoComplete = true
	sc := newTestCoordinator(t, dev, 2)
	slot := sc.Sync().Slot(0)

	dev.FailNextAcquire(driver.ErrSuboptimal)
	idx, err := sc.AcquireNext(0)
	require.NoError(t, err)
	require.NoError(t, dev.GraphicsQueue().Submit([]driver.SubmitInfo{{
		Wait:       []driver.Semaphore{slot.ImageAvailable},
		WaitStages: []driver.PipelineStage{driver.StageColorAttachmentOutput},
		Signal:     []driver.Semaphore{slot.RenderingFinished},
	}}, nil))

	err = sc.Present(idx, slot.RenderingFinished)
	assert.ErrorIs(t, err, driver.ErrSuboptimal)
	assert.Equal(t, SwapchainOutOfDate, sc.State())
	require.NoError(t, sc.Recreate(testExtent))
	assert.Equal(t, SwapchainReady, sc.State())
}

func TestPresentFatalError(t *testing.T) {
	dev := drivertest.New()
	sc := newTestCoordinator(t, dev, 1)
	slot := sc.Sync().Slot(0)

	idx, err := sc.AcquireNext(0)
	require.NoError(t, err)
	require.NoError(t, dev.GraphicsQueue().Submit([]driver.SubmitInfo{{
		Wait:       []driver.Semaphore{slot.ImageAvailable},
		WaitStages: []driver.PipelineStage{driver.StageColorAttachmentOutput},
		Signal:     []driver.Semaphore{slot.RenderingFinished},
	}}, nil))
	dev.FailNextPresent(driver.ErrDeviceLost)

	err = sc.Present(idx, slot.RenderingFinished)
	assert.ErrorIs(t, err, driver.ErrDeviceLost)
	assert.Equal(t, SwapchainReady, sc.State())
}

func TestRecreateFailureLeavesNothingBehind(t *testing.T) {
	dev := drivertest.New()
	sc := newTestCoordinator(t, dev, 2)

	dev.FailNext(drivertest.KindFramebuffer, errors.New("out of device memory"))
	err := sc.Recreate(testExtent)
	require.Error(t, err)

	assert.Equal(t, SwapchainOutOfDate, sc.State())
	for _, k := range []drivertest.Kind{
		drivertest.KindSwapchain,
		drivertest.KindFramebuffer,
		drivertest.KindRenderPass,
		drivertest.KindImageView,
		drivertest.KindFence,
		drivertest.KindSemaphore,
		drivertest.KindCommandBuffer,
	} {
		assert.Zero(t, dev.Live(k), "%s left after failed recreation", k)
	}

	_, err = sc.AcquireNext(0)
	assert.ErrorIs(t, err, ErrNeedsRecreate)
	require.NoError(t, sc.Recreate(testExtent))
	assert.Equal(t, SwapchainReady, sc.State())
}

func TestZeroExtentDefersRecreation(t *testing.T) {
	dev := drivertest.New()
	sc := newTestCoordinator(t, dev, 2)
	fb := drivertest.ID(sc.Framebuffer(0))

	err := sc.Recreate(driver.Extent2D{Width: 800})
	assert.ErrorIs(t, err, ErrZeroExtent)
	assert.Equal(t, SwapchainOutOfDate, sc.State())
	assert.True(t, dev.Alive(fb), "deferred recreation must not tear anything down")
}

func TestDestroyReleasesEverything(t *testing.T) {
	dev := drivertest.New()
	sc := NewSwapchainCoordinator(newTestContext(dev), struct{}{}, SwapchainOptions{FramesInFlight: 2})
	require.NoError(t, sc.Create(testExtent))
	sc.Destroy()
	assert.Empty(t, dev.Leaks())
}

// trace records the steps RunFrame hands to a renderer.
type trace struct {
	dev   *drivertest.Device
	steps []string
}

func (tr *trace) frameSteps() FrameSteps {
	return FrameSteps{
		Prepare: func() error {
			tr.steps = append(tr.steps, "prepare")
			return nil
		},
		Submit: func(slot *FrameSlot, idx uint32) error {
			tr.steps = append(tr.steps, "submit")
			return tr.dev.GraphicsQueue().Submit([]driver.SubmitInfo{{
				Wait:       []driver.Semaphore{slot.ImageAvailable},
				WaitStages: []driver.PipelineStage{driver.StageColorAttachmentOutput},
				Signal:     []driver.Semaphore{slot.RenderingFinished},
			}}, slot.Fence)
		},
	}
}

func TestRunFrameDrivesAcquireSubmitPresent(t *testing.T) {
	dev := drivertest.New()
	sc := NewSwapchainCoordinator(newTestContext(dev), struct{}{}, SwapchainOptions{
		FramesInFlight:       2,
		WaitIdleAfterPresent: true,
	})
	require.NoError(t, sc.Create(testExtent))
	t.Cleanup(sc.Destroy)
	tr := &trace{dev: dev}

	idle := dev.WaitIdleCalls()
	require.NoError(t, sc.RunFrame(testExtent, tr.frameSteps()))
	assert.Equal(t, []string{"prepare", "submit"}, tr.steps)
	assert.Len(t, dev.Presents(), 1)
	assert.Equal(t, 1, sc.Sync().Current())
	assert.Equal(t, idle+1, dev.WaitIdleCalls())
	assert.Zero(t, dev.Pending())

	tr.steps = nil
	dev.FailNextAcquire(driver.ErrOutOfDate)
	assert.ErrorIs(t, sc.RunFrame(testExtent, tr.frameSteps()), core.ErrSwapchainBooting)
	assert.Equal(t, []string{"prepare"}, tr.steps)
	assert.Equal(t, 0, sc.Sync().Current())
	assert.Equal(t, SwapchainReady, sc.State())
	assert.Len(t, dev.Presents(), 1)

	// The rearmed fence lets the slot be reused.
	require.NoError(t, sc.RunFrame(testExtent, tr.frameSteps()))
	require.NoError(t, sc.RunFrame(testExtent, tr.frameSteps()))
	assert.Len(t, dev.Presents(), 3)
	assert.Empty(t, dev.Violations())
}

func TestRunFrameAdvancesWhileTheSurfaceHasNoArea(t *testing.T) {
	dev := drivertest.New()
	dev.AutoComplete = true
	sc := newTestCoordinator(t, dev, 2)
	tr := &trace{dev: dev}

	sc.Invalidate()
	err := sc.RunFrame(driver.Extent2D{}, tr.frameSteps())
	assert.ErrorIs(t, err, core.ErrSwapchainBooting)
	assert.Empty(t, tr.steps)
	assert.Equal(t, 1, sc.Sync().Current())

	require.NoError(t, sc.RunFrame(testExtent, tr.frameSteps()))
	assert.Len(t, dev.Presents(), 1)
	assert.Empty(t, dev.Violations())
}
