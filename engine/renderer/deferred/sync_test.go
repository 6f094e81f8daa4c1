package deferred

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver/drivertest"
)

func TestNewFrameSynchronizerRejectsZeroFrames(t *testing.T) {
	_, err := NewFrameSynchronizer(drivertest.New(), 0, time.Second)
	assert.Error(t, err)
}

func TestAdvanceSlotCycles(t *testing.T) {
	dev := drivertest.New()
	fs, err := NewFrameSynchronizer(dev, 3, time.Second)
	require.NoError(t, err)
	defer fs.Destroy()

	var got []int
	for i := 0; i < 7; i++ {
		got = append(got, fs.AdvanceSlot())
	}
	assert.Equal(t, []int{1, 2, 0, 1, 2, 0, 1}, got)
	assert.Equal(t, 3, fs.Slots())
}

func TestWaitForSlotBlocksUntilFenceSignals(t *testing.T) {
	dev := drivertest.New()
	fs, err := NewFrameSynchronizer(dev, 2, 5*time.Second)
	require.NoError(t, err)
	defer fs.Destroy()

	// Fresh slots are ready immediately.
	require.NoError(t, fs.WaitForSlot(0))
	require.NoError(t, dev.GraphicsQueue().Submit(nil, fs.Slot(0).Fence))

	done := make(chan error, 1)
	go func() { done <- fs.WaitForSlot(0) }()

	select {
	case <-done:
		t.Fatal("WaitForSlot returned while the fence was pending")
	case <-time.After(50 * time.Millisecond):
	}
	dev.CompleteAll()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForSlot did not return after the fence signaled")
	}
	assert.False(t, fs.Slot(0).Fence.(*drivertest.Fence).Signaled(), "fence must be reset after the wait")
	assert.Empty(t, dev.Violations())
}

func TestFenceTimeoutIsDeviceLost(t *testing.T) {
	dev := drivertest.New()
	fs, err := NewFrameSynchronizer(dev, 1, 20*time.Millisecond)
	require.NoError(t, err)
	defer fs.Destroy()

	require.NoError(t, fs.WaitForSlot(0))
	err = fs.WaitForSlot(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDeviceLost))
}

func TestLostDeviceIsFatal(t *testing.T) {
	dev := drivertest.New()
	fs, err := NewFrameSynchronizer(dev, 2, time.Second)
	require.NoError(t, err)
	defer fs.Destroy()

	dev.Lose()
	assert.ErrorIs(t, fs.WaitAll(), core.ErrDeviceLost)
}

func TestWaitAllLeavesFencesSignaled(t *testing.T) {
	dev := drivertest.New()
	fs, err := NewFrameSynchronizer(dev, 2, time.Second)
	require.NoError(t, err)
	defer fs.Destroy()

	require.NoError(t, fs.WaitAll())
	for i := 0; i < fs.Slots(); i++ {
		assert.True(t, fs.Slot(i).Fence.(*drivertest.Fence).Signaled())
	}
}

func TestRearmReplacesResetFence(t *testing.T) {
	dev := drivertest.New()
	fs, err := NewFrameSynchronizer(dev, 1, 20*time.Millisecond)
	require.NoError(t, err)
	defer fs.Destroy()

	require.NoError(t, fs.WaitForSlot(0))
	old := drivertest.ID(fs.Slot(0).Fence)
	require.NoError(t, fs.Rearm(0))
	assert.False(t, dev.Alive(old))
	assert.NoError(t, fs.WaitForSlot(0))
}

func TestSlotAllocationFailureReleasesEverything(t *testing.T) {
	dev := drivertest.New()
	dev.FailNext(drivertest.KindSemaphore, errors.New("out of memory"))

	_, err := NewFrameSynchronizer(dev, 2, time.Second)
	require.Error(t, err)
	assert.Empty(t, dev.Leaks())
}

func TestSlotOwnsDistinctObjects(t *testing.T) {
	dev := drivertest.New()
	fs, err := NewFrameSynchronizer(dev, 2, time.Second)
	require.NoError(t, err)
	defer fs.Destroy()

	a, b := fs.Slot(0), fs.Slot(1)
	assert.NotEqual(t, drivertest.ID(a.Fence), drivertest.ID(b.Fence))
	assert.NotEqual(t, drivertest.ID(a.Offscreen), drivertest.ID(a.Resolve))
	assert.Equal(t, 4, dev.Live(drivertest.KindCommandBuffer))
	assert.Equal(t, 6, dev.Live(drivertest.KindSemaphore))

	fs.Destroy()
	assert.Empty(t, dev.Leaks())
}
