package deferred

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// DefaultFenceTimeout bounds every fence wait.
const DefaultFenceTimeout = 10 * time.Second

// FrameSlot holds the per-frame resources of one frame in flight.
// Its command buffers belong to the CPU from the moment Fence is observed
// signaled until they are submitted again.
type FrameSlot struct {
	Offscreen driver.CommandBuffer
	Resolve   driver.CommandBuffer
	Fence     driver.Fence

	ImageAvailable    driver.Semaphore
	OffscreenFinished driver.Semaphore
	RenderingFinished driver.Semaphore
}

func newFrameSlot(dev driver.Device) (s *FrameSlot, err error) {
	var rel releaser
	defer rel.onError(&err)

	cbs, err := dev.AllocateCommandBuffers(2)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate command buffers: %w", err)
	}
	for _, cb := range cbs {
		rel.push(cb)
	}
	// Signaled so the first wait on a fresh slot returns immediately.
	fence, err := dev.CreateFence(true)
	if err != nil {
		return nil, fmt.Errorf("failed to create fence: %w", err)
	}
	rel.push(fence)
	var sems [3]driver.Semaphore
	for i := range sems {
		if sems[i], err = dev.CreateSemaphore(); err != nil {
			return nil, fmt.Errorf("failed to create semaphore: %w", err)
		}
		rel.push(sems[i])
	}
	return &FrameSlot{
		Offscreen:         cbs[0],
		Resolve:           cbs[1],
		Fence:             fence,
		ImageAvailable:    sems[0],
		OffscreenFinished: sems[1],
		RenderingFinished: sems[2],
	}, nil
}

func (s *FrameSlot) destroy() {
	s.Offscreen.Destroy()
	s.Resolve.Destroy()
	s.Fence.Destroy()
	s.ImageAvailable.Destroy()
	s.OffscreenFinished.Destroy()
	s.RenderingFinished.Destroy()
}

// FrameSynchronizer owns N frame slots and the index of the current one.
// Slots are reallocated on swapchain recreation; the index survives.
type FrameSynchronizer struct {
	dev     driver.Device
	timeout time.Duration
	n       int
	current int
	slots   []*FrameSlot
}

// NewFrameSynchronizer allocates n slots.
func NewFrameSynchronizer(dev driver.Device, n int, timeout time.Duration) (*FrameSynchronizer, error) {
	if n < 1 {
		return nil, fmt.Errorf("frames in flight must be at least 1, got %d", n)
	}
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}
	fs := &FrameSynchronizer{dev: dev, timeout: timeout, n: n}
	if err := fs.allocate(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FrameSynchronizer) allocate() (err error) {
	var rel releaser
	defer rel.onError(&err)

	slots := make([]*FrameSlot, fs.n)
	for i := range slots {
		s, err := newFrameSlot(fs.dev)
		if err != nil {
			return fmt.Errorf("frame slot %d: %w", i, err)
		}
		rel.pushFunc(s.destroy)
		slots[i] = s
	}
	fs.slots = slots
	return nil
}

// release destroys every slot. The GPU must be idle.
func (fs *FrameSynchronizer) release() {
	for _, s := range fs.slots {
		s.destroy()
	}
	fs.slots = nil
}

// FramesInFlight returns N.
func (fs *FrameSynchronizer) FramesInFlight() int { return fs.n }

// Current returns the index of the current slot.
func (fs *FrameSynchronizer) Current() int { return fs.current }

// Slot returns slot i.
func (fs *FrameSynchronizer) Slot(i int) *FrameSlot { return fs.slots[i] }

// Slots returns the number of allocated slots.
func (fs *FrameSynchronizer) Slots() int { return len(fs.slots) }

// WaitForSlot blocks until the last submission of slot i completed, then
// resets its fence. Until slot i is submitted again its resources belong
// to the caller. A wait that exceeds the timeout means the device is lost.
func (fs *FrameSynchronizer) WaitForSlot(i int) error {
	f := []driver.Fence{fs.slots[i].Fence}
	if err := fs.wait(f); err != nil {
		return err
	}
	if err := fs.dev.ResetFences(f); err != nil {
		return fmt.Errorf("failed to reset fence of slot %d: %w", i, err)
	}
	return nil
}

// WaitAll blocks until every slot's last submission completed. Fences are
// left signaled.
func (fs *FrameSynchronizer) WaitAll() error {
	fences := make([]driver.Fence, len(fs.slots))
	for i, s := range fs.slots {
		fences[i] = s.Fence
	}
	return fs.wait(fences)
}

func (fs *FrameSynchronizer) wait(fences []driver.Fence) error {
	return WaitFences(fs.dev, fences, fs.timeout)
}

// WaitFences waits for every fence to be signaled. A wait that exceeds the
// timeout is reported as core.ErrDeviceLost.
func WaitFences(dev driver.Device, fences []driver.Fence, timeout time.Duration) error {
	err := dev.WaitForFences(fences, timeout)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, driver.ErrTimeout):
		core.LogError("fence wait exceeded %s", timeout)
		return fmt.Errorf("fence wait exceeded %s: %w", timeout, core.ErrDeviceLost)
	case errors.Is(err, driver.ErrDeviceLost):
		return fmt.Errorf("fence wait: %w", core.ErrDeviceLost)
	}
	return fmt.Errorf("fence wait: %w", err)
}

// Rearm replaces the fence of slot i, reset by WaitForSlot but never
// submitted, with a signaled one so the next wait does not block forever.
func (fs *FrameSynchronizer) Rearm(i int) error {
	f, err := fs.dev.CreateFence(true)
	if err != nil {
		return fmt.Errorf("failed to create fence: %w", err)
	}
	fs.slots[i].Fence.Destroy()
	fs.slots[i].Fence = f
	return nil
}

// AdvanceSlot makes (current+1) mod N current and returns it.
func (fs *FrameSynchronizer) AdvanceSlot() int {
	fs.current = (fs.current + 1) % fs.n
	return fs.current
}

// Destroy releases every slot.
func (fs *FrameSynchronizer) Destroy() {
	fs.release()
}
