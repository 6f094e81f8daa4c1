package deferred

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// ErrNeedsRecreate is returned by AcquireNext while the swapchain is out
// of date. Recreate must succeed before the next acquire.
var ErrNeedsRecreate = errors.New("swapchain needs to be recreated")

// ErrZeroExtent is returned by Create and Recreate while the surface has no
// area, for instance when the window is minimized.
var ErrZeroExtent = errors.New("surface extent has zero area")

type SwapchainState int

const (
	SwapchainUninitialized SwapchainState = iota
	SwapchainReady
	SwapchainOutOfDate
)

func (s SwapchainState) String() string {
	switch s {
	case SwapchainReady:
		return "ready"
	case SwapchainOutOfDate:
		return "out of date"
	}
	return "uninitialized"
}

// SwapchainInfo describes the swapchain to components that depend on it.
type SwapchainInfo struct {
	Format     driver.Format
	Extent     driver.Extent2D
	ImageCount int
	RenderPass driver.RenderPass
}

// SwapchainListener is notified after every successful recreation.
type SwapchainListener func(SwapchainInfo) error

type SwapchainOptions struct {
	// ImageCount is the desired number of images. It is raised to
	// FramesInFlight when lower.
	ImageCount     uint32
	FramesInFlight int
	VSync          bool
	FenceTimeout   time.Duration
	AcquireTimeout time.Duration
	// WaitIdleAfterPresent drains the graphics queue after every present.
	WaitIdleAfterPresent bool
}

// SwapchainCoordinator owns the presentable images, the screen render pass
// with its depth attachment and framebuffers, and the frame slots, and
// rebuilds all of them together when the surface changes.
type SwapchainCoordinator struct {
	ctx     GPUContext
	surface driver.Surface
	opts    SwapchainOptions
	state   SwapchainState

	swapchain    driver.Swapchain
	views        []driver.ImageView
	depthOwner   uuid.UUID
	depth        *Attachment
	renderPass   driver.RenderPass
	framebuffers []driver.Framebuffer
	sync         *FrameSynchronizer

	suboptimal bool
	listeners  []SwapchainListener
}

func NewSwapchainCoordinator(ctx GPUContext, surface driver.Surface, opts SwapchainOptions) *SwapchainCoordinator {
	if opts.FramesInFlight < 1 {
		opts.FramesInFlight = 2
	}
	if opts.ImageCount < uint32(opts.FramesInFlight) {
		opts.ImageCount = uint32(opts.FramesInFlight)
	}
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = DefaultFenceTimeout
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = time.Duration(math.MaxInt64)
	}
	return &SwapchainCoordinator{
		ctx:        ctx,
		surface:    surface,
		opts:       opts,
		depthOwner: uuid.New(),
		sync:       &FrameSynchronizer{dev: ctx.Device, n: opts.FramesInFlight, timeout: opts.FenceTimeout},
	}
}

// Create builds the swapchain and everything that depends on it.
func (sc *SwapchainCoordinator) Create(extent driver.Extent2D) error {
	if sc.state != SwapchainUninitialized {
		return fmt.Errorf("swapchain already created")
	}
	if extent.IsZero() {
		return ErrZeroExtent
	}
	if err := sc.build(extent); err != nil {
		return err
	}
	sc.state = SwapchainReady
	core.LogInfo("swapchain created: %d images %dx%d", len(sc.framebuffers), extent.Width, extent.Height)
	return nil
}

// OnChange registers a listener called after every recreation, in
// registration order.
func (sc *SwapchainCoordinator) OnChange(l SwapchainListener) {
	sc.listeners = append(sc.listeners, l)
}

func (sc *SwapchainCoordinator) State() SwapchainState { return sc.state }

func (sc *SwapchainCoordinator) Sync() *FrameSynchronizer { return sc.sync }

func (sc *SwapchainCoordinator) RenderPass() driver.RenderPass { return sc.renderPass }

func (sc *SwapchainCoordinator) Framebuffers() int { return len(sc.framebuffers) }

func (sc *SwapchainCoordinator) Framebuffer(i uint32) driver.Framebuffer { return sc.framebuffers[i] }

func (sc *SwapchainCoordinator) Swapchain() driver.Swapchain { return sc.swapchain }

func (sc *SwapchainCoordinator) DepthAttachment() *Attachment { return sc.depth }

// Extent returns the extent of the current swapchain, or zero when there is
// none.
func (sc *SwapchainCoordinator) Extent() driver.Extent2D {
	if sc.swapchain == nil {
		return driver.Extent2D{}
	}
	return sc.swapchain.Extent()
}

// Info describes the current swapchain.
func (sc *SwapchainCoordinator) Info() SwapchainInfo {
	if sc.swapchain == nil {
		return SwapchainInfo{}
	}
	return SwapchainInfo{
		Format:     sc.swapchain.Format(),
		Extent:     sc.swapchain.Extent(),
		ImageCount: len(sc.framebuffers),
		RenderPass: sc.renderPass,
	}
}

// ClearValues returns black for the color attachment and 1.0 for depth.
func (sc *SwapchainCoordinator) ClearValues() []driver.ClearValue {
	return []driver.ClearValue{{Color: [4]float32{0, 0, 0, 1}}, {Depth: 1}}
}

// AcquireNext acquires the next image and signals the image-available
// semaphore of the given slot. A suboptimal swapchain is used as is and
// recreated after the next present.
func (sc *SwapchainCoordinator) AcquireNext(slot int) (uint32, error) {
	if sc.state != SwapchainReady {
		return 0, ErrNeedsRecreate
	}
	idx, err := sc.swapchain.AcquireNext(sc.opts.AcquireTimeout, sc.sync.Slot(slot).ImageAvailable)
	switch {
	case err == nil:
		return idx, nil
	case errors.Is(err, driver.ErrSuboptimal):
		sc.suboptimal = true
		return idx, nil
	case errors.Is(err, driver.ErrOutOfDate):
		sc.state = SwapchainOutOfDate
		return 0, err
	}
	return 0, fmt.Errorf("failed to acquire swapchain image: %w", err)
}

// Present queues image idx for presentation once wait is signaled.
// It returns driver.ErrOutOfDate or driver.ErrSuboptimal when the
// swapchain must be recreated.
func (sc *SwapchainCoordinator) Present(idx uint32, wait driver.Semaphore) error {
	err := sc.ctx.GraphicsQueue.Present(sc.swapchain, idx, []driver.Semaphore{wait})
	if err == nil && sc.suboptimal {
		err = driver.ErrSuboptimal
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, driver.ErrOutOfDate), errors.Is(err, driver.ErrSuboptimal):
		sc.state = SwapchainOutOfDate
		return err
	}
	return fmt.Errorf("failed to present swapchain image: %w", err)
}

// FrameSteps are the parts of a frame that differ between renderers.
type FrameSteps struct {
	// Prepare runs once the slot is free and before the image is acquired.
	Prepare func() error
	// Submit records and submits the work of the frame. Its last submission
	// waits on ImageAvailable and signals RenderingFinished and the fence.
	Submit func(slot *FrameSlot, imageIndex uint32) error
}

// RunFrame renders and presents one frame at the surface extent. It
// returns core.ErrSwapchainBooting when the frame was skipped because the
// swapchain had to be recreated; the frame slot advances either way. Any
// other error is fatal.
func (sc *SwapchainCoordinator) RunFrame(extent driver.Extent2D, steps FrameSteps) error {
	sync := sc.sync
	if sc.state != SwapchainReady {
		if err := sc.recreateAt(extent); err != nil {
			if errors.Is(err, core.ErrSwapchainBooting) {
				sync.AdvanceSlot()
			}
			return err
		}
	}

	slot := sync.Current()
	if err := sync.WaitForSlot(slot); err != nil {
		return err
	}
	if steps.Prepare != nil {
		if err := steps.Prepare(); err != nil {
			return err
		}
	}

	idx, err := sc.AcquireNext(slot)
	if err != nil {
		if !errors.Is(err, driver.ErrOutOfDate) && !errors.Is(err, ErrNeedsRecreate) {
			return err
		}
		// The fence was reset but nothing will signal it.
		if err := sync.Rearm(slot); err != nil {
			return err
		}
		sync.AdvanceSlot()
		if err := sc.recreateAt(extent); err != nil {
			return err
		}
		return core.ErrSwapchainBooting
	}

	fs := sync.Slot(slot)
	if err := steps.Submit(fs, idx); err != nil {
		return err
	}

	presentErr := sc.Present(idx, fs.RenderingFinished)
	sync.AdvanceSlot()
	if presentErr != nil {
		if !errors.Is(presentErr, driver.ErrOutOfDate) && !errors.Is(presentErr, driver.ErrSuboptimal) {
			return presentErr
		}
		if err := sc.recreateAt(extent); err != nil {
			return err
		}
	}
	if sc.opts.WaitIdleAfterPresent {
		if err := sc.ctx.GraphicsQueue.WaitIdle(); err != nil {
			return fmt.Errorf("failed to wait for queue idle: %w", err)
		}
	}
	return nil
}

// recreateAt defers recreation while the surface has no area.
func (sc *SwapchainCoordinator) recreateAt(extent driver.Extent2D) error {
	err := sc.Recreate(extent)
	if errors.Is(err, ErrZeroExtent) {
		core.LogDebug("surface has zero area, swapchain recreation deferred")
		return core.ErrSwapchainBooting
	}
	return err
}

// Invalidate marks the swapchain out of date, for instance after the window
// was resized.
func (sc *SwapchainCoordinator) Invalidate() {
	if sc.state == SwapchainReady {
		sc.state = SwapchainOutOfDate
	}
}

// Recreate drains the device, destroys the swapchain with its framebuffers,
// depth attachment, render pass and frame slots, builds all of them again at
// extent and notifies the listeners. If building fails everything built so
// far is released and the coordinator stays out of date.
func (sc *SwapchainCoordinator) Recreate(extent driver.Extent2D) error {
	if sc.state == SwapchainUninitialized {
		return fmt.Errorf("recreate before create")
	}
	if extent.IsZero() {
		sc.state = SwapchainOutOfDate
		return ErrZeroExtent
	}
	if err := sc.ctx.Device.WaitIdle(); err != nil {
		return fmt.Errorf("failed to wait for device idle: %w", err)
	}
	sc.state = SwapchainOutOfDate
	sc.teardown()
	if err := sc.build(extent); err != nil {
		return fmt.Errorf("failed to recreate swapchain: %w", err)
	}
	sc.suboptimal = false
	sc.state = SwapchainReady
	core.LogInfo("swapchain recreated: %d images %dx%d", len(sc.framebuffers), extent.Width, extent.Height)

	info := sc.Info()
	for _, l := range sc.listeners {
		if err := l(info); err != nil {
			return fmt.Errorf("swapchain listener: %w", err)
		}
	}
	return nil
}

func (sc *SwapchainCoordinator) build(extent driver.Extent2D) (err error) {
	var rel releaser
	defer rel.onError(&err)

	swapchain, err := sc.ctx.Device.CreateSwapchain(driver.SwapchainInfo{
		Surface:    sc.surface,
		Extent:     extent,
		ImageCount: sc.opts.ImageCount,
		VSync:      sc.opts.VSync,
	})
	if err != nil {
		return fmt.Errorf("failed to create swapchain: %w", err)
	}
	rel.push(swapchain)
	images := swapchain.Images()
	if len(images) < sc.opts.FramesInFlight {
		return fmt.Errorf("swapchain has %d images, need at least %d", len(images), sc.opts.FramesInFlight)
	}
	// The surface may impose an extent different from the requested one.
	extent = swapchain.Extent()

	views := make([]driver.ImageView, len(images))
	for i, img := range images {
		v, err := sc.ctx.Device.CreateImageView(img, driver.ImageViewInfo{Format: swapchain.Format(), Aspect: driver.AspectColor})
		if err != nil {
			return fmt.Errorf("failed to create swapchain image view: %w", err)
		}
		rel.push(v)
		views[i] = v
	}

	depthFormat, err := selectDepthFormat(sc.ctx.Device)
	if err != nil {
		return err
	}
	depth, err := newAttachment(sc.ctx, sc.depthOwner, depthFormat, AttachmentDepth, extent)
	if err != nil {
		return err
	}
	rel.pushFunc(func() { depth.destroy(sc.depthOwner) })

	rp, err := sc.ctx.Device.CreateRenderPass(screenRenderPass(swapchain.Format(), depthFormat))
	if err != nil {
		return fmt.Errorf("failed to create screen render pass: %w", err)
	}
	rel.push(rp)

	framebuffers := make([]driver.Framebuffer, len(views))
	for i, v := range views {
		fb, err := sc.ctx.Device.CreateFramebuffer(driver.FramebufferInfo{
			RenderPass:  rp,
			Attachments: []driver.ImageView{v, depth.View},
			Extent:      extent,
		})
		if err != nil {
			return fmt.Errorf("failed to create screen framebuffer %d: %w", i, err)
		}
		rel.push(fb)
		framebuffers[i] = fb
	}

	if err = sc.sync.allocate(); err != nil {
		return err
	}

	sc.swapchain = swapchain
	sc.views = views
	sc.depth = depth
	sc.renderPass = rp
	sc.framebuffers = framebuffers
	return nil
}

func screenRenderPass(color, depth driver.Format) driver.RenderPassInfo {
	return driver.RenderPassInfo{
		Attachments: []driver.AttachmentInfo{
			{
				Format:  color,
				Load:    driver.LoadClear,
				Store:   driver.StoreStore,
				Initial: driver.LayoutUndefined,
				Final:   driver.LayoutPresent,
			},
			{
				Format:  depth,
				Load:    driver.LoadClear,
				Store:   driver.StoreDontCare,
				Initial: driver.LayoutUndefined,
				Final:   driver.LayoutDepthStencilAttachment,
			},
		},
		Color: []int{0},
		Depth: 1,
		Dependencies: []driver.SubpassDependency{{
			Src:       driver.SubpassExternal,
			Dst:       0,
			SrcStage:  driver.StageColorAttachmentOutput | driver.StageEarlyFragmentTests,
			DstStage:  driver.StageColorAttachmentOutput | driver.StageEarlyFragmentTests,
			DstAccess: driver.AccessColorWrite | driver.AccessDepthStencilWrite,
		}},
	}
}

// teardown destroys in the reverse order of build. The device must be idle.
func (sc *SwapchainCoordinator) teardown() {
	sc.sync.release()
	for _, fb := range sc.framebuffers {
		fb.Destroy()
	}
	sc.framebuffers = nil
	if sc.renderPass != nil {
		sc.renderPass.Destroy()
		sc.renderPass = nil
	}
	if sc.depth != nil {
		sc.depth.destroy(sc.depthOwner)
		sc.depth = nil
	}
	for _, v := range sc.views {
		v.Destroy()
	}
	sc.views = nil
	if sc.swapchain != nil {
		sc.swapchain.Destroy()
		sc.swapchain = nil
	}
}

// Destroy drains the device and releases everything.
func (sc *SwapchainCoordinator) Destroy() {
	if sc.state == SwapchainUninitialized {
		return
	}
	if err := sc.ctx.Device.WaitIdle(); err != nil {
		core.LogError("swapchain destroy: %s", err)
	}
	sc.teardown()
	sc.state = SwapchainUninitialized
}
