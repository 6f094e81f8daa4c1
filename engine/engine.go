package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/gbuffer/engine/assets"
	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/platform"
	"github.com/spaghettifunk/gbuffer/engine/renderer"
	"github.com/spaghettifunk/gbuffer/engine/renderer/deferred"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
	"github.com/spaghettifunk/gbuffer/engine/renderer/vulkan"
	"github.com/spaghettifunk/gbuffer/engine/scene"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	config       *core.Config
	gameInstance *Game
	isRunning    atomic.Bool
	isSuspended  bool

	bus      *core.EventBus
	platform *platform.Platform
	gpu      *vulkan.Context
	renderer renderer.Renderer
	scene    *scene.Scene
	watcher  *assets.ShaderWatcher

	width   uint32
	height  uint32
	clock   *core.Clock
	metrics *core.FrameMetrics

	lastTime float64
	// reload is set by the reload key and consumed between frames.
	reload *assets.ReloadRequest
}

func New(g *Game) (*Engine, error) {
	if g.Config == nil {
		return nil, fmt.Errorf("game has no configuration")
	}
	if err := g.Config.Validate(); err != nil {
		return nil, err
	}
	if !core.SetLogLevel(g.Config.Log.Level) {
		core.LogWarn("unknown log level '%s'", g.Config.Log.Level)
	}
	bus := core.NewEventBus()
	e := &Engine{
		currentStage: EngineStageUninitialized,
		config:       g.Config,
		gameInstance: g,
		bus:          bus,
		platform:     platform.New(bus),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		width:        g.Config.Window.Width,
		height:       g.Config.Window.Height,
	}
	e.isRunning.Store(true)
	return e, nil
}

// RequestQuit stops the main loop after the current frame. It is safe to
// call from any goroutine.
func (e *Engine) RequestQuit() {
	e.isRunning.Store(false)
}

// Initialize opens the window, creates the GPU context, the renderer and
// the scene, then initializes the game.
func (e *Engine) Initialize() (err error) {
	e.currentStage = EngineStageInitializing
	cfg := e.config

	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.bus.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.bus.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	if err := e.platform.Startup(cfg.Window); err != nil {
		return err
	}
	e.gpu, err = vulkan.NewContext(vulkan.Config{
		AppName:    cfg.Window.Name,
		Validation: cfg.Renderer.Validation,
		Extensions: e.platform.RequiredExtensions(),
	}, e.platform.CreateSurface)
	if err != nil {
		return err
	}

	kind, err := renderer.ParseType(cfg.Renderer.Kind)
	if err != nil {
		return err
	}
	if cfg.Renderer.GUI {
		core.LogWarn("no GUI overlay is linked in, drawing without one")
	}
	uniforms := uniformsFromConfig(cfg.Light)
	e.renderer, err = renderer.New(kind, e.gpu.GPU(), renderer.Options{
		FramesInFlight:       int(cfg.Renderer.FramesInFlight),
		VSync:                cfg.Renderer.VSync,
		FenceTimeout:         cfg.Renderer.FenceTimeout.Duration,
		WaitIdleAfterPresent: cfg.Renderer.WaitIdleAfterPresent,
		ShaderDir:            cfg.Shaders.Dir,
		Uniforms:             &uniforms,
		Texture:              cfg.Scene.Texture,
		ScanLength:           cfg.Renderer.ScanLength,
		VerifyScan:           cfg.Renderer.VerifyScan,
	})
	if err != nil {
		return err
	}
	extent := e.platform.FramebufferExtent()
	e.width, e.height = extent.Width, extent.Height
	if err := e.renderer.InitGraphics(e.gpu.Surface(), extent); err != nil {
		return err
	}

	e.scene, err = scene.NewCubeRow(e.gpu.GPU(), int(cfg.Scene.Instances), cfg.Scene.Spacing)
	if err != nil {
		return err
	}
	if err := e.renderer.LoadScene(e.scene); err != nil {
		return err
	}

	if cfg.Shaders.Watch {
		if e.watcher, err = assets.NewShaderWatcher(cfg.Shaders.Dir); err != nil {
			core.LogWarn("shader hot reload disabled: %s", err)
			e.watcher = nil
		}
	}

	g := e.gameInstance
	g.Bus = e.bus
	g.Input = e.platform.Input()
	g.Renderer = e.renderer
	g.Scene = e.scene
	if g.FnInitialize != nil {
		if err := g.FnInitialize(); err != nil {
			return err
		}
	}
	if g.FnOnResize != nil {
		if err := g.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized with the %s renderer", kind)
	return nil
}

func uniformsFromConfig(l core.LightConfig) deferred.UniformParams {
	u := deferred.DefaultUniformParams()
	if dir := mgl32.Vec3(l.Direction); dir.Len() > 0 {
		u.LightDir = dir.Normalize()
	}
	u.LightPos = mgl32.Vec3(l.Position)
	u.BaseColor = mgl32.Vec3(l.BaseColor)
	u.AnimateLightColor = l.AnimateColor
	return u
}

// Run drives the frame loop until the window closes or a fatal error
// occurs.
func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		e.platform.PumpMessages()
		if e.platform.ShouldClose() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			e.platform.WaitMessages()
			continue
		}
		if err := e.reloadShaders(); err != nil {
			return err
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		g := e.gameInstance
		if g.FnUpdate != nil {
			if err := g.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				return err
			}
		}
		packet := &FramePacket{DeltaTime: delta, Time: float32(currentTime), ProjView: mgl32.Ident4()}
		if g.FnRender != nil {
			if err := g.FnRender(packet); err != nil {
				core.LogError("game render failed, shutting down: %s", err)
				return err
			}
		}

		err := e.renderer.DrawFrame(deferred.FrameInput{
			Time:        packet.Time,
			ProjView:    packet.ProjView,
			OverlayData: packet.OverlayData,
		})
		switch {
		case errors.Is(err, core.ErrSwapchainBooting):
			core.LogDebug("frame skipped: %s", err)
		case err != nil:
			core.LogError("draw frame failed, shutting down: %s", err)
			return err
		}

		if e.metrics.Update(time.Since(frameStart).Seconds()) {
			core.LogDebug("%.0f fps, %.2f ms per frame", e.metrics.FPS(), e.metrics.FrameTime())
		}
		e.lastTime = currentTime
	}
	return nil
}

// reloadShaders serves a pending reload request from the keyboard or the
// shader watcher. Compilation and shader read failures keep the current
// pipelines.
func (e *Engine) reloadShaders() error {
	req := e.reload
	e.reload = nil
	if e.watcher != nil {
		select {
		case <-e.watcher.Notify():
			if r, ok := e.watcher.Take(); ok {
				if req == nil {
					req = &r
				} else {
					req.Compile = req.Compile || r.Compile
				}
			}
		default:
		}
	}
	if req == nil {
		return nil
	}

	if req.Compile {
		if err := assets.CompileShaders(e.config.Shaders.CompileCommand); err != nil {
			core.LogError("%s", err)
			return nil
		}
	}
	err := e.renderer.ReloadShaders()
	if errors.Is(err, deferred.ErrNeedsRecreate) {
		// Retried once a frame has recreated the swapchain.
		req.Compile = false
		e.reload = req
		return nil
	}
	if errors.Is(err, deferred.ErrShaderLoad) {
		core.LogError("shader reload failed, keeping the current pipelines: %s", err)
		return nil
	}
	return err
}

// Shutdown releases everything Initialize created, in reverse order.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	if g := e.gameInstance; g.FnShutdown != nil {
		if err := g.FnShutdown(); err != nil {
			core.LogError("game shutdown: %s", err)
		}
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			core.LogWarn("%s", err)
		}
	}
	if e.renderer != nil {
		e.renderer.Cleanup()
	}
	if e.scene != nil {
		e.scene.Destroy()
	}
	if e.gpu != nil {
		e.gpu.Destroy()
	}
	e.platform.Shutdown()
	core.LogInfo("engine shut down")
	return nil
}

// GetFramebufferSize returns the width and height of the framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down")
		e.RequestQuit()
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	switch core.KeyCode(data.Data.U16[0]) {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		return true
	case core.KEY_R:
		core.LogInfo("shader reload requested")
		e.reload = &assets.ReloadRequest{Compile: true}
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("window resize: %d, %d", width, height)

	if width == 0 || height == 0 {
		core.LogInfo("window minimized, suspending application")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("window restored, resuming application")
		e.isSuspended = false
	}
	if e.renderer != nil {
		e.renderer.Resize(driver.Extent2D{Width: width, Height: height})
	}
	if g := e.gameInstance; g.FnOnResize != nil {
		if err := g.FnOnResize(width, height); err != nil {
			core.LogError("game resize: %s", err)
		}
	}
	return false
}
