// Package platform owns the window and turns its callbacks into engine
// events.
package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window
	bus    *core.EventBus
	input  *core.Input
}

func New(bus *core.EventBus) *Platform {
	return &Platform{bus: bus, input: core.NewInput(bus)}
}

// Startup creates a resizable window without a client API, ready for a
// Vulkan surface.
func (p *Platform) Startup(cfg core.WindowConfig) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return fmt.Errorf("glfw reports no Vulkan support")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Name, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("failed to create window: %w", err)
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(cfg.PosX), int(cfg.PosY))
	p.Window.Show()
	core.LogInfo("window '%s' created %dx%d", cfg.Name, cfg.Width, cfg.Height)
	return nil
}

// RequiredExtensions lists the instance extensions the window surface
// needs.
func (p *Platform) RequiredExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface creates a Vulkan surface for the window. It matches the
// signature expected by vulkan.NewContext.
func (p *Platform) CreateSurface(instance interface{}, allocator unsafe.Pointer) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, allocator)
}

// FramebufferExtent returns the drawable size in pixels.
func (p *Platform) FramebufferExtent() driver.Extent2D {
	w, h := p.Window.GetFramebufferSize()
	return driver.Extent2D{Width: uint32(w), Height: uint32(h)}
}

// Input returns the keyboard state fed by the window.
func (p *Platform) Input() *core.Input { return p.input }

func (p *Platform) ShouldClose() bool { return p.Window.ShouldClose() }

// PumpMessages processes pending window events. Callbacks run inside.
func (p *Platform) PumpMessages() {
	p.input.Update()
	glfw.PollEvents()
}

// WaitMessages blocks until at least one event arrives, for instance while
// the window is minimized.
func (p *Platform) WaitMessages() {
	glfw.WaitEvents()
}

func (p *Platform) Shutdown() {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	code, ok := translateKey(key)
	if !ok || action == glfw.Repeat {
		return
	}
	p.input.ProcessKey(code, action == glfw.Press)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	var ctx core.EventContext
	ctx.Data.U32[0] = uint32(width)
	ctx.Data.U32[1] = uint32(height)
	p.bus.Fire(core.EVENT_CODE_RESIZED, p, ctx)
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
}
