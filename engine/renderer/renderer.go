// Package renderer selects one of the frame orchestrators behind a common
// interface.
package renderer

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/gbuffer/engine/renderer/compute"
	"github.com/spaghettifunk/gbuffer/engine/renderer/deferred"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
	"github.com/spaghettifunk/gbuffer/engine/renderer/forward"
)

// Renderer is what the application loop drives. DrawFrame returns
// core.ErrSwapchainBooting for skipped frames; any other error is fatal.
type Renderer interface {
	InitGraphics(surface driver.Surface, extent driver.Extent2D) error
	LoadScene(s deferred.Scene) error
	DrawFrame(in deferred.FrameInput) error
	Resize(extent driver.Extent2D)
	ReloadShaders() error
	Uniforms() *deferred.UniformParams
	Cleanup()
}

type RendererType uint8

const (
	Deferred RendererType = iota
	Forward
	Compute
)

func (t RendererType) String() string {
	switch t {
	case Deferred:
		return "deferred"
	case Forward:
		return "forward"
	case Compute:
		return "compute"
	}
	return fmt.Sprintf("RendererType(%d)", uint8(t))
}

// ParseType maps a configuration value to a RendererType.
func ParseType(s string) (RendererType, error) {
	switch s {
	case "deferred", "":
		return Deferred, nil
	case "forward":
		return Forward, nil
	case "compute":
		return Compute, nil
	}
	return 0, fmt.Errorf("unknown renderer kind '%s'", s)
}

// Options is the union of the options of every renderer. Each renderer
// reads only the fields that apply to it.
type Options struct {
	FramesInFlight       int
	VSync                bool
	FenceTimeout         time.Duration
	WaitIdleAfterPresent bool
	// ShaderDir holds the compiled shaders of every renderer.
	ShaderDir  string
	LoadShader deferred.ShaderLoader
	Uniforms   *deferred.UniformParams
	// Overlay is drawn by the deferred renderer only.
	Overlay deferred.Overlay
	// Texture is sampled by the forward renderer only.
	Texture string
	// ScanLength and VerifyScan are read by the compute renderer only.
	ScanLength uint32
	VerifyScan bool
}

var (
	_ Renderer = (*deferred.Renderer)(nil)
	_ Renderer = (*forward.Renderer)(nil)
	_ Renderer = (*compute.Renderer)(nil)
)

// New creates a renderer of the given type. InitGraphics must be called
// before anything else.
func New(t RendererType, ctx deferred.GPUContext, opts Options) (Renderer, error) {
	switch t {
	case Deferred:
		r, err := deferred.New(ctx, deferred.Options{
			FramesInFlight:       opts.FramesInFlight,
			VSync:                opts.VSync,
			FenceTimeout:         opts.FenceTimeout,
			WaitIdleAfterPresent: opts.WaitIdleAfterPresent,
			Shaders:              deferred.DefaultShaders(opts.ShaderDir),
			LoadShader:           opts.LoadShader,
			Overlay:              opts.Overlay,
			Uniforms:             opts.Uniforms,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	case Forward:
		r, err := forward.New(ctx, forward.Options{
			FramesInFlight:       opts.FramesInFlight,
			VSync:                opts.VSync,
			FenceTimeout:         opts.FenceTimeout,
			WaitIdleAfterPresent: opts.WaitIdleAfterPresent,
			Shaders:              forward.DefaultShaders(opts.ShaderDir),
			LoadShader:           opts.LoadShader,
			Texture:              opts.Texture,
			Uniforms:             opts.Uniforms,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	case Compute:
		r, err := compute.New(ctx, compute.Options{
			Length:       opts.ScanLength,
			FenceTimeout: opts.FenceTimeout,
			Shaders:      compute.DefaultShaders(opts.ShaderDir),
			LoadShader:   opts.LoadShader,
			Verify:       opts.VerifyScan,
			Uniforms:     opts.Uniforms,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("unsupported renderer type %s", t)
}
