// Package forward draws a single full-screen pass straight into the
// swapchain image. It shares the swapchain, synchronization, pipeline and
// descriptor building blocks of the deferred renderer.
package forward

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spaghettifunk/gbuffer/engine/assets"
	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/deferred"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

type ShaderSet struct {
	Vert string
	Frag string
}

// DefaultShaders returns the compiled shaders expected in dir.
func DefaultShaders(dir string) ShaderSet {
	return ShaderSet{
		Vert: filepath.Join(dir, "quad.vert.spv"),
		Frag: filepath.Join(dir, "quad.frag.spv"),
	}
}

type Options struct {
	FramesInFlight       int
	VSync                bool
	FenceTimeout         time.Duration
	WaitIdleAfterPresent bool
	Shaders              ShaderSet
	// LoadShader defaults to assets.LoadSPIRV.
	LoadShader deferred.ShaderLoader
	// Texture is sampled at binding 1. When empty or unreadable a white
	// texel is used instead.
	Texture  string
	Uniforms *deferred.UniformParams
}

// Renderer draws a full-screen triangle shaded from the uniform block and
// one texture. It is not safe for concurrent use.
type Renderer struct {
	ctx    deferred.GPUContext
	opts   Options
	extent driver.Extent2D

	screen   *deferred.SwapchainCoordinator
	uniforms *deferred.UniformBuffer
	texture  *Texture
	binder   *deferred.DescriptorBinder
	pipeline *deferred.PipelineBuilder

	set    driver.DescriptorSet
	layout driver.DescriptorSetLayout
	push   PushConstants
	scene  deferred.Scene
}

func New(ctx deferred.GPUContext, opts Options) (*Renderer, error) {
	if ctx.Device == nil || ctx.GraphicsQueue == nil {
		return nil, fmt.Errorf("gpu context is missing a device or a graphics queue")
	}
	if opts.FramesInFlight < 1 {
		return nil, fmt.Errorf("frames in flight must be at least 1, got %d", opts.FramesInFlight)
	}
	if opts.LoadShader == nil {
		opts.LoadShader = assets.LoadSPIRV
	}
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = deferred.DefaultFenceTimeout
	}
	return &Renderer{ctx: ctx, opts: opts}, nil
}

func (r *Renderer) InitGraphics(surface driver.Surface, extent driver.Extent2D) (err error) {
	defer func() {
		if err != nil {
			r.Cleanup()
		}
	}()
	r.extent = extent

	r.screen = deferred.NewSwapchainCoordinator(r.ctx, surface, deferred.SwapchainOptions{
		FramesInFlight: r.opts.FramesInFlight,
		VSync:          r.opts.VSync,
		FenceTimeout:   r.opts.FenceTimeout,

		WaitIdleAfterPresent: r.opts.WaitIdleAfterPresent,
	})
	if err = r.screen.Create(extent); err != nil {
		return err
	}
	if r.uniforms, err = deferred.NewUniformBuffer(r.ctx); err != nil {
		return err
	}
	if r.opts.Uniforms != nil {
		r.uniforms.Params = *r.opts.Uniforms
		r.uniforms.Flush()
	}
	if r.texture, err = r.loadTexture(r.opts.Texture); err != nil {
		return err
	}
	r.binder, err = deferred.NewDescriptorBinder(r.ctx, driver.DescriptorPoolInfo{
		MaxSets: 1,
		Sizes: []driver.DescriptorPoolSize{
			{Type: driver.DescriptorUniformBuffer, Count: 1},
			{Type: driver.DescriptorCombinedImageSampler, Count: 1},
		},
	})
	if err != nil {
		return err
	}
	if err = r.bindSet(); err != nil {
		return err
	}
	r.pipeline = deferred.NewPipelineBuilder(r.ctx, r.opts.LoadShader)
	_, err = r.pipeline.Build(deferred.PipelineDesc{
		Name: "forward",
		Shaders: deferred.ShaderPaths{
			driver.StageVertex:   r.opts.Shaders.Vert,
			driver.StageFragment: r.opts.Shaders.Frag,
		},
		SetLayouts:       []driver.DescriptorSetLayout{r.layout},
		PushConstantSize: PushConstantsSize,
		PushStages:       driver.StageVertex | driver.StageFragment,
		RenderPass:       r.screen.RenderPass(),
		Blend:            []driver.BlendState{{WriteMask: driver.ColorAll}},
		Cull:             driver.CullNone,
	})
	if err != nil {
		return err
	}
	r.screen.OnChange(r.onSwapchainChanged)
	core.LogInfo("forward renderer initialized with %d frames in flight", r.opts.FramesInFlight)
	return nil
}

// loadTexture decodes path and uploads it. Decoding failures fall back to a
// single white texel.
func (r *Renderer) loadTexture(path string) (*Texture, error) {
	if path != "" {
		img, err := assets.LoadImage(path, true)
		if err == nil {
			return NewTexture(r.ctx, driver.Extent2D{Width: img.Width, Height: img.Height}, img.Pixels, r.opts.FenceTimeout)
		}
		core.LogWarn("failed loading texture from %s: %s", path, err)
	}
	return NewTexture(r.ctx, driver.Extent2D{Width: 1, Height: 1}, whitePixel, r.opts.FenceTimeout)
}

// bindSet builds the only set: uniforms at binding 0, the texture at
// binding 1.
func (r *Renderer) bindSet() error {
	var err error
	b := r.binder
	b.BeginSet(driver.StageVertex | driver.StageFragment)
	b.BindBuffer(0, r.uniforms.Buffer(), driver.DescriptorUniformBuffer)
	b.BindImage(1, r.texture.View, r.texture.Sampler, driver.DescriptorCombinedImageSampler, driver.LayoutShaderRead)
	if r.set, r.layout, err = b.EndSet(); err != nil {
		return fmt.Errorf("forward descriptor set: %w", err)
	}
	return nil
}

// SetTexture replaces the sampled texture with the image at path. When the
// image cannot be decoded the current texture is kept and a warning logged.
func (r *Renderer) SetTexture(path string) error {
	img, err := assets.LoadImage(path, true)
	if err != nil {
		core.LogWarn("failed loading texture from %s: %s", path, err)
		return nil
	}
	if r.screen.State() != deferred.SwapchainReady {
		return deferred.ErrNeedsRecreate
	}
	if err := r.screen.Sync().WaitAll(); err != nil {
		return err
	}
	tex, err := NewTexture(r.ctx, driver.Extent2D{Width: img.Width, Height: img.Height}, img.Pixels, r.opts.FenceTimeout)
	if err != nil {
		return err
	}
	r.texture.Destroy()
	r.texture = tex
	if err := r.binder.Reset(); err != nil {
		return err
	}
	if err := r.bindSet(); err != nil {
		return err
	}
	r.pipeline.SetLayouts([]driver.DescriptorSetLayout{r.layout})
	_, err = r.pipeline.Rebuild()
	return err
}

// LoadScene keeps a reference to s. The full-screen pass does not read
// scene geometry.
func (r *Renderer) LoadScene(s deferred.Scene) error {
	if r.screen == nil {
		return fmt.Errorf("load scene before InitGraphics")
	}
	if r.screen.State() != deferred.SwapchainReady {
		return deferred.ErrNeedsRecreate
	}
	r.scene = s
	core.LogDebug("forward renderer ignores the geometry of %d instances", s.InstanceCount())
	return nil
}

// Push returns the push constants sent with every frame.
func (r *Renderer) Push() *PushConstants { return &r.push }

func (r *Renderer) Uniforms() *deferred.UniformParams { return &r.uniforms.Params }

func (r *Renderer) Swapchain() *deferred.SwapchainCoordinator { return r.screen }

// Texture returns the texture bound at binding 1.
func (r *Renderer) Texture() *Texture { return r.texture }

func (r *Renderer) Resize(extent driver.Extent2D) {
	r.extent = extent
	r.screen.Invalidate()
}

// DrawFrame follows the same protocol as the deferred renderer with a
// single submission per frame.
func (r *Renderer) DrawFrame(in deferred.FrameInput) error {
	if r.screen == nil {
		return fmt.Errorf("draw frame before InitGraphics")
	}
	return r.screen.RunFrame(r.extent, deferred.FrameSteps{
		Prepare: func() error {
			r.uniforms.Params.Time = in.Time
			r.uniforms.Params.ProjView = in.ProjView
			r.uniforms.Flush()
			return nil
		},
		Submit: r.submit,
	})
}

func (r *Renderer) submit(fs *deferred.FrameSlot, idx uint32) error {
	if err := r.record(fs.Resolve, idx); err != nil {
		return err
	}
	err := r.ctx.GraphicsQueue.Submit([]driver.SubmitInfo{{
		Wait:           []driver.Semaphore{fs.ImageAvailable},
		WaitStages:     []driver.PipelineStage{driver.StageColorAttachmentOutput},
		CommandBuffers: []driver.CommandBuffer{fs.Resolve},
		Signal:         []driver.Semaphore{fs.RenderingFinished},
	}}, fs.Fence)
	if err != nil {
		return fmt.Errorf("failed to submit forward pass: %w", err)
	}
	return nil
}

func (r *Renderer) record(cb driver.CommandBuffer, imageIndex uint32) error {
	if err := cb.Reset(); err != nil {
		return fmt.Errorf("failed to reset command buffer: %w", err)
	}
	if err := cb.Begin(driver.UsageOneTimeSubmit); err != nil {
		return fmt.Errorf("failed to begin command buffer: %w", err)
	}
	extent := r.screen.Extent()
	cb.BeginRenderPass(driver.RenderPassBegin{
		RenderPass:  r.screen.RenderPass(),
		Framebuffer: r.screen.Framebuffer(imageIndex),
		Area:        extent,
		Clear:       r.screen.ClearValues(),
	})
	cb.SetViewport(driver.Viewport{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1})
	cb.SetScissor(extent)

	p := r.pipeline.Pipeline()
	cb.BindPipeline(p.Handle)
	cb.BindDescriptorSets(p.Layout, 0, []driver.DescriptorSet{r.set})
	cb.PushConstants(p.Layout, driver.StageVertex|driver.StageFragment, 0, r.push.Bytes())
	cb.Draw(3, 1, 0, 0)

	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		return fmt.Errorf("forward pass: %w", err)
	}
	return nil
}

func (r *Renderer) onSwapchainChanged(info deferred.SwapchainInfo) error {
	r.pipeline.SetRenderPass(info.RenderPass)
	_, err := r.pipeline.Rebuild()
	return err
}

// ReloadShaders waits until no frame is in flight and rebuilds the
// pipeline. It returns deferred.ErrNeedsRecreate while the swapchain is out
// of date.
func (r *Renderer) ReloadShaders() error {
	if r.screen.State() != deferred.SwapchainReady {
		return deferred.ErrNeedsRecreate
	}
	if err := r.screen.Sync().WaitAll(); err != nil {
		return err
	}
	if _, err := r.pipeline.Rebuild(); err != nil {
		return err
	}
	core.LogInfo("shaders reloaded")
	return nil
}

// Cleanup drains the device and destroys everything the renderer created.
func (r *Renderer) Cleanup() {
	if err := r.ctx.Device.WaitIdle(); err != nil {
		core.LogError("cleanup: %s", err)
	}
	if r.pipeline != nil {
		r.pipeline.Destroy()
	}
	if r.binder != nil {
		r.binder.Destroy()
		r.binder = nil
	}
	if r.texture != nil {
		r.texture.Destroy()
		r.texture = nil
	}
	if r.uniforms != nil {
		r.uniforms.Destroy()
		r.uniforms = nil
	}
	if r.screen != nil {
		r.screen.Destroy()
	}
	r.scene = nil
	core.LogDebug("forward renderer cleaned up")
}
