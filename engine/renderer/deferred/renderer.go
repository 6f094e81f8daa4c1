package deferred

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/gbuffer/engine/assets"
	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// ShaderSet names the SPIR-V files of both pipelines.
type ShaderSet struct {
	AttributeVert string
	AttributeFrag string
	ResolveVert   string
	ResolveFrag   string
}

// DefaultShaders returns the compiled shaders expected in dir.
func DefaultShaders(dir string) ShaderSet {
	return ShaderSet{
		AttributeVert: filepath.Join(dir, "simple.vert.spv"),
		AttributeFrag: filepath.Join(dir, "mrt.frag.spv"),
		ResolveVert:   filepath.Join(dir, "resolve.vert.spv"),
		ResolveFrag:   filepath.Join(dir, "resolve.frag.spv"),
	}
}

type Options struct {
	FramesInFlight int
	VSync          bool
	FenceTimeout   time.Duration
	// WaitIdleAfterPresent drains the graphics queue after every present.
	WaitIdleAfterPresent bool
	Shaders              ShaderSet
	// LoadShader defaults to assets.LoadSPIRV.
	LoadShader ShaderLoader
	Overlay    Overlay
	// Uniforms overrides DefaultUniformParams when not nil.
	Uniforms *UniformParams
}

// FrameInput is what changes from one frame to the next.
type FrameInput struct {
	Time        float32
	ProjView    mgl32.Mat4
	OverlayData interface{}
}

// Renderer draws a scene with an attribute pass into a G-buffer followed
// by a full-screen resolve pass. It is not safe for concurrent use.
type Renderer struct {
	ctx    GPUContext
	opts   Options
	extent driver.Extent2D

	screen   *SwapchainCoordinator
	gbuffer  *RenderTarget
	sampler  driver.Sampler
	uniforms *UniformBuffer
	binder   *DescriptorBinder

	attribute *PipelineBuilder
	resolve   *PipelineBuilder
	recorder  *CommandRecorder

	attributeLayout driver.DescriptorSetLayout
	resolveLayout   driver.DescriptorSetLayout

	scene Scene
}

func New(ctx GPUContext, opts Options) (*Renderer, error) {
	if err := ctx.validate(); err != nil {
		return nil, err
	}
	if opts.FramesInFlight < 1 {
		return nil, fmt.Errorf("frames in flight must be at least 1, got %d", opts.FramesInFlight)
	}
	if opts.LoadShader == nil {
		opts.LoadShader = assets.LoadSPIRV
	}
	return &Renderer{ctx: ctx, opts: opts}, nil
}

// InitGraphics creates the swapchain and every resource that does not
// depend on the scene.
func (r *Renderer) InitGraphics(surface driver.Surface, extent driver.Extent2D) (err error) {
	defer func() {
		if err != nil {
			r.Cleanup()
		}
	}()
	r.extent = extent

	r.screen = NewSwapchainCoordinator(r.ctx, surface, SwapchainOptions{
		FramesInFlight: r.opts.FramesInFlight,
		VSync:          r.opts.VSync,
		FenceTimeout:   r.opts.FenceTimeout,

		WaitIdleAfterPresent: r.opts.WaitIdleAfterPresent,
	})
	if err = r.screen.Create(extent); err != nil {
		return err
	}
	if r.gbuffer, err = NewGBuffer(r.ctx, r.screen.Extent()); err != nil {
		return err
	}
	if r.sampler, err = r.ctx.Device.CreateSampler(driver.SamplerInfo{Filter: driver.FilterNearest, Address: driver.AddressClampToEdge}); err != nil {
		return fmt.Errorf("failed to create G-buffer sampler: %w", err)
	}
	if r.uniforms, err = NewUniformBuffer(r.ctx); err != nil {
		return err
	}
	if r.opts.Uniforms != nil {
		r.uniforms.Params = *r.opts.Uniforms
		r.uniforms.Flush()
	}
	r.binder, err = NewDescriptorBinder(r.ctx, driver.DescriptorPoolInfo{
		MaxSets: 2,
		Sizes: []driver.DescriptorPoolSize{
			{Type: driver.DescriptorUniformBuffer, Count: 2},
			{Type: driver.DescriptorCombinedImageSampler, Count: 3},
		},
	})
	if err != nil {
		return err
	}
	r.attribute = NewPipelineBuilder(r.ctx, r.opts.LoadShader)
	r.resolve = NewPipelineBuilder(r.ctx, r.opts.LoadShader)
	r.recorder = &CommandRecorder{
		Queue:     r.ctx.GraphicsQueue,
		GBuffer:   r.gbuffer,
		Screen:    r.screen,
		Attribute: r.attribute,
		Resolve:   r.resolve,
	}
	if err = r.bindSets(); err != nil {
		return err
	}
	_, err = r.resolve.Build(PipelineDesc{
		Name: "resolve",
		Shaders: ShaderPaths{
			driver.StageVertex:   r.opts.Shaders.ResolveVert,
			driver.StageFragment: r.opts.Shaders.ResolveFrag,
		},
		SetLayouts:       []driver.DescriptorSetLayout{r.resolveLayout},
		PushConstantSize: PushConstantsSize,
		PushStages:       driver.StageVertex | driver.StageFragment,
		RenderPass:       r.screen.RenderPass(),
		Blend:            opaqueBlend(1),
		Cull:             driver.CullNone,
	})
	if err != nil {
		return err
	}
	if r.opts.Overlay != nil {
		if err = r.opts.Overlay.OnSwapchainChanged(r.screen.Info()); err != nil {
			return fmt.Errorf("overlay: %w", err)
		}
	}
	r.screen.OnChange(r.onSwapchainChanged)
	core.LogInfo("deferred renderer initialized with %d frames in flight", r.opts.FramesInFlight)
	return nil
}

// bindSets builds the attribute set (uniforms) and the resolve set (three
// G-buffer samplers and uniforms) from the current resources.
func (r *Renderer) bindSets() error {
	b := r.binder
	var err error

	b.BeginSet(driver.StageVertex | driver.StageFragment)
	b.BindBuffer(0, r.uniforms.Buffer(), driver.DescriptorUniformBuffer)
	if r.recorder.AttributeSet, r.attributeLayout, err = b.EndSet(); err != nil {
		return fmt.Errorf("attribute descriptor set: %w", err)
	}

	b.BeginSet(driver.StageFragment)
	for i, a := range r.gbuffer.ColorAttachments() {
		b.BindImage(uint32(i), a.View, r.sampler, driver.DescriptorCombinedImageSampler, driver.LayoutShaderRead)
	}
	b.BindBuffer(uint32(len(r.gbuffer.ColorAttachments())), r.uniforms.Buffer(), driver.DescriptorUniformBuffer)
	if r.recorder.ResolveSet, r.resolveLayout, err = b.EndSet(); err != nil {
		return fmt.Errorf("resolve descriptor set: %w", err)
	}
	return nil
}

// LoadScene builds the attribute pipeline for the vertex layout of s.
// The scene must outlive the renderer or be replaced before destruction.
func (r *Renderer) LoadScene(s Scene) error {
	if r.screen == nil {
		return fmt.Errorf("load scene before InitGraphics")
	}
	layout := s.VertexLayout()
	if layout.Stride == 0 {
		return fmt.Errorf("scene vertex layout has zero stride")
	}
	if r.screen.State() != SwapchainReady {
		return ErrNeedsRecreate
	}
	if err := r.screen.Sync().WaitAll(); err != nil {
		return err
	}
	_, err := r.attribute.Build(PipelineDesc{
		Name: "attribute",
		Shaders: ShaderPaths{
			driver.StageVertex:   r.opts.Shaders.AttributeVert,
			driver.StageFragment: r.opts.Shaders.AttributeFrag,
		},
		SetLayouts:       []driver.DescriptorSetLayout{r.attributeLayout},
		PushConstantSize: PushConstantsSize,
		PushStages:       driver.StageVertex | driver.StageFragment,
		RenderPass:       r.gbuffer.RenderPass,
		Blend:            opaqueBlend(len(r.gbuffer.ColorAttachments())),
		Vertex:           layout,
		DepthTest:        true,
		DepthWrite:       true,
		Cull:             driver.CullBack,
	})
	if err != nil {
		return err
	}
	r.scene = s
	r.recorder.Scene = s
	core.LogInfo("scene loaded with %d instances", s.InstanceCount())
	return nil
}

// Uniforms returns the parameters written to the uniform buffer each frame.
func (r *Renderer) Uniforms() *UniformParams { return &r.uniforms.Params }

// Swapchain returns the coordinator of the presentable images.
func (r *Renderer) Swapchain() *SwapchainCoordinator { return r.screen }

// GBuffer returns the offscreen target of the attribute pass.
func (r *Renderer) GBuffer() *RenderTarget { return r.gbuffer }

// Recorder returns the command recorder.
func (r *Renderer) Recorder() *CommandRecorder { return r.recorder }

// Resize records the new surface extent. The swapchain is recreated before
// the next acquire.
func (r *Renderer) Resize(extent driver.Extent2D) {
	r.extent = extent
	r.screen.Invalidate()
}

// DrawFrame renders and presents one frame. It returns
// core.ErrSwapchainBooting when the frame was skipped because the swapchain
// had to be recreated; the frame slot advances either way. Any other error
// is fatal.
func (r *Renderer) DrawFrame(in FrameInput) error {
	if r.scene == nil {
		return fmt.Errorf("draw frame before LoadScene")
	}
	return r.screen.RunFrame(r.extent, FrameSteps{
		Prepare: func() error {
			r.updateUniforms(in)
			return nil
		},
		Submit: func(slot *FrameSlot, idx uint32) error {
			frame := Frame{Slot: slot, ImageIndex: idx, ProjView: in.ProjView}
			if r.opts.Overlay != nil {
				var err error
				if frame.Overlay, err = r.opts.Overlay.BuildCommands(idx, in.OverlayData); err != nil {
					return fmt.Errorf("overlay: %w", err)
				}
			}
			return r.recorder.Execute(frame)
		},
	})
}

func (r *Renderer) updateUniforms(in FrameInput) {
	p := &r.uniforms.Params
	p.Time = in.Time
	p.ProjView = in.ProjView
	p.LightMatrix = lightMatrix(p.LightPos, p.LightDir)
	r.uniforms.Flush()
}

// lightMatrix is an orthographic projection looking along dir from pos.
func lightMatrix(pos, dir mgl32.Vec3) mgl32.Mat4 {
	up := mgl32.Vec3{0, 1, 0}
	if abs(dir.Normalize().Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	view := mgl32.LookAtV(pos, pos.Add(dir), up)
	return mgl32.Ortho(-10, 10, -10, 10, 0.1, 50).Mul4(view)
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// onSwapchainChanged rebuilds everything that referenced the previous
// swapchain or its extent. The device is idle when it runs.
func (r *Renderer) onSwapchainChanged(info SwapchainInfo) error {
	if err := r.gbuffer.Resize(info.Extent); err != nil {
		return err
	}
	if err := r.binder.Reset(); err != nil {
		return err
	}
	if err := r.bindSets(); err != nil {
		return err
	}
	r.resolve.SetLayouts([]driver.DescriptorSetLayout{r.resolveLayout})
	r.resolve.SetRenderPass(info.RenderPass)
	if _, err := r.resolve.Rebuild(); err != nil {
		return err
	}
	if r.attribute.Pipeline() != nil {
		r.attribute.SetLayouts([]driver.DescriptorSetLayout{r.attributeLayout})
		r.attribute.SetRenderPass(r.gbuffer.RenderPass)
		if _, err := r.attribute.Rebuild(); err != nil {
			return err
		}
	}
	if r.opts.Overlay != nil {
		if err := r.opts.Overlay.OnSwapchainChanged(info); err != nil {
			return fmt.Errorf("overlay: %w", err)
		}
	}
	return nil
}

// ReloadShaders waits until no frame is in flight, then rebuilds both
// pipelines from the current contents of their shader files. It returns
// ErrNeedsRecreate while the swapchain is out of date since the render
// passes may be gone.
func (r *Renderer) ReloadShaders() error {
	if r.screen.State() != SwapchainReady {
		return ErrNeedsRecreate
	}
	if err := r.screen.Sync().WaitAll(); err != nil {
		return err
	}
	if _, err := r.resolve.Rebuild(); err != nil {
		return err
	}
	if r.attribute.Pipeline() != nil {
		if _, err := r.attribute.Rebuild(); err != nil {
			return err
		}
	}
	core.LogInfo("shaders reloaded")
	return nil
}

// Cleanup drains the device and destroys everything the renderer created.
// It is safe to call after a failed InitGraphics.
func (r *Renderer) Cleanup() {
	if err := r.ctx.Device.WaitIdle(); err != nil {
		core.LogError("cleanup: %s", err)
	}
	if r.attribute != nil {
		r.attribute.Destroy()
	}
	if r.resolve != nil {
		r.resolve.Destroy()
	}
	if r.binder != nil {
		r.binder.Destroy()
		r.binder = nil
	}
	if r.uniforms != nil {
		r.uniforms.Destroy()
		r.uniforms = nil
	}
	if r.sampler != nil {
		r.sampler.Destroy()
		r.sampler = nil
	}
	if r.gbuffer != nil {
		r.gbuffer.Destroy()
		r.gbuffer = nil
	}
	if r.screen != nil {
		r.screen.Destroy()
	}
	r.scene = nil
	core.LogDebug("deferred renderer cleaned up")
}
