// Package compute runs an exclusive prefix scan over a square grid of
// floats on the GPU. It draws nothing: the surface is ignored and every
// DrawFrame is one submission followed by a fence wait.
//
// The scan takes three dispatches. The first scans each row in its own
// workgroup and writes the row totals, the second scans the row totals and
// the third adds them back to every row.
package compute

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spaghettifunk/gbuffer/engine/assets"
	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/deferred"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// MaxLength is the workgroup size of scan.comp. A row never spans more
// than one workgroup.
const MaxLength = 256

// ErrScanMismatch is returned when the GPU result differs from the host
// reference.
var ErrScanMismatch = errors.New("scan result does not match the host reference")

type ShaderSet struct {
	Scan string
	Add  string
}

// DefaultShaders returns the compiled shaders expected in dir.
func DefaultShaders(dir string) ShaderSet {
	return ShaderSet{
		Scan: filepath.Join(dir, "scan.comp.spv"),
		Add:  filepath.Join(dir, "add.comp.spv"),
	}
}

type Options struct {
	// Length is the side of the grid, at most MaxLength.
	Length       uint32
	FenceTimeout time.Duration
	Shaders      ShaderSet
	// LoadShader defaults to assets.LoadSPIRV.
	LoadShader deferred.ShaderLoader
	// Verify checks every result against the host reference.
	Verify   bool
	Uniforms *deferred.UniformParams
}

// Renderer owns the scan buffers, both compute pipelines, one command
// buffer and its fence. It is not safe for concurrent use.
type Renderer struct {
	ctx  deferred.GPUContext
	opts Options

	input   *deferred.HostBuffer
	sum     *deferred.HostBuffer
	rows    *deferred.HostBuffer
	offsets *deferred.HostBuffer
	total   *deferred.HostBuffer

	binder     *deferred.DescriptorBinder
	rowSet     driver.DescriptorSet
	totalSet   driver.DescriptorSet
	addSet     driver.DescriptorSet
	scanLayout driver.DescriptorSetLayout
	addLayout  driver.DescriptorSetLayout

	scan *deferred.PipelineBuilder
	add  *deferred.PipelineBuilder

	cb    driver.CommandBuffer
	fence driver.Fence

	want      []float32
	wantTotal float32
	uniforms  deferred.UniformParams
	scene     deferred.Scene
}

func New(ctx deferred.GPUContext, opts Options) (*Renderer, error) {
	if ctx.Device == nil || ctx.GraphicsQueue == nil {
		return nil, fmt.Errorf("gpu context is missing a device or a graphics queue")
	}
	if opts.Length < 1 || opts.Length > MaxLength {
		return nil, fmt.Errorf("scan length must be in [1, %d], got %d", MaxLength, opts.Length)
	}
	if opts.LoadShader == nil {
		opts.LoadShader = assets.LoadSPIRV
	}
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = deferred.DefaultFenceTimeout
	}
	r := &Renderer{ctx: ctx, opts: opts, uniforms: deferred.DefaultUniformParams()}
	if opts.Uniforms != nil {
		r.uniforms = *opts.Uniforms
	}
	return r, nil
}

// InitGraphics fills the input grid and builds everything the scan needs.
// The surface and extent are not used.
func (r *Renderer) InitGraphics(_ driver.Surface, _ driver.Extent2D) (err error) {
	defer func() {
		if err != nil {
			r.Cleanup()
		}
	}()
	n := uint64(r.opts.Length)
	for _, b := range []struct {
		dst  **deferred.HostBuffer
		size uint64
	}{
		{&r.input, n * n * 4},
		{&r.sum, n * n * 4},
		{&r.rows, n * 4},
		{&r.offsets, n * 4},
		{&r.total, 4},
	} {
		if *b.dst, err = deferred.NewHostBuffer(r.ctx, b.size, driver.BufferStorage); err != nil {
			return err
		}
	}
	grid := Grid(r.opts.Length)
	encode(r.input.Data, grid)
	r.want = PrefixSum(grid)
	r.wantTotal = r.want[len(grid)-1] + grid[len(grid)-1]

	r.binder, err = deferred.NewDescriptorBinder(r.ctx, driver.DescriptorPoolInfo{
		MaxSets: 3,
		Sizes:   []driver.DescriptorPoolSize{{Type: driver.DescriptorStorageBuffer, Count: 8}},
	})
	if err != nil {
		return err
	}
	if err = r.bindSets(); err != nil {
		return err
	}

	cbs, err := r.ctx.Device.AllocateCommandBuffers(1)
	if err != nil {
		return fmt.Errorf("failed to allocate compute command buffer: %w", err)
	}
	r.cb = cbs[0]
	// Signaled so that a reload before the first dispatch does not block.
	if r.fence, err = r.ctx.Device.CreateFence(true); err != nil {
		return fmt.Errorf("failed to create compute fence: %w", err)
	}

	r.scan = deferred.NewPipelineBuilder(r.ctx, r.opts.LoadShader)
	if _, err = r.scan.Build(computeDesc("scan", r.opts.Shaders.Scan, r.scanLayout)); err != nil {
		return err
	}
	r.add = deferred.NewPipelineBuilder(r.ctx, r.opts.LoadShader)
	if _, err = r.add.Build(computeDesc("add", r.opts.Shaders.Add, r.addLayout)); err != nil {
		return err
	}
	core.LogInfo("compute renderer initialized for a %dx%d scan", n, n)
	return nil
}

func computeDesc(name, path string, layout driver.DescriptorSetLayout) deferred.PipelineDesc {
	return deferred.PipelineDesc{
		Name:             name,
		Shaders:          deferred.ShaderPaths{driver.StageCompute: path},
		SetLayouts:       []driver.DescriptorSetLayout{layout},
		PushConstantSize: 4,
		PushStages:       driver.StageCompute,
	}
}

// bindSets builds the three sets: rows of the input into the sum with the
// row totals, the row totals into their offsets with the grand total, and
// the sum with the offsets to add.
func (r *Renderer) bindSets() error {
	b := r.binder
	var err error

	sets := []struct {
		set     *driver.DescriptorSet
		buffers []*deferred.HostBuffer
	}{
		{&r.rowSet, []*deferred.HostBuffer{r.input, r.sum, r.rows}},
		{&r.totalSet, []*deferred.HostBuffer{r.rows, r.offsets, r.total}},
		{&r.addSet, []*deferred.HostBuffer{r.sum, r.offsets}},
	}
	for i, s := range sets {
		b.BeginSet(driver.StageCompute)
		for slot, hb := range s.buffers {
			b.BindBuffer(uint32(slot), hb.Buffer, driver.DescriptorStorageBuffer)
		}
		var layout driver.DescriptorSetLayout
		if *s.set, layout, err = b.EndSet(); err != nil {
			return fmt.Errorf("scan descriptor set %d: %w", i, err)
		}
		switch i {
		case 0:
			r.scanLayout = layout
		case 2:
			r.addLayout = layout
		}
	}
	return nil
}

// LoadScene keeps a reference to s. The scan does not read geometry.
func (r *Renderer) LoadScene(s deferred.Scene) error {
	if r.fence == nil {
		return fmt.Errorf("load scene before InitGraphics")
	}
	r.scene = s
	core.LogDebug("compute renderer ignores the geometry of %d instances", s.InstanceCount())
	return nil
}

func (r *Renderer) Uniforms() *deferred.UniformParams { return &r.uniforms }

// Resize has nothing to do: no resource depends on the surface.
func (r *Renderer) Resize(driver.Extent2D) {}

// DrawFrame records the three dispatches, submits them and blocks until
// the fence is signaled.
func (r *Renderer) DrawFrame(deferred.FrameInput) error {
	if r.fence == nil {
		return fmt.Errorf("draw frame before InitGraphics")
	}
	if err := r.record(r.cb); err != nil {
		return err
	}
	fences := []driver.Fence{r.fence}
	if err := r.ctx.Device.ResetFences(fences); err != nil {
		return fmt.Errorf("failed to reset compute fence: %w", err)
	}
	err := r.ctx.GraphicsQueue.Submit([]driver.SubmitInfo{{
		CommandBuffers: []driver.CommandBuffer{r.cb},
	}}, r.fence)
	if err != nil {
		return fmt.Errorf("failed to submit scan: %w", err)
	}
	if err := deferred.WaitFences(r.ctx.Device, fences, r.opts.FenceTimeout); err != nil {
		return err
	}
	if r.opts.Verify {
		return r.Verify()
	}
	return nil
}

func (r *Renderer) record(cb driver.CommandBuffer) error {
	if err := cb.Reset(); err != nil {
		return fmt.Errorf("failed to reset command buffer: %w", err)
	}
	if err := cb.Begin(driver.UsageOneTimeSubmit); err != nil {
		return fmt.Errorf("failed to begin command buffer: %w", err)
	}
	n := r.opts.Length
	push := make([]byte, 4)
	binary.LittleEndian.PutUint32(push, n)
	scan, add := r.scan.Pipeline(), r.add.Pipeline()

	cb.BindComputePipeline(scan.Handle)
	cb.BindComputeDescriptorSets(scan.Layout, 0, []driver.DescriptorSet{r.rowSet})
	cb.PushConstants(scan.Layout, driver.StageCompute, 0, push)
	cb.Dispatch(n, 1, 1)
	cb.BufferBarrier(shaderToShader(r.rows.Buffer))

	cb.BindComputeDescriptorSets(scan.Layout, 0, []driver.DescriptorSet{r.totalSet})
	cb.Dispatch(1, 1, 1)
	cb.BufferBarrier(shaderToShader(r.offsets.Buffer))
	cb.BufferBarrier(shaderToShader(r.sum.Buffer))

	cb.BindComputePipeline(add.Handle)
	cb.BindComputeDescriptorSets(add.Layout, 0, []driver.DescriptorSet{r.addSet})
	cb.PushConstants(add.Layout, driver.StageCompute, 0, push)
	cb.Dispatch(n, 1, 1)
	cb.BufferBarrier(driver.BufferBarrier{
		Buffer:    r.sum.Buffer,
		SrcStage:  driver.StageComputeShader,
		DstStage:  driver.StageHost,
		SrcAccess: driver.AccessShaderWrite,
		DstAccess: driver.AccessHostRead,
	})

	if err := cb.End(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

func shaderToShader(buf driver.Buffer) driver.BufferBarrier {
	return driver.BufferBarrier{
		Buffer:    buf,
		SrcStage:  driver.StageComputeShader,
		DstStage:  driver.StageComputeShader,
		SrcAccess: driver.AccessShaderWrite,
		DstAccess: driver.AccessShaderRead | driver.AccessShaderWrite,
	}
}

// Result returns the scanned grid of the last completed frame.
func (r *Renderer) Result() []float32 {
	n := int(r.opts.Length)
	return decode(r.sum.Data, n*n)
}

// Total returns the sum of the whole grid computed by the last frame.
func (r *Renderer) Total() float32 {
	return decode(r.total.Data, 1)[0]
}

// Verify compares the last result and total with the host reference.
func (r *Renderer) Verify() error {
	if err := Compare(r.Result(), r.want); err != nil {
		return err
	}
	return Compare([]float32{r.Total()}, []float32{r.wantTotal})
}

// ReloadShaders waits for the last dispatch and rebuilds both pipelines.
func (r *Renderer) ReloadShaders() error {
	if err := deferred.WaitFences(r.ctx.Device, []driver.Fence{r.fence}, r.opts.FenceTimeout); err != nil {
		return err
	}
	if _, err := r.scan.Rebuild(); err != nil {
		return err
	}
	if _, err := r.add.Rebuild(); err != nil {
		return err
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
	if r.scan != nil {
		r.scan.Destroy()
	}
	if r.add != nil {
		r.add.Destroy()
	}
	if r.binder != nil {
		r.binder.Destroy()
		r.binder = nil
	}
	if r.cb != nil {
		r.cb.Destroy()
		r.cb = nil
	}
	if r.fence != nil {
		r.fence.Destroy()
		r.fence = nil
	}
	for _, hb := range []**deferred.HostBuffer{&r.input, &r.sum, &r.rows, &r.offsets, &r.total} {
		(*hb).Destroy()
		*hb = nil
	}
	r.scene = nil
	core.LogDebug("compute renderer cleaned up")
}
