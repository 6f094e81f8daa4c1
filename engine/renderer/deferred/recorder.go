package deferred

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// CommandRecorder records and submits the passes of one frame: the
// attribute pass into the G-buffer, then the resolve pass into the
// swapchain image, optionally followed by an overlay.
type CommandRecorder struct {
	Queue     driver.Queue
	GBuffer   *RenderTarget
	Screen    *SwapchainCoordinator
	Attribute *PipelineBuilder
	Resolve   *PipelineBuilder
	Scene     Scene

	AttributeSet driver.DescriptorSet
	ResolveSet   driver.DescriptorSet

	// Order, when not nil, is the order in which instances are drawn.
	Order []int
}

// Frame is the per-frame input of the recorder.
type Frame struct {
	Slot       *FrameSlot
	ImageIndex uint32
	ProjView   mgl32.Mat4
	// Overlay is appended to the resolve submission when not nil.
	Overlay driver.CommandBuffer
}

// Execute records both command buffers of the slot from scratch and
// submits them. The offscreen submission signals OffscreenFinished. The
// resolve submission waits on it and on ImageAvailable, then signals
// RenderingFinished and the slot fence.
func (r *CommandRecorder) Execute(f Frame) error {
	if err := r.RecordOffscreen(f.Slot.Offscreen, f.ProjView); err != nil {
		return err
	}
	err := r.Queue.Submit([]driver.SubmitInfo{{
		CommandBuffers: []driver.CommandBuffer{f.Slot.Offscreen},
		Signal:         []driver.Semaphore{f.Slot.OffscreenFinished},
	}}, nil)
	if err != nil {
		return fmt.Errorf("failed to submit offscreen pass: %w", err)
	}

	if err := r.RecordResolve(f.Slot.Resolve, f.ImageIndex, f.ProjView); err != nil {
		return err
	}
	cbs := []driver.CommandBuffer{f.Slot.Resolve}
	if f.Overlay != nil {
		cbs = append(cbs, f.Overlay)
	}
	err = r.Queue.Submit([]driver.SubmitInfo{{
		Wait:           []driver.Semaphore{f.Slot.OffscreenFinished, f.Slot.ImageAvailable},
		WaitStages:     []driver.PipelineStage{driver.StageFragmentShader, driver.StageColorAttachmentOutput},
		CommandBuffers: cbs,
		Signal:         []driver.Semaphore{f.Slot.RenderingFinished},
	}}, f.Slot.Fence)
	if err != nil {
		return fmt.Errorf("failed to submit resolve pass: %w", err)
	}
	return nil
}

// RecordOffscreen records the attribute pass: one indexed draw per scene
// instance with its model matrix and tint pushed first.
func (r *CommandRecorder) RecordOffscreen(cb driver.CommandBuffer, projView mgl32.Mat4) error {
	if err := begin(cb); err != nil {
		return fmt.Errorf("offscreen pass: %w", err)
	}
	extent := r.GBuffer.Extent
	cb.BeginRenderPass(driver.RenderPassBegin{
		RenderPass:  r.GBuffer.RenderPass,
		Framebuffer: r.GBuffer.Framebuffer,
		Area:        extent,
		Clear:       r.GBuffer.ClearValues(),
	})
	setViewport(cb, extent)

	p := r.Attribute.Pipeline()
	cb.BindPipeline(p.Handle)
	cb.BindDescriptorSets(p.Layout, 0, []driver.DescriptorSet{r.AttributeSet})

	if r.Scene != nil && r.Scene.InstanceCount() > 0 {
		cb.BindVertexBuffers(0, []driver.Buffer{r.Scene.VertexBuffer()}, []uint64{0})
		cb.BindIndexBuffer(r.Scene.IndexBuffer(), 0, driver.IndexUint32)
		pc := PushConstants{ProjView: projView}
		for _, i := range r.drawOrder() {
			pc.Model = r.Scene.InstanceMatrix(i)
			pc.Color = InstanceTint(i)
			cb.PushConstants(p.Layout, driver.StageVertex|driver.StageFragment, 0, pc.Bytes())
			m := r.Scene.InstanceMesh(i)
			cb.DrawIndexed(m.IndexCount, 1, m.IndexOffset, m.VertexOffset, 0)
		}
	}

	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		return fmt.Errorf("offscreen pass: %w", err)
	}
	return nil
}

// RecordResolve records the resolve pass: a full-screen triangle that
// shades the G-buffer into swapchain image imageIndex.
func (r *CommandRecorder) RecordResolve(cb driver.CommandBuffer, imageIndex uint32, projView mgl32.Mat4) error {
	if err := begin(cb); err != nil {
		return fmt.Errorf("resolve pass: %w", err)
	}
	extent := r.Screen.Extent()
	cb.BeginRenderPass(driver.RenderPassBegin{
		RenderPass:  r.Screen.RenderPass(),
		Framebuffer: r.Screen.Framebuffer(imageIndex),
		Area:        extent,
		Clear:       r.Screen.ClearValues(),
	})
	setViewport(cb, extent)

	p := r.Resolve.Pipeline()
	cb.BindPipeline(p.Handle)
	cb.BindDescriptorSets(p.Layout, 0, []driver.DescriptorSet{r.ResolveSet})
	pc := PushConstants{ProjView: projView}
	cb.PushConstants(p.Layout, driver.StageVertex|driver.StageFragment, 0, pc.Bytes())
	cb.Draw(3, 1, 0, 0)

	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		return fmt.Errorf("resolve pass: %w", err)
	}
	return nil
}

func (r *CommandRecorder) drawOrder() []int {
	if r.Order != nil {
		return r.Order
	}
	order := make([]int, r.Scene.InstanceCount())
	for i := range order {
		order[i] = i
	}
	return order
}

func begin(cb driver.CommandBuffer) error {
	if err := cb.Reset(); err != nil {
		return fmt.Errorf("failed to reset command buffer: %w", err)
	}
	if err := cb.Begin(driver.UsageOneTimeSubmit); err != nil {
		return fmt.Errorf("failed to begin command buffer: %w", err)
	}
	return nil
}

func setViewport(cb driver.CommandBuffer, extent driver.Extent2D) {
	cb.SetViewport(driver.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MaxDepth: 1,
	})
	cb.SetScissor(extent)
}
