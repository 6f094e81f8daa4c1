package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

type commandBufferState int

const (
	commandBufferReady commandBufferState = iota
	commandBufferRecording
	commandBufferInRenderPass
	commandBufferRecordingEnded
	commandBufferSubmitted
	commandBufferNotAllocated
)

// CommandBuffer implements driver.CommandBuffer on a primary command
// buffer of the graphics pool.
type CommandBuffer struct {
	dev    *Device
	handle vk.CommandBuffer
	state  commandBufferState
}

func (c *CommandBuffer) Destroy() {
	if c.state == commandBufferNotAllocated {
		return
	}
	_ = c.dev.locks.safeCall(commandPoolManagement, func() error {
		vk.FreeCommandBuffers(c.dev.handle, c.dev.commandPool, 1, []vk.CommandBuffer{c.handle})
		return nil
	})
	c.handle = nil
	c.state = commandBufferNotAllocated
}

func (c *CommandBuffer) Reset() error {
	if err := resultError("vkResetCommandBuffer", vk.ResetCommandBuffer(c.handle, 0)); err != nil {
		return err
	}
	c.state = commandBufferReady
	return nil
}

func (c *CommandBuffer) Begin(usage driver.CommandUsage) error {
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if usage&driver.UsageOneTimeSubmit != 0 {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(c.handle, &info)); err != nil {
		return err
	}
	c.state = commandBufferRecording
	return nil
}

func (c *CommandBuffer) End() error {
	if c.state == commandBufferInRenderPass {
		core.LogWarn("command buffer ended inside a render pass")
	}
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(c.handle)); err != nil {
		return err
	}
	c.state = commandBufferRecordingEnded
	return nil
}

func (c *CommandBuffer) BeginRenderPass(begin driver.RenderPassBegin) {
	rp := begin.RenderPass.(*RenderPass)
	clear := make([]vk.ClearValue, len(begin.Clear))
	for i, v := range begin.Clear {
		if rp.isDepth(i) {
			clear[i].SetDepthStencil(v.Depth, v.Stencil)
			continue
		}
		clear[i].SetColor(v.Color[:])
	}
	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.handle,
		Framebuffer: begin.Framebuffer.(*Framebuffer).handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: begin.Area.Width, Height: begin.Area.Height},
		},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	vk.CmdBeginRenderPass(c.handle, &info, vk.SubpassContentsInline)
	c.state = commandBufferInRenderPass
}

func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.handle)
	c.state = commandBufferRecording
}

func (c *CommandBuffer) SetViewport(vp driver.Viewport) {
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (c *CommandBuffer) SetScissor(extent driver.Extent2D) {
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{{
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}})
}

func (c *CommandBuffer) BindPipeline(p driver.Pipeline) {
	vk.CmdBindPipeline(c.handle, vk.PipelineBindPointGraphics, p.(*Pipeline).handle)
}

func (c *CommandBuffer) BindDescriptorSets(layout driver.PipelineLayout, first uint32, sets []driver.DescriptorSet) {
	c.bindSets(vk.PipelineBindPointGraphics, layout, first, sets)
}

func (c *CommandBuffer) BindComputePipeline(p driver.Pipeline) {
	vk.CmdBindPipeline(c.handle, vk.PipelineBindPointCompute, p.(*Pipeline).handle)
}

func (c *CommandBuffer) BindComputeDescriptorSets(layout driver.PipelineLayout, first uint32, sets []driver.DescriptorSet) {
	c.bindSets(vk.PipelineBindPointCompute, layout, first, sets)
}

func (c *CommandBuffer) bindSets(point vk.PipelineBindPoint, layout driver.PipelineLayout, first uint32, sets []driver.DescriptorSet) {
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = s.(*DescriptorSet).handle
	}
	vk.CmdBindDescriptorSets(c.handle, point, layout.(*PipelineLayout).handle,
		first, uint32(len(handles)), handles, 0, nil)
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(c.handle, x, y, z)
}

func (c *CommandBuffer) BufferBarrier(b driver.BufferBarrier) {
	vk.CmdPipelineBarrier(c.handle, vkStages(b.SrcStage), vkStages(b.DstStage), 0,
		0, nil, 1, []vk.BufferMemoryBarrier{{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vkAccess(b.SrcAccess),
			DstAccessMask:       vkAccess(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              b.Buffer.(*Buffer).handle,
			Size:                vk.DeviceSize(vk.WholeSize),
		}}, 0, nil)
}

func (c *CommandBuffer) PushConstants(layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.handle, layout.(*PipelineLayout).handle, vkShaderStages(stages),
		offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []driver.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, len(buffers))
	offs := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i] = b.(*Buffer).handle
		if i < len(offsets) {
			offs[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(c.handle, first, uint32(len(handles)), handles, offs)
}

func (c *CommandBuffer) BindIndexBuffer(buf driver.Buffer, offset uint64, typ driver.IndexType) {
	vk.CmdBindIndexBuffer(c.handle, buf.(*Buffer).handle, vk.DeviceSize(offset), vkIndexType(typ))
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(c.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(c.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (c *CommandBuffer) Barrier(b driver.ImageBarrier) {
	vk.CmdPipelineBarrier(c.handle, vkStages(b.SrcStage), vkStages(b.DstStage), 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vkAccess(b.SrcAccess),
			DstAccessMask:       vkAccess(b.DstAccess),
			OldLayout:           vkLayout(b.Old),
			NewLayout:           vkLayout(b.New),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               b.Image.(*Image).handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vkAspect(b.Aspect),
				LevelCount: 1,
				LayerCount: 1,
			},
		}})
}

func (c *CommandBuffer) CopyBufferToImage(src driver.Buffer, dst driver.Image, extent driver.Extent2D) {
	vk.CmdCopyBufferToImage(c.handle, src.(*Buffer).handle, dst.(*Image).handle, vk.ImageLayoutTransferDstOptimal, 1,
		[]vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		}})
}
