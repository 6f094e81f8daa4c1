package driver

// CommandUsage is a mask of command buffer usage hints.
type CommandUsage int

const (
	UsageOneTimeSubmit CommandUsage = 1 << iota
)

type IndexType int

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

// ClearValue is the clear value of one attachment. Color is used for color
// attachments, Depth and Stencil for depth attachments.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Extent2D
	Clear       []ClearValue
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type ImageBarrier struct {
	Image              Image
	Old, New           ImageLayout
	SrcStage, DstStage PipelineStage
	SrcAccess          Access
	DstAccess          Access
	Aspect             Aspect
}

// BufferBarrier makes writes to the whole of Buffer visible to later
// accesses.
type BufferBarrier struct {
	Buffer             Buffer
	SrcStage, DstStage PipelineStage
	SrcAccess          Access
	DstAccess          Access
}

// CommandBuffer records GPU commands.
// A command buffer must not be reset or re-recorded while a submission
// that includes it is pending.
type CommandBuffer interface {
	Destroyer

	Reset() error
	Begin(usage CommandUsage) error
	End() error

	BeginRenderPass(begin RenderPassBegin)
	EndRenderPass()
	SetViewport(vp Viewport)
	SetScissor(extent Extent2D)

	BindPipeline(p Pipeline)
	BindDescriptorSets(layout PipelineLayout, first uint32, sets []DescriptorSet)
	PushConstants(layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64, typ IndexType)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)

	Barrier(b ImageBarrier)
	CopyBufferToImage(src Buffer, dst Image, extent Extent2D)

	BindComputePipeline(p Pipeline)
	BindComputeDescriptorSets(layout PipelineLayout, first uint32, sets []DescriptorSet)
	Dispatch(x, y, z uint32)
	BufferBarrier(b BufferBarrier)
}
