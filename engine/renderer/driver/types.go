package driver

import "time"

// Format describes the layout of image texels and vertex attributes.
type Format int

// Formats.
const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8SRGB
	FormatBGRA8Unorm
	FormatBGRA8SRGB
	FormatRGBA16Float
	FormatRGBA32Float
	FormatRG32Float
	FormatRGB32Float
	FormatD16Unorm
	FormatD32Float
	FormatD16UnormS8
	FormatD24UnormS8
	FormatD32FloatS8
)

// IsDepth reports whether f is a depth or depth/stencil format.
func (f Format) IsDepth() bool {
	return f >= FormatD16Unorm && f <= FormatD32FloatS8
}

// HasStencil reports whether f carries a stencil component.
func (f Format) HasStencil() bool {
	return f >= FormatD16UnormS8 && f <= FormatD32FloatS8
}

// Aspect returns the image aspect a view of format f must use.
func (f Format) Aspect() Aspect {
	switch {
	case f.HasStencil():
		return AspectDepth | AspectStencil
	case f.IsDepth():
		return AspectDepth
	}
	return AspectColor
}

func (f Format) String() string {
	switch f {
	case FormatRGBA8Unorm:
		return "RGBA8Unorm"
	case FormatRGBA8SRGB:
		return "RGBA8SRGB"
	case FormatBGRA8Unorm:
		return "BGRA8Unorm"
	case FormatBGRA8SRGB:
		return "BGRA8SRGB"
	case FormatRGBA16Float:
		return "RGBA16Float"
	case FormatRGBA32Float:
		return "RGBA32Float"
	case FormatRG32Float:
		return "RG32Float"
	case FormatRGB32Float:
		return "RGB32Float"
	case FormatD16Unorm:
		return "D16Unorm"
	case FormatD32Float:
		return "D32Float"
	case FormatD16UnormS8:
		return "D16UnormS8"
	case FormatD24UnormS8:
		return "D24UnormS8"
	case FormatD32FloatS8:
		return "D32FloatS8"
	}
	return "Undefined"
}

// Extent2D is a size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether e has no area.
func (e Extent2D) IsZero() bool { return e.Width == 0 || e.Height == 0 }

// Aspect is a mask of image aspects.
type Aspect int

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
	AspectStencil
)

// ImageUsage is a mask of image usages.
type ImageUsage int

const (
	UsageColorAttachment ImageUsage = 1 << iota
	UsageDepthStencilAttachment
	UsageSampled
	UsageInputAttachment
	UsageTransferDst
)

// ImageLayout is the layout of an image subresource.
type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutShaderRead
	LayoutTransferDst
	LayoutPresent
)

type ImageInfo struct {
	Extent Extent2D
	Format Format
	Usage  ImageUsage
}

type ImageViewInfo struct {
	Format Format
	Aspect Aspect
}

// MemoryProperty is a mask of memory type properties.
type MemoryProperty int

const (
	MemoryDeviceLocal MemoryProperty = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
)

type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	// TypeBits has bit i set when memory type i can back the resource.
	TypeBits uint32
}

type MemoryType struct {
	Properties MemoryProperty
	Heap       uint32
}

// MemoryProperties lists the memory types of a physical device.
type MemoryProperties struct {
	Types []MemoryType
}

// FindType returns the index of the first memory type allowed by typeBits
// that has every property in props.
func (m MemoryProperties) FindType(typeBits uint32, props MemoryProperty) (uint32, error) {
	for i, t := range m.Types {
		if typeBits&(1<<uint(i)) != 0 && t.Properties&props == props {
			return uint32(i), nil
		}
	}
	return 0, ErrNoMemoryType
}

// BufferUsage is a mask of buffer usages.
type BufferUsage int

const (
	BufferVertex BufferUsage = 1 << iota
	BufferIndex
	BufferUniform
	BufferStorage
	BufferTransferSrc
	BufferTransferDst
)

type BufferInfo struct {
	Size  uint64
	Usage BufferUsage
}

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
)

type SamplerInfo struct {
	Filter  Filter
	Address AddressMode
}

type LoadOp int

const (
	LoadDontCare LoadOp = iota
	LoadClear
	LoadLoad
)

type StoreOp int

const (
	StoreDontCare StoreOp = iota
	StoreStore
)

// PipelineStage is a mask of pipeline stages used in synchronization.
type PipelineStage int

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageFragmentShader
	StageColorAttachmentOutput
	StageTransfer
	StageBottomOfPipe
	StageComputeShader
	StageHost
)

// Access is a mask of memory access types used in synchronization.
type Access int

const (
	AccessShaderRead Access = 1 << iota
	AccessColorWrite
	AccessDepthStencilWrite
	AccessTransferWrite
	AccessMemoryRead
	AccessShaderWrite
	AccessHostRead
)

// SubpassExternal refers to commands outside the render pass in a
// SubpassDependency.
const SubpassExternal = ^uint32(0)

type AttachmentInfo struct {
	Format  Format
	Load    LoadOp
	Store   StoreOp
	Initial ImageLayout
	Final   ImageLayout
}

type SubpassDependency struct {
	Src, Dst             uint32
	SrcStage, DstStage   PipelineStage
	SrcAccess, DstAccess Access
}

// RenderPassInfo describes a single-subpass render pass.
// Color lists the indices of color attachments in Attachments.
// Depth is the index of the depth attachment, or -1.
type RenderPassInfo struct {
	Attachments  []AttachmentInfo
	Color        []int
	Depth        int
	Dependencies []SubpassDependency
}

type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

// ShaderStage is a mask of programmable stages.
type ShaderStage int

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute
)

type DescriptorType int

const (
	DescriptorUniformBuffer DescriptorType = iota
	DescriptorStorageBuffer
	DescriptorCombinedImageSampler
)

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolInfo struct {
	MaxSets uint32
	Sizes   []DescriptorPoolSize
}

type BufferBinding struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type ImageBinding struct {
	View    ImageView
	Sampler Sampler
	Layout  ImageLayout
}

// DescriptorWrite updates one binding of a set. Exactly one of Buffer and
// Image is set.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType
	Buffer  *BufferBinding
	Image   *ImageBinding
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutInfo struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type ShaderStageInfo struct {
	Stage  ShaderStage
	Module ShaderModule
	Entry  string
}

type VertexBinding struct {
	Binding uint32
	Stride  uint32
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type CullMode int

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

type CompareOp int

const (
	CompareLess CompareOp = iota
	CompareLessOrEqual
	CompareAlways
)

// ColorMask selects the color components written by a blend state.
type ColorMask int

const (
	ColorR ColorMask = 1 << iota
	ColorG
	ColorB
	ColorA
	ColorAll = ColorR | ColorG | ColorB | ColorA
)

// BlendState is the blend configuration of one color attachment.
// Enabled blending uses source alpha over.
type BlendState struct {
	Enable    bool
	WriteMask ColorMask
}

// GraphicsPipelineInfo describes a triangle-list pipeline with dynamic
// viewport and scissor.
type GraphicsPipelineInfo struct {
	Stages     []ShaderStageInfo
	Bindings   []VertexBinding
	Attributes []VertexAttribute
	Cull       CullMode
	// CounterClockwise selects counter-clockwise front faces.
	CounterClockwise bool
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     CompareOp
	Blend            []BlendState
	Layout           PipelineLayout
	RenderPass       RenderPass
	Subpass          uint32
}

// ComputePipelineInfo describes a pipeline with a single compute stage.
type ComputePipelineInfo struct {
	Stage  ShaderStageInfo
	Layout PipelineLayout
}

type SwapchainInfo struct {
	Surface    Surface
	Extent     Extent2D
	ImageCount uint32
	VSync      bool
	// Old is the swapchain being replaced, if any.
	Old Swapchain
}

// Swapchain is a chain of presentable images.
type Swapchain interface {
	Destroyer
	Images() []Image
	Format() Format
	Extent() Extent2D
	// AcquireNext returns the index of the next presentable image and
	// arranges for signal to be signaled when it is ready.
	// ErrSuboptimal comes with a valid index. ErrOutOfDate does not.
	AcquireNext(timeout time.Duration, signal Semaphore) (uint32, error)
}
