package vulkan

import (
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"golang.org/x/exp/constraints"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

var formats = map[driver.Format]vk.Format{
	driver.FormatRGBA8Unorm:  vk.FormatR8g8b8a8Unorm,
	driver.FormatRGBA8SRGB:   vk.FormatR8g8b8a8Srgb,
	driver.FormatBGRA8Unorm:  vk.FormatB8g8r8a8Unorm,
	driver.FormatBGRA8SRGB:   vk.FormatB8g8r8a8Srgb,
	driver.FormatRGBA16Float: vk.FormatR16g16b16a16Sfloat,
	driver.FormatRGBA32Float: vk.FormatR32g32b32a32Sfloat,
	driver.FormatRG32Float:   vk.FormatR32g32Sfloat,
	driver.FormatRGB32Float:  vk.FormatR32g32b32Sfloat,
	driver.FormatD16Unorm:    vk.FormatD16Unorm,
	driver.FormatD32Float:    vk.FormatD32Sfloat,
	driver.FormatD16UnormS8:  vk.FormatD16UnormS8Uint,
	driver.FormatD24UnormS8:  vk.FormatD24UnormS8Uint,
	driver.FormatD32FloatS8:  vk.FormatD32SfloatS8Uint,
}

func vkFormat(f driver.Format) vk.Format {
	if v, ok := formats[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

func driverFormat(f vk.Format) driver.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return driver.FormatUndefined
}

func vkAspect(a driver.Aspect) vk.ImageAspectFlags {
	var out vk.ImageAspectFlagBits
	if a&driver.AspectColor != 0 {
		out |= vk.ImageAspectColorBit
	}
	if a&driver.AspectDepth != 0 {
		out |= vk.ImageAspectDepthBit
	}
	if a&driver.AspectStencil != 0 {
		out |= vk.ImageAspectStencilBit
	}
	return vk.ImageAspectFlags(out)
}

func vkImageUsage(u driver.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u&driver.UsageColorAttachment != 0 {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u&driver.UsageDepthStencilAttachment != 0 {
		out |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u&driver.UsageSampled != 0 {
		out |= vk.ImageUsageSampledBit
	}
	if u&driver.UsageInputAttachment != 0 {
		out |= vk.ImageUsageInputAttachmentBit
	}
	if u&driver.UsageTransferDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(out)
}

func vkBufferUsage(u driver.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if u&driver.BufferVertex != 0 {
		out |= vk.BufferUsageVertexBufferBit
	}
	if u&driver.BufferIndex != 0 {
		out |= vk.BufferUsageIndexBufferBit
	}
	if u&driver.BufferUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	if u&driver.BufferStorage != 0 {
		out |= vk.BufferUsageStorageBufferBit
	}
	if u&driver.BufferTransferSrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if u&driver.BufferTransferDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(out)
}

func vkLayout(l driver.ImageLayout) vk.ImageLayout {
	switch l {
	case driver.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case driver.LayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LayoutShaderRead:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case driver.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case driver.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func vkLoadOp(op driver.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case driver.LoadClear:
		return vk.AttachmentLoadOpClear
	case driver.LoadLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

func vkStoreOp(op driver.StoreOp) vk.AttachmentStoreOp {
	if op == driver.StoreStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func vkStages(s driver.PipelineStage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlagBits
	if s&driver.StageTopOfPipe != 0 {
		out |= vk.PipelineStageTopOfPipeBit
	}
	if s&driver.StageEarlyFragmentTests != 0 {
		out |= vk.PipelineStageEarlyFragmentTestsBit
	}
	if s&driver.StageLateFragmentTests != 0 {
		out |= vk.PipelineStageLateFragmentTestsBit
	}
	if s&driver.StageFragmentShader != 0 {
		out |= vk.PipelineStageFragmentShaderBit
	}
	if s&driver.StageColorAttachmentOutput != 0 {
		out |= vk.PipelineStageColorAttachmentOutputBit
	}
	if s&driver.StageTransfer != 0 {
		out |= vk.PipelineStageTransferBit
	}
	if s&driver.StageBottomOfPipe != 0 {
		out |= vk.PipelineStageBottomOfPipeBit
	}
	if s&driver.StageComputeShader != 0 {
		out |= vk.PipelineStageComputeShaderBit
	}
	if s&driver.StageHost != 0 {
		out |= vk.PipelineStageHostBit
	}
	return vk.PipelineStageFlags(out)
}

func vkAccess(a driver.Access) vk.AccessFlags {
	var out vk.AccessFlagBits
	if a&driver.AccessShaderRead != 0 {
		out |= vk.AccessShaderReadBit
	}
	if a&driver.AccessColorWrite != 0 {
		out |= vk.AccessColorAttachmentWriteBit
	}
	if a&driver.AccessDepthStencilWrite != 0 {
		out |= vk.AccessDepthStencilAttachmentWriteBit
	}
	if a&driver.AccessTransferWrite != 0 {
		out |= vk.AccessTransferWriteBit
	}
	if a&driver.AccessMemoryRead != 0 {
		out |= vk.AccessMemoryReadBit
	}
	if a&driver.AccessShaderWrite != 0 {
		out |= vk.AccessShaderWriteBit
	}
	if a&driver.AccessHostRead != 0 {
		out |= vk.AccessHostReadBit
	}
	return vk.AccessFlags(out)
}

func vkShaderStages(s driver.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlagBits
	if s&driver.StageVertex != 0 {
		out |= vk.ShaderStageVertexBit
	}
	if s&driver.StageFragment != 0 {
		out |= vk.ShaderStageFragmentBit
	}
	if s&driver.StageCompute != 0 {
		out |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(out)
}

func vkDescriptorType(t driver.DescriptorType) vk.DescriptorType {
	switch t {
	case driver.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case driver.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func vkCullMode(c driver.CullMode) vk.CullModeFlags {
	switch c {
	case driver.CullBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	case driver.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func vkCompareOp(c driver.CompareOp) vk.CompareOp {
	switch c {
	case driver.CompareLessOrEqual:
		return vk.CompareOpLessOrEqual
	case driver.CompareAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpLess
}

func vkColorMask(m driver.ColorMask) vk.ColorComponentFlags {
	var out vk.ColorComponentFlagBits
	if m&driver.ColorR != 0 {
		out |= vk.ColorComponentRBit
	}
	if m&driver.ColorG != 0 {
		out |= vk.ColorComponentGBit
	}
	if m&driver.ColorB != 0 {
		out |= vk.ColorComponentBBit
	}
	if m&driver.ColorA != 0 {
		out |= vk.ColorComponentABit
	}
	return vk.ColorComponentFlags(out)
}

func vkFilter(f driver.Filter) vk.Filter {
	if f == driver.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func vkAddressMode(a driver.AddressMode) vk.SamplerAddressMode {
	if a == driver.AddressClampToEdge {
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

func vkIndexType(t driver.IndexType) vk.IndexType {
	if t == driver.IndexUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func driverMemoryProperty(flags vk.MemoryPropertyFlags) driver.MemoryProperty {
	var out driver.MemoryProperty
	bits := vk.MemoryPropertyFlagBits(flags)
	if bits&vk.MemoryPropertyDeviceLocalBit != 0 {
		out |= driver.MemoryDeviceLocal
	}
	if bits&vk.MemoryPropertyHostVisibleBit != 0 {
		out |= driver.MemoryHostVisible
	}
	if bits&vk.MemoryPropertyHostCoherentBit != 0 {
		out |= driver.MemoryHostCoherent
	}
	return out
}

// timeoutNanos converts a wait duration for the API. Negative durations
// wait forever.
func timeoutNanos(d time.Duration) uint64 {
	if d < 0 {
		return math.MaxUint64
	}
	return uint64(d)
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
