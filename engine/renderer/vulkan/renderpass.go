package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

func (d *Device) CreateRenderPass(info driver.RenderPassInfo) (driver.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, len(info.Attachments))
	depth := make([]bool, len(info.Attachments))
	for i, a := range info.Attachments {
		depth[i] = a.Format.IsDepth()
		attachments[i] = vk.AttachmentDescription{
			Format:         vkFormat(a.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vkLoadOp(a.Load),
			StoreOp:        vkStoreOp(a.Store),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vkLayout(a.Initial),
			FinalLayout:    vkLayout(a.Final),
		}
	}

	colorRefs := make([]vk.AttachmentReference, len(info.Color))
	for i, c := range info.Color {
		colorRefs[i] = vk.AttachmentReference{
			Attachment: uint32(c),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if info.Depth >= 0 {
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(info.Depth),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	deps := make([]vk.SubpassDependency, len(info.Dependencies))
	for i, dep := range info.Dependencies {
		deps[i] = vk.SubpassDependency{
			SrcSubpass:      subpassIndex(dep.Src),
			DstSubpass:      subpassIndex(dep.Dst),
			SrcStageMask:    vkStages(dep.SrcStage),
			DstStageMask:    vkStages(dep.DstStage),
			SrcAccessMask:   vkAccess(dep.SrcAccess),
			DstAccessMask:   vkAccess(dep.DstAccess),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		}
	}

	var handle vk.RenderPass
	err := resultError("vkCreateRenderPass", vk.CreateRenderPass(d.handle, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(deps)),
		PDependencies:   deps,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	return &RenderPass{dev: d, handle: handle, depth: depth}, nil
}

func subpassIndex(i uint32) uint32 {
	if i == driver.SubpassExternal {
		return vk.SubpassExternal
	}
	return i
}
