package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

func (d *Device) CreatePipelineLayout(info driver.PipelineLayoutInfo) (driver.PipelineLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, len(info.SetLayouts))
	for i, l := range info.SetLayouts {
		layouts[i] = l.(*DescriptorSetLayout).handle
	}
	ranges := make([]vk.PushConstantRange, len(info.PushConstants))
	for i, r := range info.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vkShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	var handle vk.PipelineLayout
	err := resultError("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.handle, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(layouts)),
		PSetLayouts:            layouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	return &PipelineLayout{dev: d, handle: handle}, nil
}

func (d *Device) CreateGraphicsPipeline(info driver.GraphicsPipelineInfo) (driver.Pipeline, error) {
	stages := make([]vk.PipelineShaderStageCreateInfo, len(info.Stages))
	for i, s := range info.Stages {
		entry := s.Entry
		if entry == "" {
			entry = "main"
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(vkShaderStages(s.Stage)),
			Module: s.Module.(*ShaderModule).handle,
			PName:  safeString(entry),
		}
	}

	bindings := make([]vk.VertexInputBindingDescription, len(info.Bindings))
	for i, b := range info.Bindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRateVertex,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(info.Attributes))
	for i, a := range info.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vkFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	// Viewport and scissor are dynamic, only the counts matter.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	frontFace := vk.FrontFaceClockwise
	if info.CounterClockwise {
		frontFace = vk.FrontFaceCounterClockwise
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vkCullMode(info.Cull),
		FrontFace:   frontFace,
		LineWidth:   1.0,
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vkCompareOp(info.DepthCompare),
	}
	if info.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if info.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blends := make([]vk.PipelineColorBlendAttachmentState, len(info.Blend))
	for i, b := range info.Blend {
		blends[i] = vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: vkColorMask(b.WriteMask),
		}
		if b.Enable {
			blends[i].BlendEnable = vk.True
			blends[i].SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			blends[i].DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].ColorBlendOp = vk.BlendOpAdd
			blends[i].SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
			blends[i].DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].AlphaBlendOp = vk.BlendOpAdd
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	create := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamic,
		Layout:              info.Layout.(*PipelineLayout).handle,
		RenderPass:          info.RenderPass.(*RenderPass).handle,
		Subpass:             info.Subpass,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	err := d.locks.safeCall(pipelineManagement, func() error {
		return resultError("vkCreateGraphicsPipelines",
			vk.CreateGraphicsPipelines(d.handle, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{create}, nil, pipelines))
	})
	if err != nil {
		return nil, err
	}
	core.LogDebug("graphics pipeline created")
	return &Pipeline{dev: d, handle: pipelines[0]}, nil
}

func (d *Device) CreateComputePipeline(info driver.ComputePipelineInfo) (driver.Pipeline, error) {
	entry := info.Stage.Entry
	if entry == "" {
		entry = "main"
	}
	create := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: info.Stage.Module.(*ShaderModule).handle,
			PName:  safeString(entry),
		},
		Layout:            info.Layout.(*PipelineLayout).handle,
		BasePipelineIndex: -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	err := d.locks.safeCall(pipelineManagement, func() error {
		return resultError("vkCreateComputePipelines",
			vk.CreateComputePipelines(d.handle, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{create}, nil, pipelines))
	})
	if err != nil {
		return nil, err
	}
	core.LogDebug("compute pipeline created")
	return &Pipeline{dev: d, handle: pipelines[0]}, nil
}
