package deferred

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// ErrShaderLoad is returned by Build and Rebuild when a shader file cannot
// be read. The current pipeline is kept in that case.
var ErrShaderLoad = errors.New("failed to load shader")

// ShaderPaths maps each programmable stage to a SPIR-V file.
type ShaderPaths map[driver.ShaderStage]string

// ShaderLoader reads SPIR-V words from a file.
type ShaderLoader func(path string) ([]uint32, error)

// PipelineDesc is everything a pipeline is built from. A description
// whose only shader is a compute stage builds a compute pipeline and
// ignores the fixed-function fields.
type PipelineDesc struct {
	Name             string
	Shaders          ShaderPaths
	SetLayouts       []driver.DescriptorSetLayout
	PushConstantSize uint32
	PushStages       driver.ShaderStage
	RenderPass       driver.RenderPass
	Blend            []driver.BlendState
	Vertex           VertexLayout
	DepthTest        bool
	DepthWrite       bool
	Cull             driver.CullMode
}

// Pipeline is a pipeline with its layout.
type Pipeline struct {
	Handle driver.Pipeline
	Layout driver.PipelineLayout
}

// PipelineBuilder owns at most one pipeline and can tear it down and
// build it again from the same description.
type PipelineBuilder struct {
	ctx  GPUContext
	load ShaderLoader

	desc     PipelineDesc
	pipeline *Pipeline
}

func NewPipelineBuilder(ctx GPUContext, load ShaderLoader) *PipelineBuilder {
	return &PipelineBuilder{ctx: ctx, load: load}
}

// Pipeline returns the current pipeline or nil.
func (b *PipelineBuilder) Pipeline() *Pipeline { return b.pipeline }

// Build releases the current pipeline, if any, and creates a new one from
// desc. Shader files are read before anything is released so a missing
// file leaves the current pipeline in place. No submitted command buffer
// may still reference the current pipeline.
func (b *PipelineBuilder) Build(desc PipelineDesc) (*Pipeline, error) {
	stages := make([]driver.ShaderStage, 0, len(desc.Shaders))
	for s := range desc.Shaders {
		stages = append(stages, s)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })

	codes := make([][]uint32, len(stages))
	for i, s := range stages {
		code, err := b.load(desc.Shaders[s])
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w %q: %v", desc.Name, ErrShaderLoad, desc.Shaders[s], err)
		}
		codes[i] = code
	}

	b.release()
	p, err := b.create(desc, stages, codes)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", desc.Name, err)
	}
	b.desc = desc
	b.pipeline = p
	core.LogDebug("pipeline %s built with %d stages", desc.Name, len(stages))
	return p, nil
}

// Rebuild builds the pipeline again from the last description.
func (b *PipelineBuilder) Rebuild() (*Pipeline, error) {
	if b.desc.Shaders == nil {
		return nil, fmt.Errorf("pipeline was never built")
	}
	return b.Build(b.desc)
}

// SetLayouts replaces the descriptor set layouts used by the next Rebuild.
func (b *PipelineBuilder) SetLayouts(layouts []driver.DescriptorSetLayout) {
	b.desc.SetLayouts = layouts
}

// SetRenderPass replaces the render pass used by the next Rebuild.
func (b *PipelineBuilder) SetRenderPass(rp driver.RenderPass) {
	b.desc.RenderPass = rp
}

func (b *PipelineBuilder) create(desc PipelineDesc, stages []driver.ShaderStage, codes [][]uint32) (p *Pipeline, err error) {
	var rel releaser
	defer rel.onError(&err)

	// Modules are only needed until the pipeline exists.
	var modules releaser
	defer modules.release()

	var shaders []driver.ShaderStageInfo
	for i, s := range stages {
		m, err := b.ctx.Device.CreateShaderModule(codes[i])
		if err != nil {
			return nil, fmt.Errorf("failed to create shader module: %w", err)
		}
		modules.push(m)
		shaders = append(shaders, driver.ShaderStageInfo{Stage: s, Module: m, Entry: "main"})
	}

	layoutInfo := driver.PipelineLayoutInfo{SetLayouts: desc.SetLayouts}
	if desc.PushConstantSize > 0 {
		layoutInfo.PushConstants = []driver.PushConstantRange{{Stages: desc.PushStages, Size: desc.PushConstantSize}}
	}
	layout, err := b.ctx.Device.CreatePipelineLayout(layoutInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline layout: %w", err)
	}
	rel.push(layout)

	if len(stages) == 1 && stages[0] == driver.StageCompute {
		handle, err := b.ctx.Device.CreateComputePipeline(driver.ComputePipelineInfo{Stage: shaders[0], Layout: layout})
		if err != nil {
			return nil, fmt.Errorf("failed to create compute pipeline: %w", err)
		}
		return &Pipeline{Handle: handle, Layout: layout}, nil
	}

	info := driver.GraphicsPipelineInfo{
		Stages:           shaders,
		Cull:             desc.Cull,
		CounterClockwise: true,
		DepthTest:        desc.DepthTest,
		DepthWrite:       desc.DepthWrite,
		DepthCompare:     driver.CompareLess,
		Blend:            desc.Blend,
		Layout:           layout,
		RenderPass:       desc.RenderPass,
	}
	if desc.Vertex.Stride > 0 {
		info.Bindings = []driver.VertexBinding{{Binding: 0, Stride: desc.Vertex.Stride}}
		info.Attributes = desc.Vertex.Attributes
	}
	handle, err := b.ctx.Device.CreateGraphicsPipeline(info)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphics pipeline: %w", err)
	}
	return &Pipeline{Handle: handle, Layout: layout}, nil
}

func (b *PipelineBuilder) release() {
	if b.pipeline == nil {
		return
	}
	b.pipeline.Handle.Destroy()
	b.pipeline.Layout.Destroy()
	b.pipeline = nil
}

// Destroy releases the current pipeline. The builder can be used again.
func (b *PipelineBuilder) Destroy() {
	b.release()
}

// Blend states for n color attachments, blending disabled.
func opaqueBlend(n int) []driver.BlendState {
	bs := make([]driver.BlendState, n)
	for i := range bs {
		bs[i].WriteMask = driver.ColorAll
	}
	return bs
}
