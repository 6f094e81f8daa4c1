package deferred

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver/drivertest"
)

func testPipelineDesc(t *testing.T, dev *drivertest.Device) PipelineDesc {
	t.Helper()
	rp, err := dev.CreateRenderPass(driver.RenderPassInfo{
		Attachments: []driver.AttachmentInfo{{Format: driver.FormatRGBA8Unorm}},
		Color:       []int{0},
		Depth:       -1,
	})
	require.NoError(t, err)
	t.Cleanup(rp.Destroy)
	return PipelineDesc{
		Name: "test",
		Shaders: ShaderPaths{
			driver.StageFragment: "test.frag.spv",
			driver.StageVertex:   "test.vert.spv",
		},
		PushConstantSize: PushConstantsSize,
		PushStages:       driver.StageVertex,
		RenderPass:       rp,
		Blend:            opaqueBlend(1),
	}
}

func TestPipelineBuildIsDeterministic(t *testing.T) {
	dev := drivertest.New()
	b := NewPipelineBuilder(newTestContext(dev), fakeShaders)
	defer b.Destroy()
	desc := testPipelineDesc(t, dev)

	_, err := b.Build(desc)
	require.NoError(t, err)
	_, err = b.Rebuild()
	require.NoError(t, err)

	infos := dev.Pipelines()
	require.Len(t, infos, 2)
	for i := range infos {
		require.Len(t, infos[i].Stages, 2)
		assert.Equal(t, driver.StageVertex, infos[i].Stages[0].Stage, "stages are ordered")
		assert.Equal(t, driver.StageFragment, infos[i].Stages[1].Stage)
		for j := range infos[i].Stages {
			infos[i].Stages[j].Module = nil
		}
		infos[i].Layout = nil
	}
	assert.Equal(t, infos[0], infos[1])
	assert.True(t, infos[0].CounterClockwise)
	assert.Equal(t, driver.CompareLess, infos[0].DepthCompare)
}

func TestRebuildReleasesPreviousPipeline(t *testing.T) {
	dev := drivertest.New()
	b := NewPipelineBuilder(newTestContext(dev), fakeShaders)
	desc := testPipelineDesc(t, dev)

	first, err := b.Build(desc)
	require.NoError(t, err)
	second, err := b.Rebuild()
	require.NoError(t, err)

	assert.False(t, dev.Alive(drivertest.ID(first.Handle)))
	assert.False(t, dev.Alive(drivertest.ID(first.Layout)))
	assert.Same(t, second, b.Pipeline())
	assert.Equal(t, 1, dev.Live(drivertest.KindPipeline))
	assert.Equal(t, 1, dev.Live(drivertest.KindPipelineLayout))
	assert.Zero(t, dev.Live(drivertest.KindShaderModule), "modules are released once the pipeline exists")

	b.Destroy()
	assert.Nil(t, b.Pipeline())
	assert.Zero(t, dev.Live(drivertest.KindPipeline))
	assert.Empty(t, dev.Violations())
}

func TestMissingShaderKeepsCurrentPipeline(t *testing.T) {
	dev := drivertest.New()
	b := NewPipelineBuilder(newTestContext(dev), fakeShaders)
	defer b.Destroy()
	desc := testPipelineDesc(t, dev)

	p, err := b.Build(desc)
	require.NoError(t, err)

	broken := desc
	broken.Shaders = ShaderPaths{driver.StageVertex: "missing.vert.spv", driver.StageFragment: "test.frag.spv"}
	_, err = b.Build(broken)
	require.ErrorIs(t, err, ErrShaderLoad)
	assert.Contains(t, err.Error(), "missing.vert.spv")
	assert.Same(t, p, b.Pipeline())
	assert.True(t, dev.Alive(drivertest.ID(p.Handle)))

	_, err = b.Rebuild()
	assert.NoError(t, err, "rebuild uses the last good description")
}

func TestRebuildBeforeBuildFails(t *testing.T) {
	b := NewPipelineBuilder(newTestContext(drivertest.New()), fakeShaders)
	_, err := b.Rebuild()
	assert.Error(t, err)
}

func TestPushConstantRange(t *testing.T) {
	dev := drivertest.New()
	b := NewPipelineBuilder(newTestContext(dev), fakeShaders)
	defer b.Destroy()
	desc := testPipelineDesc(t, dev)
	desc.Vertex = VertexLayout{Stride: 32, Attributes: []driver.VertexAttribute{{Format: driver.FormatRGB32Float}}}

	p, err := b.Build(desc)
	require.NoError(t, err)
	assert.Equal(t, uint32(PushConstantsSize), p.Layout.(*drivertest.PipelineLayout).Info().PushConstants[0].Size)
	info := dev.Pipelines()[0]
	require.Len(t, info.Bindings, 1)
	assert.Equal(t, uint32(32), info.Bindings[0].Stride)
}

func TestComputeOnlyDescBuildsComputePipeline(t *testing.T) {
	dev := drivertest.New()
	b := NewPipelineBuilder(newTestContext(dev), fakeShaders)
	desc := PipelineDesc{
		Name:             "scan",
		Shaders:          ShaderPaths{driver.StageCompute: "scan.comp.spv"},
		PushConstantSize: 4,
		PushStages:       driver.StageCompute,
	}

	p, err := b.Build(desc)
	require.NoError(t, err)
	_, err = b.Rebuild()
	require.NoError(t, err)

	assert.Empty(t, dev.Pipelines())
	infos := dev.ComputePipelines()
	require.Len(t, infos, 2)
	assert.Equal(t, driver.StageCompute, infos[1].Stage.Stage)
	assert.Same(t, b.Pipeline().Layout, infos[1].Layout)
	assert.False(t, dev.Alive(drivertest.ID(p.Handle)))
	assert.Equal(t, driver.StageCompute, b.Pipeline().Layout.(*drivertest.PipelineLayout).Info().PushConstants[0].Stages)
	assert.Zero(t, dev.Live(drivertest.KindShaderModule))

	b.Destroy()
	assert.Empty(t, dev.Leaks())
	assert.Empty(t, dev.Violations())
}
