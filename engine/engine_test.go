package engine

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/assets"
	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/deferred"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(&Game{})
	require.Error(t, err)

	cfg := core.DefaultConfig()
	cfg.Renderer.FramesInFlight = 0
	_, err = New(&Game{Config: cfg})
	require.Error(t, err)

	e, err := New(&Game{Config: core.DefaultConfig()})
	require.NoError(t, err)
	assert.True(t, e.isRunning.Load())
	e.RequestQuit()
	assert.False(t, e.isRunning.Load())
}

func TestUniformsFromConfig(t *testing.T) {
	u := uniformsFromConfig(core.LightConfig{
		Direction: [3]float32{0, -2, 0},
		Position:  [3]float32{1, 2, 3},
		BaseColor: [3]float32{0.5, 0.5, 0.5},
	})
	assert.Equal(t, mgl32.Vec3{0, -1, 0}, u.LightDir)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, u.LightPos)
	assert.Equal(t, mgl32.Vec3{0.5, 0.5, 0.5}, u.BaseColor)
	assert.False(t, u.AnimateLightColor)

	// A zero direction keeps the default light.
	u = uniformsFromConfig(core.LightConfig{})
	assert.InDelta(t, 1, u.LightDir.Len(), 1e-6)
}

func TestResizeSuspendsAtZeroArea(t *testing.T) {
	var sizes [][2]uint32
	g := &Game{
		Config: core.DefaultConfig(),
		FnOnResize: func(w, h uint32) error {
			sizes = append(sizes, [2]uint32{w, h})
			return nil
		},
	}
	e, err := New(g)
	require.NoError(t, err)

	resize := func(w, h uint32) {
		var ctx core.EventContext
		ctx.Data.U32[0], ctx.Data.U32[1] = w, h
		e.onResized(core.EVENT_CODE_RESIZED, nil, e, ctx)
	}

	resize(0, 0)
	assert.True(t, e.isSuspended)
	assert.Empty(t, sizes)

	resize(800, 600)
	assert.False(t, e.isSuspended)
	assert.Equal(t, [][2]uint32{{800, 600}}, sizes)
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), h)

	// Same size again is ignored.
	resize(800, 600)
	assert.Len(t, sizes, 1)
}

// scriptedRenderer returns the queued errors from ReloadShaders in order.
type scriptedRenderer struct {
	reloadErrs []error
	reloads    int
	uniforms   deferred.UniformParams
}

func (r *scriptedRenderer) InitGraphics(driver.Surface, driver.Extent2D) error { return nil }
func (r *scriptedRenderer) LoadScene(deferred.Scene) error                     { return nil }
func (r *scriptedRenderer) DrawFrame(deferred.FrameInput) error                { return nil }
func (r *scriptedRenderer) Resize(driver.Extent2D)                             {}
func (r *scriptedRenderer) Uniforms() *deferred.UniformParams                  { return &r.uniforms }
func (r *scriptedRenderer) Cleanup()                                           {}

func (r *scriptedRenderer) ReloadShaders() error {
	r.reloads++
	if len(r.reloadErrs) == 0 {
		return nil
	}
	err := r.reloadErrs[0]
	r.reloadErrs = r.reloadErrs[1:]
	return err
}

func TestReloadIsRetriedAfterTheSwapchainRecovers(t *testing.T) {
	cfg := core.DefaultConfig()
	e, err := New(&Game{Config: cfg})
	require.NoError(t, err)
	r := &scriptedRenderer{reloadErrs: []error{deferred.ErrNeedsRecreate}}
	e.renderer = r

	// The request is kept without compiling again.
	e.reload = &assets.ReloadRequest{Path: "resolve.frag.spv"}
	require.NoError(t, e.reloadShaders())
	assert.Equal(t, 1, r.reloads)
	require.NotNil(t, e.reload)
	assert.False(t, e.reload.Compile)
	assert.Equal(t, "resolve.frag.spv", e.reload.Path)

	require.NoError(t, e.reloadShaders())
	assert.Equal(t, 2, r.reloads)
	assert.Nil(t, e.reload)

	// Nothing pending, nothing to do.
	require.NoError(t, e.reloadShaders())
	assert.Equal(t, 2, r.reloads)
}
