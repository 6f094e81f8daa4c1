package forward

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/deferred"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver/drivertest"
)

var testExtent = driver.Extent2D{Width: 64, Height: 48}

func fakeShaders(path string) ([]uint32, error) {
	return []uint32{0x07230203, uint32(len(path))}, nil
}

func newTestRenderer(t *testing.T, dev *drivertest.Device, opts Options) *Renderer {
	t.Helper()
	ctx := deferred.GPUContext{
		Device:        dev,
		GraphicsQueue: dev.GraphicsQueue(),
		TransferQueue: dev.TransferQueue(),
		Memory:        dev.MemoryProperties(),
	}
	r, err := New(ctx, opts)
	require.NoError(t, err)
	// The texture upload waits for its own fence.
	dev.AutoComplete = true
	require.NoError(t, r.InitGraphics(struct{}{}, testExtent))
	dev.AutoComplete = false
	t.Cleanup(func() {
		dev.CompleteAll()
		r.Cleanup()
		assert.Empty(t, dev.Leaks())
	})
	return r
}

func testOptions(n int) Options {
	return Options{
		FramesInFlight: n,
		FenceTimeout:   2 * time.Second,
		Shaders:        DefaultShaders("assets/shaders"),
		LoadShader:     fakeShaders,
	}
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	path := filepath.Join(t.TempDir(), "sdf.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestPushConstantsLayout(t *testing.T) {
	p := PushConstants{RotX: 0.5, RotY: -1, Translate: mgl32.Vec3{1, 2, 3}, DrawDepth: true}
	b := p.Bytes()
	require.Len(t, b, PushConstantsSize)
	// Bytes 8..16 pad translate to a 16 byte boundary.
	assert.Equal(t, make([]byte, 8), b[8:16])

	got, err := DecodePushConstants(b)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = DecodePushConstants(b[:16])
	assert.Error(t, err)
}

func TestMissingTextureFallsBackToWhiteTexel(t *testing.T) {
	dev := drivertest.New()
	opts := testOptions(2)
	opts.Texture = filepath.Join(t.TempDir(), "missing.png")
	r := newTestRenderer(t, dev, opts)

	assert.Equal(t, driver.Extent2D{Width: 1, Height: 1}, r.Texture().Extent)
	assert.Empty(t, dev.Violations())
}

func TestTextureUploadRecordsTransitions(t *testing.T) {
	dev := drivertest.New()
	opts := testOptions(1)
	opts.Texture = writePNG(t, 8, 4)
	r := newTestRenderer(t, dev, opts)

	assert.Equal(t, driver.Extent2D{Width: 8, Height: 4}, r.Texture().Extent)
	subs := dev.Submits()
	require.NotEmpty(t, subs)
	var got []string
	for _, c := range subs[0].Commands[0] {
		got = append(got, c.Op)
	}
	assert.Equal(t, []string{"Barrier", "CopyBufferToImage", "Barrier"}, got)
	cmds := subs[0].Commands[0]
	assert.Equal(t, []uint32{uint32(driver.LayoutUndefined), uint32(driver.LayoutTransferDst)}, cmds[0].Args)
	assert.Equal(t, []uint32{uint32(driver.LayoutTransferDst), uint32(driver.LayoutShaderRead)}, cmds[2].Args)
	assert.Equal(t, []uint32{8, 4}, cmds[1].Args)
	// Staging buffer, upload command buffer and fence are gone.
	assert.Equal(t, 1, dev.Live(drivertest.KindBuffer), "only the uniform buffer remains")
}

func TestSetTextureKeepsCurrentOnFailure(t *testing.T) {
	dev := drivertest.New()
	r := newTestRenderer(t, dev, testOptions(2))
	before := r.Texture()

	require.NoError(t, r.SetTexture(filepath.Join(t.TempDir(), "nope.png")))
	assert.Same(t, before, r.Texture())

	dev.AutoComplete = true
	require.NoError(t, r.SetTexture(writePNG(t, 2, 2)))
	dev.AutoComplete = false
	assert.Equal(t, driver.Extent2D{Width: 2, Height: 2}, r.Texture().Extent)
	require.NoError(t, r.DrawFrame(deferred.FrameInput{Time: 1}))
	assert.Empty(t, dev.Violations())
}

func TestDrawFrameRecordsFullScreenTriangle(t *testing.T) {
	dev := drivertest.New()
	r := newTestRenderer(t, dev, testOptions(2))
	r.Push().RotX = 0.25
	r.Push().DrawDepth = true
	before := len(dev.Submits())

	require.NoError(t, r.DrawFrame(deferred.FrameInput{Time: 2}))

	subs := dev.Submits()[before:]
	require.Len(t, subs, 1)
	assert.NotZero(t, subs[0].Fence)
	assert.Len(t, subs[0].Wait, 1)
	var draws, pushes []drivertest.Command
	for _, c := range subs[0].Commands[0] {
		switch c.Op {
		case "Draw":
			draws = append(draws, c)
		case "PushConstants":
			pushes = append(pushes, c)
		}
	}
	require.Len(t, draws, 1)
	assert.Equal(t, []uint32{3, 1, 0, 0}, draws[0].Args)
	require.Len(t, pushes, 1)
	pc, err := DecodePushConstants(pushes[0].Data)
	require.NoError(t, err)
	assert.Equal(t, float32(0.25), pc.RotX)
	assert.True(t, pc.DrawDepth)
	assert.Equal(t, float32(2), r.Uniforms().Time)
	assert.Len(t, dev.Presents(), 1)
}

func TestFrameWaitsForItsSlot(t *testing.T) {
	dev := drivertest.New()
	r := newTestRenderer(t, dev, testOptions(1))

	require.NoError(t, r.DrawFrame(deferred.FrameInput{}))
	done := make(chan error, 1)
	go func() { done <- r.DrawFrame(deferred.FrameInput{}) }()
	select {
	case <-done:
		t.Fatal("second frame did not wait for the first")
	case <-time.After(50 * time.Millisecond):
	}
	dev.CompleteNext()
	require.NoError(t, <-done)
	assert.Empty(t, dev.Violations())
}

func TestResizeToZeroSkipsFrames(t *testing.T) {
	dev := drivertest.New()
	r := newTestRenderer(t, dev, testOptions(2))
	dev.AutoComplete = true

	r.Resize(driver.Extent2D{})
	assert.ErrorIs(t, r.DrawFrame(deferred.FrameInput{}), core.ErrSwapchainBooting)
	assert.Equal(t, 1, r.Swapchain().Sync().Current())

	r.Resize(driver.Extent2D{Width: 32, Height: 32})
	require.NoError(t, r.DrawFrame(deferred.FrameInput{}))
	assert.Equal(t, driver.Extent2D{Width: 32, Height: 32}, r.Swapchain().Extent())
	assert.Empty(t, dev.Violations())
}

func TestReloadShadersRebuildsPipeline(t *testing.T) {
	dev := drivertest.New()
	r := newTestRenderer(t, dev, testOptions(2))
	dev.AutoComplete = true
	require.NoError(t, r.DrawFrame(deferred.FrameInput{}))

	n := len(dev.Pipelines())
	require.NoError(t, r.ReloadShaders())
	assert.Len(t, dev.Pipelines(), n+1)
	assert.Equal(t, 1, dev.Live(drivertest.KindPipeline))
}

func TestReloadShadersWaitsForASuccessfulRecreate(t *testing.T) {
	dev := drivertest.New()
	r := newTestRenderer(t, dev, testOptions(2))
	dev.AutoComplete = true
	require.NoError(t, r.DrawFrame(deferred.FrameInput{}))
	n := len(dev.Pipelines())

	r.Resize(driver.Extent2D{Width: 32, Height: 32})
	dev.FailNext(drivertest.KindFramebuffer, errors.New("out of device memory"))
	require.Error(t, r.DrawFrame(deferred.FrameInput{}))

	assert.ErrorIs(t, r.ReloadShaders(), deferred.ErrNeedsRecreate)
	assert.ErrorIs(t, r.SetTexture(writePNG(t, 2, 2)), deferred.ErrNeedsRecreate)
	assert.Len(t, dev.Pipelines(), n)
	assert.Empty(t, dev.Violations())

	require.NoError(t, r.DrawFrame(deferred.FrameInput{}))
	require.NoError(t, r.ReloadShaders())
	assert.Empty(t, dev.Violations())
}
