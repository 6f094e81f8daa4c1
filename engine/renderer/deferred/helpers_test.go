package deferred

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver/drivertest"
)

var testExtent = driver.Extent2D{Width: 64, Height: 48}

func newTestContext(dev *drivertest.Device) GPUContext {
	return GPUContext{
		Device:        dev,
		GraphicsQueue: dev.GraphicsQueue(),
		TransferQueue: dev.TransferQueue(),
		Memory:        dev.MemoryProperties(),
	}
}

// fakeShaders returns a tiny module per path. Paths starting with
// "missing" fail like files that do not exist.
func fakeShaders(path string) ([]uint32, error) {
	if len(path) >= 7 && path[:7] == "missing" {
		return nil, fmt.Errorf("open %s: no such file or directory", path)
	}
	return []uint32{0x07230203, uint32(len(path))}, nil
}

type testScene struct {
	vertices *HostBuffer
	indices  *HostBuffer
	models   []mgl32.Mat4
	meshes   []MeshRange
}

func newTestScene(t *testing.T, ctx GPUContext, instances int) *testScene {
	t.Helper()
	vb, err := NewHostBuffer(ctx, 24*32, driver.BufferVertex)
	require.NoError(t, err)
	ib, err := NewHostBuffer(ctx, 36*4, driver.BufferIndex)
	require.NoError(t, err)
	s := &testScene{vertices: vb, indices: ib}
	for i := 0; i < instances; i++ {
		s.models = append(s.models, mgl32.Translate3D(float32(i)*2.5, 0, 0))
		// Instances alternate between two meshes in the shared buffers.
		if i%2 == 0 {
			s.meshes = append(s.meshes, MeshRange{IndexCount: 36})
		} else {
			s.meshes = append(s.meshes, MeshRange{IndexCount: 6, IndexOffset: 30, VertexOffset: 20})
		}
	}
	return s
}

func (s *testScene) VertexBuffer() driver.Buffer { return s.vertices.Buffer }
func (s *testScene) IndexBuffer() driver.Buffer  { return s.indices.Buffer }
func (s *testScene) InstanceCount() int          { return len(s.models) }

func (s *testScene) InstanceMatrix(i int) mgl32.Mat4 { return s.models[i] }
func (s *testScene) InstanceMesh(i int) MeshRange    { return s.meshes[i] }

func (s *testScene) VertexLayout() VertexLayout {
	return VertexLayout{
		Stride: 32,
		Attributes: []driver.VertexAttribute{
			{Location: 0, Format: driver.FormatRGB32Float},
			{Location: 1, Format: driver.FormatRGB32Float, Offset: 12},
			{Location: 2, Format: driver.FormatRG32Float, Offset: 24},
		},
	}
}

func (s *testScene) destroy() {
	s.vertices.Destroy()
	s.indices.Destroy()
}

func testOptions(n int) Options {
	return Options{
		FramesInFlight:       n,
		FenceTimeout:         2 * time.Second,
		WaitIdleAfterPresent: true,
		Shaders:              DefaultShaders("assets/shaders"),
		LoadShader:           fakeShaders,
	}
}

// newTestRenderer returns an initialized renderer with a loaded scene.
// Everything is released when the test ends.
func newTestRenderer(t *testing.T, dev *drivertest.Device, opts Options, instances int) (*Renderer, *testScene) {
	t.Helper()
	ctx := newTestContext(dev)
	r, err := New(ctx, opts)
	require.NoError(t, err)
	require.NoError(t, r.InitGraphics(struct{}{}, testExtent))
	scene := newTestScene(t, ctx, instances)
	require.NoError(t, r.LoadScene(scene))
	t.Cleanup(func() {
		dev.CompleteAll()
		r.Cleanup()
		scene.destroy()
	})
	return r, scene
}

func frameInput() FrameInput {
	return FrameInput{Time: 1, ProjView: mgl32.Perspective(mgl32.DegToRad(45), 4.0/3.0, 0.1, 100)}
}

// commandsOf returns the commands of the offscreen and resolve submissions
// of the n-th frame, counting from zero.
func commandsOf(t *testing.T, dev *drivertest.Device, n int) (offscreen, resolve []drivertest.Command) {
	t.Helper()
	var frames [][2]drivertest.SubmitRecord
	subs := dev.Submits()
	for i := 0; i+1 < len(subs); i++ {
		if subs[i].Fence == 0 && subs[i+1].Fence != 0 {
			frames = append(frames, [2]drivertest.SubmitRecord{subs[i], subs[i+1]})
			i++
		}
	}
	require.Greater(t, len(frames), n, "frame %d was not submitted", n)
	return frames[n][0].Commands[0], frames[n][1].Commands[0]
}

func ops(cmds []drivertest.Command, op string) []drivertest.Command {
	var out []drivertest.Command
	for _, c := range cmds {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
