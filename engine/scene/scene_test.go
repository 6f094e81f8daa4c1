package scene

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/renderer/deferred"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver/drivertest"
)

func testContext(dev *drivertest.Device) deferred.GPUContext {
	return deferred.GPUContext{
		Device:        dev,
		GraphicsQueue: dev.GraphicsQueue(),
		Memory:        dev.MemoryProperties(),
	}
}

func TestCubeNormalsMatchWinding(t *testing.T) {
	m := GenerateCube(2, 1, 3)
	require.Len(t, m.Vertices, 24)
	require.Len(t, m.Indices, 36)

	want := make([]mgl32.Vec3, len(m.Vertices))
	for i, v := range m.Vertices {
		want[i] = v.Normal
	}
	GenerateNormals(&m)
	for i, v := range m.Vertices {
		assert.True(t, v.Normal.ApproxEqual(want[i]), "vertex %d: %v != %v", i, v.Normal, want[i])
	}
	for _, v := range m.Vertices {
		assert.InDelta(t, 1, math.Abs(float64(v.Position[0])), 1e-6)
		assert.InDelta(t, 0.5, math.Abs(float64(v.Position[1])), 1e-6)
		assert.InDelta(t, 1.5, math.Abs(float64(v.Position[2])), 1e-6)
	}
}

func TestPlaneFacesUp(t *testing.T) {
	m := GeneratePlane(4, 4)
	GenerateNormals(&m)
	for _, v := range m.Vertices {
		assert.True(t, v.Normal.ApproxEqual(mgl32.Vec3{0, 1, 0}))
	}
}

func TestSceneSharesBuffers(t *testing.T) {
	dev := drivertest.New()
	s, err := NewCubeRow(testContext(dev), 3, 2.5)
	require.NoError(t, err)
	defer s.Destroy()

	require.Equal(t, 4, s.InstanceCount())
	for i := 0; i < 3; i++ {
		assert.Equal(t, deferred.MeshRange{IndexCount: 36}, s.InstanceMesh(i))
	}
	assert.Equal(t, deferred.MeshRange{IndexCount: 6, IndexOffset: 36, VertexOffset: 24}, s.InstanceMesh(3))
	assert.Equal(t, uint64(28*VertexSize), s.VertexBuffer().Size())
	assert.Equal(t, uint64(42*4), s.IndexBuffer().Size())

	// Cubes are centered around the origin.
	assert.InDelta(t, -2.5, s.InstanceMatrix(0).Col(3)[0], 1e-6)
	assert.InDelta(t, 2.5, s.InstanceMatrix(2).Col(3)[0], 1e-6)
	assert.Equal(t, uint32(VertexSize), s.VertexLayout().Stride)
}

func TestSceneUploadsVertices(t *testing.T) {
	dev := drivertest.New()
	mesh := Mesh{
		Name:     "tri",
		Vertices: []Vertex{{Position: mgl32.Vec3{1, 2, 3}, Texcoord: mgl32.Vec2{0.5, 1}}, {}, {}},
		Indices:  []uint32{0, 2, 1},
	}
	s, err := New(testContext(dev), []Mesh{mesh}, []Instance{{Model: mgl32.Ident4()}})
	require.NoError(t, err)
	defer s.Destroy()

	data := s.vertices.Data
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(data[4:])))
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(data[24:])))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(s.indices.Data[4:]))
}

func TestSceneRejectsBadInstances(t *testing.T) {
	dev := drivertest.New()
	_, err := New(testContext(dev), []Mesh{GenerateCube(1, 1, 1)}, []Instance{{Mesh: 1}})
	assert.Error(t, err)
	_, err = New(testContext(dev), nil, nil)
	assert.Error(t, err)
	assert.Empty(t, dev.Leaks())
}

func TestAnimateKeepsPositions(t *testing.T) {
	dev := drivertest.New()
	s, err := NewCubeRow(testContext(dev), 2, 3)
	require.NoError(t, err)
	defer s.Destroy()

	before := s.InstanceMatrix(1).Col(3)
	plane := s.InstanceMatrix(2)
	s.Animate(1.2)
	assert.True(t, before.ApproxEqual(s.InstanceMatrix(1).Col(3)))
	assert.Equal(t, plane, s.InstanceMatrix(2))
	assert.False(t, s.InstanceMatrix(0).ApproxEqual(mgl32.Translate3D(-1.5, 0, 0)))
}

func TestProjViewFlipsY(t *testing.T) {
	c := NewCamera()
	c.SetPosition(mgl32.Vec3{0, 0, 5})
	c.SetLookAt(mgl32.Vec3{})

	pv := c.ProjView(1)
	above := pv.Mul4x1(mgl32.Vec4{0, 1, 0, 1})
	assert.Less(t, above[1]/above[3], float32(0), "points above the center map to negative y")

	center := pv.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	depth := center[2] / center[3]
	assert.True(t, depth > 0 && depth < 1, "depth %f outside [0,1]", depth)
}

func TestCameraMovesWithTarget(t *testing.T) {
	c := NewCamera()
	v0 := c.View()
	c.MoveForward(1)
	assert.False(t, v0.ApproxEqual(c.View()))
	assert.InDelta(t, 1, c.Forward().Len(), 1e-5)

	dist := c.Position.Sub(c.LookAt).Len()
	c.Orbit(mgl32.DegToRad(90))
	assert.InDelta(t, dist, c.Position.Sub(c.LookAt).Len(), 1e-4)
}
