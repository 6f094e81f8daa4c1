// Package scene provides the camera and the procedural geometry drawn by
// the renderers.
package scene

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/deferred"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// Instance places one mesh in the world.
type Instance struct {
	Mesh  int
	Model mgl32.Mat4
}

// Scene keeps every mesh in one vertex buffer and one index buffer and
// draws them through a list of instances.
type Scene struct {
	meshes    []Mesh
	ranges    []deferred.MeshRange
	instances []Instance

	vertices *deferred.HostBuffer
	indices  *deferred.HostBuffer
}

var _ deferred.Scene = (*Scene)(nil)

// New uploads meshes into host-visible buffers.
func New(ctx deferred.GPUContext, meshes []Mesh, instances []Instance) (*Scene, error) {
	if len(meshes) == 0 {
		return nil, fmt.Errorf("scene has no meshes")
	}
	for i, inst := range instances {
		if inst.Mesh < 0 || inst.Mesh >= len(meshes) {
			return nil, fmt.Errorf("instance %d refers to mesh %d of %d", i, inst.Mesh, len(meshes))
		}
	}
	s := &Scene{meshes: meshes, instances: instances}

	var nv, ni int
	for _, m := range meshes {
		s.ranges = append(s.ranges, deferred.MeshRange{
			IndexCount:   uint32(len(m.Indices)),
			IndexOffset:  uint32(ni),
			VertexOffset: int32(nv),
		})
		nv += len(m.Vertices)
		ni += len(m.Indices)
	}

	var err error
	if s.vertices, err = deferred.NewHostBuffer(ctx, uint64(nv*VertexSize), driver.BufferVertex); err != nil {
		return nil, fmt.Errorf("scene vertex buffer: %w", err)
	}
	if s.indices, err = deferred.NewHostBuffer(ctx, uint64(ni*4), driver.BufferIndex); err != nil {
		s.vertices.Destroy()
		return nil, fmt.Errorf("scene index buffer: %w", err)
	}
	vb, ib := s.vertices.Data, s.indices.Data
	for _, m := range meshes {
		for _, v := range m.Vertices {
			putVertex(vb, v)
			vb = vb[VertexSize:]
		}
		for _, i := range m.Indices {
			binary.LittleEndian.PutUint32(ib, i)
			ib = ib[4:]
		}
	}
	core.LogDebug("scene created: %d meshes, %d vertices, %d indices, %d instances", len(meshes), nv, ni, len(instances))
	return s, nil
}

func putVertex(b []byte, v Vertex) {
	f := [8]float32{
		v.Position[0], v.Position[1], v.Position[2],
		v.Normal[0], v.Normal[1], v.Normal[2],
		v.Texcoord[0], v.Texcoord[1],
	}
	for i, x := range f {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(x))
	}
}

// NewCubeRow builds n unit cubes spaced along the x axis over a ground
// plane.
func NewCubeRow(ctx deferred.GPUContext, n int, spacing float32) (*Scene, error) {
	meshes := []Mesh{GenerateCube(1, 1, 1), GeneratePlane(float32(n+2)*spacing, 2*spacing)}
	start := -float32(n-1) * spacing / 2
	var instances []Instance
	for i := 0; i < n; i++ {
		instances = append(instances, Instance{Mesh: 0, Model: mgl32.Translate3D(start+float32(i)*spacing, 0, 0)})
	}
	instances = append(instances, Instance{Mesh: 1, Model: mgl32.Translate3D(0, -0.5, 0)})
	return New(ctx, meshes, instances)
}

func (s *Scene) VertexBuffer() driver.Buffer { return s.vertices.Buffer }
func (s *Scene) IndexBuffer() driver.Buffer  { return s.indices.Buffer }
func (s *Scene) InstanceCount() int          { return len(s.instances) }

func (s *Scene) InstanceMatrix(i int) mgl32.Mat4        { return s.instances[i].Model }
func (s *Scene) InstanceMesh(i int) deferred.MeshRange { return s.ranges[s.instances[i].Mesh] }

func (s *Scene) VertexLayout() deferred.VertexLayout {
	return deferred.VertexLayout{
		Stride: VertexSize,
		Attributes: []driver.VertexAttribute{
			{Location: 0, Format: driver.FormatRGB32Float},
			{Location: 1, Format: driver.FormatRGB32Float, Offset: 12},
			{Location: 2, Format: driver.FormatRG32Float, Offset: 24},
		},
	}
}

// Animate spins every cube about the y axis by angle radians, keeping its
// position.
func (s *Scene) Animate(angle float32) {
	for i := range s.instances {
		if s.meshes[s.instances[i].Mesh].Name != "cube" {
			continue
		}
		pos := s.instances[i].Model.Col(3).Vec3()
		s.instances[i].Model = mgl32.Translate3D(pos[0], pos[1], pos[2]).Mul4(mgl32.HomogRotate3DY(angle + float32(i)))
	}
}

// Destroy releases the buffers. No frame using them may be in flight.
func (s *Scene) Destroy() {
	s.vertices.Destroy()
	s.indices.Destroy()
}
