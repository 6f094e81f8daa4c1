package deferred

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// MeshRange locates one mesh inside the shared vertex and index buffers.
type MeshRange struct {
	IndexCount   uint32
	IndexOffset  uint32
	VertexOffset int32
}

// VertexLayout describes the interleaved vertices of the shared vertex
// buffer, bound at binding 0.
type VertexLayout struct {
	Stride     uint32
	Attributes []driver.VertexAttribute
}

// Scene provides geometry to the attribute pass. Indices are 32 bits.
type Scene interface {
	VertexBuffer() driver.Buffer
	IndexBuffer() driver.Buffer
	VertexLayout() VertexLayout
	InstanceCount() int
	InstanceMatrix(i int) mgl32.Mat4
	InstanceMesh(i int) MeshRange
}

// Overlay draws on top of the resolved image, typically a GUI.
// It never owns swapchain resources; it learns about them when the
// swapchain changes.
type Overlay interface {
	// BuildCommands returns a recorded command buffer that renders drawData
	// into swapchain image imageIndex.
	BuildCommands(imageIndex uint32, drawData interface{}) (driver.CommandBuffer, error)
	OnSwapchainChanged(info SwapchainInfo) error
}
