// Package driver defines the set of GPU objects and operations the frame
// orchestrator relies on. The Vulkan backend lives in
// engine/renderer/vulkan, an in-memory implementation for tests in
// engine/renderer/driver/drivertest.
//
// Every object is created by a Device and released with Destroy. Handles
// are only valid while their creator is alive.
package driver

import "time"

// Destroyer is the interface that wraps the Destroy method.
// Destroying an object twice has no effect.
type Destroyer interface {
	Destroy()
}

// Device creates GPU objects and provides device-wide synchronization.
// A Device is not safe for concurrent use: a single goroutine records and
// submits all GPU work.
type Device interface {
	CreateImage(info ImageInfo) (Image, error)
	AllocateMemory(size uint64, typeIndex uint32) (Memory, error)
	BindImageMemory(img Image, mem Memory, offset uint64) error
	CreateImageView(img Image, info ImageViewInfo) (ImageView, error)

	CreateBuffer(info BufferInfo) (Buffer, error)
	BindBufferMemory(buf Buffer, mem Memory, offset uint64) error

	CreateSampler(info SamplerInfo) (Sampler, error)

	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	CreateDescriptorPool(info DescriptorPoolInfo) (DescriptorPool, error)
	UpdateDescriptorSets(writes []DescriptorWrite)
	CreatePipelineLayout(info PipelineLayoutInfo) (PipelineLayout, error)
	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	CreateComputePipeline(info ComputePipelineInfo) (Pipeline, error)

	CreateFence(signaled bool) (Fence, error)
	// WaitForFences blocks until all fences are signaled.
	// It returns ErrTimeout or ErrDeviceLost on failure.
	WaitForFences(fences []Fence, timeout time.Duration) error
	ResetFences(fences []Fence) error
	CreateSemaphore() (Semaphore, error)

	// AllocateCommandBuffers allocates primary command buffers from the
	// graphics command pool.
	AllocateCommandBuffers(count int) ([]CommandBuffer, error)

	CreateSwapchain(info SwapchainInfo) (Swapchain, error)

	// SupportedDepthFormat returns the first candidate usable as an optimal
	// tiling depth/stencil attachment.
	SupportedDepthFormat(candidates []Format) (Format, bool)
	MemoryProperties() MemoryProperties

	// WaitIdle blocks until every queue of the device is idle.
	WaitIdle() error
}

// Queue accepts command submissions and, when it supports presentation,
// presents swapchain images.
type Queue interface {
	Submit(batches []SubmitInfo, fence Fence) error
	// Present returns ErrOutOfDate or ErrSuboptimal when the swapchain
	// needs recreation. Other errors are fatal.
	Present(sc Swapchain, imageIndex uint32, wait []Semaphore) error
	WaitIdle() error
}

type SubmitInfo struct {
	Wait           []Semaphore
	WaitStages     []PipelineStage
	CommandBuffers []CommandBuffer
	Signal         []Semaphore
}

type Image interface {
	Destroyer
	Extent() Extent2D
	Format() Format
	MemoryRequirements() MemoryRequirements
}

type Memory interface {
	Destroyer
	Size() uint64
	// Map maps the whole allocation. The returned slice stays valid until
	// Unmap or Destroy.
	Map() ([]byte, error)
	Unmap()
}

type ImageView interface {
	Destroyer
	Image() Image
}

type Buffer interface {
	Destroyer
	Size() uint64
	MemoryRequirements() MemoryRequirements
}

type Sampler interface{ Destroyer }

type RenderPass interface{ Destroyer }

type Framebuffer interface {
	Destroyer
	Extent() Extent2D
}

type ShaderModule interface{ Destroyer }

type DescriptorSetLayout interface{ Destroyer }

type DescriptorSet interface {
	Layout() DescriptorSetLayout
}

type DescriptorPool interface {
	Destroyer
	Allocate(layout DescriptorSetLayout) (DescriptorSet, error)
	// Reset returns every set allocated from the pool.
	Reset() error
}

type PipelineLayout interface{ Destroyer }

type Pipeline interface{ Destroyer }

type Fence interface{ Destroyer }

type Semaphore interface{ Destroyer }

// Surface is the presentation target provided by the windowing layer.
type Surface interface{}
