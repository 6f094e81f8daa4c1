package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// Image is a 2D image. Swapchain images are owned by their swapchain and
// ignore Destroy.
type Image struct {
	dev       *Device
	handle    vk.Image
	extent    driver.Extent2D
	format    driver.Format
	reqs      driver.MemoryRequirements
	swapchain bool
}

func (i *Image) Extent() driver.Extent2D                       { return i.extent }
func (i *Image) Format() driver.Format                         { return i.format }
func (i *Image) MemoryRequirements() driver.MemoryRequirements { return i.reqs }

func (i *Image) Destroy() {
	if i.swapchain || i.handle == nil {
		return
	}
	vk.DestroyImage(i.dev.handle, i.handle, nil)
	i.handle = nil
}

type Memory struct {
	dev    *Device
	handle vk.DeviceMemory
	size   uint64
	mapped []byte
}

func (m *Memory) Size() uint64 { return m.size }

func (m *Memory) Map() ([]byte, error) {
	if m.mapped != nil {
		return m.mapped, nil
	}
	var ptr unsafe.Pointer
	if err := resultError("vkMapMemory", vk.MapMemory(m.dev.handle, m.handle, 0, vk.DeviceSize(m.size), 0, &ptr)); err != nil {
		return nil, err
	}
	m.mapped = unsafe.Slice((*byte)(ptr), m.size)
	return m.mapped, nil
}

func (m *Memory) Unmap() {
	if m.mapped == nil {
		return
	}
	vk.UnmapMemory(m.dev.handle, m.handle)
	m.mapped = nil
}

func (m *Memory) Destroy() {
	if m.handle == nil {
		return
	}
	m.Unmap()
	vk.FreeMemory(m.dev.handle, m.handle, nil)
	m.handle = nil
}

type ImageView struct {
	dev    *Device
	handle vk.ImageView
	image  *Image
}

func (v *ImageView) Image() driver.Image { return v.image }

func (v *ImageView) Destroy() {
	if v.handle == nil {
		return
	}
	vk.DestroyImageView(v.dev.handle, v.handle, nil)
	v.handle = nil
}

type Buffer struct {
	dev    *Device
	handle vk.Buffer
	size   uint64
	reqs   driver.MemoryRequirements
}

func (b *Buffer) Size() uint64                                  { return b.size }
func (b *Buffer) MemoryRequirements() driver.MemoryRequirements { return b.reqs }

func (b *Buffer) Destroy() {
	if b.handle == nil {
		return
	}
	vk.DestroyBuffer(b.dev.handle, b.handle, nil)
	b.handle = nil
}

type Sampler struct {
	dev    *Device
	handle vk.Sampler
}

func (s *Sampler) Destroy() {
	if s.handle == nil {
		return
	}
	vk.DestroySampler(s.dev.handle, s.handle, nil)
	s.handle = nil
}

type RenderPass struct {
	dev    *Device
	handle vk.RenderPass
	// depth[i] is set when attachment i has a depth format.
	depth []bool
}

func (r *RenderPass) isDepth(i int) bool { return i < len(r.depth) && r.depth[i] }

func (r *RenderPass) Destroy() {
	if r.handle == nil {
		return
	}
	vk.DestroyRenderPass(r.dev.handle, r.handle, nil)
	r.handle = nil
}

type Framebuffer struct {
	dev    *Device
	handle vk.Framebuffer
	extent driver.Extent2D
}

func (f *Framebuffer) Extent() driver.Extent2D { return f.extent }

func (f *Framebuffer) Destroy() {
	if f.handle == nil {
		return
	}
	vk.DestroyFramebuffer(f.dev.handle, f.handle, nil)
	f.handle = nil
}

type ShaderModule struct {
	dev    *Device
	handle vk.ShaderModule
}

func (s *ShaderModule) Destroy() {
	if s.handle == nil {
		return
	}
	vk.DestroyShaderModule(s.dev.handle, s.handle, nil)
	s.handle = nil
}

type DescriptorSetLayout struct {
	dev    *Device
	handle vk.DescriptorSetLayout
}

func (l *DescriptorSetLayout) Destroy() {
	if l.handle == nil {
		return
	}
	vk.DestroyDescriptorSetLayout(l.dev.handle, l.handle, nil)
	l.handle = nil
}

type DescriptorSet struct {
	handle vk.DescriptorSet
	layout *DescriptorSetLayout
}

func (s *DescriptorSet) Layout() driver.DescriptorSetLayout { return s.layout }

type DescriptorPool struct {
	dev    *Device
	handle vk.DescriptorPool
}

func (p *DescriptorPool) Allocate(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	l := layout.(*DescriptorSetLayout)
	var set vk.DescriptorSet
	err := p.dev.locks.safeCall(descriptorManagement, func() error {
		return resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(p.dev.handle, &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     p.handle,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{l.handle},
		}, &set))
	})
	if err != nil {
		return nil, err
	}
	return &DescriptorSet{handle: set, layout: l}, nil
}

func (p *DescriptorPool) Reset() error {
	return p.dev.locks.safeCall(descriptorManagement, func() error {
		return resultError("vkResetDescriptorPool", vk.ResetDescriptorPool(p.dev.handle, p.handle, 0))
	})
}

func (p *DescriptorPool) Destroy() {
	if p.handle == nil {
		return
	}
	vk.DestroyDescriptorPool(p.dev.handle, p.handle, nil)
	p.handle = nil
}

type PipelineLayout struct {
	dev    *Device
	handle vk.PipelineLayout
}

func (l *PipelineLayout) Destroy() {
	if l.handle == nil {
		return
	}
	vk.DestroyPipelineLayout(l.dev.handle, l.handle, nil)
	l.handle = nil
}

type Pipeline struct {
	dev    *Device
	handle vk.Pipeline
}

func (p *Pipeline) Destroy() {
	if p.handle == nil {
		return
	}
	_ = p.dev.locks.safeCall(pipelineManagement, func() error {
		vk.DestroyPipeline(p.dev.handle, p.handle, nil)
		return nil
	})
	p.handle = nil
}

type Fence struct {
	dev    *Device
	handle vk.Fence
}

func (f *Fence) Destroy() {
	if f.handle == nil {
		return
	}
	vk.DestroyFence(f.dev.handle, f.handle, nil)
	f.handle = nil
}

type Semaphore struct {
	dev    *Device
	handle vk.Semaphore
}

func (s *Semaphore) Destroy() {
	if s.handle == nil {
		return
	}
	vk.DestroySemaphore(s.dev.handle, s.handle, nil)
	s.handle = nil
}

func fenceHandles(fences []driver.Fence) []vk.Fence {
	out := make([]vk.Fence, len(fences))
	for i, f := range fences {
		out[i] = f.(*Fence).handle
	}
	return out
}

func semaphoreHandles(sems []driver.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, len(sems))
	for i, s := range sems {
		out[i] = s.(*Semaphore).handle
	}
	return out
}
