package drivertest

import (
	"fmt"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

type Image struct {
	object
	info  driver.ImageInfo
	bound bool
	// swapchain images are owned by their swapchain.
	presentable bool
}

func (i *Image) Extent() driver.Extent2D { return i.info.Extent }
func (i *Image) Format() driver.Format   { return i.info.Format }
func (i *Image) Usage() driver.ImageUsage {
	return i.info.Usage
}

func (i *Image) MemoryRequirements() driver.MemoryRequirements {
	texel := uint64(4)
	switch i.info.Format {
	case driver.FormatRGBA16Float:
		texel = 8
	case driver.FormatRGBA32Float:
		texel = 16
	}
	return driver.MemoryRequirements{
		Size:      uint64(i.info.Extent.Width) * uint64(i.info.Extent.Height) * texel,
		Alignment: 256,
		TypeBits:  allTypes(i.dev),
	}
}

func allTypes(d *Device) uint32 { return 1<<uint(len(d.props.Types)) - 1 }

type Memory struct {
	object
	data   []byte
	mapped bool
}

func (m *Memory) Size() uint64 { return uint64(len(m.data)) }

func (m *Memory) Map() ([]byte, error) {
	m.dev.mu.Lock()
	defer m.dev.mu.Unlock()
	if m.destroyed {
		return nil, fmt.Errorf("drivertest: map of destroyed memory %d", m.id)
	}
	m.mapped = true
	return m.data, nil
}

func (m *Memory) Unmap() {
	m.dev.mu.Lock()
	defer m.dev.mu.Unlock()
	m.mapped = false
}

// Bytes returns the contents of the allocation.
func (m *Memory) Bytes() []byte { return m.data }

type ImageView struct {
	object
	image *Image
	info  driver.ImageViewInfo
}

func (v *ImageView) Image() driver.Image { return v.image }

type Buffer struct {
	object
	info   driver.BufferInfo
	memory *Memory
}

func (b *Buffer) Size() uint64 { return b.info.Size }

func (b *Buffer) MemoryRequirements() driver.MemoryRequirements {
	return driver.MemoryRequirements{Size: b.info.Size, Alignment: 64, TypeBits: allTypes(b.dev)}
}

type Sampler struct{ object }

type RenderPass struct {
	object
	info driver.RenderPassInfo
}

// Info returns the description the render pass was created with.
func (r *RenderPass) Info() driver.RenderPassInfo { return r.info }

type Framebuffer struct {
	object
	info  driver.FramebufferInfo
	views []int
}

func (f *Framebuffer) Extent() driver.Extent2D { return f.info.Extent }

// Views returns the IDs of the attached image views.
func (f *Framebuffer) Views() []int { return f.views }

type ShaderModule struct {
	object
	code []uint32
}

type DescriptorSetLayout struct {
	object
	bindings []driver.DescriptorBinding
}

type DescriptorSet struct {
	id     int
	pool   *DescriptorPool
	layout *DescriptorSetLayout
	freed  bool
	bound  map[uint32]int
}

func (s *DescriptorSet) Layout() driver.DescriptorSetLayout { return s.layout }

// Bound returns the ID of the object bound at binding, or 0.
func (s *DescriptorSet) Bound(binding uint32) int { return s.bound[binding] }

type DescriptorPool struct {
	object
	info driver.DescriptorPoolInfo
	sets []*DescriptorSet
	used map[driver.DescriptorType]uint32
}

func (p *DescriptorPool) Allocate(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	d := p.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkLive("allocate descriptor set", p)
	d.checkLive("allocate descriptor set", layout)
	l, ok := layout.(*DescriptorSetLayout)
	if !ok {
		return nil, fmt.Errorf("drivertest: foreign layout %T", layout)
	}
	if uint32(len(p.sets)) >= p.info.MaxSets {
		return nil, errPoolExhausted
	}
	need := make(map[driver.DescriptorType]uint32)
	for _, b := range l.bindings {
		need[b.Type] += b.Count
	}
	for t, n := range need {
		var capacity uint32
		for _, s := range p.info.Sizes {
			if s.Type == t {
				capacity += s.Count
			}
		}
		if p.used[t]+n > capacity {
			return nil, errPoolExhausted
		}
	}
	for t, n := range need {
		p.used[t] += n
	}
	d.nextID++
	s := &DescriptorSet{id: d.nextID, pool: p, layout: l, bound: make(map[uint32]int)}
	p.sets = append(p.sets, s)
	return s, nil
}

func (p *DescriptorPool) Reset() error {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	for _, s := range p.sets {
		s.freed = true
	}
	p.sets = nil
	p.used = make(map[driver.DescriptorType]uint32)
	return nil
}

// Sets returns the number of sets currently allocated.
func (p *DescriptorPool) Sets() int {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	return len(p.sets)
}

type PipelineLayout struct {
	object
	info driver.PipelineLayoutInfo
}

func (l *PipelineLayout) Info() driver.PipelineLayoutInfo { return l.info }

type Pipeline struct {
	object
	info    driver.GraphicsPipelineInfo
	compute bool
}

type Fence struct {
	object
	signaled bool
}

// Signaled reports whether the fence is signaled.
func (f *Fence) Signaled() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.signaled
}

type Semaphore struct {
	object
	signaled bool
}

type Swapchain struct {
	object
	info   driver.SwapchainInfo
	images []*Image
	next   uint32
	// Generation counts swapchains created by the device, starting at 1.
	Generation int
}

func (s *Swapchain) Images() []driver.Image {
	imgs := make([]driver.Image, len(s.images))
	for i, img := range s.images {
		imgs[i] = img
	}
	return imgs
}

func (s *Swapchain) Format() driver.Format   { return driver.FormatBGRA8SRGB }
func (s *Swapchain) Extent() driver.Extent2D { return s.info.Extent }

func (s *Swapchain) Destroy() {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, img := range s.images {
		d.destroyLocked(&img.object)
	}
	d.destroyLocked(&s.object)
}
