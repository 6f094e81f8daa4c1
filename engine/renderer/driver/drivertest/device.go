package drivertest

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

var _ driver.Device = (*Device)(nil)

func (d *Device) CreateImage(info driver.ImageInfo) (driver.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, err := d.newObject(KindImage)
	if err != nil {
		return nil, err
	}
	if info.Extent.IsZero() {
		return nil, fmt.Errorf("drivertest: zero-area image")
	}
	img := &Image{object: o, info: info}
	d.register(&img.object)
	return img, nil
}

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (driver.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(typeIndex) >= len(d.props.Types) {
		return nil, driver.ErrNoMemoryType
	}
	o, err := d.newObject(KindMemory)
	if err != nil {
		return nil, err
	}
	m := &Memory{object: o, data: make([]byte, size)}
	d.register(&m.object)
	return m, nil
}

func (d *Device) BindImageMemory(img driver.Image, mem driver.Memory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkLive("bind image memory", img)
	d.checkLive("bind image memory", mem)
	i := img.(*Image)
	if i.bound {
		d.violate("image %d bound twice", i.id)
	}
	if req := i.MemoryRequirements(); offset+req.Size > mem.Size() {
		return fmt.Errorf("drivertest: memory %d too small for image %d", ID(mem), i.id)
	}
	i.bound = true
	return nil
}

func (d *Device) CreateImageView(img driver.Image, info driver.ImageViewInfo) (driver.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkLive("create image view", img)
	i := img.(*Image)
	if !i.bound && !i.presentable {
		d.violate("view of image %d created before memory was bound", i.id)
	}
	o, err := d.newObject(KindImageView)
	if err != nil {
		return nil, err
	}
	v := &ImageView{object: o, image: i, info: info}
	d.register(&v.object)
	return v, nil
}

func (d *Device) CreateBuffer(info driver.BufferInfo) (driver.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, err := d.newObject(KindBuffer)
	if err != nil {
		return nil, err
	}
	b := &Buffer{object: o, info: info}
	d.register(&b.object)
	return b, nil
}

func (d *Device) BindBufferMemory(buf driver.Buffer, mem driver.Memory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkLive("bind buffer memory", buf)
	d.checkLive("bind buffer memory", mem)
	b := buf.(*Buffer)
	if offset+b.info.Size > mem.Size() {
		return fmt.Errorf("drivertest: memory %d too small for buffer %d", ID(mem), b.id)
	}
	b.memory = mem.(*Memory)
	return nil
}

func (d *Device) CreateSampler(info driver.SamplerInfo) (driver.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, err := d.newObject(KindSampler)
	if err != nil {
		return nil, err
	}
	s := &Sampler{object: o}
	d.register(&s.object)
	return s, nil
}

func (d *Device) CreateRenderPass(info driver.RenderPassInfo) (driver.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range info.Color {
		if c < 0 || c >= len(info.Attachments) {
			return nil, fmt.Errorf("drivertest: color reference %d out of range", c)
		}
	}
	if info.Depth >= len(info.Attachments) {
		return nil, fmt.Errorf("drivertest: depth reference %d out of range", info.Depth)
	}
	o, err := d.newObject(KindRenderPass)
	if err != nil {
		return nil, err
	}
	rp := &RenderPass{object: o, info: info}
	d.register(&rp.object)
	return rp, nil
}

func (d *Device) CreateFramebuffer(info driver.FramebufferInfo) (driver.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkLive("create framebuffer", info.RenderPass)
	rp := info.RenderPass.(*RenderPass)
	if len(info.Attachments) != len(rp.info.Attachments) {
		return nil, fmt.Errorf("drivertest: framebuffer has %d attachments, render pass %d expects %d",
			len(info.Attachments), rp.id, len(rp.info.Attachments))
	}
	views := make([]int, len(info.Attachments))
	for i, v := range info.Attachments {
		views[i] = d.checkLive("create framebuffer", v)
		if e := v.Image().Extent(); e != info.Extent {
			d.violate("framebuffer attachment %d is %dx%d, framebuffer is %dx%d",
				i, e.Width, e.Height, info.Extent.Width, info.Extent.Height)
		}
	}
	o, err := d.newObject(KindFramebuffer)
	if err != nil {
		return nil, err
	}
	fb := &Framebuffer{object: o, info: info, views: views}
	d.register(&fb.object)
	return fb, nil
}

func (d *Device) CreateShaderModule(code []uint32) (driver.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) == 0 {
		return nil, fmt.Errorf("drivertest: empty shader code")
	}
	o, err := d.newObject(KindShaderModule)
	if err != nil {
		return nil, err
	}
	sm := &ShaderModule{object: o, code: append([]uint32(nil), code...)}
	d.register(&sm.object)
	return sm, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []driver.DescriptorBinding) (driver.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, err := d.newObject(KindSetLayout)
	if err != nil {
		return nil, err
	}
	l := &DescriptorSetLayout{object: o, bindings: append([]driver.DescriptorBinding(nil), bindings...)}
	d.register(&l.object)
	return l, nil
}

func (d *Device) CreateDescriptorPool(info driver.DescriptorPoolInfo) (driver.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, err := d.newObject(KindDescriptorPool)
	if err != nil {
		return nil, err
	}
	p := &DescriptorPool{object: o, info: info, used: make(map[driver.DescriptorType]uint32)}
	d.register(&p.object)
	return p, nil
}

func (d *Device) UpdateDescriptorSets(writes []driver.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		s, ok := w.Set.(*DescriptorSet)
		if !ok || s.freed {
			d.violate("update of freed or foreign descriptor set")
			continue
		}
		var decl *driver.DescriptorBinding
		for i := range s.layout.bindings {
			if s.layout.bindings[i].Binding == w.Binding {
				decl = &s.layout.bindings[i]
			}
		}
		if decl == nil || decl.Type != w.Type {
			d.violate("descriptor write to undeclared binding %d", w.Binding)
			continue
		}
		switch {
		case w.Buffer != nil:
			s.bound[w.Binding] = d.checkLive("descriptor write", w.Buffer.Buffer)
		case w.Image != nil:
			s.bound[w.Binding] = d.checkLive("descriptor write", w.Image.View)
			d.checkLive("descriptor write", w.Image.Sampler)
		default:
			d.violate("descriptor write to binding %d has no resource", w.Binding)
		}
	}
}

func (d *Device) CreatePipelineLayout(info driver.PipelineLayoutInfo) (driver.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range info.SetLayouts {
		d.checkLive("create pipeline layout", l)
	}
	o, err := d.newObject(KindPipelineLayout)
	if err != nil {
		return nil, err
	}
	pl := &PipelineLayout{object: o, info: info}
	d.register(&pl.object)
	return pl, nil
}

func (d *Device) CreateGraphicsPipeline(info driver.GraphicsPipelineInfo) (driver.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range info.Stages {
		d.checkLive("create pipeline", s.Module)
	}
	d.checkLive("create pipeline", info.Layout)
	d.checkLive("create pipeline", info.RenderPass)
	rp := info.RenderPass.(*RenderPass)
	if len(info.Blend) != len(rp.info.Color) {
		return nil, fmt.Errorf("drivertest: %d blend states for %d color attachments",
			len(info.Blend), len(rp.info.Color))
	}
	o, err := d.newObject(KindPipeline)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{object: o, info: info}
	d.register(&p.object)
	d.pipelines = append(d.pipelines, info)
	return p, nil
}

func (d *Device) CreateComputePipeline(info driver.ComputePipelineInfo) (driver.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkLive("create compute pipeline", info.Stage.Module)
	d.checkLive("create compute pipeline", info.Layout)
	if info.Stage.Stage != driver.StageCompute {
		return nil, fmt.Errorf("drivertest: compute pipeline with stage %d", info.Stage.Stage)
	}
	o, err := d.newObject(KindPipeline)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{object: o, compute: true}
	d.register(&p.object)
	d.computePipelines = append(d.computePipelines, info)
	return p, nil
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, err := d.newObject(KindFence)
	if err != nil {
		return nil, err
	}
	f := &Fence{object: o, signaled: signaled}
	d.register(&f.object)
	return f, nil
}

func (d *Device) WaitForFences(fences []driver.Fence, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fenceWaits++
	for _, f := range fences {
		d.checkLive("wait for fences", f)
	}
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	defer timer.Stop()
	for {
		if d.lost {
			return driver.ErrDeviceLost
		}
		done := true
		for _, f := range fences {
			if !f.(*Fence).signaled {
				done = false
			}
		}
		if done {
			return nil
		}
		if !time.Now().Before(deadline) {
			return driver.ErrTimeout
		}
		d.cond.Wait()
	}
}

func (d *Device) ResetFences(fences []driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		d.checkLive("reset fences", f)
		fc := f.(*Fence)
		for _, s := range d.pending {
			if s.fence == fc {
				d.violate("fence %d reset while pending", fc.id)
			}
		}
		fc.signaled = false
	}
	return nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, err := d.newObject(KindSemaphore)
	if err != nil {
		return nil, err
	}
	s := &Semaphore{object: o}
	d.register(&s.object)
	return s, nil
}

func (d *Device) AllocateCommandBuffers(count int) ([]driver.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cbs := make([]driver.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		o, err := d.newObject(KindCommandBuffer)
		if err != nil {
			for _, cb := range cbs {
				d.destroyLocked(&cb.(*CommandBuffer).object)
			}
			return nil, err
		}
		cb := &CommandBuffer{object: o, refs: make(map[int]struct{})}
		d.register(&cb.object)
		cbs = append(cbs, cb)
	}
	return cbs, nil
}

func (d *Device) CreateSwapchain(info driver.SwapchainInfo) (driver.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.IsZero() {
		return nil, fmt.Errorf("drivertest: zero-area swapchain")
	}
	if info.Old != nil {
		d.checkLive("create swapchain", info.Old)
	}
	o, err := d.newObject(KindSwapchain)
	if err != nil {
		return nil, err
	}
	count := info.ImageCount
	if count < d.MinImageCount {
		count = d.MinImageCount
	}
	d.swapchainGen++
	sc := &Swapchain{object: o, info: info, Generation: d.swapchainGen}
	d.register(&sc.object)
	for i := uint32(0); i < count; i++ {
		d.nextID++
		img := &Image{
			object:      object{dev: d, id: d.nextID, kind: KindImage},
			info:        driver.ImageInfo{Extent: info.Extent, Format: sc.Format(), Usage: driver.UsageColorAttachment},
			presentable: true,
		}
		d.register(&img.object)
		sc.images = append(sc.images, img)
	}
	return sc, nil
}

// AcquireNext hands out images in round-robin order.
func (s *Swapchain) AcquireNext(timeout time.Duration, signal driver.Semaphore) (uint32, error) {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquires++
	d.checkLive("acquire", s)
	d.checkLive("acquire", signal)
	var err error
	if len(d.acquireErrs) > 0 {
		err = d.acquireErrs[0]
		d.acquireErrs = d.acquireErrs[1:]
		if err != driver.ErrSuboptimal {
			return 0, err
		}
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	signal.(*Semaphore).signaled = true
	return idx, err
}

func (d *Device) SupportedDepthFormat(candidates []driver.Format) (driver.Format, bool) {
	for _, c := range candidates {
		for _, f := range d.DepthFormats {
			if c == f {
				return c, true
			}
		}
	}
	return driver.FormatUndefined, false
}

func (d *Device) MemoryProperties() driver.MemoryProperties { return d.props }

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waitIdle++
	d.completeLocked(len(d.pending))
	return nil
}
