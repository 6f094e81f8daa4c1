package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

const portabilitySubset = "VK_KHR_portability_subset"

// queueFamilies holds the selected family indices, -1 when missing.
type queueFamilies struct {
	graphics int
	present  int
	transfer int
}

func (q queueFamilies) complete() bool {
	return q.graphics >= 0 && q.present >= 0 && q.transfer >= 0
}

// unique returns the distinct family indices, graphics first.
func (q queueFamilies) unique() []uint32 {
	out := []uint32{uint32(q.graphics)}
	for _, f := range []int{q.present, q.transfer} {
		dup := false
		for _, o := range out {
			if o == uint32(f) {
				dup = true
			}
		}
		if !dup {
			out = append(out, uint32(f))
		}
	}
	return out
}

// Device implements driver.Device on a Vulkan logical device.
type Device struct {
	physical    vk.PhysicalDevice
	handle      vk.Device
	name        string
	families    queueFamilies
	memory      driver.MemoryProperties
	commandPool vk.CommandPool
	locks       *lockPool
}

// selectPhysicalDevice picks the first device that can render and present
// to surface, preferring discrete GPUs.
func selectPhysicalDevice(instance vk.Instance, surface vk.Surface) (vk.PhysicalDevice, queueFamilies, error) {
	var count uint32
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &count, nil)); err != nil {
		return nil, queueFamilies{}, err
	}
	if count == 0 {
		return nil, queueFamilies{}, fmt.Errorf("no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &count, devices)); err != nil {
		return nil, queueFamilies{}, err
	}

	var (
		best         vk.PhysicalDevice
		bestFamilies queueFamilies
		bestScore    = -1
	)
	for _, pd := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()
		name := vk.ToString(props.DeviceName[:])

		families, ok := findQueueFamilies(pd, surface)
		if !ok {
			core.LogInfo("device %q lacks required queues, skipping", name)
			continue
		}
		if !hasExtension(pd, vk.KhrSwapchainExtensionName) {
			core.LogInfo("device %q does not support swapchains, skipping", name)
			continue
		}
		if !hasSurfaceSupport(pd, surface) {
			core.LogInfo("device %q has no surface formats or present modes, skipping", name)
			continue
		}
		score := 0
		switch props.DeviceType {
		case vk.PhysicalDeviceTypeDiscreteGpu:
			score = 3
		case vk.PhysicalDeviceTypeIntegratedGpu:
			score = 2
		case vk.PhysicalDeviceTypeVirtualGpu:
			score = 1
		}
		if score > bestScore {
			best, bestFamilies, bestScore = pd, families, score
		}
	}
	if best == nil {
		return nil, queueFamilies{}, fmt.Errorf("no physical devices were found which meet the requirements")
	}
	return best, bestFamilies, nil
}

// findQueueFamilies prefers a graphics family that also runs compute and a
// dedicated transfer family, the one with the fewest other capabilities.
func findQueueFamilies(pd vk.PhysicalDevice, surface vk.Surface) (queueFamilies, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, props)

	q := queueFamilies{graphics: -1, present: -1, transfer: -1}
	minTransferScore := 255
	graphicsCompute := false
	for i := range props {
		props[i].Deref()
		flags := vk.QueueFlagBits(props[i].QueueFlags)
		score := 0
		if flags&vk.QueueGraphicsBit != 0 {
			if q.graphics < 0 || (!graphicsCompute && flags&vk.QueueComputeBit != 0) {
				q.graphics = i
				graphicsCompute = flags&vk.QueueComputeBit != 0
			}
			score++
		}
		if flags&vk.QueueComputeBit != 0 {
			score++
		}
		if flags&vk.QueueTransferBit != 0 && score <= minTransferScore {
			minTransferScore = score
			q.transfer = i
		}
		var supportsPresent vk.Bool32
		if vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &supportsPresent) != vk.Success {
			continue
		}
		if supportsPresent.B() && (q.present < 0 || i == q.graphics) {
			q.present = i
		}
	}
	// Graphics queues always support transfers.
	if q.transfer < 0 {
		q.transfer = q.graphics
	}
	return q, q.complete()
}

func deviceExtensions(pd vk.PhysicalDevice) []string {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil) != vk.Success || count == 0 {
		return nil
	}
	props := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, props) != vk.Success {
		return nil
	}
	names := make([]string, len(props))
	for i := range props {
		props[i].Deref()
		names[i] = vk.ToString(props[i].ExtensionName[:])
	}
	return names
}

func hasExtension(pd vk.PhysicalDevice, name string) bool {
	for _, e := range deviceExtensions(pd) {
		if e == name {
			return true
		}
	}
	return false
}

func hasSurfaceSupport(pd vk.PhysicalDevice, surface vk.Surface) bool {
	var formats, modes uint32
	vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formats, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modes, nil)
	return formats > 0 && modes > 0
}

// newDevice creates the logical device, one queue per distinct family and
// the graphics command pool.
func newDevice(pd vk.PhysicalDevice, families queueFamilies) (*Device, error) {
	d := &Device{physical: pd, families: families, locks: newLockPool()}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	d.name = vk.ToString(props.DeviceName[:])
	core.LogInfo("selected device %q", d.name)
	core.LogInfo("Vulkan API version: %d.%d.%d",
		vk.Version(props.ApiVersion).Major(), vk.Version(props.ApiVersion).Minor(), vk.Version(props.ApiVersion).Patch())

	var mem vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &mem)
	mem.Deref()
	for i := uint32(0); i < mem.MemoryTypeCount; i++ {
		mem.MemoryTypes[i].Deref()
		d.memory.Types = append(d.memory.Types, driver.MemoryType{
			Properties: driverMemoryProperty(mem.MemoryTypes[i].PropertyFlags),
			Heap:       mem.MemoryTypes[i].HeapIndex,
		})
	}
	for i := uint32(0); i < mem.MemoryHeapCount; i++ {
		mem.MemoryHeaps[i].Deref()
		gib := float64(mem.MemoryHeaps[i].Size) / (1 << 30)
		if vk.MemoryHeapFlagBits(mem.MemoryHeaps[i].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogDebug("local GPU memory: %.2f GiB", gib)
		} else {
			core.LogDebug("shared system memory: %.2f GiB", gib)
		}
	}

	var queueInfos []vk.DeviceQueueCreateInfo
	for _, f := range families.unique() {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if hasExtension(pd, portabilitySubset) {
		core.LogInfo("adding required extension %q", portabilitySubset)
		extensions = append(extensions, portabilitySubset)
	}

	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	if err := resultError("vkCreateDevice", vk.CreateDevice(pd, &info, nil, &d.handle)); err != nil {
		return nil, err
	}
	core.LogDebug("logical device created")

	pool := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(families.graphics),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(d.handle, &pool, nil, &d.commandPool)); err != nil {
		vk.DestroyDevice(d.handle, nil)
		return nil, err
	}
	core.LogDebug("graphics command pool created")
	return d, nil
}

// queue returns the first queue of the given family.
func (d *Device) queue(family int) vk.Queue {
	var q vk.Queue
	vk.GetDeviceQueue(d.handle, uint32(family), 0, &q)
	return q
}

// Name is the name reported by the physical device.
func (d *Device) Name() string { return d.name }

func (d *Device) destroy() {
	if d.handle == nil {
		return
	}
	core.LogDebug("destroying command pool")
	vk.DestroyCommandPool(d.handle, d.commandPool, nil)
	core.LogDebug("destroying logical device")
	vk.DestroyDevice(d.handle, nil)
	d.handle = nil
}

func (d *Device) CreateImage(info driver.ImageInfo) (driver.Image, error) {
	var handle vk.Image
	err := resultError("vkCreateImage", vk.CreateImage(d.handle, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vkFormat(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, handle, &reqs)
	reqs.Deref()
	return &Image{
		dev:    d,
		handle: handle,
		extent: info.Extent,
		format: info.Format,
		reqs: driver.MemoryRequirements{
			Size:      uint64(reqs.Size),
			Alignment: uint64(reqs.Alignment),
			TypeBits:  reqs.MemoryTypeBits,
		},
	}, nil
}

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (driver.Memory, error) {
	var handle vk.DeviceMemory
	err := resultError("vkAllocateMemory", vk.AllocateMemory(d.handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	return &Memory{dev: d, handle: handle, size: size}, nil
}

func (d *Device) BindImageMemory(img driver.Image, mem driver.Memory, offset uint64) error {
	return resultError("vkBindImageMemory",
		vk.BindImageMemory(d.handle, img.(*Image).handle, mem.(*Memory).handle, vk.DeviceSize(offset)))
}

func (d *Device) CreateImageView(img driver.Image, info driver.ImageViewInfo) (driver.ImageView, error) {
	image := img.(*Image)
	var handle vk.ImageView
	err := resultError("vkCreateImageView", vk.CreateImageView(d.handle, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image.handle,
		ViewType: vk.ImageViewType2d,
		Format:   vkFormat(info.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vkAspect(info.Aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	return &ImageView{dev: d, handle: handle, image: image}, nil
}

func (d *Device) CreateBuffer(info driver.BufferInfo) (driver.Buffer, error) {
	var handle vk.Buffer
	err := resultError("vkCreateBuffer", vk.CreateBuffer(d.handle, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       vkBufferUsage(info.Usage),
		Size:        vk.DeviceSize(info.Size),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, handle, &reqs)
	reqs.Deref()
	return &Buffer{
		dev:    d,
		handle: handle,
		size:   info.Size,
		reqs: driver.MemoryRequirements{
			Size:      uint64(reqs.Size),
			Alignment: uint64(reqs.Alignment),
			TypeBits:  reqs.MemoryTypeBits,
		},
	}, nil
}

func (d *Device) BindBufferMemory(buf driver.Buffer, mem driver.Memory, offset uint64) error {
	return resultError("vkBindBufferMemory",
		vk.BindBufferMemory(d.handle, buf.(*Buffer).handle, mem.(*Memory).handle, vk.DeviceSize(offset)))
}

func (d *Device) CreateSampler(info driver.SamplerInfo) (driver.Sampler, error) {
	filter := vkFilter(info.Filter)
	address := vkAddressMode(info.Address)
	var handle vk.Sampler
	err := resultError("vkCreateSampler", vk.CreateSampler(d.handle, &vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        filter,
		MinFilter:        filter,
		MipmapMode:       vk.SamplerMipmapModeLinear,
		AddressModeU:     address,
		AddressModeV:     address,
		AddressModeW:     address,
		MaxAnisotropy:    1,
		CompareOp:        vk.CompareOpAlways,
		BorderColor:      vk.BorderColorFloatOpaqueWhite,
		AnisotropyEnable: vk.False,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	return &Sampler{dev: d, handle: handle}, nil
}

func (d *Device) CreateFramebuffer(info driver.FramebufferInfo) (driver.Framebuffer, error) {
	views := make([]vk.ImageView, len(info.Attachments))
	for i, v := range info.Attachments {
		views[i] = v.(*ImageView).handle
	}
	var handle vk.Framebuffer
	err := resultError("vkCreateFramebuffer", vk.CreateFramebuffer(d.handle, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      info.RenderPass.(*RenderPass).handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	return &Framebuffer{dev: d, handle: handle, extent: info.Extent}, nil
}

func (d *Device) CreateShaderModule(code []uint32) (driver.ShaderModule, error) {
	var handle vk.ShaderModule
	err := resultError("vkCreateShaderModule", vk.CreateShaderModule(d.handle, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	return &ShaderModule{dev: d, handle: handle}, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []driver.DescriptorBinding) (driver.DescriptorSetLayout, error) {
	binds := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		binds[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vkDescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vkShaderStages(b.Stages),
		}
	}
	var handle vk.DescriptorSetLayout
	err := resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.handle, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(binds)),
		PBindings:    binds,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	return &DescriptorSetLayout{dev: d, handle: handle}, nil
}

func (d *Device) CreateDescriptorPool(info driver.DescriptorPoolInfo) (driver.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(info.Sizes))
	for i, s := range info.Sizes {
		sizes[i] = vk.DescriptorPoolSize{Type: vkDescriptorType(s.Type), DescriptorCount: s.Count}
	}
	var handle vk.DescriptorPool
	err := resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.handle, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       info.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	return &DescriptorPool{dev: d, handle: handle}, nil
}

func (d *Device) UpdateDescriptorSets(writes []driver.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}
	out := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		out[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          w.Set.(*DescriptorSet).handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vkDescriptorType(w.Type),
		}
		if w.Buffer != nil {
			out[i].PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: w.Buffer.Buffer.(*Buffer).handle,
				Offset: vk.DeviceSize(w.Buffer.Offset),
				Range:  vk.DeviceSize(w.Buffer.Range),
			}}
		}
		if w.Image != nil {
			out[i].PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     w.Image.Sampler.(*Sampler).handle,
				ImageView:   w.Image.View.(*ImageView).handle,
				ImageLayout: vkLayout(w.Image.Layout),
			}}
		}
	}
	_ = d.locks.safeCall(descriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.handle, uint32(len(out)), out, 0, nil)
		return nil
	})
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var handle vk.Fence
	if err := resultError("vkCreateFence", vk.CreateFence(d.handle, &info, nil, &handle)); err != nil {
		return nil, err
	}
	return &Fence{dev: d, handle: handle}, nil
}

func (d *Device) WaitForFences(fences []driver.Fence, timeout time.Duration) error {
	if len(fences) == 0 {
		return nil
	}
	handles := fenceHandles(fences)
	res := vk.WaitForFences(d.handle, uint32(len(handles)), handles, vk.True, timeoutNanos(timeout))
	switch res {
	case vk.Timeout:
		core.LogWarn("fence wait timed out after %s", timeout)
	case vk.ErrorDeviceLost:
		core.LogError("fence wait: device lost")
	}
	return resultError("vkWaitForFences", res)
}

func (d *Device) ResetFences(fences []driver.Fence) error {
	if len(fences) == 0 {
		return nil
	}
	handles := fenceHandles(fences)
	return resultError("vkResetFences", vk.ResetFences(d.handle, uint32(len(handles)), handles))
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	var handle vk.Semaphore
	err := resultError("vkCreateSemaphore", vk.CreateSemaphore(d.handle, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &handle))
	if err != nil {
		return nil, err
	}
	return &Semaphore{dev: d, handle: handle}, nil
}

func (d *Device) AllocateCommandBuffers(count int) ([]driver.CommandBuffer, error) {
	handles := make([]vk.CommandBuffer, count)
	err := d.locks.safeCall(commandPoolManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.handle, &vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        d.commandPool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: uint32(count),
		}, handles))
	})
	if err != nil {
		return nil, err
	}
	out := make([]driver.CommandBuffer, count)
	for i, h := range handles {
		out[i] = &CommandBuffer{dev: d, handle: h, state: commandBufferReady}
	}
	return out, nil
}

func (d *Device) SupportedDepthFormat(candidates []driver.Format) (driver.Format, bool) {
	want := vk.FormatFeatureDepthStencilAttachmentBit
	for _, c := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, vkFormat(c), &props)
		props.Deref()
		if vk.FormatFeatureFlagBits(props.OptimalTilingFeatures)&want == want {
			return c, true
		}
	}
	return driver.FormatUndefined, false
}

func (d *Device) MemoryProperties() driver.MemoryProperties { return d.memory }

func (d *Device) WaitIdle() error {
	return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.handle))
}
