package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// swapchainSupport is what a surface allows on the selected device.
type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func querySwapchainSupport(pd vk.PhysicalDevice, surface vk.Surface) (swapchainSupport, error) {
	var s swapchainSupport
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &s.capabilities)); err != nil {
		return s, err
	}
	s.capabilities.Deref()
	s.capabilities.CurrentExtent.Deref()
	s.capabilities.MinImageExtent.Deref()
	s.capabilities.MaxImageExtent.Deref()

	var count uint32
	if err := resultError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, nil)); err != nil {
		return s, err
	}
	s.formats = make([]vk.SurfaceFormat, count)
	if err := resultError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, s.formats)); err != nil {
		return s, err
	}
	for i := range s.formats {
		s.formats[i].Deref()
	}

	count = 0
	if err := resultError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, nil)); err != nil {
		return s, err
	}
	s.presentModes = make([]vk.PresentMode, count)
	if err := resultError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, s.presentModes)); err != nil {
		return s, err
	}
	if len(s.formats) == 0 || len(s.presentModes) == 0 {
		return s, fmt.Errorf("surface has no formats or present modes: %w", driver.ErrFatal)
	}
	return s, nil
}

// chooseFormat prefers BGRA8 unorm in the sRGB color space, then the first
// format the driver package knows about.
func (s swapchainSupport) chooseFormat() (vk.SurfaceFormat, driver.Format) {
	for _, f := range s.formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f, driver.FormatBGRA8Unorm
		}
	}
	for _, f := range s.formats {
		if df := driverFormat(f.Format); df != driver.FormatUndefined {
			return f, df
		}
	}
	return s.formats[0], driver.FormatUndefined
}

// choosePresentMode returns FIFO with vsync, otherwise mailbox or immediate
// when available.
func (s swapchainSupport) choosePresentMode(vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, want := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, m := range s.presentModes {
			if m == want {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface extent when it is fixed, otherwise the
// requested one clamped to the allowed range.
func (s swapchainSupport) chooseExtent(want driver.Extent2D) vk.Extent2D {
	caps := s.capabilities
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(want.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(want.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func (s swapchainSupport) chooseImageCount(want uint32) uint32 {
	caps := s.capabilities
	upper := caps.MaxImageCount
	if upper == 0 {
		upper = math.MaxUint32
	}
	if want < caps.MinImageCount+1 {
		want = caps.MinImageCount + 1
	}
	return clamp(want, caps.MinImageCount, upper)
}

// Swapchain implements driver.Swapchain.
type Swapchain struct {
	dev    *Device
	handle vk.Swapchain
	images []driver.Image
	format driver.Format
	extent driver.Extent2D
}

func (d *Device) CreateSwapchain(info driver.SwapchainInfo) (driver.Swapchain, error) {
	surface, ok := info.Surface.(vk.Surface)
	if !ok {
		return nil, fmt.Errorf("surface %T is not a Vulkan surface: %w", info.Surface, driver.ErrFatal)
	}
	support, err := querySwapchainSupport(d.physical, surface)
	if err != nil {
		return nil, err
	}
	surfaceFormat, format := support.chooseFormat()
	if format == driver.FormatUndefined {
		return nil, fmt.Errorf("no supported swapchain format: %w", driver.ErrFatal)
	}
	extent := support.chooseExtent(info.Extent)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, fmt.Errorf("surface has zero area: %w", driver.ErrOutOfDate)
	}

	create := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    support.chooseImageCount(info.ImageCount),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      support.choosePresentMode(info.VSync),
		Clipped:          vk.True,
	}
	if d.families.graphics != d.families.present {
		create.ImageSharingMode = vk.SharingModeConcurrent
		create.QueueFamilyIndexCount = 2
		create.PQueueFamilyIndices = []uint32{uint32(d.families.graphics), uint32(d.families.present)}
	}
	if old, ok := info.Old.(*Swapchain); ok && old != nil {
		create.OldSwapchain = old.handle
	}

	sc := &Swapchain{
		dev:    d,
		format: format,
		extent: driver.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	if err := resultError("vkCreateSwapchain", vk.CreateSwapchain(d.handle, &create, nil, &sc.handle)); err != nil {
		return nil, err
	}

	var count uint32
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(d.handle, sc.handle, &count, nil)); err != nil {
		sc.Destroy()
		return nil, err
	}
	handles := make([]vk.Image, count)
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(d.handle, sc.handle, &count, handles)); err != nil {
		sc.Destroy()
		return nil, err
	}
	sc.images = make([]driver.Image, count)
	for i, h := range handles {
		sc.images[i] = &Image{dev: d, handle: h, extent: sc.extent, format: format, swapchain: true}
	}
	core.LogDebug("swapchain created: %d images %dx%d %s", count, extent.Width, extent.Height, format)
	return sc, nil
}

func (s *Swapchain) Images() []driver.Image  { return s.images }
func (s *Swapchain) Format() driver.Format   { return s.format }
func (s *Swapchain) Extent() driver.Extent2D { return s.extent }

func (s *Swapchain) AcquireNext(timeout time.Duration, signal driver.Semaphore) (uint32, error) {
	var idx uint32
	res := vk.AcquireNextImage(s.dev.handle, s.handle, timeoutNanos(timeout), signal.(*Semaphore).handle, vk.NullFence, &idx)
	if res == vk.ErrorOutOfDate {
		return 0, resultError("vkAcquireNextImage", res)
	}
	return idx, resultError("vkAcquireNextImage", res)
}

func (s *Swapchain) Destroy() {
	if s.handle == nil {
		return
	}
	vk.DestroySwapchain(s.dev.handle, s.handle, nil)
	s.handle = nil
	s.images = nil
	core.LogDebug("swapchain destroyed")
}
