// Package vulkan implements the driver interfaces on top of Vulkan.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/deferred"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// SurfaceFactory creates a window surface for instance and returns its
// handle. It matches glfw.Window.CreateWindowSurface.
type SurfaceFactory func(instance interface{}, allocator unsafe.Pointer) (uintptr, error)

type Config struct {
	AppName string
	// Validation enables the Khronos validation layer and routes its
	// reports to the engine log.
	Validation bool
	// Extensions are the instance extensions the window system requires.
	Extensions []string
}

// Context owns the instance, the surface and the device, and hands out the
// GPUContext the renderers work with.
type Context struct {
	instance vk.Instance
	debug    vk.DebugReportCallback
	surface  vk.Surface
	device   *Device
	graphics *Queue
	transfer *Queue
}

// NewContext loads Vulkan, creates the instance and the window surface, and
// selects a device able to render and present to it.
func NewContext(cfg Config, createSurface SurfaceFactory) (c *Context, err error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vulkan: %w", err)
	}

	c = &Context{}
	defer func() {
		if err != nil {
			c.Destroy()
		}
	}()

	if err := c.createInstance(cfg); err != nil {
		return nil, err
	}
	if cfg.Validation {
		if err := c.createDebugCallback(); err != nil {
			return nil, err
		}
	}

	core.LogDebug("creating Vulkan surface")
	surface, err := createSurface(c.instance, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create window surface: %w", err)
	}
	c.surface = vk.SurfaceFromPointer(surface)

	pd, families, err := selectPhysicalDevice(c.instance, c.surface)
	if err != nil {
		return nil, err
	}
	core.LogDebug("queue families: graphics %d present %d transfer %d", families.graphics, families.present, families.transfer)
	if c.device, err = newDevice(pd, families); err != nil {
		return nil, err
	}
	c.graphics = newQueue(c.device, families.graphics)
	c.transfer = newQueue(c.device, families.transfer)
	core.LogInfo("Vulkan context ready")
	return c, nil
}

func (c *Context) createInstance(cfg Config) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(cfg.AppName),
		PEngineName:        safeString("gbuffer"),
	}
	extensions := []string{"VK_KHR_surface"}
	for _, e := range cfg.Extensions {
		if e != extensions[0] {
			extensions = append(extensions, e)
		}
	}
	info := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		info.Flags |= 1
	}

	var layers []string
	if cfg.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if !hasLayer(validationLayer) {
			return fmt.Errorf("required validation layer is missing: %s", validationLayer)
		}
		layers = append(layers, validationLayer)
		core.LogInfo("validation layers enabled")
	}
	for _, e := range extensions {
		core.LogDebug("instance extension %s", e)
	}

	info.EnabledExtensionCount = uint32(len(extensions))
	info.PpEnabledExtensionNames = safeStrings(extensions)
	info.EnabledLayerCount = uint32(len(layers))
	info.PpEnabledLayerNames = safeStrings(layers)

	if err := resultError("vkCreateInstance", vk.CreateInstance(&info, nil, &c.instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(c.instance); err != nil {
		return fmt.Errorf("failed to load instance functions: %w", err)
	}
	core.LogDebug("Vulkan instance created")
	return nil
}

func hasLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if vk.ToString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (c *Context) createDebugCallback() error {
	info := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugCallback,
	}
	if err := resultError("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(c.instance, &info, nil, &c.debug)); err != nil {
		return err
	}
	core.LogDebug("Vulkan debug callback created")
	return nil
}

func debugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64,
	messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("performance [%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

// GPU returns the objects shared by every renderer component.
func (c *Context) GPU() deferred.GPUContext {
	return deferred.GPUContext{
		Device:        c.device,
		GraphicsQueue: c.graphics,
		TransferQueue: c.transfer,
		Memory:        c.device.MemoryProperties(),
	}
}

// Surface is the presentation surface, to pass to a renderer.
func (c *Context) Surface() driver.Surface { return c.surface }

// Destroy releases the device, the surface and the instance. Every object
// created from the device must be destroyed first.
func (c *Context) Destroy() {
	if c.device != nil {
		c.device.destroy()
		c.device = nil
	}
	if c.surface != nil {
		vk.DestroySurface(c.instance, c.surface, nil)
		c.surface = nil
	}
	if c.debug != nil {
		vk.DestroyDebugReportCallback(c.instance, c.debug, nil)
		c.debug = nil
	}
	if c.instance != nil {
		vk.DestroyInstance(c.instance, nil)
		c.instance = nil
	}
	core.LogDebug("Vulkan context destroyed")
}
