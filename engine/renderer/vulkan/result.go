package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// resultString returns the name of a Vulkan result code, or its
// description when extended is set.
func resultString(result vk.Result, extended bool) string {
	name, desc := "VK_UNKNOWN_RESULT", "Unrecognized result code"
	switch result {
	case vk.Success:
		name, desc = "VK_SUCCESS", "Command successfully completed"
	case vk.NotReady:
		name, desc = "VK_NOT_READY", "A fence or query has not yet completed"
	case vk.Timeout:
		name, desc = "VK_TIMEOUT", "A wait operation has not completed in the specified time"
	case vk.EventSet:
		name, desc = "VK_EVENT_SET", "An event is signaled"
	case vk.EventReset:
		name, desc = "VK_EVENT_RESET", "An event is unsignaled"
	case vk.Incomplete:
		name, desc = "VK_INCOMPLETE", "A return array was too small for the result"
	case vk.Suboptimal:
		name, desc = "VK_SUBOPTIMAL_KHR", "A swapchain no longer matches the surface properties exactly, but can still be used to present to the surface successfully"
	case vk.ErrorOutOfHostMemory:
		name, desc = "VK_ERROR_OUT_OF_HOST_MEMORY", "A host memory allocation has failed"
	case vk.ErrorOutOfDeviceMemory:
		name, desc = "VK_ERROR_OUT_OF_DEVICE_MEMORY", "A device memory allocation has failed"
	case vk.ErrorInitializationFailed:
		name, desc = "VK_ERROR_INITIALIZATION_FAILED", "Initialization of an object could not be completed for implementation-specific reasons"
	case vk.ErrorDeviceLost:
		name, desc = "VK_ERROR_DEVICE_LOST", "The logical or physical device has been lost"
	case vk.ErrorMemoryMapFailed:
		name, desc = "VK_ERROR_MEMORY_MAP_FAILED", "Mapping of a memory object has failed"
	case vk.ErrorLayerNotPresent:
		name, desc = "VK_ERROR_LAYER_NOT_PRESENT", "A requested layer is not present or could not be loaded"
	case vk.ErrorExtensionNotPresent:
		name, desc = "VK_ERROR_EXTENSION_NOT_PRESENT", "A requested extension is not supported"
	case vk.ErrorFeatureNotPresent:
		name, desc = "VK_ERROR_FEATURE_NOT_PRESENT", "A requested feature is not supported"
	case vk.ErrorIncompatibleDriver:
		name, desc = "VK_ERROR_INCOMPATIBLE_DRIVER", "The requested version of Vulkan is not supported by the driver"
	case vk.ErrorTooManyObjects:
		name, desc = "VK_ERROR_TOO_MANY_OBJECTS", "Too many objects of the type have already been created"
	case vk.ErrorFormatNotSupported:
		name, desc = "VK_ERROR_FORMAT_NOT_SUPPORTED", "A requested format is not supported on this device"
	case vk.ErrorFragmentedPool:
		name, desc = "VK_ERROR_FRAGMENTED_POOL", "A pool allocation has failed due to fragmentation of the pool's memory"
	case vk.ErrorSurfaceLost:
		name, desc = "VK_ERROR_SURFACE_LOST_KHR", "A surface is no longer available"
	case vk.ErrorNativeWindowInUse:
		name, desc = "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "The requested window is already in use by Vulkan or another API"
	case vk.ErrorOutOfDate:
		name, desc = "VK_ERROR_OUT_OF_DATE_KHR", "A surface has changed in such a way that it is no longer compatible with the swapchain"
	case vk.ErrorIncompatibleDisplay:
		name, desc = "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR", "The display used by a swapchain does not use the same presentable image layout"
	case vk.ErrorOutOfPoolMemory:
		name, desc = "VK_ERROR_OUT_OF_POOL_MEMORY", "A pool memory allocation has failed"
	case vk.ErrorInvalidExternalHandle:
		name, desc = "VK_ERROR_INVALID_EXTERNAL_HANDLE", "An external handle is not a valid handle of the specified type"
	case vk.ErrorFragmentation:
		name, desc = "VK_ERROR_FRAGMENTATION", "A descriptor pool creation has failed due to fragmentation"
	case vk.ErrorUnknown:
		name, desc = "VK_ERROR_UNKNOWN", "An unknown error has occurred"
	}
	if extended {
		return name + " " + desc
	}
	return name
}

// resultError converts the result of the named call into an error that
// wraps the matching driver sentinel. Success returns nil.
func resultError(call string, result vk.Result) error {
	var sentinel error
	switch result {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		sentinel = driver.ErrSuboptimal
	case vk.ErrorOutOfDate:
		sentinel = driver.ErrOutOfDate
	case vk.Timeout, vk.NotReady:
		sentinel = driver.ErrTimeout
	case vk.ErrorDeviceLost:
		sentinel = driver.ErrDeviceLost
	default:
		sentinel = driver.ErrFatal
	}
	return fmt.Errorf("%s failed with %s: %w", call, resultString(result, false), sentinel)
}

// safeString terminates s with a NUL byte as the C API expects.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}
