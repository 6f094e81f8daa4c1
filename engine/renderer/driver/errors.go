package driver

import "errors"

// ErrOutOfDate means the surface changed in a way that makes the swapchain
// unusable. It must be recreated before the next acquire.
var ErrOutOfDate = errors.New("driver: swapchain out of date")

// ErrSuboptimal means the swapchain can still present but no longer matches
// the surface exactly. Recreation is recommended.
var ErrSuboptimal = errors.New("driver: swapchain suboptimal")

// ErrTimeout means a wait operation did not complete in the given time.
var ErrTimeout = errors.New("driver: wait timed out")

// ErrDeviceLost means the logical device is unusable.
var ErrDeviceLost = errors.New("driver: device lost")

// ErrNoMemoryType means no memory type satisfies an allocation request.
var ErrNoMemoryType = errors.New("driver: no suitable memory type")

// ErrFatal wraps any other failure reported by the underlying API.
var ErrFatal = errors.New("driver: fatal error")
