package core

import (
	"errors"
)

var (
	// ErrSwapchainBooting means the frame was skipped because the swapchain
	// was resized or recreated. The caller simply draws the next frame.
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	// ErrDeviceLost is unrecoverable: a fence never signaled within the
	// timeout or the device reported itself lost.
	ErrDeviceLost = errors.New("device lost")
	ErrUnknown    = errors.New("unknown")
)
