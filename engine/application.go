package engine

import (
	"github.com/go-gl/mathgl/mgl32"
)

// FramePacket is filled by the game every frame and handed to the
// renderer.
type FramePacket struct {
	// DeltaTime is the time since the previous frame in seconds.
	DeltaTime float64
	// Time is the time since the engine started in seconds.
	Time     float32
	ProjView mgl32.Mat4
	// OverlayData is passed untouched to the overlay, if any.
	OverlayData interface{}
}
