package core

import "github.com/spaghettifunk/gbuffer/engine/containers"

const AVG_COUNT uint8 = 30

// FrameMetrics keeps a rolling average of the last AVG_COUNT frame times and
// a once-per-second frames-per-second counter.
type FrameMetrics struct {
	msTimes            *containers.RingQueue[float64]
	msSum              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{msTimes: containers.NewRingQueue[float64](int(AVG_COUNT))}
}

// Update records one frame. It returns true when a full second of frames
// has been accumulated and the FPS value was refreshed.
func (m *FrameMetrics) Update(frameElapsedSeconds float64) bool {
	frameMS := frameElapsedSeconds * 1000.0
	if old, dropped := m.msTimes.Push(frameMS); dropped {
		m.msSum -= old
	}
	m.msSum += frameMS

	m.frames++
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
		return true
	}
	return false
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

// FrameTime is the average frame time in milliseconds.
func (m *FrameMetrics) FrameTime() float64 {
	if m.msTimes.Len() == 0 {
		return 0
	}
	return m.msSum / float64(m.msTimes.Len())
}
