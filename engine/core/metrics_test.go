package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 1/64 of a second is exact in binary floating point.
const frameSeconds = 0.015625

func TestFrameMetricsAverage(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(frameSeconds)
	}
	assert.Equal(t, 15.625, m.FrameTime())
}

func TestFrameMetricsFPS(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < 64; i++ {
		assert.False(t, m.Update(frameSeconds))
	}
	// The 65th frame crosses the one second mark.
	assert.True(t, m.Update(frameSeconds))
	assert.Equal(t, 65.0, m.FPS())
}

func TestFrameMetricsRollingWindow(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(frameSeconds)
	}
	// Replacing the whole window moves the average to the new frame time.
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(2 * frameSeconds)
	}
	assert.InDelta(t, 31.25, m.FrameTime(), 1e-9)
}
