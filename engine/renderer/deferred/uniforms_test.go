package deferred

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver/drivertest"
)

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func TestUniformParamsLayout(t *testing.T) {
	u := DefaultUniformParams()
	u.ProjView = mgl32.Translate3D(1, 2, 3)
	u.LightMatrix = mgl32.Scale3D(4, 5, 6)
	u.Time = 7.5
	u.EnableSSAO = true

	b := make([]byte, UniformParamsSize)
	u.Encode(b)

	// Translation lives in the fourth column.
	assert.Equal(t, float32(1), f32At(b, 48))
	assert.Equal(t, float32(3), f32At(b, 56))
	assert.Equal(t, float32(4), f32At(b, 64))
	assert.Equal(t, u.LightDir.X(), f32At(b, 128))
	assert.Equal(t, float32(7.5), f32At(b, 140))
	assert.Equal(t, u.LightPos.Z(), f32At(b, 152))
	assert.Equal(t, float32(0.5), f32At(b, 156))
	assert.Equal(t, u.BaseColor.X(), f32At(b, 160))
	assert.Equal(t, u.MaxStoreDist, f32At(b, 172))
	assert.Equal(t, u.MaxTraceDist, f32At(b, 176))
	assert.Equal(t, uint32(400), binary.LittleEndian.Uint32(b[184:]))
	assert.Equal(t, u.Threshold, f32At(b, 188))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[192:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[196:]))
	assert.Zero(t, UniformParamsSize%16)
}

func TestDefaultUniformParams(t *testing.T) {
	u := DefaultUniformParams()
	assert.Equal(t, float32(0.5), u.RadiusSSAO)
	assert.False(t, u.EnableSSAO)
	assert.InDelta(t, 1, u.LightDir.Len(), 1e-6)
}

func TestUniformBufferFlush(t *testing.T) {
	dev := drivertest.New()
	ub, err := NewUniformBuffer(newTestContext(dev))
	require.NoError(t, err)
	defer ub.Destroy()

	mem := ub.host.Memory.(*drivertest.Memory)
	assert.Equal(t, float32(0.5), f32At(mem.Bytes(), 156), "defaults are written on creation")

	ub.Params.Time = 3
	ub.Flush()
	assert.Equal(t, float32(3), f32At(mem.Bytes(), 140))
}

func TestPushConstantsEncoding(t *testing.T) {
	p := PushConstants{
		ProjView: mgl32.Perspective(1, 1.5, 0.1, 10),
		Model:    mgl32.Translate3D(1, 2, 3),
		Color:    mgl32.Vec4{0.1, 0.2, 0.3, 1},
	}
	b := p.Bytes()
	require.Len(t, b, PushConstantsSize)
	got, err := DecodePushConstants(b)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = DecodePushConstants(b[:64])
	assert.Error(t, err)
}

func TestInstanceTint(t *testing.T) {
	seen := map[mgl32.Vec4]bool{}
	for i := 0; i < 16; i++ {
		c := InstanceTint(i)
		assert.Equal(t, c, InstanceTint(i), "tint depends on the index only")
		assert.Equal(t, float32(1), c.W())
		for _, v := range c[:3] {
			assert.True(t, v >= 0 && v <= 1)
		}
		seen[c] = true
	}
	assert.Len(t, seen, 16)
}
