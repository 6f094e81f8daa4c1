package deferred

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// UniformParams is the per-frame uniform block shared by every pass.
// Encode writes it with std140 rules; the GLSL declaration is
//
//	layout(binding = 0) uniform Params {
//	    mat4  projView;
//	    mat4  lightMatrix;
//	    vec3  lightDir;     float time;
//	    vec3  lightPos;     float radiusSSAO;
//	    vec3  baseColor;    float maxStoreDist;
//	    float maxTraceDist; float stepSize; int stepNum; float thres;
//	    uint  animateLightColor; uint enableSSAO;
//	};
type UniformParams struct {
	ProjView    mgl32.Mat4
	LightMatrix mgl32.Mat4
	LightDir    mgl32.Vec3
	Time        float32
	LightPos    mgl32.Vec3
	RadiusSSAO  float32
	BaseColor   mgl32.Vec3

	// Distance field tracing.
	MaxStoreDist float32
	MaxTraceDist float32
	StepSize     float32
	StepNum      int32
	Threshold    float32

	AnimateLightColor bool
	EnableSSAO        bool
}

// UniformParamsSize is the std140 size of UniformParams.
const UniformParamsSize = 208

// DefaultUniformParams returns the initial light and tracing setup.
func DefaultUniformParams() UniformParams {
	return UniformParams{
		ProjView:          mgl32.Ident4(),
		LightMatrix:       mgl32.Ident4(),
		LightDir:          mgl32.Vec3{0.1, -1, -0.2}.Normalize(),
		LightPos:          mgl32.Vec3{0, 1, 1},
		BaseColor:         mgl32.Vec3{0.9, 0.92, 1},
		RadiusSSAO:        0.5,
		MaxStoreDist:      10,
		MaxTraceDist:      50,
		StepSize:          0.01,
		StepNum:           400,
		Threshold:         0.15,
		AnimateLightColor: true,
	}
}

// Encode writes u into dst, which must hold UniformParamsSize bytes.
func (u *UniformParams) Encode(dst []byte) {
	w := std140{buf: dst[:UniformParamsSize]}
	w.mat4(u.ProjView)
	w.mat4(u.LightMatrix)
	w.vec3(u.LightDir)
	w.f32(u.Time)
	w.vec3(u.LightPos)
	w.f32(u.RadiusSSAO)
	w.vec3(u.BaseColor)
	w.f32(u.MaxStoreDist)
	w.f32(u.MaxTraceDist)
	w.f32(u.StepSize)
	w.u32(uint32(u.StepNum))
	w.f32(u.Threshold)
	w.boolean(u.AnimateLightColor)
	w.boolean(u.EnableSSAO)
}

// PushConstants is pushed once per draw. The resolve pass only reads
// ProjView.
type PushConstants struct {
	ProjView mgl32.Mat4
	Model    mgl32.Mat4
	Color    mgl32.Vec4
}

// PushConstantsSize is the size in bytes of PushConstants.
const PushConstantsSize = 144

// Bytes returns the std430 encoding of p.
func (p *PushConstants) Bytes() []byte {
	b := make([]byte, PushConstantsSize)
	w := std140{buf: b}
	w.mat4(p.ProjView)
	w.mat4(p.Model)
	w.vec4(p.Color)
	return b
}

// DecodePushConstants is the inverse of PushConstants.Bytes.
func DecodePushConstants(b []byte) (PushConstants, error) {
	var p PushConstants
	if len(b) != PushConstantsSize {
		return p, fmt.Errorf("push constants: got %d bytes, want %d", len(b), PushConstantsSize)
	}
	for i := 0; i < 16; i++ {
		p.ProjView[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		p.Model[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[64+i*4:]))
	}
	for i := 0; i < 4; i++ {
		p.Color[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[128+i*4:]))
	}
	return p, nil
}

// InstanceTint returns the tint of instance i. It depends on the index only,
// so the tint of an instance does not change with draw order. Hues are
// spread by the golden ratio.
func InstanceTint(i int) mgl32.Vec4 {
	const phi = 0.618033988749895
	h := math.Mod(float64(i)*phi, 1)
	r, g, b := hsvToRGB(h, 0.55, 0.95)
	return mgl32.Vec4{r, g, b, 1}
}

func hsvToRGB(h, s, v float64) (float32, float32, float32) {
	h6 := h * 6
	sector := int(h6) % 6
	f := h6 - math.Floor(h6)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	var r, g, b float64
	switch sector {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return float32(r), float32(g), float32(b)
}

// std140 appends scalars to a byte slice. Callers order fields so that no
// padding is needed other than the fourth component of vec3.
type std140 struct {
	buf []byte
	off int
}

func (w *std140) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *std140) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *std140) boolean(v bool) {
	if v {
		w.u32(1)
	} else {
		w.u32(0)
	}
}

func (w *std140) vec3(v mgl32.Vec3) {
	for _, c := range v {
		w.f32(c)
	}
}

func (w *std140) vec4(v mgl32.Vec4) {
	for _, c := range v {
		w.f32(c)
	}
}

// mat4 writes a column-major matrix, the layout mgl32 already uses.
func (w *std140) mat4(m mgl32.Mat4) {
	for _, c := range m {
		w.f32(c)
	}
}

// UniformBuffer keeps UniformParams in a persistently mapped buffer.
type UniformBuffer struct {
	Params UniformParams
	host   *HostBuffer
}

// NewUniformBuffer creates the buffer and writes the default parameters.
func NewUniformBuffer(ctx GPUContext) (*UniformBuffer, error) {
	hb, err := NewHostBuffer(ctx, UniformParamsSize, driver.BufferUniform)
	if err != nil {
		return nil, fmt.Errorf("uniform buffer: %w", err)
	}
	ub := &UniformBuffer{Params: DefaultUniformParams(), host: hb}
	ub.Flush()
	return ub, nil
}

// Buffer returns the GPU buffer to bind.
func (ub *UniformBuffer) Buffer() driver.Buffer { return ub.host.Buffer }

// Flush writes Params into the mapped memory.
func (ub *UniformBuffer) Flush() { ub.Params.Encode(ub.host.Data) }

func (ub *UniformBuffer) Destroy() { ub.host.Destroy() }
