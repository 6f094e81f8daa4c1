package forward

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// PushConstants controls the full-screen pass. The GLSL block is
//
//	layout(push_constant) uniform Params {
//	    float rotX; float rotY;
//	    vec3  translate;
//	    uint  drawDepth;
//	};
type PushConstants struct {
	RotX      float32
	RotY      float32
	Translate mgl32.Vec3
	DrawDepth bool
}

// PushConstantsSize is the size in bytes of PushConstants.
const PushConstantsSize = 32

func (p *PushConstants) Bytes() []byte {
	b := make([]byte, PushConstantsSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], math.Float32bits(p.RotX))
	le.PutUint32(b[4:], math.Float32bits(p.RotY))
	for i := 0; i < 3; i++ {
		le.PutUint32(b[16+i*4:], math.Float32bits(p.Translate[i]))
	}
	if p.DrawDepth {
		le.PutUint32(b[28:], 1)
	}
	return b
}

// DecodePushConstants is the inverse of PushConstants.Bytes.
func DecodePushConstants(b []byte) (PushConstants, error) {
	var p PushConstants
	if len(b) != PushConstantsSize {
		return p, fmt.Errorf("push constants: got %d bytes, want %d", len(b), PushConstantsSize)
	}
	le := binary.LittleEndian
	p.RotX = math.Float32frombits(le.Uint32(b[0:]))
	p.RotY = math.Float32frombits(le.Uint32(b[4:]))
	for i := 0; i < 3; i++ {
		p.Translate[i] = math.Float32frombits(le.Uint32(b[16+i*4:]))
	}
	p.DrawDepth = le.Uint32(b[28:]) != 0
	return p, nil
}

// Step sizes of the keyboard controls.
const (
	RotateStep    = 0.05
	TranslateStep = 0.1
)
