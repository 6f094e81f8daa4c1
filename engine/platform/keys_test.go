package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/gbuffer/engine/core"
)

func TestTranslateKey(t *testing.T) {
	cases := map[glfw.Key]core.KeyCode{
		glfw.KeyR:      core.KEY_R,
		glfw.KeyW:      core.KEY_W,
		glfw.KeySpace:  core.KEY_SPACE,
		glfw.Key1:      core.KEY_1,
		glfw.KeyEscape: core.KEY_ESCAPE,
		glfw.KeyLeft:   core.KEY_LEFT,
	}
	for in, want := range cases {
		got, ok := translateKey(in)
		assert.True(t, ok, "key %d", in)
		assert.Equal(t, want, got)
	}
	_, ok := translateKey(glfw.KeyF12)
	assert.False(t, ok)
}
