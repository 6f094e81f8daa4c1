package platform

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/gbuffer/engine/core"
)

var namedKeys = map[glfw.Key]core.KeyCode{
	glfw.KeyEscape: core.KEY_ESCAPE,
	glfw.KeyLeft:   core.KEY_LEFT,
	glfw.KeyUp:     core.KEY_UP,
	glfw.KeyRight:  core.KEY_RIGHT,
	glfw.KeyDown:   core.KEY_DOWN,
}

// translateKey maps a GLFW key to an engine key code. Printable keys share
// their ASCII value.
func translateKey(key glfw.Key) (core.KeyCode, bool) {
	if code, ok := namedKeys[key]; ok {
		return code, true
	}
	switch {
	case key == glfw.KeySpace,
		key >= glfw.Key0 && key <= glfw.Key9,
		key >= glfw.KeyA && key <= glfw.KeyZ:
		return core.KeyCode(key), true
	}
	return 0, false
}
