package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputFiresOnChangeOnly(t *testing.T) {
	bus := NewEventBus()
	var pressed, released []uint16
	bus.Register(EVENT_CODE_KEY_PRESSED, "t", func(_ SystemEventCode, _, _ interface{}, ctx EventContext) bool {
		pressed = append(pressed, ctx.Data.U16[0])
		return true
	})
	bus.Register(EVENT_CODE_KEY_RELEASED, "t", func(_ SystemEventCode, _, _ interface{}, ctx EventContext) bool {
		released = append(released, ctx.Data.U16[0])
		return true
	})

	in := NewInput(bus)
	in.ProcessKey(KEY_R, true)
	in.ProcessKey(KEY_R, true)
	assert.True(t, in.IsKeyDown(KEY_R))
	assert.False(t, in.WasKeyDown(KEY_R))

	in.Update()
	in.ProcessKey(KEY_R, false)
	assert.True(t, in.WasKeyDown(KEY_R))
	assert.False(t, in.IsKeyDown(KEY_R))

	assert.Equal(t, []uint16{uint16(KEY_R)}, pressed)
	assert.Equal(t, []uint16{uint16(KEY_R)}, released)

	in.ProcessKey(KeyCode(0x1FF), true)
	assert.False(t, in.IsKeyDown(KeyCode(0x1FF)))
}
