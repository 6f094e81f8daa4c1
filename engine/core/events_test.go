package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBusStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()
	var calls []string

	first, second := "first", "second"
	assert.True(t, bus.Register(EVENT_CODE_RESIZED, first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return data.Data.U32[0] == 800
	}))
	assert.True(t, bus.Register(EVENT_CODE_RESIZED, second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return true
	}))
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, first, nil))

	var ctx EventContext
	ctx.Data.U32[0] = 800
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"first"}, calls)

	ctx.Data.U32[0] = 640
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"first", "first", "second"}, calls)
}

func TestEventBusUnregister(t *testing.T) {
	bus := NewEventBus()
	fired := 0
	bus.Register(EVENT_CODE_APPLICATION_QUIT, "l", func(SystemEventCode, interface{}, interface{}, EventContext) bool {
		fired++
		return true
	})
	assert.True(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, "l"))
	assert.False(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, "l"))
	assert.False(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
	assert.Equal(t, 0, fired)
}
