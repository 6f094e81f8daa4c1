package engine

import (
	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer"
	"github.com/spaghettifunk/gbuffer/engine/scene"
)

// Game is the application driven by the engine. The engine fills Bus,
// Input, Renderer and Scene before calling FnInitialize.
type Game struct {
	Config   *core.Config
	Bus      *core.EventBus
	Input    *core.Input
	Renderer renderer.Renderer
	Scene    *scene.Scene
	State    interface{}

	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type Render func(packet *FramePacket) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
