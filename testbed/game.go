package testbed

import (
	"github.com/spaghettifunk/gbuffer/engine"
	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/forward"
	"github.com/spaghettifunk/gbuffer/engine/scene"
)

const (
	moveSpeed  = 5.0
	orbitSpeed = 1.0
	spinSpeed  = 0.5
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	WorldCamera *scene.Camera

	width  uint32
	height uint32

	animate bool
	angle   float32
}

func NewTestGame(cfg *core.Config) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: cfg,
			State:  &gameState{animate: true},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) Initialize() error {
	core.LogDebug("testbed initialize")
	state := g.State.(*gameState)
	state.WorldCamera = scene.NewCamera()
	g.Bus.Register(core.EVENT_CODE_KEY_PRESSED, g, g.onKey)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	in := g.Input
	dt := float32(deltaTime)

	if fr, ok := g.Renderer.(*forward.Renderer); ok {
		updateForward(in, fr.Push())
	} else {
		updateCamera(in, state.WorldCamera, dt)
	}

	if state.animate {
		state.angle += spinSpeed * dt
		g.Scene.Animate(state.angle)
	}
	return nil
}

func updateCamera(in *core.Input, cam *scene.Camera, dt float32) {
	if in.IsKeyDown(core.KEY_A) {
		cam.Orbit(orbitSpeed * dt)
	}
	if in.IsKeyDown(core.KEY_D) {
		cam.Orbit(-orbitSpeed * dt)
	}
	if in.IsKeyDown(core.KEY_W) {
		cam.MoveForward(moveSpeed * dt)
	}
	if in.IsKeyDown(core.KEY_S) {
		cam.MoveForward(-moveSpeed * dt)
	}
	if in.IsKeyDown(core.KEY_Q) {
		cam.MoveUp(moveSpeed * dt)
	}
	if in.IsKeyDown(core.KEY_E) {
		cam.MoveUp(-moveSpeed * dt)
	}
}

// updateForward steps the full-screen pass transform once per frame a key is held.
func updateForward(in *core.Input, pc *forward.PushConstants) {
	if in.IsKeyDown(core.KEY_LEFT) {
		pc.RotY -= forward.RotateStep
	}
	if in.IsKeyDown(core.KEY_RIGHT) {
		pc.RotY += forward.RotateStep
	}
	if in.IsKeyDown(core.KEY_UP) {
		pc.RotX -= forward.RotateStep
	}
	if in.IsKeyDown(core.KEY_DOWN) {
		pc.RotX += forward.RotateStep
	}
	if in.IsKeyDown(core.KEY_A) {
		pc.Translate[0] -= forward.TranslateStep
	}
	if in.IsKeyDown(core.KEY_D) {
		pc.Translate[0] += forward.TranslateStep
	}
	if in.IsKeyDown(core.KEY_W) {
		pc.Translate[1] -= forward.TranslateStep
	}
	if in.IsKeyDown(core.KEY_S) {
		pc.Translate[1] += forward.TranslateStep
	}
	if in.IsKeyDown(core.KEY_Q) {
		pc.Translate[2] -= forward.TranslateStep
	}
	if in.IsKeyDown(core.KEY_E) {
		pc.Translate[2] += forward.TranslateStep
	}
}

func (g *TestGame) Render(packet *engine.FramePacket) error {
	state := g.State.(*gameState)
	aspect := float32(1)
	if state.height > 0 {
		aspect = float32(state.width) / float32(state.height)
	}
	packet.ProjView = state.WorldCamera.ProjView(aspect)
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("testbed shutdown")
	return nil
}

func (g *TestGame) onKey(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	state := g.State.(*gameState)
	switch core.KeyCode(data.Data.U16[0]) {
	case core.KEY_SPACE:
		state.animate = !state.animate
		return true
	case core.KEY_1:
		u := g.Renderer.Uniforms()
		u.EnableSSAO = !u.EnableSSAO
		core.LogInfo("SSAO enabled: %t", u.EnableSSAO)
		return true
	case core.KEY_2:
		u := g.Renderer.Uniforms()
		u.AnimateLightColor = !u.AnimateLightColor
		return true
	case core.KEY_Z:
		if fr, ok := g.Renderer.(*forward.Renderer); ok {
			fr.Push().DrawDepth = !fr.Push().DrawDepth
			return true
		}
	}
	return false
}
