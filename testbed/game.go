package testbed

import (
	stdmath "math"

	"github.com/google/uuid"
	"github.com/spaghettifunk/framepace/engine"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/math"
	"github.com/spaghettifunk/framepace/engine/renderer/metadata"
)

type TestGame struct {
	*engine.Game
}

// cube is a drawable with nothing but an identity; the binding system gives it
// a per-draw set every frame.
type cube struct {
	id uuid.UUID
}

func (c *cube) ID() uuid.UUID {
	return c.id
}

type gameState struct {
	elapsed    float64
	orbitSpeed float32
	distance   float32

	projection math.Mat4
	drawables  map[uuid.UUID]metadata.Drawable
}

func NewTestGame(cubes int) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			State: &gameState{
				orbitSpeed: 0.5,
				distance:   15.0,
				projection: math.NewMat4Identity(),
				drawables:  make(map[uuid.UUID]metadata.Drawable, cubes),
			},
		},
	}
	for i := 0; i < cubes; i++ {
		c := &cube{id: uuid.New()}
		tg.State.(*gameState).drawables[c.id] = c
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) Initialize() error {
	state := g.State.(*gameState)
	core.LogDebug("TestGame initialized with %d cubes.", len(state.drawables))
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.State.(*gameState).elapsed += deltaTime
	return nil
}

func (g *TestGame) Render(packet *engine.FramePacket, deltaTime float64) error {
	state := g.State.(*gameState)
	angle := float64(state.orbitSpeed) * state.elapsed
	position := math.NewVec3(
		state.distance*float32(stdmath.Sin(angle)),
		5.0,
		state.distance*float32(stdmath.Cos(angle)),
	)
	packet.Camera = metadata.Camera{
		View:       math.NewMat4LookAt(position, math.NewVec3(0, 0, 0), math.NewVec3(0, 1, 0)),
		Projection: state.projection,
	}
	packet.Drawables = state.drawables
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	if height == 0 {
		return nil
	}
	state := g.State.(*gameState)
	state.projection = math.NewMat4Perspective(math.DegToRad(45.0), float32(width)/float32(height), 0.1, 1000.0)
	core.LogDebug("TestGame projection updated for %dx%d.", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("TestGame shut down after %.1fs.", g.State.(*gameState).elapsed)
	return nil
}
