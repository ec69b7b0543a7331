package engine

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/framepace/engine/renderer/metadata"
	"github.com/spaghettifunk/framepace/engine/systems"
)

// FramePacket is what the game hands the renderer for one frame.
type FramePacket struct {
	Camera    metadata.Camera
	Drawables map[uuid.UUID]metadata.Drawable
}

type Game struct {
	// Set by the engine before FnInitialize runs.
	Renderer     *systems.RendererSystem
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type Render func(packet *FramePacket, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
