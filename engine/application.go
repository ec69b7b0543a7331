package engine

import (
	"github.com/spaghettifunk/framepace/engine/config"
	"github.com/spaghettifunk/framepace/engine/core"
)

// applyConfig takes over the values of a reloaded config that can change while
// frames are in flight. It must only run between frames.
func (e *Engine) applyConfig(next *config.Config) {
	if e.cfg.Structural(next) {
		core.LogWarn("Config change to the window or frame pipeline needs a restart; applying the rest.")
	}
	core.SetLogLevel(next.LogLevel())
	e.clock.SetMaxDelta(next.Renderer.MaxFrameTime)
	if e.renderer != nil {
		e.renderer.SetClearColor(next.ClearColor())
		e.renderer.SetMaxFrameTime(next.Renderer.MaxFrameTime)
	}

	// Structural values keep describing what is actually running.
	applied := *next
	applied.Application = e.cfg.Application
	applied.Renderer.Backend = e.cfg.Renderer.Backend
	applied.Renderer.MaxFramesInFlight = e.cfg.Renderer.MaxFramesInFlight
	applied.Renderer.MSAASamples = e.cfg.Renderer.MSAASamples
	applied.Renderer.PresentMode = e.cfg.Renderer.PresentMode
	applied.Renderer.Validation = e.cfg.Renderer.Validation
	applied.Renderer.Transient = e.cfg.Renderer.Transient
	applied.Headless = e.cfg.Headless
	e.cfg = &applied
	core.LogInfo("Config applied (log level %s).", next.LogLevel())
}
