package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/spaghettifunk/framepace/engine/config"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/platform"
	"github.com/spaghettifunk/framepace/engine/renderer/frames"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/headless"
	"github.com/spaghettifunk/framepace/engine/renderer/metadata"
	"github.com/spaghettifunk/framepace/engine/renderer/vulkan"
	"github.com/spaghettifunk/framepace/engine/systems"
	"golang.org/x/sync/errgroup"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it created
	EngineStageShutdown
)

// window is the platform side of the run loop.
type window interface {
	frames.Window
	// PumpMessages processes pending events without blocking.
	PumpMessages()
	ShouldClose() bool
}

// headlessWindow never closes; a headless run ends by frame count or cancellation.
type headlessWindow struct {
	*headless.Window
}

func (headlessWindow) PumpMessages() {}

func (headlessWindow) ShouldClose() bool {
	return false
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	cfg          *config.Config
	configPath   string

	platform *platform.Platform
	window   window
	device   gpu.Device
	renderer *systems.RendererSystem

	clock   *core.Clock
	metrics *core.FrameMetrics
	extent  gpu.Extent2D
}

// New prepares an engine for g. A non-empty configPath is watched for edits while running.
func New(g *Game, cfg *config.Config, configPath string) (*Engine, error) {
	if g == nil || cfg == nil {
		return nil, fmt.Errorf("engine needs a game and a config: %w", core.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	core.SetLogLevel(cfg.LogLevel())
	clock := core.NewClock()
	clock.SetMaxDelta(cfg.Renderer.MaxFrameTime)
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		cfg:          cfg,
		configPath:   configPath,
		clock:        clock,
		metrics:      core.NewFrameMetrics(),
	}, nil
}

// Initialize opens the window, creates the device and the renderer, then hands
// control to the game.
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("initialize in stage %d: %w", e.currentStage, core.ErrInvalidArgument)
	}
	e.currentStage = EngineStageInitializing

	var err error
	switch e.cfg.Renderer.Backend {
	case config.BackendHeadless:
		e.startHeadless()
	default:
		err = e.startVulkan()
	}
	if err != nil {
		e.Shutdown()
		return err
	}

	e.renderer, err = systems.NewRendererSystem(e.device, e.window, systems.RendererSystemConfig{
		Frames:       e.cfg.FrameOptions(),
		MaxFrameTime: e.cfg.Renderer.MaxFrameTime,
	})
	if err != nil {
		e.Shutdown()
		return err
	}
	bindings, err := systems.NewBindingSystem(e.device)
	if err != nil {
		e.Shutdown()
		return err
	}
	if err := e.renderer.Register(bindings); err != nil {
		bindings.Destroy()
		e.Shutdown()
		return err
	}

	e.gameInstance.Renderer = e.renderer
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			e.Shutdown()
			return err
		}
	}
	if err := e.notifyResize(); err != nil {
		e.Shutdown()
		return err
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("Engine initialized (%s backend, %s).", e.cfg.Renderer.Backend, e.extent)
	return nil
}

func (e *Engine) startVulkan() error {
	p, err := platform.New()
	if err != nil {
		return err
	}
	app := e.cfg.Application
	if err := p.Startup(app.Name, app.PosX, app.PosY, app.Width, app.Height); err != nil {
		return err
	}
	e.platform = p
	e.window = p

	device, err := vulkan.New(p, vulkan.Options{
		ApplicationName: app.Name,
		Validation:      e.cfg.Renderer.Validation,
	})
	if err != nil {
		return err
	}
	e.device = device
	return nil
}

func (e *Engine) startHeadless() {
	h := e.cfg.Headless
	win := headless.NewWindow(h.Width, h.Height)
	cfg := headless.DefaultConfig()
	cfg.Window = win
	cfg.Support.Capabilities.MinImageCount = h.MinImageCount
	if cfg.Support.Capabilities.MaxImageCount < h.MinImageCount {
		cfg.Support.Capabilities.MaxImageCount = h.MinImageCount
	}
	cfg.Turnaround = time.Duration(h.TurnaroundMS * float64(time.Millisecond))
	e.device = headless.New(cfg)
	e.window = headlessWindow{win}
}

// Run drives frames until ctx is cancelled, the window closes, the configured
// frame count is reached or a frame fails. The config watcher runs beside it.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("run in stage %d: %w", e.currentStage, core.ErrInvalidArgument)
	}
	e.currentStage = EngineStageRunning

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	var updates <-chan *config.Config
	var reloadErrors <-chan error
	if e.configPath != "" {
		watcher, err := config.NewWatcher(e.configPath)
		if err != nil {
			core.LogWarn("Config hot reload disabled: %s", err)
		} else {
			updates, reloadErrors = watcher.Updates(), watcher.Errors()
			group.Go(func() error { return watcher.Run(ctx) })
		}
	}

	// The loop stays on this goroutine; the window system needs the main thread.
	err := e.loop(ctx, updates, reloadErrors)
	cancel()
	if werr := group.Wait(); err == nil {
		err = werr
	}
	return err
}

func (e *Engine) loop(ctx context.Context, updates <-chan *config.Config, reloadErrors <-chan error) error {
	e.clock.Start()
	for frame := 0; ; frame++ {
		select {
		case <-ctx.Done():
			core.LogInfo("Run loop cancelled.")
			return nil
		default:
		}

		e.window.PumpMessages()
		if e.window.ShouldClose() {
			core.LogInfo("Window closed.")
			return nil
		}

		// Between frames the orchestrator is idle, so settings can change.
		select {
		case next := <-updates:
			e.applyConfig(next)
		case err := <-reloadErrors:
			core.LogDebug("Last config edit rejected: %s", err)
		default:
		}

		delta, raw := e.clock.Tick()
		if err := e.frame(delta); err != nil {
			core.LogError("Frame %d failed: %s", frame, err)
			return err
		}

		if e.metrics.Update(raw) {
			fps, ms := e.metrics.Frame()
			stats := e.renderer.Stats()
			core.LogInfo("%.0f fps (%.2f ms), %d frames presented, %d skipped, %d rebuilds.",
				fps, ms, stats.Frames, stats.Skipped, stats.Rebuilds)
		}

		if limit := e.cfg.Headless.Frames; e.cfg.Renderer.Backend == config.BackendHeadless && limit > 0 && frame+1 >= limit {
			core.LogInfo("Ran %d frames.", limit)
			return nil
		}
	}
}

func (e *Engine) frame(delta float64) error {
	g := e.gameInstance
	if g.FnUpdate != nil {
		if err := g.FnUpdate(delta); err != nil {
			return fmt.Errorf("game update: %w", err)
		}
	}
	packet := &FramePacket{Camera: metadata.NewCamera()}
	if g.FnRender != nil {
		if err := g.FnRender(packet, delta); err != nil {
			return fmt.Errorf("game render: %w", err)
		}
	}
	if _, err := e.renderer.DrawFrame(delta, packet.Camera, packet.Drawables); err != nil {
		return err
	}
	return e.notifyResize()
}

// notifyResize tells the game when the swapchain extent changed.
func (e *Engine) notifyResize() error {
	extent := e.renderer.Extent()
	if extent == e.extent {
		return nil
	}
	e.extent = extent
	if e.gameInstance.FnOnResize == nil {
		return nil
	}
	return e.gameInstance.FnOnResize(extent.Width, extent.Height)
}

// Shutdown releases the renderer, the device and the window in that order. It
// is safe to call more than once.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var err error
	if e.renderer != nil {
		err = e.renderer.Shutdown()
		e.renderer = nil
	}
	if e.gameInstance.FnShutdown != nil {
		if gerr := e.gameInstance.FnShutdown(); gerr != nil && err == nil {
			err = gerr
		}
	}
	if e.device != nil {
		e.device.Destroy()
		e.device = nil
	}
	if e.platform != nil {
		if perr := e.platform.Shutdown(); perr != nil && err == nil {
			err = perr
		}
		e.platform = nil
	}
	e.clock.Stop()
	e.currentStage = EngineStageShutdown
	core.LogInfo("Engine shut down.")
	return err
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}
