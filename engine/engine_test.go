package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spaghettifunk/framepace/engine/config"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/headless"
	"github.com/spaghettifunk/framepace/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type calls struct {
	initialize, update, render, shutdown int
	resizes                              [][2]uint32
}

type sprite uuid.UUID

func (s sprite) ID() uuid.UUID {
	return uuid.UUID(s)
}

func newGame(c *calls) *Game {
	id := uuid.New()
	g := &Game{}
	g.FnInitialize = func() error {
		c.initialize++
		if g.Renderer == nil {
			return errors.New("renderer not set before initialize")
		}
		return nil
	}
	g.FnUpdate = func(float64) error {
		c.update++
		return nil
	}
	g.FnRender = func(p *FramePacket, _ float64) error {
		c.render++
		p.Drawables = map[uuid.UUID]metadata.Drawable{id: sprite(id)}
		return nil
	}
	g.FnOnResize = func(w, h uint32) error {
		c.resizes = append(c.resizes, [2]uint32{w, h})
		return nil
	}
	g.FnShutdown = func() error {
		c.shutdown++
		return nil
	}
	return g
}

func headlessConfig(frames int) *config.Config {
	cfg := config.Default()
	cfg.Renderer.Backend = config.BackendHeadless
	cfg.Headless.Width = 640
	cfg.Headless.Height = 480
	cfg.Headless.MinImageCount = 3
	cfg.Headless.Frames = frames
	return cfg
}

func start(t *testing.T, g *Game, cfg *config.Config, path string) (*Engine, *headless.Device) {
	t.Helper()
	e, err := New(g, cfg, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	dev, ok := e.device.(*headless.Device)
	if !ok {
		t.Fatalf("device is %T", e.device)
	}
	return e, dev
}

func TestHeadlessRun(t *testing.T) {
	c := &calls{}
	e, dev := start(t, newGame(c), headlessConfig(5), "")
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.initialize != 1 || c.update != 5 || c.render != 5 {
		t.Errorf("calls = %+v", c)
	}
	if len(c.resizes) != 1 || c.resizes[0] != [2]uint32{640, 480} {
		t.Errorf("resizes = %v", c.resizes)
	}
	if n := e.renderer.FrameNumber; n != 5 {
		t.Errorf("frame number = %d", n)
	}
	if dev.Presents() != 5 {
		t.Errorf("presents = %d", dev.Presents())
	}

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if c.shutdown != 1 {
		t.Errorf("game shut down %d times", c.shutdown)
	}
	if v := dev.Violations(); len(v) > 0 {
		t.Errorf("protocol violations: %v", v)
	}
	if live := dev.LiveObjects(); len(live) > 0 {
		t.Errorf("objects alive after shutdown: %v", live)
	}
}

func TestRunRequiresInitialize(t *testing.T) {
	e, err := New(newGame(&calls{}), headlessConfig(1), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background()); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("Run before Initialize = %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := headlessConfig(1)
	cfg.Renderer.MaxFramesInFlight = 1
	if _, err := New(newGame(&calls{}), cfg, ""); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("New = %v", err)
	}
}

func TestCancelledRunDrawsNothing(t *testing.T) {
	c := &calls{}
	e, _ := start(t, newGame(c), headlessConfig(0), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.update != 0 {
		t.Errorf("%d updates after cancellation", c.update)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}
}

func TestGameErrorStopsRun(t *testing.T) {
	c := &calls{}
	g := newGame(c)
	g.FnUpdate = func(float64) error { return errors.New("boom") }
	e, dev := start(t, g, headlessConfig(0), "")
	if err := e.Run(context.Background()); err == nil {
		t.Fatal("game failure not reported")
	}
	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if v := dev.Violations(); len(v) > 0 {
		t.Errorf("protocol violations: %v", v)
	}
}

func TestApplyConfigKeepsStructure(t *testing.T) {
	c := &calls{}
	cfg := headlessConfig(2)
	e, dev := start(t, newGame(c), cfg, "")

	next := headlessConfig(2)
	next.Log.Level = "warn"
	next.Renderer.ClearColor = [4]float32{1, 0, 0, 1}
	next.Renderer.MaxFramesInFlight = 2
	next.Headless.Frames = 50
	next.Headless.Width = 320
	e.applyConfig(next)
	t.Cleanup(func() { core.SetLogLevel(core.LogLevelInfo) })

	if e.cfg.Renderer.MaxFramesInFlight != cfg.Renderer.MaxFramesInFlight {
		t.Errorf("frames in flight changed to %d", e.cfg.Renderer.MaxFramesInFlight)
	}
	if e.cfg.Headless != cfg.Headless {
		t.Errorf("headless settings changed to %+v", e.cfg.Headless)
	}
	if e.cfg.Log.Level != "warn" || e.cfg.Renderer.ClearColor != next.Renderer.ClearColor {
		t.Errorf("applied config = %+v", e.cfg)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.update != 2 {
		t.Errorf("ran %d frames after reload, want 2", c.update)
	}
	if got := dev.LastRenderPassBegin().ClearColor; got != [4]float32{1, 0, 0, 1} {
		t.Errorf("clear color = %v", got)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}
}

func TestRunWithWatchedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framepace.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := &calls{}
	e, _ := start(t, newGame(c), headlessConfig(3), path)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.update != 3 {
		t.Errorf("updates = %d", c.update)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}
}
