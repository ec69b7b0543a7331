/*
This is an example application that drives the
engine's frame pipeline with the testbed game
*/
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/framepace/engine"
	"github.com/spaghettifunk/framepace/engine/config"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/testbed"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "framepace.toml", "path to the TOML config; a missing file means built-in defaults")
	backend := flag.String("backend", "", "override the renderer backend (vulkan or headless)")
	cubes := flag.Int("cubes", 16, "number of drawables in the testbed scene")
	flag.Parse()

	cfg, watched, err := loadConfig(*configPath)
	if err != nil {
		core.LogError("Invalid configuration: %s", err)
		return 2
	}
	if *backend != "" {
		cfg.Renderer.Backend = *backend
	}

	e, err := engine.New(testbed.NewTestGame(*cubes).Game, cfg, watched)
	if err != nil {
		core.LogError("Engine creation failed: %s", err)
		return 1
	}
	if err := e.Initialize(); err != nil {
		core.LogError("Engine initialization failed: %s", err)
		return 1
	}

	// signal handling cancels the run loop; shutdown happens below on this goroutine
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	code := 0
	if err := e.Run(ctx); err != nil {
		core.LogError("Engine stopped: %s", err)
		code = 1
	}
	if err := e.Shutdown(); err != nil {
		core.LogError("Shutdown failed: %s", err)
		code = 1
	}
	return code
}

// loadConfig returns the config at path and the path to watch for edits. A
// missing file is not an error; the defaults are used and nothing is watched.
func loadConfig(path string) (*config.Config, string, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		core.LogWarn("No config at %s, using defaults.", path)
		return config.Default(), "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}
