// Package config loads the application configuration from TOML and watches the
// file for edits. The renderer packages never read it; they get option structs
// built here.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/math"
	"github.com/spaghettifunk/framepace/engine/renderer/descriptors"
	"github.com/spaghettifunk/framepace/engine/renderer/frames"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/swapchain"
)

const (
	BackendVulkan   = "vulkan"
	BackendHeadless = "headless"
)

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Log         LogConfig         `toml:"log"`
	Renderer    RendererConfig    `toml:"renderer"`
	Headless    HeadlessConfig    `toml:"headless"`
}

type ApplicationConfig struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	PosX   int32  `toml:"pos_x"`
	PosY   int32  `toml:"pos_y"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	Backend           string `toml:"backend"`
	MaxFramesInFlight int    `toml:"max_frames_in_flight"`
	MSAASamples       uint32 `toml:"msaa_samples"`
	// PresentMode is a preference; empty means the built-in fallback order.
	PresentMode  string          `toml:"present_mode"`
	ClearColor   [4]float32      `toml:"clear_color"`
	MaxFrameTime float64         `toml:"max_frame_time"`
	Validation   bool            `toml:"validation"`
	Transient    TransientConfig `toml:"transient"`
}

type TransientConfig struct {
	MaxSets   uint32           `toml:"max_sets"`
	PoolSizes []PoolSizeConfig `toml:"pool_sizes"`
}

type PoolSizeConfig struct {
	Type  string `toml:"type"`
	Count uint32 `toml:"count"`
}

// HeadlessConfig drives the synthetic device used without a display.
type HeadlessConfig struct {
	Width         uint32  `toml:"width"`
	Height        uint32  `toml:"height"`
	MinImageCount uint32  `toml:"min_image_count"`
	TurnaroundMS  float64 `toml:"turnaround_ms"`
	// Frames to run before exiting; zero runs until interrupted.
	Frames int `toml:"frames"`
}

func Default() *Config {
	budget := descriptors.DefaultBudget()
	sizes := make([]PoolSizeConfig, 0, len(budget.PoolSizes))
	for _, s := range budget.PoolSizes {
		sizes = append(sizes, PoolSizeConfig{Type: s.Type.String(), Count: s.Count})
	}
	c := swapchain.DefaultClearColor
	return &Config{
		Application: ApplicationConfig{
			Name:   "framepace",
			Width:  1280,
			Height: 720,
			PosX:   100,
			PosY:   100,
		},
		Log: LogConfig{Level: core.LogLevelInfo.String()},
		Renderer: RendererConfig{
			Backend:           BackendVulkan,
			MaxFramesInFlight: frames.DefaultMaxFramesInFlight,
			MSAASamples:       uint32(gpu.SampleCount4),
			ClearColor:        [4]float32{c.X, c.Y, c.Z, c.W},
			MaxFrameTime:      core.DefaultMaxFrameTime,
			Transient: TransientConfig{
				MaxSets:   budget.MaxSets,
				PoolSizes: sizes,
			},
		},
		Headless: HeadlessConfig{
			Width:         1280,
			Height:        720,
			MinImageCount: 2,
			TurnaroundMS:  4,
		},
	}
}

// Load reads path over the defaults and validates the result. Unknown keys are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// Array tables would merge into the default slice; a listed budget replaces it.
	defaultSizes := cfg.Renderer.Transient.PoolSizes
	cfg.Renderer.Transient.PoolSizes = nil
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown config keys:\n%s: %w", strict.String(), core.ErrInvalidArgument)
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, fmt.Errorf("config line %d column %d: %s: %w", row, col, decodeErr.Error(), core.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Renderer.Transient.PoolSizes == nil {
		cfg.Renderer.Transient.PoolSizes = defaultSizes
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return fmt.Errorf("window size %dx%d: %w", c.Application.Width, c.Application.Height, core.ErrInvalidArgument)
	}
	if _, err := core.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %v: %w", err, core.ErrInvalidArgument)
	}
	switch c.Renderer.Backend {
	case BackendVulkan, BackendHeadless:
	default:
		return fmt.Errorf("renderer backend %q: %w", c.Renderer.Backend, core.ErrInvalidArgument)
	}
	if c.Renderer.MaxFramesInFlight < frames.MinFramesInFlight {
		return fmt.Errorf("max_frames_in_flight %d is below %d: %w",
			c.Renderer.MaxFramesInFlight, frames.MinFramesInFlight, core.ErrInvalidArgument)
	}
	if !gpu.SampleCount(c.Renderer.MSAASamples).Valid() {
		return fmt.Errorf("msaa_samples %d: %w", c.Renderer.MSAASamples, core.ErrInvalidArgument)
	}
	if _, err := c.PresentModePreference(); err != nil {
		return err
	}
	if c.Renderer.MaxFrameTime <= 0 {
		return fmt.Errorf("max_frame_time %v: %w", c.Renderer.MaxFrameTime, core.ErrInvalidArgument)
	}
	budget, err := c.Budget()
	if err != nil {
		return err
	}
	if err := budget.Validate(); err != nil {
		return err
	}
	if c.Renderer.Backend == BackendHeadless {
		if c.Headless.Width == 0 || c.Headless.Height == 0 || c.Headless.MinImageCount == 0 {
			return fmt.Errorf("headless surface %dx%d with %d images: %w",
				c.Headless.Width, c.Headless.Height, c.Headless.MinImageCount, core.ErrInvalidArgument)
		}
	}
	return nil
}

func (c *Config) LogLevel() core.LogLevel {
	level, err := core.ParseLogLevel(c.Log.Level)
	if err != nil {
		return core.LogLevelInfo
	}
	return level
}

func (c *Config) PresentModePreference() (*gpu.PresentMode, error) {
	if c.Renderer.PresentMode == "" {
		return nil, nil
	}
	mode, err := gpu.ParsePresentMode(c.Renderer.PresentMode)
	if err != nil {
		return nil, fmt.Errorf("present_mode: %v: %w", err, core.ErrInvalidArgument)
	}
	return &mode, nil
}

func (c *Config) Budget() (descriptors.Budget, error) {
	b := descriptors.Budget{MaxSets: c.Renderer.Transient.MaxSets}
	for _, s := range c.Renderer.Transient.PoolSizes {
		t, err := gpu.ParseDescriptorType(s.Type)
		if err != nil {
			return b, fmt.Errorf("transient pool size: %v: %w", err, core.ErrInvalidArgument)
		}
		b.PoolSizes = append(b.PoolSizes, gpu.DescriptorPoolSize{Type: t, Count: s.Count})
	}
	return b, nil
}

func (c *Config) ClearColor() math.Vec4 {
	cc := c.Renderer.ClearColor
	return math.NewVec4(cc[0], cc[1], cc[2], cc[3])
}

// FrameOptions converts the renderer section into orchestrator options. Call Validate first.
func (c *Config) FrameOptions() frames.Options {
	opts := frames.DefaultOptions()
	opts.MaxFramesInFlight = c.Renderer.MaxFramesInFlight
	opts.Swapchain.Samples = gpu.SampleCount(c.Renderer.MSAASamples)
	opts.Swapchain.PresentMode, _ = c.PresentModePreference()
	opts.Swapchain.ClearColor = c.ClearColor()
	if budget, err := c.Budget(); err == nil {
		opts.Transient = budget
	}
	return opts
}

// Structural reports whether moving from c to next needs a restart to take effect.
func (c *Config) Structural(next *Config) bool {
	a, b := c.Renderer, next.Renderer
	return a.Backend != b.Backend ||
		a.MaxFramesInFlight != b.MaxFramesInFlight ||
		a.MSAASamples != b.MSAASamples ||
		a.PresentMode != b.PresentMode ||
		a.Validation != b.Validation ||
		a.Transient.MaxSets != b.Transient.MaxSets ||
		!slices.Equal(a.Transient.PoolSizes, b.Transient.PoolSizes) ||
		c.Application.Width != next.Application.Width ||
		c.Application.Height != next.Application.Height ||
		c.Headless != next.Headless
}
