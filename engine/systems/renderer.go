package systems

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/math"
	"github.com/spaghettifunk/framepace/engine/renderer/descriptors"
	"github.com/spaghettifunk/framepace/engine/renderer/frames"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/metadata"
)

type RendererSystemConfig struct {
	Frames frames.Options
	// MaxFrameTime bounds FrameInfo.FrameTime. Zero uses core.DefaultMaxFrameTime.
	MaxFrameTime float64
}

// RendererSystem drives one frame cycle per DrawFrame call and hands every
// registered render system the same FrameInfo.
type RendererSystem struct {
	device       gpu.Device
	orchestrator *frames.Orchestrator

	globalLayout gpu.DescriptorSetLayout
	globalPool   *descriptors.Pool
	// One global set per frame-in-flight slot.
	globalSets []gpu.DescriptorSet

	renderSystems []metadata.RenderSystem
	maxFrameTime  float64

	// The number of frames actually submitted.
	FrameNumber uint64
}

// destroyer is implemented by render systems that own device objects.
type destroyer interface {
	Destroy()
}

func NewRendererSystem(device gpu.Device, window frames.Window, cfg RendererSystemConfig) (*RendererSystem, error) {
	o, err := frames.New(device, window, cfg.Frames)
	if err != nil {
		return nil, err
	}
	r := &RendererSystem{
		device:       device,
		orchestrator: o,
		maxFrameTime: cfg.MaxFrameTime,
	}
	if err := r.createGlobals(); err != nil {
		r.Shutdown()
		return nil, err
	}
	core.LogInfo("Renderer system initialized.")
	return r, nil
}

func (r *RendererSystem) createGlobals() error {
	layout, err := descriptors.NewLayoutBuilder(r.device).
		AddBinding(0, gpu.DescriptorTypeUniformBuffer, gpu.ShaderStageAllGraphics, 1).
		Build()
	if err != nil {
		return err
	}
	r.globalLayout = layout

	count := uint32(r.orchestrator.FramesInFlight())
	r.globalPool, err = descriptors.NewPool(r.device, descriptors.Budget{
		MaxSets:   count,
		PoolSizes: []gpu.DescriptorPoolSize{{Type: gpu.DescriptorTypeUniformBuffer, Count: count}},
	})
	if err != nil {
		return err
	}
	r.globalSets = make([]gpu.DescriptorSet, 0, count)
	for i := uint32(0); i < count; i++ {
		set, err := r.globalPool.Allocate(layout)
		if err != nil {
			return fmt.Errorf("global set for slot %d: %w", i, err)
		}
		r.globalSets = append(r.globalSets, set)
	}
	return nil
}

// Register appends a render system. Systems run in registration order.
func (r *RendererSystem) Register(rs metadata.RenderSystem) error {
	for _, existing := range r.renderSystems {
		if existing.Name() == rs.Name() {
			return fmt.Errorf("render system %q already registered: %w", rs.Name(), core.ErrInvalidArgument)
		}
	}
	r.renderSystems = append(r.renderSystems, rs)
	core.LogDebug("Render system %q registered.", rs.Name())
	return nil
}

// DrawFrame records and submits one frame. It reports false when the cycle was
// skipped because the surface had to be rebuilt first.
func (r *RendererSystem) DrawFrame(dt float64, camera metadata.Camera, drawables map[uuid.UUID]metadata.Drawable) (bool, error) {
	frameIndex := r.orchestrator.FrameIndex()
	cb, err := r.orchestrator.BeginFrame()
	if err != nil {
		return false, err
	}
	if cb == gpu.NullCommandBuffer {
		return false, nil
	}
	if err := r.orchestrator.BeginRenderPass(cb); err != nil {
		return false, err
	}

	info := &metadata.FrameInfo{
		FrameIndex:    frameIndex,
		FrameTime:     metadata.ClampFrameTime(dt, r.maxFrameTime),
		CommandBuffer: cb,
		Camera:        camera,
		GlobalSet:     r.globalSets[frameIndex],
		Allocator:     r.orchestrator.CurrentAllocator(),
		Drawables:     drawables,
	}
	var renderErr error
	for _, rs := range r.renderSystems {
		if renderErr = rs.Render(info); renderErr != nil {
			renderErr = fmt.Errorf("render system %q: %w", rs.Name(), renderErr)
			core.LogError("%s", renderErr)
			break
		}
	}

	// The frame is closed even when a render system failed so the slot stays usable.
	if err := r.orchestrator.EndRenderPass(cb); err != nil {
		return false, err
	}
	if err := r.orchestrator.EndFrame(); err != nil {
		return false, err
	}
	if renderErr != nil {
		return false, renderErr
	}
	r.FrameNumber++
	return true, nil
}

func (r *RendererSystem) SetClearColor(c math.Vec4) {
	r.orchestrator.SetClearColor(c)
}

func (r *RendererSystem) SetMaxFrameTime(seconds float64) {
	r.maxFrameTime = seconds
}

func (r *RendererSystem) GlobalLayout() gpu.DescriptorSetLayout {
	return r.globalLayout
}

func (r *RendererSystem) Extent() gpu.Extent2D {
	return r.orchestrator.Extent()
}

func (r *RendererSystem) AspectRatio() float32 {
	return r.orchestrator.AspectRatio()
}

func (r *RendererSystem) Stats() frames.Stats {
	return r.orchestrator.Stats()
}

// Shutdown drains the GPU before releasing the render systems and the globals.
func (r *RendererSystem) Shutdown() error {
	if r.orchestrator == nil {
		return nil
	}
	err := r.orchestrator.Shutdown()
	for i := len(r.renderSystems) - 1; i >= 0; i-- {
		if d, ok := r.renderSystems[i].(destroyer); ok {
			d.Destroy()
		}
	}
	r.renderSystems = nil
	if r.globalPool != nil {
		r.globalPool.Destroy()
		r.globalPool = nil
	}
	if r.globalLayout != 0 {
		r.device.DestroyDescriptorSetLayout(r.globalLayout)
		r.globalLayout = 0
	}
	r.globalSets = nil
	r.orchestrator = nil
	return err
}
