package metadata

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/math"
	"github.com/spaghettifunk/framepace/engine/renderer/descriptors"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

/** @brief The view and projection a frame is rendered with. */
type Camera struct {
	View       math.Mat4
	Projection math.Mat4
}

func NewCamera() Camera {
	return Camera{View: math.NewMat4Identity(), Projection: math.NewMat4Identity()}
}

/** @brief Anything a render system can draw. Identity is stable across frames. */
type Drawable interface {
	ID() uuid.UUID
}

/**
 * @brief Everything a render system receives for one frame. Render systems
 * must not reach past this record into the swapchain or orchestrator.
 */
type FrameInfo struct {
	/** @brief The frame-in-flight slot this frame records into. */
	FrameIndex int
	/** @brief Seconds since the previous frame, clamped to the max frame time. */
	FrameTime float64
	/** @brief The open command buffer, inside the swapchain render pass. */
	CommandBuffer gpu.CommandBuffer
	Camera        Camera
	/** @brief The global set of this slot. Lives as long as the renderer. */
	GlobalSet gpu.DescriptorSet
	/** @brief Per-draw sets for this frame only. Reset when the slot comes around again. */
	Allocator *descriptors.TransientAllocator
	Drawables map[uuid.UUID]Drawable
}

// ClampFrameTime bounds dt to [0, max] so a stall does not blow up simulation steps.
// A non-positive max falls back to core.DefaultMaxFrameTime.
func ClampFrameTime(dt, max float64) float64 {
	if max <= 0 {
		max = core.DefaultMaxFrameTime
	}
	return math.Clamp(dt, 0, max)
}

/** @brief Issues the draw calls for one kind of drawable. */
type RenderSystem interface {
	Name() string
	Render(info *FrameInfo) error
}
