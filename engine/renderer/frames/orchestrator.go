// Package frames sequences frame cycles over a swapchain: it decides when the
// CPU may start recording the next frame, submits and presents finished frames,
// and rebuilds the swapchain when the window or surface changes.
package frames

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/math"
	"github.com/spaghettifunk/framepace/engine/renderer/descriptors"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/swapchain"
)

const (
	DefaultMaxFramesInFlight = 3
	MinFramesInFlight        = 2

	// surfaceRetries bounds how often a refused swapchain creation is retried
	// for an extent the window reports as usable.
	surfaceRetries = 3
)

// Window is what the orchestrator needs from the platform window.
type Window interface {
	Extent() gpu.Extent2D
	WasResized() bool
	ResetResizedFlag()
	// WaitEvents blocks until the platform has something to report.
	WaitEvents()
}

type Options struct {
	MaxFramesInFlight int
	Swapchain         swapchain.Options
	Transient         descriptors.Budget
}

func DefaultOptions() Options {
	return Options{
		MaxFramesInFlight: DefaultMaxFramesInFlight,
		Swapchain:         swapchain.DefaultOptions(),
		Transient:         descriptors.DefaultBudget(),
	}
}

type Orchestrator struct {
	device gpu.Device
	window Window
	opts   Options

	swapchain *swapchain.SwapChain
	slots     []frameSlot

	frameIndex int
	imageIndex uint32
	state      State
	suboptimal bool
	stats      Stats
	shutdown   bool
}

// New builds the swapchain and every frame slot. A minimized window is waited
// out before the swapchain is created.
func New(device gpu.Device, window Window, opts Options) (*Orchestrator, error) {
	if opts.MaxFramesInFlight == 0 {
		opts.MaxFramesInFlight = DefaultMaxFramesInFlight
	}
	if opts.MaxFramesInFlight < MinFramesInFlight {
		return nil, fmt.Errorf("%d frames in flight, need at least %d: %w",
			opts.MaxFramesInFlight, MinFramesInFlight, core.ErrInvalidArgument)
	}
	if err := opts.Transient.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{device: device, window: window, opts: opts}

	var err error
	for attempt := 0; ; attempt++ {
		o.swapchain, err = swapchain.New(device, o.usableExtent(), opts.Swapchain)
		if err == nil {
			break
		}
		if !errors.Is(err, core.ErrSurfaceUnavailable) || attempt == surfaceRetries {
			return nil, err
		}
		core.LogWarn("Swapchain creation refused (%s), waiting for the window.", err)
		window.WaitEvents()
	}
	window.ResetResizedFlag()

	cbs, err := device.AllocateCommandBuffers(opts.MaxFramesInFlight)
	if err != nil {
		o.swapchain.Destroy()
		err = fmt.Errorf("failed to allocate command buffers: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	o.slots = make([]frameSlot, 0, opts.MaxFramesInFlight)
	for i := 0; i < opts.MaxFramesInFlight; i++ {
		slot, err := newFrameSlot(device, i, cbs[i], opts.Transient)
		o.slots = append(o.slots, slot)
		if err != nil {
			core.LogError("failed to create frame slot: %s", err)
			device.FreeCommandBuffers(cbs[len(o.slots):])
			o.release()
			return nil, err
		}
	}

	core.LogInfo("Frame orchestrator ready: %d frames in flight over %d images.",
		len(o.slots), o.swapchain.ImageCount())
	return o, nil
}

// BeginFrame waits until the current slot may be reused, acquires an image and
// starts recording. A nil command buffer with a nil error means the surface was
// stale and has been rebuilt; the caller skips this cycle.
func (o *Orchestrator) BeginFrame() (gpu.CommandBuffer, error) {
	if o.state != StateIdle {
		return gpu.NullCommandBuffer, fmt.Errorf("begin frame in state %s: %w", o.state, core.ErrFrameInProgress)
	}
	if o.swapchain == nil {
		return gpu.NullCommandBuffer, fmt.Errorf("begin frame: swapchain: %w", core.ErrAlreadyDestroyed)
	}
	if o.swapchain.Retired() {
		core.LogWarn("Swapchain retired by an earlier failed rebuild, rebuilding.")
		o.stats.Skipped++
		return gpu.NullCommandBuffer, o.rebuild()
	}
	slot := &o.slots[o.frameIndex]

	imageIndex, res := o.swapchain.AcquireNextImage(slot.sync)
	switch {
	case res == gpu.ResultErrorOutOfDate:
		core.LogWarn("Swapchain out of date on acquire, rebuilding.")
		o.stats.Skipped++
		return gpu.NullCommandBuffer, o.rebuild()
	case !res.IsSuccess():
		return gpu.NullCommandBuffer, resultError("acquire next image", res)
	}
	o.imageIndex = imageIndex
	o.suboptimal = res == gpu.ResultSuboptimal

	// The slot's fence has signaled, so nothing on the GPU still reads these sets.
	if err := slot.allocator.Reset(); err != nil {
		return gpu.NullCommandBuffer, err
	}
	o.stats.Resets++

	if err := o.device.BeginCommandBuffer(slot.commandBuffer); err != nil {
		err = fmt.Errorf("failed to begin recording command buffer: %w", err)
		core.LogError("%s", err)
		return gpu.NullCommandBuffer, err
	}
	o.state = StateFrameOpen
	return slot.commandBuffer, nil
}

// BeginRenderPass opens the swapchain render pass on the current frame's command buffer.
func (o *Orchestrator) BeginRenderPass(cb gpu.CommandBuffer) error {
	switch o.state {
	case StateIdle:
		return fmt.Errorf("begin render pass: %w", core.ErrFrameNotInProgress)
	case StateRenderPassOpen:
		return fmt.Errorf("begin render pass: %w", core.ErrRenderPassInProgress)
	}
	if err := o.checkCommandBuffer(cb); err != nil {
		return err
	}
	if err := o.swapchain.BeginRenderPass(cb, o.imageIndex); err != nil {
		return err
	}
	o.state = StateRenderPassOpen
	return nil
}

func (o *Orchestrator) EndRenderPass(cb gpu.CommandBuffer) error {
	if o.state != StateRenderPassOpen {
		return fmt.Errorf("end render pass in state %s: %w", o.state, core.ErrRenderPassNotInProgress)
	}
	if err := o.checkCommandBuffer(cb); err != nil {
		return err
	}
	o.swapchain.EndRenderPass(cb)
	o.state = StateFrameOpen
	return nil
}

// EndFrame finishes recording, submits and presents, then moves to the next
// slot. A window resized during the cycle gets its frame submitted but not
// presented, followed by a rebuild.
func (o *Orchestrator) EndFrame() error {
	switch o.state {
	case StateIdle:
		return fmt.Errorf("end frame: %w", core.ErrFrameNotInProgress)
	case StateRenderPassOpen:
		return fmt.Errorf("end frame: %w", core.ErrRenderPassInProgress)
	}
	slot := &o.slots[o.frameIndex]

	if err := o.device.EndCommandBuffer(slot.commandBuffer); err != nil {
		err = fmt.Errorf("failed to end command buffer: %w", err)
		core.LogError("%s", err)
		return err
	}

	resized := o.window.WasResized()
	res := gpu.ResultSuccess
	if resized {
		// The image-available wait still has to be consumed.
		if err := o.swapchain.SubmitWithoutPresent(slot.commandBuffer, o.imageIndex, slot.sync); err != nil {
			return err
		}
		o.stats.Skipped++
	} else {
		var err error
		if res, err = o.swapchain.Present(slot.commandBuffer, o.imageIndex, slot.sync); err != nil {
			return err
		}
		if res.IsSuccess() {
			o.stats.Frames++
		}
	}

	o.frameIndex = (o.frameIndex + 1) % len(o.slots)
	o.state = StateIdle

	switch {
	case resized || res.IsStale() || o.suboptimal:
		if resized {
			core.LogInfo("Window resized to %s, rebuilding swapchain.", o.window.Extent())
		} else {
			core.LogWarn("Swapchain %s on present, rebuilding.", res)
		}
		o.suboptimal = false
		return o.rebuild()
	case !res.IsSuccess():
		return resultError("present", res)
	}
	return nil
}

// rebuild replaces the swapchain once the device is idle. Frame slots are kept.
func (o *Orchestrator) rebuild() error {
	if err := o.waitIdle(); err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		next, err := swapchain.Recreate(o.swapchain, o.usableExtent())
		if err == nil {
			o.swapchain = next
			break
		}
		if !errors.Is(err, core.ErrSurfaceUnavailable) {
			// Recreate consumed the old swapchain.
			o.swapchain = nil
			return err
		}
		if attempt == surfaceRetries {
			return err
		}
		core.LogWarn("Swapchain rebuild refused (%s), waiting for the window.", err)
		o.window.WaitEvents()
	}
	o.window.ResetResizedFlag()
	o.stats.Rebuilds++
	return nil
}

// waitIdle drains the device. If that fails the command pool is reset as a
// last resort and the wait retried once.
func (o *Orchestrator) waitIdle() error {
	err := o.device.WaitIdle()
	if err == nil {
		return nil
	}
	core.LogWarn("Device wait idle failed (%s), resetting command pool.", err)
	if rerr := o.device.ResetCommandPool(); rerr != nil {
		err = fmt.Errorf("command pool reset after failed wait (%v): %v: %w", err, rerr, core.ErrDeviceLost)
		core.LogError("%s", err)
		return err
	}
	if err := o.device.WaitIdle(); err != nil {
		err = fmt.Errorf("device wait idle failed twice: %v: %w", err, core.ErrDeviceLost)
		core.LogError("%s", err)
		return err
	}
	return nil
}

// usableExtent polls the window until it reports a drawable size.
func (o *Orchestrator) usableExtent() gpu.Extent2D {
	extent := o.window.Extent()
	if !extent.IsZero() {
		return extent
	}
	core.LogInfo("Window is minimized, waiting for a usable size.")
	for extent.IsZero() {
		o.window.WaitEvents()
		extent = o.window.Extent()
	}
	return extent
}

func (o *Orchestrator) checkCommandBuffer(cb gpu.CommandBuffer) error {
	if want := o.slots[o.frameIndex].commandBuffer; cb != want {
		return fmt.Errorf("command buffer %d, slot %d records into %d: %w", cb, o.frameIndex, want, core.ErrForeignCommandBuffer)
	}
	return nil
}

func resultError(op string, res gpu.Result) error {
	err := res.Err(op)
	if res == gpu.ResultErrorDeviceLost {
		err = fmt.Errorf("%w: %w", err, core.ErrDeviceLost)
	}
	core.LogError("%s", err)
	return err
}

// FrameIndex is the slot the next or current cycle uses.
func (o *Orchestrator) FrameIndex() int {
	return o.frameIndex
}

func (o *Orchestrator) FramesInFlight() int {
	return len(o.slots)
}

func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) Stats() Stats {
	return o.stats
}

// CurrentCommandBuffer is the command buffer of the open frame.
func (o *Orchestrator) CurrentCommandBuffer() (gpu.CommandBuffer, error) {
	if o.state == StateIdle {
		return gpu.NullCommandBuffer, fmt.Errorf("current command buffer: %w", core.ErrFrameNotInProgress)
	}
	return o.slots[o.frameIndex].commandBuffer, nil
}

// CurrentAllocator is the transient allocator of the slot the current cycle uses.
func (o *Orchestrator) CurrentAllocator() *descriptors.TransientAllocator {
	return o.slots[o.frameIndex].allocator
}

func (o *Orchestrator) Allocator(slot int) *descriptors.TransientAllocator {
	return o.slots[slot].allocator
}

// RenderPass is the render pass pipelines must be compatible with. It is
// stable across rebuilds.
func (o *Orchestrator) RenderPass() gpu.RenderPass {
	return o.swapchain.RenderPass()
}

func (o *Orchestrator) Formats() gpu.RenderPassDescriptor {
	return o.swapchain.Formats()
}

func (o *Orchestrator) AspectRatio() float32 {
	return o.swapchain.AspectRatio()
}

func (o *Orchestrator) Extent() gpu.Extent2D {
	return o.swapchain.Extent()
}

func (o *Orchestrator) ImageCount() int {
	return o.swapchain.ImageCount()
}

func (o *Orchestrator) SetClearColor(c math.Vec4) {
	o.opts.Swapchain.ClearColor = c
	if o.swapchain != nil {
		o.swapchain.SetClearColor(c)
	}
}

// Shutdown waits for the GPU to finish and releases everything in reverse
// construction order. It is safe to call more than once.
func (o *Orchestrator) Shutdown() error {
	if o.shutdown {
		return nil
	}
	o.shutdown = true
	err := o.device.WaitIdle()
	if err != nil {
		core.LogError("wait idle before shutdown failed: %s", err)
	}
	o.release()
	core.LogInfo("Frame orchestrator shut down after %d frames (%d skipped, %d rebuilds).",
		o.stats.Frames, o.stats.Skipped, o.stats.Rebuilds)
	return err
}

func (o *Orchestrator) release() {
	cbs := make([]gpu.CommandBuffer, 0, len(o.slots))
	for i := len(o.slots) - 1; i >= 0; i-- {
		o.slots[i].destroy(o.device)
		cbs = append(cbs, o.slots[i].commandBuffer)
	}
	if len(cbs) > 0 {
		o.device.FreeCommandBuffers(cbs)
	}
	o.slots = nil
	if o.swapchain != nil {
		o.swapchain.Destroy()
		o.swapchain = nil
	}
	o.state = StateIdle
}
