package swapchain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/math"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// AcquireNextImage blocks until the slot's previous submission has finished, then
// asks the presentation engine for an image, signalling sync.ImageAvailable.
// ResultSuboptimal still returns a usable index; ResultErrorOutOfDate does not.
func (sc *SwapChain) AcquireNextImage(sync FrameSync) (uint32, gpu.Result) {
	if res := sc.device.WaitForFence(sync.InFlight, gpu.WaitForever); !res.IsSuccess() {
		core.LogError("in-flight fence wait for slot %d failed: %s", sync.Slot, res)
		return 0, res
	}
	return sc.device.AcquireNextImage(sc.handle, gpu.WaitForever, sync.ImageAvailable)
}

// Present submits cb for imageIndex and queues the image for presentation.
// The returned error covers submission; the Result is the presentation outcome.
func (sc *SwapChain) Present(cb gpu.CommandBuffer, imageIndex uint32, sync FrameSync) (gpu.Result, error) {
	if err := sc.submit(cb, imageIndex, sync, true); err != nil {
		return gpu.ResultErrorUnknown, err
	}
	return sc.device.QueuePresent(gpu.PresentInfo{
		WaitSemaphores: []gpu.Semaphore{sync.RenderFinished},
		Swapchain:      sc.handle,
		ImageIndex:     imageIndex,
	}), nil
}

// SubmitWithoutPresent submits cb but leaves the image unpresented. Used when a
// frame is abandoned for a rebuild: the slot fence still signals and
// sync.RenderFinished stays unsignaled for the slot's next use.
func (sc *SwapChain) SubmitWithoutPresent(cb gpu.CommandBuffer, imageIndex uint32, sync FrameSync) error {
	return sc.submit(cb, imageIndex, sync, false)
}

func (sc *SwapChain) submit(cb gpu.CommandBuffer, imageIndex uint32, sync FrameSync, signalRenderFinished bool) error {
	if int(imageIndex) >= len(sc.imagesInFlight) {
		return fmt.Errorf("image index %d out of range (%d images): %w", imageIndex, len(sc.imagesInFlight), core.ErrInvalidArgument)
	}

	// The presentation engine may hand back an image another slot is still rendering to.
	owner := sc.imagesInFlight[imageIndex]
	if owner.used && owner.slot != sync.Slot {
		if res := sc.device.WaitForFence(owner.fence, gpu.WaitForever); !res.IsSuccess() {
			err := fmt.Errorf("wait for image %d held by slot %d: %w", imageIndex, owner.slot, res.Err("WaitForFence"))
			core.LogError("%s", err)
			return err
		}
	}
	sc.imagesInFlight[imageIndex] = imageOwner{fence: sync.InFlight, slot: sync.Slot, used: true}

	if err := sc.device.ResetFence(sync.InFlight); err != nil {
		err = fmt.Errorf("failed to reset in-flight fence of slot %d: %w", sync.Slot, err)
		core.LogError("%s", err)
		return err
	}

	info := gpu.SubmitInfo{
		CommandBuffers: []gpu.CommandBuffer{cb},
		WaitSemaphores: []gpu.Semaphore{sync.ImageAvailable},
		WaitStages:     []gpu.PipelineStage{gpu.PipelineStageColorAttachmentOutput},
	}
	if signalRenderFinished {
		info.SignalSemaphores = []gpu.Semaphore{sync.RenderFinished}
	}
	if err := sc.device.QueueSubmit(info, sync.InFlight); err != nil {
		err = fmt.Errorf("failed to submit draw command buffer: %w", err)
		core.LogError("%s", err)
		return err
	}
	return nil
}

// BeginRenderPass starts the swapchain render pass on cb targeting imageIndex,
// clearing colour and depth and covering the whole extent.
func (sc *SwapChain) BeginRenderPass(cb gpu.CommandBuffer, imageIndex uint32) error {
	if int(imageIndex) >= len(sc.attachments) {
		return fmt.Errorf("image index %d out of range (%d images): %w", imageIndex, len(sc.attachments), core.ErrInvalidArgument)
	}
	c := sc.opts.ClearColor
	sc.device.CmdBeginRenderPass(cb, gpu.RenderPassBeginInfo{
		RenderPass:   sc.renderPass,
		Framebuffer:  sc.attachments[imageIndex].framebuffer,
		Area:         gpu.Rect2D{Extent: sc.extent},
		ClearColor:   [4]float32{c.X, c.Y, c.Z, c.W},
		ClearDepth:   1.0,
		ClearStencil: 0,
	})
	sc.device.CmdSetViewport(cb, gpu.Viewport{
		Width:    float32(sc.extent.Width),
		Height:   float32(sc.extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	})
	sc.device.CmdSetScissor(cb, gpu.Rect2D{Extent: sc.extent})
	return nil
}

func (sc *SwapChain) EndRenderPass(cb gpu.CommandBuffer) {
	sc.device.CmdEndRenderPass(cb)
}

// SetClearColor changes the background used by later render passes.
func (sc *SwapChain) SetClearColor(c math.Vec4) {
	sc.opts.ClearColor = c
}

func (sc *SwapChain) ID() uuid.UUID {
	return sc.id
}

func (sc *SwapChain) RenderPass() gpu.RenderPass {
	return sc.renderPass
}

// Formats is the attachment layout pipelines must be built against.
func (sc *SwapChain) Formats() gpu.RenderPassDescriptor {
	return gpu.RenderPassDescriptor{
		ColorFormat: sc.surfaceFormat.Format,
		DepthFormat: sc.depthFormat,
		Samples:     sc.samples,
	}
}

// CompareFormats reports whether other was built with the same attachment formats.
func (sc *SwapChain) CompareFormats(other *SwapChain) bool {
	return sc.Formats().Compatible(other.Formats())
}

func (sc *SwapChain) ImageFormat() gpu.Format {
	return sc.surfaceFormat.Format
}

func (sc *SwapChain) DepthFormat() gpu.Format {
	return sc.depthFormat
}

func (sc *SwapChain) Samples() gpu.SampleCount {
	return sc.samples
}

func (sc *SwapChain) PresentMode() gpu.PresentMode {
	return sc.presentMode
}

func (sc *SwapChain) Extent() gpu.Extent2D {
	return sc.extent
}

// Retired reports whether a failed rebuild already handed this swapchain to the
// device as an old swapchain. It can no longer acquire; Recreate it.
func (sc *SwapChain) Retired() bool {
	return sc.retired
}

func (sc *SwapChain) ImageCount() int {
	return len(sc.images)
}

func (sc *SwapChain) AspectRatio() float32 {
	if sc.extent.Height == 0 {
		return 1
	}
	return float32(sc.extent.Width) / float32(sc.extent.Height)
}

// Framebuffer returns the framebuffer bound to presentable image i.
func (sc *SwapChain) Framebuffer(i int) gpu.Framebuffer {
	return sc.attachments[i].framebuffer
}
