package headless

import (
	"time"

	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// FailNextAcquire makes the next AcquireNextImage calls return the given results, in order.
func (d *Device) FailNextAcquire(results ...gpu.Result) {
	d.failAcquire = append(d.failAcquire, results...)
}

// FailNextPresent makes the next QueuePresent calls return the given results, in order.
func (d *Device) FailNextPresent(results ...gpu.Result) {
	d.failPresent = append(d.failPresent, results...)
}

// FailNextWaitIdle makes the next WaitIdle calls fail with the given errors, in order.
func (d *Device) FailNextWaitIdle(errs ...error) {
	d.failWaitIdle = append(d.failWaitIdle, errs...)
}

// FailNextCreateSwapchain makes the next CreateSwapchain calls fail with the
// given errors, in order. The old swapchain passed to a failing call is still retired.
func (d *Device) FailNextCreateSwapchain(errs ...error) {
	d.failCreate = append(d.failCreate, errs...)
}

// SwapchainRetired reports whether sc was handed to CreateSwapchain as the old swapchain.
func (d *Device) SwapchainRetired(sc gpu.Swapchain) bool {
	state, ok := d.swapchains[sc]
	return ok && state.retired
}

func (d *Device) Now() time.Duration {
	return d.now
}

func (d *Device) Submissions() []Submission {
	out := make([]Submission, len(d.submissions))
	for i, s := range d.submissions {
		out[i] = *s
	}
	return out
}

// Completed reports whether submission seq has finished on the GPU.
func (d *Device) Completed(seq int) bool {
	return seq >= 0 && seq < len(d.submissions) && d.submissions[seq].Completed
}

// Outstanding is the number of submitted but unfinished submissions.
func (d *Device) Outstanding() int {
	return len(d.pending)
}

func (d *Device) MaxOutstanding() int {
	return d.maxOutstanding
}

// FenceWaits lists how long each WaitForFence call blocked, in virtual time.
func (d *Device) FenceWaits() []time.Duration {
	return append([]time.Duration(nil), d.fenceWaits...)
}

func (d *Device) MaxFenceWait() time.Duration {
	var m time.Duration
	for _, w := range d.fenceWaits {
		if w > m {
			m = w
		}
	}
	return m
}

func (d *Device) WaitIdleCount() int {
	return d.waitIdles
}

func (d *Device) CommandPoolResets() int {
	return d.poolResets
}

// SwapchainsCreated lists the create info of every swapchain built so far.
func (d *Device) SwapchainsCreated() []gpu.SwapchainCreateInfo {
	return append([]gpu.SwapchainCreateInfo(nil), d.created...)
}

// ZeroExtentRequests counts swapchain creations refused for a zero extent.
func (d *Device) ZeroExtentRequests() int {
	return d.zeroExtent
}

func (d *Device) Presents() int {
	return d.presents
}

func (d *Device) LastRenderPassBegin() gpu.RenderPassBeginInfo {
	return d.lastBegin
}

func (d *Device) LastViewport() gpu.Viewport {
	return d.lastViewport
}

func (d *Device) LastScissor() gpu.Rect2D {
	return d.lastScissor
}

// ImageInfo returns the create info of a device-owned image.
func (d *Device) ImageInfo(img gpu.Image) (gpu.ImageCreateInfo, bool) {
	info, ok := d.images[img]
	return info, ok
}

// RenderPassInfo returns the descriptor a render pass was created with.
func (d *Device) RenderPassInfo(rp gpu.RenderPass) (gpu.RenderPassDescriptor, bool) {
	desc, ok := d.renderPasses[rp]
	return desc, ok
}

// DescriptorSetAlive reports whether set still holds storage in its pool.
func (d *Device) DescriptorSetAlive(set gpu.DescriptorSet) bool {
	_, ok := d.sets[set]
	return ok
}

// LiveObjects counts the objects not yet destroyed, by kind.
func (d *Device) LiveObjects() map[string]int {
	out := make(map[string]int)
	for _, kind := range d.objects {
		out[kind]++
	}
	return out
}

func (d *Device) Violations() []string {
	return append([]string(nil), d.violations...)
}
