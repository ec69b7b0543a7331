package frames

import (
	"fmt"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/descriptors"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/swapchain"
)

// frameSlot is everything one frame in flight owns. Slots are created once and
// survive swapchain rebuilds.
type frameSlot struct {
	sync          swapchain.FrameSync
	commandBuffer gpu.CommandBuffer
	allocator     *descriptors.TransientAllocator
}

func newFrameSlot(device gpu.Device, index int, cb gpu.CommandBuffer, budget descriptors.Budget) (frameSlot, error) {
	s := frameSlot{
		sync:          swapchain.FrameSync{Slot: index},
		commandBuffer: cb,
	}
	var err error
	if s.sync.ImageAvailable, err = device.CreateSemaphore(); err != nil {
		return s, fmt.Errorf("slot %d image-available semaphore: %w", index, err)
	}
	if s.sync.RenderFinished, err = device.CreateSemaphore(); err != nil {
		return s, fmt.Errorf("slot %d render-finished semaphore: %w", index, err)
	}
	// Signaled so the first wait on a fresh slot returns immediately.
	if s.sync.InFlight, err = device.CreateFence(true); err != nil {
		return s, fmt.Errorf("slot %d in-flight fence: %w", index, err)
	}
	if s.allocator, err = descriptors.NewTransientAllocator(device, index, budget); err != nil {
		return s, fmt.Errorf("slot %d transient allocator: %w", index, err)
	}
	return s, nil
}

// destroy releases the slot's objects in reverse creation order. The command
// buffer is freed by the orchestrator together with the other slots'.
func (s *frameSlot) destroy(device gpu.Device) {
	if s.allocator != nil {
		s.allocator.Destroy()
		s.allocator = nil
	}
	if s.sync.InFlight != gpu.NullFence {
		device.DestroyFence(s.sync.InFlight)
		s.sync.InFlight = gpu.NullFence
	}
	if s.sync.RenderFinished != gpu.NullSemaphore {
		device.DestroySemaphore(s.sync.RenderFinished)
		s.sync.RenderFinished = gpu.NullSemaphore
	}
	if s.sync.ImageAvailable != gpu.NullSemaphore {
		device.DestroySemaphore(s.sync.ImageAvailable)
		s.sync.ImageAvailable = gpu.NullSemaphore
	}
	core.LogDebug("Frame slot %d destroyed.", s.sync.Slot)
}
