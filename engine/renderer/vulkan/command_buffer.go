package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// AllocateCommandBuffers allocates primary command buffers from the graphics pool.
func (d *Device) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	device := d.context.Device
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        device.GraphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	handles := make([]vk.CommandBuffer, count)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(device.LogicalDevice, &allocateInfo, handles)); err != nil {
		return nil, err
	}
	out := make([]gpu.CommandBuffer, count)
	for i, h := range handles {
		out[i] = d.commandBuffers.put(h)
	}
	core.LogDebug("Vulkan command buffers created.")
	return out, nil
}

func (d *Device) FreeCommandBuffers(cbs []gpu.CommandBuffer) {
	handles := make([]vk.CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		if h, ok := d.commandBuffers.take(cb); ok {
			handles = append(handles, h)
		}
	}
	if len(handles) == 0 {
		return
	}
	device := d.context.Device
	vk.FreeCommandBuffers(device.LogicalDevice, device.GraphicsCommandPool, uint32(len(handles)), handles)
}

// ResetCommandPool returns every command buffer of the graphics pool to the initial state.
func (d *Device) ResetCommandPool() error {
	device := d.context.Device
	return check("vkResetCommandPool", vk.ResetCommandPool(device.LogicalDevice, device.GraphicsCommandPool, 0))
}

func (d *Device) commandBuffer(cb gpu.CommandBuffer) (vk.CommandBuffer, error) {
	h, ok := d.commandBuffers.get(cb)
	if !ok {
		return nil, fmt.Errorf("unknown command buffer %d: %w", cb, core.ErrInvalidArgument)
	}
	return h, nil
}

// BeginCommandBuffer starts a one-time-submit recording; it implicitly resets the buffer.
func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer) error {
	h, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return check("vkBeginCommandBuffer", vk.BeginCommandBuffer(h, beginInfo))
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	h, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	return check("vkEndCommandBuffer", vk.EndCommandBuffer(h))
}

func (d *Device) CmdSetViewport(cb gpu.CommandBuffer, viewport gpu.Viewport) {
	h, _ := d.commandBuffers.get(cb)
	vk.CmdSetViewport(h, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (d *Device) CmdSetScissor(cb gpu.CommandBuffer, scissor gpu.Rect2D) {
	h, _ := d.commandBuffers.get(cb)
	vk.CmdSetScissor(h, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.X, Y: scissor.Y},
		Extent: vk.Extent2D{Width: scissor.Extent.Width, Height: scissor.Extent.Height},
	}})
}

// QueueSubmit submits to the graphics queue; fence is signaled once the work completes.
func (d *Device) QueueSubmit(info gpu.SubmitInfo, fence gpu.Fence) error {
	commandBuffers := make([]vk.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		h, err := d.commandBuffer(cb)
		if err != nil {
			return err
		}
		commandBuffers = append(commandBuffers, h)
	}
	waitStages := make([]vk.PipelineStageFlags, len(info.WaitStages))
	for i, s := range info.WaitStages {
		waitStages[i] = vk.PipelineStageFlags(s)
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(info.WaitSemaphores)),
		PWaitSemaphores:      d.vkSemaphores(info.WaitSemaphores),
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   uint32(len(commandBuffers)),
		PCommandBuffers:      commandBuffers,
		SignalSemaphoreCount: uint32(len(info.SignalSemaphores)),
		PSignalSemaphores:    d.vkSemaphores(info.SignalSemaphores),
	}

	f := vk.NullFence
	if fence != gpu.NullFence {
		h, ok := d.fences.get(fence)
		if !ok {
			return fmt.Errorf("submit with unknown fence %d: %w", fence, core.ErrInvalidArgument)
		}
		f = h
	}
	return check("vkQueueSubmit", vk.QueueSubmit(d.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, f))
}
