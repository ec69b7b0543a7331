package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sem vk.Semaphore
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(d.context.Device.LogicalDevice, &semaphoreCreateInfo, d.context.Allocator, &sem)); err != nil {
		return gpu.NullSemaphore, err
	}
	return d.semaphores.put(sem), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	if h, ok := d.semaphores.take(s); ok {
		vk.DestroySemaphore(d.context.Device.LogicalDevice, h, d.context.Allocator)
	}
}

func (d *Device) vkSemaphores(handles []gpu.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, 0, len(handles))
	for _, s := range handles {
		if h, ok := d.semaphores.get(s); ok {
			out = append(out, h)
		}
	}
	return out
}

// CreateFence creates a fence. A signaled fence lets the first wait on it return at once.
func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var pFence vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(d.context.Device.LogicalDevice, &fenceCreateInfo, d.context.Allocator, &pFence)); err != nil {
		return gpu.NullFence, err
	}
	return d.fences.put(pFence), nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	if h, ok := d.fences.take(f); ok {
		vk.DestroyFence(d.context.Device.LogicalDevice, h, d.context.Allocator)
	}
}

func (d *Device) WaitForFence(f gpu.Fence, timeout uint64) gpu.Result {
	h, ok := d.fences.get(f)
	if !ok {
		core.LogError("vk_fence_wait - unknown fence %d.", f)
		return gpu.ResultErrorUnknown
	}
	result := vk.WaitForFences(d.context.Device.LogicalDevice, 1, []vk.Fence{h}, vk.True, timeout)
	switch result {
	case vk.Success:
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
	default:
		core.LogError("vk_fence_wait - %s.", VulkanResultString(result))
	}
	return toResult(result)
}

func (d *Device) ResetFence(f gpu.Fence) error {
	h, ok := d.fences.get(f)
	if !ok {
		return fmt.Errorf("reset of unknown fence %d: %w", f, core.ErrInvalidArgument)
	}
	return check("vkResetFences", vk.ResetFences(d.context.Device.LogicalDevice, 1, []vk.Fence{h}))
}
