package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// CreateSwapchain creates a presentable swapchain and returns handles for its images.
// A refusal caused by the window state wraps core.ErrSurfaceUnavailable.
func (d *Device) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.Swapchain, []gpu.Image, error) {
	if info.Extent.IsZero() {
		return gpu.NullSwapchain, nil, fmt.Errorf("swapchain extent %s: %w", info.Extent, core.ErrSurfaceUnavailable)
	}
	device := d.context.Device

	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(device.PhysicalDevice, d.context.Surface, &caps); res != vk.Success {
		return gpu.NullSwapchain, nil, surfaceError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	caps.Deref()

	old := vk.NullSwapchain
	if info.OldSwapchain != gpu.NullSwapchain {
		if h, ok := d.swapchains.get(info.OldSwapchain); ok {
			old = h
		}
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.context.Surface,
		MinImageCount:   info.MinImageCount,
		ImageFormat:     vk.Format(info.Format.Format),
		ImageColorSpace: vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	// Setup the queue family indices
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	if res := vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, d.context.Allocator, &swapchainHandle); res != vk.Success {
		return gpu.NullSwapchain, nil, surfaceError("vkCreateSwapchainKHR", res)
	}

	var imageCount uint32
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(device.LogicalDevice, swapchainHandle, &imageCount, nil)); err != nil {
		vk.DestroySwapchain(device.LogicalDevice, swapchainHandle, d.context.Allocator)
		return gpu.NullSwapchain, nil, err
	}
	vkImages := make([]vk.Image, imageCount)
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(device.LogicalDevice, swapchainHandle, &imageCount, vkImages)); err != nil {
		vk.DestroySwapchain(device.LogicalDevice, swapchainHandle, d.context.Allocator)
		return gpu.NullSwapchain, nil, err
	}

	handle := d.swapchains.put(swapchainHandle)
	images := make([]gpu.Image, len(vkImages))
	for i, img := range vkImages {
		images[i] = d.images.put(vulkanImage{Handle: img, swapchainOwned: true})
	}
	d.swapchainImages[handle] = images
	core.LogDebug("Vulkan swapchain created with %d images.", imageCount)
	return handle, images, nil
}

func surfaceError(op string, res vk.Result) error {
	switch res {
	case vk.ErrorSurfaceLost, vk.ErrorNativeWindowInUse, vk.ErrorOutOfDate:
		return fmt.Errorf("%s: %s: %w", op, VulkanResultString(res), core.ErrSurfaceUnavailable)
	}
	return check(op, res)
}

// DestroySwapchain destroys the swapchain together with its images.
func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	h, ok := d.swapchains.take(sc)
	if !ok {
		core.LogWarn("DestroySwapchain on unknown handle %d", sc)
		return
	}
	for _, img := range d.swapchainImages[sc] {
		d.images.take(img)
	}
	delete(d.swapchainImages, sc)
	vk.DestroySwapchain(d.context.Device.LogicalDevice, h, d.context.Allocator)
}

func (d *Device) AcquireNextImage(sc gpu.Swapchain, timeout uint64, signal gpu.Semaphore) (uint32, gpu.Result) {
	h, ok := d.swapchains.get(sc)
	if !ok {
		return 0, gpu.ResultErrorOutOfDate
	}
	sem, _ := d.semaphores.get(signal)
	var imageIndex uint32
	res := vk.AcquireNextImage(d.context.Device.LogicalDevice, h, timeout, sem, vk.NullFence, &imageIndex)
	return imageIndex, toResult(res)
}

func (d *Device) QueuePresent(info gpu.PresentInfo) gpu.Result {
	h, ok := d.swapchains.get(info.Swapchain)
	if !ok {
		return gpu.ResultErrorOutOfDate
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(info.WaitSemaphores)),
		PWaitSemaphores:    d.vkSemaphores(info.WaitSemaphores),
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{h},
		PImageIndices:      []uint32{info.ImageIndex},
	}
	return toResult(vk.QueuePresent(d.context.Device.PresentQueue, &presentInfo))
}
