package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// CreateImage creates a 2D attachment image backed by device-local memory.
func (d *Device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	logical := d.context.Device.LogicalDevice
	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        vk.Format(info.Format),
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(info.Usage),
		Samples:       vk.SampleCountFlagBits(info.Samples),
		SharingMode:   vk.SharingModeExclusive,
	}

	var img vulkanImage
	if err := check("vkCreateImage", vk.CreateImage(logical, &imageCreateInfo, d.context.Allocator, &img.Handle)); err != nil {
		return 0, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(logical, img.Handle, &requirements)
	requirements.Deref()

	memoryType := d.context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryType < 0 {
		vk.DestroyImage(logical, img.Handle, d.context.Allocator)
		err := fmt.Errorf("no device-local memory for a %s image: %w", info.Format, core.ErrUnsupportedFormat)
		core.LogError("%s", err)
		return 0, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(logical, &allocateInfo, d.context.Allocator, &img.Memory)); err != nil {
		vk.DestroyImage(logical, img.Handle, d.context.Allocator)
		return 0, err
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(logical, img.Handle, img.Memory, 0)); err != nil {
		vk.FreeMemory(logical, img.Memory, d.context.Allocator)
		vk.DestroyImage(logical, img.Handle, d.context.Allocator)
		return 0, err
	}
	return d.images.put(img), nil
}

func (d *Device) DestroyImage(h gpu.Image) {
	img, ok := d.images.get(h)
	if !ok || img.swapchainOwned {
		core.LogWarn("DestroyImage on unknown or swapchain-owned handle %d", h)
		return
	}
	d.images.take(h)
	logical := d.context.Device.LogicalDevice
	vk.DestroyImage(logical, img.Handle, d.context.Allocator)
	vk.FreeMemory(logical, img.Memory, d.context.Allocator)
}

func (d *Device) CreateImageView(h gpu.Image, format gpu.Format, aspect gpu.ImageAspect) (gpu.ImageView, error) {
	img, ok := d.images.get(h)
	if !ok {
		return 0, fmt.Errorf("image view for unknown image %d: %w", h, core.ErrInvalidArgument)
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(d.context.Device.LogicalDevice, &viewInfo, d.context.Allocator, &view)); err != nil {
		return 0, err
	}
	return d.views.put(view), nil
}

func (d *Device) DestroyImageView(h gpu.ImageView) {
	if view, ok := d.views.take(h); ok {
		vk.DestroyImageView(d.context.Device.LogicalDevice, view, d.context.Allocator)
	}
}
