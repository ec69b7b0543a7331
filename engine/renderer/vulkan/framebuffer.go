package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// CreateFramebuffer binds attachments in render pass order: colour, depth, presentable image.
func (d *Device) CreateFramebuffer(rp gpu.RenderPass, attachments []gpu.ImageView, extent gpu.Extent2D) (gpu.Framebuffer, error) {
	renderPass, ok := d.renderPasses.get(rp)
	if !ok {
		return 0, fmt.Errorf("framebuffer for unknown render pass %d: %w", rp, core.ErrInvalidArgument)
	}
	if len(attachments) != attachmentCount {
		return 0, fmt.Errorf("framebuffer with %d attachments, want %d: %w", len(attachments), attachmentCount, core.ErrInvalidArgument)
	}
	views := make([]vk.ImageView, len(attachments))
	for i, a := range attachments {
		view, ok := d.views.get(a)
		if !ok {
			return 0, fmt.Errorf("framebuffer attachment %d is unknown view %d: %w", i, a, core.ErrInvalidArgument)
		}
		views[i] = view
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(d.context.Device.LogicalDevice, &framebufferCreateInfo, d.context.Allocator, &pFramebuffer)); err != nil {
		return 0, err
	}
	return d.framebuffers.put(pFramebuffer), nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	if h, ok := d.framebuffers.take(fb); ok {
		vk.DestroyFramebuffer(d.context.Device.LogicalDevice, h, d.context.Allocator)
	}
}
