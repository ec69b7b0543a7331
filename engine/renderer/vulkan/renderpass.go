package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// Attachment slots shared with the framebuffers the swapchain builds.
const (
	attachmentColor = iota
	attachmentDepth
	attachmentPresent
	attachmentCount
)

// CreateRenderPass builds the single-subpass pass used for on-screen rendering.
// With multisampling the subpass draws into the MSAA colour attachment and
// resolves into the presentable image; otherwise it draws into the presentable
// image directly and the colour attachment is left untouched.
func (d *Device) CreateRenderPass(desc gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	msaa := desc.Samples > gpu.SampleCount1

	attachmentDescriptions := make([]vk.AttachmentDescription, attachmentCount)
	attachmentDescriptions[attachmentColor] = vk.AttachmentDescription{
		Format:         vk.Format(desc.ColorFormat),
		Samples:        vk.SampleCountFlagBits(desc.Samples),
		LoadOp:         vk.AttachmentLoadOpDontCare,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}
	if msaa {
		attachmentDescriptions[attachmentColor].LoadOp = vk.AttachmentLoadOpClear
	}

	attachmentDescriptions[attachmentDepth] = vk.AttachmentDescription{
		Format:         vk.Format(desc.DepthFormat),
		Samples:        vk.SampleCountFlagBits(desc.Samples),
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpClear,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	attachmentDescriptions[attachmentPresent] = vk.AttachmentDescription{
		Format:         vk.Format(desc.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpDontCare,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,  // Do not expect any particular layout before render pass starts.
		FinalLayout:    vk.ImageLayoutPresentSrc, // Transitioned to after the render pass
	}
	if !msaa {
		attachmentDescriptions[attachmentPresent].LoadOp = vk.AttachmentLoadOpClear
	}

	drawTarget := uint32(attachmentPresent)
	if msaa {
		drawTarget = attachmentColor
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: drawTarget,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &vk.AttachmentReference{
			Attachment: attachmentDepth,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
	if msaa {
		subpass.PResolveAttachments = []vk.AttachmentReference{{
			Attachment: attachmentPresent,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}}
	}

	// The image is only written once the acquire semaphore has been waited on at this stage.
	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		SrcAccessMask: 0,
		DstStageMask:  stages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pRenderPass vk.RenderPass
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(d.context.Device.LogicalDevice, &renderpassCreateInfo, d.context.Allocator, &pRenderPass)); err != nil {
		return gpu.NullRenderPass, err
	}
	return d.renderPasses.put(pRenderPass), nil
}

func (d *Device) DestroyRenderPass(rp gpu.RenderPass) {
	if h, ok := d.renderPasses.take(rp); ok {
		vk.DestroyRenderPass(d.context.Device.LogicalDevice, h, d.context.Allocator)
	}
}

func (d *Device) CmdBeginRenderPass(cb gpu.CommandBuffer, info gpu.RenderPassBeginInfo) {
	handle, _ := d.commandBuffers.get(cb)
	rp, _ := d.renderPasses.get(info.RenderPass)
	fb, _ := d.framebuffers.get(info.Framebuffer)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: info.Area.X, Y: info.Area.Y},
			Extent: vk.Extent2D{Width: info.Area.Extent.Width, Height: info.Area.Extent.Height},
		},
	}

	clearValues := make([]vk.ClearValue, attachmentCount)
	color := info.ClearColor[:]
	clearValues[attachmentColor].SetColor(color)
	clearValues[attachmentDepth].SetDepthStencil(info.ClearDepth, info.ClearStencil)
	clearValues[attachmentPresent].SetColor(color)

	beginInfo.ClearValueCount = uint32(len(clearValues))
	beginInfo.PClearValues = clearValues

	vk.CmdBeginRenderPass(handle, &beginInfo, vk.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(cb gpu.CommandBuffer) {
	handle, _ := d.commandBuffers.get(cb)
	vk.CmdEndRenderPass(handle)
}
