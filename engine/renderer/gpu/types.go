// Package gpu declares the device contract the frame pipeline is written against.
// Handles are opaque; a zero handle is null. Enumerations share the numeric values of
// their Vulkan counterparts so backends can convert them directly.
package gpu

import (
	"fmt"
	"math"
)

type (
	Swapchain           uint64
	Image               uint64
	ImageView           uint64
	RenderPass          uint64
	Framebuffer         uint64
	Semaphore           uint64
	Fence               uint64
	CommandBuffer       uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	DescriptorSetLayout uint64
)

const (
	NullSwapchain     Swapchain     = 0
	NullCommandBuffer CommandBuffer = 0
	NullRenderPass    RenderPass    = 0
	NullFence         Fence         = 0
	NullSemaphore     Semaphore     = 0
)

// WaitForever is the timeout used for fence waits and image acquisition.
const WaitForever uint64 = math.MaxUint64

// UndefinedExtent marks a CurrentExtent the platform leaves to the swapchain.
const UndefinedExtent uint32 = math.MaxUint32

type Extent2D struct {
	Width, Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

type Format int32

const (
	FormatUndefined       Format = 0
	FormatR8G8B8A8Unorm   Format = 37
	FormatR8G8B8A8Srgb    Format = 43
	FormatB8G8R8A8Unorm   Format = 44
	FormatB8G8R8A8Srgb    Format = 50
	FormatD32Sfloat       Format = 126
	FormatD24UnormS8Uint  Format = 129
	FormatD32SfloatS8Uint Format = 130
)

func (f Format) String() string {
	switch f {
	case FormatUndefined:
		return "UNDEFINED"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatR8G8B8A8Srgb:
		return "R8G8B8A8_SRGB"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatB8G8R8A8Srgb:
		return "B8G8R8A8_SRGB"
	case FormatD32Sfloat:
		return "D32_SFLOAT"
	case FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	case FormatD32SfloatS8Uint:
		return "D32_SFLOAT_S8_UINT"
	}
	return fmt.Sprintf("Format(%d)", int32(f))
}

// HasStencil reports whether a depth format carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

type ColorSpace int32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type PresentMode int32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return fmt.Sprintf("PresentMode(%d)", int32(p))
}

// ParsePresentMode accepts the names produced by PresentMode.String.
func ParsePresentMode(s string) (PresentMode, error) {
	for _, p := range []PresentMode{PresentModeImmediate, PresentModeMailbox, PresentModeFifo, PresentModeFifoRelaxed} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown present mode %q", s)
}

type SampleCount uint32

const (
	SampleCount1  SampleCount = 1
	SampleCount2  SampleCount = 2
	SampleCount4  SampleCount = 4
	SampleCount8  SampleCount = 8
	SampleCount16 SampleCount = 16
	SampleCount32 SampleCount = 32
	SampleCount64 SampleCount = 64
)

// Valid reports whether s is a single power-of-two sample count.
func (s SampleCount) Valid() bool {
	return s >= SampleCount1 && s <= SampleCount64 && s&(s-1) == 0
}

type ImageUsage uint32

const (
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
	ImageUsageTransientAttachment    ImageUsage = 0x40
)

type ImageAspect uint32

const (
	ImageAspectColor   ImageAspect = 0x1
	ImageAspectDepth   ImageAspect = 0x2
	ImageAspectStencil ImageAspect = 0x4
)

type FormatFeature uint32

const FormatFeatureDepthStencilAttachment FormatFeature = 0x200

type PipelineStage uint32

const (
	PipelineStageEarlyFragmentTests    PipelineStage = 0x100
	PipelineStageLateFragmentTests     PipelineStage = 0x200
	PipelineStageColorAttachmentOutput PipelineStage = 0x400
)

type DescriptorType int32

const (
	DescriptorTypeSampler              DescriptorType = 0
	DescriptorTypeCombinedImageSampler DescriptorType = 1
	DescriptorTypeSampledImage         DescriptorType = 2
	DescriptorTypeUniformBuffer        DescriptorType = 6
	DescriptorTypeStorageBuffer        DescriptorType = 7
	DescriptorTypeUniformBufferDynamic DescriptorType = 8
)

func (d DescriptorType) String() string {
	switch d {
	case DescriptorTypeSampler:
		return "sampler"
	case DescriptorTypeCombinedImageSampler:
		return "combined_image_sampler"
	case DescriptorTypeSampledImage:
		return "sampled_image"
	case DescriptorTypeUniformBuffer:
		return "uniform_buffer"
	case DescriptorTypeStorageBuffer:
		return "storage_buffer"
	case DescriptorTypeUniformBufferDynamic:
		return "uniform_buffer_dynamic"
	}
	return fmt.Sprintf("DescriptorType(%d)", int32(d))
}

// ParseDescriptorType accepts the names produced by DescriptorType.String.
func ParseDescriptorType(s string) (DescriptorType, error) {
	for _, d := range []DescriptorType{
		DescriptorTypeSampler, DescriptorTypeCombinedImageSampler, DescriptorTypeSampledImage,
		DescriptorTypeUniformBuffer, DescriptorTypeStorageBuffer, DescriptorTypeUniformBufferDynamic,
	} {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown descriptor type %q", s)
}

type ShaderStage uint32

const (
	ShaderStageVertex      ShaderStage = 0x1
	ShaderStageFragment    ShaderStage = 0x10
	ShaderStageAllGraphics ShaderStage = 0x1f
)
