package gpu

type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32 // 0 means no upper bound
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

// SurfaceSupport is what the presentation engine offers for the current surface.
type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

type SwapchainCreateInfo struct {
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent2D
	PresentMode   PresentMode
	// OldSwapchain is retired by the call, even when creation fails.
	OldSwapchain Swapchain
}

type ImageCreateInfo struct {
	Extent  Extent2D
	Format  Format
	Samples SampleCount
	Usage   ImageUsage
}

// RenderPassDescriptor is everything a pipeline needs to know to be compatible
// with the swapchain render pass.
type RenderPassDescriptor struct {
	ColorFormat Format
	DepthFormat Format
	Samples     SampleCount
}

// Compatible reports whether pipelines built against d can be used with other.
func (d RenderPassDescriptor) Compatible(other RenderPassDescriptor) bool {
	return d == other
}

type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type RenderPassBeginInfo struct {
	RenderPass   RenderPass
	Framebuffer  Framebuffer
	Area         Rect2D
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint32
}

type SubmitInfo struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	SignalSemaphores []Semaphore
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     uint32
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorSetLayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}
