package gpu

// Device is a logical GPU device with a graphics queue and a presentation surface.
// Every method is called from the render thread only.
type Device interface {
	// Surface
	SurfaceSupport() (SurfaceSupport, error)
	FindSupportedFormat(candidates []Format, features FormatFeature) (Format, bool)
	MaxSampleCount() SampleCount

	// Swapchain
	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, []Image, error)
	DestroySwapchain(sc Swapchain)
	AcquireNextImage(sc Swapchain, timeout uint64, signal Semaphore) (uint32, Result)
	QueuePresent(info PresentInfo) Result

	// Images and attachments
	CreateImage(info ImageCreateInfo) (Image, error)
	DestroyImage(img Image)
	CreateImageView(img Image, format Format, aspect ImageAspect) (ImageView, error)
	DestroyImageView(view ImageView)
	CreateRenderPass(desc RenderPassDescriptor) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(rp RenderPass, attachments []ImageView, extent Extent2D) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	// Synchronization
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	WaitForFence(f Fence, timeout uint64) Result
	ResetFence(f Fence) error
	WaitIdle() error

	// Commands
	AllocateCommandBuffers(count int) ([]CommandBuffer, error)
	FreeCommandBuffers(cbs []CommandBuffer)
	ResetCommandPool() error
	BeginCommandBuffer(cb CommandBuffer) error
	EndCommandBuffer(cb CommandBuffer) error
	CmdBeginRenderPass(cb CommandBuffer, info RenderPassBeginInfo)
	CmdEndRenderPass(cb CommandBuffer)
	CmdSetViewport(cb CommandBuffer, viewport Viewport)
	CmdSetScissor(cb CommandBuffer, scissor Rect2D)
	QueueSubmit(info SubmitInfo, fence Fence) error

	// Descriptors
	CreateDescriptorSetLayout(bindings []DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	// DescriptorSetLayoutBindings reports the bindings layout was created with.
	DescriptorSetLayoutBindings(layout DescriptorSetLayout) ([]DescriptorSetLayoutBinding, bool)
	CreateDescriptorPool(maxSets uint32, sizes []DescriptorPoolSize) (DescriptorPool, error)
	ResetDescriptorPool(pool DescriptorPool) error
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, Result)

	Destroy()
}
