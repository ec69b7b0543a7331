package swapchain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/math"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// Depth formats in order of preference.
var depthCandidates = []gpu.Format{
	gpu.FormatD32Sfloat,
	gpu.FormatD32SfloatS8Uint,
	gpu.FormatD24UnormS8Uint,
}

// Present modes tried, in order, when the preferred one is unavailable.
var presentModeFallback = []gpu.PresentMode{
	gpu.PresentModeFifoRelaxed,
	gpu.PresentModeFifo,
	gpu.PresentModeMailbox,
	gpu.PresentModeImmediate,
}

var DefaultClearColor = math.NewVec4(0.01, 0.01, 0.01, 1.0)

type Options struct {
	// Samples requested for the colour and depth attachments. Clamped to what the device supports.
	Samples gpu.SampleCount
	// PresentMode is used when the surface supports it; otherwise the fallback order applies.
	PresentMode *gpu.PresentMode
	ClearColor  math.Vec4
}

func DefaultOptions() Options {
	return Options{
		Samples:    gpu.SampleCount4,
		ClearColor: DefaultClearColor,
	}
}

// FrameSync is the set of synchronization objects owned by one frame-in-flight slot.
type FrameSync struct {
	Slot           int
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	InFlight       gpu.Fence
}

type imageOwner struct {
	fence gpu.Fence
	slot  int
	used  bool
}

// attachments holds the extent-sized resources bound to one presentable image.
type attachments struct {
	view        gpu.ImageView
	color       gpu.Image
	colorView   gpu.ImageView
	depth       gpu.Image
	depthView   gpu.ImageView
	framebuffer gpu.Framebuffer
}

// SwapChain owns the presentable images and everything sized to them, plus the
// render pass they are drawn with.
type SwapChain struct {
	id     uuid.UUID
	device gpu.Device
	opts   Options

	handle        gpu.Swapchain
	surfaceFormat gpu.SurfaceFormat
	depthFormat   gpu.Format
	samples       gpu.SampleCount
	presentMode   gpu.PresentMode
	extent        gpu.Extent2D

	images         []gpu.Image
	attachments    []attachments
	renderPass     gpu.RenderPass
	imagesInFlight []imageOwner

	// retired is set once handle was passed to the device as an old swapchain.
	// It can no longer acquire and must not be passed as an old swapchain again.
	retired   bool
	destroyed bool
}

// New builds a swapchain for extent. A zero extent returns core.ErrSurfaceUnavailable;
// callers retry once the window has a usable size.
func New(device gpu.Device, extent gpu.Extent2D, opts Options) (*SwapChain, error) {
	sc := &SwapChain{id: uuid.New(), device: device, opts: opts}
	if err := sc.createSwapchain(extent, nil); err != nil {
		return nil, err
	}
	if err := sc.build(gpu.NullRenderPass); err != nil {
		sc.Destroy()
		return nil, err
	}
	core.LogInfo("Swapchain %s created: %s, %d images, color %s, depth %s, %dx MSAA, %s.",
		sc.id, sc.extent, len(sc.images), sc.surfaceFormat.Format, sc.depthFormat, sc.samples, sc.presentMode)
	return sc, nil
}

// Recreate builds a replacement for previous sized to extent and takes ownership
// of previous. The only outcome that leaves previous alive is
// core.ErrSurfaceUnavailable, so the caller can retry; previous may be retired
// by then and is only good for another Recreate. In every other case
// previous is destroyed before Recreate returns. A rebuild that would change the
// colour format, depth format or sample count fails with core.ErrIncompatibleFormats.
func Recreate(previous *SwapChain, extent gpu.Extent2D) (*SwapChain, error) {
	if previous == nil || previous.destroyed {
		return nil, fmt.Errorf("swapchain recreate: %w", core.ErrAlreadyDestroyed)
	}
	sc := &SwapChain{id: uuid.New(), device: previous.device, opts: previous.opts}
	if err := sc.createSwapchain(extent, previous); err != nil {
		if errors.Is(err, core.ErrSurfaceUnavailable) {
			return nil, err
		}
		previous.Destroy()
		return nil, err
	}

	if !sc.CompareFormats(previous) {
		err := fmt.Errorf("swapchain %s -> %s: %v vs %v: %w",
			previous.id, sc.id, previous.Formats(), sc.Formats(), core.ErrIncompatibleFormats)
		core.LogError("%s", err)
		sc.Destroy()
		previous.Destroy()
		return nil, err
	}

	// Pipelines were built against the previous render pass; keep it.
	rp := previous.renderPass
	previous.renderPass = gpu.NullRenderPass
	previous.Destroy()

	if err := sc.build(rp); err != nil {
		sc.Destroy()
		return nil, err
	}
	core.LogInfo("Swapchain %s rebuilt as %s at %s.", previous.id, sc.id, sc.extent)
	return sc, nil
}

func (sc *SwapChain) createSwapchain(requested gpu.Extent2D, previous *SwapChain) error {
	support, err := sc.device.SurfaceSupport()
	if err != nil {
		err = fmt.Errorf("failed to query surface support: %w", err)
		core.LogError("%s", err)
		return err
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		err := fmt.Errorf("surface offers %d formats and %d present modes: %w",
			len(support.Formats), len(support.PresentModes), core.ErrUnsupportedFormat)
		core.LogError("%s", err)
		return err
	}

	sc.surfaceFormat = chooseSurfaceFormat(support.Formats)
	sc.presentMode = choosePresentMode(support.PresentModes, sc.opts.PresentMode)
	sc.extent = chooseExtent(support.Capabilities, requested)
	if sc.extent.IsZero() {
		return fmt.Errorf("swapchain extent %s: %w", sc.extent, core.ErrSurfaceUnavailable)
	}

	depth, ok := sc.device.FindSupportedFormat(depthCandidates, gpu.FormatFeatureDepthStencilAttachment)
	if !ok {
		err := fmt.Errorf("no supported depth format among %v: %w", depthCandidates, core.ErrUnsupportedFormat)
		core.LogError("%s", err)
		return err
	}
	sc.depthFormat = depth
	sc.samples = chooseSamples(sc.opts.Samples, sc.device.MaxSampleCount())

	old := gpu.NullSwapchain
	if previous != nil && !previous.retired {
		old = previous.handle
		previous.retired = true
	}
	handle, images, err := sc.device.CreateSwapchain(gpu.SwapchainCreateInfo{
		MinImageCount: chooseImageCount(support.Capabilities),
		Format:        sc.surfaceFormat,
		Extent:        sc.extent,
		PresentMode:   sc.presentMode,
		OldSwapchain:  old,
	})
	if err != nil {
		if !errors.Is(err, core.ErrSurfaceUnavailable) {
			core.LogError("failed to create swapchain: %s", err)
		}
		return err
	}
	sc.handle = handle
	sc.images = images
	sc.imagesInFlight = make([]imageOwner, len(images))
	return nil
}

// build creates the render pass (unless one is handed over) and every per-image attachment.
func (sc *SwapChain) build(renderPass gpu.RenderPass) error {
	sc.renderPass = renderPass
	if sc.renderPass == gpu.NullRenderPass {
		rp, err := sc.device.CreateRenderPass(sc.Formats())
		if err != nil {
			err = fmt.Errorf("failed to create render pass: %w", err)
			core.LogError("%s", err)
			return err
		}
		sc.renderPass = rp
	}

	sc.attachments = make([]attachments, 0, len(sc.images))
	for i, img := range sc.images {
		a, err := sc.createAttachments(img)
		sc.attachments = append(sc.attachments, a)
		if err != nil {
			err = fmt.Errorf("failed to create attachments for image %d: %w", i, err)
			core.LogError("%s", err)
			return err
		}
	}
	return nil
}

// createAttachments returns whatever it managed to create, even on error, so Destroy can release it.
func (sc *SwapChain) createAttachments(img gpu.Image) (attachments, error) {
	var a attachments
	var err error
	if a.view, err = sc.device.CreateImageView(img, sc.surfaceFormat.Format, gpu.ImageAspectColor); err != nil {
		return a, err
	}

	if a.color, err = sc.device.CreateImage(gpu.ImageCreateInfo{
		Extent:  sc.extent,
		Format:  sc.surfaceFormat.Format,
		Samples: sc.samples,
		Usage:   gpu.ImageUsageTransientAttachment | gpu.ImageUsageColorAttachment,
	}); err != nil {
		return a, err
	}
	if a.colorView, err = sc.device.CreateImageView(a.color, sc.surfaceFormat.Format, gpu.ImageAspectColor); err != nil {
		return a, err
	}

	if a.depth, err = sc.device.CreateImage(gpu.ImageCreateInfo{
		Extent:  sc.extent,
		Format:  sc.depthFormat,
		Samples: sc.samples,
		Usage:   gpu.ImageUsageDepthStencilAttachment,
	}); err != nil {
		return a, err
	}
	if a.depthView, err = sc.device.CreateImageView(a.depth, sc.depthFormat, gpu.ImageAspectDepth); err != nil {
		return a, err
	}

	// Attachment order matches the render pass: MSAA colour, depth, resolve target.
	a.framebuffer, err = sc.device.CreateFramebuffer(sc.renderPass,
		[]gpu.ImageView{a.colorView, a.depthView, a.view}, sc.extent)
	return a, err
}

// Destroy releases everything the swapchain owns, children first. Safe to call twice.
func (sc *SwapChain) Destroy() {
	if sc.destroyed {
		return
	}
	sc.destroyed = true
	dev := sc.device
	for _, a := range sc.attachments {
		if a.framebuffer != 0 {
			dev.DestroyFramebuffer(a.framebuffer)
		}
		if a.depthView != 0 {
			dev.DestroyImageView(a.depthView)
		}
		if a.depth != 0 {
			dev.DestroyImage(a.depth)
		}
		if a.colorView != 0 {
			dev.DestroyImageView(a.colorView)
		}
		if a.color != 0 {
			dev.DestroyImage(a.color)
		}
		if a.view != 0 {
			dev.DestroyImageView(a.view)
		}
	}
	sc.attachments = nil

	// Images belong to the swapchain and go with it.
	if sc.handle != gpu.NullSwapchain {
		dev.DestroySwapchain(sc.handle)
		sc.handle = gpu.NullSwapchain
	}
	sc.images = nil
	sc.imagesInFlight = nil

	if sc.renderPass != gpu.NullRenderPass {
		dev.DestroyRenderPass(sc.renderPass)
		sc.renderPass = gpu.NullRenderPass
	}
	core.LogDebug("Swapchain %s destroyed.", sc.id)
}

func chooseSurfaceFormat(formats []gpu.SurfaceFormat) gpu.SurfaceFormat {
	for _, f := range formats {
		if f.Format == gpu.FormatB8G8R8A8Srgb && f.ColorSpace == gpu.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

func choosePresentMode(modes []gpu.PresentMode, preferred *gpu.PresentMode) gpu.PresentMode {
	has := func(m gpu.PresentMode) bool {
		for _, available := range modes {
			if available == m {
				return true
			}
		}
		return false
	}
	if preferred != nil && has(*preferred) {
		return *preferred
	}
	for _, m := range presentModeFallback {
		if has(m) {
			return m
		}
	}
	return modes[0]
}

func chooseExtent(caps gpu.SurfaceCapabilities, requested gpu.Extent2D) gpu.Extent2D {
	if caps.CurrentExtent.Width != gpu.UndefinedExtent {
		return caps.CurrentExtent
	}
	return gpu.Extent2D{
		Width:  math.Clamp(requested.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(requested.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func chooseImageCount(caps gpu.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func chooseSamples(requested, max gpu.SampleCount) gpu.SampleCount {
	if !requested.Valid() {
		requested = gpu.SampleCount1
	}
	for requested > max && requested > gpu.SampleCount1 {
		requested >>= 1
	}
	return requested
}
