// Package headless implements gpu.Device on a simulated GPU timeline. Work
// submitted to the queue completes in order, each submission taking Turnaround
// of virtual time, and the CPU only observes completion by waiting on fences.
// The device checks the synchronization protocol as it goes and records every
// misuse as a violation instead of failing.
package headless

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

const (
	kindSwapchain     = "swapchain"
	kindImage         = "image"
	kindImageView     = "image_view"
	kindRenderPass    = "render_pass"
	kindFramebuffer   = "framebuffer"
	kindSemaphore     = "semaphore"
	kindFence         = "fence"
	kindCommandBuffer = "command_buffer"
	kindPool          = "descriptor_pool"
	kindLayout        = "descriptor_set_layout"
)

type Config struct {
	Support gpu.SurfaceSupport
	// Window, when set, drives the surface's CurrentExtent and makes the
	// presentation engine report out-of-date swapchains after a resize.
	Window       *Window
	DepthFormats []gpu.Format
	MaxSamples   gpu.SampleCount
	// Turnaround is the virtual GPU time each submission takes.
	Turnaround time.Duration
}

func DefaultConfig() Config {
	return Config{
		Support: gpu.SurfaceSupport{
			Capabilities: gpu.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  8,
				CurrentExtent:  gpu.Extent2D{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
				MinImageExtent: gpu.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: gpu.Extent2D{Width: 16384, Height: 16384},
			},
			Formats: []gpu.SurfaceFormat{
				{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
				{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
			},
			PresentModes: []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox, gpu.PresentModeImmediate},
		},
		DepthFormats: []gpu.Format{gpu.FormatD32Sfloat, gpu.FormatD24UnormS8Uint},
		MaxSamples:   gpu.SampleCount8,
		Turnaround:   4 * time.Millisecond,
	}
}

// Submission is one QueueSubmit as seen by the simulated GPU.
type Submission struct {
	Seq            int
	CommandBuffers []gpu.CommandBuffer
	Fence          gpu.Fence
	Signals        int
	SubmittedAt    time.Duration
	CompletesAt    time.Duration
	Completed      bool
}

type fenceState struct {
	signaled bool
	pending  *Submission
}

type commandBufferState struct {
	recording    bool
	inRenderPass bool
	last         *Submission
}

type swapchainState struct {
	info     gpu.SwapchainCreateInfo
	images   []gpu.Image
	acquired []bool
	next     int
	retired  bool
}

type poolState struct {
	maxSets uint32
	sizes   map[gpu.DescriptorType]uint32
	used    map[gpu.DescriptorType]uint32
	sets    []gpu.DescriptorSet
}

type Device struct {
	cfg Config

	next           uint64
	now            time.Duration
	lastCompletion time.Duration

	objects         map[uint64]string
	semaphores      map[gpu.Semaphore]bool
	fences          map[gpu.Fence]*fenceState
	commandBuffers  map[gpu.CommandBuffer]*commandBufferState
	swapchains      map[gpu.Swapchain]*swapchainState
	swapchainImages map[gpu.Image]gpu.Swapchain
	images          map[gpu.Image]gpu.ImageCreateInfo
	renderPasses    map[gpu.RenderPass]gpu.RenderPassDescriptor
	pools           map[gpu.DescriptorPool]*poolState
	layouts         map[gpu.DescriptorSetLayout][]gpu.DescriptorSetLayoutBinding
	sets            map[gpu.DescriptorSet]gpu.DescriptorPool

	submissions    []*Submission
	pending        []*Submission
	maxOutstanding int
	fenceWaits     []time.Duration
	waitIdles      int
	poolResets     int
	created        []gpu.SwapchainCreateInfo
	zeroExtent     int
	presents       int
	lastBegin      gpu.RenderPassBeginInfo
	lastViewport   gpu.Viewport
	lastScissor    gpu.Rect2D
	violations     []string

	failAcquire  []gpu.Result
	failPresent  []gpu.Result
	failWaitIdle []error
	failCreate   []error
}

var _ gpu.Device = (*Device)(nil)

func New(cfg Config) *Device {
	if cfg.MaxSamples == 0 {
		cfg.MaxSamples = gpu.SampleCount1
	}
	d := &Device{
		cfg:             cfg,
		objects:         make(map[uint64]string),
		semaphores:      make(map[gpu.Semaphore]bool),
		fences:          make(map[gpu.Fence]*fenceState),
		commandBuffers:  make(map[gpu.CommandBuffer]*commandBufferState),
		swapchains:      make(map[gpu.Swapchain]*swapchainState),
		swapchainImages: make(map[gpu.Image]gpu.Swapchain),
		images:          make(map[gpu.Image]gpu.ImageCreateInfo),
		renderPasses:    make(map[gpu.RenderPass]gpu.RenderPassDescriptor),
		pools:           make(map[gpu.DescriptorPool]*poolState),
		layouts:         make(map[gpu.DescriptorSetLayout][]gpu.DescriptorSetLayoutBinding),
		sets:            make(map[gpu.DescriptorSet]gpu.DescriptorPool),
	}
	core.LogInfo("Headless device created (turnaround %s, max samples %d).", cfg.Turnaround, cfg.MaxSamples)
	return d
}

func (d *Device) violate(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	d.violations = append(d.violations, msg)
	core.LogError("headless: %s", msg)
}

func (d *Device) alloc(kind string) uint64 {
	d.next++
	d.objects[d.next] = kind
	return d.next
}

func (d *Device) release(kind string, h uint64) bool {
	if h == 0 {
		return false
	}
	k, ok := d.objects[h]
	if !ok || k != kind {
		d.violate("destroy of unknown %s %d", kind, h)
		return false
	}
	delete(d.objects, h)
	return true
}

// releaseAttachment is release for objects the GPU may still be reading.
func (d *Device) releaseAttachment(kind string, h uint64) bool {
	if h != 0 && len(d.pending) > 0 {
		d.violate("%s %d destroyed with %d submissions outstanding", kind, h, len(d.pending))
	}
	return d.release(kind, h)
}

func (d *Device) retire(t time.Duration) {
	for len(d.pending) > 0 && d.pending[0].CompletesAt <= t {
		s := d.pending[0]
		d.pending = d.pending[1:]
		s.Completed = true
		if fs, ok := d.fences[s.Fence]; ok && fs.pending == s {
			fs.pending = nil
			fs.signaled = true
		}
	}
}

func (d *Device) advanceTo(t time.Duration) {
	if t > d.now {
		d.now = t
	}
	d.retire(d.now)
}

// Advance moves the CPU clock forward, completing any work due by then.
func (d *Device) Advance(dt time.Duration) {
	d.advanceTo(d.now + dt)
}

func (d *Device) SurfaceSupport() (gpu.SurfaceSupport, error) {
	s := d.cfg.Support
	s.Formats = append([]gpu.SurfaceFormat(nil), s.Formats...)
	s.PresentModes = append([]gpu.PresentMode(nil), s.PresentModes...)
	if d.cfg.Window != nil {
		s.Capabilities.CurrentExtent = d.cfg.Window.extent
	}
	return s, nil
}

func (d *Device) FindSupportedFormat(candidates []gpu.Format, features gpu.FormatFeature) (gpu.Format, bool) {
	if features != gpu.FormatFeatureDepthStencilAttachment {
		return gpu.FormatUndefined, false
	}
	for _, c := range candidates {
		for _, f := range d.cfg.DepthFormats {
			if c == f {
				return c, true
			}
		}
	}
	return gpu.FormatUndefined, false
}

func (d *Device) MaxSampleCount() gpu.SampleCount {
	return d.cfg.MaxSamples
}

// SetDepthFormats replaces the depth formats reported as supported.
func (d *Device) SetDepthFormats(formats ...gpu.Format) {
	d.cfg.DepthFormats = formats
}

// SetSurfaceFormats replaces the surface formats offered to new swapchains.
func (d *Device) SetSurfaceFormats(formats ...gpu.SurfaceFormat) {
	d.cfg.Support.Formats = formats
}

func (d *Device) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.Swapchain, []gpu.Image, error) {
	// The old swapchain is retired by the call, whether or not creation succeeds.
	if info.OldSwapchain != 0 {
		old, ok := d.swapchains[info.OldSwapchain]
		switch {
		case !ok:
			d.violate("old swapchain %d is not alive", info.OldSwapchain)
		case old.retired:
			d.violate("old swapchain %d was already retired", info.OldSwapchain)
		default:
			old.retired = true
		}
	}
	if len(d.failCreate) > 0 {
		err := d.failCreate[0]
		d.failCreate = d.failCreate[1:]
		return 0, nil, err
	}
	if info.Extent.IsZero() {
		d.zeroExtent++
		return 0, nil, fmt.Errorf("headless swapchain %s: %w", info.Extent, core.ErrSurfaceUnavailable)
	}
	if info.MinImageCount == 0 {
		d.violate("swapchain requested with zero images")
		info.MinImageCount = 1
	}

	sc := gpu.Swapchain(d.alloc(kindSwapchain))
	state := &swapchainState{
		info:     info,
		images:   make([]gpu.Image, info.MinImageCount),
		acquired: make([]bool, info.MinImageCount),
	}
	for i := range state.images {
		d.next++
		img := gpu.Image(d.next)
		state.images[i] = img
		d.swapchainImages[img] = sc
	}
	d.swapchains[sc] = state
	d.created = append(d.created, info)
	return sc, append([]gpu.Image(nil), state.images...), nil
}

func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	state, ok := d.swapchains[sc]
	if !d.releaseAttachment(kindSwapchain, uint64(sc)) || !ok {
		return
	}
	for _, img := range state.images {
		delete(d.swapchainImages, img)
	}
	delete(d.swapchains, sc)
}

func (d *Device) AcquireNextImage(sc gpu.Swapchain, timeout uint64, signal gpu.Semaphore) (uint32, gpu.Result) {
	state, ok := d.swapchains[sc]
	if !ok {
		d.violate("acquire from unknown swapchain %d", sc)
		return 0, gpu.ResultErrorSurfaceLost
	}
	result := gpu.ResultSuccess
	if len(d.failAcquire) > 0 {
		result = d.failAcquire[0]
		d.failAcquire = d.failAcquire[1:]
		if !result.IsSuccess() {
			return 0, result
		}
	}
	if state.retired || d.surfaceChanged(state) {
		return 0, gpu.ResultErrorOutOfDate
	}

	signaled, ok := d.semaphores[signal]
	if !ok {
		d.violate("acquire signals unknown semaphore %d", signal)
	} else if signaled {
		d.violate("acquire signals semaphore %d which is already signaled", signal)
	}

	n := len(state.images)
	for i := 0; i < n; i++ {
		idx := (state.next + i) % n
		if state.acquired[idx] {
			continue
		}
		state.acquired[idx] = true
		state.next = (idx + 1) % n
		d.semaphores[signal] = true
		return uint32(idx), result
	}
	d.violate("acquire with all %d images already held by the application", n)
	return 0, gpu.ResultNotReady
}

func (d *Device) surfaceChanged(state *swapchainState) bool {
	if d.cfg.Window == nil {
		return false
	}
	return d.cfg.Window.extent != state.info.Extent
}

func (d *Device) QueuePresent(info gpu.PresentInfo) gpu.Result {
	state, ok := d.swapchains[info.Swapchain]
	if !ok {
		d.violate("present to unknown swapchain %d", info.Swapchain)
		return gpu.ResultErrorSurfaceLost
	}
	for _, s := range info.WaitSemaphores {
		if !d.semaphores[s] {
			d.violate("present waits on semaphore %d which will never be signaled", s)
		}
		d.semaphores[s] = false
	}
	if int(info.ImageIndex) >= len(state.images) || !state.acquired[info.ImageIndex] {
		d.violate("present of image %d which was not acquired", info.ImageIndex)
	} else {
		state.acquired[info.ImageIndex] = false
	}
	d.presents++

	if len(d.failPresent) > 0 {
		r := d.failPresent[0]
		d.failPresent = d.failPresent[1:]
		return r
	}
	if state.retired || d.surfaceChanged(state) {
		return gpu.ResultErrorOutOfDate
	}
	return gpu.ResultSuccess
}

func (d *Device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	if info.Extent.IsZero() {
		return 0, fmt.Errorf("headless image %s: %w", info.Extent, core.ErrInvalidArgument)
	}
	if !info.Samples.Valid() || info.Samples > d.cfg.MaxSamples {
		return 0, fmt.Errorf("headless image samples %d: %w", info.Samples, core.ErrUnsupportedFormat)
	}
	img := gpu.Image(d.alloc(kindImage))
	d.images[img] = info
	return img, nil
}

func (d *Device) DestroyImage(img gpu.Image) {
	if _, owned := d.swapchainImages[img]; owned {
		d.violate("destroy of swapchain-owned image %d", img)
		return
	}
	if d.releaseAttachment(kindImage, uint64(img)) {
		delete(d.images, img)
	}
}

func (d *Device) CreateImageView(img gpu.Image, format gpu.Format, aspect gpu.ImageAspect) (gpu.ImageView, error) {
	_, own := d.images[img]
	_, sc := d.swapchainImages[img]
	if !own && !sc {
		return 0, fmt.Errorf("headless view of unknown image %d: %w", img, core.ErrInvalidArgument)
	}
	return gpu.ImageView(d.alloc(kindImageView)), nil
}

func (d *Device) DestroyImageView(view gpu.ImageView) {
	d.releaseAttachment(kindImageView, uint64(view))
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	rp := gpu.RenderPass(d.alloc(kindRenderPass))
	d.renderPasses[rp] = desc
	return rp, nil
}

func (d *Device) DestroyRenderPass(rp gpu.RenderPass) {
	if d.releaseAttachment(kindRenderPass, uint64(rp)) {
		delete(d.renderPasses, rp)
	}
}

func (d *Device) CreateFramebuffer(rp gpu.RenderPass, attachments []gpu.ImageView, extent gpu.Extent2D) (gpu.Framebuffer, error) {
	if _, ok := d.renderPasses[rp]; !ok {
		return 0, fmt.Errorf("headless framebuffer for unknown render pass %d: %w", rp, core.ErrInvalidArgument)
	}
	for _, a := range attachments {
		if d.objects[uint64(a)] != kindImageView {
			return 0, fmt.Errorf("headless framebuffer attachment %d is not a view: %w", a, core.ErrInvalidArgument)
		}
	}
	return gpu.Framebuffer(d.alloc(kindFramebuffer)), nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	d.releaseAttachment(kindFramebuffer, uint64(fb))
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	s := gpu.Semaphore(d.alloc(kindSemaphore))
	d.semaphores[s] = false
	return s, nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	if d.release(kindSemaphore, uint64(s)) {
		delete(d.semaphores, s)
	}
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	f := gpu.Fence(d.alloc(kindFence))
	d.fences[f] = &fenceState{signaled: signaled}
	return f, nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	if fs, ok := d.fences[f]; ok && fs.pending != nil {
		d.violate("fence %d destroyed while submission %d is outstanding", f, fs.pending.Seq)
	}
	if d.release(kindFence, uint64(f)) {
		delete(d.fences, f)
	}
}

func (d *Device) WaitForFence(f gpu.Fence, timeout uint64) gpu.Result {
	fs, ok := d.fences[f]
	if !ok {
		d.violate("wait on unknown fence %d", f)
		return gpu.ResultErrorUnknown
	}
	if fs.signaled {
		d.fenceWaits = append(d.fenceWaits, 0)
		return gpu.ResultSuccess
	}
	if fs.pending == nil {
		d.violate("wait on fence %d which has no pending work and would never signal", f)
		return gpu.ResultTimeout
	}
	wait := fs.pending.CompletesAt - d.now
	if wait < 0 {
		wait = 0
	}
	d.fenceWaits = append(d.fenceWaits, wait)
	d.advanceTo(fs.pending.CompletesAt)
	return gpu.ResultSuccess
}

func (d *Device) ResetFence(f gpu.Fence) error {
	fs, ok := d.fences[f]
	if !ok {
		return fmt.Errorf("headless reset of unknown fence %d: %w", f, core.ErrInvalidArgument)
	}
	if fs.pending != nil {
		d.violate("fence %d reset while submission %d is outstanding", f, fs.pending.Seq)
	}
	fs.signaled = false
	return nil
}

func (d *Device) WaitIdle() error {
	if len(d.failWaitIdle) > 0 {
		err := d.failWaitIdle[0]
		d.failWaitIdle = d.failWaitIdle[1:]
		return err
	}
	d.waitIdles++
	d.advanceTo(d.lastCompletion)
	return nil
}

func (d *Device) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	out := make([]gpu.CommandBuffer, count)
	for i := range out {
		cb := gpu.CommandBuffer(d.alloc(kindCommandBuffer))
		d.commandBuffers[cb] = &commandBufferState{}
		out[i] = cb
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(cbs []gpu.CommandBuffer) {
	for _, cb := range cbs {
		if st, ok := d.commandBuffers[cb]; ok && st.last != nil && !st.last.Completed {
			d.violate("command buffer %d freed while submission %d is outstanding", cb, st.last.Seq)
		}
		if d.release(kindCommandBuffer, uint64(cb)) {
			delete(d.commandBuffers, cb)
		}
	}
}

func (d *Device) ResetCommandPool() error {
	if len(d.pending) > 0 {
		d.violate("command pool reset with %d submissions outstanding", len(d.pending))
	}
	for _, st := range d.commandBuffers {
		st.recording = false
		st.inRenderPass = false
	}
	d.poolResets++
	return nil
}

func (d *Device) commandBuffer(cb gpu.CommandBuffer, op string) *commandBufferState {
	st, ok := d.commandBuffers[cb]
	if !ok {
		d.violate("%s on unknown command buffer %d", op, cb)
		return &commandBufferState{}
	}
	return st
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer) error {
	st := d.commandBuffer(cb, "begin")
	if st.last != nil && !st.last.Completed {
		d.violate("command buffer %d re-recorded while submission %d is outstanding", cb, st.last.Seq)
	}
	if st.recording {
		return fmt.Errorf("headless command buffer %d already recording: %w", cb, core.ErrInvalidArgument)
	}
	st.recording = true
	st.inRenderPass = false
	return nil
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	st := d.commandBuffer(cb, "end")
	if !st.recording || st.inRenderPass {
		d.violate("end of command buffer %d in an invalid state", cb)
		return fmt.Errorf("headless command buffer %d not ready to end: %w", cb, core.ErrInvalidArgument)
	}
	st.recording = false
	return nil
}

func (d *Device) CmdBeginRenderPass(cb gpu.CommandBuffer, info gpu.RenderPassBeginInfo) {
	st := d.commandBuffer(cb, "begin render pass")
	if !st.recording || st.inRenderPass {
		d.violate("render pass begun on command buffer %d in an invalid state", cb)
	}
	if _, ok := d.renderPasses[info.RenderPass]; !ok {
		d.violate("begin of unknown render pass %d", info.RenderPass)
	}
	if d.objects[uint64(info.Framebuffer)] != kindFramebuffer {
		d.violate("begin with unknown framebuffer %d", info.Framebuffer)
	}
	st.inRenderPass = true
	d.lastBegin = info
}

func (d *Device) CmdEndRenderPass(cb gpu.CommandBuffer) {
	st := d.commandBuffer(cb, "end render pass")
	if !st.inRenderPass {
		d.violate("render pass ended on command buffer %d outside a render pass", cb)
	}
	st.inRenderPass = false
}

func (d *Device) CmdSetViewport(cb gpu.CommandBuffer, viewport gpu.Viewport) {
	if !d.commandBuffer(cb, "set viewport").recording {
		d.violate("viewport set on command buffer %d which is not recording", cb)
	}
	d.lastViewport = viewport
}

func (d *Device) CmdSetScissor(cb gpu.CommandBuffer, scissor gpu.Rect2D) {
	if !d.commandBuffer(cb, "set scissor").recording {
		d.violate("scissor set on command buffer %d which is not recording", cb)
	}
	d.lastScissor = scissor
}

func (d *Device) QueueSubmit(info gpu.SubmitInfo, fence gpu.Fence) error {
	if len(info.WaitStages) != len(info.WaitSemaphores) {
		return fmt.Errorf("headless submit with %d wait semaphores and %d stages: %w",
			len(info.WaitSemaphores), len(info.WaitStages), core.ErrInvalidArgument)
	}
	for _, s := range info.WaitSemaphores {
		if !d.semaphores[s] {
			d.violate("submit waits on semaphore %d which will never be signaled", s)
		}
		d.semaphores[s] = false
	}
	for _, s := range info.SignalSemaphores {
		if d.semaphores[s] {
			d.violate("submit signals semaphore %d which is already signaled", s)
		}
		d.semaphores[s] = true
	}

	start := d.now
	if d.lastCompletion > start {
		start = d.lastCompletion
	}
	sub := &Submission{
		Seq:            len(d.submissions),
		CommandBuffers: append([]gpu.CommandBuffer(nil), info.CommandBuffers...),
		Fence:          fence,
		Signals:        len(info.SignalSemaphores),
		SubmittedAt:    d.now,
		CompletesAt:    start + d.cfg.Turnaround,
	}
	d.lastCompletion = sub.CompletesAt

	for _, cb := range info.CommandBuffers {
		st := d.commandBuffer(cb, "submit")
		if st.recording {
			d.violate("command buffer %d submitted while still recording", cb)
		}
		st.last = sub
	}
	if fence != 0 {
		fs, ok := d.fences[fence]
		switch {
		case !ok:
			d.violate("submit with unknown fence %d", fence)
		case fs.signaled:
			d.violate("submit with fence %d still signaled", fence)
		case fs.pending != nil:
			d.violate("submit with fence %d already pending on submission %d", fence, fs.pending.Seq)
		}
		if ok {
			fs.pending = sub
		}
	}

	d.submissions = append(d.submissions, sub)
	d.pending = append(d.pending, sub)
	if len(d.pending) > d.maxOutstanding {
		d.maxOutstanding = len(d.pending)
	}
	return nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	l := gpu.DescriptorSetLayout(d.alloc(kindLayout))
	d.layouts[l] = append([]gpu.DescriptorSetLayoutBinding(nil), bindings...)
	return l, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	if d.release(kindLayout, uint64(layout)) {
		delete(d.layouts, layout)
	}
}

func (d *Device) DescriptorSetLayoutBindings(layout gpu.DescriptorSetLayout) ([]gpu.DescriptorSetLayoutBinding, bool) {
	bindings, ok := d.layouts[layout]
	return bindings, ok
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []gpu.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	if maxSets == 0 {
		return 0, fmt.Errorf("headless descriptor pool with no sets: %w", core.ErrInvalidArgument)
	}
	ps := &poolState{
		maxSets: maxSets,
		sizes:   make(map[gpu.DescriptorType]uint32),
		used:    make(map[gpu.DescriptorType]uint32),
	}
	for _, s := range sizes {
		ps.sizes[s.Type] += s.Count
	}
	p := gpu.DescriptorPool(d.alloc(kindPool))
	d.pools[p] = ps
	return p, nil
}

func (d *Device) ResetDescriptorPool(pool gpu.DescriptorPool) error {
	ps, ok := d.pools[pool]
	if !ok {
		return fmt.Errorf("headless reset of unknown descriptor pool %d: %w", pool, core.ErrInvalidArgument)
	}
	for _, s := range ps.sets {
		delete(d.sets, s)
	}
	ps.sets = ps.sets[:0]
	ps.used = make(map[gpu.DescriptorType]uint32)
	return nil
}

func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	ps, ok := d.pools[pool]
	if !d.release(kindPool, uint64(pool)) || !ok {
		return
	}
	for _, s := range ps.sets {
		delete(d.sets, s)
	}
	delete(d.pools, pool)
}

func (d *Device) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, gpu.Result) {
	ps, ok := d.pools[pool]
	if !ok {
		d.violate("allocate from unknown descriptor pool %d", pool)
		return 0, gpu.ResultErrorUnknown
	}
	bindings, ok := d.layouts[layout]
	if !ok {
		d.violate("allocate with unknown layout %d", layout)
		return 0, gpu.ResultErrorUnknown
	}
	if uint32(len(ps.sets)) >= ps.maxSets {
		return 0, gpu.ResultErrorOutOfPoolMemory
	}
	need := make(map[gpu.DescriptorType]uint32)
	for _, b := range bindings {
		need[b.Type] += b.Count
	}
	for t, n := range need {
		if ps.used[t]+n > ps.sizes[t] {
			return 0, gpu.ResultErrorOutOfPoolMemory
		}
	}
	for t, n := range need {
		ps.used[t] += n
	}
	d.next++
	set := gpu.DescriptorSet(d.next)
	ps.sets = append(ps.sets, set)
	d.sets[set] = pool
	return set, gpu.ResultSuccess
}

func (d *Device) Destroy() {
	if len(d.pending) > 0 {
		d.violate("device destroyed with %d submissions outstanding", len(d.pending))
	}
	core.LogInfo("Headless device destroyed after %d submissions.", len(d.submissions))
}
