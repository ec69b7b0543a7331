package swapchain

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/math"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/headless"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func newDevice(mutate func(*headless.Config)) *headless.Device {
	cfg := headless.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return headless.New(cfg)
}

func checkClean(t *testing.T, dev *headless.Device) {
	t.Helper()
	if v := dev.Violations(); len(v) > 0 {
		t.Errorf("protocol violations: %v", v)
	}
	if live := dev.LiveObjects(); len(live) > 0 {
		t.Errorf("objects still alive: %v", live)
	}
}

func TestNewChoosesSurfaceParameters(t *testing.T) {
	dev := newDevice(func(c *headless.Config) {
		c.Support.Capabilities.MinImageCount = 4
	})
	sc, err := New(dev, gpu.Extent2D{Width: 800, Height: 600}, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := sc.ImageCount(); got != 5 {
		t.Errorf("image count = %d, want 5", got)
	}
	if sc.ImageFormat() != gpu.FormatB8G8R8A8Srgb {
		t.Errorf("color format = %s", sc.ImageFormat())
	}
	if sc.DepthFormat() != gpu.FormatD32Sfloat {
		t.Errorf("depth format = %s", sc.DepthFormat())
	}
	if sc.Samples() != gpu.SampleCount4 {
		t.Errorf("samples = %d", sc.Samples())
	}
	if sc.PresentMode() != gpu.PresentModeFifo {
		t.Errorf("present mode = %s, want fifo", sc.PresentMode())
	}
	if sc.Extent() != (gpu.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("extent = %s", sc.Extent())
	}
	if r := sc.AspectRatio(); r < 1.333 || r > 1.334 {
		t.Errorf("aspect ratio = %v", r)
	}
	desc, ok := dev.RenderPassInfo(sc.RenderPass())
	if !ok || desc != sc.Formats() {
		t.Errorf("render pass built with %v, want %v", desc, sc.Formats())
	}

	sc.Destroy()
	sc.Destroy()
	checkClean(t, dev)
}

func TestPreferredPresentMode(t *testing.T) {
	dev := newDevice(nil)
	opts := DefaultOptions()
	mailbox := gpu.PresentModeMailbox
	opts.PresentMode = &mailbox

	sc, err := New(dev, gpu.Extent2D{Width: 64, Height: 64}, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sc.Destroy()
	if sc.PresentMode() != gpu.PresentModeMailbox {
		t.Errorf("present mode = %s, want mailbox", sc.PresentMode())
	}
}

func TestSamplesClampedToDevice(t *testing.T) {
	dev := newDevice(func(c *headless.Config) { c.MaxSamples = gpu.SampleCount2 })
	sc, err := New(dev, gpu.Extent2D{Width: 64, Height: 64}, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sc.Destroy()

	if sc.Samples() != gpu.SampleCount2 {
		t.Fatalf("samples = %d, want 2", sc.Samples())
	}
	for i, a := range sc.attachments {
		for _, img := range []gpu.Image{a.color, a.depth} {
			info, ok := dev.ImageInfo(img)
			if !ok {
				t.Fatalf("image %d attachment %d missing", i, img)
			}
			if info.Samples != gpu.SampleCount2 || info.Extent != sc.Extent() {
				t.Errorf("image %d attachment created with %+v", i, info)
			}
		}
	}
}

func TestChooseExtent(t *testing.T) {
	caps := gpu.SurfaceCapabilities{
		CurrentExtent:  gpu.Extent2D{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
		MinImageExtent: gpu.Extent2D{Width: 16, Height: 16},
		MaxImageExtent: gpu.Extent2D{Width: 4096, Height: 2048},
	}
	tests := []struct {
		name string
		req  gpu.Extent2D
		want gpu.Extent2D
	}{
		{"inside", gpu.Extent2D{Width: 800, Height: 600}, gpu.Extent2D{Width: 800, Height: 600}},
		{"too large", gpu.Extent2D{Width: 9000, Height: 9000}, gpu.Extent2D{Width: 4096, Height: 2048}},
		{"too small", gpu.Extent2D{Width: 1, Height: 1}, gpu.Extent2D{Width: 16, Height: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chooseExtent(caps, tt.req); got != tt.want {
				t.Errorf("chooseExtent(%s) = %s, want %s", tt.req, got, tt.want)
			}
		})
	}

	caps.CurrentExtent = gpu.Extent2D{Width: 1024, Height: 768}
	if got := chooseExtent(caps, gpu.Extent2D{Width: 1, Height: 1}); got != caps.CurrentExtent {
		t.Errorf("defined current extent ignored: got %s", got)
	}
}

func TestChooseImageCount(t *testing.T) {
	if got := chooseImageCount(gpu.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 0}); got != 3 {
		t.Errorf("unbounded: got %d, want 3", got)
	}
	if got := chooseImageCount(gpu.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 3}); got != 3 {
		t.Errorf("bounded: got %d, want 3", got)
	}
}

func TestChoosePresentModeFallback(t *testing.T) {
	immediate := gpu.PresentModeImmediate
	tests := []struct {
		name      string
		available []gpu.PresentMode
		preferred *gpu.PresentMode
		want      gpu.PresentMode
	}{
		{"relaxed first", []gpu.PresentMode{gpu.PresentModeMailbox, gpu.PresentModeFifoRelaxed, gpu.PresentModeFifo}, nil, gpu.PresentModeFifoRelaxed},
		{"fifo", []gpu.PresentMode{gpu.PresentModeImmediate, gpu.PresentModeFifo}, nil, gpu.PresentModeFifo},
		{"preferred", []gpu.PresentMode{gpu.PresentModeImmediate, gpu.PresentModeFifo}, &immediate, gpu.PresentModeImmediate},
		{"preferred missing", []gpu.PresentMode{gpu.PresentModeMailbox}, &immediate, gpu.PresentModeMailbox},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := choosePresentMode(tt.available, tt.preferred); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChooseSurfaceFormatFallsBackToFirst(t *testing.T) {
	formats := []gpu.SurfaceFormat{
		{Format: gpu.FormatR8G8B8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
		{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
	}
	if got := chooseSurfaceFormat(formats); got != formats[0] {
		t.Errorf("got %v, want %v", got, formats[0])
	}
}

func TestRecreateKeepsRenderPass(t *testing.T) {
	dev := newDevice(nil)
	first, err := New(dev, gpu.Extent2D{Width: 800, Height: 600}, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rp := first.RenderPass()
	images := first.ImageCount()

	second, err := Recreate(first, gpu.Extent2D{Width: 1280, Height: 720})
	if err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if second.RenderPass() != rp {
		t.Errorf("render pass changed across rebuild: %d -> %d", rp, second.RenderPass())
	}
	if second.Extent() != (gpu.Extent2D{Width: 1280, Height: 720}) {
		t.Errorf("extent = %s", second.Extent())
	}
	if second.ID() == first.ID() {
		t.Error("rebuilt swapchain reuses the previous id")
	}
	created := dev.SwapchainsCreated()
	if len(created) != 2 || created[1].OldSwapchain == gpu.NullSwapchain {
		t.Errorf("rebuild did not hand over the old swapchain: %+v", created)
	}

	live := dev.LiveObjects()
	if live["swapchain"] != 1 || live["render_pass"] != 1 || live["framebuffer"] != images {
		t.Errorf("live objects after rebuild = %v", live)
	}

	if _, err := Recreate(first, gpu.Extent2D{Width: 10, Height: 10}); !errors.Is(err, core.ErrAlreadyDestroyed) {
		t.Errorf("recreate from consumed swapchain: err = %v", err)
	}

	second.Destroy()
	checkClean(t, dev)
}

func TestRecreateRejectsFormatDrift(t *testing.T) {
	dev := newDevice(nil)
	sc, err := New(dev, gpu.Extent2D{Width: 800, Height: 600}, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dev.SetDepthFormats(gpu.FormatD24UnormS8Uint)
	next, err := Recreate(sc, gpu.Extent2D{Width: 800, Height: 600})
	if !errors.Is(err, core.ErrIncompatibleFormats) {
		t.Fatalf("err = %v, want ErrIncompatibleFormats", err)
	}
	if next != nil {
		t.Error("incompatible rebuild returned a swapchain")
	}
	checkClean(t, dev)
}

func TestRecreateZeroExtentKeepsPrevious(t *testing.T) {
	win := headless.NewWindow(800, 600)
	dev := newDevice(func(c *headless.Config) { c.Window = win })
	sc, err := New(dev, win.Extent(), DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	win.Resize(0, 0)
	next, err := Recreate(sc, win.Extent())
	if !errors.Is(err, core.ErrSurfaceUnavailable) {
		t.Fatalf("err = %v, want ErrSurfaceUnavailable", err)
	}
	if next != nil {
		t.Fatal("zero extent rebuild returned a swapchain")
	}
	if sc.RenderPass() == gpu.NullRenderPass || sc.ImageCount() == 0 {
		t.Error("previous swapchain was torn down")
	}
	if dev.ZeroExtentRequests() != 0 {
		t.Errorf("device asked for %d zero-sized swapchains", dev.ZeroExtentRequests())
	}

	win.Resize(640, 480)
	next, err = Recreate(sc, win.Extent())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if next.Extent() != (gpu.Extent2D{Width: 640, Height: 480}) {
		t.Errorf("extent = %s", next.Extent())
	}
	next.Destroy()
	checkClean(t, dev)
}

func TestRecreateAfterFailedCreateDropsRetiredHandle(t *testing.T) {
	win := headless.NewWindow(800, 600)
	dev := newDevice(func(c *headless.Config) { c.Window = win })
	sc, err := New(dev, win.Extent(), DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	win.Resize(640, 480)
	dev.FailNextCreateSwapchain(fmt.Errorf("window busy: %w", core.ErrSurfaceUnavailable))
	next, err := Recreate(sc, win.Extent())
	if !errors.Is(err, core.ErrSurfaceUnavailable) {
		t.Fatalf("err = %v, want ErrSurfaceUnavailable", err)
	}
	if next != nil {
		t.Fatal("failed rebuild returned a swapchain")
	}
	if !sc.Retired() || !dev.SwapchainRetired(sc.handle) {
		t.Error("failed create did not retire the old swapchain")
	}
	if _, res := dev.AcquireNextImage(sc.handle, 0, gpu.NullSemaphore); res != gpu.ResultErrorOutOfDate {
		t.Errorf("acquire on retired swapchain = %s", res)
	}

	next, err = Recreate(sc, win.Extent())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	created := dev.SwapchainsCreated()
	if old := created[len(created)-1].OldSwapchain; old != gpu.NullSwapchain {
		t.Errorf("retry passed retired swapchain %d as old swapchain", old)
	}
	if next.Retired() {
		t.Error("new swapchain reported as retired")
	}
	next.Destroy()
	checkClean(t, dev)
}

type slotObjects struct {
	sync FrameSync
	cb   gpu.CommandBuffer
}

func newSlot(t *testing.T, dev gpu.Device, slot int) slotObjects {
	t.Helper()
	ia, _ := dev.CreateSemaphore()
	rf, _ := dev.CreateSemaphore()
	f, _ := dev.CreateFence(true)
	cbs, err := dev.AllocateCommandBuffers(1)
	if err != nil {
		t.Fatalf("AllocateCommandBuffers: %v", err)
	}
	return slotObjects{
		sync: FrameSync{Slot: slot, ImageAvailable: ia, RenderFinished: rf, InFlight: f},
		cb:   cbs[0],
	}
}

func (s slotObjects) destroy(dev gpu.Device) {
	dev.FreeCommandBuffers([]gpu.CommandBuffer{s.cb})
	dev.DestroyFence(s.sync.InFlight)
	dev.DestroySemaphore(s.sync.RenderFinished)
	dev.DestroySemaphore(s.sync.ImageAvailable)
}

func record(t *testing.T, dev gpu.Device, sc *SwapChain, cb gpu.CommandBuffer, idx uint32) {
	t.Helper()
	if err := dev.BeginCommandBuffer(cb); err != nil {
		t.Fatalf("BeginCommandBuffer: %v", err)
	}
	if err := sc.BeginRenderPass(cb, idx); err != nil {
		t.Fatalf("BeginRenderPass: %v", err)
	}
	sc.EndRenderPass(cb)
	if err := dev.EndCommandBuffer(cb); err != nil {
		t.Fatalf("EndCommandBuffer: %v", err)
	}
}

func TestFrameCycle(t *testing.T) {
	dev := newDevice(nil)
	sc, err := New(dev, gpu.Extent2D{Width: 320, Height: 200}, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sc.SetClearColor(math.NewVec4(0.2, 0.3, 0.4, 1))
	slots := []slotObjects{newSlot(t, dev, 0), newSlot(t, dev, 1)}

	for frame := 0; frame < 6; frame++ {
		s := slots[frame%len(slots)]
		idx, res := sc.AcquireNextImage(s.sync)
		if res != gpu.ResultSuccess {
			t.Fatalf("frame %d: acquire = %s", frame, res)
		}
		record(t, dev, sc, s.cb, idx)
		res, err := sc.Present(s.cb, idx, s.sync)
		if err != nil || res != gpu.ResultSuccess {
			t.Fatalf("frame %d: present = %s, %v", frame, res, err)
		}
	}

	begin := dev.LastRenderPassBegin()
	if begin.ClearColor != [4]float32{0.2, 0.3, 0.4, 1} || begin.ClearDepth != 1 || begin.ClearStencil != 0 {
		t.Errorf("clear values = %v / %v / %v", begin.ClearColor, begin.ClearDepth, begin.ClearStencil)
	}
	if begin.RenderPass != sc.RenderPass() || begin.Area.Extent != sc.Extent() {
		t.Errorf("render pass begin = %+v", begin)
	}
	vp := dev.LastViewport()
	if vp.Width != 320 || vp.Height != 200 || vp.MinDepth != 0 || vp.MaxDepth != 1 {
		t.Errorf("viewport = %+v", vp)
	}
	if dev.LastScissor().Extent != sc.Extent() {
		t.Errorf("scissor = %+v", dev.LastScissor())
	}
	if dev.Presents() != 6 {
		t.Errorf("presents = %d, want 6", dev.Presents())
	}

	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	for _, s := range slots {
		s.destroy(dev)
	}
	sc.Destroy()
	checkClean(t, dev)
}

func TestSubmitWithoutPresentKeepsSemaphoresBalanced(t *testing.T) {
	dev := newDevice(nil)
	sc, err := New(dev, gpu.Extent2D{Width: 64, Height: 64}, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := newSlot(t, dev, 0)

	idx, res := sc.AcquireNextImage(s.sync)
	if !res.IsSuccess() {
		t.Fatalf("acquire = %s", res)
	}
	record(t, dev, sc, s.cb, idx)
	if err := sc.SubmitWithoutPresent(s.cb, idx, s.sync); err != nil {
		t.Fatalf("SubmitWithoutPresent: %v", err)
	}
	subs := dev.Submissions()
	if len(subs) != 1 || subs[0].Signals != 0 || subs[0].Fence != s.sync.InFlight {
		t.Errorf("submissions = %+v", subs)
	}
	if dev.Presents() != 0 {
		t.Errorf("presents = %d, want 0", dev.Presents())
	}

	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	s.destroy(dev)
	sc.Destroy()
	checkClean(t, dev)
}

func TestPresentReportsOutOfDateAfterResize(t *testing.T) {
	win := headless.NewWindow(800, 600)
	dev := newDevice(func(c *headless.Config) { c.Window = win })
	sc, err := New(dev, win.Extent(), DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := newSlot(t, dev, 0)

	idx, res := sc.AcquireNextImage(s.sync)
	if res != gpu.ResultSuccess {
		t.Fatalf("acquire = %s", res)
	}
	record(t, dev, sc, s.cb, idx)
	win.Resize(1024, 768)
	res, err = sc.Present(s.cb, idx, s.sync)
	if err != nil {
		t.Fatalf("Present: %v", err)
	}
	if res != gpu.ResultErrorOutOfDate || !res.IsStale() {
		t.Errorf("present = %s, want out of date", res)
	}

	if _, res := sc.AcquireNextImage(s.sync); res != gpu.ResultErrorOutOfDate {
		t.Errorf("acquire after resize = %s, want out of date", res)
	}

	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	s.destroy(dev)
	sc.Destroy()
	checkClean(t, dev)
}

func TestImageIndexOutOfRange(t *testing.T) {
	dev := newDevice(nil)
	sc, err := New(dev, gpu.Extent2D{Width: 64, Height: 64}, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sc.Destroy()
	if err := sc.BeginRenderPass(1, 99); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("BeginRenderPass err = %v", err)
	}
	if err := sc.SubmitWithoutPresent(1, 99, FrameSync{}); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("SubmitWithoutPresent err = %v", err)
	}
}
