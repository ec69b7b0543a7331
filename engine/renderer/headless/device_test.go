package headless

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func expectViolation(t *testing.T, d *Device, fragment string) {
	t.Helper()
	for _, v := range d.Violations() {
		if strings.Contains(v, fragment) {
			return
		}
	}
	t.Errorf("no violation containing %q in %v", fragment, d.Violations())
}

func expectClean(t *testing.T, d *Device) {
	t.Helper()
	if v := d.Violations(); len(v) > 0 {
		t.Errorf("unexpected violations: %v", v)
	}
}

func semaphore(t *testing.T, d *Device) gpu.Semaphore {
	t.Helper()
	s, err := d.CreateSemaphore()
	if err != nil {
		t.Fatalf("CreateSemaphore: %v", err)
	}
	return s
}

// recorded returns a command buffer that has been recorded and is ready to submit.
func recorded(t *testing.T, d *Device) gpu.CommandBuffer {
	t.Helper()
	cbs, err := d.AllocateCommandBuffers(1)
	if err != nil {
		t.Fatalf("AllocateCommandBuffers: %v", err)
	}
	if err := d.BeginCommandBuffer(cbs[0]); err != nil {
		t.Fatalf("BeginCommandBuffer: %v", err)
	}
	if err := d.EndCommandBuffer(cbs[0]); err != nil {
		t.Fatalf("EndCommandBuffer: %v", err)
	}
	return cbs[0]
}

func newSwapchain(t *testing.T, d *Device, old gpu.Swapchain) gpu.Swapchain {
	t.Helper()
	sc, _, err := d.CreateSwapchain(gpu.SwapchainCreateInfo{
		MinImageCount: 3,
		Format:        gpu.SurfaceFormat{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
		Extent:        gpu.Extent2D{Width: 800, Height: 600},
		PresentMode:   gpu.PresentModeFifo,
		OldSwapchain:  old,
	})
	if err != nil {
		t.Fatalf("CreateSwapchain: %v", err)
	}
	return sc
}

func TestCleanFrameHasNoViolations(t *testing.T) {
	d := New(DefaultConfig())
	sc := newSwapchain(t, d, gpu.NullSwapchain)
	available, finished := semaphore(t, d), semaphore(t, d)
	fence, err := d.CreateFence(false)
	if err != nil {
		t.Fatal(err)
	}
	cb := recorded(t, d)

	idx, res := d.AcquireNextImage(sc, 0, available)
	if res != gpu.ResultSuccess {
		t.Fatalf("acquire = %s", res)
	}
	if err := d.QueueSubmit(gpu.SubmitInfo{
		CommandBuffers:   []gpu.CommandBuffer{cb},
		WaitSemaphores:   []gpu.Semaphore{available},
		WaitStages:       []gpu.PipelineStage{gpu.PipelineStageColorAttachmentOutput},
		SignalSemaphores: []gpu.Semaphore{finished},
	}, fence); err != nil {
		t.Fatalf("QueueSubmit: %v", err)
	}
	if res := d.QueuePresent(gpu.PresentInfo{WaitSemaphores: []gpu.Semaphore{finished}, Swapchain: sc, ImageIndex: idx}); res != gpu.ResultSuccess {
		t.Fatalf("present = %s", res)
	}
	if d.Outstanding() != 1 {
		t.Errorf("outstanding = %d", d.Outstanding())
	}
	if res := d.WaitForFence(fence, 0); res != gpu.ResultSuccess {
		t.Fatalf("WaitForFence = %s", res)
	}
	if d.Outstanding() != 0 || !d.Completed(0) {
		t.Error("submission not retired by the fence wait")
	}
	if d.Now() != DefaultConfig().Turnaround {
		t.Errorf("virtual time = %s", d.Now())
	}

	d.FreeCommandBuffers([]gpu.CommandBuffer{cb})
	d.DestroyFence(fence)
	d.DestroySemaphore(available)
	d.DestroySemaphore(finished)
	d.DestroySwapchain(sc)
	d.Destroy()
	expectClean(t, d)
	if live := d.LiveObjects(); len(live) > 0 {
		t.Errorf("objects alive: %v", live)
	}
}

func TestSubmitWaitingOnUnsignaledSemaphore(t *testing.T) {
	d := New(DefaultConfig())
	never := semaphore(t, d)
	cb := recorded(t, d)
	if err := d.QueueSubmit(gpu.SubmitInfo{
		CommandBuffers: []gpu.CommandBuffer{cb},
		WaitSemaphores: []gpu.Semaphore{never},
		WaitStages:     []gpu.PipelineStage{gpu.PipelineStageColorAttachmentOutput},
	}, gpu.NullFence); err != nil {
		t.Fatalf("QueueSubmit: %v", err)
	}
	expectViolation(t, d, "never be signaled")
}

func TestSubmitRequiresStagePerWait(t *testing.T) {
	d := New(DefaultConfig())
	s := semaphore(t, d)
	err := d.QueueSubmit(gpu.SubmitInfo{
		CommandBuffers: []gpu.CommandBuffer{recorded(t, d)},
		WaitSemaphores: []gpu.Semaphore{s},
	}, gpu.NullFence)
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestDoubleAcquireSignal(t *testing.T) {
	d := New(DefaultConfig())
	sc := newSwapchain(t, d, gpu.NullSwapchain)
	available := semaphore(t, d)
	if _, res := d.AcquireNextImage(sc, 0, available); res != gpu.ResultSuccess {
		t.Fatalf("first acquire = %s", res)
	}
	expectClean(t, d)
	if _, res := d.AcquireNextImage(sc, 0, available); res != gpu.ResultSuccess {
		t.Fatalf("second acquire = %s", res)
	}
	expectViolation(t, d, "already signaled")
}

func TestAcquireEveryImage(t *testing.T) {
	d := New(DefaultConfig())
	sc := newSwapchain(t, d, gpu.NullSwapchain)
	for i := 0; i < 3; i++ {
		if _, res := d.AcquireNextImage(sc, 0, semaphore(t, d)); res != gpu.ResultSuccess {
			t.Fatalf("acquire %d = %s", i, res)
		}
	}
	if _, res := d.AcquireNextImage(sc, 0, semaphore(t, d)); res != gpu.ResultNotReady {
		t.Errorf("fourth acquire = %s", res)
	}
	expectViolation(t, d, "already held")
}

func TestPresentOfUnacquiredImage(t *testing.T) {
	d := New(DefaultConfig())
	sc := newSwapchain(t, d, gpu.NullSwapchain)
	d.QueuePresent(gpu.PresentInfo{Swapchain: sc, ImageIndex: 1})
	expectViolation(t, d, "was not acquired")
}

func TestDestroyWithOutstandingWork(t *testing.T) {
	d := New(DefaultConfig())
	fence, err := d.CreateFence(false)
	if err != nil {
		t.Fatal(err)
	}
	img, err := d.CreateImage(gpu.ImageCreateInfo{
		Extent:  gpu.Extent2D{Width: 4, Height: 4},
		Format:  gpu.FormatD32Sfloat,
		Samples: gpu.SampleCount1,
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	cb := recorded(t, d)
	if err := d.QueueSubmit(gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{cb}}, fence); err != nil {
		t.Fatalf("QueueSubmit: %v", err)
	}

	d.DestroyImage(img)
	expectViolation(t, d, "destroyed with 1 submissions outstanding")
	d.FreeCommandBuffers([]gpu.CommandBuffer{cb})
	expectViolation(t, d, "freed while submission 0 is outstanding")
	d.DestroyFence(fence)
	expectViolation(t, d, "destroyed while submission 0 is outstanding")
	d.Destroy()
	expectViolation(t, d, "device destroyed with 1 submissions outstanding")
}

func TestFenceReuseRules(t *testing.T) {
	d := New(DefaultConfig())
	fence, err := d.CreateFence(true)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.QueueSubmit(gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{recorded(t, d)}}, fence); err != nil {
		t.Fatal(err)
	}
	expectViolation(t, d, "still signaled")

	idle, err := d.CreateFence(false)
	if err != nil {
		t.Fatal(err)
	}
	if res := d.WaitForFence(idle, 0); res != gpu.ResultTimeout {
		t.Errorf("wait on idle fence = %s", res)
	}
	expectViolation(t, d, "would never signal")
}

func TestSubmissionsCompleteInOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Turnaround = 10 * time.Millisecond
	d := New(cfg)
	first, _ := d.CreateFence(false)
	second, _ := d.CreateFence(false)
	a, b := recorded(t, d), recorded(t, d)
	if err := d.QueueSubmit(gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{a}}, first); err != nil {
		t.Fatal(err)
	}
	if err := d.QueueSubmit(gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{b}}, second); err != nil {
		t.Fatal(err)
	}
	if d.MaxOutstanding() != 2 {
		t.Errorf("max outstanding = %d", d.MaxOutstanding())
	}

	d.Advance(5 * time.Millisecond)
	if d.Completed(0) {
		t.Error("submission completed before its turnaround")
	}
	if res := d.WaitForFence(second, 0); res != gpu.ResultSuccess {
		t.Fatalf("WaitForFence = %s", res)
	}
	if !d.Completed(0) || !d.Completed(1) {
		t.Error("waiting on the later fence did not retire the earlier submission")
	}
	if d.Now() != 20*time.Millisecond {
		t.Errorf("virtual time = %s, want 20ms", d.Now())
	}
	if waits := d.FenceWaits(); len(waits) != 1 || waits[0] != 15*time.Millisecond {
		t.Errorf("fence waits = %v", waits)
	}
	if res := d.WaitForFence(first, 0); res != gpu.ResultSuccess {
		t.Errorf("first fence = %s", res)
	}
	expectClean(t, d)
}

func TestRetiredSwapchainRules(t *testing.T) {
	d := New(DefaultConfig())
	old := newSwapchain(t, d, gpu.NullSwapchain)

	d.FailNextCreateSwapchain(core.ErrSurfaceUnavailable)
	if _, _, err := d.CreateSwapchain(gpu.SwapchainCreateInfo{
		MinImageCount: 3,
		Extent:        gpu.Extent2D{Width: 640, Height: 480},
		OldSwapchain:  old,
	}); !errors.Is(err, core.ErrSurfaceUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if !d.SwapchainRetired(old) {
		t.Fatal("failed create left the old swapchain current")
	}
	if _, res := d.AcquireNextImage(old, 0, semaphore(t, d)); res != gpu.ResultErrorOutOfDate {
		t.Errorf("acquire on retired swapchain = %s", res)
	}
	expectClean(t, d)

	newSwapchain(t, d, old)
	expectViolation(t, d, "already retired")
}

func TestDescriptorPoolLimits(t *testing.T) {
	d := New(DefaultConfig())
	layout, err := d.CreateDescriptorSetLayout([]gpu.DescriptorSetLayoutBinding{
		{Binding: 0, Type: gpu.DescriptorTypeUniformBuffer, Count: 2, Stages: gpu.ShaderStageVertex},
	})
	if err != nil {
		t.Fatal(err)
	}
	if bindings, ok := d.DescriptorSetLayoutBindings(layout); !ok || len(bindings) != 1 || bindings[0].Count != 2 {
		t.Errorf("bindings = %v, %v", bindings, ok)
	}
	pool, err := d.CreateDescriptorPool(10, []gpu.DescriptorPoolSize{{Type: gpu.DescriptorTypeUniformBuffer, Count: 3}})
	if err != nil {
		t.Fatal(err)
	}
	set, res := d.AllocateDescriptorSet(pool, layout)
	if res != gpu.ResultSuccess {
		t.Fatalf("first set = %s", res)
	}
	if _, res := d.AllocateDescriptorSet(pool, layout); res != gpu.ResultErrorOutOfPoolMemory {
		t.Errorf("second set = %s, want out of pool memory", res)
	}
	if err := d.ResetDescriptorPool(pool); err != nil {
		t.Fatal(err)
	}
	if d.DescriptorSetAlive(set) {
		t.Error("set survived a pool reset")
	}
	if _, res := d.AllocateDescriptorSet(pool, layout); res != gpu.ResultSuccess {
		t.Errorf("set after reset = %s", res)
	}
	d.DestroyDescriptorPool(pool)
	d.DestroyDescriptorSetLayout(layout)
	expectClean(t, d)
}
