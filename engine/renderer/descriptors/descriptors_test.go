package descriptors

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/headless"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func newLayout(t *testing.T, dev gpu.Device) gpu.DescriptorSetLayout {
	t.Helper()
	layout, err := NewLayoutBuilder(dev).
		AddBinding(0, gpu.DescriptorTypeCombinedImageSampler, gpu.ShaderStageFragment, 1).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { dev.DestroyDescriptorSetLayout(layout) })
	return layout
}

func TestBudgetValidate(t *testing.T) {
	tests := []struct {
		name    string
		budget  Budget
		wantErr bool
	}{
		{"default", DefaultBudget(), false},
		{"no sets", Budget{PoolSizes: DefaultBudget().PoolSizes}, true},
		{"no sizes", Budget{MaxSets: 4}, true},
		{"zero count", Budget{MaxSets: 4, PoolSizes: []gpu.DescriptorPoolSize{{Type: gpu.DescriptorTypeUniformBuffer}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.budget.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if got := DefaultBudget().Total(gpu.DescriptorTypeCombinedImageSampler); got != 1000 {
		t.Errorf("default sampler budget = %d", got)
	}
}

func TestLayoutBuilderRejectsDuplicateBinding(t *testing.T) {
	dev := headless.New(headless.DefaultConfig())
	b := NewLayoutBuilder(dev).
		AddBinding(1, gpu.DescriptorTypeUniformBuffer, gpu.ShaderStageAllGraphics, 1).
		AddBinding(0, gpu.DescriptorTypeCombinedImageSampler, gpu.ShaderStageFragment, 0).
		AddBinding(1, gpu.DescriptorTypeSampler, gpu.ShaderStageFragment, 1)
	if _, err := b.Build(); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("Build err = %v, want ErrInvalidArgument", err)
	}
	bindings := b.Bindings()
	if len(bindings) != 2 || bindings[0].Binding != 0 || bindings[1].Binding != 1 {
		t.Errorf("bindings = %+v", bindings)
	}
	if bindings[0].Count != 1 {
		t.Errorf("zero count not promoted to 1: %+v", bindings[0])
	}
	if live := dev.LiveObjects(); live["descriptor_set_layout"] != 0 {
		t.Errorf("layout created despite error: %v", live)
	}
}

func TestTransientAllocatorExhaustion(t *testing.T) {
	dev := headless.New(headless.DefaultConfig())
	layout := newLayout(t, dev)
	alloc, err := NewTransientAllocator(dev, 0, Budget{
		MaxSets:   2,
		PoolSizes: []gpu.DescriptorPoolSize{{Type: gpu.DescriptorTypeCombinedImageSampler, Count: 2}},
	})
	if err != nil {
		t.Fatalf("NewTransientAllocator: %v", err)
	}
	defer alloc.Destroy()

	for i := 0; i < 2; i++ {
		if _, err := alloc.Allocate(layout); err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
	}
	if _, err := alloc.Allocate(layout); !errors.Is(err, core.ErrPoolExhausted) {
		t.Fatalf("third allocation err = %v, want ErrPoolExhausted", err)
	}
	if alloc.Live() != 2 {
		t.Errorf("live = %d, want 2", alloc.Live())
	}

	if err := alloc.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := alloc.Allocate(layout); err != nil {
		t.Errorf("allocation after reset: %v", err)
	}
}

// lenientDevice creates pools far larger than asked for, the way a driver may
// tolerate allocations past the declared pool sizes.
type lenientDevice struct {
	*headless.Device
	allocations int
}

func (d *lenientDevice) CreateDescriptorPool(maxSets uint32, sizes []gpu.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	grown := make([]gpu.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		grown[i] = gpu.DescriptorPoolSize{Type: s.Type, Count: s.Count * 100}
	}
	return d.Device.CreateDescriptorPool(maxSets*100, grown)
}

func (d *lenientDevice) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, gpu.Result) {
	d.allocations++
	return d.Device.AllocateDescriptorSet(pool, layout)
}

func TestTransientAllocatorEnforcesBudget(t *testing.T) {
	dev := &lenientDevice{Device: headless.New(headless.DefaultConfig())}
	samplers := newLayout(t, dev)
	uniforms, err := NewLayoutBuilder(dev).
		AddBinding(0, gpu.DescriptorTypeUniformBuffer, gpu.ShaderStageVertex, 1).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer dev.DestroyDescriptorSetLayout(uniforms)

	alloc, err := NewTransientAllocator(dev, 0, Budget{
		MaxSets:   3,
		PoolSizes: []gpu.DescriptorPoolSize{{Type: gpu.DescriptorTypeCombinedImageSampler, Count: 2}},
	})
	if err != nil {
		t.Fatalf("NewTransientAllocator: %v", err)
	}
	defer alloc.Destroy()

	if _, err := alloc.Allocate(uniforms); !errors.Is(err, core.ErrPoolExhausted) {
		t.Errorf("uniform allocation outside budget err = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := alloc.Allocate(samplers); err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
	}
	if _, err := alloc.Allocate(samplers); !errors.Is(err, core.ErrPoolExhausted) {
		t.Fatalf("sampler allocation past budget err = %v", err)
	}
	if dev.allocations != 2 {
		t.Errorf("device asked for %d sets, want 2", dev.allocations)
	}
	if got := alloc.Used(gpu.DescriptorTypeCombinedImageSampler); got != 2 {
		t.Errorf("samplers used = %d", got)
	}

	if err := alloc.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := alloc.Used(gpu.DescriptorTypeCombinedImageSampler); got != 0 {
		t.Errorf("samplers used after reset = %d", got)
	}
	if _, err := alloc.Allocate(samplers); err != nil {
		t.Errorf("allocation after reset: %v", err)
	}
}

func TestTransientAllocatorSetLimit(t *testing.T) {
	dev := &lenientDevice{Device: headless.New(headless.DefaultConfig())}
	layout := newLayout(t, dev)
	alloc, err := NewTransientAllocator(dev, 1, Budget{
		MaxSets:   1,
		PoolSizes: []gpu.DescriptorPoolSize{{Type: gpu.DescriptorTypeCombinedImageSampler, Count: 10}},
	})
	if err != nil {
		t.Fatalf("NewTransientAllocator: %v", err)
	}
	defer alloc.Destroy()

	if _, err := alloc.Allocate(layout); err != nil {
		t.Fatalf("first allocation: %v", err)
	}
	if _, err := alloc.Allocate(layout); !errors.Is(err, core.ErrPoolExhausted) {
		t.Errorf("second allocation err = %v", err)
	}
	if dev.allocations != 1 {
		t.Errorf("device asked for %d sets, want 1", dev.allocations)
	}
}

func TestTransientAllocatorUnknownLayout(t *testing.T) {
	dev := headless.New(headless.DefaultConfig())
	alloc, err := NewTransientAllocator(dev, 0, DefaultBudget())
	if err != nil {
		t.Fatalf("NewTransientAllocator: %v", err)
	}
	defer alloc.Destroy()
	if _, err := alloc.Allocate(gpu.DescriptorSetLayout(9999)); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestResetInvalidatesOnlyItsSlot(t *testing.T) {
	dev := headless.New(headless.DefaultConfig())
	layout := newLayout(t, dev)
	a0, err := NewTransientAllocator(dev, 0, DefaultBudget())
	if err != nil {
		t.Fatal(err)
	}
	a1, err := NewTransientAllocator(dev, 1, DefaultBudget())
	if err != nil {
		t.Fatal(err)
	}

	b0, err := a0.Allocate(layout)
	if err != nil {
		t.Fatal(err)
	}
	b1, err := a1.Allocate(layout)
	if err != nil {
		t.Fatal(err)
	}
	h1, _ := a1.Resolve(b1)

	if err := a0.Reset(); err != nil {
		t.Fatal(err)
	}
	if a0.Epoch() != 2 || a1.Epoch() != 1 {
		t.Errorf("epochs = %d, %d", a0.Epoch(), a1.Epoch())
	}
	if _, err := a0.Resolve(b0); !errors.Is(err, core.ErrStaleBindingSet) {
		t.Errorf("resolve after reset err = %v", err)
	}
	if got, err := a1.Resolve(b1); err != nil || got != h1 || !dev.DescriptorSetAlive(got) {
		t.Errorf("other slot's set disturbed: %d, %v", got, err)
	}
	if _, err := a1.Resolve(b0); !errors.Is(err, core.ErrStaleBindingSet) {
		t.Errorf("foreign slot resolve err = %v", err)
	}
	if a0.Valid(BindingSet{}) {
		t.Error("zero binding set is valid")
	}

	a0.Destroy()
	a1.Destroy()
	if _, err := a0.Allocate(layout); !errors.Is(err, core.ErrAlreadyDestroyed) {
		t.Errorf("allocate after destroy err = %v", err)
	}
	if live := dev.LiveObjects(); live["descriptor_pool"] != 0 {
		t.Errorf("pools alive after destroy: %v", live)
	}
}

func TestPersistentPool(t *testing.T) {
	dev := headless.New(headless.DefaultConfig())
	layout, err := NewLayoutBuilder(dev).
		AddBinding(0, gpu.DescriptorTypeUniformBuffer, gpu.ShaderStageAllGraphics, 1).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	pool, err := NewPool(dev, Budget{
		MaxSets:   3,
		PoolSizes: []gpu.DescriptorPoolSize{{Type: gpu.DescriptorTypeUniformBuffer, Count: 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := pool.Allocate(layout); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	if _, err := pool.Allocate(layout); !errors.Is(err, core.ErrPoolExhausted) {
		t.Errorf("fourth set err = %v", err)
	}
	if pool.Len() != 3 {
		t.Errorf("len = %d", pool.Len())
	}
	pool.Destroy()
	dev.DestroyDescriptorSetLayout(layout)
	if v := dev.Violations(); len(v) > 0 {
		t.Errorf("violations: %v", v)
	}
	if live := dev.LiveObjects(); len(live) > 0 {
		t.Errorf("live objects: %v", live)
	}
}
