package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// BindingSet is a descriptor set handed out by a TransientAllocator. It is only
// usable during the frame cycle that allocated it; Resolve rejects it afterwards.
type BindingSet struct {
	slot   int
	epoch  uint64
	index  int
	handle gpu.DescriptorSet
}

func (b BindingSet) IsZero() bool {
	return b.handle == 0
}

func (b BindingSet) Slot() int {
	return b.slot
}

func (b BindingSet) Epoch() uint64 {
	return b.epoch
}

func (b BindingSet) String() string {
	return fmt.Sprintf("binding set %d (slot %d, epoch %d)", b.index, b.slot, b.epoch)
}

// TransientAllocator owns one descriptor pool per frame-in-flight slot. Reset
// releases every set at once; it must only be called once the slot's previous
// submission has completed.
type TransientAllocator struct {
	device gpu.Device
	slot   int
	budget Budget
	pool   gpu.DescriptorPool

	// epoch starts at 1 so a zero BindingSet never resolves.
	epoch uint64
	sets  []gpu.DescriptorSet
	used  map[gpu.DescriptorType]uint32
}

func NewTransientAllocator(device gpu.Device, slot int, budget Budget) (*TransientAllocator, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	pool, err := device.CreateDescriptorPool(budget.MaxSets, budget.PoolSizes)
	if err != nil {
		err = fmt.Errorf("failed to create transient pool for slot %d: %w", slot, err)
		core.LogError("%s", err)
		return nil, err
	}
	core.LogDebug("Transient descriptor pool for slot %d created (%d sets).", slot, budget.MaxSets)
	return &TransientAllocator{
		device: device,
		slot:   slot,
		budget: budget,
		pool:   pool,
		epoch:  1,
		used:   make(map[gpu.DescriptorType]uint32),
	}, nil
}

// Reset returns every set allocated since the previous Reset to the pool and
// invalidates their BindingSets.
func (a *TransientAllocator) Reset() error {
	if a.pool == 0 {
		return fmt.Errorf("transient pool for slot %d: %w", a.slot, core.ErrAlreadyDestroyed)
	}
	if err := a.device.ResetDescriptorPool(a.pool); err != nil {
		err = fmt.Errorf("failed to reset transient pool for slot %d: %w", a.slot, err)
		core.LogError("%s", err)
		return err
	}
	a.epoch++
	a.sets = a.sets[:0]
	clear(a.used)
	return nil
}

// Allocate carves a set for layout out of the current cycle's pool. When the
// budget is spent it returns core.ErrPoolExhausted; the caller decides what to drop.
// The budget is checked here as well as by the device, since a driver may let a
// pool grow past its declared per-type sizes.
func (a *TransientAllocator) Allocate(layout gpu.DescriptorSetLayout) (BindingSet, error) {
	if a.pool == 0 {
		return BindingSet{}, fmt.Errorf("transient pool for slot %d: %w", a.slot, core.ErrAlreadyDestroyed)
	}
	bindings, ok := a.device.DescriptorSetLayoutBindings(layout)
	if !ok {
		return BindingSet{}, fmt.Errorf("transient allocation for slot %d with unknown layout %d: %w", a.slot, layout, core.ErrInvalidArgument)
	}
	if uint32(len(a.sets)) >= a.budget.MaxSets {
		return BindingSet{}, a.spent("sets")
	}
	need := make(map[gpu.DescriptorType]uint32, len(bindings))
	for _, b := range bindings {
		need[b.Type] += b.Count
	}
	for t, n := range need {
		if a.used[t]+n > a.budget.Total(t) {
			return BindingSet{}, a.spent(t.String())
		}
	}

	set, res := a.device.AllocateDescriptorSet(a.pool, layout)
	if exhausted(res) {
		return BindingSet{}, a.spent("device pool")
	}
	if err := res.Err("AllocateDescriptorSet"); err != nil {
		core.LogError("transient allocation for slot %d: %s", a.slot, err)
		return BindingSet{}, err
	}
	for t, n := range need {
		a.used[t] += n
	}
	a.sets = append(a.sets, set)
	return BindingSet{slot: a.slot, epoch: a.epoch, index: len(a.sets) - 1, handle: set}, nil
}

func (a *TransientAllocator) spent(what string) error {
	err := fmt.Errorf("slot %d out of %s after %d sets (max %d): %w", a.slot, what, len(a.sets), a.budget.MaxSets, core.ErrPoolExhausted)
	core.LogWarn("%s", err)
	return err
}

// Used is the number of descriptors of type t handed out since the last Reset.
func (a *TransientAllocator) Used(t gpu.DescriptorType) uint32 {
	return a.used[t]
}

// Resolve returns the device set behind b, or core.ErrStaleBindingSet when b was
// allocated in an earlier cycle or by another slot.
func (a *TransientAllocator) Resolve(b BindingSet) (gpu.DescriptorSet, error) {
	if !a.Valid(b) {
		return 0, fmt.Errorf("%s resolved against slot %d epoch %d: %w", b, a.slot, a.epoch, core.ErrStaleBindingSet)
	}
	return b.handle, nil
}

func (a *TransientAllocator) Valid(b BindingSet) bool {
	return a.pool != 0 &&
		b.slot == a.slot &&
		b.epoch == a.epoch &&
		b.index >= 0 && b.index < len(a.sets) &&
		a.sets[b.index] == b.handle
}

// Live is the number of sets allocated since the last Reset.
func (a *TransientAllocator) Live() int {
	return len(a.sets)
}

func (a *TransientAllocator) Epoch() uint64 {
	return a.epoch
}

func (a *TransientAllocator) Slot() int {
	return a.slot
}

func (a *TransientAllocator) Budget() Budget {
	return a.budget
}

func (a *TransientAllocator) Destroy() {
	if a.pool == 0 {
		return
	}
	a.device.DestroyDescriptorPool(a.pool)
	a.pool = 0
	a.sets = nil
	a.used = nil
}
