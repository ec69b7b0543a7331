package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// Pool is a descriptor pool that is never reset. Sets allocated from it stay
// valid until the pool is destroyed; it backs the per-slot global sets.
type Pool struct {
	device gpu.Device
	handle gpu.DescriptorPool
	budget Budget
	sets   int
}

func NewPool(device gpu.Device, budget Budget) (*Pool, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	handle, err := device.CreateDescriptorPool(budget.MaxSets, budget.PoolSizes)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor pool: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	return &Pool{device: device, handle: handle, budget: budget}, nil
}

func (p *Pool) Allocate(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	if p.handle == 0 {
		return 0, fmt.Errorf("descriptor pool: %w", core.ErrAlreadyDestroyed)
	}
	set, res := p.device.AllocateDescriptorSet(p.handle, layout)
	if exhausted(res) {
		err := fmt.Errorf("persistent pool holds %d of %d sets: %w", p.sets, p.budget.MaxSets, core.ErrPoolExhausted)
		core.LogWarn("%s", err)
		return 0, err
	}
	if err := res.Err("AllocateDescriptorSet"); err != nil {
		core.LogError("%s", err)
		return 0, err
	}
	p.sets++
	return set, nil
}

// Len is the number of sets allocated so far.
func (p *Pool) Len() int {
	return p.sets
}

func (p *Pool) Destroy() {
	if p.handle == 0 {
		return
	}
	p.device.DestroyDescriptorPool(p.handle)
	p.handle = 0
	p.sets = 0
}

func exhausted(res gpu.Result) bool {
	return res == gpu.ResultErrorOutOfPoolMemory || res == gpu.ResultErrorFragmentedPool
}
