// Package descriptors hands out descriptor sets whose lifetime is bounded by a
// frame-in-flight slot, plus the persistent pool and layout builder used for
// sets that live as long as the renderer.
package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// Budget bounds what one pool can hold between resets.
type Budget struct {
	MaxSets   uint32
	PoolSizes []gpu.DescriptorPoolSize
}

func DefaultBudget() Budget {
	return Budget{
		MaxSets: 1000,
		PoolSizes: []gpu.DescriptorPoolSize{
			{Type: gpu.DescriptorTypeCombinedImageSampler, Count: 1000},
			{Type: gpu.DescriptorTypeUniformBuffer, Count: 1000},
		},
	}
}

func (b Budget) Validate() error {
	if b.MaxSets == 0 {
		return fmt.Errorf("descriptor budget with no sets: %w", core.ErrInvalidArgument)
	}
	if len(b.PoolSizes) == 0 {
		return fmt.Errorf("descriptor budget with no pool sizes: %w", core.ErrInvalidArgument)
	}
	for _, s := range b.PoolSizes {
		if s.Count == 0 {
			return fmt.Errorf("descriptor budget with zero %s descriptors: %w", s.Type, core.ErrInvalidArgument)
		}
	}
	return nil
}

// Total is the number of descriptors of type t the budget allows.
func (b Budget) Total(t gpu.DescriptorType) uint32 {
	var n uint32
	for _, s := range b.PoolSizes {
		if s.Type == t {
			n += s.Count
		}
	}
	return n
}
