package systems

import (
	"bytes"
	"errors"
	"slices"

	"github.com/google/uuid"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/descriptors"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/metadata"
)

const BindingSystemName = "bindings"

// BindingSystem gives every drawable a per-draw descriptor set for the current
// frame. Drawables that no longer fit in the frame's budget are skipped.
type BindingSystem struct {
	device gpu.Device
	layout gpu.DescriptorSetLayout

	sets    []descriptors.BindingSet
	dropped int
}

func NewBindingSystem(device gpu.Device) (*BindingSystem, error) {
	layout, err := descriptors.NewLayoutBuilder(device).
		AddBinding(0, gpu.DescriptorTypeUniformBuffer, gpu.ShaderStageVertex, 1).
		AddBinding(1, gpu.DescriptorTypeCombinedImageSampler, gpu.ShaderStageFragment, 1).
		Build()
	if err != nil {
		return nil, err
	}
	return &BindingSystem{device: device, layout: layout}, nil
}

func (s *BindingSystem) Name() string {
	return BindingSystemName
}

func (s *BindingSystem) Render(info *metadata.FrameInfo) error {
	s.sets = s.sets[:0]
	s.dropped = 0

	// Sorted so a short budget always drops the same drawables.
	ids := make([]uuid.UUID, 0, len(info.Drawables))
	for id := range info.Drawables {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	for i, id := range ids {
		set, err := info.Allocator.Allocate(s.layout)
		if errors.Is(err, core.ErrPoolExhausted) {
			s.dropped = len(ids) - i
			core.LogWarn("Frame %d: %d drawables skipped, first %s.", info.FrameIndex, s.dropped, id)
			return nil
		}
		if err != nil {
			return err
		}
		s.sets = append(s.sets, set)
	}
	return nil
}

// Sets are the binding sets handed out during the last Render.
func (s *BindingSystem) Sets() []descriptors.BindingSet {
	return s.sets
}

// Dropped is the number of drawables the last Render could not bind.
func (s *BindingSystem) Dropped() int {
	return s.dropped
}

func (s *BindingSystem) Destroy() {
	if s.layout == 0 {
		return
	}
	s.device.DestroyDescriptorSetLayout(s.layout)
	s.layout = 0
	s.sets = nil
}
