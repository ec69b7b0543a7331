package descriptors

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// LayoutBuilder collects bindings for a descriptor set layout.
//
//	layout, err := descriptors.NewLayoutBuilder(dev).
//		AddBinding(0, gpu.DescriptorTypeUniformBuffer, gpu.ShaderStageAllGraphics, 1).
//		Build()
type LayoutBuilder struct {
	device   gpu.Device
	bindings map[uint32]gpu.DescriptorSetLayoutBinding
	err      error
}

func NewLayoutBuilder(device gpu.Device) *LayoutBuilder {
	return &LayoutBuilder{
		device:   device,
		bindings: make(map[uint32]gpu.DescriptorSetLayoutBinding),
	}
}

// AddBinding records a binding slot. Adding the same slot twice is reported by Build.
func (b *LayoutBuilder) AddBinding(binding uint32, typ gpu.DescriptorType, stages gpu.ShaderStage, count uint32) *LayoutBuilder {
	if b.err != nil {
		return b
	}
	if _, exists := b.bindings[binding]; exists {
		b.err = fmt.Errorf("binding %d already in use: %w", binding, core.ErrInvalidArgument)
		return b
	}
	if count == 0 {
		count = 1
	}
	b.bindings[binding] = gpu.DescriptorSetLayoutBinding{
		Binding: binding,
		Type:    typ,
		Count:   count,
		Stages:  stages,
	}
	return b
}

// Bindings returns the collected bindings ordered by slot.
func (b *LayoutBuilder) Bindings() []gpu.DescriptorSetLayoutBinding {
	out := make([]gpu.DescriptorSetLayoutBinding, 0, len(b.bindings))
	for _, binding := range b.bindings {
		out = append(out, binding)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Binding < out[j].Binding })
	return out
}

func (b *LayoutBuilder) Build() (gpu.DescriptorSetLayout, error) {
	if b.err != nil {
		core.LogError("failed to build descriptor set layout: %s", b.err)
		return 0, b.err
	}
	layout, err := b.device.CreateDescriptorSetLayout(b.Bindings())
	if err != nil {
		err = fmt.Errorf("failed to create descriptor set layout: %w", err)
		core.LogError("%s", err)
		return 0, err
	}
	return layout, nil
}
