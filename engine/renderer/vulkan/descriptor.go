package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var layout vk.DescriptorSetLayout
	if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.context.Device.LogicalDevice, &layoutInfo, d.context.Allocator, &layout)); err != nil {
		return 0, err
	}
	h := d.layouts.put(layout)
	d.layoutBindings[h] = append([]gpu.DescriptorSetLayoutBinding(nil), bindings...)
	return h, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	if h, ok := d.layouts.take(layout); ok {
		vk.DestroyDescriptorSetLayout(d.context.Device.LogicalDevice, h, d.context.Allocator)
		delete(d.layoutBindings, layout)
	}
}

func (d *Device) DescriptorSetLayoutBindings(layout gpu.DescriptorSetLayout) ([]gpu.DescriptorSetLayoutBinding, bool) {
	bindings, ok := d.layoutBindings[layout]
	return bindings, ok
}

// CreateDescriptorPool creates a pool whose sets are only ever released all at once.
func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []gpu.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.context.Device.LogicalDevice, &poolInfo, d.context.Allocator, &pool)); err != nil {
		return 0, err
	}
	return d.pools.put(pool), nil
}

func (d *Device) ResetDescriptorPool(pool gpu.DescriptorPool) error {
	h, ok := d.pools.get(pool)
	if !ok {
		return fmt.Errorf("reset of unknown descriptor pool %d: %w", pool, core.ErrInvalidArgument)
	}
	if err := check("vkResetDescriptorPool", vk.ResetDescriptorPool(d.context.Device.LogicalDevice, h, 0)); err != nil {
		return err
	}
	d.forgetSets(pool)
	return nil
}

func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	if h, ok := d.pools.take(pool); ok {
		vk.DestroyDescriptorPool(d.context.Device.LogicalDevice, h, d.context.Allocator)
		d.forgetSets(pool)
	}
}

func (d *Device) forgetSets(pool gpu.DescriptorPool) {
	for _, s := range d.setsByPool[pool] {
		d.sets.take(s)
	}
	delete(d.setsByPool, pool)
}

func (d *Device) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, gpu.Result) {
	p, ok := d.pools.get(pool)
	if !ok {
		return 0, gpu.ResultErrorUnknown
	}
	l, ok := d.layouts.get(layout)
	if !ok {
		return 0, gpu.ResultErrorUnknown
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(d.context.Device.LogicalDevice, &allocateInfo, &set); res != vk.Success {
		return 0, toResult(res)
	}
	h := d.sets.put(set)
	d.setsByPool[pool] = append(d.setsByPool[pool], h)
	return h, gpu.ResultSuccess
}
