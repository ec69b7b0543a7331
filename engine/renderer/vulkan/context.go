package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
)

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// table maps the opaque handles handed to callers onto Vulkan objects.
type table[H ~uint64, V any] struct {
	next  H
	items map[H]V
}

func newTable[H ~uint64, V any]() *table[H, V] {
	return &table[H, V]{items: make(map[H]V)}
}

func (t *table[H, V]) put(v V) H {
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *table[H, V]) get(h H) (V, bool) {
	v, ok := t.items[h]
	return v, ok
}

func (t *table[H, V]) take(h H) (V, bool) {
	v, ok := t.items[h]
	delete(t.items, h)
	return v, ok
}

func (t *table[H, V]) len() int {
	return len(t.items)
}
