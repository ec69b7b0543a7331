// Package vulkan implements gpu.Device on top of a Vulkan instance bound to a
// platform window.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// Surface is the part of the platform window the device needs at creation.
type Surface interface {
	RequiredExtensions() []string
	CreateSurface(instance interface{}) (uintptr, error)
}

type Options struct {
	ApplicationName string
	// Validation enables VK_LAYER_KHRONOS_validation and the debug report callback.
	Validation bool
}

type vulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	// Swapchain images are owned by their swapchain.
	swapchainOwned bool
}

// Device is a gpu.Device backed by one logical Vulkan device.
type Device struct {
	context *VulkanContext
	opts    Options

	swapchains      *table[gpu.Swapchain, vk.Swapchain]
	swapchainImages map[gpu.Swapchain][]gpu.Image
	images          *table[gpu.Image, vulkanImage]
	views           *table[gpu.ImageView, vk.ImageView]
	renderPasses    *table[gpu.RenderPass, vk.RenderPass]
	framebuffers    *table[gpu.Framebuffer, vk.Framebuffer]
	semaphores      *table[gpu.Semaphore, vk.Semaphore]
	fences          *table[gpu.Fence, vk.Fence]
	commandBuffers  *table[gpu.CommandBuffer, vk.CommandBuffer]
	layouts         *table[gpu.DescriptorSetLayout, vk.DescriptorSetLayout]
	pools           *table[gpu.DescriptorPool, vk.DescriptorPool]
	sets            *table[gpu.DescriptorSet, vk.DescriptorSet]
	setsByPool      map[gpu.DescriptorPool][]gpu.DescriptorSet
	layoutBindings  map[gpu.DescriptorSetLayout][]gpu.DescriptorSetLayoutBinding
}

var _ gpu.Device = (*Device)(nil)

// New creates the instance, the surface for window and a logical device able to present to it.
func New(window Surface, opts Options) (*Device, error) {
	d := &Device{
		context:         &VulkanContext{Device: &VulkanDevice{}},
		opts:            opts,
		swapchains:      newTable[gpu.Swapchain, vk.Swapchain](),
		swapchainImages: make(map[gpu.Swapchain][]gpu.Image),
		images:          newTable[gpu.Image, vulkanImage](),
		views:           newTable[gpu.ImageView, vk.ImageView](),
		renderPasses:    newTable[gpu.RenderPass, vk.RenderPass](),
		framebuffers:    newTable[gpu.Framebuffer, vk.Framebuffer](),
		semaphores:      newTable[gpu.Semaphore, vk.Semaphore](),
		fences:          newTable[gpu.Fence, vk.Fence](),
		commandBuffers:  newTable[gpu.CommandBuffer, vk.CommandBuffer](),
		layouts:         newTable[gpu.DescriptorSetLayout, vk.DescriptorSetLayout](),
		pools:           newTable[gpu.DescriptorPool, vk.DescriptorPool](),
		sets:            newTable[gpu.DescriptorSet, vk.DescriptorSet](),
		setsByPool:      make(map[gpu.DescriptorPool][]gpu.DescriptorSet),
		layoutBindings:  make(map[gpu.DescriptorSetLayout][]gpu.DescriptorSetLayoutBinding),
	}

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil: %w", core.ErrSurfaceUnavailable)
		core.LogError("%s", err)
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		err = fmt.Errorf("failed to initialize vk: %w", err)
		core.LogError("%s", err)
		return nil, err
	}

	if err := d.createInstance(window.RequiredExtensions()); err != nil {
		return nil, err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateSurface(d.context.Instance)
	if err != nil {
		d.Destroy()
		return nil, err
	}
	d.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(d.context); err != nil {
		d.Destroy()
		return nil, err
	}

	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) createInstance(windowExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(d.opts.ApplicationName),
		PEngineName:        VulkanSafeString("framepace"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// glfw already lists the generic and the platform surface extension.
	requiredExtensions := append([]string{}, windowExtensions...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	requiredLayers := []string{}
	if d.opts.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		requiredLayers = append(requiredLayers, "VK_LAYER_KHRONOS_validation")
		if err := checkLayers(requiredLayers); err != nil {
			return err
		}
	}
	for _, ext := range requiredExtensions {
		core.LogDebug("Required extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, d.context.Allocator, &d.context.Instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(d.context.Instance); err != nil {
		core.LogError("%s", err)
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if d.opts.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, d.context.Allocator, &dbg)); err != nil {
			return err
		}
		d.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkLayers(required []string) error {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			if vk.ToString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			err := fmt.Errorf("required validation layer %s is missing: %w", name, core.ErrUnsupportedFormat)
			core.LogError("%s", err)
			return err
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

// Destroy releases the device, surface and instance. Every object created
// through the device must already be destroyed.
func (d *Device) Destroy() {
	if d.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(d.context.Device.LogicalDevice)
		d.reportLeaks()
		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(d.context)
	}

	if d.context.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(d.context.Instance, d.context.Surface, d.context.Allocator)
		d.context.Surface = vk.NullSurface
	}

	if d.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.context.Instance, d.context.debugMessenger, d.context.Allocator)
		d.context.debugMessenger = vk.NullDebugReportCallback
	}

	if d.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(d.context.Instance, d.context.Allocator)
		d.context.Instance = nil
	}
}

func (d *Device) reportLeaks() {
	live := map[string]int{
		"swapchain":             d.swapchains.len(),
		"image_view":            d.views.len(),
		"render_pass":           d.renderPasses.len(),
		"framebuffer":           d.framebuffers.len(),
		"semaphore":             d.semaphores.len(),
		"fence":                 d.fences.len(),
		"command_buffer":        d.commandBuffers.len(),
		"descriptor_set_layout": d.layouts.len(),
		"descriptor_pool":       d.pools.len(),
	}
	for kind, n := range live {
		if n > 0 {
			core.LogWarn("%d %s objects still alive at device destruction.", n, kind)
		}
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
