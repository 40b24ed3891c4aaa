package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/platform"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

// New bootstraps the whole Vulkan stack: instance, surface, device, queues,
// command pool and per-frame sync objects. frameQueueLength is how many
// frames may be in flight at once.
func New(p *platform.Platform, appName string, width, height uint32, frameQueueLength int, debug bool) (*VulkanDevice, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("vulkan loader not available")
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vulkan: %s", err)
		return nil, err
	}

	d := &VulkanDevice{
		context: &VulkanContext{
			FramebufferWidth:  width,
			FramebufferHeight: height,
			Allocator:         nil,
		},
		frameQueueLength: frameQueueLength,
		images:           containers.NewPool[metadata.Image](),
		buffers:          containers.NewPool[metadata.Buffer](),
		framebuffers:     containers.NewPool[metadata.Framebuffer](),
		shaders:          containers.NewPool[metadata.Shader](),
	}

	if err := d.createInstance(appName, p, debug); err != nil {
		return nil, err
	}

	surface, err := p.Window.CreateWindowSurface(d.context.Instance, nil)
	if err != nil {
		core.LogError("failed to create window surface: %s", err)
		return nil, err
	}
	d.context.Surface = vk.SurfaceFromPointer(surface)

	if err := d.selectPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}
	if err := d.detectDepthFormat(); err != nil {
		return nil, err
	}
	if err := d.createCommandObjects(); err != nil {
		return nil, err
	}
	if err := d.createSyncObjects(); err != nil {
		return nil, err
	}

	core.LogInfo("vulkan device ready, %d frames in flight", frameQueueLength)
	return d, nil
}

func (d *VulkanDevice) createInstance(appName string, p *platform.Platform, debug bool) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Vapor Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, p.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	if debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	validationLayers := []string{}
	if debug {
		validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

		var availableLayerCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
			return resultError("vkEnumerateInstanceLayerProperties", res)
		}
		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
			return resultError("vkEnumerateInstanceLayerProperties", res)
		}

		for _, required := range validationLayers {
			found := false
			for j := range availableLayers {
				availableLayers[j].Deref()
				end := FindFirstZeroInByteArray(availableLayers[j].LayerName[:])
				if required == vk.ToString(availableLayers[j].LayerName[:end+1]) {
					found = true
					break
				}
			}
			if !found {
				err := fmt.Errorf("required validation layer is missing: %s", required)
				core.LogError(err.Error())
				return err
			}
		}
	}
	createInfo.EnabledLayerCount = uint32(len(validationLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(validationLayers)

	if res := vk.CreateInstance(&createInfo, d.context.Allocator, &d.context.Instance); res != vk.Success {
		err := resultError("vkCreateInstance", res)
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(d.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}

	if debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			err := resultError("vkCreateDebugReportCallbackEXT", res)
			core.LogError(err.Error())
			return err
		}
		d.context.debugMessenger = dbg
	}

	return nil
}

func (d *VulkanDevice) selectPhysicalDevice() error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(d.context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices with vulkan support found")
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(d.context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}

	for _, device := range physicalDevices {
		graphicsIndex, presentIndex, ok := d.findQueueFamilies(device)
		if !ok {
			continue
		}
		d.PhysicalDevice = device
		d.GraphicsQueueIndex = graphicsIndex
		d.PresentQueueIndex = presentIndex

		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()
		end := FindFirstZeroInByteArray(properties.DeviceName[:])
		core.LogInfo("selected gpu: %s", vk.ToString(properties.DeviceName[:end+1]))
		return nil
	}

	err := fmt.Errorf("no suitable gpu found")
	core.LogError(err.Error())
	return err
}

func (d *VulkanDevice) findQueueFamilies(device vk.PhysicalDevice) (graphics, present uint32, ok bool) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	graphicsFound, presentFound := false, false
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		if !graphicsFound && queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			graphics = uint32(i)
			graphicsFound = true
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), d.context.Surface, &supportsPresent); res != vk.Success {
			continue
		}
		if !presentFound && supportsPresent == vk.True {
			present = uint32(i)
			presentFound = true
		}
	}
	return graphics, present, graphicsFound && presentFound
}

func (d *VulkanDevice) createLogicalDevice() error {
	indices := []uint32{d.GraphicsQueueIndex}
	if d.PresentQueueIndex != d.GraphicsQueueIndex {
		indices = append(indices, d.PresentQueueIndex)
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	deviceFeatures.SamplerAnisotropy = vk.True

	extensionNames := []string{vk.KhrSwapchainExtensionName}

	// VK_KHR_portability_subset must be enabled when the implementation
	// advertises it.
	var availableExtensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(d.PhysicalDevice, "", &availableExtensionCount, nil); res == vk.Success && availableExtensionCount > 0 {
		availableExtensions := make([]vk.ExtensionProperties, availableExtensionCount)
		if res := vk.EnumerateDeviceExtensionProperties(d.PhysicalDevice, "", &availableExtensionCount, availableExtensions); res == vk.Success {
			for i := range availableExtensions {
				availableExtensions[i].Deref()
				end := FindFirstZeroInByteArray(availableExtensions[i].ExtensionName[:])
				if vk.ToString(availableExtensions[i].ExtensionName[:end+1]) == "VK_KHR_portability_subset" {
					extensionNames = append(extensionNames, "VK_KHR_portability_subset")
					break
				}
			}
		}
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	if res := vk.CreateDevice(d.PhysicalDevice, &deviceCreateInfo, d.context.Allocator, &d.LogicalDevice); res != vk.Success {
		err := resultError("vkCreateDevice", res)
		core.LogError(err.Error())
		return err
	}

	vk.GetDeviceQueue(d.LogicalDevice, d.GraphicsQueueIndex, 0, &d.GraphicsQueue)
	vk.GetDeviceQueue(d.LogicalDevice, d.PresentQueueIndex, 0, &d.PresentQueue)

	return nil
}

func (d *VulkanDevice) detectDepthFormat() error {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)

	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			d.DepthFormat = candidate
			return nil
		}
	}

	err := fmt.Errorf("no supported depth format found")
	core.LogError(err.Error())
	return err
}

func (d *VulkanDevice) createCommandObjects() error {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(d.LogicalDevice, &poolCreateInfo, d.context.Allocator, &d.GraphicsCommandPool); res != vk.Success {
		err := resultError("vkCreateCommandPool", res)
		core.LogError(err.Error())
		return err
	}

	d.commandBuffers = make([]*VulkanCommandBuffer, d.frameQueueLength)
	for i := range d.commandBuffers {
		commandBuffer, err := NewVulkanCommandBuffer(d.LogicalDevice, d.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		d.commandBuffers[i] = commandBuffer
	}
	return nil
}

func (d *VulkanDevice) createSyncObjects() error {
	d.inFlightFences = make([]*VulkanFence, d.frameQueueLength)
	d.imageAvailableSemaphores = make([]vk.Semaphore, d.frameQueueLength)
	d.queueCompleteSemaphores = make([]vk.Semaphore, d.frameQueueLength)

	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	for i := 0; i < d.frameQueueLength; i++ {
		// Fences start signaled so the first use of each slot does not wait.
		fence, err := NewFence(d.LogicalDevice, d.context.Allocator, true)
		if err != nil {
			return err
		}
		d.inFlightFences[i] = fence

		if res := vk.CreateSemaphore(d.LogicalDevice, &semaphoreCreateInfo, d.context.Allocator, &d.imageAvailableSemaphores[i]); res != vk.Success {
			return resultError("vkCreateSemaphore", res)
		}
		if res := vk.CreateSemaphore(d.LogicalDevice, &semaphoreCreateInfo, d.context.Allocator, &d.queueCompleteSemaphores[i]); res != vk.Success {
			return resultError("vkCreateSemaphore", res)
		}
	}
	return nil
}

// Shutdown destroys everything in reverse creation order. Leaked pool
// entries are destroyed with a warning; they indicate a missing Destroy
// upstream.
func (d *VulkanDevice) Shutdown() {
	vk.DeviceWaitIdle(d.LogicalDevice)

	d.destroyLeaked()

	for i := 0; i < d.frameQueueLength; i++ {
		if d.imageAvailableSemaphores != nil {
			vk.DestroySemaphore(d.LogicalDevice, d.imageAvailableSemaphores[i], d.context.Allocator)
		}
		if d.queueCompleteSemaphores != nil {
			vk.DestroySemaphore(d.LogicalDevice, d.queueCompleteSemaphores[i], d.context.Allocator)
		}
		if d.inFlightFences != nil {
			d.inFlightFences[i].Destroy(d.LogicalDevice, d.context.Allocator)
		}
	}
	d.imageAvailableSemaphores = nil
	d.queueCompleteSemaphores = nil
	d.inFlightFences = nil

	if d.GraphicsCommandPool != nil {
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, d.context.Allocator)
		d.GraphicsCommandPool = nil
	}

	if d.LogicalDevice != nil {
		vk.DestroyDevice(d.LogicalDevice, d.context.Allocator)
		d.LogicalDevice = nil
	}

	if d.context.Surface != vk.NullSurface {
		vk.DestroySurface(d.context.Instance, d.context.Surface, d.context.Allocator)
		d.context.Surface = vk.NullSurface
	}

	if d.context.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.context.Instance, d.context.debugMessenger, d.context.Allocator)
		d.context.debugMessenger = vk.NullDebugReportCallback
	}

	if d.context.Instance != nil {
		vk.DestroyInstance(d.context.Instance, d.context.Allocator)
		d.context.Instance = nil
	}
}

func (d *VulkanDevice) destroyLeaked() {
	leaked := 0
	d.framebuffers.Range(func(handle containers.Handle[metadata.Framebuffer], _ *metadata.Framebuffer) bool {
		d.DestroyFramebuffer(handle)
		leaked++
		return true
	})
	d.images.Range(func(handle containers.Handle[metadata.Image], _ *metadata.Image) bool {
		d.DestroyImage(handle)
		leaked++
		return true
	})
	d.buffers.Range(func(handle containers.Handle[metadata.Buffer], _ *metadata.Buffer) bool {
		d.DestroyBuffer(handle)
		leaked++
		return true
	})
	d.shaders.Range(func(handle containers.Handle[metadata.Shader], _ *metadata.Shader) bool {
		d.DestroyShader(handle)
		leaked++
		return true
	})
	if leaked > 0 {
		core.LogWarn("destroyed %d leaked gpu objects at shutdown", leaked)
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
