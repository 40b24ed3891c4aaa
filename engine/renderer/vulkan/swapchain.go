package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	vmath "github.com/spaghettifunk/vapor/engine/math"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
	"github.com/spaghettifunk/vapor/engine/renderer/rendergraph"
)

// VulkanSwapchain implements rendergraph.Surface. Swapchain images live in
// the device's image pool as unowned entries so graph passes can barrier and
// render to them like any transient.
type VulkanSwapchain struct {
	device *VulkanDevice

	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat

	images       []containers.Handle[metadata.Image]
	currentIndex uint32
	// acquireSlot is the frame slot whose semaphores pace this image.
	acquireSlot int
	extent      vk.Extent2D
}

var _ rendergraph.Surface = (*VulkanSwapchain)(nil)

type swapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func querySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (*swapchainSupportInfo, error) {
	support := &swapchainSupportInfo{}

	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &support.Capabilities); res != vk.Success {
		return nil, resultError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	support.Capabilities.Deref()
	support.Capabilities.CurrentExtent.Deref()
	support.Capabilities.MinImageExtent.Deref()
	support.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)
	if formatCount == 0 {
		return nil, fmt.Errorf("surface reports no formats")
	}
	support.Formats = make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, support.Formats)
	for i := range support.Formats {
		support.Formats[i].Deref()
	}

	var presentModeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil)
	support.PresentModes = make([]vk.PresentMode, presentModeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, support.PresentModes)

	return support, nil
}

// NewSwapchain creates the swapchain over the device's surface and registers
// its images in the image pool.
func NewSwapchain(device *VulkanDevice) (*VulkanSwapchain, error) {
	s := &VulkanSwapchain{device: device}
	if err := s.create(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *VulkanSwapchain) create() error {
	d := s.device
	support, err := querySwapchainSupport(d.PhysicalDevice, d.context.Surface)
	if err != nil {
		core.LogError(err.Error())
		return err
	}

	// Preferred format, fall back to whatever comes first.
	s.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			s.ImageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	extent := vk.Extent2D{Width: d.context.FramebufferWidth, Height: d.context.FramebufferHeight}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = support.Capabilities.CurrentExtent
	}
	extent.Width = vmath.Clamp(extent.Width, support.Capabilities.MinImageExtent.Width, support.Capabilities.MaxImageExtent.Width)
	extent.Height = vmath.Clamp(extent.Height, support.Capabilities.MinImageExtent.Height, support.Capabilities.MaxImageExtent.Height)
	s.extent = extent

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      s.ImageFormat.Format,
		ImageColorSpace:  s.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	if d.GraphicsQueueIndex != d.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{d.GraphicsQueueIndex, d.PresentQueueIndex}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(d.LogicalDevice, &swapchainCreateInfo, d.context.Allocator, &handle); res != vk.Success {
		err := resultError("vkCreateSwapchainKHR", res)
		core.LogError(err.Error())
		return err
	}
	s.Handle = handle

	var count uint32
	if res := vk.GetSwapchainImages(d.LogicalDevice, s.Handle, &count, nil); res != vk.Success {
		return resultError("vkGetSwapchainImagesKHR", res)
	}
	rawImages := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(d.LogicalDevice, s.Handle, &count, rawImages); res != vk.Success {
		return resultError("vkGetSwapchainImagesKHR", res)
	}

	spec := metadata.ImageSpec{
		Size:      [3]int32{int32(extent.Width), int32(extent.Height), 1},
		MipLevels: 1,
		ImageType: metadata.ImageType2D,
		Format:    metadata.Format(s.ImageFormat.Format),
		Samples:   metadata.SampleCount1Bit,
		Usage:     metadata.ImageUsageColorAttachment | metadata.ImageUsageTransferDst,
	}

	s.images = make([]containers.Handle[metadata.Image], count)
	for i, raw := range rawImages {
		handle, err := d.registerSwapchainImage(raw, spec, fmt.Sprintf("swapchain image %d", i))
		if err != nil {
			return err
		}
		s.images[i] = handle
	}

	core.LogInfo("swapchain created: %dx%d, %d images", extent.Width, extent.Height, count)
	return nil
}

// AcquireNextImage obtains the next presentable image, pacing on the current
// frame slot's acquire semaphore.
func (s *VulkanSwapchain) AcquireNextImage() (bool, error) {
	d := s.device
	slot := d.currentSlot()
	semaphore := d.imageAvailableSemaphores[slot]

	var index uint32
	result := vk.AcquireNextImage(d.LogicalDevice, s.Handle, math.MaxUint64, semaphore, vk.NullFence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
		s.currentIndex = index
		s.acquireSlot = slot
		// Submit must wait on this semaphore before touching the image.
		d.pendingWaitSemaphore = semaphore
		return false, nil
	case vk.ErrorOutOfDate:
		return true, nil
	default:
		err := resultError("vkAcquireNextImageKHR", result)
		core.LogError(err.Error())
		return false, err
	}
}

func (s *VulkanSwapchain) CurrentImage() containers.Handle[metadata.Image] {
	return s.images[s.currentIndex]
}

func (s *VulkanSwapchain) Images() []containers.Handle[metadata.Image] {
	return s.images
}

func (s *VulkanSwapchain) Size() [2]uint32 {
	return [2]uint32{s.extent.Width, s.extent.Height}
}

// Recreate rebuilds the swapchain at the surface's current size. Callers
// must have dropped all registry bindings to the old images first.
func (s *VulkanSwapchain) Recreate() error {
	s.destroy()
	return s.create()
}

// Present queues the current image. An outdated result is an expected
// transient handled by the next acquire.
func (s *VulkanSwapchain) Present() (bool, error) {
	d := s.device

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{d.queueCompleteSemaphores[s.acquireSlot]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.Handle},
		PImageIndices:      []uint32{s.currentIndex},
	}

	result := vk.QueuePresent(d.PresentQueue, &presentInfo)
	switch result {
	case vk.Success:
		return false, nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return true, nil
	default:
		err := resultError("vkQueuePresentKHR", result)
		core.LogError(err.Error())
		return false, err
	}
}

func (s *VulkanSwapchain) destroy() {
	d := s.device
	vk.DeviceWaitIdle(d.LogicalDevice)
	// Views go, the images themselves belong to the swapchain.
	for _, handle := range s.images {
		if d.images.Has(handle) {
			d.DestroyImage(handle)
		}
	}
	s.images = nil
	if s.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.LogicalDevice, s.Handle, d.context.Allocator)
		s.Handle = vk.NullSwapchain
	}
}

// Destroy releases the swapchain and its registered images.
func (s *VulkanSwapchain) Destroy() {
	s.destroy()
}
