package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

// VulkanImage is the backend payload stored in metadata.Image.InternalData.
// Owned is false for swapchain images, which the presentation engine owns.
type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Owned  bool
}

func imageAspect(format metadata.Format) vk.ImageAspectFlags {
	if format.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func imageTypeToVk(t metadata.ImageType) vk.ImageType {
	switch t {
	case metadata.ImageType1D:
		return vk.ImageType1d
	case metadata.ImageType3D:
		return vk.ImageType3d
	default:
		return vk.ImageType2d
	}
}

func imageViewType(t metadata.ImageType) vk.ImageViewType {
	switch t {
	case metadata.ImageType1D:
		return vk.ImageViewType1d
	case metadata.ImageType3D:
		return vk.ImageViewType3d
	default:
		return vk.ImageViewType2d
	}
}

// CreateImage allocates an image, backs it with device-local memory and
// creates the default view. The image starts in the Null state.
func (d *VulkanDevice) CreateImage(spec metadata.ImageSpec) (containers.Handle[metadata.Image], error) {
	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageTypeToVk(spec.ImageType),
		Format:    vk.Format(spec.Format),
		Extent: vk.Extent3D{
			Width:  uint32(spec.Size[0]),
			Height: uint32(spec.Size[1]),
			Depth:  uint32(spec.Size[2]),
		},
		MipLevels:     spec.MipLevels,
		ArrayLayers:   1,
		Samples:       vk.SampleCountFlagBits(spec.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(spec.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if res := vk.CreateImage(d.LogicalDevice, &imageCreateInfo, d.context.Allocator, &image); res != vk.Success {
		err := resultError("vkCreateImage", res)
		core.LogError(err.Error())
		return containers.InvalidHandle[metadata.Image](), err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.LogicalDevice, image, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := d.FindMemoryIndex(memoryRequirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryType == -1 {
		vk.DestroyImage(d.LogicalDevice, image, d.context.Allocator)
		err := fmt.Errorf("required memory type not found for image")
		core.LogError(err.Error())
		return containers.InvalidHandle[metadata.Image](), err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.LogicalDevice, &allocateInfo, d.context.Allocator, &memory); res != vk.Success {
		vk.DestroyImage(d.LogicalDevice, image, d.context.Allocator)
		err := resultError("vkAllocateMemory", res)
		core.LogError(err.Error())
		return containers.InvalidHandle[metadata.Image](), err
	}
	if res := vk.BindImageMemory(d.LogicalDevice, image, memory, 0); res != vk.Success {
		vk.FreeMemory(d.LogicalDevice, memory, d.context.Allocator)
		vk.DestroyImage(d.LogicalDevice, image, d.context.Allocator)
		err := resultError("vkBindImageMemory", res)
		core.LogError(err.Error())
		return containers.InvalidHandle[metadata.Image](), err
	}

	view, err := d.createImageView(image, spec)
	if err != nil {
		vk.FreeMemory(d.LogicalDevice, memory, d.context.Allocator)
		vk.DestroyImage(d.LogicalDevice, image, d.context.Allocator)
		return containers.InvalidHandle[metadata.Image](), err
	}

	return d.images.Add(metadata.Image{
		Spec:  spec,
		State: metadata.ImageStateNull,
		InternalData: &VulkanImage{
			Handle: image,
			Memory: memory,
			View:   view,
			Owned:  true,
		},
	}), nil
}

func (d *VulkanDevice) createImageView(image vk.Image, spec metadata.ImageSpec) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: imageViewType(spec.ImageType),
		Format:   vk.Format(spec.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: imageAspect(spec.Format),
			LevelCount: spec.MipLevels,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.LogicalDevice, &viewCreateInfo, d.context.Allocator, &view); res != vk.Success {
		err := resultError("vkCreateImageView", res)
		core.LogError(err.Error())
		return nil, err
	}
	return view, nil
}

// DestroyImage releases the GPU objects and frees the pool slot. Unowned
// images (swapchain) only release their view.
func (d *VulkanDevice) DestroyImage(handle containers.Handle[metadata.Image]) {
	img := d.images.Get(handle)
	if data, ok := img.InternalData.(*VulkanImage); ok {
		if data.View != nil {
			vk.DestroyImageView(d.LogicalDevice, data.View, d.context.Allocator)
		}
		if data.Owned {
			if data.Handle != nil {
				vk.DestroyImage(d.LogicalDevice, data.Handle, d.context.Allocator)
			}
			if data.Memory != nil {
				vk.FreeMemory(d.LogicalDevice, data.Memory, d.context.Allocator)
			}
		}
	}
	d.images.Remove(handle)
}

// registerSwapchainImage wraps a presentation-engine owned image in the pool
// so the graph can barrier and render to it like any other image.
func (d *VulkanDevice) registerSwapchainImage(image vk.Image, spec metadata.ImageSpec, name string) (containers.Handle[metadata.Image], error) {
	view, err := d.createImageView(image, spec)
	if err != nil {
		return containers.InvalidHandle[metadata.Image](), err
	}
	return d.images.Add(metadata.Image{
		Name:  name,
		Spec:  spec,
		State: metadata.ImageStateNull,
		InternalData: &VulkanImage{
			Handle: image,
			View:   view,
			Owned:  false,
		},
	}), nil
}
