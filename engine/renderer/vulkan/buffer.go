package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

// VulkanBuffer is the backend payload stored in metadata.Buffer.InternalData.
// Mapped stays valid for the buffer's whole lifetime on host-visible memory.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Mapped []byte
}

func memoryPropertyFlags(usage metadata.MemoryUsage) vk.MemoryPropertyFlags {
	if usage == metadata.MemoryUsageHostVisible {
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

// CreateBuffer allocates a buffer and binds memory of the requested class.
// Host-visible buffers are persistently mapped right away.
func (d *VulkanDevice) CreateBuffer(spec metadata.BufferSpec) (containers.Handle[metadata.Buffer], error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(spec.Size),
		Usage:       vk.BufferUsageFlags(spec.Usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if res := vk.CreateBuffer(d.LogicalDevice, &bufferCreateInfo, d.context.Allocator, &buffer); res != vk.Success {
		err := resultError("vkCreateBuffer", res)
		core.LogError(err.Error())
		return containers.InvalidHandle[metadata.Buffer](), err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.LogicalDevice, buffer, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := d.FindMemoryIndex(memoryRequirements.MemoryTypeBits, uint32(memoryPropertyFlags(spec.MemoryUsage)))
	if memoryType == -1 {
		vk.DestroyBuffer(d.LogicalDevice, buffer, d.context.Allocator)
		err := fmt.Errorf("required memory type not found for buffer")
		core.LogError(err.Error())
		return containers.InvalidHandle[metadata.Buffer](), err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.LogicalDevice, &allocateInfo, d.context.Allocator, &memory); res != vk.Success {
		vk.DestroyBuffer(d.LogicalDevice, buffer, d.context.Allocator)
		err := resultError("vkAllocateMemory", res)
		core.LogError(err.Error())
		return containers.InvalidHandle[metadata.Buffer](), err
	}
	if res := vk.BindBufferMemory(d.LogicalDevice, buffer, memory, 0); res != vk.Success {
		vk.FreeMemory(d.LogicalDevice, memory, d.context.Allocator)
		vk.DestroyBuffer(d.LogicalDevice, buffer, d.context.Allocator)
		err := resultError("vkBindBufferMemory", res)
		core.LogError(err.Error())
		return containers.InvalidHandle[metadata.Buffer](), err
	}

	data := &VulkanBuffer{
		Handle: buffer,
		Memory: memory,
	}

	if spec.MemoryUsage == metadata.MemoryUsageHostVisible {
		var ptr unsafe.Pointer
		if res := vk.MapMemory(d.LogicalDevice, memory, 0, vk.DeviceSize(spec.Size), 0, &ptr); res != vk.Success {
			vk.FreeMemory(d.LogicalDevice, memory, d.context.Allocator)
			vk.DestroyBuffer(d.LogicalDevice, buffer, d.context.Allocator)
			err := resultError("vkMapMemory", res)
			core.LogError(err.Error())
			return containers.InvalidHandle[metadata.Buffer](), err
		}
		data.Mapped = unsafe.Slice((*byte)(ptr), spec.Size)
	}

	return d.buffers.Add(metadata.Buffer{
		Spec:         spec,
		InternalData: data,
	}), nil
}

func (d *VulkanDevice) DestroyBuffer(handle containers.Handle[metadata.Buffer]) {
	buf := d.buffers.Get(handle)
	if data, ok := buf.InternalData.(*VulkanBuffer); ok {
		if data.Mapped != nil {
			vk.UnmapMemory(d.LogicalDevice, data.Memory)
		}
		if data.Handle != nil {
			vk.DestroyBuffer(d.LogicalDevice, data.Handle, d.context.Allocator)
		}
		if data.Memory != nil {
			vk.FreeMemory(d.LogicalDevice, data.Memory, d.context.Allocator)
		}
	}
	d.buffers.Remove(handle)
}

// MapBuffer returns the persistent host mapping established at creation.
func (d *VulkanDevice) MapBuffer(handle containers.Handle[metadata.Buffer]) ([]byte, error) {
	buf := d.buffers.Get(handle)
	data, ok := buf.InternalData.(*VulkanBuffer)
	if !ok || data.Mapped == nil {
		err := fmt.Errorf("buffer %q is not host visible", buf.Name)
		core.LogError(err.Error())
		return nil, err
	}
	return data.Mapped, nil
}
