package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
	"github.com/spaghettifunk/vapor/engine/renderer/rendergraph"
)

// VulkanDevice implements rendergraph.Device on top of goki/vulkan. It owns
// every pool of GPU objects; the graph and registry only ever see handles.
type VulkanDevice struct {
	context *VulkanContext

	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	GraphicsQueue      vk.Queue
	PresentQueue       vk.Queue
	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32

	GraphicsCommandPool vk.CommandPool
	DepthFormat         vk.Format

	images       *containers.Pool[metadata.Image]
	buffers      *containers.Pool[metadata.Buffer]
	framebuffers *containers.Pool[metadata.Framebuffer]
	shaders      *containers.Pool[metadata.Shader]

	frameQueueLength int
	inFlightFences   []*VulkanFence
	commandBuffers   []*VulkanCommandBuffer

	imageAvailableSemaphores []vk.Semaphore
	queueCompleteSemaphores  []vk.Semaphore

	// pendingWaitSemaphore is set by the swapchain after a successful
	// acquire and consumed by the next Submit.
	pendingWaitSemaphore vk.Semaphore

	// frameCounter counts submitted frames; frameCounter mod
	// frameQueueLength is the slot currently being recorded.
	frameCounter uint64
}

var _ rendergraph.Device = (*VulkanDevice)(nil)

func (d *VulkanDevice) currentSlot() int {
	return int(d.frameCounter % uint64(d.frameQueueLength))
}

func (d *VulkanDevice) Image(handle containers.Handle[metadata.Image]) *metadata.Image {
	return d.images.Get(handle)
}

func (d *VulkanDevice) Buffer(handle containers.Handle[metadata.Buffer]) *metadata.Buffer {
	return d.buffers.Get(handle)
}

func (d *VulkanDevice) Framebuffer(handle containers.Handle[metadata.Framebuffer]) *metadata.Framebuffer {
	return d.framebuffers.Get(handle)
}

func (d *VulkanDevice) Shader(handle containers.Handle[metadata.Shader]) *metadata.Shader {
	return d.shaders.Get(handle)
}

// GraphicsContext returns the recording context for the current frame slot.
func (d *VulkanDevice) GraphicsContext() (rendergraph.GraphicsContext, error) {
	slot := d.currentSlot()
	return &VulkanCommandContext{
		device: d,
		buffer: d.commandBuffers[slot],
		slot:   slot,
	}, nil
}

// Submit hands a recorded frame to the graphics queue. The frame slot's
// fence is signaled on completion; WaitForFrame(signalValue) blocks on it.
func (d *VulkanDevice) Submit(ctx rendergraph.CommandContext, signalValue uint64) error {
	vctx, ok := ctx.(*VulkanCommandContext)
	if !ok {
		return fmt.Errorf("submit of a foreign command context")
	}

	slot := int(signalValue % uint64(d.frameQueueLength))
	fence := d.inFlightFences[slot]
	if err := fence.Reset(d.LogicalDevice); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{vctx.buffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{d.queueCompleteSemaphores[slot]},
	}

	if d.pendingWaitSemaphore != vk.NullSemaphore {
		// The acquired image must be available before color output starts.
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{d.pendingWaitSemaphore}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
		d.pendingWaitSemaphore = vk.NullSemaphore
	}

	if res := vk.QueueSubmit(d.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); res != vk.Success {
		err := resultError("vkQueueSubmit", res)
		core.LogError(err.Error())
		return err
	}

	vctx.buffer.UpdateSubmitted()
	d.frameCounter++
	return nil
}

// WaitForFrame blocks until the frame submitted with signal value has
// retired, up to timeout. Timeout expiry is unrecoverable for the caller.
func (d *VulkanDevice) WaitForFrame(value uint64, timeout time.Duration) error {
	fence := d.inFlightFences[value%uint64(d.frameQueueLength)]
	return fence.Wait(d.LogicalDevice, uint64(timeout.Nanoseconds()))
}

func (d *VulkanDevice) WaitIdle() error {
	if res := vk.DeviceWaitIdle(d.LogicalDevice); res != vk.Success {
		err := resultError("vkDeviceWaitIdle", res)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// FindMemoryIndex locates a memory type matching typeFilter and the
// requested property flags, or -1.
func (d *VulkanDevice) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("unable to find suitable memory type")
	return -1
}
