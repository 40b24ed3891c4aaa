package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vapor/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(device vk.Device, allocator *vk.AllocationCallbacks, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(device, &fenceCreateInfo, allocator, &pFence); res != vk.Success {
		err := fmt.Errorf("failed to create fence")
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) Destroy(device vk.Device, allocator *vk.AllocationCallbacks) {
	if vf.Handle != nil {
		vk.DestroyFence(device, vf.Handle, allocator)
		vf.Handle = nil
	}
	vf.IsSignaled = false
}

// Wait blocks until the fence signals or timeoutNs elapses.
func (vf *VulkanFence) Wait(device vk.Device, timeoutNs uint64) error {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return nil
	}

	result := vk.WaitForFences(device, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("fence wait timed out")
		return core.ErrFenceTimeout
	case vk.ErrorDeviceLost:
		core.LogError("fence wait failed: device lost")
		return core.ErrDeviceLost
	default:
		err := fmt.Errorf("fence wait failed: %s", resultString(result))
		core.LogError(err.Error())
		return err
	}
}

func (vf *VulkanFence) Reset(device vk.Device) error {
	if vf.IsSignaled {
		if res := vk.ResetFences(device, 1, []vk.Fence{vf.Handle}); res != vk.Success {
			err := fmt.Errorf("failed to reset fence")
			core.LogError(err.Error())
			return err
		}
		vf.IsSignaled = false
	}
	return nil
}
