package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

// VulkanShader is the backend payload stored in metadata.Shader.InternalData.
type VulkanShader struct {
	Module vk.ShaderModule
}

// CreateShader wraps compiled SPIR-V in a shader module. code must be a
// multiple of four bytes.
func (d *VulkanDevice) CreateShader(name string, code []byte) (containers.Handle[metadata.Shader], error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    unsafe.Slice((*uint32)(unsafe.Pointer(&code[0])), len(code)/4),
	}

	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.LogicalDevice, &createInfo, d.context.Allocator, &module); res != vk.Success {
		err := resultError("vkCreateShaderModule", res)
		core.LogError("shader %s: %s", name, err.Error())
		return containers.InvalidHandle[metadata.Shader](), err
	}

	return d.shaders.Add(metadata.Shader{
		Name:         name,
		Code:         code,
		InternalData: &VulkanShader{Module: module},
	}), nil
}

func (d *VulkanDevice) DestroyShader(handle containers.Handle[metadata.Shader]) {
	shader := d.shaders.Get(handle)
	if data, ok := shader.InternalData.(*VulkanShader); ok && data.Module != nil {
		vk.DestroyShaderModule(d.LogicalDevice, data.Module, d.context.Allocator)
	}
	d.shaders.Remove(handle)
}
