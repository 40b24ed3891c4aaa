package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

// VulkanFramebuffer is the backend payload stored in
// metadata.Framebuffer.InternalData. Each framebuffer carries its compatible
// render pass; the graph transitions attachments before the pass begins, so
// initial and final layouts are the attachment layouts themselves.
type VulkanFramebuffer struct {
	Handle     vk.Framebuffer
	RenderPass vk.RenderPass
	Width      uint32
	Height     uint32
}

func (d *VulkanDevice) createRenderPass(colorFormats []metadata.Format, depthFormat metadata.Format, hasDepth bool) (vk.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, len(colorFormats)+1)
	colorRefs := make([]vk.AttachmentReference, 0, len(colorFormats))

	for _, format := range colorFormats {
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		attachments = append(attachments, vk.AttachmentDescription{
			Format:        vk.Format(format),
			Samples:       vk.SampleCount1Bit,
			LoadOp:        vk.AttachmentLoadOpClear,
			StoreOp:       vk.AttachmentStoreOpStore,
			InitialLayout: vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:   vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}

	if hasDepth {
		depthRef := vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutDepthAttachmentOptimal,
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:        vk.Format(depthFormat),
			Samples:       vk.SampleCount1Bit,
			LoadOp:        vk.AttachmentLoadOpClear,
			StoreOp:       vk.AttachmentStoreOpStore,
			InitialLayout: vk.ImageLayoutDepthAttachmentOptimal,
			FinalLayout:   vk.ImageLayoutDepthAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &depthRef
	}

	renderPassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var renderPass vk.RenderPass
	if res := vk.CreateRenderPass(d.LogicalDevice, &renderPassCreateInfo, d.context.Allocator, &renderPass); res != vk.Success {
		err := resultError("vkCreateRenderPass", res)
		core.LogError(err.Error())
		return nil, err
	}
	return renderPass, nil
}

// CreateFramebuffer builds a render pass compatible with the attachment set
// and a framebuffer over the attachments' views.
func (d *VulkanDevice) CreateFramebuffer(size [3]int32, colorAttachments []containers.Handle[metadata.Image], depthAttachment containers.Handle[metadata.Image]) (containers.Handle[metadata.Framebuffer], error) {
	colorFormats := make([]metadata.Format, len(colorAttachments))
	views := make([]vk.ImageView, 0, len(colorAttachments)+1)
	for i, handle := range colorAttachments {
		img := d.images.Get(handle)
		colorFormats[i] = img.Spec.Format
		views = append(views, img.InternalData.(*VulkanImage).View)
	}

	hasDepth := depthAttachment.IsValid()
	var depthFormat metadata.Format
	if hasDepth {
		img := d.images.Get(depthAttachment)
		depthFormat = img.Spec.Format
		views = append(views, img.InternalData.(*VulkanImage).View)
	}

	renderPass, err := d.createRenderPass(colorFormats, depthFormat, hasDepth)
	if err != nil {
		return containers.InvalidHandle[metadata.Framebuffer](), err
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           uint32(size[0]),
		Height:          uint32(size[1]),
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(d.LogicalDevice, &framebufferCreateInfo, d.context.Allocator, &framebuffer); res != vk.Success {
		vk.DestroyRenderPass(d.LogicalDevice, renderPass, d.context.Allocator)
		err := resultError("vkCreateFramebuffer", res)
		core.LogError(err.Error())
		return containers.InvalidHandle[metadata.Framebuffer](), err
	}

	colors := make([]containers.Handle[metadata.Image], len(colorAttachments))
	copy(colors, colorAttachments)

	return d.framebuffers.Add(metadata.Framebuffer{
		ColorAttachments: colors,
		DepthAttachment:  depthAttachment,
		Size:             size,
		InternalData: &VulkanFramebuffer{
			Handle:     framebuffer,
			RenderPass: renderPass,
			Width:      uint32(size[0]),
			Height:     uint32(size[1]),
		},
	}), nil
}

func (d *VulkanDevice) DestroyFramebuffer(handle containers.Handle[metadata.Framebuffer]) {
	fb := d.framebuffers.Get(handle)
	if data, ok := fb.InternalData.(*VulkanFramebuffer); ok {
		if data.Handle != nil {
			vk.DestroyFramebuffer(d.LogicalDevice, data.Handle, d.context.Allocator)
		}
		if data.RenderPass != nil {
			vk.DestroyRenderPass(d.LogicalDevice, data.RenderPass, d.context.Allocator)
		}
	}
	d.framebuffers.Remove(handle)
}
