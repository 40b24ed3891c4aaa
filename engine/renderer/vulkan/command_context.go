package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
	"github.com/spaghettifunk/vapor/engine/renderer/rendergraph"
)

// VulkanCommandContext records one frame's pass list into the frame slot's
// command buffer. It implements rendergraph.GraphicsContext.
type VulkanCommandContext struct {
	device *VulkanDevice
	buffer *VulkanCommandBuffer
	slot   int
}

var _ rendergraph.GraphicsContext = (*VulkanCommandContext)(nil)

func (c *VulkanCommandContext) Begin() error {
	if res := vk.ResetCommandBuffer(c.buffer.Handle, 0); res != vk.Success {
		err := resultError("vkResetCommandBuffer", res)
		core.LogError(err.Error())
		return err
	}
	c.buffer.Reset()
	return c.buffer.Begin(true, false, false)
}

func (c *VulkanCommandContext) End() error {
	return c.buffer.End()
}

// Barrier transitions image into next. The source half comes from the
// image's tracked state, which recording order keeps in sync with the GPU.
func (c *VulkanCommandContext) Barrier(image containers.Handle[metadata.Image], next metadata.ImageState) {
	img := c.device.Image(image)
	data := img.InternalData.(*VulkanImage)
	src, dst := rendergraph.TransitionImage(c.device, image, next)

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(src.Access),
		DstAccessMask:       vk.AccessFlags(dst.Access),
		OldLayout:           vk.ImageLayout(src.Layout),
		NewLayout:           vk.ImageLayout(dst.Layout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               data.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: imageAspect(img.Spec.Format),
			LevelCount: img.Spec.MipLevels,
			LayerCount: 1,
		},
	}

	vk.CmdPipelineBarrier(c.buffer.Handle,
		vk.PipelineStageFlags(src.Stage), vk.PipelineStageFlags(dst.Stage), 0,
		0, nil, 0, nil,
		1, []vk.ImageMemoryBarrier{barrier})
}

func subresourceLayers(format metadata.Format) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask: imageAspect(format),
		LayerCount: 1,
	}
}

// CopyImage copies the full extent of src into dst. Both images must already
// be in their transfer states.
func (c *VulkanCommandContext) CopyImage(src, dst containers.Handle[metadata.Image]) {
	srcImg := c.device.Image(src)
	dstImg := c.device.Image(dst)

	region := vk.ImageCopy{
		SrcSubresource: subresourceLayers(srcImg.Spec.Format),
		DstSubresource: subresourceLayers(dstImg.Spec.Format),
		Extent: vk.Extent3D{
			Width:  uint32(srcImg.Spec.Size[0]),
			Height: uint32(srcImg.Spec.Size[1]),
			Depth:  uint32(srcImg.Spec.Size[2]),
		},
	}

	vk.CmdCopyImage(c.buffer.Handle,
		srcImg.InternalData.(*VulkanImage).Handle, vk.ImageLayoutTransferSrcOptimal,
		dstImg.InternalData.(*VulkanImage).Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{region})
}

// BlitImage stretches src over dst with linear filtering, converting formats
// and sizes as needed.
func (c *VulkanCommandContext) BlitImage(src, dst containers.Handle[metadata.Image]) {
	srcImg := c.device.Image(src)
	dstImg := c.device.Image(dst)

	blit := vk.ImageBlit{
		SrcSubresource: subresourceLayers(srcImg.Spec.Format),
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: srcImg.Spec.Size[0], Y: srcImg.Spec.Size[1], Z: srcImg.Spec.Size[2]},
		},
		DstSubresource: subresourceLayers(dstImg.Spec.Format),
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: dstImg.Spec.Size[0], Y: dstImg.Spec.Size[1], Z: dstImg.Spec.Size[2]},
		},
	}

	vk.CmdBlitImage(c.buffer.Handle,
		srcImg.InternalData.(*VulkanImage).Handle, vk.ImageLayoutTransferSrcOptimal,
		dstImg.InternalData.(*VulkanImage).Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{blit}, vk.FilterLinear)
}

// CopyBufferToImage copies tightly packed texel data starting at bufferOffset
// into the full extent of image.
func (c *VulkanCommandContext) CopyBufferToImage(buffer containers.Handle[metadata.Buffer], bufferOffset uint32, image containers.Handle[metadata.Image]) {
	buf := c.device.Buffer(buffer)
	img := c.device.Image(image)

	region := vk.BufferImageCopy{
		BufferOffset:     vk.DeviceSize(bufferOffset),
		ImageSubresource: subresourceLayers(img.Spec.Format),
		ImageExtent: vk.Extent3D{
			Width:  uint32(img.Spec.Size[0]),
			Height: uint32(img.Spec.Size[1]),
			Depth:  uint32(img.Spec.Size[2]),
		},
	}

	vk.CmdCopyBufferToImage(c.buffer.Handle,
		buf.InternalData.(*VulkanBuffer).Handle,
		img.InternalData.(*VulkanImage).Handle,
		vk.ImageLayoutTransferDstOptimal,
		1, []vk.BufferImageCopy{region})
}

func (c *VulkanCommandContext) Dispatch(groupsX, groupsY, groupsZ uint32) {
	vk.CmdDispatch(c.buffer.Handle, groupsX, groupsY, groupsZ)
}

// BeginRenderPass starts the framebuffer's render pass with one load op per
// attachment, color attachments first, depth last.
func (c *VulkanCommandContext) BeginRenderPass(framebuffer containers.Handle[metadata.Framebuffer], loadOps []metadata.LoadOp) error {
	fb := c.device.Framebuffer(framebuffer)
	data, ok := fb.InternalData.(*VulkanFramebuffer)
	if !ok {
		err := fmt.Errorf("framebuffer has no backend data")
		core.LogError(err.Error())
		return err
	}

	clearValues := make([]vk.ClearValue, len(loadOps))
	for i, op := range loadOps {
		switch op.Kind {
		case metadata.LoadOpClearColor:
			clearValues[i].SetColor(op.ClearColor[:])
		case metadata.LoadOpClearDepth:
			clearValues[i].SetDepthStencil(op.ClearDepth, 0)
		}
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  data.RenderPass,
		Framebuffer: data.Handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: data.Width, Height: data.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(c.buffer.Handle, &beginInfo, vk.SubpassContentsInline)
	c.buffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	return nil
}

func (c *VulkanCommandContext) EndRenderPass() {
	vk.CmdEndRenderPass(c.buffer.Handle)
	c.buffer.State = COMMAND_BUFFER_STATE_RECORDING
}

func (c *VulkanCommandContext) SetViewport(viewport metadata.Viewport) {
	vk.CmdSetViewport(c.buffer.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (c *VulkanCommandContext) SetScissor(scissor metadata.Rect2D) {
	vk.CmdSetScissor(c.buffer.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.Offset.X, Y: scissor.Offset.Y},
		Extent: vk.Extent2D{Width: scissor.Extent.Width, Height: scissor.Extent.Height},
	}})
}

func (c *VulkanCommandContext) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(c.buffer.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}
