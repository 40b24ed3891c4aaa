package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/vapor/engine/containers"
)

func TestImageStateAccessTables(t *testing.T) {
	tests := []struct {
		state ImageState
		src   ImageAccess
		dst   ImageAccess
	}{
		{
			ImageStateNull,
			ImageAccess{PipelineStageBottomOfPipe, AccessNone, ImageLayoutUndefined},
			ImageAccess{PipelineStageTopOfPipe, AccessNone, ImageLayoutUndefined},
		},
		{
			ImageStateGraphicsShaderRead,
			ImageAccess{PipelineStageVertexShader, AccessNone, ImageLayoutShaderReadOnlyOptimal},
			ImageAccess{PipelineStageFragmentShader, AccessShaderRead, ImageLayoutShaderReadOnlyOptimal},
		},
		{
			ImageStateComputeShaderReadWrite,
			ImageAccess{PipelineStageComputeShader, AccessShaderWrite, ImageLayoutGeneral},
			ImageAccess{PipelineStageComputeShader, AccessShaderRead | AccessShaderWrite, ImageLayoutGeneral},
		},
		{
			ImageStateTransferDst,
			ImageAccess{PipelineStageTransfer, AccessTransferWrite, ImageLayoutTransferDstOptimal},
			ImageAccess{PipelineStageTransfer, AccessTransferWrite, ImageLayoutTransferDstOptimal},
		},
		{
			ImageStateTransferSrc,
			ImageAccess{PipelineStageTransfer, AccessNone, ImageLayoutTransferSrcOptimal},
			ImageAccess{PipelineStageTransfer, AccessTransferRead, ImageLayoutTransferSrcOptimal},
		},
		{
			ImageStateColorAttachment,
			ImageAccess{PipelineStageColorAttachmentOutput, AccessColorAttachmentWrite, ImageLayoutColorAttachmentOptimal},
			ImageAccess{PipelineStageColorAttachmentOutput, AccessColorAttachmentWrite | AccessColorAttachmentRead, ImageLayoutColorAttachmentOptimal},
		},
		{
			ImageStateDepthAttachment,
			ImageAccess{PipelineStageLateFragmentTests, AccessDepthStencilAttachmentWrite, ImageLayoutDepthAttachmentOptimal},
			ImageAccess{PipelineStageLateFragmentTests | PipelineStageEarlyFragmentTests, AccessDepthStencilAttachmentWrite | AccessDepthStencilAttachmentRead, ImageLayoutDepthAttachmentOptimal},
		},
		{
			ImageStatePresent,
			ImageAccess{PipelineStageBottomOfPipe, AccessNone, ImageLayoutPresentSrc},
			ImageAccess{PipelineStageBottomOfPipe, AccessNone, ImageLayoutPresentSrc},
		},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.src, tc.state.SrcAccess(), "%s src", tc.state)
		assert.Equal(t, tc.dst, tc.state.DstAccess(), "%s dst", tc.state)
	}
}

func TestImageSpecEqualityDrivesReuse(t *testing.T) {
	a := DefaultImageSpec()
	b := DefaultImageSpec()
	assert.Equal(t, a, b)

	b.Format = FormatR16G16B16A16Sfloat
	assert.NotEqual(t, a, b)
}

func TestFormatIsDepth(t *testing.T) {
	assert.True(t, FormatD32Sfloat.IsDepth())
	assert.False(t, FormatR8G8B8A8Unorm.IsDepth())
	assert.False(t, FormatB8G8R8A8Unorm.IsDepth())
}

func TestFramebufferSameAttachments(t *testing.T) {
	pool := containers.NewPool[Image]()
	a := pool.Add(Image{Name: "a"})
	b := pool.Add(Image{Name: "b"})
	noDepth := containers.InvalidHandle[Image]()

	fb := Framebuffer{
		ColorAttachments: []containers.Handle[Image]{a, b},
		DepthAttachment:  noDepth,
	}

	assert.True(t, fb.SameAttachments([]containers.Handle[Image]{a, b}, noDepth))
	assert.False(t, fb.SameAttachments([]containers.Handle[Image]{b, a}, noDepth), "order matters")
	assert.False(t, fb.SameAttachments([]containers.Handle[Image]{a}, noDepth))
	assert.False(t, fb.SameAttachments([]containers.Handle[Image]{a, b}, a))
}
