package metadata

import (
	"github.com/spaghettifunk/vapor/engine/containers"
)

// Numeric values of the flag and enum types below match the Vulkan constants
// so a Vulkan backend can cast them directly. Other backends translate.

type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatB8G8R8A8Unorm      Format = 44
	FormatR16G16B16A16Sfloat Format = 97
	FormatR32G32B32A32Sfloat Format = 109
	FormatD32Sfloat          Format = 126
)

type ImageType uint32

const (
	ImageType1D ImageType = 0
	ImageType2D ImageType = 1
	ImageType3D ImageType = 2
)

type SampleCountFlags uint32

const (
	SampleCount1Bit SampleCountFlags = 0x00000001
	SampleCount4Bit SampleCountFlags = 0x00000004
)

type ImageUsageFlags uint32

const (
	ImageUsageTransferSrc            ImageUsageFlags = 0x00000001
	ImageUsageTransferDst            ImageUsageFlags = 0x00000002
	ImageUsageSampled                ImageUsageFlags = 0x00000004
	ImageUsageStorage                ImageUsageFlags = 0x00000008
	ImageUsageColorAttachment        ImageUsageFlags = 0x00000010
	ImageUsageDepthStencilAttachment ImageUsageFlags = 0x00000020
)

type PipelineStageFlags uint32

const (
	PipelineStageTopOfPipe             PipelineStageFlags = 0x00000001
	PipelineStageVertexShader          PipelineStageFlags = 0x00000008
	PipelineStageFragmentShader        PipelineStageFlags = 0x00000080
	PipelineStageEarlyFragmentTests    PipelineStageFlags = 0x00000100
	PipelineStageLateFragmentTests     PipelineStageFlags = 0x00000200
	PipelineStageColorAttachmentOutput PipelineStageFlags = 0x00000400
	PipelineStageComputeShader         PipelineStageFlags = 0x00000800
	PipelineStageTransfer              PipelineStageFlags = 0x00001000
	PipelineStageBottomOfPipe          PipelineStageFlags = 0x00002000
)

type AccessFlags uint32

const (
	AccessNone                        AccessFlags = 0
	AccessShaderRead                  AccessFlags = 0x00000020
	AccessShaderWrite                 AccessFlags = 0x00000040
	AccessColorAttachmentRead         AccessFlags = 0x00000080
	AccessColorAttachmentWrite        AccessFlags = 0x00000100
	AccessDepthStencilAttachmentRead  AccessFlags = 0x00000200
	AccessDepthStencilAttachmentWrite AccessFlags = 0x00000400
	AccessTransferRead                AccessFlags = 0x00000800
	AccessTransferWrite               AccessFlags = 0x00001000
)

type ImageLayout uint32

const (
	ImageLayoutUndefined              ImageLayout = 0
	ImageLayoutGeneral                ImageLayout = 1
	ImageLayoutColorAttachmentOptimal ImageLayout = 2
	ImageLayoutShaderReadOnlyOptimal  ImageLayout = 5
	ImageLayoutTransferSrcOptimal     ImageLayout = 6
	ImageLayoutTransferDstOptimal     ImageLayout = 7
	ImageLayoutDepthAttachmentOptimal ImageLayout = 1000241000
	ImageLayoutPresentSrc             ImageLayout = 1000001002
)

// ImageSpec fully describes a GPU image. Two images are interchangeable for
// transient-resource reuse exactly when their specs compare equal.
type ImageSpec struct {
	Size      [3]int32
	MipLevels uint32
	ImageType ImageType
	Format    Format
	Samples   SampleCountFlags
	Usage     ImageUsageFlags
}

func DefaultImageSpec() ImageSpec {
	return ImageSpec{
		Size:      [3]int32{1, 1, 1},
		MipLevels: 1,
		ImageType: ImageType2D,
		Format:    FormatR8G8B8A8Unorm,
		Samples:   SampleCount1Bit,
		Usage:     ImageUsageTransferSrc | ImageUsageTransferDst | ImageUsageSampled,
	}
}

// Image is a pool-owned GPU image. State is the last usage the CPU timeline
// recorded for it and feeds the source half of the next barrier.
// InternalData carries the backend's native objects.
type Image struct {
	Name         string
	Spec         ImageSpec
	State        ImageState
	InternalData interface{}
}

// ImageState enumerates every usage an image can be transitioned to. Each
// state has one fixed access triple as the source of a transition and one as
// the destination.
type ImageState int

const (
	ImageStateNull ImageState = iota
	ImageStateGraphicsShaderRead
	ImageStateGraphicsShaderReadWrite
	ImageStateComputeShaderRead
	ImageStateComputeShaderReadWrite
	ImageStateTransferDst
	ImageStateTransferSrc
	ImageStateColorAttachment
	ImageStateDepthAttachment
	ImageStatePresent
)

func (s ImageState) String() string {
	switch s {
	case ImageStateNull:
		return "Null"
	case ImageStateGraphicsShaderRead:
		return "GraphicsShaderRead"
	case ImageStateGraphicsShaderReadWrite:
		return "GraphicsShaderReadWrite"
	case ImageStateComputeShaderRead:
		return "ComputeShaderRead"
	case ImageStateComputeShaderReadWrite:
		return "ComputeShaderReadWrite"
	case ImageStateTransferDst:
		return "TransferDst"
	case ImageStateTransferSrc:
		return "TransferSrc"
	case ImageStateColorAttachment:
		return "ColorAttachment"
	case ImageStateDepthAttachment:
		return "DepthAttachment"
	case ImageStatePresent:
		return "Present"
	}
	return "Unknown"
}

// ImageAccess is one half of a pipeline barrier.
type ImageAccess struct {
	Stage  PipelineStageFlags
	Access AccessFlags
	Layout ImageLayout
}

// SrcAccess returns the access triple for s as the source of a transition.
func (s ImageState) SrcAccess() ImageAccess {
	switch s {
	case ImageStateNull:
		return ImageAccess{PipelineStageBottomOfPipe, AccessNone, ImageLayoutUndefined}
	case ImageStateGraphicsShaderRead:
		return ImageAccess{PipelineStageVertexShader, AccessNone, ImageLayoutShaderReadOnlyOptimal}
	case ImageStateGraphicsShaderReadWrite:
		return ImageAccess{PipelineStageVertexShader | PipelineStageFragmentShader, AccessShaderWrite, ImageLayoutGeneral}
	case ImageStateComputeShaderRead:
		return ImageAccess{PipelineStageComputeShader, AccessNone, ImageLayoutShaderReadOnlyOptimal}
	case ImageStateComputeShaderReadWrite:
		return ImageAccess{PipelineStageComputeShader, AccessShaderWrite, ImageLayoutGeneral}
	case ImageStateTransferDst:
		return ImageAccess{PipelineStageTransfer, AccessTransferWrite, ImageLayoutTransferDstOptimal}
	case ImageStateTransferSrc:
		return ImageAccess{PipelineStageTransfer, AccessNone, ImageLayoutTransferSrcOptimal}
	case ImageStateColorAttachment:
		return ImageAccess{PipelineStageColorAttachmentOutput, AccessColorAttachmentWrite, ImageLayoutColorAttachmentOptimal}
	case ImageStateDepthAttachment:
		return ImageAccess{PipelineStageLateFragmentTests, AccessDepthStencilAttachmentWrite, ImageLayoutDepthAttachmentOptimal}
	case ImageStatePresent:
		return ImageAccess{PipelineStageBottomOfPipe, AccessNone, ImageLayoutPresentSrc}
	}
	panic("unknown image state")
}

// DstAccess returns the access triple for s as the destination of a transition.
func (s ImageState) DstAccess() ImageAccess {
	switch s {
	case ImageStateNull:
		return ImageAccess{PipelineStageTopOfPipe, AccessNone, ImageLayoutUndefined}
	case ImageStateGraphicsShaderRead:
		return ImageAccess{PipelineStageFragmentShader, AccessShaderRead, ImageLayoutShaderReadOnlyOptimal}
	case ImageStateGraphicsShaderReadWrite:
		return ImageAccess{PipelineStageFragmentShader, AccessShaderWrite, ImageLayoutGeneral}
	case ImageStateComputeShaderRead:
		return ImageAccess{PipelineStageComputeShader, AccessShaderRead, ImageLayoutShaderReadOnlyOptimal}
	case ImageStateComputeShaderReadWrite:
		return ImageAccess{PipelineStageComputeShader, AccessShaderRead | AccessShaderWrite, ImageLayoutGeneral}
	case ImageStateTransferDst:
		return ImageAccess{PipelineStageTransfer, AccessTransferWrite, ImageLayoutTransferDstOptimal}
	case ImageStateTransferSrc:
		return ImageAccess{PipelineStageTransfer, AccessTransferRead, ImageLayoutTransferSrcOptimal}
	case ImageStateColorAttachment:
		return ImageAccess{PipelineStageColorAttachmentOutput, AccessColorAttachmentWrite | AccessColorAttachmentRead, ImageLayoutColorAttachmentOptimal}
	case ImageStateDepthAttachment:
		return ImageAccess{PipelineStageLateFragmentTests | PipelineStageEarlyFragmentTests, AccessDepthStencilAttachmentWrite | AccessDepthStencilAttachmentRead, ImageLayoutDepthAttachmentOptimal}
	case ImageStatePresent:
		return ImageAccess{PipelineStageBottomOfPipe, AccessNone, ImageLayoutPresentSrc}
	}
	panic("unknown image state")
}

// IsDepth reports whether format selects the depth aspect.
func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat
}

// Framebuffer is a cached render target: an exact, ordered set of resolved
// attachments plus the size they share. InternalData carries the backend's
// framebuffer and renderpass objects.
type Framebuffer struct {
	ColorAttachments []containers.Handle[Image]
	DepthAttachment  containers.Handle[Image]
	Size             [3]int32
	InternalData     interface{}
}

// SameAttachments reports whether fb targets exactly the given attachment
// handles, in order.
func (fb *Framebuffer) SameAttachments(colors []containers.Handle[Image], depth containers.Handle[Image]) bool {
	if len(fb.ColorAttachments) != len(colors) || fb.DepthAttachment != depth {
		return false
	}
	for i := range colors {
		if fb.ColorAttachments[i] != colors[i] {
			return false
		}
	}
	return true
}
