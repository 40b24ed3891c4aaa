package metadata

import (
	"github.com/spaghettifunk/vapor/engine/containers"
)

type TextureSizeKind uint8

const (
	// TextureSizeScreenRelative scales with the presentation surface.
	TextureSizeScreenRelative TextureSizeKind = iota
	// TextureSizeAbsolute is a fixed pixel extent.
	TextureSizeAbsolute
)

// TextureSize is either a screen-relative ratio or an absolute pixel extent.
type TextureSize struct {
	Kind     TextureSizeKind
	Relative [2]float32
	Absolute [3]int32
}

func ScreenRelativeSize(width, height float32) TextureSize {
	return TextureSize{Kind: TextureSizeScreenRelative, Relative: [2]float32{width, height}}
}

func AbsoluteSize(width, height, depth int32) TextureSize {
	return TextureSize{Kind: TextureSizeAbsolute, Absolute: [3]int32{width, height, depth}}
}

// TextureDesc is a virtual render target. Descs live exactly one frame: the
// registry's desc pool is cleared at frame end and callers re-declare them.
// ResolvedImage stays invalid until the registry binds a concrete image.
type TextureDesc struct {
	Name          string
	Size          TextureSize
	Format        Format
	ImageType     ImageType
	Usage         ImageUsageFlags
	ResolvedImage containers.Handle[Image]
}

func NewTextureDesc(name string, size TextureSize) TextureDesc {
	return TextureDesc{
		Name:      name,
		Size:      size,
		Format:    FormatR8G8B8A8Unorm,
		ImageType: ImageType2D,
		Usage: ImageUsageTransferSrc | ImageUsageTransferDst |
			ImageUsageSampled | ImageUsageColorAttachment,
		ResolvedImage: containers.InvalidHandle[Image](),
	}
}

func (td TextureDesc) WithFormat(format Format) TextureDesc {
	td.Format = format
	return td
}

func (td TextureDesc) WithImageType(imageType ImageType) TextureDesc {
	td.ImageType = imageType
	return td
}

func (td TextureDesc) WithUsage(usage ImageUsageFlags) TextureDesc {
	td.Usage = usage
	return td
}
