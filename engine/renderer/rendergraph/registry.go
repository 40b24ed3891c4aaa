package rendergraph

import (
	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

// DefaultEvictionWindow is how many frames an unused transient image is kept
// alive before destruction. It must cover the frames still in flight so the
// GPU cannot read a reclaimed image.
const DefaultEvictionWindow uint64 = 3

type imageInfo struct {
	// resolvedDesc is the descriptor this image is bound to in the current
	// frame, reset to invalid at every EndFrame.
	resolvedDesc  containers.Handle[metadata.TextureDesc]
	lastFrameUsed uint64
	// owned images were created by the registry and are evicted by it.
	// Imported images (swapchain) are never destroyed here.
	owned bool
}

// ResourceRegistry maps single-frame virtual texture descriptors to real,
// longer-lived GPU images. Descriptors are re-declared every frame; the
// registry amortizes allocation by rebinding pooled images whose spec matches
// exactly, and ages out images nothing referenced for evictionWindow frames.
type ResourceRegistry struct {
	device       Device
	textureDescs *containers.Pool[metadata.TextureDesc]
	images       map[containers.Handle[metadata.Image]]*imageInfo
	framebuffers []containers.Handle[metadata.Framebuffer]

	screenSize     [2]float32
	currentFrame   uint64
	evictionWindow uint64
}

func NewResourceRegistry(device Device, evictionWindow uint64) *ResourceRegistry {
	return &ResourceRegistry{
		device:         device,
		textureDescs:   containers.NewPool[metadata.TextureDesc](),
		images:         make(map[containers.Handle[metadata.Image]]*imageInfo),
		screenSize:     [2]float32{1.0, 1.0},
		evictionWindow: evictionWindow,
	}
}

func (r *ResourceRegistry) SetScreenSize(width, height float32) {
	r.screenSize = [2]float32{width, height}
}

func (r *ResourceRegistry) ScreenSize() [2]float32 {
	return r.screenSize
}

// AddTextureDesc registers a virtual descriptor for the current frame.
func (r *ResourceRegistry) AddTextureDesc(desc metadata.TextureDesc) containers.Handle[metadata.TextureDesc] {
	return r.textureDescs.Add(desc)
}

func (r *ResourceRegistry) TextureDesc(handle containers.Handle[metadata.TextureDesc]) *metadata.TextureDesc {
	return r.textureDescs.Get(handle)
}

// TextureDescSize converts a size policy into concrete pixels. Screen
// relative sizes multiply by the current screen size and truncate.
func (r *ResourceRegistry) TextureDescSize(size metadata.TextureSize) [3]int32 {
	switch size.Kind {
	case metadata.TextureSizeAbsolute:
		return size.Absolute
	case metadata.TextureSizeScreenRelative:
		width := int32(size.Relative[0] * r.screenSize[0])
		height := int32(size.Relative[1] * r.screenSize[1])
		return [3]int32{width, height, 1}
	}
	panic("unknown texture size kind")
}

// SetImage binds an externally owned image (such as a swapchain image) to a
// descriptor. The registry tracks it for resolution but never destroys it.
func (r *ResourceRegistry) SetImage(descHandle containers.Handle[metadata.TextureDesc], imageHandle containers.Handle[metadata.Image]) {
	info, ok := r.images[imageHandle]
	if !ok {
		info = &imageInfo{resolvedDesc: containers.InvalidHandle[metadata.TextureDesc]()}
		r.images[imageHandle] = info
	}
	info.resolvedDesc = descHandle
	info.lastFrameUsed = r.currentFrame

	r.textureDescs.Get(descHandle).ResolvedImage = imageHandle
}

// DropImage forgets an externally owned image: any descriptor bound to it is
// unbound and cached framebuffers referencing it are destroyed. The image
// itself is owned elsewhere and left alone. Used on swapchain recreation.
func (r *ResourceRegistry) DropImage(imageHandle containers.Handle[metadata.Image]) {
	r.textureDescs.Range(func(_ containers.Handle[metadata.TextureDesc], desc *metadata.TextureDesc) bool {
		if desc.ResolvedImage == imageHandle {
			desc.ResolvedImage = containers.InvalidHandle[metadata.Image]()
		}
		return true
	})

	r.dropFramebuffersReferencing(imageHandle)
	delete(r.images, imageHandle)
}

// ResolveImage binds a concrete image to descHandle, idempotently within a
// frame. It first searches the pooled images for one that is unbound this
// frame and structurally matches the desc's spec; only on a miss does it
// allocate. Graphs are rebuilt from scratch every frame, so without this
// search every frame would allocate fresh images for identical intermediates.
func (r *ResourceRegistry) ResolveImage(descHandle containers.Handle[metadata.TextureDesc]) (containers.Handle[metadata.Image], error) {
	desc := r.textureDescs.Get(descHandle)
	if desc.ResolvedImage.IsValid() {
		return desc.ResolvedImage, nil
	}

	spec := metadata.ImageSpec{
		Size:      r.TextureDescSize(desc.Size),
		MipLevels: 1,
		ImageType: desc.ImageType,
		Format:    desc.Format,
		Samples:   metadata.SampleCount1Bit,
		Usage:     desc.Usage,
	}

	imageHandle := containers.InvalidHandle[metadata.Image]()
	for handle, info := range r.images {
		if !info.owned || info.resolvedDesc.IsValid() {
			continue
		}
		if r.device.Image(handle).Spec == spec {
			imageHandle = handle
			break
		}
	}

	if !imageHandle.IsValid() {
		created, err := r.device.CreateImage(spec)
		if err != nil {
			core.LogError("failed to create image for descriptor %q: %s", desc.Name, err)
			return containers.InvalidHandle[metadata.Image](), err
		}
		r.device.Image(created).Name = desc.Name
		r.images[created] = &imageInfo{
			resolvedDesc: containers.InvalidHandle[metadata.TextureDesc](),
			owned:        true,
		}
		imageHandle = created
	}

	info := r.images[imageHandle]
	info.resolvedDesc = descHandle
	info.lastFrameUsed = r.currentFrame
	desc.ResolvedImage = imageHandle

	return imageHandle, nil
}

// ResolveFramebuffer returns a cached framebuffer for the exact ordered set
// of resolved attachments and their size, creating one on a miss. The cache
// lives for the engine's lifetime: framebuffers are expensive to create and
// depend only on image identity.
func (r *ResourceRegistry) ResolveFramebuffer(colorDescs []containers.Handle[metadata.TextureDesc], depthDesc containers.Handle[metadata.TextureDesc]) (containers.Handle[metadata.Framebuffer], error) {
	colorAttachments := make([]containers.Handle[metadata.Image], len(colorDescs))
	for i, descHandle := range colorDescs {
		colorAttachments[i] = r.textureDescs.Get(descHandle).ResolvedImage
	}

	depthAttachment := containers.InvalidHandle[metadata.Image]()
	if depthDesc.IsValid() {
		resolved, err := r.ResolveImage(depthDesc)
		if err != nil {
			return containers.InvalidHandle[metadata.Framebuffer](), err
		}
		depthAttachment = resolved
	}

	var size [3]int32
	if len(colorAttachments) > 0 {
		size = r.device.Image(colorAttachments[0]).Spec.Size
	} else {
		size = r.device.Image(depthAttachment).Spec.Size
	}

	for _, fbHandle := range r.framebuffers {
		fb := r.device.Framebuffer(fbHandle)
		if fb.SameAttachments(colorAttachments, depthAttachment) && fb.Size == size {
			return fbHandle, nil
		}
	}

	fbHandle, err := r.device.CreateFramebuffer(size, colorAttachments, depthAttachment)
	if err != nil {
		core.LogError("failed to create framebuffer: %s", err)
		return containers.InvalidHandle[metadata.Framebuffer](), err
	}
	r.framebuffers = append(r.framebuffers, fbHandle)
	return fbHandle, nil
}

// EndFrame retires the completed frame: every virtual descriptor becomes
// invalid, every image is unbound so the next frame's resolution can reuse
// it, and owned images unused for more than the eviction window are
// destroyed together with any framebuffer referencing them.
func (r *ResourceRegistry) EndFrame(frameIndex uint64) {
	r.textureDescs.Clear()

	for handle, info := range r.images {
		info.resolvedDesc = containers.InvalidHandle[metadata.TextureDesc]()

		if info.owned && info.lastFrameUsed+r.evictionWindow < frameIndex {
			core.LogDebug("evicting image %q unused since frame %d", r.device.Image(handle).Name, info.lastFrameUsed)
			r.dropFramebuffersReferencing(handle)
			r.device.DestroyImage(handle)
			delete(r.images, handle)
		}
	}

	r.currentFrame = frameIndex + 1
}

// Destroy releases everything the registry owns. The device must be idle.
func (r *ResourceRegistry) Destroy() {
	for _, fbHandle := range r.framebuffers {
		r.device.DestroyFramebuffer(fbHandle)
	}
	r.framebuffers = nil

	for handle, info := range r.images {
		if info.owned {
			r.device.DestroyImage(handle)
		}
		delete(r.images, handle)
	}
	r.textureDescs.Clear()
}

func (r *ResourceRegistry) dropFramebuffersReferencing(imageHandle containers.Handle[metadata.Image]) {
	kept := r.framebuffers[:0]
	for _, fbHandle := range r.framebuffers {
		fb := r.device.Framebuffer(fbHandle)
		references := fb.DepthAttachment == imageHandle
		for _, color := range fb.ColorAttachments {
			if color == imageHandle {
				references = true
				break
			}
		}
		if references {
			r.device.DestroyFramebuffer(fbHandle)
		} else {
			kept = append(kept, fbHandle)
		}
	}
	r.framebuffers = kept
}
