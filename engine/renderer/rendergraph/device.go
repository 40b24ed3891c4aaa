package rendergraph

import (
	"time"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

// Device is the graph's contract with the GPU object provider. Backends own
// the pools; the graph and registry only ever hold handles, so destruction
// stays centralized and single-writer.
type Device interface {
	CreateImage(spec metadata.ImageSpec) (containers.Handle[metadata.Image], error)
	DestroyImage(handle containers.Handle[metadata.Image])
	Image(handle containers.Handle[metadata.Image]) *metadata.Image

	CreateBuffer(spec metadata.BufferSpec) (containers.Handle[metadata.Buffer], error)
	DestroyBuffer(handle containers.Handle[metadata.Buffer])
	Buffer(handle containers.Handle[metadata.Buffer]) *metadata.Buffer
	// MapBuffer returns the persistent host mapping of a host-visible buffer.
	MapBuffer(handle containers.Handle[metadata.Buffer]) ([]byte, error)

	CreateFramebuffer(size [3]int32, colorAttachments []containers.Handle[metadata.Image], depthAttachment containers.Handle[metadata.Image]) (containers.Handle[metadata.Framebuffer], error)
	DestroyFramebuffer(handle containers.Handle[metadata.Framebuffer])
	Framebuffer(handle containers.Handle[metadata.Framebuffer]) *metadata.Framebuffer

	CreateShader(name string, code []byte) (containers.Handle[metadata.Shader], error)
	DestroyShader(handle containers.Handle[metadata.Shader])
	Shader(handle containers.Handle[metadata.Shader]) *metadata.Shader

	// GraphicsContext returns the recording context for the current frame
	// slot. A frame's entire pass list records into this single context.
	GraphicsContext() (GraphicsContext, error)

	// Submit hands the recorded context to the GPU, signaling the per-frame
	// sync primitive with signalValue (the frame index) on completion.
	Submit(ctx CommandContext, signalValue uint64) error

	// WaitForFrame blocks until the work submitted with signal value has
	// completed, up to timeout. Expiry is unrecoverable for the frame driver.
	WaitForFrame(value uint64, timeout time.Duration) error

	WaitIdle() error
}

// CommandContext records generic, compute-capable GPU work.
type CommandContext interface {
	Begin() error
	End() error

	// Barrier transitions image into next, deriving the source half of the
	// pipeline barrier from the image's currently stored state and then
	// overwriting that state. Recording is single-threaded and in pass
	// order, so this CPU-side tracking matches GPU execution order.
	Barrier(image containers.Handle[metadata.Image], next metadata.ImageState)

	CopyImage(src, dst containers.Handle[metadata.Image])
	BlitImage(src, dst containers.Handle[metadata.Image])
	CopyBufferToImage(buffer containers.Handle[metadata.Buffer], bufferOffset uint32, image containers.Handle[metadata.Image])
	Dispatch(groupsX, groupsY, groupsZ uint32)
}

// GraphicsContext extends CommandContext with render-pass scoped recording.
type GraphicsContext interface {
	CommandContext

	BeginRenderPass(framebuffer containers.Handle[metadata.Framebuffer], loadOps []metadata.LoadOp) error
	EndRenderPass()
	SetViewport(viewport metadata.Viewport)
	SetScissor(scissor metadata.Rect2D)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
}

// Surface is the platform presentation contract consumed by SwapchainPass.
type Surface interface {
	// AcquireNextImage obtains the next presentable image. outdated=true
	// means the swapchain must be recreated and acquisition retried.
	AcquireNextImage() (outdated bool, err error)
	CurrentImage() containers.Handle[metadata.Image]
	// Images lists every image backing the swapchain, for dropping registry
	// bindings on recreation.
	Images() []containers.Handle[metadata.Image]
	Size() [2]uint32
	Recreate() error
	// Present queues the current image for presentation. outdated is an
	// expected transient, not an error.
	Present() (outdated bool, err error)
}

// TransitionImage computes both halves of the barrier for moving image into
// next and commits next as the image's stored state. Context implementations
// emit the returned accesses as their native pipeline barrier.
func TransitionImage(device Device, image containers.Handle[metadata.Image], next metadata.ImageState) (src, dst metadata.ImageAccess) {
	img := device.Image(image)
	src = img.State.SrcAccess()
	dst = next.DstAccess()
	img.State = next
	return src, dst
}
