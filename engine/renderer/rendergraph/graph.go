package rendergraph

import (
	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

// PassAPI groups everything a pass callback may touch: the device contract
// and the engine-owned per-frame ring buffers. It is threaded explicitly into
// every callback; there is no ambient device state.
type PassAPI struct {
	Device              Device
	UniformBuffer       *RingBuffer
	DynamicVertexBuffer *RingBuffer
	DynamicIndexBuffer  *RingBuffer
	UploadBuffer        *RingBuffer
}

// GraphicsPassFn records into a render pass the graph opened on the pass's
// color attachment. Viewport and scissor are already set to the resolved
// attachment size.
type GraphicsPassFn func(graph *RenderGraph, api *PassAPI, ctx GraphicsContext)

// RawPassFn records arbitrary work: compute dispatches, transitions, copies,
// uploads. Returning an error aborts the remainder of the frame.
type RawPassFn func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error

type passKind uint8

const (
	passKindGraphics passKind = iota
	passKindRaw
)

type pass struct {
	kind            passKind
	colorAttachment containers.Handle[metadata.TextureDesc]
	graphicsFn      GraphicsPassFn
	rawFn           RawPassFn
}

// RenderGraph is one logical frame's worth of rendering work: a flat,
// ordered list of passes over virtual texture descriptors. There is no
// dependency analysis or reordering; execution order is registration order
// and the caller is responsible for registering passes in a valid order.
// The pass list is consumed at Execute, so a graph is rebuilt every frame.
type RenderGraph struct {
	Resources *ResourceRegistry

	passes     []pass
	frameIndex uint64
}

func NewRenderGraph(device Device, evictionWindow uint64) *RenderGraph {
	return &RenderGraph{
		Resources: NewResourceRegistry(device, evictionWindow),
	}
}

// OutputImage declares a virtual render target for this frame.
func (g *RenderGraph) OutputImage(desc metadata.TextureDesc) containers.Handle[metadata.TextureDesc] {
	return g.Resources.AddTextureDesc(desc)
}

// ImageSize returns the concrete pixel size a descriptor resolves to.
func (g *RenderGraph) ImageSize(descHandle containers.Handle[metadata.TextureDesc]) [3]int32 {
	desc := g.Resources.TextureDesc(descHandle)
	return g.Resources.TextureDescSize(desc.Size)
}

// GraphicsPass queues a pass bound to exactly one color attachment. The
// executor resolves the attachment, opens a clear-to-black render pass
// around fn and closes it afterwards.
func (g *RenderGraph) GraphicsPass(colorAttachment containers.Handle[metadata.TextureDesc], fn GraphicsPassFn) {
	g.passes = append(g.passes, pass{
		kind:            passKindGraphics,
		colorAttachment: colorAttachment,
		graphicsFn:      fn,
	})
}

// RawPass queues a pass with full graph and device access.
func (g *RenderGraph) RawPass(fn RawPassFn) {
	g.passes = append(g.passes, pass{
		kind:  passKindRaw,
		rawFn: fn,
	})
}

func (g *RenderGraph) FrameIndex() uint64 {
	return g.frameIndex
}

// QueuedPasses returns how many passes are waiting for the next Execute.
func (g *RenderGraph) QueuedPasses() int {
	return len(g.passes)
}

// Execute records the whole frame into ctx in registration order. Passes are
// moved out of the graph before dispatch, enforcing build-fresh-every-frame.
// A failing raw pass aborts the remaining passes; the registry's frame
// bookkeeping still runs so the next frame starts from a consistent state,
// and none of the failed frame's work is retried.
func (g *RenderGraph) Execute(api *PassAPI, ctx GraphicsContext) error {
	if err := ctx.Begin(); err != nil {
		return err
	}

	// Consume all passes.
	passes := g.passes
	g.passes = nil

	var execErr error
	for i := range passes {
		p := &passes[i]
		switch p.kind {
		case passKindGraphics:
			execErr = g.executeGraphicsPass(p, api, ctx)
		case passKindRaw:
			execErr = p.rawFn(g, api, ctx)
		}
		if execErr != nil {
			core.LogError("pass %d of frame %d failed, aborting frame: %s", i, g.frameIndex, execErr)
			break
		}
	}

	g.Resources.EndFrame(g.frameIndex)
	g.frameIndex++

	return execErr
}

func (g *RenderGraph) executeGraphicsPass(p *pass, api *PassAPI, ctx GraphicsContext) error {
	desc := g.Resources.TextureDesc(p.colorAttachment)
	outputSize := g.Resources.TextureDescSize(desc.Size)

	outputImage, err := g.Resources.ResolveImage(p.colorAttachment)
	if err != nil {
		return err
	}

	framebuffer, err := g.Resources.ResolveFramebuffer(
		[]containers.Handle[metadata.TextureDesc]{p.colorAttachment},
		containers.InvalidHandle[metadata.TextureDesc](),
	)
	if err != nil {
		return err
	}

	ctx.Barrier(outputImage, metadata.ImageStateColorAttachment)

	if err := ctx.BeginRenderPass(framebuffer, []metadata.LoadOp{
		metadata.LoadOpClearedColor(0.0, 0.0, 0.0, 1.0),
	}); err != nil {
		return err
	}

	ctx.SetViewport(metadata.Viewport{
		Width:    float32(outputSize[0]),
		Height:   float32(outputSize[1]),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	})
	ctx.SetScissor(metadata.Rect2D{
		Extent: metadata.Extent2D{
			Width:  uint32(outputSize[0]),
			Height: uint32(outputSize[1]),
		},
	})

	p.graphicsFn(g, api, ctx)

	ctx.EndRenderPass()
	return nil
}
