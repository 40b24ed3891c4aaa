package renderer

import (
	"github.com/spaghettifunk/vapor/engine/config"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
	"github.com/spaghettifunk/vapor/engine/renderer/rendergraph"
)

// FrameBuilder declares one frame's passes against a fresh graph. It runs
// after the frame's ring windows have been opened; any pass it registers may
// allocate from the rings.
type FrameBuilder func(graph *rendergraph.RenderGraph, api *rendergraph.PassAPI, frameIndex uint64) error

// Renderer drives the per-frame loop over any Device implementation: it
// recycles the frame slot that is frameQueueLength frames behind, opens the
// ring buffer windows, lets the caller build the graph and executes it into
// the device's recording context for the slot.
type Renderer struct {
	device rendergraph.Device
	graph  *rendergraph.RenderGraph

	uniformBuffer       *rendergraph.RingBuffer
	dynamicVertexBuffer *rendergraph.RingBuffer
	dynamicIndexBuffer  *rendergraph.RingBuffer
	uploadBuffer        *rendergraph.RingBuffer

	cfg        config.RendererConfig
	frameIndex uint64
}

func New(device rendergraph.Device, cfg config.RendererConfig) (*Renderer, error) {
	r := &Renderer{
		device: device,
		graph:  rendergraph.NewRenderGraph(device, cfg.EvictionWindow),
		cfg:    cfg,
	}

	rings := []struct {
		target **rendergraph.RingBuffer
		name   string
		usage  metadata.BufferUsageFlags
		size   int
	}{
		{&r.uniformBuffer, "uniform ring", metadata.BufferUsageUniformBuffer, cfg.UniformBufferSize},
		{&r.dynamicVertexBuffer, "dynamic vertex ring", metadata.BufferUsageVertexBuffer, cfg.DynamicVertexBufferSize},
		{&r.dynamicIndexBuffer, "dynamic index ring", metadata.BufferUsageIndexBuffer, cfg.DynamicIndexBufferSize},
		{&r.uploadBuffer, "upload ring", metadata.BufferUsageTransferSrc, cfg.UploadBufferSize},
	}
	for _, ring := range rings {
		rb, err := rendergraph.NewRingBuffer(device, rendergraph.RingBufferSpec{
			Name:             ring.name,
			Usage:            ring.usage,
			FrameQueueLength: cfg.FrameQueueLength,
			BufferSize:       ring.size,
		})
		if err != nil {
			core.LogError("failed to create %s: %s", ring.name, err)
			r.Shutdown()
			return nil, err
		}
		*ring.target = rb
	}

	core.LogInfo("renderer initialized: %d frames in flight, eviction window %d",
		cfg.FrameQueueLength, cfg.EvictionWindow)
	return r, nil
}

// Graph exposes the renderer's graph, mainly so callers can pre-register
// resources outside DrawFrame.
func (r *Renderer) Graph() *rendergraph.RenderGraph {
	return r.graph
}

func (r *Renderer) FrameIndex() uint64 {
	return r.frameIndex
}

// DrawFrame runs one frame: wait for the slot being recycled, open the ring
// windows, build, execute. Submission and presentation are the graph's job
// (normally via SwapchainPass.Present); a frame whose build registers no
// submitting pass records work that is never handed to the GPU.
func (r *Renderer) DrawFrame(build FrameBuilder) error {
	queueLength := uint64(r.cfg.FrameQueueLength)
	if r.frameIndex >= queueLength {
		recycled := r.frameIndex - queueLength
		if err := r.device.WaitForFrame(recycled, r.cfg.FenceTimeout()); err != nil {
			core.LogError("fence wait for frame %d failed: %s", recycled, err)
			return err
		}
	}

	r.uniformBuffer.StartFrame()
	r.dynamicVertexBuffer.StartFrame()
	r.dynamicIndexBuffer.StartFrame()
	r.uploadBuffer.StartFrame()

	api := &rendergraph.PassAPI{
		Device:              r.device,
		UniformBuffer:       r.uniformBuffer,
		DynamicVertexBuffer: r.dynamicVertexBuffer,
		DynamicIndexBuffer:  r.dynamicIndexBuffer,
		UploadBuffer:        r.uploadBuffer,
	}

	if err := build(r.graph, api, r.frameIndex); err != nil {
		return err
	}

	ctx, err := r.device.GraphicsContext()
	if err != nil {
		return err
	}

	if err := r.graph.Execute(api, ctx); err != nil {
		return err
	}

	r.frameIndex++
	return nil
}

// Shutdown waits for the device to go idle and releases everything the
// renderer owns.
func (r *Renderer) Shutdown() {
	if err := r.device.WaitIdle(); err != nil {
		core.LogWarn("wait idle during shutdown failed: %s", err)
	}

	for _, rb := range []*rendergraph.RingBuffer{
		r.uniformBuffer, r.dynamicVertexBuffer, r.dynamicIndexBuffer, r.uploadBuffer,
	} {
		if rb != nil {
			rb.Destroy(r.device)
		}
	}

	if r.graph != nil {
		r.graph.Resources.Destroy()
	}
}
