package rendergraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

func TestSwapchainPassBindsAcquiredImage(t *testing.T) {
	device, graph, api := newTestGraph()
	surface := newMockSurface(device, 3, 1024, 768)
	pass := NewSwapchainPass(surface)

	output := pass.AcquireNextImage(graph)

	// Descs die with the frame, so the binding is checked from inside it.
	graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
		assert.Equal(t, surface.CurrentImage(), graph.Resources.TextureDesc(output).ResolvedImage)
		return nil
	})

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)
	require.NoError(t, graph.Execute(api, ctx))

	// The pass published the surface size and never recreated.
	assert.Equal(t, [2]float32{1024, 768}, graph.Resources.ScreenSize())
	assert.Equal(t, 0, surface.recreates)
}

func TestSwapchainPassRecreatesWhileOutdated(t *testing.T) {
	device, graph, api := newTestGraph()
	surface := newMockSurface(device, 2, 640, 480)
	surface.outdatedAcquires = 2
	pass := NewSwapchainPass(surface)

	pass.AcquireNextImage(graph)

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)
	require.NoError(t, graph.Execute(api, ctx))

	assert.Equal(t, 2, surface.recreates)
	assert.Equal(t, 2, device.waitIdles)
}

func TestSwapchainPassPresentSequence(t *testing.T) {
	device, graph, api := newTestGraph()
	surface := newMockSurface(device, 2, 640, 480)
	pass := NewSwapchainPass(surface)

	output := pass.AcquireNextImage(graph)
	graph.GraphicsPass(output, func(graph *RenderGraph, api *PassAPI, ctx GraphicsContext) {})
	pass.Present(graph, 7)

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)
	mock := ctx.(*mockContext)
	require.NoError(t, graph.Execute(api, ctx))

	// Recording closes inside the present pass, then the frame is submitted
	// with the caller's signal value and handed to the platform.
	assert.Equal(t, 1, mock.ended)
	assert.Equal(t, []uint64{7}, device.submits)
	assert.Equal(t, 1, surface.presents)

	// The acquired image went attachment -> present.
	require.Len(t, mock.barriers, 2)
	assert.Equal(t, metadata.ImageStateColorAttachment, mock.barriers[0].next)
	assert.Equal(t, metadata.ImageStatePresent, mock.barriers[1].next)
	assert.Equal(t, surface.CurrentImage(), mock.barriers[1].image)
	assert.Equal(t, metadata.ImageStatePresent, device.Image(surface.CurrentImage()).State)
}

func TestSwapchainPassFullFrameBarrierOrder(t *testing.T) {
	device, graph, api := newTestGraph()
	surface := newMockSurface(device, 2, 640, 480)
	pass := NewSwapchainPass(surface)

	output := pass.AcquireNextImage(graph)
	graph.GraphicsPass(output, func(graph *RenderGraph, api *PassAPI, ctx GraphicsContext) {})
	pass.Present(graph, 0)

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)
	mock := ctx.(*mockContext)
	require.NoError(t, graph.Execute(api, ctx))

	assert.Equal(t, []string{
		"barrier(ColorAttachment)",
		"beginRenderPass",
		"setViewport",
		"setScissor",
		"endRenderPass",
		"barrier(Present)",
	}, mock.commands)
}
