package rendergraph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

func newTestGraph() (*mockDevice, *RenderGraph, *PassAPI) {
	device := newMockDevice()
	graph := NewRenderGraph(device, DefaultEvictionWindow)
	graph.Resources.SetScreenSize(800, 600)
	return device, graph, &PassAPI{Device: device}
}

func TestGraphExecutesPassesInRegistrationOrder(t *testing.T) {
	device, graph, api := newTestGraph()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
			order = append(order, i)
			return nil
		})
	}

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)
	require.NoError(t, graph.Execute(api, ctx))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestGraphDrainsPassesOnExecute(t *testing.T) {
	device, graph, api := newTestGraph()

	ran := 0
	graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
		ran++
		return nil
	})
	assert.Equal(t, 1, graph.QueuedPasses())

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)
	require.NoError(t, graph.Execute(api, ctx))
	assert.Equal(t, 0, graph.QueuedPasses())

	// A second execute has nothing to run; the pass is consumed for good.
	require.NoError(t, graph.Execute(api, ctx))
	assert.Equal(t, 1, ran)
}

func TestGraphRawPassErrorAbortsFrame(t *testing.T) {
	device, graph, api := newTestGraph()

	failure := fmt.Errorf("pass blew up")
	var reached bool
	graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
		return failure
	})
	graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
		reached = true
		return nil
	})

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)

	err = graph.Execute(api, ctx)
	assert.ErrorIs(t, err, failure)
	assert.False(t, reached)

	// The frame still retires so the next one starts consistent.
	assert.Equal(t, uint64(1), graph.FrameIndex())
	assert.Equal(t, 0, graph.QueuedPasses())
}

func TestGraphGraphicsPassCommandSequence(t *testing.T) {
	device, graph, api := newTestGraph()

	output := graph.OutputImage(metadata.NewTextureDesc("color", metadata.AbsoluteSize(128, 128, 1)))

	drew := false
	graph.GraphicsPass(output, func(graph *RenderGraph, api *PassAPI, ctx GraphicsContext) {
		drew = true
		ctx.Draw(3, 1, 0, 0)
	})

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)
	mock := ctx.(*mockContext)
	require.NoError(t, graph.Execute(api, ctx))

	assert.True(t, drew)
	assert.Equal(t, []string{
		"barrier(ColorAttachment)",
		"beginRenderPass",
		"setViewport",
		"setScissor",
		"draw",
		"endRenderPass",
	}, mock.commands)
	assert.Equal(t, 1, mock.began)
}

func TestGraphImageSize(t *testing.T) {
	_, graph, _ := newTestGraph()

	absolute := graph.OutputImage(metadata.NewTextureDesc("fixed", metadata.AbsoluteSize(64, 32, 1)))
	assert.Equal(t, [3]int32{64, 32, 1}, graph.ImageSize(absolute))

	relative := graph.OutputImage(metadata.NewTextureDesc("screen", metadata.ScreenRelativeSize(0.5, 0.5)))
	assert.Equal(t, [3]int32{400, 300, 1}, graph.ImageSize(relative))
}

func TestBarrierStateMachineAccessTriples(t *testing.T) {
	device, graph, api := newTestGraph()

	desc := graph.OutputImage(metadata.NewTextureDesc("tracked", metadata.AbsoluteSize(8, 8, 1)).
		WithUsage(metadata.ImageUsageTransferSrc | metadata.ImageUsageTransferDst |
			metadata.ImageUsageStorage | metadata.ImageUsageColorAttachment))

	states := []metadata.ImageState{
		metadata.ImageStateTransferDst,
		metadata.ImageStateComputeShaderReadWrite,
		metadata.ImageStateColorAttachment,
		metadata.ImageStatePresent,
	}

	graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
		image, err := graph.Resources.ResolveImage(desc)
		if err != nil {
			return err
		}
		for _, state := range states {
			ctx.Barrier(image, state)
		}
		return nil
	})

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)
	mock := ctx.(*mockContext)
	require.NoError(t, graph.Execute(api, ctx))
	require.Len(t, mock.barriers, len(states))

	// Every barrier's source half is the previous state's source triple and
	// its destination half the new state's destination triple.
	previous := metadata.ImageStateNull
	for i, state := range states {
		assert.Equal(t, previous.SrcAccess(), mock.barriers[i].src, "barrier %d src", i)
		assert.Equal(t, state.DstAccess(), mock.barriers[i].dst, "barrier %d dst", i)
		previous = state
	}

	// Spot-check the first transition against the fixed tables.
	assert.Equal(t, metadata.ImageAccess{
		Stage:  metadata.PipelineStageBottomOfPipe,
		Access: metadata.AccessNone,
		Layout: metadata.ImageLayoutUndefined,
	}, mock.barriers[0].src)
	assert.Equal(t, metadata.ImageAccess{
		Stage:  metadata.PipelineStageTransfer,
		Access: metadata.AccessTransferWrite,
		Layout: metadata.ImageLayoutTransferDstOptimal,
	}, mock.barriers[0].dst)
}

func TestCopyImagePanicsOnAliasedDescs(t *testing.T) {
	_, graph, _ := newTestGraph()
	desc := graph.OutputImage(metadata.NewTextureDesc("both", metadata.AbsoluteSize(8, 8, 1)))

	assert.Panics(t, func() { CopyImage(graph, desc, desc) })
	assert.Panics(t, func() { BlitImage(graph, desc, desc) })
}

func TestCopyImageBarriersAndCopies(t *testing.T) {
	device, graph, api := newTestGraph()

	input := graph.OutputImage(metadata.NewTextureDesc("input", metadata.AbsoluteSize(8, 8, 1)))
	output := graph.OutputImage(metadata.NewTextureDesc("output", metadata.AbsoluteSize(8, 8, 1)))
	CopyImage(graph, input, output)

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)
	mock := ctx.(*mockContext)
	require.NoError(t, graph.Execute(api, ctx))

	assert.Equal(t, []string{
		"barrier(TransferSrc)",
		"barrier(TransferDst)",
		"copyImage",
	}, mock.commands)
}

func TestUploadImageStagesThroughRing(t *testing.T) {
	device, graph, _ := newTestGraph()

	upload, err := NewRingBuffer(device, RingBufferSpec{
		Name:             "upload",
		Usage:            metadata.BufferUsageTransferSrc,
		FrameQueueLength: 2,
		BufferSize:       256,
	})
	require.NoError(t, err)
	upload.StartFrame()

	api := &PassAPI{Device: device, UploadBuffer: upload}

	pixels := []byte{9, 8, 7, 6}
	output := graph.OutputImage(metadata.NewTextureDesc("texture", metadata.AbsoluteSize(1, 1, 1)))
	UploadImage(graph, output, pixels)

	ctx, err := device.GraphicsContext()
	require.NoError(t, err)
	mock := ctx.(*mockContext)
	require.NoError(t, graph.Execute(api, ctx))

	assert.Equal(t, []string{
		"barrier(TransferDst)",
		"copyBufferToImage(0)",
	}, mock.commands)

	backing, err := device.MapBuffer(upload.Buffer)
	require.NoError(t, err)
	assert.Equal(t, pixels, backing[:4])
}
