package renderer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vapor/engine/config"
	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
	"github.com/spaghettifunk/vapor/engine/renderer/rendergraph"
)

// fakeDevice is the minimal in-memory Device for driving the frame loop.
type fakeDevice struct {
	images       *containers.Pool[metadata.Image]
	buffers      *containers.Pool[metadata.Buffer]
	framebuffers *containers.Pool[metadata.Framebuffer]
	shaders      *containers.Pool[metadata.Shader]

	imagesCreated int
	fenceWaits    []uint64
	submits       []uint64
	waitIdles     int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		images:       containers.NewPool[metadata.Image](),
		buffers:      containers.NewPool[metadata.Buffer](),
		framebuffers: containers.NewPool[metadata.Framebuffer](),
		shaders:      containers.NewPool[metadata.Shader](),
	}
}

func (d *fakeDevice) CreateImage(spec metadata.ImageSpec) (containers.Handle[metadata.Image], error) {
	d.imagesCreated++
	return d.images.Add(metadata.Image{Spec: spec, State: metadata.ImageStateNull}), nil
}

func (d *fakeDevice) DestroyImage(handle containers.Handle[metadata.Image]) {
	d.images.Remove(handle)
}

func (d *fakeDevice) Image(handle containers.Handle[metadata.Image]) *metadata.Image {
	return d.images.Get(handle)
}

func (d *fakeDevice) CreateBuffer(spec metadata.BufferSpec) (containers.Handle[metadata.Buffer], error) {
	return d.buffers.Add(metadata.Buffer{Spec: spec, InternalData: make([]byte, spec.Size)}), nil
}

func (d *fakeDevice) DestroyBuffer(handle containers.Handle[metadata.Buffer]) {
	d.buffers.Remove(handle)
}

func (d *fakeDevice) Buffer(handle containers.Handle[metadata.Buffer]) *metadata.Buffer {
	return d.buffers.Get(handle)
}

func (d *fakeDevice) MapBuffer(handle containers.Handle[metadata.Buffer]) ([]byte, error) {
	return d.buffers.Get(handle).InternalData.([]byte), nil
}

func (d *fakeDevice) CreateFramebuffer(size [3]int32, colorAttachments []containers.Handle[metadata.Image], depthAttachment containers.Handle[metadata.Image]) (containers.Handle[metadata.Framebuffer], error) {
	colors := make([]containers.Handle[metadata.Image], len(colorAttachments))
	copy(colors, colorAttachments)
	return d.framebuffers.Add(metadata.Framebuffer{
		ColorAttachments: colors,
		DepthAttachment:  depthAttachment,
		Size:             size,
	}), nil
}

func (d *fakeDevice) DestroyFramebuffer(handle containers.Handle[metadata.Framebuffer]) {
	d.framebuffers.Remove(handle)
}

func (d *fakeDevice) Framebuffer(handle containers.Handle[metadata.Framebuffer]) *metadata.Framebuffer {
	return d.framebuffers.Get(handle)
}

func (d *fakeDevice) CreateShader(name string, code []byte) (containers.Handle[metadata.Shader], error) {
	return d.shaders.Add(metadata.Shader{Name: name, Code: code}), nil
}

func (d *fakeDevice) DestroyShader(handle containers.Handle[metadata.Shader]) {
	d.shaders.Remove(handle)
}

func (d *fakeDevice) Shader(handle containers.Handle[metadata.Shader]) *metadata.Shader {
	return d.shaders.Get(handle)
}

func (d *fakeDevice) GraphicsContext() (rendergraph.GraphicsContext, error) {
	return &fakeContext{device: d}, nil
}

func (d *fakeDevice) Submit(ctx rendergraph.CommandContext, signalValue uint64) error {
	d.submits = append(d.submits, signalValue)
	return nil
}

func (d *fakeDevice) WaitForFrame(value uint64, timeout time.Duration) error {
	d.fenceWaits = append(d.fenceWaits, value)
	return nil
}

func (d *fakeDevice) WaitIdle() error {
	d.waitIdles++
	return nil
}

type fakeContext struct {
	device *fakeDevice
}

func (c *fakeContext) Begin() error { return nil }
func (c *fakeContext) End() error   { return nil }

func (c *fakeContext) Barrier(image containers.Handle[metadata.Image], next metadata.ImageState) {
	rendergraph.TransitionImage(c.device, image, next)
}

func (c *fakeContext) CopyImage(src, dst containers.Handle[metadata.Image]) {}
func (c *fakeContext) BlitImage(src, dst containers.Handle[metadata.Image]) {}
func (c *fakeContext) CopyBufferToImage(buffer containers.Handle[metadata.Buffer], bufferOffset uint32, image containers.Handle[metadata.Image]) {
}
func (c *fakeContext) Dispatch(groupsX, groupsY, groupsZ uint32) {}

func (c *fakeContext) BeginRenderPass(framebuffer containers.Handle[metadata.Framebuffer], loadOps []metadata.LoadOp) error {
	return nil
}
func (c *fakeContext) EndRenderPass()                                                 {}
func (c *fakeContext) SetViewport(viewport metadata.Viewport)                         {}
func (c *fakeContext) SetScissor(scissor metadata.Rect2D)                             {}
func (c *fakeContext) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {}

func testConfig() config.RendererConfig {
	cfg := config.Default().Renderer
	cfg.UniformBufferSize = 1 << 12
	cfg.DynamicVertexBufferSize = 1 << 12
	cfg.DynamicIndexBufferSize = 1 << 12
	cfg.UploadBufferSize = 1 << 12
	return cfg
}

func TestRendererFiveFrameLoop(t *testing.T) {
	device := newFakeDevice()
	r, err := New(device, testConfig())
	require.NoError(t, err)
	r.Graph().Resources.SetScreenSize(320, 240)

	framesBuilt := 0
	for frame := 0; frame < 5; frame++ {
		err := r.DrawFrame(func(graph *rendergraph.RenderGraph, api *rendergraph.PassAPI, frameIndex uint64) error {
			framesBuilt++

			// The same intermediate is redeclared every frame.
			output := graph.OutputImage(metadata.NewTextureDesc("scene color", metadata.AbsoluteSize(320, 240, 1)))
			graph.GraphicsPass(output, func(graph *rendergraph.RenderGraph, api *rendergraph.PassAPI, ctx rendergraph.GraphicsContext) {
				staging, _ := api.UniformBuffer.Allocate(64, 16)
				assert.Len(t, staging, 64)
			})

			graph.RawPass(func(graph *rendergraph.RenderGraph, api *rendergraph.PassAPI, ctx rendergraph.CommandContext) error {
				if err := ctx.End(); err != nil {
					return err
				}
				return api.Device.Submit(ctx, frameIndex)
			})
			return nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 5, framesBuilt)
	assert.Equal(t, uint64(5), r.FrameIndex())

	// With a queue length of 2, frames 0 and 1 start unthrottled; frames
	// 2..4 each recycle the slot two frames back.
	assert.Equal(t, []uint64{0, 1, 2}, device.fenceWaits)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, device.submits)

	// Redeclaring the identical intermediate allocated exactly one image.
	intermediates := device.imagesCreated
	assert.Equal(t, 1, intermediates)

	r.Shutdown()
	assert.Equal(t, 1, device.waitIdles)
	assert.Equal(t, 0, device.buffers.Len(), "ring buffers released")
}

func TestRendererBuildErrorStopsFrame(t *testing.T) {
	device := newFakeDevice()
	r, err := New(device, testConfig())
	require.NoError(t, err)

	buildErr := assert.AnError
	err = r.DrawFrame(func(graph *rendergraph.RenderGraph, api *rendergraph.PassAPI, frameIndex uint64) error {
		return buildErr
	})
	assert.ErrorIs(t, err, buildErr)
	assert.Equal(t, uint64(0), r.FrameIndex())
	r.Shutdown()
}
