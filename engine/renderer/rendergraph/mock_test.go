package rendergraph

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

// mockDevice implements Device in memory. It records lifecycle and command
// events so tests can assert on exact sequences.
type mockDevice struct {
	images       *containers.Pool[metadata.Image]
	buffers      *containers.Pool[metadata.Buffer]
	framebuffers *containers.Pool[metadata.Framebuffer]
	shaders      *containers.Pool[metadata.Shader]

	imagesCreated         int
	imagesDestroyed       int
	framebuffersCreated   int
	framebuffersDestroyed int

	// fenceWaits records every WaitForFrame value in order.
	fenceWaits []uint64
	submits    []uint64
	waitIdles  int

	failCreateImage bool
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		images:       containers.NewPool[metadata.Image](),
		buffers:      containers.NewPool[metadata.Buffer](),
		framebuffers: containers.NewPool[metadata.Framebuffer](),
		shaders:      containers.NewPool[metadata.Shader](),
	}
}

func (d *mockDevice) CreateImage(spec metadata.ImageSpec) (containers.Handle[metadata.Image], error) {
	if d.failCreateImage {
		return containers.InvalidHandle[metadata.Image](), fmt.Errorf("image creation failed")
	}
	d.imagesCreated++
	return d.images.Add(metadata.Image{Spec: spec, State: metadata.ImageStateNull}), nil
}

func (d *mockDevice) DestroyImage(handle containers.Handle[metadata.Image]) {
	d.imagesDestroyed++
	d.images.Remove(handle)
}

func (d *mockDevice) Image(handle containers.Handle[metadata.Image]) *metadata.Image {
	return d.images.Get(handle)
}

func (d *mockDevice) CreateBuffer(spec metadata.BufferSpec) (containers.Handle[metadata.Buffer], error) {
	return d.buffers.Add(metadata.Buffer{
		Spec:         spec,
		InternalData: make([]byte, spec.Size),
	}), nil
}

func (d *mockDevice) DestroyBuffer(handle containers.Handle[metadata.Buffer]) {
	d.buffers.Remove(handle)
}

func (d *mockDevice) Buffer(handle containers.Handle[metadata.Buffer]) *metadata.Buffer {
	return d.buffers.Get(handle)
}

func (d *mockDevice) MapBuffer(handle containers.Handle[metadata.Buffer]) ([]byte, error) {
	return d.buffers.Get(handle).InternalData.([]byte), nil
}

func (d *mockDevice) CreateFramebuffer(size [3]int32, colorAttachments []containers.Handle[metadata.Image], depthAttachment containers.Handle[metadata.Image]) (containers.Handle[metadata.Framebuffer], error) {
	d.framebuffersCreated++
	colors := make([]containers.Handle[metadata.Image], len(colorAttachments))
	copy(colors, colorAttachments)
	return d.framebuffers.Add(metadata.Framebuffer{
		ColorAttachments: colors,
		DepthAttachment:  depthAttachment,
		Size:             size,
	}), nil
}

func (d *mockDevice) DestroyFramebuffer(handle containers.Handle[metadata.Framebuffer]) {
	d.framebuffersDestroyed++
	d.framebuffers.Remove(handle)
}

func (d *mockDevice) Framebuffer(handle containers.Handle[metadata.Framebuffer]) *metadata.Framebuffer {
	return d.framebuffers.Get(handle)
}

func (d *mockDevice) CreateShader(name string, code []byte) (containers.Handle[metadata.Shader], error) {
	return d.shaders.Add(metadata.Shader{Name: name, Code: code}), nil
}

func (d *mockDevice) DestroyShader(handle containers.Handle[metadata.Shader]) {
	d.shaders.Remove(handle)
}

func (d *mockDevice) Shader(handle containers.Handle[metadata.Shader]) *metadata.Shader {
	return d.shaders.Get(handle)
}

func (d *mockDevice) GraphicsContext() (GraphicsContext, error) {
	return &mockContext{device: d}, nil
}

func (d *mockDevice) Submit(ctx CommandContext, signalValue uint64) error {
	d.submits = append(d.submits, signalValue)
	return nil
}

func (d *mockDevice) WaitForFrame(value uint64, timeout time.Duration) error {
	d.fenceWaits = append(d.fenceWaits, value)
	return nil
}

func (d *mockDevice) WaitIdle() error {
	d.waitIdles++
	return nil
}

// barrierRecord captures one Barrier call with both derived access halves.
type barrierRecord struct {
	image containers.Handle[metadata.Image]
	next  metadata.ImageState
	src   metadata.ImageAccess
	dst   metadata.ImageAccess
}

// mockContext implements GraphicsContext and records every command by name.
type mockContext struct {
	device *mockDevice

	began    int
	ended    int
	commands []string
	barriers []barrierRecord
}

func (c *mockContext) Begin() error {
	c.began++
	return nil
}

func (c *mockContext) End() error {
	c.ended++
	return nil
}

func (c *mockContext) Barrier(image containers.Handle[metadata.Image], next metadata.ImageState) {
	src, dst := TransitionImage(c.device, image, next)
	c.barriers = append(c.barriers, barrierRecord{image: image, next: next, src: src, dst: dst})
	c.commands = append(c.commands, fmt.Sprintf("barrier(%s)", next))
}

func (c *mockContext) CopyImage(src, dst containers.Handle[metadata.Image]) {
	c.commands = append(c.commands, "copyImage")
}

func (c *mockContext) BlitImage(src, dst containers.Handle[metadata.Image]) {
	c.commands = append(c.commands, "blitImage")
}

func (c *mockContext) CopyBufferToImage(buffer containers.Handle[metadata.Buffer], bufferOffset uint32, image containers.Handle[metadata.Image]) {
	c.commands = append(c.commands, fmt.Sprintf("copyBufferToImage(%d)", bufferOffset))
}

func (c *mockContext) Dispatch(groupsX, groupsY, groupsZ uint32) {
	c.commands = append(c.commands, "dispatch")
}

func (c *mockContext) BeginRenderPass(framebuffer containers.Handle[metadata.Framebuffer], loadOps []metadata.LoadOp) error {
	c.commands = append(c.commands, "beginRenderPass")
	return nil
}

func (c *mockContext) EndRenderPass() {
	c.commands = append(c.commands, "endRenderPass")
}

func (c *mockContext) SetViewport(viewport metadata.Viewport) {
	c.commands = append(c.commands, "setViewport")
}

func (c *mockContext) SetScissor(scissor metadata.Rect2D) {
	c.commands = append(c.commands, "setScissor")
}

func (c *mockContext) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.commands = append(c.commands, "draw")
}

// mockSurface implements Surface over registry-external mock images.
type mockSurface struct {
	device *mockDevice

	images       []containers.Handle[metadata.Image]
	currentIndex int
	size         [2]uint32

	// outdatedAcquires makes the next N acquires report outdated.
	outdatedAcquires int
	recreates        int
	presents         int
	presentOutdated  bool
}

func newMockSurface(device *mockDevice, imageCount int, width, height uint32) *mockSurface {
	s := &mockSurface{device: device, size: [2]uint32{width, height}}
	s.createImages(imageCount)
	return s
}

func (s *mockSurface) createImages(count int) {
	s.images = make([]containers.Handle[metadata.Image], count)
	for i := range s.images {
		s.images[i] = s.device.images.Add(metadata.Image{
			Name: fmt.Sprintf("surface image %d", i),
			Spec: metadata.ImageSpec{
				Size:      [3]int32{int32(s.size[0]), int32(s.size[1]), 1},
				MipLevels: 1,
				ImageType: metadata.ImageType2D,
				Format:    metadata.FormatB8G8R8A8Unorm,
				Samples:   metadata.SampleCount1Bit,
				Usage:     metadata.ImageUsageColorAttachment,
			},
			State: metadata.ImageStateNull,
		})
	}
}

func (s *mockSurface) AcquireNextImage() (bool, error) {
	if s.outdatedAcquires > 0 {
		s.outdatedAcquires--
		return true, nil
	}
	s.currentIndex = (s.currentIndex + 1) % len(s.images)
	return false, nil
}

func (s *mockSurface) CurrentImage() containers.Handle[metadata.Image] {
	return s.images[s.currentIndex]
}

func (s *mockSurface) Images() []containers.Handle[metadata.Image] {
	return s.images
}

func (s *mockSurface) Size() [2]uint32 {
	return s.size
}

func (s *mockSurface) Recreate() error {
	s.recreates++
	count := len(s.images)
	for _, h := range s.images {
		s.device.images.Remove(h)
	}
	s.createImages(count)
	return nil
}

func (s *mockSurface) Present() (bool, error) {
	s.presents++
	return s.presentOutdated, nil
}
