package rendergraph

import (
	"fmt"

	"github.com/spaghettifunk/vapor/engine/containers"
	vmath "github.com/spaghettifunk/vapor/engine/math"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

type RingBufferSpec struct {
	Name             string
	Usage            metadata.BufferUsageFlags
	FrameQueueLength int
	BufferSize       int
}

// RingBuffer is a per-frame linear allocator over one persistently mapped
// host-visible buffer, multiplexed across the frames in flight. Each frame
// gets a disjoint window of the buffer; the checkpoint recorded at StartFrame
// is the only synchronization between the CPU writer and the GPU reader, so
// there is no fence wait per allocation.
type RingBuffer struct {
	spec   RingBufferSpec
	Buffer containers.Handle[metadata.Buffer]

	memory      []byte
	cursor      int
	frameIndex  uint64
	frameStarts []int // one checkpoint per frame-in-flight slot, -1 until recorded
}

func NewRingBuffer(device Device, spec RingBufferSpec) (*RingBuffer, error) {
	if spec.FrameQueueLength < 1 {
		return nil, fmt.Errorf("ring buffer %q: frame queue length must be at least 1", spec.Name)
	}
	if spec.BufferSize < 1 {
		return nil, fmt.Errorf("ring buffer %q: buffer size must be positive", spec.Name)
	}

	buffer, err := device.CreateBuffer(metadata.BufferSpec{
		Size:        spec.BufferSize,
		Usage:       spec.Usage,
		MemoryUsage: metadata.MemoryUsageHostVisible,
	})
	if err != nil {
		return nil, err
	}

	memory, err := device.MapBuffer(buffer)
	if err != nil {
		return nil, err
	}

	frameStarts := make([]int, spec.FrameQueueLength)
	for i := range frameStarts {
		frameStarts[i] = -1
	}

	return &RingBuffer{
		spec:        spec,
		Buffer:      buffer,
		memory:      memory,
		frameStarts: frameStarts,
	}, nil
}

// StartFrame records the current cursor as this frame's checkpoint. Must be
// called exactly once per executed frame, before any Allocate for that frame.
func (rb *RingBuffer) StartFrame() {
	rb.frameIndex++
	slot := rb.frameIndex % uint64(len(rb.frameStarts))
	rb.frameStarts[slot] = rb.cursor
}

// Allocate reserves size bytes aligned to alignment and returns the host
// slice to write through plus the GPU-visible byte offset for binding.
//
// The cursor wraps to 0 when the aligned write would run past the buffer
// end. An allocation whose region would cross the checkpoint of the oldest
// frame still possibly in flight means the buffer is too small for the
// working set of FrameQueueLength frames; continuing would let the CPU
// overwrite memory the GPU has not finished reading, so it panics.
func (rb *RingBuffer) Allocate(size, alignment int) ([]byte, uint32) {
	if size > len(rb.memory) {
		panic(fmt.Sprintf("ring buffer %q: allocation of %d bytes exceeds buffer capacity %d",
			rb.spec.Name, size, len(rb.memory)))
	}
	if alignment > 0 {
		rb.cursor = vmath.AlignUp(rb.cursor, alignment)
	}

	if rb.cursor+size > len(rb.memory) {
		rb.cursor = 0
	}

	frameSlots := len(rb.frameStarts)
	previousFrameStart := rb.frameStarts[(rb.frameIndex+uint64(frameSlots)-1)%uint64(frameSlots)]
	if previousFrameStart >= 0 &&
		rb.cursor < previousFrameStart &&
		rb.cursor+size > previousFrameStart {
		panic(fmt.Sprintf("ring buffer %q exhausted: %d bytes requested would overlap frame window at offset %d",
			rb.spec.Name, size, previousFrameStart))
	}

	offset := rb.cursor
	rb.cursor += size

	return rb.memory[offset : offset+size], uint32(offset)
}

// Size returns the total capacity in bytes.
func (rb *RingBuffer) Size() int {
	return len(rb.memory)
}

// Destroy releases the underlying GPU buffer.
func (rb *RingBuffer) Destroy(device Device) {
	if rb.Buffer.IsValid() {
		device.DestroyBuffer(rb.Buffer)
		rb.Buffer = containers.InvalidHandle[metadata.Buffer]()
		rb.memory = nil
	}
}
