package metadata

type BufferUsageFlags uint32

const (
	BufferUsageTransferSrc   BufferUsageFlags = 0x00000001
	BufferUsageTransferDst   BufferUsageFlags = 0x00000002
	BufferUsageUniformBuffer BufferUsageFlags = 0x00000010
	BufferUsageStorageBuffer BufferUsageFlags = 0x00000020
	BufferUsageIndexBuffer   BufferUsageFlags = 0x00000040
	BufferUsageVertexBuffer  BufferUsageFlags = 0x00000080
)

type MemoryUsage int

const (
	// MemoryUsageGPUOnly is device-local memory the host never touches.
	MemoryUsageGPUOnly MemoryUsage = iota
	// MemoryUsageHostVisible is mappable, coherent memory the CPU writes and
	// the GPU reads. Ring buffers require it.
	MemoryUsageHostVisible
)

type BufferSpec struct {
	Size        int
	Usage       BufferUsageFlags
	MemoryUsage MemoryUsage
}

// Buffer is a pool-owned GPU buffer. InternalData carries the backend's
// native buffer and allocation.
type Buffer struct {
	Name         string
	Spec         BufferSpec
	InternalData interface{}
}

// Shader is a pool-owned shader module. Code is the compiled binary as
// handed to the backend.
type Shader struct {
	Name         string
	Code         []byte
	InternalData interface{}
}
