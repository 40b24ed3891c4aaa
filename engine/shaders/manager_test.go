package shaders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
	"github.com/spaghettifunk/vapor/engine/renderer/rendergraph"
)

// shaderOnlyDevice implements just the shader surface of the Device
// contract; everything else panics through the nil embedded interface.
type shaderOnlyDevice struct {
	rendergraph.Device
	shaders *containers.Pool[metadata.Shader]
}

func newShaderOnlyDevice() *shaderOnlyDevice {
	return &shaderOnlyDevice{shaders: containers.NewPool[metadata.Shader]()}
}

func (d *shaderOnlyDevice) CreateShader(name string, code []byte) (containers.Handle[metadata.Shader], error) {
	return d.shaders.Add(metadata.Shader{Name: name, Code: code}), nil
}

func (d *shaderOnlyDevice) DestroyShader(handle containers.Handle[metadata.Shader]) {
	d.shaders.Remove(handle)
}

func (d *shaderOnlyDevice) Shader(handle containers.Handle[metadata.Shader]) *metadata.Shader {
	return d.shaders.Get(handle)
}

func writeSpv(t *testing.T, dir, name string, words int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, words*4), 0o644))
	return path
}

func TestManagerLoadsShadersOnInitialize(t *testing.T) {
	dir := t.TempDir()
	writeSpv(t, dir, "vert.spv", 8)
	writeSpv(t, dir, "frag.spv", 8)

	device := newShaderOnlyDevice()
	m, err := NewManager(device)
	require.NoError(t, err)
	defer m.Shutdown()

	require.NoError(t, m.Initialize(dir))

	handle, err := m.Get("vert")
	require.NoError(t, err)
	assert.Equal(t, "vert", device.Shader(handle).Name)
	assert.Equal(t, 2, device.shaders.Len())

	_, err = m.Get("missing")
	assert.Error(t, err)
}

func TestManagerRejectsInvalidSpirv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.spv")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	device := newShaderOnlyDevice()
	m, err := NewManager(device)
	require.NoError(t, err)
	defer m.Shutdown()

	assert.Error(t, m.Initialize(dir))
}

func TestManagerReloadKeepsIdentity(t *testing.T) {
	dir := t.TempDir()
	path := writeSpv(t, dir, "vert.spv", 8)

	device := newShaderOnlyDevice()
	m, err := NewManager(device)
	require.NoError(t, err)
	defer m.Shutdown()
	require.NoError(t, m.Initialize(dir))

	before := m.shaders[path]
	oldHandle := before.Handle
	oldID := before.ID

	// Rewrite the file and apply the reload directly; the fsnotify path
	// just feeds the same pending queue.
	require.NoError(t, os.WriteFile(path, make([]byte, 16*4), 0o644))
	m.mutex.Lock()
	require.NoError(t, m.pending.Enqueue(path))
	m.mutex.Unlock()
	m.ProcessReloads()

	after := m.shaders[path]
	assert.Equal(t, oldID, after.ID, "identity is stable across reloads")
	assert.NotEqual(t, oldHandle, after.Handle, "module is replaced")
	assert.False(t, device.shaders.Has(oldHandle))
	assert.Len(t, device.Shader(after.Handle).Code, 64)
}

func TestManagerShutdownReleasesModules(t *testing.T) {
	dir := t.TempDir()
	writeSpv(t, dir, "vert.spv", 8)

	device := newShaderOnlyDevice()
	m, err := NewManager(device)
	require.NoError(t, err)
	require.NoError(t, m.Initialize(dir))

	m.Shutdown()
	assert.Equal(t, 0, device.shaders.Len())
}
