package shaders

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
	"github.com/spaghettifunk/vapor/engine/renderer/rendergraph"
)

const reloadQueueSize = 64

type ShaderInfo struct {
	ID         uuid.UUID
	Path       string
	Handle     containers.Handle[metadata.Shader]
	LastLoaded time.Time
}

// Manager loads compiled SPIR-V binaries and hot-reloads them when the files
// change on disk. Reloads are queued by the watcher goroutine and applied on
// the render thread via ProcessReloads, so shader modules are never swapped
// while a frame references them.
type Manager struct {
	device  rendergraph.Device
	shaders map[string]*ShaderInfo

	mutex sync.RWMutex

	fsnotify *fsnotify.Watcher
	pending  *containers.RingQueue[string]
	done     chan struct{}
	isClosed bool
}

func NewManager(device rendergraph.Device) (*Manager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Manager{
		device:   device,
		shaders:  make(map[string]*ShaderInfo),
		fsnotify: fsWatch,
		pending:  containers.NewRingQueue[string](reloadQueueSize),
		done:     make(chan struct{}),
	}, nil
}

// Initialize loads every shader binary under shadersDir and starts watching
// the directory for changes.
func (m *Manager) Initialize(shadersDir string) error {
	err := filepath.Walk(shadersDir, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return m.fsnotify.Add(walkPath)
		}
		if filepath.Ext(walkPath) == ".spv" {
			if _, err := m.load(walkPath); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	go m.start()
	return nil
}

// Get returns the shader module handle for a shader name, the file name
// without the .spv extension.
func (m *Manager) Get(name string) (containers.Handle[metadata.Shader], error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, info := range m.shaders {
		if shaderName(info.Path) == name {
			return info.Handle, nil
		}
	}
	return containers.InvalidHandle[metadata.Shader](), fmt.Errorf("shader not found: %s", name)
}

// ProcessReloads applies queued file changes. Call it between frames, after
// the device is known to be idle on the affected modules.
func (m *Manager) ProcessReloads() {
	for {
		m.mutex.Lock()
		path, err := m.pending.Dequeue()
		m.mutex.Unlock()
		if err != nil {
			return
		}
		if _, err := m.load(path); err != nil {
			core.LogError("shader reload failed for %s: %s", path, err)
		}
	}
}

func (m *Manager) load(path string) (*ShaderInfo, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		core.LogError("failed to read shader %s: %s", path, err)
		return nil, err
	}
	if len(code) == 0 || len(code)%4 != 0 {
		err := fmt.Errorf("shader %s is not valid SPIR-V", path)
		core.LogError(err.Error())
		return nil, err
	}

	handle, err := m.device.CreateShader(shaderName(path), code)
	if err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	info, exists := m.shaders[path]
	if exists {
		// Replace the module, the identity stays stable across reloads.
		m.device.DestroyShader(info.Handle)
		info.Handle = handle
		info.LastLoaded = time.Now()
		core.LogInfo("shader reloaded: %s", shaderName(path))
		return info, nil
	}

	info = &ShaderInfo{
		ID:         uuid.New(),
		Path:       path,
		Handle:     handle,
		LastLoaded: time.Now(),
	}
	m.shaders[path] = info
	core.LogDebug("shader loaded: %s (%s)", shaderName(path), info.ID)
	return info, nil
}

func (m *Manager) start() {
	for {
		select {
		case e := <-m.fsnotify.Events:
			if filepath.Ext(e.Name) != ".spv" {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				m.mutex.Lock()
				if err := m.pending.Enqueue(e.Name); err != nil {
					core.LogWarn("shader reload queue full, dropping %s", e.Name)
				}
				m.mutex.Unlock()
			}
			if e.Op&fsnotify.Remove != 0 {
				m.forget(e.Name)
			}

		case e := <-m.fsnotify.Errors:
			core.LogError(e.Error())

		case <-m.done:
			m.fsnotify.Close()
			return
		}
	}
}

// forget drops the bookkeeping for a deleted file. The module itself stays
// alive until Shutdown since in-flight frames may still reference it.
func (m *Manager) forget(path string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.shaders, path)
}

func (m *Manager) Shutdown() {
	if m.isClosed {
		return
	}
	m.isClosed = true
	close(m.done)

	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, info := range m.shaders {
		m.device.DestroyShader(info.Handle)
	}
	m.shaders = make(map[string]*ShaderInfo)
}

func shaderName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
