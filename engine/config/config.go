package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/vapor/engine/core"
)

type ApplicationConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting width.
	Width uint32 `toml:"width"`
	// Window starting height.
	Height   uint32 `toml:"height"`
	LogLevel string `toml:"log_level"`
}

type RendererConfig struct {
	// FrameQueueLength is how many frames may be in flight at once.
	FrameQueueLength int `toml:"frame_queue_length"`
	// EvictionWindow is how many frames an unused transient image survives.
	EvictionWindow uint64 `toml:"eviction_window"`
	// FenceTimeoutSeconds bounds every frame fence wait; expiry is fatal.
	FenceTimeoutSeconds int `toml:"fence_timeout_seconds"`

	UniformBufferSize       int `toml:"uniform_buffer_size"`
	DynamicVertexBufferSize int `toml:"dynamic_vertex_buffer_size"`
	DynamicIndexBufferSize  int `toml:"dynamic_index_buffer_size"`
	UploadBufferSize        int `toml:"upload_buffer_size"`
}

func (rc RendererConfig) FenceTimeout() time.Duration {
	return time.Duration(rc.FenceTimeoutSeconds) * time.Second
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:     "Vapor",
			Width:    1280,
			Height:   720,
			LogLevel: "debug",
		},
		Renderer: RendererConfig{
			FrameQueueLength:        2,
			EvictionWindow:          3,
			FenceTimeoutSeconds:     10,
			UniformBufferSize:       1 << 20,
			DynamicVertexBufferSize: 8 << 20,
			DynamicIndexBufferSize:  2 << 20,
			UploadBufferSize:        32 << 20,
		},
	}
}

// Load reads a TOML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		core.LogError("failed to read config %q: %s", path, err)
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		core.LogError("failed to parse config %q: %s", path, err)
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	r := c.Renderer
	if r.FrameQueueLength < 1 {
		return fmt.Errorf("frame_queue_length must be at least 1, got %d", r.FrameQueueLength)
	}
	if r.UniformBufferSize < 1 || r.DynamicVertexBufferSize < 1 ||
		r.DynamicIndexBufferSize < 1 || r.UploadBufferSize < 1 {
		return fmt.Errorf("ring buffer sizes must be positive")
	}
	return nil
}
