/*
Sample application: clears the screen through the frame graph every frame
and presents. Serves as the smallest end-to-end wiring of platform, vulkan
backend and renderer.
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vapor/engine/config"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/platform"
	"github.com/spaghettifunk/vapor/engine/renderer"
	"github.com/spaghettifunk/vapor/engine/renderer/rendergraph"
	"github.com/spaghettifunk/vapor/engine/renderer/vulkan"
	"github.com/spaghettifunk/vapor/engine/shaders"
)

const configPath = "vapor.toml"

func logLevel(name string) core.LogLevel {
	switch name {
	case "info":
		return core.LogLevelInfo
	case "warn":
		return core.LogLevelWarn
	case "error":
		return core.LogLevelError
	default:
		return core.LogLevelDebug
	}
}

func main() {
	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}
	core.SetLogLevel(logLevel(cfg.Application.LogLevel))

	p := platform.New()
	if err := p.Startup(cfg.Application.Name, cfg.Application.Width, cfg.Application.Height); err != nil {
		panic(err)
	}
	defer p.Shutdown()

	device, err := vulkan.New(p, cfg.Application.Name,
		cfg.Application.Width, cfg.Application.Height,
		cfg.Renderer.FrameQueueLength, true)
	if err != nil {
		panic(err)
	}
	defer device.Shutdown()

	swapchain, err := vulkan.NewSwapchain(device)
	if err != nil {
		panic(err)
	}
	defer swapchain.Destroy()

	r, err := renderer.New(device, cfg.Renderer)
	if err != nil {
		panic(err)
	}
	defer r.Shutdown()

	shaderManager, err := shaders.NewManager(device)
	if err != nil {
		panic(err)
	}
	if _, err := os.Stat("shaders"); err == nil {
		if err := shaderManager.Initialize("shaders"); err != nil {
			panic(err)
		}
	}
	defer shaderManager.Shutdown()

	presentPass := rendergraph.NewSwapchainPass(swapchain)

	clock := core.NewClock()
	clock.Start()
	if err := core.MetricsInitialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	running := true
	for running && p.PumpMessages() {
		select {
		case <-sigCh:
			running = false
			continue
		default:
		}

		clock.Update()
		frameStart := clock.Elapsed()
		shaderManager.ProcessReloads()

		err := r.DrawFrame(func(graph *rendergraph.RenderGraph, api *rendergraph.PassAPI, frameIndex uint64) error {
			output := presentPass.AcquireNextImage(graph)

			graph.GraphicsPass(output, func(graph *rendergraph.RenderGraph, api *rendergraph.PassAPI, ctx rendergraph.GraphicsContext) {
				// Clear only; the executor's render pass does the work.
			})

			presentPass.Present(graph, frameIndex)
			return nil
		})
		if err != nil {
			core.LogError("frame failed: %s", err)
			running = false
		}

		clock.Update()
		core.MetricsUpdate((clock.Elapsed() - frameStart) / 1e9)
	}

	core.LogInfo("shutting down after %d frames", r.FrameIndex())
}
