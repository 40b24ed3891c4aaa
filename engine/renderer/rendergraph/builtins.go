package rendergraph

import (
	"fmt"

	"github.com/spaghettifunk/vapor/engine/containers"
	"github.com/spaghettifunk/vapor/engine/core"
	"github.com/spaghettifunk/vapor/engine/renderer/metadata"
)

// SwapchainPass bridges the graph's virtual output to the platform surface.
// The graph itself knows nothing about presentation; both halves register as
// ordinary raw passes.
type SwapchainPass struct {
	Surface Surface
}

func NewSwapchainPass(surface Surface) *SwapchainPass {
	return &SwapchainPass{Surface: surface}
}

// AcquireNextImage registers the frame's first pass: obtain the platform's
// next image, recreating the swapchain for as long as it reports outdated
// (wait for GPU idle, drop every stale registry binding, rebuild, retry),
// then publish the screen size and bind the returned descriptor to whichever
// real image the platform handed back.
func (sp *SwapchainPass) AcquireNextImage(graph *RenderGraph) containers.Handle[metadata.TextureDesc] {
	output := graph.OutputImage(metadata.NewTextureDesc(
		"swapchain output",
		metadata.ScreenRelativeSize(1.0, 1.0),
	))

	graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
		outdated, err := sp.Surface.AcquireNextImage()
		if err != nil {
			return err
		}

		for outdated {
			core.LogInfo("swapchain outdated, recreating")
			if err := api.Device.WaitIdle(); err != nil {
				return err
			}

			for _, image := range sp.Surface.Images() {
				graph.Resources.DropImage(image)
			}

			if err := sp.Surface.Recreate(); err != nil {
				return err
			}

			outdated, err = sp.Surface.AcquireNextImage()
			if err != nil {
				return err
			}
		}

		size := sp.Surface.Size()
		graph.Resources.SetScreenSize(float32(size[0]), float32(size[1]))
		graph.Resources.SetImage(output, sp.Surface.CurrentImage())
		return nil
	})

	return output
}

// Present registers the frame's last pass: transition the acquired image to
// the present state, close the frame's recording context, submit it with
// signalValue (the frame index) and hand the image back to the platform.
// An outdated result from presentation is picked up by the next acquire.
func (sp *SwapchainPass) Present(graph *RenderGraph, signalValue uint64) {
	graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
		ctx.Barrier(sp.Surface.CurrentImage(), metadata.ImageStatePresent)

		if err := ctx.End(); err != nil {
			return err
		}
		if err := api.Device.Submit(ctx, signalValue); err != nil {
			return err
		}

		if _, err := sp.Surface.Present(); err != nil {
			return err
		}
		return nil
	})
}

// CopyImage queues a raw pass copying input into output, pixel for pixel.
func CopyImage(graph *RenderGraph, input, output containers.Handle[metadata.TextureDesc]) {
	if input == output {
		panic("copy pass input and output must differ")
	}
	graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
		src, err := graph.Resources.ResolveImage(input)
		if err != nil {
			return err
		}
		dst, err := graph.Resources.ResolveImage(output)
		if err != nil {
			return err
		}

		ctx.Barrier(src, metadata.ImageStateTransferSrc)
		ctx.Barrier(dst, metadata.ImageStateTransferDst)
		ctx.CopyImage(src, dst)
		return nil
	})
}

// BlitImage queues a raw pass scaling input into output.
func BlitImage(graph *RenderGraph, input, output containers.Handle[metadata.TextureDesc]) {
	if input == output {
		panic("blit pass input and output must differ")
	}
	graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
		src, err := graph.Resources.ResolveImage(input)
		if err != nil {
			return err
		}
		dst, err := graph.Resources.ResolveImage(output)
		if err != nil {
			return err
		}

		ctx.Barrier(src, metadata.ImageStateTransferSrc)
		ctx.Barrier(dst, metadata.ImageStateTransferDst)
		ctx.BlitImage(src, dst)
		return nil
	})
}

// UploadImage queues a raw pass that stages pixels into the upload ring
// buffer and copies them into the descriptor's image. The staged bytes must
// fit one frame window of the upload ring.
func UploadImage(graph *RenderGraph, output containers.Handle[metadata.TextureDesc], pixels []byte) {
	graph.RawPass(func(graph *RenderGraph, api *PassAPI, ctx CommandContext) error {
		dst, err := graph.Resources.ResolveImage(output)
		if err != nil {
			return err
		}

		staging, offset := api.UploadBuffer.Allocate(len(pixels), 4)
		if copied := copy(staging, pixels); copied != len(pixels) {
			return fmt.Errorf("short copy staging %d of %d bytes", copied, len(pixels))
		}

		ctx.Barrier(dst, metadata.ImageStateTransferDst)
		ctx.CopyBufferToImage(api.UploadBuffer.Buffer, offset, dst)
		return nil
	})
}
