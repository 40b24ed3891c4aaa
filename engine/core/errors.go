package core

import (
	"errors"
)

var (
	// ErrSwapchainOutdated signals that the platform swapchain no longer
	// matches the surface and must be recreated before rendering continues.
	ErrSwapchainOutdated = errors.New("swapchain outdated, must be recreated")
	// ErrFenceTimeout is returned when a frame fence wait exceeds the
	// configured timeout. The frame driver treats it as unrecoverable.
	ErrFenceTimeout = errors.New("timed out waiting for frame fence")
	ErrDeviceLost   = errors.New("device lost")
	ErrUnknown      = errors.New("unknown")
)
