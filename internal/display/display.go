// Package display defines the boundary between the engine and the screen
// it drives: a Screen to capture and a Pointer to move and press.
//
// Backends live in subpackages: browser drives a Chrome tab over the
// DevTools protocol, replay serves recorded frames and logs pointer input.
package display

import (
	"context"
	"image"
)

// Screen captures the current screen contents.
type Screen interface {
	// Capture returns a full snapshot. Coordinates in the returned image
	// are screen coordinates.
	Capture(ctx context.Context) (image.Image, error)

	// Size returns the screen width and height in pixels.
	Size(ctx context.Context) (width, height int, err error)
}

// Pointer injects mouse input.
type Pointer interface {
	// MoveTo places the cursor at p without pressing.
	MoveTo(ctx context.Context, p image.Point) error

	// Press pushes the primary button down at the current position.
	Press(ctx context.Context) error

	// Release lets the primary button up at the current position.
	Release(ctx context.Context) error

	// Position returns the current cursor position.
	Position(ctx context.Context) (image.Point, error)
}

// Display is a backend that provides both halves of the boundary.
type Display interface {
	Screen
	Pointer

	// Close releases backend resources.
	Close() error
}
