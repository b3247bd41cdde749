package actions

import (
	"context"
	"fmt"
	"image"

	"github.com/nerrad567/sleepgrind/internal/display"
	"github.com/nerrad567/sleepgrind/internal/motion"
)

// Built-in action names.
const (
	ScrollDown = "scroll_down"
	ScrollUp   = "scroll_up"
)

// jitterDivisor sets scroll jitter to 1/38 of the screen dimension.
const jitterDivisor = 38

// Gestures holds what built-in actions need to drive the display.
type Gestures struct {
	Screen  display.Screen
	Pointer display.Pointer
	Motion  *motion.Synthesizer

	// Scroll shapes the drag trajectory.
	Scroll motion.Params
}

// RegisterBuiltins adds scroll_down and scroll_up to r.
func RegisterBuiltins(r *Registry, g Gestures) error {
	if err := r.Register(ScrollDown, g.scrollDown); err != nil {
		return err
	}
	return r.Register(ScrollUp, g.scrollUp)
}

// scrollDown drags from three quarters of the screen height up to one
// third, around the horizontal centre, so content scrolls down.
func (g Gestures) scrollDown(ctx context.Context) error {
	from, to, err := g.scrollEnds(ctx)
	if err != nil {
		return err
	}
	return g.Motion.Drag(ctx, g.Pointer, from, to, g.Scroll)
}

// scrollUp is the mirror of scrollDown.
func (g Gestures) scrollUp(ctx context.Context) error {
	from, to, err := g.scrollEnds(ctx)
	if err != nil {
		return err
	}
	return g.Motion.Drag(ctx, g.Pointer, to, from, g.Scroll)
}

// scrollEnds returns jittered points at 3/4 and 1/3 of the screen height.
func (g Gestures) scrollEnds(ctx context.Context) (lower, upper image.Point, err error) {
	w, h, err := g.Screen.Size(ctx)
	if err != nil {
		return image.Point{}, image.Point{}, fmt.Errorf("reading screen size: %w", err)
	}

	tolX, tolY := w/jitterDivisor, h/jitterDivisor
	m := g.Motion

	lower = image.Pt(m.Jitter(w/2, tolX), m.Jitter(h*3/4, tolY))
	upper = image.Pt(m.Jitter(w/2, tolX), m.Jitter(h/3, tolY))
	return lower, upper, nil
}
