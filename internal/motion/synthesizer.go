package motion

import (
	"context"
	"fmt"
	"image"
	"math/rand/v2"
	"time"

	"github.com/nerrad567/sleepgrind/internal/display"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
)

// Synthesizer drives a display.Pointer with humanized moves and clicks.
//
// Thread Safety: a Synthesizer owns its *rand.Rand and must only be used
// from one goroutine at a time.
type Synthesizer struct {
	rng          *rand.Rand
	holdMin      time.Duration
	holdMax      time.Duration
	stepInterval time.Duration

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSynthesizer creates a Synthesizer using the hold and step timing of cfg.
func NewSynthesizer(cfg config.MotionConfig, rng *rand.Rand) *Synthesizer {
	holdMin, holdMax := cfg.HoldMin, cfg.HoldMax
	if holdMax < holdMin {
		holdMin, holdMax = holdMax, holdMin
	}
	return &Synthesizer{
		rng:          rng,
		holdMin:      holdMin,
		holdMax:      holdMax,
		stepInterval: cfg.StepInterval,
		sleep:        sleepContext,
	}
}

// Rand returns the random source shared by every gesture.
func (s *Synthesizer) Rand() *rand.Rand {
	return s.rng
}

// MoveTo moves the cursor from its current position to dest along a
// trajectory shaped by p. Each point is delivered before the next one is
// computed.
func (s *Synthesizer) MoveTo(ctx context.Context, ptr display.Pointer, dest image.Point, p Params) error {
	from, err := ptr.Position(ctx)
	if err != nil {
		return fmt.Errorf("reading cursor position: %w", err)
	}
	return s.follow(ctx, ptr, from, dest, p)
}

// ClickAt places the cursor at pt, presses, holds for a random duration
// in [hold_min, hold_max], and releases.
func (s *Synthesizer) ClickAt(ctx context.Context, ptr display.Pointer, pt image.Point) error {
	if err := ptr.MoveTo(ctx, pt); err != nil {
		return fmt.Errorf("moving to %v: %w", pt, err)
	}
	if err := ptr.Press(ctx); err != nil {
		return fmt.Errorf("pressing at %v: %w", pt, err)
	}

	holdErr := s.sleep(ctx, s.Hold())

	// The button must come up even when the hold was interrupted.
	if err := ptr.Release(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("releasing at %v: %w", pt, err)
	}
	return holdErr
}

// Drag places the cursor at from, presses, moves to to along a trajectory
// shaped by p, and releases.
//
// Parameters:
//   - ctx: Cancels between trajectory points
//   - ptr: Pointer receiving the input
//   - from, to: Gesture end points in screen coordinates
//   - p: Trajectory shape for the pressed segment
//
// Returns:
//   - error: The first pointer failure or ctx.Err(); the button is
//     released even after a failed or cancelled move
func (s *Synthesizer) Drag(ctx context.Context, ptr display.Pointer, from, to image.Point, p Params) error {
	if err := ptr.MoveTo(ctx, from); err != nil {
		return fmt.Errorf("moving to %v: %w", from, err)
	}
	if err := ptr.Press(ctx); err != nil {
		return fmt.Errorf("pressing at %v: %w", from, err)
	}

	moveErr := s.follow(ctx, ptr, from, to, p)

	if err := ptr.Release(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("releasing drag: %w", err)
	}
	return moveErr
}

// Hold returns a button hold duration drawn uniformly from [hold_min, hold_max].
func (s *Synthesizer) Hold() time.Duration {
	span := s.holdMax - s.holdMin
	if span <= 0 {
		return s.holdMin
	}
	return s.holdMin + time.Duration(s.rng.Int64N(int64(span)+1))
}

// PointIn returns a point drawn uniformly from [r.Min.X, r.Max.X) × [r.Min.Y, r.Max.Y).
// An empty rectangle yields r.Min.
func (s *Synthesizer) PointIn(r image.Rectangle) image.Point {
	pt := r.Min
	if w := r.Dx(); w > 0 {
		pt.X += s.rng.IntN(w)
	}
	if h := r.Dy(); h > 0 {
		pt.Y += s.rng.IntN(h)
	}
	return pt
}

// Jitter returns v shifted by a uniform offset in [-tol, tol).
func (s *Synthesizer) Jitter(v, tol int) int {
	if tol <= 0 {
		return v
	}
	return v - tol + s.rng.IntN(2*tol)
}

func (s *Synthesizer) follow(ctx context.Context, ptr display.Pointer, from, to image.Point, p Params) error {
	for pt := range Path(from, to, p, s.rng) {
		if err := ptr.MoveTo(ctx, pt); err != nil {
			return fmt.Errorf("moving to %v: %w", pt, err)
		}
		if s.stepInterval > 0 {
			if err := s.sleep(ctx, s.stepInterval); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
