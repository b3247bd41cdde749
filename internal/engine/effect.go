package engine

import (
	"context"
	"fmt"
)

// perform carries out the winner's effect on the calling goroutine.
func (e *Engine) perform(ctx context.Context, winner Result) error {
	switch w := winner.(type) {
	case EndResult:
		return nil
	case ActionResult:
		return e.runAction(ctx, w)
	case ClickResult:
		return e.click(ctx, w)
	default:
		return fmt.Errorf("%w: unexpected result %T", ErrEvaluationFailed, winner)
	}
}

func (e *Engine) runAction(ctx context.Context, w ActionResult) error {
	var fn func(context.Context) error
	if e.actions != nil {
		if f, ok := e.actions.Lookup(w.Action); ok {
			fn = f
		}
	}
	if fn == nil {
		e.logger.Warn("action not registered, skipping", "action", w.Action, "node", w.ID)
		return nil
	}

	e.logger.Debug("running action", "action", w.Action, "node", w.ID)
	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		return fmt.Errorf("%w: %s (node %d): %w", ErrActionFailed, w.Action, w.ID, err)
	}
	return nil
}

// click moves to a random point inside the matched region and clicks it
// the requested number of times.
func (e *Engine) click(ctx context.Context, w ClickResult) error {
	target := e.motion.PointIn(w.Match.Rect())
	if err := e.motion.MoveTo(ctx, e.pointer, target, e.clickParams); err != nil {
		return e.inputError(ctx, w.ID, err)
	}

	clicks := max(w.Clicks, 1)
	for range clicks {
		if err := e.motion.ClickAt(ctx, e.pointer, target); err != nil {
			return e.inputError(ctx, w.ID, err)
		}
	}

	e.logger.Debug("clicked",
		"node", w.ID,
		"image", w.Match.Image,
		"x", target.X,
		"y", target.Y,
		"clicks", clicks,
	)
	return nil
}

func (e *Engine) inputError(ctx context.Context, id int, err error) error {
	if ctx.Err() != nil {
		return cancelled(ctx.Err())
	}
	return fmt.Errorf("%w: node %d: %w", ErrInputFailed, id, err)
}
