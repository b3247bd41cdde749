package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/sleepgrind/internal/script"
)

// stepBuffer collects the results of one step. Its mutex also serializes
// screen capture and matching across candidates.
type stepBuffer struct {
	mu      sync.Mutex
	results []Result
}

// appendLocked appends r. The caller must hold mu.
func (b *stepBuffer) appendLocked(r Result) {
	b.results = append(b.results, r)
}

func (b *stepBuffer) add(r Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(r)
}

// evaluate runs one task per candidate and waits for all of them.
// The first task error cancels the others and is returned.
func (e *Engine) evaluate(ctx context.Context, g *script.Graph, candidates []int) ([]Result, error) {
	nodes := make([]script.Node, 0, len(candidates))
	for _, id := range candidates {
		n, err := g.Metadata(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEvaluationFailed, err)
		}
		nodes = append(nodes, n)
	}

	buf := &stepBuffer{}
	grp, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		grp.Go(func() error {
			return e.evaluateCandidate(gctx, n, buf)
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return buf.results, nil
}

// evaluateCandidate sleeps the node's delay, records a result if the node
// qualifies, then sleeps the node's wait.
func (e *Engine) evaluateCandidate(ctx context.Context, node script.Node, buf *stepBuffer) error {
	h := node.Head()
	if err := e.sleep(ctx, h.Delay); err != nil {
		return cancelled(err)
	}

	base := Candidate{ID: h.ID, Priority: h.Priority}
	switch n := node.(type) {
	case script.StartNode:
		// A start node is never a valid successor.
	case script.EndNode:
		buf.add(EndResult{Candidate: base})
	case script.ActionNode:
		buf.add(ActionResult{Candidate: base, Action: n.ActionName})
	case script.ClickNode:
		if err := e.matchClick(ctx, base, n, buf); err != nil {
			return err
		}
	}

	if err := e.sleep(ctx, h.Wait); err != nil {
		return cancelled(err)
	}
	return nil
}

// matchClick captures the screen and looks for the node's images while
// holding the buffer lock, appending a result on a match.
func (e *Engine) matchClick(ctx context.Context, base Candidate, n script.ClickNode, buf *stepBuffer) error {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	snapshot, err := e.screen.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		return fmt.Errorf("%w: capturing screen for node %d: %w", ErrEvaluationFailed, n.ID, err)
	}

	m, ok, err := e.finder.Find(ctx, snapshot, n.Images)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		return fmt.Errorf("%w: matching node %d: %w", ErrEvaluationFailed, n.ID, err)
	}
	if !ok {
		e.logger.Debug("click candidate not visible", "node", n.ID, "images", n.Images)
		return nil
	}

	e.logger.Debug("click candidate matched",
		"node", n.ID,
		"image", m.Image,
		"x", m.At.X,
		"y", m.At.Y,
		"score", m.Score,
	)
	buf.appendLocked(ClickResult{Candidate: base, Match: m, Clicks: n.ClickCount()})
	return nil
}
