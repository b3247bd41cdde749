package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nerrad567/sleepgrind/internal/actions"
	"github.com/nerrad567/sleepgrind/internal/display"
	"github.com/nerrad567/sleepgrind/internal/motion"
	"github.com/nerrad567/sleepgrind/internal/script"
	"github.com/nerrad567/sleepgrind/internal/vision"
)

// DefaultLoopLimit is the number of times a node may be selected in one
// run before the run aborts.
const DefaultLoopLimit = 5

// MatchFinder locates the first of a list of templates in a snapshot.
type MatchFinder interface {
	Find(ctx context.Context, snapshot image.Image, templates []string) (vision.Match, bool, error)
}

// ActionLookup resolves action names to functions.
type ActionLookup interface {
	Lookup(name string) (actions.Func, bool)
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Screen  display.Screen
	Pointer display.Pointer
	Finder  MatchFinder

	// Actions may be nil, in which case every action is a lookup miss.
	Actions ActionLookup

	// Motion shapes click moves. It must not be shared with another
	// goroutine while a run is in progress.
	Motion *motion.Synthesizer

	// Logger may be nil.
	Logger Logger

	Observers []Observer
}

// Options tune a run.
type Options struct {
	// LoopLimit defaults to DefaultLoopLimit when zero or negative.
	LoopLimit int

	// DeterministicTies orders equal-priority results by node id instead
	// of by the order they were produced in.
	DeterministicTies bool

	// ClickParams shape the move that precedes a click.
	ClickParams motion.Params
}

// Engine executes script graphs.
//
// Thread Safety: Run must not be called concurrently on the same Engine,
// since every run drives the same pointer and random source.
type Engine struct {
	screen    display.Screen
	pointer   display.Pointer
	finder    MatchFinder
	actions   ActionLookup
	motion    *motion.Synthesizer
	logger    Logger
	observers []Observer

	loopLimit         int
	deterministicTies bool
	clickParams       motion.Params

	// sleep and now are replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates an Engine.
func New(deps Deps, opts Options) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	limit := opts.LoopLimit
	if limit <= 0 {
		limit = DefaultLoopLimit
	}
	return &Engine{
		screen:            deps.Screen,
		pointer:           deps.Pointer,
		finder:            deps.Finder,
		actions:           deps.Actions,
		motion:            deps.Motion,
		logger:            logger,
		observers:         deps.Observers,
		loopLimit:         limit,
		deterministicTies: opts.DeterministicTies,
		clickParams:       opts.ClickParams,
		sleep:             sleepContext,
		now:               time.Now,
	}
}

// LoopLimit returns the effective loop limit.
func (e *Engine) LoopLimit() int {
	return e.loopLimit
}

// Run walks g from its start node until an End node is selected or the
// run aborts, and returns the final state.
//
// Parameters:
//   - ctx: Cancels the run between and within steps
//   - name: Script name reported to observers
//   - g: Sealed script graph
//
// Returns:
//   - State: final state; Status is StatusCompleted or StatusAborted
//   - error: nil on completion, or one of ErrNoMatch, ErrLoopDetected,
//     ErrActionFailed, ErrEvaluationFailed, ErrInputFailed, ErrCancelled
//     (possibly wrapping the underlying cause)
func (e *Engine) Run(ctx context.Context, name string, g *script.Graph) (State, error) {
	if err := e.check(g); err != nil {
		return State{}, err
	}

	st := State{
		RunID:      ulid.Make().String(),
		Script:     name,
		Status:     StatusRunning,
		CurrentID:  g.Start(),
		VisitCount: make(map[int]int),
		StartedAt:  e.now().UTC(),
	}
	e.logger.Info("run started",
		"run_id", st.RunID,
		"script", name,
		"nodes", g.Len(),
		"start", st.CurrentID,
		"loop_limit", e.loopLimit,
	)
	for _, o := range e.observers {
		o.RunStarted(st.Clone())
	}

	err := e.walk(ctx, g, &st)

	st.FinishedAt = e.now().UTC()
	if err != nil {
		st.Status = StatusAborted
		st.Reason = reasonFor(err)
		e.logger.Warn("run aborted",
			"run_id", st.RunID,
			"reason", st.Reason,
			"node", st.CurrentID,
			"steps", st.Steps,
			"error", err,
		)
	} else {
		st.Status = StatusCompleted
		e.logger.Info("run completed",
			"run_id", st.RunID,
			"node", st.CurrentID,
			"steps", st.Steps,
			"duration", st.FinishedAt.Sub(st.StartedAt),
		)
	}
	for _, o := range e.observers {
		o.RunFinished(st.Clone(), err)
	}
	return st, err
}

func (e *Engine) check(g *script.Graph) error {
	switch {
	case g == nil:
		return fmt.Errorf("%w: nil graph", script.ErrInvalidScript)
	case !g.Sealed():
		return fmt.Errorf("%w: graph is not sealed", script.ErrInvalidScript)
	case g.Start() < 0:
		return fmt.Errorf("%w: graph has no start node", script.ErrInvalidScript)
	case e.screen == nil, e.pointer == nil, e.finder == nil, e.motion == nil:
		return errors.New("engine: screen, pointer, finder and motion are required")
	}
	return nil
}

// walk runs steps until the current node is an End node.
func (e *Engine) walk(ctx context.Context, g *script.Graph, st *State) error {
	for {
		node, err := g.Metadata(st.CurrentID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEvaluationFailed, err)
		}
		if node.Kind() == script.KindEnd {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		report, err := e.step(ctx, g, st)
		if err != nil {
			return err
		}
		for _, o := range e.observers {
			o.StepCompleted(report)
		}

		if report.Visits > e.loopLimit {
			return fmt.Errorf("%w: node %d selected %d times (limit %d)",
				ErrLoopDetected, st.CurrentID, report.Visits, e.loopLimit)
		}
	}
}

// step evaluates the successors of the current node, selects the winner,
// performs its effect and counts the visit.
func (e *Engine) step(ctx context.Context, g *script.Graph, st *State) (StepReport, error) {
	from := st.CurrentID
	candidates, err := g.Neighbors(from)
	if err != nil {
		return StepReport{}, fmt.Errorf("%w: %w", ErrEvaluationFailed, err)
	}

	began := e.now()
	results, err := e.evaluate(ctx, g, candidates)
	evaluation := e.now().Sub(began)
	if err != nil {
		return StepReport{}, err
	}
	if len(results) == 0 {
		e.logger.Debug("no candidate matched", "node", from, "candidates", candidates)
		return StepReport{}, fmt.Errorf("%w: no successor of node %d matched", ErrNoMatch, from)
	}

	sortResults(results, e.deterministicTies)
	winner := results[0]
	id := winner.Head().ID
	st.CurrentID = id
	st.Steps++

	e.logger.Debug("winner selected",
		"run_id", st.RunID,
		"step", st.Steps,
		"from", from,
		"winner", id,
		"kind", winner.Kind().String(),
		"results", resultIDs(results),
	)

	node, err := g.Metadata(id)
	if err != nil {
		return StepReport{}, fmt.Errorf("%w: %w", ErrEvaluationFailed, err)
	}

	began = e.now()
	if err := e.perform(ctx, winner); err != nil {
		return StepReport{}, err
	}
	if err := e.sleep(ctx, node.Head().Wait); err != nil {
		return StepReport{}, cancelled(err)
	}
	effect := e.now().Sub(began)

	st.VisitCount[id]++

	return StepReport{
		RunID:      st.RunID,
		Step:       st.Steps,
		From:       from,
		Candidates: candidates,
		Results:    results,
		Winner:     winner,
		Visits:     st.VisitCount[id],
		Evaluation: evaluation,
		Effect:     effect,
	}, nil
}

func cancelled(err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
