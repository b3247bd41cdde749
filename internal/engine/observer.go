package engine

import (
	"sync"
)

// Logger defines the logging interface used by the Engine.
// It matches the method set of *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer receives run lifecycle events.
//
// Callbacks are invoked synchronously on the goroutine running the script,
// so implementations must return quickly. States passed to observers are
// copies and may be retained.
type Observer interface {
	RunStarted(state State)
	StepCompleted(report StepReport)
	RunFinished(state State, err error)
}

// NopObserver implements Observer with empty methods. Embed it to
// implement only the callbacks you need.
type NopObserver struct{}

func (NopObserver) RunStarted(State)         {}
func (NopObserver) StepCompleted(StepReport) {}
func (NopObserver) RunFinished(State, error) {}

// Tracker is an Observer that keeps a snapshot of the most recent run.
//
// Thread Safety: all methods are safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	state State
	last  *StepReport
	seen  bool
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RunStarted replaces the tracked run.
func (t *Tracker) RunStarted(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state.Clone()
	t.last = nil
	t.seen = true
}

// StepCompleted advances the tracked state to the step's winner.
func (t *Tracker) StepCompleted(report StepReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.seen || report.RunID != t.state.RunID {
		return
	}
	if t.state.VisitCount == nil {
		t.state.VisitCount = make(map[int]int)
	}
	id := report.Winner.Head().ID
	t.state.CurrentID = id
	t.state.Steps = report.Step
	t.state.VisitCount[id] = report.Visits
	r := report
	t.last = &r
}

// RunFinished records the final state of the run.
func (t *Tracker) RunFinished(state State, _ error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state.Clone()
	t.seen = true
}

// Snapshot returns a copy of the tracked state, the last step report (nil
// before the first step), and whether any run has been observed.
func (t *Tracker) Snapshot() (State, *StepReport, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.seen {
		return State{}, nil, false
	}
	var last *StepReport
	if t.last != nil {
		r := *t.last
		last = &r
	}
	return t.state.Clone(), last, true
}
