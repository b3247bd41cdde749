package engine

import (
	"maps"
	"slices"
	"time"

	"github.com/nerrad567/sleepgrind/internal/script"
	"github.com/nerrad567/sleepgrind/internal/vision"
)

// Status is the lifecycle state of a run.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Candidate holds what every evaluation result carries.
type Candidate struct {
	ID       int `json:"id"`
	Priority int `json:"priority"`
}

// Head returns the shared result fields.
func (c Candidate) Head() Candidate { return c }

// Result is a sealed variant over EndResult, ActionResult and ClickResult:
// one successful evaluation of a candidate node during a step.
type Result interface {
	Head() Candidate
	Kind() script.Kind
	isResult()
}

// EndResult is produced by every End candidate.
type EndResult struct {
	Candidate
}

// ActionResult is produced by every Action candidate.
type ActionResult struct {
	Candidate
	Action string `json:"action"`
}

// ClickResult is produced by a Click candidate whose images matched.
type ClickResult struct {
	Candidate
	Match vision.Match `json:"match"`

	// Clicks is the number of clicks performed if this result wins.
	Clicks int `json:"clicks"`
}

func (EndResult) Kind() script.Kind    { return script.KindEnd }
func (ActionResult) Kind() script.Kind { return script.KindAction }
func (ClickResult) Kind() script.Kind  { return script.KindClick }

func (EndResult) isResult()    {}
func (ActionResult) isResult() {}
func (ClickResult) isResult()  {}

// State is the execution state of one run.
type State struct {
	RunID      string      `json:"run_id"`
	Script     string      `json:"script"`
	Status     Status      `json:"status"`
	Reason     string      `json:"reason,omitempty"`
	CurrentID  int         `json:"current_id"`
	Steps      int         `json:"steps"`
	VisitCount map[int]int `json:"visit_count"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitzero"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	s.VisitCount = maps.Clone(s.VisitCount)
	return s
}

// StepReport describes one completed step.
type StepReport struct {
	RunID string `json:"run_id"`
	Step  int    `json:"step"`

	// From is the node the step started at.
	From int `json:"from"`

	// Candidates are the successors of From, in edge order.
	Candidates []int `json:"candidates"`

	// Results are the buffered results after sorting.
	Results []Result `json:"results"`

	// Winner is Results[0].
	Winner Result `json:"winner"`

	// Visits is the winner's visit count after this step.
	Visits int `json:"visits"`

	Evaluation time.Duration `json:"evaluation"`
	Effect     time.Duration `json:"effect"`
}

// resultIDs returns the ids of rs in order.
func resultIDs(rs []Result) []int {
	ids := make([]int, len(rs))
	for i, r := range rs {
		ids[i] = r.Head().ID
	}
	return ids
}

// sortResults orders rs by priority, keeping append order among equals
// unless byID is set, in which case equal priorities are ordered by id.
func sortResults(rs []Result, byID bool) {
	slices.SortStableFunc(rs, func(a, b Result) int {
		if d := a.Head().Priority - b.Head().Priority; d != 0 {
			return d
		}
		if byID {
			return a.Head().ID - b.Head().ID
		}
		return 0
	})
}
