package engine

import "errors"

// Run abort errors. The reason recorded on the final State names the
// same condition.
var (
	// ErrNoMatch is returned when no candidate of a step produced a result.
	ErrNoMatch = errors.New("engine: no match")

	// ErrLoopDetected is returned when a node is selected more often than
	// the loop limit allows.
	ErrLoopDetected = errors.New("engine: loop detected")

	// ErrActionFailed is returned when a registered action returns an error.
	ErrActionFailed = errors.New("engine: action failed")

	// ErrEvaluationFailed is returned when a candidate could not be
	// evaluated, for example because the screen could not be captured or
	// a template is missing.
	ErrEvaluationFailed = errors.New("engine: evaluation failed")

	// ErrInputFailed is returned when pointer input for a click fails.
	ErrInputFailed = errors.New("engine: input failed")

	// ErrCancelled is returned when the run's context is cancelled.
	ErrCancelled = errors.New("engine: cancelled")
)

// Abort reasons.
const (
	ReasonNoMatch          = "no match"
	ReasonLoopDetected     = "loop detected"
	ReasonActionFailed     = "action failed"
	ReasonEvaluationFailed = "evaluation failed"
	ReasonInputFailed      = "input failed"
	ReasonCancelled        = "cancelled"
)

// reasonFor maps an abort error to its reason string.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return ReasonCancelled
	case errors.Is(err, ErrNoMatch):
		return ReasonNoMatch
	case errors.Is(err, ErrLoopDetected):
		return ReasonLoopDetected
	case errors.Is(err, ErrActionFailed):
		return ReasonActionFailed
	case errors.Is(err, ErrInputFailed):
		return ReasonInputFailed
	default:
		return ReasonEvaluationFailed
	}
}
