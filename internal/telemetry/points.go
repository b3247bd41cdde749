package telemetry

import (
	"github.com/nerrad567/sleepgrind/internal/engine"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/influxdb"
)

// PointWriter queues time-series points.
type PointWriter interface {
	WriteStep(p influxdb.StepPoint)
	WriteRun(p influxdb.RunPoint)
}

// PointRecorder is an engine.Observer that writes one point per step and
// one per finished run.
type PointRecorder struct {
	w      PointWriter
	script string
}

// NewPointRecorder creates a PointRecorder writing to w.
func NewPointRecorder(w PointWriter) *PointRecorder {
	return &PointRecorder{w: w}
}

// RunStarted remembers the script name for step points.
func (r *PointRecorder) RunStarted(state engine.State) {
	r.script = state.Script
}

// StepCompleted writes a step point.
func (r *PointRecorder) StepCompleted(report engine.StepReport) {
	r.w.WriteStep(influxdb.StepPoint{
		RunID:      report.RunID,
		Script:     r.script,
		Step:       report.Step,
		From:       report.From,
		Winner:     report.Winner.Head().ID,
		Kind:       report.Winner.Kind().String(),
		Candidates: len(report.Candidates),
		Results:    len(report.Results),
		Visits:     report.Visits,
		Evaluation: report.Evaluation,
		Effect:     report.Effect,
	})
}

// RunFinished writes a run point.
func (r *PointRecorder) RunFinished(state engine.State, _ error) {
	r.w.WriteRun(influxdb.RunPoint{
		RunID:    state.RunID,
		Script:   state.Script,
		Status:   string(state.Status),
		Reason:   state.Reason,
		Steps:    state.Steps,
		Duration: state.FinishedAt.Sub(state.StartedAt),
		At:       state.FinishedAt,
	})
}
