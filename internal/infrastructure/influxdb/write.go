package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementStep = "sleepgrind_step"
	MeasurementRun  = "sleepgrind_run"
)

// StepPoint describes one completed step.
type StepPoint struct {
	RunID      string
	Script     string
	Step       int
	From       int
	Winner     int
	Kind       string
	Candidates int
	Results    int
	Visits     int
	Evaluation time.Duration
	Effect     time.Duration
	At         time.Time
}

// RunPoint describes one finished run.
type RunPoint struct {
	RunID    string
	Script   string
	Status   string
	Reason   string
	Steps    int
	Duration time.Duration
	At       time.Time
}

// WriteStep queues a step point. The write is batched and non-blocking.
func (c *Client) WriteStep(p StepPoint) {
	c.enqueue(stepPoint(p))
}

// WriteRun queues a run point.
func (c *Client) WriteRun(p RunPoint) {
	c.enqueue(runPoint(p))
}

func (c *Client) enqueue(pt *write.Point) {
	if !c.open.Load() {
		return
	}
	c.queued.Add(1)
	c.writeAPI.WritePoint(pt)
}

func stepPoint(p StepPoint) *write.Point {
	return write.NewPoint(
		MeasurementStep,
		map[string]string{
			"script": p.Script,
			"kind":   p.Kind,
		},
		map[string]any{
			"run_id":        p.RunID,
			"step":          p.Step,
			"from":          p.From,
			"winner":        p.Winner,
			"candidates":    p.Candidates,
			"results":       p.Results,
			"visits":        p.Visits,
			"evaluation_ms": milliseconds(p.Evaluation),
			"effect_ms":     milliseconds(p.Effect),
		},
		timestamp(p.At),
	)
}

func runPoint(p RunPoint) *write.Point {
	fields := map[string]any{
		"run_id":      p.RunID,
		"steps":       p.Steps,
		"duration_ms": milliseconds(p.Duration),
	}
	if p.Reason != "" {
		fields["reason"] = p.Reason
	}
	return write.NewPoint(
		MeasurementRun,
		map[string]string{
			"script": p.Script,
			"status": p.Status,
		},
		fields,
		timestamp(p.At),
	)
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
