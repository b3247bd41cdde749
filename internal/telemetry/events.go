package telemetry

import (
	"time"

	"github.com/nerrad567/sleepgrind/internal/engine"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/mqtt"
)

// JSONPublisher publishes a value encoded as JSON.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Logger defines the logging interface used by exporters.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// StepEvent is the payload published for each completed step.
type StepEvent struct {
	RunID        string  `json:"run_id"`
	Script       string  `json:"script"`
	Step         int     `json:"step"`
	From         int     `json:"from"`
	Winner       int     `json:"winner"`
	Kind         string  `json:"kind"`
	Candidates   []int   `json:"candidates"`
	Results      []int   `json:"results"`
	Visits       int     `json:"visits"`
	EvaluationMS float64 `json:"evaluation_ms"`
	EffectMS     float64 `json:"effect_ms"`
}

// FinishedEvent is the payload published when a run ends.
type FinishedEvent struct {
	engine.State
	Error string `json:"error,omitempty"`
}

// EventPublisher is an engine.Observer that publishes run events over
// MQTT. Publish failures are logged and never affect the run.
type EventPublisher struct {
	pub    JSONPublisher
	topics mqtt.Topics
	logger Logger

	script string
}

// NewEventPublisher creates an EventPublisher. logger may be nil.
func NewEventPublisher(pub JSONPublisher, topics mqtt.Topics, logger Logger) *EventPublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &EventPublisher{pub: pub, topics: topics, logger: logger}
}

// RunStarted publishes the initial state, retained.
func (p *EventPublisher) RunStarted(state engine.State) {
	p.script = state.Script
	p.publish(p.topics.RunState(), state, true)
}

// StepCompleted publishes a StepEvent.
func (p *EventPublisher) StepCompleted(report engine.StepReport) {
	p.publish(p.topics.RunStep(), StepEvent{
		RunID:        report.RunID,
		Script:       p.script,
		Step:         report.Step,
		From:         report.From,
		Winner:       report.Winner.Head().ID,
		Kind:         report.Winner.Kind().String(),
		Candidates:   report.Candidates,
		Results:      resultIDs(report.Results),
		Visits:       report.Visits,
		EvaluationMS: ms(report.Evaluation),
		EffectMS:     ms(report.Effect),
	}, false)
}

// RunFinished publishes the final state, retained, and a FinishedEvent.
func (p *EventPublisher) RunFinished(state engine.State, err error) {
	p.publish(p.topics.RunState(), state, true)

	ev := FinishedEvent{State: state}
	if err != nil {
		ev.Error = err.Error()
	}
	p.publish(p.topics.RunFinished(), ev, false)
}

func (p *EventPublisher) publish(topic string, v any, retained bool) {
	if err := p.pub.PublishJSON(topic, v, retained); err != nil {
		p.logger.Warn("publishing run event failed", "topic", topic, "error", err)
	}
}

func resultIDs(rs []engine.Result) []int {
	ids := make([]int, len(rs))
	for i, r := range rs {
		ids[i] = r.Head().ID
	}
	return ids
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
