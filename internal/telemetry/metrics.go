package telemetry

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/sleepgrind/internal/engine"
)

// Metrics records run activity as Prometheus metrics.
//
// Thread Safety: safe for concurrent use.
type Metrics struct {
	runsStarted  *prometheus.CounterVec
	runsFinished *prometheus.CounterVec
	running      prometheus.Gauge
	steps        *prometheus.CounterVec
	visits       *prometheus.CounterVec
	evaluation   *prometheus.HistogramVec
	effect       *prometheus.HistogramVec
	results      prometheus.Histogram
	connLost     *prometheus.CounterVec

	mu      sync.Mutex
	scripts map[string]string // run id → script
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sleepgrind",
			Name:      "runs_started_total",
			Help:      "Script runs started.",
		}, []string{"script"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sleepgrind",
			Name:      "runs_finished_total",
			Help:      "Script runs finished, by final status and abort reason.",
		}, []string{"script", "status", "reason"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sleepgrind",
			Name:      "runs_in_progress",
			Help:      "Script runs currently executing.",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sleepgrind",
			Name:      "steps_total",
			Help:      "Completed steps, by winner kind.",
		}, []string{"script", "kind"}),
		visits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sleepgrind",
			Name:      "node_visits_total",
			Help:      "Times each node was selected as the winner.",
		}, []string{"script", "node"}),
		evaluation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sleepgrind",
			Name:      "step_evaluation_seconds",
			Help:      "Time from fan-out to barrier for one step.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"script"}),
		effect: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sleepgrind",
			Name:      "step_effect_seconds",
			Help:      "Time spent performing the winner's effect and wait.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"script", "kind"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sleepgrind",
			Name:      "step_results",
			Help:      "Number of candidates that produced a result in a step.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
		connLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sleepgrind",
			Name:      "connection_lost_total",
			Help:      "Connections to external services lost during a run.",
		}, []string{"service"}),
		scripts: make(map[string]string),
	}
	reg.MustRegister(
		m.runsStarted,
		m.runsFinished,
		m.running,
		m.steps,
		m.visits,
		m.evaluation,
		m.effect,
		m.results,
		m.connLost,
	)
	return m
}

// RunStarted counts the run and remembers its script name.
func (m *Metrics) RunStarted(state engine.State) {
	m.mu.Lock()
	m.scripts[state.RunID] = state.Script
	m.mu.Unlock()

	m.runsStarted.WithLabelValues(state.Script).Inc()
	m.running.Inc()
}

// StepCompleted records step timing and the winner's visit.
func (m *Metrics) StepCompleted(report engine.StepReport) {
	script := m.script(report.RunID)
	kind := report.Winner.Kind().String()

	m.steps.WithLabelValues(script, kind).Inc()
	m.visits.WithLabelValues(script, strconv.Itoa(report.Winner.Head().ID)).Inc()
	m.evaluation.WithLabelValues(script).Observe(report.Evaluation.Seconds())
	m.effect.WithLabelValues(script, kind).Observe(report.Effect.Seconds())
	m.results.Observe(float64(len(report.Results)))
}

// RunFinished counts the outcome.
func (m *Metrics) RunFinished(state engine.State, _ error) {
	m.mu.Lock()
	delete(m.scripts, state.RunID)
	m.mu.Unlock()

	m.runsFinished.WithLabelValues(state.Script, string(state.Status), state.Reason).Inc()
	m.running.Dec()
}

// ConnectionLost counts a dropped connection to service, e.g. "mqtt".
func (m *Metrics) ConnectionLost(service string) {
	m.connLost.WithLabelValues(service).Inc()
}

func (m *Metrics) script(runID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scripts[runID]
}
