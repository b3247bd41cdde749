package api

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/sleepgrind/internal/engine"
	"github.com/nerrad567/sleepgrind/internal/script"
)

type runResponse struct {
	State    engine.State `json:"state"`
	LastStep *stepView    `json:"last_step,omitempty"`
}

type resultView struct {
	ID       int     `json:"id"`
	Priority int     `json:"priority"`
	Kind     string  `json:"kind"`
	Action   string  `json:"action,omitempty"`
	Image    string  `json:"image,omitempty"`
	X        int     `json:"x,omitempty"`
	Y        int     `json:"y,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

type stepView struct {
	Step         int          `json:"step"`
	From         int          `json:"from"`
	Candidates   []int        `json:"candidates"`
	Results      []resultView `json:"results"`
	Winner       resultView   `json:"winner"`
	Visits       int          `json:"visits"`
	EvaluationMS int64        `json:"evaluation_ms"`
	EffectMS     int64        `json:"effect_ms"`
}

func newResultView(r engine.Result) resultView {
	h := r.Head()
	v := resultView{ID: h.ID, Priority: h.Priority, Kind: r.Kind().String()}
	switch res := r.(type) {
	case engine.ActionResult:
		v.Action = res.Action
	case engine.ClickResult:
		v.Image = res.Match.Image
		v.X, v.Y = res.Match.At.X, res.Match.At.Y
		v.Score = res.Match.Score
	}
	return v
}

func newStepView(r engine.StepReport) stepView {
	results := make([]resultView, len(r.Results))
	for i, res := range r.Results {
		results[i] = newResultView(res)
	}
	v := stepView{
		Step:         r.Step,
		From:         r.From,
		Candidates:   r.Candidates,
		Results:      results,
		Visits:       r.Visits,
		EvaluationMS: r.Evaluation.Milliseconds(),
		EffectMS:     r.Effect.Milliseconds(),
	}
	if r.Winner != nil {
		v.Winner = newResultView(r.Winner)
	}
	return v
}

type scriptView struct {
	Name        string          `json:"name"`
	Fingerprint string          `json:"fingerprint"`
	Comments    string          `json:"comments,omitempty"`
	NodeCount   int             `json:"node_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Document    json.RawMessage `json:"document,omitempty"`
}

func newScriptView(s script.StoredScript, withDocument bool) scriptView {
	v := scriptView{
		Name:        s.Name,
		Fingerprint: s.Fingerprint,
		Comments:    s.Comments,
		NodeCount:   s.NodeCount,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if withDocument && json.Valid(s.Document) {
		v.Document = json.RawMessage(s.Document)
	}
	return v
}
