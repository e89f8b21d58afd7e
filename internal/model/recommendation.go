package model

import "time"

// Action is the committee's recommended handling of a signal.
type Action string

const (
	ActionAccept Action = "ACCEPT"
	ActionReject Action = "REJECT"
	ActionDefer  Action = "DEFER"
)

// Confidence grades how strongly the committee backs its action.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// StageStatus marks how a single analysis stage ended.
type StageStatus string

const (
	StageOK       StageStatus = "OK"
	StageDegraded StageStatus = "DEGRADED"
	StageFailed   StageStatus = "FAILED"
)

// Committee stage names, in execution order.
const (
	StageAdvocate  = "advocate"
	StageSkeptic   = "skeptic"
	StageSizing    = "sizing"
	StageSynthesis = "synthesis"
)

// Stance summarizes a stage's directional read.
const (
	StanceBullish = "BULLISH"
	StanceBearish = "BEARISH"
	StanceNeutral = "NEUTRAL"
)

// StageResult is the normalized output of one committee stage.
type StageResult struct {
	Stage      string      `json:"stage"`
	Status     StageStatus `json:"status"`
	Stance     string      `json:"stance"`
	Confidence Confidence  `json:"confidence"`
	Summary    string      `json:"summary"`
}

// Recommendation is the committee's complete output for one admitted signal.
// Action and Confidence are always populated, even when every stage failed.
type Recommendation struct {
	ID           string        `json:"id"`
	Signal       Signal        `json:"signal"`
	Stages       []StageResult `json:"stages"`
	Action       Action        `json:"action"`
	Confidence   Confidence    `json:"confidence"`
	Synthesis    string        `json:"synthesis"`
	Invalidation string        `json:"invalidation"`
	CreatedAt    time.Time     `json:"created_at"`
	Degraded     bool          `json:"degraded"`

	// Set when produced by the pushback re-evaluation flow.
	Reevaluation bool   `json:"reevaluation,omitempty"`
	ParentID     string `json:"parent_id,omitempty"`
}

// Stances maps stage name to stance for ledger persistence and agreement stats.
func (r *Recommendation) Stances() map[string]string {
	out := make(map[string]string, len(r.Stages))
	for _, s := range r.Stages {
		out[s.Stage] = s.Stance
	}
	return out
}
