package model

import "time"

// HumanAction is what the human actually did with a recommendation.
type HumanAction string

const (
	HumanAccept     HumanAction = "ACCEPT"
	HumanReject     HumanAction = "REJECT"
	HumanDefer      HumanAction = "DEFER"
	HumanExpired    HumanAction = "EXPIRED"
	HumanReevaluate HumanAction = "RE_EVALUATE"
)

// Decision is the append-only record of one resolved recommendation.
// Exactly one Decision exists per resolved pending entry, including expiry.
type Decision struct {
	SignalID         string            `json:"signal_id"`
	RecommendationID string            `json:"recommendation_id"`
	Instrument       string            `json:"instrument"`
	Recommended      Action            `json:"recommended"`
	Confidence       Confidence        `json:"confidence"`
	Human            HumanAction       `json:"human"`
	Override         bool              `json:"override"`
	OverrideReason   string            `json:"override_reason,omitempty"`
	Stances          map[string]string `json:"stances,omitempty"`
	Latency          time.Duration     `json:"latency"`
	DecidedAt        time.Time         `json:"decided_at"`
}

// OutcomeClass classifies how a decided signal played out.
type OutcomeClass string

const (
	OutcomeWin     OutcomeClass = "WIN"
	OutcomeBigWin  OutcomeClass = "BIG_WIN"
	OutcomeLoss    OutcomeClass = "LOSS"
	OutcomeExpired OutcomeClass = "EXPIRED"
	OutcomePending OutcomeClass = "PENDING"
)

// Favorable reports whether the class counts as a favorable outcome.
func (c OutcomeClass) Favorable() bool {
	return c == OutcomeWin || c == OutcomeBigWin
}

// OutcomeRecord joins a Decision with its realized market outcome.
// Immutable once written; a signal id is matched at most once.
type OutcomeRecord struct {
	SignalID            string        `json:"signal_id"`
	Class               OutcomeClass  `json:"class"`
	FavorablePct        float64       `json:"favorable_pct"`
	AdversePct          float64       `json:"adverse_pct"`
	RiskReward          float64       `json:"risk_reward"`
	Held                time.Duration `json:"held"`
	RecommendationRight bool          `json:"recommendation_right"`
	HumanRight          bool          `json:"human_right"`
	OverrideVindicated  bool          `json:"override_vindicated"`
	MatchedAt           time.Time     `json:"matched_at"`
}
