package model

import "time"

// StressLevel grades the market stress reported by the regime source.
type StressLevel string

const (
	StressLow      StressLevel = "LOW"
	StressModerate StressLevel = "MODERATE"
	StressElevated StressLevel = "ELEVATED"
	StressSevere   StressLevel = "SEVERE"
)

// Elevated reports whether the level calls for the hard stress filter.
func (s StressLevel) Elevated() bool {
	return s == StressElevated || s == StressSevere
}

// Regime labels reported by the regime source.
const (
	RegimeTrendingUp   = "TRENDING_UP"
	RegimeTrendingDown = "TRENDING_DOWN"
	RegimeNeutral      = "NEUTRAL"
	RegimeChoppy       = "CHOPPY"
)

// RegimeSnapshot is the market regime view at one instant.
type RegimeSnapshot struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"` // 0.0 ~ 1.0
	Stress     StressLevel `json:"stress_level"`
	Stale      bool        `json:"stale,omitempty"`
}

// Directional returns the regime's direction, if the label is directional at all.
func (r *RegimeSnapshot) Directional() (Direction, bool) {
	switch r.Label {
	case RegimeTrendingUp:
		return DirectionUp, true
	case RegimeTrendingDown:
		return DirectionDown, true
	}
	return "", false
}

// NeutralRegime is the fallback when the regime source is unreachable.
func NeutralRegime() RegimeSnapshot {
	return RegimeSnapshot{Label: RegimeNeutral, Confidence: 0, Stress: StressLow, Stale: true}
}

// Position is an open position as reported by the position store.
// MaxLoss is precomputed upstream; this system never derives risk itself.
type Position struct {
	Instrument   string  `json:"instrument"`
	Structure    string  `json:"structure"`
	Quantity     float64 `json:"quantity"`
	MaxLoss      float64 `json:"max_loss"`
	MaxLossKnown bool    `json:"max_loss_known"`
}

// Catalyst is a scheduled market event inside the lookahead window.
type Catalyst struct {
	Instrument string    `json:"instrument,omitempty"` // empty for macro events
	Title      string    `json:"title"`
	At         time.Time `json:"at"`
}

// CatalystSet splits upcoming events into instrument-specific and macro.
type CatalystSet struct {
	InstrumentEvents []Catalyst `json:"instrument_events"`
	MacroEvents      []Catalyst `json:"macro_events"`
}

// StressEvent records a recent market stress alert kept in a trailing window.
type StressEvent struct {
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"`
	Instrument string    `json:"instrument,omitempty"`
	Note       string    `json:"note,omitempty"`
}

// Lesson is a short distilled statement derived from decision/outcome history.
type Lesson struct {
	Text       string    `json:"text"`
	Week       string    `json:"week"`
	SampleSize int       `json:"sample_size"`
	CreatedAt  time.Time `json:"created_at"`
}

// FieldStatus marks whether a context field was fetched cleanly.
type FieldStatus string

const (
	FieldOK          FieldStatus = "OK"
	FieldStale       FieldStatus = "STALE"
	FieldUnavailable FieldStatus = "UNAVAILABLE"
)

// ContextBundle aggregates the read-only state fed to the committee.
// Every field carries its own status; a failed read degrades one field,
// never the whole bundle.
type ContextBundle struct {
	Regime       RegimeSnapshot
	RegimeStatus FieldStatus

	Positions       []Position
	TotalExposure   float64 // sum of known max-loss figures across all positions
	PositionsStatus FieldStatus

	Catalysts       CatalystSet
	CatalystsStatus FieldStatus

	StressEvents []StressEvent
	StressStatus FieldStatus

	Lessons       []Lesson
	LessonsStatus FieldStatus

	BuiltAt time.Time
}

// Degraded reports whether any field failed to fetch cleanly.
func (b *ContextBundle) Degraded() bool {
	for _, st := range []FieldStatus{b.RegimeStatus, b.PositionsStatus, b.CatalystsStatus, b.StressStatus, b.LessonsStatus} {
		if st == FieldUnavailable {
			return true
		}
	}
	return false
}
