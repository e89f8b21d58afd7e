package gatekeeper

import (
	"log"
	"time"

	"SignalDesk/internal/config"
	"SignalDesk/internal/model"
	"SignalDesk/internal/recorder"
)

// Reason explains a Gatekeeper verdict. Rejections are input filtering,
// never errors.
type Reason string

const (
	ReasonAdmitted      Reason = "admitted"
	ReasonDiverted      Reason = "diverted_category"
	ReasonScoreBelow    Reason = "score_below_threshold"
	ReasonSignalExpired Reason = "signal_expired"
	ReasonDuplicate     Reason = "duplicate_signal"
	ReasonDailyCap      Reason = "daily_cap_reached"
	ReasonStressOpposed Reason = "stress_opposed"
	ReasonCounterRegime Reason = "counter_regime"
)

// Gatekeeper applies the ordered admission filter chain. It is side-effect
// free with respect to DailyState: the caller commits the counter and dedup
// key only after a confirmed admit.
type Gatekeeper struct {
	cfg *config.Config
	rec recorder.Recorder
}

// New creates a Gatekeeper that audits every evaluation to the recorder.
func New(cfg *config.Config, rec recorder.Recorder) *Gatekeeper {
	return &Gatekeeper{cfg: cfg, rec: rec}
}

// Evaluate runs the filter chain in fixed order, short-circuiting on the
// first failure. Every evaluation is appended to the audit ledger.
func (g *Gatekeeper) Evaluate(sig *model.Signal, state *DailyState, regime model.RegimeSnapshot, now time.Time) (bool, Reason) {
	admit, reason := g.evaluate(sig, state, regime, now)
	g.audit(sig, admit, reason, now)
	return admit, reason
}

func (g *Gatekeeper) evaluate(sig *model.Signal, state *DailyState, regime model.RegimeSnapshot, now time.Time) (bool, Reason) {
	// 1. Category routing: stress and confirmation-pending alerts are
	// diverted before this chain. A defensive reject if one slips through.
	if sig.Category == model.CategoryStressEvent || sig.Category == model.CategoryNeedsConfirmation {
		return false, ReasonDiverted
	}

	// 2. Score threshold, skipped for pre-qualified categories.
	if !sig.Category.ScoreExempt() && sig.Score < g.cfg.Gate.ScoreThreshold {
		return false, ReasonScoreBelow
	}

	// 3. Signal age.
	maxAge := time.Duration(g.cfg.Gate.MaxSignalAgeMin) * time.Minute
	if sig.Age(now) > maxAge {
		return false, ReasonSignalExpired
	}

	// 4. Same-day dedup on instrument+direction.
	if state.HasKey(sig.DedupKey(now)) {
		return false, ReasonDuplicate
	}

	// 5. Daily quota.
	if state.RunCount() >= g.cfg.Gate.DailyQuota {
		return false, ReasonDailyCap
	}

	// 6. Regime-stress filter. Under elevated stress only the risk-off
	// direction passes; under moderate stress only counter-regime signals
	// are blocked.
	regimeDir, directional := regime.Directional()
	if regime.Stress.Elevated() {
		if sig.Direction != model.DirectionDown {
			return false, ReasonStressOpposed
		}
	} else if regime.Stress == model.StressModerate {
		if directional && sig.Direction == regimeDir.Opposite() {
			return false, ReasonStressOpposed
		}
	}

	// 7. Regime alignment: a counter-regime signal under a strongly
	// directional regime must clear the higher counter-regime threshold.
	// Skipped for pre-qualified categories.
	if !sig.Category.ScoreExempt() && directional && regime.Confidence >= g.cfg.Gate.StrongRegimeConfidence {
		if sig.Direction == regimeDir.Opposite() && sig.Score < g.cfg.Gate.CounterRegimeThreshold {
			return false, ReasonCounterRegime
		}
	}

	return true, ReasonAdmitted
}

func (g *Gatekeeper) audit(sig *model.Signal, admitted bool, reason Reason, now time.Time) {
	err := g.rec.AppendAudit(&recorder.AuditEntry{
		SignalID:   sig.ID,
		Instrument: sig.Instrument,
		Direction:  sig.Direction,
		Category:   sig.Category,
		Score:      sig.Score,
		Admitted:   admitted,
		Reason:     string(reason),
		At:         now,
	})
	if err != nil {
		log.Printf("[ERROR] append audit for %s: %v", sig.ID, err)
	}
}
