package outcome

import (
	"context"
	"log"
	"math"
	"time"

	"SignalDesk/internal/config"
	"SignalDesk/internal/model"
	"SignalDesk/internal/recorder"
	"SignalDesk/internal/sources"
)

// Matcher joins recorded decisions with realized outcomes. It runs on the
// nightly schedule, offline from the live path, and is idempotent: a signal
// id already in the outcome ledger is never reprocessed.
type Matcher struct {
	cfg *config.Config
	rec recorder.Recorder
	src sources.OutcomeSource
}

// New creates a Matcher.
func New(cfg *config.Config, rec recorder.Recorder, src sources.OutcomeSource) *Matcher {
	return &Matcher{cfg: cfg, rec: rec, src: src}
}

// Run matches all unmatched decisions inside the trailing lookback window.
// A miss at the outcome source is skipped and retried next run; no error
// surfaces for it.
func (m *Matcher) Run(ctx context.Context) {
	since := time.Now().UTC().AddDate(0, 0, -m.cfg.Outcome.LookbackDays)
	decisions, err := m.rec.UnmatchedDecisions(since)
	if err != nil {
		log.Printf("[ERROR] outcome matcher: load unmatched decisions: %v", err)
		return
	}
	if len(decisions) == 0 {
		return
	}
	log.Printf("[INFO] outcome matcher: %d unmatched decisions", len(decisions))

	matched := 0
	for _, d := range decisions {
		if err := m.matchOne(ctx, &d); err != nil {
			log.Printf("[WARN] outcome matcher: %s: %v", d.SignalID, err)
			continue
		}
		matched++
	}
	log.Printf("[INFO] outcome matcher: matched %d/%d", matched, len(decisions))
}

func (m *Matcher) matchOne(ctx context.Context, d *model.Decision) error {
	// Idempotence guard; UnmatchedDecisions already filters, the unique
	// index on the ledger is the backstop.
	already, err := m.rec.HasOutcome(d.SignalID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	raw, err := m.src.Outcome(ctx, d.SignalID)
	if err != nil {
		return err
	}
	if raw == nil {
		// Not resolved upstream yet; retried next run.
		return nil
	}

	class := Classify(raw, m.cfg.Outcome.BigWinFactor)
	if class == model.OutcomePending {
		return nil
	}

	rec := buildRecord(d, raw, class, time.Now().UTC())
	return m.rec.AppendOutcome(rec)
}

// Classify grades a resolved setup from its excursions relative to the
// entry/stop/target levels.
func Classify(raw *sources.RawOutcome, bigWinFactor float64) model.OutcomeClass {
	if !raw.Resolved {
		return model.OutcomePending
	}

	targetDist := pctDistance(raw.Entry, raw.Target)
	stopDist := pctDistance(raw.Entry, raw.Stop)

	switch {
	case stopDist > 0 && raw.AdversePct >= stopDist:
		return model.OutcomeLoss
	case targetDist > 0 && raw.FavorablePct >= targetDist*bigWinFactor:
		return model.OutcomeBigWin
	case targetDist > 0 && raw.FavorablePct >= targetDist:
		return model.OutcomeWin
	default:
		return model.OutcomeExpired
	}
}

func buildRecord(d *model.Decision, raw *sources.RawOutcome, class model.OutcomeClass, now time.Time) *model.OutcomeRecord {
	favorable := class.Favorable()
	adverse := class == model.OutcomeLoss

	recRight := (d.Recommended == model.ActionAccept && favorable) ||
		(d.Recommended == model.ActionReject && adverse)
	// DEFER and EXPIRED count as not taking the trade.
	humanTook := d.Human == model.HumanAccept
	humanRight := (humanTook && favorable) || (!humanTook && adverse)

	rr := 0.0
	if raw.AdversePct > 0 {
		rr = raw.FavorablePct / raw.AdversePct
	}

	return &model.OutcomeRecord{
		SignalID:            d.SignalID,
		Class:               class,
		FavorablePct:        raw.FavorablePct,
		AdversePct:          raw.AdversePct,
		RiskReward:          rr,
		Held:                raw.Held(),
		RecommendationRight: recRight,
		HumanRight:          humanRight,
		OverrideVindicated:  d.Override && humanRight && !recRight,
		MatchedAt:           now,
	}
}

// pctDistance returns the absolute distance between two levels as a
// percentage of the entry level.
func pctDistance(entry, level float64) float64 {
	if entry == 0 {
		return 0
	}
	return math.Abs(level-entry) / entry * 100
}
