package outcome

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"SignalDesk/internal/config"
	"SignalDesk/internal/model"
	"SignalDesk/internal/recorder"
	"SignalDesk/internal/sources"
)

// stubOutcomeSource serves canned outcomes and counts lookups.
type stubOutcomeSource struct {
	outcomes map[string]*sources.RawOutcome
	errs     map[string]error
	lookups  int
}

func (s *stubOutcomeSource) Outcome(_ context.Context, signalID string) (*sources.RawOutcome, error) {
	s.lookups++
	if err, ok := s.errs[signalID]; ok {
		return nil, err
	}
	return s.outcomes[signalID], nil
}

func matcherConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Outcome.LookbackDays = 14
	cfg.Outcome.BigWinFactor = 2.0
	return cfg
}

// resolvedSetup: entry 100, stop 95 (5% away), target 110 (10% away).
func resolvedSetup(favorable, adverse float64) *sources.RawOutcome {
	return &sources.RawOutcome{
		Entry: 100, Stop: 95, Target: 110,
		FavorablePct: favorable, AdversePct: adverse,
		HoldingHours: 6, Resolved: true,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  *sources.RawOutcome
		want model.OutcomeClass
	}{
		{"unresolved", &sources.RawOutcome{Entry: 100, Stop: 95, Target: 110}, model.OutcomePending},
		{"stop hit", resolvedSetup(3, 5), model.OutcomeLoss},
		{"stop hit before target", resolvedSetup(25, 6), model.OutcomeLoss},
		{"target reached", resolvedSetup(11, 2), model.OutcomeWin},
		{"double target", resolvedSetup(21, 2), model.OutcomeBigWin},
		{"went nowhere", resolvedSetup(4, 2), model.OutcomeExpired},
	}
	for _, tt := range tests {
		if got := Classify(tt.raw, 2.0); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestBuildRecord_OverrideVindication(t *testing.T) {
	now := time.Now().UTC()
	win := resolvedSetup(12, 3)

	// Committee said REJECT, human took it anyway, it won: vindicated.
	d := &model.Decision{
		SignalID:    "sig-1",
		Recommended: model.ActionReject,
		Human:       model.HumanAccept,
		Override:    true,
	}
	rec := buildRecord(d, win, model.OutcomeWin, now)
	if !rec.HumanRight || rec.RecommendationRight {
		t.Errorf("expected human right and committee wrong, got human=%v rec=%v", rec.HumanRight, rec.RecommendationRight)
	}
	if !rec.OverrideVindicated {
		t.Error("winning override should be vindicated")
	}
	if rec.RiskReward != 4.0 {
		t.Errorf("expected risk/reward 4.0, got %.2f", rec.RiskReward)
	}

	// Committee said ACCEPT and it won: no override, both right.
	d2 := &model.Decision{
		SignalID:    "sig-2",
		Recommended: model.ActionAccept,
		Human:       model.HumanAccept,
	}
	rec2 := buildRecord(d2, win, model.OutcomeWin, now)
	if !rec2.HumanRight || !rec2.RecommendationRight || rec2.OverrideVindicated {
		t.Errorf("aligned win misgraded: %+v", rec2)
	}

	// Expired entry with a REJECT and no human take: passing was right.
	loss := resolvedSetup(2, 6)
	d3 := &model.Decision{
		SignalID:    "sig-3",
		Recommended: model.ActionReject,
		Human:       model.HumanExpired,
	}
	rec3 := buildRecord(d3, loss, model.OutcomeLoss, now)
	if !rec3.HumanRight || !rec3.RecommendationRight {
		t.Errorf("avoided loss misgraded: %+v", rec3)
	}
}

func sqliteRecorder(t *testing.T) *recorder.SQLiteRecorder {
	t.Helper()
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "ledgers.db"), recorder.RetentionPolicy{
		Audit: 100, Decisions: 100, Outcomes: 100, Lessons: 10,
	})
	if err != nil {
		t.Fatalf("init sqlite recorder: %v", err)
	}
	t.Cleanup(func() { rec.Close() })
	return rec
}

func appendDecision(t *testing.T, rec recorder.Recorder, signalID string, human model.HumanAction) {
	t.Helper()
	err := rec.AppendDecision(&model.Decision{
		SignalID:    signalID,
		Instrument:  "ES",
		Recommended: model.ActionAccept,
		Confidence:  model.ConfidenceMedium,
		Human:       human,
		DecidedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("append decision: %v", err)
	}
}

func TestMatcher_RunIsIdempotent(t *testing.T) {
	rec := sqliteRecorder(t)
	appendDecision(t, rec, "sig-1", model.HumanAccept)

	src := &stubOutcomeSource{outcomes: map[string]*sources.RawOutcome{
		"sig-1": resolvedSetup(12, 2),
	}}
	m := New(matcherConfig(), rec, src)

	m.Run(context.Background())
	m.Run(context.Background())

	outcomes, err := rec.OutcomesSince(time.Now().UTC().AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("load outcomes: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected exactly 1 outcome after two runs, got %d", len(outcomes))
	}
	if outcomes[0].Class != model.OutcomeWin {
		t.Errorf("expected WIN, got %s", outcomes[0].Class)
	}
	if src.lookups != 1 {
		t.Errorf("matched decision should not be looked up again, got %d lookups", src.lookups)
	}
}

func TestMatcher_UnresolvedRetriedNextRun(t *testing.T) {
	rec := sqliteRecorder(t)
	appendDecision(t, rec, "sig-1", model.HumanAccept)

	src := &stubOutcomeSource{outcomes: map[string]*sources.RawOutcome{}}
	m := New(matcherConfig(), rec, src)

	m.Run(context.Background())
	if outcomes, _ := rec.OutcomesSince(time.Now().UTC().AddDate(0, 0, -1)); len(outcomes) != 0 {
		t.Fatalf("unknown outcome should not be written, got %d", len(outcomes))
	}

	// Outcome shows up upstream; the next run picks it up.
	src.outcomes["sig-1"] = resolvedSetup(11, 2)
	m.Run(context.Background())
	outcomes, _ := rec.OutcomesSince(time.Now().UTC().AddDate(0, 0, -1))
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome once resolved, got %d", len(outcomes))
	}
}

func TestMatcher_OneFailureDoesNotStopTheBatch(t *testing.T) {
	rec := sqliteRecorder(t)
	appendDecision(t, rec, "sig-bad", model.HumanAccept)
	appendDecision(t, rec, "sig-good", model.HumanAccept)

	src := &stubOutcomeSource{
		outcomes: map[string]*sources.RawOutcome{"sig-good": resolvedSetup(11, 2)},
		errs:     map[string]error{"sig-bad": errors.New("reconciliation down")},
	}
	m := New(matcherConfig(), rec, src)
	m.Run(context.Background())

	outcomes, err := rec.OutcomesSince(time.Now().UTC().AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("load outcomes: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].SignalID != "sig-good" {
		t.Fatalf("expected sig-good matched despite sig-bad failing, got %+v", outcomes)
	}
}

func TestMatcher_SkipsReevaluateDecisions(t *testing.T) {
	rec := sqliteRecorder(t)
	appendDecision(t, rec, "sig-1", model.HumanReevaluate)

	src := &stubOutcomeSource{outcomes: map[string]*sources.RawOutcome{
		"sig-1": resolvedSetup(11, 2),
	}}
	m := New(matcherConfig(), rec, src)
	m.Run(context.Background())

	if src.lookups != 0 {
		t.Errorf("RE_EVALUATE decisions should never be matched, got %d lookups", src.lookups)
	}
}
