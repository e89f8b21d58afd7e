package recorder

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"SignalDesk/internal/model"
)

func openTestRecorder(t *testing.T, keep RetentionPolicy) *SQLiteRecorder {
	t.Helper()
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "ledgers.db"), keep)
	if err != nil {
		t.Fatalf("open recorder: %v", err)
	}
	t.Cleanup(func() { rec.Close() })
	return rec
}

func defaultKeep() RetentionPolicy {
	return RetentionPolicy{Audit: 100, Decisions: 100, Outcomes: 100, Lessons: 100}
}

func TestDecisionRoundTrip(t *testing.T) {
	rec := openTestRecorder(t, defaultKeep())
	decided := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	err := rec.AppendDecision(&model.Decision{
		SignalID:         "sig-1",
		RecommendationID: "rec-1",
		Instrument:       "ES",
		Recommended:      model.ActionAccept,
		Confidence:       model.ConfidenceHigh,
		Human:            model.HumanReject,
		Override:         true,
		OverrideReason:   "macro risk",
		Stances:          map[string]string{model.StageAdvocate: model.StanceBullish},
		Latency:          90 * time.Second,
		DecidedAt:        decided,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := rec.DecisionsSince(decided.Add(-time.Hour))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(got))
	}
	d := got[0]
	if d.SignalID != "sig-1" || d.Recommended != model.ActionAccept || d.Human != model.HumanReject {
		t.Errorf("fields lost in round trip: %+v", d)
	}
	if !d.Override || d.OverrideReason != "macro risk" {
		t.Errorf("override fields lost: %+v", d)
	}
	if d.Stances[model.StageAdvocate] != model.StanceBullish {
		t.Errorf("stances lost: %+v", d.Stances)
	}
	if d.Latency != 90*time.Second {
		t.Errorf("latency lost: %s", d.Latency)
	}
	if !d.DecidedAt.Equal(decided) {
		t.Errorf("timestamp drift: %s vs %s", d.DecidedAt, decided)
	}

	// Window filter excludes older rows.
	if got, _ := rec.DecisionsSince(decided.Add(time.Hour)); len(got) != 0 {
		t.Errorf("future window should be empty, got %d", len(got))
	}
}

func TestUnmatchedDecisions_Filters(t *testing.T) {
	rec := openTestRecorder(t, defaultKeep())
	now := time.Now().UTC()

	for id, human := range map[string]model.HumanAction{
		"sig-open":    model.HumanAccept,
		"sig-matched": model.HumanAccept,
		"sig-reeval":  model.HumanReevaluate,
	} {
		if err := rec.AppendDecision(&model.Decision{SignalID: id, Human: human, DecidedAt: now}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if err := rec.AppendOutcome(&model.OutcomeRecord{SignalID: "sig-matched", Class: model.OutcomeWin, MatchedAt: now}); err != nil {
		t.Fatalf("append outcome: %v", err)
	}

	got, err := rec.UnmatchedDecisions(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].SignalID != "sig-open" {
		t.Errorf("expected only sig-open unmatched, got %+v", got)
	}
}

func TestAppendOutcome_SignalMatchedOnce(t *testing.T) {
	rec := openTestRecorder(t, defaultKeep())
	now := time.Now().UTC()

	first := &model.OutcomeRecord{SignalID: "sig-1", Class: model.OutcomeWin, MatchedAt: now}
	if err := rec.AppendOutcome(first); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := rec.AppendOutcome(&model.OutcomeRecord{SignalID: "sig-1", Class: model.OutcomeLoss, MatchedAt: now}); err == nil {
		t.Error("second outcome for the same signal should violate the unique index")
	}

	has, err := rec.HasOutcome("sig-1")
	if err != nil || !has {
		t.Errorf("expected HasOutcome true, got %v %v", has, err)
	}
	if has, _ := rec.HasOutcome("sig-unknown"); has {
		t.Error("unknown signal should have no outcome")
	}
}

func TestAuditAndTrim(t *testing.T) {
	keep := defaultKeep()
	keep.Audit = 5
	rec := openTestRecorder(t, keep)
	now := time.Now().UTC()

	for i := 0; i < 8; i++ {
		err := rec.AppendAudit(&AuditEntry{
			SignalID:   fmt.Sprintf("sig-%d", i),
			Instrument: "ES",
			Direction:  model.DirectionUp,
			Category:   model.CategoryScored,
			Score:      70,
			Admitted:   i%2 == 0,
			Reason:     "admitted",
			At:         now,
		})
		if err != nil {
			t.Fatalf("append audit %d: %v", i, err)
		}
	}

	if err := rec.Trim(); err != nil {
		t.Fatalf("trim: %v", err)
	}
	got, err := rec.RecentAudits(100)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 audits after trim, got %d", len(got))
	}
	// Most recent first, oldest rows pruned.
	if got[0].SignalID != "sig-7" || got[4].SignalID != "sig-3" {
		t.Errorf("trim kept the wrong rows: first=%s last=%s", got[0].SignalID, got[4].SignalID)
	}
}

func TestAppendLessons_BoundedStore(t *testing.T) {
	keep := defaultKeep()
	keep.Lessons = 3
	rec := openTestRecorder(t, keep)
	now := time.Now().UTC()

	var lessons []model.Lesson
	for i := 0; i < 5; i++ {
		lessons = append(lessons, model.Lesson{
			Text:       fmt.Sprintf("lesson %d", i),
			Week:       "2026-W11",
			SampleSize: 20,
			CreatedAt:  now,
		})
	}
	if err := rec.AppendLessons(lessons); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := rec.RecentLessons(10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected bounded store of 3, got %d", len(got))
	}
	if got[0].Text != "lesson 4" {
		t.Errorf("expected newest lesson first, got %q", got[0].Text)
	}
}
