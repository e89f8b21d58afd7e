package tracker

import (
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/config"
	"SignalDesk/internal/model"
	"SignalDesk/internal/recorder"
)

// capturePoster records everything posted or sent.
type capturePoster struct {
	mu     sync.Mutex
	posted []*model.Recommendation
	sent   []string
}

func (p *capturePoster) PostRecommendation(rec *model.Recommendation) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted = append(p.posted, rec)
	return "msg-1", nil
}

func (p *capturePoster) Send(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, text)
	return nil
}

// captureRecorder keeps appended decisions and audits in memory.
type captureRecorder struct {
	*recorder.NoopRecorder
	mu        sync.Mutex
	decisions []model.Decision
	audits    []recorder.AuditEntry
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{NoopRecorder: recorder.NewNoopRecorder()}
}

func (r *captureRecorder) AppendDecision(d *model.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, *d)
	return nil
}

func (r *captureRecorder) AppendAudit(e *recorder.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, *e)
	return nil
}

func trackerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Tracker.PendingExpiryMin = 60
	cfg.Tracker.ConfirmWindowMin = 15
	cfg.Tracker.DeferReminderMin = 30
	return cfg
}

func testRec(signalID string, action model.Action) *model.Recommendation {
	return &model.Recommendation{
		ID: "rec-" + signalID,
		Signal: model.Signal{
			ID:         signalID,
			Instrument: "ES",
			Direction:  model.DirectionUp,
			Score:      72,
			Category:   model.CategoryScored,
		},
		Stages: []model.StageResult{
			{Stage: model.StageAdvocate, Status: model.StageOK, Stance: model.StanceBullish},
			{Stage: model.StageSkeptic, Status: model.StageOK, Stance: model.StanceBearish},
		},
		Action:     action,
		Confidence: model.ConfidenceMedium,
	}
}

func TestResolve_FirstActionWins(t *testing.T) {
	rec := newCaptureRecorder()
	tr := New(trackerConfig(), rec, &capturePoster{})
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	if err := tr.Publish(testRec("sig-1", model.ActionAccept), "msg-1", now); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, err := tr.Resolve("sig-1", model.HumanAccept, "", now.Add(2*time.Minute)); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := tr.Resolve("sig-1", model.HumanReject, "", now.Add(3*time.Minute)); err == nil {
		t.Error("second action on the same entry should fail")
	}

	if len(rec.decisions) != 1 {
		t.Fatalf("expected exactly 1 decision, got %d", len(rec.decisions))
	}
	d := rec.decisions[0]
	if d.Human != model.HumanAccept {
		t.Errorf("expected ACCEPT recorded, got %s", d.Human)
	}
	if d.Latency != 2*time.Minute {
		t.Errorf("expected 2m latency, got %s", d.Latency)
	}
	if len(tr.Active()) != 0 {
		t.Error("resolved entry should leave the working set")
	}
}

func TestResolve_OverrideDetection(t *testing.T) {
	rec := newCaptureRecorder()
	tr := New(trackerConfig(), rec, &capturePoster{})
	now := time.Now().UTC()

	// Human agrees with the committee: no override.
	tr.Publish(testRec("sig-agree", model.ActionAccept), "m", now)
	tr.Resolve("sig-agree", model.HumanAccept, "", now)

	// Human goes against a REJECT: override.
	tr.Publish(testRec("sig-override", model.ActionReject), "m", now)
	tr.Resolve("sig-override", model.HumanAccept, "I trust the setup", now)

	if len(rec.decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(rec.decisions))
	}
	if rec.decisions[0].Override {
		t.Error("agreeing action should not be an override")
	}
	if !rec.decisions[1].Override {
		t.Error("contrary action should be an override")
	}
	if rec.decisions[1].OverrideReason != "I trust the setup" {
		t.Errorf("override reason not recorded: %q", rec.decisions[1].OverrideReason)
	}
	if rec.decisions[1].Stances[model.StageAdvocate] != model.StanceBullish {
		t.Error("stage stances should be copied onto the decision")
	}
}

func TestPublish_RejectsSecondActiveEntry(t *testing.T) {
	tr := New(trackerConfig(), newCaptureRecorder(), &capturePoster{})
	now := time.Now().UTC()

	if err := tr.Publish(testRec("sig-1", model.ActionAccept), "m1", now); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := tr.Publish(testRec("sig-1", model.ActionReject), "m2", now); err == nil {
		t.Error("second active entry for the same signal should be rejected")
	}
}

func TestSweepExpired(t *testing.T) {
	rec := newCaptureRecorder()
	poster := &capturePoster{}
	tr := New(trackerConfig(), rec, poster)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tr.Publish(testRec("sig-old", model.ActionAccept), "m1", now)
	tr.Publish(testRec("sig-new", model.ActionAccept), "m2", now.Add(30*time.Minute))

	tr.SweepExpired(now.Add(61 * time.Minute))

	if len(rec.decisions) != 1 {
		t.Fatalf("expected 1 expiry decision, got %d", len(rec.decisions))
	}
	if rec.decisions[0].Human != model.HumanExpired {
		t.Errorf("expected EXPIRED, got %s", rec.decisions[0].Human)
	}
	if rec.decisions[0].SignalID != "sig-old" {
		t.Errorf("wrong entry expired: %s", rec.decisions[0].SignalID)
	}
	if len(poster.sent) != 1 {
		t.Errorf("expected one expiry notice, got %d", len(poster.sent))
	}

	active := tr.Active()
	if len(active) != 1 || active[0].SignalID != "sig-new" {
		t.Errorf("younger entry should survive the sweep, got %v", active)
	}

	// Sweeping again must not produce a second decision.
	tr.SweepExpired(now.Add(62 * time.Minute))
	if len(rec.decisions) != 1 {
		t.Errorf("repeat sweep should be idempotent, got %d decisions", len(rec.decisions))
	}
}

func TestPushback_ReevaluatesAndReplaces(t *testing.T) {
	rec := newCaptureRecorder()
	poster := &capturePoster{}
	tr := New(trackerConfig(), rec, poster)
	now := time.Now().UTC()

	var gotObjection string
	tr.SetReevaluate(func(sig *model.Signal, objection string, prior *model.Recommendation) *model.Recommendation {
		gotObjection = objection
		newRec := testRec(sig.ID, model.ActionDefer)
		newRec.ID = "rec-reeval"
		newRec.Reevaluation = true
		newRec.ParentID = prior.ID
		return newRec
	})

	tr.Publish(testRec("sig-1", model.ActionReject), "m1", now)
	reply, err := tr.Pushback("sig-1", "vol crush already happened", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("pushback: %v", err)
	}
	if reply == "" {
		t.Error("expected a reply after pushback")
	}
	if gotObjection != "vol crush already happened" {
		t.Errorf("objection not forwarded: %q", gotObjection)
	}

	if len(rec.decisions) != 1 || rec.decisions[0].Human != model.HumanReevaluate {
		t.Fatalf("expected one RE_EVALUATE decision, got %+v", rec.decisions)
	}
	if rec.decisions[0].Override {
		t.Error("a pushback is not an override")
	}

	if len(poster.posted) != 1 || poster.posted[0].ID != "rec-reeval" {
		t.Fatal("replacement recommendation should be posted")
	}
	active := tr.Active()
	if len(active) != 1 || active[0].Rec.ParentID != "rec-sig-1" {
		t.Errorf("replacement entry should reference the prior recommendation, got %+v", active)
	}
}

func TestConfirmation_ConfirmedSynthesizesSignal(t *testing.T) {
	tr := New(trackerConfig(), newCaptureRecorder(), &capturePoster{})
	now := time.Now().UTC()

	alert := model.Signal{
		ID:         "alert-1",
		Instrument: "CL",
		Direction:  model.DirectionDown,
		Score:      40,
		Category:   model.CategoryNeedsConfirmation,
	}
	c := tr.AddConfirmation(alert, now)

	sig, err := tr.ResolveConfirmation(c.ID, true, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sig == nil {
		t.Fatal("confirmed alert should synthesize a signal")
	}
	if sig.Category != model.CategoryConfirmed {
		t.Errorf("expected CONFIRMED category, got %s", sig.Category)
	}
	if sig.ID == alert.ID {
		t.Error("synthesized signal should get a fresh id")
	}
	if sig.Instrument != "CL" || sig.Direction != model.DirectionDown {
		t.Error("instrument and direction should carry over")
	}
	if len(tr.PendingConfirmations()) != 0 {
		t.Error("settled confirmation should leave the store")
	}

	// A second resolution of the same id must fail.
	if _, err := tr.ResolveConfirmation(c.ID, true, now); err == nil {
		t.Error("double resolution should fail")
	}
}

func TestConfirmation_DeclinedAndExpired(t *testing.T) {
	rec := newCaptureRecorder()
	poster := &capturePoster{}
	tr := New(trackerConfig(), rec, poster)
	now := time.Now().UTC()

	alert := model.Signal{ID: "alert-1", Instrument: "CL", Category: model.CategoryNeedsConfirmation}
	c := tr.AddConfirmation(alert, now)

	sig, err := tr.ResolveConfirmation(c.ID, false, now)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if sig != nil {
		t.Error("declined alert should not synthesize a signal")
	}
	if len(rec.audits) != 1 || rec.audits[0].Reason != "confirmation_declined" {
		t.Errorf("expected a declined audit entry, got %+v", rec.audits)
	}

	// Expiry path.
	c2 := tr.AddConfirmation(alert, now)
	tr.SweepConfirmations(now.Add(16 * time.Minute))
	if len(tr.PendingConfirmations()) != 0 {
		t.Error("expired confirmation should leave the store")
	}
	if len(rec.audits) != 2 || rec.audits[1].Reason != "confirmation_expired" {
		t.Errorf("expected an expired audit entry, got %+v", rec.audits)
	}
	if len(poster.sent) != 1 {
		t.Errorf("expected one expiry notice, got %d", len(poster.sent))
	}
	if _, err := tr.ResolveConfirmation(c2.ID, true, now.Add(17*time.Minute)); err == nil {
		t.Error("resolution after expiry should fail")
	}
}
