package tracker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"SignalDesk/internal/config"
	"SignalDesk/internal/model"
	"SignalDesk/internal/recorder"
)

// Poster is the presentation boundary the tracker needs: post a
// recommendation with controls, send a plain note.
type Poster interface {
	PostRecommendation(rec *model.Recommendation) (string, error)
	Send(text string) error
}

// ReevaluateFunc re-runs the committee with a human objection injected.
// Wired by the scheduler to avoid a package cycle.
type ReevaluateFunc func(sig *model.Signal, objection string, prior *model.Recommendation) *model.Recommendation

// EntryState is a pending entry's position in its lifecycle.
type EntryState string

const (
	StateActive       EntryState = "ACTIVE"
	StateAccepted     EntryState = "ACCEPTED"
	StateRejected     EntryState = "REJECTED"
	StateDeferred     EntryState = "DEFERRED"
	StateExpired      EntryState = "EXPIRED"
	StateReevaluating EntryState = "RE_EVALUATING"
)

// PendingEntry is one live, undecided recommendation. At most one exists
// per signal id at any time.
type PendingEntry struct {
	SignalID   string
	Rec        *model.Recommendation
	State      EntryState
	PostedAt   time.Time
	MessageRef string
	Generation string
}

// Tracker holds the in-memory working set of pending entries and the
// short-lived pending-confirmation store.
//
// The working set deliberately does not survive a restart: entries are
// tagged with a per-process generation id and recommendations posted before
// a restart are treated as stale (actions on them get "not found").
type Tracker struct {
	mu            sync.Mutex
	cfg           *config.Config
	rec           recorder.Recorder
	poster        Poster
	reevaluate    ReevaluateFunc
	generation    string
	entries       map[string]*PendingEntry
	confirmations map[string]*Confirmation
}

// New creates a Tracker. SetReevaluate must be called before Pushback is used.
func New(cfg *config.Config, rec recorder.Recorder, poster Poster) *Tracker {
	return &Tracker{
		cfg:           cfg,
		rec:           rec,
		poster:        poster,
		generation:    uuid.NewString(),
		entries:       make(map[string]*PendingEntry),
		confirmations: make(map[string]*Confirmation),
	}
}

// SetReevaluate wires the pushback re-run hook.
func (t *Tracker) SetReevaluate(fn ReevaluateFunc) { t.reevaluate = fn }

// Publish registers a new ACTIVE entry for a freshly posted recommendation.
// Rejects a second entry for the same signal id while one is still active.
func (t *Tracker) Publish(rec *model.Recommendation, messageRef string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.entries[rec.Signal.ID]; ok && existing.State == StateActive {
		return fmt.Errorf("pending entry already active for signal %s", rec.Signal.ID)
	}
	t.entries[rec.Signal.ID] = &PendingEntry{
		SignalID:   rec.Signal.ID,
		Rec:        rec,
		State:      StateActive,
		PostedAt:   now,
		MessageRef: messageRef,
		Generation: t.generation,
	}
	return nil
}

// Resolve applies a human action to an ACTIVE entry. Only the first action
// is honored; anything after is a no-op with an explanatory reply and no
// second Decision.
func (t *Tracker) Resolve(signalID string, action model.HumanAction, overrideReason string, now time.Time) (string, error) {
	t.mu.Lock()

	entry, ok := t.entries[signalID]
	if !ok {
		t.mu.Unlock()
		return "", fmt.Errorf("no pending entry for signal %s (expired or predates restart)", signalID)
	}
	if entry.State != StateActive {
		t.mu.Unlock()
		return fmt.Sprintf("Signal %s was already resolved (%s); ignoring.", signalID, entry.State), nil
	}

	switch action {
	case model.HumanAccept:
		entry.State = StateAccepted
	case model.HumanReject:
		entry.State = StateRejected
	case model.HumanDefer:
		entry.State = StateDeferred
	default:
		t.mu.Unlock()
		return "", fmt.Errorf("unsupported action %s for signal %s", action, signalID)
	}

	t.appendDecision(entry, action, overrideReason, now)
	delete(t.entries, signalID)
	instrument := entry.Rec.Signal.Instrument
	t.mu.Unlock()

	if action == model.HumanDefer {
		t.scheduleDeferReminder(signalID, instrument)
	}
	return fmt.Sprintf("Recorded %s for %s (%s).", action, instrument, signalID), nil
}

// Pushback resolves the entry as RE_EVALUATE, re-runs the committee with
// the objection injected, and publishes a replacement entry tagged with a
// back-reference to the original recommendation.
func (t *Tracker) Pushback(signalID, objection string, now time.Time) (string, error) {
	if t.reevaluate == nil {
		return "", fmt.Errorf("pushback unavailable: re-evaluation hook not wired")
	}

	t.mu.Lock()
	entry, ok := t.entries[signalID]
	if !ok {
		t.mu.Unlock()
		return "", fmt.Errorf("no pending entry for signal %s (expired or predates restart)", signalID)
	}
	if entry.State != StateActive {
		t.mu.Unlock()
		return fmt.Sprintf("Signal %s was already resolved (%s); ignoring.", signalID, entry.State), nil
	}
	entry.State = StateReevaluating
	t.appendDecision(entry, model.HumanReevaluate, objection, now)
	delete(t.entries, signalID)
	prior := entry.Rec
	sig := prior.Signal
	t.mu.Unlock()

	// Committee run happens outside the lock; it is time-bounded per stage
	// and always returns a recommendation.
	newRec := t.reevaluate(&sig, objection, prior)

	ref, err := t.poster.PostRecommendation(newRec)
	if err != nil {
		log.Printf("[ERROR] post re-evaluation for %s: %v", signalID, err)
		return "", fmt.Errorf("re-evaluation completed but posting failed: %w", err)
	}
	if err := t.Publish(newRec, ref, time.Now().UTC()); err != nil {
		return "", err
	}
	return fmt.Sprintf("Re-evaluated %s; new recommendation posted.", sig.Instrument), nil
}

// SweepExpired moves ACTIVE entries past the deadline to EXPIRED, recording
// exactly one Decision each. Called on every scheduler tick.
func (t *Tracker) SweepExpired(now time.Time) {
	expiry := time.Duration(t.cfg.Tracker.PendingExpiryMin) * time.Minute

	t.mu.Lock()
	var expired []*PendingEntry
	for id, entry := range t.entries {
		if entry.State == StateActive && now.Sub(entry.PostedAt) > expiry {
			entry.State = StateExpired
			t.appendDecision(entry, model.HumanExpired, "", now)
			delete(t.entries, id)
			expired = append(expired, entry)
		}
	}
	t.mu.Unlock()

	for _, entry := range expired {
		log.Printf("[INFO] pending entry expired: %s (%s)", entry.SignalID, entry.Rec.Signal.Instrument)
		if err := t.poster.Send(fmt.Sprintf("⏳ Recommendation for %s expired without a decision.", entry.Rec.Signal.Instrument)); err != nil {
			log.Printf("[WARN] send expiry notice: %v", err)
		}
	}
}

// Active returns a copy of the current working set, for status commands.
func (t *Tracker) Active() []PendingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PendingEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

// appendDecision writes the single Decision for a resolved entry.
// Caller holds the lock.
func (t *Tracker) appendDecision(entry *PendingEntry, action model.HumanAction, reason string, now time.Time) {
	rec := entry.Rec
	override := false
	switch action {
	case model.HumanAccept, model.HumanReject, model.HumanDefer:
		override = string(action) != string(rec.Action)
	}

	d := &model.Decision{
		SignalID:         entry.SignalID,
		RecommendationID: rec.ID,
		Instrument:       rec.Signal.Instrument,
		Recommended:      rec.Action,
		Confidence:       rec.Confidence,
		Human:            action,
		Override:         override,
		OverrideReason:   reason,
		Stances:          rec.Stances(),
		Latency:          now.Sub(entry.PostedAt),
		DecidedAt:        now,
	}
	if err := t.rec.AppendDecision(d); err != nil {
		log.Printf("[ERROR] append decision for %s: %v", entry.SignalID, err)
	}
}

// scheduleDeferReminder fires a one-shot reminder independent of the tick loop.
func (t *Tracker) scheduleDeferReminder(signalID, instrument string) {
	delay := time.Duration(t.cfg.Tracker.DeferReminderMin) * time.Minute
	time.AfterFunc(delay, func() {
		msg := fmt.Sprintf("⏰ Reminder: you deferred the %s signal (%s) %s ago.",
			instrument, signalID, delay)
		if err := t.poster.Send(msg); err != nil {
			log.Printf("[WARN] send defer reminder: %v", err)
		}
	})
}
