package tracker

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"SignalDesk/internal/model"
	"SignalDesk/internal/recorder"
)

// Confirmation is a needs-confirmation alert awaiting human corroboration,
// held in the short-lived pending-confirmation store.
type Confirmation struct {
	ID          string
	Alert       model.Signal
	RequestedAt time.Time
	ExpiresAt   time.Time
}

// AddConfirmation holds an alert pending human confirmation and returns its
// correlation id.
func (t *Tracker) AddConfirmation(alert model.Signal, now time.Time) *Confirmation {
	window := time.Duration(t.cfg.Tracker.ConfirmWindowMin) * time.Minute
	c := &Confirmation{
		ID:          uuid.NewString(),
		Alert:       alert,
		RequestedAt: now,
		ExpiresAt:   now.Add(window),
	}
	t.mu.Lock()
	t.confirmations[c.ID] = c
	t.mu.Unlock()
	return c
}

// ResolveConfirmation settles a pending confirmation. When confirmed, it
// synthesizes a new Signal with category CONFIRMED (score check bypassed at
// the Gatekeeper) for re-entry into the pipeline. When declined, the alert
// is logged as expired and no Signal is created.
func (t *Tracker) ResolveConfirmation(corrID string, confirmed bool, now time.Time) (*model.Signal, error) {
	t.mu.Lock()
	c, ok := t.confirmations[corrID]
	if ok {
		delete(t.confirmations, corrID)
	}
	t.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("confirmation %s not found (already settled or expired)", corrID)
	}

	if !confirmed {
		t.auditConfirmation(&c.Alert, "confirmation_declined", now)
		return nil, nil
	}

	sig := &model.Signal{
		ID:         uuid.NewString(),
		Instrument: c.Alert.Instrument,
		Direction:  c.Alert.Direction,
		Score:      c.Alert.Score,
		Category:   model.CategoryConfirmed,
		CreatedAt:  now,
		Attributes: c.Alert.Attributes,
	}
	return sig, nil
}

// SweepConfirmations expires confirmations whose window elapsed without a
// response. Each tick only checks remaining windows; nothing blocks.
func (t *Tracker) SweepConfirmations(now time.Time) {
	t.mu.Lock()
	var expired []*Confirmation
	for id, c := range t.confirmations {
		if now.After(c.ExpiresAt) {
			delete(t.confirmations, id)
			expired = append(expired, c)
		}
	}
	t.mu.Unlock()

	for _, c := range expired {
		log.Printf("[INFO] confirmation window elapsed for %s (%s)", c.Alert.Instrument, c.ID)
		t.auditConfirmation(&c.Alert, "confirmation_expired", now)
		if err := t.poster.Send(fmt.Sprintf("⌛ Confirmation window for the %s alert elapsed; alert dropped.", c.Alert.Instrument)); err != nil {
			log.Printf("[WARN] send confirmation expiry notice: %v", err)
		}
	}
}

// PendingConfirmations returns a copy of the confirmation store.
func (t *Tracker) PendingConfirmations() []Confirmation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Confirmation, 0, len(t.confirmations))
	for _, c := range t.confirmations {
		out = append(out, *c)
	}
	return out
}

func (t *Tracker) auditConfirmation(alert *model.Signal, reason string, now time.Time) {
	err := t.rec.AppendAudit(&recorder.AuditEntry{
		SignalID:   alert.ID,
		Instrument: alert.Instrument,
		Direction:  alert.Direction,
		Category:   alert.Category,
		Score:      alert.Score,
		Admitted:   false,
		Reason:     reason,
		At:         now,
	})
	if err != nil {
		log.Printf("[ERROR] append confirmation audit for %s: %v", alert.ID, err)
	}
}
