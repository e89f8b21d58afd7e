package recorder

import (
	"time"

	"SignalDesk/internal/model"
)

// AuditEntry records one Gatekeeper evaluation, pass or reject.
type AuditEntry struct {
	SignalID   string
	Instrument string
	Direction  model.Direction
	Category   model.SourceCategory
	Score      float64
	Admitted   bool
	Reason     string
	At         time.Time
}

// RetentionPolicy bounds each ledger to its most recent N entries.
type RetentionPolicy struct {
	Audit     int
	Decisions int
	Outcomes  int
	Lessons   int
}

// Recorder persists the append-only ledgers. Each ledger is single-writer;
// appends are serialized internally, retention trimming is done by Trim.
type Recorder interface {
	AppendAudit(e *AuditEntry) error
	RecentAudits(n int) ([]AuditEntry, error)

	AppendDecision(d *model.Decision) error
	DecisionsSince(t time.Time) ([]model.Decision, error)
	// UnmatchedDecisions returns decisions since t with no outcome yet,
	// excluding RE_EVALUATE hand-offs (the follow-up decision is matched instead).
	UnmatchedDecisions(t time.Time) ([]model.Decision, error)

	AppendOutcome(o *model.OutcomeRecord) error
	HasOutcome(signalID string) (bool, error)
	OutcomesSince(t time.Time) ([]model.OutcomeRecord, error)

	AppendLessons(ls []model.Lesson) error
	RecentLessons(n int) ([]model.Lesson, error)

	Trim() error
	Close() error
}
