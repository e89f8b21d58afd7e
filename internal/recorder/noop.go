package recorder

import (
	"time"

	"SignalDesk/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not available.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) AppendAudit(_ *AuditEntry) error                            { return nil }
func (n *NoopRecorder) RecentAudits(_ int) ([]AuditEntry, error)                   { return nil, nil }
func (n *NoopRecorder) AppendDecision(_ *model.Decision) error                     { return nil }
func (n *NoopRecorder) DecisionsSince(_ time.Time) ([]model.Decision, error)       { return nil, nil }
func (n *NoopRecorder) UnmatchedDecisions(_ time.Time) ([]model.Decision, error)   { return nil, nil }
func (n *NoopRecorder) AppendOutcome(_ *model.OutcomeRecord) error                 { return nil }
func (n *NoopRecorder) HasOutcome(_ string) (bool, error)                          { return false, nil }
func (n *NoopRecorder) OutcomesSince(_ time.Time) ([]model.OutcomeRecord, error)   { return nil, nil }
func (n *NoopRecorder) AppendLessons(_ []model.Lesson) error                       { return nil }
func (n *NoopRecorder) RecentLessons(_ int) ([]model.Lesson, error)                { return nil, nil }
func (n *NoopRecorder) Trim() error                                                { return nil }
func (n *NoopRecorder) Close() error                                               { return nil }
