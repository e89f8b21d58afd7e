package model

import (
	"fmt"
	"time"
)

// Direction indicates the side a signal is betting on.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Opposite returns the opposing direction.
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// SourceCategory distinguishes where a signal came from and how much vetting it needs.
type SourceCategory string

const (
	// CategoryScored signals come from the scanner and must clear the score threshold.
	CategoryScored SourceCategory = "SCORED"
	// CategoryPreQualified signals were already vetted upstream; score checks are skipped.
	CategoryPreQualified SourceCategory = "PRE_QUALIFIED"
	// CategoryStressEvent alerts describe market stress; they are recorded, never traded directly.
	CategoryStressEvent SourceCategory = "STRESS_EVENT"
	// CategoryNeedsConfirmation alerts require a human-supplied corroboration before evaluation.
	CategoryNeedsConfirmation SourceCategory = "NEEDS_CONFIRMATION"
	// CategoryConfirmed is synthesized after a human confirms an alert; score check is bypassed.
	CategoryConfirmed SourceCategory = "CONFIRMED"
)

// ScoreExempt reports whether the category bypasses score-based filters.
func (c SourceCategory) ScoreExempt() bool {
	return c == CategoryPreQualified || c == CategoryConfirmed
}

// Signal is an incoming trading signal. Immutable once admitted.
type Signal struct {
	ID         string            `json:"id"`
	Instrument string            `json:"instrument"`
	Direction  Direction         `json:"direction"`
	Score      float64           `json:"score"`
	Category   SourceCategory    `json:"category"`
	CreatedAt  time.Time         `json:"created_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// DedupKey builds the instrument+direction+day composite used for same-day dedup.
func (s *Signal) DedupKey(day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", s.Instrument, s.Direction, day.UTC().Format("2006-01-02"))
}

// Age returns how old the signal is at the given instant.
func (s *Signal) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}
