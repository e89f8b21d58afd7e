package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"SignalDesk/internal/model"
)

// RegimeSource reads the current market regime.
type RegimeSource interface {
	Snapshot(ctx context.Context) (model.RegimeSnapshot, error)
}

// PositionStore reads open positions. Empty instrument means all positions.
type PositionStore interface {
	Positions(ctx context.Context, instrument string) ([]model.Position, error)
}

// CatalystSource reads upcoming market events within a lookahead window.
type CatalystSource interface {
	Events(ctx context.Context, instrument string, days int) (model.CatalystSet, error)
}

// RawOutcome is the outcome source's view of a resolved trade setup.
type RawOutcome struct {
	Entry        float64 `json:"entry"`
	Stop         float64 `json:"stop"`
	Target       float64 `json:"target"`
	FavorablePct float64 `json:"favorable_pct"` // best excursion in the signal's direction
	AdversePct   float64 `json:"adverse_pct"`   // worst excursion against it
	HoldingHours float64 `json:"holding_hours"`
	Resolved     bool    `json:"resolved"`
}

// OutcomeSource resolves a signal id to its realized outcome.
// Returns (nil, nil) when the outcome is not known yet.
type OutcomeSource interface {
	Outcome(ctx context.Context, signalID string) (*RawOutcome, error)
}

// HTTPRegimeSource reads the regime snapshot from a REST endpoint.
type HTTPRegimeSource struct {
	URL    string
	Client *Client
}

func (s *HTTPRegimeSource) Snapshot(ctx context.Context) (model.RegimeSnapshot, error) {
	var snap model.RegimeSnapshot
	if err := s.Client.GetJSON(ctx, s.URL, &snap); err != nil {
		return model.RegimeSnapshot{}, fmt.Errorf("fetch regime: %w", err)
	}
	return snap, nil
}

// HTTPPositionStore reads open positions from the brokerage bridge.
type HTTPPositionStore struct {
	URL    string
	Client *Client
}

func (s *HTTPPositionStore) Positions(ctx context.Context, instrument string) ([]model.Position, error) {
	endpoint := s.URL
	if instrument != "" {
		endpoint = fmt.Sprintf("%s?instrument=%s", s.URL, url.QueryEscape(instrument))
	}
	var positions []model.Position
	if err := s.Client.GetJSON(ctx, endpoint, &positions); err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	return positions, nil
}

// HTTPCatalystSource reads the event calendar.
type HTTPCatalystSource struct {
	URL    string
	Client *Client
}

func (s *HTTPCatalystSource) Events(ctx context.Context, instrument string, days int) (model.CatalystSet, error) {
	endpoint := fmt.Sprintf("%s?instrument=%s&days=%d", s.URL, url.QueryEscape(instrument), days)
	var set model.CatalystSet
	if err := s.Client.GetJSON(ctx, endpoint, &set); err != nil {
		return model.CatalystSet{}, fmt.Errorf("fetch catalysts: %w", err)
	}
	return set, nil
}

// HTTPOutcomeSource reads realized outcomes from the reconciliation service.
type HTTPOutcomeSource struct {
	URL    string
	Client *Client
}

func (s *HTTPOutcomeSource) Outcome(ctx context.Context, signalID string) (*RawOutcome, error) {
	endpoint := fmt.Sprintf("%s/%s", s.URL, url.PathEscape(signalID))
	var raw RawOutcome
	if err := s.Client.GetJSON(ctx, endpoint, &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch outcome: %w", err)
	}
	return &raw, nil
}

// Held converts the reported holding hours into a Duration.
func (r *RawOutcome) Held() time.Duration {
	return time.Duration(r.HoldingHours * float64(time.Hour))
}
