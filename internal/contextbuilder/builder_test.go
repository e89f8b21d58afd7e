package contextbuilder

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalDesk/internal/config"
	"SignalDesk/internal/model"
	"SignalDesk/internal/recorder"
	"SignalDesk/internal/sources"
)

type stubRegime struct {
	snap model.RegimeSnapshot
	err  error
}

func (s *stubRegime) Snapshot(_ context.Context) (model.RegimeSnapshot, error) {
	return s.snap, s.err
}

type stubPositions struct {
	positions []model.Position
	err       error
}

func (s *stubPositions) Positions(_ context.Context, _ string) ([]model.Position, error) {
	return s.positions, s.err
}

type stubCatalysts struct {
	set model.CatalystSet
	err error
}

func (s *stubCatalysts) Events(_ context.Context, _ string, _ int) (model.CatalystSet, error) {
	return s.set, s.err
}

func builderConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Sources.ReadTimeoutSec = 2
	cfg.Retention.LessonKeep = 10
	cfg.Retention.CatalystLookahead = 7
	return cfg
}

func buildSignal() *model.Signal {
	return &model.Signal{ID: "sig-1", Instrument: "ES", Direction: model.DirectionUp}
}

func TestBuild_AllSourcesHealthy(t *testing.T) {
	regime := &stubRegime{snap: model.RegimeSnapshot{Label: model.RegimeTrendingUp, Confidence: 0.8, Stress: model.StressLow}}
	positions := &stubPositions{positions: []model.Position{
		{Instrument: "ES", Structure: "vertical", Quantity: 2, MaxLoss: 500, MaxLossKnown: true},
		{Instrument: "CL", Structure: "single", Quantity: 1, MaxLoss: 300, MaxLossKnown: true},
		{Instrument: "NQ", Structure: "calendar", Quantity: 1, MaxLossKnown: false},
	}}
	catalysts := &stubCatalysts{set: model.CatalystSet{
		InstrumentEvents: []model.Catalyst{{Instrument: "ES", Title: "earnings"}},
	}}
	stress := sources.NewStressStore(12 * time.Hour)
	stress.Append(model.StressEvent{At: time.Now(), Kind: "VOL_SPIKE"})

	b := New(builderConfig(), regime, positions, catalysts, stress, recorder.NewNoopRecorder())
	bundle := b.Build(context.Background(), buildSignal())

	if bundle.Degraded() {
		t.Error("healthy sources should not degrade the bundle")
	}
	if len(bundle.Positions) != 1 || bundle.Positions[0].Instrument != "ES" {
		t.Errorf("positions should be scoped to the signal's instrument, got %+v", bundle.Positions)
	}
	if bundle.TotalExposure != 800 {
		t.Errorf("exposure should sum known max losses across all instruments, got %.0f", bundle.TotalExposure)
	}
	if len(bundle.StressEvents) != 1 {
		t.Errorf("expected 1 stress event, got %d", len(bundle.StressEvents))
	}
	if bundle.Regime.Label != model.RegimeTrendingUp {
		t.Errorf("unexpected regime: %s", bundle.Regime.Label)
	}
}

func TestBuild_OneFieldDownDegradesOnlyThatField(t *testing.T) {
	regime := &stubRegime{snap: model.RegimeSnapshot{Label: model.RegimeNeutral, Stress: model.StressLow}}
	positions := &stubPositions{err: errors.New("broker bridge down")}
	catalysts := &stubCatalysts{}
	stress := sources.NewStressStore(12 * time.Hour)

	b := New(builderConfig(), regime, positions, catalysts, stress, recorder.NewNoopRecorder())
	bundle := b.Build(context.Background(), buildSignal())

	if !bundle.Degraded() {
		t.Error("a failed read should mark the bundle degraded")
	}
	if bundle.PositionsStatus != model.FieldUnavailable {
		t.Errorf("positions should be unavailable, got %s", bundle.PositionsStatus)
	}
	if bundle.RegimeStatus != model.FieldOK {
		t.Errorf("regime should be unaffected, got %s", bundle.RegimeStatus)
	}
	if bundle.CatalystsStatus != model.FieldOK {
		t.Errorf("catalysts should be unaffected, got %s", bundle.CatalystsStatus)
	}
}

func TestRegime_DegradesToNeutral(t *testing.T) {
	b := New(builderConfig(), &stubRegime{err: errors.New("source down")}, &stubPositions{}, &stubCatalysts{},
		sources.NewStressStore(12*time.Hour), recorder.NewNoopRecorder())

	snap := b.Regime(context.Background())
	if snap.Label != model.RegimeNeutral || !snap.Stale {
		t.Errorf("expected stale neutral fallback, got %+v", snap)
	}
}

func TestStressStore_PrunesOutsideWindow(t *testing.T) {
	store := sources.NewStressStore(4 * time.Hour)
	now := time.Now()
	store.Append(model.StressEvent{At: now.Add(-6 * time.Hour), Kind: "OLD"})
	store.Append(model.StressEvent{At: now.Add(-1 * time.Hour), Kind: "RECENT"})

	recent := store.Recent(now)
	if len(recent) != 1 || recent[0].Kind != "RECENT" {
		t.Errorf("expected only the recent event, got %+v", recent)
	}
}
