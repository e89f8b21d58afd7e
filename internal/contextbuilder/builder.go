package contextbuilder

import (
	"context"
	"log"
	"sync"
	"time"

	"SignalDesk/internal/config"
	"SignalDesk/internal/model"
	"SignalDesk/internal/recorder"
	"SignalDesk/internal/sources"
)

// Builder assembles the ContextBundle for an admitted signal. Reads are
// issued concurrently, each with its own timeout; a failed read degrades
// its field only, never the whole bundle.
type Builder struct {
	cfg       *config.Config
	regime    sources.RegimeSource
	positions sources.PositionStore
	catalysts sources.CatalystSource
	stress    *sources.StressStore
	lessons   recorder.Recorder
}

// New creates a Builder over the given read-only sources.
func New(cfg *config.Config, regime sources.RegimeSource, positions sources.PositionStore,
	catalysts sources.CatalystSource, stress *sources.StressStore, lessons recorder.Recorder) *Builder {
	return &Builder{
		cfg:       cfg,
		regime:    regime,
		positions: positions,
		catalysts: catalysts,
		stress:    stress,
		lessons:   lessons,
	}
}

// Regime fetches the current regime snapshot, degrading to a neutral
// default with a staleness flag on failure. Used by the Gatekeeper too.
func (b *Builder) Regime(ctx context.Context) model.RegimeSnapshot {
	readCtx, cancel := b.readContext(ctx)
	defer cancel()

	snap, err := b.regime.Snapshot(readCtx)
	if err != nil {
		log.Printf("[WARN] regime fetch failed, using neutral default: %v", err)
		return model.NeutralRegime()
	}
	return snap
}

// Build assembles the bundle for one signal. Always returns a valid bundle;
// fields that could not be fetched are marked unavailable.
func (b *Builder) Build(ctx context.Context, sig *model.Signal) *model.ContextBundle {
	bundle := &model.ContextBundle{BuiltAt: time.Now().UTC()}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		readCtx, cancel := b.readContext(ctx)
		defer cancel()
		snap, err := b.regime.Snapshot(readCtx)
		if err != nil {
			log.Printf("[WARN] context: regime read failed: %v", err)
			bundle.Regime = model.NeutralRegime()
			bundle.RegimeStatus = model.FieldUnavailable
			return
		}
		bundle.Regime = snap
		bundle.RegimeStatus = model.FieldOK
		if snap.Stale {
			bundle.RegimeStatus = model.FieldStale
		}
	}()

	go func() {
		defer wg.Done()
		readCtx, cancel := b.readContext(ctx)
		defer cancel()
		// All positions: the bundle carries both the signal's instrument
		// and the aggregate exposure.
		all, err := b.positions.Positions(readCtx, "")
		if err != nil {
			log.Printf("[WARN] context: positions read failed: %v", err)
			bundle.PositionsStatus = model.FieldUnavailable
			return
		}
		var scoped []model.Position
		var exposure float64
		for _, p := range all {
			if p.MaxLossKnown {
				exposure += p.MaxLoss
			}
			if p.Instrument == sig.Instrument {
				scoped = append(scoped, p)
			}
		}
		bundle.Positions = scoped
		bundle.TotalExposure = exposure
		bundle.PositionsStatus = model.FieldOK
	}()

	go func() {
		defer wg.Done()
		readCtx, cancel := b.readContext(ctx)
		defer cancel()
		set, err := b.catalysts.Events(readCtx, sig.Instrument, b.cfg.Retention.CatalystLookahead)
		if err != nil {
			log.Printf("[WARN] context: catalysts read failed: %v", err)
			bundle.CatalystsStatus = model.FieldUnavailable
			return
		}
		bundle.Catalysts = set
		bundle.CatalystsStatus = model.FieldOK
	}()

	go func() {
		defer wg.Done()
		lessons, err := b.lessons.RecentLessons(b.cfg.Retention.LessonKeep)
		if err != nil {
			log.Printf("[WARN] context: lessons read failed: %v", err)
			bundle.LessonsStatus = model.FieldUnavailable
			return
		}
		bundle.Lessons = lessons
		bundle.LessonsStatus = model.FieldOK
	}()

	// Stress events come from the in-memory store; the read cannot fail,
	// only be empty.
	bundle.StressEvents = b.stress.Recent(time.Now())
	bundle.StressStatus = model.FieldOK

	wg.Wait()
	return bundle
}

func (b *Builder) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(b.cfg.Sources.ReadTimeoutSec) * time.Second
	return context.WithTimeout(ctx, timeout)
}
