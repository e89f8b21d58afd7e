package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"SignalDesk/internal/analytics"
	"SignalDesk/internal/committee"
	"SignalDesk/internal/config"
	"SignalDesk/internal/contextbuilder"
	"SignalDesk/internal/feed"
	"SignalDesk/internal/gatekeeper"
	"SignalDesk/internal/model"
	"SignalDesk/internal/notifier"
	"SignalDesk/internal/outcome"
	"SignalDesk/internal/recorder"
	"SignalDesk/internal/sources"
	"SignalDesk/internal/tracker"
)

// Scheduler owns the cron loop and wires the pipeline stages together:
// feed poll, admission, context build, committee run, posting, tracking.
type Scheduler struct {
	Cron      *cron.Cron
	Cfg       *config.Config
	Feed      feed.Feed
	Gate      *gatekeeper.Gatekeeper
	Daily     *gatekeeper.DailyState
	Builder   *contextbuilder.Builder
	Committee *committee.Orchestrator
	Stress    *sources.StressStore
	Tracker   *tracker.Tracker
	Notifier  *notifier.TelegramNotifier
	Recorder  recorder.Recorder
	Matcher   *outcome.Matcher
	Distiller *analytics.Distiller
	Ctx       context.Context

	// runMu serializes the live pipeline across its entry points (cron
	// ticks and the confirmation callback), so DailyState sees one
	// evaluate-and-commit sequence at a time and a slow committee run
	// never overlaps the next tick.
	runMu sync.Mutex
}

// NewScheduler creates a Scheduler and wires the tracker's pushback hook
// back into the committee.
func NewScheduler(ctx context.Context, cfg *config.Config, fd feed.Feed, gate *gatekeeper.Gatekeeper,
	daily *gatekeeper.DailyState, builder *contextbuilder.Builder, com *committee.Orchestrator,
	stress *sources.StressStore, tr *tracker.Tracker, tn *notifier.TelegramNotifier,
	rec recorder.Recorder, matcher *outcome.Matcher, distiller *analytics.Distiller) *Scheduler {

	s := &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Cfg:       cfg,
		Feed:      fd,
		Gate:      gate,
		Daily:     daily,
		Builder:   builder,
		Committee: com,
		Stress:    stress,
		Tracker:   tr,
		Notifier:  tn,
		Recorder:  rec,
		Matcher:   matcher,
		Distiller: distiller,
		Ctx:       ctx,
	}
	tr.SetReevaluate(s.reevaluate)
	return s
}

// RegisterAll registers the tick, nightly, and weekly tasks.
func (s *Scheduler) RegisterAll() error {
	if _, err := s.Cron.AddFunc(s.Cfg.Schedule.TickCron, s.tick); err != nil {
		return fmt.Errorf("register tick task: %w", err)
	}
	if _, err := s.Cron.AddFunc(s.Cfg.Schedule.NightlyCron, s.nightlyTask); err != nil {
		return fmt.Errorf("register nightly task: %w", err)
	}
	if _, err := s.Cron.AddFunc(s.Cfg.Schedule.WeeklyCron, s.weeklyTask); err != nil {
		return fmt.Errorf("register weekly task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunTickNow executes one tick immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunTickNow() {
	s.tick()
}

// tick is the pipeline heartbeat: sweep timers, then drain the signal feed.
// Sweeps run even outside the operating window so stale entries never linger.
// The cron fires each trigger on a fresh goroutine, so a tick that outlives
// its interval is skipped rather than run concurrently.
func (s *Scheduler) tick() {
	if !s.runMu.TryLock() {
		log.Println("[WARN] previous tick still running, skipping this trigger")
		return
	}
	defer s.runMu.Unlock()

	now := time.Now().UTC()
	s.Daily.RollIfNeeded(now)
	s.Tracker.SweepConfirmations(now)
	s.Tracker.SweepExpired(now)

	if !s.inWindow(now) {
		return
	}

	signals, err := s.Feed.FetchPending(s.Ctx)
	if err != nil {
		log.Printf("[ERROR] fetch pending signals: %v", err)
		return
	}
	for i := range signals {
		sig := signals[i]
		if err := s.process(&sig, now); err != nil {
			// One bad signal never poisons the batch.
			log.Printf("[ERROR] process signal %s: %v", sig.ID, err)
			continue
		}
		if err := s.Feed.MarkProcessed(s.Ctx, sig.ID); err != nil {
			log.Printf("[WARN] mark processed %s: %v", sig.ID, err)
		}
	}
}

// process routes one signal by category: stress alerts feed the stress
// window, confirmation alerts open a sub-flow, everything else runs the
// full admission-to-posting pipeline.
func (s *Scheduler) process(sig *model.Signal, now time.Time) error {
	switch sig.Category {
	case model.CategoryStressEvent:
		s.recordStress(sig, now)
		return nil
	case model.CategoryNeedsConfirmation:
		return s.requestConfirmation(sig, now)
	}

	regime := s.Builder.Regime(s.Ctx)
	admit, reason := s.Gate.Evaluate(sig, s.Daily, regime, now)
	if !admit {
		log.Printf("[INFO] signal %s rejected: %s", sig.ID, reason)
		return nil
	}

	// Commit quota and dedup key before the expensive part so a crash
	// mid-committee cannot double-spend the slot. TryCommit re-checks
	// under the state lock in case another run took the slot since
	// Evaluate released it.
	if !s.Daily.TryCommit(sig, s.Cfg.Gate.DailyQuota, now) {
		log.Printf("[INFO] signal %s lost its admission slot to a concurrent run", sig.ID)
		return nil
	}

	bundle := s.Builder.Build(s.Ctx, sig)
	if bundle.Degraded() {
		log.Printf("[WARN] context degraded for signal %s", sig.ID)
	}

	rec := s.Committee.Run(s.Ctx, sig, bundle, committee.RunOptions{})

	ref, err := s.Notifier.PostRecommendation(rec)
	if err != nil {
		return fmt.Errorf("post recommendation: %w", err)
	}
	if err := s.Tracker.Publish(rec, ref, now); err != nil {
		return fmt.Errorf("publish pending entry: %w", err)
	}
	log.Printf("[INFO] recommendation posted: %s %s → %s (%s)",
		rec.Signal.Instrument, rec.Signal.Direction, rec.Action, rec.Confidence)
	return nil
}

func (s *Scheduler) recordStress(sig *model.Signal, now time.Time) {
	s.Stress.Append(model.StressEvent{
		At:         now,
		Kind:       sig.Attributes["kind"],
		Instrument: sig.Instrument,
		Note:       sig.Attributes["note"],
	})
	if err := s.Recorder.AppendAudit(&recorder.AuditEntry{
		SignalID:   sig.ID,
		Instrument: sig.Instrument,
		Direction:  sig.Direction,
		Category:   sig.Category,
		Score:      sig.Score,
		Admitted:   false,
		Reason:     "stress_recorded",
		At:         now,
	}); err != nil {
		log.Printf("[ERROR] append stress audit for %s: %v", sig.ID, err)
	}
	log.Printf("[INFO] stress event recorded: %s (%s)", sig.Instrument, sig.Attributes["kind"])
}

func (s *Scheduler) requestConfirmation(sig *model.Signal, now time.Time) error {
	c := s.Tracker.AddConfirmation(*sig, now)
	window := time.Duration(s.Cfg.Tracker.ConfirmWindowMin) * time.Minute
	if _, err := s.Notifier.PostConfirmationRequest(sig, c.ID, window); err != nil {
		return fmt.Errorf("post confirmation request: %w", err)
	}
	log.Printf("[INFO] confirmation requested for %s (%s)", sig.Instrument, c.ID)
	return nil
}

// reevaluate re-runs the committee with a human objection injected. Wired
// into the tracker's pushback flow.
func (s *Scheduler) reevaluate(sig *model.Signal, objection string, prior *model.Recommendation) *model.Recommendation {
	bundle := s.Builder.Build(s.Ctx, sig)
	return s.Committee.Run(s.Ctx, sig, bundle, committee.RunOptions{
		Objection: objection,
		Prior:     prior,
	})
}

func (s *Scheduler) nightlyTask() {
	log.Println("[INFO] running nightly outcome matching")
	s.Matcher.Run(s.Ctx)
	if err := s.Recorder.Trim(); err != nil {
		log.Printf("[ERROR] trim ledgers: %v", err)
	}
}

func (s *Scheduler) weeklyTask() {
	log.Println("[INFO] running weekly distillation")
	if err := s.Distiller.Run(s.Ctx); err != nil {
		log.Printf("[ERROR] weekly distillation: %v", err)
	}
}

func (s *Scheduler) inWindow(now time.Time) bool {
	h := now.Hour()
	start, end := s.Cfg.Schedule.WindowStartHour, s.Cfg.Schedule.WindowEndHour
	if start <= end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "/status":
		return s.statusReply()
	case "/pending":
		return notifier.FormatPendingList(s.Tracker.Active(), time.Now().UTC())
	case "/lessons":
		lessons, err := s.Recorder.RecentLessons(10)
		if err != nil {
			return fmt.Sprintf("Failed to load lessons: %v", err)
		}
		return notifier.FormatLessons(lessons)
	case "/stats":
		return s.statsReply()
	case "/challenge":
		if len(fields) < 3 {
			return "Usage: /challenge <signal-id> <objection>"
		}
		reply, err := s.Tracker.Pushback(fields[1], strings.Join(fields[2:], " "), time.Now().UTC())
		if err != nil {
			return fmt.Sprintf("Challenge failed: %v", err)
		}
		return reply
	case "/help":
		return helpText
	default:
		return helpText
	}
}

const helpText = "Commands:\n" +
	"• /status — quota, pending counts\n" +
	"• /pending — open recommendations\n" +
	"• /lessons — recent distilled lessons\n" +
	"• /stats — decision/outcome report\n" +
	"• /challenge <signal-id> <objection> — push back on a recommendation"

func (s *Scheduler) statusReply() string {
	now := time.Now().UTC()
	s.Daily.RollIfNeeded(now)
	return fmt.Sprintf("<b>Status</b>\nRuns today: %d/%d\nPending recommendations: %d\nAwaiting confirmation: %d\nIn operating window: %v",
		s.Daily.RunCount(), s.Cfg.Gate.DailyQuota,
		len(s.Tracker.Active()), len(s.Tracker.PendingConfirmations()),
		s.inWindow(now))
}

func (s *Scheduler) statsReply() string {
	since := time.Now().UTC().AddDate(0, 0, -s.Cfg.Analytics.WindowDays)
	decisions, err := s.Recorder.DecisionsSince(since)
	if err != nil {
		return fmt.Sprintf("Failed to load decisions: %v", err)
	}
	outcomes, err := s.Recorder.OutcomesSince(since)
	if err != nil {
		return fmt.Sprintf("Failed to load outcomes: %v", err)
	}
	report := analytics.BuildReport(decisions, outcomes, s.Cfg.Analytics.WindowDays)
	return notifier.FormatStats(report)
}

// HandleCallback routes inline button presses: decision actions on pending
// entries and yes/no replies on confirmation requests.
func (s *Scheduler) HandleCallback(data string) string {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return ""
	}
	now := time.Now().UTC()

	switch parts[0] {
	case "act":
		return s.handleAction(parts[1], parts[2], now)
	case "confirm":
		return s.handleConfirmation(parts[2], parts[1] == "yes", now)
	}
	return ""
}

func (s *Scheduler) handleAction(action, signalID string, now time.Time) string {
	switch action {
	case "ACCEPT", "REJECT", "DEFER":
		reply, err := s.Tracker.Resolve(signalID, model.HumanAction(action), "", now)
		if err != nil {
			return fmt.Sprintf("Action failed: %v", err)
		}
		return reply
	case "CHALLENGE":
		return fmt.Sprintf("Reply with:\n/challenge %s <your objection>", signalID)
	}
	return ""
}

// handleConfirmation resolves a confirmation sub-flow. A confirmed alert
// becomes a fresh CONFIRMED signal and re-enters the normal pipeline, where
// the score check is bypassed but quota and dedup still apply.
func (s *Scheduler) handleConfirmation(corrID string, confirmed bool, now time.Time) string {
	sig, err := s.Tracker.ResolveConfirmation(corrID, confirmed, now)
	if err != nil {
		return fmt.Sprintf("Confirmation failed: %v", err)
	}
	if sig == nil {
		return "Alert declined; nothing queued."
	}
	// Runs on the polling goroutine; take the run lock so the pipeline
	// never executes concurrently with a tick.
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if err := s.process(sig, now); err != nil {
		log.Printf("[ERROR] process confirmed signal %s: %v", sig.ID, err)
		return fmt.Sprintf("Confirmed, but processing failed: %v", err)
	}
	return fmt.Sprintf("Confirmed; %s %s queued for analysis.", sig.Instrument, sig.Direction)
}
