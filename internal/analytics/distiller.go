package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"SignalDesk/internal/committee"
	"SignalDesk/internal/config"
	"SignalDesk/internal/model"
	"SignalDesk/internal/recorder"
)

const distillerSystem = `You review a trader's decision statistics and extract durable lessons.
Each lesson must be one concrete, actionable sentence grounded in the numbers.
Do NOT repeat or rephrase any of the previously distilled lessons provided.
Reply with JSON only: {"lessons":["...","..."]}`

// Notifier is the optional outbound channel for the weekly digest.
type Notifier interface {
	Send(text string) error
}

// Distiller runs weekly: computes the behavioral report, asks one synthesis
// call for fresh lessons, and appends them to the bounded lesson store.
type Distiller struct {
	cfg      *config.Config
	rec      recorder.Recorder
	agent    committee.Agent
	notifier Notifier
}

// New creates a Distiller. notifier may be nil.
func New(cfg *config.Config, rec recorder.Recorder, agent committee.Agent, notifier Notifier) *Distiller {
	return &Distiller{cfg: cfg, rec: rec, agent: agent, notifier: notifier}
}

// Run computes the report and distills lessons from it. Skips quietly when
// there is not enough history to say anything.
func (d *Distiller) Run(ctx context.Context) error {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -d.cfg.Analytics.WindowDays)

	decisions, err := d.rec.DecisionsSince(since)
	if err != nil {
		return fmt.Errorf("load decisions: %w", err)
	}
	outcomes, err := d.rec.OutcomesSince(since)
	if err != nil {
		return fmt.Errorf("load outcomes: %w", err)
	}
	if len(decisions) == 0 {
		log.Println("[INFO] distiller: no decisions in window, skipping")
		return nil
	}

	report := BuildReport(decisions, outcomes, d.cfg.Analytics.WindowDays)

	previous, err := d.rec.RecentLessons(d.cfg.Retention.LessonKeep)
	if err != nil {
		log.Printf("[WARN] distiller: load previous lessons: %v", err)
	}

	raw, err := d.agent.Complete(ctx, distillerSystem, d.buildPrompt(report, previous))
	if err != nil {
		return fmt.Errorf("synthesis call: %w", err)
	}
	texts, err := parseLessons(raw)
	if err != nil {
		return fmt.Errorf("parse lessons: %w", err)
	}
	if len(texts) > d.cfg.Analytics.LessonsPerRun {
		texts = texts[:d.cfg.Analytics.LessonsPerRun]
	}

	year, week := now.ISOWeek()
	lessons := make([]model.Lesson, 0, len(texts))
	for _, text := range texts {
		lessons = append(lessons, model.Lesson{
			Text:       text,
			Week:       fmt.Sprintf("%d-W%02d", year, week),
			SampleSize: report.Decisions,
			CreatedAt:  now,
		})
	}
	if err := d.rec.AppendLessons(lessons); err != nil {
		return fmt.Errorf("append lessons: %w", err)
	}
	log.Printf("[INFO] distiller: %d new lessons from %d decisions", len(lessons), report.Decisions)

	if d.notifier != nil {
		var b strings.Builder
		b.WriteString("🧭 <b>Weekly lessons</b>\n\n")
		for _, l := range lessons {
			fmt.Fprintf(&b, "• %s\n", l.Text)
		}
		if err := d.notifier.Send(b.String()); err != nil {
			log.Printf("[WARN] distiller: send digest: %v", err)
		}
	}
	return nil
}

func (d *Distiller) buildPrompt(r *Report, previous []model.Lesson) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trailing %d days: %d decisions, %d matched outcomes.\n", r.WindowDays, r.Decisions, r.Outcomes)
	fmt.Fprintf(&b, "Override rate: %.0f%%; override accuracy: %.0f%%.\n", r.OverrideRate*100, r.OverrideAccuracy*100)
	fmt.Fprintf(&b, "Decision latency: <1m:%d <5m:%d <30m:%d >30m:%d\n",
		r.Latency.Under1m, r.Latency.Under5m, r.Latency.Under30m, r.Latency.Over30m)
	for conf, rate := range r.ConfidenceHitRate {
		fmt.Fprintf(&b, "Hit rate at %s confidence: %.0f%%\n", conf, rate*100)
	}
	for stage, rate := range r.StageAgreement {
		fmt.Fprintf(&b, "Stage %s agreed with the final call %.0f%% of the time\n", stage, rate*100)
	}
	for _, e := range r.Best {
		fmt.Fprintf(&b, "Best: %s %s rec=%s human=%s RR=%.1f\n", e.Instrument, e.Class, e.Recommended, e.Human, e.RiskReward)
	}
	for _, e := range r.Worst {
		fmt.Fprintf(&b, "Worst: %s %s rec=%s human=%s RR=%.1f\n", e.Instrument, e.Class, e.Recommended, e.Human, e.RiskReward)
	}
	if len(previous) > 0 {
		b.WriteString("\nPreviously distilled lessons (do not repeat):\n")
		for _, l := range previous {
			fmt.Fprintf(&b, "- %s\n", l.Text)
		}
	}
	return b.String()
}

func parseLessons(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "{"); i > 0 {
		raw = raw[i:]
	}
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		raw = raw[:i+1]
	}
	var reply struct {
		Lessons []string `json:"lessons"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, err
	}
	var out []string
	for _, l := range reply.Lessons {
		if s := strings.TrimSpace(l); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
