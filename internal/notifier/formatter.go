package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"SignalDesk/internal/analytics"
	"SignalDesk/internal/model"
	"SignalDesk/internal/tracker"
)

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var actionEmoji = map[model.Action]string{
	model.ActionAccept: "🟢",
	model.ActionReject: "🔴",
	model.ActionDefer:  "🟡",
}

// FormatRecommendation renders a committee recommendation as an HTML message.
func FormatRecommendation(rec *model.Recommendation) string {
	var b strings.Builder

	title := "📣 Signal Recommendation"
	if rec.Reevaluation {
		title = "🔁 Re-evaluated Recommendation"
	}
	fmt.Fprintf(&b, "<b>%s</b>\n\n", title)
	fmt.Fprintf(&b, "Instrument: <b>%s</b>  Direction: <b>%s</b>\n", rec.Signal.Instrument, rec.Signal.Direction)
	if !rec.Signal.Category.ScoreExempt() {
		fmt.Fprintf(&b, "Score: %.0f\n", rec.Signal.Score)
	}
	fmt.Fprintf(&b, "\n%s <b>%s</b> (confidence: %s)\n", actionEmoji[rec.Action], rec.Action, rec.Confidence)
	if rec.Degraded {
		b.WriteString("⚠️ <i>DEGRADED: one or more analysis stages failed</i>\n")
	}

	b.WriteString("\n")
	for _, st := range rec.Stages {
		switch st.Stage {
		case model.StageAdvocate, model.StageSkeptic:
			marker := ""
			if st.Status != model.StageOK {
				marker = " ⚠️"
			}
			fmt.Fprintf(&b, "<b>%s</b>%s: %s (%s)\n%s\n\n",
				titleCase(st.Stage), marker, st.Stance, st.Confidence, st.Summary)
		case model.StageSizing:
			marker := ""
			if st.Status != model.StageOK {
				marker = " ⚠️"
			}
			fmt.Fprintf(&b, "<b>Sizing</b>%s: %s\n\n", marker, st.Summary)
		}
	}

	fmt.Fprintf(&b, "<b>Synthesis</b>: %s\n", rec.Synthesis)
	fmt.Fprintf(&b, "<b>Invalidation</b>: %s\n", rec.Invalidation)
	fmt.Fprintf(&b, "\n<i>signal %s · %s</i>", rec.Signal.ID, humanize.Time(rec.CreatedAt))
	return b.String()
}

// FormatConfirmationRequest renders a yes/no request for an unconfirmed alert.
func FormatConfirmationRequest(alert *model.Signal, window time.Duration) string {
	var b strings.Builder
	b.WriteString("<b>❓ Confirmation Needed</b>\n\n")
	fmt.Fprintf(&b, "Instrument: <b>%s</b>  Direction: <b>%s</b>\n", alert.Instrument, alert.Direction)
	fmt.Fprintf(&b, "\nThis alert needs a human eye before analysis runs. Confirm within %d minutes or it is dropped.", int(window.Minutes()))
	return b.String()
}

// FormatPendingList renders the currently open recommendations.
func FormatPendingList(entries []tracker.PendingEntry, now time.Time) string {
	if len(entries) == 0 {
		return "No pending recommendations."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>📋 Pending (%d)</b>\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "• <b>%s %s</b> → %s (%s), posted %s\n",
			e.Rec.Signal.Instrument, e.Rec.Signal.Direction,
			e.Rec.Action, e.Rec.Confidence, humanize.RelTime(e.PostedAt, now, "ago", "from now"))
	}
	return b.String()
}

// FormatStats renders a weekly analytics report.
func FormatStats(r *analytics.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>📊 Stats (last %d days)</b>\n\n", r.WindowDays)
	fmt.Fprintf(&b, "Decisions: %d  Outcomes: %d\n", r.Decisions, r.Outcomes)
	fmt.Fprintf(&b, "Overrides: %d (%.0f%%), vindicated %.0f%%\n", r.Overrides, r.OverrideRate*100, r.OverrideAccuracy*100)
	b.WriteString("\nDecision latency:\n")
	fmt.Fprintf(&b, "  &lt;1m: %d  &lt;5m: %d  &lt;30m: %d  &gt;30m: %d\n",
		r.Latency.Under1m, r.Latency.Under5m, r.Latency.Under30m, r.Latency.Over30m)
	if len(r.ConfidenceHitRate) > 0 {
		b.WriteString("\nHit rate by confidence:\n")
		for _, c := range []model.Confidence{model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow} {
			if hr, ok := r.ConfidenceHitRate[c]; ok {
				fmt.Fprintf(&b, "  %s: %.0f%%\n", c, hr*100)
			}
		}
	}
	if len(r.StageAgreement) > 0 {
		b.WriteString("\nStage agreement with final action:\n")
		for stage, rate := range r.StageAgreement {
			fmt.Fprintf(&b, "  %s: %.0f%%\n", stage, rate*100)
		}
	}
	if len(r.Best) > 0 {
		b.WriteString("\nBest calls:\n")
		for _, ex := range r.Best {
			fmt.Fprintf(&b, "  %s %s (R:R %.1f)\n", ex.Instrument, ex.Class, ex.RiskReward)
		}
	}
	if len(r.Worst) > 0 {
		b.WriteString("\nWorst calls:\n")
		for _, ex := range r.Worst {
			fmt.Fprintf(&b, "  %s %s (R:R %.1f)\n", ex.Instrument, ex.Class, ex.RiskReward)
		}
	}
	return b.String()
}

// FormatLessons renders distilled lessons, most recent first.
func FormatLessons(lessons []model.Lesson) string {
	if len(lessons) == 0 {
		return "No lessons distilled yet."
	}
	var b strings.Builder
	b.WriteString("<b>🎓 Lessons</b>\n\n")
	for _, l := range lessons {
		fmt.Fprintf(&b, "• [%s, n=%d] %s\n", l.Week, l.SampleSize, l.Text)
	}
	return b.String()
}
