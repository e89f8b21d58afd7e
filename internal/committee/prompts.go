package committee

import (
	"encoding/json"
	"fmt"
	"strings"

	"SignalDesk/internal/model"
)

const (
	advocateSystem = `You are the advocate on a trading review committee. Argue the strongest
honest case FOR taking the signal. Reply with JSON only:
{"stance":"BULLISH|BEARISH|NEUTRAL","confidence":"HIGH|MEDIUM|LOW","summary":"<3-4 sentences>"}`

	skepticSystem = `You are the skeptic on a trading review committee. Argue the strongest
honest case AGAINST taking the signal. Reply with JSON only:
{"stance":"BULLISH|BEARISH|NEUTRAL","confidence":"HIGH|MEDIUM|LOW","summary":"<3-4 sentences>"}`

	sizingSystem = `You are the risk officer on a trading review committee. Assess whether
current exposure and open positions leave room for this signal, and any
sizing constraints. Reply with JSON only:
{"stance":"BULLISH|BEARISH|NEUTRAL","confidence":"HIGH|MEDIUM|LOW","summary":"<3-4 sentences>"}`

	synthesisSystem = `You chair a trading review committee. Weigh the advocate, skeptic and
risk analyses below and produce a final recommendation. Reply with JSON only:
{"action":"ACCEPT|REJECT|DEFER","confidence":"HIGH|MEDIUM|LOW","summary":"<4-6 sentences>","invalidation":"<one sentence: condition that voids this call>"}`
)

func describeSignal(sig *model.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Signal: %s %s, score %.0f, source %s, created %s\n",
		sig.Instrument, sig.Direction, sig.Score, sig.Category, sig.CreatedAt.Format("2006-01-02 15:04 MST"))
	for k, v := range sig.Attributes {
		fmt.Fprintf(&b, "  %s: %s\n", k, v)
	}
	return b.String()
}

func describeContext(bundle *model.ContextBundle) string {
	var b strings.Builder

	if bundle.RegimeStatus == model.FieldUnavailable {
		b.WriteString("Regime: UNAVAILABLE (source down, treat as neutral)\n")
	} else {
		fmt.Fprintf(&b, "Regime: %s (confidence %.2f, stress %s)\n",
			bundle.Regime.Label, bundle.Regime.Confidence, bundle.Regime.Stress)
	}

	if bundle.StressStatus == model.FieldOK && len(bundle.StressEvents) > 0 {
		b.WriteString("Recent stress events:\n")
		for _, e := range bundle.StressEvents {
			fmt.Fprintf(&b, "  %s %s %s\n", e.At.Format("01-02 15:04"), e.Kind, e.Note)
		}
	}

	if bundle.CatalystsStatus == model.FieldUnavailable {
		b.WriteString("Catalysts: UNAVAILABLE\n")
	} else {
		for _, c := range bundle.Catalysts.InstrumentEvents {
			fmt.Fprintf(&b, "Catalyst (%s): %s on %s\n", c.Instrument, c.Title, c.At.Format("01-02"))
		}
		for _, c := range bundle.Catalysts.MacroEvents {
			fmt.Fprintf(&b, "Macro catalyst: %s on %s\n", c.Title, c.At.Format("01-02"))
		}
	}

	if len(bundle.Lessons) > 0 {
		b.WriteString("Lessons from past decisions:\n")
		for _, l := range bundle.Lessons {
			fmt.Fprintf(&b, "  - %s\n", l.Text)
		}
	}

	return b.String()
}

func describePositions(bundle *model.ContextBundle) string {
	var b strings.Builder
	if bundle.PositionsStatus == model.FieldUnavailable {
		b.WriteString("Open positions: UNAVAILABLE (position store down)\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Aggregate exposure (sum of max loss): %.2f\n", bundle.TotalExposure)
	if len(bundle.Positions) == 0 {
		b.WriteString("No open positions in this instrument.\n")
	}
	for _, p := range bundle.Positions {
		risk := "max loss unknown"
		if p.MaxLossKnown {
			risk = fmt.Sprintf("max loss %.2f", p.MaxLoss)
		}
		fmt.Fprintf(&b, "Position: %s %s qty %.2f, %s\n", p.Instrument, p.Structure, p.Quantity, risk)
	}
	return b.String()
}

func buildPerspectivePrompt(sig *model.Signal, bundle *model.ContextBundle) string {
	return describeSignal(sig) + "\n" + describeContext(bundle)
}

func buildSizingPrompt(sig *model.Signal, bundle *model.ContextBundle) string {
	return describeSignal(sig) + "\n" + describePositions(bundle)
}

func buildSynthesisPrompt(sig *model.Signal, bundle *model.ContextBundle, prior []model.StageResult, opts RunOptions, challenge string) string {
	var b strings.Builder
	b.WriteString(describeSignal(sig))
	b.WriteString("\n")
	b.WriteString(describeContext(bundle))
	b.WriteString("\n")
	for _, s := range prior {
		fmt.Fprintf(&b, "[%s | %s | stance %s | confidence %s]\n%s\n\n",
			s.Stage, s.Status, s.Stance, s.Confidence, s.Summary)
	}
	if challenge != "" {
		b.WriteString(challenge)
		b.WriteString("\n")
	}
	if opts.Objection != "" {
		b.WriteString("RE-EVALUATION: the human reviewed a prior recommendation and pushed back.\n")
		fmt.Fprintf(&b, "Objection: %s\n", opts.Objection)
		if opts.Prior != nil {
			fmt.Fprintf(&b, "Prior recommendation was %s (%s): %s\n",
				opts.Prior.Action, opts.Prior.Confidence, opts.Prior.Synthesis)
		}
		b.WriteString("Address the objection directly rather than restating the prior view.\n")
	}
	return b.String()
}

// challengeBlock is injected into the synthesis prompt only, and only when
// the signal collides with a documented standing bias or a watched theme.
func challengeBlock(sig *model.Signal, bias model.Direction, watched bool) string {
	var parts []string
	if bias != "" {
		parts = append(parts, fmt.Sprintf(
			"The reviewer holds a documented standing %s bias on %s and this signal is %s.",
			bias, sig.Instrument, sig.Direction))
	}
	if watched {
		parts = append(parts, fmt.Sprintf("%s belongs to a watched thematic set the reviewer favors.", sig.Instrument))
	}
	if len(parts) == 0 {
		return ""
	}
	return "CHALLENGE CONTEXT: " + strings.Join(parts, " ") +
		" Interrogate the reviewer's known leanings instead of deferring to them; state explicitly whether the evidence justifies overriding the bias."
}

// stageReply is the JSON shape every perspective stage must return.
type stageReply struct {
	Stance     string `json:"stance"`
	Confidence string `json:"confidence"`
	Summary    string `json:"summary"`
}

// synthesisReply is the JSON shape of the synthesis stage.
type synthesisReply struct {
	Action       string `json:"action"`
	Confidence   string `json:"confidence"`
	Summary      string `json:"summary"`
	Invalidation string `json:"invalidation"`
}

// stripFences removes a markdown code fence if the model wrapped its JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func parseStageReply(raw string) (stageReply, error) {
	var r stageReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &r); err != nil {
		return r, fmt.Errorf("parse stage reply: %w", err)
	}
	r.Stance = normalizeStance(r.Stance)
	r.Confidence = normalizeConfidence(r.Confidence)
	return r, nil
}

func parseSynthesisReply(raw string) (synthesisReply, error) {
	var r synthesisReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &r); err != nil {
		return r, fmt.Errorf("parse synthesis reply: %w", err)
	}
	switch model.Action(strings.ToUpper(r.Action)) {
	case model.ActionAccept, model.ActionReject, model.ActionDefer:
		r.Action = strings.ToUpper(r.Action)
	default:
		return r, fmt.Errorf("unrecognized action %q", r.Action)
	}
	r.Confidence = normalizeConfidence(r.Confidence)
	return r, nil
}

func normalizeStance(s string) string {
	switch strings.ToUpper(s) {
	case model.StanceBullish, model.StanceBearish:
		return strings.ToUpper(s)
	default:
		return model.StanceNeutral
	}
}

func normalizeConfidence(s string) string {
	switch model.Confidence(strings.ToUpper(s)) {
	case model.ConfidenceHigh, model.ConfidenceMedium:
		return strings.ToUpper(s)
	default:
		return string(model.ConfidenceLow)
	}
}
