package analytics

import (
	"sort"
	"time"

	"SignalDesk/internal/model"
)

// LatencyBuckets counts decisions by how long the human took.
type LatencyBuckets struct {
	Under1m  int
	Under5m  int
	Under30m int
	Over30m  int
}

// Example is one notable decision+outcome pair for the report.
type Example struct {
	SignalID    string
	Instrument  string
	Class       model.OutcomeClass
	Recommended model.Action
	Human       model.HumanAction
	Override    bool
	RiskReward  float64
}

// Report is the aggregate behavioral summary over a trailing window.
// Pure computation; no side effects.
type Report struct {
	WindowDays int
	Decisions  int
	Outcomes   int

	Overrides        int
	OverrideRate     float64
	OverrideAccuracy float64 // vindicated / overrides, over matched overrides

	Latency LatencyBuckets

	// ConfidenceHitRate maps recommendation confidence to the rate at which
	// the recommendation proved right.
	ConfidenceHitRate map[model.Confidence]float64

	// StageAgreement maps stage name to the fraction of decisions where the
	// stage's stance pointed the same way as the final recommended action.
	StageAgreement map[string]float64

	Best  []Example
	Worst []Example
}

// BuildReport joins decisions with their outcomes and derives the stats.
func BuildReport(decisions []model.Decision, outcomes []model.OutcomeRecord, windowDays int) *Report {
	r := &Report{
		WindowDays:        windowDays,
		Decisions:         len(decisions),
		Outcomes:          len(outcomes),
		ConfidenceHitRate: make(map[model.Confidence]float64),
		StageAgreement:    make(map[string]float64),
	}

	byID := make(map[string]*model.OutcomeRecord, len(outcomes))
	for i := range outcomes {
		byID[outcomes[i].SignalID] = &outcomes[i]
	}

	var vindicated, matchedOverrides int
	confTotal := make(map[model.Confidence]int)
	confRight := make(map[model.Confidence]int)
	stageTotal := make(map[string]int)
	stageAgree := make(map[string]int)
	var examples []Example

	for _, d := range decisions {
		if d.Human == model.HumanReevaluate {
			continue // the follow-up decision carries the result
		}
		if d.Override {
			r.Overrides++
		}
		bucketLatency(&r.Latency, d.Latency)

		for stage, stance := range d.Stances {
			if stance == model.StanceNeutral {
				continue
			}
			stageTotal[stage]++
			if stanceMatchesAction(stance, d.Recommended) {
				stageAgree[stage]++
			}
		}

		o, ok := byID[d.SignalID]
		if !ok {
			continue
		}
		confTotal[d.Confidence]++
		if o.RecommendationRight {
			confRight[d.Confidence]++
		}
		if d.Override {
			matchedOverrides++
			if o.OverrideVindicated {
				vindicated++
			}
		}
		examples = append(examples, Example{
			SignalID:    d.SignalID,
			Instrument:  d.Instrument,
			Class:       o.Class,
			Recommended: d.Recommended,
			Human:       d.Human,
			Override:    d.Override,
			RiskReward:  o.RiskReward,
		})
	}

	if r.Decisions > 0 {
		r.OverrideRate = float64(r.Overrides) / float64(r.Decisions)
	}
	if matchedOverrides > 0 {
		r.OverrideAccuracy = float64(vindicated) / float64(matchedOverrides)
	}
	for conf, total := range confTotal {
		r.ConfidenceHitRate[conf] = float64(confRight[conf]) / float64(total)
	}
	for stage, total := range stageTotal {
		r.StageAgreement[stage] = float64(stageAgree[stage]) / float64(total)
	}

	r.Best, r.Worst = pickExamples(examples, 3)
	return r
}

func bucketLatency(b *LatencyBuckets, latency time.Duration) {
	switch {
	case latency < time.Minute:
		b.Under1m++
	case latency < 5*time.Minute:
		b.Under5m++
	case latency < 30*time.Minute:
		b.Under30m++
	default:
		b.Over30m++
	}
}

// stanceMatchesAction treats BULLISH as backing ACCEPT and BEARISH as
// backing REJECT; DEFER agrees with nothing.
func stanceMatchesAction(stance string, action model.Action) bool {
	switch action {
	case model.ActionAccept:
		return stance == model.StanceBullish
	case model.ActionReject:
		return stance == model.StanceBearish
	}
	return false
}

// pickExamples returns the top favorable and the worst adverse examples.
func pickExamples(examples []Example, n int) (best, worst []Example) {
	var favorable, adverse []Example
	for _, e := range examples {
		switch {
		case e.Class.Favorable():
			favorable = append(favorable, e)
		case e.Class == model.OutcomeLoss:
			adverse = append(adverse, e)
		}
	}
	sort.Slice(favorable, func(i, j int) bool { return favorable[i].RiskReward > favorable[j].RiskReward })
	sort.Slice(adverse, func(i, j int) bool { return adverse[i].RiskReward < adverse[j].RiskReward })

	if len(favorable) > n {
		favorable = favorable[:n]
	}
	if len(adverse) > n {
		adverse = adverse[:n]
	}
	return favorable, adverse
}
