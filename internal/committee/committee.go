package committee

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"SignalDesk/internal/config"
	"SignalDesk/internal/model"
)

// Orchestrator runs the fixed committee stage sequence: advocate and skeptic
// in parallel, then sizing, then synthesis over everything. Every stage is
// time-bounded with one retry; exhausted retries degrade the stage instead
// of aborting the run, so an admitted signal always yields a Recommendation.
type Orchestrator struct {
	cfg   *config.Config
	agent Agent
}

// RunOptions carries pushback context into a re-evaluation run.
type RunOptions struct {
	Objection string
	Prior     *model.Recommendation
}

// New creates an Orchestrator backed by the given agent.
func New(cfg *config.Config, agent Agent) *Orchestrator {
	return &Orchestrator{cfg: cfg, agent: agent}
}

// Run produces a complete Recommendation for the signal. Never returns nil:
// total stage failure falls back to a low-confidence DEFER.
func (o *Orchestrator) Run(ctx context.Context, sig *model.Signal, bundle *model.ContextBundle, opts RunOptions) *model.Recommendation {
	perspective := buildPerspectivePrompt(sig, bundle)

	// Opposing perspectives are independent; fan out.
	var advocate, skeptic model.StageResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		advocate = o.callStage(ctx, model.StageAdvocate, advocateSystem, perspective)
	}()
	go func() {
		defer wg.Done()
		skeptic = o.callStage(ctx, model.StageSkeptic, skepticSystem, perspective)
	}()
	wg.Wait()

	sizing := o.callStage(ctx, model.StageSizing, sizingSystem, buildSizingPrompt(sig, bundle))

	prior := []model.StageResult{advocate, skeptic, sizing}

	// The challenge block is only ever shown to the synthesis stage.
	challenge := challengeBlock(sig, o.standingBiasConflict(sig), o.watched(sig.Instrument))

	synthesis, reply := o.callSynthesis(ctx, buildSynthesisPrompt(sig, bundle, prior, opts, challenge))
	stages := append(prior, synthesis)

	rec := &model.Recommendation{
		ID:        uuid.NewString(),
		Signal:    *sig,
		Stages:    stages,
		CreatedAt: time.Now().UTC(),
	}
	if opts.Objection != "" {
		rec.Reevaluation = true
		if opts.Prior != nil {
			rec.ParentID = opts.Prior.ID
		}
	}

	if synthesis.Status == model.StageOK {
		rec.Action = model.Action(reply.Action)
		rec.Confidence = model.Confidence(reply.Confidence)
		rec.Synthesis = reply.Summary
		rec.Invalidation = reply.Invalidation
	} else {
		// Degraded-fallback path: still a valid, clearly labeled recommendation.
		rec.Action = model.ActionDefer
		rec.Confidence = model.ConfidenceLow
		rec.Synthesis = "Committee analysis unavailable: the synthesis stage failed after retries. " +
			"This is a placeholder, not an analysis. Review the signal manually or wait for re-evaluation."
		rec.Invalidation = "n/a (degraded run)"
	}

	for _, s := range stages {
		if s.Status != model.StageOK {
			rec.Degraded = true
			break
		}
	}
	return rec
}

// standingBiasConflict returns the documented bias when the signal runs
// against it, empty otherwise.
func (o *Orchestrator) standingBiasConflict(sig *model.Signal) model.Direction {
	bias, ok := o.cfg.Committee.StandingBiases[sig.Instrument]
	if ok && bias != sig.Direction {
		return bias
	}
	return ""
}

func (o *Orchestrator) watched(instrument string) bool {
	for _, w := range o.cfg.Committee.WatchedInstruments {
		if w == instrument {
			return true
		}
	}
	return false
}

// callStage runs one perspective stage with timeout and a single retry on
// transient failure, degrading to a neutral placeholder on exhaustion.
func (o *Orchestrator) callStage(ctx context.Context, name, system, prompt string) model.StageResult {
	raw, err := o.complete(ctx, system, prompt)
	if err != nil {
		log.Printf("[WARN] stage %s degraded: %v", name, err)
		return degradedStage(name)
	}
	reply, err := parseStageReply(raw)
	if err != nil {
		log.Printf("[WARN] stage %s returned unparsable payload: %v", name, err)
		return degradedStage(name)
	}
	return model.StageResult{
		Stage:      name,
		Status:     model.StageOK,
		Stance:     reply.Stance,
		Confidence: model.Confidence(reply.Confidence),
		Summary:    reply.Summary,
	}
}

func (o *Orchestrator) callSynthesis(ctx context.Context, prompt string) (model.StageResult, synthesisReply) {
	raw, err := o.complete(ctx, synthesisSystem, prompt)
	if err != nil {
		log.Printf("[WARN] synthesis stage degraded: %v", err)
		return degradedStage(model.StageSynthesis), synthesisReply{}
	}
	reply, err := parseSynthesisReply(raw)
	if err != nil {
		log.Printf("[WARN] synthesis returned unparsable payload: %v", err)
		return degradedStage(model.StageSynthesis), synthesisReply{}
	}
	stance := model.StanceNeutral
	switch model.Action(reply.Action) {
	case model.ActionAccept:
		stance = model.StanceBullish
	case model.ActionReject:
		stance = model.StanceBearish
	}
	return model.StageResult{
		Stage:      model.StageSynthesis,
		Status:     model.StageOK,
		Stance:     stance,
		Confidence: model.Confidence(reply.Confidence),
		Summary:    reply.Summary,
	}, reply
}

// complete calls the agent with the per-stage timeout, retrying once on
// transient failure. A timed-out call is abandoned; its late result is
// discarded. Non-transient failures (a rejected request will fail again)
// surface immediately.
func (o *Orchestrator) complete(ctx context.Context, system, prompt string) (string, error) {
	var raw string
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.Committee.StageTimeoutSec)*time.Second)
		defer cancel()
		var err error
		raw, err = o.agent.Complete(callCtx, system, prompt)
		if err != nil && !transientErr(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), uint64(o.cfg.Committee.StageRetries))
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return raw, nil
}

func degradedStage(name string) model.StageResult {
	return model.StageResult{
		Stage:      name,
		Status:     model.StageDegraded,
		Stance:     model.StanceNeutral,
		Confidence: model.ConfidenceLow,
		Summary:    "analysis unavailable (stage failed after retries)",
	}
}
