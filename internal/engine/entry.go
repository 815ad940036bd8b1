package engine

import (
	"fmt"

	"options-backtester/internal/config"
	"options-backtester/internal/models"
)

// EntryDecision is the outcome of evaluating one snapshot against the entry
// checklist.
type EntryDecision struct {
	Accept     bool
	Score      float64
	Threshold  float64
	Results    []CriterionResult
	Candidates []CandidateLeg

	// NetCredit is the per-share premium the candidate legs would collect.
	NetCredit float64

	// RejectReason names the first blocking criterion when Accept is false.
	RejectReason string
}

// EntryEvaluator scores snapshots against the configured entry criteria.
// Acceptance requires every hard criterion to pass and the overall score
// (fraction of criteria passed) to meet the configured threshold.
type EntryEvaluator struct {
	cfg      *config.Config
	selector *ContractSelector
	criteria []Criterion
}

// NewEntryEvaluator creates an evaluator for the given configuration.
func NewEntryEvaluator(cfg *config.Config, selector *ContractSelector) *EntryEvaluator {
	return &EntryEvaluator{
		cfg:      cfg,
		selector: selector,
		criteria: buildCriteria(),
	}
}

// Evaluate resolves candidate contracts for each strategy leg and runs the
// full checklist. Every criterion is evaluated even after a failure so the
// audit trail carries the complete picture.
func (e *EntryEvaluator) Evaluate(snap *models.MarketSnapshot, openCount int, freeCapital float64) EntryDecision {
	s := &e.cfg.Strategy

	candidates := make([]CandidateLeg, 0, len(s.Legs))
	for _, spec := range s.Legs {
		sel, ok := e.selector.Select(snap, SelectCriteria{
			Type:           spec.OptionType(),
			TargetDelta:    spec.Delta,
			DeltaTolerance: s.DeltaTolerance,
			MinVolume:      s.MinVolume,
			MaxSpreadPct:   s.MaxSpreadPct,
			MaxSpreadAbs:   s.MaxSpreadAbs,
		})
		candidates = append(candidates, CandidateLeg{
			Spec:  spec,
			Quote: sel.Quote,
			Stage: sel.Stage,
			Found: ok,
		})
	}

	ctx := &EvalContext{
		Snapshot:    snap,
		Strategy:    s,
		Run:         &e.cfg.Run,
		OpenCount:   openCount,
		FreeCapital: freeCapital,
		Candidates:  candidates,
		NetCredit:   netCredit(candidates),
	}

	decision := EntryDecision{
		Threshold:  s.ScoreThreshold,
		Candidates: candidates,
		NetCredit:  ctx.NetCredit,
	}

	passed := 0
	hardOK := true
	for _, c := range e.criteria {
		res := c.Evaluate(ctx)
		decision.Results = append(decision.Results, res)
		if res.Passed {
			passed++
			continue
		}
		if res.Hard && hardOK {
			hardOK = false
			decision.RejectReason = res.Name
		}
	}

	decision.Score = float64(passed) / float64(len(e.criteria))
	decision.Accept = hardOK && decision.Score >= s.ScoreThreshold
	if !decision.Accept && decision.RejectReason == "" {
		decision.RejectReason = fmt.Sprintf("score %.2f below threshold %.2f", decision.Score, s.ScoreThreshold)
	}

	return decision
}

// netCredit sums the per-share premium of the candidate legs at the bid/ask
// midpoint, short legs positive.
func netCredit(candidates []CandidateLeg) float64 {
	var credit float64
	for _, cand := range candidates {
		if !cand.Found {
			continue
		}
		credit += -cand.Spec.LegSide().Sign() * cand.Quote.Midpoint() * float64(cand.Spec.Quantity)
	}
	return credit
}
