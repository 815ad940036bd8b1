package engine

import (
	"fmt"
	"math"

	"options-backtester/internal/config"
	"options-backtester/internal/models"
)

// CriterionResult is one entry-criterion evaluation: a pass/fail, the
// numeric values that produced it, and a human-readable reason.
type CriterionResult struct {
	Name   string
	Hard   bool
	Passed bool
	Reason string
	Values map[string]float64
}

// Criterion is one rule in the entry checklist. The set of criteria is a
// fixed enumeration built from the strategy configuration.
type Criterion interface {
	Name() string
	// Hard criteria block entry unconditionally when they fail; soft
	// criteria only contribute to the score.
	Hard() bool
	Evaluate(ctx *EvalContext) CriterionResult
}

// CandidateLeg is a strategy leg resolved against the current snapshot.
type CandidateLeg struct {
	Spec  config.LegSpec
	Quote models.ContractQuote
	Stage string
	Found bool
}

// EvalContext carries the read-only inputs one entry evaluation sees. It is
// constructed per snapshot and threaded through every criterion; no
// criterion mutates it.
type EvalContext struct {
	Snapshot    *models.MarketSnapshot
	Strategy    *config.StrategyConfig
	Run         *config.RunConfig
	OpenCount   int
	FreeCapital float64
	Candidates  []CandidateLeg

	// NetCredit is the per-share premium the candidate legs would collect,
	// short legs positive.
	NetCredit float64
}

func result(name string, hard, passed bool, reason string, values map[string]float64) CriterionResult {
	return CriterionResult{Name: name, Hard: hard, Passed: passed, Reason: reason, Values: values}
}

// timeWindowCriterion checks the configured entry window.
type timeWindowCriterion struct{}

func (timeWindowCriterion) Name() string { return "time_window" }
func (timeWindowCriterion) Hard() bool   { return true }

func (c timeWindowCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	start, _ := config.ParseClock(ctx.Strategy.EntryWindowStart)
	end, _ := config.ParseClock(ctx.Strategy.EntryWindowEnd)
	now := config.ClockOf(ctx.Snapshot.Timestamp)

	passed := now.AfterEq(start) && now.Before(end)
	reason := fmt.Sprintf("%02d:%02d within entry window %s-%s", now.Hour, now.Minute,
		ctx.Strategy.EntryWindowStart, ctx.Strategy.EntryWindowEnd)
	if !passed {
		reason = fmt.Sprintf("%02d:%02d outside entry window %s-%s", now.Hour, now.Minute,
			ctx.Strategy.EntryWindowStart, ctx.Strategy.EntryWindowEnd)
	}
	return result(c.Name(), c.Hard(), passed, reason, map[string]float64{
		"minute_of_day": float64(now.Hour*60 + now.Minute),
	})
}

// marketOpenCriterion checks the snapshot's market-open flag.
type marketOpenCriterion struct{}

func (marketOpenCriterion) Name() string { return "market_open" }
func (marketOpenCriterion) Hard() bool   { return true }

func (c marketOpenCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	passed := ctx.Snapshot.MarketOpen
	reason := "market is open"
	if !passed {
		reason = "market is closed"
	}
	return result(c.Name(), c.Hard(), passed, reason, nil)
}

// capacityCriterion rejects entries when the position book is full. Also
// covers "absence of conflicting open position" for max_positions = 1.
type capacityCriterion struct{}

func (capacityCriterion) Name() string { return "capacity" }
func (capacityCriterion) Hard() bool   { return true }

func (c capacityCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	passed := ctx.OpenCount < ctx.Strategy.MaxPositions
	reason := fmt.Sprintf("%d of %d position slots used", ctx.OpenCount, ctx.Strategy.MaxPositions)
	return result(c.Name(), c.Hard(), passed, reason, map[string]float64{
		"open_positions": float64(ctx.OpenCount),
		"max_positions":  float64(ctx.Strategy.MaxPositions),
	})
}

// contractsFoundCriterion requires every strategy leg to have resolved to a
// contract via the selector.
type contractsFoundCriterion struct{}

func (contractsFoundCriterion) Name() string { return "contracts_found" }
func (contractsFoundCriterion) Hard() bool   { return true }

func (c contractsFoundCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	found := 0
	for _, cand := range ctx.Candidates {
		if cand.Found {
			found++
		}
	}
	passed := found == len(ctx.Candidates) && found > 0
	reason := fmt.Sprintf("matched %d of %d legs", found, len(ctx.Candidates))
	return result(c.Name(), c.Hard(), passed, reason, map[string]float64{
		"legs_matched":   float64(found),
		"legs_requested": float64(len(ctx.Candidates)),
	})
}

// minPremiumCriterion requires the candidate legs' net credit to meet the
// configured minimum.
type minPremiumCriterion struct{}

func (minPremiumCriterion) Name() string { return "min_premium" }
func (minPremiumCriterion) Hard() bool   { return true }

func (c minPremiumCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	min := ctx.Strategy.MinPremium
	passed := min <= 0 || ctx.NetCredit >= min
	reason := fmt.Sprintf("net credit %.2f >= minimum %.2f", ctx.NetCredit, min)
	if !passed {
		reason = fmt.Sprintf("net credit %.2f below minimum %.2f", ctx.NetCredit, min)
	}
	return result(c.Name(), c.Hard(), passed, reason, map[string]float64{
		"net_credit":  ctx.NetCredit,
		"min_premium": min,
	})
}

// blackoutCriterion blocks entries on configured blackout dates.
type blackoutCriterion struct{}

func (blackoutCriterion) Name() string { return "blackout" }
func (blackoutCriterion) Hard() bool   { return true }

func (c blackoutCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	passed := !ctx.Strategy.BlackoutDate(ctx.Snapshot.Timestamp)
	reason := "no blackout event"
	if !passed {
		reason = "blackout date " + ctx.Snapshot.Timestamp.Format("2006-01-02")
	}
	return result(c.Name(), c.Hard(), passed, reason, nil)
}

// maxSpreadCriterion scores candidate-leg spreads against the limits.
type maxSpreadCriterion struct{}

func (maxSpreadCriterion) Name() string { return "max_spread" }
func (maxSpreadCriterion) Hard() bool   { return false }

func (c maxSpreadCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	worstAbs, worstPct := 0.0, 0.0
	for _, cand := range ctx.Candidates {
		if !cand.Found {
			continue
		}
		if s := cand.Quote.Spread(); s > worstAbs {
			worstAbs = s
		}
		if p := cand.Quote.SpreadPercent(); p > worstPct {
			worstPct = p
		}
	}

	passed := true
	if ctx.Strategy.MaxSpreadAbs > 0 && worstAbs > ctx.Strategy.MaxSpreadAbs {
		passed = false
	}
	if ctx.Strategy.MaxSpreadPct > 0 && worstPct > ctx.Strategy.MaxSpreadPct {
		passed = false
	}
	reason := fmt.Sprintf("worst spread %.2f (%.1f%%)", worstAbs, worstPct)
	return result(c.Name(), c.Hard(), passed, reason, map[string]float64{
		"worst_spread_abs": worstAbs,
		"worst_spread_pct": worstPct,
		"max_spread_abs":   ctx.Strategy.MaxSpreadAbs,
		"max_spread_pct":   ctx.Strategy.MaxSpreadPct,
	})
}

// maxVegaCriterion scores the projected aggregate vega of the candidate
// legs, signed and contract-scaled.
type maxVegaCriterion struct{}

func (maxVegaCriterion) Name() string { return "max_vega" }
func (maxVegaCriterion) Hard() bool   { return false }

func (c maxVegaCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	var vega float64
	for _, cand := range ctx.Candidates {
		if !cand.Found {
			continue
		}
		vega += cand.Spec.LegSide().Sign() * cand.Quote.Greeks.Vega *
			float64(cand.Spec.Quantity) * models.ContractMultiplier
	}

	limit := ctx.Strategy.MaxVega
	passed := limit <= 0 || math.Abs(vega) <= limit
	reason := fmt.Sprintf("projected aggregate vega %.1f within limit %.1f", vega, limit)
	if !passed {
		reason = fmt.Sprintf("projected aggregate vega %.1f exceeds limit %.1f", vega, limit)
	}
	return result(c.Name(), c.Hard(), passed, reason, map[string]float64{
		"aggregate_vega": vega,
		"max_vega":       limit,
	})
}

// deltaBalanceCriterion scores how evenly delta is distributed across legs
// of a multi-leg position. Single-leg strategies always pass.
type deltaBalanceCriterion struct{}

func (deltaBalanceCriterion) Name() string { return "delta_balance" }
func (deltaBalanceCriterion) Hard() bool   { return false }

func (c deltaBalanceCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	var found []CandidateLeg
	for _, cand := range ctx.Candidates {
		if cand.Found {
			found = append(found, cand)
		}
	}
	if len(found) < 2 {
		return result(c.Name(), c.Hard(), true, "single leg, no balance required", nil)
	}

	minD, maxD := math.Inf(1), math.Inf(-1)
	for _, cand := range found {
		d := math.Abs(cand.Quote.Greeks.Delta)
		if d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
	}
	imbalance := maxD - minD
	tolerance := ctx.Strategy.DeltaTolerance

	passed := tolerance <= 0 || imbalance <= tolerance
	reason := fmt.Sprintf("delta imbalance %.3f within tolerance %.3f", imbalance, tolerance)
	if !passed {
		reason = fmt.Sprintf("delta imbalance %.3f exceeds tolerance %.3f", imbalance, tolerance)
	}
	return result(c.Name(), c.Hard(), passed, reason, map[string]float64{
		"delta_imbalance": imbalance,
		"delta_tolerance": tolerance,
	})
}

// buyingPowerCriterion estimates the margin a credit position reserves
// (credit x stop-loss multiple, contract-scaled) against free capital.
type buyingPowerCriterion struct{}

func (buyingPowerCriterion) Name() string { return "buying_power" }
func (buyingPowerCriterion) Hard() bool   { return false }

func (c buyingPowerCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	required := ctx.NetCredit * ctx.Strategy.StopLossMultiple * models.ContractMultiplier
	if required < 0 {
		// Net-debit candidate: the debit itself is the requirement.
		required = -ctx.NetCredit * models.ContractMultiplier
	}
	passed := required <= ctx.FreeCapital
	reason := fmt.Sprintf("margin estimate %.2f within free capital %.2f", required, ctx.FreeCapital)
	if !passed {
		reason = fmt.Sprintf("margin estimate %.2f exceeds free capital %.2f", required, ctx.FreeCapital)
	}
	return result(c.Name(), c.Hard(), passed, reason, map[string]float64{
		"margin_required": required,
		"free_capital":    ctx.FreeCapital,
	})
}

// weekdayCriterion scores day-of-week exclusions.
type weekdayCriterion struct{}

func (weekdayCriterion) Name() string { return "weekday" }
func (weekdayCriterion) Hard() bool   { return false }

func (c weekdayCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	passed := !ctx.Strategy.ExcludedWeekday(ctx.Snapshot.Timestamp)
	reason := ctx.Snapshot.Timestamp.Weekday().String() + " allowed"
	if !passed {
		reason = ctx.Snapshot.Timestamp.Weekday().String() + " excluded"
	}
	return result(c.Name(), c.Hard(), passed, reason, nil)
}

// ivBandCriterion scores the candidate legs' mean implied volatility
// against the configured band. A zero band disables the check.
type ivBandCriterion struct{}

func (ivBandCriterion) Name() string { return "iv_band" }
func (ivBandCriterion) Hard() bool   { return false }

func (c ivBandCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	min, max := ctx.Strategy.IVMin, ctx.Strategy.IVMax
	if min <= 0 && max <= 0 {
		return result(c.Name(), c.Hard(), true, "IV band disabled", nil)
	}

	var sum float64
	n := 0
	for _, cand := range ctx.Candidates {
		if cand.Found {
			sum += cand.Quote.IV
			n++
		}
	}
	if n == 0 {
		return result(c.Name(), c.Hard(), false, "no candidate IV available", nil)
	}
	iv := sum / float64(n)

	passed := iv >= min && (max <= 0 || iv <= max)
	reason := fmt.Sprintf("mean IV %.1f within band [%.1f, %.1f]", iv, min, max)
	if !passed {
		reason = fmt.Sprintf("mean IV %.1f outside band [%.1f, %.1f]", iv, min, max)
	}
	return result(c.Name(), c.Hard(), passed, reason, map[string]float64{
		"mean_iv": iv,
		"iv_min":  min,
		"iv_max":  max,
	})
}

// riskRewardCriterion scores the strategy's configured reward/risk ratio:
// profit target fraction of credit against stop-loss multiple of credit.
type riskRewardCriterion struct{}

func (riskRewardCriterion) Name() string { return "risk_reward" }
func (riskRewardCriterion) Hard() bool   { return false }

func (c riskRewardCriterion) Evaluate(ctx *EvalContext) CriterionResult {
	min := ctx.Strategy.MinRiskReward
	if min <= 0 {
		return result(c.Name(), c.Hard(), true, "risk/reward check disabled", nil)
	}

	rr := ctx.Strategy.ProfitTargetFraction / ctx.Strategy.StopLossMultiple
	passed := rr >= min
	reason := fmt.Sprintf("risk/reward %.2f >= minimum %.2f", rr, min)
	if !passed {
		reason = fmt.Sprintf("risk/reward %.2f below minimum %.2f", rr, min)
	}
	return result(c.Name(), c.Hard(), passed, reason, map[string]float64{
		"risk_reward":     rr,
		"min_risk_reward": min,
	})
}

// buildCriteria returns the fixed, ordered entry checklist.
func buildCriteria() []Criterion {
	return []Criterion{
		timeWindowCriterion{},
		marketOpenCriterion{},
		capacityCriterion{},
		contractsFoundCriterion{},
		minPremiumCriterion{},
		blackoutCriterion{},
		maxSpreadCriterion{},
		maxVegaCriterion{},
		deltaBalanceCriterion{},
		buyingPowerCriterion{},
		weekdayCriterion{},
		ivBandCriterion{},
		riskRewardCriterion{},
	}
}
