package engine

import (
	"fmt"
	"math"

	"options-backtester/internal/config"
	"options-backtester/internal/models"
)

// Exit reasons, in evaluation priority order.
const (
	ExitReasonTimeExit     = "time_exit"
	ExitReasonStopLoss     = "stop_loss"
	ExitReasonProfitTarget = "profit_target"
	ExitReasonStrikeBreach = "strike_breach"
	ExitReasonVegaBreach   = "vega_breach"
)

// ExitReasons lists the defined exit reasons in priority order.
var ExitReasons = []string{
	ExitReasonTimeExit,
	ExitReasonStopLoss,
	ExitReasonProfitTarget,
	ExitReasonStrikeBreach,
	ExitReasonVegaBreach,
}

// ExitCheck is one exit condition's evaluation against a position.
type ExitCheck struct {
	Reason    string
	Triggered bool
	Values    map[string]float64
}

// ExitDecision is the outcome of evaluating all exit conditions for one
// open position at one snapshot. Exactly one reason triggers the close;
// when none trigger, all checks' values still reach the audit log.
type ExitDecision struct {
	Triggered bool
	Reason    string
	Detail    string
	Checks    []ExitCheck
}

// ExitEvaluator checks open positions against the configured exit
// conditions in a fixed priority order. The forced time exit always wins.
type ExitEvaluator struct {
	cfg *config.Config
}

// NewExitEvaluator creates an evaluator for the given configuration.
func NewExitEvaluator(cfg *config.Config) *ExitEvaluator {
	return &ExitEvaluator{cfg: cfg}
}

// Evaluate runs all five checks against a marked position. The first
// triggered reason in priority order decides the close, but every check's
// values are recorded for later analysis.
func (e *ExitEvaluator) Evaluate(pos *models.Position, snap *models.MarketSnapshot) ExitDecision {
	s := &e.cfg.Strategy

	credit := pos.Credit
	debit := pos.NetPrice(true)
	loss := debit - credit
	profit := credit - debit

	checks := []ExitCheck{
		e.checkTimeExit(snap),
		e.checkStopLoss(credit, debit),
		e.checkProfitTarget(credit, profit),
		e.checkStrikeBreach(pos, snap),
		e.checkVegaBreach(pos),
	}

	decision := ExitDecision{Checks: checks}
	for _, check := range checks {
		if check.Triggered {
			decision.Triggered = true
			decision.Reason = check.Reason
			break
		}
	}

	switch decision.Reason {
	case ExitReasonTimeExit:
		decision.Detail = fmt.Sprintf("forced exit at cutoff %s", s.TimeExitCutoff)
	case ExitReasonStopLoss:
		decision.Detail = fmt.Sprintf("debit %.2f >= %.1fx credit %.2f (loss %.2f)", debit, s.StopLossMultiple, credit, loss)
	case ExitReasonProfitTarget:
		decision.Detail = fmt.Sprintf("profit %.2f >= %.0f%% of credit %.2f", profit, s.ProfitTargetFraction*100, credit)
	case ExitReasonStrikeBreach:
		decision.Detail = fmt.Sprintf("underlying %.2f crossed a short strike", snap.UnderlyingPrice)
	case ExitReasonVegaBreach:
		decision.Detail = fmt.Sprintf("aggregate vega %.1f over ceiling %.1f", pos.Greeks.Vega, s.MaxVega)
	}

	return decision
}

func (e *ExitEvaluator) checkTimeExit(snap *models.MarketSnapshot) ExitCheck {
	cutoff, _ := config.ParseClock(e.cfg.Strategy.TimeExitCutoff)
	now := config.ClockOf(snap.Timestamp)
	return ExitCheck{
		Reason:    ExitReasonTimeExit,
		Triggered: now.AfterEq(cutoff),
		Values: map[string]float64{
			"minute_of_day": float64(now.Hour*60 + now.Minute),
			"cutoff_minute": float64(cutoff.Hour*60 + cutoff.Minute),
		},
	}
}

// checkStopLoss triggers when the cost to close reaches the configured
// multiple of the collected credit (a 2.0 multiple stops a 0.35 credit out
// at a 0.70 debit). It only applies to net-credit positions: a position
// opened for a debit has no credit to multiply, so it can exit only via
// the time, strike-breach, or vega checks.
func (e *ExitEvaluator) checkStopLoss(credit, debit float64) ExitCheck {
	threshold := e.cfg.Strategy.StopLossMultiple * credit
	return ExitCheck{
		Reason:    ExitReasonStopLoss,
		Triggered: credit > 0 && debit >= threshold,
		Values: map[string]float64{
			"debit":     debit,
			"loss":      debit - credit,
			"threshold": threshold,
			"credit":    credit,
		},
	}
}

func (e *ExitEvaluator) checkProfitTarget(credit, profit float64) ExitCheck {
	// For a net-credit position, the credit is the maximum possible profit.
	target := e.cfg.Strategy.ProfitTargetFraction * credit
	return ExitCheck{
		Reason:    ExitReasonProfitTarget,
		Triggered: credit > 0 && profit >= target,
		Values: map[string]float64{
			"profit": profit,
			"target": target,
			"credit": credit,
		},
	}
}

func (e *ExitEvaluator) checkStrikeBreach(pos *models.Position, snap *models.MarketSnapshot) ExitCheck {
	breached := 0.0
	var breachedStrike float64
	for _, leg := range pos.Legs {
		if leg.Side != models.SideShort {
			continue
		}
		crossed := (leg.Type == models.OptionCall && snap.UnderlyingPrice > leg.Strike) ||
			(leg.Type == models.OptionPut && snap.UnderlyingPrice < leg.Strike)
		if crossed {
			breached = 1
			breachedStrike = leg.Strike
			break
		}
	}
	return ExitCheck{
		Reason:    ExitReasonStrikeBreach,
		Triggered: breached == 1,
		Values: map[string]float64{
			"underlying":      snap.UnderlyingPrice,
			"breached":        breached,
			"breached_strike": breachedStrike,
		},
	}
}

func (e *ExitEvaluator) checkVegaBreach(pos *models.Position) ExitCheck {
	limit := e.cfg.Strategy.MaxVega
	vega := pos.Greeks.Vega
	return ExitCheck{
		Reason:    ExitReasonVegaBreach,
		Triggered: limit > 0 && math.Abs(vega) > limit,
		Values: map[string]float64{
			"aggregate_vega": vega,
			"max_vega":       limit,
		},
	}
}
