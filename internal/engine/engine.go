// Package engine implements the chronological backtest loop: contract
// selection, entry/exit evaluation, position management, and the audit
// trail that makes every decision replayable.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/config"
	"options-backtester/internal/data"
	bterrors "options-backtester/internal/errors"
	"options-backtester/internal/metrics"
	"options-backtester/internal/models"
)

// Result is everything one completed run produced. A completed run always
// carries a consistent audit/trade/metrics triple.
type Result struct {
	Strategy    string
	DataStart   time.Time
	DataEnd     time.Time
	Trades      []models.Trade
	EquityCurve []models.EquityCurvePoint
	Audit       []models.AuditEntry
	Summary     metrics.Summary

	// LastProcessed is the final snapshot timestamp the engine completed,
	// reported on both success and failure.
	LastProcessed time.Time
}

// Engine drives one backtest run. It is single-threaded and strictly
// sequential: snapshot order is the sole source of causality. Independent
// runs share no mutable state; construct one Engine per run.
type Engine struct {
	cfg    *config.Config
	logger zerolog.Logger

	selector  *ContractSelector
	entries   *EntryEvaluator
	exits     *ExitEvaluator
	positions *PositionManager
	audit     *AuditLog
}

// New creates an engine for a validated configuration.
func New(cfg *config.Config, logger zerolog.Logger) *Engine {
	audit := NewAuditLog()
	selector := NewContractSelector()
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		selector:  selector,
		entries:   NewEntryEvaluator(cfg, selector),
		exits:     NewExitEvaluator(cfg),
		positions: NewPositionManager(cfg, audit, logger),
		audit:     audit,
	}
}

// Run replays the snapshot series in order. Per snapshot: mark open
// positions, evaluate exits for each, evaluate entry, record an equity
// point. Per-snapshot decisions never abort the run; only configuration
// and I/O failures do.
func (e *Engine) Run(ctx context.Context, src data.SnapshotSource) (*Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	snaps, err := src.Snapshots()
	if err != nil {
		return nil, bterrors.Wrap(err, "reading snapshot source")
	}
	if len(snaps) == 0 {
		return nil, bterrors.ErrNoSnapshots
	}

	result := &Result{
		Strategy:  e.cfg.Strategy.Tag,
		DataStart: snaps[0].Timestamp,
		DataEnd:   snaps[len(snaps)-1].Timestamp,
	}

	for i := range snaps {
		snap := &snaps[i]

		if err := ctx.Err(); err != nil {
			result.Trades = e.positions.Trades()
			result.Audit = e.audit.Entries()
			return result, bterrors.Wrapf(err, "aborted after %s", result.LastProcessed.Format(time.RFC3339))
		}

		e.positions.Mark(snap)
		e.evaluateExits(snap)
		e.evaluateEntry(snap)

		equity := e.cfg.Run.InitialCapital + e.positions.RealizedPnL() + e.positions.UnrealizedPnL()
		result.EquityCurve = append(result.EquityCurve, models.EquityCurvePoint{
			Timestamp: snap.Timestamp,
			Equity:    equity,
		})

		result.LastProcessed = snap.Timestamp
	}

	// Anything still open is force-closed at the final snapshot so the
	// trade list and metrics cover the whole book.
	last := &snaps[len(snaps)-1]
	for _, pos := range append([]*models.Position(nil), e.positions.Positions()...) {
		if _, err := e.positions.Close(pos.ID, last, ExitReasonTimeExit); err != nil {
			e.logger.Error().Err(err).Str("position_id", pos.ID).Msg("Failed to close position at end of data")
		}
	}
	if n := len(result.EquityCurve); n > 0 {
		result.EquityCurve[n-1].Equity = e.cfg.Run.InitialCapital + e.positions.RealizedPnL()
	}

	result.Trades = e.positions.Trades()
	result.Audit = e.audit.Entries()
	result.Summary = metrics.Calculate(result.Trades, result.EquityCurve, e.cfg.Run)

	e.logger.Info().
		Int("snapshots", len(snaps)).
		Int("trades", len(result.Trades)).
		Int("audit_entries", len(result.Audit)).
		Msg("Backtest complete")

	return result, nil
}

// evaluateExits checks every open position, in insertion order, against the
// exit conditions. All checks are audited before any close.
func (e *Engine) evaluateExits(snap *models.MarketSnapshot) {
	// Snapshot the id list first: Close mutates the open set.
	open := e.positions.Positions()
	ids := make([]string, len(open))
	byID := make(map[string]*models.Position, len(open))
	for i, pos := range open {
		ids[i] = pos.ID
		byID[pos.ID] = pos
	}

	for _, id := range ids {
		pos := byID[id]
		decision := e.exits.Evaluate(pos, snap)

		for _, check := range decision.Checks {
			e.audit.Append(snap.Timestamp, models.DecisionExitAttempt, pos.ID, check.Reason,
				check.Triggered, "", check.Values)
		}

		if decision.Triggered {
			if _, err := e.positions.Close(pos.ID, snap, decision.Reason); err != nil {
				// Local and recovered: log, never crash the run.
				e.audit.Append(snap.Timestamp, models.DecisionExitReject, pos.ID, decision.Reason,
					false, err.Error(), nil)
				e.logger.Warn().Err(err).Str("position_id", pos.ID).Msg("Exit rejected")
			}
			continue
		}

		e.audit.Append(snap.Timestamp, models.DecisionExitReject, pos.ID, "", false,
			"no exit condition met", map[string]float64{
				"unrealized_pnl": pos.UnrealizedPnL,
				"credit":         pos.Credit,
				"debit":          pos.NetPrice(true),
			})
	}
}

// evaluateEntry runs the entry checklist and opens a position on accept.
// Every criterion result is audited before any position mutation.
func (e *Engine) evaluateEntry(snap *models.MarketSnapshot) {
	freeCapital := e.cfg.Run.InitialCapital + e.positions.RealizedPnL() - e.positions.ReservedMargin()
	decision := e.entries.Evaluate(snap, e.positions.OpenCount(), freeCapital)

	for _, res := range decision.Results {
		e.audit.Append(snap.Timestamp, models.DecisionEntryAttempt, "", res.Name,
			res.Passed, res.Reason, res.Values)
	}

	if !decision.Accept {
		e.audit.Append(snap.Timestamp, models.DecisionEntryReject, "", decision.RejectReason, false,
			fmt.Sprintf("entry rejected: %s", decision.RejectReason),
			map[string]float64{
				"score":     decision.Score,
				"threshold": decision.Threshold,
			})
		return
	}

	if _, err := e.positions.Open(snap, e.cfg.Strategy.Tag, decision.Candidates); err != nil {
		// Capacity races cannot happen in a sequential run, but data
		// quality on a candidate leg still rejects here.
		e.audit.Append(snap.Timestamp, models.DecisionEntryReject, "", "open_failed", false,
			err.Error(), map[string]float64{
				"score":     decision.Score,
				"threshold": decision.Threshold,
			})
		e.logger.Warn().Err(err).Msg("Entry rejected at open")
	}
}

// Audit exposes the run's audit log.
func (e *Engine) Audit() *AuditLog {
	return e.audit
}
