package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"options-backtester/internal/config"
	bterrors "options-backtester/internal/errors"
	"options-backtester/internal/logging"
	"options-backtester/internal/models"
)

// PositionManager owns the authoritative set of open positions. No other
// component mutates position state. Open positions iterate in insertion
// order so replays are deterministic.
type PositionManager struct {
	cfg    *config.Config
	audit  *AuditLog
	logger zerolog.Logger

	open   []*models.Position
	trades []models.Trade

	nextID   int
	realized float64
}

// NewPositionManager creates a manager bound to one run's audit log.
func NewPositionManager(cfg *config.Config, audit *AuditLog, logger zerolog.Logger) *PositionManager {
	return &PositionManager{
		cfg:    cfg,
		audit:  audit,
		logger: logger,
	}
}

// Open creates a position from the accepted candidate legs. Entry prices
// and Greeks are taken at the bid/ask midpoint with slippage applied
// against it: short legs collect less, long legs pay more.
func (pm *PositionManager) Open(snap *models.MarketSnapshot, strategy string, candidates []CandidateLeg) (*models.Position, error) {
	if len(pm.open) >= pm.cfg.Strategy.MaxPositions {
		return nil, bterrors.ErrCapacityExceeded
	}

	slip := pm.cfg.Run.SlippagePct / 100

	pos := &models.Position{
		Strategy:        strategy,
		Status:          models.PositionOpen,
		EntryTime:       snap.Timestamp,
		EntryUnderlying: snap.UnderlyingPrice,
	}

	for _, cand := range candidates {
		if !cand.Found {
			return nil, bterrors.NewDataQualityError("missing_contract", string(cand.Spec.OptionType()), "candidate leg has no contract")
		}
		q := cand.Quote
		side := cand.Spec.LegSide()

		price := q.Midpoint() * (1 + side.Sign()*slip)

		pos.Legs = append(pos.Legs, models.Leg{
			Type:          q.Type,
			Strike:        q.Strike,
			Expiry:        q.Expiry,
			Side:          side,
			Quantity:      cand.Spec.Quantity,
			EntryPrice:    price,
			EntryGreeks:   q.Greeks,
			EntrySpread:   q.Spread(),
			CurrentPrice:  price,
			CurrentGreeks: q.Greeks,
			CurrentSpread: q.Spread(),
		})
	}

	pm.nextID++
	pos.ID = fmt.Sprintf("P-%06d", pm.nextID)
	pos.Credit = pos.NetPrice(false)
	pos.Greeks = pos.AggregateGreeks(false)
	pm.open = append(pm.open, pos)

	pm.audit.Append(snap.Timestamp, models.DecisionEntryAccept, pos.ID, "", true,
		fmt.Sprintf("opened %d-leg position at %.2f credit", len(pos.Legs), pos.Credit),
		map[string]float64{
			"credit":     pos.Credit,
			"legs":       float64(len(pos.Legs)),
			"underlying": snap.UnderlyingPrice,
			"vega":       pos.Greeks.Vega,
		})

	pm.logger.Info().
		Str("position_id", pos.ID).
		Float64("credit", pos.Credit).
		Int("legs", len(pos.Legs)).
		Msg("Position opened")

	return pos, nil
}

// Mark recomputes every open position's leg prices (midpoint fallback),
// aggregate Greeks, and unrealized P&L from the snapshot. Pure
// recomputation; the only state touched is the positions' current-value
// fields.
func (pm *PositionManager) Mark(snap *models.MarketSnapshot) {
	for _, pos := range pm.open {
		for i := range pos.Legs {
			leg := &pos.Legs[i]
			q := snap.FindQuote(leg.Type, leg.Strike, leg.Expiry)
			if q == nil {
				logging.LogDataQuality(pm.logger, "missing_quote",
					fmt.Sprintf("%s %.2f", leg.Type, leg.Strike), "contract absent from snapshot, holding last mark")
				continue
			}
			if q.Midpoint() <= 0 {
				logging.LogDataQuality(pm.logger, "bad_premium",
					fmt.Sprintf("%s %.2f", leg.Type, leg.Strike), "non-positive midpoint, holding last mark")
				continue
			}
			leg.CurrentPrice = q.Midpoint()
			leg.CurrentGreeks = q.Greeks
			leg.CurrentSpread = q.Spread()
		}
		pos.Greeks = pos.AggregateGreeks(true)
		pos.UnrealizedPnL = (pos.Credit - pos.NetPrice(true)) * models.ContractMultiplier
	}
}

// Close finalizes the position: realized P&L accounts for per-contract
// commission on both sides and slippage against the closing midpoint. The
// position is archived as a Trade and an exit_accept entry is emitted.
func (pm *PositionManager) Close(id string, snap *models.MarketSnapshot, reason string) (*models.Trade, error) {
	idx := -1
	for i, pos := range pm.open {
		if pos.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, bterrors.Wrapf(bterrors.ErrUnknownPosition, "close %s", id)
	}
	pos := pm.open[idx]

	slip := pm.cfg.Run.SlippagePct / 100
	var debit, exitSpread float64
	totalQty := 0
	for i := range pos.Legs {
		leg := &pos.Legs[i]
		mid := leg.CurrentPrice
		if q := snap.FindQuote(leg.Type, leg.Strike, leg.Expiry); q != nil && q.Midpoint() > 0 {
			mid = q.Midpoint()
			leg.CurrentGreeks = q.Greeks
			leg.CurrentSpread = q.Spread()
		}
		// Closing a short leg buys it back above the midpoint; closing a
		// long leg sells below it.
		price := mid * (1 - leg.Side.Sign()*slip)
		leg.CurrentPrice = price

		debit -= leg.Side.Sign() * price * float64(leg.Quantity)
		totalQty += leg.Quantity
		if leg.CurrentSpread > exitSpread {
			exitSpread = leg.CurrentSpread
		}
	}
	// Two commission charges per contract: entry and exit.
	commission := pm.cfg.Run.CommissionPerContract * float64(totalQty) * 2

	pnl := (pos.Credit-debit)*models.ContractMultiplier - commission

	pos.Status = models.PositionClosed
	pos.ExitTime = snap.Timestamp
	pos.ExitPrice = debit
	pos.ExitReason = reason
	pos.ExitUnderlying = snap.UnderlyingPrice
	pos.Greeks = pos.AggregateGreeks(true)
	pos.UnrealizedPnL = 0

	entryGreeks := pos.AggregateGreeks(false)
	exitGreeks := pos.AggregateGreeks(true)

	var entrySpread float64
	for _, leg := range pos.Legs {
		if leg.EntrySpread > entrySpread {
			entrySpread = leg.EntrySpread
		}
	}

	pnlPct := 0.0
	if pos.Credit != 0 {
		pnlPct = (pos.Credit - debit) / pos.Credit * 100
	}

	trade := models.Trade{
		ID:              pos.ID,
		Strategy:        pos.Strategy,
		EntryTime:       pos.EntryTime,
		ExitTime:        snap.Timestamp,
		DaysHeld:        snap.Timestamp.Sub(pos.EntryTime).Hours() / 24,
		ExitReason:      reason,
		EntryUnderlying: pos.EntryUnderlying,
		ExitUnderlying:  snap.UnderlyingPrice,
		EntryCredit:     pos.Credit,
		ExitDebit:       debit,
		PnL:             pnl,
		PnLPercent:      pnlPct,
		Commission:      commission,
		EntrySpread:     entrySpread,
		ExitSpread:      exitSpread,
		EntryDelta:      entryGreeks.Delta,
		ExitDelta:       exitGreeks.Delta,
		EntryVega:       entryGreeks.Vega,
		ExitVega:        exitGreeks.Vega,
		EntryTheta:      entryGreeks.Theta,
		ExitTheta:       exitGreeks.Theta,
		Legs:            len(pos.Legs),
	}

	pm.open = append(pm.open[:idx], pm.open[idx+1:]...)
	pm.trades = append(pm.trades, trade)
	pm.realized += pnl

	pm.audit.Append(snap.Timestamp, models.DecisionExitAccept, pos.ID, reason, true,
		fmt.Sprintf("closed at %.2f debit, pnl %.2f", debit, pnl),
		map[string]float64{
			"debit":      debit,
			"pnl":        pnl,
			"commission": commission,
			"underlying": snap.UnderlyingPrice,
		})

	logging.LogTradeClosed(pm.logger, pos.ID, reason, pnl)

	return &trade, nil
}

// Open positions in insertion order.
func (pm *PositionManager) Positions() []*models.Position {
	return pm.open
}

// OpenCount returns the number of open positions.
func (pm *PositionManager) OpenCount() int {
	return len(pm.open)
}

// Trades returns the archived closed trades in close order.
func (pm *PositionManager) Trades() []models.Trade {
	return pm.trades
}

// RealizedPnL returns cumulative realized P&L.
func (pm *PositionManager) RealizedPnL() float64 {
	return pm.realized
}

// UnrealizedPnL sums the open positions' marks.
func (pm *PositionManager) UnrealizedPnL() float64 {
	var total float64
	for _, pos := range pm.open {
		total += pos.UnrealizedPnL
	}
	return total
}

// ReservedMargin estimates the capital the open book consumes, using the
// same stop-loss-multiple estimate the buying-power criterion applies.
func (pm *PositionManager) ReservedMargin() float64 {
	var total float64
	for _, pos := range pm.open {
		m := pos.Credit * pm.cfg.Strategy.StopLossMultiple * models.ContractMultiplier
		if m < 0 {
			m = -pos.Credit * models.ContractMultiplier
		}
		total += m
	}
	return total
}
