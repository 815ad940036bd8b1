package models

import "time"

// Trade is the immutable projection of a closed position.
// EntryCredit and ExitDebit are per-share net premiums; PnL is in currency,
// net of commission and slippage.
type Trade struct {
	ID         string    `csv:"id"`
	Strategy   string    `csv:"strategy"`
	EntryTime  time.Time `csv:"entry_time"`
	ExitTime   time.Time `csv:"exit_time"`
	DaysHeld   float64   `csv:"days_held"`
	ExitReason string    `csv:"exit_reason"`

	EntryUnderlying float64 `csv:"entry_underlying"`
	ExitUnderlying  float64 `csv:"exit_underlying"`

	EntryCredit float64 `csv:"entry_credit"`
	ExitDebit   float64 `csv:"exit_debit"`

	PnL        float64 `csv:"pnl"`
	PnLPercent float64 `csv:"pnl_percent"`
	Commission float64 `csv:"commission"`

	EntrySpread float64 `csv:"entry_spread"`
	ExitSpread  float64 `csv:"exit_spread"`

	EntryDelta float64 `csv:"entry_delta"`
	ExitDelta  float64 `csv:"exit_delta"`
	EntryVega  float64 `csv:"entry_vega"`
	ExitVega   float64 `csv:"exit_vega"`
	EntryTheta float64 `csv:"entry_theta"`
	ExitTheta  float64 `csv:"exit_theta"`

	Legs int `csv:"legs"`
}
