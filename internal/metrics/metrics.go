// Package metrics computes performance statistics over a completed run.
package metrics

import (
	"math"
	"sort"
	"strconv"

	"options-backtester/internal/config"
	"options-backtester/internal/models"
)

// Value is a metric that may be undefined when its denominator is zero
// (e.g. profit factor with no losing trades). Undefined values marshal as
// the JSON string "undefined" rather than raising.
type Value float64

// Undefined returns the undefined sentinel.
func Undefined() Value {
	return Value(math.NaN())
}

// IsUndefined reports whether the metric carries the sentinel.
func (v Value) IsUndefined() bool {
	return math.IsNaN(float64(v))
}

// MarshalJSON renders undefined values as "undefined".
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsUndefined() {
		return []byte(`"undefined"`), nil
	}
	return strconv.AppendFloat(nil, float64(v), 'g', -1, 64), nil
}

// Summary holds the aggregate performance metrics for one run.
type Summary struct {
	TotalTrades   int `json:"total_trades"`
	WinningTrades int `json:"winning_trades"`
	LosingTrades  int `json:"losing_trades"`

	TotalReturn      Value `json:"total_return"`
	AnnualizedReturn Value `json:"annualized_return"`
	SharpeRatio      Value `json:"sharpe_ratio"`
	SortinoRatio     Value `json:"sortino_ratio"`
	MaxDrawdown      Value `json:"max_drawdown"`
	WinRate          Value `json:"win_rate"`
	ProfitFactor     Value `json:"profit_factor"`
	AvgWin           Value `json:"avg_win"`
	AvgLoss          Value `json:"avg_loss"`
	ValueAtRisk      Value `json:"value_at_risk"`
	CalmarRatio      Value `json:"calmar_ratio"`
}

// Calculate is a pure function over the closed trade list and equity curve.
// It never panics on empty input: an empty trade list yields win rate 0 and
// undefined ratios.
func Calculate(trades []models.Trade, equity []models.EquityCurvePoint, run config.RunConfig) Summary {
	s := Summary{
		TotalTrades:      len(trades),
		TotalReturn:      Undefined(),
		AnnualizedReturn: Undefined(),
		SharpeRatio:      Undefined(),
		SortinoRatio:     Undefined(),
		MaxDrawdown:      Undefined(),
		WinRate:          Value(0),
		ProfitFactor:     Undefined(),
		AvgWin:           Undefined(),
		AvgLoss:          Undefined(),
		ValueAtRisk:      Undefined(),
		CalmarRatio:      Undefined(),
	}

	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.PnL > 0 {
			s.WinningTrades++
			grossProfit += t.PnL
		} else {
			s.LosingTrades++
			grossLoss += -t.PnL
		}
	}

	if s.TotalTrades > 0 {
		s.WinRate = Value(float64(s.WinningTrades) / float64(s.TotalTrades))
	}
	if s.WinningTrades > 0 {
		s.AvgWin = Value(grossProfit / float64(s.WinningTrades))
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = Value(-grossLoss / float64(s.LosingTrades))
	}
	if grossLoss > 0 {
		s.ProfitFactor = Value(grossProfit / grossLoss)
	}

	if len(equity) < 2 {
		return s
	}

	start := equity[0].Equity
	end := equity[len(equity)-1].Equity
	if start > 0 {
		s.TotalReturn = Value(end/start - 1)

		periods := float64(len(equity) - 1)
		years := periods / run.PeriodsPerYear
		if years > 0 && end > 0 {
			s.AnnualizedReturn = Value(math.Pow(end/start, 1/years) - 1)
		}
	}

	s.MaxDrawdown = Value(maxDrawdown(equity))

	returns := periodReturns(equity)
	if len(returns) > 0 {
		s.SharpeRatio = sharpe(returns, run)
		s.SortinoRatio = sortino(returns, run)
		s.ValueAtRisk = valueAtRisk(returns, run.VaRConfidence)
	}

	if !s.AnnualizedReturn.IsUndefined() && !s.MaxDrawdown.IsUndefined() && float64(s.MaxDrawdown) > 0 {
		s.CalmarRatio = Value(float64(s.AnnualizedReturn) / float64(s.MaxDrawdown))
	}

	return s
}

// periodReturns converts the equity curve into simple per-period returns.
// Points with non-positive equity are skipped as unusable denominators.
func periodReturns(equity []models.EquityCurvePoint) []float64 {
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	return returns
}

// maxDrawdown is the largest peak-to-trough decline, as a positive fraction.
func maxDrawdown(equity []models.EquityCurvePoint) float64 {
	peak := equity[0].Equity
	var maxDD float64
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func sharpe(returns []float64, run config.RunConfig) Value {
	mean, std := meanStd(returns)
	if std == 0 {
		return Undefined()
	}
	rfPerPeriod := run.RiskFreeRate / run.PeriodsPerYear
	return Value((mean - rfPerPeriod) / std * math.Sqrt(run.PeriodsPerYear))
}

func sortino(returns []float64, run config.RunConfig) Value {
	mean, _ := meanStd(returns)
	rfPerPeriod := run.RiskFreeRate / run.PeriodsPerYear

	var downside float64
	n := 0
	for _, r := range returns {
		if r < rfPerPeriod {
			d := r - rfPerPeriod
			downside += d * d
			n++
		}
	}
	if n == 0 {
		return Undefined()
	}
	dd := math.Sqrt(downside / float64(len(returns)))
	if dd == 0 {
		return Undefined()
	}
	return Value((mean - rfPerPeriod) / dd * math.Sqrt(run.PeriodsPerYear))
}

// valueAtRisk is the historical VaR at the configured confidence level,
// reported as a positive loss fraction per period.
func valueAtRisk(returns []float64, confidence float64) Value {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := -sorted[idx]
	if v < 0 {
		v = 0
	}
	return Value(v)
}

func meanStd(returns []float64) (float64, float64) {
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return mean, math.Sqrt(variance)
}
