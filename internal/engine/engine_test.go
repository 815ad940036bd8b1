package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/config"
	"options-backtester/internal/data"
	bterrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
)

// stopLossSeries sells a 0.35-credit put in the morning and watches it
// cross twice the credit by early afternoon. The entry window closes at
// noon so the freed slot is not re-filled after the stop-out.
func stopLossSeries() []models.MarketSnapshot {
	return []models.MarketSnapshot{
		snapshotAt(tradingDay(10, 0), 100, putQuote(90, 0.16, 0.34, 0.36)),
		snapshotAt(tradingDay(12, 30), 99.2, putQuote(90, 0.19, 0.43, 0.47)),
		snapshotAt(tradingDay(13, 0), 98.8, putQuote(90, 0.22, 0.48, 0.52)),
		snapshotAt(tradingDay(13, 30), 98.1, putQuote(90, 0.28, 0.69, 0.73)),
	}
}

func stopLossConfig() *config.Config {
	cfg := testConfig()
	cfg.Strategy.EntryWindowEnd = "12:00"
	return cfg
}

func TestRunStopLossScenario(t *testing.T) {
	cfg := stopLossConfig()
	eng := New(cfg, nopLogger())

	result, err := eng.Run(context.Background(), data.NewSliceSource(stopLossSeries()))
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]

	assert.Equal(t, ExitReasonStopLoss, trade.ExitReason)
	assert.InDelta(t, 0.35, trade.EntryCredit, 1e-9)
	assert.InDelta(t, 0.71, trade.ExitDebit, 1e-9)
	assert.InDelta(t, (0.35-0.71)*100-1.30, trade.PnL, 1e-9)
	assert.True(t, trade.EntryTime.Before(trade.ExitTime))

	require.Len(t, result.EquityCurve, 4)
	assert.InDelta(t, 100000.0, result.EquityCurve[0].Equity, 1e-9)
	assert.InDelta(t, 100000.0+trade.PnL, result.EquityCurve[3].Equity, 1e-9)

	accepts, exits := 0, 0
	for _, entry := range result.Audit {
		switch entry.Decision {
		case models.DecisionEntryAccept:
			accepts++
		case models.DecisionExitAccept:
			exits++
		}
	}
	assert.Equal(t, 1, accepts)
	assert.Equal(t, 1, exits)
	assert.Equal(t, 1, result.Summary.TotalTrades)
	assert.Equal(t, 1, result.Summary.LosingTrades)
}

// Two runs over identical inputs must produce byte-identical encoded audit
// logs and identical trade lists.
func TestRunDeterministic(t *testing.T) {
	src := data.NewSliceSource(stopLossSeries())

	run := func() (*Result, []byte) {
		eng := New(stopLossConfig(), nopLogger())
		result, err := eng.Run(context.Background(), src)
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, eng.Audit().Encode(&buf))
		return result, buf.Bytes()
	}

	first, firstAudit := run()
	second, secondAudit := run()

	assert.Equal(t, firstAudit, secondAudit)
	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.EquityCurve, second.EquityCurve)
}

// When the premium floor is unreachable the run completes with zero trades
// and every rejection names the blocking criterion.
func TestRunMinPremiumUnreachable(t *testing.T) {
	cfg := testConfig() // every snapshot falls inside the entry window
	cfg.Strategy.MinPremium = 5.0
	series := []models.MarketSnapshot{
		snapshotAt(tradingDay(10, 0), 100, putQuote(90, 0.16, 0.34, 0.36)),
		snapshotAt(tradingDay(10, 30), 100, putQuote(90, 0.16, 0.36, 0.40)),
		snapshotAt(tradingDay(11, 0), 100, putQuote(90, 0.16, 0.38, 0.42)),
	}
	eng := New(cfg, nopLogger())

	result, err := eng.Run(context.Background(), data.NewSliceSource(series))
	require.NoError(t, err)

	assert.Empty(t, result.Trades)

	rejects := 0
	for _, entry := range result.Audit {
		require.NotEqual(t, models.DecisionEntryAccept, entry.Decision)
		if entry.Decision == models.DecisionEntryReject {
			rejects++
			assert.Equal(t, "min_premium", entry.Criterion)
		}
	}
	assert.Equal(t, 3, rejects)
}

// Open positions surviving the last snapshot are force-closed as time exits
// so metrics cover the whole book.
func TestRunClosesBookAtEndOfData(t *testing.T) {
	cfg := testConfig() // entry window open all afternoon
	series := []models.MarketSnapshot{
		snapshotAt(tradingDay(10, 0), 100, putQuote(90, 0.16, 0.34, 0.36)),
		snapshotAt(tradingDay(11, 0), 99.8, putQuote(90, 0.17, 0.36, 0.40)),
	}
	eng := New(cfg, nopLogger())

	result, err := eng.Run(context.Background(), data.NewSliceSource(series))
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitReasonTimeExit, result.Trades[0].ExitReason)
	// The final equity point is realized-only after the forced close.
	assert.InDelta(t, 100000.0+result.Trades[0].PnL,
		result.EquityCurve[len(result.EquityCurve)-1].Equity, 1e-9)
}

// Replaying the audit log, the number of concurrently open positions never
// exceeds the configured capacity.
func TestRunMaxPositionsInvariant(t *testing.T) {
	cfg := testConfig()
	series := []models.MarketSnapshot{
		snapshotAt(tradingDay(10, 0), 100, putQuote(90, 0.16, 0.38, 0.42)),
		snapshotAt(tradingDay(10, 30), 100.5, putQuote(90, 0.12, 0.13, 0.17)), // profit target
		snapshotAt(tradingDay(11, 0), 100, putQuote(90, 0.16, 0.43, 0.47)),
		snapshotAt(tradingDay(11, 30), 100.4, putQuote(90, 0.12, 0.18, 0.22)), // profit target
		snapshotAt(tradingDay(12, 0), 100, putQuote(90, 0.16, 0.40, 0.44)),
	}
	eng := New(cfg, nopLogger())

	result, err := eng.Run(context.Background(), data.NewSliceSource(series))
	require.NoError(t, err)

	open := 0
	for _, entry := range result.Audit {
		switch entry.Decision {
		case models.DecisionEntryAccept:
			open++
		case models.DecisionExitAccept:
			open--
		}
		assert.LessOrEqual(t, open, cfg.Strategy.MaxPositions)
		assert.GreaterOrEqual(t, open, 0)
	}

	require.GreaterOrEqual(t, len(result.Trades), 2)
	validReasons := map[string]bool{}
	for _, r := range ExitReasons {
		validReasons[r] = true
	}
	for _, trade := range result.Trades {
		assert.True(t, validReasons[trade.ExitReason], "unexpected exit reason %q", trade.ExitReason)
		assert.True(t, trade.EntryTime.Before(trade.ExitTime) || trade.EntryTime.Equal(trade.ExitTime))
	}
}

func TestRunEmptySource(t *testing.T) {
	eng := New(testConfig(), nopLogger())
	_, err := eng.Run(context.Background(), data.NewSliceSource(nil))
	assert.ErrorIs(t, err, bterrors.ErrNoSnapshots)
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.Legs = nil
	eng := New(cfg, nopLogger())

	_, err := eng.Run(context.Background(), data.NewSliceSource(stopLossSeries()))
	assert.ErrorIs(t, err, bterrors.ErrConfigInvalid)
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := New(stopLossConfig(), nopLogger())
	result, err := eng.Run(ctx, data.NewSliceSource(stopLossSeries()))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Trades)
}
