package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/config"
	bterrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
)

func shortPutCandidate(q models.ContractQuote) []CandidateLeg {
	return []CandidateLeg{{
		Spec:  config.LegSpec{Type: "put", Side: "short", Delta: 0.15, Quantity: 1},
		Quote: q,
		Stage: StageStrict,
		Found: true,
	}}
}

func TestOpenAssignsSequentialIDs(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.MaxPositions = 3
	pm := NewPositionManager(cfg, NewAuditLog(), nopLogger())
	snap := snapshotAt(tradingDay(10, 0), 100, putQuote(90, 0.16, 0.34, 0.36))

	first, err := pm.Open(&snap, "short_put", shortPutCandidate(snap.Contracts[0]))
	require.NoError(t, err)
	second, err := pm.Open(&snap, "short_put", shortPutCandidate(snap.Contracts[0]))
	require.NoError(t, err)

	assert.Equal(t, "P-000001", first.ID)
	assert.Equal(t, "P-000002", second.ID)
	assert.Equal(t, 2, pm.OpenCount())
}

func TestOpenCapacityExceeded(t *testing.T) {
	cfg := testConfig() // max_positions = 1
	pm := NewPositionManager(cfg, NewAuditLog(), nopLogger())
	snap := snapshotAt(tradingDay(10, 0), 100, putQuote(90, 0.16, 0.34, 0.36))

	_, err := pm.Open(&snap, "short_put", shortPutCandidate(snap.Contracts[0]))
	require.NoError(t, err)

	_, err = pm.Open(&snap, "short_put", shortPutCandidate(snap.Contracts[0]))
	assert.ErrorIs(t, err, bterrors.ErrCapacityExceeded)
	assert.Equal(t, 1, pm.OpenCount())
}

func TestCloseUnknownPosition(t *testing.T) {
	pm := NewPositionManager(testConfig(), NewAuditLog(), nopLogger())
	snap := snapshotAt(tradingDay(10, 0), 100)

	_, err := pm.Close("P-000042", &snap, ExitReasonStopLoss)
	assert.ErrorIs(t, err, bterrors.ErrUnknownPosition)
}

// A short put sold at a 0.35 credit and bought back at 0.70 loses
// (0.70 - 0.35) x 100 plus commission on both sides.
func TestCloseRealizesPnL(t *testing.T) {
	cfg := testConfig()
	pm := NewPositionManager(cfg, NewAuditLog(), nopLogger())

	entry := snapshotAt(tradingDay(10, 0), 100, putQuote(90, 0.16, 0.34, 0.36))
	pos, err := pm.Open(&entry, "short_put", shortPutCandidate(entry.Contracts[0]))
	require.NoError(t, err)
	assert.InDelta(t, 0.35, pos.Credit, 1e-9)

	exit := snapshotAt(tradingDay(13, 30), 98, putQuote(90, 0.28, 0.68, 0.72))
	pm.Mark(&exit)
	trade, err := pm.Close(pos.ID, &exit, ExitReasonStopLoss)
	require.NoError(t, err)

	wantCommission := 0.65 * 1 * 2
	assert.InDelta(t, wantCommission, trade.Commission, 1e-9)
	assert.InDelta(t, 0.70, trade.ExitDebit, 1e-9)
	assert.InDelta(t, (0.35-0.70)*100-wantCommission, trade.PnL, 1e-9)
	assert.Equal(t, ExitReasonStopLoss, trade.ExitReason)
	assert.Equal(t, 0, pm.OpenCount())
	assert.InDelta(t, trade.PnL, pm.RealizedPnL(), 1e-9)
}

// Slippage always works against the trader: a short leg collects below the
// midpoint at entry and pays above it at exit.
func TestSlippageIsAdverse(t *testing.T) {
	cfg := testConfig()
	cfg.Run.SlippagePct = 1.0
	pm := NewPositionManager(cfg, NewAuditLog(), nopLogger())

	entry := snapshotAt(tradingDay(10, 0), 100, putQuote(90, 0.16, 0.34, 0.36))
	pos, err := pm.Open(&entry, "short_put", shortPutCandidate(entry.Contracts[0]))
	require.NoError(t, err)
	assert.InDelta(t, 0.35*0.99, pos.Credit, 1e-9)

	exit := snapshotAt(tradingDay(13, 30), 98, putQuote(90, 0.28, 0.68, 0.72))
	pm.Mark(&exit)
	trade, err := pm.Close(pos.ID, &exit, ExitReasonStopLoss)
	require.NoError(t, err)
	assert.InDelta(t, 0.70*1.01, trade.ExitDebit, 1e-9)
}

func TestMarkMidpointFallback(t *testing.T) {
	cfg := testConfig()
	pm := NewPositionManager(cfg, NewAuditLog(), nopLogger())

	entry := snapshotAt(tradingDay(10, 0), 100, putQuote(90, 0.16, 0.34, 0.36))
	pos, err := pm.Open(&entry, "short_put", shortPutCandidate(entry.Contracts[0]))
	require.NoError(t, err)

	t.Run("fresh quote updates the mark", func(t *testing.T) {
		next := snapshotAt(tradingDay(10, 30), 99, putQuote(90, 0.18, 0.43, 0.47))
		pm.Mark(&next)
		assert.InDelta(t, 0.45, pos.Legs[0].CurrentPrice, 1e-9)
		assert.InDelta(t, (0.35-0.45)*100, pos.UnrealizedPnL, 1e-9)
	})

	t.Run("missing quote holds the last mark", func(t *testing.T) {
		next := snapshotAt(tradingDay(11, 0), 99) // contract absent
		pm.Mark(&next)
		assert.InDelta(t, 0.45, pos.Legs[0].CurrentPrice, 1e-9)
	})

	t.Run("unpriceable quote holds the last mark", func(t *testing.T) {
		bad := putQuote(90, 0.18, 0, 0)
		next := snapshotAt(tradingDay(11, 30), 99, bad)
		pm.Mark(&next)
		assert.InDelta(t, 0.45, pos.Legs[0].CurrentPrice, 1e-9)
	})
}

func TestOpenEmitsEntryAccept(t *testing.T) {
	audit := NewAuditLog()
	pm := NewPositionManager(testConfig(), audit, nopLogger())
	snap := snapshotAt(tradingDay(10, 0), 100, putQuote(90, 0.16, 0.34, 0.36))

	pos, err := pm.Open(&snap, "short_put", shortPutCandidate(snap.Contracts[0]))
	require.NoError(t, err)

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.DecisionEntryAccept, entries[0].Decision)
	assert.Equal(t, pos.ID, entries[0].PositionID)
	assert.Equal(t, snap.Timestamp, entries[0].Timestamp)
}
