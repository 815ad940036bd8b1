package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/engine"
	"options-backtester/internal/metrics"
	"options-backtester/internal/models"
)

func sampleResult() (*engine.Result, *engine.AuditLog) {
	entry := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	exit := time.Date(2024, 1, 2, 13, 30, 0, 0, time.UTC)

	res := &engine.Result{
		Strategy:  "short_put",
		DataStart: entry,
		DataEnd:   exit,
		Trades: []models.Trade{{
			ID:          "P-000001",
			Strategy:    "short_put",
			EntryTime:   entry,
			ExitTime:    exit,
			ExitReason:  "stop_loss",
			EntryCredit: 0.35,
			ExitDebit:   0.70,
			PnL:         -36.3,
			Commission:  1.3,
			Legs:        1,
		}},
		EquityCurve: []models.EquityCurvePoint{
			{Timestamp: entry, Equity: 100000},
			{Timestamp: exit, Equity: 99963.7},
		},
		Summary: metrics.Summary{TotalTrades: 1, LosingTrades: 1, ProfitFactor: metrics.Undefined()},
	}

	audit := engine.NewAuditLog()
	audit.Append(entry, models.DecisionEntryAccept, "P-000001", "", true, "opened", nil)
	audit.Append(exit, models.DecisionExitAccept, "P-000001", "stop_loss", true, "closed", nil)

	return res, audit
}

func TestWriterWritesAllArtifacts(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base, zerolog.Nop())
	res, audit := sampleResult()

	dir, err := w.Write("run-1", "2024-01-02T20:00:00Z", res, audit)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "run-1"), dir)

	for _, name := range []string{TradeLogFile, AuditLogFile, SummaryFile, EquityCurveFile, ManifestFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, "missing artifact %s", name)
		assert.Greater(t, info.Size(), int64(0), "empty artifact %s", name)
	}

	// No staging directory survives a successful write.
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".staging"))
	}
}

func TestWriterManifestContents(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	res, audit := sampleResult()

	dir, err := w.Write("run-2", "2024-01-02T20:00:00Z", res, audit)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)

	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "run-2", m.RunID)
	assert.Equal(t, "short_put", m.Strategy)
	assert.Equal(t, 1, m.Trades)
	assert.Equal(t, "2024-01-02T20:00:00Z", m.CreatedAt)
}

func TestWriterSummaryCarriesUndefinedSentinel(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	res, audit := sampleResult()

	dir, err := w.Write("run-3", "2024-01-02T20:00:00Z", res, audit)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"undefined"`)
}

func TestWriterAuditLineCount(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	res, audit := sampleResult()

	dir, err := w.Write("run-4", "2024-01-02T20:00:00Z", res, audit)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, AuditLogFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, audit.Len())
}
