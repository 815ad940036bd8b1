package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bterrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
)

const csvHeader = "timestamp,underlying,market_open,symbol,type,strike,expiry,bid,ask,last,volume,open_interest,iv,delta,gamma,theta,vega,rho\n"

func writeCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvHeader+rows), 0644))
	return path
}

func TestCSVSourceGroupsByTimestamp(t *testing.T) {
	path := writeCSV(t,
		"2024-01-02T10:00:00Z,100.5,true,XSP240119P00090,put,90,2024-01-19T00:00:00Z,0.40,0.44,0.42,500,1200,18,-0.16,0.01,-0.04,0.5,0\n"+
			"2024-01-02T10:00:00Z,100.5,true,XSP240119C00110,call,110,2024-01-19T00:00:00Z,0.30,0.34,0,200,900,17,0.14,0.01,-0.03,0.4,0\n"+
			"2024-01-02T10:30:00Z,100.2,true,XSP240119P00090,put,90,2024-01-19T00:00:00Z,0.42,0.46,0,510,1200,18,-0.17,0.01,-0.04,0.5,0\n")

	src := NewCSVSource(path, ChainFormat{})
	snaps, err := src.Snapshots()
	require.NoError(t, err)

	require.Len(t, snaps, 2)
	assert.Len(t, snaps[0].Contracts, 2)
	assert.Len(t, snaps[1].Contracts, 1)
	assert.Equal(t, 100.5, snaps[0].UnderlyingPrice)
	assert.True(t, snaps[0].MarketOpen)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), snaps[0].Timestamp)

	q := snaps[0].Contracts[1]
	assert.Equal(t, models.OptionCall, q.Type)
	assert.InDelta(t, 0.32, q.Midpoint(), 1e-9)
	// No last trade: premium falls back to the midpoint.
	assert.InDelta(t, 0.32, q.Premium(), 1e-9)
}

// The strike scale is declared by the caller, never inferred from value
// magnitude: 4500000 with a 1000 divisor is the 4500.00 strike.
func TestCSVSourceAppliesStrikeScale(t *testing.T) {
	path := writeCSV(t,
		"2024-01-02T10:00:00Z,4510,true,SPXW,put,4500000,2024-01-19T00:00:00Z,12.0,12.4,0,100,400,15,-0.30,0.001,-0.9,1.8,0\n")

	src := NewCSVSource(path, ChainFormat{StrikeScale: 1000})
	snaps, err := src.Snapshots()
	require.NoError(t, err)

	require.Len(t, snaps, 1)
	require.Len(t, snaps[0].Contracts, 1)
	assert.Equal(t, 4500.0, snaps[0].Contracts[0].Strike)
}

func TestCSVSourceRejectsOutOfOrderRows(t *testing.T) {
	path := writeCSV(t,
		"2024-01-02T10:30:00Z,100,true,A,put,90,2024-01-19T00:00:00Z,0.4,0.44,0,1,1,18,-0.16,0,0,0.5,0\n"+
			"2024-01-02T10:00:00Z,100,true,A,put,90,2024-01-19T00:00:00Z,0.4,0.44,0,1,1,18,-0.16,0,0,0.5,0\n")

	src := NewCSVSource(path, ChainFormat{})
	_, err := src.Snapshots()

	require.Error(t, err)
	var ioErr *bterrors.IOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestCSVSourceMissingFile(t *testing.T) {
	src := NewCSVSource(filepath.Join(t.TempDir(), "absent.csv"), ChainFormat{})
	_, err := src.Snapshots()

	require.Error(t, err)
	var ioErr *bterrors.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "open", ioErr.Op)
}

func TestCSVSourceEmptyFile(t *testing.T) {
	path := writeCSV(t, "")
	src := NewCSVSource(path, ChainFormat{})
	_, err := src.Snapshots()
	assert.ErrorIs(t, err, bterrors.ErrNoSnapshots)
}

func TestSliceSourceSortsByTimestamp(t *testing.T) {
	later := models.MarketSnapshot{Timestamp: time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC)}
	earlier := models.MarketSnapshot{Timestamp: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)}

	src := NewSliceSource([]models.MarketSnapshot{later, earlier})
	snaps, err := src.Snapshots()
	require.NoError(t, err)

	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Timestamp.Before(snaps[1].Timestamp))
}
