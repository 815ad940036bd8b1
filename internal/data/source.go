// Package data provides market snapshot sources for the backtest engine.
package data

import (
	"sort"

	"options-backtester/internal/models"
)

// SnapshotSource supplies the ordered snapshot series for a run. Sources
// are read-only and safe to share between concurrently executing runs.
type SnapshotSource interface {
	// Snapshots returns the full series in chronological order.
	Snapshots() ([]models.MarketSnapshot, error)
}

// SliceSource serves an in-memory snapshot series. Snapshots are sorted by
// timestamp once at construction.
type SliceSource struct {
	snaps []models.MarketSnapshot
}

// NewSliceSource creates a SliceSource over the given snapshots.
func NewSliceSource(snaps []models.MarketSnapshot) *SliceSource {
	sorted := make([]models.MarketSnapshot, len(snaps))
	copy(sorted, snaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &SliceSource{snaps: sorted}
}

// Snapshots implements SnapshotSource.
func (s *SliceSource) Snapshots() ([]models.MarketSnapshot, error) {
	return s.snaps, nil
}
