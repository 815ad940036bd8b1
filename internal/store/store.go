// Package store provides the persistent run index. The index lets external
// tooling list and filter completed runs without re-parsing full artifacts.
package store

import (
	"context"
	"time"
)

// RunRecord is one completed run's classification metadata plus headline
// metrics.
type RunRecord struct {
	ID          string
	Strategy    string
	DataStart   time.Time
	DataEnd     time.Time
	CreatedAt   time.Time
	Trades      int
	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64
	ArtifactDir string
}

// RunFilter restricts ListRuns.
type RunFilter struct {
	Strategy string
	Since    time.Time
	Limit    int
}

// RunIndex is the persistence interface for run metadata.
type RunIndex interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
	Close() error
}
