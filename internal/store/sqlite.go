package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	bterrors "options-backtester/internal/errors"
)

// Undefined headline metrics (NaN sentinels) persist as NULL and come back
// as NaN, so one zero-trade run cannot poison listing for the whole index.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// SQLiteIndex implements RunIndex using SQLite.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (or creates) the run index at dbPath.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, bterrors.NewIOError("mkdir", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	idx := &SQLiteIndex{db: db}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return idx, nil
}

func (s *SQLiteIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		data_start DATETIME NOT NULL,
		data_end DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		trades INTEGER NOT NULL,
		total_return REAL,
		sharpe_ratio REAL,
		max_drawdown REAL,
		artifact_dir TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(strategy);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts one run record.
func (s *SQLiteIndex) SaveRun(ctx context.Context, rec *RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, data_start, data_end, created_at, trades,
			total_return, sharpe_ratio, max_drawdown, artifact_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Strategy, rec.DataStart, rec.DataEnd, rec.CreatedAt,
		rec.Trades, nullFloat(rec.TotalReturn), nullFloat(rec.SharpeRatio),
		nullFloat(rec.MaxDrawdown), rec.ArtifactDir)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun looks up one run by id.
func (s *SQLiteIndex) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, data_start, data_end, created_at, trades,
			total_return, sharpe_ratio, max_drawdown, artifact_dir
		FROM runs WHERE id = ?`, id)

	rec := &RunRecord{}
	var totalReturn, sharpe, drawdown sql.NullFloat64
	err := row.Scan(&rec.ID, &rec.Strategy, &rec.DataStart, &rec.DataEnd, &rec.CreatedAt,
		&rec.Trades, &totalReturn, &sharpe, &drawdown, &rec.ArtifactDir)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", id, err)
	}
	rec.TotalReturn = floatOrNaN(totalReturn)
	rec.SharpeRatio = floatOrNaN(sharpe)
	rec.MaxDrawdown = floatOrNaN(drawdown)
	return rec, nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *SQLiteIndex) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `
		SELECT id, strategy, data_start, data_end, created_at, trades,
			total_return, sharpe_ratio, max_drawdown, artifact_dir
		FROM runs WHERE 1=1`
	var args []interface{}

	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var totalReturn, sharpe, drawdown sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Strategy, &rec.DataStart, &rec.DataEnd, &rec.CreatedAt,
			&rec.Trades, &totalReturn, &sharpe, &drawdown, &rec.ArtifactDir); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		rec.TotalReturn = floatOrNaN(totalReturn)
		rec.SharpeRatio = floatOrNaN(sharpe)
		rec.MaxDrawdown = floatOrNaN(drawdown)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
