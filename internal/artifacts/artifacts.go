// Package artifacts persists one run's outputs: trade log, audit log,
// performance summary, and equity curve. A run's directory appears fully
// written or not at all: files are staged and the directory renamed into
// place, so an external abort never leaves partial output.
package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"options-backtester/internal/engine"
	bterrors "options-backtester/internal/errors"
)

// Paths names the artifact files inside a run directory.
const (
	TradeLogFile    = "trades.csv"
	AuditLogFile    = "audit.jsonl"
	SummaryFile     = "summary.json"
	EquityCurveFile = "equity.csv"
	ManifestFile    = "run.json"
)

// Manifest is the per-run classification metadata an external index or
// search collaborator can read without parsing the full artifacts.
type Manifest struct {
	RunID     string `json:"run_id"`
	Strategy  string `json:"strategy"`
	DataStart string `json:"data_start"`
	DataEnd   string `json:"data_end"`
	CreatedAt string `json:"created_at"`
	Trades    int    `json:"trades"`
}

// Writer persists run artifacts under a base directory, one subdirectory
// per run id.
type Writer struct {
	baseDir string
	logger  zerolog.Logger
}

// NewWriter creates a writer rooted at baseDir.
func NewWriter(baseDir string, logger zerolog.Logger) *Writer {
	return &Writer{baseDir: baseDir, logger: logger}
}

// Dir returns the final directory for a run id.
func (w *Writer) Dir(runID string) string {
	return filepath.Join(w.baseDir, runID)
}

// Write stages all artifacts for the run and renames the staging directory
// into place. Any failure removes the staging directory and surfaces an
// IOError; no partial run directory survives.
func (w *Writer) Write(runID, createdAt string, res *engine.Result, audit *engine.AuditLog) (string, error) {
	if err := os.MkdirAll(w.baseDir, 0755); err != nil {
		return "", bterrors.NewIOError("mkdir", w.baseDir, err)
	}

	staging := filepath.Join(w.baseDir, "."+runID+".staging")
	final := w.Dir(runID)

	if err := os.MkdirAll(staging, 0755); err != nil {
		return "", bterrors.NewIOError("mkdir", staging, err)
	}
	cleanup := func(err error) (string, error) {
		os.RemoveAll(staging)
		return "", err
	}

	if err := w.writeTrades(filepath.Join(staging, TradeLogFile), res); err != nil {
		return cleanup(err)
	}
	if err := w.writeAudit(filepath.Join(staging, AuditLogFile), audit); err != nil {
		return cleanup(err)
	}
	if err := w.writeJSON(filepath.Join(staging, SummaryFile), res.Summary); err != nil {
		return cleanup(err)
	}
	if err := w.writeEquity(filepath.Join(staging, EquityCurveFile), res); err != nil {
		return cleanup(err)
	}
	manifest := Manifest{
		RunID:     runID,
		Strategy:  res.Strategy,
		DataStart: res.DataStart.Format("2006-01-02T15:04:05Z07:00"),
		DataEnd:   res.DataEnd.Format("2006-01-02T15:04:05Z07:00"),
		CreatedAt: createdAt,
		Trades:    len(res.Trades),
	}
	if err := w.writeJSON(filepath.Join(staging, ManifestFile), manifest); err != nil {
		return cleanup(err)
	}

	if err := os.Rename(staging, final); err != nil {
		return cleanup(bterrors.NewIOError("rename", final, err))
	}

	w.logger.Info().Str("run_id", runID).Str("dir", final).Msg("Artifacts written")
	return final, nil
}

func (w *Writer) writeTrades(path string, res *engine.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return bterrors.NewIOError("create", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&res.Trades, f); err != nil {
		return bterrors.NewIOError("write", path, err)
	}
	return f.Sync()
}

func (w *Writer) writeEquity(path string, res *engine.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return bterrors.NewIOError("create", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&res.EquityCurve, f); err != nil {
		return bterrors.NewIOError("write", path, err)
	}
	return f.Sync()
}

func (w *Writer) writeAudit(path string, audit *engine.AuditLog) error {
	f, err := os.Create(path)
	if err != nil {
		return bterrors.NewIOError("create", path, err)
	}
	defer f.Close()

	if err := audit.Encode(f); err != nil {
		return bterrors.NewIOError("write", path, err)
	}
	return f.Sync()
}

func (w *Writer) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return bterrors.NewIOError("encode", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return bterrors.NewIOError("create", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return bterrors.NewIOError("write", path, err)
	}
	return f.Sync()
}
