package data

import (
	"os"
	"time"

	"github.com/gocarina/gocsv"

	bterrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
)

// ChainFormat declares how a vendor file maps onto canonical units. The
// strike scale is a property of the data source, never inferred from the
// magnitude of the values.
type ChainFormat struct {
	// StrikeScale divides raw strike values into currency units. Vendors
	// shipping fixed-point strikes (e.g. 4500000 for 4500.00) declare the
	// divisor here; 0 means 1 (already in currency).
	StrikeScale float64

	// TimestampLayout parses the timestamp and expiry columns. Defaults to
	// RFC 3339.
	TimestampLayout string
}

func (f ChainFormat) strikeScale() float64 {
	if f.StrikeScale <= 0 {
		return 1
	}
	return f.StrikeScale
}

func (f ChainFormat) layout() string {
	if f.TimestampLayout == "" {
		return time.RFC3339
	}
	return f.TimestampLayout
}

// chainRow is one CSV line: a single contract quote at a timestamp.
type chainRow struct {
	Timestamp    string  `csv:"timestamp"`
	Underlying   float64 `csv:"underlying"`
	MarketOpen   bool    `csv:"market_open"`
	Symbol       string  `csv:"symbol"`
	Type         string  `csv:"type"`
	Strike       float64 `csv:"strike"`
	Expiry       string  `csv:"expiry"`
	Bid          float64 `csv:"bid"`
	Ask          float64 `csv:"ask"`
	Last         float64 `csv:"last"`
	Volume       int64   `csv:"volume"`
	OpenInterest int64   `csv:"open_interest"`
	IV           float64 `csv:"iv"`
	Delta        float64 `csv:"delta"`
	Gamma        float64 `csv:"gamma"`
	Theta        float64 `csv:"theta"`
	Vega         float64 `csv:"vega"`
	Rho          float64 `csv:"rho"`
}

// CSVSource reads chain snapshots from a CSV file, one row per contract
// quote, grouped by timestamp. The file is parsed once and cached.
type CSVSource struct {
	path   string
	format ChainFormat
	snaps  []models.MarketSnapshot
	loaded bool
}

// NewCSVSource creates a CSVSource for the given path and declared format.
func NewCSVSource(path string, format ChainFormat) *CSVSource {
	return &CSVSource{path: path, format: format}
}

// Snapshots implements SnapshotSource.
func (s *CSVSource) Snapshots() ([]models.MarketSnapshot, error) {
	if s.loaded {
		return s.snaps, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, bterrors.NewIOError("open", s.path, err)
	}
	defer f.Close()

	var rows []chainRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, bterrors.NewIOError("parse", s.path, err)
	}
	if len(rows) == 0 {
		return nil, bterrors.ErrNoSnapshots
	}

	snaps, err := s.group(rows)
	if err != nil {
		return nil, err
	}

	s.snaps = snaps
	s.loaded = true
	return s.snaps, nil
}

// group folds consecutive rows sharing a timestamp into one snapshot.
// Rows must arrive in chronological order.
func (s *CSVSource) group(rows []chainRow) ([]models.MarketSnapshot, error) {
	layout := s.format.layout()
	scale := s.format.strikeScale()

	var snaps []models.MarketSnapshot
	var cur *models.MarketSnapshot

	for _, row := range rows {
		ts, err := time.Parse(layout, row.Timestamp)
		if err != nil {
			return nil, bterrors.NewIOError("parse", s.path, err)
		}
		expiry, err := time.Parse(layout, row.Expiry)
		if err != nil {
			return nil, bterrors.NewIOError("parse", s.path, err)
		}

		if cur == nil || !cur.Timestamp.Equal(ts) {
			if cur != nil && ts.Before(cur.Timestamp) {
				return nil, bterrors.NewIOError("order", s.path,
					bterrors.NewDataQualityError("out_of_order", row.Timestamp, "rows must be chronological"))
			}
			snaps = append(snaps, models.MarketSnapshot{
				Timestamp:       ts,
				UnderlyingPrice: row.Underlying,
				MarketOpen:      row.MarketOpen,
			})
			cur = &snaps[len(snaps)-1]
		}

		cur.Contracts = append(cur.Contracts, models.ContractQuote{
			Symbol:       row.Symbol,
			Strike:       row.Strike / scale,
			Expiry:       expiry,
			Type:         models.OptionType(row.Type),
			Bid:          row.Bid,
			Ask:          row.Ask,
			Last:         row.Last,
			Volume:       row.Volume,
			OpenInterest: row.OpenInterest,
			IV:           row.IV,
			Greeks: models.Greeks{
				Delta: row.Delta,
				Gamma: row.Gamma,
				Theta: row.Theta,
				Vega:  row.Vega,
				Rho:   row.Rho,
			},
		})
	}

	return snaps, nil
}
