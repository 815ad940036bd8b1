// Package models defines the core data types shared across the backtester.
package models

import "time"

// OptionType identifies the contract right.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// Greeks represents option sensitivity measures.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// ContractQuote represents a single option contract row in a chain snapshot.
// Strike is always in canonical currency units; the data source declares the
// normalization factor at ingestion.
type ContractQuote struct {
	Symbol       string
	Strike       float64
	Expiry       time.Time
	Type         OptionType
	Bid          float64
	Ask          float64
	Last         float64
	Volume       int64
	OpenInterest int64
	IV           float64
	Greeks       Greeks
}

// Midpoint returns the bid/ask midpoint.
func (q ContractQuote) Midpoint() float64 {
	return (q.Bid + q.Ask) / 2
}

// Premium returns the last traded price, falling back to the bid/ask
// midpoint when the contract has not traded. Roughly half of all quotes
// carry no last price.
func (q ContractQuote) Premium() float64 {
	if q.Last > 0 {
		return q.Last
	}
	return q.Midpoint()
}

// Spread returns the absolute bid/ask spread.
func (q ContractQuote) Spread() float64 {
	return q.Ask - q.Bid
}

// SpreadPercent returns the spread as a percentage of the midpoint.
// Returns 0 when the midpoint is non-positive.
func (q ContractQuote) SpreadPercent() float64 {
	mid := q.Midpoint()
	if mid <= 0 {
		return 0
	}
	return q.Spread() / mid * 100
}

// MarketSnapshot is one timestamped view of the underlying and its option
// chain. Snapshots are immutable once produced.
type MarketSnapshot struct {
	Timestamp       time.Time
	UnderlyingPrice float64
	MarketOpen      bool
	Contracts       []ContractQuote
}

// FindQuote returns the quote matching the given contract identity, or nil.
func (s *MarketSnapshot) FindQuote(typ OptionType, strike float64, expiry time.Time) *ContractQuote {
	for i := range s.Contracts {
		q := &s.Contracts[i]
		if q.Type == typ && q.Strike == strike && q.Expiry.Equal(expiry) {
			return q
		}
	}
	return nil
}

// EquityCurvePoint is one mark-to-market portfolio value sample.
type EquityCurvePoint struct {
	Timestamp time.Time `csv:"timestamp"`
	Equity    float64   `csv:"equity"`
}
