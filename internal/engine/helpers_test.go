package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/config"
	"options-backtester/internal/models"
)

var testExpiry = time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// testConfig is a validated single-leg short put strategy.
func testConfig() *config.Config {
	return &config.Config{
		Strategy: config.StrategyConfig{
			Tag: "short_put",
			Legs: []config.LegSpec{
				{Type: "put", Side: "short", Delta: 0.15, Quantity: 1},
			},
			EntryWindowStart:     "09:45",
			EntryWindowEnd:       "15:00",
			DeltaTolerance:       0.05,
			MinPremium:           0.30,
			StopLossMultiple:     2.0,
			ProfitTargetFraction: 0.5,
			TimeExitCutoff:       "15:45",
			MaxPositions:         1,
			ScoreThreshold:       0.8,
		},
		Run: config.RunConfig{
			InitialCapital:        100000,
			CommissionPerContract: 0.65,
			SlippagePct:           0,
			RiskFreeRate:          0.05,
			PeriodsPerYear:        252,
			VaRConfidence:         0.95,
		},
	}
}

func putQuote(strike, delta, bid, ask float64) models.ContractQuote {
	return models.ContractQuote{
		Symbol:       fmt.Sprintf("XSP240119P%05.0f", strike),
		Strike:       strike,
		Expiry:       testExpiry,
		Type:         models.OptionPut,
		Bid:          bid,
		Ask:          ask,
		Volume:       500,
		OpenInterest: 1200,
		IV:           18,
		Greeks:       models.Greeks{Delta: -delta, Gamma: 0.01, Theta: -0.04, Vega: 0.5},
	}
}

func snapshotAt(ts time.Time, underlying float64, quotes ...models.ContractQuote) models.MarketSnapshot {
	return models.MarketSnapshot{
		Timestamp:       ts,
		UnderlyingPrice: underlying,
		MarketOpen:      true,
		Contracts:       quotes,
	}
}

// tradingDay is a Tuesday.
func tradingDay(hour, minute int) time.Time {
	return time.Date(2024, 1, 2, hour, minute, 0, 0, time.UTC)
}
