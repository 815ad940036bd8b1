// Package config provides configuration management for the backtester.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	bterrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
)

// Config holds one backtest run's full configuration. It is validated once
// at load time and treated as immutable afterwards.
type Config struct {
	Strategy StrategyConfig `mapstructure:"strategy"`
	Run      RunConfig      `mapstructure:"run"`
}

// LegSpec describes one leg of the configured strategy.
type LegSpec struct {
	Type     string  `mapstructure:"type"`  // "call" or "put"
	Side     string  `mapstructure:"side"`  // "long" or "short"
	Delta    float64 `mapstructure:"delta"` // absolute target delta
	Quantity int     `mapstructure:"quantity"`
}

// OptionType converts the configured leg type.
func (l LegSpec) OptionType() models.OptionType {
	return models.OptionType(l.Type)
}

// LegSide converts the configured leg side.
func (l LegSpec) LegSide() models.LegSide {
	return models.LegSide(l.Side)
}

// StrategyConfig holds the rule parameters for entries and exits.
type StrategyConfig struct {
	Tag  string    `mapstructure:"tag"`
	Legs []LegSpec `mapstructure:"legs"`

	// Entry window, local clock "HH:MM".
	EntryWindowStart string `mapstructure:"entry_window_start"`
	EntryWindowEnd   string `mapstructure:"entry_window_end"`

	DeltaTolerance float64 `mapstructure:"delta_tolerance"`
	MinPremium     float64 `mapstructure:"min_premium"`
	MaxVega        float64 `mapstructure:"max_vega"` // aggregate, contract-scaled

	StopLossMultiple     float64 `mapstructure:"stop_loss_multiple"`
	ProfitTargetFraction float64 `mapstructure:"profit_target_fraction"`
	TimeExitCutoff       string  `mapstructure:"time_exit_cutoff"` // "HH:MM"

	MinVolume     int64   `mapstructure:"min_volume"`
	MaxSpreadPct  float64 `mapstructure:"max_spread_pct"` // 0 disables
	MaxSpreadAbs  float64 `mapstructure:"max_spread_abs"` // 0 disables
	MaxPositions  int     `mapstructure:"max_positions"`
	MinRiskReward float64 `mapstructure:"min_risk_reward"` // 0 disables

	ExcludedWeekdays []string `mapstructure:"excluded_weekdays"`
	BlackoutDates    []string `mapstructure:"blackout_dates"` // "2006-01-02"

	IVMin float64 `mapstructure:"iv_min"` // both 0 disables the band
	IVMax float64 `mapstructure:"iv_max"`

	// ScoreThreshold is the fraction of entry criteria that must pass in
	// addition to every hard criterion.
	ScoreThreshold float64 `mapstructure:"score_threshold"`
}

// RunConfig holds execution-model and output parameters.
type RunConfig struct {
	InitialCapital        float64 `mapstructure:"initial_capital"`
	CommissionPerContract float64 `mapstructure:"commission_per_contract"`
	SlippagePct           float64 `mapstructure:"slippage_pct"` // applied against the midpoint

	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
	PeriodsPerYear float64 `mapstructure:"periods_per_year"` // equity-curve sampling frequency
	VaRConfidence  float64 `mapstructure:"var_confidence"`

	OutputDir string `mapstructure:"output_dir"`
	IndexDB   string `mapstructure:"index_db"`
}

// Load reads a TOML config file and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("BACKTESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, bterrors.Wrap(err, "reading config")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, bterrors.Wrap(err, "unmarshalling config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("strategy.tag", "short_strangle")
	v.SetDefault("strategy.entry_window_start", "09:45")
	v.SetDefault("strategy.entry_window_end", "15:00")
	v.SetDefault("strategy.delta_tolerance", 0.05)
	v.SetDefault("strategy.stop_loss_multiple", 2.0)
	v.SetDefault("strategy.profit_target_fraction", 0.5)
	v.SetDefault("strategy.time_exit_cutoff", "15:45")
	v.SetDefault("strategy.max_positions", 1)
	v.SetDefault("strategy.score_threshold", 0.8)

	v.SetDefault("run.initial_capital", 100000.0)
	v.SetDefault("run.commission_per_contract", 0.65)
	v.SetDefault("run.slippage_pct", 0.0)
	v.SetDefault("run.risk_free_rate", 0.05)
	v.SetDefault("run.periods_per_year", 252.0)
	v.SetDefault("run.var_confidence", 0.95)
	v.SetDefault("run.output_dir", "results")
	v.SetDefault("run.index_db", "results/runs.db")
}

// Validate checks the configuration for contradictions. Any failure is
// fatal before the first snapshot is processed.
func (c *Config) Validate() error {
	s := &c.Strategy

	if len(s.Legs) == 0 {
		return bterrors.NewConfigError("strategy.legs", nil, "at least one leg is required")
	}
	for _, leg := range s.Legs {
		if leg.Type != string(models.OptionCall) && leg.Type != string(models.OptionPut) {
			return bterrors.NewConfigError("strategy.legs.type", leg.Type, "must be 'call' or 'put'")
		}
		if leg.Side != string(models.SideLong) && leg.Side != string(models.SideShort) {
			return bterrors.NewConfigError("strategy.legs.side", leg.Side, "must be 'long' or 'short'")
		}
		if leg.Delta <= 0 || leg.Delta >= 1 {
			return bterrors.NewConfigError("strategy.legs.delta", leg.Delta, "must be in (0, 1)")
		}
		if leg.Quantity <= 0 {
			return bterrors.NewConfigError("strategy.legs.quantity", leg.Quantity, "must be positive")
		}
	}

	start, err := ParseClock(s.EntryWindowStart)
	if err != nil {
		return bterrors.NewConfigError("strategy.entry_window_start", s.EntryWindowStart, "must be HH:MM")
	}
	end, err := ParseClock(s.EntryWindowEnd)
	if err != nil {
		return bterrors.NewConfigError("strategy.entry_window_end", s.EntryWindowEnd, "must be HH:MM")
	}
	if !start.Before(end) {
		return bterrors.NewConfigError("strategy.entry_window_start", s.EntryWindowStart, "must be before entry_window_end")
	}
	if _, err := ParseClock(s.TimeExitCutoff); err != nil {
		return bterrors.NewConfigError("strategy.time_exit_cutoff", s.TimeExitCutoff, "must be HH:MM")
	}

	if s.DeltaTolerance < 0 {
		return bterrors.NewConfigError("strategy.delta_tolerance", s.DeltaTolerance, "must be non-negative")
	}
	if s.MinPremium < 0 {
		return bterrors.NewConfigError("strategy.min_premium", s.MinPremium, "must be non-negative")
	}
	if s.MaxVega < 0 {
		return bterrors.NewConfigError("strategy.max_vega", s.MaxVega, "must be non-negative")
	}
	if s.StopLossMultiple <= 0 {
		return bterrors.NewConfigError("strategy.stop_loss_multiple", s.StopLossMultiple, "must be positive")
	}
	if s.ProfitTargetFraction <= 0 || s.ProfitTargetFraction > 1 {
		return bterrors.NewConfigError("strategy.profit_target_fraction", s.ProfitTargetFraction, "must be in (0, 1]")
	}
	if s.MaxPositions <= 0 {
		return bterrors.NewConfigError("strategy.max_positions", s.MaxPositions, "must be positive")
	}
	if s.MaxSpreadPct < 0 || s.MaxSpreadAbs < 0 {
		return bterrors.NewConfigError("strategy.max_spread", s.MaxSpreadPct, "spread limits must be non-negative")
	}
	if s.IVMin < 0 || s.IVMax < 0 || (s.IVMax > 0 && s.IVMin > s.IVMax) {
		return bterrors.NewConfigError("strategy.iv_min", s.IVMin, "IV band must satisfy 0 <= iv_min <= iv_max")
	}
	if s.ScoreThreshold < 0 || s.ScoreThreshold > 1 {
		return bterrors.NewConfigError("strategy.score_threshold", s.ScoreThreshold, "must be in [0, 1]")
	}
	for _, d := range s.ExcludedWeekdays {
		if _, ok := weekdayNames[d]; !ok {
			return bterrors.NewConfigError("strategy.excluded_weekdays", d, "must be a weekday name")
		}
	}
	for _, d := range s.BlackoutDates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return bterrors.NewConfigError("strategy.blackout_dates", d, "must be YYYY-MM-DD")
		}
	}

	r := &c.Run
	if r.InitialCapital <= 0 {
		return bterrors.NewConfigError("run.initial_capital", r.InitialCapital, "must be positive")
	}
	if r.CommissionPerContract < 0 {
		return bterrors.NewConfigError("run.commission_per_contract", r.CommissionPerContract, "must be non-negative")
	}
	if r.SlippagePct < 0 || r.SlippagePct >= 100 {
		return bterrors.NewConfigError("run.slippage_pct", r.SlippagePct, "must be in [0, 100)")
	}
	if r.PeriodsPerYear <= 0 {
		return bterrors.NewConfigError("run.periods_per_year", r.PeriodsPerYear, "must be positive")
	}
	if r.VaRConfidence <= 0 || r.VaRConfidence >= 1 {
		return bterrors.NewConfigError("run.var_confidence", r.VaRConfidence, "must be in (0, 1)")
	}

	return nil
}

// Clock is a time-of-day, minute resolution.
type Clock struct {
	Hour   int
	Minute int
}

// Before reports whether c is earlier in the day than o.
func (c Clock) Before(o Clock) bool {
	return c.Hour*60+c.Minute < o.Hour*60+o.Minute
}

// AfterEq reports whether c is at or later than o.
func (c Clock) AfterEq(o Clock) bool {
	return !c.Before(o)
}

// ClockOf extracts the time-of-day from t.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, err
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

var weekdayNames = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// ExcludedWeekday reports whether t falls on an excluded weekday.
func (s *StrategyConfig) ExcludedWeekday(t time.Time) bool {
	for _, name := range s.ExcludedWeekdays {
		if wd, ok := weekdayNames[name]; ok && t.Weekday() == wd {
			return true
		}
	}
	return false
}

// BlackoutDate reports whether t falls on a blackout date.
func (s *StrategyConfig) BlackoutDate(t time.Time) bool {
	day := t.Format("2006-01-02")
	for _, d := range s.BlackoutDates {
		if d == day {
			return true
		}
	}
	return false
}
