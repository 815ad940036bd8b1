package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"options-backtester/internal/artifacts"
	"options-backtester/internal/config"
	"options-backtester/internal/data"
	"options-backtester/internal/engine"
	"options-backtester/internal/logging"
	"options-backtester/internal/store"
)

func newRunCmd(app *App) *cobra.Command {
	var (
		configPath  string
		dataPath    string
		strikeScale float64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a backtest run",
		Long: `Run loads the strategy configuration and snapshot CSV, replays the
series chronologically, and persists the run artifacts (trade log, audit
log, performance summary, equity curve) plus an entry in the run index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := logging.WithStrategy(app.Logger, cfg.Strategy.Tag)

			src := data.NewCSVSource(dataPath, data.ChainFormat{StrikeScale: strikeScale})

			eng := engine.New(cfg, logger)
			result, err := eng.Run(cmd.Context(), src)
			if err != nil {
				if result != nil && !result.LastProcessed.IsZero() {
					logger.Error().
						Time("last_processed", result.LastProcessed).
						Err(err).
						Msg("Run failed")
				}
				return err
			}

			createdAt := time.Now().UTC()
			runID := fmt.Sprintf("%s-%s-%s-%d",
				cfg.Strategy.Tag,
				result.DataStart.Format("20060102"),
				result.DataEnd.Format("20060102"),
				createdAt.Unix())

			writer := artifacts.NewWriter(cfg.Run.OutputDir, logger)
			dir, err := writer.Write(runID, createdAt.Format(time.RFC3339), result, eng.Audit())
			if err != nil {
				return err
			}

			idx, err := store.NewSQLiteIndex(cfg.Run.IndexDB)
			if err != nil {
				return err
			}
			defer idx.Close()

			rec := &store.RunRecord{
				ID:          runID,
				Strategy:    cfg.Strategy.Tag,
				DataStart:   result.DataStart,
				DataEnd:     result.DataEnd,
				CreatedAt:   createdAt,
				Trades:      len(result.Trades),
				TotalReturn: float64(result.Summary.TotalReturn),
				SharpeRatio: float64(result.Summary.SharpeRatio),
				MaxDrawdown: float64(result.Summary.MaxDrawdown),
				ArtifactDir: dir,
			}
			if err := idx.SaveRun(cmd.Context(), rec); err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				out, err := json.MarshalIndent(map[string]interface{}{
					"run_id":  runID,
					"dir":     dir,
					"trades":  len(result.Trades),
					"summary": result.Summary,
				}, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}

			cmd.Printf("Run %s complete\n", runID)
			cmd.Printf("  Snapshots: %s to %s\n",
				result.DataStart.Format(time.RFC3339), result.DataEnd.Format(time.RFC3339))
			cmd.Printf("  Trades:    %d (%d wins, %d losses)\n",
				result.Summary.TotalTrades, result.Summary.WinningTrades, result.Summary.LosingTrades)
			cmd.Printf("  Artifacts: %s\n", dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "backtest.toml", "strategy/run configuration file (TOML)")
	cmd.Flags().StringVar(&dataPath, "data", "", "snapshot CSV file")
	cmd.Flags().Float64Var(&strikeScale, "strike-scale", 1, "divisor converting vendor strike units to currency")
	cmd.MarkFlagRequired("data")

	return cmd
}
