package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"options-backtester/internal/store"
)

func newRunsCmd(app *App) *cobra.Command {
	var (
		indexDB  string
		strategy string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List indexed backtest runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := store.NewSQLiteIndex(indexDB)
			if err != nil {
				return err
			}
			defer idx.Close()

			recs, err := idx.ListRuns(cmd.Context(), store.RunFilter{
				Strategy: strategy,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				out, err := json.MarshalIndent(recs, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}

			if len(recs) == 0 {
				cmd.Println("No runs indexed")
				return nil
			}
			for _, rec := range recs {
				cmd.Printf("%-48s %-16s %s..%s  trades=%d return=%.2f%%\n",
					rec.ID, rec.Strategy,
					rec.DataStart.Format("2006-01-02"), rec.DataEnd.Format("2006-01-02"),
					rec.Trades, rec.TotalReturn*100)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&indexDB, "index-db", "results/runs.db", "run index database path")
	cmd.Flags().StringVar(&strategy, "strategy", "", "filter by strategy tag")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	return cmd
}
