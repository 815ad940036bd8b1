package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"options-backtester/internal/config"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	var configPath string

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				app.Logger.Error().Err(err).Msg("Configuration invalid")
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				out, _ := json.Marshal(map[string]bool{"valid": true})
				cmd.Println(string(out))
				return nil
			}
			cmd.Printf("Configuration valid: strategy %q with %d legs\n",
				cfg.Strategy.Tag, len(cfg.Strategy.Legs))
			return nil
		},
	}
	validate.Flags().StringVar(&configPath, "config", "backtest.toml", "configuration file (TOML)")

	var showPath string

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(showPath)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}
	show.Flags().StringVar(&showPath, "config", "backtest.toml", "configuration file (TOML)")

	cmd.AddCommand(validate, show)
	return cmd
}
