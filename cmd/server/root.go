package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitsession/internal/config"
	"github.com/mmynk/splitsession/pkg/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "splitsession",
	Short:        "shared bill splitting sessions",
	Long:         `splitsession lets a group claim items from one receipt and computes what each person owes, tax and service charge included.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config; environment variables are used when it is missing")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(summaryCommand())
}

// loadConfig reads the config and sets up the default logger from it.
func loadConfig() *config.Config {
	cfg := config.LoadOrEnv(configPath)
	logging.Configure(os.Stderr, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	return cfg
}
