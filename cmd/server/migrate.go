package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitsession/internal/storage/sqlite"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "migrate the session database",
		Long:      `Run goose migrations against the SQLite database named in the config. Defaults to up.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			cfg := loadConfig()
			if cfg.Storage.Driver != "sqlite" {
				return fmt.Errorf("storage driver %q has nothing to migrate", cfg.Storage.Driver)
			}

			db, err := sqlite.Open(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			slog.Info("Running migrations", "command", command, "database", cfg.Storage.DatabasePath)
			if err := sqlite.Migrate(cmd.Context(), db, command); err != nil {
				return err
			}
			slog.Info("Migrations completed", "command", command)
			return nil
		},
	}
	return cmd
}
