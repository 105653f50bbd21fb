package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kontoplan/kontoplan/internal/config"
	"github.com/kontoplan/kontoplan/internal/database"
)

func newMigrateCommand() *cobra.Command {
	var migrationsPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			abs, err := filepath.Abs(migrationsPath)
			if err != nil {
				return err
			}
			if err := database.RunMigrations(cfg.Database.Path, abs); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&migrationsPath, "migrations", "internal/database/migrations", "path to migration files")

	return cmd
}
