package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrate needs database.driver=postgres, got %q", cfg.Database.Driver)
	}

	pg, err := storage.NewPostgresStore(cmd.Context(), cfg.Database, cfg.Observed.CreationLockPartitions)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations up to date")
	return nil
}
