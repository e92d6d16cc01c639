package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recargas/internal/config"
	"recargas/internal/storage"
	"recargas/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long:  `Brings the SQLite (golang-migrate) or PostgreSQL (goose) schema up to date.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	switch cfg.DataBackend {
	case config.BackendSQLite:
		if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
			return fmt.Errorf("migrating %s: %w", cfg.SQLiteDBPath, err)
		}
		version, dirty, err := storage.SchemaVersion(cfg.SQLiteDBPath)
		if err != nil {
			return err
		}
		if dirty {
			out.Warning("schema version %d is dirty", version)
			return nil
		}
		out.Success("%s at schema version %d", cfg.SQLiteDBPath, version)
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("--database-url or DATABASE_URL is required")
		}
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		out.Success("PostgreSQL schema up to date")
	default:
		out.Info("backend %q has no schema", cfg.DataBackend)
	}
	return nil
}
