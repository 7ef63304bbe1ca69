package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/R3E-Network/yield_ledger/internal/config"
	"github.com/R3E-Network/yield_ledger/internal/platform/migrations"
)

var downSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
	Long: `Apply or roll back the PostgreSQL schema of the ledger store.

Available subcommands:
  up   - Apply all pending migrations
  down - Roll back the last --steps migrations`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openPostgres()
		if err != nil {
			return err
		}
		defer db.Close()
		version, err := migrations.Up(db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openPostgres()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := migrations.Down(db, downSteps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", downSteps)
		return nil
	},
}

func openPostgres() (*sql.DB, error) {
	if cfg.Storage.Driver != config.DriverPostgres {
		return nil, fmt.Errorf("migrate requires storage.driver %q, got %q", config.DriverPostgres, cfg.Storage.Driver)
	}
	return sql.Open("postgres", cfg.Storage.DSN)
}
