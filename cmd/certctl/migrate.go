package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"certledger/internal/platform/database"
	"certledger/migrations"
)

var databaseURL string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres URL (default: from DATABASE_URL env)")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if databaseURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	cfg := database.DefaultConfig()
	cfg.URL = databaseURL
	cfg.MaxOpenConns = 1
	pool, err := database.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := database.Migrate(cmd.Context(), pool.DB(), migrations.FS)
	if err != nil {
		return err
	}
	if structured() {
		return printOutput(cmd.OutOrStdout(), map[string]any{"applied": applied})
	}
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
		return nil
	}
	rows := make([][]string, 0, len(applied))
	for _, v := range applied {
		rows = append(rows, []string{v})
	}
	return printTable(cmd.OutOrStdout(), []string{"Applied"}, rows)
}
