// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/db/postgres"
	"github.com/workspacesio/workspaces/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := NewFlagLoader(cmd)
		dsn := f.String("db_dsn")
		if dsn == "" {
			return fmt.Errorf("db_dsn is required")
		}

		cfg := db.DefaultConfig(db.DriverPostgres)
		cfg.DSN = dsn
		store, err := postgres.New(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info().Msg("migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("db_dsn", "", "Database DSN")
	rootCmd.AddCommand(migrateCmd)
}
