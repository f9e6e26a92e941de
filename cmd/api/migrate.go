// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/taibuivan/identity/internal/platform/config"
	"github.com/taibuivan/identity/internal/platform/migration"
)

func newMigrateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	command.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				runner, err := newMigrationRunner()
				if err != nil {
					return err
				}
				return runner.Up()
			},
		},
		newMigrateDownCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				runner, err := newMigrationRunner()
				if err != nil {
					return err
				}
				version, dirty, err := runner.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return nil
			},
		},
	)

	return command
}

func newMigrateDownCommand() *cobra.Command {
	var steps int

	command := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			runner, err := newMigrationRunner()
			if err != nil {
				return err
			}
			return runner.Down(steps)
		},
	}

	command.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return command
}

func newMigrationRunner() (*migration.Runner, error) {
	cfg, err := config.LoadMigration()
	if err != nil {
		return nil, err
	}

	log := newLogger(nil)
	log.Info("migration_target", slog.String("path", cfg.MigrationPath))
	return migration.NewRunner(cfg.DatabaseURL, cfg.MigrationPath, log), nil
}
