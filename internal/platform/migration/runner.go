// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package migration wraps golang-migrate for the users schema.
//
// The server applies pending migrations at startup. The `migrate` CLI command
// exposes up, down and version for operators.
package migration

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	// file source reads .sql files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Runner applies migrations from one directory to one database.
type Runner struct {
	databaseURL string
	sourceURL   string
	logger      *slog.Logger
}

// NewRunner prepares a runner. Nothing is opened until a command runs.
func NewRunner(dsn, migrationsPath string, logger *slog.Logger) *Runner {
	return &Runner{
		databaseURL: convertToPgx5DSN(dsn),
		sourceURL:   "file://" + migrationsPath,
		logger:      logger,
	}
}

// RunUp applies all pending UP migrations.
func RunUp(dsn, migrationsPath string, logger *slog.Logger) error {
	return NewRunner(dsn, migrationsPath, logger).Up()
}

// Up applies every pending migration.
func (runner *Runner) Up() error {
	return runner.with(func(migrator *migrate.Migrate, from uint) error {
		if err := migrator.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				runner.logger.Info("migration_already_up_to_date", slog.Uint64("version", uint64(from)))
				return nil
			}
			return fmt.Errorf("migration: up failed: %w", err)
		}
		return nil
	})
}

// Down rolls back steps migrations.
func (runner *Runner) Down(steps int) error {
	if steps < 1 {
		return fmt.Errorf("migration: steps must be positive, got %d", steps)
	}

	return runner.with(func(migrator *migrate.Migrate, _ uint) error {
		if err := migrator.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration: down failed: %w", err)
		}
		return nil
	})
}

// Version reports the applied version and whether the database is dirty.
func (runner *Runner) Version() (uint, bool, error) {
	migrator, err := runner.open()
	if err != nil {
		return 0, false, err
	}
	defer runner.close(migrator)

	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// with opens a migrator, refuses dirty databases, runs fn and logs the transition.
func (runner *Runner) with(fn func(migrator *migrate.Migrate, from uint) error) error {
	migrator, err := runner.open()
	if err != nil {
		return err
	}
	defer runner.close(migrator)

	currentVersion, isDirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration: failed to get current version: %w", err)
	}

	if isDirty {
		return fmt.Errorf("migration: database is in a dirty state at version %d (manual intervention required)", currentVersion)
	}

	if err := fn(migrator, currentVersion); err != nil {
		return err
	}

	newVersion, _, _ := migrator.Version()
	if newVersion != currentVersion {
		runner.logger.Info("migration_successful",
			slog.Uint64("from_version", uint64(currentVersion)),
			slog.Uint64("to_version", uint64(newVersion)),
		)
	}
	return nil
}

func (runner *Runner) open() (*migrate.Migrate, error) {
	migrator, err := migrate.New(runner.sourceURL, runner.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("migration: failed to initialize: %w", err)
	}

	migrator.Log = &migrateLogger{logger: runner.logger}
	return migrator, nil
}

func (runner *Runner) close(migrator *migrate.Migrate) {
	sourceError, dbError := migrator.Close()
	if sourceError != nil {
		runner.logger.Error("migration_source_close_failed", slog.Any("error", sourceError))
	}
	if dbError != nil {
		runner.logger.Error("migration_db_close_failed", slog.Any("error", dbError))
	}
}

// convertToPgx5DSN rewrites postgres:// and postgresql:// to the pgx5:// scheme golang-migrate expects.
func convertToPgx5DSN(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, found := strings.CutPrefix(dsn, prefix); found {
			return "pgx5://" + rest
		}
	}
	return dsn
}

// migrateLogger adapts golang-migrate's logger interface to slog.
type migrateLogger struct {
	logger  *slog.Logger
	verbose bool
}

// Printf implements migrate.Logger.
func (l *migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Verbose implements migrate.Logger.
func (l *migrateLogger) Verbose() bool {
	return l.verbose
}
