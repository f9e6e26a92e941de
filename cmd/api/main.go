// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the identity service.
//
// # Commands
//
//   - serve:   run the HTTP API with its background workers.
//   - migrate: apply or roll back the SQL schema (up, down, version).
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/taibuivan/identity/internal/platform/config"
	"github.com/taibuivan/identity/internal/platform/constants"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "identity",
		Short:         "Account authentication and credential lifecycle service",
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newServeCommand(), newMigrateCommand())
	return root
}

// newLogger builds the process-wide JSON logger. Debug level follows cfg.Debug.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Debug {
		level = slog.LevelDebug
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With(slog.String("app", constants.AppName))
	slog.SetDefault(log)
	return log
}

// loadConfig loads configuration and returns a logger matching it.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		newLogger(nil).Error("configuration_invalid", slog.Any("error", err))
		return nil, nil, err
	}

	log := newLogger(cfg)
	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)
	return cfg, log, nil
}
