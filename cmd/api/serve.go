// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taibuivan/identity/internal/api"
	"github.com/taibuivan/identity/internal/platform/config"
	"github.com/taibuivan/identity/internal/platform/constants"
	"github.com/taibuivan/identity/internal/platform/mailer"
	"github.com/taibuivan/identity/internal/platform/metrics"
	"github.com/taibuivan/identity/internal/platform/middleware"
	"github.com/taibuivan/identity/internal/platform/migration"
	"github.com/taibuivan/identity/internal/platform/notify"
	pgstore "github.com/taibuivan/identity/internal/platform/postgres"
	redisstore "github.com/taibuivan/identity/internal/platform/redis"
	"github.com/taibuivan/identity/internal/platform/sec"
	"github.com/taibuivan/identity/internal/platform/telemetry"
	"github.com/taibuivan/identity/internal/platform/throttle"
	"github.com/taibuivan/identity/internal/users/account"
	"github.com/taibuivan/identity/internal/users/auth"
)

func newServeCommand() *cobra.Command {
	var skipMigrations bool

	command := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log, !skipMigrations)
		},
	}

	command.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	return command
}

// serve runs the server until SIGINT/SIGTERM or a fatal worker error.
//
// # Startup Sequence
//
//  1. Tracing and metrics.
//  2. Connect to PostgreSQL (pgxpool) and optionally Redis.
//  3. Run database migrations (idempotent).
//  4. Wire the domain services.
//  5. Build the HTTP server and health probes.
//  6. Run the server and background workers under one errgroup.
func serve(parent context.Context, cfg *config.Config, log *slog.Logger, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Use a deadline so misconfiguration is caught quickly rather than hanging.
	startupCtx, startupCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startupCancel()

	// ── 1. Observability ──────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(startupCtx, constants.AppName, constants.AppVersion, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Error("tracing_shutdown_failed", slog.Any("error", err))
		}
	}()

	registry := metrics.New()

	// ── 2. Storage ────────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer func() {
		log.Info("closing_postgres_pool")
		pool.Close()
	}()

	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() {
			log.Info("closing_redis_client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis_close_error", slog.Any("error", cerr))
			}
		}()
	}

	// ── 3. Migrations ─────────────────────────────────────────────────────
	if migrate {
		if err := migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// ── 4. Domain Wiring ──────────────────────────────────────────────────
	jwtService, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	if err != nil {
		return fmt.Errorf("initialize jwt service: %w", err)
	}

	tokenCodec, err := auth.NewTokenCodec([]byte(cfg.TokenSigningSecret), constants.SecurityTokenIssuer)
	if err != nil {
		return fmt.Errorf("initialize token codec: %w", err)
	}

	messages, err := auth.NewMessageRenderer(cfg.PublicBaseURL, "Yomira")
	if err != nil {
		return fmt.Errorf("initialize message renderer: %w", err)
	}

	var limiter auth.Throttle
	if rdb != nil {
		limiter = throttle.NewRedisLimiter(rdb, constants.RedisPrefixThrottle, cfg.Throttle.MaxRequests, cfg.Throttle.Window)
	} else {
		log.Warn("throttle_in_memory", slog.String("reason", "REDIS_URL not set"))
		limiter = throttle.NewMemoryLimiter(cfg.Throttle.MaxRequests, cfg.Throttle.Window)
	}

	dispatcher := notify.NewDispatcher(mailer.New(cfg.SMTP, log), notify.Config{
		Workers:      cfg.Notify.Workers,
		QueueSize:    cfg.Notify.QueueSize,
		MaxAttempts:  cfg.Notify.MaxAttempts,
		DrainTimeout: constants.NotifyDrainTimeout,
	}, log, registry)

	credentialStore := auth.NewCredentialStore(pool)
	sessionRepository := auth.NewSessionRepository(pool)
	lockoutPolicy := auth.LockoutPolicy{
		MaxFailedAttempts:     cfg.Lockout.MaxFailedAttempts,
		LockoutDuration:       cfg.Lockout.Duration,
		AllowedForNewAccounts: cfg.Lockout.AllowedForNewAccounts,
	}

	authService := auth.NewService(auth.Dependencies{
		Store:        credentialStore,
		Sessions:     sessionRepository,
		Tokens:       tokenCodec,
		AccessTokens: jwtService,
		Hasher:       sec.NewBcryptHasher(0),
		Notifier:     dispatcher,
		Messages:     messages,
		Throttle:     limiter,
		Metrics:      registry,
		Lockout:      lockoutPolicy,
		Passwords: auth.PasswordPolicy{
			MinLength:     cfg.Password.MinLength,
			RequireUpper:  cfg.Password.RequireUpper,
			RequireLower:  cfg.Password.RequireLower,
			RequireDigit:  cfg.Password.RequireDigit,
			RequireSymbol: cfg.Password.RequireSymbol,
		},
		Logger: log,
	}, auth.Settings{
		AccessTokenTTL:        cfg.Tokens.AccessTTL,
		RefreshTokenTTL:       cfg.Tokens.RefreshTTL,
		EmailConfirmationTTL:  cfg.Tokens.EmailConfirmationTTL,
		EmailChangeTTL:        cfg.Tokens.EmailChangeTTL,
		PasswordResetTTL:      cfg.Tokens.PasswordResetTTL,
		RequireConfirmedEmail: cfg.RequireConfirmedEmail,
		MaxConflictRetries:    constants.MaxConflictRetries,
	})

	var authOptions []auth.HandlerOption
	if cfg.IsDevelopment() {
		authOptions = append(authOptions, auth.WithInsecureCookies())
	}

	accountService := account.NewService(account.NewProfileStore(pool), sessionRepository, lockoutPolicy, log)

	// ── 5. HTTP Server ────────────────────────────────────────────────────
	health := api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error { return pgstore.Ping(ctx, pool) },
		QueueDepth:    dispatcher.Pending,
	}
	if rdb != nil {
		health.CheckCache = func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }
	}
	liveness, readiness := api.NewHealthHandlers(health, log)

	rateLimiter := middleware.NewIPRateLimiter(constants.DefaultRateLimitRPS, constants.DefaultRateLimitBurst)

	server := api.NewServer(cfg, log,
		api.Middleware{
			Verifier:    jwtService,
			Guard:       auth.NewAccessGuard(credentialStore),
			RateLimiter: rateLimiter,
			Recorder:    registry,
		},
		api.Handlers{
			Liveness:  liveness,
			Readiness: readiness,
			Auth:      auth.NewHandler(authService, authOptions...),
			Account:   account.NewHandler(accountService),
			Metrics:   registry.Handler(),
		},
	)

	// ── 6. Run ────────────────────────────────────────────────────────────
	group, groupCtx := errgroup.WithContext(ctx)

	// Requests still draining during Shutdown may enqueue mail, so the
	// dispatcher outlives the server and stops only once Shutdown returned.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	group.Go(server.ListenAndServe)
	group.Go(func() error { return dispatcher.Run(dispatchCtx) })
	group.Go(func() error {
		rateLimiter.Janitor(groupCtx)
		return nil
	})
	group.Go(func() error {
		purgeExpiredSessions(groupCtx, sessionRepository, log)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting_down_server", slog.Duration("timeout", constants.ShutdownTimeout))
		err := server.Shutdown(constants.ShutdownTimeout)

		log.Info("stopping_notifications", slog.Int("pending", dispatcher.Pending()))
		stopDispatch()
		return err
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server_stopped_with_error", slog.Any("error", err))
		return err
	}

	log.Info("server_stopped")
	return nil
}

// purgeExpiredSessions deletes expired refresh sessions until ctx is done.
func purgeExpiredSessions(ctx context.Context, sessions auth.SessionRepository, log *slog.Logger) {
	ticker := time.NewTicker(constants.SessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.DeleteExpired(ctx)
			if err != nil {
				log.Error("session_cleanup_failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				log.Info("session_cleanup_done", slog.Int64("removed", removed))
			}
		}
	}
}
