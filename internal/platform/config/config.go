// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, Mailer) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinTokenSecretLength is the minimum size in bytes of TOKEN_SIGNING_SECRET (HS256 key).
const MinTokenSecretLength = 32

// # Configuration Schema

// Config holds all runtime configuration for the identity API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// PublicBaseURL is the origin used to build links sent by email.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./migrations"`

	// Key-Value Cache (Redis). Empty falls back to the in-memory throttle.
	RedisURL string `env:"REDIS_URL"`

	// Cryptographic keys for access tokens (RS256) and lifecycle tokens (HS256)
	JWTPrivKeyPath     string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath      string `env:"JWT_PUBLIC_KEY_PATH,required"`
	TokenSigningSecret string `env:"TOKEN_SIGNING_SECRET,required"`

	Lockout  LockoutConfig
	Tokens   TokenConfig
	Password PasswordConfig
	SMTP     SMTPConfig
	Notify   NotifyConfig
	Throttle ThrottleConfig
	Tracing  TracingConfig

	// RequireConfirmedEmail rejects logins from accounts that never confirmed their address.
	RequireConfirmedEmail bool `env:"REQUIRE_CONFIRMED_EMAIL" envDefault:"true"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// LockoutConfig drives the brute-force lockout policy.
type LockoutConfig struct {
	MaxFailedAttempts     int           `env:"LOCKOUT_MAX_FAILED_ATTEMPTS"      envDefault:"3"`
	Duration              time.Duration `env:"LOCKOUT_DURATION"                 envDefault:"2m"`
	AllowedForNewAccounts bool          `env:"LOCKOUT_ALLOWED_FOR_NEW_ACCOUNTS" envDefault:"true"`
}

// TokenConfig holds the lifetimes of every issued token.
type TokenConfig struct {
	AccessTTL            time.Duration `env:"ACCESS_TOKEN_TTL"       envDefault:"15m"`
	RefreshTTL           time.Duration `env:"REFRESH_TOKEN_TTL"      envDefault:"720h"`
	EmailConfirmationTTL time.Duration `env:"EMAIL_CONFIRMATION_TTL" envDefault:"24h"`
	EmailChangeTTL       time.Duration `env:"EMAIL_CHANGE_TTL"       envDefault:"24h"`
	PasswordResetTTL     time.Duration `env:"PASSWORD_RESET_TTL"     envDefault:"1h"`
}

// PasswordConfig mirrors the password strength rules.
type PasswordConfig struct {
	MinLength     int  `env:"PASSWORD_MIN_LENGTH"     envDefault:"8"`
	RequireUpper  bool `env:"PASSWORD_REQUIRE_UPPER"  envDefault:"true"`
	RequireLower  bool `env:"PASSWORD_REQUIRE_LOWER"  envDefault:"true"`
	RequireDigit  bool `env:"PASSWORD_REQUIRE_DIGIT"  envDefault:"true"`
	RequireSymbol bool `env:"PASSWORD_REQUIRE_SYMBOL" envDefault:"true"`
}

// SMTPConfig configures outbound mail. An empty Host logs messages instead of sending them.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT"     envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"     envDefault:"no-reply@localhost"`
	TLSMode  string `env:"SMTP_TLS_MODE" envDefault:"auto"`
}

// NotifyConfig sizes the asynchronous notification dispatcher.
type NotifyConfig struct {
	Workers     int `env:"NOTIFY_WORKERS"      envDefault:"2"`
	QueueSize   int `env:"NOTIFY_QUEUE_SIZE"   envDefault:"256"`
	MaxAttempts int `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"5"`
}

// ThrottleConfig limits how often ForgotPassword and ResendConfirmation mail one address.
type ThrottleConfig struct {
	MaxRequests int           `env:"THROTTLE_MAX_REQUESTS" envDefault:"5"`
	Window      time.Duration `env:"THROTTLE_WINDOW"       envDefault:"15m"`
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Enabled  bool   `env:"OTEL_ENABLED"  envDefault:"false"`
	Endpoint string `env:"OTEL_ENDPOINT"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// MigrationConfig is the subset needed by the migrate command, which must run
// before signing keys are provisioned.
type MigrationConfig struct {
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./migrations"`
}

// LoadMigration parses only the database settings.
func LoadMigration() (*MigrationConfig, error) {
	cfg := &MigrationConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if len(c.TokenSigningSecret) < MinTokenSecretLength {
		errs = append(errs, fmt.Errorf("TOKEN_SIGNING_SECRET must be at least %d bytes", MinTokenSecretLength))
	}
	if c.Lockout.MaxFailedAttempts < 1 {
		errs = append(errs, errors.New("LOCKOUT_MAX_FAILED_ATTEMPTS must be positive"))
	}
	if c.Lockout.Duration <= 0 {
		errs = append(errs, errors.New("LOCKOUT_DURATION must be positive"))
	}
	if c.Notify.Workers < 1 || c.Notify.QueueSize < 1 {
		errs = append(errs, errors.New("NOTIFY_WORKERS and NOTIFY_QUEUE_SIZE must be positive"))
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("OTEL_ENDPOINT is required when OTEL_ENABLED is set"))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigins returns the CORS allow-list: the public base URL plus EXTRA_ORIGINS.
func (c *Config) AllowedOrigins() []string {
	origins := []string{strings.TrimRight(c.PublicBaseURL, "/")}
	for _, origin := range strings.Split(c.ExtraOrigins, ",") {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
