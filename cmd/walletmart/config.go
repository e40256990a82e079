package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/walletmart/internal/idempotency"
	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/service/reconcile"
)

const (
	defaultListenAddr     = "localhost:8000"
	defaultLoggingLevel   = logger.LevelInfo
	defaultEnvironment    = logger.EnvProduction
	defaultIdempotencyTTL = idempotency.DefaultTTL
	defaultReconcileEvery = reconcile.DefaultInterval
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the walletmart service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Access tokens are signed with it (HMAC), so it has to be the same on every instance
	SecretKey string

	// Environment
	Environment string

	// Redis address for the Idempotency-Key replay guard
	// Guard is off when empty
	RedisAddr string

	// How long an Idempotency-Key is remembered
	IdempotencyTTL time.Duration

	// How often listings of completed orders are checked to be sold
	// Zero disables reconciliation
	ReconcileInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:          defaultLoggingLevel,
		ListenAddr:        defaultListenAddr,
		Environment:       defaultEnvironment,
		IdempotencyTTL:    defaultIdempotencyTTL,
		ReconcileInterval: defaultReconcileEvery,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":     setString(&c.ListenAddr),
		"DATABASE_URI":    setString(&c.DatabaseDSN),
		"SECRET_KEY":      setString(&c.SecretKey),
		"LOG_LEVEL":       setString(&c.LogLevel),
		"ENVIRONMENT":     setString(&c.Environment),
		"REDIS_ADDR":      setString(&c.RedisAddr),
		"IDEMPOTENCY_TTL": setDuration(&c.IdempotencyTTL),

		"RECONCILE_INTERVAL": setDuration(&c.ReconcileInterval),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("walletmart", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address, enables Idempotency-Key guard")
	fs.DurationVar(&c.IdempotencyTTL, "idempotency-ttl", c.IdempotencyTTL, "How long Idempotency-Key is remembered")
	fs.DurationVar(&c.ReconcileInterval, "reconcile-interval", c.ReconcileInterval, "How often sold listings are reconciled, 0 disables")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	switch {
	case c.SecretKey == "":
		return errors.New("secret key is required")
	case c.DatabaseDSN == "":
		return errors.New("database DSN is required")
	case c.IdempotencyTTL <= 0:
		return errors.New("idempotency TTL must be positive")
	case c.ReconcileInterval < 0:
		return errors.New("reconcile interval must not be negative")
	}
	return nil
}
