// Package config loads process settings from the environment and the static
// economy tables from YAML.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds the process settings.
type Config struct {
	Port        string `env:"PORT" envDefault:"5300"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	DatabaseURL string `env:"DATABASE_URL"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// MigrateActivityTables also creates the host-owned activity tables. Local runs only.
	MigrateActivityTables bool `env:"MIGRATE_ACTIVITY_TABLES" envDefault:"false"`

	ServiceToken   string   `env:"ECONOMY_SERVICE_TOKEN,notEmpty"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	EconomyConfigPath string `env:"ECONOMY_CONFIG_PATH"`

	SpawnInterval time.Duration `env:"SPAWN_INTERVAL" envDefault:"5m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	ClaimRatePerSecond float64 `env:"CLAIM_RATE_PER_SECOND" envDefault:"1"`
	ClaimBurst         int     `env:"CLAIM_BURST" envDefault:"5"`

	R2 R2Config `envPrefix:"R2_"`

	ProfileSyncURL      string        `env:"PROFILE_SYNC_URL"`
	ProfileSyncToken    string        `env:"PROFILE_SYNC_TOKEN"`
	ProfileSyncInterval time.Duration `env:"PROFILE_SYNC_INTERVAL" envDefault:"1m"`
}

// R2Config points the ledger archive at a Cloudflare R2 bucket.
type R2Config struct {
	AccountID       string `env:"ACCOUNT_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET_NAME"`
}

// Enabled reports whether every R2 setting is present.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

// ProfileSyncEnabled reports whether the profile mirror worker should run.
func (c *Config) ProfileSyncEnabled() bool {
	return c.ProfileSyncURL != "" && c.ProfileSyncToken != ""
}

func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// Load reads .env when present, then parses the environment. It reports
// whether a .env file was found so the caller can log it.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	cfg, err := Parse()
	if err != nil {
		return nil, dotenv, err
	}
	return cfg, dotenv, nil
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.SpawnInterval <= 0 || c.SweepInterval <= 0 {
		return errors.New("SPAWN_INTERVAL and SWEEP_INTERVAL must be positive")
	}
	if c.ClaimRatePerSecond <= 0 || c.ClaimBurst < 1 {
		return errors.New("claim rate limit must be positive")
	}
	return nil
}
