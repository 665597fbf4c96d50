/*
Package config reads the service configuration from command-line flags
and environment variables. Environment variables win over flags so
container deployments can override baked-in defaults.
*/
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the reward service configuration.
type Config struct {
	// RunAddress is the HTTP listen address.
	RunAddress string `env:"RUN_ADDRESS"`

	// EventDBPath is the SQLite file backing the reward event store.
	EventDBPath string `env:"EVENT_DB_PATH"`

	// CachePath is the Bolt file backing the idempotency cache.
	CachePath string `env:"CACHE_PATH"`

	// LedgerAddress is the base URL of the balance ledger service. Empty
	// switches to the in-memory recorder (dev mode).
	LedgerAddress string `env:"LEDGER_ADDRESS"`

	// EligibilityDSN is the Postgres DSN of the community database used
	// for eligibility lookups. Empty switches to the static source
	// (dev mode).
	EligibilityDSN string `env:"ELIGIBILITY_DSN"`

	// SettleInterval is how often the scheduler sweeps processable
	// groups.
	SettleInterval time.Duration `env:"SETTLE_INTERVAL"`

	// SettleChunkSize bounds one settlement commit.
	SettleChunkSize int `env:"SETTLE_CHUNK_SIZE"`
}

// Parse reads flags from args (the program arguments without the binary
// name) and then applies environment overrides.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("credit-engine", flag.ContinueOnError)
	fs.StringVar(&cfg.RunAddress, "a", ":8080", "address and port for HTTP server")
	fs.StringVar(&cfg.EventDBPath, "e", "credit-events.db", "path to SQLite event store")
	fs.StringVar(&cfg.CachePath, "c", "idempotency.db", "path to Bolt idempotency cache")
	fs.StringVar(&cfg.LedgerAddress, "l", "", "balance ledger base URL (empty = in-memory recorder)")
	fs.StringVar(&cfg.EligibilityDSN, "d", "", "community database DSN (empty = static source)")
	fs.DurationVar(&cfg.SettleInterval, "i", 5*time.Minute, "settlement sweep interval")
	fs.IntVar(&cfg.SettleChunkSize, "chunk", 1000, "events per settlement commit")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	overrides := &Config{}
	if err := env.Parse(overrides); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if overrides.RunAddress != "" {
		cfg.RunAddress = overrides.RunAddress
	}
	if overrides.EventDBPath != "" {
		cfg.EventDBPath = overrides.EventDBPath
	}
	if overrides.CachePath != "" {
		cfg.CachePath = overrides.CachePath
	}
	if overrides.LedgerAddress != "" {
		cfg.LedgerAddress = overrides.LedgerAddress
	}
	if overrides.EligibilityDSN != "" {
		cfg.EligibilityDSN = overrides.EligibilityDSN
	}
	if overrides.SettleInterval > 0 {
		cfg.SettleInterval = overrides.SettleInterval
	}
	if overrides.SettleChunkSize > 0 {
		cfg.SettleChunkSize = overrides.SettleChunkSize
	}

	if cfg.SettleInterval <= 0 {
		return nil, fmt.Errorf("settlement interval must be positive")
	}
	if cfg.SettleChunkSize <= 0 {
		return nil, fmt.Errorf("settlement chunk size must be positive")
	}

	return cfg, nil
}
