package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
	"github.com/tendant/simple-tracking/pkg/simpletracking/repo/memory"
	repopg "github.com/tendant/simple-tracking/pkg/simpletracking/repo/postgres"
	reposqlite "github.com/tendant/simple-tracking/pkg/simpletracking/repo/sqlite"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on
// top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		IngestTimeout:      5 * time.Second,
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the tracking service.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres", "sqlite"
	SQLitePath   string

	// Ingestion options
	IngestTimeout time.Duration

	// Server options
	EnableEventLogging bool
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required when using sqlite")
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'sqlite'")
	}

	if c.IngestTimeout <= 0 {
		return errors.New("ingest timeout must be positive")
	}

	return nil
}

// BuildService creates a Service instance from the server configuration.
func (c *ServerConfig) BuildService(ctx context.Context) (simpletracking.Service, error) {
	repo, err := c.BuildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	options := []simpletracking.Option{
		simpletracking.WithRepository(repo),
		simpletracking.WithIngestTimeout(c.IngestTimeout),
	}
	if c.EnableEventLogging {
		options = append(options, simpletracking.WithEventSink(simpletracking.NewLoggingEventSink(nil)))
	}

	return simpletracking.New(options...)
}

// BuildRepository creates a Repository based on the configuration,
// running migrations for the SQL backends.
func (c *ServerConfig) BuildRepository(ctx context.Context) (simpletracking.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		repo := repopg.NewWithPool(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
		return repo, nil
	case "sqlite":
		return reposqlite.Open(ctx, c.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// PingPostgres verifies connectivity to Postgres.
func PingPostgres(ctx context.Context, databaseURL string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
