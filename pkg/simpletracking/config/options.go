package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing).
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend.
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory":
		case "postgres":
			if url == "" {
				return fmt.Errorf("database URL is required for postgres")
			}
		case "sqlite":
			if url == "" {
				return fmt.Errorf("database path is required for sqlite")
			}
			c.SQLitePath = url
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'sqlite', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithIngestTimeout bounds how long an ingestion may run after the
// decoy response has been served.
func WithIngestTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("ingest timeout must be positive")
		}
		c.IngestTimeout = d
		return nil
	}
}

// WithEventLogging toggles the structured event sink.
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
