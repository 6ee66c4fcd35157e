// trackctl is the operator CLI for the tracking service: document
// registration, leaderboard inspection and demo data seeding.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
	"github.com/tendant/simple-tracking/pkg/simpletracking/config"
)

var rootCmd = &cobra.Command{
	Use:   "trackctl",
	Short: "Manage the document tracking service",
	Long: `trackctl manages tracked documents and inspects the event store.

The database is selected through DATABASE_URL, the same way the server
reads it ('memory', 'postgresql://...' or 'sqlite://...').`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.ServerConfig, error) {
	return config.Load(config.WithEnv(""))
}

func buildService(ctx context.Context) (simpletracking.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseType == "memory" {
		return nil, fmt.Errorf("DATABASE_URL points at the in-memory store; trackctl needs a persistent database")
	}
	return cfg.BuildService(ctx)
}

func buildRepository(ctx context.Context) (simpletracking.Repository, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseType == "memory" {
		return nil, fmt.Errorf("DATABASE_URL points at the in-memory store; trackctl needs a persistent database")
	}
	return cfg.BuildRepository(ctx)
}
