package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
	"github.com/tendant/simple-tracking/pkg/simpletracking/api"
	"github.com/tendant/simple-tracking/pkg/simpletracking/config"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		log.Fatalf("Failed to load server configuration: %v", err)
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)

	svc, err := cfg.BuildService(context.Background())
	if err != nil {
		log.Fatalf("Failed to build service: %v", err)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: routes(svc, logger),
	}

	go func() {
		logger.Info("tracking server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"database", cfg.DatabaseType,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server exiting")
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func routes(svc simpletracking.Service, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// The camouflage surface sits at the root so its paths read as
	// ordinary site traffic.
	r.Mount("/", api.NewDecoyHandler(svc, logger).Routes())

	r.Mount("/api/v1", api.NewTrackHandler(svc, logger).Routes())
	r.Mount("/dashboard/api", api.NewDashboardHandler(svc, logger).Routes())

	return r
}
