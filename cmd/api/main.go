// Package main is the entry point for the BeaconRelay ingestion server.
//
// It loads configuration, builds the pipeline collaborators (geolocation
// resolver, renderer, delivery client, optional persistence sink), mounts
// the HTTP chassis, and starts listening with graceful shutdown via OS
// signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"beaconrelay/internal/api/handlers"
	"beaconrelay/internal/config"
	"beaconrelay/internal/core"
	"beaconrelay/internal/db"
	"beaconrelay/internal/geo"
	"beaconrelay/internal/notify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("beaconrelay starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"geo_enabled", cfg.Geo.Enabled,
		"sink_configured", cfg.Sink.WebhookURL.IsSet(),
		"persistence_configured", cfg.Database.URL.IsSet(),
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Persistence is optional: without DATABASE_URL, reports are delivered
	// but not stored.
	var (
		persister handlers.Persister
		pool      *pgxpool.Pool
	)
	if cfg.Database.URL.IsSet() {
		pool, err = db.NewPool(context.Background(), cfg.Database)
		if err != nil {
			return fmt.Errorf("creating database pool: %w", err)
		}
		defer pool.Close()

		persister = db.NewReportRepository(pool, cfg.Database.CompressThreshold)
		srv.HealthProbes = append(srv.HealthProbes, &dbProbe{pool: pool})
	}

	var geoClient *geo.Client
	if cfg.Geo.Enabled {
		geoClient = geo.NewClient(cfg.Geo.BaseURL, cfg.Geo.Timeout)
	}
	resolver := geo.NewResolver(geoClient, cfg.Geo.Enabled, logger)

	renderer := notify.NewRenderer(cfg.Sink.Username)
	deliverer := notify.NewDeliverer(cfg.Sink, logger)

	ingestHandler := handlers.NewIngestHandler(
		resolver,
		renderer,
		deliverer,
		persister,
		cfg.Ingest.MaxBodyBytes,
		cfg.Ingest.MaxAttachmentBytes,
		logger,
	)
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		ingestHandler.RegisterRoutes(r)
	})

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second, // large attachment uploads
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// dbProbe reports persistence health for the /health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string { return "database" }

func (p *dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
