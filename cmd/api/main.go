// Package main is the entry point for the roadcast API server.
//
// It loads configuration, wires the provider registry, planner, attributor
// and trip sessions into the core HTTP chassis, and serves until SIGINT or
// SIGTERM. Shutdown drains in-flight requests, then closes trip sessions and
// the place cache pool.
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"roadcast/internal/api/handlers"
	"roadcast/internal/config"
	"roadcast/internal/core"
	"roadcast/internal/db"
	"roadcast/internal/external"
	"roadcast/internal/metrics"
	"roadcast/internal/refresh"
	"roadcast/internal/routing"
	"roadcast/internal/trips"
	"roadcast/internal/weather"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("roadcast API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"directions_backend", cfg.Providers.DirectionsBackend,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := buildServer(ctx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}

	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires every dependency and mounts the routes. ctx bounds
// startup work such as connecting to the database.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	recorder, err := newRecorder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.Metrics = recorder

	opts := []external.RegistryOption{external.WithCallObserver(recorder)}
	var closeDB func() error
	if cfg.Database.URL.IsSet() {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to place cache database: %w", err)
		}
		places := db.NewPlaceRepository(pool)
		if err := places.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("preparing place cache schema: %w", err)
		}
		opts = append(opts, external.WithPlaceStore(places))
		srv.HealthProbes = append(srv.HealthProbes, core.PingProbe{ProbeName: "database", Target: pool})
		closeDB = func() error {
			pool.Close()
			return nil
		}
		logger.Info("place cache backed by postgres")
	}

	reg, err := external.NewProviderRegistry(cfg, logger, opts...)
	if err != nil {
		if closeDB != nil {
			_ = closeDB()
		}
		return nil, fmt.Errorf("building provider registry: %w", err)
	}

	planner := routing.NewPlanner(reg.Directions, reg.Geocoder, routing.PlannerConfig{
		GeocodeConcurrency: cfg.Planning.GeocodeConcurrency,
		Metrics:            recorder,
		Logger:             logger.With("component", "planner"),
	})
	inserter := routing.NewInserter(reg.Directions, logger.With("component", "inserter"))

	snowThreshold := cfg.Weather.SnowThresholdC
	attributor := weather.NewAttributor(reg.Forecast, reg.Alerts, weather.AttributorConfig{
		Concurrency:     cfg.Weather.EnrichConcurrency,
		ProviderTimeout: cfg.Providers.ProviderTimeout,
		SnowThresholdC:  &snowThreshold,
		Metrics:         recorder,
		Logger:          logger.With("component", "attributor"),
	})

	tripLogger := logger.With("component", "trips")
	tripSvc := trips.NewService(planner, inserter, attributor, trips.ServiceConfig{
		Store: trips.NewStore(trips.StoreConfig{
			MaxSessions: cfg.Trips.MaxSessions,
			SessionTTL:  cfg.Trips.SessionTTL,
			Logger:      tripLogger,
		}),
		Refresh: refresh.Config{
			ScrubThresholdHours: cfg.Refresh.ScrubThresholdHours,
			DebounceWindow:      cfg.Refresh.DebounceWindow,
			MaxScrubHours:       cfg.Refresh.MaxScrubHours,
			Metrics:             recorder,
		},
		Logger: tripLogger,
	})

	// Sessions stop issuing provider calls before the pool goes away.
	srv.Closers = append(srv.Closers, func() error {
		tripSvc.Close()
		return nil
	})
	if closeDB != nil {
		srv.Closers = append(srv.Closers, closeDB)
	}

	routeHandler := handlers.NewRouteHandler(planner, attributor, srv.Validator, handlers.RouteHandlerConfig{
		DefaultIntervalMinutes: cfg.Planning.DefaultIntervalMinutes,
		Logger:                 logger,
	})
	tripHandler := handlers.NewTripHandler(tripSvc, srv.Validator, cfg.Planning.DefaultIntervalMinutes, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		routeHandler.RegisterRoutes,
		tripHandler.RegisterRoutes,
	)

	srv.MountRoutes()
	return srv, nil
}

// newRecorder returns the CloudWatch publisher when metrics are enabled and
// a no-op recorder otherwise.
func newRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (metrics.Recorder, error) {
	if !cfg.Observability.EnableMetrics {
		return metrics.NoopMetrics{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Observability.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	return metrics.NewCloudWatchMetrics(
		cloudwatch.NewFromConfig(awsCfg),
		cfg.Observability.MetricNamespace,
		logger.With("component", "metrics"),
	), nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Trip creation waits for enrichment, bounded by the request timeout.
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel to capture server errors from ListenAndServe.
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
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
