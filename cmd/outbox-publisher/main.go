package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/db"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	"github.com/agrimarket/fulfillment-backend/pkg/metrics"
	"github.com/agrimarket/fulfillment-backend/pkg/migrate"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox/registry"
	"github.com/agrimarket/fulfillment-backend/pkg/pubsub"
)

const (
	serviceName         = "outbox-publisher"
	metricsDrainTimeout = 5 * time.Second
)

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env not loaded, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "load config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "topic": cfg.PubSub.OrdersTopic})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "outbox publisher exited", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher stopped")
}

// run wires the relay and blocks until ctx is cancelled or the relay fails.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	database, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", database.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, database); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	topics, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}

	ps, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeQuietly(ctx, logg, "pubsub", ps.Close)

	reg := prometheus.NewRegistry()
	relay, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		Metrics:       metrics.NewEventMetrics(reg),
		DB:            database,
		PubSub:        ps,
		Repository:    outbox.NewRepository(database.DB()),
		DLQRepository: outbox.NewDLQRepository(database.DB()),
		Registry:      topics,
	})
	if err != nil {
		return err
	}

	stopMetrics := serveMetrics(ctx, logg, ":"+cfg.App.Port, reg)
	defer stopMetrics()

	logg.Info(ctx, "relaying outbox events")
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveMetrics exposes reg on addr and returns a func that shuts the server down.
func serveMetrics(ctx context.Context, logg *logger.Logger, addr string, reg *prometheus.Registry) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsDrainTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "close "+what, err)
	}
}
