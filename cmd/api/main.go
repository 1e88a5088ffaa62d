package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/agrimarket/fulfillment-backend/api/routes"
	"github.com/agrimarket/fulfillment-backend/internal/audit"
	"github.com/agrimarket/fulfillment-backend/internal/checkout"
	"github.com/agrimarket/fulfillment-backend/internal/events"
	"github.com/agrimarket/fulfillment-backend/internal/orders"
	"github.com/agrimarket/fulfillment-backend/pkg/bigquery"
	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/db"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	"github.com/agrimarket/fulfillment-backend/pkg/metrics"
	"github.com/agrimarket/fulfillment-backend/pkg/migrate"
	"github.com/agrimarket/fulfillment-backend/pkg/outbox"
	"github.com/agrimarket/fulfillment-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	// nil interface, not a typed nil, when analytics is off so readiness
	// reports it as disabled
	var bigqueryPinger bigquery.Pinger
	var bigqueryClient *bigquery.Client
	if cfg.Events.AnalyticsEnabled {
		bigqueryClient, err = bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bigqueryClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()
		bigqueryPinger = bigqueryClient
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sinks, err := buildSinks(cfg, logg, dbClient, redisClient, bigqueryClient)
	if err != nil {
		logg.Error(ctx, "failed to build event sinks", err)
		os.Exit(1)
	}
	dispatcher, err := events.NewDispatcher(events.DispatcherParams{
		Logger:          logg,
		Metrics:         metrics.NewEventMetrics(reg),
		Sinks:           sinks,
		QueueSize:       cfg.Events.QueueSize,
		Workers:         cfg.Events.Workers,
		DeliveryTimeout: cfg.Events.DeliveryTimeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create event dispatcher", err)
		os.Exit(1)
	}

	orderMetrics := metrics.NewOrderMetrics(reg)
	ordersRepo := orders.NewRepository(dbClient.DB())

	ordersService, err := orders.NewService(ordersRepo, dbClient, dispatcher, orderMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:      dbClient,
		Orders:  ordersRepo,
		Emitter: dispatcher,
		Metrics: orderMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	addr := ":" + cfg.App.Port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"addr":  addr,
		"sinks": len(sinks),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			bigqueryPinger,
			reg,
			checkoutService,
			ordersService,
			audit.NewLogRecorder(logg),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(serverCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(serverCtx, "api server shutdown failed", err)
		exitCode = 1
	}
	// drain queued events after the last request has emitted
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logg.Error(serverCtx, "event dispatcher did not drain", err)
		exitCode = 1
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	logg.Info(serverCtx, "api server stopped")
}

func buildSinks(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, bigqueryClient *bigquery.Client) ([]events.Sink, error) {
	var sinks []events.Sink
	if cfg.Events.OutboxEnabled {
		outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
		sink, err := events.NewOutboxSink(dbClient, outboxService)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.Events.RealtimeEnabled {
		sink, err := events.NewRealtimeSink(redisClient, cfg.Events.RealtimePrefix)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.Events.AnalyticsEnabled && bigqueryClient != nil {
		sink, err := events.NewAnalyticsSink(bigqueryClient, bigqueryClient.OrderEventsTable())
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}
