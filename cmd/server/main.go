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

	"github.com/Priya8975/ticket-webhooks/internal/api"
	"github.com/Priya8975/ticket-webhooks/internal/config"
	"github.com/Priya8975/ticket-webhooks/internal/engine"
	"github.com/Priya8975/ticket-webhooks/internal/events"
	"github.com/Priya8975/ticket-webhooks/internal/registry"
	"github.com/Priya8975/ticket-webhooks/internal/store"
	ws "github.com/Priya8975/ticket-webhooks/internal/websocket"
	"github.com/Priya8975/ticket-webhooks/internal/worker"
	"github.com/Priya8975/ticket-webhooks/migrations"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	checks := map[string]api.Pinger{"store": st}

	// The sweep lease only matters when several instances share a database.
	var locker worker.Locker
	if cfg.RedisURL != "" {
		rdb, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		locker = rdb
		checks["redis"] = rdb
		logger.Info("connected to Redis")
	}

	hub := ws.NewHub(logger)
	deliverer := worker.NewDeliverer(st, hub, worker.TransportConfig{
		MaxConnsPerHost: cfg.MaxConnsPerHost,
		MaxIdleConns:    cfg.MaxIdleConns,
	}, logger)
	pool := worker.NewPool(cfg.NumWorkers, cfg.QueueSize, deliverer, logger)
	reg := registry.New(st, logger)
	fanout := engine.NewFanOutEngine(reg, st, pool, logger)
	scheduler := worker.NewScheduler(st, pool, deliverer, locker, worker.SchedulerConfig{
		Interval:          cfg.RetrySweepInterval,
		BatchSize:         cfg.RetryBatchSize,
		StalePendingAfter: cfg.StalePendingAfter,
	}, logger)

	router := api.NewRouter(api.Deps{
		Registry:      reg,
		Store:         st,
		Dispatcher:    fanout,
		Scheduler:     scheduler,
		Queue:         pool,
		Hub:           hub,
		HealthChecks:  checks,
		DefaultTenant: cfg.DefaultTenant,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		pool.Start(gctx)
		pool.Wait()
		return nil
	})

	g.Go(func() error {
		// Pick up work left behind by a previous run before the first tick.
		scheduler.Sweep(gctx)
		scheduler.Start(gctx)
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic, fanout, cfg.DefaultTenant, logger)
		if err != nil {
			return fmt.Errorf("creating kafka consumer: %w", err)
		}
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), func() {}, nil

	case config.DriverPostgres:
		pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL")

		if err := pgStore.RunMigrations(ctx, migrations.FS); err != nil {
			pgStore.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("database migrations applied")
		return pgStore, pgStore.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
