package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/etl-dispatch/internal/bootstrap"
	"github.com/cuongbtq/etl-dispatch/internal/etl"
	"github.com/cuongbtq/etl-dispatch/internal/worker"
	"github.com/cuongbtq/etl-dispatch/internal/worker/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config",
		bootstrap.ConfigPath("WORKER_SERVICE_CONFIG_PATH", "configs/worker-service/config.yaml"),
		"Path to configuration file")
	flag.Parse()

	cfg, dotenvLoaded, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("dotenv_loaded", dotenvLoaded),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run records alone never block processing; the items extractor and
	// the sql loader cannot run without the database
	dbClient, err := bootstrap.InitDatabase(ctx, &cfg.Database, appLogger.Logger, cfg.ETL.NeedsDatabase())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	workerCfg := &worker.Config{
		Logger:          appLogger.Logger,
		QueueName:       cfg.RabbitMQ.Queue.Name,
		DefaultJobName:  cfg.ETL.JobName,
		Concurrency:     cfg.Worker.Concurrency,
		Prefetch:        cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:      cfg.Worker.JobTimeout,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		ReconnectDelay:  cfg.Worker.ReconnectDelay,
	}

	if dbClient != nil {
		resultStore := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
		if err := resultStore.EnsureSchema(ctx); err != nil {
			// persistence is best effort; each failed write is logged again
			appLogger.Warn("Failed to prepare result store", slog.Any("error", err))
		}
		workerCfg.Store = resultStore

		if cfg.ETL.Loader == "sql" {
			if _, err := dbClient.GetDB().ExecContext(ctx, etl.RecordsSchema); err != nil {
				return fmt.Errorf("failed to prepare etl_records table: %w", err)
			}
		}
	}

	pipeline, err := etl.New(cfg.ETL, dbClient.GetDB(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to build etl pipeline: %w", err)
	}
	workerCfg.Pipeline = pipeline

	guard, err := bootstrap.InitRedisGuard(ctx, &cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	if guard != nil {
		defer guard.Close()
		workerCfg.Guard = guard
	}

	rabbitClient := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if rabbitClient == nil {
		appLogger.Warn("No broker configured, worker is idle until shutdown")
		<-ctx.Done()
		return nil
	}
	defer rabbitClient.Close()
	workerCfg.Broker = rabbitClient

	workerInstance := worker.NewWorker(workerCfg)

	// Start returns once ctx is canceled and in-flight jobs are drained or
	// abandoned; the deferred Close then releases the connection so the
	// broker redelivers anything left unacknowledged.
	if err := workerInstance.Start(ctx); err != nil {
		appLogger.Error("Worker error", slog.Any("error", err))
		return err
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
