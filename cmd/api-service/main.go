package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/etl-dispatch/internal/api/handler"
	"github.com/cuongbtq/etl-dispatch/internal/api/router"
	"github.com/cuongbtq/etl-dispatch/internal/api/storage"
	"github.com/cuongbtq/etl-dispatch/internal/bootstrap"
	"github.com/cuongbtq/etl-dispatch/internal/producer"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config",
		bootstrap.ConfigPath("API_SERVICE_CONFIG_PATH", "configs/api-service/config.yaml"),
		"Path to configuration file")
	flag.Parse()

	cfg, dotenvLoaded, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("dotenv_loaded", dotenvLoaded),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// /items fails per request while the database is down
	dbClient, err := bootstrap.InitDatabase(ctx, &cfg.Database, appLogger.Logger, false)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if rabbitClient != nil {
		defer rabbitClient.Close()

		// the producer reconnects per request, so a broker that is down at
		// startup only fails submissions until it comes back
		if err := rabbitClient.Connect(ctx); err != nil {
			appLogger.Warn("RabbitMQ unreachable at startup", slog.Any("error", err))
		}
	}

	deps := &handler.Dependencies{
		Logger:   appLogger.Logger,
		Producer: producer.New(rabbitClient, cfg.RabbitMQ.Queue.Name, appLogger.Logger),
	}
	if dbClient != nil {
		deps.Items = storage.NewStorage(dbClient)
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.SetupRouter(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.String("queue", cfg.RabbitMQ.Queue.Name),
		slog.Bool("queue_configured", rabbitClient != nil),
		slog.Bool("store_configured", dbClient != nil),
	)

	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}
