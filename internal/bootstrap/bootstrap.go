// Package bootstrap builds the process-wide clients shared by the service
// binaries from a loaded configuration. Optional collaborators that are not
// configured come back nil so callers can degrade instead of failing.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/etl-dispatch/internal/config"
	"github.com/cuongbtq/etl-dispatch/internal/worker/dedup"
	"github.com/cuongbtq/etl-dispatch/shared/logger"
	"github.com/cuongbtq/etl-dispatch/shared/rabbitmq"
	"github.com/cuongbtq/etl-dispatch/shared/sqldb"
)

// LoadConfig reads .env (when present), then the config file (when present),
// then environment overrides.
func LoadConfig(configPath string) (cfg *config.Config, dotenvLoaded bool, err error) {
	dotenvLoaded = godotenv.Load() == nil

	cfg, err = config.LoadOrDefault(configPath)
	if err != nil {
		return nil, dotenvLoaded, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, dotenvLoaded, nil
}

// ConfigPath returns the -config flag default: the value of envKey, or
// fallback when unset.
func ConfigPath(envKey, fallback string) string {
	if p := os.Getenv(envKey); p != "" {
		return p
	}
	return fallback
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// InitDatabase connects to the result store. It returns nil, nil when no
// store is configured. When required is false an unreachable database is
// only logged: writes then fail one at a time instead of stopping startup.
func InitDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger, required bool) (*sqldb.Client, error) {
	if !cfg.StoreConfigured() {
		logger.Warn("Result store not configured, run records will not be persisted")
		return nil, nil
	}

	dbConfig := &sqldb.Config{
		Driver:          cfg.Driver,
		URL:             cfg.URL,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	if required {
		return sqldb.NewClient(ctx, dbConfig, logger)
	}
	return sqldb.Open(ctx, dbConfig, logger)
}

// InitRabbitMQ builds the queue client without connecting. It returns nil
// when no broker is configured.
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) *rabbitmq.Client {
	if !cfg.BrokerConfigured() {
		logger.Warn("RabbitMQ not configured")
		return nil
	}

	rabbitConfig := &rabbitmq.Config{
		URL:               cfg.DSN(),
		ExchangeName:      cfg.Exchange.Name,
		ExchangeType:      cfg.Exchange.Type,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// InitRedisGuard builds the redelivery guard. Without a redis url it returns
// nil and redelivered messages are processed again. An unreachable server is
// logged but still returned, because the guard fails open per call.
func InitRedisGuard(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*dedup.RedisGuard, error) {
	if cfg.URL == "" {
		logger.Warn("Redis not configured, redelivered messages will be processed again")
		return nil, nil
	}

	guard, err := dedup.NewRedisGuard(cfg.URL, cfg.KeyPrefix, cfg.TTL)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := guard.Ping(pingCtx); err != nil {
		logger.Warn("Redis unreachable at startup",
			slog.Any("error", err),
		)
	} else {
		logger.Info("Redis connection established")
	}

	return guard, nil
}
