package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cuongbtq/etl-dispatch/internal/bootstrap"
	"github.com/cuongbtq/etl-dispatch/internal/config"
	"github.com/cuongbtq/etl-dispatch/shared/logger"
	"github.com/cuongbtq/etl-dispatch/shared/sqldb"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     *logger.Logger
	configErr  error

	db *sqldb.Client
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads configuration and the logger once per invocation.
// Logs go to stderr so stdout carries only command output.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := bootstrap.ConfigPath("ETL_CLI_CONFIG_PATH", "configs/worker-service/config.yaml")
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}

		cfg, _, err := bootstrap.LoadConfig(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid config: %w", err)
			return
		}

		if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
			cfg.Logging.Output = "stderr"
		}
		appLogger, err := bootstrap.InitLogger(&cfg.Logging)
		if err != nil {
			c.configErr = fmt.Errorf("failed to initialize logger: %w", err)
			return
		}

		c.config = cfg
		c.logger = appLogger
	})
	return c.config, c.configErr
}

// database opens the configured store on first use. It returns nil when no
// store is configured.
func (c *commandContext) database(ctx context.Context) (*sqldb.Client, error) {
	if c.db != nil {
		return c.db, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	db, err := bootstrap.InitDatabase(ctx, &cfg.Database, c.logger.Logger, true)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db
	return db, nil
}

func (c *commandContext) close() error {
	var err error
	if c.db != nil {
		err = c.db.Close()
		c.db = nil
	}
	if c.logger != nil {
		if closeErr := c.logger.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
