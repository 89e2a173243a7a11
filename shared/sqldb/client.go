// Package sqldb wraps sqlx for the Postgres result store and the embedded
// SQLite store used for local runs.
package sqldb

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by name
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config holds SQL connection configuration
type Config struct {
	Driver          string
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN returns the data source name for the configured driver
func (c *Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Driver == DriverSQLite {
		return c.Database
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}

// Client represents a SQL database client
type Client struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewClient connects and verifies the database
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	db, err := open(config, logger)
	if err != nil {
		return nil, err
	}

	if err := ping(ctx, db); err != nil {
		logger.Error("Failed to ping database",
			slog.Any("error", err),
		)
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to database",
		slog.String("driver", db.DriverName()),
		slog.Int("max_open_conns", config.MaxOpenConns),
	)

	return &Client{db: db, logger: logger}, nil
}

// Open is NewClient for an optional database: a failed ping is logged and
// the handle is kept, since the pool dials again on every use.
func Open(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	db, err := open(config, logger)
	if err != nil {
		return nil, err
	}

	if err := ping(ctx, db); err != nil {
		logger.Warn("Database unreachable, continuing without a verified connection",
			slog.Any("error", err),
		)
	} else {
		logger.Info("Successfully connected to database",
			slog.String("driver", db.DriverName()),
			slog.Int("max_open_conns", config.MaxOpenConns),
		)
	}

	return &Client{db: db, logger: logger}, nil
}

func open(config *Config, logger *slog.Logger) (*sqlx.DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = DriverPostgres
	}

	logger.Info("Connecting to database",
		slog.String("driver", driver),
		slog.String("host", config.Host),
		slog.String("database", config.Database),
	)

	db, err := sqlx.Open(driver, config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return db, nil
}

func ping(ctx context.Context, db *sqlx.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(pingCtx)
}

// Wrap adopts an already opened handle
func Wrap(db *sqlx.DB, logger *slog.Logger) *Client {
	return &Client{db: db, logger: logger}
}

// GetDB returns the underlying sqlx.DB instance, or nil for a nil client
func (c *Client) GetDB() *sqlx.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}

	c.logger.Info("Closing database connection")
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close database connection",
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// HealthCheck performs a health check on the database
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := c.db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
