package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultQueueName is the durable queue jobs are published to
	DefaultQueueName = "jobs"
	// DefaultJobName identifies jobs whose payload carries no job_name
	DefaultJobName = "worker-job"
	// DefaultConversionFactor is applied by the transform stage
	DefaultConversionFactor = 1.1
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	ETL      ETLConfig      `yaml:"etl"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the result store connection configuration.
// Either URL or Host must be set for the store to be considered configured.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // postgres or sqlite
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and queue configuration.
// Either URL or Host must be set for the broker to be considered configured.
type RabbitMQConfig struct {
	URL        string           `yaml:"url"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration. An empty name
// publishes through the default exchange, routed by queue name.
type ExchangeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name string `yaml:"name"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds the redelivery guard configuration
type RedisConfig struct {
	URL       string        `yaml:"url"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
}

// ETLConfig selects and tunes the processing pipeline
type ETLConfig struct {
	Mode             string  `yaml:"mode"`      // processor or noop
	Extractor        string  `yaml:"extractor"` // fixture or items
	Loader           string  `yaml:"loader"`    // log or sql
	JobName          string  `yaml:"job_name"`
	ProcessingDate   string  `yaml:"processing_date"`
	ConversionFactor float64 `yaml:"conversion_factor"`
}

// NeedsDatabase reports whether the pipeline itself reads or writes the
// database, as opposed to only recording run results there.
func (c *ETLConfig) NeedsDatabase() bool {
	if c.Mode == "noop" {
		return false
	}
	return c.Extractor == "items" || c.Loader == "sql"
}

// Default returns a configuration where every external collaborator is
// unconfigured. Services started with it degrade instead of failing.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			Port:  5672,
			VHost: "/",
			Queue: QueueConfig{Name: DefaultQueueName},
			Connection: ConnectionConfig{
				RetryAttempts:     5,
				RetryInterval:     2 * time.Second,
				Heartbeat:         10 * time.Second,
				ConnectionTimeout: 5 * time.Second,
			},
		},
		Redis: RedisConfig{
			KeyPrefix: "etl:processed:",
			TTL:       24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		App: AppConfig{
			Name:        "etl-dispatch",
			Version:     "dev",
			Environment: "development",
		},
		Worker: WorkerConfig{
			Concurrency:     1,
			JobTimeout:      5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			ReconnectDelay:  2 * time.Second,
		},
		ETL: ETLConfig{
			Mode:             "processor",
			Extractor:        "fixture",
			Loader:           "log",
			JobName:          DefaultJobName,
			ConversionFactor: DefaultConversionFactor,
		},
	}
}

// Load reads and parses the configuration file on top of Default
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads configPath when it exists and falls back to Default
// otherwise. Environment overrides are applied in both cases.
func LoadOrDefault(configPath string) (*Config, error) {
	config := Default()
	if _, err := os.Stat(configPath); err == nil {
		config, err = Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides file values with environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("RABBITMQ_URL", &c.RabbitMQ.URL)
	str("QUEUE_NAME", &c.RabbitMQ.Queue.Name)
	str("DATABASE_URL", &c.Database.URL)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("REDIS_URL", &c.Redis.URL)
	str("JOB_NAME", &c.ETL.JobName)
	str("PROCESSING_DATE", &c.ETL.ProcessingDate)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	if v, ok := lookup("CONVERSION_FACTOR"); ok && v != "" {
		factor, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid CONVERSION_FACTOR %q: %w", v, err)
		}
		c.ETL.ConversionFactor = factor
	}

	return nil
}

// BrokerConfigured reports whether a broker endpoint is set
func (c *RabbitMQConfig) BrokerConfigured() bool {
	return c.URL != "" || c.Host != ""
}

// DSN returns the AMQP URL, building it from host parts when URL is empty.
// An unconfigured broker yields an empty string.
func (c *RabbitMQConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return ""
	}

	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.VHost,
	}
	return u.String()
}

// StoreConfigured reports whether a result store endpoint is set
func (c *DatabaseConfig) StoreConfigured() bool {
	return c.URL != "" || c.Host != ""
}

// Validate checks value ranges. Missing broker or store endpoints are valid.
func (c *Config) Validate() error {
	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.RabbitMQ.Host != "" && (c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort) {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.Database.Host != "" && (c.Database.Port < MinPort || c.Database.Port > MaxPort) {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Host != "" && c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	switch c.ETL.Mode {
	case "processor", "noop":
	default:
		return fmt.Errorf("unsupported etl mode: %q", c.ETL.Mode)
	}

	switch c.ETL.Extractor {
	case "fixture", "items":
	default:
		return fmt.Errorf("unsupported etl extractor: %q", c.ETL.Extractor)
	}

	switch c.ETL.Loader {
	case "log", "sql":
	default:
		return fmt.Errorf("unsupported etl loader: %q", c.ETL.Loader)
	}

	if c.ETL.ConversionFactor <= 0 {
		return fmt.Errorf("etl conversion_factor must be greater than 0")
	}

	return nil
}

// ValidateAPIConfig checks settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return nil
}

// ValidateWorkerConfig checks settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.ETL.Loader == "sql" && !c.Database.StoreConfigured() {
		return fmt.Errorf("etl loader sql requires a configured database")
	}

	if c.ETL.Extractor == "items" && !c.Database.StoreConfigured() {
		return fmt.Errorf("etl extractor items requires a configured database")
	}

	return nil
}
