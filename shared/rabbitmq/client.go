package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrBrokerUnavailable is returned when the broker endpoint is unset or
// cannot be reached.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// PublishError wraps a transport failure during publish. The message must be
// treated as not delivered.
type PublishError struct {
	Queue string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish to queue %q: %v", e.Queue, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Config holds RabbitMQ connection configuration
type Config struct {
	URL               string
	ExchangeName      string // empty publishes via the default exchange
	ExchangeType      string
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
}

// Message is a publishable job envelope
type Message struct {
	Body        []byte
	ContentType string
	MessageID   string
	// Transient disables persistent delivery mode. Jobs are durable unless
	// a caller opts out explicitly.
	Transient bool
}

// Client owns the single broker connection of a process
type Client struct {
	config *Config
	logger *slog.Logger

	mu          sync.Mutex
	conn        *amqp.Connection
	channel     *amqp.Channel
	declared    map[string]bool
	lastDialErr error
	lastDialAt  time.Time
}

// NewClient creates a RabbitMQ client. No connection is made until Connect.
func NewClient(config *Config, logger *slog.Logger) *Client {
	return &Client{
		config:   config,
		logger:   logger,
		declared: make(map[string]bool),
	}
}

// Configured reports whether a broker endpoint is set
func (c *Client) Configured() bool {
	return c != nil && c.config != nil && c.config.URL != ""
}

// Connect establishes the broker session with retry. It is a no-op when a
// live connection already exists.
func (c *Client) Connect(ctx context.Context) error {
	if !c.Configured() {
		return fmt.Errorf("%w: endpoint not configured", ErrBrokerUnavailable)
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return c.connect(ctx, attempts)
}

// ConnectOnce is Connect for request paths: one dial attempt, and a dial
// that failed less than RetryInterval ago is reported again without dialing.
func (c *Client) ConnectOnce(ctx context.Context) error {
	if !c.Configured() {
		return fmt.Errorf("%w: endpoint not configured", ErrBrokerUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}

	c.mu.Lock()
	if !c.connectedLocked() && c.lastDialErr != nil && time.Since(c.lastDialAt) < c.config.RetryInterval {
		err := c.lastDialErr
		c.mu.Unlock()
		return fmt.Errorf("%w: recent dial failed: %w", ErrBrokerUnavailable, err)
	}
	c.mu.Unlock()

	return c.connect(ctx, 1)
}

func (c *Client) connect(ctx context.Context, attempts int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connectedLocked() {
		return nil
	}
	c.releaseLocked()

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	var conn *amqp.Connection
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		conn, err = amqp.DialConfig(c.config.URL, amqpConfig)
		if err == nil {
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrBrokerUnavailable, ctx.Err())
			case <-time.After(c.config.RetryInterval):
			}
		}
	}
	if err != nil {
		c.lastDialErr = err
		c.lastDialAt = time.Now()
		return fmt.Errorf("%w: after %d attempts: %w", ErrBrokerUnavailable, attempts, err)
	}
	c.lastDialErr = nil

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: failed to create channel: %w", ErrBrokerUnavailable, err)
	}

	if c.config.ExchangeName != "" {
		err = channel.ExchangeDeclare(
			c.config.ExchangeName, // name
			c.exchangeType(),      // type
			true,                  // durable
			false,                 // auto-deleted
			false,                 // internal
			false,                 // no-wait
			nil,                   // arguments
		)
		if err != nil {
			channel.Close()
			conn.Close()
			return fmt.Errorf("failed to declare exchange: %w", err)
		}
	}

	c.conn = conn
	c.channel = channel
	c.declared = make(map[string]bool)

	c.logger.Info("Successfully connected to RabbitMQ",
		slog.String("exchange", c.config.ExchangeName),
	)
	return nil
}

func (c *Client) exchangeType() string {
	if c.config.ExchangeType == "" {
		return amqp.ExchangeDirect
	}
	return c.config.ExchangeType
}

// declareQueueLocked declares queueName as durable and binds it to the
// configured exchange. Declarations are cached per connection.
func (c *Client) declareQueueLocked(queueName string) error {
	if c.declared[queueName] {
		return nil
	}

	_, err := c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // auto-delete
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", queueName, err)
	}

	if c.config.ExchangeName != "" {
		err = c.channel.QueueBind(
			queueName,             // queue name
			queueName,             // routing key
			c.config.ExchangeName, // exchange
			false,                 // no-wait
			nil,                   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", queueName, err)
		}
	}

	c.declared[queueName] = true
	return nil
}

// Publish sends msg to queueName. Any failure is returned as *PublishError.
func (c *Client) Publish(ctx context.Context, queueName string, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return &PublishError{Queue: queueName, Err: ErrBrokerUnavailable}
	}

	if err := c.declareQueueLocked(queueName); err != nil {
		return &PublishError{Queue: queueName, Err: err}
	}

	deliveryMode := amqp.Persistent
	if msg.Transient {
		deliveryMode = amqp.Transient
	}

	err := c.channel.PublishWithContext(
		ctx,
		c.config.ExchangeName, // exchange
		queueName,             // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  msg.ContentType,
			MessageId:    msg.MessageID,
			Body:         msg.Body,
			DeliveryMode: deliveryMode,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		c.logger.Error("Failed to publish message to RabbitMQ",
			slog.String("queue", queueName),
			slog.Any("error", err),
		)
		return &PublishError{Queue: queueName, Err: err}
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.String("queue", queueName),
		slog.String("message_id", msg.MessageID),
		slog.Int("body_size", len(msg.Body)),
	)
	return nil
}

// Consume subscribes to queueName with manual acknowledgment. prefetch
// bounds the number of unacknowledged deliveries held by this consumer.
// The returned channel closes when the connection drops or ctx ends.
func (c *Client) Consume(ctx context.Context, queueName, consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return nil, ErrBrokerUnavailable
	}

	if err := c.declareQueueLocked(queueName); err != nil {
		return nil, err
	}

	if prefetch > 0 {
		if err := c.channel.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		queueName,   // queue
		consumerTag, // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", queueName),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch_count", prefetch),
	)

	return deliveries, nil
}

// Cancel stops delivery to consumerTag without closing the connection, so
// in-flight deliveries can still be acknowledged.
func (c *Client) Cancel(consumerTag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return nil
	}
	return c.channel.Cancel(consumerTag, false)
}

// Close releases the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	c.logger.Info("Closing RabbitMQ connection")
	err := c.releaseLocked()
	if err != nil {
		c.logger.Error("Failed to close RabbitMQ connection",
			slog.Any("error", err),
		)
		return err
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

func (c *Client) releaseLocked() error {
	var err error
	if c.channel != nil && !c.channel.IsClosed() {
		if chErr := c.channel.Close(); chErr != nil && !errors.Is(chErr, amqp.ErrClosed) {
			err = chErr
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if connErr := c.conn.Close(); connErr != nil && !errors.Is(connErr, amqp.ErrClosed) {
			err = connErr
		}
	}
	c.channel = nil
	c.conn = nil
	return err
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *Client) connectedLocked() bool {
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}

// IsUnavailable reports whether err stems from a missing or unreachable broker
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrBrokerUnavailable) || errors.Is(err, amqp.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
