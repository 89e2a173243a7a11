// Package producer validates job requests and publishes them to the durable
// job queue.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cuongbtq/etl-dispatch/internal/payload"
	"github.com/cuongbtq/etl-dispatch/shared/rabbitmq"
)

// StatusQueued is the receipt status of an accepted job
const StatusQueued = "queued"

// ErrQueueNotConfigured is returned when no broker or queue is configured.
// It is not retryable.
var ErrQueueNotConfigured = errors.New("queue not configured")

// DispatchFailure reports that a job could not be handed to the broker. The
// job must be treated as not queued.
type DispatchFailure struct {
	Queue string
	Err   error
}

func (e *DispatchFailure) Error() string {
	return e.Err.Error()
}

func (e *DispatchFailure) Unwrap() error {
	return e.Err
}

// Publisher is the queue client surface the producer needs.
// *rabbitmq.Client satisfies it, including a nil *rabbitmq.Client which
// reports itself unconfigured.
type Publisher interface {
	Configured() bool
	ConnectOnce(ctx context.Context) error
	Publish(ctx context.Context, queueName string, msg rabbitmq.Message) error
}

// Receipt acknowledges that a job was queued
type Receipt struct {
	Status    string `json:"status"`
	Queue     string `json:"queue"`
	MessageID string `json:"-"`
}

// Producer submits jobs to a single named queue
type Producer struct {
	publisher Publisher
	queueName string
	logger    *slog.Logger
}

// New creates a Producer. publisher may be nil when no broker is configured.
func New(publisher Publisher, queueName string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		publisher: publisher,
		queueName: queueName,
		logger:    logger,
	}
}

// Configured reports whether Submit can reach a queue
func (p *Producer) Configured() bool {
	return p.publisher != nil && p.publisher.Configured() && p.queueName != ""
}

// QueueName returns the target queue
func (p *Producer) QueueName() string {
	return p.queueName
}

// Submit serializes job and publishes it as a persistent message. Publish
// failures are returned as *DispatchFailure and never retried here.
func (p *Producer) Submit(ctx context.Context, job payload.Object) (*Receipt, error) {
	if !p.Configured() {
		return nil, ErrQueueNotConfigured
	}

	body, err := payload.Encode(job)
	if err != nil {
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}

	if err := p.publisher.ConnectOnce(ctx); err != nil {
		p.logger.Error("Failed to connect to broker",
			slog.String("queue", p.queueName),
			slog.Any("error", err),
		)
		return nil, &DispatchFailure{Queue: p.queueName, Err: err}
	}

	msg := rabbitmq.Message{
		Body:        body,
		ContentType: payload.ContentType,
		MessageID:   uuid.NewString(),
	}

	if err := p.publisher.Publish(ctx, p.queueName, msg); err != nil {
		return nil, &DispatchFailure{Queue: p.queueName, Err: err}
	}

	p.logger.Info("Job queued",
		slog.String("queue", p.queueName),
		slog.String("message_id", msg.MessageID),
	)

	return &Receipt{
		Status:    StatusQueued,
		Queue:     p.queueName,
		MessageID: msg.MessageID,
	}, nil
}
