package worker

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/etl-dispatch/internal/payload"
	"github.com/cuongbtq/etl-dispatch/internal/worker/domain"
)

// jobDelivery pairs a decoded job with the delivery used to settle it
type jobDelivery struct {
	msg      *domain.JobMessage
	delivery amqp.Delivery
}

// runDispatcher subscribes to the queue and feeds the worker pool until ctx
// is canceled. A closed delivery channel means the connection dropped: the
// dispatcher reconnects and re-subscribes before resuming.
func (w *Worker) runDispatcher(ctx context.Context) {
	for {
		deliveries, err := w.setupConsumer(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("Failed to subscribe to queue, retrying",
				slog.String("queue", w.queueName),
				slog.Duration("retry_in", w.reconnectDelay),
				slog.Any("error", err),
			)
			if !w.wait(ctx, w.reconnectDelay) {
				return
			}
			continue
		}

		if !w.dispatch(ctx, deliveries) {
			if err := w.broker.Cancel(w.workerID); err != nil {
				w.logger.Warn("Failed to cancel consumer",
					slog.String("consumer_tag", w.workerID),
					slog.Any("error", err),
				)
			}
			return
		}

		w.logger.Warn("RabbitMQ delivery channel closed, reconnecting",
			slog.Duration("reconnect_in", w.reconnectDelay),
		)
		if !w.wait(ctx, w.reconnectDelay) {
			return
		}
	}
}

// setupConsumer connects when needed and starts a consumer tagged with the
// worker id.
func (w *Worker) setupConsumer(ctx context.Context) (<-chan amqp.Delivery, error) {
	if err := w.broker.Connect(ctx); err != nil {
		return nil, err
	}

	deliveries, err := w.broker.Consume(ctx, w.queueName, w.workerID, w.prefetchCount)
	if err != nil {
		return nil, err
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// dispatch reads deliveries until ctx ends (returns false) or the channel
// closes (returns true).
func (w *Worker) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return false

		case delivery, ok := <-deliveries:
			if !ok {
				return ctx.Err() == nil
			}

			jobMsg, err := w.decode(delivery)
			if err != nil {
				w.rejectMalformed(delivery, err)
				continue
			}

			select {
			case w.jobsChan <- &jobDelivery{msg: jobMsg, delivery: delivery}:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("message_id", jobMsg.MessageID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				if w.requeue(w.logger, &jobDelivery{msg: jobMsg, delivery: delivery}) == domain.OutcomeRequeued {
					w.stats.requeued.Add(1)
				}
				return false
			}
		}
	}
}

func (w *Worker) decode(delivery amqp.Delivery) (*domain.JobMessage, error) {
	p, err := payload.Decode(delivery.Body)
	if err != nil {
		return nil, &domain.MalformedJobError{
			MessageID:   delivery.MessageId,
			DeliveryTag: delivery.DeliveryTag,
			Err:         err,
		}
	}

	return &domain.JobMessage{
		MessageID:   delivery.MessageId,
		DeliveryTag: delivery.DeliveryTag,
		Redelivered: delivery.Redelivered,
		Request:     payload.NewJobRequest(p, w.defaultJobName),
	}, nil
}

// rejectMalformed acknowledges a poison message so it is removed from the
// queue instead of being redelivered forever.
func (w *Worker) rejectMalformed(delivery amqp.Delivery, err error) {
	w.logger.Error("Discarding malformed job message",
		slog.String("message_id", delivery.MessageId),
		slog.Uint64("delivery_tag", delivery.DeliveryTag),
		slog.Int("body_bytes", len(delivery.Body)),
		slog.Any("error", err),
	)

	if ackErr := delivery.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK malformed message",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.Any("error", ackErr),
		)
		return
	}
	w.stats.malformed.Add(1)
}

// wait sleeps for d, returning false if ctx ends first
func (w *Worker) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
