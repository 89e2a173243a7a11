package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/etl-dispatch/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop processes jobs until jobsChan is closed. ctx is only canceled
// when the shutdown drain times out.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for job := range w.jobsChan {
		if outcome := w.processJob(ctx, logger, job); outcome == domain.OutcomeAbandoned {
			w.stats.abandoned.Add(1)
		}
	}

	logger.Debug("Worker goroutine stopping - jobsChan closed")
}

// settle acknowledges the delivery. Each delivery reaches settle at most
// once, so a message is never acked twice.
func (w *Worker) settle(logger *slog.Logger, job *jobDelivery) domain.Outcome {
	if err := job.delivery.Ack(false); err != nil {
		// the channel is gone; the broker will redeliver the message
		logger.Error("Failed to ACK message",
			slog.String("message_id", job.msg.MessageID),
			slog.Uint64("delivery_tag", job.msg.DeliveryTag),
			slog.Any("error", err),
		)
		return domain.OutcomeAbandoned
	}
	return domain.OutcomeAcked
}

// requeue hands an undispatched delivery back to the broker
func (w *Worker) requeue(logger *slog.Logger, job *jobDelivery) domain.Outcome {
	if err := job.delivery.Nack(false, true); err != nil {
		logger.Error("Failed to NACK message on shutdown",
			slog.String("message_id", job.msg.MessageID),
			slog.Uint64("delivery_tag", job.msg.DeliveryTag),
			slog.Any("error", err),
		)
		return domain.OutcomeAbandoned
	}
	return domain.OutcomeRequeued
}
