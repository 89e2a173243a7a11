package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/etl-dispatch/internal/etl"
	"github.com/cuongbtq/etl-dispatch/internal/worker/domain"
)

// processJob runs one job through the pipeline and settles its delivery.
// The message is acknowledged whatever the pipeline outcome; only a job cut
// off by the shutdown drain is left unacknowledged.
func (w *Worker) processJob(ctx context.Context, logger *slog.Logger, job *jobDelivery) domain.Outcome {
	msg := job.msg
	logger = logger.With(
		slog.String("message_id", msg.MessageID),
		slog.String("job_name", msg.Request.JobName),
	)

	logger.Info("Received job",
		slog.Uint64("delivery_tag", msg.DeliveryTag),
		slog.Bool("redelivered", msg.Redelivered),
		slog.Any("payload", msg.Request.Payload.Interface()),
	)

	if msg.Redelivered && w.alreadyProcessed(ctx, logger, msg) {
		outcome := w.settle(logger, job)
		if outcome == domain.OutcomeAcked {
			w.stats.skipped.Add(1)
		}
		return outcome
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	summary, err := w.pipeline.Run(jobCtx, msg.Request)
	cancel()

	if err != nil && ctx.Err() != nil {
		logger.Warn("Job interrupted by shutdown, leaving message unacknowledged",
			slog.Uint64("delivery_tag", msg.DeliveryTag),
			slog.Any("error", fmt.Errorf("%w: %w", domain.ErrDrainTimeout, err)),
		)
		return domain.OutcomeAbandoned
	}

	if err != nil {
		w.logFailure(logger, summary, err)
	} else {
		logger.Info("Job completed",
			slog.String("status", summary.Status),
			slog.Int("records_processed", summary.RecordsProcessed),
			slog.Float64("execution_time_seconds", summary.ExecutionTimeSeconds),
		)
		w.persist(ctx, logger, msg, summary)
	}

	if markErr := w.guard.Mark(ctx, msg.MessageID); markErr != nil {
		logger.Warn("Failed to record processed message",
			slog.Any("error", markErr),
		)
	}

	outcome := w.settle(logger, job)
	if outcome == domain.OutcomeAcked {
		if err != nil {
			w.stats.failed.Add(1)
		} else {
			w.stats.processed.Add(1)
		}
	}
	return outcome
}

// alreadyProcessed consults the redelivery guard. Guard errors fail open so
// the message is processed again rather than lost.
func (w *Worker) alreadyProcessed(ctx context.Context, logger *slog.Logger, msg *domain.JobMessage) bool {
	if !w.guarded {
		logger.Warn("Redelivered message will be processed again (no redelivery guard configured)")
		return false
	}

	seen, err := w.guard.Seen(ctx, msg.MessageID)
	if err != nil {
		logger.Warn("Redelivery guard unavailable, processing message",
			slog.Any("error", err),
		)
		return false
	}
	if seen {
		logger.Info("Skipping redelivered message that was already processed")
	}
	return seen
}

func (w *Worker) logFailure(logger *slog.Logger, summary *etl.RunSummary, err error) {
	attrs := []any{slog.Any("error", err)}
	if stage, ok := etl.FailedStage(err); ok {
		attrs = append(attrs, slog.String("stage", string(stage)))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		attrs = append(attrs, slog.Duration("job_timeout", w.jobTimeout))
	}
	if summary != nil {
		attrs = append(attrs,
			slog.String("status", summary.Status),
			slog.Int("records_processed", summary.RecordsProcessed),
		)
	}

	logger.Error("Job failed", attrs...)
}

// persist writes the run record. Store failures are logged and never change
// how the message is settled.
func (w *Worker) persist(ctx context.Context, logger *slog.Logger, msg *domain.JobMessage, summary *etl.RunSummary) {
	jobName := summary.JobName
	if jobName == "" {
		jobName = msg.Request.JobName
	}

	record := &domain.RunRecord{
		JobName:   jobName,
		Payload:   msg.Request.Payload,
		Result:    summary,
		CreatedAt: w.now().Unix(),
	}

	if err := w.store.Persist(ctx, record); err != nil {
		logger.Warn("Failed to persist run record",
			slog.Any("error", err),
		)
	}
}
