package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/etl-dispatch/internal/etl"
	"github.com/cuongbtq/etl-dispatch/internal/worker/dedup"
	"github.com/cuongbtq/etl-dispatch/internal/worker/storage"
)

const (
	defaultJobTimeout      = 5 * time.Minute
	defaultShutdownTimeout = 30 * time.Second
	defaultReconnectDelay  = 2 * time.Second
)

// Broker is the subset of the queue client the worker consumes through.
// *rabbitmq.Client satisfies it.
type Broker interface {
	Connect(ctx context.Context) error
	Consume(ctx context.Context, queueName, consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
	Cancel(consumerTag string) error
}

// Config holds worker configuration
type Config struct {
	Logger   *slog.Logger
	Broker   Broker
	Pipeline etl.Pipeline
	Store    storage.ResultStore // nil means no result store
	Guard    dedup.Guard         // nil disables the redelivery guard

	QueueName      string
	DefaultJobName string

	Concurrency     int
	Prefetch        int // defaults to Concurrency
	JobTimeout      time.Duration
	ShutdownTimeout time.Duration
	ReconnectDelay  time.Duration

	Now func() time.Time
}

// Stats counts how deliveries were settled since the worker started
type Stats struct {
	Processed int64 // pipeline succeeded, message acked
	Failed    int64 // pipeline failed, message acked
	Malformed int64
	Skipped   int64 // redelivery of an already processed message
	Requeued  int64
	Abandoned int64 // left unacknowledged at shutdown
}

type counters struct {
	processed, failed, malformed, skipped, requeued, abandoned atomic.Int64
}

// Worker consumes job messages and runs each through the pipeline
type Worker struct {
	logger   *slog.Logger
	broker   Broker
	pipeline etl.Pipeline
	store    storage.ResultStore
	guard    dedup.Guard
	guarded  bool

	queueName       string
	defaultJobName  string
	concurrency     int
	prefetchCount   int
	jobTimeout      time.Duration
	shutdownTimeout time.Duration
	reconnectDelay  time.Duration
	now             func() time.Time

	workerID string
	jobsChan chan *jobDelivery
	wg       sync.WaitGroup
	stats    counters

	mu          sync.Mutex
	stopConsume context.CancelFunc
	done        chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:          cfg.Logger,
		broker:          cfg.Broker,
		pipeline:        cfg.Pipeline,
		store:           cfg.Store,
		guard:           cfg.Guard,
		guarded:         cfg.Guard != nil,
		queueName:       cfg.QueueName,
		defaultJobName:  cfg.DefaultJobName,
		concurrency:     cfg.Concurrency,
		prefetchCount:   cfg.Prefetch,
		jobTimeout:      cfg.JobTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		reconnectDelay:  cfg.ReconnectDelay,
		now:             cfg.Now,
		workerID:        "worker-" + uuid.NewString(),
		done:            make(chan struct{}),
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.store == nil {
		w.store = storage.NoopStore{}
	}
	if w.guard == nil {
		w.guard = dedup.NoopGuard{}
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.prefetchCount <= 0 {
		w.prefetchCount = w.concurrency
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = defaultJobTimeout
	}
	if w.shutdownTimeout <= 0 {
		w.shutdownTimeout = defaultShutdownTimeout
	}
	if w.reconnectDelay <= 0 {
		w.reconnectDelay = defaultReconnectDelay
	}
	if w.now == nil {
		w.now = time.Now
	}

	w.logger = w.logger.With(slog.String("worker_id", w.workerID))
	return w
}

// ID returns the worker's consumer tag
func (w *Worker) ID() string {
	return w.workerID
}

// Stats returns a snapshot of the settlement counters
func (w *Worker) Stats() Stats {
	return Stats{
		Processed: w.stats.processed.Load(),
		Failed:    w.stats.failed.Load(),
		Malformed: w.stats.malformed.Load(),
		Skipped:   w.stats.skipped.Load(),
		Requeued:  w.stats.requeued.Load(),
		Abandoned: w.stats.abandoned.Load(),
	}
}

// Start consumes until ctx is canceled or Stop is called, then drains the
// pool. In-flight jobs get ShutdownTimeout to finish; jobs still running
// after that are canceled and their messages left unacknowledged.
func (w *Worker) Start(ctx context.Context) error {
	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()

	w.mu.Lock()
	w.stopConsume = stopConsume
	w.mu.Unlock()
	defer close(w.done)

	// jobs outlive the shutdown signal until the drain deadline
	jobCtx, abortJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer abortJobs()

	w.logger.Info("Starting worker",
		slog.String("queue", w.queueName),
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch_count", w.prefetchCount),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Bool("redelivery_guard", w.guarded),
	)

	w.jobsChan = make(chan *jobDelivery)
	w.spawnWorkerPool(jobCtx)

	w.runDispatcher(consumeCtx)

	close(w.jobsChan)
	w.drain(abortJobs)

	stats := w.Stats()
	w.logger.Info("Worker stopped",
		slog.Int64("processed", stats.Processed),
		slog.Int64("failed", stats.Failed),
		slog.Int64("malformed", stats.Malformed),
		slog.Int64("skipped", stats.Skipped),
		slog.Int64("requeued", stats.Requeued),
		slog.Int64("abandoned", stats.Abandoned),
	)

	return nil
}

// drain waits for the pool to finish, canceling in-flight jobs once the
// shutdown timeout elapses.
func (w *Worker) drain(abortJobs context.CancelFunc) {
	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(w.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-finished:
		w.logger.Info("Worker pool drained")
	case <-timer.C:
		w.logger.Warn("Shutdown timeout exceeded, canceling in-flight jobs",
			slog.Duration("shutdown_timeout", w.shutdownTimeout),
		)
		abortJobs()
		<-finished
	}
}

// Stop stops consuming and blocks until Start has returned
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")

	w.mu.Lock()
	stop := w.stopConsume
	w.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-w.done
}
