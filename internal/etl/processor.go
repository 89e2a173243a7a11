package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cuongbtq/etl-dispatch/internal/payload"
)

const processingDateLayout = "2006-01-02"

// Options configures a Processor
type Options struct {
	Extractor        Extractor
	Loader           Loader
	ConversionFactor float64
	DefaultJobName   string
	// ProcessingDate is used when the job request carries none. Empty
	// means the current date.
	ProcessingDate string
	Logger         *slog.Logger
	Now            func() time.Time
}

// Processor is the default in-process Pipeline. It holds no per-job state,
// so one instance serves concurrent workers.
type Processor struct {
	extractor      Extractor
	loader         Loader
	factor         float64
	defaultJobName string
	processingDate string
	logger         *slog.Logger
	now            func() time.Time
}

// NewProcessor creates a Processor; nil collaborators fall back to the
// fixture extractor and the logging loader.
func NewProcessor(opts Options) *Processor {
	p := &Processor{
		extractor:      opts.Extractor,
		loader:         opts.Loader,
		factor:         opts.ConversionFactor,
		defaultJobName: opts.DefaultJobName,
		processingDate: opts.ProcessingDate,
		logger:         opts.Logger,
		now:            opts.Now,
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.extractor == nil {
		p.extractor = &FixtureExtractor{}
	}
	if p.loader == nil {
		p.loader = NewLogLoader(p.logger, 0)
	}
	if p.factor == 0 {
		p.factor = 1.1
	}
	if p.defaultJobName == "" {
		p.defaultJobName = "worker-job"
	}
	if p.now == nil {
		p.now = time.Now
	}

	return p
}

// Run executes Extract, Transform and Load in order. A load failure still
// returns a summary whose RecordsProcessed counts the committed records.
func (p *Processor) Run(ctx context.Context, req *payload.JobRequest) (*RunSummary, error) {
	job := p.resolveJob(req)
	logger := p.logger.With(slog.String("job_name", job.Name))

	start := p.now()
	logger.Info("Starting ETL job",
		slog.String("processing_date", job.ProcessingDate),
	)

	raw, err := p.extract(ctx, logger, job)
	if err != nil {
		return nil, p.fail(logger, StageExtract, err)
	}

	enriched, err := p.transform(ctx, logger, job, raw)
	if err != nil {
		return nil, p.fail(logger, StageTransform, err)
	}

	committed, loadErr := p.load(ctx, logger, job, enriched)

	summary := &RunSummary{
		Status:               StatusSuccess,
		RecordsProcessed:     committed,
		JobName:              job.Name,
		ProcessingDate:       job.ProcessingDate,
		CompletedAt:          p.now().Format(time.RFC3339Nano),
		ExecutionTimeSeconds: roundSeconds(p.now().Sub(start)),
	}

	if loadErr != nil {
		summary.Status = StatusFailed
		return summary, p.fail(logger, StageLoad, loadErr)
	}

	logger.Info("ETL job completed successfully",
		slog.Int("records_processed", summary.RecordsProcessed),
		slog.Float64("execution_time_seconds", summary.ExecutionTimeSeconds),
	)

	return summary, nil
}

func (p *Processor) resolveJob(req *payload.JobRequest) Job {
	job := Job{Name: p.defaultJobName, ProcessingDate: p.processingDate}
	if req != nil {
		if req.JobName != "" {
			job.Name = req.JobName
		}
		if req.ProcessingDate != "" {
			job.ProcessingDate = req.ProcessingDate
		}
	}
	if job.ProcessingDate == "" {
		job.ProcessingDate = p.now().Format(processingDateLayout)
	}
	return job
}

func (p *Processor) extract(ctx context.Context, logger *slog.Logger, job Job) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("Starting data extraction")
	start := p.now()

	records, err := p.extractor.Extract(ctx, job)
	if err != nil {
		return nil, wrapSentinel(ErrExtraction, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: source returned no records", ErrExtraction)
	}

	logger.Info("Extracted records",
		slog.Int("records", len(records)),
		slog.Duration("duration", p.now().Sub(start)),
	)
	return records, nil
}

func (p *Processor) transform(ctx context.Context, logger *slog.Logger, job Job, raw []RawRecord) ([]EnrichedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("Starting data transformation")
	start := p.now()

	enriched, err := Transform(raw, job, p.factor, start)
	if err != nil {
		return nil, err
	}

	logger.Info("Transformed records",
		slog.Int("records", len(enriched)),
		slog.Float64("conversion_factor", p.factor),
		slog.Duration("duration", p.now().Sub(start)),
	)
	return enriched, nil
}

func (p *Processor) load(ctx context.Context, logger *slog.Logger, job Job, records []EnrichedRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	logger.Info("Starting data loading")
	start := p.now()

	committed, err := p.loader.Load(ctx, job, records)
	committed = max(0, min(committed, len(records)))
	if err != nil {
		return committed, wrapSentinel(ErrLoad, err)
	}

	logger.Info("Loaded records",
		slog.Int("records", committed),
		slog.Duration("duration", p.now().Sub(start)),
	)
	return committed, nil
}

func (p *Processor) fail(logger *slog.Logger, stage Stage, err error) error {
	logger.Error("ETL job failed",
		slog.String("stage", string(stage)),
		slog.Any("error", err),
	)
	return &StageError{Stage: stage, Err: err}
}

// wrapSentinel tags err with sentinel unless it already carries it or is a
// context error.
func wrapSentinel(sentinel, err error) error {
	if errors.Is(err, sentinel) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
