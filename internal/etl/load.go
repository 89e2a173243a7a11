package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// LogLoader is a simulated sink: it logs every record and reports them all
// as committed.
type LogLoader struct {
	logger *slog.Logger
	delay  time.Duration
}

func NewLogLoader(logger *slog.Logger, delay time.Duration) *LogLoader {
	return &LogLoader{logger: logger, delay: delay}
}

func (l *LogLoader) Load(ctx context.Context, job Job, records []EnrichedRecord) (int, error) {
	if err := sleep(ctx, l.delay); err != nil {
		return 0, err
	}

	for _, record := range records {
		l.logger.Debug("Loaded record",
			slog.String("job_name", job.Name),
			slog.Int64("id", record.ID),
			slog.String("name", record.Name),
			slog.Float64("derived_value", record.DerivedValue),
		)
	}
	return len(records), nil
}

// SQLLoader writes records to etl_records one statement per record, so a
// failure leaves the earlier rows committed.
type SQLLoader struct {
	db *sqlx.DB
}

func NewSQLLoader(db *sqlx.DB) *SQLLoader {
	return &SQLLoader{db: db}
}

// RecordsSchema creates the etl_records table
const RecordsSchema = `
CREATE TABLE IF NOT EXISTS etl_records (
	job_name        TEXT NOT NULL,
	record_id       BIGINT NOT NULL,
	name            TEXT NOT NULL,
	value           DOUBLE PRECISION NOT NULL,
	derived_value   DOUBLE PRECISION NOT NULL,
	source_ts       TEXT NOT NULL,
	processed_at    TEXT NOT NULL,
	processing_date TEXT NOT NULL
)`

type recordRow struct {
	JobName        string  `db:"job_name"`
	RecordID       int64   `db:"record_id"`
	Name           string  `db:"name"`
	Value          float64 `db:"value"`
	DerivedValue   float64 `db:"derived_value"`
	SourceTS       string  `db:"source_ts"`
	ProcessedAt    string  `db:"processed_at"`
	ProcessingDate string  `db:"processing_date"`
}

const insertRecordQuery = `
	INSERT INTO etl_records (
		job_name, record_id, name, value, derived_value,
		source_ts, processed_at, processing_date
	) VALUES (
		:job_name, :record_id, :name, :value, :derived_value,
		:source_ts, :processed_at, :processing_date
	)`

func (l *SQLLoader) Load(ctx context.Context, job Job, records []EnrichedRecord) (int, error) {
	committed := 0
	for _, record := range records {
		row := recordRow{
			JobName:        job.Name,
			RecordID:       record.ID,
			Name:           record.Name,
			DerivedValue:   record.DerivedValue,
			SourceTS:       record.Timestamp,
			ProcessedAt:    record.ProcessedAt,
			ProcessingDate: record.ProcessingDate,
		}
		if record.Value != nil {
			row.Value = *record.Value
		}

		if _, err := l.db.NamedExecContext(ctx, insertRecordQuery, row); err != nil {
			return committed, fmt.Errorf("failed to insert record %d: %w", record.ID, err)
		}
		committed++
	}
	return committed, nil
}
