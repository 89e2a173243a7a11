package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/etl-dispatch/internal/etl"
	"github.com/cuongbtq/etl-dispatch/internal/payload"
	"github.com/cuongbtq/etl-dispatch/internal/worker/domain"
)

// ResultStore persists run records. Persist failures are reported to the
// caller but must never fail job processing.
type ResultStore interface {
	Persist(ctx context.Context, record *domain.RunRecord) error
}

// NoopStore is used when no result store is configured
type NoopStore struct{}

func (NoopStore) Persist(context.Context, *domain.RunRecord) error {
	return nil
}

// Storage writes run records to the etl_runs table
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates etl_runs when missing. Postgres stores the JSON
// columns as JSONB.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	jsonType := "TEXT"
	if s.db.DriverName() == "postgres" {
		jsonType = "JSONB"
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS etl_runs (
			job_name   TEXT NOT NULL,
			payload    %[1]s NOT NULL,
			result     %[1]s NOT NULL,
			created_at BIGINT NOT NULL
		)`, jsonType)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create etl_runs table: %w", err)
	}
	return nil
}

type runRow struct {
	JobName   string `db:"job_name"`
	Payload   string `db:"payload"`
	Result    string `db:"result"`
	CreatedAt int64  `db:"created_at"`
}

// Persist inserts record as a single row. The insert is one statement, so
// concurrent workers never interleave partial writes.
func (s *Storage) Persist(ctx context.Context, record *domain.RunRecord) error {
	payloadJSON, err := payload.Encode(record.Payload)
	if err != nil {
		return &domain.PersistenceError{JobName: record.JobName, Err: err}
	}

	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return &domain.PersistenceError{JobName: record.JobName, Err: fmt.Errorf("failed to marshal result: %w", err)}
	}

	query := `
		INSERT INTO etl_runs (job_name, payload, result, created_at)
		VALUES (:job_name, :payload, :result, :created_at)
	`

	row := runRow{
		JobName:   record.JobName,
		Payload:   string(payloadJSON),
		Result:    string(resultJSON),
		CreatedAt: record.CreatedAt,
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return &domain.PersistenceError{JobName: record.JobName, Err: err}
	}

	s.logger.Info("Run record persisted",
		slog.String("job_name", record.JobName),
		slog.Int64("created_at", record.CreatedAt),
	)

	return nil
}

// Recent returns the newest run records, newest first
func (s *Storage) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	query := s.db.Rebind(`
		SELECT job_name, CAST(payload AS TEXT) AS payload, CAST(result AS TEXT) AS result, created_at
		FROM etl_runs
		ORDER BY created_at DESC
		LIMIT ?
	`)

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}

	records := make([]domain.RunRecord, 0, len(rows))
	for _, row := range rows {
		p, err := payload.Decode([]byte(row.Payload))
		if err != nil {
			return nil, fmt.Errorf("run record %q: %w", row.JobName, err)
		}

		var result etl.RunSummary
		if err := json.Unmarshal([]byte(row.Result), &result); err != nil {
			return nil, fmt.Errorf("run record %q: failed to decode result: %w", row.JobName, err)
		}

		records = append(records, domain.RunRecord{
			JobName:   row.JobName,
			Payload:   p,
			Result:    &result,
			CreatedAt: row.CreatedAt,
		})
	}

	return records, nil
}
