package etl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// FixtureExtractor returns a fixed three-record source set
type FixtureExtractor struct {
	// Delay simulates upstream latency
	Delay time.Duration
}

// FixtureRecords returns the records FixtureExtractor produces
func FixtureRecords() []RawRecord {
	return []RawRecord{
		{ID: 1, Name: "Product A", Value: floatPtr(100), Timestamp: "2024-01-01T10:00:00Z"},
		{ID: 2, Name: "Product B", Value: floatPtr(200), Timestamp: "2024-01-01T10:01:00Z"},
		{ID: 3, Name: "Product C", Value: floatPtr(150), Timestamp: "2024-01-01T10:02:00Z"},
	}
}

func (e *FixtureExtractor) Extract(ctx context.Context, _ Job) ([]RawRecord, error) {
	if err := sleep(ctx, e.Delay); err != nil {
		return nil, err
	}
	return FixtureRecords(), nil
}

// ItemsExtractor reads source records from the items catalog table
type ItemsExtractor struct {
	db    *sqlx.DB
	limit int
}

// NewItemsExtractor creates an extractor over the items table. limit <= 0
// reads the whole table.
func NewItemsExtractor(db *sqlx.DB, limit int) *ItemsExtractor {
	return &ItemsExtractor{db: db, limit: limit}
}

type itemRow struct {
	ID        int64           `db:"id"`
	Name      string          `db:"name"`
	Value     sql.NullFloat64 `db:"value"`
	CreatedAt sql.NullString  `db:"created_at"`
}

func (e *ItemsExtractor) Extract(ctx context.Context, _ Job) ([]RawRecord, error) {
	query := `SELECT id, name, value, CAST(created_at AS TEXT) AS created_at FROM items ORDER BY id`
	args := []any{}
	if e.limit > 0 {
		query += " LIMIT ?"
		args = append(args, e.limit)
	}

	var rows []itemRow
	if err := e.db.SelectContext(ctx, &rows, e.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}

	records := make([]RawRecord, len(rows))
	for i, row := range rows {
		records[i] = RawRecord{ID: row.ID, Name: row.Name, Timestamp: row.CreatedAt.String}
		if row.Value.Valid {
			records[i].Value = floatPtr(row.Value.Float64)
		}
	}
	return records, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
