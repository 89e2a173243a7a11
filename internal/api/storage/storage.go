package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/etl-dispatch/internal/api/model"
	"github.com/cuongbtq/etl-dispatch/shared/sqldb"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(client *sqldb.Client) *Storage {
	return &Storage{
		db: client.GetDB(),
	}
}

type ItemFilter struct {
	PageSize int
	AfterID  *int64
}

// ListItems returns up to PageSize+1 items ordered by id. The extra row
// tells the caller whether another page exists.
func (s *Storage) ListItems(ctx context.Context, filter ItemFilter) ([]model.Item, error) {
	query := `
		SELECT id, name, value, CAST(created_at AS TEXT) AS created_at
		FROM items
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.AfterID != nil {
		query += " AND id > ?"
		args = append(args, *filter.AfterID)
	}

	query += " ORDER BY id LIMIT ?"
	args = append(args, filter.PageSize+1)

	var items []model.Item
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	return items, nil
}
