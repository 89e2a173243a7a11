package model

// Item is a row of the items catalog
type Item struct {
	ID        int64    `db:"id"`
	Name      string   `db:"name"`
	Value     *float64 `db:"value"`
	CreatedAt string   `db:"created_at"`
}
