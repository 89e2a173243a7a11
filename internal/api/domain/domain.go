package domain

import (
	"errors"
)

const (
	StatusOK     = "ok"
	StatusError  = "error"
	StatusQueued = "queued"

	NoteStoreNotConfigured = "store not configured"
)

const (
	DefaultItemsPageSize = 10
	MaxItemsPageSize     = 100
)

var (
	ErrInvalidCursor  = errors.New("invalid cursor")
	ErrInvalidPayload = errors.New("request body must be a JSON object")
)
