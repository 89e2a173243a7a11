package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuongbtq/etl-dispatch/internal/api/domain"
)

const itemCursorPrefix = "item|"

// DecodeItemCursor returns the id after which the next page starts. An
// empty cursor means the first page.
func DecodeItemCursor(cursorStr string) (*int64, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}

	raw, ok := strings.CutPrefix(string(decoded), itemCursorPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: unknown format", domain.ErrInvalidCursor)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad item id: %v", domain.ErrInvalidCursor, err)
	}

	return &id, nil
}

func EncodeItemCursor(lastID int64) string {
	return base64.URLEncoding.EncodeToString([]byte(itemCursorPrefix + strconv.FormatInt(lastID, 10)))
}
