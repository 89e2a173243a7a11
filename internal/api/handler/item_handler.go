package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/etl-dispatch/internal/api/domain"
	"github.com/cuongbtq/etl-dispatch/internal/api/dto"
	"github.com/cuongbtq/etl-dispatch/internal/api/storage"
)

// ListItems handles GET /items
// Lists catalog items, 10 per page unless page_size says otherwise
func (h *ItemHandler) ListItems(c *gin.Context) {
	if h.items == nil {
		c.JSON(http.StatusOK, dto.ListItemsResponse{
			Items: []dto.ItemDTO{},
			Note:  domain.NoteStoreNotConfigured,
		})
		return
	}

	var req dto.ListItemsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.Any("error", err))
		errorResponse(c, http.StatusBadRequest, "invalid query parameters")
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = domain.DefaultItemsPageSize
	}
	if req.PageSize > domain.MaxItemsPageSize {
		req.PageSize = domain.MaxItemsPageSize
	}

	afterID, err := DecodeItemCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.Any("error", err))
		errorResponse(c, http.StatusBadRequest, domain.ErrInvalidCursor.Error())
		return
	}

	items, err := h.items.ListItems(c.Request.Context(), storage.ItemFilter{
		PageSize: req.PageSize,
		AfterID:  afterID,
	})
	if err != nil {
		h.logger.Error("Failed to list items", slog.Any("error", err))
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	hasMore := len(items) > req.PageSize
	if hasMore {
		items = items[:req.PageSize]
	}

	resp := dto.ListItemsResponse{Items: make([]dto.ItemDTO, len(items))}
	for i, item := range items {
		resp.Items[i] = dto.ItemDTO{
			ID:        item.ID,
			Name:      item.Name,
			Value:     item.Value,
			CreatedAt: item.CreatedAt,
		}
	}
	if hasMore {
		resp.NextCursor = EncodeItemCursor(items[len(items)-1].ID)
	}

	c.JSON(http.StatusOK, resp)
}
