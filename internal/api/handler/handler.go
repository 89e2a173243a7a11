package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/etl-dispatch/internal/api/domain"
	"github.com/cuongbtq/etl-dispatch/internal/api/dto"
	"github.com/cuongbtq/etl-dispatch/internal/api/model"
	"github.com/cuongbtq/etl-dispatch/internal/api/storage"
	"github.com/cuongbtq/etl-dispatch/internal/payload"
	"github.com/cuongbtq/etl-dispatch/internal/producer"
)

// JobSubmitter publishes jobs. *producer.Producer satisfies it.
type JobSubmitter interface {
	Submit(ctx context.Context, job payload.Object) (*producer.Receipt, error)
}

// ItemLister reads the items catalog. *storage.Storage satisfies it.
type ItemLister interface {
	ListItems(ctx context.Context, filter storage.ItemFilter) ([]model.Item, error)
}

// Dependencies holds all dependencies needed by handlers. Items is nil when
// no store is configured.
type Dependencies struct {
	Logger   *slog.Logger
	Producer JobSubmitter
	Items    ItemLister
}

// JobHandler handles job submission requests
type JobHandler struct {
	logger   *slog.Logger
	producer JobSubmitter
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		producer: deps.Producer,
	}
}

// ItemHandler handles items catalog requests
type ItemHandler struct {
	logger *slog.Logger
	items  ItemLister
}

// NewItemHandler creates a new ItemHandler instance
func NewItemHandler(deps *Dependencies) *ItemHandler {
	return &ItemHandler{
		logger: deps.Logger,
		items:  deps.Items,
	}
}

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: domain.StatusOK})
}

func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, dto.ErrorResponse{
		Status:  domain.StatusError,
		Message: message,
	})
}
