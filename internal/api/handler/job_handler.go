package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/etl-dispatch/internal/api/domain"
	"github.com/cuongbtq/etl-dispatch/internal/api/dto"
	"github.com/cuongbtq/etl-dispatch/internal/payload"
	"github.com/cuongbtq/etl-dispatch/internal/producer"
)

// SubmitJob handles POST /jobs
// Publishes the request body as a job on the configured queue
func (h *JobHandler) SubmitJob(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.logger.Error("Failed to read request body", slog.Any("error", err))
		errorResponse(c, http.StatusBadRequest, domain.ErrInvalidPayload.Error())
		return
	}

	job, err := payload.Decode(body)
	if err != nil {
		h.logger.Warn("Invalid job payload", slog.Any("error", err))
		errorResponse(c, http.StatusBadRequest, domain.ErrInvalidPayload.Error())
		return
	}

	receipt, err := h.producer.Submit(c.Request.Context(), job)
	if err != nil {
		if errors.Is(err, producer.ErrQueueNotConfigured) {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}

		h.logger.Error("Failed to queue job", slog.Any("error", err))
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, dto.JobQueuedResponse{
		Status: receipt.Status,
		Queue:  receipt.Queue,
	})
}
