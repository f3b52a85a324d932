package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerlog/internal/middleware"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"github.com/ledgerline/ledgerlog/internal/service"
)

// FrontendHandler accepts batches uploaded by client-side capture.
type FrontendHandler struct {
	logging *service.LoggingService
}

func NewFrontendHandler(logging *service.LoggingService) *FrontendHandler {
	return &FrontendHandler{logging: logging}
}

// Register mounts the ingestion route; limits run before the handler.
func (h *FrontendHandler) Register(r gin.IRoutes, limits ...gin.HandlerFunc) {
	r.POST("/frontend", append(limits, h.Ingest)...)
}

func (h *FrontendHandler) Ingest(c *gin.Context) {
	var batch model.FrontendLogBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		_ = c.Error(err)
		return
	}
	n, err := h.logging.IngestFrontendLogs(c.Request.Context(), batch, middleware.RequestContext(c))
	if err != nil {
		_ = c.Error(apperrors.NewInternal("Failed to process frontend logs", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Frontend logs processed successfully",
		"count":   n,
	})
}
