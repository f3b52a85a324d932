package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"github.com/ledgerline/ledgerlog/internal/service"
)

type ExportHandler struct {
	logging *service.LoggingService
}

func NewExportHandler(logging *service.LoggingService) *ExportHandler {
	return &ExportHandler{logging: logging}
}

func (h *ExportHandler) Register(r gin.IRoutes) {
	r.GET("/export/:type", h.Export)
}

// Export streams api, errors or activities records as CSV or JSON attachments.
func (h *ExportHandler) Export(c *gin.Context) {
	t, ok := service.ParseExportType(c.Param("type"))
	if !ok {
		_ = c.Error(apperrors.NewBadRequest(fmt.Sprintf("Invalid export type %q, expected api, errors or activities", c.Param("type")), nil))
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "csv" {
		_ = c.Error(apperrors.NewBadRequest("format must be csv or json", nil))
		return
	}
	r, err := parseRange(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	recs, err := h.logging.CollectExport(c.Request.Context(), t, r)
	if err != nil {
		_ = c.Error(apperrors.NewDatabase("failed to export logs", err))
		return
	}

	var buf bytes.Buffer
	contentType := "application/json"
	if format == "csv" {
		contentType = "text/csv; charset=utf-8"
		err = service.WriteCSV(&buf, recs)
	} else {
		err = service.WriteJSON(&buf, recs)
	}
	if err != nil {
		_ = c.Error(apperrors.NewInternal("failed to encode export", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportFilename(t, r, format)))
	c.Header("X-Export-Count", fmt.Sprint(len(recs)))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func exportFilename(t service.ExportType, r model.TimeRange, ext string) string {
	return fmt.Sprintf("%s-logs-%s-to-%s.%s", t, rangeLabel(r.From, "start"), rangeLabel(r.To, "now"), ext)
}

func rangeLabel(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return t.UTC().Format(time.DateOnly)
}
