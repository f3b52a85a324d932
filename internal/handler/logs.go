package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"github.com/ledgerline/ledgerlog/internal/service"
)

// LogHandler serves the read side of the log store plus error resolution.
type LogHandler struct {
	logging *service.LoggingService
	errs    *service.ErrorService
}

func NewLogHandler(logging *service.LoggingService, errs *service.ErrorService) *LogHandler {
	return &LogHandler{logging: logging, errs: errs}
}

func (h *LogHandler) Register(r gin.IRoutes) {
	r.GET("/api", h.ListAPI)
	r.GET("/errors", h.ListErrors)
	r.GET("/errors/unresolved", h.Unresolved)
	r.GET("/errors/trends", h.Trends)
	r.PUT("/errors/:errorId/resolve", h.Resolve)
	r.DELETE("/errors/cleanup", h.Cleanup)
	r.GET("/activities", h.ListActivities)
	r.GET("/activities/stats", h.ActivityStats)
	r.GET("/frontend", h.ListFrontend)
	r.GET("/stats", h.Stats)
	r.GET("/performance", h.Performance)
	r.GET("/sessions", h.Sessions)
}

func queryFailed(err error) error {
	return apperrors.NewDatabase("failed to query logs", err)
}

func (h *LogHandler) ListAPI(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	p := parsePage(c)
	f := model.APILogFilter{
		TimeRange: r,
		Username:  c.Query("username"),
		Endpoint:  c.Query("endpoint"),
		Method:    c.Query("method"),
		SessionID: c.Query("sessionId"),
		Status:    intQuery(c, "status"),
		Success:   boolQuery(c, "success"),
	}
	recs, err := h.logging.GetAPILogs(c.Request.Context(), f, p)
	if err != nil {
		_ = c.Error(queryFailed(err))
		return
	}
	c.JSON(http.StatusOK, listResponse(recs, p))
}

func errorFilter(c *gin.Context, r model.TimeRange) model.ErrorLogFilter {
	return model.ErrorLogFilter{
		TimeRange: r,
		Username:  c.Query("username"),
		Endpoint:  c.Query("endpoint"),
		SessionID: c.Query("sessionId"),
		ErrorType: c.Query("errorType"),
		Severity:  c.Query("severity"),
		Resolved:  boolQuery(c, "resolved"),
	}
}

func (h *LogHandler) ListErrors(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	p := parsePage(c)
	recs, err := h.logging.GetErrorLogs(c.Request.Context(), errorFilter(c, r), p)
	if err != nil {
		_ = c.Error(queryFailed(err))
		return
	}
	c.JSON(http.StatusOK, listResponse(recs, p))
}

func (h *LogHandler) Unresolved(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	p := parsePage(c)
	recs, err := h.errs.GetUnresolvedErrors(c.Request.Context(), errorFilter(c, r), p)
	if err != nil {
		_ = c.Error(queryFailed(err))
		return
	}
	c.JSON(http.StatusOK, listResponse(recs, p))
}

func (h *LogHandler) Trends(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	trends, err := h.errs.GetErrorTrends(c.Request.Context(), r)
	if err != nil {
		_ = c.Error(queryFailed(err))
		return
	}
	if trends == nil {
		trends = []model.ErrorTrend{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": trends})
}

type resolveRequest struct {
	ResolvedBy string `json:"resolvedBy"`
	Notes      string `json:"notes"`
}

func (h *LogHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	if req.ResolvedBy == "" {
		_ = c.Error(apperrors.NewBadRequest("resolvedBy is required", nil))
		return
	}
	rec, err := h.errs.MarkErrorAsResolved(c.Request.Context(), c.Param("errorId"), req.ResolvedBy, req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Error marked as resolved", "data": rec})
}

func (h *LogHandler) Cleanup(c *gin.Context) {
	days := service.DefaultCleanupDays
	if raw := c.Query("daysOld"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			_ = c.Error(apperrors.NewBadRequest("daysOld must be a positive integer", err))
			return
		}
		days = n
	}
	n, err := h.errs.CleanupOldResolvedErrors(c.Request.Context(), days)
	if err != nil {
		_ = c.Error(apperrors.NewDatabase("failed to clean up resolved errors", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deletedCount": n, "daysOld": days})
}

func (h *LogHandler) ListActivities(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	p := parsePage(c)
	f := model.ActivityFilter{
		TimeRange: r,
		Username:  c.Query("username"),
		SessionID: c.Query("sessionId"),
		Activity:  c.Query("activity"),
		Success:   boolQuery(c, "success"),
	}
	recs, err := h.logging.GetUserActivities(c.Request.Context(), f, p)
	if err != nil {
		_ = c.Error(queryFailed(err))
		return
	}
	c.JSON(http.StatusOK, listResponse(recs, p))
}

func (h *LogHandler) ActivityStats(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	report, err := h.logging.GetActivityStats(c.Request.Context(), r)
	if err != nil {
		_ = c.Error(queryFailed(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

func (h *LogHandler) ListFrontend(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	p := parsePage(c)
	f := model.FrontendLogFilter{
		TimeRange: r,
		Type:      c.Query("type"),
		Username:  c.Query("username"),
		SessionID: c.Query("sessionId"),
	}
	recs, err := h.logging.GetFrontendLogs(c.Request.Context(), f, p)
	if err != nil {
		_ = c.Error(queryFailed(err))
		return
	}
	c.JSON(http.StatusOK, listResponse(recs, p))
}

func (h *LogHandler) Stats(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	st, err := h.logging.GetLoggingStats(c.Request.Context(), r)
	if err != nil {
		_ = c.Error(queryFailed(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": st})
}

func (h *LogHandler) Performance(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	report, err := h.logging.GetPerformanceStats(c.Request.Context(), r)
	if err != nil {
		_ = c.Error(queryFailed(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

func (h *LogHandler) Sessions(c *gin.Context) {
	sessions := h.logging.GetSessions(c.Query("username"))
	if sessions == nil {
		sessions = []model.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sessions, "count": len(sessions)})
}
