package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"github.com/ledgerline/ledgerlog/internal/pkg/logger"
	"github.com/ledgerline/ledgerlog/internal/pkg/metrics"
	"github.com/ledgerline/ledgerlog/internal/repository"
)

const DefaultCleanupDays = 30

// ResponseSink is where HandleError writes the user-visible failure.
type ResponseSink interface {
	// Written reports whether headers have already gone out.
	Written() bool
	WriteJSON(status int, body any)
}

type ErrorPayload struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
	Stack     string `json:"stack,omitempty"`
}

type ErrorBody struct {
	Success bool         `json:"success"`
	Error   ErrorPayload `json:"error"`
}

var genericMessages = map[int]string{
	http.StatusBadRequest:          "Bad request",
	http.StatusUnauthorized:        "Authentication required",
	http.StatusForbidden:           "Access denied",
	http.StatusNotFound:            "Resource not found",
	http.StatusUnprocessableEntity: "Invalid input data",
	http.StatusTooManyRequests:     "Too many requests",
	http.StatusInternalServerError: "Internal server error",
	http.StatusBadGateway:          "Bad gateway",
	http.StatusServiceUnavailable:  "Service temporarily unavailable",
}

// ErrorService is the single funnel for application errors: it logs them, watches the
// per-endpoint error rate and shapes the response.
type ErrorService struct {
	logging    *LoggingService
	store      LogStore
	window     RateWindow
	clock      clockwork.Clock
	production bool

	threshold float64
	span      time.Duration
	cooldown  time.Duration

	mu          sync.Mutex
	lastAlerted map[string]time.Time
}

func NewErrorService(cfg *config.Config, logging *LoggingService, store LogStore, window RateWindow, clock clockwork.Clock) *ErrorService {
	if window == nil {
		window = NewMemoryRateWindow()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	span := time.Duration(cfg.Alerts.WindowSeconds) * time.Second
	if span <= 0 {
		span = 5 * time.Minute
	}
	return &ErrorService{
		logging:     logging,
		store:       store,
		window:      window,
		clock:       clock,
		production:  cfg.Server.IsProduction(),
		threshold:   cfg.Alerts.ErrorRateThreshold,
		span:        span,
		cooldown:    time.Duration(cfg.Alerts.CooldownSeconds) * time.Second,
		lastAlerted: make(map[string]time.Time),
	}
}

// HandleError logs err, checks the endpoint's error rate and writes the response. It
// returns false without writing when sink is nil or the response already went out.
func (s *ErrorService) HandleError(ctx context.Context, err error, req *RequestContext, sink ResponseSink, extra map[string]any) bool {
	if err == nil {
		return false
	}
	if req == nil {
		req = &RequestContext{}
	}

	rec := s.logging.LogError(err, req, extra)
	s.CheckErrorRate(ctx, req)

	if sink == nil || sink.Written() {
		return false
	}
	requestID := req.RequestID
	if requestID == "" && rec != nil {
		requestID = rec.RequestID
	}
	status, body := s.BuildResponse(err, requestID)
	sink.WriteJSON(status, body)
	return true
}

// BuildResponse maps err to the status and body a client sees. Outside development the
// message is a fixed phrase per status and no stack is included.
func (s *ErrorService) BuildResponse(err error, requestID string) (int, ErrorBody) {
	appErr := apperrors.Wrap(err)
	kind, status, _ := Classify(err)
	code := appErr.Code
	if code == "" {
		code = string(kind)
	}

	payload := ErrorPayload{
		Code:      code,
		Timestamp: s.clock.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	}
	if s.production {
		payload.Message = GenericMessage(status)
	} else {
		payload.Message = appErr.Message
		if payload.Message == "" {
			payload.Message = err.Error()
		}
		payload.Stack = appErr.Stack
	}
	return status, ErrorBody{Success: false, Error: payload}
}

func GenericMessage(status int) string {
	if msg, ok := genericMessages[status]; ok {
		return msg
	}
	return "An error occurred"
}

// CheckErrorRate records one error for the request's endpoint and raises an alert when
// the rate over the window exceeds the threshold. Alerts for one endpoint are spaced by
// the cooldown.
func (s *ErrorService) CheckErrorRate(ctx context.Context, req *RequestContext) bool {
	if s.threshold <= 0 || req == nil {
		return false
	}
	endpoint := req.Path
	if endpoint == "" {
		endpoint = "unknown"
	}
	now := s.clock.Now()

	count, err := s.window.Record(ctx, endpoint, now, s.span)
	if err != nil {
		logger.LogError(ctx, err, "error-rate window unavailable", "endpoint", endpoint)
		return false
	}
	rate := float64(count) / s.span.Seconds()
	if rate <= s.threshold {
		return false
	}

	s.mu.Lock()
	last, seen := s.lastAlerted[endpoint]
	if seen && s.cooldown > 0 && now.Sub(last) < s.cooldown {
		s.mu.Unlock()
		return false
	}
	s.lastAlerted[endpoint] = now
	s.mu.Unlock()

	metrics.ErrorRateAlerts.WithLabelValues(endpoint).Inc()
	logger.Warn("high error rate",
		"endpoint", endpoint,
		"errors", count,
		"window_seconds", s.span.Seconds(),
		"rate", rate,
		"threshold", s.threshold,
	)
	alert := apperrors.New(apperrors.ErrSystem, apperrors.NameRateAlert,
		fmt.Sprintf("High error rate on %s: %d errors in %s", endpoint, count, s.span),
		http.StatusInternalServerError, nil)
	s.logging.LogError(alert, req, map[string]any{
		"endpoint":      endpoint,
		"errorCount":    count,
		"windowSeconds": s.span.Seconds(),
		"rate":          rate,
		"threshold":     s.threshold,
	})
	return true
}

func (s *ErrorService) MarkErrorAsResolved(ctx context.Context, id, resolvedBy, notes string) (*model.ErrorLog, error) {
	rec, err := s.store.MarkResolved(ctx, id, resolvedBy, notes)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("Error log not found")
	}
	if err != nil {
		return nil, apperrors.NewDatabase("failed to resolve error log", err)
	}
	return rec, nil
}

func (s *ErrorService) GetUnresolvedErrors(ctx context.Context, f model.ErrorLogFilter, p model.Page) ([]model.ErrorLog, error) {
	return s.store.UnresolvedErrors(ctx, f, p)
}

func (s *ErrorService) GetErrorTrends(ctx context.Context, r model.TimeRange) ([]model.ErrorTrend, error) {
	return s.store.ErrorTrends(ctx, r)
}

// CleanupOldResolvedErrors hard-deletes resolved errors older than daysOld (30 when unset).
func (s *ErrorService) CleanupOldResolvedErrors(ctx context.Context, daysOld int) (int64, error) {
	if daysOld <= 0 {
		daysOld = DefaultCleanupDays
	}
	cutoff := s.clock.Now().UTC().AddDate(0, 0, -daysOld)
	n, err := s.store.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	logger.Info("resolved errors cleaned up", "deleted", n, "days_old", daysOld)
	return n, nil
}
