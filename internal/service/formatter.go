package service

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"github.com/ledgerline/ledgerlog/internal/pkg/sanitize"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequestContext is what the capture layer knows about an inbound request.
type RequestContext struct {
	Method    string
	Path      string
	URL       string
	Headers   http.Header
	Body      []byte
	ClientIP  string
	UserAgent string
	RequestID string
	SessionID string
}

type ResponseContext struct {
	Status  int
	Headers http.Header
	Body    []byte
	// Err is set when the handler reported an error for this response.
	Err error
}

// Formatter turns captured events into records. Every free-text, body and header field
// passes through the sanitizer before it lands on a record.
type Formatter struct {
	san         *sanitize.Sanitizer
	environment string
	clock       clockwork.Clock
}

func NewFormatter(san *sanitize.Sanitizer, environment string, clock clockwork.Clock) *Formatter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Formatter{san: san, environment: environment, clock: clock}
}

func (f *Formatter) Sanitizer() *sanitize.Sanitizer { return f.san }

func (f *Formatter) base(req *RequestContext, override model.Identity) model.LogBase {
	id := override
	if req != nil {
		id = id.Merge(ExtractIdentity(req.Headers.Get("Authorization")))
		id = id.Merge(model.Identity{SessionID: req.SessionID})
	}
	b := model.LogBase{
		ID:        uuid.NewString(),
		SessionID: id.SessionID,
		Username:  id.Username,
		UserType:  id.UserType,
		Timestamp: f.clock.Now().UTC(),
	}
	if req != nil {
		b.RequestID = req.RequestID
	}
	if b.RequestID == "" {
		b.RequestID = uuid.NewString()
	}
	return b
}

func (f *Formatter) FormatAPILog(req *RequestContext, resp *ResponseContext, elapsed time.Duration, override model.Identity) *model.APILog {
	if req == nil {
		req = &RequestContext{}
	}
	if resp == nil {
		resp = &ResponseContext{}
	}
	rec := &model.APILog{
		LogBase:         f.base(req, override),
		Method:          strings.ToUpper(req.Method),
		Endpoint:        req.Path,
		URL:             req.URL,
		UserAgent:       f.san.SanitizeUserAgent(req.UserAgent),
		IPAddress:       f.san.SanitizeIP(req.ClientIP),
		RequestHeaders:  f.jsonValue(f.san.SanitizeHeaders(req.Headers)),
		RequestPayload:  f.san.SanitizeRequestPayload(req.Body),
		ResponseStatus:  resp.Status,
		ResponseHeaders: f.jsonValue(f.san.SanitizeHeaders(resp.Headers)),
		ResponsePayload: f.san.SanitizeResponsePayload(resp.Body),
		ResponseTime:    elapsed.Milliseconds(),
		Success:         model.IsSuccessStatus(resp.Status),
	}
	if resp.Err != nil {
		kind, status, _ := Classify(resp.Err)
		rec.ErrorDetails = f.jsonValue(map[string]any{
			"message":   resp.Err.Error(),
			"errorType": kind,
			"status":    status,
		})
	}
	return rec
}

func (f *Formatter) FormatErrorLog(err error, req *RequestContext, extra map[string]any) *model.ErrorLog {
	if err == nil {
		return nil
	}
	if req == nil {
		req = &RequestContext{}
	}
	appErr := apperrors.Wrap(err)
	kind, status, severity := Classify(err)
	code := appErr.Code
	if code == "" {
		code = string(kind)
	}
	rec := &model.ErrorLog{
		LogBase:        f.base(req, model.Identity{}),
		ErrorType:      kind,
		ErrorCode:      code,
		ErrorName:      appErr.Name,
		ErrorMessage:   f.san.TruncatePayload(err.Error()),
		StackTrace:     appErr.Stack,
		Endpoint:       req.Path,
		Method:         strings.ToUpper(req.Method),
		StatusCode:     status,
		RequestPayload: f.san.SanitizeRequestPayload(req.Body),
		Severity:       severity,
		Environment:    f.environment,
	}
	if len(extra) > 0 {
		rec.AdditionalContext = f.jsonValue(f.san.Sanitize(extra))
	}
	return rec
}

// FormatUserActivity lifts success, duration, resourceId and resourceType out of metadata
// when the caller put them there.
func (f *Formatter) FormatUserActivity(activity model.Activity, description string, req *RequestContext, metadata map[string]any) *model.UserActivity {
	if req == nil {
		req = &RequestContext{}
	}
	rec := &model.UserActivity{
		LogBase:     f.base(req, model.Identity{}),
		Activity:    activity,
		Description: description,
		IPAddress:   f.san.SanitizeIP(req.ClientIP),
		UserAgent:   f.san.SanitizeUserAgent(req.UserAgent),
		Success:     true,
	}
	if metadata == nil {
		return rec
	}
	if v, ok := metadata["success"].(bool); ok {
		rec.Success = v
	}
	switch d := metadata["duration"].(type) {
	case int64:
		rec.Duration = &d
	case int:
		ms := int64(d)
		rec.Duration = &ms
	case float64:
		ms := int64(d)
		rec.Duration = &ms
	case time.Duration:
		ms := d.Milliseconds()
		rec.Duration = &ms
	}
	if v, ok := metadata["resourceId"].(string); ok {
		rec.ResourceID = v
	}
	if v, ok := metadata["resourceType"].(string); ok {
		rec.ResourceType = v
	}
	if id, ok := metadata["identity"].(model.Identity); ok {
		rec.Username = firstNonEmpty(id.Username, rec.Username)
		rec.UserType = firstNonEmpty(id.UserType, rec.UserType)
		rec.SessionID = firstNonEmpty(id.SessionID, rec.SessionID)
	}
	rest := make(map[string]any, len(metadata))
	for k, v := range metadata {
		switch k {
		case "success", "duration", "resourceId", "resourceType", "identity":
			continue
		}
		rest[k] = v
	}
	if len(rest) > 0 {
		rec.Metadata = f.jsonValue(f.san.Sanitize(rest))
	}
	return rec
}

func (f *Formatter) jsonValue(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(sanitize.Unserializable)
	}
	return datatypes.JSON(b)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Classify maps err onto the error taxonomy, the HTTP status it should produce and a
// severity. An explicit AppError kind wins; otherwise rules are tried in order.
func Classify(err error) (apperrors.ErrorType, int, model.Severity) {
	appErr := apperrors.Wrap(err)
	status := appErr.HTTPStatus

	kind := appErr.Kind
	if kind == "" {
		kind = inferKind(err, appErr.Name, status)
	}
	if status == 0 {
		status = statusForKind(kind)
	}
	return kind, status, severityFor(kind, status)
}

func inferKind(err error, name string, status int) apperrors.ErrorType {
	msg := strings.ToLower(err.Error())
	switch {
	case name == apperrors.NameValidation || strings.Contains(msg, "validation"):
		return apperrors.ErrValidation
	case status == http.StatusUnauthorized || name == apperrors.NameUnauthorized || isTokenError(err, msg):
		return apperrors.ErrAuthentication
	case status == http.StatusForbidden || name == apperrors.NameForbidden:
		return apperrors.ErrAuthorization
	case isNetworkError(err, msg):
		return apperrors.ErrNetwork
	case isDatabaseError(err, name):
		return apperrors.ErrDatabase
	case status >= 500:
		return apperrors.ErrSystem
	case status >= 400:
		return apperrors.ErrClient
	}
	return apperrors.ErrSystem
}

func isTokenError(err error, msg string) bool {
	var jwtErr *jwt.ValidationError
	if errors.As(err, &jwtErr) {
		return true
	}
	return strings.Contains(msg, "jwt") || strings.Contains(msg, "token expired") || strings.Contains(msg, "invalid token")
}

func isNetworkError(err error, msg string) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	for _, marker := range []string{"econnrefused", "enotfound", "etimedout", "connection refused", "no such host"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var gormErrors = []error{
	gorm.ErrInvalidTransaction,
	gorm.ErrInvalidData,
	gorm.ErrInvalidField,
	gorm.ErrInvalidDB,
	gorm.ErrDuplicatedKey,
	gorm.ErrForeignKeyViolated,
	gorm.ErrMissingWhereClause,
}

func isDatabaseError(err error, name string) bool {
	switch name {
	case apperrors.NameDatabase, apperrors.NameCast, apperrors.NameDuplicateKey:
		return true
	}
	for _, target := range gormErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func statusForKind(kind apperrors.ErrorType) int {
	switch kind {
	case apperrors.ErrValidation:
		return http.StatusUnprocessableEntity
	case apperrors.ErrAuthentication:
		return http.StatusUnauthorized
	case apperrors.ErrAuthorization:
		return http.StatusForbidden
	case apperrors.ErrNetwork:
		return http.StatusBadGateway
	case apperrors.ErrClient:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func severityFor(kind apperrors.ErrorType, status int) model.Severity {
	switch {
	case status >= 500:
		return model.SeverityCritical
	case status == http.StatusNotFound:
		return model.SeverityLow
	case kind == apperrors.ErrAuthentication || kind == apperrors.ErrAuthorization:
		return model.SeverityHigh
	case kind == apperrors.ErrValidation:
		return model.SeverityLow
	case status >= 400:
		return model.SeverityMedium
	}
	return model.SeverityMedium
}
