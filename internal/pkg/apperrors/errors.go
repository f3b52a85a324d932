package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the closed taxonomy every error is classified into before it is logged.
type ErrorType string

const (
	ErrAPI            ErrorType = "API_ERROR"
	ErrValidation     ErrorType = "VALIDATION_ERROR"
	ErrSystem         ErrorType = "SYSTEM_ERROR"
	ErrDatabase       ErrorType = "DATABASE_ERROR"
	ErrAuthentication ErrorType = "AUTHENTICATION_ERROR"
	ErrAuthorization  ErrorType = "AUTHORIZATION_ERROR"
	ErrNetwork        ErrorType = "NETWORK_ERROR"
	ErrClient         ErrorType = "CLIENT_ERROR"
)

// Names mirror the error shapes produced by the collaborators feeding the error handler.
const (
	NameValidation   = "ValidationError"
	NameUnauthorized = "UnauthorizedError"
	NameForbidden    = "ForbiddenError"
	NameNotFound     = "NotFoundError"
	NameRateLimit    = "RateLimitError"
	NameConflict     = "ConflictError"
	NameCast         = "CastError"
	NameDuplicateKey = "DuplicateKeyError"
	NameDatabase     = "DatabaseError"
	NameNetwork      = "NetworkError"
	NamePanic        = "PanicError"
	NameRateAlert    = "ErrorRateAlert"
	NameInternal     = "Error"
)

// AppError is the single internal error representation. Adapters at the HTTP boundary
// convert library specific errors into it.
type AppError struct {
	Kind       ErrorType `json:"-"`
	Name       string    `json:"-"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
	// Stack is only set for recovered panics.
	Stack      string    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(kind ErrorType, name, msg string, status int, cause error) *AppError {
	if status == 0 {
		status = mapTypeToStatus(kind)
	}
	return &AppError{
		Kind:       kind,
		Name:       name,
		Code:       codeFor(name, kind),
		Message:    msg,
		HTTPStatus: status,
		Cause:      cause,
	}
}

func NewValidation(msg string, cause error) *AppError {
	return New(ErrValidation, NameValidation, msg, http.StatusUnprocessableEntity, cause)
}

func NewBadRequest(msg string, cause error) *AppError {
	return New(ErrClient, "BadRequestError", msg, http.StatusBadRequest, cause)
}

func NewUnauthorized(msg string, cause error) *AppError {
	return New(ErrAuthentication, NameUnauthorized, msg, http.StatusUnauthorized, cause)
}

func NewForbidden(msg string) *AppError {
	return New(ErrAuthorization, NameForbidden, msg, http.StatusForbidden, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrClient, NameNotFound, msg, http.StatusNotFound, nil)
}

func NewRateLimited(msg string) *AppError {
	return New(ErrClient, NameRateLimit, msg, http.StatusTooManyRequests, nil)
}

func NewConflict(msg string) *AppError {
	return New(ErrClient, NameConflict, msg, http.StatusConflict, nil)
}

func NewDatabase(msg string, cause error) *AppError {
	return New(ErrDatabase, NameDatabase, msg, http.StatusInternalServerError, cause)
}

// NewCast reports a malformed identifier or value that could not be converted for a lookup.
func NewCast(msg string, cause error) *AppError {
	return New(ErrDatabase, NameCast, msg, http.StatusBadRequest, cause)
}

func NewDuplicateKey(msg string, cause error) *AppError {
	return New(ErrDatabase, NameDuplicateKey, msg, http.StatusConflict, cause)
}

func NewNetwork(msg string, cause error) *AppError {
	return New(ErrNetwork, NameNetwork, msg, http.StatusBadGateway, cause)
}

func NewInternal(msg string, cause error) *AppError {
	return New(ErrSystem, NameInternal, msg, http.StatusInternalServerError, cause)
}

// NewPanic converts a recovered value into a system error carrying the goroutine stack.
func NewPanic(recovered any, stack []byte) *AppError {
	var cause error
	switch v := recovered.(type) {
	case error:
		cause = v
	default:
		cause = fmt.Errorf("%v", v)
	}
	e := New(ErrSystem, NamePanic, "panic recovered", http.StatusInternalServerError, cause)
	e.Stack = string(stack)
	return e
}

// Wrap returns err as an *AppError, keeping an existing one found in the chain.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{
		Name:    NameInternal,
		Message: err.Error(),
		Cause:   err,
	}
}

// As is a shorthand for errors.As against *AppError.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation:
		return http.StatusUnprocessableEntity
	case ErrClient:
		return http.StatusBadRequest
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrAuthorization:
		return http.StatusForbidden
	case ErrNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(name string, kind ErrorType) string {
	switch name {
	case NameNotFound:
		return "NOT_FOUND"
	case NameRateLimit:
		return "RATE_LIMIT_EXCEEDED"
	case NameDuplicateKey:
		return "DUPLICATE_KEY"
	case NameConflict:
		return "CONFLICT"
	case NameCast:
		return "INVALID_ID"
	case NameRateAlert:
		return "ERROR_RATE_ALERT"
	}
	if kind == "" {
		return string(ErrSystem)
	}
	return string(kind)
}
