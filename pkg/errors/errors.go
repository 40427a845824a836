package errors

import (
	stderrors "errors"
	"net/http"
)

// Kind classifies an AppError independently of its transport status.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindPersistence    Kind = "persistence"
	KindConflict       Kind = "conflict"
	KindRateLimited    Kind = "rate_limited"
	KindInternal       Kind = "internal"
)

// AppError is a custom error type that includes an HTTP status code
type AppError struct {
	Code    int    `json:"code"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code int, kind Kind, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
}

// Common errors
var (
	ErrInvalidRequest = NewAppError(http.StatusBadRequest, KindValidation, "Invalid request parameters")
	ErrUnauthorized   = NewAppError(http.StatusUnauthorized, KindAuthentication, "Unauthorized access")
	ErrForbidden      = NewAppError(http.StatusForbidden, KindAuthorization, "Access denied")
	ErrNotFound       = NewAppError(http.StatusNotFound, KindNotFound, "Resource not found")
	ErrInternalServer = NewAppError(http.StatusInternalServerError, KindInternal, "Internal server error")
	ErrRateLimit      = NewAppError(http.StatusTooManyRequests, KindRateLimited, "Rate limit exceeded")
)

// Helper functions to create specific errors
func BadRequest(msg string) *AppError {
	return NewAppError(http.StatusBadRequest, KindValidation, msg)
}

func NotFound(msg string) *AppError {
	return NewAppError(http.StatusNotFound, KindNotFound, msg)
}

func Unauthorized(msg string) *AppError {
	return NewAppError(http.StatusUnauthorized, KindAuthentication, msg)
}

func Forbidden(msg string) *AppError {
	return NewAppError(http.StatusForbidden, KindAuthorization, msg)
}

func Conflict(msg string) *AppError {
	return NewAppError(http.StatusConflict, KindConflict, msg)
}

func TooManyRequests(msg string) *AppError {
	return NewAppError(http.StatusTooManyRequests, KindRateLimited, msg)
}

func Internal(msg string) *AppError {
	return NewAppError(http.StatusInternalServerError, KindInternal, msg)
}

// Persistence wraps a store failure. The cause is kept for logs and never
// rendered to clients.
func Persistence(msg string, err error) *AppError {
	e := NewAppError(http.StatusServiceUnavailable, KindPersistence, msg)
	e.Err = err
	return e
}

// As extracts the AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the taxonomy kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}
