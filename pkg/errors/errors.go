// Package errors defines the service's sentinel errors and the AppError
// wrapper that carries an HTTP status and a client-safe message.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrIndexBuild        = errors.New("malformed record in index build")
	ErrInvalidSpec       = errors.New("invalid aggregation spec")
	ErrInvalidInput      = errors.New("invalid input")
	ErrStoreUnavailable  = errors.New("document store unavailable")
	ErrRebuildThrottled  = errors.New("index rebuild throttled")
	ErrIndexNotReady     = errors.New("index not built yet")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
	ErrCacheUnconfigured = errors.New("cache backend not configured")
)

// statusBySentinel is checked in order; the first match wins.
var statusBySentinel = []struct {
	err    error
	status int
}{
	{ErrRecordNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrInvalidSpec, http.StatusBadRequest},
	{ErrRebuildThrottled, http.StatusTooManyRequests},
	{ErrStoreUnavailable, http.StatusServiceUnavailable},
	{ErrTimeout, http.StatusServiceUnavailable},
	{ErrIndexNotReady, http.StatusServiceUnavailable},
}

// AppError is an error whose Message may be shown to API clients as is.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// HTTPStatusCode maps err to a response status: an AppError's own status,
// else the status of the first sentinel it wraps, else 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text a client may see for err. Server-side failures
// are replaced by a generic message so store and driver details stay in
// the logs.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	switch status := HTTPStatusCode(err); {
	case status == http.StatusServiceUnavailable:
		return "service temporarily unavailable, try again later"
	case status >= http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}
