// Package errors defines the structured error taxonomy shared by every
// subsystem and the JSON-RPC dispatcher (spec §7).
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies a failure for HTTP status mapping, JSON-RPC error
// code selection, and dispatcher propagation policy.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeOverloaded  ErrorType = "overloaded"
	ErrorTypeDatabase    ErrorType = "database"
	ErrorTypeFilesystem  ErrorType = "filesystem"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeInternal    ErrorType = "internal"
)

var statusCodes = map[ErrorType]int{
	ErrorTypeValidation:  http.StatusBadRequest,
	ErrorTypeAuth:        http.StatusUnauthorized,
	ErrorTypeNotFound:    http.StatusNotFound,
	ErrorTypeConflict:    http.StatusConflict,
	ErrorTypeTimeout:     http.StatusRequestTimeout,
	ErrorTypeRateLimit:   http.StatusTooManyRequests,
	ErrorTypeOverloaded:  http.StatusServiceUnavailable,
	ErrorTypeDatabase:    http.StatusInternalServerError,
	ErrorTypeFilesystem:  http.StatusInternalServerError,
	ErrorTypeNetwork:     http.StatusInternalServerError,
	ErrorTypeUnavailable: http.StatusServiceUnavailable,
	ErrorTypeInternal:    http.StatusInternalServerError,
}

// rpcCodes maps an ErrorType onto the JSON-RPC 2.0 error code the
// dispatcher uses when an error must surface as a top-level JSON-RPC
// error object rather than inside a tool result envelope.
var rpcCodes = map[ErrorType]int{
	ErrorTypeValidation: -32602,
	ErrorTypeInternal:   -32603,
}

// AppError is the single result-or-error representation used at every
// handler boundary (spec §9 re-architecture guidance).
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	StatusCode int
	Cause      error

	// RetryAfterSeconds is set on ErrorTypeRateLimit errors so the HTTP
	// transport can echo a retry_after field/header (spec §4.H).
	RetryAfterSeconds int
}

func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusCodeFor(t),
	}
}

func Newf(t ErrorType, format string, args ...interface{}) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

func Wrap(cause error, t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusCodeFor(t),
		Cause:      cause,
	}
}

func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func statusCodeFor(t ErrorType) int {
	if code, ok := statusCodes[t]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// RPCCode returns the JSON-RPC 2.0 error code for transport-level errors
// (Parse, MethodNotFound, InvalidArgs); other types are carried inside
// the result envelope as {content, isError:true} per spec §7 and do not
// need a code of their own, so Internal is the fallback.
func (e *AppError) RPCCode() int {
	if code, ok := rpcCodes[e.Type]; ok {
		return code
	}
	return -32603
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// As reports whether err (or something it wraps) is an *AppError, mirroring
// the standard library's errors.As so callers at a handler boundary can
// recover the original type without a type switch.
func As(err error, target **AppError) bool {
	return errors.As(err, target)
}

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

func NewNotFoundError(what string) *AppError {
	return Newf(ErrorTypeNotFound, "%s not found", what)
}

func NewConflictError(message string) *AppError {
	return New(ErrorTypeConflict, message)
}

func NewDatabaseError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeDatabase, "database operation failed: %s", operation)
}

func NewFilesystemError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeFilesystem, "filesystem operation failed: %s", operation)
}

func NewUnavailableError(capability string) *AppError {
	return Newf(ErrorTypeUnavailable, "%s is unavailable", capability)
}

func NewTimeoutError(operation string) *AppError {
	return Newf(ErrorTypeTimeout, "%s timed out", operation)
}

func NewRateLimitError(retryAfterSeconds int) *AppError {
	err := Newf(ErrorTypeRateLimit, "rate limit exceeded, retry after %ds", retryAfterSeconds)
	err.RetryAfterSeconds = retryAfterSeconds
	return err
}
