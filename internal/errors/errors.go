// Package errors provides a unified structured-error taxonomy for the core,
// implementing the error handling design of spec §7.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, facade-visible error identifier.
type ErrorCode string

const (
	// Transient external (§7): retried within a bounded attempt budget.
	ErrCodeRateLimited         ErrorCode = "EXT_RATE_LIMITED"
	ErrCodeUpstreamUnavailable ErrorCode = "EXT_UNAVAILABLE"
	ErrCodeTimeout             ErrorCode = "EXT_TIMEOUT"

	// Permanent external (§7): skip the unit, never retry.
	ErrCodeUpstreamNotFound ErrorCode = "EXT_NOT_FOUND"
	ErrCodeUpstreamAuth     ErrorCode = "EXT_AUTH_FAILED"
	ErrCodeInvalidResponse  ErrorCode = "EXT_INVALID_RESPONSE"

	// Storage (§7): surfaced upward, aborts the current chunk.
	ErrCodeStorageError ErrorCode = "STORE_ERROR"

	// Budget exceeded (§7): stops the enclosing batch cleanly.
	ErrCodeBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"

	// Invariant violation (§7): logged loudly, fails the unit.
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"

	ErrCodeBatchNotFound ErrorCode = "BATCH_NOT_FOUND"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
)

// ServiceError is a structured error carrying a stable code, an HTTP status
// class for the facade to surface, and optional structured details.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured detail and returns the receiver for
// chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError with no wrapped cause.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates a ServiceError around an existing cause.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// RateLimited wraps a retry-after hint from the code-host or LLM adapter.
func RateLimited(retryAfterSeconds int) *ServiceError {
	return New(ErrCodeRateLimited, "rate limited by upstream", http.StatusTooManyRequests).
		WithDetails("retry_after_seconds", retryAfterSeconds)
}

// Unavailable wraps a transient 5xx/network failure.
func Unavailable(service string, err error) *ServiceError {
	return Wrap(ErrCodeUpstreamUnavailable, "upstream unavailable", http.StatusBadGateway, err).
		WithDetails("service", service)
}

// Timeout wraps a deadline exceeded on an outbound call.
func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// NotFound wraps a permanent 404 from the code-host adapter.
func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeUpstreamNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).WithDetails("id", id)
}

// AuthFailed wraps a permanent auth failure.
func AuthFailed(service string) *ServiceError {
	return New(ErrCodeUpstreamAuth, "authentication failed", http.StatusUnauthorized).
		WithDetails("service", service)
}

// InvalidResponse wraps a malformed upstream payload — a dynamic LLM
// response with an unrecognized recommendation string falls here, per §9.
func InvalidResponse(service string, err error) *ServiceError {
	return Wrap(ErrCodeInvalidResponse, "invalid upstream response", http.StatusBadGateway, err).
		WithDetails("service", service)
}

// StorageError wraps any Repository Store failure. Callers must surface it,
// never swallow it (§4.3).
func StorageError(operation string, err error) *ServiceError {
	return Wrap(ErrCodeStorageError, "storage operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

// BudgetExceeded wraps a runtime/credit/per-hour budget violation. The
// caller stops the enclosing batch cleanly; this is not a crash.
func BudgetExceeded(kind string, limit, actual float64) *ServiceError {
	return New(ErrCodeBudgetExceeded, fmt.Sprintf("%s budget exceeded", kind), http.StatusOK).
		WithDetails("limit", limit).WithDetails("actual", actual)
}

// InvariantViolation wraps a missing-row or otherwise-impossible state the
// caller must never guess a default for.
func InvariantViolation(message string) *ServiceError {
	return New(ErrCodeInvariantViolation, message, http.StatusInternalServerError)
}

// BatchNotFound wraps an unknown batch_id lookup.
func BatchNotFound(batchID string) *ServiceError {
	return New(ErrCodeBatchNotFound, "batch not found", http.StatusNotFound).
		WithDetails("batch_id", batchID)
}

// InvalidInput wraps malformed facade input.
func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).WithDetails("reason", reason)
}

// IsServiceError reports whether err carries a ServiceError in its chain.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return stderrors.As(err, &serviceErr)
}

// As extracts a ServiceError from an error chain, or nil.
func As(err error) *ServiceError {
	var serviceErr *ServiceError
	if stderrors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// IsTransient reports whether err is in the "transient external" class of
// §7 and therefore eligible for retry.
func IsTransient(err error) bool {
	se := As(err)
	if se == nil {
		return false
	}
	switch se.Code {
	case ErrCodeRateLimited, ErrCodeUpstreamUnavailable, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status class for an error, defaulting to 500
// for anything that isn't a ServiceError.
func HTTPStatus(err error) int {
	if se := As(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
