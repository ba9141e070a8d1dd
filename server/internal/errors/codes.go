package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific error type for memory operations.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the requested record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConflict indicates the record is in a state that forbids the operation.
	ErrCodeConflict ErrorCode = "CONFLICT"
	// ErrCodeStoreUnavailable indicates the persistence layer failed.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// ErrCodeLLMUnavailable indicates the LLM service is not available.
	ErrCodeLLMUnavailable ErrorCode = "LLM_UNAVAILABLE"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal is the fallback for unclassified failures.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

var httpStatus = map[ErrorCode]int{
	ErrCodeInvalidArgument:   http.StatusBadRequest,
	ErrCodeNotFound:          http.StatusNotFound,
	ErrCodeConflict:          http.StatusConflict,
	ErrCodeStoreUnavailable:  http.StatusServiceUnavailable,
	ErrCodeLLMUnavailable:    http.StatusServiceUnavailable,
	ErrCodeRateLimitExceeded: http.StatusTooManyRequests,
	ErrCodeTimeout:           http.StatusGatewayTimeout,
	ErrCodeInternal:          http.StatusInternalServerError,
}

// HTTPStatus maps a code to its HTTP status.
func (c ErrorCode) HTTPStatus() int {
	if status, ok := httpStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// MemoryError represents a structured error for memory operations.
type MemoryError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *MemoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *MemoryError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *MemoryError) WithContext(key string, value any) *MemoryError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *MemoryError {
	return &MemoryError{Code: ErrCodeInvalidArgument, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *MemoryError {
	return &MemoryError{Code: ErrCodeNotFound, Message: msg}
}

// Conflict creates a conflict error.
func Conflict(msg string, cause error) *MemoryError {
	return &MemoryError{Code: ErrCodeConflict, Message: msg, Cause: cause}
}

// StoreUnavailable creates a store unavailable error.
func StoreUnavailable(msg string, cause error) *MemoryError {
	return &MemoryError{Code: ErrCodeStoreUnavailable, Message: msg, Cause: cause}
}

// LLMUnavailable creates an LLM unavailable error.
func LLMUnavailable(msg string) *MemoryError {
	return &MemoryError{Code: ErrCodeLLMUnavailable, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *MemoryError {
	return &MemoryError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// Timeout creates a timeout error.
func Timeout(msg string, cause error) *MemoryError {
	return &MemoryError{Code: ErrCodeTimeout, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *MemoryError {
	return &MemoryError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	var memErr *MemoryError
	return errors.As(err, &memErr) && memErr.Code == code
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a MemoryError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var memErr *MemoryError
	if errors.As(err, &memErr) {
		return memErr.Code
	}
	return defaultCode
}
