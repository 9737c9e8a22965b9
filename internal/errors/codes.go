package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents internal error codes for cache operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeNotFound        ErrorCode = 1001
	ErrCodeUnsupportedKind ErrorCode = 1002
	ErrCodeInvalidVersion  ErrorCode = 1003

	// Server errors (5xx equivalent)
	ErrCodeInternal          ErrorCode = 2000
	ErrCodeStorage           ErrorCode = 2001
	ErrCodeCorruptedData     ErrorCode = 2002
	ErrCodeContractViolation ErrorCode = 2003
)

// CacheError represents a structured error with code and context
type CacheError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps internal error codes to HTTP status codes
func (e *CacheError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument, ErrCodeInvalidVersion:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnsupportedKind:
		return http.StatusUnprocessableEntity
	case ErrCodeStorage:
		return http.StatusServiceUnavailable
	case ErrCodeCorruptedData:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// CodeString returns the wire name of the error code for response envelopes
func (e *CacheError) CodeString() string {
	switch e.Code {
	case ErrCodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case ErrCodeNotFound:
		return "NOT_FOUND"
	case ErrCodeUnsupportedKind:
		return "UNSUPPORTED_KIND"
	case ErrCodeInvalidVersion:
		return "INVALID_VERSION"
	case ErrCodeStorage:
		return "STORAGE_ERROR"
	case ErrCodeCorruptedData:
		return "CORRUPTED_DATA"
	case ErrCodeContractViolation:
		return "CONTRACT_VIOLATION"
	default:
		return "INTERNAL_ERROR"
	}
}

// NewCacheError creates a new CacheError
func NewCacheError(code ErrorCode, message string, cause error) *CacheError {
	return &CacheError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *CacheError) WithDetail(key string, value interface{}) *CacheError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *CacheError {
	return NewCacheError(ErrCodeInvalidArgument, message, cause)
}

// NotFound is the normal outcome for an entity with no live version at or
// below the requested target: never written yet, or tombstoned by then. It is
// a valid query result, not an exceptional condition.
func NotFound(kind, id string, version int64) *CacheError {
	return NewCacheError(ErrCodeNotFound, fmt.Sprintf("entity not found: %s/%s at version %d", kind, id, version), nil).
		WithDetail("kind", kind).
		WithDetail("id", id).
		WithDetail("version", version)
}

// UnsupportedKind reports a type tag the codec registry does not recognize.
// This is a configuration error and must surface: silently skipping the kind
// would corrupt enumeration completeness.
func UnsupportedKind(kind string) *CacheError {
	return NewCacheError(ErrCodeUnsupportedKind, fmt.Sprintf("unsupported entity kind: %s", kind), nil).
		WithDetail("kind", kind)
}

func InvalidVersion(version int64, reason string) *CacheError {
	return NewCacheError(ErrCodeInvalidVersion, fmt.Sprintf("invalid version %d: %s", version, reason), nil).
		WithDetail("version", version).
		WithDetail("reason", reason)
}

func StorageFailed(message string, cause error) *CacheError {
	return NewCacheError(ErrCodeStorage, message, cause)
}

func CorruptedData(message string, cause error) *CacheError {
	return NewCacheError(ErrCodeCorruptedData, message, cause)
}

// ContractViolation reports a (key, version) lookup for a version the log
// never wrote for that key. Callers only ever pass versions obtained from the
// index or from a prior back-pointer, so hitting this means a bug in the
// chain-walking logic, not a recoverable condition.
func ContractViolation(message string) *CacheError {
	return NewCacheError(ErrCodeContractViolation, message, nil)
}

func InternalError(message string, cause error) *CacheError {
	return NewCacheError(ErrCodeInternal, message, cause)
}

// IsNotFound reports whether err carries the NotFound code
func IsNotFound(err error) bool {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeNotFound
	}
	return false
}

// IsCacheError checks if an error is a CacheError
func IsCacheError(err error) bool {
	var ce *CacheError
	return errors.As(err, &ce)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}

// AsCacheError extracts a CacheError from err, wrapping unknown errors as
// internal so HTTP mapping always has a code to work from
func AsCacheError(err error) *CacheError {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce
	}
	return InternalError(err.Error(), err)
}
