package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and coordinators use these instead of
// hardcoded strings so the HTTP mapping stays in one place.
const (
	// Validation (400)
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationRecipient      ErrorCode = "validation_invalid_recipient"
	ErrCodeValidationOrigin         ErrorCode = "validation_unrecognized_origin"
	ErrCodeValidationWeight         ErrorCode = "validation_invalid_weight"
	ErrCodeValidationNotificationID ErrorCode = "validation_invalid_notification_id"
	ErrCodeValidationBundleID       ErrorCode = "validation_invalid_bundle_id"
	ErrCodeValidationPayload        ErrorCode = "validation_invalid_payload"

	// Protocol (400 at the API, poison message on the bus)
	ErrCodeProtocolMalformed ErrorCode = "protocol_malformed_message"

	// Not Found (404)
	ErrCodeNotFoundBundle       ErrorCode = "not_found_bundle"
	ErrCodeNotFoundNotification ErrorCode = "not_found_notification"

	// Conflict (409)
	ErrCodeConflictIdempotency ErrorCode = "conflict_idempotency_mismatch"

	// Internal/Upstream (500/502/504)
	ErrCodeInternalDB              ErrorCode = "internal_database_error"
	ErrCodeInternalStorageConflict ErrorCode = "internal_storage_conflict"
	ErrCodeInternalUnexpected      ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamBus             ErrorCode = "upstream_bus_unavailable"
	ErrCodeUpstreamContent         ErrorCode = "upstream_content_unavailable"
	ErrCodeUpstreamContentTimeout  ErrorCode = "upstream_content_timeout"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"), strings.HasPrefix(s, "protocol_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeUpstreamContentTimeout):
		return http.StatusGatewayTimeout // 504
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the post office.
// Domain and handler errors are expressed as AppError so that formatting,
// HTTP status mapping, and error chains behave the same everywhere.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// HasCode reports whether err (or anything it wraps) is an AppError with code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok && ae.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return hasPrefix(err, "validation_")
}

// IsProtocol reports whether err is a wire-decoding failure.
func IsProtocol(err error) bool {
	return hasPrefix(err, "protocol_")
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return hasPrefix(err, "not_found_")
}

func hasPrefix(err error, prefix string) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok && strings.HasPrefix(string(ae.Code), prefix) {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
