// Package errors provides custom error types for the BrokerBridge API.
// All service- and adapter-layer errors should use AppError to ensure
// consistent, secure error responses that never leak internal details
// to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, optional structured detail,
// and optional internal error.
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	StatusCode int                    `json:"-"`
	Internal   error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Detail:     sentinel.Detail,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		Detail:     sentinel.Detail,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// WithDetail creates a new AppError carrying structured detail a calling UI
// can use for actionable guidance (detected headers, per-row errors, a
// suggestion hint).
func WithDetail(sentinel *AppError, message string, detail map[string]interface{}) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		Detail:     detail,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Adapter error taxonomy. Every broker integration maps its failures onto
// these kinds so callers can branch on a machine-readable code.
var (
	ErrAuthFailed     = &AppError{Code: "AUTH_FAILED", Message: "Could not establish a connection with the provided credentials or import input", StatusCode: http.StatusBadRequest}
	ErrParseError     = &AppError{Code: "PARSE_ERROR", Message: "Could not extract a usable position table from the import", StatusCode: http.StatusUnprocessableEntity}
	ErrInvalidAccount = &AppError{Code: "INVALID_ACCOUNT", Message: "Account or connection is not in the expected state for this operation", StatusCode: http.StatusConflict}
	ErrAdapterUnknown = &AppError{Code: "UNKNOWN", Message: "Broker adapter failed", StatusCode: http.StatusBadGateway}
)

// Connection errors.
var (
	ErrConnectionNotFound = &AppError{Code: "CONNECTION_NOT_FOUND", Message: "Broker connection not found", StatusCode: http.StatusNotFound}
	ErrUnknownProvider    = &AppError{Code: "UNKNOWN_PROVIDER", Message: "No adapter registered for this broker provider", StatusCode: http.StatusBadRequest}
)

// Account errors.
var (
	ErrAccountNotFound = &AppError{Code: "ACCOUNT_NOT_FOUND", Message: "Broker account not found", StatusCode: http.StatusNotFound}
)

// Sync and snapshot errors.
var (
	ErrSyncFailed      = &AppError{Code: "SYNC_FAILED", Message: "Sync failed for every account on this connection", StatusCode: http.StatusBadGateway}
	ErrSnapshotInvalid = &AppError{Code: "SNAPSHOT_INVALID", Message: "Mapped snapshot failed validation and was not persisted", StatusCode: http.StatusUnprocessableEntity}
)

// Instrument errors.
var (
	ErrInstrumentNotFound = &AppError{Code: "INSTRUMENT_NOT_FOUND", Message: "Instrument not found", StatusCode: http.StatusNotFound}
)
