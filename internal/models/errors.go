package models

import (
	"errors"
	"fmt"
)

// Error codes carried by AppError. They are part of the API contract.
const (
	CodeMissingFields       = "MISSING_FIELDS"
	CodeNoFieldsProvided    = "NO_FIELDS_PROVIDED"
	CodeInvalidFields       = "INVALID_FIELDS"
	CodeNotFoundOrNotOwned  = "NOT_FOUND_OR_NOT_OWNED"
	CodeDayNotAvailable     = "DAY_NOT_AVAILABLE"
	CodeInvalidTimeRange    = "INVALID_TIME_RANGE"
	CodeOutsideAvailability = "OUTSIDE_AVAILABILITY"
	CodeSlotConflict        = "SLOT_CONFLICT"
	CodeListingLimitReached = "LISTING_LIMIT_REACHED"
	CodeDuplicateAccount    = "DUPLICATE_ACCOUNT"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeStorageError        = "STORAGE_ERROR"
)

// ErrorResponse is the JSON body returned for every rejected request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// AppError is a typed rejection with a stable code and a human-readable message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError builds a rejection with the given code.
func NewAppError(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NewStorageError wraps an unexpected persistence failure.
func NewStorageError(err error) *AppError {
	return &AppError{
		Code:    CodeStorageError,
		Message: "storage failure",
		Err:     err,
	}
}

// NewNotFoundOrNotOwned reports a missing resource without revealing whether it exists.
func NewNotFoundOrNotOwned(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFoundOrNotOwned,
		Message: resource + " not found or not owned by user",
	}
}

// ErrorCode returns the code of err if it is (or wraps) an AppError, else "".
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
