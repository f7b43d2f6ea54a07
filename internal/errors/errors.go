// Package errors provides the circulation error taxonomy.
//
// Services return *Error values; handlers map them to HTTP with HTTPStatus.
// Matching is by code:
//
//	if errors.Is(err, errors.ErrEligibilityBlocked) {
//	    ...
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

const (
	CodeNotFound                 Code = "NOT_FOUND"
	CodeInvalidState             Code = "INVALID_STATE"
	CodeEligibilityBlocked       Code = "ELIGIBILITY_BLOCKED"
	CodeAlreadyReserved          Code = "ALREADY_RESERVED"
	CodeQueueConflict            Code = "QUEUE_CONFLICT"
	CodeNoActiveTransaction      Code = "NO_ACTIVE_TRANSACTION"
	CodeReservedForAnotherPatron Code = "RESERVED_FOR_ANOTHER_PATRON"
	CodeValidation               Code = "VALIDATION"
	CodeUnauthorized             Code = "UNAUTHORIZED"
	CodeForbidden                Code = "FORBIDDEN"
	CodeBusy                     Code = "RESOURCE_BUSY"
	CodeInternal                 Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeNoActiveTransaction:
		return http.StatusConflict
	case CodeAlreadyReserved, CodeQueueConflict, CodeReservedForAnotherPatron:
		return http.StatusConflict
	case CodeEligibilityBlocked:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound                 = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidState             = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrEligibilityBlocked       = &Error{Code: CodeEligibilityBlocked, Message: "patron not eligible"}
	ErrAlreadyReserved          = &Error{Code: CodeAlreadyReserved, Message: "already reserved"}
	ErrQueueConflict            = &Error{Code: CodeQueueConflict, Message: "queue conflict"}
	ErrNoActiveTransaction      = &Error{Code: CodeNoActiveTransaction, Message: "no active transaction"}
	ErrReservedForAnotherPatron = &Error{Code: CodeReservedForAnotherPatron, Message: "reserved for another patron"}
	ErrValidation               = &Error{Code: CodeValidation, Message: "validation error"}
	ErrUnauthorized             = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden                = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrBusy                     = &Error{Code: CodeBusy, Message: "resource busy"}
	ErrInternal                 = &Error{Code: CodeInternal, Message: "internal error"}
)

// NotFound creates a not found error for an entity kind and id.
func NotFound(entity string, id int64) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %d not found", entity, id),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// InvalidState creates an invalid state error.
func InvalidState(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// EligibilityBlocked creates an eligibility error carrying the reason.
func EligibilityBlocked(reason string, overridable bool) *Error {
	return &Error{
		Code:    CodeEligibilityBlocked,
		Message: "patron not eligible: " + reason,
		Details: map[string]any{"reason": reason, "overridable": overridable},
	}
}

// AlreadyReserved creates a duplicate reservation error.
func AlreadyReserved(msg string) *Error {
	return &Error{Code: CodeAlreadyReserved, Message: msg}
}

// QueueConflict creates a reservation queue conflict error.
func QueueConflict(msg string) *Error {
	return &Error{Code: CodeQueueConflict, Message: msg}
}

// NoActiveTransaction creates an error for a check-in with nothing checked out.
func NoActiveTransaction(copyID int64) *Error {
	return &Error{
		Code:    CodeNoActiveTransaction,
		Message: fmt.Sprintf("copy %d has no active transaction", copyID),
		Details: map[string]any{"copy_id": copyID},
	}
}

// ReservedForAnotherPatron creates an error for a checkout of a held copy.
func ReservedForAnotherPatron(copyID int64) *Error {
	return &Error{
		Code:    CodeReservedForAnotherPatron,
		Message: fmt.Sprintf("copy %d is reserved for another patron", copyID),
		Details: map[string]any{"copy_id": copyID},
	}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails creates a validation error with field details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// Busy creates an error for a lock that could not be taken in time.
func Busy(resource string, cause error) *Error {
	return &Error{Code: CodeBusy, Message: resource + " is busy, retry later", cause: cause}
}

// Internal creates an internal error wrapping a cause.
func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: cause}
}

// CodeOf extracts the code from err, or CodeInternal if err is not a domain error.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
