// Package apperr defines the error kinds returned by the registration engine.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeForbidden         Code = "FORBIDDEN"
	CodeGone              Code = "GONE"
	CodeStorageFailure    Code = "STORAGE_FAILURE"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
)

// HTTPStatus maps a code to the status the transport layer answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeGone:
		return http.StatusGone
	case CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeStorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a code and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict          = &Error{Code: CodeConflict, Message: "conflict"}
	ErrForbidden         = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrGone              = &Error{Code: CodeGone, Message: "gone"}
	ErrStorageFailure    = &Error{Code: CodeStorageFailure, Message: "storage failure"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "invalid transition"}
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(CodeForbidden, format, args...)
}

func Gone(format string, args ...any) *Error {
	return New(CodeGone, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return New(CodeInvalidTransition, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return New(CodeInvalidArgument, format, args...)
}

// Storage wraps a store failure. An existing domain error passes through
// untouched so a NotFound raised below the store boundary keeps its kind.
func Storage(cause error, format string, args ...any) error {
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return Wrap(CodeStorageFailure, cause, format, args...)
}

// CodeOf extracts the code from any error, CodeUnknown if it carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
