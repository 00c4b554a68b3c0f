// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by endpoints, reactors and session facades.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures of the I/O core.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	// ErrCodePermission: open/connect refused by the OS for lack of rights.
	ErrCodePermission
	// ErrCodeNotFound: file or address does not exist / cannot be resolved.
	ErrCodeNotFound
	// ErrCodeSystemIO: a read or write system call failed.
	ErrCodeSystemIO
	// ErrCodeInternal: invariant violation inside the core.
	ErrCodeInternal
	// ErrCodeTransport: connect or handshake failure.
	ErrCodeTransport
	// ErrCodeAborted: queued work dropped by shutdown before running.
	ErrCodeAborted
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodePermission:
		return "permission"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeSystemIO:
		return "system_io"
	case ErrCodeInternal:
		return "internal"
	case ErrCodeTransport:
		return "transport"
	case ErrCodeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching. Any *Error with the same code matches.
var (
	ErrPermission = &Error{Code: ErrCodePermission, Message: "permission denied"}
	ErrNotFound   = &Error{Code: ErrCodeNotFound, Message: "not found"}
	ErrSystemIO   = &Error{Code: ErrCodeSystemIO, Message: "system i/o failure"}
	ErrInternal   = &Error{Code: ErrCodeInternal, Message: "internal error"}
	ErrTransport  = &Error{Code: ErrCodeTransport, Message: "transport failure"}
	ErrAborted    = &Error{Code: ErrCodeAborted, Message: "aborted"}
)

// ErrClosed is returned by operations on a closed or never opened endpoint.
var ErrClosed = errors.New("endpoint is closed")

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.cause != nil {
		msg = msg + ": " + e.cause.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a structured error around cause.
func Wrap(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode of err, ErrCodeOK for nil and
// ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
