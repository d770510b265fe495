// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-netio.

package api

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors used across the library.
var (
	ErrPortClosed       = errors.New("port is closed")
	ErrNoBuffer         = errors.New("buffer factory exhausted")
	ErrQueueDrained     = errors.New("queue is drained")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotSupported     = errors.New("operation not supported")
	ErrConnFailed       = errors.New("connection failed")
	ErrConnNotReady     = errors.New("connection is not established")
	ErrResolveCancelled = errors.New("resolve cancelled")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeNotSupported
	ErrCodeNotFound
	ErrCodeBindFailed
	ErrCodeConnectFailed
	ErrCodeResolveFailed
	ErrCodeInternal
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeOK:                "ok",
	ErrCodeInvalidArgument:   "invalid_argument",
	ErrCodeResourceExhausted: "resource_exhausted",
	ErrCodeNotSupported:      "not_supported",
	ErrCodeNotFound:          "not_found",
	ErrCodeBindFailed:        "bind_failed",
	ErrCodeConnectFailed:     "connect_failed",
	ErrCodeResolveFailed:     "resolve_failed",
	ErrCodeInternal:          "internal",
}

// String returns the metric/log friendly name of the code.
func (c ErrorCode) String() string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Context) != 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
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

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// CodeOf extracts the ErrorCode from err, ErrCodeInternal for foreign errors
// and ErrCodeOK for nil.
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
