// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-cmdbuf.

package api

import "fmt"

// Common errors used across the library.
var (
	ErrChannelClosed   = fmt.Errorf("channel is closed")
	ErrRegionExhausted = fmt.Errorf("transfer region limit reached")
	ErrInvalidRingSize = fmt.Errorf("ring size must be a positive multiple of the entry size")
	ErrNoSuchRegion    = fmt.Errorf("transfer region not found")
	ErrNotSupported    = fmt.Errorf("operation not supported on this platform")
)

// ErrorCode enumerates the failure conditions the service reports through
// State.Error. A non-zero code is sticky: once the service publishes one it
// stops consuming, and a client that observes one becomes permanently
// unusable.
type ErrorCode int32

const (
	ErrorNone ErrorCode = iota
	ErrorInvalidSize
	ErrorOutOfBounds
	ErrorUnknownCommand
	ErrorInvalidArguments
	ErrorLostContext
	ErrorGeneric
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorNone:
		return "no error"
	case ErrorInvalidSize:
		return "invalid command size"
	case ErrorOutOfBounds:
		return "command out of bounds"
	case ErrorUnknownCommand:
		return "unknown command"
	case ErrorInvalidArguments:
		return "invalid arguments"
	case ErrorLostContext:
		return "context lost"
	case ErrorGeneric:
		return "generic failure"
	default:
		return fmt.Sprintf("error code %d", int32(c))
	}
}

// IsError reports whether the code represents a failure state.
func (c ErrorCode) IsError() bool {
	return c != ErrorNone
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
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
