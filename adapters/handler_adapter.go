// File: adapters/handler_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Command handler middleware chaining for loopback services.

package adapters

import (
	"log"

	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/control"
	"github.com/momentics/hioload-cmdbuf/service"
)

// Middleware decorates a command handler.
type Middleware func(service.Handler) service.Handler

// Chain wraps a base handler with middleware. The first middleware is
// the outermost decorator.
func Chain(h service.Handler, mw ...Middleware) service.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// LoggingMiddleware logs rejected commands with their opcode.
func LoggingMiddleware(next service.Handler) service.Handler {
	return func(opcode uint32, cmd []api.Entry) api.ErrorCode {
		code := next(opcode, cmd)
		if code.IsError() {
			log.Printf("[handler] opcode %#x rejected: %v", opcode, code)
		}
		return code
	}
}

// RecoveryMiddleware converts handler panics into a generic command
// failure. The ring gets poisoned instead of the process dying.
func RecoveryMiddleware(next service.Handler) service.Handler {
	return func(opcode uint32, cmd []api.Entry) (code api.ErrorCode) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[handler] panic on opcode %#x: %v", opcode, r)
				code = api.ErrorGeneric
			}
		}()
		return next(opcode, cmd)
	}
}

// MetricsMiddleware counts processed and failed commands.
func MetricsMiddleware(metrics *control.MetricsRegistry) Middleware {
	return func(next service.Handler) service.Handler {
		return func(opcode uint32, cmd []api.Entry) api.ErrorCode {
			code := next(opcode, cmd)
			metrics.Inc("handler.processed", 1)
			if code.IsError() {
				metrics.Inc("handler.failed", 1)
			}
			return code
		}
	}
}
