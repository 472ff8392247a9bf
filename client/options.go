// File: client/options.go
// Package client defines functional options for the ring Helper.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"time"

	"github.com/momentics/hioload-cmdbuf/control"
)

// Option customizes helper initialization.
type Option func(*Helper)

// WithMetrics attaches a registry that receives flush, stall and token
// counters.
func WithMetrics(mr *control.MetricsRegistry) Option {
	return func(h *Helper) {
		h.metrics = mr
	}
}

// WithAutomaticFlushes sets the initial auto-flush policy. It defaults
// to enabled; SetAutomaticFlushes can change it later.
func WithAutomaticFlushes(enabled bool) Option {
	return func(h *Helper) {
		h.flushAutomatically = enabled
	}
}

// WithPeriodicFlush arms the periodic flush check: sparse command
// streams get flushed at most interval after the last send.
func WithPeriodicFlush(interval time.Duration) Option {
	return func(h *Helper) {
		h.periodicFlushInterval = interval
	}
}
