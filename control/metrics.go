// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for ring telemetry.
// Exposes counters and gauges in a thread-safe map with dynamic registration.

package control

import (
	"sync"
	"time"
)

// MetricsRegistry holds mutable and read-only metrics.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Inc adds delta to a counter metric, creating it at zero first.
// Non-counter values under the same key are overwritten.
func (mr *MetricsRegistry) Inc(key string, delta int64) {
	mr.mu.Lock()
	prev, _ := mr.metrics[key].(int64)
	mr.metrics[key] = prev + delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Counter reads a counter metric, returning zero when absent.
func (mr *MetricsRegistry) Counter(key string) int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	v, _ := mr.metrics[key].(int64)
	return v
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}
