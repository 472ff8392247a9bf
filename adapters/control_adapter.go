// File: adapters/control_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Control adapter implementing api.Control over the control package
// primitives, bundling tuning, metrics and debug probes for one ring
// deployment.

package adapters

import (
	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/control"
)

// ControlAdapter aggregates a config store, a metrics registry and a
// probe registry behind the api.Control contract.
type ControlAdapter struct {
	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
}

var _ api.Control = (*ControlAdapter)(nil)

// NewControlAdapter creates the bundle and registers the runtime probes.
func NewControlAdapter() *ControlAdapter {
	adapter := &ControlAdapter{
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
	}
	control.RegisterRuntimeProbes(adapter.debug)
	return adapter
}

// GetConfig returns a snapshot of the tuning values.
func (c *ControlAdapter) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}

// SetConfig merges tuning values and notifies reload listeners.
func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	c.config.SetConfig(cfg)
	return nil
}

// Stats combines metric counters with the probe dump, probes prefixed
// with "debug.".
func (c *ControlAdapter) Stats() map[string]any {
	combined := c.metrics.GetSnapshot()
	for k, v := range c.debug.DumpState() {
		combined["debug."+k] = v
	}
	return combined
}

// OnReload registers a hook invoked after every SetConfig.
func (c *ControlAdapter) OnReload(fn func()) {
	c.config.OnReload(fn)
}

// SetMetric records a single metric value.
func (c *ControlAdapter) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}

// RegisterDebugProbe exposes a live value in the probe dump.
func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

// Config exposes the underlying store for wiring into services.
func (c *ControlAdapter) Config() *control.ConfigStore {
	return c.config
}

// Metrics exposes the underlying registry for wiring into helpers.
func (c *ControlAdapter) Metrics() *control.MetricsRegistry {
	return c.metrics
}

// Debug exposes the underlying probe registry.
func (c *ControlAdapter) Debug() *control.DebugProbes {
	return c.debug
}
