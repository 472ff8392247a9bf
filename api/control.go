// File: api/control.go
// Package api defines the Control interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control is the runtime management surface of a ring deployment:
// dynamic tuning knobs, metric counters and live debug probes. Tuning
// writes propagate to reload listeners, so a running consumer can pick
// up pacing changes without a restart.
type Control interface {
	// GetConfig returns a snapshot of the current tuning values.
	GetConfig() map[string]any

	// SetConfig merges tuning values and notifies reload listeners.
	SetConfig(cfg map[string]any) error

	// Stats returns metric counters combined with the probe dump.
	Stats() map[string]any

	// OnReload registers a hook invoked after every SetConfig.
	OnReload(fn func())

	// RegisterDebugProbe exposes a live value in the stats dump.
	RegisterDebugProbe(name string, fn func() any)
}
