// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe tuning store with dynamic update and reload propagation.
// Ring geometry is fixed at allocation time; this store carries only the
// knobs that may move while a ring is live, such as service consumption
// pacing.

package control

import (
	"sync"
)

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:    make(map[string]any),
		listeners: make([]func(), 0),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	copy := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		copy[k] = v
	}
	return copy
}

// GetInt reads an integer knob, returning fallback when the key is absent
// or holds a non-integer value.
func (cs *ConfigStore) GetInt(key string, fallback int) int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	switch v := cs.config[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return fallback
	}
}

// SetConfig merges new values and dispatches reload listeners asynchronously.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.merge(newCfg)
	cs.dispatchReload(false)
}

// SetConfigSync merges new values and invokes listeners synchronously
// (for test determinism).
func (cs *ConfigStore) SetConfigSync(newCfg map[string]any) {
	cs.merge(newCfg)
	cs.dispatchReload(true)
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

func (cs *ConfigStore) merge(newCfg map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
}

// dispatchReload invokes all listeners.
func (cs *ConfigStore) dispatchReload(wait bool) {
	cs.mu.RLock()
	listeners := make([]func(), len(cs.listeners))
	copy(listeners, cs.listeners)
	cs.mu.RUnlock()
	for _, fn := range listeners {
		if wait {
			fn()
		} else {
			go fn()
		}
	}
}
