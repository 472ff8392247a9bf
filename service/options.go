// File: service/options.go
// Package service functional options for Loopback construction.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package service

import (
	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/control"
	"github.com/momentics/hioload-cmdbuf/shm"
)

const (
	defaultStep       = 64
	defaultMaxRegions = 8

	// TuningStep is the ConfigStore key read by WithTuning for the
	// number of commands consumed per scheduling quantum.
	TuningStep = "service.step"
)

// LoopbackOption configures a Loopback before its consumer starts.
type LoopbackOption func(*Loopback)

// WithStep sets how many commands the consumer executes per quantum
// before yielding. Values below one are clamped to one.
func WithStep(n int) LoopbackOption {
	return func(l *Loopback) {
		if n < 1 {
			n = 1
		}
		l.step = n
	}
}

// WithHandler installs the executor for user opcodes. Without one every
// user command fails with ErrorUnknownCommand.
func WithHandler(h Handler) LoopbackOption {
	return func(l *Loopback) {
		l.handler = h
	}
}

// WithAllocator overrides the backing store for CreateRegion. The
// default allocates process-heap regions.
func WithAllocator(a Allocator) LoopbackOption {
	return func(l *Loopback) {
		l.alloc = a
	}
}

// WithMaxRegions bounds how many regions may be live at once.
func WithMaxRegions(n int) LoopbackOption {
	return func(l *Loopback) {
		if n < 1 {
			n = 1
		}
		l.maxRegions = n
	}
}

// WithMetrics wires consumer counters into a registry.
func WithMetrics(m *control.MetricsRegistry) LoopbackOption {
	return func(l *Loopback) {
		l.metrics = m
	}
}

// WithTuning binds consumption pacing to a config store. The step knob
// is read at construction and re-read on every reload.
func WithTuning(cs *control.ConfigStore) LoopbackOption {
	return func(l *Loopback) {
		l.step = cs.GetInt(TuningStep, l.step)
		if l.step < 1 {
			l.step = 1
		}
		cs.OnReload(func() {
			l.mu.Lock()
			l.step = cs.GetInt(TuningStep, l.step)
			if l.step < 1 {
				l.step = 1
			}
			l.mu.Unlock()
		})
	}
}

// heapAllocator backs regions with ordinary process memory.
func heapAllocator(sizeBytes int) (api.Region, func() error, error) {
	region, err := shm.NewHeapRegion(sizeBytes)
	if err != nil {
		return nil, nil, err
	}
	return region, nil, nil
}

// MappedAllocator backs regions with files mapped through the shm
// package, so a cooperating process can attach to the same bytes.
func MappedAllocator() Allocator {
	return func(sizeBytes int) (api.Region, func() error, error) {
		region, err := shm.NewMappedRegion(sizeBytes)
		if err != nil {
			return nil, nil, err
		}
		return region, region.Destroy, nil
	}
}
