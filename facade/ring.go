// File: facade/ring.go
// Unified facade layer for the command ring library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// This file defines the Ring struct, which aggregates both ends of a
// command ring behind a single facade: the loopback service, the
// producer helper, the control plane (tuning, metrics, debug probes)
// and an optional region pool. The facade exposes methods to start and
// stop the stream, append byte records, fence on token acknowledgement,
// and retrieve the underlying components for direct use.

package facade

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hioload-cmdbuf/adapters"
	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/client"
	"github.com/momentics/hioload-cmdbuf/pool"
	"github.com/momentics/hioload-cmdbuf/protocol"
	"github.com/momentics/hioload-cmdbuf/service"
)

// Config holds parameters immutable per stream. Consumer pacing can
// still be changed at runtime through the Control interface, which the
// service re-reads on every reload.
type Config struct {
	RingEntries   int             // Ring capacity in entries
	ServiceStep   int             // Commands the consumer executes per quantum
	MaxRegions    int             // Regions the service will hold at once
	Handler       service.Handler // User opcode executor; nil rejects user commands
	UseMapped     bool            // Back regions with file mappings instead of heap
	PooledRegions bool            // Recycle heap regions through a pool
	AutoFlush     bool            // Producer-side automatic flushing
	PeriodicFlush time.Duration   // Time-based flush floor, zero disables
	EnableMetrics bool            // Feed helper and service counters into Control
	EnableDebug   bool            // Register ring probes in Control
}

// DefaultConfig returns default configuration values. The defaults
// favor throughput on a single in-process stream.
func DefaultConfig() *Config {
	return &Config{
		RingEntries:   1024,
		ServiceStep:   64,
		MaxRegions:    8,
		PooledRegions: true,
		AutoFlush:     true,
		EnableMetrics: true,
		EnableDebug:   true,
	}
}

// Ring is the main facade type. It implements api.GracefulShutdown to
// allow unified shutdown logic.
type Ring struct {
	control *adapters.ControlAdapter
	service *service.Loopback
	client  *client.Helper
	regions *pool.RegionPool

	config  *Config
	mu      sync.Mutex
	started bool
	stopped bool
}

var _ api.GracefulShutdown = (*Ring)(nil)

// New constructs a Ring with the given configuration. It wires the
// control plane into both ends: the service reads its pacing from the
// config store, user handlers get recovery and metrics middleware, and
// the ring state is exposed through debug probes.
func New(cfg *Config) (*Ring, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Ring{config: cfg}
	r.control = adapters.NewControlAdapter()

	// Seed consumer pacing before the service reads it.
	r.control.Config().SetConfigSync(map[string]any{
		service.TuningStep: cfg.ServiceStep,
		"ring_entries":     cfg.RingEntries,
		"max_regions":      cfg.MaxRegions,
	})

	svcOpts := []service.LoopbackOption{
		service.WithTuning(r.control.Config()),
		service.WithMaxRegions(cfg.MaxRegions),
	}
	if cfg.Handler != nil {
		var mw []adapters.Middleware
		if cfg.EnableMetrics {
			mw = append(mw, adapters.MetricsMiddleware(r.control.Metrics()))
		}
		mw = append(mw, adapters.RecoveryMiddleware)
		svcOpts = append(svcOpts, service.WithHandler(adapters.Chain(cfg.Handler, mw...)))
	}
	if cfg.EnableMetrics {
		svcOpts = append(svcOpts, service.WithMetrics(r.control.Metrics()))
	}
	switch {
	case cfg.UseMapped:
		svcOpts = append(svcOpts, service.WithAllocator(service.MappedAllocator()))
	case cfg.PooledRegions:
		r.regions = pool.NewRegionPool(cfg.MaxRegions)
		svcOpts = append(svcOpts, service.WithAllocator(r.regions.Allocator()))
	}
	r.service = service.NewLoopback(svcOpts...)

	clientOpts := []client.Option{
		client.WithAutomaticFlushes(cfg.AutoFlush),
	}
	if cfg.EnableMetrics {
		clientOpts = append(clientOpts, client.WithMetrics(r.control.Metrics()))
	}
	if cfg.PeriodicFlush > 0 {
		clientOpts = append(clientOpts, client.WithPeriodicFlush(cfg.PeriodicFlush))
	}
	h, err := client.New(r.service, cfg.RingEntries*api.EntrySize, clientOpts...)
	if err != nil {
		r.service.Close()
		return nil, fmt.Errorf("helper init failure: %w", err)
	}
	r.client = h

	if cfg.EnableDebug {
		r.service.RegisterDebug(r.control.Debug())
		if r.regions != nil {
			r.control.RegisterDebugProbe("pool.regions", func() any {
				return r.regions.Stats()
			})
		}
	}
	return r, nil
}

// Start allocates the ring and arms the stream. Subsequent calls to
// Start have no effect; a stopped Ring cannot be restarted.
func (r *Ring) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if r.stopped {
		return errors.New("facade: ring already stopped")
	}
	if !r.client.AllocateRingBuffer() {
		return errors.New("facade: ring allocation failed")
	}
	r.started = true
	return nil
}

// Stop tears the stream down: frees the producer ring, then shuts the
// service down. Ring teardown is terminal; build a new Ring for a new
// stream. Stopping a never-started or already-stopped Ring is a no-op.
func (r *Ring) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.client.Shutdown()
	err := r.service.Shutdown()
	r.started = false
	r.stopped = true
	return err
}

// Shutdown implements api.GracefulShutdown by delegating to Stop.
func (r *Ring) Shutdown() error {
	return r.Stop()
}

// Append writes one byte record to the stream. The Ring must have been
// started.
func (r *Ring) Append(opcode uint32, payload []byte) error {
	return protocol.AppendRecord(r.client, opcode, payload)
}

// Fence inserts a token and blocks until the service acknowledges it,
// so every previously appended record has been executed. Returns false
// when the ring failed instead.
func (r *Ring) Fence() bool {
	token := r.client.InsertToken()
	return r.client.WaitForToken(token)
}

// GetControl returns the Control interface for dynamic tuning, metrics
// and probes.
func (r *Ring) GetControl() api.Control {
	return r.control
}

// GetClient returns the producer helper for direct span reservation.
func (r *Ring) GetClient() *client.Helper {
	return r.client
}

// GetService returns the loopback consumer.
func (r *Ring) GetService() *service.Loopback {
	return r.service
}

// GetRegionPool returns the region pool, or nil when regions are not
// pooled.
func (r *Ring) GetRegionPool() *pool.RegionPool {
	return r.regions
}
