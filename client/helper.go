// File: client/helper.go
// Package client implements the producer side of the command ring.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Helper owns the producer cursor of one command ring. It reserves
// contiguous entry spans for callers, pads the ring tail with no-ops on
// wraparound, paces flushes to keep the consumer busy without syscall
// storms, and tracks sync tokens. A Helper is single-producer: all calls
// must come from one goroutine; the service side of the channel may be
// arbitrarily concurrent.

package client

import (
	"log"
	"time"

	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/control"
)

// Auto-flush tiers. While the consumer is caught up a small backlog is
// flushed early to hand it work; once it falls behind, flushes batch up
// to half the ring.
const (
	autoFlushSmall = 16
	autoFlushBig   = 2
)

// Helper streams fixed-size command entries into a ring consumed through
// an api.Channel.
type Helper struct {
	channel api.Channel
	metrics *control.MetricsRegistry

	ringSize int // bytes requested from the channel

	region   api.Region
	regionID int32
	entries  []api.Entry

	totalEntryCount     int32
	immediateEntryCount int32

	put         int32
	lastPutSent int32
	lastState   api.State

	token int32

	usable      bool
	contextLost bool

	flushAutomatically bool
	flushGeneration    uint32
	lastFlushTime      time.Time

	periodicFlushInterval time.Duration
	reservations          uint32
}

// New creates a helper for a ring of ringSize bytes over the given
// channel. The ring itself is allocated lazily on first use.
func New(ch api.Channel, ringSize int, opts ...Option) (*Helper, error) {
	if ch == nil {
		return nil, api.NewError(api.ErrorInvalidArguments, "client: nil channel")
	}
	if ringSize <= 0 || ringSize%api.EntrySize != 0 {
		return nil, api.ErrInvalidRingSize
	}
	h := &Helper{
		channel:            ch,
		ringSize:           ringSize,
		regionID:           -1,
		usable:             true,
		flushAutomatically: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// AllocateRingBuffer installs the ring region, allocating it through the
// channel on first call. It reports whether the helper holds a usable
// ring afterwards. A failed allocation permanently poisons the helper.
func (h *Helper) AllocateRingBuffer() bool {
	if !h.usable {
		return false
	}
	if h.haveRingBuffer() {
		return true
	}

	region, id, err := h.channel.CreateRegion(h.ringSize)
	if err != nil || id < 0 {
		log.Printf("[client] ring allocation failed: %v", err)
		h.clearUsable()
		return false
	}

	h.region = region
	h.regionID = id
	h.channel.SetConsumerRegion(id)

	state := h.channel.GetState()
	h.lastState = state
	h.entries = region.Entries()
	numEntries := int32(h.ringSize / api.EntrySize)
	if numEntries > state.NumEntries {
		log.Printf("[client] service ring window too small: have %d entries, need %d",
			state.NumEntries, numEntries)
		h.clearUsable()
		return false
	}

	h.totalEntryCount = numEntries
	h.put = state.PutOffset
	h.calcImmediateEntries(0)
	return true
}

// FreeRingBuffer releases the ring region. It is idempotent and leaves
// the helper permanently unusable: teardown is one-way.
func (h *Helper) FreeRingBuffer() {
	if h.haveRingBuffer() {
		h.channel.DestroyRegion(h.regionID)
		h.regionID = -1
		h.region = nil
		h.entries = nil
	}
	h.usable = false
	h.calcImmediateEntries(0)
}

// Shutdown implements api.GracefulShutdown on top of FreeRingBuffer.
func (h *Helper) Shutdown() error {
	h.FreeRingBuffer()
	return nil
}

var _ api.GracefulShutdown = (*Helper)(nil)

// SetAutomaticFlushes toggles auto-flush pacing and recomputes the
// writable window under the new policy.
func (h *Helper) SetAutomaticFlushes(enabled bool) {
	h.flushAutomatically = enabled
	h.calcImmediateEntries(0)
}

// IsContextLost reports whether the service has entered an error state.
// The answer is sticky: once lost, always lost.
func (h *Helper) IsContextLost() bool {
	if !h.contextLost {
		h.pollState()
	}
	return h.contextLost
}

// Usable reports whether the helper can still emit commands.
func (h *Helper) Usable() bool {
	return h.usable
}

// TotalEntries returns the ring capacity in entries, zero before
// allocation.
func (h *Helper) TotalEntries() int32 {
	return h.totalEntryCount
}

// PutOffset returns the producer cursor.
func (h *Helper) PutOffset() int32 {
	return h.put
}

// GetOffset returns the consumer cursor as of the last channel exchange.
func (h *Helper) GetOffset() int32 {
	return h.lastState.GetOffset
}

// FlushGeneration counts completed flushes. Two equal reads bracketing
// a code region prove no flush happened in between.
func (h *Helper) FlushGeneration() uint32 {
	return h.flushGeneration
}

// Snapshot captures the producer view for debug probes. Call it from the
// producer goroutine only.
func (h *Helper) Snapshot() api.RingSnapshot {
	return api.RingSnapshot{
		TotalEntries: h.totalEntryCount,
		Put:          h.put,
		Get:          h.lastState.GetOffset,
		Token:        h.token,
		Error:        int32(h.lastState.Error),
		Usable:       h.usable,
	}
}

func (h *Helper) haveRingBuffer() bool {
	return h.regionID >= 0
}

// clearUsable poisons the helper and zeroes the writable window.
func (h *Helper) clearUsable() {
	h.usable = false
	h.calcImmediateEntries(0)
}

// pollState refreshes the cached service state and folds any reported
// error into the sticky lost flag.
func (h *Helper) pollState() {
	h.lastState = h.channel.GetState()
	h.noteState()
}

// noteState inspects the cached state after any channel exchange.
func (h *Helper) noteState() {
	if h.lastState.Error.IsError() && !h.contextLost {
		log.Printf("[client] channel error: %v", h.lastState.Error)
		h.contextLost = true
		h.clearUsable()
	}
}

// count bumps a metric when a registry is attached.
func (h *Helper) count(key string, delta int64) {
	if h.metrics != nil {
		h.metrics.Inc(key, delta)
	}
}
