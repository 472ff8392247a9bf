// File: client/flush.go
// Package client: flush pacing and drain primitives.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import "time"

// commandsPerFlushCheck is how often GetSpace consults the periodic
// flush timer when the option is enabled.
const commandsPerFlushCheck = 100

// Flush hands the consumer everything written so far without waiting.
// The send is elided when nothing new was written since the last one.
func (h *Helper) Flush() {
	// Wrap put before flushing so the wire never carries the physical
	// ring end.
	if h.put == h.totalEntryCount {
		h.put = 0
	}
	if h.usable && h.lastPutSent != h.put {
		h.lastFlushTime = time.Now()
		h.lastPutSent = h.put
		h.channel.Flush(h.put)
		h.flushGeneration++
		h.count("client.flush.async", 1)
		h.calcImmediateEntries(0)
	}
}

// FlushSync submits the current put offset and blocks on the channel
// until the consumer makes progress. The returned state is adopted
// wholesale. Reports false once the helper is unusable.
func (h *Helper) FlushSync() bool {
	if !h.usable {
		return false
	}

	// Wrap put before flushing.
	if h.put == h.totalEntryCount {
		h.put = 0
	}

	h.lastFlushTime = time.Now()
	h.lastPutSent = h.put
	h.lastState = h.channel.FlushSync(h.put, h.lastState.GetOffset)
	h.noteState()
	h.flushGeneration++
	h.count("client.flush.sync", 1)
	h.calcImmediateEntries(0)
	return h.usable
}

// Finish flushes and waits until the ring drains completely. It exits
// early with false when a sync fails, meaning the consumer has shut
// down.
func (h *Helper) Finish() bool {
	if !h.usable {
		return false
	}
	// No work pending.
	if h.put == h.lastState.GetOffset {
		return true
	}
	for {
		if !h.FlushSync() {
			return false
		}
		if h.put == h.lastState.GetOffset {
			return true
		}
	}
}

// PeriodicFlushCheck flushes when the configured interval has elapsed
// since the last send, bounding the latency of sparse command streams.
// GetSpace runs this every commandsPerFlushCheck reservations once
// WithPeriodicFlush arms it; embedders with their own cadence may call
// it directly.
func (h *Helper) PeriodicFlushCheck() {
	if h.periodicFlushInterval <= 0 {
		return
	}
	if time.Since(h.lastFlushTime) > h.periodicFlushInterval {
		h.Flush()
	}
}

func (h *Helper) maybePeriodicFlush() {
	if h.periodicFlushInterval <= 0 {
		return
	}
	if h.reservations%commandsPerFlushCheck == 0 {
		h.PeriodicFlushCheck()
	}
}
