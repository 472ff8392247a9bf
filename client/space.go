// File: client/space.go
// Package client: reservation path and writable-window accounting.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import "github.com/momentics/hioload-cmdbuf/api"

// calcImmediateEntries recomputes how many contiguous entries can be
// handed out without talking to the channel. One slot always stays
// unused so that put == get never means both full and empty. With
// auto-flush enabled the window is additionally capped so a backlog
// forces a flush before it grows past the current tier's share of the
// ring; the cap never drops below waitingCount, or a command larger
// than the flush limit could never be reserved.
func (h *Helper) calcImmediateEntries(waitingCount int32) {
	if !h.usable || !h.haveRingBuffer() {
		h.immediateEntryCount = 0
		return
	}

	currGet := h.lastState.GetOffset
	if currGet > h.put {
		h.immediateEntryCount = currGet - h.put - 1
	} else {
		sentinel := int32(0)
		if currGet == 0 {
			sentinel = 1
		}
		h.immediateEntryCount = h.totalEntryCount - h.put - sentinel
	}

	if !h.flushAutomatically {
		return
	}

	divisor := int32(autoFlushBig)
	if currGet == h.lastPutSent {
		divisor = autoFlushSmall
	}
	limit := h.totalEntryCount / divisor

	pending := (h.put + h.totalEntryCount - h.lastPutSent) % h.totalEntryCount
	if pending > 0 && pending >= limit {
		// Backlog reached the tier cap: next reservation must flush.
		h.immediateEntryCount = 0
	} else {
		limit -= pending
		if limit < waitingCount {
			limit = waitingCount
		}
		if h.immediateEntryCount > limit {
			h.immediateEntryCount = limit
		}
	}
}

// waitForAvailableEntries makes room for count contiguous entries,
// wrapping the ring with no-op padding when the tail is too short and
// spinning on FlushSync while the consumer catches up. Each spin
// iteration performs a real channel exchange. Returns early if the
// helper gets poisoned, in which case the space is not available.
func (h *Helper) waitForAvailableEntries(count int32) {
	// A reservation that ended exactly at the physical end leaves put at
	// the ring end. That is position zero for everything below; wrapping
	// here keeps the tail-padding branch free of the put == 0 ambiguity.
	if h.put == h.totalEntryCount {
		h.put = 0
	}
	if h.put+count > h.totalEntryCount {
		// Not enough room between put and the ring end. Pad to the end
		// and wrap, but only once get has wrapped to 1 or more, since
		// put lands on 0 and must not catch up with get.
		currGet := h.lastState.GetOffset
		for currGet > h.put || currGet == 0 {
			h.count("client.wrap.stalls", 1)
			if !h.FlushSync() {
				return
			}
			currGet = h.lastState.GetOffset
		}

		h.padRingTail()
	}

	// Try to get count entries without any flushing.
	h.calcImmediateEntries(count)
	if h.immediateEntryCount < count {
		// Try again after a shallow flush.
		h.Flush()
		h.calcImmediateEntries(count)
		for h.immediateEntryCount < count {
			// Ring is full. Do not loop forever if the sync fails;
			// the consumer may have shut down.
			h.count("client.space.stalls", 1)
			if !h.FlushSync() {
				return
			}
			h.calcImmediateEntries(count)
		}
	}
}

// padRingTail fills the entries from put to the ring end with no-op
// commands and wraps put to zero. Each chunk is one no-op whose size
// stays within the header size field, so rings larger than a single
// command's limit still pad correctly. The caller must have confirmed
// that get has wrapped.
func (h *Helper) padRingTail() {
	remaining := h.totalEntryCount - h.put
	for remaining > 0 {
		skip := remaining
		if skip > api.MaxCommandEntries {
			skip = api.MaxCommandEntries
		}
		h.entries[h.put] = api.MakeNoop(skip)
		h.put += skip
		remaining -= skip
		h.count("client.wrap.noops", int64(skip))
	}
	h.put = 0
}

// GetSpace reserves count contiguous entries and advances the producer
// cursor past them. The caller must fully write the span before the
// next helper call. Returns nil when the helper is or becomes unusable.
// count must be at least 1 and below the ring capacity.
func (h *Helper) GetSpace(count int32) []api.Entry {
	if !h.AllocateRingBuffer() {
		return nil
	}
	if count < 1 || count >= h.totalEntryCount {
		panic("client: reservation size out of range")
	}

	h.reservations++
	h.maybePeriodicFlush()

	if count > h.immediateEntryCount {
		h.waitForAvailableEntries(count)
		if count > h.immediateEntryCount {
			return nil
		}
	}

	h.immediateEntryCount -= count
	span := h.entries[h.put : h.put+count]
	h.put += count
	return span
}
