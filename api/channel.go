// File: api/channel.go
// Package api defines the command-buffer ring protocol contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel is the abstract boundary between the client-side ring helper and
// the service that consumes command entries. The client owns the put cursor,
// the service owns the get cursor, and neither side ever mutates the other's;
// both are exchanged exclusively through the calls below.

package api

// State is a snapshot of the service side of a command channel. It is the
// only way the client learns how far the service has progressed; a cached
// State is untrusted until refreshed through GetState or FlushSync.
type State struct {
	// NumEntries is the capacity, in entries, of the consumer region as the
	// service sees it. Zero until a consumer region has been installed.
	NumEntries int32

	// GetOffset is the index up to which the service has consumed entries.
	GetOffset int32

	// PutOffset is the most recent put offset the service has accepted.
	PutOffset int32

	// Token is the last token value the service has executed.
	Token int32

	// Error is sticky once non-zero; the service never recovers from it.
	Error ErrorCode
}

// Region is a fixed-capacity transfer region shared between client and
// service. Regions are created and destroyed only through a Channel; the
// client is the sole writer of entries, the service only reads them.
type Region interface {
	// Entries returns the entry view of the region. The slice aliases the
	// shared memory; it is valid until the region is destroyed.
	Entries() []Entry

	// Bytes returns the raw byte view backing Entries.
	Bytes() []byte

	// Size returns the region size in bytes.
	Size() int
}

// Channel is the transport-agnostic contract to the command-buffer service.
// All calls are synchronous from the caller's point of view except Flush,
// which is fire-and-forget. Implementations must be safe for use by one
// client goroutine concurrently with their own service context.
type Channel interface {
	// CreateRegion allocates a shared transfer region of sizeBytes and
	// returns it with a channel-scoped id.
	CreateRegion(sizeBytes int) (Region, int32, error)

	// DestroyRegion releases a region previously returned by CreateRegion.
	// Unknown ids are ignored.
	DestroyRegion(id int32)

	// SetConsumerRegion tells the service which region to read entries from
	// and resets both cursors to zero.
	SetConsumerRegion(id int32)

	// GetState returns a fresh snapshot of the service state.
	GetState() State

	// Flush hands putOffset to the service without waiting for consumption.
	Flush(putOffset int32)

	// FlushSync hands putOffset to the service and blocks until the get
	// cursor has moved past expectedGetOffset, the stream has drained to
	// putOffset, or an error/teardown is observed. Every blocking client
	// loop is bounded by this call, so implementations must not return
	// before one of those conditions holds.
	FlushSync(putOffset, expectedGetOffset int32) State
}
