// File: shm/region.go
// Package shm provides command ring backing memory.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A region is plain memory: it carries no synchronization of its own.
// Ordering between producer and consumer comes entirely from the channel
// that moves put and get offsets across it.

package shm

import (
	"unsafe"

	"github.com/momentics/hioload-cmdbuf/api"
)

// HeapRegion is a process-local region backed by an ordinary Go slice.
// It serves in-process channels and tests.
type HeapRegion struct {
	entries []api.Entry
}

var _ api.Region = (*HeapRegion)(nil)

// NewHeapRegion allocates a zeroed region of sizeBytes bytes.
// sizeBytes must be a positive multiple of the entry size.
func NewHeapRegion(sizeBytes int) (*HeapRegion, error) {
	if sizeBytes <= 0 || sizeBytes%api.EntrySize != 0 {
		return nil, api.ErrInvalidRingSize
	}
	return &HeapRegion{entries: make([]api.Entry, sizeBytes/api.EntrySize)}, nil
}

// Entries returns the region as a slice of ring entries.
func (r *HeapRegion) Entries() []api.Entry {
	return r.entries
}

// Bytes returns the same memory as a raw byte slice.
func (r *HeapRegion) Bytes() []byte {
	if len(r.entries) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&r.entries[0])), len(r.entries)*api.EntrySize)
}

// Size returns the region size in bytes.
func (r *HeapRegion) Size() int {
	return len(r.entries) * api.EntrySize
}

// unsafeEntries reinterprets b as a slice of count ring entries.
// b must be at least count entries long and entry-aligned.
func unsafeEntries(b []byte, count int) []api.Entry {
	return unsafe.Slice((*api.Entry)(unsafe.Pointer(&b[0])), count)
}
