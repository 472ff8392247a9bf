// shm/region_stub.go
//go:build !linux && !darwin
// +build !linux,!darwin

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub for platforms without mmap-backed regions. Heap regions remain
// available everywhere.

package shm

import "github.com/momentics/hioload-cmdbuf/api"

// MappedRegion is unavailable on this platform.
type MappedRegion struct{}

// NewMappedRegion reports that file-backed regions are not supported here.
func NewMappedRegion(sizeBytes int) (*MappedRegion, error) {
	return nil, api.ErrNotSupported
}

// OpenMappedRegion reports that file-backed regions are not supported here.
func OpenMappedRegion(path string) (*MappedRegion, error) {
	return nil, api.ErrNotSupported
}

func (r *MappedRegion) Entries() []api.Entry { return nil }
func (r *MappedRegion) Bytes() []byte        { return nil }
func (r *MappedRegion) Size() int            { return 0 }
func (r *MappedRegion) Path() string         { return "" }
func (r *MappedRegion) Close() error         { return api.ErrNotSupported }
func (r *MappedRegion) Destroy() error       { return api.ErrNotSupported }
