// shm/region_unix.go
//go:build linux || darwin
// +build linux darwin

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// File-backed regions mapped with mmap so that a command ring can be
// shared between processes. The file starts with a small header that
// identifies the format before the entry array begins.

package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-cmdbuf/api"
)

const (
	// regionMagic identifies a mapped command ring file.
	regionMagic = "CMDRING\x00"

	// regionVersion is bumped on any layout change.
	regionVersion = 1

	// regionHeaderSize is the byte offset of the first entry.
	// Layout: magic [8]byte, version uint32, entry count uint32.
	regionHeaderSize = 16
)

// MappedRegion is a region backed by a memory-mapped file, preferring
// /dev/shm so the mapping never touches a real disk.
type MappedRegion struct {
	path    string
	file    *os.File
	mem     []byte
	entries []api.Entry
}

var _ api.Region = (*MappedRegion)(nil)

// NewMappedRegion creates a fresh file-backed region of sizeBytes bytes.
// sizeBytes must be a positive multiple of the entry size.
func NewMappedRegion(sizeBytes int) (*MappedRegion, error) {
	if sizeBytes <= 0 || sizeBytes%api.EntrySize != 0 {
		return nil, api.ErrInvalidRingSize
	}

	path := regionPath("cmdring-" + uuid.NewString())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("create region file %s: %w", path, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	total := regionHeaderSize + sizeBytes
	if err := file.Truncate(int64(total)); err != nil {
		cleanup()
		return nil, fmt.Errorf("resize region file: %w", err)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("mmap region: %w", err)
	}

	copy(mem[0:8], regionMagic)
	binary.LittleEndian.PutUint32(mem[8:12], regionVersion)
	binary.LittleEndian.PutUint32(mem[12:16], uint32(sizeBytes/api.EntrySize))

	return newMappedRegion(path, file, mem), nil
}

// OpenMappedRegion attaches to a region file created by another process
// and validates its header.
func OpenMappedRegion(path string) (*MappedRegion, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open region file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat region file: %w", err)
	}
	if info.Size() < regionHeaderSize {
		file.Close()
		return nil, fmt.Errorf("region file %s too small: %d bytes", path, info.Size())
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap region: %w", err)
	}

	if string(mem[0:8]) != regionMagic {
		unix.Munmap(mem)
		file.Close()
		return nil, fmt.Errorf("region file %s: bad magic", path)
	}
	if v := binary.LittleEndian.Uint32(mem[8:12]); v != regionVersion {
		unix.Munmap(mem)
		file.Close()
		return nil, fmt.Errorf("region file %s: version %d, want %d", path, v, regionVersion)
	}
	count := binary.LittleEndian.Uint32(mem[12:16])
	if int64(regionHeaderSize)+int64(count)*api.EntrySize > info.Size() {
		unix.Munmap(mem)
		file.Close()
		return nil, fmt.Errorf("region file %s: entry count %d exceeds file size", path, count)
	}

	return newMappedRegion(path, file, mem), nil
}

func newMappedRegion(path string, file *os.File, mem []byte) *MappedRegion {
	count := binary.LittleEndian.Uint32(mem[12:16])
	var entries []api.Entry
	if count > 0 {
		entries = unsafeEntries(mem[regionHeaderSize:], int(count))
	}
	return &MappedRegion{path: path, file: file, mem: mem, entries: entries}
}

// Entries returns the region as a slice of ring entries.
func (r *MappedRegion) Entries() []api.Entry {
	return r.entries
}

// Bytes returns the entry memory as a raw byte slice, header excluded.
func (r *MappedRegion) Bytes() []byte {
	return r.mem[regionHeaderSize : regionHeaderSize+len(r.entries)*api.EntrySize]
}

// Size returns the usable region size in bytes, header excluded.
func (r *MappedRegion) Size() int {
	return len(r.entries) * api.EntrySize
}

// Path returns the backing file path, for handing to another process.
func (r *MappedRegion) Path() string {
	return r.path
}

// Close unmaps the region and closes the file, leaving the file on disk
// for other attached processes.
func (r *MappedRegion) Close() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	r.entries = nil
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Destroy unmaps the region and removes the backing file.
func (r *MappedRegion) Destroy() error {
	err := r.Close()
	if rerr := os.Remove(r.path); rerr != nil && !os.IsNotExist(rerr) && err == nil {
		err = rerr
	}
	return err
}

// regionPath places region files under /dev/shm when available so the
// mapping stays memory-resident, falling back to the temp directory.
func regionPath(name string) string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", name)
	}
	return filepath.Join(os.TempDir(), name)
}
