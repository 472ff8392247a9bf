// File: protocol/record.go
// Package protocol implements a byte-record codec over command entries
// with payload size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A record is one command whose header value field carries the payload
// length in bytes; the payload packs little-endian into the trailing
// entries, zero-padded to the entry size. The ring core never looks
// inside records, so this codec stays an opt-in layer between an
// embedder and its service handler.

package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/client"
)

// MaxRecordPayload bounds a single record's payload. Larger transfers
// must be split across records; the cap also keeps a record's entry
// count far below any sane ring capacity.
const MaxRecordPayload = 1 << 20

var (
	// ErrPayloadTooLarge reports a payload over MaxRecordPayload or one
	// that cannot fit the attached ring.
	ErrPayloadTooLarge = errors.New("record payload exceeds maximum allowed size")

	// ErrReservedOpcode reports an opcode outside the user range.
	ErrReservedOpcode = errors.New("record opcode is reserved or out of range")

	// ErrRingUnavailable reports an unusable producer helper.
	ErrRingUnavailable = errors.New("command ring is unavailable")

	// ErrMalformedRecord reports a command span that is not a record.
	ErrMalformedRecord = errors.New("malformed record command")
)

// RecordEntries returns the entry count of a record carrying
// payloadLen bytes, header included.
func RecordEntries(payloadLen int) int32 {
	return 1 + int32((payloadLen+api.EntrySize-1)/api.EntrySize)
}

// AppendRecord reserves ring space and writes one record. The payload
// is fully copied before return; the caller may reuse it immediately.
func AppendRecord(h *client.Helper, opcode uint32, payload []byte) error {
	if opcode < api.OpFirstUser || opcode > api.MaxOpcode {
		return ErrReservedOpcode
	}
	if len(payload) > MaxRecordPayload {
		return ErrPayloadTooLarge
	}
	if !h.AllocateRingBuffer() {
		return ErrRingUnavailable
	}

	entries := RecordEntries(len(payload))
	if entries >= h.TotalEntries() {
		return ErrPayloadTooLarge
	}
	span := h.GetSpace(entries)
	if span == nil {
		return ErrRingUnavailable
	}

	span[0] = api.MakeValueHeader(opcode, entries, uint32(len(payload)))
	rest := payload
	for i := 1; len(rest) >= api.EntrySize; i++ {
		span[i] = api.Entry(binary.LittleEndian.Uint64(rest))
		rest = rest[api.EntrySize:]
	}
	if len(rest) > 0 {
		var tail [api.EntrySize]byte
		copy(tail[:], rest)
		span[entries-1] = api.Entry(binary.LittleEndian.Uint64(tail[:]))
	}
	return nil
}

// DecodeRecord unpacks a record command into a fresh payload slice.
func DecodeRecord(cmd []api.Entry) (uint32, []byte, error) {
	return DecodeRecordBuffer(cmd, nil)
}

// DecodeRecordBuffer unpacks a record command into a caller-managed
// buffer, minimizing allocations. The returned slice aliases dst.
func DecodeRecordBuffer(cmd []api.Entry, dst []byte) (uint32, []byte, error) {
	if len(cmd) == 0 {
		return 0, nil, ErrMalformedRecord
	}
	header := cmd[0]
	if int(header.CmdSize()) != len(cmd) {
		return 0, nil, ErrMalformedRecord
	}
	payloadLen := int(header.Value())
	if payloadLen > MaxRecordPayload || RecordEntries(payloadLen) != int32(len(cmd)) {
		return 0, nil, ErrMalformedRecord
	}

	dst = dst[:0]
	var scratch [api.EntrySize]byte
	for _, e := range cmd[1:] {
		binary.LittleEndian.PutUint64(scratch[:], uint64(e))
		dst = append(dst, scratch[:]...)
	}
	return header.Opcode(), dst[:payloadLen], nil
}
