// File: api/entry.go
// Package api defines the command-buffer entry layout.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Entries are opaque fixed-size records; the protocol core only understands
// the header word of a command and the two reserved opcodes below. Everything
// else belongs to the command interpreter on the service side.

package api

// Entry is one fixed-size slot in a command ring. A command occupies one or
// more contiguous entries and never straddles the physical end of the ring;
// its first entry is a header produced by MakeHeader.
type Entry uint64

// EntrySize is the size of one Entry in bytes.
const EntrySize = 8

const (
	opcodeBits = 11
	sizeBits   = 21

	opcodeMask = 1<<opcodeBits - 1
	sizeMask   = 1<<sizeBits - 1

	sizeShift  = opcodeBits
	valueShift = 32
)

// MaxCommandEntries is the largest entry count a single command header can
// describe. Longer transfers must be split into multiple commands.
const MaxCommandEntries = sizeMask

// MaxOpcode is the largest opcode the header field can carry.
const MaxOpcode = opcodeMask

// Reserved opcodes. Interpreters must not redefine them.
const (
	// OpNoop skips the entries covered by the header's size field. Used to
	// pad the ring tail before a forced wrap to offset 0.
	OpNoop uint32 = 0x000

	// OpSetToken publishes the 31-bit token carried in the header's value
	// field as the service's acknowledged token.
	OpSetToken uint32 = 0x001

	// OpFirstUser is the first opcode available to command interpreters.
	OpFirstUser uint32 = 0x002
)

// TokenMask bounds token values to 31 bits; negative tokens signal errors.
const TokenMask = 0x7FFFFFFF

// MakeHeader packs a command header. size counts entries including the
// header itself. Panics if opcode or size exceed their field widths, which
// is always a programming error on the producer side.
func MakeHeader(opcode uint32, size int32) Entry {
	if opcode > opcodeMask {
		panic("api: opcode exceeds 11 bits")
	}
	if size < 1 || size > sizeMask {
		panic("api: command size out of range")
	}
	return Entry(uint64(opcode) | uint64(size)<<sizeShift)
}

// MakeValueHeader packs a header carrying a 32-bit immediate value.
func MakeValueHeader(opcode uint32, size int32, value uint32) Entry {
	return MakeHeader(opcode, size) | Entry(uint64(value)<<valueShift)
}

// MakeNoop builds a no-op record covering size entries.
func MakeNoop(size int32) Entry {
	return MakeHeader(OpNoop, size)
}

// MakeSetToken builds a one-entry token command.
func MakeSetToken(token int32) Entry {
	return MakeValueHeader(OpSetToken, 1, uint32(token)&TokenMask)
}

// Opcode extracts the command opcode from a header entry.
func (e Entry) Opcode() uint32 {
	return uint32(e) & opcodeMask
}

// CmdSize extracts the command length in entries from a header entry.
func (e Entry) CmdSize() int32 {
	return int32(uint64(e) >> sizeShift & sizeMask)
}

// Value extracts the 32-bit immediate value from a header entry.
func (e Entry) Value() uint32 {
	return uint32(uint64(e) >> valueShift)
}

// Token extracts the 31-bit token from a set-token header.
func (e Entry) Token() int32 {
	return int32(e.Value() & TokenMask)
}
