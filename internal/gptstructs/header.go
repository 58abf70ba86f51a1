// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gptstructs

import (
	"encoding/binary"
	"slices"

	"github.com/siderolabs/go-gptimage/internal/gptutil"
)

// Header is a GPT header view over a byte slice of at least HeaderSize bytes.
type Header []byte

// Header field offsets.
const (
	offSignature           = 0  // 8 bytes
	offRevision            = 8  // 4 bytes
	offHeaderSize          = 12 // 4 bytes
	offHeaderCRC32         = 16 // 4 bytes
	offReserved            = 20 // 4 bytes
	offMyLBA               = 24 // 8 bytes
	offAlternateLBA        = 32 // 8 bytes
	offFirstUsableLBA      = 40 // 8 bytes
	offLastUsableLBA       = 48 // 8 bytes
	offDiskGUID            = 56 // 16 bytes
	offPartitionEntriesLBA = 72 // 8 bytes
	offNumEntries          = 80 // 4 bytes
	offSizeofEntry         = 84 // 4 bytes
	offEntryArrayCRC32     = 88 // 4 bytes
)

func (h Header) Signature() uint64 { return binary.LittleEndian.Uint64(h[offSignature:]) }
func (h Header) PutSignature(v uint64) { binary.LittleEndian.PutUint64(h[offSignature:], v) }

func (h Header) Revision() uint32     { return binary.LittleEndian.Uint32(h[offRevision:]) }
func (h Header) PutRevision(v uint32) { binary.LittleEndian.PutUint32(h[offRevision:], v) }

func (h Header) HeaderSize() uint32     { return binary.LittleEndian.Uint32(h[offHeaderSize:]) }
func (h Header) PutHeaderSize(v uint32) { binary.LittleEndian.PutUint32(h[offHeaderSize:], v) }

func (h Header) HeaderCRC32() uint32     { return binary.LittleEndian.Uint32(h[offHeaderCRC32:]) }
func (h Header) PutHeaderCRC32(v uint32) { binary.LittleEndian.PutUint32(h[offHeaderCRC32:], v) }

func (h Header) Reserved() uint32 { return binary.LittleEndian.Uint32(h[offReserved:]) }

func (h Header) MyLBA() uint64     { return binary.LittleEndian.Uint64(h[offMyLBA:]) }
func (h Header) PutMyLBA(v uint64) { binary.LittleEndian.PutUint64(h[offMyLBA:], v) }

func (h Header) AlternateLBA() uint64     { return binary.LittleEndian.Uint64(h[offAlternateLBA:]) }
func (h Header) PutAlternateLBA(v uint64) { binary.LittleEndian.PutUint64(h[offAlternateLBA:], v) }

func (h Header) FirstUsableLBA() uint64 { return binary.LittleEndian.Uint64(h[offFirstUsableLBA:]) }
func (h Header) PutFirstUsableLBA(v uint64) {
	binary.LittleEndian.PutUint64(h[offFirstUsableLBA:], v)
}

func (h Header) LastUsableLBA() uint64     { return binary.LittleEndian.Uint64(h[offLastUsableLBA:]) }
func (h Header) PutLastUsableLBA(v uint64) { binary.LittleEndian.PutUint64(h[offLastUsableLBA:], v) }

// DiskGUID returns the raw (mixed-endian) disk GUID.
func (h Header) DiskGUID() []byte { return h[offDiskGUID : offDiskGUID+16] }

// PutDiskGUID stores the raw (mixed-endian) disk GUID.
func (h Header) PutDiskGUID(v []byte) { copy(h[offDiskGUID:offDiskGUID+16], v) }

func (h Header) PartitionEntriesLBA() uint64 {
	return binary.LittleEndian.Uint64(h[offPartitionEntriesLBA:])
}

func (h Header) PutPartitionEntriesLBA(v uint64) {
	binary.LittleEndian.PutUint64(h[offPartitionEntriesLBA:], v)
}

func (h Header) NumPartitionEntries() uint32 { return binary.LittleEndian.Uint32(h[offNumEntries:]) }
func (h Header) PutNumPartitionEntries(v uint32) {
	binary.LittleEndian.PutUint32(h[offNumEntries:], v)
}

func (h Header) SizeofPartitionEntry() uint32 {
	return binary.LittleEndian.Uint32(h[offSizeofEntry:])
}

func (h Header) PutSizeofPartitionEntry(v uint32) {
	binary.LittleEndian.PutUint32(h[offSizeofEntry:], v)
}

func (h Header) PartitionEntryArrayCRC32() uint32 {
	return binary.LittleEndian.Uint32(h[offEntryArrayCRC32:])
}

func (h Header) PutPartitionEntryArrayCRC32(v uint32) {
	binary.LittleEndian.PutUint32(h[offEntryArrayCRC32:], v)
}

// CalculateChecksum calculates the checksum of the header.
//
// The checksum covers HeaderSize() bytes, the header CRC32 field is treated as zero.
// A header size outside [HeaderSize, len(h)] falls back to HeaderSize.
func (h Header) CalculateChecksum() uint32 {
	size := int(h.HeaderSize())
	if size < HeaderSize || size > len(h) {
		size = HeaderSize
	}

	b := slices.Clone(h[:size])

	b[offHeaderCRC32] = 0
	b[offHeaderCRC32+1] = 0
	b[offHeaderCRC32+2] = 0
	b[offHeaderCRC32+3] = 0

	return gptutil.Checksum(b)
}
