// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gptstructs

import (
	"bytes"
	"encoding/binary"
)

// Entry is a GPT partition entry view over a byte slice of EntrySize bytes.
type Entry []byte

// Entry field offsets.
const (
	offPartitionTypeGUID   = 0  // 16 bytes
	offUniquePartitionGUID = 16 // 16 bytes
	offStartingLBA         = 32 // 8 bytes
	offEndingLBA           = 40 // 8 bytes
	offAttributes          = 48 // 8 bytes
	offPartitionName       = 56 // 72 bytes
)

func (e Entry) PartitionTypeGUID() []byte { return e[offPartitionTypeGUID : offPartitionTypeGUID+16] }
func (e Entry) PutPartitionTypeGUID(v []byte) {
	copy(e[offPartitionTypeGUID:offPartitionTypeGUID+16], v)
}

func (e Entry) UniquePartitionGUID() []byte {
	return e[offUniquePartitionGUID : offUniquePartitionGUID+16]
}

func (e Entry) PutUniquePartitionGUID(v []byte) {
	copy(e[offUniquePartitionGUID:offUniquePartitionGUID+16], v)
}

func (e Entry) StartingLBA() uint64     { return binary.LittleEndian.Uint64(e[offStartingLBA:]) }
func (e Entry) PutStartingLBA(v uint64) { binary.LittleEndian.PutUint64(e[offStartingLBA:], v) }

func (e Entry) EndingLBA() uint64     { return binary.LittleEndian.Uint64(e[offEndingLBA:]) }
func (e Entry) PutEndingLBA(v uint64) { binary.LittleEndian.PutUint64(e[offEndingLBA:], v) }

func (e Entry) Attributes() uint64     { return binary.LittleEndian.Uint64(e[offAttributes:]) }
func (e Entry) PutAttributes(v uint64) { binary.LittleEndian.PutUint64(e[offAttributes:], v) }

// PartitionName returns the raw UTF-16LE name field.
func (e Entry) PartitionName() []byte { return e[offPartitionName:EntrySize] }

// PutPartitionName stores the UTF-16LE name, null-padding the rest of the field.
func (e Entry) PutPartitionName(v []byte) {
	field := e[offPartitionName:EntrySize]

	n := copy(field, v)
	clear(field[n:])
}

// IsZero returns true if the entry is unused.
func (e Entry) IsZero() bool {
	return bytes.Equal(e.PartitionTypeGUID(), make([]byte, 16))
}
