// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gptstructs

import "encoding/binary"

// ProtectiveMBR is a legacy MBR view over a byte slice of MBRSize bytes.
//
// Layout: 440 bytes of boot code, 4 bytes of disk signature, 2 reserved bytes,
// four 16-byte partition records and the 0x55AA boot signature.
type ProtectiveMBR []byte

// MBR offsets.
const (
	offBootCode         = 0
	offDiskSignature    = 440
	offPartitionRecords = 446
	offBootSignature    = 510
	partitionRecordSize = 16
)

// Protective partition record values.
const (
	NumPartitionRecords  = 4
	ProtectiveOSType     = 0xEE
	BootIndicatorActive  = 0x80
	BootIndicatorPassive = 0x00
)

// BootSignature is the value at offset 510 (0x55, 0xAA on disk).
const BootSignature = 0xAA55

// PartitionRecord is a 16-byte legacy partition record.
type PartitionRecord []byte

// Partition record field offsets.
const (
	offBootIndicator = 0  // 1 byte
	offStartingCHS   = 1  // 3 bytes
	offOSType        = 4  // 1 byte
	offEndingCHS     = 5  // 3 bytes
	offStartingLBA32 = 8  // 4 bytes
	offSizeInLBA     = 12 // 4 bytes
)

// Record returns the partition record at index i.
func (m ProtectiveMBR) Record(i int) PartitionRecord {
	off := offPartitionRecords + i*partitionRecordSize

	return PartitionRecord(m[off : off+partitionRecordSize])
}

func (m ProtectiveMBR) BootCode() []byte      { return m[offBootCode:offDiskSignature] }
func (m ProtectiveMBR) DiskSignature() uint32 { return binary.LittleEndian.Uint32(m[offDiskSignature:]) }

func (m ProtectiveMBR) BootSignature() uint16 { return binary.LittleEndian.Uint16(m[offBootSignature:]) }
func (m ProtectiveMBR) PutBootSignature(v uint16) {
	binary.LittleEndian.PutUint16(m[offBootSignature:], v)
}

func (r PartitionRecord) BootIndicator() byte     { return r[offBootIndicator] }
func (r PartitionRecord) PutBootIndicator(v byte) { r[offBootIndicator] = v }

func (r PartitionRecord) StartingCHS() []byte     { return r[offStartingCHS : offStartingCHS+3] }
func (r PartitionRecord) PutStartingCHS(v []byte) { copy(r[offStartingCHS:offStartingCHS+3], v) }

func (r PartitionRecord) OSType() byte     { return r[offOSType] }
func (r PartitionRecord) PutOSType(v byte) { r[offOSType] = v }

func (r PartitionRecord) EndingCHS() []byte     { return r[offEndingCHS : offEndingCHS+3] }
func (r PartitionRecord) PutEndingCHS(v []byte) { copy(r[offEndingCHS:offEndingCHS+3], v) }

func (r PartitionRecord) StartingLBA() uint32 { return binary.LittleEndian.Uint32(r[offStartingLBA32:]) }
func (r PartitionRecord) PutStartingLBA(v uint32) {
	binary.LittleEndian.PutUint32(r[offStartingLBA32:], v)
}

func (r PartitionRecord) SizeInLBA() uint32     { return binary.LittleEndian.Uint32(r[offSizeInLBA:]) }
func (r PartitionRecord) PutSizeInLBA(v uint32) { binary.LittleEndian.PutUint32(r[offSizeInLBA:], v) }
