// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/siderolabs/go-gptimage/internal/gptstructs"
	"github.com/siderolabs/go-gptimage/internal/gptutil"
	"github.com/siderolabs/go-gptimage/lba"
)

// Role selects the primary or the backup GPT header.
type Role int

// Header roles.
const (
	Primary Role = iota
	Backup
)

func (r Role) String() string {
	switch r {
	case Primary:
		return "primary"
	case Backup:
		return "backup"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Layout is the placement of GPT structures on the disk.
//
//nolint:govet
type Layout struct {
	Geometry lba.Geometry

	NumEntries  uint32
	EntriesLBAs uint64

	PrimaryHeaderLBA, BackupHeaderLBA   uint64
	PrimaryEntriesLBA, BackupEntriesLBA uint64
	FirstUsableLBA, LastUsableLBA       uint64
}

// NewLayout computes GPT structure placement for the disk geometry.
//
// skipLBAs is the gap between the primary header and the primary partition entries.
func NewLayout(geom lba.Geometry, numEntries uint32, skipLBAs uint64) (Layout, error) {
	if numEntries == 0 {
		return Layout{}, errors.New("number of partition entries must be positive")
	}

	lastLBA := geom.LastLBA()
	lbasForEntries := lba.BytesToLBAs(uint64(numEntries) * gptstructs.EntrySize)

	// MBR, primary header, skipped LBAs, entries (twice), backup header
	if geom.TotalLBAs < 3 || skipLBAs > lastLBA || 2*lbasForEntries > lastLBA-skipLBAs {
		return Layout{}, fmt.Errorf("%w: %d LBAs can't hold GPT metadata", ErrImageTooSmall, geom.TotalLBAs)
	}

	l := Layout{
		Geometry:    geom,
		NumEntries:  numEntries,
		EntriesLBAs: lbasForEntries,
	}

	l.PrimaryHeaderLBA = 1
	l.BackupHeaderLBA = lastLBA

	l.PrimaryEntriesLBA = l.PrimaryHeaderLBA + 1 + skipLBAs
	l.BackupEntriesLBA = l.BackupHeaderLBA - lbasForEntries

	l.FirstUsableLBA = l.PrimaryEntriesLBA + lbasForEntries
	l.LastUsableLBA = l.BackupEntriesLBA - 1

	if l.FirstUsableLBA >= l.LastUsableLBA {
		return Layout{}, fmt.Errorf("%w: usable range [%d, %d] is empty", ErrImageTooSmall, l.FirstUsableLBA, l.LastUsableLBA)
	}

	return l, nil
}

// EntriesSize returns the size of the partition entry array in bytes.
func (l Layout) EntriesSize() int {
	return int(l.NumEntries) * gptstructs.EntrySize
}

// BuildHeader returns the 92-byte GPT header for the role.
//
// entries must be the finalized partition entry array, as the header embeds its checksum.
func BuildHeader(role Role, layout Layout, diskGUID uuid.UUID, entries []byte) ([]byte, error) {
	if len(entries) != layout.EntriesSize() {
		return nil, fmt.Errorf("entry array is %d bytes, expected %d", len(entries), layout.EntriesSize())
	}

	header := gptstructs.Header(make([]byte, gptstructs.HeaderSize))
	header.PutSignature(gptstructs.HeaderSignature)
	header.PutRevision(gptstructs.HeaderRevision)
	header.PutHeaderSize(gptstructs.HeaderSize)

	switch role {
	case Primary:
		header.PutMyLBA(layout.PrimaryHeaderLBA)
		header.PutAlternateLBA(layout.BackupHeaderLBA)
		header.PutPartitionEntriesLBA(layout.PrimaryEntriesLBA)
	case Backup:
		header.PutMyLBA(layout.BackupHeaderLBA)
		header.PutAlternateLBA(layout.PrimaryHeaderLBA)
		header.PutPartitionEntriesLBA(layout.BackupEntriesLBA)
	default:
		return nil, fmt.Errorf("unknown header role %s", role)
	}

	header.PutFirstUsableLBA(layout.FirstUsableLBA)
	header.PutLastUsableLBA(layout.LastUsableLBA)
	header.PutDiskGUID(gptutil.UUIDToGUID(diskGUID[:]))
	header.PutNumPartitionEntries(layout.NumEntries)
	header.PutSizeofPartitionEntry(gptstructs.EntrySize)
	header.PutPartitionEntryArrayCRC32(gptutil.Checksum(entries))

	// CRC is filled last, over the header with the CRC field zeroed
	header.PutHeaderCRC32(header.CalculateChecksum())

	return header, nil
}
