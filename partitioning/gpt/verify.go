// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/siderolabs/go-gptimage/internal/gptstructs"
	"github.com/siderolabs/go-gptimage/internal/gptutil"
	"github.com/siderolabs/go-gptimage/internal/ioutil"
	"github.com/siderolabs/go-gptimage/lba"
)

// Info is the result of verifying an image.
//
//nolint:govet
type Info struct {
	DiskGUID uuid.UUID

	// ProtectiveMBR is false if sector 0 holds no MBR boot signature.
	ProtectiveMBR bool

	TotalLBAs      uint64
	FirstUsableLBA uint64
	LastUsableLBA  uint64
	NumEntries     uint32

	EntriesChecksum uint32

	// Partitions maps 1-based partition numbers of used entries.
	Partitions map[int]Partition
}

func verifyError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrVerify}, args...)...)
}

// Verify checks the GPT structures of an image of size bytes.
//
// Both headers must be valid and mirror each other, partition entry arrays must be identical,
// and used entries must lie within the usable range without overlaps.
func Verify(r io.ReaderAt, size uint64) (*Info, error) {
	if size%lba.BlockSize != 0 {
		return nil, verifyError("image size %d is not a multiple of %d", size, lba.BlockSize)
	}

	totalLBAs := size / lba.BlockSize
	if totalLBAs < 3 {
		return nil, verifyError("image of %d LBAs is too small", totalLBAs)
	}

	lastLBA := totalLBAs - 1

	info := &Info{
		TotalLBAs: totalLBAs,
	}

	if err := verifyProtectiveMBR(r, totalLBAs, info); err != nil {
		return nil, err
	}

	primary, primaryEntries, err := gptstructs.ReadHeader(r, 1, lastLBA)
	if err != nil {
		return nil, fmt.Errorf("%w: primary header: %w", ErrVerify, err)
	}

	if primary.AlternateLBA() != lastLBA {
		return nil, verifyError("primary header points to backup at LBA %d, expected %d", primary.AlternateLBA(), lastLBA)
	}

	backup, backupEntries, err := gptstructs.ReadHeader(r, lastLBA, lastLBA)
	if err != nil {
		return nil, fmt.Errorf("%w: backup header: %w", ErrVerify, err)
	}

	if backup.AlternateLBA() != 1 {
		return nil, verifyError("backup header points to primary at LBA %d", backup.AlternateLBA())
	}

	if !bytes.Equal(primary.DiskGUID(), backup.DiskGUID()) ||
		primary.FirstUsableLBA() != backup.FirstUsableLBA() ||
		primary.LastUsableLBA() != backup.LastUsableLBA() ||
		primary.NumPartitionEntries() != backup.NumPartitionEntries() ||
		primary.PartitionEntryArrayCRC32() != backup.PartitionEntryArrayCRC32() {
		return nil, verifyError("primary and backup headers differ")
	}

	for i := range primaryEntries {
		if !bytes.Equal(primaryEntries[i], backupEntries[i]) {
			return nil, verifyError("partition entry %d differs between primary and backup", i+1)
		}
	}

	info.DiskGUID, err = uuid.FromBytes(gptutil.GUIDToUUID(primary.DiskGUID()))
	if err != nil {
		return nil, err
	}

	info.FirstUsableLBA = primary.FirstUsableLBA()
	info.LastUsableLBA = primary.LastUsableLBA()
	info.NumEntries = primary.NumPartitionEntries()
	info.EntriesChecksum = primary.PartitionEntryArrayCRC32()

	info.Partitions, err = decodeEntries(primaryEntries)
	if err != nil {
		return nil, err
	}

	parts := make([]*Partition, 0, len(info.Partitions))

	for _, part := range info.Partitions {
		if err = checkRange(&part, info.FirstUsableLBA, info.LastUsableLBA); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrVerify, err)
		}

		parts = append(parts, &part)
	}

	if err = checkOverlaps(parts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerify, err)
	}

	if err = checkUniqueGUIDs(parts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerify, err)
	}

	return info, nil
}

func verifyProtectiveMBR(r io.ReaderAt, totalLBAs uint64, info *Info) error {
	protectiveMBR := gptstructs.ProtectiveMBR(make([]byte, gptstructs.MBRSize))

	if err := ioutil.ReadFullAt(r, protectiveMBR, 0); err != nil {
		return fmt.Errorf("failed to read protective MBR: %w", err)
	}

	if protectiveMBR.BootSignature() != gptstructs.BootSignature {
		return nil
	}

	info.ProtectiveMBR = true

	rec := protectiveMBR.Record(0)

	if rec.OSType() != gptstructs.ProtectiveOSType || rec.StartingLBA() != 1 {
		return verifyError("MBR has no protective partition record")
	}

	expected := BuildProtectiveMBR(totalLBAs, false)
	if rec.SizeInLBA() != gptstructs.ProtectiveMBR(expected).Record(0).SizeInLBA() {
		return verifyError("protective partition record size %d doesn't match the disk", rec.SizeInLBA())
	}

	for i := 1; i < gptstructs.NumPartitionRecords; i++ {
		if !bytes.Equal(protectiveMBR.Record(i), make([]byte, 16)) {
			return verifyError("MBR partition record %d is not empty", i)
		}
	}

	return nil
}

func decodeEntries(entries []gptstructs.Entry) (map[int]Partition, error) {
	partitions := map[int]Partition{}

	for idx, entry := range entries {
		// skip zero GUIDs
		if entry.IsZero() {
			continue
		}

		partUUID, err := uuid.FromBytes(gptutil.GUIDToUUID(entry.UniquePartitionGUID()))
		if err != nil {
			return nil, err
		}

		typeUUID, err := uuid.FromBytes(gptutil.GUIDToUUID(entry.PartitionTypeGUID()))
		if err != nil {
			return nil, err
		}

		name, err := utf16.NewDecoder().Bytes(entry.PartitionName())
		if err != nil {
			return nil, err
		}

		name = bytes.TrimRight(name, "\x00")

		partitions[idx+1] = Partition{
			Name: string(name),

			TypeGUID: typeUUID,
			PartGUID: partUUID,

			FirstLBA: entry.StartingLBA(),
			LastLBA:  entry.EndingLBA(),

			Flags: entry.Attributes(),
		}
	}

	return partitions, nil
}
