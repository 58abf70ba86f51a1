// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-gptimage/internal/gptstructs"
	"github.com/siderolabs/go-gptimage/internal/gptutil"
)

// Partition attribute bits.
const (
	AttributeRequired           = 1 << 0
	AttributeNoBlockIOProtocol  = 1 << 1
	AttributeLegacyBIOSBootable = 1 << 2
)

// Partition is a single partition entry in GPT.
type Partition struct {
	Name string

	TypeGUID uuid.UUID
	PartGUID uuid.UUID

	FirstLBA uint64
	LastLBA  uint64

	Flags uint64
}

// Length returns the partition's length in LBA.
func (p *Partition) Length() uint64 {
	// in GPT, LastLBA is inclusive, so +1
	return p.LastLBA - p.FirstLBA + 1
}

var utf16 = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func encodeName(name string) ([]byte, error) {
	nameBuf, err := utf16.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("failed to encode partition name: %w", err)
	}

	if len(nameBuf) > gptstructs.MaxNameLength*2 {
		return nil, fmt.Errorf("%w: %q is %d bytes", ErrNameTooLong, name, len(nameBuf))
	}

	return nameBuf, nil
}

func checkRange(p *Partition, firstUsableLBA, lastUsableLBA uint64) error {
	if p.FirstLBA > p.LastLBA {
		return fmt.Errorf("%w: %q first LBA %d is after last LBA %d", ErrInvalidRange, p.Name, p.FirstLBA, p.LastLBA)
	}

	if p.FirstLBA < firstUsableLBA || p.LastLBA > lastUsableLBA {
		return fmt.Errorf("%w: %q [%d, %d] is outside of usable range [%d, %d]",
			ErrInvalidRange, p.Name, p.FirstLBA, p.LastLBA, firstUsableLBA, lastUsableLBA)
	}

	return nil
}

// BuildEntry returns the 128-byte partition entry for p.
//
// The partition must lie within [firstUsableLBA, lastUsableLBA].
func BuildEntry(p Partition, firstUsableLBA, lastUsableLBA uint64) ([]byte, error) {
	entry := gptstructs.Entry(make([]byte, gptstructs.EntrySize))

	if err := putEntry(entry, &p, firstUsableLBA, lastUsableLBA); err != nil {
		return nil, err
	}

	return entry, nil
}

func putEntry(entry gptstructs.Entry, p *Partition, firstUsableLBA, lastUsableLBA uint64) error {
	if err := checkRange(p, firstUsableLBA, lastUsableLBA); err != nil {
		return err
	}

	nameBuf, err := encodeName(p.Name)
	if err != nil {
		return err
	}

	entry.PutPartitionTypeGUID(gptutil.UUIDToGUID(p.TypeGUID[:]))
	entry.PutUniquePartitionGUID(gptutil.UUIDToGUID(p.PartGUID[:]))
	entry.PutStartingLBA(p.FirstLBA)
	entry.PutEndingLBA(p.LastLBA)
	entry.PutAttributes(p.Flags)
	entry.PutPartitionName(nameBuf)

	return nil
}

// BuildEntryArray returns the serialized partition entry array of numEntries slots.
//
// Partitions are stored in slot order, nil partitions and slots past the end of parts are zeroed.
func BuildEntryArray(parts []*Partition, numEntries uint32, firstUsableLBA, lastUsableLBA uint64) ([]byte, error) {
	if uint64(len(parts)) > uint64(numEntries) {
		return nil, fmt.Errorf("%w: %d partitions exceed %d entries", ErrInvalidRange, len(parts), numEntries)
	}

	if err := checkOverlaps(parts); err != nil {
		return nil, err
	}

	if err := checkUniqueGUIDs(parts); err != nil {
		return nil, err
	}

	entriesBuf := make([]byte, gptstructs.EntrySize*int(numEntries))

	for i, part := range parts {
		if part == nil {
			// zeroed entry
			continue
		}

		entryBuf := gptstructs.Entry(entriesBuf[i*gptstructs.EntrySize : (i+1)*gptstructs.EntrySize])

		if err := putEntry(entryBuf, part, firstUsableLBA, lastUsableLBA); err != nil {
			return nil, fmt.Errorf("partition %d: %w", i+1, err)
		}
	}

	return entriesBuf, nil
}

func checkOverlaps(parts []*Partition) error {
	sorted := make([]*Partition, 0, len(parts))

	for _, part := range parts {
		if part != nil {
			sorted = append(sorted, part)
		}
	}

	slices.SortFunc(sorted, func(a, b *Partition) int {
		return cmp.Compare(a.FirstLBA, b.FirstLBA)
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].FirstLBA <= sorted[i-1].LastLBA {
			return fmt.Errorf("%w: %q overlaps with %q", ErrInvalidRange, sorted[i].Name, sorted[i-1].Name)
		}
	}

	return nil
}

// checkUniqueGUIDs verifies that every partition has a non-nil unique GUID not shared with other partitions.
func checkUniqueGUIDs(parts []*Partition) error {
	seen := make(map[uuid.UUID]string, len(parts))

	for _, part := range parts {
		if part == nil {
			continue
		}

		if part.PartGUID == uuid.Nil {
			return fmt.Errorf("%w: %q has no unique GUID", ErrInvalidGUID, part.Name)
		}

		if other, ok := seen[part.PartGUID]; ok {
			return fmt.Errorf("%w: %q and %q share %s", ErrInvalidGUID, other, part.Name, part.PartGUID)
		}

		seen[part.PartGUID] = part.Name
	}

	return nil
}
