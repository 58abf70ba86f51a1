// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gptstructs

import (
	"errors"
	"fmt"
	"io"

	"github.com/siderolabs/go-gptimage/internal/gptutil"
	"github.com/siderolabs/go-gptimage/internal/ioutil"
	"github.com/siderolabs/go-gptimage/lba"
)

// ErrInvalidHeader is returned when a GPT header fails validation.
var ErrInvalidHeader = errors.New("invalid GPT header")

// maxEntriesSize limits the size of the partition entry array accepted by ReadHeader.
const maxEntriesSize = 1 << 20

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidHeader}, args...)...)
}

// ReadHeader reads the GPT header at the given LBA and its partition entries.
//
// It does sanity checks on the header and partition entries, returning ErrInvalidHeader
// if any of them fail.
func ReadHeader(r io.ReaderAt, myLBA, lastLBA uint64) (Header, []Entry, error) {
	buf := make([]byte, lba.BlockSize)

	if err := ioutil.ReadFullAt(r, buf, int64(myLBA)*lba.BlockSize); err != nil {
		return nil, nil, err
	}

	hdr := Header(buf)

	// verify the header signature
	if hdr.Signature() != HeaderSignature {
		return nil, nil, invalid("bad signature at LBA %d", myLBA)
	}

	// sanity check the header size
	headerSize := hdr.HeaderSize()
	if headerSize < HeaderSize || headerSize > lba.BlockSize {
		return nil, nil, invalid("header size %d", headerSize)
	}

	// verify the header checksum
	if checksum := hdr.CalculateChecksum(); hdr.HeaderCRC32() != checksum {
		return nil, nil, invalid("header checksum %#08x, expected %#08x", hdr.HeaderCRC32(), checksum)
	}

	// verify LBA
	if hdr.MyLBA() != myLBA {
		return nil, nil, invalid("my LBA %d, expected %d", hdr.MyLBA(), myLBA)
	}

	firstUsableLBA := hdr.FirstUsableLBA()
	lastUsableLBA := hdr.LastUsableLBA()

	// verify the usable LBA range
	if lastUsableLBA < firstUsableLBA || firstUsableLBA > lastLBA || lastUsableLBA > lastLBA {
		return nil, nil, invalid("usable range [%d, %d]", firstUsableLBA, lastUsableLBA)
	}

	// header should be outside the usable range
	if firstUsableLBA <= myLBA && myLBA <= lastUsableLBA {
		return nil, nil, invalid("header LBA %d inside usable range", myLBA)
	}

	if hdr.SizeofPartitionEntry() != EntrySize {
		return nil, nil, invalid("partition entry size %d", hdr.SizeofPartitionEntry())
	}

	numEntries := uint64(hdr.NumPartitionEntries())
	if numEntries == 0 || numEntries*EntrySize > maxEntriesSize {
		return nil, nil, invalid("number of partition entries %d", numEntries)
	}

	// read partition entries, verify checksum
	entriesBuffer := make([]byte, numEntries*EntrySize)

	if err := ioutil.ReadFullAt(r, entriesBuffer, int64(hdr.PartitionEntriesLBA())*lba.BlockSize); err != nil {
		return nil, nil, err
	}

	if entriesChecksum := gptutil.Checksum(entriesBuffer); entriesChecksum != hdr.PartitionEntryArrayCRC32() {
		return nil, nil, invalid("partition entry array checksum %#08x, expected %#08x", hdr.PartitionEntryArrayCRC32(), entriesChecksum)
	}

	entries := make([]Entry, numEntries)
	for i := range entries {
		entries[i] = Entry(entriesBuffer[i*EntrySize : (i+1)*EntrySize])
	}

	return hdr, entries, nil
}
