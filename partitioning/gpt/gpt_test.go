// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-gptimage/internal/gptstructs"
	"github.com/siderolabs/go-gptimage/internal/gptutil"
	"github.com/siderolabs/go-gptimage/internal/ioutil"
	"github.com/siderolabs/go-gptimage/lba"
	"github.com/siderolabs/go-gptimage/partitioning"
	"github.com/siderolabs/go-gptimage/partitioning/gpt"
)

func allocateError(_ int, _ gpt.Partition, err error) error {
	return err
}

func TestEmptyImage(t *testing.T) {
	t.Parallel()

	const diskSize = 33*MiB + 33*MiB + 1*MiB

	image, err := gpt.Build(diskSize, nil,
		gpt.WithDiskGUID(uuid.MustParse("D815C311-BDED-43FE-A91A-DCBE0D8025D5")),
		gpt.WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)

	totalLBAs := lba.BytesToLBAs(70254592)
	require.EqualValues(t, 137216, totalLBAs)
	require.Len(t, image, int(totalLBAs*512))

	// protective MBR covers the whole disk
	assert.Equal(t, []byte{0x55, 0xAA}, image[510:512])
	assert.EqualValues(t, 0xEE, image[450])
	assert.Equal(t, totalLBAs-1, uint64(binary.LittleEndian.Uint32(image[458:462])))

	primary := image[512 : 512+92]
	backup := image[(totalLBAs-1)*512 : (totalLBAs-1)*512+92]

	assert.Equal(t, []byte("EFI PART"), primary[:8])
	assert.Equal(t, []byte("EFI PART"), backup[:8])

	// header sector padding is zero
	assert.Equal(t, make([]byte, 512-92), image[512+92:1024])

	primaryEntries := image[2*512 : 34*512]
	backupEntries := image[(totalLBAs-33)*512 : (totalLBAs-1)*512]

	assert.Equal(t, primaryEntries, backupEntries)
	assert.Equal(t, primary[88:92], backup[88:92])
	assert.EqualValues(t, 0xAB54D286, binary.LittleEndian.Uint32(primary[88:92]))

	info, err := gpt.Verify(bytes.NewReader(image), uint64(len(image)))
	require.NoError(t, err)

	assert.True(t, info.ProtectiveMBR)
	assert.Equal(t, uuid.MustParse("D815C311-BDED-43FE-A91A-DCBE0D8025D5"), info.DiskGUID)
	assert.EqualValues(t, 34, info.FirstUsableLBA)
	assert.EqualValues(t, 137182, info.LastUsableLBA)
	assert.Empty(t, info.Partitions)
}

func TestAllocatePartition(t *testing.T) {
	t.Parallel()

	img, err := gpt.New(128*MiB, gpt.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	layout := img.Layout()

	no, part, err := img.AllocatePartition(64*MiB, "data", partitioning.LinuxFilesystem)
	require.NoError(t, err)

	assert.Equal(t, 1, no)
	assert.Equal(t, layout.FirstUsableLBA, part.FirstLBA)
	assert.Equal(t, lba.BytesToLBAs(64*MiB), part.LastLBA-part.FirstLBA+1)
	assert.Equal(t, lba.BytesToLBAs(64*MiB), part.Length())
	assert.NotEqual(t, uuid.Nil, part.PartGUID)

	// odd sizes are rounded up to whole blocks
	no, part, err = img.AllocatePartition(1000, "odd", partitioning.LinuxSwap, gpt.WithLegacyBIOSBootableAttribute(true))
	require.NoError(t, err)

	assert.Equal(t, 2, no)
	assert.EqualValues(t, 2, part.Length())
	assert.EqualValues(t, gpt.AttributeLegacyBIOSBootable, part.Flags)

	// zero size takes the rest
	no, part, err = img.AllocatePartition(0, "rest", partitioning.LinuxFilesystem)
	require.NoError(t, err)

	assert.Equal(t, 3, no)
	assert.Equal(t, layout.LastUsableLBA, part.LastLBA)

	require.ErrorIs(t, allocateError(img.AllocatePartition(512, "none", partitioning.LinuxFilesystem)), gpt.ErrImageTooSmall)

	assert.Len(t, img.Partitions(), 3)

	image, err := img.Build()
	require.NoError(t, err)

	info, err := gpt.Verify(bytes.NewReader(image), uint64(len(image)))
	require.NoError(t, err)

	require.Len(t, info.Partitions, 3)

	for i, expected := range img.Partitions() {
		assert.Equal(t, expected, info.Partitions[i+1])
	}
}

func TestAllocatePartitionAlignment(t *testing.T) {
	t.Parallel()

	img, err := gpt.New(6*GiB, gpt.WithAlignment(1*MiB))
	require.NoError(t, err)

	require.NoError(t, allocateError(img.AllocatePartition(1*GiB, "1G", partitioning.EFISystem)))
	require.NoError(t, allocateError(img.AllocatePartition(100*MiB+1, "100M", partitioning.EFISystem)))

	_, part, err := img.AllocatePartition(0, "rest", partitioning.LinuxLVM)
	require.NoError(t, err)

	parts := img.Partitions()

	assert.EqualValues(t, 2048, parts[0].FirstLBA)
	assert.EqualValues(t, 2048+2097152-1, parts[0].LastLBA)
	assert.EqualValues(t, 2048+2097152, parts[1].FirstLBA)
	assert.EqualValues(t, 204801, parts[1].Length())
	assert.EqualValues(t, 0, part.FirstLBA%2048)
	assert.Equal(t, img.Layout().LastUsableLBA, part.LastLBA)

	_, err = gpt.New(6*GiB, gpt.WithAlignment(1000))
	require.Error(t, err)
}

func TestAllocatePartitionErrors(t *testing.T) {
	t.Parallel()

	img, err := gpt.New(1*MiB, gpt.WithNumEntries(4))
	require.NoError(t, err)

	require.ErrorIs(t, allocateError(img.AllocatePartition(1*MiB, "big", partitioning.LinuxFilesystem)), gpt.ErrImageTooSmall)
	require.ErrorIs(t, allocateError(img.AllocatePartition(512, "0123456789012345678901234567890123456", partitioning.LinuxFilesystem)), gpt.ErrNameTooLong)
	require.Error(t, allocateError(img.AllocatePartition(512, "nil type", uuid.Nil)))

	for range 4 {
		require.NoError(t, allocateError(img.AllocatePartition(512, "small", partitioning.LinuxFilesystem)))
	}

	// all entry slots are in use
	require.ErrorIs(t, allocateError(img.AllocatePartition(512, "small", partitioning.LinuxFilesystem)), gpt.ErrImageTooSmall)
}

func TestAddPartition(t *testing.T) {
	t.Parallel()

	img, err := gpt.New(128 * MiB)
	require.NoError(t, err)

	no, err := img.AddPartition(gpt.Partition{
		Name:     "second",
		TypeGUID: partitioning.LinuxFilesystem,
		FirstLBA: 4096,
		LastLBA:  8191,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, no)

	_, err = img.AddPartition(gpt.Partition{
		Name:     "overlap",
		TypeGUID: partitioning.LinuxFilesystem,
		FirstLBA: 2048,
		LastLBA:  4096,
	})
	require.ErrorIs(t, err, gpt.ErrInvalidRange)

	_, err = img.AddPartition(gpt.Partition{
		Name:     "metadata",
		TypeGUID: partitioning.LinuxFilesystem,
		FirstLBA: 2,
		LastLBA:  100,
	})
	require.ErrorIs(t, err, gpt.ErrInvalidRange)

	no, err = img.AddPartition(gpt.Partition{
		Name:     "first",
		TypeGUID: partitioning.EFISystem,
		FirstLBA: 2048,
		LastLBA:  4095,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, no)

	// allocation continues after the highest partition
	_, part, err := img.AllocatePartition(1*MiB, "third", partitioning.LinuxFilesystem)
	require.NoError(t, err)
	assert.EqualValues(t, 8192, part.FirstLBA)

	image, err := img.Build()
	require.NoError(t, err)

	info, err := gpt.Verify(bytes.NewReader(image), uint64(len(image)))
	require.NoError(t, err)

	assert.Equal(t, "second", info.Partitions[1].Name)
	assert.Equal(t, "first", info.Partitions[2].Name)
	assert.Equal(t, "third", info.Partitions[3].Name)
}

func TestDuplicateUniqueGUID(t *testing.T) {
	t.Parallel()

	guid := uuid.MustParse("DA66737E-1ED4-4DDF-B98C-70CEBFE3ADA0")

	img, err := gpt.New(128 * MiB)
	require.NoError(t, err)

	require.NoError(t, allocateError(img.AllocatePartition(1*MiB, "first", partitioning.LinuxFilesystem, gpt.WithUniqueGUID(guid))))
	require.ErrorIs(t, allocateError(img.AllocatePartition(1*MiB, "second", partitioning.LinuxFilesystem, gpt.WithUniqueGUID(guid))), gpt.ErrInvalidGUID)

	_, err = img.AddPartition(gpt.Partition{
		Name:     "explicit",
		TypeGUID: partitioning.LinuxFilesystem,
		PartGUID: guid,
		FirstLBA: 8192,
		LastLBA:  16383,
	})
	require.ErrorIs(t, err, gpt.ErrInvalidGUID)

	assert.Len(t, img.Partitions(), 1)

	_, err = gpt.Build(128*MiB, []gpt.PartitionSpec{
		{
			Name:    "first",
			Type:    partitioning.LinuxFilesystem,
			Size:    1 * MiB,
			Options: []gpt.PartitionOption{gpt.WithUniqueGUID(guid)},
		},
		{
			Name:    "second",
			Type:    partitioning.LinuxFilesystem,
			Size:    1 * MiB,
			Options: []gpt.PartitionOption{gpt.WithUniqueGUID(guid)},
		},
	})
	require.ErrorIs(t, err, gpt.ErrInvalidGUID)
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	_, err := gpt.New(math.MaxUint64)
	require.ErrorIs(t, err, gpt.ErrOverflow)

	_, err = gpt.New(34 * 512)
	require.ErrorIs(t, err, gpt.ErrImageTooSmall)

	_, err = gpt.Build(1*MiB, []gpt.PartitionSpec{
		{Name: "a", Type: partitioning.LinuxFilesystem, Size: 512 * 1024},
		{Name: "b", Type: partitioning.LinuxFilesystem, Size: 512 * 1024},
	})
	require.ErrorIs(t, err, gpt.ErrImageTooSmall)
}

func TestWriteTo(t *testing.T) {
	t.Parallel()

	for _, test := range []struct { //nolint:govet
		name string
		opts []gpt.Option
	}{
		{
			name: "default",
		},
		{
			name: "no PMBR",
			opts: []gpt.Option{gpt.WithSkipPMBR()},
		},
		{
			name: "skip LBAs",
			opts: []gpt.Option{gpt.WithSkipLBAs(5), gpt.WithMarkPMBRBootable()},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			opts := append([]gpt.Option{gpt.WithDiskGUID(uuid.New())}, test.opts...)

			img, err := gpt.New(5*MiB+100, opts...)
			require.NoError(t, err)

			require.NoError(t, allocateError(img.AllocatePartition(2*MiB, "boot", partitioning.EFISystem)))
			require.NoError(t, allocateError(img.AllocatePartition(0, "root", partitioning.LinuxRootX86_64)))

			image, err := img.Build()
			require.NoError(t, err)
			assert.Len(t, image, 10241*512)

			var buf bytes.Buffer

			n, err := img.WriteTo(&buf)
			require.NoError(t, err)

			assert.EqualValues(t, len(image), n)
			assert.Equal(t, image, buf.Bytes())

			// sparse write over a pre-filled buffer touches only metadata
			sparse := make(ioutil.BufferWriterAt, len(image))
			for i := range sparse {
				sparse[i] = 0xff
			}

			require.NoError(t, img.WriteAt(sparse))

			layout := img.Layout()
			assert.Equal(t, image[512:2*512], []byte(sparse[512:2*512]))
			assert.Equal(t, image[layout.Geometry.Offset(layout.BackupHeaderLBA):], []byte(sparse[layout.Geometry.Offset(layout.BackupHeaderLBA):]))
			assert.EqualValues(t, 0xff, sparse[layout.Geometry.Offset(layout.FirstUsableLBA)])

			_, err = gpt.Verify(bytes.NewReader(image), uint64(len(image)))
			require.NoError(t, err)
		})
	}
}

func TestBuildDeterministic(t *testing.T) {
	t.Parallel()

	diskGUID := uuid.New()
	partGUID := uuid.New()

	build := func() []byte {
		image, err := gpt.Build(16*MiB, []gpt.PartitionSpec{
			{
				Name:    "data",
				Type:    partitioning.LinuxFilesystem,
				Options: []gpt.PartitionOption{gpt.WithUniqueGUID(partGUID), gpt.WithAttributes(gpt.AttributeRequired)},
			},
		}, gpt.WithDiskGUID(diskGUID))
		require.NoError(t, err)

		return image
	}

	assert.Equal(t, build(), build())
}

func TestVerifyCorruption(t *testing.T) {
	t.Parallel()

	img, err := gpt.New(8 * MiB)
	require.NoError(t, err)

	require.NoError(t, allocateError(img.AllocatePartition(1*MiB, "data", partitioning.LinuxFilesystem)))

	image, err := img.Build()
	require.NoError(t, err)

	layout := img.Layout()

	for _, test := range []struct {
		name   string
		offset int64
	}{
		{"MBR record", 450},
		{"primary header", 512 + 40},
		{"primary entries", layout.Geometry.Offset(layout.PrimaryEntriesLBA) + 60},
		{"backup entries", layout.Geometry.Offset(layout.BackupEntriesLBA) + 60},
		{"backup header", layout.Geometry.Offset(layout.BackupHeaderLBA) + 8},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			corrupted := bytes.Clone(image)
			corrupted[test.offset] ^= 0x01

			_, err := gpt.Verify(bytes.NewReader(corrupted), uint64(len(corrupted)))
			require.ErrorIs(t, err, gpt.ErrVerify)
		})
	}

	_, err = gpt.Verify(bytes.NewReader(image), uint64(len(image))-1)
	require.ErrorIs(t, err, gpt.ErrVerify)
}

// rewriteEntries modifies both partition entry arrays and fixes up header checksums.
func rewriteEntries(image []byte, layout gpt.Layout, mutate func(entries []byte)) {
	for _, lbas := range [][2]uint64{
		{layout.PrimaryHeaderLBA, layout.PrimaryEntriesLBA},
		{layout.BackupHeaderLBA, layout.BackupEntriesLBA},
	} {
		headerOffset := layout.Geometry.Offset(lbas[0])
		entriesOffset := layout.Geometry.Offset(lbas[1])

		entries := image[entriesOffset : entriesOffset+int64(layout.EntriesSize())]
		mutate(entries)

		hdr := gptstructs.Header(image[headerOffset : headerOffset+lba.BlockSize])
		hdr.PutPartitionEntryArrayCRC32(gptutil.Checksum(entries))
		hdr.PutHeaderCRC32(hdr.CalculateChecksum())
	}
}

func TestVerifyUniqueGUIDs(t *testing.T) {
	t.Parallel()

	img, err := gpt.New(8 * MiB)
	require.NoError(t, err)

	require.NoError(t, allocateError(img.AllocatePartition(1*MiB, "a", partitioning.LinuxFilesystem)))
	require.NoError(t, allocateError(img.AllocatePartition(1*MiB, "b", partitioning.LinuxFilesystem)))

	image, err := img.Build()
	require.NoError(t, err)

	for _, test := range []struct {
		name   string
		mutate func(entries []byte)

		expectedError error
	}{
		{
			name:   "unchanged",
			mutate: func([]byte) {},
		},
		{
			name: "duplicate unique GUID",
			mutate: func(entries []byte) {
				copy(entries[gptstructs.EntrySize+16:gptstructs.EntrySize+32], entries[16:32])
			},
			expectedError: gpt.ErrInvalidGUID,
		},
		{
			name: "nil unique GUID",
			mutate: func(entries []byte) {
				clear(entries[gptstructs.EntrySize+16 : gptstructs.EntrySize+32])
			},
			expectedError: gpt.ErrInvalidGUID,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			modified := bytes.Clone(image)
			rewriteEntries(modified, img.Layout(), test.mutate)

			_, err := gpt.Verify(bytes.NewReader(modified), uint64(len(modified)))
			if test.expectedError == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, gpt.ErrVerify)
			require.ErrorIs(t, err, test.expectedError)
		})
	}
}
