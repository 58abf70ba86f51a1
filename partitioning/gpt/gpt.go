// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gpt builds GPT partitioned disk images.
package gpt

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"

	"github.com/siderolabs/go-gptimage/internal/ioutil"
	"github.com/siderolabs/go-gptimage/lba"
)

// Image is a GPT disk image under construction.
type Image struct {
	// partition entries are indexed with the partition number.
	entries []*Partition

	layout Layout

	diskGUID uuid.UUID

	options Options

	alignment uint64
}

// New creates a new (empty) partition table for a disk image of diskSize bytes.
//
// The image size is rounded up to the whole number of logical blocks.
func New(diskSize uint64, opts ...Option) (*Image, error) {
	options := defaultOptions()

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}

	if options.Alignment%lba.BlockSize != 0 {
		return nil, fmt.Errorf("alignment %d is not a multiple of %d", options.Alignment, lba.BlockSize)
	}

	geom, err := lba.NewGeometry(diskSize)
	if err != nil {
		return nil, fmt.Errorf("disk size %d: %w", diskSize, err)
	}

	layout, err := NewLayout(geom, options.NumEntries, uint64(options.SkipLBAs))
	if err != nil {
		return nil, err
	}

	diskGUID := options.DiskGUID
	if diskGUID == uuid.Nil {
		diskGUID = uuid.New()
	}

	img := &Image{
		layout:    layout,
		diskGUID:  diskGUID,
		options:   options,
		alignment: max(options.Alignment/lba.BlockSize, 1),
	}

	options.Logger.Debug("GPT layout",
		zap.Stringer("disk_guid", diskGUID),
		zap.Uint64("total_lbas", geom.TotalLBAs),
		zap.Uint32("num_entries", layout.NumEntries),
		zap.Uint64("first_usable_lba", layout.FirstUsableLBA),
		zap.Uint64("last_usable_lba", layout.LastUsableLBA),
		zap.Uint64("backup_entries_lba", layout.BackupEntriesLBA),
	)

	return img, nil
}

// Layout returns the placement of GPT structures.
func (img *Image) Layout() Layout {
	return img.layout
}

// DiskGUID returns the disk GUID.
func (img *Image) DiskGUID() uuid.UUID {
	return img.diskGUID
}

// Partitions returns a copy of the list of partitions in the table.
//
// Partitions in the list are zero-indexed.
func (img *Image) Partitions() []Partition {
	return xslices.Map(img.entries, func(p *Partition) Partition {
		return *p
	})
}

func (img *Image) nextFreeLBA() uint64 {
	next := img.layout.FirstUsableLBA

	for _, entry := range img.entries {
		next = max(next, entry.LastLBA+1)
	}

	return next
}

func (img *Image) checkFreeSlot() error {
	if uint64(len(img.entries)) >= uint64(img.layout.NumEntries) {
		return fmt.Errorf("%w: all %d partition entries are in use", ErrImageTooSmall, img.layout.NumEntries)
	}

	return nil
}

// AllocatePartition adds a new partition after the last allocated one.
//
// The size is rounded up to whole logical blocks; zero size takes the rest of the usable space.
// If successful, returns the partition number (1-indexed) and the partition entry created.
func (img *Image) AllocatePartition(size uint64, name string, partType uuid.UUID, opts ...PartitionOption) (int, Partition, error) {
	var options PartitionOptions

	for _, o := range opts {
		o(&options)
	}

	if partType == uuid.Nil {
		return 0, Partition{}, errors.New("partition type must be set")
	}

	if err := img.checkFreeSlot(); err != nil {
		return 0, Partition{}, err
	}

	if options.UniqueGUID == uuid.Nil {
		options.UniqueGUID = uuid.New()
	}

	firstLBA := lba.AlignUp(img.nextFreeLBA(), img.alignment)
	if firstLBA > img.layout.LastUsableLBA {
		return 0, Partition{}, fmt.Errorf("%w: no space left for partition %q", ErrImageTooSmall, name)
	}

	available := img.layout.LastUsableLBA - firstLBA + 1

	length := lba.BytesToLBAs(size)
	if size == 0 {
		length = available
	}

	if length > available {
		return 0, Partition{}, fmt.Errorf("%w: partition %q needs %d LBAs, %d available", ErrImageTooSmall, name, length, available)
	}

	entry := &Partition{
		Name:     name,
		TypeGUID: partType,
		PartGUID: options.UniqueGUID,
		FirstLBA: firstLBA,
		LastLBA:  firstLBA + length - 1,
		Flags:    options.Flags,
	}

	if _, err := BuildEntry(*entry, img.layout.FirstUsableLBA, img.layout.LastUsableLBA); err != nil {
		return 0, Partition{}, err
	}

	if err := checkUniqueGUIDs(append(slices.Clone(img.entries), entry)); err != nil {
		return 0, Partition{}, err
	}

	img.entries = append(img.entries, entry)

	img.options.Logger.Debug("allocated partition",
		zap.Int("number", len(img.entries)),
		zap.String("name", name),
		zap.Stringer("type", partType),
		zap.Uint64("first_lba", entry.FirstLBA),
		zap.Uint64("last_lba", entry.LastLBA),
	)

	return len(img.entries), *entry, nil
}

// AddPartition adds a partition with explicit placement.
//
// If the unique GUID is not set, a random one is generated, an explicit one must not be used by other partitions.
// If successful, returns the partition number (1-indexed).
func (img *Image) AddPartition(p Partition) (int, error) {
	if p.TypeGUID == uuid.Nil {
		return 0, errors.New("partition type must be set")
	}

	if err := img.checkFreeSlot(); err != nil {
		return 0, err
	}

	if p.PartGUID == uuid.Nil {
		p.PartGUID = uuid.New()
	}

	if _, err := BuildEntry(p, img.layout.FirstUsableLBA, img.layout.LastUsableLBA); err != nil {
		return 0, err
	}

	entries := append(slices.Clone(img.entries), &p)

	if err := checkOverlaps(entries); err != nil {
		return 0, err
	}

	if err := checkUniqueGUIDs(entries); err != nil {
		return 0, err
	}

	img.entries = entries

	return len(img.entries), nil
}

// metadata is the serialized GPT structures of the image.
type metadata struct {
	pmbr          []byte
	primaryHeader []byte
	backupHeader  []byte
	entries       []byte
}

type region struct {
	data []byte
	lba  uint64
}

// build serializes the GPT structures.
//
// The entry array is finalized first, then both headers embed its checksum.
func (img *Image) build() (*metadata, error) {
	entries, err := BuildEntryArray(img.entries, img.layout.NumEntries, img.layout.FirstUsableLBA, img.layout.LastUsableLBA)
	if err != nil {
		return nil, err
	}

	// GPT header should occupy whole sector
	sector := func(b []byte) []byte {
		return append(b, make([]byte, lba.BlockSize-len(b))...)
	}

	primaryHeader, err := BuildHeader(Primary, img.layout, img.diskGUID, entries)
	if err != nil {
		return nil, err
	}

	backupHeader, err := BuildHeader(Backup, img.layout, img.diskGUID, entries)
	if err != nil {
		return nil, err
	}

	md := &metadata{
		primaryHeader: sector(primaryHeader),
		backupHeader:  sector(backupHeader),
		entries:       entries,
	}

	if !img.options.SkipPMBR {
		md.pmbr = BuildProtectiveMBR(img.layout.Geometry.TotalLBAs, img.options.MarkPMBRBootable)
	}

	return md, nil
}

// regions returns the metadata regions in disk order.
func (img *Image) regions(md *metadata) []region {
	regions := make([]region, 0, 5)

	if md.pmbr != nil {
		regions = append(regions, region{lba: 0, data: md.pmbr})
	}

	return append(regions,
		region{lba: img.layout.PrimaryHeaderLBA, data: md.primaryHeader},
		region{lba: img.layout.PrimaryEntriesLBA, data: md.entries},
		region{lba: img.layout.BackupEntriesLBA, data: md.entries},
		region{lba: img.layout.BackupHeaderLBA, data: md.backupHeader},
	)
}

// WriteAt writes the GPT structures to w.
//
// Only metadata sectors are written, partition contents are left untouched.
func (img *Image) WriteAt(w io.WriterAt) error {
	md, err := img.build()
	if err != nil {
		return err
	}

	for _, r := range img.regions(md) {
		if _, err = w.WriteAt(r.data, img.layout.Geometry.Offset(r.lba)); err != nil {
			return fmt.Errorf("failed to write at LBA %d: %w", r.lba, err)
		}
	}

	return nil
}

// Build returns the complete disk image.
//
// Everything except GPT structures is zero-filled.
func (img *Image) Build() ([]byte, error) {
	buf := make(ioutil.BufferWriterAt, img.layout.Geometry.Size())

	if err := img.WriteAt(buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// WriteTo writes the complete disk image to w sequentially.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	md, err := img.build()
	if err != nil {
		return 0, err
	}

	var written int64

	for _, r := range img.regions(md) {
		n, err := ioutil.WriteZeroes(w, img.layout.Geometry.Offset(r.lba)-written)
		written += n

		if err != nil {
			return written, err
		}

		m, err := w.Write(r.data)
		written += int64(m)

		if err != nil {
			return written, err
		}
	}

	n, err := ioutil.WriteZeroes(w, int64(img.layout.Geometry.Size())-written)
	written += n

	return written, err
}

// PartitionSpec declares a partition to be allocated by Build.
type PartitionSpec struct {
	Name string
	Type uuid.UUID

	// Size in bytes, zero means the rest of the disk.
	Size uint64

	Options []PartitionOption
}

// Build creates the disk image of diskSize bytes with partitions allocated in order.
func Build(diskSize uint64, parts []PartitionSpec, opts ...Option) ([]byte, error) {
	img, err := New(diskSize, opts...)
	if err != nil {
		return nil, err
	}

	for _, part := range parts {
		if _, _, err = img.AllocatePartition(part.Size, part.Name, part.Type, part.Options...); err != nil {
			return nil, err
		}
	}

	return img.Build()
}
