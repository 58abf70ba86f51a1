// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siderolabs/go-gptimage/internal/gptstructs"
)

// Options is a set of options for creating a new partition table.
type Options struct {
	SkipPMBR         bool
	MarkPMBRBootable bool

	// Number of LBAs to skip before the writing partition entries.
	SkipLBAs uint

	// DiskGUID is a GUID for the disk.
	//
	// If not set, on partition table creation, a new GUID is generated.
	DiskGUID uuid.UUID

	// NumEntries is the number of slots in the partition entry array.
	NumEntries uint32

	// Alignment of partition start in bytes, must be a multiple of the block size.
	//
	// Zero means partitions are packed without alignment.
	Alignment uint64

	Logger *zap.Logger
}

// Option is a function that sets some option.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		NumEntries: gptstructs.NumEntries,
		Logger:     zap.NewNop(),
	}
}

// WithSkipPMBR is an option to skip writing protective MBR.
func WithSkipPMBR() Option {
	return func(o *Options) {
		o.SkipPMBR = true
	}
}

// WithMarkPMBRBootable is an option to mark protective MBR bootable.
func WithMarkPMBRBootable() Option {
	return func(o *Options) {
		o.MarkPMBRBootable = true
	}
}

// WithSkipLBAs is an option to skip LBAs between the primary header and the partition entries.
func WithSkipLBAs(n uint) Option {
	return func(o *Options) {
		o.SkipLBAs = n
	}
}

// WithDiskGUID is an option to set disk GUID.
func WithDiskGUID(guid uuid.UUID) Option {
	return func(o *Options) {
		o.DiskGUID = guid
	}
}

// WithNumEntries sets the number of partition entries in the table.
func WithNumEntries(n uint32) Option {
	return func(o *Options) {
		o.NumEntries = n
	}
}

// WithAlignment sets partition start alignment in bytes.
func WithAlignment(alignment uint64) Option {
	return func(o *Options) {
		o.Alignment = alignment
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// PartitionOptions configure a partition.
type PartitionOptions struct {
	UniqueGUID uuid.UUID
	Flags      uint64
}

// PartitionOption is a function that sets some option.
type PartitionOption func(*PartitionOptions)

// WithUniqueGUID is an option to set a unique GUID for the partition.
func WithUniqueGUID(guid uuid.UUID) PartitionOption {
	return func(o *PartitionOptions) {
		o.UniqueGUID = guid
	}
}

// WithAttributes sets the raw attribute bits of the partition.
func WithAttributes(flags uint64) PartitionOption {
	return func(o *PartitionOptions) {
		o.Flags |= flags
	}
}

// WithLegacyBIOSBootableAttribute marks the partition as bootable.
func WithLegacyBIOSBootableAttribute(val bool) PartitionOption {
	return func(args *PartitionOptions) {
		if val {
			args.Flags |= AttributeLegacyBIOSBootable
		}
	}
}
