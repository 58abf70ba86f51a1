// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package lba implements conversions between byte counts and logical block addresses.
package lba

import (
	"errors"
	"math"
	"math/bits"
)

// BlockSize is the logical block size in bytes.
const BlockSize = 512

// ErrOverflow is returned when geometry arithmetic exceeds the addressable range.
var ErrOverflow = errors.New("geometry overflow")

// BytesToLBAs returns the number of logical blocks required to hold the given number of bytes.
//
// Any partial block is rounded up.
func BytesToLBAs(bytes uint64) uint64 {
	lbas := bytes / BlockSize

	if bytes%BlockSize != 0 {
		lbas++
	}

	return lbas
}

// ToBytes returns the size in bytes of the given number of logical blocks.
func ToBytes(lbas uint64) (uint64, error) {
	hi, lo := bits.Mul64(lbas, BlockSize)
	if hi != 0 {
		return 0, ErrOverflow
	}

	return lo, nil
}

// AlignUp rounds lba up to the next multiple of alignment.
func AlignUp(lba, alignment uint64) uint64 {
	if alignment <= 1 {
		return lba
	}

	return (lba + alignment - 1) / alignment * alignment
}

// Geometry describes the disk in logical blocks.
//
//nolint:govet
type Geometry struct {
	LogicalBlockSize uint32
	TotalLBAs        uint64
}

// NewGeometry derives the geometry for a disk of the given size in bytes.
//
// The resulting image must fit into memory, so the total size is limited to math.MaxInt.
func NewGeometry(sizeBytes uint64) (Geometry, error) {
	totalLBAs := BytesToLBAs(sizeBytes)

	size, err := ToBytes(totalLBAs)
	if err != nil {
		return Geometry{}, err
	}

	if size > math.MaxInt {
		return Geometry{}, ErrOverflow
	}

	return Geometry{
		LogicalBlockSize: BlockSize,
		TotalLBAs:        totalLBAs,
	}, nil
}

// LastLBA returns the address of the last logical block.
func (g Geometry) LastLBA() uint64 {
	if g.TotalLBAs == 0 {
		return 0
	}

	return g.TotalLBAs - 1
}

// Size returns the size of the disk in bytes.
func (g Geometry) Size() uint64 {
	return g.TotalLBAs * uint64(g.LogicalBlockSize)
}

// Offset returns the byte offset of the given LBA.
func (g Geometry) Offset(lba uint64) int64 {
	return int64(lba) * int64(g.LogicalBlockSize)
}
