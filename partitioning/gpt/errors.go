// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"errors"

	"github.com/siderolabs/go-gptimage/lba"
)

// Common errors.
var (
	// ErrInvalidRange is returned for malformed or overlapping partition LBA bounds.
	ErrInvalidRange = errors.New("invalid partition range")
	// ErrInvalidGUID is returned for a missing or duplicate unique partition GUID.
	ErrInvalidGUID = errors.New("invalid unique partition GUID")
	// ErrNameTooLong is returned when the partition name does not fit 36 UTF-16 code units.
	ErrNameTooLong = errors.New("partition name too long")
	// ErrImageTooSmall is returned when partitions and metadata do not fit the disk.
	ErrImageTooSmall = errors.New("image too small")
	// ErrOverflow is returned when geometry arithmetic exceeds the addressable range.
	ErrOverflow = lba.ErrOverflow
	// ErrVerify is returned when an image fails verification.
	ErrVerify = errors.New("GPT verification failed")
)
