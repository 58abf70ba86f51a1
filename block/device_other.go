// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !linux

package block

import "errors"

// NewFromPath opens the blockdevice at path for writing.
func NewFromPath(string) (*Device, error) {
	return nil, errors.ErrUnsupported
}

// GetSize returns blockdevice size in bytes.
func (d *Device) GetSize() (uint64, error) {
	return 0, errors.ErrUnsupported
}

// GetSectorSize returns blockdevice logical sector size in bytes.
func (d *Device) GetSectorSize() uint {
	return DefaultBlockSize
}

// TryLock (and return an error if failed).
func (d *Device) TryLock(bool) error {
	return errors.ErrUnsupported
}

// Unlock releases any lock.
func (d *Device) Unlock() error {
	return errors.ErrUnsupported
}

// FastWipe clears stale partition tables and signatures.
func (d *Device) FastWipe() error {
	return errors.ErrUnsupported
}

// RereadPartitionTable invokes the BLKRRPART ioctl to have the kernel read the
// partition table.
func (d *Device) RereadPartitionTable() error {
	return errors.ErrUnsupported
}
