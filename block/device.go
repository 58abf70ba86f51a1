// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package block provides support for writing disk images to blockdevices.
package block

import (
	"errors"
	"io/fs"
	"os"
)

// DefaultBlockSize is the default block size in bytes.
const DefaultBlockSize = 512

// Device wraps blockdevice operations.
type Device struct {
	f *os.File
}

// NewFromFile returns a new Device from the specified file.
func NewFromFile(f *os.File) *Device {
	return &Device{f: f}
}

// IsBlockDevice returns true if the path exists and is a block device.
func IsBlockDevice(path string) (bool, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	mode := st.Mode()

	return mode&fs.ModeDevice != 0 && mode&fs.ModeCharDevice == 0, nil
}

// File returns the underlying file.
func (d *Device) File() *os.File {
	return d.f
}

// WriteAt implements io.WriterAt.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

// ReadAt implements io.ReaderAt.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

// Close the device.
func (d *Device) Close() error {
	return d.f.Close()
}
