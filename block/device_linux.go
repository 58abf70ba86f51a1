// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/siderolabs/go-gptimage/internal/ioutil"
)

// FastWipeRange is the length wiped at each end of the device by FastWipe.
const FastWipeRange = 1024 * 1024

// NewFromPath opens the blockdevice at path for writing.
func NewFromPath(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}

	return &Device{f: f}, nil
}

// GetSize returns blockdevice size in bytes.
func (d *Device) GetSize() (uint64, error) {
	var devsize uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&devsize))); errno != 0 {
		return 0, errno
	}

	return devsize, nil
}

// GetSectorSize returns blockdevice logical sector size in bytes.
func (d *Device) GetSectorSize() uint {
	var size uint32

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(unix.BLKSSZGET), uintptr(unsafe.Pointer(&size))); errno != 0 {
		return DefaultBlockSize
	}

	return uint(size)
}

// TryLock (and return an error if failed).
func (d *Device) TryLock(exclusive bool) error {
	return d.lock(exclusive, unix.LOCK_NB)
}

// Unlock releases any lock.
func (d *Device) Unlock() error {
	for {
		if err := unix.Flock(int(d.f.Fd()), unix.LOCK_UN); !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func (d *Device) lock(exclusive bool, flag int) error {
	if exclusive {
		flag |= unix.LOCK_EX
	} else {
		flag |= unix.LOCK_SH
	}

	for {
		if err := unix.Flock(int(d.f.Fd()), flag); !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

// FastWipe clears stale partition tables and signatures.
//
// The device is discarded (which might or might not zero it), and the first and last
// FastWipeRange bytes are zeroed.
func (d *Device) FastWipe() error {
	size, err := d.GetSize()
	if err != nil {
		return err
	}

	r := [2]uint64{0, size}

	// ignoring the error here as DISCARD might be not supported by the device
	unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKDISCARD, uintptr(unsafe.Pointer(&r[0]))) //nolint:errcheck
	runtime.KeepAlive(d)

	if err = d.zeroRange(0, min(size, FastWipeRange)); err != nil {
		return err
	}

	if size >= FastWipeRange*2 {
		return d.zeroRange(size-FastWipeRange, FastWipeRange)
	}

	return nil
}

func (d *Device) zeroRange(start, length uint64) error {
	r := [2]uint64{start, length}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKZEROOUT, uintptr(unsafe.Pointer(&r[0]))); errno == 0 {
		runtime.KeepAlive(d)

		return nil
	}

	if _, err := d.f.Seek(int64(start), io.SeekStart); err != nil {
		return err
	}

	_, err := ioutil.WriteZeroes(d.f, int64(length))

	return err
}

// RereadPartitionTable invokes the BLKRRPART ioctl to have the kernel read the
// partition table.
//
// Rereading the partition table fails with EBUSY while partitions are in use, it is retried for a while.
func (d *Device) RereadPartitionTable() error {
	if err := d.f.Sync(); err != nil {
		return err
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKFLSBUF, 0); errno != 0 {
		return fmt.Errorf("flush block device buffers: %w", errno)
	}

	const (
		attempts = 100
		interval = 50 * time.Millisecond
	)

	var errno unix.Errno

	for range attempts {
		if _, _, errno = unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKRRPART, 0); errno != unix.EBUSY {
			break
		}

		time.Sleep(interval)
	}

	if errno != 0 {
		return fmt.Errorf("failed to re-read partition table: %w", errno)
	}

	return nil
}
