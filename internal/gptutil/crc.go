// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gptutil

import "hash/crc32"

// Checksum returns the CRC32 of data as used by UEFI.
//
// This is the reflected IEEE polynomial (0xEDB88320) with initial value and
// final XOR of 0xFFFFFFFF.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
