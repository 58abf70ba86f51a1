// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"math"

	"github.com/siderolabs/go-gptimage/internal/gptstructs"
)

// BuildProtectiveMBR returns the 512-byte protective MBR for a disk of totalLBAs blocks.
//
// Boot code, disk signature and the reserved bytes stay zero, records 1-3 are unused.
func BuildProtectiveMBR(totalLBAs uint64, bootable bool) []byte {
	protectiveMBR := gptstructs.ProtectiveMBR(make([]byte, gptstructs.MBRSize))

	protectiveMBR.PutBootSignature(gptstructs.BootSignature)

	b := protectiveMBR.Record(0)

	if bootable {
		// Some BIOSes in legacy mode won't boot from a disk unless there is at least one
		// partition in the MBR marked bootable.
		b.PutBootIndicator(gptstructs.BootIndicatorActive)
	} else {
		b.PutBootIndicator(gptstructs.BootIndicatorPassive)
	}

	b.PutOSType(gptstructs.ProtectiveOSType)

	// CHS for the start and the end of the partition
	b.PutStartingCHS([]byte{0x00, 0x02, 0x00})
	b.PutEndingCHS([]byte{0xff, 0xff, 0xff})

	b.PutStartingLBA(1)

	// size covers everything after the MBR itself, clamped to 32 bits
	size := min(totalLBAs, math.MaxUint32)
	if size > 0 {
		size--
	}

	b.PutSizeInLBA(uint32(size))

	return protectiveMBR
}
