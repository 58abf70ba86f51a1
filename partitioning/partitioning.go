// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package partitioning implements common partitioning functions.
package partitioning

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Well-known GPT partition types.
var (
	EFISystem          = uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
	BIOSBoot           = uuid.MustParse("21686148-6449-6E6F-744E-656564454649")
	LinuxFilesystem    = uuid.MustParse("0FC63DAF-8483-4772-8E79-3D69D8477DE4")
	LinuxSwap          = uuid.MustParse("0657FD6D-A4AB-43C4-84E5-0933C84B4F4F")
	LinuxLVM           = uuid.MustParse("E6D6D379-F507-44C2-A23C-238F2A3DF928")
	LinuxRootX86_64    = uuid.MustParse("4F68BCE3-E8CD-4DB1-96E7-FBCAF984B709")
	LinuxRootARM64     = uuid.MustParse("B921B045-1DF0-41C3-AF44-4C6F280D3FAE")
	MicrosoftBasicData = uuid.MustParse("EBD0A0A2-B9E5-4433-87C0-68B6B72699C7")
)

var typeAliases = map[string]uuid.UUID{
	"efi":                  EFISystem,
	"esp":                  EFISystem,
	"bios-boot":            BIOSBoot,
	"linux":                LinuxFilesystem,
	"swap":                 LinuxSwap,
	"lvm":                  LinuxLVM,
	"linux-root-x86-64":    LinuxRootX86_64,
	"linux-root-arm64":     LinuxRootARM64,
	"microsoft-basic-data": MicrosoftBasicData,
}

// ParseType converts a partition type alias or a GUID string to the partition type GUID.
func ParseType(s string) (uuid.UUID, error) {
	if t, ok := typeAliases[strings.ToLower(s)]; ok {
		return t, nil
	}

	t, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("unknown partition type %q", s)
	}

	if t == uuid.Nil {
		return uuid.Nil, fmt.Errorf("partition type %q is reserved for unused entries", s)
	}

	return t, nil
}

// TypeAliases returns the sorted list of known partition type aliases.
func TypeAliases() []string {
	aliases := make([]string, 0, len(typeAliases))

	for alias := range typeAliases {
		aliases = append(aliases, alias)
	}

	slices.Sort(aliases)

	return aliases
}
