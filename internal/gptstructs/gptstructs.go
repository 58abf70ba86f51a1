// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gptstructs provides encoded definitions for GPT on-disk structures.
//
// All multi-byte integers are little-endian.
package gptstructs

// NumEntries is the default number of entries in the GPT.
const NumEntries = 128

// Structure sizes.
const (
	MBRSize    = 512
	HeaderSize = 92
	EntrySize  = 128
)

// HeaderSignature is the signature of the GPT header.
const HeaderSignature = 0x5452415020494645 // "EFI PART"

// HeaderRevision is the GPT revision 1.0.
const HeaderRevision = 0x00010000

// MaxNameLength is the maximum partition name length in UTF-16 code units.
const MaxNameLength = 36
