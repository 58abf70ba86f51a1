// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"github.com/siderolabs/go-gptimage/lba"
	"github.com/siderolabs/go-gptimage/partitioning/gpt"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <image>",
		Short: "Verify GPT structures of a disk image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := verifyImage(args[0])
			if err != nil {
				return err
			}

			return printInfo(cmd.OutOrStdout(), info)
		},
	}
}

// verifyImage verifies the image file, decompressing zstd images in memory.
func verifyImage(path string) (*gpt.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close() //nolint:errcheck

	if !strings.HasSuffix(path, ".zst") {
		st, err := f.Stat()
		if err != nil {
			return nil, err
		}

		return gpt.Verify(f, uint64(st.Size()))
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}

	defer dec.Close()

	image, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress image: %w", err)
	}

	return gpt.Verify(bytes.NewReader(image), uint64(len(image)))
}

func printInfo(out io.Writer, info *gpt.Info) error {
	fmt.Fprintf(out, "disk GUID: %s\n", info.DiskGUID)
	fmt.Fprintf(out, "size: %s (%d LBAs)\n", units.BytesSize(float64(info.TotalLBAs*lba.BlockSize)), info.TotalLBAs)
	fmt.Fprintf(out, "protective MBR: %v\n", info.ProtectiveMBR)
	fmt.Fprintf(out, "usable LBAs: %d-%d\n", info.FirstUsableLBA, info.LastUsableLBA)
	fmt.Fprintf(out, "entries: %d (CRC32 %#08x)\n\n", info.NumEntries, info.EntriesChecksum)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "#\tNAME\tTYPE\tFIRST\tLAST\tSIZE")

	numbers := make([]int, 0, len(info.Partitions))
	for no := range info.Partitions {
		numbers = append(numbers, no)
	}

	slices.Sort(numbers)

	for _, no := range numbers {
		part := info.Partitions[no]

		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n",
			no, part.Name, part.TypeGUID, part.FirstLBA, part.LastLBA,
			units.BytesSize(float64(part.Length()*lba.BlockSize)))
	}

	return tw.Flush()
}
