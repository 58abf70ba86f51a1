// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main implements mkgptimage, a tool to create GPT partitioned disk images.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

func newRootCmd() *cobra.Command {
	var configFile string

	v := viper.New()

	cmd := &cobra.Command{
		Use:   "mkgptimage",
		Short: "Create GPT partitioned raw disk images",
		Long: `mkgptimage writes a raw disk image with a protective MBR, primary and
backup GPT headers and partition entry arrays.

Partition contents are left zeroed. Partitions are declared in the config file,
by default an EFI system partition and a Linux data partition of 33MiB each.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := LoadConfig(v, configFile)
			if err != nil {
				return err
			}

			logger, err := newLogger(config.Verbose)
			if err != nil {
				return err
			}

			defer logger.Sync() //nolint:errcheck

			return buildImage(cmd.Context(), logger, config)
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the YAML config file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.Flags().StringP("output", "o", "GPT.bin", "Output image path or blockdevice")
	cmd.Flags().StringP("size", "s", "67MiB", "Disk image size, e.g. 67MiB or 2GiB")
	cmd.Flags().String("disk-guid", "", "Disk GUID, random if not set")
	cmd.Flags().String("alignment", "0", "Partition start alignment, e.g. 1MiB")
	cmd.Flags().Uint32("num-entries", 128, "Number of partition entries")
	cmd.Flags().Bool("skip-pmbr", false, "Don't write the protective MBR")
	cmd.Flags().Bool("bootable-pmbr", false, "Mark the protective MBR partition as bootable")
	cmd.Flags().Bool("compress", false, "Compress the image with zstd")

	cobra.CheckErr(v.BindPFlags(cmd.Flags()))
	cobra.CheckErr(v.BindPFlags(cmd.PersistentFlags()))

	cmd.AddCommand(newVerifyCmd())

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
