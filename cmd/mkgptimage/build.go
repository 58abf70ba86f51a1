// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/klauspost/compress/zstd"
	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"

	"github.com/siderolabs/go-gptimage/block"
	"github.com/siderolabs/go-gptimage/lba"
	"github.com/siderolabs/go-gptimage/partitioning/gpt"
)

func buildImage(ctx context.Context, logger *zap.Logger, config *Config) error {
	isDev, err := block.IsBlockDevice(config.Output)
	if err != nil {
		return err
	}

	if isDev {
		if config.Compress {
			return fmt.Errorf("%q is a block device, compression is not supported", config.Output)
		}

		return buildDevice(ctx, logger, config)
	}

	diskSize, err := config.DiskSize()
	if err != nil {
		return err
	}

	img, err := newImage(logger, config, diskSize)
	if err != nil {
		return err
	}

	if err = ctx.Err(); err != nil {
		return err
	}

	if err = writeImage(img, config.Output, config.Compress); err != nil {
		return err
	}

	logImage(logger, img, config)

	return nil
}

// buildDevice writes the partition table to the blockdevice, the disk size is the device size.
func buildDevice(ctx context.Context, logger *zap.Logger, config *Config) error {
	dev, err := block.NewFromPath(config.Output)
	if err != nil {
		return err
	}

	defer dev.Close() //nolint:errcheck

	if err = dev.TryLock(true); err != nil {
		return fmt.Errorf("failed to lock %q: %w", config.Output, err)
	}

	defer dev.Unlock() //nolint:errcheck

	if sectorSize := dev.GetSectorSize(); sectorSize != lba.BlockSize {
		return fmt.Errorf("unsupported logical sector size %d of %q", sectorSize, config.Output)
	}

	diskSize, err := dev.GetSize()
	if err != nil {
		return fmt.Errorf("failed to get size of %q: %w", config.Output, err)
	}

	img, err := newImage(logger, config, diskSize)
	if err != nil {
		return err
	}

	if err = ctx.Err(); err != nil {
		return err
	}

	if err = dev.FastWipe(); err != nil {
		return fmt.Errorf("failed to wipe %q: %w", config.Output, err)
	}

	if err = img.WriteAt(dev); err != nil {
		return fmt.Errorf("failed to write partition table: %w", err)
	}

	if err = dev.RereadPartitionTable(); err != nil {
		logger.Warn("kernel partition table not updated", zap.String("device", config.Output), zap.Error(err))
	}

	logImage(logger, img, config)

	return nil
}

func newImage(logger *zap.Logger, config *Config, diskSize uint64) (*gpt.Image, error) {
	opts, err := config.Options()
	if err != nil {
		return nil, err
	}

	specs, err := config.PartitionSpecs()
	if err != nil {
		return nil, err
	}

	img, err := gpt.New(diskSize, append(opts, gpt.WithLogger(logger))...)
	if err != nil {
		return nil, err
	}

	for _, spec := range specs {
		if _, _, err = img.AllocatePartition(spec.Size, spec.Name, spec.Type, spec.Options...); err != nil {
			return nil, err
		}
	}

	return img, nil
}

func logImage(logger *zap.Logger, img *gpt.Image, config *Config) {
	logger.Info("image written",
		zap.String("path", config.Output),
		zap.String("size", units.BytesSize(float64(img.Layout().Geometry.Size()))),
		zap.Stringer("disk_guid", img.DiskGUID()),
		zap.Strings("partitions", xslices.Map(img.Partitions(), func(p gpt.Partition) string {
			return fmt.Sprintf("%s [%d, %d]", p.Name, p.FirstLBA, p.LastLBA)
		})),
		zap.Bool("compressed", config.Compress),
	)
}

// writeImage writes the image to path.
//
// Uncompressed images are written sparse: the file is truncated to the image size
// and only GPT structures are written.
func writeImage(img *gpt.Image, path string, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	if compress {
		w := bufio.NewWriter(f)

		enc, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}

		if _, err = img.WriteTo(enc); err != nil {
			enc.Close() //nolint:errcheck

			return fmt.Errorf("failed to write image: %w", err)
		}

		if err = enc.Close(); err != nil {
			return err
		}

		if err = w.Flush(); err != nil {
			return err
		}
	} else {
		if err = f.Truncate(int64(img.Layout().Geometry.Size())); err != nil {
			return err
		}

		if err = img.WriteAt(f); err != nil {
			return fmt.Errorf("failed to write image: %w", err)
		}
	}

	if err = f.Sync(); err != nil {
		return err
	}

	return f.Close()
}
