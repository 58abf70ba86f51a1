// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/siderolabs/go-pointer"
	"github.com/spf13/viper"

	"github.com/siderolabs/go-gptimage/partitioning"
	"github.com/siderolabs/go-gptimage/partitioning/gpt"
)

// Config is the image configuration.
type Config struct {
	Output     string            `mapstructure:"output"`
	Size       string            `mapstructure:"size"`
	DiskGUID   string            `mapstructure:"disk-guid"`
	Alignment  string            `mapstructure:"alignment"`
	NumEntries uint32            `mapstructure:"num-entries"`
	SkipPMBR   bool              `mapstructure:"skip-pmbr"`
	Bootable   bool              `mapstructure:"bootable-pmbr"`
	Compress   bool              `mapstructure:"compress"`
	Verbose    bool              `mapstructure:"verbose"`
	Partitions []PartitionConfig `mapstructure:"partitions"`
}

// PartitionConfig declares a single partition.
type PartitionConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`

	// Size is human-readable, nil takes the rest of the disk.
	Size *string `mapstructure:"size"`

	GUID       string `mapstructure:"guid"`
	Attributes uint64 `mapstructure:"attributes"`
	Bootable   bool   `mapstructure:"legacy-bios-bootable"`
}

const envPrefix = "GPTIMAGE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("output", "GPT.bin")
	v.SetDefault("size", "67MiB")
	v.SetDefault("disk-guid", "")
	v.SetDefault("alignment", "0")
	v.SetDefault("num-entries", 128)
	v.SetDefault("skip-pmbr", false)
	v.SetDefault("bootable-pmbr", false)
	v.SetDefault("compress", false)
	v.SetDefault("verbose", false)
	v.SetDefault("partitions", []map[string]any{
		{
			"name": "EFI",
			"type": "efi",
			"size": "33MiB",
		},
		{
			"name": "data",
			"type": "linux",
			"size": "33MiB",
		},
	})
}

// LoadConfig reads configuration from the config file (if any), environment and flags bound to v.
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func parseSize(s string) (uint64, error) {
	size, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}

	if size < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}

	return uint64(size), nil
}

// DiskSize returns the disk image size in bytes.
func (c *Config) DiskSize() (uint64, error) {
	size, err := parseSize(c.Size)
	if err != nil {
		return 0, fmt.Errorf("invalid disk size: %w", err)
	}

	if size == 0 {
		return 0, errors.New("disk size must be positive")
	}

	return size, nil
}

// Options converts the configuration to the GPT options.
func (c *Config) Options() ([]gpt.Option, error) {
	alignment, err := parseSize(c.Alignment)
	if err != nil {
		return nil, fmt.Errorf("invalid alignment: %w", err)
	}

	opts := []gpt.Option{
		gpt.WithAlignment(alignment),
		gpt.WithNumEntries(c.NumEntries),
	}

	if c.DiskGUID != "" {
		diskGUID, err := uuid.Parse(c.DiskGUID)
		if err != nil {
			return nil, fmt.Errorf("invalid disk GUID: %w", err)
		}

		opts = append(opts, gpt.WithDiskGUID(diskGUID))
	}

	if c.SkipPMBR {
		opts = append(opts, gpt.WithSkipPMBR())
	}

	if c.Bootable {
		opts = append(opts, gpt.WithMarkPMBRBootable())
	}

	return opts, nil
}

// PartitionSpecs converts the partition configuration to GPT partition specs.
func (c *Config) PartitionSpecs() ([]gpt.PartitionSpec, error) {
	specs := make([]gpt.PartitionSpec, 0, len(c.Partitions))

	for i, part := range c.Partitions {
		spec, err := part.spec()
		if err != nil {
			return nil, fmt.Errorf("partition %d (%q): %w", i+1, part.Name, err)
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

func (p PartitionConfig) spec() (gpt.PartitionSpec, error) {
	partType, err := partitioning.ParseType(p.Type)
	if err != nil {
		return gpt.PartitionSpec{}, err
	}

	var size uint64

	if sizeStr := pointer.SafeDeref(p.Size); sizeStr != "" {
		size, err = parseSize(sizeStr)
		if err != nil {
			return gpt.PartitionSpec{}, fmt.Errorf("invalid size: %w", err)
		}

		if size == 0 {
			return gpt.PartitionSpec{}, errors.New("size must be positive, omit it to use the rest of the disk")
		}
	}

	opts := []gpt.PartitionOption{
		gpt.WithAttributes(p.Attributes),
		gpt.WithLegacyBIOSBootableAttribute(p.Bootable),
	}

	if p.GUID != "" {
		guid, err := uuid.Parse(p.GUID)
		if err != nil {
			return gpt.PartitionSpec{}, fmt.Errorf("invalid GUID: %w", err)
		}

		opts = append(opts, gpt.WithUniqueGUID(guid))
	}

	return gpt.PartitionSpec{
		Name:    p.Name,
		Type:    partType,
		Size:    size,
		Options: opts,
	}, nil
}
