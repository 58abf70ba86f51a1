// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-gptimage/block"
)

func TestIsBlockDevice(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	regular := filepath.Join(tmpDir, "image.raw")
	require.NoError(t, os.WriteFile(regular, nil, 0o644))

	for _, test := range []struct {
		name string
		path string
	}{
		{
			name: "regular file",
			path: regular,
		},
		{
			name: "directory",
			path: tmpDir,
		},
		{
			name: "missing",
			path: filepath.Join(tmpDir, "missing"),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			isDev, err := block.IsBlockDevice(test.path)
			require.NoError(t, err)
			assert.False(t, isDev)
		})
	}
}

func TestDeviceFile(t *testing.T) {
	t.Parallel()

	f, err := os.Create(filepath.Join(t.TempDir(), "image.raw"))
	require.NoError(t, err)

	dev := block.NewFromFile(f)

	_, err = dev.WriteAt([]byte("EFI PART"), 512)
	require.NoError(t, err)

	buf := make([]byte, 8)

	_, err = dev.ReadAt(buf, 512)
	require.NoError(t, err)
	assert.Equal(t, "EFI PART", string(buf))

	assert.Same(t, f, dev.File())
	require.NoError(t, dev.Close())
}
