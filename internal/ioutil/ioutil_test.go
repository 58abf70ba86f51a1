// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ioutil_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-gptimage/internal/ioutil"
)

func TestReadFullAt(t *testing.T) {
	t.Parallel()

	r := bytes.NewReader([]byte("0123456789"))

	buf := make([]byte, 4)
	require.NoError(t, ioutil.ReadFullAt(r, buf, 6))
	assert.Equal(t, []byte("6789"), buf)

	require.ErrorIs(t, ioutil.ReadFullAt(r, buf, 8), io.ErrUnexpectedEOF)
}

func TestWriteZeroes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	n, err := ioutil.WriteZeroes(&buf, 3*1024*1024+5)
	require.NoError(t, err)

	assert.EqualValues(t, 3*1024*1024+5, n)
	assert.Equal(t, make([]byte, 3*1024*1024+5), buf.Bytes())

	n, err = ioutil.WriteZeroes(&buf, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBufferWriterAt(t *testing.T) {
	t.Parallel()

	buf := make(ioutil.BufferWriterAt, 8)

	n, err := buf.WriteAt([]byte("abc"), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("\x00\x00abc\x00\x00\x00"), []byte(buf))

	_, err = buf.WriteAt([]byte("abc"), 6)
	require.ErrorIs(t, err, ioutil.ErrOutOfBounds)

	_, err = buf.WriteAt([]byte("a"), -1)
	require.ErrorIs(t, err, ioutil.ErrOutOfBounds)
}
