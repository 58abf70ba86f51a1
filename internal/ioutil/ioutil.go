// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ioutil provides IO utility functions.
package ioutil

import (
	"errors"
	"io"
)

// ReadFullAt is io.ReadFull for io.ReaderAt.
func ReadFullAt(r io.ReaderAt, buf []byte, offset int64) error {
	for n := 0; n < len(buf); {
		m, err := r.ReadAt(buf[n:], offset)

		n += m
		offset += int64(m)

		if err != nil {
			if err == io.EOF && n == len(buf) {
				return nil
			}

			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}

			return err
		}
	}

	return nil
}

const zeroChunkSize = 1024 * 1024

var zeroChunk [zeroChunkSize]byte

// WriteZeroes writes n zero bytes to w.
func WriteZeroes(w io.Writer, n int64) (int64, error) {
	var written int64

	for written < n {
		chunk := min(n-written, zeroChunkSize)

		m, err := w.Write(zeroChunk[:chunk])
		written += int64(m)

		if err != nil {
			return written, err
		}
	}

	return written, nil
}

// ErrOutOfBounds is returned by BufferWriterAt for writes past the end of the buffer.
var ErrOutOfBounds = errors.New("write out of bounds")

// BufferWriterAt implements io.WriterAt over a fixed-size byte slice.
type BufferWriterAt []byte

// WriteAt implements io.WriterAt.
func (b BufferWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(b)) {
		return 0, ErrOutOfBounds
	}

	return copy(b[off:], p), nil
}
