// Package csumio streams payload data alongside a sidecar of per-chunk
// xxhash64 checksums. The archive pipeline writes the sidecar while
// imaging; verification and restore read the payload back through a
// verifying reader without buffering the payload.
package csumio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

const (
	// ChecksumLen is the byte length of one serialized checksum.
	ChecksumLen = 8

	// DefaultChunkSize is the checksum granularity used by the archive
	// pipeline.
	DefaultChunkSize = 1 << 20
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

// Writer tees payload bytes to data and appends one xxhash64 per chunk to
// sidecar. Close flushes the trailing partial chunk.
type Writer struct {
	data    io.Writer
	sidecar io.Writer
	buf     []byte
	size    int
}

func NewWriter(data, sidecar io.Writer, chunkSize int) (*Writer, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be greater than 0")
	}
	return &Writer{
		data:    data,
		sidecar: sidecar,
		buf:     make([]byte, 0, chunkSize),
		size:    chunkSize,
	}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		take := w.size - len(w.buf)
		if take > len(p) {
			take = len(p)
		}
		w.buf = append(w.buf, p[:take]...)
		p = p[take:]
		written += take

		if len(w.buf) == w.size {
			if err := w.flushChunk(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (w *Writer) flushChunk() error {
	if len(w.buf) == 0 {
		return nil
	}
	if _, err := w.data.Write(w.buf); err != nil {
		return fmt.Errorf("failed to write data chunk: %w", err)
	}

	var sum [ChecksumLen]byte
	binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(w.buf))
	if _, err := w.sidecar.Write(sum[:]); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}

	w.buf = w.buf[:0]
	return nil
}

// Close flushes the final partial chunk. It does not close the underlying
// writers.
func (w *Writer) Close() error {
	return w.flushChunk()
}

// Reader reads payload bytes chunk by chunk, verifying each chunk against
// the sidecar before returning any of its bytes. A mismatch fails the read
// with ErrChecksumMismatch; by then no byte of the bad chunk has been
// handed to the caller.
type Reader struct {
	data    io.Reader
	sidecar io.Reader
	buf     []byte
	offset  int
	size    int
}

func NewReader(data, sidecar io.Reader, chunkSize int) (*Reader, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be greater than 0")
	}
	return &Reader{
		data:    data,
		sidecar: sidecar,
		buf:     make([]byte, chunkSize),
		size:    chunkSize,
	}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.offset == 0 {
		n, err := io.ReadFull(r.data, r.buf)
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			r.buf = r.buf[:n]
		case errors.Is(err, io.EOF):
			return 0, io.EOF
		case err != nil:
			return 0, fmt.Errorf("failed to read data chunk: %w", err)
		}

		var sum [ChecksumLen]byte
		if _, err := io.ReadFull(r.sidecar, sum[:]); err != nil {
			return 0, fmt.Errorf("failed to read checksum: %w", err)
		}
		expected := binary.LittleEndian.Uint64(sum[:])
		actual := xxhash.Sum64(r.buf)
		if expected != actual {
			return 0, fmt.Errorf("%w: expected %016x, got %016x", ErrChecksumMismatch, expected, actual)
		}
	}

	n := copy(p, r.buf[r.offset:])
	r.offset += n
	if r.offset >= len(r.buf) {
		r.offset = 0
	}
	return n, nil
}
