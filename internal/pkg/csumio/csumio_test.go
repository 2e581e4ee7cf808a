package csumio_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/pkg/csumio"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	chunkSize := 64
	cases := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "partial_chunk", data: bytes.Repeat([]byte("a"), chunkSize-1)},
		{name: "exact_chunk", data: bytes.Repeat([]byte("b"), chunkSize)},
		{name: "chunk_and_tail", data: bytes.Repeat([]byte("c"), chunkSize+5)},
		{name: "many_chunks", data: bytes.Repeat([]byte("d"), chunkSize*7+13)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			var data, sidecar bytes.Buffer
			w, err := csumio.NewWriter(&data, &sidecar, chunkSize)
			require.NoError(t, err)

			// Act
			_, err = w.Write(tc.data)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := csumio.NewReader(bytes.NewReader(data.Bytes()), bytes.NewReader(sidecar.Bytes()), chunkSize)
			require.NoError(t, err)
			restored, err := io.ReadAll(r)
			require.NoError(t, err)

			// Assert
			assert.Equal(t, len(tc.data), len(restored))
			assert.Equal(t, tc.data, append([]byte(nil), restored...))
		})
	}
}

func TestReader_DetectsCorruption(t *testing.T) {
	// Arrange: write a valid payload, then flip one payload byte.
	chunkSize := 64
	payload := bytes.Repeat([]byte("x"), chunkSize*3)

	var data, sidecar bytes.Buffer
	w, err := csumio.NewWriter(&data, &sidecar, chunkSize)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	corrupted := data.Bytes()
	corrupted[chunkSize+1] ^= 0xff

	// Act
	r, err := csumio.NewReader(bytes.NewReader(corrupted), bytes.NewReader(sidecar.Bytes()), chunkSize)
	require.NoError(t, err)
	_, err = io.ReadAll(r)

	// Assert
	assert.ErrorIs(t, err, csumio.ErrChecksumMismatch)
}

func TestNewWriter_RejectsBadChunkSize(t *testing.T) {
	_, err := csumio.NewWriter(io.Discard, io.Discard, 0)
	assert.Error(t, err)
	_, err = csumio.NewReader(bytes.NewReader(nil), bytes.NewReader(nil), -1)
	assert.Error(t, err)
}
