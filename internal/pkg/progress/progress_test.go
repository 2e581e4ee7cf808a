package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderCountsAndPrints(t *testing.T) {
	// Arrange
	payload := strings.Repeat("x", 4096)
	var out bytes.Buffer
	r := NewReader(strings.NewReader(payload), uint64(len(payload)), "sda2", &out)

	// Act
	read, err := io.ReadAll(r)

	// Assert
	require.NoError(t, err)
	assert.Len(t, read, len(payload))
	assert.Equal(t, uint64(len(payload)), r.Count())
	assert.Contains(t, out.String(), "[sda2]")
	assert.Contains(t, out.String(), "100.0%")
}

func TestReaderNilOutput(t *testing.T) {
	// Arrange
	r := NewReader(strings.NewReader("data"), 0, "sda1", nil)

	// Act
	read, err := io.ReadAll(r)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), read)
	assert.Equal(t, uint64(4), r.Count())
}

func TestCountingWriter(t *testing.T) {
	// Arrange
	var sink bytes.Buffer
	w := NewCountingWriter(&sink)

	// Act
	_, err := w.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = w.Write([]byte("world"))
	require.NoError(t, err)

	// Assert
	assert.Equal(t, uint64(11), w.Count())
	assert.Equal(t, "hello world", sink.String())
}
