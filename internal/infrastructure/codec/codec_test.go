package codec_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/codec"
)

func TestCodec_StreamRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("partition image bytes "), 4096)

	for _, name := range codec.Names() {
		t.Run(name, func(t *testing.T) {
			// Arrange
			c, err := codec.ByName(name)
			require.NoError(t, err)

			// Act: compress then decompress as forward-only streams.
			var compressed bytes.Buffer
			w, err := c.Compress(&compressed)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := c.Decompress(bytes.NewReader(compressed.Bytes()))
			require.NoError(t, err)
			restored, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			// Assert
			assert.Equal(t, payload, restored)
			if name != "none" {
				assert.Less(t, compressed.Len(), len(payload))
			}
		})
	}
}

func TestByName_Unknown(t *testing.T) {
	_, err := codec.ByName("xz")
	assert.Error(t, err)
}

func TestByName_EmptyIsIdentity(t *testing.T) {
	c, err := codec.ByName("")
	require.NoError(t, err)
	assert.Equal(t, "none", c.Name())
	assert.Equal(t, "", c.Ext())
}
