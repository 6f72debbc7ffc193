package grpc

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/maxpert/ringfs/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentCompressor_RoundTrip(t *testing.T) {
	c := newContentCompressor(1)
	payload := strings.Repeat("10.0.0.1:9400\nreplica content\n", 512)

	for i := 0; i < 3; i++ {
		var buf bytes.Buffer
		w, err := c.Compress(&buf)
		require.NoError(t, err)
		_, err = w.Write([]byte(payload))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		assert.Less(t, buf.Len(), len(payload))

		r, err := c.Decompress(&buf)
		require.NoError(t, err)
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, payload, string(out), "iteration %d reuses pooled coders", i)
	}
}

func TestZstdLevel(t *testing.T) {
	assert.Equal(t, zstd.SpeedFastest, zstdLevel(1))
	assert.Equal(t, zstd.SpeedDefault, zstdLevel(2))
	assert.Equal(t, zstd.SpeedBetterCompression, zstdLevel(3))
	assert.Equal(t, zstd.SpeedBestCompression, zstdLevel(4))
	assert.Equal(t, zstd.SpeedFastest, zstdLevel(9))
}

func TestOutgoingCompressor(t *testing.T) {
	orig := cfg.Config.GRPCClient.CompressionLevel
	defer func() { cfg.Config.GRPCClient.CompressionLevel = orig }()

	cfg.Config.GRPCClient.CompressionLevel = 0
	assert.Equal(t, "", outgoingCompressor())

	cfg.Config.GRPCClient.CompressionLevel = 2
	assert.Equal(t, CompressorName, outgoingCompressor())
}
