package grpc

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/maxpert/ringfs/cfg"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/encoding"
)

// CompressorName is the gRPC compressor used for replica content
const CompressorName = "zstd"

// contentCompressor is a zstd gRPC compressor. Replica writes and
// update multicasts carry whole file contents, so coders are pooled.
type contentCompressor struct {
	level    zstd.EncoderLevel
	encoders sync.Pool
	decoders sync.Pool
}

func init() {
	RegisterZstdCompressor()
}

// RegisterZstdCompressor (re)registers the compressor at the configured
// level. Decompression is always available, even with level 0, so peers
// that compress can still reach this node.
func RegisterZstdCompressor() {
	level := compressionLevel()
	c := newContentCompressor(level)
	encoding.RegisterCompressor(c)

	log.Debug().
		Int("config_level", level).
		Str("zstd_level", c.level.String()).
		Bool("outgoing", level > 0).
		Msg("Registered zstd gRPC compressor")
}

func newContentCompressor(level int) *contentCompressor {
	return &contentCompressor{level: zstdLevel(level)}
}

func (c *contentCompressor) Name() string {
	return CompressorName
}

func (c *contentCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	enc, ok := c.encoders.Get().(*zstd.Encoder)
	if ok {
		enc.Reset(w)
	} else {
		var err error
		enc, err = zstd.NewWriter(w, zstd.WithEncoderLevel(c.level))
		if err != nil {
			return nil, err
		}
	}
	return &encoderHandle{Encoder: enc, owner: c}, nil
}

func (c *contentCompressor) Decompress(r io.Reader) (io.Reader, error) {
	dec, ok := c.decoders.Get().(*zstd.Decoder)
	if !ok {
		var err error
		dec, err = zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return &decoderHandle{dec: dec, owner: c}, nil
	}

	if err := dec.Reset(r); err != nil {
		c.decoders.Put(dec)
		return nil, err
	}
	return &decoderHandle{dec: dec, owner: c}, nil
}

// encoderHandle returns its encoder to the pool once the message is flushed
type encoderHandle struct {
	*zstd.Encoder
	owner *contentCompressor
}

func (e *encoderHandle) Close() error {
	err := e.Encoder.Close()
	e.owner.encoders.Put(e.Encoder)
	return err
}

// decoderHandle returns its decoder to the pool at end of stream
type decoderHandle struct {
	dec   *zstd.Decoder
	owner *contentCompressor
	done  bool
}

func (d *decoderHandle) Read(p []byte) (int, error) {
	if d.done {
		return 0, io.EOF
	}
	n, err := d.dec.Read(p)
	if err == io.EOF {
		d.done = true
		d.owner.decoders.Put(d.dec)
	}
	return n, err
}

func compressionLevel() int {
	if cfg.Config == nil {
		return 1
	}
	return cfg.Config.GRPCClient.CompressionLevel
}

// zstdLevel maps grpc_client.compression_level (1-4) onto zstd presets
func zstdLevel(level int) zstd.EncoderLevel {
	switch level {
	case 2:
		return zstd.SpeedDefault
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedFastest
	}
}

// outgoingCompressor names the compressor requested on node calls, empty
// when grpc_client.compression_level is 0
func outgoingCompressor() string {
	if compressionLevel() > 0 {
		return CompressorName
	}
	return ""
}
