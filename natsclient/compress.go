package natsclient

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// compressor handles zstd framing for wire payloads. Encoding only happens
// when a level is configured; decoding always works because the peer
// chooses whether its payloads are compressed.
type compressor struct {
	level    zstd.EncoderLevel
	enabled  bool
	minBytes int

	encoderPool sync.Pool
	decoderPool sync.Pool
}

func newCompressor(level, minBytes int) *compressor {
	return &compressor{
		level:    configLevelToZstd(level),
		enabled:  level > 0,
		minBytes: minBytes,
	}
}

// maybeCompress returns the zstd frame and true when data is large enough
// and compression is on, and the input unchanged with false otherwise.
func (c *compressor) maybeCompress(data []byte) ([]byte, bool, error) {
	if !c.enabled || len(data) < c.minBytes {
		return data, false, nil
	}

	enc, ok := c.encoderPool.Get().(*zstd.Encoder)
	if !ok {
		var err error
		enc, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(c.level),
			zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, false, fmt.Errorf("create zstd encoder: %w", err)
		}
	}
	out := enc.EncodeAll(data, nil)
	c.encoderPool.Put(enc)
	return out, true, nil
}

func (c *compressor) decompress(data []byte) ([]byte, error) {
	dec, ok := c.decoderPool.Get().(*zstd.Decoder)
	if !ok {
		var err error
		dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
	}
	out, err := dec.DecodeAll(data, nil)
	c.decoderPool.Put(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// configLevelToZstd maps config levels (1-4) to zstd.EncoderLevel
func configLevelToZstd(level int) zstd.EncoderLevel {
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
