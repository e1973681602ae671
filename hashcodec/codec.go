package hashcodec

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// markerByte prefixes every persisted blob: 0x00 for stored-uncompressed,
// 0x01 for zstd-compressed. Blobs under compressThreshold are stored
// uncompressed to avoid paying zstd's frame overhead on tiny values.
const (
	markerUncompressed byte = 0x00
	markerZstd         byte = 0x01

	compressThreshold = 256
)

// Codec compresses and decompresses persisted blobs at a fixed level.
// Decompression is deterministic; the content hash recorded alongside a
// blob is always of the uncompressed bytes.
type Codec struct {
	level zstd.EncoderLevel

	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
}

// NewCodec builds a Codec at the given compression level (1-22, mapped onto
// zstd's named levels; 0 selects the default).
func NewCodec(level int) *Codec {
	lvl := zstd.SpeedDefault
	switch {
	case level <= 0:
		lvl = zstd.SpeedDefault
	case level <= 3:
		lvl = zstd.SpeedFastest
	case level <= 9:
		lvl = zstd.SpeedDefault
	case level <= 15:
		lvl = zstd.SpeedBetterCompression
	default:
		lvl = zstd.SpeedBestCompression
	}
	return &Codec{level: lvl}
}

func (c *Codec) encoder() (*zstd.Encoder, error) {
	c.encOnce.Do(func() {
		c.enc, c.encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
	})
	return c.enc, c.encErr
}

func (c *Codec) decoder() (*zstd.Decoder, error) {
	c.decOnce.Do(func() {
		c.dec, c.decErr = zstd.NewReader(nil)
	})
	return c.dec, c.decErr
}

// Compress returns the marker-prefixed, possibly-compressed form of b
// suitable for storage in any column family.
func (c *Codec) Compress(b []byte) ([]byte, error) {
	if len(b) < compressThreshold {
		return append([]byte{markerUncompressed}, b...), nil
	}
	enc, err := c.encoder()
	if err != nil {
		return nil, fmt.Errorf("hashcodec: zstd encoder: %w", err)
	}
	out := make([]byte, 0, len(b)/2+1)
	out = append(out, markerZstd)
	out = enc.EncodeAll(b, out)
	return out, nil
}

// Decompress reverses Compress. It is deterministic for a given input.
func (c *Codec) Decompress(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("hashcodec: empty blob")
	}
	marker, payload := b[0], b[1:]
	switch marker {
	case markerUncompressed:
		return append([]byte(nil), payload...), nil
	case markerZstd:
		dec, err := c.decoder()
		if err != nil {
			return nil, fmt.Errorf("hashcodec: zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("hashcodec: zstd decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("hashcodec: unknown blob marker 0x%02x", marker)
	}
}

// StreamCompress compresses from r to w, for large sequence batches where
// buffering the whole input is undesirable. The marker byte is written
// first.
func (c *Codec) StreamCompress(w io.Writer, r io.Reader) error {
	if _, err := w.Write([]byte{markerZstd}); err != nil {
		return err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(c.level))
	if err != nil {
		return fmt.Errorf("hashcodec: zstd encoder: %w", err)
	}
	if _, err := io.Copy(enc, r); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// StreamDecompress mirrors StreamCompress.
func (c *Codec) StreamDecompress(r io.Reader) (io.ReadCloser, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return nil, err
	}
	switch marker[0] {
	case markerUncompressed:
		return io.NopCloser(r), nil
	case markerZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("hashcodec: zstd decoder: %w", err)
		}
		return readCloserFunc{Reader: dec, closeFn: dec.Close}, nil
	default:
		return nil, fmt.Errorf("hashcodec: unknown blob marker 0x%02x", marker[0])
	}
}

type readCloserFunc struct {
	io.Reader
	closeFn func()
}

func (r readCloserFunc) Close() error {
	r.closeFn()
	return nil
}
