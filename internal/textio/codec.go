package textio

import (
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the stream codec wrapped around a record file.
type Compression uint8

const (
	// CompressionNone stores plain text.
	CompressionNone Compression = iota
	// CompressionGzip uses gzip (".gz"), readable by standard tooling.
	CompressionGzip
	// CompressionZSTD uses zstd (".zst"), the best ratio for large block files.
	CompressionZSTD
	// CompressionLZ4 uses the lz4 frame format (".lz4"), the fastest option.
	CompressionLZ4
)

// String returns the file suffix of the codec without the dot.
func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gz"
	case CompressionZSTD:
		return "zst"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// CompressionFor selects the codec from a file name suffix.
func CompressionFor(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return CompressionGzip
	case strings.HasSuffix(name, ".zst"):
		return CompressionZSTD
	case strings.HasSuffix(name, ".lz4"):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressor wraps w. Closing the result flushes the codec but leaves w open.
func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZSTD:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nopWriteCloser{w}, nil
	}
}

type zstdReadCloser struct{ dec *zstd.Decoder }

func (z zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z zstdReadCloser) Close() error {
	z.dec.Close()
	return nil
}

// decompressor wraps r. Closing the result releases codec state but leaves r open.
func decompressor(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionGzip:
		return gzip.NewReader(r)
	case CompressionZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec: dec}, nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}

// Decompress wraps r with the codec selected by name's suffix.
func Decompress(r io.Reader, name string) (io.ReadCloser, error) {
	return decompressor(r, CompressionFor(name))
}

// TrimSuffix removes a codec suffix from name.
func TrimSuffix(name string) string {
	if c := CompressionFor(name); c != CompressionNone {
		return strings.TrimSuffix(name, "."+c.String())
	}
	return name
}
