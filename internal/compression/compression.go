// Package compression dispatches (algorithm, level, bytes) to a concrete
// compress/decompress backend for table block payloads.
//
// Each data block in a table file is stored with a compression algorithm
// identifier (carried in the table trailer, not per-block) and a
// possibly-compressed payload. Decompression is symmetric: given the same
// algorithm identifier, it reconstructs the original bytes.
package compression

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies a block compression scheme. The numeric values are
// part of the on-disk trailer format and must not be renumbered.
type Algorithm uint64

const (
	None   Algorithm = 0
	Snappy Algorithm = 1
	Zlib   Algorithm = 2
	LZ4    Algorithm = 3
	LZ4HC  Algorithm = 4
	Zstd   Algorithm = 5
)

// DefaultLevel selects the backend's own default compression level.
const DefaultLevel int32 = -10000

// String returns the human-readable algorithm name.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "None"
	case Snappy:
		return "Snappy"
	case Zlib:
		return "Zlib"
	case LZ4:
		return "LZ4"
	case LZ4HC:
		return "LZ4HC"
	case Zstd:
		return "Zstd"
	default:
		return fmt.Sprintf("Algorithm(%d)", uint64(a))
	}
}

// Valid reports whether a is one of the six known algorithm identifiers.
func (a Algorithm) Valid() bool {
	return a <= Zstd
}

// Compress compresses data with algo at the given level. None returns data
// unchanged (the caller's slice is never copied for the None path).
func Compress(algo Algorithm, level int32, data []byte) ([]byte, error) {
	switch algo {
	case None:
		return data, nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case Zlib:
		return compressFlate(data, level)
	case LZ4:
		return compressLZ4(data, lz4FastLevel(level))
	case LZ4HC:
		return compressLZ4(data, lz4HCLevel(level))
	case Zstd:
		return compressZstd(data, level)
	default:
		return nil, fmt.Errorf("compression: algorithm %s: %w", algo, ErrUnsupportedCompression)
	}
}

// Decompress reverses Compress for the same algorithm.
func Decompress(algo Algorithm, data []byte) ([]byte, error) {
	switch algo {
	case None:
		return data, nil
	case Snappy:
		return snappy.Decode(nil, data)
	case Zlib:
		return decompressFlate(data)
	case LZ4, LZ4HC:
		return decompressLZ4(data)
	case Zstd:
		return decompressZstd(data)
	default:
		return nil, fmt.Errorf("compression: algorithm %s: %w", algo, ErrUnsupportedCompression)
	}
}

// ErrUnsupportedCompression is returned for an algorithm identifier with no
// backend wired in this build.
var ErrUnsupportedCompression = fmt.Errorf("compression: unsupported algorithm")

// --- Zlib: raw DEFLATE, no zlib header/trailer ---

func compressFlate(data []byte, level int32) ([]byte, error) {
	lvl := flate.DefaultCompression
	if level != DefaultLevel {
		lvl = int(level)
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, lvl)
	if err != nil {
		return nil, fmt.Errorf("flate writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("flate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flate close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressFlate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// --- LZ4 / LZ4HC: frame format, chosen (over the raw block API) because it
// self-describes the decompressed length, so Decompress needs no sidecar
// size field beyond what the block wrapper already carries. ---

func lz4FastLevel(level int32) lz4.CompressionLevel {
	if level == DefaultLevel {
		return lz4.Fast
	}
	return lz4.CompressionLevel(level)
}

func lz4HCLevel(level int32) lz4.CompressionLevel {
	if level == DefaultLevel {
		return lz4.Level9
	}
	levels := [...]lz4.CompressionLevel{
		lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
		lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
	}
	if level >= 1 && int(level) <= len(levels) {
		return levels[level-1]
	}
	return lz4.CompressionLevel(level)
}

func compressLZ4(data []byte, level lz4.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(level)); err != nil {
		return nil, fmt.Errorf("lz4 writer options: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}

// --- Zstd: decoders are expensive to construct, so they are pooled and
// reused across calls; an encoder is built for each Compress call. ---

var zstdDecoders = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		return d
	},
}

func compressZstd(data []byte, level int32) ([]byte, error) {
	lvl := zstd.SpeedDefault
	if level != DefaultLevel {
		lvl = zstd.EncoderLevelFromZstd(int(level))
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer func() { _ = enc.Close() }()
	return enc.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	d := zstdDecoders.Get().(*zstd.Decoder)
	defer zstdDecoders.Put(d)
	return d.DecodeAll(data, nil)
}
