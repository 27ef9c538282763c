package sstable

// trailer.go implements the fixed 512-byte table trailer: nine
// little-endian u64 fields, zero padding, and a 4-byte magic identifying
// the format version.

import (
	"fmt"

	"github.com/tidesdb/sstable/internal/compression"
	"github.com/tidesdb/sstable/internal/encoding"
)

// TrailerSize is the fixed size, in bytes, of every table trailer.
const TrailerSize = 512

// FormatVersion identifies the on-disk table format.
type FormatVersion int

const (
	// FormatV1 is the legacy, read-only format: block wrapper lengths
	// are fixed 4-byte LE u32 instead of varints.
	FormatV1 FormatVersion = 1
	// FormatV2 is the current format: this package's Writer only ever
	// emits V2.
	FormatV2 FormatVersion = 2
)

const (
	magicV1 uint32 = 0x77846676
	magicV2 uint32 = 0x4D54424C
)

// Trailer is the parsed form of a table's final 512 bytes.
type Trailer struct {
	Format FormatVersion

	IndexBlockOffset     uint64
	DataBlockSize        uint64
	CompressionAlgorithm compression.Algorithm
	CountEntries         uint64
	CountDataBlocks      uint64
	BytesDataBlocks      uint64
	BytesIndexBlock      uint64
	BytesKeys            uint64
	BytesValues          uint64
}

// Encode serializes t as a 512-byte V2 trailer. Encode never produces a V1
// trailer: V1 is read-only legacy support, this package's Writer does not
// write it.
func (t *Trailer) Encode() []byte {
	buf := make([]byte, TrailerSize)
	encoding.EncodeFixed64(buf[0:8], t.IndexBlockOffset)
	encoding.EncodeFixed64(buf[8:16], t.DataBlockSize)
	encoding.EncodeFixed64(buf[16:24], uint64(t.CompressionAlgorithm))
	encoding.EncodeFixed64(buf[24:32], t.CountEntries)
	encoding.EncodeFixed64(buf[32:40], t.CountDataBlocks)
	encoding.EncodeFixed64(buf[40:48], t.BytesDataBlocks)
	encoding.EncodeFixed64(buf[48:56], t.BytesIndexBlock)
	encoding.EncodeFixed64(buf[56:64], t.BytesKeys)
	encoding.EncodeFixed64(buf[64:72], t.BytesValues)
	// buf[72 : TrailerSize-4] is zero padding.
	encoding.EncodeFixed32(buf[TrailerSize-4:], magicV2)
	return buf
}

// DecodeTrailer parses the last TrailerSize bytes of data as a table
// trailer. data must be at least TrailerSize bytes; only the final
// TrailerSize bytes are examined.
func DecodeTrailer(data []byte) (*Trailer, error) {
	if len(data) < TrailerSize {
		return nil, fmt.Errorf("trailer: %d bytes available: %w", len(data), ErrInvalidMetadataSize)
	}
	buf := data[len(data)-TrailerSize:]

	magic := encoding.DecodeFixed32(buf[TrailerSize-4:])
	var format FormatVersion
	switch magic {
	case magicV2:
		format = FormatV2
	case magicV1:
		format = FormatV1
	default:
		return nil, fmt.Errorf("trailer: magic %#x: %w", magic, ErrInvalidFormatVersion)
	}

	algo := compression.Algorithm(encoding.DecodeFixed64(buf[16:24]))
	if !algo.Valid() {
		return nil, fmt.Errorf("trailer: algorithm %d: %w", algo, ErrInvalidCompressionAlgorithm)
	}

	return &Trailer{
		Format:               format,
		IndexBlockOffset:     encoding.DecodeFixed64(buf[0:8]),
		DataBlockSize:        encoding.DecodeFixed64(buf[8:16]),
		CompressionAlgorithm: algo,
		CountEntries:         encoding.DecodeFixed64(buf[24:32]),
		CountDataBlocks:      encoding.DecodeFixed64(buf[32:40]),
		BytesDataBlocks:      encoding.DecodeFixed64(buf[40:48]),
		BytesIndexBlock:      encoding.DecodeFixed64(buf[48:56]),
		BytesKeys:            encoding.DecodeFixed64(buf[56:64]),
		BytesValues:          encoding.DecodeFixed64(buf[64:72]),
	}, nil
}
