package sstable

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/tidesdb/sstable/internal/compression"
)

func TestWriterEmptyTableIsTrailerPlusIndexWrapper(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultWriterOptions())
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	tr, err := DecodeTrailer(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeTrailer: %v", err)
	}
	if tr.CountEntries != 0 || tr.CountDataBlocks != 0 {
		t.Fatalf("expected an empty table, got %+v", tr)
	}
	// index_block_offset is 0: nothing was ever flushed, so the empty
	// index block wrapper is the first thing written.
	if tr.IndexBlockOffset != 0 {
		t.Errorf("IndexBlockOffset = %d, want 0", tr.IndexBlockOffset)
	}
	if buf.Len() <= TrailerSize {
		t.Errorf("expected some index wrapper bytes before the trailer, got total len %d", buf.Len())
	}
}

func TestWriterSingleEntryRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultWriterOptions())
	if err := w.Insert([]byte("hello"), []byte("I'm the one")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	tr, err := DecodeTrailer(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeTrailer: %v", err)
	}
	if tr.CountEntries != 1 {
		t.Errorf("CountEntries = %d, want 1", tr.CountEntries)
	}
	if tr.CountDataBlocks != 1 {
		t.Errorf("CountDataBlocks = %d, want 1", tr.CountDataBlocks)
	}
}

func TestWriterRejectsOutOfOrderKeyAndStaysClosed(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultWriterOptions())
	if err := w.Insert([]byte("b"), []byte("1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := w.Insert([]byte("a"), []byte("2")); !errors.Is(err, ErrOutOfOrderKey) {
		t.Fatalf("Insert out-of-order: got %v, want ErrOutOfOrderKey", err)
	}

	// The writer is now permanently unusable.
	if err := w.Insert([]byte("z"), []byte("3")); !errors.Is(err, ErrOutOfOrderKey) {
		t.Errorf("Insert after failure: got %v, want ErrOutOfOrderKey", err)
	}
	if err := w.Finish(); !errors.Is(err, ErrOutOfOrderKey) {
		t.Errorf("Finish after failure: got %v, want ErrOutOfOrderKey", err)
	}
}

func TestWriterRejectsEqualKey(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultWriterOptions())
	if err := w.Insert([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := w.Insert([]byte("a"), []byte("2")); !errors.Is(err, ErrOutOfOrderKey) {
		t.Fatalf("Insert duplicate key: got %v, want ErrOutOfOrderKey", err)
	}
}

func TestWriterFinishIsIdempotentlyClosed(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultWriterOptions())
	if err := w.Insert([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := w.Finish(); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("second Finish: got %v, want ErrWriterClosed", err)
	}
	if err := w.Insert([]byte("z"), []byte("1")); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Insert after Finish: got %v, want ErrWriterClosed", err)
	}
}

func TestWriterManyEntriesForcesMultipleBlocksAndRestarts(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultWriterOptions()
	opts.BlockSize = MinBlockSize
	w := NewWriter(&buf, opts)

	const n = 5000
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("%010d", i))
		if err := w.Insert(key, key); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	tr, err := DecodeTrailer(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeTrailer: %v", err)
	}
	if tr.CountEntries != n {
		t.Errorf("CountEntries = %d, want %d", tr.CountEntries, n)
	}
	if tr.CountDataBlocks < 2 {
		t.Errorf("CountDataBlocks = %d, want > 1 with a %d-byte target block size", tr.CountDataBlocks, opts.BlockSize)
	}
}

func TestWriterSupportsEveryCompressionAlgorithm(t *testing.T) {
	algos := []compression.Algorithm{
		compression.None, compression.Snappy, compression.Zlib,
		compression.LZ4, compression.LZ4HC, compression.Zstd,
	}
	for _, algo := range algos {
		t.Run(algo.String(), func(t *testing.T) {
			var buf bytes.Buffer
			opts := DefaultWriterOptions()
			opts.Compression = algo
			w := NewWriter(&buf, opts)
			if err := w.Insert([]byte("k"), []byte("v")); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if err := w.Finish(); err != nil {
				t.Fatalf("Finish: %v", err)
			}
			tr, err := DecodeTrailer(buf.Bytes())
			if err != nil {
				t.Fatalf("DecodeTrailer: %v", err)
			}
			if tr.CompressionAlgorithm != algo {
				t.Errorf("CompressionAlgorithm = %v, want %v", tr.CompressionAlgorithm, algo)
			}
		})
	}
}
