package sstable

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/tidesdb/sstable/internal/block"
	"github.com/tidesdb/sstable/internal/checksum"
	"github.com/tidesdb/sstable/internal/compression"
	"github.com/tidesdb/sstable/internal/encoding"
)

func buildTable(t *testing.T, opts WriterOptions, entries [][2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, opts)
	for _, e := range entries {
		if err := w.Insert([]byte(e[0]), []byte(e[1])); err != nil {
			t.Fatalf("Insert(%q): %v", e[0], err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return buf.Bytes()
}

func collect(t *testing.T, it *Iterator) [][2]string {
	t.Helper()
	var out [][2]string
	for it.Next() {
		out = append(out, [2]string{string(it.Key()), string(it.Value())})
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	return out
}

func TestReaderEmptyTable(t *testing.T) {
	data := buildTable(t, DefaultWriterOptions(), nil)
	r, err := Open(NewByteView(data), DefaultReaderOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := collect(t, r.Iter()); len(got) != 0 {
		t.Fatalf("Iter() on empty table = %v, want none", got)
	}
	if _, ok, err := r.Get([]byte("anything")); err != nil || ok {
		t.Fatalf("Get on empty table = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestReaderSingleEntry(t *testing.T) {
	data := buildTable(t, DefaultWriterOptions(), [][2]string{{"hello", "I'm the one"}})
	r, err := Open(NewByteView(data), DefaultReaderOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := collect(t, r.Iter())
	want := [][2]string{{"hello", "I'm the one"}}
	if !equalEntries(got, want) {
		t.Fatalf("Iter() = %v, want %v", got, want)
	}

	v, ok, err := r.Get([]byte("hello"))
	if err != nil || !ok || string(v) != "I'm the one" {
		t.Fatalf("Get(hello) = (%q, %v, %v), want (\"I'm the one\", true, nil)", v, ok, err)
	}
	if _, ok, err := r.Get([]byte("world")); err != nil || ok {
		t.Fatalf("Get(world) = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestReaderManyZeroPaddedKeys(t *testing.T) {
	const n = 300000
	entries := make([][2]string, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("%010d", i)
		entries[i] = [2]string{key, key}
	}

	opts := DefaultWriterOptions()
	data := buildTable(t, opts, entries)

	r, err := Open(NewByteView(data), DefaultReaderOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	count := 0
	it := r.Iter()
	for it.Next() {
		want := fmt.Sprintf("%010d", count)
		if string(it.Key()) != want || string(it.Value()) != want {
			t.Fatalf("entry %d = (%q, %q), want (%q, %q)", count, it.Key(), it.Value(), want, want)
		}
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	if count != n {
		t.Fatalf("iterated %d entries, want %d", count, n)
	}

	v, ok, err := r.Get([]byte("0000150000"))
	if err != nil || !ok || string(v) != "0000150000" {
		t.Fatalf("Get(0000150000) = (%q, %v, %v)", v, ok, err)
	}
}

func TestReaderPrefixScan(t *testing.T) {
	data := buildTable(t, DefaultWriterOptions(), [][2]string{
		{"a", "1"}, {"ab", "2"}, {"abc", "3"}, {"b", "4"}, {"ba", "5"},
	})
	r, err := Open(NewByteView(data), DefaultReaderOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := collect(t, r.IterPrefix([]byte("a")))
	want := [][2]string{{"a", "1"}, {"ab", "2"}, {"abc", "3"}}
	if !equalEntries(got, want) {
		t.Fatalf("IterPrefix(a) = %v, want %v", got, want)
	}
}

func TestReaderRangeScanInclusiveBothEnds(t *testing.T) {
	entries := make([][2]string, 0, 26)
	for c := byte('a'); c <= 'z'; c++ {
		entries = append(entries, [2]string{string(c), string(c)})
	}
	data := buildTable(t, DefaultWriterOptions(), entries)
	r, err := Open(NewByteView(data), DefaultReaderOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := collect(t, r.IterRange([]byte("c"), []byte("f")))
	want := [][2]string{{"c", "c"}, {"d", "d"}, {"e", "e"}, {"f", "f"}}
	if !equalEntries(got, want) {
		t.Fatalf("IterRange(c,f) = %v, want %v", got, want)
	}
}

func TestReaderIterFromYieldsSuffix(t *testing.T) {
	entries := make([][2]string, 0, 26)
	for c := byte('a'); c <= 'z'; c++ {
		entries = append(entries, [2]string{string(c), string(c)})
	}
	data := buildTable(t, DefaultWriterOptions(), entries)
	r, err := Open(NewByteView(data), DefaultReaderOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := collect(t, r.IterFrom([]byte("x")))
	want := [][2]string{{"x", "x"}, {"y", "y"}, {"z", "z"}}
	if !equalEntries(got, want) {
		t.Fatalf("IterFrom(x) = %v, want %v", got, want)
	}
}

func TestReaderBlockBoundaryNeutrality(t *testing.T) {
	const n = 2000
	entries := make([][2]string, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("%06d", i)
		entries[i] = [2]string{key, key}
	}

	var reference [][2]string
	for _, blockSize := range []int{MinBlockSize, 4096, 65536} {
		opts := DefaultWriterOptions()
		opts.BlockSize = blockSize
		data := buildTable(t, opts, entries)
		r, err := Open(NewByteView(data), DefaultReaderOptions())
		if err != nil {
			t.Fatalf("Open (block size %d): %v", blockSize, err)
		}
		got := collect(t, r.Iter())
		if reference == nil {
			reference = got
			continue
		}
		if !equalEntries(got, reference) {
			t.Fatalf("block size %d produced a different sequence than the reference", blockSize)
		}
	}
}

func TestReaderRejectsTruncatedFile(t *testing.T) {
	data := buildTable(t, DefaultWriterOptions(), [][2]string{{"a", "1"}})
	if _, err := Open(NewByteView(data[:len(data)-1]), DefaultReaderOptions()); err == nil {
		t.Fatal("expected Open on a truncated trailer to fail")
	}
}

func TestReaderDetectsChecksumMismatch(t *testing.T) {
	data := buildTable(t, DefaultWriterOptions(), [][2]string{{"a", "1"}, {"b", "2"}})
	corrupt := append([]byte(nil), data...)
	// The data block is written first: a 1-byte varint length and a 4-byte
	// CRC, then the payload. Flipping the payload's first byte leaves the
	// wrapper, index block and trailer intact, so only the CRC disagrees.
	corrupt[5] ^= 0xFF

	r, err := Open(NewByteView(corrupt), DefaultReaderOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	it := r.Iter()
	for it.Next() {
	}
	if it.Err() != ErrChecksumMismatch {
		t.Fatalf("Err = %v, want ErrChecksumMismatch after corrupting the data block payload", it.Err())
	}
}

func TestReaderCompressionNeutrality(t *testing.T) {
	entries := make([][2]string, 2000)
	for i := range entries {
		key := fmt.Sprintf("key-%06d", i)
		entries[i] = [2]string{key, fmt.Sprintf("value-%d", i)}
	}

	algos := []compression.Algorithm{
		compression.None, compression.Snappy, compression.Zlib,
		compression.LZ4, compression.LZ4HC, compression.Zstd,
	}
	for _, algo := range algos {
		t.Run(algo.String(), func(t *testing.T) {
			opts := DefaultWriterOptions()
			opts.Compression = algo
			data := buildTable(t, opts, entries)

			r, err := Open(NewByteView(data), DefaultReaderOptions())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !equalEntries(collect(t, r.Iter()), entries) {
				t.Fatal("iteration output differs from input")
			}
			v, ok, err := r.Get([]byte("key-001234"))
			if err != nil || !ok || string(v) != "value-1234" {
				t.Fatalf("Get = (%q, %v, %v), want (value-1234, true, nil)", v, ok, err)
			}
		})
	}
}

// buildV1Table hand-assembles a legacy-format table: block wrappers carry a
// fixed 4-byte length prefix instead of a varint, and the trailer ends in
// the V1 magic.
func buildV1Table(t *testing.T, entries [][2]string) []byte {
	t.Helper()
	var out []byte

	wrap := func(payload []byte) []byte {
		var w []byte
		w = encoding.AppendFixed32(w, uint32(len(payload)))
		w = encoding.AppendFixed32(w, checksum.Value(payload))
		return append(w, payload...)
	}

	data := block.NewBuilder(DefaultRestartInterval)
	index := block.NewBuilder(DefaultRestartInterval)

	var dataBytes []byte
	if len(entries) > 0 {
		for _, e := range entries {
			data.Add([]byte(e[0]), []byte(e[1]))
		}
		dataBytes = wrap(data.Finish())
		out = append(out, dataBytes...)
		index.Add([]byte(entries[len(entries)-1][0]), encoding.AppendVarint64(nil, 0))
	}

	indexOffset := uint64(len(out))
	out = append(out, wrap(index.Finish())...)

	trailer := (&Trailer{
		IndexBlockOffset:     indexOffset,
		DataBlockSize:        DefaultBlockSize,
		CompressionAlgorithm: compression.None,
		CountEntries:         uint64(len(entries)),
		CountDataBlocks:      1,
	}).Encode()
	encoding.EncodeFixed32(trailer[TrailerSize-4:], 0x77846676)
	return append(out, trailer...)
}

func TestReaderReadsLegacyV1Format(t *testing.T) {
	want := [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}
	data := buildV1Table(t, want)

	r, err := Open(NewByteView(data), DefaultReaderOptions())
	if err != nil {
		t.Fatalf("Open V1 table: %v", err)
	}
	if r.trailer.Format != FormatV1 {
		t.Fatalf("Format = %v, want FormatV1", r.trailer.Format)
	}

	got := collect(t, r.Iter())
	if !equalEntries(got, want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	v, ok, err := r.Get([]byte("b"))
	if err != nil || !ok || string(v) != "2" {
		t.Fatalf("Get(b) = %q, %v, %v; want 2, true, nil", v, ok, err)
	}
}

func equalEntries(a, b [][2]string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
