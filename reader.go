package sstable

// reader.go implements the table reader: construction/validation of the
// trailer and index block, point lookups, and the four scan variants
// (Iter/IterFrom/IterPrefix/IterRange), all built over internal/block's
// block decoder and an optional bounded block cache.
import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidesdb/sstable/internal/block"
	"github.com/tidesdb/sstable/internal/checksum"
	"github.com/tidesdb/sstable/internal/compression"
	"github.com/tidesdb/sstable/internal/encoding"
	"github.com/tidesdb/sstable/internal/logging"
)

// indexOffsetSlack is the minimum number of bytes that must separate
// index_block_offset from the trailer: the smallest a wrapped index block
// can ever be. An empty index (zero entries) decodes to an 8-byte payload
// (one 4-byte restart offset plus a 4-byte restart count), wrapped as a
// 1-byte varint length plus a 4-byte CRC plus those 8 payload bytes.
const indexOffsetSlack = 13

// maxWrapperHeader is the largest a block wrapper's varint-length-plus-CRC
// header can be: a 10-byte u64 varint plus a 4-byte CRC.
const maxWrapperHeader = encoding.MaxVarint64Length + 4

// Reader is an opened, immutable table. It is safe for concurrent Get and
// new-iterator calls from multiple goroutines; a single Iterator is not.
type Reader struct {
	view    ByteView
	opts    ReaderOptions
	trailer *Trailer
	index   *block.Block
	cache   *blockCache
}

// Open validates and opens a table over view.
func Open(view ByteView, opts ReaderOptions) (*Reader, error) {
	opts = opts.normalized()

	size := view.Size()
	if size < TrailerSize {
		return nil, fmt.Errorf("sstable: table is %d bytes: %w", size, ErrInvalidMetadataSize)
	}

	trailerBuf := make([]byte, TrailerSize)
	if _, err := view.ReadAt(trailerBuf, size-TrailerSize); err != nil {
		return nil, err
	}
	trailer, err := DecodeTrailer(trailerBuf)
	if err != nil {
		return nil, err
	}

	maxOffset := size - TrailerSize - indexOffsetSlack
	if maxOffset < 0 || int64(trailer.IndexBlockOffset) > maxOffset {
		return nil, fmt.Errorf("sstable: index_block_offset %d exceeds %d: %w", trailer.IndexBlockOffset, maxOffset, ErrInvalidIndexBlockOffset)
	}

	r := &Reader{view: view, opts: opts, trailer: trailer}
	if opts.BlockCacheEntries > 0 {
		r.cache = newBlockCache(opts.BlockCacheEntries)
	}

	// The index block is always stored uncompressed, so it is decoded
	// directly from the wrapper payload with no decompression step,
	// regardless of the table's data-block compression algorithm.
	raw, _, err := r.readWrapped(int64(trailer.IndexBlockOffset))
	if err != nil {
		return nil, err
	}
	idx, err := block.NewBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("sstable: index block: %w", ErrInvalidBlock)
	}
	r.index = idx
	return r, nil
}

// readWrapped reads and, if enabled, checksum-verifies the block wrapper at
// offset, returning its (possibly compressed) payload and the wrapper's
// total on-disk length.
func (r *Reader) readWrapped(offset int64) ([]byte, int64, error) {
	size := r.view.Size()
	if offset < 0 || offset >= size {
		return nil, 0, fmt.Errorf("sstable: block offset %d out of range: %w", offset, ErrInvalidIndexLength)
	}

	budget := int64(maxWrapperHeader)
	if offset+budget > size {
		budget = size - offset
	}
	hdr := make([]byte, budget)
	if _, err := r.view.ReadAt(hdr, offset); err != nil {
		return nil, 0, err
	}

	var payloadLen uint64
	var n int
	if r.trailer.Format == FormatV1 {
		if len(hdr) < 4 {
			return nil, 0, fmt.Errorf("sstable: truncated V1 block header: %w", ErrInvalidIndexLength)
		}
		payloadLen = uint64(encoding.DecodeFixed32(hdr[:4]))
		n = 4
	} else {
		v, consumed, derr := encoding.DecodeVarint64(hdr)
		if derr != nil {
			return nil, 0, fmt.Errorf("sstable: block length varint: %w", ErrInvalidVarint)
		}
		payloadLen = v
		n = consumed
	}

	if n+4 > len(hdr) {
		return nil, 0, fmt.Errorf("sstable: truncated block header: %w", ErrInvalidIndexLength)
	}
	crcStored := encoding.DecodeFixed32(hdr[n : n+4])
	payloadOffset := offset + int64(n) + 4

	if payloadOffset+int64(payloadLen) > size {
		return nil, 0, fmt.Errorf("sstable: block payload [%d,%d) exceeds table size %d: %w", payloadOffset, payloadOffset+int64(payloadLen), size, ErrInvalidIndexLength)
	}

	var raw []byte
	if slicer, ok := r.view.(zeroCopySlicer); ok {
		sliced, err := slicer.slice(payloadOffset, int64(payloadLen))
		if err != nil {
			return nil, 0, err
		}
		raw = sliced
	} else {
		raw = make([]byte, payloadLen)
		if _, err := r.view.ReadAt(raw, payloadOffset); err != nil {
			return nil, 0, err
		}
	}

	if r.opts.VerifyChecksums {
		if got := checksum.Value(raw); got != crcStored {
			r.opts.Logger.Errorf("%schecksum mismatch at offset %d: got %#x, want %#x", logging.NSReader, offset, got, crcStored)
			return nil, 0, ErrChecksumMismatch
		}
	}

	return raw, int64(n) + 4 + int64(payloadLen), nil
}

// loadDataBlock decodes (and, if caching is enabled, caches) the data
// block at offset.
func (r *Reader) loadDataBlock(offset int64) (*block.Block, error) {
	if blk, ok := r.cache.get(offset); ok {
		return blk, nil
	}

	raw, _, err := r.readWrapped(offset)
	if err != nil {
		return nil, err
	}
	payload, err := compression.Decompress(r.trailer.CompressionAlgorithm, raw)
	if err != nil {
		return nil, fmt.Errorf("sstable: decompress data block at offset %d: %w", offset, err)
	}
	blk, err := block.NewBlock(payload)
	if err != nil {
		return nil, fmt.Errorf("sstable: data block at offset %d: %w", offset, ErrInvalidBlock)
	}

	r.cache.put(offset, blk)
	return blk, nil
}

// indexValueOffset decodes an index entry's value as a varint-encoded data
// block offset.
func indexValueOffset(value []byte) (int64, error) {
	v, _, err := encoding.DecodeVarint64(value)
	if err != nil {
		return 0, fmt.Errorf("sstable: index entry offset: %w", ErrInvalidVarint)
	}
	return int64(v), nil
}

// Get returns the value stored for key, if present. The value is sliced
// from the decoded data block rather than copied (for an uncompressed
// table opened over NewByteView it aliases the caller's bytes); copy it
// before modifying it.
func (r *Reader) Get(key []byte) (value []byte, ok bool, err error) {
	idx := r.index.NewIterator()
	idx.Seek(key)
	if !idx.Valid() {
		if err := idx.Err(); err != nil {
			return nil, false, fmt.Errorf("sstable: %w", ErrInvalidBlock)
		}
		return nil, false, nil
	}

	offset, err := indexValueOffset(idx.Value())
	if err != nil {
		return nil, false, err
	}
	blk, err := r.loadDataBlock(offset)
	if err != nil {
		return nil, false, err
	}

	dit := blk.NewIterator()
	dit.Seek(key)
	if !dit.Valid() {
		if err := dit.Err(); err != nil {
			return nil, false, fmt.Errorf("sstable: %w", ErrInvalidBlock)
		}
		return nil, false, nil
	}
	if !bytes.Equal(dit.Key(), key) {
		return nil, false, nil
	}
	return dit.Value(), true, nil
}

// scanMode is the filter applied to entries yielded by an Iterator. Point
// lookups are served directly by Reader.Get rather than through a mode
// here, since they need no scan state once the key is found.
type scanMode int

const (
	scanAll scanMode = iota
	scanPrefix
	scanRange
)

func (m scanMode) String() string {
	switch m {
	case scanAll:
		return "Iter"
	case scanPrefix:
		return "GetPrefix"
	case scanRange:
		return "GetRange"
	default:
		return "Unknown"
	}
}

// Iterator scans a Reader's entries forward in ascending key order. It
// holds a reference to its currently loaded data block, so returned
// key/value slices remain valid until the next call to Next or until the
// Iterator is closed. Not safe for concurrent use.
type Iterator struct {
	r      *Reader
	idx    *block.Iterator
	data   *block.Iterator
	offset int64
	loaded bool

	mode     scanMode
	seekKey  []byte
	prefix   []byte
	rangeEnd []byte

	started bool
	done    bool
	err     error
}

// Iter returns an iterator over every entry, in ascending key order.
func (r *Reader) Iter() *Iterator {
	return r.newIterator(scanAll, nil, nil, nil)
}

// IterFrom returns an iterator over every entry with key >= start.
func (r *Reader) IterFrom(start []byte) *Iterator {
	return r.newIterator(scanAll, start, nil, nil)
}

// IterPrefix returns an iterator over every entry whose key has prefix pfx.
func (r *Reader) IterPrefix(pfx []byte) *Iterator {
	return r.newIterator(scanPrefix, pfx, pfx, nil)
}

// IterRange returns an iterator over every entry with start <= key <= end
// (inclusive on both ends).
func (r *Reader) IterRange(start, end []byte) *Iterator {
	return r.newIterator(scanRange, start, nil, end)
}

func (r *Reader) newIterator(mode scanMode, seekKey, prefix, rangeEnd []byte) *Iterator {
	return &Iterator{
		r:        r,
		idx:      r.index.NewIterator(),
		mode:     mode,
		seekKey:  seekKey,
		prefix:   prefix,
		rangeEnd: rangeEnd,
	}
}

// Next advances the iterator and reports whether it is positioned at an
// entry. Once Next returns false, Err reports whether that was due to
// exhaustion (nil) or a failure.
func (it *Iterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}

	if !it.started {
		it.started = true
		if !it.advanceIndex(true) {
			return false
		}
	} else if !it.data.Next() {
		if err := it.data.Err(); err != nil {
			it.fail(err)
			return false
		}
		if !it.advanceIndex(false) {
			return false
		}
	}

	return it.applyFilter()
}

// advanceIndex moves to (and loads the data block for) the next index
// entry, positioning the data iterator at its first entry or, on the
// initial call, at seekKey if one was given. Returns false if no further
// index entries exist or an error occurred.
func (it *Iterator) advanceIndex(initial bool) bool {
	for {
		if initial {
			if it.seekKey != nil {
				it.idx.Seek(it.seekKey)
			} else {
				it.idx.SeekToFirst()
			}
		} else {
			it.idx.Next()
		}
		if !it.idx.Valid() {
			if err := it.idx.Err(); err != nil {
				it.fail(err)
			} else {
				it.done = true
			}
			return false
		}

		offset, err := indexValueOffset(it.idx.Value())
		if err != nil {
			it.fail(err)
			return false
		}
		if !it.loaded || offset != it.offset {
			blk, err := it.r.loadDataBlock(offset)
			if err != nil {
				it.fail(err)
				return false
			}
			it.data = blk.NewIterator()
			it.offset = offset
			it.loaded = true
		}

		if initial && it.seekKey != nil {
			it.data.Seek(it.seekKey)
		} else {
			it.data.SeekToFirst()
		}
		if it.data.Valid() {
			return true
		}
		if err := it.data.Err(); err != nil {
			it.fail(err)
			return false
		}
		// This data block turned out empty (or the seek landed past its
		// last entry); advance to the next index entry.
		initial = false
	}
}

func (it *Iterator) applyFilter() bool {
	switch it.mode {
	case scanPrefix:
		if !bytes.HasPrefix(it.data.Key(), it.prefix) {
			it.done = true
			return false
		}
	case scanRange:
		if BytewiseCompare(it.data.Key(), it.rangeEnd) > 0 {
			it.done = true
			return false
		}
	}
	return true
}

func (it *Iterator) fail(err error) {
	if errors.Is(err, block.ErrCorrupt) {
		err = fmt.Errorf("sstable: %w", ErrInvalidBlock)
	}
	it.err = err
	it.done = true
}

// Key returns the current entry's key. Valid only after Next returns true;
// the slice is reused on the next call to Next and must be copied to
// outlive it.
func (it *Iterator) Key() []byte { return it.data.Key() }

// Value returns the current entry's value, sliced from the currently
// loaded data block; the same lifetime rules as Key apply.
func (it *Iterator) Value() []byte { return it.data.Value() }

// Err returns the error, if any, that ended iteration early. A nil Err
// after Next returns false means iteration reached the end normally.
func (it *Iterator) Err() error { return it.err }

// Close releases the iterator's hold on its current block. After Close the
// iterator must not be used.
func (it *Iterator) Close() error {
	it.data = nil
	it.idx = nil
	it.done = true
	return nil
}
