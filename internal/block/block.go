// block.go implements read-side decoding of the prefix-compressed,
// restart-pointed block format: restart-width auto-detection, forward
// iteration and binary-search seek.
package block

import (
	"errors"

	"github.com/tidesdb/sstable/internal/encoding"
)

// ErrCorrupt is returned when a block's restart footer or an entry within
// it cannot be decoded consistently.
var ErrCorrupt = errors.New("block: corrupt block")

// maxFixed32 is the largest value representable by a 4-byte restart offset.
const maxFixed32 = 0xFFFFFFFF

// Block is a parsed, immutable view over a single block's bytes: the entry
// region followed by a restart array and a trailing restart count. data is
// never copied; it may alias a much larger file-backed buffer.
type Block struct {
	data          []byte
	restartOffset int // offset of the first byte past the entry region
	numRestarts   int
	width         int // bytes per restart offset: 4 or 8
}

// NewBlock decodes the restart footer of data and returns a Block ready for
// iteration. data is retained, not copied.
func NewBlock(data []byte) (*Block, error) {
	if len(data) < 2*4 {
		return nil, ErrCorrupt
	}

	numRestarts := int(encoding.DecodeFixed32(data[len(data)-4:]))
	if numRestarts <= 0 {
		return nil, ErrCorrupt
	}

	width := 4
	restartOffset := len(data) - (1+numRestarts)*4

	// If a 4-byte restart array would have to begin beyond what a u32
	// offset can address, the writer would have switched to 8-byte
	// restart offsets; redo the computation under that assumption. If
	// the recomputed offset is STILL representable in 4 bytes, neither
	// width is self-consistent and the block is corrupt.
	if restartOffset > maxFixed32 {
		width = 8
		restartOffset = len(data) - (4 + numRestarts*8)
		if restartOffset <= maxFixed32 {
			return nil, ErrCorrupt
		}
	}
	if restartOffset < 0 || restartOffset > len(data)-4 {
		return nil, ErrCorrupt
	}

	return &Block{
		data:          data,
		restartOffset: restartOffset,
		numRestarts:   numRestarts,
		width:         width,
	}, nil
}

// Data returns the raw, full block bytes (entries + restart array + count).
func (b *Block) Data() []byte { return b.data }

// NumRestarts returns the number of restart points in the block.
func (b *Block) NumRestarts() int { return b.numRestarts }

// DataEnd returns the offset of the first byte past the entry region (the
// start of the restart array).
func (b *Block) DataEnd() int { return b.restartOffset }

// restartPoint returns the entry-region offset stored at restart index i.
func (b *Block) restartPoint(i int) int {
	off := b.restartOffset + i*b.width
	if b.width == 8 {
		return int(encoding.DecodeFixed64(b.data[off:]))
	}
	return int(encoding.DecodeFixed32(b.data[off:]))
}

// Iterator scans a Block's entries forward, from the first entry or from a
// binary-search seek. It is not safe for concurrent use.
type Iterator struct {
	block   *Block
	current int // offset of the entry currently exposed by Key/Value
	next    int // offset of the next entry to parse
	key     []byte
	valOff  int
	valLen  int
	valid   bool
	err     error
}

// NewIterator returns an Iterator over b, initially positioned before the
// first entry; call SeekToFirst or Seek before reading.
func (b *Block) NewIterator() *Iterator {
	return &Iterator{block: b}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.valid && it.err == nil }

// Key returns the current entry's key. Valid only while Valid() is true;
// the returned slice is reused by the next call to Next or Seek and must be
// copied if it needs to outlive that call.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current entry's value, sliced directly from the
// block's backing bytes.
func (it *Iterator) Value() []byte { return it.block.data[it.valOff : it.valOff+it.valLen] }

// Err returns the error, if any, that invalidated the iterator.
func (it *Iterator) Err() error { return it.err }

// SeekToFirst positions the iterator at the block's first entry.
func (it *Iterator) SeekToFirst() {
	it.seekToRestartPoint(0)
	it.parseNextKey()
}

// Next advances to the next entry, returning false when the block is
// exhausted or an error was encountered.
func (it *Iterator) Next() bool {
	if !it.Valid() {
		return false
	}
	return it.parseNextKey()
}

// Seek positions the iterator at the first entry whose key is >= target,
// using binary search over the restart array followed by a linear scan.
func (it *Iterator) Seek(target []byte) {
	if it.err != nil {
		return
	}

	left, right := 0, it.block.numRestarts-1
	for left < right {
		mid := (left + right + 1) / 2
		off := it.block.restartPoint(mid)
		shared, n1, err := encoding.DecodeVarint32(it.block.data[off:it.block.restartOffset])
		if err != nil {
			it.err = ErrCorrupt
			it.valid = false
			return
		}
		if shared != 0 {
			// Restart-point entries always carry a full key (shared=0);
			// anything else means the block's restart bookkeeping is
			// inconsistent.
			it.err = ErrCorrupt
			it.valid = false
			return
		}
		nonShared, n2, err := encoding.DecodeVarint32(it.block.data[off+n1 : it.block.restartOffset])
		if err != nil {
			it.err = ErrCorrupt
			it.valid = false
			return
		}
		_, n3, err := encoding.DecodeVarint32(it.block.data[off+n1+n2 : it.block.restartOffset])
		if err != nil {
			it.err = ErrCorrupt
			it.valid = false
			return
		}
		keyOff := off + n1 + n2 + n3
		key := it.block.data[keyOff : keyOff+int(nonShared)]
		if bytewiseCompare(key, target) < 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}

	it.seekToRestartPoint(left)
	for {
		if !it.parseNextKey() {
			return
		}
		if bytewiseCompare(it.key, target) >= 0 {
			return
		}
	}
}

func (it *Iterator) seekToRestartPoint(idx int) {
	it.key = it.key[:0]
	off := it.block.restartPoint(idx)
	it.current = off
	it.next = off
	it.valid = false
}

// parseNextKey decodes the entry at it.next and advances it.next past it.
func (it *Iterator) parseNextKey() bool {
	it.current = it.next
	if it.current >= it.block.restartOffset {
		it.valid = false
		return false
	}

	data := it.block.data
	limit := it.block.restartOffset
	offset := it.current

	shared, n, err := encoding.DecodeVarint32(data[offset:limit])
	if err != nil {
		it.err = ErrCorrupt
		it.valid = false
		return false
	}
	offset += n

	nonShared, n, err := encoding.DecodeVarint32(data[offset:limit])
	if err != nil {
		it.err = ErrCorrupt
		it.valid = false
		return false
	}
	offset += n

	valueLen, n, err := encoding.DecodeVarint32(data[offset:limit])
	if err != nil {
		it.err = ErrCorrupt
		it.valid = false
		return false
	}
	offset += n

	if int(shared) > len(it.key) || limit-offset < int(nonShared)+int(valueLen) {
		it.err = ErrCorrupt
		it.valid = false
		return false
	}

	it.key = append(it.key[:shared], data[offset:offset+int(nonShared)]...)
	offset += int(nonShared)
	it.valOff = offset
	it.valLen = int(valueLen)
	it.next = offset + int(valueLen)
	it.valid = true
	return true
}

// bytewiseCompare compares two byte slices lexicographically by unsigned
// byte value, mirroring the root package's BytewiseCompare without
// importing it (this package sits below the root package in the
// dependency graph).
func bytewiseCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
