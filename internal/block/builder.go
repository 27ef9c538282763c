// builder.go implements block building with prefix compression.
//
// Builder generates blocks where keys are prefix-compressed with periodic
// restart points for efficient random access.
package block

import (
	"github.com/tidesdb/sstable/internal/encoding"
)

// DefaultRestartInterval is the number of entries between restart points
// used when a writer does not override it.
const DefaultRestartInterval = 16

// Builder generates blocks where keys are prefix-compressed.
//
// When a key is stored, the prefix shared with the previous key is dropped.
// Once every restartInterval keys, delta encoding is skipped and the full
// key is stored instead; this is a "restart point", enabling binary search
// during a later scan.
//
// Format (single entry):
//
//	shared_bytes:    varint32
//	unshared_bytes:  varint32
//	value_length:    varint32
//	key_delta:       char[unshared_bytes]
//	value:           char[value_length]
//
// Format (overall block):
//
//	[entry 1]
//	...
//	[entry N]
//	[restart point 1: uint32 or uint64]
//	...
//	[restart point M: uint32 or uint64]
//	[num_restarts: uint32]
type Builder struct {
	buffer          []byte   // serialized block data
	restarts        []uint64 // restart points (offsets into buffer)
	counter         int      // entries since last restart
	restartInterval int
	lastKey         []byte
	finished        bool
}

// NewBuilder creates a new block builder. A restart point is created every
// restartInterval entries; restartInterval <= 0 uses DefaultRestartInterval.
func NewBuilder(restartInterval int) *Builder {
	if restartInterval <= 0 {
		restartInterval = DefaultRestartInterval
	}
	return &Builder{
		buffer:          make([]byte, 0, 4096),
		restartInterval: restartInterval,
		restarts:        []uint64{0},
	}
}

// Reset resets the builder for reuse, discarding any accumulated entries.
func (b *Builder) Reset() {
	b.buffer = b.buffer[:0]
	b.restarts = b.restarts[:1]
	b.restarts[0] = 0
	b.counter = 0
	b.lastKey = b.lastKey[:0]
	b.finished = false
}

// Add adds a key-value pair to the block.
// REQUIRES: Finish has not been called since the last Reset.
// REQUIRES: key is larger than any previously added key.
func (b *Builder) Add(key, value []byte) {
	if b.finished {
		panic("block: Add called after Finish")
	}

	shared := 0
	if b.counter < b.restartInterval {
		shared = sharedPrefixLength(b.lastKey, key)
	} else {
		b.restarts = append(b.restarts, uint64(len(b.buffer)))
		b.counter = 0
	}
	unshared := len(key) - shared

	b.buffer = encoding.AppendVarint32(b.buffer, uint32(shared))
	b.buffer = encoding.AppendVarint32(b.buffer, uint32(unshared))
	b.buffer = encoding.AppendVarint32(b.buffer, uint32(len(value)))
	b.buffer = append(b.buffer, key[shared:]...)
	b.buffer = append(b.buffer, value...)

	b.lastKey = append(b.lastKey[:0], key...)
	b.counter++
}

// restartWidth returns the number of bytes each restart offset occupies if
// the block were finished right now: 8 iff the entry region already exceeds
// what a 4-byte offset can address, 4 otherwise.
func (b *Builder) restartWidth() int {
	if len(b.buffer) > maxFixed32 {
		return 8
	}
	return 4
}

// CurrentSizeEstimate returns an estimate of the size the block would
// occupy if finished right now: entry bytes plus the restart array plus the
// trailing restart count.
func (b *Builder) CurrentSizeEstimate() int {
	return len(b.buffer) + len(b.restarts)*b.restartWidth() + 4
}

// IsEmpty reports whether no entries have been added since the last Reset.
func (b *Builder) IsEmpty() bool {
	return len(b.buffer) == 0
}

// Finish finishes building the block: appends the restart array (4- or
// 8-byte width, decided by the final buffer length) and the trailing
// restart count, and returns the block bytes. The returned slice is valid
// until Reset is called.
func (b *Builder) Finish() []byte {
	wide := len(b.buffer) > maxFixed32
	if wide {
		for _, restart := range b.restarts {
			b.buffer = encoding.AppendFixed64(b.buffer, restart)
		}
	} else {
		for _, restart := range b.restarts {
			b.buffer = encoding.AppendFixed32(b.buffer, uint32(restart))
		}
	}
	b.buffer = encoding.AppendFixed32(b.buffer, uint32(len(b.restarts)))

	b.finished = true
	return b.buffer
}

// sharedPrefixLength returns the length of the shared prefix between a and b.
func sharedPrefixLength(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
