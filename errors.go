package sstable

// errors.go defines the sentinel error taxonomy surfaced by this package.
// Callers use errors.Is/errors.As against these sentinels; call sites wrap
// them with fmt.Errorf("...: %w", ...) to add positional context.

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMetadataSize is returned when a byte view is too small to
	// contain a 512-byte trailer.
	ErrInvalidMetadataSize = errors.New("sstable: invalid metadata size")

	// ErrInvalidFormatVersion is returned when the trailer's magic number
	// does not match either the V1 or V2 format magic.
	ErrInvalidFormatVersion = errors.New("sstable: invalid format version")

	// ErrInvalidCompressionAlgorithm is returned when the trailer names a
	// compression algorithm identifier outside {0..5}.
	ErrInvalidCompressionAlgorithm = errors.New("sstable: invalid compression algorithm")

	// ErrInvalidIndexBlockOffset is returned when the trailer's
	// index_block_offset does not leave room for the trailer itself.
	ErrInvalidIndexBlockOffset = errors.New("sstable: invalid index block offset")

	// ErrInvalidIndexLength is returned when the index block's wrapped
	// length does not fit between its offset and the trailer.
	ErrInvalidIndexLength = errors.New("sstable: invalid index length")

	// ErrInvalidBlock is returned when a block's restart footer or an
	// entry within it cannot be decoded consistently.
	ErrInvalidBlock = errors.New("sstable: invalid block")

	// ErrInvalidVarint is returned when a varint has no terminating byte
	// within its maximum allowed width.
	ErrInvalidVarint = errors.New("sstable: invalid varint")

	// ErrUnsupportedCompression is returned when the requested algorithm
	// identifier has no compression backend wired in this build.
	ErrUnsupportedCompression = errors.New("sstable: unsupported compression algorithm")

	// ErrOutOfOrderKey is returned by Writer.Insert when a key is not
	// strictly greater than the previously inserted key. A Writer that has
	// returned this error is permanently unusable: it returns the same
	// error on every subsequent Insert or Finish call.
	ErrOutOfOrderKey = errors.New("sstable: out-of-order key")

	// ErrChecksumMismatch is returned when checksum verification is
	// enabled (the default) and a block's stored CRC32C does not match
	// its computed CRC32C.
	ErrChecksumMismatch = errors.New("sstable: checksum mismatch")

	// ErrWriterClosed is returned by Insert/Finish once a Writer has
	// finished successfully. A Writer that failed keeps returning the
	// error it failed with instead.
	ErrWriterClosed = errors.New("sstable: writer is no longer usable")

	// ErrSorterConsumed is returned by Sorter methods once IntoIter or
	// WriteInto has consumed the Sorter.
	ErrSorterConsumed = errors.New("sstable: sorter already consumed")

	// errNilMergeFunc surfaces, wrapped in a MergeError, when a duplicate
	// key is encountered and no merge function was supplied.
	errNilMergeFunc = errors.New("sstable: duplicate key with nil merge function")
)

// MergeError wraps an error returned by a caller-supplied merge function,
// preserving its original type so callers can recover it with errors.As.
// E is the merge function's own error type.
type MergeError[E error] struct {
	Key   []byte
	Cause E
}

// Error implements the error interface.
func (e *MergeError[E]) Error() string {
	return fmt.Sprintf("sstable: merge function failed for key %q: %v", e.Key, e.Cause)
}

// Unwrap allows errors.Is/errors.As to recover the original merge error.
func (e *MergeError[E]) Unwrap() error {
	return e.Cause
}
