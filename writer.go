package sstable

// writer.go implements the table writer: block accumulation, restart
// spacing (delegated to internal/block.Builder), the compression pipeline,
// shortest-separator index construction, and trailer finalization.
import (
	"fmt"
	"io"

	"github.com/tidesdb/sstable/internal/block"
	"github.com/tidesdb/sstable/internal/checksum"
	"github.com/tidesdb/sstable/internal/compression"
	"github.com/tidesdb/sstable/internal/encoding"
	"github.com/tidesdb/sstable/internal/logging"
)

// maxVarintOverhead is 3·max_varint_len(u32), the per-entry header cost a
// size estimate must account for before the entry is actually appended.
const maxVarintOverhead = 3 * encoding.MaxVarint32Length

// Writer builds a single table file by accepting entries in strictly
// ascending key order and writing blocks to an underlying io.Writer as they
// fill. A Writer that returns ErrOutOfOrderKey (or any I/O error) becomes
// permanently unusable: every subsequent Insert or Finish call returns that
// same error.
//
// A Writer is single-owner; it is not safe for concurrent use.
type Writer struct {
	dst  io.Writer
	opts WriterOptions

	data  *block.Builder
	index *block.Builder

	lastKey  []byte
	hasEntry bool

	lastOffset       uint64
	pendingOffset    uint64
	pendingIndex     bool
	closed           bool
	err              error
	countEntries     uint64
	countDataBlocks  uint64
	bytesDataBlocks  uint64
	bytesIndexBlock  uint64
	bytesKeys        uint64
	bytesValues      uint64
}

// NewWriter returns a Writer that appends a table to dst.
func NewWriter(dst io.Writer, opts WriterOptions) *Writer {
	opts = opts.normalized()
	return &Writer{
		dst:   dst,
		opts:  opts,
		data:  block.NewBuilder(opts.RestartInterval),
		index: block.NewBuilder(opts.RestartInterval),
	}
}

// Insert appends (key, val). key must be strictly greater than every
// previously inserted key.
func (w *Writer) Insert(key, val []byte) error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return ErrWriterClosed
	}

	if w.hasEntry && BytewiseCompare(key, w.lastKey) <= 0 {
		w.opts.Logger.Warnf("%srejecting out-of-order key %q (last key %q)", logging.NSWriter, key, w.lastKey)
		w.err = ErrOutOfOrderKey
		return w.err
	}

	estimate := w.data.CurrentSizeEstimate() + maxVarintOverhead + len(key) + len(val)
	if !w.data.IsEmpty() && estimate >= w.opts.BlockSize {
		if err := w.flush(); err != nil {
			return err
		}
	}

	if w.pendingIndex {
		sep := FindShortestSeparator(w.lastKey, key)
		w.index.Add(sep, encoding.AppendVarint64(nil, w.lastOffset))
		w.pendingIndex = false
	}

	w.data.Add(key, val)
	w.lastKey = append(w.lastKey[:0], key...)
	w.hasEntry = true
	w.countEntries++
	w.bytesKeys += uint64(len(key))
	w.bytesValues += uint64(len(val))
	return nil
}

// flush emits the current data block, if non-empty.
func (w *Writer) flush() error {
	if w.data.IsEmpty() {
		return nil
	}

	raw := w.data.Finish()
	n, err := w.writeWrapped(raw, w.opts.Compression, w.opts.CompressionLevel)
	if err != nil {
		w.err = err
		return err
	}

	w.opts.Logger.Debugf("%sflushed data block at offset %d (%d raw bytes)", logging.NSWriter, w.pendingOffset, len(raw))

	w.lastOffset = w.pendingOffset
	w.pendingOffset += uint64(n)
	w.countDataBlocks++
	w.bytesDataBlocks += uint64(len(raw))
	w.pendingIndex = true
	w.data.Reset()
	return nil
}

// writeWrapped compresses raw with algo/level, CRC32Cs the result, and
// writes the block wrapper (varint length ‖ CRC32C ‖ payload) to w.dst,
// returning the total number of bytes written.
func (w *Writer) writeWrapped(raw []byte, algo compression.Algorithm, level int32) (int64, error) {
	payload, err := compression.Compress(algo, level, raw)
	if err != nil {
		if !algo.Valid() {
			return 0, fmt.Errorf("sstable: compress block: %w: %w", ErrUnsupportedCompression, err)
		}
		return 0, fmt.Errorf("sstable: compress block: %w", err)
	}

	header := encoding.AppendVarint64(nil, uint64(len(payload)))
	header = encoding.AppendFixed32(header, checksum.Value(payload))

	if _, err := w.dst.Write(header); err != nil {
		return 0, err
	}
	if _, err := w.dst.Write(payload); err != nil {
		return 0, err
	}
	return int64(len(header) + len(payload)), nil
}

// Finish flushes any pending data block, writes the (always uncompressed)
// index block, and writes the 512-byte trailer. The Writer is unusable
// after Finish returns, whether or not it returned an error.
func (w *Writer) Finish() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return ErrWriterClosed
	}

	if err := w.flush(); err != nil {
		return err
	}
	if w.pendingIndex {
		w.index.Add(w.lastKey, encoding.AppendVarint64(nil, w.lastOffset))
		w.pendingIndex = false
	}

	indexOffset := w.pendingOffset
	rawIndex := w.index.Finish()
	n, err := w.writeWrapped(rawIndex, compression.None, compression.DefaultLevel)
	if err != nil {
		w.err = err
		return err
	}
	w.bytesIndexBlock = uint64(len(rawIndex))
	w.pendingOffset += uint64(n)

	trailer := &Trailer{
		IndexBlockOffset:     indexOffset,
		DataBlockSize:        uint64(w.opts.BlockSize),
		CompressionAlgorithm: w.opts.Compression,
		CountEntries:         w.countEntries,
		CountDataBlocks:      w.countDataBlocks,
		BytesDataBlocks:      w.bytesDataBlocks,
		BytesIndexBlock:      w.bytesIndexBlock,
		BytesKeys:            w.bytesKeys,
		BytesValues:          w.bytesValues,
	}
	if _, err := w.dst.Write(trailer.Encode()); err != nil {
		w.err = err
		return err
	}

	w.opts.Logger.Infof("%swrote table: %d entries, %d data blocks", logging.NSWriter, w.countEntries, w.countDataBlocks)
	w.closed = true
	return nil
}
