package sstable

// sorter.go implements the external-memory sorter: unordered entries
// accumulate in a memory-bounded buffer, spill to sorted on-disk chunk
// tables (each a regular table written through Writer), and are finally
// replayed through a Merger that reconciles duplicate keys with the same
// merge function used during spills.
//
// Each buffered entry keeps its key and value concatenated in a single
// allocation with a split index, so the buffer costs one allocation per
// entry regardless of value size. The spill sort is stable: merge
// functions sensitive to value order see values in arrival order.

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidesdb/sstable/internal/logging"
	"github.com/tidesdb/sstable/internal/vfs"
)

// sorterEntrySize approximates the in-memory footprint of one sorterEntry
// beyond its data bytes: a 24-byte slice header plus an 8-byte length, on
// a 64-bit platform. The spill trigger charges the buffer's full capacity
// at this rate so its own bookkeeping counts against MaxMemory.
const sorterEntrySize = 32

// sorterEntry stores one buffered (key, value) pair as a single
// concatenated allocation split at keyLen.
type sorterEntry struct {
	data   []byte
	keyLen int
}

func newSorterEntry(key, val []byte) sorterEntry {
	data := make([]byte, 0, len(key)+len(val))
	data = append(data, key...)
	data = append(data, val...)
	return sorterEntry{data: data, keyLen: len(key)}
}

func (e sorterEntry) key() []byte { return e.data[:e.keyLen] }
func (e sorterEntry) val() []byte { return e.data[e.keyLen:] }

// chunk is one spilled sorted run: a finished table in an ephemeral file.
type chunk struct {
	file vfs.File
	name string
	size int64
}

// countingWriter tracks how many bytes a chunk writer emits, so the chunk
// can be reopened as a ByteView of known size without a stat call.
type countingWriter struct {
	f vfs.File
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.n += int64(n)
	return n, err
}

// Sorter accepts entries in any order and any multiplicity, spilling
// sorted runs to ephemeral chunk files when its memory budget fills, and
// finally yields each distinct key once, in ascending order, with
// duplicates reconciled by the merge function. A Sorter is single-owner
// and not safe for concurrent use.
type Sorter struct {
	opts  SorterOptions
	merge MergeFunc

	entries    []sorterEntry
	entryBytes int
	chunks     []chunk
	consumed   bool
}

// NewSorter returns a Sorter reconciling duplicate keys with merge. merge
// may be nil only if every key is inserted at most once.
func NewSorter(merge MergeFunc, opts SorterOptions) *Sorter {
	return &Sorter{opts: opts.normalized(), merge: merge}
}

// Insert buffers (key, val), spilling a sorted chunk if the in-memory
// budget is exceeded. ctx is consulted only at spill boundaries; an
// in-progress spill runs to completion.
func (s *Sorter) Insert(ctx context.Context, key, val []byte) error {
	if s.consumed {
		return ErrSorterConsumed
	}

	ent := newSorterEntry(key, val)
	s.entries = append(s.entries, ent)
	s.entryBytes += len(ent.data)

	if s.entryBytes+cap(s.entries)*sorterEntrySize >= s.opts.MaxMemory {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.spill()
	}
	return nil
}

// spill stable-sorts the buffered entries, sweeps them into a fresh chunk
// table (merging duplicate keys as it goes), and consolidates the chunk
// list if it has grown past MaxChunks.
func (s *Sorter) spill() error {
	if len(s.entries) == 0 {
		return nil
	}

	sort.SliceStable(s.entries, func(i, j int) bool {
		return BytewiseCompare(s.entries[i].key(), s.entries[j].key()) < 0
	})

	ck, err := s.writeChunk()
	if err != nil {
		return err
	}
	s.chunks = append(s.chunks, ck)
	s.entries = s.entries[:0]
	s.entryBytes = 0

	s.opts.Logger.Infof("%sspilled chunk %d (%d bytes) to %s", logging.NSSorter, len(s.chunks), ck.size, ck.name)

	if len(s.chunks) > s.opts.MaxChunks {
		return s.mergeChunks()
	}
	return nil
}

// writeChunk writes the (already sorted) buffered entries as one chunk
// table, grouping equal keys and merging multi-value groups.
func (s *Sorter) writeChunk() (chunk, error) {
	f, err := s.opts.FS.CreateTemp(s.opts.Dir, "sstable-sort-*")
	if err != nil {
		return chunk{}, err
	}

	cw := &countingWriter{f: f}
	w := NewWriter(cw, WriterOptions{
		Compression:      s.opts.ChunkCompression,
		CompressionLevel: s.opts.ChunkCompressionLevel,
		Logger:           s.opts.Logger,
	})

	var groupKey []byte
	var groupVals [][]byte
	started := false
	flushGroup := func() error {
		if !started {
			return nil
		}
		val := groupVals[0]
		if len(groupVals) > 1 {
			if s.merge == nil {
				return &MergeError[error]{Key: groupKey, Cause: errNilMergeFunc}
			}
			merged, err := s.merge(groupKey, groupVals)
			if err != nil {
				return &MergeError[error]{Key: groupKey, Cause: err}
			}
			val = merged
		}
		return w.Insert(groupKey, val)
	}

	for i := range s.entries {
		ent := &s.entries[i]
		if started && BytewiseCompare(groupKey, ent.key()) == 0 {
			groupVals = append(groupVals, ent.val())
			continue
		}
		if err := flushGroup(); err != nil {
			s.discardChunkFile(f)
			return chunk{}, err
		}
		started = true
		groupKey = ent.key()
		groupVals = append(groupVals[:0], ent.val())
	}
	if err := flushGroup(); err != nil {
		s.discardChunkFile(f)
		return chunk{}, err
	}

	if err := w.Finish(); err != nil {
		s.discardChunkFile(f)
		return chunk{}, err
	}
	return chunk{file: f, name: f.Name(), size: cw.n}, nil
}

// mergeChunks consolidates every current chunk into a single new chunk
// through a Merger carrying the same merge function, then removes the old
// chunks. Bounds the number of simultaneously open spill files.
func (s *Sorter) mergeChunks() error {
	readers, err := s.chunkReaders()
	if err != nil {
		return err
	}

	f, err := s.opts.FS.CreateTemp(s.opts.Dir, "sstable-sort-*")
	if err != nil {
		return err
	}
	cw := &countingWriter{f: f}
	w := NewWriter(cw, WriterOptions{
		Compression:      s.opts.ChunkCompression,
		CompressionLevel: s.opts.ChunkCompressionLevel,
		Logger:           s.opts.Logger,
	})

	m := NewMerger(readers, s.merge, MergerOptions{Logger: s.opts.Logger})
	if err := m.WriteInto(w); err != nil {
		s.discardChunkFile(f)
		return err
	}
	if err := w.Finish(); err != nil {
		s.discardChunkFile(f)
		return err
	}

	old := len(s.chunks)
	s.removeChunks()
	s.chunks = append(s.chunks, chunk{file: f, name: f.Name(), size: cw.n})

	s.opts.Logger.Infof("%smerged %d chunks into one (%d bytes)", logging.NSSorter, old, cw.n)
	return nil
}

// chunkReaders opens a table Reader over every current chunk.
func (s *Sorter) chunkReaders() ([]*Reader, error) {
	readers := make([]*Reader, 0, len(s.chunks))
	for _, ck := range s.chunks {
		r, err := Open(NewFileByteView(ck.file, ck.size), ReaderOptions{Logger: s.opts.Logger})
		if err != nil {
			return nil, fmt.Errorf("sstable: open spill chunk %s: %w", ck.name, err)
		}
		readers = append(readers, r)
	}
	return readers, nil
}

// IntoIter spills any buffered entries and returns an iterator over every
// distinct key in ascending order with duplicates merged. The Sorter is
// consumed; the iterator's Close removes the spill files.
func (s *Sorter) IntoIter(ctx context.Context) (*MergeIterator, error) {
	if s.consumed {
		return nil, ErrSorterConsumed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.spill(); err != nil {
		return nil, err
	}
	s.consumed = true

	readers, err := s.chunkReaders()
	if err != nil {
		s.removeChunks()
		return nil, err
	}

	it, err := NewMerger(readers, s.merge, MergerOptions{Logger: s.opts.Logger}).Iter()
	if err != nil {
		s.removeChunks()
		return nil, err
	}
	it.onClose = func() error {
		s.removeChunks()
		return nil
	}
	return it, nil
}

// WriteInto drains the sorted, merged entries into w. The Sorter is
// consumed and its spill files removed before WriteInto returns. w is not
// finished; that is the caller's call to make.
func (s *Sorter) WriteInto(ctx context.Context, w *Writer) error {
	it, err := s.IntoIter(ctx)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		if err := w.Insert(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Err()
}

// Close removes any spill files still held by an abandoned Sorter. It is
// a no-op on a Sorter already drained through IntoIter or WriteInto.
func (s *Sorter) Close() error {
	s.consumed = true
	s.removeChunks()
	return nil
}

func (s *Sorter) removeChunks() {
	for _, ck := range s.chunks {
		ck.file.Close()
		if err := s.opts.FS.Remove(ck.name); err != nil {
			s.opts.Logger.Warnf("%sremove spill chunk %s: %v", logging.NSSorter, ck.name, err)
		}
	}
	s.chunks = nil
}

func (s *Sorter) discardChunkFile(f vfs.File) {
	f.Close()
	if err := s.opts.FS.Remove(f.Name()); err != nil {
		s.opts.Logger.Warnf("%sremove spill chunk %s: %v", logging.NSSorter, f.Name(), err)
	}
}
