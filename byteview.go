package sstable

// byteview.go defines the byte-view abstraction a Reader is opened over: a
// contiguous read-only view of an entire table file. Two concrete views
// are provided: a plain in-memory slice (for data the caller has already
// loaded or mmap'd) and an io.ReaderAt-backed view (for reading a table
// without materializing it all in memory).

import (
	"fmt"
	"io"
)

// ByteView is a contiguous, read-only view over an entire table file.
type ByteView interface {
	// Size returns the total number of bytes in the view.
	Size() int64

	// ReadAt reads exactly len(p) bytes starting at off into p, or
	// returns an error (including io.EOF/io.ErrUnexpectedEOF if the
	// view is shorter than off+len(p)).
	ReadAt(p []byte, off int64) (int, error)
}

// zeroCopySlicer is implemented by a ByteView whose backing bytes are
// already resident in memory and never move, allowing the reader to alias
// directly into them instead of copying (the zero-copy path for
// uncompressed blocks).
type zeroCopySlicer interface {
	// slice returns data[off : off+n] without copying. The caller must
	// not retain the result past the lifetime of the ByteView.
	slice(off, n int64) ([]byte, error)
}

// sliceView is a ByteView backed by an in-memory []byte.
type sliceView struct {
	data []byte
}

// NewByteView returns a ByteView over data. data is retained, not copied;
// the reader may alias directly into it for uncompressed blocks.
func NewByteView(data []byte) ByteView {
	return &sliceView{data: data}
}

func (v *sliceView) Size() int64 { return int64(len(v.data)) }

func (v *sliceView) ReadAt(p []byte, off int64) (int, error) {
	b, err := v.slice(off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	n := copy(p, b)
	return n, nil
}

func (v *sliceView) slice(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > int64(len(v.data)) {
		return nil, fmt.Errorf("sstable: byte view range [%d,%d) out of bounds (size %d): %w", off, off+n, len(v.data), io.ErrUnexpectedEOF)
	}
	return v.data[off : off+n], nil
}

// fileView is a ByteView backed by an io.ReaderAt of known size, typically
// an *os.File. Unlike sliceView it cannot offer zero-copy slices: every
// read copies into a freshly allocated buffer.
type fileView struct {
	r    io.ReaderAt
	size int64
}

// NewFileByteView returns a ByteView over r, which must expose exactly
// size bytes starting at offset 0. Use this to read a table without
// loading it entirely into memory first.
func NewFileByteView(r io.ReaderAt, size int64) ByteView {
	return &fileView{r: r, size: size}
}

func (v *fileView) Size() int64 { return v.size }

func (v *fileView) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > v.size {
		return 0, fmt.Errorf("sstable: byte view range [%d,%d) out of bounds (size %d): %w", off, off+int64(len(p)), v.size, io.ErrUnexpectedEOF)
	}
	return io.ReadFull(io.NewSectionReader(v.r, off, int64(len(p))), p)
}
