// Package vfs provides the minimal filesystem abstraction the sorter needs
// to materialize spill chunks: a factory for ephemeral,
// writable-then-readable byte streams, pluggable so callers can substitute
// an in-memory filesystem in tests.
// The interface is deliberately narrow: the sorter only ever needs to
// create a temp file, write it once, read it back, and remove it.
package vfs

import (
	"io"
	"os"
)

// File is an ephemeral spill file: written sequentially while the sorter
// accumulates a chunk, then read back (via ReaderAt, for the table reader
// that replays it) once the chunk is sealed.
type File interface {
	io.Writer
	io.ReaderAt
	io.Closer

	// Name returns the path FS.Remove should be called with to delete
	// this file once the sorter no longer needs it.
	Name() string
}

// FS creates and removes ephemeral spill files.
type FS interface {
	// CreateTemp creates a new temporary file in dir (the OS default
	// temp directory if dir is empty) whose name is derived from
	// pattern, following os.CreateTemp's own pattern semantics.
	CreateTemp(dir, pattern string) (File, error)

	// Remove deletes the named file. Spill files are not removed
	// automatically; the sorter removes them once a chunk has been
	// fully consumed by a merge or the final drain.
	Remove(name string) error
}

// osFS implements FS using the host operating system's filesystem.
type osFS struct{}

// Default returns the OS-backed FS used when a Sorter is not configured
// with one explicitly.
func Default() FS { return osFS{} }

func (osFS) CreateTemp(dir, pattern string) (File, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (osFS) Remove(name string) error {
	return os.Remove(name)
}
