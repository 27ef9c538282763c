package sstable

// options.go defines plain struct-literal configuration for Writer,
// Reader, Sorter, and Merger, each with a Default...Options constructor.

import (
	"github.com/tidesdb/sstable/internal/compression"
	"github.com/tidesdb/sstable/internal/logging"
	"github.com/tidesdb/sstable/internal/vfs"
)

const (
	// MinBlockSize is the smallest target data block size a Writer accepts.
	MinBlockSize = 1024
	// DefaultBlockSize is the target data block size used when
	// WriterOptions.BlockSize is left at zero.
	DefaultBlockSize = 8192
	// DefaultRestartInterval is the number of entries between block
	// restart points used when WriterOptions.RestartInterval is zero.
	DefaultRestartInterval = 16
	// DefaultMaxMemory is the in-memory buffer budget a Sorter uses
	// before spilling, when SorterOptions.MaxMemory is zero.
	DefaultMaxMemory = 64 << 20 // 64 MiB
	// MinMaxMemory is the smallest in-memory buffer budget accepted; a
	// smaller configured value is raised to this floor.
	MinMaxMemory = 1 << 20 // 1 MiB
	// DefaultMaxChunks is the spill-chunk count above which a Sorter
	// consolidates chunks via a chunk merge, when
	// SorterOptions.MaxChunks is zero.
	DefaultMaxChunks = 16
	// DefaultBlockCacheEntries is the number of decoded data blocks a
	// Reader retains, when ReaderOptions.BlockCacheEntries is zero. A
	// negative value disables the cache explicitly (distinct from zero,
	// which selects this default).
	DefaultBlockCacheEntries = 64
)

// WriterOptions configures a Writer. The zero value is not directly usable;
// construct with DefaultWriterOptions and override fields as needed.
type WriterOptions struct {
	// Compression is the algorithm applied to data blocks. The index
	// block is always stored uncompressed regardless of this setting.
	Compression compression.Algorithm
	// CompressionLevel is passed to the compression backend;
	// compression.DefaultLevel selects the backend's own default.
	CompressionLevel int32
	// BlockSize is the target size, in bytes, of each data block before
	// it is flushed. Raised to MinBlockSize if smaller.
	BlockSize int
	// RestartInterval is the number of entries between block restart
	// points.
	RestartInterval int
	// Logger receives diagnostic messages about flushes and out-of-order
	// rejections. A nil Logger is replaced by the discard logger.
	Logger logging.Logger
}

// DefaultWriterOptions returns WriterOptions with the package defaults:
// no compression, the default block size and restart interval, and a
// discard logger.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Compression:      compression.None,
		CompressionLevel: compression.DefaultLevel,
		BlockSize:        DefaultBlockSize,
		RestartInterval:  DefaultRestartInterval,
		Logger:           logging.Discard,
	}
}

func (o WriterOptions) normalized() WriterOptions {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	} else if o.BlockSize < MinBlockSize {
		o.BlockSize = MinBlockSize
	}
	if o.RestartInterval <= 0 {
		o.RestartInterval = DefaultRestartInterval
	}
	o.Logger = logging.OrDefault(o.Logger)
	return o
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// VerifyChecksums enables CRC32C verification of every decoded
	// block. Defaults to true (see DefaultReaderOptions); set false only
	// for callers who have already verified the file out of band.
	VerifyChecksums bool
	// BlockCacheEntries bounds the number of decoded data blocks a
	// Reader retains across Get/iterator calls, evicted LRU. Zero
	// selects DefaultBlockCacheEntries; a negative value disables the
	// cache.
	BlockCacheEntries int
	// Logger receives diagnostic messages, notably checksum mismatches.
	Logger logging.Logger
}

// DefaultReaderOptions returns ReaderOptions with checksum verification
// enabled and the default block cache size.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{
		VerifyChecksums:   true,
		BlockCacheEntries: DefaultBlockCacheEntries,
		Logger:            logging.Discard,
	}
}

func (o ReaderOptions) normalized() ReaderOptions {
	if o.BlockCacheEntries == 0 {
		o.BlockCacheEntries = DefaultBlockCacheEntries
	}
	o.Logger = logging.OrDefault(o.Logger)
	return o
}

// MergerOptions configures a Merger.
type MergerOptions struct {
	// Logger receives diagnostic messages about the merge.
	Logger logging.Logger
}

// DefaultMergerOptions returns MergerOptions with a discard logger.
func DefaultMergerOptions() MergerOptions {
	return MergerOptions{Logger: logging.Discard}
}

func (o MergerOptions) normalized() MergerOptions {
	o.Logger = logging.OrDefault(o.Logger)
	return o
}

// SorterOptions configures a Sorter.
type SorterOptions struct {
	// MaxMemory bounds the in-memory buffer before a spill is forced.
	// Raised to MinMaxMemory if smaller.
	MaxMemory int
	// MaxChunks is the spill-chunk count above which the Sorter merges
	// all current chunks into one before accumulating further chunks.
	MaxChunks int
	// ChunkCompression is the algorithm used for spill chunk tables.
	ChunkCompression compression.Algorithm
	// ChunkCompressionLevel is passed to the chunk compression backend.
	ChunkCompressionLevel int32
	// FS creates and removes the ephemeral spill files. Defaults to
	// vfs.Default() (os.CreateTemp-backed).
	FS vfs.FS
	// Dir is the directory spill files are created in; empty selects
	// the OS default temp directory.
	Dir string
	// Logger receives diagnostic messages about spills and chunk merges.
	Logger logging.Logger
}

// DefaultSorterOptions returns SorterOptions with a 64 MiB memory budget,
// a 16-chunk consolidation threshold, and Snappy chunk compression (cheap
// enough that spilling compressed is nearly always a win).
func DefaultSorterOptions() SorterOptions {
	return SorterOptions{
		MaxMemory:             DefaultMaxMemory,
		MaxChunks:             DefaultMaxChunks,
		ChunkCompression:      compression.Snappy,
		ChunkCompressionLevel: compression.DefaultLevel,
		FS:                    vfs.Default(),
		Logger:                logging.Discard,
	}
}

func (o SorterOptions) normalized() SorterOptions {
	if o.MaxMemory == 0 {
		o.MaxMemory = DefaultMaxMemory
	} else if o.MaxMemory < MinMaxMemory {
		o.MaxMemory = MinMaxMemory
	}
	if o.MaxChunks <= 0 {
		o.MaxChunks = DefaultMaxChunks
	}
	if o.FS == nil {
		o.FS = vfs.Default()
	}
	o.Logger = logging.OrDefault(o.Logger)
	return o
}
