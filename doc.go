/*
Package sstable provides a pure-Go immutable sorted-string table: a
single-file, read-only, sorted key/value store with a bulk writer, an
external-memory sorter that normalizes out-of-order input, and an N-way
merger that combines multiple tables into one logical ordered sequence.

Keys and values are opaque byte strings. Keys within a table are strictly
ascending by unsigned lexicographic byte order; a table, once written, is
never mutated.

# Usage

A Writer accumulates ascending (key, value) pairs and finalizes them into a
table file. A Reader opens a finished table for point lookups (Get) and
forward iteration (Iter, IterFrom, IterPrefix, IterRange). A Merger combines
several Readers into one ordered iterator, reconciling duplicate keys with a
caller-supplied merge function. A Sorter accepts entries in any order,
spills sorted runs to temporary chunks once its in-memory budget is
exceeded, and drains a fully sorted, duplicate-reconciled iterator.

# Concurrency

A Reader is safe for concurrent use by multiple goroutines: Get and new
iterator creation may be called concurrently. An individual Iterator is not
safe for concurrent use; each goroutine should use its own. Writer, Sorter,
and Merger values are single-owner and must not be used concurrently.

# Format

The on-disk format is documented alongside the types that read and write
it: see Trailer for the file footer, and the internal/block package for the
block encoding.
*/
package sstable
