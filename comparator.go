package sstable

// comparator.go implements key comparison and the index "shortest
// separator" construction used by the table writer. The format hardcodes
// unsigned bytewise key order, so there is no pluggable Comparator
// interface.

import "bytes"

// BytewiseCompare returns a value < 0 if a < b, 0 if a == b, > 0 if a > b,
// comparing unsigned byte values lexicographically.
func BytewiseCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// FindShortestSeparator returns a byte string s with start <= s < limit,
// given start < limit, that is never longer than start. At the first byte
// where the two differ it either increments that byte and truncates after
// it, or increments the two bytes there as a big-endian u16 (keeping the
// length); when neither keeps s below limit, start itself is returned
// without allocating. The result is not always the shortest such string.
func FindShortestSeparator(start, limit []byte) []byte {
	minLen := len(start)
	if len(limit) < minLen {
		minLen = len(limit)
	}

	d := 0
	for d < minLen && start[d] == limit[d] {
		d++
	}

	if d >= minLen {
		// start is a prefix of limit (or they're equal prefixes of each
		// other up to minLen); nothing shorter exists that still
		// satisfies start <= s < limit, so leave start unchanged.
		return start
	}

	b := start[d]
	if b < 0xFF && b+1 < limit[d] {
		out := make([]byte, d+1)
		copy(out, start[:d])
		out[d] = b + 1
		return out
	}

	if len(start)-d >= 2 && len(limit)-d >= 2 {
		us := uint16(start[d])<<8 | uint16(start[d+1])
		ul := uint16(limit[d])<<8 | uint16(limit[d+1])
		ub := us + 1
		if us <= ub && ub <= ul {
			out := append([]byte(nil), start...)
			out[d] = byte(ub >> 8)
			out[d+1] = byte(ub)
			if BytewiseCompare(out, limit) < 0 {
				return out
			}
		}
	}

	return start
}
