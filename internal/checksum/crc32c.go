// Package checksum computes the CRC32C (Castagnoli) checksum stored,
// unmasked, in every block wrapper (see the root package's format doc).
package checksum

import "hash/crc32"

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Value computes the raw, unmasked CRC32C checksum of data.
func Value(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}
