package util

import (
	"hash/crc32"
)

// Checksum utilities for record integrity validation
// Uses CRC32 (IEEE polynomial) for fast checksum computation

var (
	// crc32Table is precomputed for better performance
	crc32Table = crc32.MakeTable(crc32.IEEE)
)

// ComputeChecksum computes a CRC32 checksum for the given data
func ComputeChecksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32Table)
}

// ValidateChecksum validates data against an expected checksum
func ValidateChecksum(data []byte, expected uint32) bool {
	return ComputeChecksum(data) == expected
}

// AppendChecksum appends a 4-byte checksum to the data
// Format: [data][checksum (4 bytes, little-endian)]
func AppendChecksum(data []byte) []byte {
	checksum := ComputeChecksum(data)
	result := make([]byte, len(data)+4)
	copy(result, data)
	result[len(data)] = byte(checksum)
	result[len(data)+1] = byte(checksum >> 8)
	result[len(data)+2] = byte(checksum >> 16)
	result[len(data)+3] = byte(checksum >> 24)
	return result
}

// ValidateAndStripChecksum validates the trailing checksum and returns the
// data without it. Returns (data, valid).
func ValidateAndStripChecksum(dataWithChecksum []byte) ([]byte, bool) {
	if len(dataWithChecksum) < 4 {
		return nil, false
	}

	dataLen := len(dataWithChecksum) - 4
	data := dataWithChecksum[:dataLen]
	expected := uint32(dataWithChecksum[dataLen]) |
		uint32(dataWithChecksum[dataLen+1])<<8 |
		uint32(dataWithChecksum[dataLen+2])<<16 |
		uint32(dataWithChecksum[dataLen+3])<<24

	return data, ValidateChecksum(data, expected)
}
