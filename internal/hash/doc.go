// Package hash provides the checksums used to detect corrupted shard files.
//
// All checksums use CRC32-Castagnoli (CRC32C), which Go's crc32 package
// accelerates in hardware on x86 (SSE4.2) and ARM (CRC extension).
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
