// Package mmap provides read-only memory-mapped file access.
//
// The local blob store maps shard files instead of reading them through
// kernel buffers, then decodes straight from the mapping.
//
//	m, err := mmap.Open("shard_1.bin")
//	if err != nil { ... }
//	defer m.Close()
//	data := m.Bytes()
//
// Unix uses mmap(2) with a sequential madvise(2) hint; Windows uses
// CreateFileMapping/MapViewOfFile.
package mmap
