// Package blobstore provides the storage abstraction behind shard persistence.
//
// A BlobStore reads and writes whole named blobs: the store's meta record and
// one file per shard. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with atomic writes and mmap reads
//   - MemoryStore: in-process map, the default spill area for evicted shards
//   - minio.Store: MinIO and other S3-compatible services
//   - s3.Store: Amazon S3 with multipart uploads
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Get(ctx, name) ([]byte, error)
//	    Put(ctx, name, data) error    // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Missing blobs must produce an error satisfying errors.Is(err, ErrNotFound).
package blobstore
