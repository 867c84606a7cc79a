// Package blobstore provides storage abstraction for immutable catalog blobs.
//
// Store is the interface for reading and writing blobs (record files,
// spatial index sidecars, manifests). Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap reads and atomic writes
//   - MemoryStore: in-memory store for tests
//   - CachingStore: block-level read-through cache over another store
//   - minio.Store / s3.Store: object storage with range reads
//
// # Custom Implementations
//
// Implement the Store interface to support custom backends:
//
//	type Store interface {
//	    Open(ctx, name) (Blob, error)           // open for reading
//	    Create(ctx, name) (WritableBlob, error) // create for writing
//	    Put(ctx, name, data) error              // atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Blobs opened from stores with cheap partial reads (object storage)
// should implement ReadRange efficiently; local blobs satisfy it over the
// mapped bytes.
package blobstore
