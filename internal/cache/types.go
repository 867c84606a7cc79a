package cache

import "context"

// CacheKind separates key spaces and tuning.
type CacheKind uint8

const (
	CacheKindUnknown      CacheKind = iota
	CacheKindRecordBlocks           // catalog record file blocks
	CacheKindBlob                   // generic blob store blocks
)

// CacheKey must be stable across processes.
type CacheKey struct {
	Kind CacheKind
	// Path identifies the source blob, e.g. "star/3/tycho2/records.adb".
	Path string
	// Generation distinguishes re-imported versions of the same path.
	Generation uint64
	// Offset is a logical block identifier (byte offset or block index).
	Offset uint64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key CacheKey) (b []byte, ok bool)
	// Set caches a block. Implementations may copy or retain; the caller
	// must treat b as immutable afterwards.
	Set(ctx context.Context, key CacheKey, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key CacheKey) bool)
	// Close releases any resources (e.g. background workers).
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}
