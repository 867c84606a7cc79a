package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/semaphore"
)

// blockHeaderSize is the per-file header: uncompressed size (4B LE) and
// compressed size (4B LE). A compressed size of 0 marks a raw block.
const blockHeaderSize = 8

var errBlockCorrupted = errors.New("cache: block file corrupted")

// DiskCacheConfig holds configuration for the disk cache.
type DiskCacheConfig struct {
	// RootDir is the directory where cache files are stored.
	RootDir string
	// MaxSizeBytes is the maximum on-disk size of the cache in bytes.
	MaxSizeBytes int64
	// MaxConcurrentWrites limits background disk writes.
	// Defaults to 16 if <= 0.
	MaxConcurrentWrites int64
}

// DiskBlockCache implements BlockCache backed by the local filesystem.
// Blocks are LZ4-compressed on disk; an in-memory LRU index tracks the
// files and is rebuilt by scanning the directory on startup.
type DiskBlockCache struct {
	mu          sync.Mutex
	rootDir     string
	maxSize     int64
	currentSize int64

	// writeSem bounds concurrent background writes.
	writeSem *semaphore.Weighted
	wg       sync.WaitGroup

	items   map[CacheKey]*lruEntry
	lruHead *lruEntry
	lruTail *lruEntry

	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry struct {
	key        CacheKey
	size       int64 // on-disk bytes
	filePath   string
	next, prev *lruEntry
}

// NewDiskBlockCache creates a new disk-backed block cache and scans the
// root directory to rebuild the index.
func NewDiskBlockCache(config DiskCacheConfig) (*DiskBlockCache, error) {
	if err := os.MkdirAll(config.RootDir, 0o755); err != nil {
		return nil, err
	}

	maxWrites := config.MaxConcurrentWrites
	if maxWrites <= 0 {
		maxWrites = 16
	}

	c := &DiskBlockCache{
		rootDir:  config.RootDir,
		maxSize:  config.MaxSizeBytes,
		items:    make(map[CacheKey]*lruEntry),
		writeSem: semaphore.NewWeighted(maxWrites),
	}

	c.scanExistingFiles()

	return c, nil
}

func (c *DiskBlockCache) scanExistingFiles() {
	_ = filepath.Walk(c.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil //nolint:nilerr // keep scanning past unreadable entries
		}

		key, ok := c.parsePathToKey(path)
		if !ok {
			return nil
		}

		c.addToLRU(key, path, info.Size())
		return nil
	})
}

// encodeKeyToRelPath creates a relative path from a key.
// Format: <Path>/<Kind>-<Generation>-<Offset>.blk
func (c *DiskBlockCache) encodeKeyToRelPath(key CacheKey) string {
	fileName := fmt.Sprintf("%d-%d-%d.blk", key.Kind, key.Generation, key.Offset)
	if key.Path != "" {
		return filepath.Join(key.Path, fileName)
	}
	return filepath.Join("_misc", fileName)
}

func (c *DiskBlockCache) parsePathToKey(absPath string) (CacheKey, bool) {
	relPath, err := filepath.Rel(c.rootDir, absPath)
	if err != nil {
		return CacheKey{}, false
	}

	dir, file := filepath.Split(relPath)

	var (
		k    CacheKey
		kind int
		gen  uint64
		off  uint64
	)

	n, err := fmt.Sscanf(file, "%d-%d-%d.blk", &kind, &gen, &off)
	if err != nil || n != 3 {
		return CacheKey{}, false
	}

	k.Kind = CacheKind(kind)
	k.Generation = gen
	k.Offset = off

	if dir != "" {
		dir = strings.TrimSuffix(dir, string(filepath.Separator))
		if dir != "_misc" {
			k.Path = filepath.ToSlash(dir)
		}
	}

	return k, true
}

func (c *DiskBlockCache) Get(ctx context.Context, key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	ent, ok := c.items[key]
	if ok {
		c.moveToFront(ent)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	raw, err := os.ReadFile(ent.filePath)
	if err == nil {
		var data []byte
		data, err = decodeBlockFile(raw)
		if err == nil {
			c.hits.Add(1)
			return data, true
		}
	}

	// Missing or corrupted file: drop it from the index.
	c.mu.Lock()
	if cur, ok := c.items[key]; ok && cur == ent {
		c.removeEntry(ent)
	}
	c.mu.Unlock()
	_ = os.Remove(ent.filePath)

	c.misses.Add(1)
	return nil, false
}

// Set caches a block asynchronously. The index is only updated once the
// write completes, so concurrent Gets during warm-up miss and hit the
// backend again, which is acceptable.
func (c *DiskBlockCache) Set(ctx context.Context, key CacheKey, b []byte) {
	c.mu.Lock()
	if ent, ok := c.items[key]; ok {
		// Blocks are immutable, no rewrite needed.
		c.moveToFront(ent)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if int64(len(b))+blockHeaderSize > c.maxSize {
		return
	}

	// Shed load instead of queueing: this is a cache, not critical.
	if !c.writeSem.TryAcquire(1) {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.writeSem.Release(1)
		c.writeBlock(key, b)
	}()
}

func (c *DiskBlockCache) writeBlock(key CacheKey, b []byte) {
	absPath := filepath.Join(c.rootDir, c.encodeKeyToRelPath(key))

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return
	}

	encoded := encodeBlockFile(b)

	tmpFile, err := os.CreateTemp(filepath.Dir(absPath), "tmp-blk-*")
	if err != nil {
		return
	}
	tmpName := tmpFile.Name()

	defer func() {
		if _, err := os.Stat(tmpName); err == nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(encoded); err != nil {
		_ = tmpFile.Close()
		return
	}
	if err := tmpFile.Close(); err != nil {
		return
	}

	if err := os.Rename(tmpName, absPath); err != nil {
		return
	}

	size := int64(len(encoded))

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; ok {
		// A concurrent write won the race; ours replaced the same file.
		return
	}

	for c.currentSize+size > c.maxSize {
		if c.lruTail == nil {
			break
		}
		c.evictOne()
	}

	c.addToLRU(key, absPath, size)
}

func (c *DiskBlockCache) Invalidate(predicate func(key CacheKey) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*lruEntry
	for k, ent := range c.items {
		if predicate(k) {
			toRemove = append(toRemove, ent)
		}
	}

	for _, ent := range toRemove {
		_ = os.Remove(ent.filePath)
		c.removeEntry(ent)
	}
}

// Close waits for all background writes to complete.
func (c *DiskBlockCache) Close() error {
	c.wg.Wait()
	return nil
}

func (c *DiskBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the current on-disk size of the cache in bytes.
func (c *DiskBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// encodeBlockFile LZ4-compresses b into the block file format, storing the
// block raw when it is incompressible.
func encodeBlockFile(b []byte) []byte {
	bound := lz4.CompressBlockBound(len(b))
	compressed := make([]byte, bound)

	n, err := lz4.CompressBlock(b, compressed, nil)
	if err != nil || n == 0 || n >= len(b) {
		out := make([]byte, blockHeaderSize+len(b))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(b)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[blockHeaderSize:], b)
		return out
	}

	out := make([]byte, blockHeaderSize+n)
	binary.LittleEndian.PutUint32(out[0:], uint32(len(b)))
	binary.LittleEndian.PutUint32(out[4:], uint32(n))
	copy(out[blockHeaderSize:], compressed[:n])
	return out
}

func decodeBlockFile(raw []byte) ([]byte, error) {
	if len(raw) < blockHeaderSize {
		return nil, errBlockCorrupted
	}

	uncompressedSize := binary.LittleEndian.Uint32(raw[0:])
	compressedSize := binary.LittleEndian.Uint32(raw[4:])

	if compressedSize == 0 {
		if uint32(len(raw)-blockHeaderSize) < uncompressedSize {
			return nil, errBlockCorrupted
		}
		return raw[blockHeaderSize : blockHeaderSize+uncompressedSize], nil
	}

	if uint32(len(raw)-blockHeaderSize) < compressedSize {
		return nil, errBlockCorrupted
	}

	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(raw[blockHeaderSize:blockHeaderSize+compressedSize], dst)
	if err != nil || uint32(n) != uncompressedSize {
		return nil, errBlockCorrupted
	}
	return dst, nil
}

// Internal LRU helpers (must hold lock)

func (c *DiskBlockCache) addToLRU(key CacheKey, path string, size int64) {
	ent := &lruEntry{
		key:      key,
		filePath: path,
		size:     size,
	}
	c.items[key] = ent
	c.currentSize += size

	if c.lruHead == nil {
		c.lruHead = ent
		c.lruTail = ent
	} else {
		ent.next = c.lruHead
		c.lruHead.prev = ent
		c.lruHead = ent
	}
}

func (c *DiskBlockCache) moveToFront(ent *lruEntry) {
	if c.lruHead == ent {
		return
	}

	if ent.prev != nil {
		ent.prev.next = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	}
	if c.lruTail == ent {
		c.lruTail = ent.prev
	}

	ent.next = c.lruHead
	ent.prev = nil
	if c.lruHead != nil {
		c.lruHead.prev = ent
	}
	c.lruHead = ent
	if c.lruTail == nil {
		c.lruTail = ent
	}
}

func (c *DiskBlockCache) removeEntry(ent *lruEntry) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		c.lruHead = ent.next
	}

	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		c.lruTail = ent.prev
	}

	delete(c.items, ent.key)
	c.currentSize -= ent.size
}

func (c *DiskBlockCache) evictOne() {
	if c.lruTail == nil {
		return
	}
	_ = os.Remove(c.lruTail.filePath)
	c.removeEntry(c.lruTail)
}
