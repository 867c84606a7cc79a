// Package cache provides LRU caching for immutable catalog blocks.
//
// # Block cache (RAM)
//
// ShardedLRUBlockCache stores recently accessed blocks of catalog record
// files. It uses 64-way sharding to keep lock contention low when many
// queries fault in blocks concurrently. Memory is accounted against the
// shared resource.Controller when one is configured.
//
// # Disk cache (L2)
//
// For remote blob stores, DiskBlockCache provides a persistent second tier:
// blocks are LZ4-compressed and written asynchronously so the query path
// never blocks on the cache fill, and the index is rebuilt from the cache
// directory on startup.
package cache
