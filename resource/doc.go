// Package resource implements global limits for memory, concurrency and IO.
//
// A single Controller is shared by the caches, the importer and the mirror
// so that background work cannot starve foreground queries:
//
//   - Memory: reserve and release bytes against a hard limit
//   - Concurrency: bound the number of background jobs (imports, mirrors)
//   - IO: token-bucket rate limit for bulk reads and writes
//
// # Memory
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB
//	})
//
//	if !rc.TryAcquireMemory(blockSize) {
//	    // over budget, skip caching
//	}
//	defer rc.ReleaseMemory(blockSize)
//
// # Background jobs
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
// # IO
//
//	w := resource.NewRateLimitedWriter(ctx, f, rc)
//	r := resource.NewRateLimitedReader(ctx, resp.Body, rc)
//
// All methods are safe for concurrent use and handle a nil *Controller
// gracefully, so resource limiting stays optional without nil checks at
// every call site.
package resource
