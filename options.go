package astrodb

import (
	"log/slog"

	"github.com/hupe1980/astrodb/blobstore"
	"github.com/hupe1980/astrodb/codec"
	"github.com/hupe1980/astrodb/resource"
)

type options struct {
	codec            codec.Codec
	logger           *Logger
	metricsCollector MetricsCollector
	remote           blobstore.Store
	resources        *resource.Config
	blockCacheBytes  int64
	diskCacheDir     string
	diskCacheBytes   int64
	compression      bool
}

// Option configures OpenLibrary and NewDatabase behavior.
//
// Library-scoped options (WithRemoteStore, WithResourceConfig,
// WithBlockCache) have no effect when passed to NewDatabase; a
// Database inherits them from its Library.
type Option func(*options)

// WithCodec configures the codec used for schema sidecars.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithRemoteStore configures a remote catalog archive. Catalog files
// missing from the local root are materialized from it on first open,
// and Library.Publish copies local files back to it.
//
// The store must already be rooted at the library's remote path (the
// minio and s3 stores take a root prefix at construction).
func WithRemoteStore(s blobstore.Store) Option {
	return func(o *options) {
		o.remote = s
	}
}

// WithBlockCache places an in-memory block cache of the given byte
// capacity in front of the remote store, so repeated remote reads do
// not refetch. Zero disables the cache.
func WithBlockCache(capacityBytes int64) Option {
	return func(o *options) {
		o.blockCacheBytes = capacityBytes
	}
}

// WithDiskCache adds a persistent on-disk cache tier of the given byte
// capacity under dir, behind the in-memory block cache. Blocks evicted
// from memory are still served from disk instead of refetched from the
// remote store, and the tier survives process restarts.
//
// Requires WithRemoteStore and WithBlockCache; zero maxBytes or an
// empty dir disables the tier.
func WithDiskCache(dir string, maxBytes int64) Option {
	return func(o *options) {
		o.diskCacheDir = dir
		o.diskCacheBytes = maxBytes
	}
}

// WithResourceConfig bounds imports and catalog IO: concurrent import
// runs acquire background worker slots, and catalog source bytes pass
// through the configured rate limit.
func WithResourceConfig(cfg resource.Config) Option {
	return func(o *options) {
		o.resources = &cfg
	}
}

// WithCompression makes imports write zstd-compressed record files by
// default. Individual imports may still override it.
func WithCompression(enabled bool) Option {
	return func(o *options) {
		o.compression = enabled
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &astrodb.BasicMetricsCollector{}
//	lib, _ := astrodb.OpenLibrary(host, remote, root, astrodb.WithMetricsCollector(metrics))
//	// ... import and query ...
//	stats := metrics.GetStats()
//	fmt.Printf("Imports: %d, Avg: %dns\n", stats.ImportCount, stats.ImportAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := astrodb.NewJSONLogger(slog.LevelInfo)
//	lib, _ := astrodb.OpenLibrary(host, remote, root, astrodb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
