package astrodb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hupe1980/astrodb/blobstore"
	"github.com/hupe1980/astrodb/codec"
	"github.com/hupe1980/astrodb/internal/cache"
	"github.com/hupe1980/astrodb/internal/fs"
	"github.com/hupe1980/astrodb/manifest"
	"github.com/hupe1980/astrodb/resource"
)

// cacheBlockSize is the block granularity of the remote read-through
// cache. 256 KiB keeps request counts low on object stores while
// staying well under their minimum billable read sizes.
const cacheBlockSize = 256 << 10

// CatalogID identifies a catalog table: a coarse object class ("star",
// "deepsky", "comet"), a catalog identifier within the class and a
// table name within the catalog. All three are short path components.
type CatalogID struct {
	Class string
	ID    string
	Name  string
}

// Dir returns the catalog directory relative to the library root.
func (c CatalogID) Dir() string { return c.Class + "/" + c.ID }

// String returns the Class/ID/Name form, which keys manifest entries.
func (c CatalogID) String() string { return c.Class + "/" + c.ID + "/" + c.Name }

// recordFile and schemaFile name a table's persisted files relative to
// the library root.
func (c CatalogID) recordFile() string { return c.Dir() + "/" + c.Name + ".adb" }
func (c CatalogID) schemaFile() string { return c.Dir() + "/" + c.Name + ".schema" }

func (c CatalogID) validate() error {
	for _, part := range []string{c.Class, c.ID, c.Name} {
		if part == "" {
			return &ErrConstraint{Reason: "catalog identity has an empty component"}
		}
		if strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return &ErrConstraint{Reason: fmt.Sprintf("catalog identity component %q is not a plain path component", part)}
		}
	}
	return nil
}

// Library is the root handle for a catalog collection: a local catalog
// root holding record files, schema sidecars and the manifest, plus an
// optional remote archive that local misses are materialized from.
//
// A Library outlives the Databases opened over it; closing a Library
// while Databases are still live is a caller error.
type Library struct {
	host       string
	remotePath string
	localRoot  string

	local     *blobstore.LocalStore
	remote    blobstore.Store
	blocks    cache.BlockCache
	manifests *manifest.Store

	codec       codec.Codec
	logger      *Logger
	metrics     MetricsCollector
	resources   *resource.Controller
	compression bool

	mu     sync.Mutex
	closed bool
}

// OpenLibrary opens a catalog library rooted at localRoot, creating
// the directory if needed. host and remotePath describe the upstream
// archive the library mirrors from; both may be empty for purely
// local use, and a store for the archive is wired in separately with
// WithRemoteStore.
func OpenLibrary(host, remotePath, localRoot string, optFns ...Option) (*Library, error) {
	o := applyOptions(optFns)

	if localRoot == "" {
		return nil, &ErrOpenFailure{Path: localRoot, cause: errors.New("empty local root")}
	}
	if err := os.MkdirAll(localRoot, 0o755); err != nil {
		return nil, &ErrOpenFailure{Path: localRoot, cause: err}
	}

	var resources *resource.Controller
	if o.resources != nil {
		resources = resource.NewController(*o.resources)
	}

	remote := o.remote

	var blocks cache.BlockCache
	if remote != nil && o.blockCacheBytes > 0 {
		blocks = cache.NewShardedLRUBlockCache(o.blockCacheBytes, resources)

		if o.diskCacheDir != "" && o.diskCacheBytes > 0 {
			disk, err := cache.NewDiskBlockCache(cache.DiskCacheConfig{
				RootDir:      o.diskCacheDir,
				MaxSizeBytes: o.diskCacheBytes,
			})
			if err != nil {
				return nil, &ErrOpenFailure{Path: o.diskCacheDir, cause: err}
			}
			blocks = cache.NewTieredBlockCache(blocks, disk)
		}

		remote = blobstore.NewCachingStore(remote, blocks, cacheBlockSize)
	}

	logger := o.logger
	if host != "" {
		logger = logger.WithHost(host)
	}

	lib := &Library{
		host:        host,
		remotePath:  remotePath,
		localRoot:   localRoot,
		local:       blobstore.NewLocalStore(localRoot),
		remote:      remote,
		blocks:      blocks,
		manifests:   manifest.NewStore(fs.Default, localRoot),
		codec:       o.codec,
		logger:      logger,
		metrics:     o.metricsCollector,
		resources:   resources,
		compression: o.compression,
	}

	return lib, nil
}

// Host returns the archive host the library was opened with.
func (l *Library) Host() string { return l.host }

// RemotePath returns the archive base path the library was opened with.
func (l *Library) RemotePath() string { return l.remotePath }

// Root returns the local catalog root directory.
func (l *Library) Root() string { return l.localRoot }

// Manifest returns a snapshot of the library's table manifest.
func (l *Library) Manifest() (*manifest.Manifest, error) {
	if err := l.ensureOpen(); err != nil {
		return nil, err
	}
	return l.manifests.Load()
}

// OpenSource opens a catalog file by its path relative to the library
// root. A local miss is materialized from the remote archive first, so
// a second open of the same name hits local disk.
func (l *Library) OpenSource(ctx context.Context, name string) (blobstore.Blob, error) {
	if err := l.ensureOpen(); err != nil {
		return nil, err
	}

	b, err := l.local.Open(ctx, name)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, blobstore.ErrNotFound) || l.remote == nil {
		return nil, &ErrOpenFailure{Path: name, cause: translateError(err)}
	}

	stats, merr := blobstore.Mirror(ctx, l.remote, l.local, name)
	l.logger.LogMirror(ctx, name, stats.Copied, stats.Skipped, stats.Bytes, merr)
	if merr != nil {
		return nil, &ErrOpenFailure{Path: name, cause: merr}
	}

	b, err = l.local.Open(ctx, name)
	if err != nil {
		return nil, &ErrOpenFailure{Path: name, cause: translateError(err)}
	}
	return b, nil
}

// SourceReader opens a catalog file for sequential reading, applying
// the library's IO rate limit when one is configured. This is the
// usual way to feed a row source:
//
//	r, err := lib.SourceReader(ctx, "star/3/tycho2/tyc2.dat.gz")
//	src, err := rowsource.NewFixedWidth(r, cols)
func (l *Library) SourceReader(ctx context.Context, name string) (io.ReadCloser, error) {
	b, err := l.OpenSource(ctx, name)
	if err != nil {
		return nil, err
	}

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		b.Close()
		return nil, &ErrOpenFailure{Path: name, cause: err}
	}

	var r io.Reader = rc
	if l.resources != nil {
		r = resource.NewRateLimitedReader(ctx, rc, l.resources)
	}

	return &sourceReader{r: r, rc: rc, blob: b}, nil
}

type sourceReader struct {
	r    io.Reader
	rc   io.ReadCloser
	blob blobstore.Blob
}

func (s *sourceReader) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *sourceReader) Close() error {
	err := s.rc.Close()
	if cerr := s.blob.Close(); err == nil {
		err = cerr
	}
	return err
}

// Mirror materializes every remote catalog file under prefix into the
// local root. Files already present locally with the same size are
// skipped, so re-running a mirror is cheap.
func (l *Library) Mirror(ctx context.Context, prefix string) (blobstore.MirrorStats, error) {
	return l.transfer(ctx, prefix, false)
}

// Publish copies every local catalog file under prefix to the remote
// archive. Publishing the empty prefix pushes the whole library,
// manifest included, so another host can Mirror and reopen it.
func (l *Library) Publish(ctx context.Context, prefix string) (blobstore.MirrorStats, error) {
	return l.transfer(ctx, prefix, true)
}

func (l *Library) transfer(ctx context.Context, prefix string, publish bool) (blobstore.MirrorStats, error) {
	if err := l.ensureOpen(); err != nil {
		return blobstore.MirrorStats{}, err
	}
	if l.remote == nil {
		return blobstore.MirrorStats{}, &ErrConstraint{Reason: "no remote store configured"}
	}

	src, dst := blobstore.Store(l.remote), blobstore.Store(l.local)
	if publish {
		src, dst = dst, src
	}

	stats, err := blobstore.Mirror(ctx, src, dst, prefix, func(o *blobstore.MirrorOptions) {
		o.Resource = l.resources
	})
	l.logger.LogMirror(ctx, prefix, stats.Copied, stats.Skipped, stats.Bytes, err)
	return stats, err
}

// Close releases the library. Databases opened over it must be closed
// first.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.blocks != nil {
		return l.blocks.Close()
	}
	return nil
}

func (l *Library) ensureOpen() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	return nil
}
