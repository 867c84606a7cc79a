package blobstore

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/hupe1980/astrodb/resource"
	"golang.org/x/sync/errgroup"
)

// MirrorOptions configures a Mirror run.
type MirrorOptions struct {
	// Concurrency is the number of parallel transfers. Defaults to 4.
	Concurrency int
	// Resource optionally rate-limits transfer IO and counts each
	// transfer as a background job.
	Resource *resource.Controller
	// Overwrite forces a copy even when the destination already has a
	// blob of the same size.
	Overwrite bool
}

// MirrorStats reports what a Mirror run did.
type MirrorStats struct {
	Copied  int
	Skipped int
	Bytes   int64
}

// Mirror copies all blobs with the given prefix from src to dst.
// Blobs that already exist in dst with the same size are skipped unless
// Overwrite is set. This is how remote catalog libraries are materialized
// onto local disk before import-free reopening.
func Mirror(ctx context.Context, src, dst Store, prefix string, optFns ...func(o *MirrorOptions)) (MirrorStats, error) {
	opts := MirrorOptions{Concurrency: 4}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	names, err := src.List(ctx, prefix)
	if err != nil {
		return MirrorStats{}, fmt.Errorf("mirror: list %q: %w", prefix, err)
	}

	var copied, skipped, bytes atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, name := range names {
		g.Go(func() error {
			if err := opts.Resource.AcquireBackground(gctx); err != nil {
				return err
			}
			defer opts.Resource.ReleaseBackground()

			n, err := mirrorOne(gctx, src, dst, name, &opts)
			if err != nil {
				return fmt.Errorf("mirror: %s: %w", name, err)
			}
			if n < 0 {
				skipped.Add(1)
				return nil
			}
			copied.Add(1)
			bytes.Add(n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return MirrorStats{}, err
	}

	return MirrorStats{
		Copied:  int(copied.Load()),
		Skipped: int(skipped.Load()),
		Bytes:   bytes.Load(),
	}, nil
}

// mirrorOne copies a single blob. It returns -1 when the blob was skipped.
func mirrorOne(ctx context.Context, src, dst Store, name string, opts *MirrorOptions) (int64, error) {
	sb, err := src.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer sb.Close()

	size := sb.Size()

	if !opts.Overwrite {
		if db, err := dst.Open(ctx, name); err == nil {
			same := db.Size() == size
			db.Close()
			if same {
				return -1, nil
			}
		}
	}

	rc, err := sb.ReadRange(ctx, 0, size)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if opts.Resource != nil {
		r = resource.NewRateLimitedReader(ctx, rc, opts.Resource)
	}

	w, err := dst.Create(ctx, name)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, r)
	if err != nil {
		// Prefer an abort when the backend offers one; otherwise Close
		// may still publish the partial blob, so delete to keep re-runs
		// honest.
		if a, ok := w.(interface{ Abort() error }); ok {
			_ = a.Abort()
		} else {
			w.Close()
			_ = dst.Delete(ctx, name)
		}
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return n, nil
}
