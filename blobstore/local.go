package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"github.com/hupe1980/astrodb/internal/fs"
	"github.com/hupe1980/astrodb/internal/mmap"
)

// tmpSeq disambiguates concurrent temp files within a process.
var tmpSeq atomic.Uint64

// LocalStoreOptions configures a LocalStore.
type LocalStoreOptions struct {
	// FS is the filesystem used for the write path. Defaults to fs.Default.
	// Reads go through mmap and are not affected.
	FS fs.FileSystem
}

// LocalStore implements Store using the local file system.
// Reads are memory-mapped; writes go to a temp file that is fsynced and
// renamed into place, so readers never observe partial blobs.
type LocalStore struct {
	root string
	fsys fs.FileSystem
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string, optFns ...func(o *LocalStoreOptions)) *LocalStore {
	opts := LocalStoreOptions{FS: fs.Default}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &LocalStore{root: root, fsys: opts.FS}
}

// Root returns the root directory of the store.
func (s *LocalStore) Root() string {
	return s.root
}

// Open opens a blob for reading. Local files are mmapped: random access
// during queries touches only the pages it needs.
func (s *LocalStore) Open(ctx context.Context, name string) (Blob, error) {
	m, err := mmap.Open(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil {
		return nil, err
	}
	return &localBlob{m: m}, nil
}

// Create creates a new writable blob. Parent directories are created as
// needed. The blob is published atomically on Close.
func (s *LocalStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	final := filepath.Join(s.root, filepath.FromSlash(name))

	if err := s.fsys.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, err
	}

	tmp := fmt.Sprintf("%s.tmp-%d-%d", final, os.Getpid(), tmpSeq.Add(1))

	f, err := s.fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}

	return &localWritableBlob{f: f, fsys: s.fsys, tmp: tmp, final: final}, nil
}

// Put writes a blob atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	err := s.fsys.Remove(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the names of all blobs with the given prefix, in slash
// notation relative to the store root.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	var walk func(rel string) error
	walk = func(rel string) error {
		entries, err := s.fsys.ReadDir(filepath.Join(s.root, filepath.FromSlash(rel)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}

		for _, e := range entries {
			child := path.Join(rel, e.Name())
			if e.IsDir() {
				if err := walk(child); err != nil {
					return err
				}
				continue
			}
			if prefix == "" || len(child) >= len(prefix) && child[:len(prefix)] == prefix {
				names = append(names, child)
			}
		}
		return nil
	}

	if err := walk(""); err != nil {
		return nil, err
	}
	return names, nil
}

type localBlob struct {
	m *mmap.Mapping
}

func (b *localBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data := b.m.Bytes()
	if off < 0 || off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *localBlob) Close() error {
	return b.m.Close()
}

func (b *localBlob) Size() int64 {
	return int64(b.m.Size())
}

func (b *localBlob) Bytes() ([]byte, error) {
	return b.m.Bytes(), nil
}

func (b *localBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := b.m.Bytes()
	if off < 0 || off >= int64(len(data)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end := off + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[off:end])), nil
}

type localWritableBlob struct {
	f     fs.File
	fsys  fs.FileSystem
	tmp   string
	final string
	err   error
}

func (w *localWritableBlob) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}

func (w *localWritableBlob) Sync() error {
	if err := w.f.Sync(); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Close publishes the blob: fsync, close, rename into place.
// If any prior write failed, the temp file is discarded instead.
func (w *localWritableBlob) Close() error {
	if w.err != nil {
		w.f.Close()
		_ = w.fsys.Remove(w.tmp)
		return w.err
	}

	if err := w.f.Sync(); err != nil {
		w.f.Close()
		_ = w.fsys.Remove(w.tmp)
		return err
	}
	if err := w.f.Close(); err != nil {
		_ = w.fsys.Remove(w.tmp)
		return err
	}
	if err := w.fsys.Rename(w.tmp, w.final); err != nil {
		_ = w.fsys.Remove(w.tmp)
		return err
	}
	return nil
}

var (
	_ Store    = (*LocalStore)(nil)
	_ Mappable = (*localBlob)(nil)
)
