package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/astrodb/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)

	ctx := context.Background()

	blobName := "star/3/tycho2/records.adb"
	data := []byte("hello catalog, this is a record file body")

	w, err := store.Create(ctx, blobName)
	require.NoError(t, err)

	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	// File is at the final path, no temp leftovers.
	entries, err := os.ReadDir(filepath.Join(tmpDir, "star/3/tycho2"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "records.adb", entries[0].Name())

	blob, err := store.Open(ctx, blobName)
	require.NoError(t, err)
	defer blob.Close()

	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 7)
	n, err = blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	require.Equal(t, 7, n)
	assert.Equal(t, "catalog", string(buf))

	rr, err := blob.ReadRange(ctx, 15, 4)
	require.NoError(t, err)
	defer rr.Close()

	got, err := io.ReadAll(rr)
	require.NoError(t, err)
	assert.Equal(t, "this", string(got))

	// Zero-copy access.
	mb, ok := blob.(Mappable)
	require.True(t, ok)
	raw, err := mb.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, raw)
}

func TestLocalStore_OpenMissing(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	_, err := store.Open(context.Background(), "absent.adb")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_PutDeleteList(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "star/3/hip/records.adb", []byte("a")))
	require.NoError(t, store.Put(ctx, "star/3/hip/spatial.adx", []byte("bb")))
	require.NoError(t, store.Put(ctx, "globular/1/ngc/records.adb", []byte("ccc")))

	names, err := store.List(ctx, "star/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"star/3/hip/records.adb", "star/3/hip/spatial.adx"}, names)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.Delete(ctx, "star/3/hip/spatial.adx"))
	// Idempotent.
	require.NoError(t, store.Delete(ctx, "star/3/hip/spatial.adx"))

	names, err = store.List(ctx, "star/")
	require.NoError(t, err)
	assert.Equal(t, []string{"star/3/hip/records.adb"}, names)
}

func TestLocalStore_CreateIsAtomic(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)
	ctx := context.Background()

	w, err := store.Create(ctx, "partial.adb")
	require.NoError(t, err)

	_, err = w.Write([]byte("half written"))
	require.NoError(t, err)

	// Not yet visible under the final name.
	_, err = store.Open(ctx, "partial.adb")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, w.Close())

	blob, err := store.Open(ctx, "partial.adb")
	require.NoError(t, err)
	defer blob.Close()
	assert.Equal(t, int64(12), blob.Size())
}

func TestLocalStore_WriteFaultDiscardsTemp(t *testing.T) {
	tmpDir := t.TempDir()

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("broken", fs.Fault{FailAfterBytes: 4})

	store := NewLocalStore(tmpDir, func(o *LocalStoreOptions) {
		o.FS = ffs
	})
	ctx := context.Background()

	w, err := store.Create(ctx, "broken.adb")
	require.NoError(t, err)

	_, err = w.Write([]byte("aaaa"))
	require.NoError(t, err)
	_, err = w.Write([]byte("bbbb"))
	require.ErrorIs(t, err, fs.ErrInjected)

	// Close after a failed write must not publish.
	require.Error(t, w.Close())

	_, err = store.Open(ctx, "broken.adb")
	assert.ErrorIs(t, err, ErrNotFound)

	// The temp file is cleaned up too.
	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestLocalStore_SyncFaultFailsClose(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("records", fs.Fault{FailOnSync: true})

	store := NewLocalStore(t.TempDir(), func(o *LocalStoreOptions) {
		o.FS = ffs
	})
	ctx := context.Background()

	w, err := store.Create(ctx, "records.adb")
	require.NoError(t, err)

	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)

	assert.ErrorIs(t, w.Close(), fs.ErrInjected)

	_, err = store.Open(ctx, "records.adb")
	assert.ErrorIs(t, err, ErrNotFound)
}
