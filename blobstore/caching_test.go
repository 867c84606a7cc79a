package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/hupe1980/astrodb/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBlob tracks backend reads so tests can prove cache hits.
type countingBlob struct {
	mu        sync.Mutex
	data      []byte
	reads     int
	readBytes int
}

func (m *countingBlob) Close() error { return nil }
func (m *countingBlob) Size() int64  { return int64(len(m.data)) }

func (m *countingBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	m.mu.Lock()
	m.reads++
	m.mu.Unlock()

	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])

	m.mu.Lock()
	m.readBytes += n
	m.mu.Unlock()

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *countingBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	end := min(off+length, int64(len(m.data)))
	return io.NopCloser(bytes.NewReader(m.data[off:end])), nil
}

func (m *countingBlob) stats() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.readBytes
}

type countingStore struct {
	blobs map[string]*countingBlob
	opens int
}

func (m *countingStore) Open(_ context.Context, name string) (Blob, error) {
	m.opens++
	if b, ok := m.blobs[name]; ok {
		return b, nil
	}
	return nil, ErrNotFound
}

func (m *countingStore) Create(context.Context, string) (WritableBlob, error) {
	return nil, ErrNotFound
}

func (m *countingStore) Put(_ context.Context, name string, data []byte) error {
	if m.blobs == nil {
		m.blobs = make(map[string]*countingBlob)
	}
	m.blobs[name] = &countingBlob{data: data}
	return nil
}

func (m *countingStore) Delete(_ context.Context, name string) error {
	delete(m.blobs, name)
	return nil
}

func (m *countingStore) List(context.Context, string) ([]string, error) { return nil, nil }

func testPayload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 31)
	}
	return b
}

func TestCachingStore_ReadThrough(t *testing.T) {
	ctx := context.Background()

	backend := &countingStore{}
	require.NoError(t, backend.Put(ctx, "records.adb", testPayload(10000)))

	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(backend, c, 1024)

	blob, err := store.Open(ctx, "records.adb")
	require.NoError(t, err)
	defer blob.Close()

	assert.Equal(t, int64(10000), blob.Size())

	buf := make([]byte, 3000)
	n, err := blob.ReadAt(ctx, buf, 500)
	require.NoError(t, err)
	require.Equal(t, 3000, n)
	assert.Equal(t, testPayload(10000)[500:3500], buf)

	readsAfterFirst, _ := backend.blobs["records.adb"].stats()
	assert.Positive(t, readsAfterFirst)

	// Same range again: served fully from cache.
	n, err = blob.ReadAt(ctx, buf, 500)
	require.NoError(t, err)
	require.Equal(t, 3000, n)

	readsAfterSecond, _ := backend.blobs["records.adb"].stats()
	assert.Equal(t, readsAfterFirst, readsAfterSecond, "second read must not touch the backend")
}

func TestCachingStore_CoalescesMissingRuns(t *testing.T) {
	ctx := context.Background()

	backend := &countingStore{}
	require.NoError(t, backend.Put(ctx, "x", testPayload(8192)))

	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(backend, c, 512)

	blob, err := store.Open(ctx, "x")
	require.NoError(t, err)
	defer blob.Close()

	// 8 contiguous missing blocks: one backend read, not eight.
	buf := make([]byte, 4096)
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)

	reads, readBytes := backend.blobs["x"].stats()
	assert.Equal(t, 1, reads)
	assert.Equal(t, 4096, readBytes)
}

func TestCachingStore_EOFSemantics(t *testing.T) {
	ctx := context.Background()

	backend := &countingStore{}
	require.NoError(t, backend.Put(ctx, "x", []byte("0123456789")))

	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(backend, c, 4)

	blob, err := store.Open(ctx, "x")
	require.NoError(t, err)
	defer blob.Close()

	// Read straddling EOF returns the short count and io.EOF.
	buf := make([]byte, 8)
	n, err := blob.ReadAt(ctx, buf, 6)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "6789", string(buf[:n]))

	// Read fully past EOF.
	n, err = blob.ReadAt(ctx, buf, 100)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)
}

func TestCachingStore_ReadRange(t *testing.T) {
	ctx := context.Background()

	backend := &countingStore{}
	require.NoError(t, backend.Put(ctx, "x", testPayload(2048)))

	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(backend, c, 256)

	blob, err := store.Open(ctx, "x")
	require.NoError(t, err)
	defer blob.Close()

	rr, err := blob.ReadRange(ctx, 100, 1000)
	require.NoError(t, err)
	defer rr.Close()

	got, err := io.ReadAll(rr)
	require.NoError(t, err)
	assert.Equal(t, testPayload(2048)[100:1100], got)
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	ctx := context.Background()

	backend := &countingStore{}
	require.NoError(t, backend.Put(ctx, "x", []byte("old old old old!")))

	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(backend, c, 4)

	blob, err := store.Open(ctx, "x")
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "old ", string(buf))
	require.NoError(t, blob.Close())

	require.NoError(t, store.Put(ctx, "x", []byte("new new new new!")))

	blob, err = store.Open(ctx, "x")
	require.NoError(t, err)
	defer blob.Close()

	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "new ", string(buf), "stale cached block served after Put")
}

func TestCachingStore_CanceledContext(t *testing.T) {
	backend := &countingStore{}
	require.NoError(t, backend.Put(context.Background(), "x", testPayload(100)))

	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(backend, c, 16)

	blob, err := store.Open(context.Background(), "x")
	require.NoError(t, err)
	defer blob.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = blob.ReadAt(ctx, make([]byte, 10), 0)
	assert.ErrorIs(t, err, context.Canceled)
}
