package blobstore

import (
	"context"
	"testing"

	"github.com/hupe1980/astrodb/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T, blobs map[string][]byte) *MemoryStore {
	t.Helper()

	store := NewMemoryStore()
	for name, data := range blobs {
		require.NoError(t, store.Put(context.Background(), name, data))
	}
	return store
}

func TestMirror_CopiesAll(t *testing.T) {
	ctx := context.Background()

	src := seedStore(t, map[string][]byte{
		"star/3/hip/records.adb": []byte("hip records"),
		"star/3/hip/spatial.adx": []byte("hip spatial"),
		"other/blob":             []byte("not mirrored"),
	})
	dst := NewMemoryStore()

	stats, err := Mirror(ctx, src, dst, "star/")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Copied)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, int64(22), stats.Bytes)

	names, err := dst.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"star/3/hip/records.adb", "star/3/hip/spatial.adx"}, names)

	blob, err := dst.Open(ctx, "star/3/hip/records.adb")
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, 11)
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hip records", string(buf))
}

func TestMirror_SkipsSameSize(t *testing.T) {
	ctx := context.Background()

	src := seedStore(t, map[string][]byte{
		"a": []byte("12345"),
		"b": []byte("678"),
	})
	dst := seedStore(t, map[string][]byte{
		"a": []byte("54321"), // same size, assumed current
	})

	stats, err := Mirror(ctx, src, dst, "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, int64(3), stats.Bytes)

	blob, err := dst.Open(ctx, "a")
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, 5)
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "54321", string(buf), "same-size blob must not be re-copied")
}

func TestMirror_Overwrite(t *testing.T) {
	ctx := context.Background()

	src := seedStore(t, map[string][]byte{"a": []byte("fresh")})
	dst := seedStore(t, map[string][]byte{"a": []byte("stale")})

	stats, err := Mirror(ctx, src, dst, "", func(o *MirrorOptions) {
		o.Overwrite = true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)

	blob, err := dst.Open(ctx, "a")
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, 5)
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(buf))
}

func TestMirror_SizeMismatchRecopies(t *testing.T) {
	ctx := context.Background()

	src := seedStore(t, map[string][]byte{"a": []byte("full content")})
	dst := seedStore(t, map[string][]byte{"a": []byte("short")})

	stats, err := Mirror(ctx, src, dst, "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)

	blob, err := dst.Open(ctx, "a")
	require.NoError(t, err)
	defer blob.Close()
	assert.Equal(t, int64(12), blob.Size())
}

func TestMirror_WithResourceController(t *testing.T) {
	ctx := context.Background()

	src := seedStore(t, map[string][]byte{
		"a": []byte("aaaa"),
		"b": []byte("bbbb"),
		"c": []byte("cccc"),
	})
	dst := NewMemoryStore()

	rc := resource.NewController(resource.Config{
		MaxBackgroundWorkers: 2,
		IOLimitBytesPerSec:   1 << 20,
	})

	stats, err := Mirror(ctx, src, dst, "", func(o *MirrorOptions) {
		o.Concurrency = 3
		o.Resource = rc
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Copied)
	assert.Equal(t, int64(12), stats.Bytes)
}

func TestMirror_EmptyPrefix(t *testing.T) {
	stats, err := Mirror(context.Background(), NewMemoryStore(), NewMemoryStore(), "missing/")
	require.NoError(t, err)
	assert.Zero(t, stats.Copied)
	assert.Zero(t, stats.Skipped)
}
