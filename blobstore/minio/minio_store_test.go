package minio

import (
	"context"
	"io"
	"testing"

	"github.com/hupe1980/astrodb/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPrefix(t *testing.T) {
	tests := []struct {
		root   string
		prefix string
		want   string
	}{
		{"catalogs/", "", "catalogs/"},
		{"catalogs/", "frames/", "catalogs/frames/"},
		{"catalogs/", "frames", "catalogs/frames"},
		{"catalogs", "", "catalogs/"},
		{"", "", ""},
		{"", "frames/", "frames/"},
		{"", "frames", "frames"},
	}
	for _, tt := range tests {
		s := NewStore(nil, "bucket", tt.root)
		assert.Equal(t, tt.want, s.listPrefix(tt.prefix), "root=%q prefix=%q", tt.root, tt.prefix)
	}
}

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-astrodb"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		require.NoError(t, err)
	}

	store := NewStore(client, bucket, "test-prefix/")

	// Put and Open
	data := []byte("hipparcos main catalog")
	err = store.Put(ctx, "hip/records.db", data)
	require.NoError(t, err)

	blob, err := store.Open(ctx, "hip/records.db")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, len(data))
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf)

	// Reads past the end surface io.EOF, not a silent short read
	tail := make([]byte, 8)
	n, err = blob.ReadAt(ctx, tail, int64(len(data))-4)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 4, n)
	require.NoError(t, blob.Close())

	// ReadRange
	blob2, err := store.Open(ctx, "hip/records.db")
	require.NoError(t, err)
	rc, err := blob2.ReadRange(ctx, 10, 4)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "main", string(part))
	require.NoError(t, rc.Close())
	require.NoError(t, blob2.Close())

	// List honors the directory boundary: "hip/" must not match "hipx"
	err = store.Put(ctx, "hipx", []byte("decoy"))
	require.NoError(t, err)
	names, err := store.List(ctx, "hip/")
	require.NoError(t, err)
	assert.Equal(t, []string{"hip/records.db"}, names)

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "hip/records.db")
	assert.Contains(t, names, "hipx")

	// Delete
	require.NoError(t, store.Delete(ctx, "hipx"))
	require.NoError(t, store.Delete(ctx, "hip/records.db"))
	require.NoError(t, store.Delete(ctx, "hip/records.db")) // idempotent

	_, err = store.Open(ctx, "hip/records.db")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestMinioStore_Integration_Streaming(t *testing.T) {
	endpoint := "localhost:9000"
	bucket := "test-astrodb"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	store := NewStore(client, bucket, "test-prefix/")

	wb, err := store.Create(ctx, "stream.db")
	require.NoError(t, err)
	_, err = wb.Write([]byte("streamed data"))
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	blob, err := store.Open(ctx, "stream.db")
	require.NoError(t, err)
	assert.Equal(t, int64(13), blob.Size())
	require.NoError(t, blob.Close())

	// Abort must not publish the object
	wb2, err := store.Create(ctx, "aborted.db")
	require.NoError(t, err)
	_, err = wb2.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, wb2.(*minioWritableBlob).Abort())

	_, err = store.Open(ctx, "aborted.db")
	require.Error(t, err)

	_ = store.Delete(ctx, "stream.db")
}
