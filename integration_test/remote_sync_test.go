package integration_test

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/astrodb"
	"github.com/hupe1980/astrodb/blobstore"
	"github.com/hupe1980/astrodb/rowsource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemotePublishMirror(t *testing.T) {
	remote := blobstore.NewMemoryStore()
	ctx := context.Background()
	id := astrodb.CatalogID{Class: "star", ID: "bsc5", Name: "bright"}

	// 1. Import on the first host and publish the whole library
	rootA := t.TempDir()
	libA, err := astrodb.OpenLibrary("archive.example.org", "pub/catalogs", rootA, astrodb.WithRemoteStore(remote))
	require.NoError(t, err)

	dbA, err := astrodb.NewDatabase(libA, astrodb.DefaultDepth, 2)
	require.NoError(t, err)

	tbl, err := dbA.ImportTable(id, func(o *astrodb.ImportTableOptions) {
		o.BrightnessSymbol = "vmag"
	})
	require.NoError(t, err)
	require.NoError(t, tbl.BindSchema(brightStarFields(), brightStarRecordSize))

	_, err = tbl.RunImport(ctx, rowsource.NewSliceSource(brightStarRows()...))
	require.NoError(t, err)

	pub, err := libA.Publish(ctx, "")
	require.NoError(t, err)
	// Record file, schema sidecar, manifest and CURRENT at minimum.
	require.GreaterOrEqual(t, pub.Copied, 4)

	require.NoError(t, dbA.Close())
	require.NoError(t, libA.Close())

	// 2. Mirror onto a second host and reopen there
	rootB := t.TempDir()
	libB, err := astrodb.OpenLibrary("archive.example.org", "pub/catalogs", rootB, astrodb.WithRemoteStore(remote))
	require.NoError(t, err)
	defer libB.Close()

	mir, err := libB.Mirror(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, pub.Copied, mir.Copied)

	dbB, err := astrodb.NewDatabase(libB, astrodb.DefaultDepth, 2)
	require.NoError(t, err)
	defer dbB.Close()

	tblB, err := dbB.OpenTable(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 6, tblB.Count())

	set := astrodb.NewObjectSet(tblB)
	require.NoError(t, set.ApplyConstraints(0, 0, math.Pi, -99, 99))
	require.NoError(t, set.Populate(ctx))
	assert.Equal(t, 6, set.Count())

	// 3. A second mirror is a no-op
	again, err := libB.Mirror(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Copied)
	assert.Equal(t, mir.Copied+mir.Skipped, again.Skipped)
}

func TestOpenSourceFetchesFromRemote(t *testing.T) {
	remote := blobstore.NewMemoryStore()
	ctx := context.Background()

	const name = "star/tycho2/tyc2.dat"
	content := []byte("0001 00008 1| |  2.31750494|  2.23184345\n")
	require.NoError(t, remote.Put(ctx, name, content))

	root := t.TempDir()
	lib, err := astrodb.OpenLibrary("archive.example.org", "pub/catalogs", root, astrodb.WithRemoteStore(remote))
	require.NoError(t, err)
	defer lib.Close()

	// 1. First open materializes the file from the remote
	rc, err := lib.SourceReader(ctx, name)
	require.NoError(t, err)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, got)

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err)

	// 2. Second open hits local disk even after the remote copy is gone
	require.NoError(t, remote.Delete(ctx, name))

	rc, err = lib.SourceReader(ctx, name)
	require.NoError(t, err)

	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, got)
}

func TestDiskCacheTierPersistsRemoteReads(t *testing.T) {
	remote := blobstore.NewMemoryStore()
	ctx := context.Background()

	const name = "star/tycho2/tyc2.dat"
	content := []byte("0001 00008 1| |  2.31750494|  2.23184345\n")
	require.NoError(t, remote.Put(ctx, name, content))

	diskDir := t.TempDir()

	lib, err := astrodb.OpenLibrary("archive.example.org", "pub/catalogs", t.TempDir(),
		astrodb.WithRemoteStore(remote),
		astrodb.WithBlockCache(1<<20),
		astrodb.WithDiskCache(diskDir, 1<<20))
	require.NoError(t, err)

	rc, err := lib.SourceReader(ctx, name)
	require.NoError(t, err)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, got)

	// Close drains the disk tier's background writes, so the blocks
	// fetched from the remote are on disk afterwards.
	require.NoError(t, lib.Close())

	var blocks int
	require.NoError(t, filepath.Walk(diskDir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && filepath.Ext(path) == ".blk" {
			blocks++
		}
		return err
	}))
	assert.Positive(t, blocks)
}
