package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedLRU_GetSet(t *testing.T) {
	c := NewShardedLRUBlockCache(1<<20, nil)
	defer c.Close()

	ctx := context.Background()

	for i := range uint64(200) {
		key := CacheKey{Kind: CacheKindRecordBlocks, Path: "star/3/hip", Offset: i}
		c.Set(ctx, key, []byte(fmt.Sprintf("block-%d", i)))
	}

	for i := range uint64(200) {
		key := CacheKey{Kind: CacheKindRecordBlocks, Path: "star/3/hip", Offset: i}
		got, ok := c.Get(ctx, key)
		require.True(t, ok, "offset %d", i)
		assert.Equal(t, fmt.Sprintf("block-%d", i), string(got))
	}

	hits, misses := c.Stats()
	assert.Equal(t, int64(200), hits)
	assert.Equal(t, int64(0), misses)
	assert.Positive(t, c.Size())
}

func TestShardedLRU_KeyFieldsSeparateEntries(t *testing.T) {
	c := NewShardedLRUBlockCache(1<<20, nil)
	defer c.Close()

	ctx := context.Background()

	base := CacheKey{Kind: CacheKindRecordBlocks, Path: "star/3/hip", Generation: 1, Offset: 7}
	otherGen := base
	otherGen.Generation = 2
	otherPath := base
	otherPath.Path = "star/3/tycho2"

	c.Set(ctx, base, []byte("one"))
	c.Set(ctx, otherGen, []byte("two"))
	c.Set(ctx, otherPath, []byte("three"))

	got, ok := c.Get(ctx, base)
	require.True(t, ok)
	assert.Equal(t, "one", string(got))

	got, ok = c.Get(ctx, otherGen)
	require.True(t, ok)
	assert.Equal(t, "two", string(got))

	got, ok = c.Get(ctx, otherPath)
	require.True(t, ok)
	assert.Equal(t, "three", string(got))
}

func TestShardedLRU_Invalidate(t *testing.T) {
	c := NewShardedLRUBlockCache(1<<20, nil)
	defer c.Close()

	ctx := context.Background()

	for i := range uint64(100) {
		c.Set(ctx, CacheKey{Path: "old", Offset: i}, []byte("x"))
		c.Set(ctx, CacheKey{Path: "new", Offset: i}, []byte("y"))
	}

	c.Invalidate(func(k CacheKey) bool { return k.Path == "old" })

	for i := range uint64(100) {
		_, ok := c.Get(ctx, CacheKey{Path: "old", Offset: i})
		assert.False(t, ok)
		_, ok = c.Get(ctx, CacheKey{Path: "new", Offset: i})
		assert.True(t, ok)
	}
}

func TestShardedLRU_Concurrent(t *testing.T) {
	c := NewShardedLRUBlockCache(1<<20, nil)
	defer c.Close()

	ctx := context.Background()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range uint64(500) {
				key := CacheKey{Path: fmt.Sprintf("p%d", g), Offset: i}
				c.Set(ctx, key, []byte{byte(i)})
				c.Get(ctx, key)
			}
		}(g)
	}
	wg.Wait()

	hits, misses := c.Stats()
	assert.Equal(t, int64(8*500), hits+misses)
}
