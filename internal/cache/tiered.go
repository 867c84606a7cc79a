package cache

import "context"

// TieredBlockCache stacks two BlockCaches: a fast primary (memory) in
// front of a larger secondary (disk). Reads fall through from the
// primary to the secondary; a secondary hit is promoted back into the
// primary so subsequent reads stay in memory.
type TieredBlockCache struct {
	primary   BlockCache
	secondary BlockCache
}

// NewTieredBlockCache layers primary in front of secondary. Both tiers
// are owned by the returned cache and closed by Close.
func NewTieredBlockCache(primary, secondary BlockCache) *TieredBlockCache {
	return &TieredBlockCache{primary: primary, secondary: secondary}
}

// Get checks the primary first, then the secondary.
func (c *TieredBlockCache) Get(ctx context.Context, key CacheKey) ([]byte, bool) {
	if b, ok := c.primary.Get(ctx, key); ok {
		return b, true
	}

	b, ok := c.secondary.Get(ctx, key)
	if ok {
		c.primary.Set(ctx, key, b)
	}
	return b, ok
}

// Set writes the block to both tiers.
func (c *TieredBlockCache) Set(ctx context.Context, key CacheKey, b []byte) {
	c.primary.Set(ctx, key, b)
	c.secondary.Set(ctx, key, b)
}

// Invalidate removes matching entries from both tiers.
func (c *TieredBlockCache) Invalidate(predicate func(key CacheKey) bool) {
	c.primary.Invalidate(predicate)
	c.secondary.Invalidate(predicate)
}

// Close closes both tiers and returns the first error.
func (c *TieredBlockCache) Close() error {
	err := c.primary.Close()
	if err2 := c.secondary.Close(); err == nil {
		err = err2
	}
	return err
}

// Stats merges both tiers. A secondary probe only happens after a
// primary miss, so secondary hits are subtracted from the primary's
// misses: a block served from disk is still a cache hit.
func (c *TieredBlockCache) Stats() (hits, misses int64) {
	ph, pm := c.primary.Stats()
	sh, _ := c.secondary.Stats()
	return ph + sh, pm - sh
}
