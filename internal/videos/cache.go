package videos

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/ytfetch/backend/internal/logging"
)

const (
	// DefaultCacheTTL is how long extracted metadata stays fresh.
	DefaultCacheTTL = time.Hour
	// DefaultCacheCleanupInterval is how often expired entries are reclaimed.
	DefaultCacheCleanupInterval = 10 * time.Minute
)

// CachingProvider wraps another Provider with a TTL-based in-memory cache keyed
// by canonical URL. Concurrent misses for the same video share one lookup.
type CachingProvider struct {
	base Provider
	ttl  time.Duration

	items *gocache.Cache
	group singleflight.Group
}

// NewCachingProvider returns a Provider that caches lookups for the provided TTL.
func NewCachingProvider(base Provider, ttl, cleanupInterval time.Duration) *CachingProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCacheCleanupInterval
	}
	return &CachingProvider{
		base:  base,
		ttl:   ttl,
		items: gocache.New(ttl, cleanupInterval),
	}
}

// Lookup returns cached metadata when available, otherwise it delegates to the
// underlying provider and stores the result. Failures are never cached.
func (c *CachingProvider) Lookup(ctx context.Context, ref Reference) (Metadata, error) {
	if c == nil || c.base == nil {
		return Metadata{}, ErrProviderUnavailable
	}
	if ref.IsZero() {
		return Metadata{}, ErrInvalidURL
	}

	key := ref.CanonicalURL()
	if metadata, ok := c.get(key); ok {
		logging.FromContext(ctx).Debug("metadata cache hit", "videoId", ref.ID())
		return metadata.clone(), nil
	}

	// The shared lookup must not die with whichever caller happened to start it.
	fetchCtx := context.WithoutCancel(ctx)

	v, err, shared := c.group.Do(key, func() (any, error) {
		if metadata, ok := c.get(key); ok {
			return metadata, nil
		}

		metadata, err := c.base.Lookup(fetchCtx, ref)
		if err != nil {
			return Metadata{}, err
		}

		c.items.Set(key, metadata.clone(), c.ttl)
		return metadata, nil
	})
	if err != nil {
		return Metadata{}, err
	}

	logging.FromContext(ctx).Debug("metadata cache miss", "videoId", ref.ID(), "shared", shared)
	return v.(Metadata).clone(), nil
}

// Invalidate drops any cached metadata for ref.
func (c *CachingProvider) Invalidate(ref Reference) {
	if c == nil || c.items == nil {
		return
	}
	c.items.Delete(ref.CanonicalURL())
}

// Len reports the number of stored entries, including expired ones not yet reclaimed.
func (c *CachingProvider) Len() int {
	if c == nil || c.items == nil {
		return 0
	}
	return c.items.ItemCount()
}

// Close flushes every cached entry. go-cache offers no way to stop its janitor
// directly; it exits once the cache becomes unreachable. The provider stays
// usable after Close and simply refetches.
func (c *CachingProvider) Close() {
	if c == nil || c.items == nil {
		return
	}
	c.items.Flush()
}

func (c *CachingProvider) get(key string) (Metadata, bool) {
	item, found := c.items.Get(key)
	if !found {
		return Metadata{}, false
	}
	metadata, ok := item.(Metadata)
	return metadata, ok
}
