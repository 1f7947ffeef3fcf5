package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/groupoverlap/groupoverlap/internal/build"
	"github.com/groupoverlap/groupoverlap/pkg/group"
)

var (
	groupCacheTotalCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "group_cache_total_count",
		Help:      "The total number of group metadata lookups served through the cache.",
	})

	groupCacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "group_cache_hit_count",
		Help:      "The total number of group metadata cache hits.",
	})
)

type cachedGroup struct {
	record   group.Record
	notFound bool
}

// CachedDirectory memoizes FetchGroup results. Transient failures are never cached.
// Membership and affiliation reads pass through.
type CachedDirectory struct {
	Directory
	cache *theine.Cache[group.ID, cachedGroup]
	ttl   time.Duration
}

var _ Directory = (*CachedDirectory)(nil)

func NewCachedDirectory(delegate Directory, maxSize int64, ttl time.Duration) (*CachedDirectory, error) {
	cache, err := theine.NewBuilder[group.ID, cachedGroup](maxSize).Build()
	if err != nil {
		return nil, fmt.Errorf("building group cache: %w", err)
	}

	return &CachedDirectory{
		Directory: delegate,
		cache:     cache,
		ttl:       ttl,
	}, nil
}

func (c *CachedDirectory) FetchGroup(ctx context.Context, id group.ID) (group.Record, error) {
	groupCacheTotalCounter.Inc()

	if entry, ok := c.cache.Get(id); ok {
		groupCacheHitCounter.Inc()
		if entry.notFound {
			return group.Record{}, notFound(fmt.Errorf("group %d (cached)", id))
		}
		return entry.record, nil
	}

	rec, err := c.Directory.FetchGroup(ctx, id)
	switch {
	case err == nil:
		c.cache.SetWithTTL(id, cachedGroup{record: rec}, 1, c.ttl)
	case IsNotFound(err):
		c.cache.SetWithTTL(id, cachedGroup{notFound: true}, 1, c.ttl)
	}

	return rec, err
}

// Close releases the cache.
func (c *CachedDirectory) Close() {
	c.cache.Close()
}
