package osm

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/NERVsystems/osmnodes/pkg/core"
	"github.com/NERVsystems/osmnodes/pkg/tracing"
)

type cacheEntry struct {
	query string
	resp  *Response
}

// responseCache is an expiring LRU of decoded responses keyed by a hash of
// the query text. Only successful responses are stored.
type responseCache struct {
	lru   *expirable.LRU[uint64, cacheEntry]
	group singleflight.Group
}

func newResponseCache(size int, ttl time.Duration) *responseCache {
	return &responseCache{
		lru: expirable.NewLRU[uint64, cacheEntry](size, nil, ttl),
	}
}

func (c *responseCache) do(ctx context.Context, query string, fetch func(context.Context, string) (*Response, error)) (*Response, error) {
	key := xxhash.Sum64String(query)

	if e, ok := c.lru.Get(key); ok && e.query == query {
		c.report(ctx, true, key)
		return e.resp, nil
	}
	c.report(ctx, false, key)

	// The shared fetch outlives any single caller; each caller stops
	// waiting when its own context is done.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(query, func() (any, error) {
		resp, err := fetch(shared, query)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, cacheEntry{query: query, resp: resp})
		return resp, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	case <-ctx.Done():
		return nil, core.NewError(core.CodeTransport, "overpass request failed").
			WithQuery(query).
			Wrap(ctx.Err())
	}
}

// Len returns the number of cached responses
func (c *responseCache) Len() int {
	return c.lru.Len()
}

func (c *responseCache) report(ctx context.Context, hit bool, key uint64) {
	tracing.SetAttributes(ctx, tracing.CacheAttributes(tracing.CacheTypeOverpass, hit, strconv.FormatUint(key, 16))...)
	if hooks := getMonitoringHooks(); hooks != nil && hooks.OnCache != nil {
		hooks.OnCache(hit, c.lru.Len())
	}
}
