// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// sweepEvery is the number of inserts between full expiry sweeps.
const sweepEvery = 64

type cacheEntry struct {
	candidates []types.Candidate
	expires    time.Time
}

// CachedAdapter wraps an adapter with a TTL response cache keyed by
// SubQuery.CacheKey, which includes the as-of time. Concurrent misses on the
// same key share one fetch. Errors are never cached. Safe for concurrent use.
type CachedAdapter struct {
	Adapter
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	inserts int
	group   singleflight.Group
}

// Cached returns a caching wrapper around a. A non-positive ttl returns a
// unchanged.
func Cached(a Adapter, ttl time.Duration) Adapter {
	if ttl <= 0 || a == nil {
		return a
	}
	return &CachedAdapter{Adapter: a, ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

// Fetch serves sq from the cache or the wrapped adapter. A shared fetch runs
// detached from any one caller's cancellation, bounded by sq.Timeout; each
// caller stops waiting when its own ctx is done.
func (c *CachedAdapter) Fetch(ctx context.Context, sq types.SubQuery) ([]types.Candidate, error) {
	key := sq.CacheKey()
	if cands, ok := c.lookup(key); ok {
		return cands, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if cands, ok := c.lookup(key); ok {
			return cands, nil
		}
		fctx := context.WithoutCancel(ctx)
		if sq.Timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, sq.Timeout)
			defer cancel()
		}
		cands, err := c.Adapter.Fetch(fctx, sq)
		if err != nil {
			return nil, err
		}
		c.store(key, cands)
		return cands, nil
	})

	select {
	case <-ctx.Done():
		return nil, sourceErr(ctx, sq, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]types.Candidate)), nil
	}
}

// Len returns the number of live entries.
func (c *CachedAdapter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}

func (c *CachedAdapter) lookup(key string) ([]types.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return clone(e.candidates), true
}

func (c *CachedAdapter) store(key string, cands []types.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[key] = cacheEntry{candidates: clone(cands), expires: now.Add(c.ttl)}
	c.inserts++
	if c.inserts%sweepEvery == 0 {
		for k, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, k)
			}
		}
	}
}

func clone(c []types.Candidate) []types.Candidate {
	if c == nil {
		return nil
	}
	return append([]types.Candidate(nil), c...)
}
