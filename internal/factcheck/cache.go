package factcheck

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedChecker memoizes verdicts per claim and filter for a bounded TTL,
// so a speaker repeating the same line inside one conversation does not
// burn a provider call each time. Verdicts on current events can change,
// hence the short TTL rather than indefinite caching.
type CachedChecker struct {
	inner Checker
	cache *gocache.Cache
}

// NewCached wraps a checker with TTL-based result caching.
func NewCached(inner Checker, ttl time.Duration) *CachedChecker {
	return &CachedChecker{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Check returns the cached result when present, otherwise delegates.
// Errors are never cached.
func (c *CachedChecker) Check(ctx context.Context, claim string, filter SourceFilter) (*Result, error) {
	key := string(filter) + "\x00" + claim
	if v, ok := c.cache.Get(key); ok {
		cached := *(v.(*Result))
		return &cached, nil
	}

	result, err := c.inner.Check(ctx, claim, filter)
	if err != nil {
		return nil, err
	}
	// Store a private copy so callers mutating the returned Result cannot
	// poison the cached entry.
	stored := *result
	c.cache.SetDefault(key, &stored)
	return result, nil
}
