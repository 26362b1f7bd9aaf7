package factcheck

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedChecker throttles outbound provider calls. Finalized utterances
// can arrive in bursts; the limiter keeps the provider within its quota
// while letting short bursts through.
type RateLimitedChecker struct {
	inner   Checker
	limiter *rate.Limiter
}

// NewRateLimited wraps a checker with a global QPS limit.
func NewRateLimited(inner Checker, requestsPerSecond float64) *RateLimitedChecker {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedChecker{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Check waits for limiter clearance, then delegates.
func (c *RateLimitedChecker) Check(ctx context.Context, claim string, filter SourceFilter) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.inner.Check(ctx, claim, filter)
}
