package factcheck

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Options configures provider construction and the shared wrappers.
type Options struct {
	// Provider name: "gemini" or "perplexity".
	Provider string

	GeminiAPIKey     string
	PerplexityAPIKey string

	// Model overrides the provider default when non-empty.
	Model string

	// CacheTTL enables result caching when positive.
	CacheTTL time.Duration

	// RequestsPerSecond throttles outbound checks when positive.
	RequestsPerSecond float64
}

// New builds the configured checker, wrapped with rate limiting and result
// caching when enabled.
func New(ctx context.Context, opts Options) (Checker, error) {
	var checker Checker
	var err error

	switch strings.ToLower(opts.Provider) {
	case "gemini":
		checker, err = NewGemini(ctx, opts.GeminiAPIKey, opts.Model)
	case "perplexity":
		checker, err = NewPerplexity(opts.PerplexityAPIKey, opts.Model)
	default:
		return nil, fmt.Errorf("unknown fact-check provider: %s (supported: gemini, perplexity)", opts.Provider)
	}
	if err != nil {
		return nil, err
	}

	if opts.RequestsPerSecond > 0 {
		checker = NewRateLimited(checker, opts.RequestsPerSecond)
	}
	if opts.CacheTTL > 0 {
		checker = NewCached(checker, opts.CacheTTL)
	}
	return checker, nil
}
