// Package factcheck provides the claim-verification port and its providers.
package factcheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/akoval/verax/internal/domain"
)

// Result is the validated outcome of one fact-check. Provider responses are
// normalized at this boundary: a missing or unknown verdict collapses to
// unverifiable and confidence is clamped to [0,1], so nothing malformed ever
// reaches the orchestrator.
type Result struct {
	Verdict    domain.Verdict `json:"verdict"`
	Confidence float64        `json:"confidence"`
	Evidence   string         `json:"evidence"`
	Citations  []string       `json:"citations,omitempty"`
}

// Checker verifies a single claim against external truth sources.
// Ambiguous claims resolve to an unverifiable Result with low confidence;
// only transport and parse failures are errors.
type Checker interface {
	Check(ctx context.Context, claim string, filter SourceFilter) (*Result, error)
}

// SourceFilter restricts which source categories a provider may search.
type SourceFilter string

const (
	FilterAll           SourceFilter = "all"
	FilterAuthoritative SourceFilter = "authoritative"
	FilterNews          SourceFilter = "news"
	FilterSocial        SourceFilter = "social"
)

// ParseSourceFilter validates a client-supplied filter value. Empty means all.
func ParseSourceFilter(s string) (SourceFilter, error) {
	switch SourceFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterAuthoritative:
		return FilterAuthoritative, nil
	case FilterNews:
		return FilterNews, nil
	case FilterSocial:
		return FilterSocial, nil
	default:
		return "", fmt.Errorf("unknown source filter: %q", s)
	}
}

// normalize applies boundary validation to a raw provider response.
func normalize(verdict string, confidence float64, evidence string) Result {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Result{
		Verdict:    domain.ParseVerdict(verdict),
		Confidence: confidence,
		Evidence:   evidence,
	}
}
