// Package domain contains core domain types for the verax application.
package domain

import "strings"

// Verdict classifies a fact-checked claim.
type Verdict string

const (
	VerdictTrue         Verdict = "true"
	VerdictFalse        Verdict = "false"
	VerdictUnverifiable Verdict = "unverifiable"
	VerdictMisleading   Verdict = "misleading"
)

// ParseVerdict normalizes a provider-reported verdict string. Anything the
// provider returns outside the known set collapses to unverifiable rather
// than erroring, so a malformed response can never trigger an actuation.
func ParseVerdict(s string) Verdict {
	switch Verdict(strings.ToLower(strings.TrimSpace(s))) {
	case VerdictTrue:
		return VerdictTrue
	case VerdictFalse:
		return VerdictFalse
	case VerdictMisleading:
		return VerdictMisleading
	default:
		return VerdictUnverifiable
	}
}
