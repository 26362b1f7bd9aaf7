package domain

import (
	"time"
)

// Session represents one monitoring episode or one ad-hoc single-claim check.
type Session struct {
	ID              string     `json:"id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	TotalClaims     int        `json:"total_claims"`
	TotalActuations int        `json:"total_actuations"`
	TruthRate       float64    `json:"truth_rate"`
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.EndTime == nil
}

// Duration returns the elapsed time of a closed session, or the time since
// start for an open one.
func (s *Session) Duration() time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// SessionSummary holds the aggregates recomputed from a session's fact-check
// set at close time. Counters are never incremented in place; they are always
// derived from the stored FactCheck rows so they cannot drift.
type SessionSummary struct {
	TotalClaims     int     `json:"total_claims"`
	TotalActuations int     `json:"total_actuations"`
	TruthRate       float64 `json:"truth_rate"`
}
