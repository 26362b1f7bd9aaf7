// Package store provides the durable claim ledger interface and implementations.
package store

import (
	"context"
	"time"

	"github.com/akoval/verax/internal/domain"
)

// Ledger is the sole writer of durable state: sessions, fact-checks,
// actuation history, and the persistent safety flag. The orchestrator and
// the safety governor hold only in-memory mirrors and write through here.
type Ledger interface {
	// CreateSession stores a newly opened session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// CloseSession sets the session's end time and recomputes its aggregate
	// counters from the stored fact-check set in a single transaction.
	CloseSession(ctx context.Context, id string, endTime time.Time) (*domain.SessionSummary, error)

	// GetSession retrieves a session by ID. Returns (nil, nil) when absent.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions returns all sessions, most recent first.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// AppendFactCheck stores one verified claim. Rows are append-only.
	AppendFactCheck(ctx context.Context, fc *domain.FactCheck) error

	// ListFactChecks returns a session's fact-checks, oldest first.
	ListFactChecks(ctx context.Context, sessionID string) ([]*domain.FactCheck, error)

	// AppendActuation stores one confirmed stimulus delivery.
	AppendActuation(ctx context.Context, rec *domain.ActuationRecord) error

	// CountActuationsInWindow counts deliveries with start <= timestamp < end.
	CountActuationsInWindow(ctx context.Context, start, end time.Time) (int, error)

	// LastActuationTime returns the most recent delivery timestamp, or nil
	// if nothing has ever been delivered.
	LastActuationTime(ctx context.Context) (*time.Time, error)

	// TotalActuations counts all deliveries across all time.
	TotalActuations(ctx context.Context) (int, error)

	// EmergencyStopActive reads the persistent emergency-stop flag.
	EmergencyStopActive(ctx context.Context) (bool, error)

	// SetEmergencyStop writes the persistent emergency-stop flag.
	SetEmergencyStop(ctx context.Context, active bool) error

	// Stats aggregates fact-check history across all sessions.
	Stats(ctx context.Context) (*domain.OverallStats, error)

	// Ping verifies connectivity to the underlying store.
	Ping(ctx context.Context) error

	// Close releases the underlying store.
	Close() error
}
