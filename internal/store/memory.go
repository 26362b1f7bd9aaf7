package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/akoval/verax/internal/domain"
)

// MemoryLedger is an in-memory Ledger used by tests and ephemeral runs.
// It mirrors the SQLite implementation's semantics, including the
// recompute-on-close aggregation.
type MemoryLedger struct {
	mu            sync.Mutex
	sessions      map[string]*domain.Session
	factChecks    []*domain.FactCheck
	actuations    []*domain.ActuationRecord
	emergencyStop bool
	nextID        int64
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{sessions: make(map[string]*domain.Session)}
}

// CreateSession stores a newly opened session.
func (m *MemoryLedger) CreateSession(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

// CloseSession sets the end time and recomputes aggregates from the
// fact-check set.
func (m *MemoryLedger) CloseSession(_ context.Context, id string, endTime time.Time) (*domain.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}

	summary := &domain.SessionSummary{}
	trueCount := 0
	for _, fc := range m.factChecks {
		if fc.SessionID != id {
			continue
		}
		summary.TotalClaims++
		if fc.Verdict == domain.VerdictTrue {
			trueCount++
		}
		if fc.Actuated {
			summary.TotalActuations++
		}
	}
	if summary.TotalClaims > 0 {
		summary.TruthRate = float64(trueCount) / float64(summary.TotalClaims)
	}

	t := endTime
	session.EndTime = &t
	session.TotalClaims = summary.TotalClaims
	session.TotalActuations = summary.TotalActuations
	session.TruthRate = summary.TruthRate
	return summary, nil
}

// GetSession retrieves a session by ID.
func (m *MemoryLedger) GetSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

// ListSessions returns all sessions, most recent first.
func (m *MemoryLedger) ListSessions(_ context.Context) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		copied := *s
		sessions = append(sessions, &copied)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

// AppendFactCheck stores one verified claim.
func (m *MemoryLedger) AppendFactCheck(_ context.Context, fc *domain.FactCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	copied := *fc
	copied.ID = m.nextID
	fc.ID = m.nextID
	m.factChecks = append(m.factChecks, &copied)
	return nil
}

// ListFactChecks returns a session's fact-checks, oldest first.
func (m *MemoryLedger) ListFactChecks(_ context.Context, sessionID string) ([]*domain.FactCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var checks []*domain.FactCheck
	for _, fc := range m.factChecks {
		if fc.SessionID == sessionID {
			copied := *fc
			checks = append(checks, &copied)
		}
	}
	sort.SliceStable(checks, func(i, j int) bool {
		return checks[i].CreatedAt.Before(checks[j].CreatedAt)
	})
	return checks, nil
}

// AppendActuation stores one confirmed stimulus delivery.
func (m *MemoryLedger) AppendActuation(_ context.Context, rec *domain.ActuationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	copied := *rec
	copied.ID = m.nextID
	rec.ID = m.nextID
	m.actuations = append(m.actuations, &copied)
	return nil
}

// CountActuationsInWindow counts deliveries with start <= timestamp < end.
func (m *MemoryLedger) CountActuationsInWindow(_ context.Context, start, end time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rec := range m.actuations {
		if !rec.Timestamp.Before(start) && rec.Timestamp.Before(end) {
			count++
		}
	}
	return count, nil
}

// LastActuationTime returns the most recent delivery timestamp.
func (m *MemoryLedger) LastActuationTime(_ context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *time.Time
	for _, rec := range m.actuations {
		if last == nil || rec.Timestamp.After(*last) {
			t := rec.Timestamp
			last = &t
		}
	}
	return last, nil
}

// TotalActuations counts all deliveries across all time.
func (m *MemoryLedger) TotalActuations(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actuations), nil
}

// EmergencyStopActive reads the emergency-stop flag.
func (m *MemoryLedger) EmergencyStopActive(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergencyStop, nil
}

// SetEmergencyStop writes the emergency-stop flag.
func (m *MemoryLedger) SetEmergencyStop(_ context.Context, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = active
	return nil
}

// Stats aggregates fact-check history across all sessions.
func (m *MemoryLedger) Stats(_ context.Context) (*domain.OverallStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.OverallStats{
		TotalClaims:     len(m.factChecks),
		TotalActuations: len(m.actuations),
	}
	if stats.TotalClaims == 0 {
		return stats, nil
	}
	trueCount, falseCount := 0, 0
	for _, fc := range m.factChecks {
		switch fc.Verdict {
		case domain.VerdictTrue:
			trueCount++
		case domain.VerdictFalse:
			falseCount++
		}
	}
	stats.TruthRate = float64(trueCount) / float64(stats.TotalClaims)
	stats.FalseRate = float64(falseCount) / float64(stats.TotalClaims)
	return stats, nil
}

// Ping always succeeds for the in-memory ledger.
func (m *MemoryLedger) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory ledger.
func (m *MemoryLedger) Close() error { return nil }
