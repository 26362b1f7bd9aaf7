package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/akoval/verax/internal/domain"
)

func newTestLedger(t *testing.T) Ledger {
	t.Helper()
	ledger, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := ledger.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return ledger
}

func TestSQLiteLedger_SessionLifecycle(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	start := time.Now()

	session := &domain.Session{ID: "sess-1", StartTime: start}
	if err := ledger.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := ledger.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("Expected session, got nil")
	}
	if got.EndTime != nil {
		t.Error("Expected open session to have nil end time")
	}
	if got.StartTime.UnixMilli() != start.UnixMilli() {
		t.Errorf("Start time mismatch: want %d, got %d", start.UnixMilli(), got.StartTime.UnixMilli())
	}

	intensity := 27
	checks := []*domain.FactCheck{
		{SessionID: "sess-1", CreatedAt: start, Claim: "a", Verdict: domain.VerdictTrue, Confidence: 0.9},
		{SessionID: "sess-1", CreatedAt: start.Add(time.Second), Claim: "b", Verdict: domain.VerdictFalse,
			Confidence: 0.8, Actuated: true, Intensity: &intensity},
		{SessionID: "sess-1", CreatedAt: start.Add(2 * time.Second), Claim: "c", Verdict: domain.VerdictUnverifiable,
			Confidence: 0.2},
	}
	for _, fc := range checks {
		if err := ledger.AppendFactCheck(ctx, fc); err != nil {
			t.Fatalf("AppendFactCheck %q: %v", fc.Claim, err)
		}
		if fc.ID == 0 {
			t.Errorf("Expected assigned ID for %q", fc.Claim)
		}
	}

	end := start.Add(time.Minute)
	summary, err := ledger.CloseSession(ctx, "sess-1", end)
	if err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if summary.TotalClaims != 3 {
		t.Errorf("Expected 3 claims, got %d", summary.TotalClaims)
	}
	if summary.TotalActuations != 1 {
		t.Errorf("Expected 1 actuation, got %d", summary.TotalActuations)
	}
	wantRate := 1.0 / 3.0
	if summary.TruthRate != wantRate {
		t.Errorf("Expected truth rate %v, got %v", wantRate, summary.TruthRate)
	}

	got, err = ledger.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession after close: %v", err)
	}
	if got.EndTime == nil || got.EndTime.UnixMilli() != end.UnixMilli() {
		t.Errorf("Expected end time %d, got %v", end.UnixMilli(), got.EndTime)
	}
	if got.TotalClaims != 3 || got.TotalActuations != 1 || got.TruthRate != wantRate {
		t.Errorf("Stored aggregates diverge from summary: %+v", got)
	}

	listed, err := ledger.ListFactChecks(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListFactChecks: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("Expected 3 fact checks, got %d", len(listed))
	}
	if listed[0].Claim != "a" || listed[2].Claim != "c" {
		t.Errorf("Expected oldest-first order, got %q..%q", listed[0].Claim, listed[2].Claim)
	}
	if listed[1].Intensity == nil || *listed[1].Intensity != intensity {
		t.Errorf("Expected intensity %d on actuated row, got %v", intensity, listed[1].Intensity)
	}
	if listed[0].Intensity != nil {
		t.Errorf("Expected nil intensity on unactuated row, got %d", *listed[0].Intensity)
	}
}

func TestSQLiteLedger_GetSessionMissing(t *testing.T) {
	ledger := newTestLedger(t)

	got, err := ledger.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing session, got %+v", got)
	}

	if _, err := ledger.CloseSession(context.Background(), "nope", time.Now()); err == nil {
		t.Error("Expected error closing a missing session")
	}
}

func TestSQLiteLedger_ListSessionsOrder(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		session := &domain.Session{ID: id, StartTime: base.Add(time.Duration(i) * time.Minute)}
		if err := ledger.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession %s: %v", id, err)
		}
	}

	sessions, err := ledger.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("Expected 3 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "new" || sessions[2].ID != "old" {
		t.Errorf("Expected most-recent-first, got %s..%s", sessions[0].ID, sessions[2].ID)
	}
}

func TestSQLiteLedger_ActuationWindow(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	last, err := ledger.LastActuationTime(ctx)
	if err != nil {
		t.Fatalf("LastActuationTime: %v", err)
	}
	if last != nil {
		t.Errorf("Expected nil last actuation on empty ledger, got %v", last)
	}

	for _, offset := range []time.Duration{0, 10 * time.Minute, 30 * time.Minute} {
		rec := &domain.ActuationRecord{Timestamp: base.Add(offset), Intensity: 30, Claim: "x"}
		if err := ledger.AppendActuation(ctx, rec); err != nil {
			t.Fatalf("AppendActuation: %v", err)
		}
	}

	// Window start is inclusive, end exclusive.
	count, err := ledger.CountActuationsInWindow(ctx, base, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("CountActuationsInWindow: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 in half-open window, got %d", count)
	}

	count, err = ledger.CountActuationsInWindow(ctx, base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("CountActuationsInWindow: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 in wide window, got %d", count)
	}

	total, err := ledger.TotalActuations(ctx)
	if err != nil {
		t.Fatalf("TotalActuations: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected 3 total, got %d", total)
	}

	last, err = ledger.LastActuationTime(ctx)
	if err != nil {
		t.Fatalf("LastActuationTime: %v", err)
	}
	want := base.Add(30 * time.Minute)
	if last == nil || last.UnixMilli() != want.UnixMilli() {
		t.Errorf("Expected last actuation at %d, got %v", want.UnixMilli(), last)
	}
}

func TestSQLiteLedger_EmergencyStopPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ledger, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	ctx := context.Background()

	active, err := ledger.EmergencyStopActive(ctx)
	if err != nil {
		t.Fatalf("EmergencyStopActive: %v", err)
	}
	if active {
		t.Error("Expected emergency stop inactive on a fresh database")
	}

	if err := ledger.SetEmergencyStop(ctx, true); err != nil {
		t.Fatalf("SetEmergencyStop: %v", err)
	}
	if err := ledger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen the same file: the flag must survive.
	reopened, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite reopen: %v", err)
	}
	defer func() {
		if err := reopened.Close(); err != nil {
			t.Errorf("Close reopened: %v", err)
		}
	}()

	active, err = reopened.EmergencyStopActive(ctx)
	if err != nil {
		t.Fatalf("EmergencyStopActive after reopen: %v", err)
	}
	if !active {
		t.Error("Expected emergency stop to persist across reopen")
	}
}

func TestSQLiteLedger_Stats(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	stats, err := ledger.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalClaims != 0 || stats.TruthRate != 0 || stats.FalseRate != 0 {
		t.Errorf("Expected zeroed stats on empty ledger, got %+v", stats)
	}

	if err := ledger.CreateSession(ctx, &domain.Session{ID: "s", StartTime: time.Now()}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	now := time.Now()
	verdicts := []domain.Verdict{
		domain.VerdictTrue, domain.VerdictTrue, domain.VerdictFalse, domain.VerdictUnverifiable,
	}
	for i, v := range verdicts {
		fc := &domain.FactCheck{SessionID: "s", CreatedAt: now, Claim: "c", Verdict: v, Confidence: 0.5}
		if err := ledger.AppendFactCheck(ctx, fc); err != nil {
			t.Fatalf("AppendFactCheck %d: %v", i, err)
		}
	}
	if err := ledger.AppendActuation(ctx, &domain.ActuationRecord{Timestamp: now, Intensity: 30, Claim: "c"}); err != nil {
		t.Fatalf("AppendActuation: %v", err)
	}

	stats, err = ledger.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalClaims != 4 {
		t.Errorf("Expected 4 claims, got %d", stats.TotalClaims)
	}
	if stats.TotalActuations != 1 {
		t.Errorf("Expected 1 actuation, got %d", stats.TotalActuations)
	}
	if stats.TruthRate != 0.5 {
		t.Errorf("Expected truth rate 0.5, got %v", stats.TruthRate)
	}
	if stats.FalseRate != 0.25 {
		t.Errorf("Expected false rate 0.25, got %v", stats.FalseRate)
	}
}
