package safety

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/akoval/verax/internal/domain"
	"github.com/akoval/verax/internal/store"
)

func newTestGovernor(t *testing.T, ledger store.Ledger, now *time.Time) *Governor {
	t.Helper()
	g, err := New(context.Background(), ledger, Config{
		Cooldown:   5 * time.Second,
		MaxPerHour: 10,
	})
	if err != nil {
		t.Fatalf("New governor: %v", err)
	}
	g.SetClock(func() time.Time { return *now })
	return g
}

func deliverOK(context.Context) error { return nil }

func TestGovernor_AllowsFirstActuation(t *testing.T) {
	now := time.Now()
	g := newTestGovernor(t, store.NewMemory(), &now)

	decision, err := g.CanActuate(context.Background())
	if err != nil {
		t.Fatalf("CanActuate: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("Expected first actuation to be allowed, denied with %q", decision.Reason)
	}
	if remaining := g.CooldownRemaining(); remaining != 0 {
		t.Errorf("Expected zero cooldown before any actuation, got %v", remaining)
	}
}

func TestGovernor_CooldownEnforced(t *testing.T) {
	now := time.Now()
	ledger := store.NewMemory()
	g := newTestGovernor(t, ledger, &now)

	outcome, err := g.Actuate(context.Background(), 30, "the moon is cheese", deliverOK)
	if err != nil {
		t.Fatalf("Actuate: %v", err)
	}
	if !outcome.Delivered {
		t.Fatal("Expected first actuation to be delivered")
	}

	now = now.Add(2 * time.Second)
	decision, err := g.CanActuate(context.Background())
	if err != nil {
		t.Fatalf("CanActuate: %v", err)
	}
	if decision.Allowed {
		t.Error("Expected denial 2s into a 5s cooldown")
	}
	if decision.Reason != ReasonCooldown {
		t.Errorf("Expected reason %q, got %q", ReasonCooldown, decision.Reason)
	}
	if remaining := g.CooldownRemaining(); remaining != 3*time.Second {
		t.Errorf("Expected 3s cooldown remaining, got %v", remaining)
	}

	now = now.Add(4 * time.Second)
	decision, err = g.CanActuate(context.Background())
	if err != nil {
		t.Fatalf("CanActuate: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("Expected cooldown to have elapsed, denied with %q", decision.Reason)
	}
}

func TestGovernor_HourlyCeiling(t *testing.T) {
	now := time.Now()
	ledger := store.NewMemory()
	g := newTestGovernor(t, ledger, &now)

	// Fill the window with deliveries spaced past the cooldown.
	for i := 0; i < 10; i++ {
		outcome, err := g.Actuate(context.Background(), 30, fmt.Sprintf("claim %d", i), deliverOK)
		if err != nil {
			t.Fatalf("Actuate %d: %v", i, err)
		}
		if !outcome.Delivered {
			t.Fatalf("Actuate %d denied: %q", i, outcome.Decision.Reason)
		}
		now = now.Add(6 * time.Second)
	}

	decision, err := g.CanActuate(context.Background())
	if err != nil {
		t.Fatalf("CanActuate: %v", err)
	}
	if decision.Allowed {
		t.Error("Expected 11th actuation to be denied by the hourly ceiling")
	}
	if decision.Reason != ReasonHourlyLimit {
		t.Errorf("Expected reason %q, got %q", ReasonHourlyLimit, decision.Reason)
	}

	// Advance until the oldest record ages out of the trailing hour.
	now = now.Add(time.Hour)
	decision, err = g.CanActuate(context.Background())
	if err != nil {
		t.Fatalf("CanActuate: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("Expected allowance after window aged out, denied with %q", decision.Reason)
	}
}

func TestGovernor_EmergencyStopLatches(t *testing.T) {
	now := time.Now()
	ledger := store.NewMemory()
	g := newTestGovernor(t, ledger, &now)

	if err := g.EmergencyStop(context.Background()); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}

	decision, err := g.CanActuate(context.Background())
	if err != nil {
		t.Fatalf("CanActuate: %v", err)
	}
	if decision.Allowed {
		t.Error("Expected denial after emergency stop")
	}
	if decision.Reason != ReasonEmergencyStop {
		t.Errorf("Expected reason %q, got %q", ReasonEmergencyStop, decision.Reason)
	}

	outcome, err := g.Actuate(context.Background(), 30, "claim", func(context.Context) error {
		t.Fatal("deliver must not run while emergency-stopped")
		return nil
	})
	if err != nil {
		t.Fatalf("Actuate: %v", err)
	}
	if outcome.Delivered {
		t.Error("Expected no delivery while emergency-stopped")
	}
}

func TestGovernor_EmergencyStopSurvivesRestart(t *testing.T) {
	now := time.Now()
	ledger := store.NewMemory()
	g := newTestGovernor(t, ledger, &now)

	if err := g.EmergencyStop(context.Background()); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}

	// Simulated process restart: a fresh governor loads from the same ledger.
	reloaded := newTestGovernor(t, ledger, &now)
	if !reloaded.Stopped() {
		t.Error("Expected emergency stop to survive reload from ledger")
	}
	decision, err := reloaded.CanActuate(context.Background())
	if err != nil {
		t.Fatalf("CanActuate: %v", err)
	}
	if decision.Allowed {
		t.Error("Expected reloaded governor to deny actuation")
	}
}

func TestGovernor_CooldownSurvivesRestart(t *testing.T) {
	now := time.Now()
	ledger := store.NewMemory()
	g := newTestGovernor(t, ledger, &now)

	if _, err := g.Actuate(context.Background(), 30, "claim", deliverOK); err != nil {
		t.Fatalf("Actuate: %v", err)
	}

	now = now.Add(2 * time.Second)
	reloaded := newTestGovernor(t, ledger, &now)
	decision, err := reloaded.CanActuate(context.Background())
	if err != nil {
		t.Fatalf("CanActuate: %v", err)
	}
	if decision.Allowed {
		t.Error("Expected reloaded governor to still be in cooldown")
	}
	if decision.Reason != ReasonCooldown {
		t.Errorf("Expected reason %q, got %q", ReasonCooldown, decision.Reason)
	}
}

func TestGovernor_FailedDeliveryNotRecorded(t *testing.T) {
	now := time.Now()
	ledger := store.NewMemory()
	g := newTestGovernor(t, ledger, &now)

	outcome, err := g.Actuate(context.Background(), 30, "claim", func(context.Context) error {
		return errors.New("device offline")
	})
	if err != nil {
		t.Fatalf("Actuate: %v", err)
	}
	if outcome.Delivered {
		t.Error("Expected Delivered=false for a failed delivery")
	}
	if outcome.DeliverErr == nil {
		t.Error("Expected DeliverErr to be set")
	}

	count, err := ledger.TotalActuations(context.Background())
	if err != nil {
		t.Fatalf("TotalActuations: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no actuation records after failed delivery, got %d", count)
	}
	if remaining := g.CooldownRemaining(); remaining != 0 {
		t.Errorf("Expected no cooldown after failed delivery, got %v", remaining)
	}
}

// faultyLedger fails actuation reads and writes to exercise fail-closed paths.
type faultyLedger struct {
	*store.MemoryLedger
	failCount  bool
	failAppend bool
}

func (f *faultyLedger) CountActuationsInWindow(ctx context.Context, start, end time.Time) (int, error) {
	if f.failCount {
		return 0, errors.New("ledger unavailable")
	}
	return f.MemoryLedger.CountActuationsInWindow(ctx, start, end)
}

func (f *faultyLedger) AppendActuation(ctx context.Context, rec *domain.ActuationRecord) error {
	if f.failAppend {
		return errors.New("ledger unavailable")
	}
	return f.MemoryLedger.AppendActuation(ctx, rec)
}

func TestGovernor_FailsClosedOnLedgerReadError(t *testing.T) {
	now := time.Now()
	ledger := &faultyLedger{MemoryLedger: store.NewMemory(), failCount: true}
	g := newTestGovernor(t, ledger, &now)

	delivered := false
	outcome, err := g.Actuate(context.Background(), 30, "claim", func(context.Context) error {
		delivered = true
		return nil
	})
	if err == nil {
		t.Fatal("Expected error when the rate window cannot be read")
	}
	if outcome.Decision.Allowed {
		t.Error("Expected denial when the rate window cannot be read")
	}
	if delivered {
		t.Error("deliver must not run when the safety check errored")
	}
}

func TestGovernor_RecordWriteFailurePropagates(t *testing.T) {
	now := time.Now()
	ledger := &faultyLedger{MemoryLedger: store.NewMemory(), failAppend: true}
	g := newTestGovernor(t, ledger, &now)

	outcome, err := g.Actuate(context.Background(), 30, "claim", deliverOK)
	if err == nil {
		t.Fatal("Expected error when the actuation record cannot be written")
	}
	if !outcome.Delivered {
		t.Error("Delivery did happen; outcome must reflect it")
	}
	// The in-memory cooldown still advances: uncertainty denies the next try.
	if remaining := g.CooldownRemaining(); remaining == 0 {
		t.Error("Expected cooldown to advance even when the record write failed")
	}
}

func TestGovernor_ConcurrentAttemptsRespectCeiling(t *testing.T) {
	now := time.Now()
	ledger := store.NewMemory()
	g, err := New(context.Background(), ledger, Config{
		Cooldown:   time.Nanosecond,
		MaxPerHour: 10,
	})
	if err != nil {
		t.Fatalf("New governor: %v", err)
	}
	g.SetClock(func() time.Time {
		// Each observation is distinct so the nanosecond cooldown never
		// trips; only the hourly ceiling is in play.
		now = now.Add(time.Millisecond)
		return now
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.Actuate(context.Background(), 30, fmt.Sprintf("claim %d", i), deliverOK)
			if err != nil {
				t.Errorf("Actuate: %v", err)
			}
		}(i)
	}
	wg.Wait()

	count, err := ledger.TotalActuations(context.Background())
	if err != nil {
		t.Fatalf("TotalActuations: %v", err)
	}
	if count > 10 {
		t.Errorf("Ceiling breached: %d actuations recorded with a limit of 10", count)
	}
}

func TestGovernor_ResetEmergencyStop(t *testing.T) {
	now := time.Now()
	ledger := store.NewMemory()
	g := newTestGovernor(t, ledger, &now)

	if err := g.EmergencyStop(context.Background()); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}
	if err := g.ResetEmergencyStop(context.Background()); err != nil {
		t.Fatalf("ResetEmergencyStop: %v", err)
	}
	if g.Stopped() {
		t.Error("Expected governor to be unstopped after reset")
	}

	active, err := ledger.EmergencyStopActive(context.Background())
	if err != nil {
		t.Fatalf("EmergencyStopActive: %v", err)
	}
	if active {
		t.Error("Expected persisted flag to be cleared after reset")
	}
}
