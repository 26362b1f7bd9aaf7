// Package safety implements the process-wide actuation governor.
//
// The governor is the single authority deciding whether a stimulus may be
// delivered. All orchestrator instances share one governor; the
// decide-deliver-record sequence runs under one lock so two connections can
// never both pass the rate checks and then both record, blowing the ceiling.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/akoval/verax/internal/domain"
	"github.com/akoval/verax/internal/store"
)

// Rate-limit window for the hourly ceiling.
const rateWindow = time.Hour

// Denial reasons reported in Decision.Reason.
const (
	ReasonEmergencyStop = "emergency_stop"
	ReasonCooldown      = "cooldown"
	ReasonHourlyLimit   = "hourly_limit"
)

// Config holds the governor's safety limits.
type Config struct {
	// Cooldown is the minimum spacing between deliveries.
	Cooldown time.Duration
	// MaxPerHour is the ceiling on deliveries in any trailing one-hour window.
	MaxPerHour int
}

// Decision is the outcome of a safety check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Outcome reports what an Actuate call did.
type Outcome struct {
	Decision Decision
	// Delivered is true when the device confirmed the stimulus.
	Delivered bool
	// DeliverErr is set when delivery was attempted and failed. The attempt
	// is then treated as if no actuation occurred: nothing is recorded.
	DeliverErr error
}

// Governor gates every actuation behind the emergency stop, the cooldown,
// and the hourly ceiling. Durable state lives in the ledger; the governor
// keeps only a write-through mirror loaded once at construction.
type Governor struct {
	ledger   store.Ledger
	cooldown time.Duration
	maxHour  int
	now      func() time.Time

	mu            sync.Mutex
	stopped       bool
	lastActuation time.Time // zero if nothing was ever delivered
}

// New constructs a governor, loading the emergency-stop flag and the last
// delivery timestamp from the ledger so limits survive process restarts.
func New(ctx context.Context, ledger store.Ledger, cfg Config) (*Governor, error) {
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive, got %v", cfg.Cooldown)
	}
	if cfg.MaxPerHour <= 0 {
		return nil, fmt.Errorf("max actuations per hour must be positive, got %d", cfg.MaxPerHour)
	}

	stopped, err := ledger.EmergencyStopActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load emergency stop flag: %w", err)
	}
	last, err := ledger.LastActuationTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("load last actuation time: %w", err)
	}

	g := &Governor{
		ledger:   ledger,
		cooldown: cfg.Cooldown,
		maxHour:  cfg.MaxPerHour,
		now:      time.Now,
	}
	g.stopped = stopped
	if last != nil {
		g.lastActuation = *last
	}

	slog.Info("safety governor initialized",
		"emergency_stop", stopped,
		"cooldown", cfg.Cooldown,
		"max_per_hour", cfg.MaxPerHour)
	return g, nil
}

// SetClock overrides the governor's time source. Tests only.
func (g *Governor) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// CanActuate evaluates the safety checks without committing anything.
// A ledger read failure denies the actuation: losing sight of the rate
// history must never allow the ceiling to be bypassed.
func (g *Governor) CanActuate(ctx context.Context) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canActuateLocked(ctx)
}

func (g *Governor) canActuateLocked(ctx context.Context) (Decision, error) {
	if g.stopped {
		return Decision{Reason: ReasonEmergencyStop}, nil
	}

	now := g.now()
	if !g.lastActuation.IsZero() && now.Sub(g.lastActuation) < g.cooldown {
		return Decision{Reason: ReasonCooldown}, nil
	}

	count, err := g.ledger.CountActuationsInWindow(ctx, now.Add(-rateWindow), now)
	if err != nil {
		return Decision{Reason: ReasonHourlyLimit}, fmt.Errorf("count actuations in window: %w", err)
	}
	if count >= g.maxHour {
		return Decision{Reason: ReasonHourlyLimit}, nil
	}

	return Decision{Allowed: true}, nil
}

// Actuate runs the full decide-deliver-record sequence as one critical
// section. deliver is invoked only when every safety check passes, and an
// ActuationRecord is written only after deliver returns nil. The returned
// error reports ledger failures; a failed delivery is reported through
// Outcome.DeliverErr and leaves the rate accounting untouched.
func (g *Governor) Actuate(ctx context.Context, intensity int, claim string, deliver func(context.Context) error) (Outcome, error) {
	if intensity < 1 || intensity > 100 {
		return Outcome{}, fmt.Errorf("intensity %d out of range [1,100]", intensity)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	decision, err := g.canActuateLocked(ctx)
	if err != nil {
		return Outcome{Decision: decision}, err
	}
	if !decision.Allowed {
		slog.Info("actuation denied", "reason", decision.Reason, "claim", claim)
		return Outcome{Decision: decision}, nil
	}

	if err := deliver(ctx); err != nil {
		return Outcome{Decision: decision, DeliverErr: err}, nil
	}

	if err := g.recordLocked(ctx, intensity, claim); err != nil {
		// The stimulus went out but the record write failed. The in-memory
		// cooldown still advances; the caller must treat the governor as
		// compromised and stop actuating.
		return Outcome{Decision: decision, Delivered: true}, err
	}
	return Outcome{Decision: decision, Delivered: true}, nil
}

// RecordActuation durably logs a confirmed delivery and advances the
// cooldown. It must be called only after the device confirmed the stimulus:
// recording without a real delivery corrupts the rate accounting.
func (g *Governor) RecordActuation(ctx context.Context, intensity int, claim string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.recordLocked(ctx, intensity, claim)
}

func (g *Governor) recordLocked(ctx context.Context, intensity int, claim string) error {
	now := g.now()
	rec := &domain.ActuationRecord{Timestamp: now, Intensity: intensity, Claim: claim}
	err := g.ledger.AppendActuation(ctx, rec)
	// Advance the in-memory cooldown even when the write failed: denying the
	// next attempt is the safe direction when durable state is uncertain.
	g.lastActuation = now
	if err != nil {
		return fmt.Errorf("append actuation record: %w", err)
	}
	slog.Info("actuation recorded", "intensity", intensity)
	return nil
}

// EmergencyStop latches the stop flag in memory and durably. There is no
// way back through this interface; reset is an out-of-band administrative
// operation.
func (g *Governor) EmergencyStop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopped = true
	if err := g.ledger.SetEmergencyStop(ctx, true); err != nil {
		// The in-memory flag stays latched regardless.
		return fmt.Errorf("persist emergency stop: %w", err)
	}
	slog.Warn("EMERGENCY STOP activated, all actuations disabled")
	return nil
}

// ResetEmergencyStop clears the latch. Reachable only from the server's
// startup flag, never from the connection control path.
func (g *Governor) ResetEmergencyStop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ledger.SetEmergencyStop(ctx, false); err != nil {
		return fmt.Errorf("clear emergency stop: %w", err)
	}
	g.stopped = false
	slog.Warn("emergency stop reset, actuations re-enabled")
	return nil
}

// Stopped reports whether the emergency stop is latched.
func (g *Governor) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// CooldownRemaining returns the time until the cooldown allows the next
// delivery, floored at zero.
func (g *Governor) CooldownRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastActuation.IsZero() {
		return 0
	}
	remaining := g.cooldown - g.now().Sub(g.lastActuation)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TotalActuations counts all deliveries ever recorded.
func (g *Governor) TotalActuations(ctx context.Context) (int, error) {
	return g.ledger.TotalActuations(ctx)
}
