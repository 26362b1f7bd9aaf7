// Package monitor implements the per-connection session orchestrator: it
// drives transcription, fact-checking, and governor-gated actuation for one
// WebSocket connection.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/akoval/verax/internal/actuate"
	"github.com/akoval/verax/internal/domain"
	"github.com/akoval/verax/internal/factcheck"
	"github.com/akoval/verax/internal/safety"
	"github.com/akoval/verax/internal/store"
	"github.com/akoval/verax/internal/transcribe"
	"github.com/google/uuid"
)

// Notifier delivers boundary messages upward to the connection owner.
type Notifier interface {
	// Notify sends a JSON-encodable message.
	Notify(v any)
	// NotifyBinary sends a raw audio frame (spoken verdicts).
	NotifyBinary(data []byte)
}

// Config holds per-orchestrator tunables.
type Config struct {
	// BaseIntensity is the default stimulus base before the client override.
	BaseIntensity int
	// MinClientIntensity/MaxClientIntensity bound the client override.
	MinClientIntensity int
	MaxClientIntensity int
	// MaxClaimLength rejects oversized one-shot claims.
	MaxClaimLength int

	FactCheckTimeout time.Duration
	ActuationTimeout time.Duration

	// SpeakVerdicts renders false verdicts to audio when a speaker is set.
	SpeakVerdicts bool
}

func (c Config) withDefaults() Config {
	if c.BaseIntensity == 0 {
		c.BaseIntensity = 30
	}
	if c.MinClientIntensity == 0 {
		c.MinClientIntensity = 10
	}
	if c.MaxClientIntensity == 0 {
		c.MaxClientIntensity = 80
	}
	if c.MaxClaimLength == 0 {
		c.MaxClaimLength = 1000
	}
	if c.FactCheckTimeout == 0 {
		c.FactCheckTimeout = 30 * time.Second
	}
	if c.ActuationTimeout == 0 {
		c.ActuationTimeout = 10 * time.Second
	}
	return c
}

// Orchestrator owns one connection's lifecycle. Utterance events are
// forwarded in arrival order; each finalized utterance is evaluated in its
// own goroutine, so a slow fact-check never blocks the audio path. The only
// state shared across connections is the governor and the ledger.
type Orchestrator struct {
	ledger   store.Ledger
	governor *safety.Governor
	checker  factcheck.Checker
	actuator actuate.Port
	stt      transcribe.Port
	speaker  *transcribe.Speaker
	notifier Notifier
	cfg      Config

	mu            sync.Mutex
	stream        transcribe.Stream
	session       *domain.Session
	baseIntensity int
	filter        factcheck.SourceFilter
	consumeDone   chan struct{}
	evals         sync.WaitGroup
}

// New creates an orchestrator for one connection. speaker may be nil.
func New(ledger store.Ledger, governor *safety.Governor, checker factcheck.Checker,
	actuator actuate.Port, stt transcribe.Port, speaker *transcribe.Speaker,
	notifier Notifier, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		ledger:        ledger,
		governor:      governor,
		checker:       checker,
		actuator:      actuator,
		stt:           stt,
		speaker:       speaker,
		notifier:      notifier,
		cfg:           cfg,
		baseIntensity: cfg.BaseIntensity,
		filter:        factcheck.FilterAll,
	}
}

// StartMonitoring opens a session and a live transcription stream.
func (o *Orchestrator) StartMonitoring(ctx context.Context) {
	o.mu.Lock()
	if o.stream != nil {
		o.mu.Unlock()
		o.notifyError("monitoring is already active")
		return
	}
	o.mu.Unlock()

	session := &domain.Session{ID: uuid.NewString(), StartTime: time.Now()}
	if err := o.ledger.CreateSession(ctx, session); err != nil {
		slog.Error("failed to create session", "error", err)
		o.notifyError("failed to start monitoring")
		return
	}

	stream, err := o.stt.Open(ctx, transcribe.DefaultFormat())
	if err != nil {
		slog.Error("failed to open transcription stream", "session_id", session.ID, "error", err)
		o.closeSession(session.ID)
		o.notifyError("failed to start monitoring")
		return
	}

	done := make(chan struct{})
	o.mu.Lock()
	o.stream = stream
	o.session = session
	o.consumeDone = done
	o.mu.Unlock()

	go o.consumeEvents(stream, session.ID, done)

	slog.Info("monitoring started", "session_id", session.ID)
	o.notifier.Notify(successMsg{Type: "success", Message: "Monitoring started"})
}

// consumeEvents forwards utterance events upward and spawns an evaluation
// per finalized utterance. Evaluations run concurrently and may complete
// out of order; each carries its own claim text so results never cross.
func (o *Orchestrator) consumeEvents(stream transcribe.Stream, sessionID string, done chan struct{}) {
	defer close(done)
	events := stream.Events()
	errs := stream.Errors()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			msgType := "transcript_interim"
			if ev.IsFinal {
				msgType = "transcript_final"
			}
			o.notifier.Notify(transcriptMsg{Type: msgType, Text: ev.Text, Timestamp: ev.Timestamp.UnixMilli()})

			if ev.IsFinal {
				claim := ev.Text
				o.evals.Add(1)
				go func() {
					defer o.evals.Done()
					o.evaluate(sessionID, claim)
				}()
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			slog.Warn("transcription stream error", "session_id", sessionID, "error", err)
			o.notifyError("transcription error: " + err.Error())
		}
	}
}

// SendAudio forwards one raw audio frame to the open transcription stream.
// Frames arriving while no stream is open are dropped.
func (o *Orchestrator) SendAudio(ctx context.Context, frame []byte) {
	o.mu.Lock()
	stream := o.stream
	o.mu.Unlock()
	if stream == nil {
		slog.Debug("dropping audio frame: monitoring not active")
		return
	}
	if err := stream.Send(ctx, frame); err != nil {
		slog.Warn("failed to forward audio frame", "error", err)
	}
}

// evaluate runs the fact-check -> governor -> actuation -> record pipeline
// for one finalized utterance. Failures are localized to this utterance.
// The context is detached from the connection: an evaluation in flight when
// the session stops still runs to completion and writes its record.
func (o *Orchestrator) evaluate(sessionID, claim string) {
	o.mu.Lock()
	base := o.baseIntensity
	filter := o.filter
	o.mu.Unlock()

	o.notifier.Notify(factCheckStartedMsg{Type: "fact_check_started", Claim: claim})

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.FactCheckTimeout)
	defer cancel()

	result, err := o.checker.Check(ctx, claim, filter)
	if err != nil {
		slog.Error("fact check failed", "session_id", sessionID, "error", err)
		o.notifyError("fact-checking error: " + err.Error())
		return
	}

	o.notifier.Notify(factCheckResultMsg{
		Type:       "fact_check_result",
		Claim:      claim,
		Verdict:    string(result.Verdict),
		Confidence: result.Confidence,
		Evidence:   result.Evidence,
		Citations:  result.Citations,
	})

	fc := &domain.FactCheck{
		SessionID:  sessionID,
		CreatedAt:  time.Now(),
		Claim:      claim,
		Verdict:    result.Verdict,
		Confidence: result.Confidence,
		Evidence:   result.Evidence,
	}

	if result.Verdict == domain.VerdictFalse {
		o.actuateForClaim(fc, base, result.Confidence)
	}

	if err := o.ledger.AppendFactCheck(ctx, fc); err != nil {
		slog.Error("failed to record fact check", "session_id", sessionID, "error", err)
		o.notifyError("failed to record fact check")
	}
}

// actuateForClaim runs the governor-gated delivery for a false claim and
// fills in the fact-check's actuation fields on success.
func (o *Orchestrator) actuateForClaim(fc *domain.FactCheck, base int, confidence float64) {
	intensity := domain.Intensity(base, confidence)

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ActuationTimeout)
	defer cancel()

	outcome, err := o.governor.Actuate(ctx, intensity, fc.Claim, func(ctx context.Context) error {
		return o.actuator.Deliver(ctx, actuate.KindZap, intensity, "False claim: "+fc.Claim)
	})
	if err != nil {
		// Ledger trouble inside the governor: fail closed and surface it.
		slog.Error("safety governor error", "error", err)
		o.notifyError("safety check unavailable, actuation suppressed")
	}
	if outcome.DeliverErr != nil {
		slog.Error("stimulus delivery failed", "error", outcome.DeliverErr)
		o.notifyError("stimulus delivery failed")
	}
	if !outcome.Delivered {
		return
	}

	fc.Actuated = true
	fc.Intensity = &intensity

	o.notifier.Notify(actuationDeliveredMsg{
		Type:      "actuation_delivered",
		Intensity: intensity,
		Reason:    fmt.Sprintf("False claim detected (%d%% confidence)", int(confidence*100+0.5)),
	})
	o.notifySafetyStatus(ctx)

	if o.cfg.SpeakVerdicts && o.speaker != nil {
		if audio, err := o.speaker.Speak(ctx, "That claim is false."); err != nil {
			slog.Warn("failed to render verdict audio", "error", err)
		} else {
			o.notifier.NotifyBinary(audio)
		}
	}
}

// StopMonitoring tears down the stream and closes the session.
func (o *Orchestrator) StopMonitoring(ctx context.Context) {
	if !o.stop(ctx) {
		o.notifyError("monitoring is not active")
		return
	}
	o.notifier.Notify(successMsg{Type: "success", Message: "Monitoring stopped"})
}

// stop closes the stream, waits for in-flight evaluations to write their
// records, then closes the session. Returns false when nothing was active.
func (o *Orchestrator) stop(ctx context.Context) bool {
	o.mu.Lock()
	stream := o.stream
	session := o.session
	done := o.consumeDone
	o.stream = nil
	o.session = nil
	o.consumeDone = nil
	o.mu.Unlock()

	if stream == nil {
		return false
	}

	if err := stream.Close(); err != nil {
		slog.Warn("failed to close transcription stream", "session_id", session.ID, "error", err)
	}
	<-done
	// Evaluations already dispatched keep running: an actuation cannot be
	// recalled once sent, so their records must land before aggregation.
	o.evals.Wait()

	o.closeSession(session.ID)
	return true
}

// closeSession is best-effort: a close failure is reported but never blocks
// stream teardown.
func (o *Orchestrator) closeSession(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := o.ledger.CloseSession(ctx, sessionID, time.Now())
	if err != nil {
		slog.Error("failed to close session", "session_id", sessionID, "error", err)
		return
	}
	slog.Info("session closed", "session_id", sessionID,
		"total_claims", summary.TotalClaims,
		"total_actuations", summary.TotalActuations,
		"truth_rate", summary.TruthRate)
}

// EmergencyStop latches the process-wide stop, tears down any active
// monitoring, and reports the denied safety status. The connection stays up:
// transcription and fact-checking may resume, actuation never does.
func (o *Orchestrator) EmergencyStop(ctx context.Context) {
	if err := o.governor.EmergencyStop(ctx); err != nil {
		slog.Error("failed to persist emergency stop", "error", err)
		o.notifyError("emergency stop engaged but could not be persisted")
	}
	o.stop(ctx)
	o.notifier.Notify(successMsg{Type: "success", Message: "Emergency stop activated - all actuations disabled"})
	o.notifySafetyStatus(ctx)
}

// CheckClaim performs a one-shot text fact-check with its own transient
// session: functionally a monitoring session of cardinality one.
func (o *Orchestrator) CheckClaim(ctx context.Context, text, sourceFilter string) {
	if text == "" {
		o.notifyError("claim text is required")
		return
	}
	if len(text) > o.cfg.MaxClaimLength {
		o.notifyError(fmt.Sprintf("claim text exceeds %d characters", o.cfg.MaxClaimLength))
		return
	}
	filter, err := factcheck.ParseSourceFilter(sourceFilter)
	if err != nil {
		o.notifyError(err.Error())
		return
	}
	o.mu.Lock()
	o.filter = filter
	o.mu.Unlock()

	session := &domain.Session{ID: uuid.NewString(), StartTime: time.Now()}
	if err := o.ledger.CreateSession(ctx, session); err != nil {
		slog.Error("failed to create one-shot session", "error", err)
		o.notifyError("failed to check claim")
		return
	}
	// The session closes even when the evaluation errors out.
	defer o.closeSession(session.ID)

	o.evaluate(session.ID, text)
}

// SetBaseIntensity applies a client-supplied base intensity override,
// clamped to the configured bounds before it ever reaches the intensity
// formula.
func (o *Orchestrator) SetBaseIntensity(v float64) {
	base := int(v)
	if base < o.cfg.MinClientIntensity {
		base = o.cfg.MinClientIntensity
	}
	if base > o.cfg.MaxClientIntensity {
		base = o.cfg.MaxClientIntensity
	}
	o.mu.Lock()
	o.baseIntensity = base
	o.mu.Unlock()
}

// SetSourceFilter applies a client-supplied source filter.
func (o *Orchestrator) SetSourceFilter(s string) error {
	filter, err := factcheck.ParseSourceFilter(s)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.filter = filter
	o.mu.Unlock()
	return nil
}

// Close releases the orchestrator when its connection goes away. Any open
// session is closed best-effort; in-flight evaluations finish and record.
func (o *Orchestrator) Close(ctx context.Context) {
	o.stop(ctx)
}

// notifySafetyStatus reports the governor's current view upward.
func (o *Orchestrator) notifySafetyStatus(ctx context.Context) {
	count, err := o.governor.TotalActuations(ctx)
	if err != nil {
		slog.Warn("failed to count actuations", "error", err)
	}
	decision, err := o.governor.CanActuate(ctx)
	if err != nil {
		slog.Warn("safety status check failed", "error", err)
	}
	o.notifier.Notify(safetyStatusMsg{
		Type:           "safety_status",
		ActuationCount: count,
		CanActuate:     decision.Allowed,
		CooldownMs:     o.governor.CooldownRemaining().Milliseconds(),
		DeniedReason:   decision.Reason,
	})
}

func (o *Orchestrator) notifyError(message string) {
	o.notifier.Notify(errorMsg{Type: "error", Message: message})
}

// NotifySafetyStatus exposes the status report for the connection greeting.
func (o *Orchestrator) NotifySafetyStatus(ctx context.Context) {
	o.notifySafetyStatus(ctx)
}
