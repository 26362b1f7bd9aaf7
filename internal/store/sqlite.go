package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/akoval/verax/internal/domain"
	"github.com/akoval/verax/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed ledger.
func NewSQLite(dbPath string) (Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	ledger := &SQLiteLedger{db: db}
	if err := ledger.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return ledger, nil
}

func (s *SQLiteLedger) initSchema() error {
	// Timestamps are stored as Unix milliseconds: the actuation cooldown is
	// sub-second sensitive, so second resolution is not enough.
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		total_claims INTEGER NOT NULL DEFAULT 0,
		total_actuations INTEGER NOT NULL DEFAULT 0,
		truth_rate REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time);

	CREATE TABLE IF NOT EXISTS fact_checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		claim TEXT NOT NULL,
		verdict TEXT NOT NULL,
		confidence REAL NOT NULL,
		evidence TEXT NOT NULL,
		actuated INTEGER NOT NULL DEFAULT 0,
		intensity INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_fact_checks_session ON fact_checks(session_id);

	CREATE TABLE IF NOT EXISTS actuation_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		intensity INTEGER NOT NULL,
		claim TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_actuation_timestamp ON actuation_history(timestamp);

	CREATE TABLE IF NOT EXISTS safety_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		emergency_stop_active INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO safety_state (id, emergency_stop_active) VALUES (1, 0);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteLedger) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession stores a newly opened session.
func (s *SQLiteLedger) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `INSERT INTO sessions (id, start_time) VALUES (?, ?)`
	_, err := s.db.ExecContext(ctx, query, session.ID, session.StartTime.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// CloseSession sets the end time and recomputes the session's aggregates from
// its fact-check rows inside one transaction, so the stored counters can
// never drift from the rows they summarize.
func (s *SQLiteLedger) CloseSession(ctx context.Context, id string, endTime time.Time) (*domain.SessionSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin close session: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("rollback close session", "session_id", id, "error", rbErr)
		}
	}()

	var total, trueCount, actuated int
	row := tx.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN verdict = 'true' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(actuated), 0)
		FROM fact_checks WHERE session_id = ?`, id)
	if err := row.Scan(&total, &trueCount, &actuated); err != nil {
		return nil, fmt.Errorf("aggregate session fact checks: %w", err)
	}

	summary := &domain.SessionSummary{
		TotalClaims:     total,
		TotalActuations: actuated,
	}
	if total > 0 {
		summary.TruthRate = float64(trueCount) / float64(total)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET end_time = ?, total_claims = ?, total_actuations = ?, truth_rate = ?
		WHERE id = ?`,
		endTime.UnixMilli(), summary.TotalClaims, summary.TotalActuations, summary.TruthRate, id)
	if err != nil {
		return nil, fmt.Errorf("update session close: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("session %s not found", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit close session: %w", err)
	}
	return summary, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteLedger) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	query := `
		SELECT id, start_time, end_time, total_claims, total_actuations, truth_rate
		FROM sessions WHERE id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// ListSessions returns all sessions, most recent first.
func (s *SQLiteLedger) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `
		SELECT id, start_time, end_time, total_claims, total_actuations, truth_rate
		FROM sessions ORDER BY start_time DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "sessions")

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var start int64
	var end sql.NullInt64

	err := row.Scan(&session.ID, &start, &end,
		&session.TotalClaims, &session.TotalActuations, &session.TruthRate)
	if err != nil {
		return nil, err
	}

	session.StartTime = time.UnixMilli(start)
	if end.Valid {
		t := time.UnixMilli(end.Int64)
		session.EndTime = &t
	}
	return &session, nil
}

// AppendFactCheck stores one verified claim.
func (s *SQLiteLedger) AppendFactCheck(ctx context.Context, fc *domain.FactCheck) error {
	query := `
		INSERT INTO fact_checks (session_id, created_at, claim, verdict, confidence, evidence, actuated, intensity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var intensity interface{}
	if fc.Intensity != nil {
		intensity = *fc.Intensity
	}

	res, err := s.db.ExecContext(ctx, query,
		fc.SessionID, fc.CreatedAt.UnixMilli(), fc.Claim,
		string(fc.Verdict), fc.Confidence, fc.Evidence,
		boolToInt(fc.Actuated), intensity,
	)
	if err != nil {
		return fmt.Errorf("insert fact check: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		fc.ID = id
	}
	return nil
}

// ListFactChecks returns a session's fact-checks, oldest first.
func (s *SQLiteLedger) ListFactChecks(ctx context.Context, sessionID string) ([]*domain.FactCheck, error) {
	query := `
		SELECT id, session_id, created_at, claim, verdict, confidence, evidence, actuated, intensity
		FROM fact_checks WHERE session_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query fact checks: %w", err)
	}
	defer closeRows(rows, "fact checks")

	var checks []*domain.FactCheck
	for rows.Next() {
		var fc domain.FactCheck
		var createdAt int64
		var verdict string
		var actuated int
		var intensity sql.NullInt64

		if err := rows.Scan(&fc.ID, &fc.SessionID, &createdAt, &fc.Claim,
			&verdict, &fc.Confidence, &fc.Evidence, &actuated, &intensity); err != nil {
			return nil, fmt.Errorf("scan fact check row: %w", err)
		}

		fc.CreatedAt = time.UnixMilli(createdAt)
		fc.Verdict = domain.Verdict(verdict)
		fc.Actuated = actuated == 1
		if intensity.Valid {
			v := int(intensity.Int64)
			fc.Intensity = &v
		}
		checks = append(checks, &fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact checks: %w", err)
	}
	return checks, nil
}

// AppendActuation stores one confirmed stimulus delivery. This is the
// rate-limit write the governor depends on, so transient SQLITE_BUSY
// conflicts are retried with backoff before giving up.
func (s *SQLiteLedger) AppendActuation(ctx context.Context, rec *domain.ActuationRecord) error {
	query := `INSERT INTO actuation_history (timestamp, intensity, claim) VALUES (?, ?, ?)`

	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		res, err := s.db.ExecContext(ctx, query, rec.Timestamp.UnixMilli(), rec.Intensity, rec.Claim)
		if err == nil {
			if id, err := res.LastInsertId(); err == nil {
				rec.ID = id
			}
			return nil
		}
		lastErr = err
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("AppendActuation hit SQLITE_BUSY, retrying", "attempt", i+1, "delay", delay)
		time.Sleep(delay)
	}
	return fmt.Errorf("insert actuation record: %w", lastErr)
}

// CountActuationsInWindow counts deliveries with start <= timestamp < end.
func (s *SQLiteLedger) CountActuationsInWindow(ctx context.Context, start, end time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM actuation_history WHERE timestamp >= ? AND timestamp < ?`
	var count int
	err := s.db.QueryRowContext(ctx, query, start.UnixMilli(), end.UnixMilli()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count actuations in window: %w", err)
	}
	return count, nil
}

// LastActuationTime returns the most recent delivery timestamp.
func (s *SQLiteLedger) LastActuationTime(ctx context.Context) (*time.Time, error) {
	query := `SELECT MAX(timestamp) FROM actuation_history`
	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query).Scan(&ts); err != nil {
		return nil, fmt.Errorf("query last actuation: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	t := time.UnixMilli(ts.Int64)
	return &t, nil
}

// TotalActuations counts all deliveries across all time.
func (s *SQLiteLedger) TotalActuations(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actuation_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count actuations: %w", err)
	}
	return count, nil
}

// EmergencyStopActive reads the persistent emergency-stop flag.
func (s *SQLiteLedger) EmergencyStopActive(ctx context.Context) (bool, error) {
	query := `SELECT emergency_stop_active FROM safety_state WHERE id = 1`
	var active int
	if err := s.db.QueryRowContext(ctx, query).Scan(&active); err != nil {
		return false, fmt.Errorf("query emergency stop flag: %w", err)
	}
	return active == 1, nil
}

// SetEmergencyStop writes the persistent emergency-stop flag.
func (s *SQLiteLedger) SetEmergencyStop(ctx context.Context, active bool) error {
	query := `UPDATE safety_state SET emergency_stop_active = ? WHERE id = 1`
	res, err := s.db.ExecContext(ctx, query, boolToInt(active))
	if err != nil {
		return fmt.Errorf("update emergency stop flag: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("safety state row missing")
	}
	return nil
}

// Stats aggregates fact-check history across all sessions.
func (s *SQLiteLedger) Stats(ctx context.Context) (*domain.OverallStats, error) {
	var total, trueCount, falseCount int
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN verdict = 'true' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN verdict = 'false' THEN 1 ELSE 0 END), 0)
		FROM fact_checks`)
	if err := row.Scan(&total, &trueCount, &falseCount); err != nil {
		return nil, fmt.Errorf("aggregate fact checks: %w", err)
	}

	stats := &domain.OverallStats{TotalClaims: total}
	if total > 0 {
		stats.TruthRate = float64(trueCount) / float64(total)
		stats.FalseRate = float64(falseCount) / float64(total)
	}

	actuations, err := s.TotalActuations(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalActuations = actuations

	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
