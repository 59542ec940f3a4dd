package registry

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// auditSchemaVersion is bumped whenever the calls table's shape changes.
const auditSchemaVersion = 1

const createSchemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

const createCallsTable = `
CREATE TABLE IF NOT EXISTS calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	method TEXT NOT NULL,
	peer_ip TEXT NOT NULL,
	failed INTEGER NOT NULL CHECK (failed IN (0, 1)),
	fault_code INTEGER NOT NULL DEFAULT 0,
	fault_message TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL CHECK (duration_ms >= 0),
	called_at DATETIME NOT NULL
);`

const createCallsIndex = `
CREATE INDEX IF NOT EXISTS idx_calls_time ON calls(called_at DESC);
CREATE INDEX IF NOT EXISTS idx_calls_method ON calls(method, called_at DESC);`

// CallRecord is one row of the call audit log.
type CallRecord struct {
	Method   string
	PeerIP   string
	Failed   bool
	FaultNo  int32
	FaultMsg string
	Duration time.Duration
	At       time.Time
}

// AuditLog persists a record of every dispatched call to SQLite: a
// schema_version row records the schema version, calls are append-only.
type AuditLog struct {
	db *sql.DB
}

// OpenAuditLog opens (creating if necessary) the SQLite audit database at
// path and ensures its schema exists.
func OpenAuditLog(path string) (*AuditLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: ping %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		log.Printf("[WARN] auditlog: failed to enable WAL mode: %v", err)
	}
	if _, err := db.Exec(createSchemaVersionTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: create schema_version: %w", err)
	}
	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", auditSchemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: set schema version: %w", err)
	}
	if _, err := db.Exec(createCallsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: create calls table: %w", err)
	}
	if _, err := db.Exec(createCallsIndex); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: create calls index: %w", err)
	}
	log.Printf("[INFO] auditlog: opened %s (schema v%d)", path, auditSchemaVersion)
	return &AuditLog{db: db}, nil
}

// Close releases the underlying database handle.
func (a *AuditLog) Close() error {
	return a.db.Close()
}

// RecordCall appends one call record. Audit failures never abort a
// dispatch — the caller logs and moves on instead of letting one bad write
// break the call it's auditing.
func (a *AuditLog) RecordCall(rec CallRecord) error {
	const query = `
		INSERT INTO calls (
			method, peer_ip, failed, fault_code, fault_message, duration_ms, called_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	failed := 0
	if rec.Failed {
		failed = 1
	}
	_, err := a.db.Exec(query, rec.Method, rec.PeerIP, failed, rec.FaultNo, rec.FaultMsg,
		rec.Duration.Milliseconds(), rec.At)
	if err != nil {
		return fmt.Errorf("auditlog: insert call: %w", err)
	}
	return nil
}

// RecentCalls returns the most recent limit call records, newest first, for
// the status dashboard.
func (a *AuditLog) RecentCalls(limit int) ([]CallRecord, error) {
	rows, err := a.db.Query(`
		SELECT method, peer_ip, failed, fault_code, fault_message, duration_ms, called_at
		FROM calls ORDER BY called_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("auditlog: query recent calls: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var rec CallRecord
		var failed int
		var durMs int64
		if err := rows.Scan(&rec.Method, &rec.PeerIP, &failed, &rec.FaultNo, &rec.FaultMsg, &durMs, &rec.At); err != nil {
			return nil, fmt.Errorf("auditlog: scan call row: %w", err)
		}
		rec.Failed = failed != 0
		rec.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FailureRate returns the fraction of calls that failed within the lookback
// window, or 0 when no calls were recorded in it.
func (a *AuditLog) FailureRate(lookback time.Duration) (float64, error) {
	row := a.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(failed), 0)
		FROM calls WHERE called_at >= ?`, time.Now().Add(-lookback))
	var total, failed int
	if err := row.Scan(&total, &failed); err != nil {
		return 0, fmt.Errorf("auditlog: failure rate query: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(failed) / float64(total), nil
}
