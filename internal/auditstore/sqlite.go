// Package auditstore persists an append-only audit trail of mutating storage
// operations in SQLite.
package auditstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Operation identifies the kind of mutating operation recorded.
type Operation string

const (
	OpWrite      Operation = "write"
	OpDelete     Operation = "delete"
	OpInvalidate Operation = "invalidate"
)

// Record is one audit entry.
type Record struct {
	ID        int64
	Operation Operation
	Segment   string
	Key       string
	Caller    string
	SizeBytes int64
	Success   bool
	Timestamp time.Time
}

// Store writes and queries audit records.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (and initializes) the audit database. Use ":memory:" for an
// in-memory database, or a file path for persistent storage.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation TEXT NOT NULL,
		segment TEXT NOT NULL,
		key TEXT NOT NULL,
		caller TEXT,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_segment ON audit(segment);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records one mutating operation.
func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit (operation, segment, key, caller, size_bytes, success, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		string(rec.Operation), rec.Segment, rec.Key, rec.Caller, rec.SizeBytes, boolToInt(rec.Success), ts.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Recent returns up to limit records for a segment, newest first. An empty
// segment matches everything.
func (s *Store) Recent(ctx context.Context, segment string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "SELECT id, operation, segment, key, caller, size_bytes, success, timestamp FROM audit"
	args := []any{}
	if segment != "" {
		query += " WHERE segment = ?"
		args = append(args, segment)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var op string
		var success int
		var ts int64
		if err := rows.Scan(&rec.ID, &op, &rec.Segment, &rec.Key, &rec.Caller, &rec.SizeBytes, &success, &ts); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Operation = Operation(op)
		rec.Success = success != 0
		rec.Timestamp = time.Unix(ts, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
