// ABOUTME: SQLite-backed audit log of dispatched calls
// ABOUTME: Records method, request id, error code, and duration per dispatch

package calllog

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harper/rpcbridge/internal/logger"
)

//go:embed schema.sql
var schemaSQL string

// Log writes one row per dispatched call. It satisfies the dispatcher's
// Recorder capability; the dispatcher works fine without one.
type Log struct {
	conn *sql.DB
}

// Entry is one recorded call.
type Entry struct {
	ID        int64
	Method    string
	RequestID string
	ErrorCode int
	Duration  time.Duration
	CreatedAt time.Time
}

// Open opens or creates the SQLite call log.
func Open(path string) (*Log, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open call log: %w", err)
	}

	// WAL mode so concurrent batch items do not serialize on the journal.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("call log initialized at %s", path)
	return &Log{conn: conn}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

// RecordCall logs one dispatched call. Code 0 means success. Recording
// failures are logged and swallowed; auditing must never fail a dispatch.
func (l *Log) RecordCall(method, requestID string, code int, elapsed time.Duration) {
	_, err := l.conn.Exec(
		`INSERT INTO calls (method, request_id, error_code, duration_us) VALUES (?, ?, ?, ?)`,
		method, requestID, code, elapsed.Microseconds(),
	)
	if err != nil {
		logger.Warn("failed to record call %s: %v", method, err)
	}
}

// Recent returns the most recent entries, newest first.
func (l *Log) Recent(limit int) ([]Entry, error) {
	rows, err := l.conn.Query(
		`SELECT id, method, request_id, error_code, duration_us, created_at
		 FROM calls ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var requestID sql.NullString
		var durationUS int64

		if err := rows.Scan(&e.ID, &e.Method, &requestID, &e.ErrorCode, &durationUS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		if requestID.Valid {
			e.RequestID = requestID.String
		}
		e.Duration = time.Duration(durationUS) * time.Microsecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
