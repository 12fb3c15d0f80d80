// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Sink receives every captured entry for durable storage, backing the
// in-memory index with the persistent logs table A sink
// failure never fails the capture; the in-memory index is authoritative
// for queries within a process lifetime.
type Sink interface {
	Append(ctx context.Context, e Entry) error
	DeleteFunction(ctx context.Context, functionID string) error
	Close() error
}

// AttachSink installs sink; each subsequent Capture also appends to it.
func (a *Aggregator) AttachSink(sink Sink) {
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()
}

// SQLTable persists log entries to the logs table over
// database/sql: columns (id, function_id, timestamp, level, message,
// metadata, request_id, duration_ms, created_at) with indexes on function_id,
// timestamp, (function_id, timestamp), and request_id.
type SQLTable struct {
	db *sql.DB
}

const logsSchema = `
CREATE TABLE IF NOT EXISTS logs (
	id TEXT PRIMARY KEY,
	function_id TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	metadata TEXT,
	request_id TEXT,
	duration_ms INTEGER,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_logs_function_id ON logs(function_id);
CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_logs_function_timestamp ON logs(function_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_logs_request_id ON logs(request_id);
`

// OpenSQLiteTable opens (creating if needed) a SQLite-backed logs table at
// dbPath. SQLite works best with a single connection.
func OpenSQLiteTable(ctx context.Context, dbPath string) (*SQLTable, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	table, err := NewSQLTable(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return table, nil
}

// NewSQLTable wraps an already-open db, creating the schema if absent.
func NewSQLTable(ctx context.Context, db *sql.DB) (*SQLTable, error) {
	if _, err := db.ExecContext(ctx, logsSchema); err != nil {
		return nil, fmt.Errorf("failed to create logs schema: %w", err)
	}
	return &SQLTable{db: db}, nil
}

// Append inserts one entry.
func (t *SQLTable) Append(ctx context.Context, e Entry) error {
	var metadataJSON any
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode log metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	var durationMs any
	if e.DurationMs != nil {
		durationMs = *e.DurationMs
	}

	_, err := t.db.ExecContext(ctx,
		`INSERT INTO logs (id, function_id, timestamp, level, message, metadata, request_id, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.FunctionID, e.Timestamp, string(e.Level), e.Message, metadataJSON, e.RequestID, durationMs)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

// DeleteFunction removes every row for functionID.
func (t *SQLTable) DeleteFunction(ctx context.Context, functionID string) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM logs WHERE function_id = ?`, functionID)
	if err != nil {
		return fmt.Errorf("failed to delete log entries: %w", err)
	}
	return nil
}

// DeleteOlderThan removes rows whose timestamp falls before cutoff,
// returning the number deleted. ApplyRetention and ScheduleRetention do not
// call it; they prune only the in-memory indexes.
func (t *SQLTable) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM logs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to apply log retention: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LoadFunction reads functionID's rows back in timestamp order, used to
// warm the in-memory index after a restart.
func (t *SQLTable) LoadFunction(ctx context.Context, functionID string) ([]Entry, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, function_id, timestamp, level, message, metadata, request_id, duration_ms FROM logs WHERE function_id = ? ORDER BY timestamp ASC`,
		functionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e            Entry
			level        string
			metadataJSON sql.NullString
			requestID    sql.NullString
			durationMs   sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.FunctionID, &e.Timestamp, &level, &e.Message, &metadataJSON, &requestID, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Level = Level(level)
		if metadataJSON.Valid && metadataJSON.String != "" {
			var meta map[string]any
			if err := json.Unmarshal([]byte(metadataJSON.String), &meta); err == nil {
				e.Metadata = meta
			}
		}
		if requestID.Valid {
			e.RequestID = requestID.String
		}
		if durationMs.Valid {
			ms := durationMs.Int64
			e.DurationMs = &ms
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (t *SQLTable) Close() error { return t.db.Close() }
