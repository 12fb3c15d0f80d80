// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func mockTable(t *testing.T) (*SQLTable, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS logs").WillReturnResult(sqlmock.NewResult(0, 0))
	table, err := NewSQLTable(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	return table, mock
}

func TestSQLTableAppend(t *testing.T) {
	table, mock := mockTable(t)

	ts := time.Now().UTC()
	ms := int64(42)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO logs")).
		WithArgs("log_1", "fn", ts, "info", "hello", `{"k":"v"}`, "req_1", ms).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := table.Append(context.Background(), Entry{
		ID:         "log_1",
		FunctionID: "fn",
		Timestamp:  ts,
		Level:      Info,
		Message:    "hello",
		Metadata:   map[string]any{"k": "v"},
		RequestID:  "req_1",
		DurationMs: &ms,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLTableAppendNullableFields(t *testing.T) {
	table, mock := mockTable(t)

	ts := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO logs")).
		WithArgs("log_2", "fn", ts, "warn", "bare", nil, "", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := table.Append(context.Background(), Entry{
		ID: "log_2", FunctionID: "fn", Timestamp: ts, Level: Warn, Message: "bare",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLTableDeleteFunction(t *testing.T) {
	table, mock := mockTable(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM logs WHERE function_id = ?")).
		WithArgs("fn").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := table.DeleteFunction(context.Background(), "fn"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLTableDeleteOlderThan(t *testing.T) {
	table, mock := mockTable(t)

	cutoff := time.Now().UTC().Add(-time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM logs WHERE timestamp < ?")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := table.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("deleted = %d, want 5", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLTableLoadFunction(t *testing.T) {
	table, mock := mockTable(t)

	ts := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "function_id", "timestamp", "level", "message", "metadata", "request_id", "duration_ms"}).
		AddRow("log_1", "fn", ts, "info", "hello", `{"k":"v"}`, "req_1", int64(10)).
		AddRow("log_2", "fn", ts.Add(time.Second), "error", "boom", nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, function_id, timestamp, level, message, metadata, request_id, duration_ms FROM logs")).
		WithArgs("fn").
		WillReturnRows(rows)

	entries, err := table.LoadFunction(context.Background(), "fn")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("loaded %d entries", len(entries))
	}
	if entries[0].Metadata["k"] != "v" {
		t.Errorf("metadata = %v", entries[0].Metadata)
	}
	if entries[0].DurationMs == nil || *entries[0].DurationMs != 10 {
		t.Error("durationMs should round-trip")
	}
	if entries[1].Metadata != nil || entries[1].DurationMs != nil {
		t.Error("null columns should stay nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAggregatorSinkReceivesCaptures(t *testing.T) {
	table, mock := mockTable(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO logs")).
		WithArgs(sqlmock.AnyArg(), "fn", sqlmock.AnyArg(), "info", "durable", nil, "", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	a := New(0)
	a.AttachSink(table)
	capture(t, a, "fn", Info, "durable")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
