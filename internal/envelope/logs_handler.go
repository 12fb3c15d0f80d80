// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package envelope

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/ids"
	"github.com/cascadehq/cascade-engine/internal/logaggregator"
)

// LogEntryBody is the wire shape of one inbound log entry.
type LogEntryBody struct {
	FunctionID string         `json:"functionId"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	DurationMs *int64         `json:"durationMs,omitempty"`
}

func (b LogEntryBody) toEntry() logaggregator.Entry {
	e := logaggregator.Entry{
		FunctionID: b.FunctionID,
		Level:      logaggregator.Level(b.Level),
		Message:    b.Message,
		Metadata:   b.Metadata,
		RequestID:  b.RequestID,
		DurationMs: b.DurationMs,
	}
	if b.Timestamp != nil {
		e.Timestamp = *b.Timestamp
	}
	return e
}

// CaptureLogsBody accepts either a single entry or a batch.
type CaptureLogsBody struct {
	LogEntryBody
	Entries []LogEntryBody `json:"entries,omitempty"`
}

// HandleCaptureLogs implements POST /logs: a single entry, or a batch via
// the entries field. Batch capture has no atomicity guarantee beyond
// per-entry.
func (s *Service) HandleCaptureLogs(c *gin.Context) {
	requestID := ids.NewRequestID()

	var body CaptureLogsBody
	if err := decodeJSON(c.Request.Body, &body); err != nil {
		WriteError(c, requestID, err)
		return
	}

	if len(body.Entries) > 0 {
		entries := make([]logaggregator.Entry, len(body.Entries))
		for i, b := range body.Entries {
			entries[i] = b.toEntry()
		}
		stored, errs := s.Logs.CaptureBatch(entries)
		resp := gin.H{"captured": len(stored)}
		if len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, err := range errs {
				msgs[i] = err.Error()
			}
			resp["failed"] = msgs
		}
		c.JSON(http.StatusCreated, resp)
		return
	}

	stored, err := s.Logs.Capture(body.toEntry())
	if err != nil {
		WriteError(c, requestID, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": stored})
}

// HandleQueryLogs implements GET /logs?functionId=...&limit=...&cursor=...
// with optional level, order, since, and until query parameters.
func (s *Service) HandleQueryLogs(c *gin.Context) {
	requestID := ids.NewRequestID()

	filter := logaggregator.Filter{
		FunctionID: c.Query("functionId"),
		Level:      logaggregator.Level(c.Query("level")),
		Order:      logaggregator.Order(c.Query("order")),
		Cursor:     c.Query("cursor"),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(c, requestID, cerrors.New(cerrors.InvalidParameter, "invalid limit", nil))
			return
		}
		filter.Limit = n
	}
	if ts, ok := parseTimeParam(c, requestID, "since"); !ok {
		return
	} else if ts != nil {
		filter.Since = ts
	}
	if ts, ok := parseTimeParam(c, requestID, "until"); !ok {
		return
	} else if ts != nil {
		filter.Until = ts
	}

	var page logaggregator.Page
	var err error
	if filter.FunctionID == "" {
		page, err = s.Logs.QueryAll(filter)
	} else {
		page, err = s.Logs.Query(filter)
	}
	if err != nil {
		WriteError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": page.Items, "nextCursor": page.NextCursor, "hasMore": page.HasMore})
}

func parseTimeParam(c *gin.Context, requestID, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		WriteError(c, requestID, cerrors.New(cerrors.InvalidParameter, "invalid "+name+" timestamp", map[string]any{name: raw}))
		return nil, false
	}
	return &ts, true
}

// HandleDeleteLogs implements DELETE /logs/:functionId.
func (s *Service) HandleDeleteLogs(c *gin.Context) {
	removed := s.Logs.DeleteFunctionLogs(c.Param("functionId"))
	c.JSON(http.StatusOK, gin.H{"deleted": removed})
}

// HandleMetrics implements GET /metrics?functionId=..., serving the usage
// accumulator's snapshot plus the log aggregator's per-function error
// rates.
func (s *Service) HandleMetrics(c *gin.Context) {
	functionID := c.Query("functionId")

	resp := gin.H{
		"usage": s.Stats.Snapshot(functionID),
		"logs":  s.Logs.Aggregate("functionId", functionID),
	}
	c.JSON(http.StatusOK, resp)
}
