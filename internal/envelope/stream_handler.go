// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package envelope

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/gin-gonic/gin"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/ids"
	"github.com/cascadehq/cascade-engine/internal/logaggregator"
)

var streamUpgrader = websocket.Upgrader{
	// The stream endpoint is same-origin agnostic; scope enforcement
	// happened in middleware before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleStream implements GET /stream?functionId=...: upgrades to a
// bidirectional WebSocket when the client requests one, falling back to
// server-sent-event framing when the upgrade is rejected or absent
// . Both transports consume the same push-channel
// Subscription, the two-contract resolution of the streaming
// open question.
func (s *Service) HandleStream(c *gin.Context) {
	requestID := ids.NewRequestID()

	functionID := c.Query("functionId")
	if functionID == "" {
		WriteError(c, requestID, cerrors.New(cerrors.MissingRequired, "functionId is required", nil))
		return
	}

	opts := logaggregator.SubscribeOptions{AfterID: c.Query("afterId")}
	if raw := c.Query("level"); raw != "" {
		for _, l := range strings.Split(raw, ",") {
			opts.Levels = append(opts.Levels, logaggregator.Level(strings.TrimSpace(l)))
		}
	}
	if raw := c.Query("tail"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			opts.TailN = n
		}
	}
	if raw := c.Query("heartbeat"); raw != "" {
		if ms, err := ids.ParseDurationMs(raw); err == nil && ms > 0 {
			opts.HeartbeatInterval = time.Duration(ms) * time.Millisecond
		}
	}

	if websocket.IsWebSocketUpgrade(c.Request) {
		conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err == nil {
			s.streamWebSocket(conn, functionID, opts)
			return
		}
		// Upgrade rejected: fall through to SSE framing.
	}
	s.streamSSE(c, functionID, opts)
}

// wsFrame is the message-oriented envelope the WebSocket transport sends:
// one frame per entry, heartbeat, or shutdown notice.
type wsFrame struct {
	Type  string               `json:"type"`
	Entry *logaggregator.Entry `json:"entry,omitempty"`
}

func (s *Service) streamWebSocket(conn *websocket.Conn, functionID string, opts logaggregator.SubscribeOptions) {
	sub := s.Logs.Subscribe(functionID, opts)
	defer sub.Close()
	defer conn.Close()

	// Reads are drained only to observe the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-sub.Shutdown:
			_ = writeFrame(conn, wsFrame{Type: "shutdown"})
			return
		case <-sub.Heartbeat:
			if err := writeFrame(conn, wsFrame{Type: "heartbeat"}); err != nil {
				return
			}
		case entry, ok := <-sub.Entries:
			if !ok {
				_ = writeFrame(conn, wsFrame{Type: "shutdown"})
				return
			}
			if err := writeFrame(conn, wsFrame{Type: "entry", Entry: &entry}); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Service) streamSSE(c *gin.Context, functionID string, opts logaggregator.SubscribeOptions) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		WriteError(c, "", cerrors.New(cerrors.NotImplemented, "streaming is not supported by this connection", nil))
		return
	}

	sub := s.Logs.Subscribe(functionID, opts)
	defer sub.Close()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	flusher.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-sub.Shutdown:
			writeSSEEvent(c, flusher, "shutdown", []byte("{}"))
			return
		case <-sub.Heartbeat:
			// SSE comment line keeps intermediaries from timing the
			// connection out without emitting a client-visible event.
			if _, err := c.Writer.WriteString(": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case entry, ok := <-sub.Entries:
			if !ok {
				writeSSEEvent(c, flusher, "shutdown", []byte("{}"))
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			writeSSEEvent(c, flusher, "log", data)
		}
	}
}

func writeSSEEvent(c *gin.Context, flusher http.Flusher, event string, data []byte) {
	_, _ = c.Writer.WriteString("event: " + event + "\n")
	_, _ = c.Writer.WriteString("data: " + string(data) + "\n\n")
	flusher.Flush()
}
