package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/jobscout/internal/pipeline"
	"github.com/nextlevelbuilder/jobscout/pkg/protocol"
)

const streamWriteTimeout = 10 * time.Second

// streamConn serializes frame writes to one WebSocket client.
type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	seq  int64
	dead bool
}

func (c *streamConn) send(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return
	}
	c.seq++
	_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := c.conn.WriteJSON(protocol.NewEventFrame(event, c.seq, payload)); err != nil {
		// The run keeps going for other callers and the cache.
		slog.Debug("stream client gone", "error", err)
		c.dead = true
	}
}

// handleStream serves GET /v1/analyze/ws?url=<profile>: run and stage events
// as they happen, then one report or error frame, then a normal close.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	profileURL, err := pipeline.NormalizeProfileURL(r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, http.StatusBadRequest, &protocol.ErrorShape{Code: protocol.ErrInvalidRequest, Message: err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Control frames are only processed while reading.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sc := &streamConn{conn: conn}
	report, cached, err := s.analyze(profileURL, func(e pipeline.Event) {
		sc.send(eventName(e.Type), e.Payload())
	})
	if err != nil {
		_, shape := errorShape(err)
		sc.send(protocol.EventError, shape)
	} else {
		resp := protocol.NewOKResponse(report.RunID, report)
		resp.Cached = cached
		sc.send(protocol.EventReport, resp)
	}

	sc.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	sc.mu.Unlock()
}

func eventName(eventType string) string {
	if strings.HasPrefix(eventType, "run.") {
		return protocol.EventRun
	}
	return protocol.EventStage
}
