package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/patchforge/opsync/pkg/status"
)

var upgrader = websocket.Upgrader{
	// The socket is local-only; there is no origin to check.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

// handleWebSocket upgrades the connection and streams registry events to the
// subscriber until it disconnects. Delivery is best-effort: a subscriber that
// cannot keep up misses events and recovers from the snapshot.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := s.logger.WithField("conn", connID)
	logger.Debug("Broadcast subscriber connected")

	events := s.registry.Subscribe()
	defer s.registry.Unsubscribe(events)

	// Reader goroutine: we never expect client messages, but reading is what
	// surfaces close frames and connection loss.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			logger.Debug("Broadcast subscriber disconnected")
			return
		case <-c.Request.Context().Done():
			return
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.WithError(err).Debug("Broadcast write failed, dropping subscriber")
				return
			}
			logEvent(logger, ev)
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func logEvent(logger *logrus.Entry, ev status.Event) {
	fields := logrus.Fields{
		"operation": ev.OperationID,
		"action":    ev.Action,
	}
	if ev.Status != nil {
		fields["status"] = *ev.Status
	}
	logger.WithFields(fields).Trace("Broadcast event delivered")
}
