package client

import (
	"context"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/patchforge/opsync/logging"
	"github.com/patchforge/opsync/pkg/status"
)

// eventStream maintains a WebSocket subscription to the daemon's broadcast
// endpoint, reconnecting with exponential backoff when the connection drops.
// Events are best-effort; onConnect lets the owner reload the snapshot to
// cover whatever was missed while disconnected.
type eventStream struct {
	socketPath string
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *logrus.Entry
	onEvent    func(status.Event)
	onConnect  func()
}

func newEventStream(socketPath string, minBackoff, maxBackoff time.Duration, onEvent func(status.Event), onConnect func()) *eventStream {
	if minBackoff <= 0 {
		minBackoff = 500 * time.Millisecond
	}
	if maxBackoff < minBackoff {
		maxBackoff = 15 * time.Second
	}
	return &eventStream{
		socketPath: socketPath,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		logger:     logging.NewLogger("event-stream"),
		onEvent:    onEvent,
		onConnect:  onConnect,
	}
}

// Start runs the connect/read/reconnect loop until the context is cancelled.
func (s *eventStream) Start(ctx context.Context) {
	backoff := s.minBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.WithError(err).Debug("Broadcast connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			continue
		}

		backoff = s.minBackoff
		s.logger.Debug("Broadcast connected")
		if s.onConnect != nil {
			s.onConnect()
		}

		s.readLoop(ctx, conn)
		conn.Close()
	}
}

func (s *eventStream) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(dialCtx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(dialCtx, "unix", s.socketPath)
		},
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, "ws://unix/ws", nil)
	return conn, err
}

func (s *eventStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock the blocking read when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev status.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).Debug("Broadcast connection lost")
			}
			return
		}
		s.onEvent(ev)
	}
}
