// Package notify keeps the user's notification counter live over the
// portal's websocket endpoint.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Event is a single frame from the notification channel.
type Event struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// EventNotificationCount is the only event type the client reacts to today.
const EventNotificationCount = "notification_count"

type Stream struct {
	conn   *websocket.Conn
	logger *zap.Logger

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Dial connects to the notification endpoint with the current bearer token.
// There is no automatic reconnect; a dropped stream closes the Events
// channel and the caller decides whether to dial again.
func Dial(ctx context.Context, wsURL, accessToken string, logger *zap.Logger) (*Stream, error) {
	header := http.Header{}
	if accessToken != "" {
		header.Set("Authorization", "Bearer "+accessToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		conn:   conn,
		logger: logger,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

// Events delivers counter updates. Closed when the stream ends.
func (s *Stream) Events() <-chan Event {
	return s.events
}

func (s *Stream) Close() error {
	s.shutdown()
	return s.conn.Close()
}

// shutdown closes done exactly once, from whichever side ends first.
func (s *Stream) shutdown() {
	s.once.Do(func() { close(s.done) })
}

func (s *Stream) readLoop() {
	defer close(s.events)
	defer s.conn.Close()
	defer s.shutdown()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("notification stream closed unexpectedly", zap.Error(err))
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Warn("malformed notification frame", zap.Error(err))
			continue
		}
		if ev.Type != EventNotificationCount {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *Stream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
