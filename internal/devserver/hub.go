package devserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kstu-mobile/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks connected notification listeners per identity and their
// unread counters.
type Hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[int64]map[*websocket.Conn]bool
	counts  map[int64]int
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[int64]map[*websocket.Conn]bool),
		counts:  make(map[int64]int),
	}
}

func (h *Hub) add(id int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[id] == nil {
		h.clients[id] = make(map[*websocket.Conn]bool)
	}
	h.clients[id][conn] = true
}

func (h *Hub) remove(id int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[id], conn)
	if len(h.clients[id]) == 0 {
		delete(h.clients, id)
	}
}

// Count returns the current unread counter for an identity.
func (h *Hub) Count(id int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[id]
}

// Bump increments an identity's counter and pushes the new value to every
// connected listener.
func (h *Hub) Bump(id int64) {
	h.mu.Lock()
	h.counts[id]++
	count := h.counts[id]
	conns := make([]*websocket.Conn, 0, len(h.clients[id]))
	for conn := range h.clients[id] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	frame, err := json.Marshal(notify.Event{Type: notify.EventNotificationCount, Count: count})
	if err != nil {
		h.logger.Error("marshal notification frame", zap.Error(err))
		return
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.logger.Warn("notification push failed", zap.Int64("identity_id", id), zap.Error(err))
		}
	}
}

// handleWS upgrades the connection and parks it in the hub until it drops.
func (s *Server) handleWS(c *gin.Context) {
	raw := extractToken(c)
	if raw == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	claims, err := s.parseAccess(raw)
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := claims.User.ID
	s.hub.add(id, conn)
	s.logger.Info("notification listener connected", zap.Int64("identity_id", id))

	go func() {
		defer func() {
			s.hub.remove(id, conn)
			conn.Close()
		}()
		for {
			// Listeners only receive; reads drain pings and detect closes.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
