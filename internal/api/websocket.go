package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"forex-agent/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHub fans bus events out to connected websocket clients. A client that
// cannot keep up is dropped rather than blocking the bus.
type WSHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	logger  zerolog.Logger
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan events.Event
}

func newWSHub(bus *events.EventBus, logger zerolog.Logger) *WSHub {
	hub := &WSHub{
		clients: make(map[*wsClient]struct{}),
		logger:  logger.With().Str("component", "ws").Logger(),
	}
	bus.SubscribeAll(hub.broadcast)
	return hub
}

func (h *WSHub) broadcast(ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for client := range h.clients {
		select {
		case client.send <- ev:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *WSHub) add(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *WSHub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *WSHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[*wsClient]struct{})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan events.Event, 64)}
	s.hub.add(client)

	go func() {
		defer func() {
			s.hub.remove(client)
			conn.Close()
		}()
		for ev := range client.send {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}()

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.remove(client)
				return
			}
		}
	}()
}
