package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/assetkit/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// client is one websocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub tracks clients. A client whose send buffer is full is dropped.
type hub struct {
	mutex   sync.Mutex
	clients map[*client]struct{}
	// last is replayed to new clients so a page that connects after a
	// rebuild still learns the current URLs.
	last   []byte
	logger logging.Logger
}

func newHub(logger logging.Logger) *hub {
	return &hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

func (h *hub) register(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.logger.Debug(context.Background(), "Client connected", "total", len(h.clients))
}

func (h *hub) unregister(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Debug(context.Background(), "Client disconnected", "total", len(h.clients))
	}
}

func (h *hub) broadcast(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.last = message
	for c := range h.clients {
		select {
		case c.send <- message:
		default:
			// Client's send channel is full
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}
	s.hub.register(c)
	defer s.hub.unregister(c)

	// Browsers never send anything; CloseRead handles control frames and
	// cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	c.writePump(ctx, s.logger)
}

// writePump pumps messages to the websocket connection
func (c *client) writePump(ctx context.Context, logger logging.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusGoingAway, "server closed the connection")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				logger.Debug(ctx, "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
