package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/quizarena/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// SendBuffer is the per-connection outbound queue length.
	SendBuffer = 64
)

// Hub tracks live connections and delivers encoded frames to them.
//
// Thread-safety: all methods are safe for concurrent use. Deliver never
// blocks.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Deliver sends msg to one connection.
func (h *Hub) Deliver(connID string, msg protocol.Outbound) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encoding outbound message", "type", msg.Type(), "error", err)
		return
	}
	h.send(connID, msg.Type(), data)
}

// DeliverAll sends msg to every listed connection. The frame is encoded once.
func (h *Hub) DeliverAll(connIDs []string, msg protocol.Outbound) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encoding outbound message", "type", msg.Type(), "error", err)
		return
	}
	for _, id := range connIDs {
		h.send(id, msg.Type(), data)
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll sends a going-away close frame to every connection and closes
// it. Read pumps then unwind and unregister.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range clients {
		if c.conn == nil {
			continue
		}
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
}

func (h *Hub) send(connID, typ string, data []byte) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		slog.Debug("delivery to unknown connection dropped", "conn_id", connID, "type", typ)
		return
	}
	if !c.enqueue(data) {
		slog.Warn("send buffer full, frame dropped", "conn_id", connID, "type", typ)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		c.stop()
	}
}

// client is one WebSocket connection. The send channel is never closed;
// done signals the write pump to exit.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, SendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue reports false when the frame was dropped because the buffer is full.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("websocket write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
