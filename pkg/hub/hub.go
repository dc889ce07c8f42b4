// Package hub broadcasts tracking events to websocket subscribers and
// forwards inbound browser messages (sensor fixes, interactions) to a handler.
package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
	maxMessage = 64 * 1024
)

// ErrClosed is returned by Broadcast after Close.
var ErrClosed = errors.New("hub closed")

// Message is the envelope for both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	At   time.Time       `json:"at"`
}

// InboundFunc handles a message received from a client. A returned error is
// sent back to that client as an "error" message.
type InboundFunc func(clientID string, msg Message) error

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Stats holds hub counters.
type Stats struct {
	Clients  int    `json:"clients"`
	Sent     uint64 `json:"sent"`
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"`
}

// Hub manages websocket subscribers.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	inbound InboundFunc
	closed  bool

	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a hub. checkOrigin may be nil to accept any origin.
func New(checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[string]*client),
	}
}

// OnInbound sets the handler for client messages.
func (h *Hub) OnInbound(fn InboundFunc) {
	h.mu.Lock()
	h.inbound = fn
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Hub: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()
	slog.Info("Hub: client connected", "id", c.id, "clients", count)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Hub: read error", "id", c.id, "error", err)
			}
			return
		}
		h.received.Add(1)

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			h.reply(c, "error", map[string]string{"error": "malformed message"})
			continue
		}

		h.mu.RLock()
		fn := h.inbound
		h.mu.RUnlock()
		if fn == nil {
			continue
		}
		if err := fn(c.id, msg); err != nil {
			h.reply(c, "error", map[string]string{"type": msg.Type, "error": err.Error()})
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			h.sent.Add(1)
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		c.close()
	}
	count := len(h.clients)
	h.mu.Unlock()
	slog.Info("Hub: client disconnected", "id", c.id, "clients", count)
}

func encode(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: typ, Data: raw, At: time.Now().UTC()})
}

// reply sends to one client without blocking.
func (h *Hub) reply(c *client, typ string, data any) {
	b, err := encode(typ, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
		h.dropped.Add(1)
	}
}

// Broadcast sends an event to every client. Slow clients miss the message
// rather than blocking the caller.
func (h *Hub) Broadcast(typ string, data any) error {
	b, err := encode(typ, data)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for _, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.dropped.Add(1)
			slog.Debug("Hub: client too slow, dropping message", "id", c.id, "type", typ)
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return Stats{
		Clients:  n,
		Sent:     h.sent.Load(),
		Received: h.received.Load(),
		Dropped:  h.dropped.Load(),
	}
}

// Close disconnects every client. Safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
}
