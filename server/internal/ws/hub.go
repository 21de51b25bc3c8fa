package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rich1707/Customer-Churn/server/internal/alerts"
	"github.com/rich1707/Customer-Churn/server/internal/api"
	"github.com/rich1707/Customer-Churn/server/internal/store"
)

// EventSnapshot is the event name of every message the hub sends.
const EventSnapshot = "snapshot"

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10 // must stay below pongWait

	// sendBufSize is the per-client queue depth. A client that falls this far
	// behind is dropped.
	sendBufSize = 16

	// Clients only send control frames.
	maxClientMessage = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	// All origins are accepted; restrict them at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients. Seq increases by one per
// broadcast, so a client can tell a missed update from a quiet period.
type Message struct {
	Event string               `json:"event"`
	Seq   uint64               `json:"seq"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub streams churn snapshots to WebSocket clients: once on connect, every
// interval, and whenever Notify reports a new batch. A client connecting with
// ?source=<id> only receives that source and its alerts.
type Hub struct {
	store    *store.Store
	alerts   *alerts.Engine
	interval time.Duration
	notify   chan struct{}
	seq      atomic.Uint64

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn   *websocket.Conn
	source string
	send   chan []byte
}

// New creates a Hub over st and al (al may be nil).
func New(st *store.Store, al *alerts.Engine, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		alerts:   al,
		interval: interval,
		notify:   make(chan struct{}, 1),
		clients:  make(map[*client]struct{}),
	}
}

// Notify schedules an immediate broadcast. It never blocks; notifications
// arriving while one is pending are coalesced.
func (h *Hub) Notify() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Run broadcasts until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		case <-h.notify:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the connection and streams snapshots until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // upgrader has written the response
	}

	c := &client{
		conn:   conn,
		source: r.URL.Query().Get("source"),
		send:   make(chan []byte, sendBufSize),
	}
	snap := api.BuildSnapshot(h.store, h.alerts)
	if data, err := encode(h.seq.Load(), snap.ForSource(c.source)); err == nil {
		c.send <- data
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Debug("ws: client connected", "remote", c.conn.RemoteAddr().String(), "source", c.source)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// broadcast builds the snapshot once and encodes it once per distinct source
// filter among the connected clients.
func (h *Hub) broadcast() {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	seq := h.seq.Add(1)
	snap := api.BuildSnapshot(h.store, h.alerts)
	encoded := make(map[string][]byte)

	for _, c := range targets {
		data, ok := encoded[c.source]
		if !ok {
			var err error
			if data, err = encode(seq, snap.ForSource(c.source)); err != nil {
				slog.Error("ws: encode snapshot", "err", err)
				return
			}
			encoded[c.source] = data
		}
		select {
		case c.send <- data:
		default:
			slog.Warn("ws: client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
			h.unregister(c)
		}
	}
}

func encode(seq uint64, snap api.SnapshotResponse) ([]byte, error) {
	return json.Marshal(Message{Event: EventSnapshot, Seq: seq, Data: snap})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump owns all writes to the connection: queued messages and pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains control frames until the connection fails.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxClientMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
