// Package realtime pushes booking events to websocket clients watching a
// business, so open calendars refresh without polling.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonakson/beautyconnect/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	sendBuffer     = 16
	maxClientFrame = 512
)

type client struct {
	businessID string
	conn       *websocket.Conn
	send       chan []byte
	once       sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans events out to the clients subscribed to each business. A client
// that cannot keep up is disconnected rather than slowing the others.
type Hub struct {
	sub events.Subscriber
	log *slog.Logger

	mu      sync.Mutex
	clients map[string]map[*client]struct{}
}

func NewHub(sub events.Subscriber, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		sub:     sub,
		log:     log.With(slog.String("component", "realtime.hub")),
		clients: make(map[string]map[*client]struct{}),
	}
}

// Run delivers events until ctx is done or the subscription closes.
func (h *Hub) Run(ctx context.Context) error {
	ch, err := h.sub.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			h.dispatch(e)
		}
	}
}

func (h *Hub) dispatch(e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.log.Warn("event encode failed", slog.Any("err", err), slog.String("event_id", e.ID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[e.BusinessID] {
		select {
		case c.send <- payload:
		default:
			h.log.Warn("slow websocket client dropped", slog.String("business_id", e.BusinessID))
			h.removeLocked(c)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.businessID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.businessID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	set := h.clients[c.businessID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.businessID)
	}
	c.close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			c.close()
		}
	}
	h.clients = make(map[string]map[*client]struct{})
}

// Clients returns the number of connections watching businessID.
func (h *Hub) Clients(businessID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[businessID])
}

// serve owns conn until the client disconnects or is dropped.
func (h *Hub) serve(conn *websocket.Conn, businessID string) {
	c := &client{businessID: businessID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards client frames; it exists to observe pongs and closes.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxClientFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
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
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
