package api

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"spotarb/internal/broadcast"
)

// subscriberBuffer is how many events a slow dashboard client may fall
// behind by before its oldest buffered event is dropped — same
// lossy-fanout contract every other feed in this agent publishes under.
const subscriberBuffer = 16

// Hub fans Events out to every connected dashboard client. Rather than
// reimplement the teacher's register/unregister/broadcast trio, it
// subscribes each client to this repo's own broadcast.Bus — the same
// primitive the spot book, reference-price feed, and prediction-market
// streamer already publish through — so there is exactly one fanout
// implementation in the codebase instead of two.
type Hub struct {
	bus    *broadcast.Bus[Event]
	logger *slog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		bus:    broadcast.New[Event](subscriberBuffer),
		logger: logger.With("component", "ws-hub"),
	}
}

// BroadcastEvent publishes evt to every connected client. A client
// that can't keep up drops its oldest buffered event rather than
// stalling the publisher or getting disconnected.
func (h *Hub) BroadcastEvent(evt Event) {
	h.bus.Publish(evt)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// Client represents one connected WebSocket dashboard client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	sub  <-chan Event
	done chan struct{}
}

// NewClient subscribes conn to the hub's event stream and starts its
// pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{
		hub:  hub,
		conn: conn,
		sub:  hub.bus.Subscribe(),
		done: make(chan struct{}),
	}

	go client.writePump()
	go client.readPump()

	return client
}

// writePump relays events from the hub's bus to the websocket
// connection, marshaling each one as it's delivered, and pings on
// pingPeriod to keep the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.bus.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.sub:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Bus subscription torn down by readPump's Unsubscribe
				// after the read side saw the connection close.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(evt)
			if err != nil {
				c.hub.logger.Error("failed to marshal event", "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump drains the connection so pong/close control frames are
// processed; the dashboard surface is read-only, so any data frame a
// client sends is discarded. It unsubscribes and signals writePump to
// stop as soon as the read side notices the connection is gone, rather
// than leaving writePump to discover it on its own next write attempt
// (up to a full ping period later); writePump's own Unsubscribe on its
// way out is then a harmless no-op.
func (c *Client) readPump() {
	defer func() {
		c.hub.bus.Unsubscribe(c.sub)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			return
		}
	}
}
