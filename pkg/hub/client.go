package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Keepalive settings
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Subscribers only send control frames.
	maxInbound = 512
)

// Client is one websocket subscriber.
type Client struct {
	conn  *websocket.Conn
	send  chan Message
	kinds map[string]bool
}

func newClient(conn *websocket.Conn, kinds []string) *Client {
	c := &Client{conn: conn, send: make(chan Message, clientQueue)}
	for _, k := range kinds {
		if k == "" {
			continue
		}
		if c.kinds == nil {
			c.kinds = make(map[string]bool)
		}
		c.kinds[k] = true
	}
	return c
}

// wants reports whether the client subscribed to kind. No filter means all.
func (c *Client) wants(kind string) bool {
	return c.kinds == nil || c.kinds[kind]
}

// offer queues m without blocking.
func (c *Client) offer(m Message) bool {
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

// Serve subscribes conn to h for the given kinds (all when none are given)
// and blocks until the connection closes or the hub stops.
func Serve(h *Hub, conn *websocket.Conn, kinds ...string) {
	defer conn.Close()

	c := newClient(conn, kinds)
	if !h.register(c) {
		return
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writeLoop()
	}()

	c.readLoop()
	h.unregister(c)
	<-written
}

// readLoop consumes pongs and returns when the peer goes away.
func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxInbound)
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

// writeLoop is the only writer on the connection. It returns when the hub
// closes the queue or a write fails.
func (c *Client) writeLoop() {
	keepalive := time.NewTicker(pingPeriod)
	defer keepalive.Stop()

	for {
		select {
		case m, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				c.conn.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, m.Data); err != nil {
				c.conn.Close()
				return
			}
		case <-keepalive.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
