package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// Queue sizes
const (
	publishQueue = 256
	clientQueue  = 256

	// DefaultBacklog is how many recent messages a new client is sent.
	DefaultBacklog = 64
)

// Hub owns the subscriber set. All membership changes and deliveries happen
// on the Run goroutine.
type Hub struct {
	name   string
	logger *slog.Logger

	clients map[*Client]struct{}
	backlog []Message
	next    int
	full    bool

	publish chan Message
	join    chan *Client
	leave   chan *Client
	done    chan struct{}

	count   atomic.Int32
	running atomic.Bool
	dropped atomic.Uint64
}

// New returns a hub that replays up to backlog messages to new clients.
// A non-positive backlog uses DefaultBacklog.
func New(name string, backlog int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Hub{
		name:    name,
		logger:  logger.With("component", "hub", "hub", name),
		clients: make(map[*Client]struct{}),
		backlog: make([]Message, backlog),
		publish: make(chan Message, publishQueue),
		join:    make(chan *Client),
		leave:   make(chan *Client),
		done:    make(chan struct{}),
	}
}

// Run delivers messages until ctx is done, then closes every client queue.
// A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.join:
			h.add(c)
		case c := <-h.leave:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Info("client disconnected", "clients", len(h.clients))
			}
		case m := <-h.publish:
			h.remember(m)
			for c := range h.clients {
				if c.wants(m.Kind) && !c.offer(m) {
					h.drop(c)
					h.logger.Warn("dropped slow client", "clients", len(h.clients))
				}
			}
		}
	}
}

func (h *Hub) add(c *Client) {
	for _, m := range h.recent() {
		if c.wants(m.Kind) && !c.offer(m) {
			break
		}
	}
	h.clients[c] = struct{}{}
	h.count.Store(int32(len(h.clients)))
	h.logger.Info("client connected", "clients", len(h.clients))
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int32(len(h.clients)))
}

func (h *Hub) remember(m Message) {
	h.backlog[h.next] = m
	h.next = (h.next + 1) % len(h.backlog)
	if h.next == 0 {
		h.full = true
	}
}

// recent returns the backlog oldest first.
func (h *Hub) recent() []Message {
	if !h.full {
		return h.backlog[:h.next]
	}
	out := make([]Message, 0, len(h.backlog))
	out = append(out, h.backlog[h.next:]...)
	return append(out, h.backlog[:h.next]...)
}

// Broadcast queues m for delivery. It never blocks; when the queue is full
// the message is dropped and counted.
func (h *Hub) Broadcast(m Message) {
	select {
	case h.publish <- m:
	default:
		h.dropped.Add(1)
	}
}

// Publish encodes v as JSON and broadcasts it under kind.
func (h *Hub) Publish(kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Kind: kind, Data: data})
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Dropped returns how many messages never reached the delivery loop.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Running reports whether Run is active.
func (h *Hub) Running() bool {
	return h.running.Load()
}

// register hands c to the loop. It reports false once the hub has stopped.
func (h *Hub) register(c *Client) bool {
	select {
	case h.join <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.leave <- c:
	case <-h.done:
	}
}
