// Package hub fans status updates out to connected websocket clients.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBacklog is how many recent messages a new client receives.
const DefaultBacklog = 50

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// backlog holds the most recent messages, replayed to new clients.
	backlog    []Message
	backlogCap int

	// mu guards clients for readers outside the run loop.
	mu sync.RWMutex

	running atomic.Bool
	dropped atomic.Int64
	seq     atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithBacklog sets how many recent messages are replayed to new clients.
// Zero disables replay.
func WithBacklog(n int) Option {
	return func(h *Hub) {
		h.backlogCap = n
	}
}

// New creates a new Hub.
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     slog.Default(),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		backlogCap: DefaultBacklog,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub", "hub", name)
	return h
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
// All clients are disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()
		h.running.Store(false)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			for _, msg := range h.backlog {
				select {
				case client.send <- msg:
				default:
				}
			}
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "clients", count)

		case data := <-h.broadcast:
			message := Message{Seq: h.seq.Add(1), Data: data}
			h.remember(message)
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer is full; drop it.
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remember(msg Message) {
	if h.backlogCap <= 0 {
		return
	}
	h.backlog = append(h.backlog, msg)
	if over := len(h.backlog) - h.backlogCap; over > 0 {
		h.backlog = append(h.backlog[:0], h.backlog[over:]...)
	}
}

// Broadcast queues an encoded frame for all connected clients. The frame is
// dropped if the queue is full.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Seq returns the sequence number of the last frame broadcast.
func (h *Hub) Seq() uint64 {
	return h.seq.Load()
}

// IsRunning returns whether the hub loop is running.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
