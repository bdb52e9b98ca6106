package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pointbot/internal/domain"
)

// Message types
const (
	MessageTypePointAwarded = "point_awarded"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeWatch        = "watch"
	MessageTypeWatching     = "watching"
	MessageTypeError        = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// PointAwardedData is the payload of a point_awarded message
type PointAwardedData struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Points      int64  `json:"points"`
}

// Hub maintains the set of active feed clients and broadcasts award events
type Hub struct {
	// All connected clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound awards
	broadcast chan award

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan award, 256),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	defer close(h.done)
	h.logger.Info("award feed hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			h.logger.Info("award feed hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case a := <-h.broadcast:
			h.broadcastAward(a)
		}
	}
}

// Stop stops the hub and waits for its loop to exit
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.closed)
		client.conn.Close()
	}
}

// award is a queued point_awarded message
type award struct {
	userID  int64
	message *Message
}

// broadcastAward sends an award to every client watching its user
func (h *Hub) broadcastAward(a award) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(a.message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.clients {
		if !client.watches(a.userID) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// PointAwarded queues a point_awarded broadcast. It never blocks the caller.
func (h *Hub) PointAwarded(user domain.User, total int64) {
	a := award{userID: user.ID, message: &Message{
		Type: MessageTypePointAwarded,
		Data: PointAwardedData{
			UserID:      user.ID,
			DisplayName: user.DisplayName(),
			Points:      total,
		},
		Timestamp: time.Now(),
	}}

	select {
	case h.broadcast <- a:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
