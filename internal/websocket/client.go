package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one feed subscriber. By default it receives every award; after
// a watch request it only receives awards for the watched user.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	closed  chan struct{}
	watchID atomic.Int64
	logger  *slog.Logger
}

// ClientMessage is a request sent by a feed subscriber
type ClientMessage struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id,omitempty"`
}

// WatchingData acknowledges a watch request. Zero means all users.
type WatchingData struct {
	UserID int64 `json:"user_id"`
}

// NewClient creates a feed client for an upgraded connection
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
		logger: logger.With("client_id", id),
	}
}

func (c *Client) watches(userID int64) bool {
	watched := c.watchID.Load()
	return watched == 0 || watched == userID
}

func (c *Client) handleRequest(raw []byte) {
	var req ClientMessage
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendControl(MessageTypeError, map[string]string{"error": "invalid message format"})
		return
	}

	switch req.Type {
	case MessageTypePing:
		c.sendControl(MessageTypePong, nil)
	case MessageTypeWatch:
		if req.UserID < 0 {
			c.sendControl(MessageTypeError, map[string]string{"error": "invalid user_id"})
			return
		}
		c.watchID.Store(req.UserID)
		c.sendControl(MessageTypeWatching, WatchingData{UserID: req.UserID})
	default:
		c.logger.Debug("unknown message type", "type", req.Type)
	}
}

// readPump handles subscriber requests until the connection closes
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("feed connection closed unexpectedly", "error", err)
			}
			return
		}
		c.handleRequest(raw)
	}
}

// writePump delivers queued messages and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, payload []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, payload)
	}

	for {
		select {
		case <-c.closed:
			return

		case payload, ok := <-c.send:
			if !ok {
				// unregistered by the hub
				_ = write(websocket.CloseMessage, []byte{})
				return
			}
			if err := write(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendControl queues a reply to the subscriber, dropping it if the buffer is full
func (c *Client) sendControl(msgType string, data interface{}) {
	payload, err := json.Marshal(Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		c.logger.Error("failed to marshal control message", "error", err)
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// ServeWs upgrades the request and attaches the connection to the hub
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	if !hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
