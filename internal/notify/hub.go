// Package notify pushes status changes and system notices to connected
// WebSocket clients.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	sendQueueSize = 16
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Conn is the subset of *websocket.Conn the hub writes to.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

// Client is one registered connection with its outbound queue.
type Client struct {
	userID    string
	sessionID string
	conn      Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// Hub tracks connections per user and tab session.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*Client
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active: make(map[string]map[string]*Client),
		logger: logger.With("component", "notify"),
	}
}

// Register adds conn for userID/sessionID, replacing and closing any
// previous connection of the same tab.
func (h *Hub) Register(userID, sessionID string, conn Conn) *Client {
	c := &Client{
		userID:    userID,
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	sessions, ok := h.active[userID]
	if !ok {
		sessions = make(map[string]*Client)
		h.active[userID] = sessions
	}
	existing := sessions[sessionID]
	sessions[sessionID] = c
	h.mu.Unlock()

	if existing != nil {
		existing.close(websocket.StatusNormalClosure, "session replaced")
	}
	h.logger.Info("event stream registered", "user_id", userID, "session_id", sessionID)
	return c
}

// Unregister removes c if it is still the active connection for its tab.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.active[c.userID]
	if !ok {
		return
	}
	if current, exists := sessions[c.sessionID]; exists && current == c {
		delete(sessions, c.sessionID)
		if len(sessions) == 0 {
			delete(h.active, c.userID)
		}
		h.logger.Info("event stream unregistered", "user_id", c.userID, "session_id", c.sessionID)
	}
}

// Active returns the client registered for userID/sessionID, or nil.
func (h *Hub) Active(userID, sessionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sessions, ok := h.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sessions := range h.active {
		n += len(sessions)
	}
	return n
}

// Publish sends v as JSON to every tab of userID. Slow clients drop events.
func (h *Hub) Publish(userID string, v any) {
	data, ok := h.marshal(v)
	if !ok {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.active[userID]))
	for _, c := range h.active[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, data)
	}
}

// Broadcast sends v as JSON to every connection.
func (h *Hub) Broadcast(v any) {
	data, ok := h.marshal(v)
	if !ok {
		return
	}
	h.mu.RLock()
	var targets []*Client
	for _, sessions := range h.active {
		for _, c := range sessions {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, data)
	}
}

// CloseUser terminates every connection of userID.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	sessions := h.active[userID]
	delete(h.active, userID)
	h.mu.Unlock()

	for sid, c := range sessions {
		c.close(websocket.StatusNormalClosure, "session closed")
		h.logger.Info("event stream closed", "user_id", userID, "session_id", sid)
	}
}

// Close terminates every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.active
	h.active = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, sessions := range all {
		for _, c := range sessions {
			c.close(websocket.StatusGoingAway, "server shutting down")
		}
	}
}

func (h *Hub) marshal(v any) ([]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("failed to marshal event", "error", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) enqueue(c *Client, data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		h.logger.Warn("event queue full, dropping event",
			"user_id", c.userID,
			"session_id", c.sessionID)
	}
}

// Send queues one message for this client only.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		return false
	}
}

// WriteLoop drains the queue to the connection and pings it periodically.
// It returns when ctx is done, the client is closed or a write fails.
func (c *Client) WriteLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case data := <-c.send:
			if err := c.write(ctx, data); err != nil {
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (c *Client) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *Client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}
