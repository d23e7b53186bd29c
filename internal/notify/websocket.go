package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/chatbuddy/internal/identity"
	"github.com/coder/websocket"
)

// Handler upgrades requests to an event stream registered with a Hub.
type Handler struct {
	hub            *Hub
	snapshot       func() any
	allowedOrigins []string
	isDev          bool
	logger         *slog.Logger
}

// NewHandler creates a Handler. snapshot, when set, is sent as the first
// message of every new stream.
func NewHandler(hub *Hub, snapshot func() any, allowedOrigins []string, isDev bool) *Handler {
	return &Handler{
		hub:            hub,
		snapshot:       snapshot,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		logger:         hub.logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"missing identity"}`, http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	client := h.hub.Register(userID, sessionID, ws)
	defer h.hub.Unregister(client)

	if h.snapshot != nil {
		if data, err := json.Marshal(h.snapshot()); err == nil {
			client.Send(data)
		}
	}

	// The stream is push-only; CloseRead discards client frames and cancels
	// ctx when the peer goes away.
	ctx := ws.CloseRead(r.Context())
	if err := client.WriteLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("event stream ended", "error", err, "user_id", userID)
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	h.logger.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}
