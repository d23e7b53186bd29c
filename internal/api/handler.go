// Package api provides HTTP handlers for the ChatBuddy API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/chatbuddy/internal/chat"
	"github.com/ashureev/chatbuddy/internal/config"
	"github.com/ashureev/chatbuddy/internal/identity"
	"github.com/ashureev/chatbuddy/internal/retry"
	"github.com/go-chi/chi/v5"
)

var errBodyTooLarge = errors.New("request body too large")

// Handler serves the chat API for the UI collaborator.
type Handler struct {
	svc         *chat.Service
	cfg         config.ChatConfig
	rateLimiter *RateLimiter
	logger      *slog.Logger

	sleep func(r *http.Request, d time.Duration) error
}

// NewHandler creates a Handler.
func NewHandler(svc *chat.Service, cfg config.ChatConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:         svc,
		cfg:         cfg,
		rateLimiter: NewRateLimiter(cfg.RateLimitPerMinute, time.Minute),
		logger:      logger.With("component", "api"),
		sleep: func(r *http.Request, d time.Duration) error {
			return retry.Sleep(r.Context(), d)
		},
	}
}

// RegisterRoutes registers the chat routes. The router must run the identity
// middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/personas", h.HandlePersonas)
		r.Put("/persona", h.HandleSelectPersona)
		r.Post("/chat", h.HandleChat)
		r.Get("/conversation", h.HandleHistory)
		r.Post("/conversation/reset", h.HandleReset)
		r.Get("/status", h.HandleStatus)
		r.Post("/reconnect", h.HandleReconnect)
		r.Post("/sentiment", h.HandleSentiment)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// requireUser returns the caller's user ID or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

// decodeBody reads a size-limited JSON body into v.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid request body")
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	Error(w, http.StatusBadRequest, err.Error())
}
