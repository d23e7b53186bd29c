package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ashureev/chatbuddy/internal/chat"
	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/identity"
)

type messageRequest struct {
	Message string `json:"message"`
}

type selectPersonaRequest struct {
	ID domain.PersonaID `json:"id"`
}

type personasResponse struct {
	Personas []domain.Persona `json:"personas"`
	Current  domain.PersonaID `json:"current"`
}

type selectPersonaResponse struct {
	Persona         domain.Persona `json:"persona"`
	FallbackApplied bool           `json:"fallback_applied"`
}

type historyResponse struct {
	Persona domain.PersonaID `json:"persona"`
	History []domain.Turn    `json:"history"`
}

type sentimentResponse struct {
	Mood  domain.Mood `json:"mood"`
	Label string      `json:"label"`
}

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req messageRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	h.logger.Info("chat request",
		"user_id", userID,
		"username", identity.UsernameFromContext(r.Context()),
		"session_id", sessionID,
		"ip", identity.IPFromRequest(r),
		"message_length", len(req.Message))

	res, err := h.svc.Send(r.Context(), userID, sessionID, req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, "message is required")
		return
	case errors.Is(err, chat.ErrConversationBusy):
		Error(w, http.StatusConflict, "conversation_busy")
		return
	case err != nil:
		h.logger.Error("chat failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to handle message")
		return
	}

	// Short replies are held back so the typing indicator reads naturally.
	if wait := h.cfg.MinResponseLatency - time.Since(started); wait > 0 {
		if err := h.sleep(r, wait); err != nil {
			return
		}
	}
	JSON(w, http.StatusOK, res)
}

// HandlePersonas handles GET /api/personas.
func (h *Handler) HandlePersonas(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, personasResponse{
		Personas: h.svc.Personas(),
		Current:  h.svc.CurrentPersona(r.Context(), userID).ID,
	})
}

// HandleSelectPersona handles PUT /api/persona.
func (h *Handler) HandleSelectPersona(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req selectPersonaRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	p, applied, err := h.svc.SelectPersona(r.Context(), userID, identity.SessionIDFromContext(r.Context()), req.ID)
	if errors.Is(err, chat.ErrConversationBusy) {
		Error(w, http.StatusConflict, "conversation_busy")
		return
	}
	if err != nil {
		h.logger.Error("select persona failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to select persona")
		return
	}
	JSON(w, http.StatusOK, selectPersonaResponse{Persona: p, FallbackApplied: !applied})
}

// HandleHistory handles GET /api/conversation.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, turns, err := h.svc.History(r.Context(), userID)
	if err != nil {
		h.logger.Error("load history failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	JSON(w, http.StatusOK, historyResponse{Persona: id, History: turns})
}

// HandleReset handles POST /api/conversation/reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := h.svc.Reset(r.Context(), userID, identity.SessionIDFromContext(r.Context()))
	if errors.Is(err, chat.ErrConversationBusy) {
		Error(w, http.StatusConflict, "conversation_busy")
		return
	}
	if err != nil {
		h.logger.Error("reset failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to reset conversation")
		return
	}
	_, turns, err := h.svc.History(r.Context(), userID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	JSON(w, http.StatusOK, historyResponse{Persona: id, History: turns})
}

// HandleStatus handles GET /api/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.svc.Status())
}

// HandleReconnect handles POST /api/reconnect.
func (h *Handler) HandleReconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, h.svc.Reconnect(r.Context(), userID, identity.SessionIDFromContext(r.Context())))
}

// HandleSentiment handles POST /api/sentiment.
func (h *Handler) HandleSentiment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	var req messageRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	mood := h.svc.Sentiment(r.Context(), req.Message)
	JSON(w, http.StatusOK, sentimentResponse{Mood: mood, Label: mood.Label()})
}
