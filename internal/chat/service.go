// Package chat owns per-user conversation state: the selected persona, the
// persona histories, the orchestrator that answers each message and the
// system notices shown alongside replies.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/chatbuddy/internal/availability"
	"github.com/ashureev/chatbuddy/internal/config"
	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/gemini"
	"github.com/ashureev/chatbuddy/internal/orchestrator"
	"github.com/ashureev/chatbuddy/internal/persona"
	"github.com/ashureev/chatbuddy/internal/session"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

var (
	// ErrConversationBusy is returned when a message for the same user is
	// still being answered.
	ErrConversationBusy = errors.New("conversation busy")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message is empty")
)

// Event types pushed to subscribers.
const (
	EventTypeNotice = "notice"
	EventTypeStatus = "status"
)

// Event is pushed to a user's live connections.
type Event struct {
	Type   string         `json:"type"`
	Notice *domain.Notice `json:"notice,omitempty"`
	Status *Status        `json:"status,omitempty"`
}

// Publisher delivers events to connected clients.
type Publisher interface {
	Publish(userID string, v any)
	Broadcast(v any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, any) {}
func (noopPublisher) Broadcast(any)       {}

// Status is the availability snapshot rendered for clients.
type Status struct {
	availability.Banner
	Availability domain.AvailabilityState  `json:"availability"`
	Backoff      orchestrator.BackoffState `json:"remote_backoff"`
}

// Result is the answer to one user message.
type Result struct {
	domain.Envelope
	Persona domain.PersonaID `json:"persona"`
	Notices []domain.Notice  `json:"notices"`
}

// ReconnectResult is the outcome of a manual reconnect.
type ReconnectResult struct {
	Outcome domain.ReconnectOutcome `json:"outcome"`
	Notices []domain.Notice         `json:"notices"`
	Status  Status                  `json:"status"`
}

// Deps are the collaborators of a Service. Preferences, Publisher and
// Transcript are optional.
type Deps struct {
	Catalog     *persona.Catalog
	Client      *gemini.Client
	Monitor     *availability.Monitor
	Backoff     *orchestrator.Backoff
	Local       orchestrator.Local
	Preferences func(userID string) persona.Preferences
	Publisher   Publisher
	Transcript  ConversationLogger
	Channel     string
	Logger      *slog.Logger
}

// Service routes user messages to per-user conversations.
type Service struct {
	cfg        config.ChatConfig
	catalog    *persona.Catalog
	client     *gemini.Client
	monitor    *availability.Monitor
	backoff    *orchestrator.Backoff
	local      orchestrator.Local
	prefs      func(userID string) persona.Preferences
	publisher  Publisher
	transcript ConversationLogger
	channel    string
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	convs map[string]*conversation
}

// conversation is one user's state. busy serializes message handling.
type conversation struct {
	userID   string
	busy     sync.Mutex
	personas *persona.Store
	history  *session.Manager
	orch     *orchestrator.Orchestrator

	mu         sync.Mutex
	fallbacks  int
	lastActive time.Time
}

// NewService creates a Service.
func NewService(cfg config.ChatConfig, deps Deps) (*Service, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("chat: catalog is required")
	case deps.Client == nil:
		return nil, errors.New("chat: remote client is required")
	case deps.Monitor == nil:
		return nil, errors.New("chat: availability monitor is required")
	case deps.Backoff == nil:
		return nil, errors.New("chat: backoff is required")
	case deps.Local == nil:
		return nil, errors.New("chat: local responder is required")
	}
	if _, ok := deps.Catalog.Lookup(cfg.DefaultPersona); !ok {
		return nil, fmt.Errorf("chat: default persona %q: %w", cfg.DefaultPersona, persona.ErrUnknownPersona)
	}

	s := &Service{
		cfg:        cfg,
		catalog:    deps.Catalog,
		client:     deps.Client,
		monitor:    deps.Monitor,
		backoff:    deps.Backoff,
		local:      deps.Local,
		prefs:      deps.Preferences,
		publisher:  deps.Publisher,
		transcript: deps.Transcript,
		channel:    deps.Channel,
		logger:     deps.Logger,
		now:        time.Now,
		convs:      make(map[string]*conversation),
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.transcript == nil {
		s.transcript = noopConversationLogger{}
	}
	if s.channel == "" {
		s.channel = ChannelHTTP
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "chat")
	return s, nil
}

// Send answers one user message. It fails only for blank input or when the
// previous message of the same user is still in flight.
func (s *Service) Send(ctx context.Context, userID, sessionID, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}
	conv := s.conversation(ctx, userID)
	if !conv.busy.TryLock() {
		return Result{}, ErrConversationBusy
	}
	defer conv.busy.Unlock()

	p := conv.personas.Current()
	s.logEvent(ctx, userID, sessionID, DirectionOutbound, EventUserMessage, text, map[string]any{
		"persona": string(p.ID),
	})

	env := conv.orch.Handle(ctx, p.ID, text)
	res := Result{Envelope: env, Persona: p.ID, Notices: []domain.Notice{}}

	conv.mu.Lock()
	if env.UsingFallback {
		conv.fallbacks++
	} else {
		conv.fallbacks = 0
	}
	n := conv.fallbacks
	conv.mu.Unlock()

	switch {
	case !env.UsingFallback:
		s.monitor.Observe(nil)
	case env.ErrorType != domain.ErrorKindBackoff:
		s.monitor.Observe(fallbackError(env.ErrorType))
	}

	if env.UsingFallback {
		if notice, ok := failureNotice(n, env.ErrorType, s.now()); ok {
			res.Notices = append(res.Notices, notice)
			s.emitNotice(ctx, userID, sessionID, notice)
		}
	}

	eventType := EventRemoteReply
	if env.UsingFallback {
		eventType = EventFallbackReply
	}
	s.logEvent(ctx, userID, sessionID, DirectionInbound, eventType, env.Text, map[string]any{
		"persona":        string(p.ID),
		"using_fallback": env.UsingFallback,
		"error_type":     string(env.ErrorType),
	})
	return res, nil
}

// SelectPersona switches the user's persona, restores that persona's history
// to its seed pair and persists the choice. An unknown id selects the default
// persona and applied is false.
func (s *Service) SelectPersona(ctx context.Context, userID, sessionID string, id domain.PersonaID) (p domain.Persona, applied bool, err error) {
	conv := s.conversation(ctx, userID)
	if !conv.busy.TryLock() {
		return domain.Persona{}, false, ErrConversationBusy
	}
	defer conv.busy.Unlock()

	p, applied, err = conv.personas.Select(ctx, id)
	if err != nil {
		s.logger.Warn("failed to persist persona selection",
			"user_id", userID,
			"persona", string(p.ID),
			"error", err)
	}
	if err := conv.history.Reset(p.ID); err != nil {
		return domain.Persona{}, false, fmt.Errorf("reset history: %w", err)
	}
	s.logEvent(ctx, userID, sessionID, DirectionOutbound, EventPersonaChanged, string(p.ID), map[string]any{
		"requested":        string(id),
		"fallback_applied": !applied,
	})
	return p, applied, nil
}

// CurrentPersona returns the user's active persona.
func (s *Service) CurrentPersona(ctx context.Context, userID string) domain.Persona {
	return s.conversation(ctx, userID).personas.Current()
}

// Personas lists the catalog in display order.
func (s *Service) Personas() []domain.Persona {
	return s.catalog.List()
}

// Reset restores the current persona's history to its seed pair.
func (s *Service) Reset(ctx context.Context, userID, sessionID string) (domain.PersonaID, error) {
	conv := s.conversation(ctx, userID)
	if !conv.busy.TryLock() {
		return "", ErrConversationBusy
	}
	defer conv.busy.Unlock()

	id := conv.personas.Current().ID
	if err := conv.history.Reset(id); err != nil {
		return "", fmt.Errorf("reset history: %w", err)
	}
	s.logEvent(ctx, userID, sessionID, DirectionOutbound, EventReset, string(id), nil)
	return id, nil
}

// History returns the current persona's history, seed pair included.
func (s *Service) History(ctx context.Context, userID string) (domain.PersonaID, []domain.Turn, error) {
	conv := s.conversation(ctx, userID)
	id := conv.personas.Current().ID
	turns, err := conv.history.History(id)
	if err != nil {
		return "", nil, err
	}
	return id, turns, nil
}

// Status returns the availability snapshot.
func (s *Service) Status() Status {
	return s.statusFor(s.monitor.State())
}

func (s *Service) statusFor(state domain.AvailabilityState) Status {
	return Status{
		Banner:       availability.BannerFor(state),
		Availability: state,
		Backoff:      s.backoff.State(),
	}
}

// Reconnect runs a manual reconnect for userID. A restored endpoint also
// reopens the remote path so the next message is sent to the model.
func (s *Service) Reconnect(ctx context.Context, userID, sessionID string) ReconnectResult {
	conv := s.conversation(ctx, userID)

	reconnecting := newNotice(domain.NoticeReconnecting, availability.ReconnectingMessage, s.now())
	s.emitNotice(ctx, userID, sessionID, reconnecting)

	outcome, state := s.monitor.Reconnect(ctx)
	if outcome == domain.ReconnectRestored {
		s.backoff.Success()
		conv.mu.Lock()
		conv.fallbacks = 0
		conv.mu.Unlock()
	}

	result := reconnectNotice(outcome, s.now())
	s.emitNotice(ctx, userID, sessionID, result)
	s.logger.Info("manual reconnect finished",
		"user_id", userID,
		"outcome", string(outcome))

	return ReconnectResult{
		Outcome: outcome,
		Notices: []domain.Notice{reconnecting, result},
		Status:  s.statusFor(state),
	}
}

// Sentiment classifies text into a mood. It never fails.
func (s *Service) Sentiment(ctx context.Context, text string) domain.Mood {
	return s.client.AnalyzeSentiment(ctx, text)
}

// WatchAvailability broadcasts a status event on every availability change.
// The returned func stops watching.
func (s *Service) WatchAvailability() func() {
	return s.monitor.Subscribe(func(state domain.AvailabilityState) {
		status := s.statusFor(state)
		s.publisher.Broadcast(Event{Type: EventTypeStatus, Status: &status})
	})
}

// Active returns the number of live conversations.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// conversation returns the user's conversation, creating it on first use.
// lastActive is refreshed under s.mu so a concurrent Sweep cannot evict a
// conversation that has just been handed out.
func (s *Service) conversation(ctx context.Context, userID string) *conversation {
	s.mu.Lock()
	conv, ok := s.convs[userID]
	if ok {
		conv.touch(s.now())
	}
	s.mu.Unlock()
	if ok {
		return conv
	}

	conv = s.newConversation(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.convs[userID]; ok {
		existing.touch(s.now())
		return existing
	}
	s.convs[userID] = conv
	return conv
}

func (s *Service) newConversation(ctx context.Context, userID string) *conversation {
	logger := s.logger.With("user_id", userID)

	var prefs persona.Preferences
	if s.prefs != nil {
		prefs = s.prefs(userID)
	}
	// Default persona was validated in NewService.
	personas, _ := persona.NewStore(s.catalog, s.cfg.DefaultPersona, prefs, logger)
	if _, err := personas.Restore(ctx); err != nil {
		logger.Warn("failed to restore persona selection", "error", err)
	}

	history := session.NewManager(s.catalog, s.cfg.MaxConversationLength)
	return &conversation{
		userID:     userID,
		personas:   personas,
		history:    history,
		orch:       orchestrator.New(s.client.WithHistory(history), s.local, s.backoff, logger),
		lastActive: s.now(),
	}
}

func (s *Service) emitNotice(ctx context.Context, userID, sessionID string, n domain.Notice) {
	s.publisher.Publish(userID, Event{Type: EventTypeNotice, Notice: &n})
	s.logEvent(ctx, userID, sessionID, DirectionInbound, EventSystemNotice, n.Text, map[string]any{
		"notice_id":   n.ID,
		"notice_kind": string(n.Kind),
	})
}

func (s *Service) logEvent(ctx context.Context, userID, sessionID, direction, eventType, content string, meta map[string]any) {
	if reqID := chiMiddleware.GetReqID(ctx); reqID != "" {
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["request_id"] = reqID
	}
	s.transcript.Log(ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    s.channel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	})
}

func (c *conversation) touch(now time.Time) {
	c.mu.Lock()
	c.lastActive = now
	c.mu.Unlock()
}

func (c *conversation) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// fallbackError reports a failed remote reply to the availability monitor.
type fallbackError domain.ErrorKind

func (e fallbackError) Error() string {
	return "remote reply failed: " + string(e)
}
