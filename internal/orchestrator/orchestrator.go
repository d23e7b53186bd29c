// Package orchestrator decides, per user message, whether to ask the remote
// model or answer locally, and always produces a reply.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/fallback"
	"github.com/ashureev/chatbuddy/internal/gemini"
)

// Remote produces a completion for the persona's conversation.
type Remote interface {
	GenerateResponse(ctx context.Context, personaID domain.PersonaID, userText string) (string, error)
}

// Local answers without the network. It must not fail.
type Local interface {
	ReplyTo(text string) fallback.Reply
}

// Orchestrator handles one conversation's messages. The Backoff may be
// shared by every conversation that talks to the same endpoint.
type Orchestrator struct {
	remote  Remote
	local   Local
	backoff *Backoff
	logger  *slog.Logger
}

// New creates an Orchestrator.
func New(remote Remote, local Local, backoff *Backoff, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		remote:  remote,
		local:   local,
		backoff: backoff,
		logger:  logger.With("component", "orchestrator"),
	}
}

// Handle returns the reply envelope for one user message. It never fails:
// any remote problem ends in a local reply with ErrorType set.
//
// The remote call ignores ctx cancellation and is bounded only by the
// client's per-attempt timeout. A caller that goes away is never recorded as
// a remote failure.
func (o *Orchestrator) Handle(ctx context.Context, personaID domain.PersonaID, text string) domain.Envelope {
	if !o.backoff.Allow() {
		state := o.backoff.State()
		o.logger.Debug("skipping remote call during backoff window",
			"persona", string(personaID),
			"retry_at", state.RetryAt)
		return o.fallback(text, domain.ErrorKindBackoff)
	}

	reply, err := o.remote.GenerateResponse(context.WithoutCancel(ctx), personaID, text)
	if err == nil {
		o.backoff.Success()
		return domain.Envelope{Text: reply}
	}

	window := o.backoff.Failure()
	kind := gemini.Classify(err)
	o.logger.Warn("remote unavailable, answering locally",
		"persona", string(personaID),
		"kind", string(kind),
		"backoff", window,
		"error", err)
	return o.fallback(text, kind)
}

func (o *Orchestrator) fallback(text string, kind domain.ErrorKind) domain.Envelope {
	r := o.local.ReplyTo(text)
	o.logger.Debug("local reply selected", "score", r.Score, "tier", string(r.Tier))
	return domain.Envelope{Text: r.Text, UsingFallback: true, ErrorType: kind}
}
