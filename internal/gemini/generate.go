package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/retry"
)

const (
	probePrompt      = "Hello"
	probeTemperature = 0.1
	probeMaxTokens   = 5

	sentimentTemperature = 0.1
	sentimentMaxTokens   = 10
)

// GenerateResponse appends userText to the persona's history, sends the whole
// history and records the reply. On failure the user turn stays in the
// history and no model turn is added.
func (c *Client) GenerateResponse(ctx context.Context, personaID domain.PersonaID, userText string) (string, error) {
	if c.history == nil {
		return "", errors.New("gemini client has no conversation history")
	}
	if err := c.history.Append(personaID, domain.RoleUser, userText); err != nil {
		return "", fmt.Errorf("append user turn: %w", err)
	}

	gen := GenerationConfig{Temperature: c.temperature, MaxOutputTokens: c.maxOutputTokens}
	text, err := retry.Do(ctx, c.policy("generate", c.backoff), func(ctx context.Context, attempt int) (string, error) {
		turns, err := c.history.History(personaID)
		if err != nil {
			return "", fmt.Errorf("load history: %w", err)
		}
		c.logger.Debug("calling remote model",
			"persona", string(personaID),
			"attempt", attempt,
			"history_len", len(turns))
		return c.call(ctx, Request{Contents: toContents(turns), GenerationConfig: gen}, c.generateTimeout)
	})
	if err != nil {
		c.logger.Error("remote generation failed",
			"persona", string(personaID),
			"kind", string(Classify(err)),
			"error", err)
		return "", err
	}

	if err := c.history.Append(personaID, domain.RoleModel, text); err != nil {
		return "", fmt.Errorf("append model turn: %w", err)
	}
	return text, nil
}

// Probe sends a minimal single-turn request. It does not retry; callers
// decide how to treat a 503.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.call(ctx, Request{
		Contents:         []Content{{Role: string(domain.RoleUser), Parts: []Part{{Text: probePrompt}}}},
		GenerationConfig: GenerationConfig{Temperature: probeTemperature, MaxOutputTokens: probeMaxTokens},
	}, c.probeTimeout)
	return err
}

// AnalyzeSentiment asks the model to label text with a mood. Only 5xx and
// network errors are retried. Any failure or unrecognised answer is neutral.
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) domain.Mood {
	prompt := fmt.Sprintf("Analyze the emotional sentiment in this message and categorize it as one of: "+
		"\"very_sad\", \"sad\", \"neutral\", \"good\", or \"very_good\". "+
		"Return ONLY the category name, nothing else: %q", text)
	req := Request{
		Contents:         []Content{{Role: string(domain.RoleUser), Parts: []Part{{Text: prompt}}}},
		GenerationConfig: GenerationConfig{Temperature: sentimentTemperature, MaxOutputTokens: sentimentMaxTokens},
	}

	answer, err := retry.Do(ctx, c.policy("sentiment", c.transientBackoff), func(ctx context.Context, _ int) (string, error) {
		return c.call(ctx, req, c.sentimentTimeout)
	})
	if err != nil {
		c.logger.Warn("sentiment analysis failed, using neutral", "error", err)
		return domain.MoodNeutral
	}
	return ParseMood(answer)
}

// ParseMood extracts the first known mood label from a model answer.
func ParseMood(answer string) domain.Mood {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	for _, m := range domain.Moods() {
		if strings.Contains(normalized, string(m)) {
			return m
		}
	}
	return domain.MoodNeutral
}
