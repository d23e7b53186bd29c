// Package gemini is a small client for the Gemini generateContent endpoint
// with a bounded, status-aware retry ladder.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/chatbuddy/internal/config"
	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/retry"
)

const maxResponseBytes = 1 << 20

// History is the per-persona conversation store the client reads and extends.
type History interface {
	History(id domain.PersonaID) ([]domain.Turn, error)
	Append(id domain.PersonaID, role domain.Role, text string) error
}

// Client talks to the remote completion endpoint.
type Client struct {
	apiKey  string
	baseURL string
	model   string

	temperature      float64
	maxOutputTokens  int
	generateTimeout  time.Duration
	probeTimeout     time.Duration
	sentimentTimeout time.Duration

	retry      config.RetryConfig
	history    History
	httpClient *http.Client
	logger     *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// NewClient creates a Client. history may be nil for callers that only probe
// or classify sentiment.
func NewClient(gc config.GeminiConfig, rc config.RetryConfig, history History, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:           gc.APIKey,
		baseURL:          strings.TrimRight(gc.BaseURL, "/"),
		model:            gc.Model,
		temperature:      gc.Temperature,
		maxOutputTokens:  gc.MaxOutputTokens,
		generateTimeout:  gc.GenerateTimeout,
		probeTimeout:     gc.ProbeTimeout,
		sentimentTimeout: gc.SentimentTimeout,
		retry:            rc,
		history:          history,
		httpClient:       &http.Client{},
		logger:           logger.With("component", "gemini"),
		sleep:            retry.Sleep,
	}
}

// WithHistory returns a copy of c that reads and extends history. The copy
// shares the HTTP client.
func (c *Client) WithHistory(history History) *Client {
	cp := *c
	cp.history = history
	return &cp
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// maxAttempts is the first call plus the configured retries.
func (c *Client) maxAttempts() int {
	return c.retry.MaxRetries + 1
}

// backoff is the generation ladder: 5xx and network errors back off
// exponentially with jitter, 429 waits base + step*retry, everything else stops.
func (c *Client) backoff(err error, n int) (time.Duration, bool) {
	var re *RemoteError
	if !errors.As(err, &re) {
		return 0, false
	}
	switch re.Kind {
	case domain.ErrorKindTransient:
		d := retry.Exponential(c.retry.BaseDelay, c.retry.MaxDelay, n)
		return retry.Jitter(d, c.retry.Jitter, c.retry.MaxDelay, c.rand), true
	case domain.ErrorKindRateLimited:
		return c.retry.RateLimitBaseDelay + time.Duration(n)*c.retry.RateLimitStepDelay, true
	default:
		return 0, false
	}
}

// transientBackoff retries only 5xx and network errors.
func (c *Client) transientBackoff(err error, n int) (time.Duration, bool) {
	var re *RemoteError
	if !errors.As(err, &re) || re.Kind != domain.ErrorKindTransient {
		return 0, false
	}
	return c.backoff(err, n)
}

func (c *Client) policy(op string, delay func(error, int) (time.Duration, bool)) retry.Policy {
	return retry.Policy{
		MaxAttempts: c.maxAttempts(),
		Delay:       delay,
		Sleep:       c.sleep,
		OnRetry: func(attempt int, d time.Duration, err error) {
			attrs := []any{"op", op, "attempt", attempt, "max_attempts", c.maxAttempts(), "delay", d, "error", err}
			var re *RemoteError
			if errors.As(err, &re) {
				attrs = append(attrs, "status", re.HTTPStatus, "kind", string(re.Kind))
			}
			c.logger.Warn("remote call failed, retrying", attrs...)
		},
	}
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
}

// call performs one request under its own timeout and returns the first
// candidate's text.
func (c *Client) call(ctx context.Context, body Request, timeout time.Duration) (string, error) {
	if !c.Enabled() {
		return "", &RemoteError{Kind: domain.ErrorKindRequestRejected, Err: ErrMissingAPIKey}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &RemoteError{Kind: domain.ErrorKindTransient, Err: redact(err)}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &RemoteError{Kind: domain.ErrorKindTransient, HTTPStatus: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RemoteError{
			Kind:       KindForStatus(resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Err:        errors.New(errorMessage(data, resp.Status)),
		}
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &RemoteError{Kind: domain.ErrorKindMalformedResponse, HTTPStatus: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", &RemoteError{Kind: domain.ErrorKindMalformedResponse, HTTPStatus: resp.StatusCode, Err: errors.New("response has no candidates")}
	}
	text := out.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", &RemoteError{Kind: domain.ErrorKindMalformedResponse, HTTPStatus: resp.StatusCode, Err: errors.New("candidate text is empty")}
	}
	return text, nil
}

func errorMessage(data []byte, fallback string) string {
	var out Response
	if err := json.Unmarshal(data, &out); err == nil && out.Error != nil && out.Error.Message != "" {
		return out.Error.Message
	}
	return fallback
}

// redact strips the request URL, which carries the API key, from transport errors.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

func toContents(turns []domain.Turn) []Content {
	out := make([]Content, len(turns))
	for i, t := range turns {
		out[i] = Content{Role: string(t.Role), Parts: []Part{{Text: t.Text}}}
	}
	return out
}
