package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/chatbuddy/internal/config"
	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/fallback"
	"github.com/ashureev/chatbuddy/internal/gemini"
	"github.com/ashureev/chatbuddy/internal/persona"
	"github.com/ashureev/chatbuddy/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const anxiousMessage = "I'm feeling really anxious and stressed about everything"

type fakeRemote struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeRemote) GenerateResponse(context.Context, domain.PersonaID, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, f.err
}

func (f *fakeRemote) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newBackoff() (*Backoff, *clock) {
	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := NewBackoff(config.Default().Backoff)
	b.now = c.Now
	return b, c
}

func TestHandleHealthyRemote(t *testing.T) {
	remote := &fakeRemote{reply: "heyyy bestie, what's up?"}
	b, _ := newBackoff()
	o := New(remote, fallback.NewResponder(), b, nil)

	env := o.Handle(context.Background(), domain.PersonaBestFriend, "hello")
	assert.Equal(t, domain.Envelope{Text: "heyyy bestie, what's up?"}, env)
	assert.Equal(t, 1, remote.Calls())
}

func TestHandleFailureFallsBackWithKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{name: "503", err: &gemini.RemoteError{Kind: domain.ErrorKindTransient, HTTPStatus: 503}, want: domain.ErrorKindServiceUnavailable},
		{name: "500", err: &gemini.RemoteError{Kind: domain.ErrorKindTransient, HTTPStatus: 500}, want: domain.ErrorKindTransient},
		{name: "429", err: &gemini.RemoteError{Kind: domain.ErrorKindRateLimited, HTTPStatus: 429}, want: domain.ErrorKindRateLimited},
		{name: "400", err: &gemini.RemoteError{Kind: domain.ErrorKindRequestRejected, HTTPStatus: 400}, want: domain.ErrorKindRequestRejected},
		{name: "malformed", err: &gemini.RemoteError{Kind: domain.ErrorKindMalformedResponse, HTTPStatus: 200}, want: domain.ErrorKindMalformedResponse},
		{name: "unclassified", err: errors.New("weird"), want: domain.ErrorKindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newBackoff()
			o := New(&fakeRemote{err: tt.err}, fallback.NewResponder(), b, nil)

			env := o.Handle(context.Background(), domain.PersonaBestFriend, anxiousMessage)
			assert.True(t, env.UsingFallback)
			assert.Equal(t, tt.want, env.ErrorType)
			assert.NotEmpty(t, env.Text)
		})
	}
}

func TestHandleSkipsRemoteDuringBackoff(t *testing.T) {
	remote := &fakeRemote{err: &gemini.RemoteError{Kind: domain.ErrorKindTransient, HTTPStatus: 503}}
	b, c := newBackoff()
	o := New(remote, fallback.NewResponder(), b, nil)

	env := o.Handle(context.Background(), domain.PersonaBestFriend, "hi")
	assert.Equal(t, domain.ErrorKindServiceUnavailable, env.ErrorType)
	assert.Equal(t, 1, remote.Calls())
	assert.Equal(t, time.Minute, b.Window())

	c.now = c.now.Add(30 * time.Second)
	env = o.Handle(context.Background(), domain.PersonaBestFriend, "hi again")
	assert.True(t, env.UsingFallback)
	assert.Equal(t, domain.ErrorKindBackoff, env.ErrorType)
	assert.Equal(t, 1, remote.Calls())
	assert.Equal(t, 1, b.State().ConsecutiveFailures)

	c.now = c.now.Add(31 * time.Second)
	remote.mu.Lock()
	remote.err = nil
	remote.reply = "back!"
	remote.mu.Unlock()

	env = o.Handle(context.Background(), domain.PersonaBestFriend, "still there?")
	assert.False(t, env.UsingFallback)
	assert.Equal(t, "back!", env.Text)
	assert.Equal(t, 2, remote.Calls())
	assert.Zero(t, b.State().ConsecutiveFailures)
}

func TestBackoffWindowDoublesAndCaps(t *testing.T) {
	b, _ := newBackoff()
	assert.Equal(t, 30*time.Second, b.Window())

	want := []time.Duration{
		time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute,
		16 * time.Minute, 32 * time.Minute, time.Hour, time.Hour,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Failure(), "failure %d", i+1)
	}
	for range 100 {
		b.Failure()
	}
	assert.Equal(t, time.Hour, b.Window())

	s := b.State()
	assert.False(t, s.Available)
	assert.Equal(t, s.LastFailure.Add(time.Hour), s.RetryAt)

	b.Success()
	assert.Equal(t, 30*time.Second, b.Window())
	assert.True(t, b.Allow())
}

// Remote always 503: the persona's history keeps the user turn, the reply
// comes from the high-severity pool.
func TestHandleEndToEndAlwaysFailing(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Gemini.APIKey = "k"
	cfg.Gemini.BaseURL = srv.URL
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond

	history := session.NewManager(persona.MustLoadCatalog(), cfg.Chat.MaxConversationLength)
	client := gemini.NewClient(cfg.Gemini, cfg.Retry, history, nil)
	o := New(client, fallback.NewResponder(), NewBackoff(cfg.Backoff), nil)

	env := o.Handle(context.Background(), domain.PersonaBestFriend, anxiousMessage)

	assert.True(t, env.UsingFallback)
	assert.Equal(t, domain.ErrorKindServiceUnavailable, env.ErrorType)
	assert.True(t, slices.Contains(fallback.Pool(fallback.TierHigh), env.Text), "got %q", env.Text)

	mu.Lock()
	assert.Equal(t, cfg.Retry.MaxRetries+1, hits)
	mu.Unlock()

	h, err := history.History(domain.PersonaBestFriend)
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, anxiousMessage, h[2].Text)
}

func TestHandleEndToEndHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hey hey! how's your day going? 💫"}]}}]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Gemini.APIKey = "k"
	cfg.Gemini.BaseURL = srv.URL

	history := session.NewManager(persona.MustLoadCatalog(), cfg.Chat.MaxConversationLength)
	client := gemini.NewClient(cfg.Gemini, cfg.Retry, history, nil)
	o := New(client, fallback.NewResponder(), NewBackoff(cfg.Backoff), nil)

	env := o.Handle(context.Background(), domain.PersonaBestFriend, "hello")
	assert.False(t, env.UsingFallback)
	assert.Empty(t, env.ErrorType)
	assert.Equal(t, "hey hey! how's your day going? 💫", env.Text)

	h, err := history.History(domain.PersonaBestFriend)
	require.NoError(t, err)
	assert.Len(t, h, 4)
}

// A caller that gives up while a healthy endpoint is still answering gets the
// remote reply and leaves the shared backoff closed.
func TestHandleCallerDeadlineIsNotRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"still here"}]}}]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Gemini.APIKey = "k"
	cfg.Gemini.BaseURL = srv.URL

	history := session.NewManager(persona.MustLoadCatalog(), cfg.Chat.MaxConversationLength)
	client := gemini.NewClient(cfg.Gemini, cfg.Retry, history, nil)
	b := NewBackoff(cfg.Backoff)
	o := New(client, fallback.NewResponder(), b, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	env := o.Handle(ctx, domain.PersonaBestFriend, "hello")

	assert.False(t, env.UsingFallback)
	assert.Equal(t, "still here", env.Text)
	assert.True(t, b.Allow())
	assert.Zero(t, b.State().ConsecutiveFailures)
}

func TestHandleCanceledContextStillReachesRemote(t *testing.T) {
	remote := &fakeRemote{reply: "hi!"}
	b, _ := newBackoff()
	o := New(remote, fallback.NewResponder(), b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env := o.Handle(ctx, domain.PersonaBestFriend, "hello")

	assert.Equal(t, domain.Envelope{Text: "hi!"}, env)
	assert.True(t, b.State().Available)
}
