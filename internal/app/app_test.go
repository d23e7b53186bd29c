package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/chatbuddy/internal/chat"
	"github.com/ashureev/chatbuddy/internal/config"
	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "chatbuddy.db")
	cfg.ConversationLog.Dir = filepath.Join(dir, "logs")
	cfg.ConversationLog.GlobalPath = filepath.Join(dir, "logs", "all.ndjson")
	cfg.Chat.MinResponseLatency = 0

	a, err := New(cfg, chat.ChannelHTTP, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRouterHeartbeat(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterChatWithoutAPIKeyFallsBack(t *testing.T) {
	a := newTestApp(t)
	router := a.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hey there"}`))
	req.Header.Set(identity.SessionHeaderName, "tab-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res chat.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.True(t, res.UsingFallback)
	assert.Equal(t, domain.ErrorKindRequestRejected, res.ErrorType)
	assert.NotEmpty(t, res.Text)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, domain.NoticeFirstFailure, res.Notices[0].Kind)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	userID := cookies[0].Value

	user, err := a.Repository().GetUser(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, user)

	// The same cookie keeps the same conversation.
	req = httptest.NewRequest(http.MethodGet, "/api/conversation", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hey there")
}

func TestRouterPersistsPersonaAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "chatbuddy.db")
	cfg.ConversationLog.Enabled = false

	first, err := New(cfg, chat.ChannelHTTP, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/persona", strings.NewReader(`{"id":"motivational_coach"}`))
	rec := httptest.NewRecorder()
	first.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := rec.Result().Cookies()[0]
	require.NoError(t, first.Close())

	second, err := New(cfg, chat.ChannelHTTP, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	req = httptest.NewRequest(http.MethodGet, "/api/personas", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	second.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Current domain.PersonaID `json:"current"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, domain.PersonaMotivationalCoach, got.Current)
}

func TestTranscriptWrittenPerSession(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set(identity.SessionHeaderName, "tab-9")
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	userID := rec.Result().Cookies()[0].Value

	require.NoError(t, a.transcript.Close())
	data, err := os.ReadFile(filepath.Join(a.cfg.ConversationLog.Dir, userID, "tab-9.ndjson"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"chat_user_message"`)
	assert.Contains(t, string(data), `"channel":"chat_http"`)
}

func TestPurgeInactiveUsers(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	repo := a.Repository()

	require.NoError(t, repo.UpsertUser(ctx, &domain.User{UserID: "stale", Username: "anon-stale", LastSeenAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, repo.UpsertUser(ctx, &domain.User{UserID: "fresh", Username: "anon-fresh", LastSeenAt: time.Now()}))

	assert.Equal(t, int64(1), purgeInactiveUsers(ctx, repo, 24*time.Hour, a.logger))

	user, err := repo.GetUser(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, user)
}

func TestRetentionWorkerStops(t *testing.T) {
	a := newTestApp(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := StartRetentionWorker(ctx, a.Repository(), time.Hour, time.Hour, nil)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention worker did not stop")
	}
}
