package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/chatbuddy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestMiddlewareIssuesAnonymousIdentity(t *testing.T) {
	repo := newRepo(t)

	var gotUser, gotSession string
	h := Middleware(repo, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(SessionHeaderName, "tab-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, IsValidAnonID(gotUser), "got %q", gotUser)
	assert.Equal(t, "tab-1", gotSession)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AnonCookieName, cookies[0].Name)
	assert.Equal(t, gotUser, cookies[0].Value)

	user, err := repo.GetUser(context.Background(), gotUser)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "anon-"+gotUser[len(gotUser)-8:], user.Username)
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	repo := newRepo(t)
	id, err := GenerateAnonID()
	require.NoError(t, err)

	var gotUser string
	h := Middleware(repo, false)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status?session_id=bad%20id", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, id, gotUser)
	assert.True(t, rec.Result().Cookies()[0].Secure)
}

func TestMiddlewareReplacesForgedCookie(t *testing.T) {
	repo := newRepo(t)

	var gotUser string
	h := Middleware(repo, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "../../admin"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotEqual(t, "../../admin", gotUser)
	assert.True(t, IsValidAnonID(gotUser))
}

func TestEnsureUserRefreshesLastSeen(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	id, err := GenerateAnonID()
	require.NoError(t, err)

	require.NoError(t, EnsureUser(ctx, repo, id))
	require.NoError(t, repo.UpdateLastSeen(ctx, id, time.Now().Add(-time.Hour)))

	require.NoError(t, EnsureUser(ctx, repo, id))
	user, err := repo.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Less(t, time.Since(user.LastSeenAt), time.Minute)
}

func TestSanitizeSessionID(t *testing.T) {
	assert.Equal(t, "tab-1", sanitizeSessionID(" tab-1 "))
	assert.Equal(t, DefaultSessionIDValue, sanitizeSessionID(""))
	assert.Equal(t, DefaultSessionIDValue, sanitizeSessionID("has space"))
	assert.Equal(t, DefaultSessionIDValue, SessionIDFromContext(context.Background()))
}

func TestNewContext(t *testing.T) {
	ctx := NewContext(context.Background(), "anon_0123456789abcdef0123456789abcdef", "cli")
	assert.Equal(t, "anon_0123456789abcdef0123456789abcdef", UserIDFromContext(ctx))
	assert.Equal(t, "anon-89abcdef", UsernameFromContext(ctx))
	assert.Equal(t, "cli", SessionIDFromContext(ctx))
}
