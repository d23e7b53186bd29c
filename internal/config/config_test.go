package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Chat.MaxConversationLength)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 15*time.Second, cfg.Gemini.GenerateTimeout)
	assert.Equal(t, 5*time.Second, cfg.Gemini.ProbeTimeout)
	assert.Equal(t, 8*time.Second, cfg.Gemini.SentimentTimeout)
	assert.Equal(t, 30*time.Second, cfg.Backoff.Initial)
	assert.Equal(t, time.Hour, cfg.Backoff.Max)
	assert.Equal(t, domain.PersonaBestFriend, cfg.Chat.DefaultPersona)
	assert.Equal(t, 30*24*time.Hour, cfg.UserRetention)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_CONVERSATION_LENGTH", "6")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("GENERATE_TIMEOUT", "20000")
	t.Setenv("DEFAULT_PERSONA", "motivational_coach")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GEMINI_BASE_URL", "http://localhost:9999/v1beta/")
	t.Setenv("USER_RETENTION", "72h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Chat.MaxConversationLength)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 20*time.Second, cfg.Gemini.GenerateTimeout)
	assert.Equal(t, domain.PersonaMotivationalCoach, cfg.Chat.DefaultPersona)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "http://localhost:9999/v1beta", cfg.Gemini.BaseURL)
	assert.Equal(t, 72*time.Hour, cfg.UserRetention)
}

func TestLoadRejectsUnknownDefaultPersona(t *testing.T) {
	t.Setenv("DEFAULT_PERSONA", "therapist_9000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_PERSONA")
}

func TestRemoteEnabled(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.RemoteEnabled())

	cfg.Gemini.APIKey = "  key "
	assert.True(t, cfg.RemoteEnabled())
}

func TestGetEnvBoolFallsBackOnGarbage(t *testing.T) {
	t.Setenv("CONVERSATION_LOG_ENABLED", "maybe")
	assert.True(t, getEnvBool("CONVERSATION_LOG_ENABLED", true))
}
