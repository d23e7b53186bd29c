// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/chatbuddy/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	GRPCPort        string
	AllowedOrigins  []string
	DBPath          string
	UserRetention   time.Duration
	LogLevel        slog.Level
	Gemini          GeminiConfig
	Retry           RetryConfig
	Backoff         BackoffConfig
	Availability    AvailabilityConfig
	Chat            ChatConfig
	ConversationLog ConversationLogConfig
}

// GeminiConfig controls the remote completion endpoint.
type GeminiConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	Temperature      float64
	MaxOutputTokens  int
	GenerateTimeout  time.Duration
	ProbeTimeout     time.Duration
	SentimentTimeout time.Duration
}

// RetryConfig is the per-call retry ladder of the remote client.
type RetryConfig struct {
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	Jitter             float64
	RateLimitBaseDelay time.Duration
	RateLimitStepDelay time.Duration
}

// BackoffConfig is the orchestrator's skip-the-remote window.
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
}

// AvailabilityConfig controls background probing.
type AvailabilityConfig struct {
	MinProbeInterval time.Duration
	OnlinePoll       time.Duration
	OfflinePoll      time.Duration
	ReconnectTimeout time.Duration
	ProbeRetryDelay  time.Duration
}

// ChatConfig controls per-user conversations.
type ChatConfig struct {
	MaxConversationLength int
	MinResponseLatency    time.Duration
	DefaultPersona        domain.PersonaID
	IdleTTL               time.Duration
	RateLimitPerMinute    int
	MaxRequestBodySize    int64
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Default returns the built-in configuration without consulting the environment.
func Default() *Config {
	return &Config{
		Port:           "8080",
		GRPCPort:       "9090",
		AllowedOrigins: []string{"*"},
		DBPath:         "./data/chatbuddy.db",
		UserRetention:  30 * 24 * time.Hour,
		LogLevel:       slog.LevelInfo,
		Gemini: GeminiConfig{
			BaseURL:          "https://generativelanguage.googleapis.com/v1beta",
			Model:            "gemini-2.0-flash",
			Temperature:      0.7,
			MaxOutputTokens:  300,
			GenerateTimeout:  15 * time.Second,
			ProbeTimeout:     5 * time.Second,
			SentimentTimeout: 8 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:         3,
			BaseDelay:          time.Second,
			MaxDelay:           10 * time.Second,
			Jitter:             0.3,
			RateLimitBaseDelay: 3 * time.Second,
			RateLimitStepDelay: 2 * time.Second,
		},
		Backoff: BackoffConfig{
			Initial: 30 * time.Second,
			Max:     time.Hour,
		},
		Availability: AvailabilityConfig{
			MinProbeInterval: 15 * time.Second,
			OnlinePoll:       60 * time.Second,
			OfflinePoll:      15 * time.Second,
			ReconnectTimeout: 6 * time.Second,
			ProbeRetryDelay:  2 * time.Second,
		},
		Chat: ChatConfig{
			MaxConversationLength: 10,
			MinResponseLatency:    800 * time.Millisecond,
			DefaultPersona:        domain.PersonaBestFriend,
			IdleTTL:               60 * time.Minute,
			RateLimitPerMinute:    20,
			MaxRequestBodySize:    1 << 20,
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       true,
			Dir:           "./data/logs/conversations",
			GlobalEnabled: false,
			GlobalPath:    "./data/logs/conversations/all.ndjson",
			QueueSize:     1000,
		},
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	d := Default()

	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", d.ConversationLog.QueueSize)
	if queueSize <= 0 {
		queueSize = d.ConversationLog.QueueSize
	}

	cfg := &Config{
		Port:           getEnv("PORT", d.Port),
		GRPCPort:       getEnv("GRPC_PORT", d.GRPCPort),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", d.AllowedOrigins),
		DBPath:         getEnv("DB_PATH", d.DBPath),
		UserRetention:  getEnvDuration("USER_RETENTION", d.UserRetention),
		LogLevel:       getEnvLevel("LOG_LEVEL", d.LogLevel),
		Gemini: GeminiConfig{
			APIKey:           getEnv("GEMINI_API_KEY", ""),
			BaseURL:          strings.TrimRight(getEnv("GEMINI_BASE_URL", d.Gemini.BaseURL), "/"),
			Model:            getEnv("GEMINI_MODEL", d.Gemini.Model),
			Temperature:      getEnvFloat("DEFAULT_TEMPERATURE", d.Gemini.Temperature),
			MaxOutputTokens:  getEnvInt("MAX_TOKENS", d.Gemini.MaxOutputTokens),
			GenerateTimeout:  getEnvDuration("GENERATE_TIMEOUT", d.Gemini.GenerateTimeout),
			ProbeTimeout:     getEnvDuration("PROBE_TIMEOUT", d.Gemini.ProbeTimeout),
			SentimentTimeout: getEnvDuration("SENTIMENT_TIMEOUT", d.Gemini.SentimentTimeout),
		},
		Retry: RetryConfig{
			MaxRetries:         getEnvInt("MAX_RETRIES", d.Retry.MaxRetries),
			BaseDelay:          getEnvDuration("RETRY_BASE_DELAY", d.Retry.BaseDelay),
			MaxDelay:           getEnvDuration("RETRY_MAX_DELAY", d.Retry.MaxDelay),
			Jitter:             getEnvFloat("RETRY_JITTER", d.Retry.Jitter),
			RateLimitBaseDelay: getEnvDuration("RATE_LIMIT_BASE_DELAY", d.Retry.RateLimitBaseDelay),
			RateLimitStepDelay: getEnvDuration("RATE_LIMIT_STEP_DELAY", d.Retry.RateLimitStepDelay),
		},
		Backoff: BackoffConfig{
			Initial: getEnvDuration("REMOTE_BACKOFF_INITIAL", d.Backoff.Initial),
			Max:     getEnvDuration("REMOTE_BACKOFF_MAX", d.Backoff.Max),
		},
		Availability: AvailabilityConfig{
			MinProbeInterval: getEnvDuration("MIN_PROBE_INTERVAL", d.Availability.MinProbeInterval),
			OnlinePoll:       getEnvDuration("ONLINE_POLL_INTERVAL", d.Availability.OnlinePoll),
			OfflinePoll:      getEnvDuration("OFFLINE_POLL_INTERVAL", d.Availability.OfflinePoll),
			ReconnectTimeout: getEnvDuration("RECONNECT_TIMEOUT", d.Availability.ReconnectTimeout),
			ProbeRetryDelay:  getEnvDuration("PROBE_RETRY_DELAY", d.Availability.ProbeRetryDelay),
		},
		Chat: ChatConfig{
			MaxConversationLength: getEnvInt("MAX_CONVERSATION_LENGTH", d.Chat.MaxConversationLength),
			MinResponseLatency:    getEnvDuration("MIN_RESPONSE_LATENCY", d.Chat.MinResponseLatency),
			DefaultPersona:        domain.PersonaID(getEnv("DEFAULT_PERSONA", string(d.Chat.DefaultPersona))),
			IdleTTL:               getEnvDuration("SESSION_IDLE_TTL", d.Chat.IdleTTL),
			RateLimitPerMinute:    getEnvInt("CHAT_RATE_LIMIT", d.Chat.RateLimitPerMinute),
			MaxRequestBodySize:    int64(getEnvInt("MAX_REQUEST_BODY_SIZE", int(d.Chat.MaxRequestBodySize))),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", d.ConversationLog.Enabled),
			Dir:           getEnv("CONVERSATION_LOG_DIR", d.ConversationLog.Dir),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", d.ConversationLog.GlobalEnabled),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", d.ConversationLog.GlobalPath),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.UserRetention <= 0 {
		return fmt.Errorf("USER_RETENTION must be > 0")
	}
	if c.Gemini.BaseURL == "" {
		return fmt.Errorf("GEMINI_BASE_URL cannot be empty")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("GEMINI_MODEL cannot be empty")
	}
	if c.Gemini.MaxOutputTokens <= 0 {
		return fmt.Errorf("MAX_TOKENS must be > 0")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be >= 0")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		return fmt.Errorf("RETRY_JITTER must be in [0, 1)")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("RETRY_MAX_DELAY must be >= RETRY_BASE_DELAY > 0")
	}
	if c.Backoff.Initial <= 0 || c.Backoff.Max < c.Backoff.Initial {
		return fmt.Errorf("REMOTE_BACKOFF_MAX must be >= REMOTE_BACKOFF_INITIAL > 0")
	}
	if c.Availability.OnlinePoll <= 0 || c.Availability.OfflinePoll <= 0 {
		return fmt.Errorf("poll intervals must be > 0")
	}
	if c.Chat.MaxConversationLength < 3 {
		return fmt.Errorf("MAX_CONVERSATION_LENGTH must be >= 3")
	}
	if !c.Chat.DefaultPersona.Valid() {
		return fmt.Errorf("DEFAULT_PERSONA %q is not a known persona", c.Chat.DefaultPersona)
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// RemoteEnabled reports whether an API key is configured. Without one the
// service runs in fallback-only mode.
func (c *Config) RemoteEnabled() bool {
	return strings.TrimSpace(c.Gemini.APIKey) != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.Contains(o, "localhost") || strings.Contains(o, "127.0.0.1") {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("15s") or bare milliseconds ("15000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
