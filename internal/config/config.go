// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	OpenRouter  OpenRouterConfig
	Chat        ChatConfig
	Transcript  TranscriptConfig
}

// OpenRouterConfig configures the language-model gateway client.
type OpenRouterConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	SiteURL        string
	SiteName       string
	RequestTimeout time.Duration
}

// ChatConfig holds the tunables of the message-exchange core. They are
// passed into constructors explicitly so the phase policy and parser stay
// pure and testable.
type ChatConfig struct {
	MaxRetries        int
	RetryBaseDelay    time.Duration
	MinResponseLength int
	MaxHistoryTurns   int
	TitleMaxLength    int
	Temperature       float64
	MaxTokens         int
}

// TranscriptConfig controls NDJSON transcript logging.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/counseling.db"),
		OpenRouter: OpenRouterConfig{
			APIKey:         getEnv("OPENROUTER_API_KEY", ""),
			Model:          getEnv("OPENROUTER_MODEL", "openai/gpt-oss-20b"),
			BaseURL:        getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			SiteURL:        getEnv("OPENROUTER_SITE_URL", "http://localhost:8080"),
			SiteName:       getEnv("OPENROUTER_SITE_NAME", "AI Counseling App"),
			RequestTimeout: getEnvDuration("OPENROUTER_TIMEOUT", 60*time.Second),
		},
		Chat: ChatConfig{
			MaxRetries:        getEnvInt("AI_RETRY_MAX_COUNT", 3),
			RetryBaseDelay:    getEnvDuration("AI_RETRY_DELAY_BASE", time.Second),
			MinResponseLength: getEnvInt("AI_RESPONSE_MIN_LENGTH", 10),
			MaxHistoryTurns:   getEnvInt("MAX_CONVERSATION_HISTORY", 10),
			TitleMaxLength:    15,
			Temperature:       0.7,
			MaxTokens:         2000,
		},
		Transcript: TranscriptConfig{
			Enabled:   getEnvBool("TRANSCRIPT_ENABLED", true),
			Dir:       getEnv("TRANSCRIPT_DIR", "./data/logs/transcripts"),
			QueueSize: queueSize,
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
	if c.OpenRouter.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY cannot be empty")
	}
	if c.OpenRouter.Model == "" {
		return fmt.Errorf("OPENROUTER_MODEL cannot be empty")
	}
	if c.Chat.MaxRetries <= 0 {
		return fmt.Errorf("AI_RETRY_MAX_COUNT must be > 0")
	}
	if c.Chat.MaxHistoryTurns <= 0 {
		return fmt.Errorf("MAX_CONVERSATION_HISTORY must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
