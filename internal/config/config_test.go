package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.OpenRouter.Model != "openai/gpt-oss-20b" {
		t.Errorf("unexpected default model %q", cfg.OpenRouter.Model)
	}
	if cfg.OpenRouter.RequestTimeout != 60*time.Second {
		t.Errorf("unexpected default timeout %v", cfg.OpenRouter.RequestTimeout)
	}
	if cfg.Chat.MaxRetries != 3 {
		t.Errorf("unexpected default retry count %d", cfg.Chat.MaxRetries)
	}
	if cfg.Chat.MaxHistoryTurns != 10 {
		t.Errorf("unexpected default history cap %d", cfg.Chat.MaxHistoryTurns)
	}
	if cfg.Chat.TitleMaxLength != 15 {
		t.Errorf("unexpected title cap %d", cfg.Chat.TitleMaxLength)
	}
	if !cfg.Transcript.Enabled {
		t.Error("expected transcripts enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	t.Setenv("PORT", "9090")
	t.Setenv("AI_RETRY_MAX_COUNT", "5")
	t.Setenv("AI_RETRY_DELAY_BASE", "500ms")
	t.Setenv("MAX_CONVERSATION_HISTORY", "20")
	t.Setenv("TRANSCRIPT_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.Chat.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.Chat.MaxRetries)
	}
	if cfg.Chat.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms base delay, got %v", cfg.Chat.RetryBaseDelay)
	}
	if cfg.Chat.MaxHistoryTurns != 20 {
		t.Errorf("expected history cap 20, got %d", cfg.Chat.MaxHistoryTurns)
	}
	if cfg.Transcript.Enabled {
		t.Error("expected transcripts disabled")
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing API key")
	} else if !strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	t.Setenv("AI_RETRY_MAX_COUNT", "banana")
	t.Setenv("OPENROUTER_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Chat.MaxRetries != 3 {
		t.Errorf("malformed int should fall back to default, got %d", cfg.Chat.MaxRetries)
	}
	if cfg.OpenRouter.RequestTimeout != 60*time.Second {
		t.Errorf("malformed duration should fall back to default, got %v", cfg.OpenRouter.RequestTimeout)
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://counseling.example.com", false},
	}

	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.frontendURL}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.frontendURL, got, tt.want)
		}
	}
}
