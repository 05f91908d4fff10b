package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maumtalk/counseling-server/internal/config"
)

// ErrExhausted is returned when every attempt produced a blank or
// implausibly short completion.
var ErrExhausted = errors.New("no usable completion after retries")

// Client is an HTTP client for the OpenRouter chat-completions endpoint.
// It owns the retry-on-empty-response policy: blank or too-short completions
// are retried with linearly increasing backoff, while transport and HTTP
// errors propagate to the caller immediately.
type Client struct {
	cfg        config.OpenRouterConfig
	chat       config.ChatConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new OpenRouter client.
func NewClient(cfg config.OpenRouterConfig, chat config.ChatConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		chat: chat,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger.With("provider", "openrouter"),
	}
}

// Send requests a counseling completion: system prompt, prior turns, then
// the new user message. It returns the raw completion text.
func (c *Client) Send(ctx context.Context, userMessage, systemPrompt string, history []ChatMessage) (string, error) {
	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: "user", Content: userMessage})

	for attempt := 1; attempt <= c.chat.MaxRetries; attempt++ {
		content, err := c.complete(ctx, messages)
		if err != nil {
			return "", err
		}

		if len(content) > c.chat.MinResponseLength {
			return content, nil
		}

		if attempt < c.chat.MaxRetries {
			delay := c.chat.RetryBaseDelay * time.Duration(attempt)
			c.logger.Warn("blank or short completion, retrying",
				"attempt", attempt, "max", c.chat.MaxRetries, "delay", delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	c.logger.Error("completion failed after retries", "attempts", c.chat.MaxRetries)
	return "", ErrExhausted
}

func (c *Client) complete(ctx context.Context, messages []ChatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.chat.Temperature,
		MaxTokens:   c.chat.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	req.Header.Set("X-Title", c.cfg.SiteName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", nil
	}
	if parsed.Usage != nil {
		c.logger.Debug("completion usage",
			"prompt_tokens", parsed.Usage.PromptTokens,
			"completion_tokens", parsed.Usage.CompletionTokens)
	}
	return parsed.Choices[0].Message.Content, nil
}
